package broker_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRabbitMQ(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping rabbitmq integration test in short mode")
	}

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())
}

// runProfileWorker answers every profile request with the request body.
func runProfileWorker(t *testing.T, url string) {
	t.Helper()
	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ch, err := conn.Channel()
	require.NoError(t, err)
	_, err = ch.QueueDeclare(string(broker.QueueProfile), true, false, false, false, nil)
	require.NoError(t, err)
	deliveries, err := ch.Consume(string(broker.QueueProfile), "", true, false, false, false, nil)
	require.NoError(t, err)

	go func() {
		for d := range deliveries {
			var req broker.Request
			if json.Unmarshal(d.Body, &req) != nil || req.ID == "" {
				continue
			}
			body, _ := json.Marshal(broker.Reply{ReqID: req.ID, Op: req.Op, Status: 200, Message: req.Message})
			_ = ch.PublishWithContext(context.Background(), "", d.ReplyTo, false, false, amqp.Publishing{
				ContentType:   "application/json",
				CorrelationId: d.CorrelationId,
				Body:          body,
			})
		}
	}()
}

func TestBridgeAgainstRabbitMQ(t *testing.T) {
	url := startRabbitMQ(t)

	b := broker.New(broker.Options{
		URL:            url,
		ReconnectDelay: 100 * time.Millisecond,
		CallTimeout:    5 * time.Second,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	b.Start()
	t.Cleanup(b.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, b.WaitReady(ctx))

	runProfileWorker(t, url)

	res, err := b.Call(ctx, broker.QueueProfile, broker.OpProfileGet, `{"id":"u1"}`, claimFor("u1"), nil)
	require.NoError(t, err)
	require.Equal(t, 200, res.Status)
	require.Equal(t, `{"id":"u1"}`, res.Body)
	require.Equal(t, 0, b.Pending())
}
