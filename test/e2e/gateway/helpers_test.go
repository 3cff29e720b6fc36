package gateway_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/gateway/internal/gateway/app"
	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	"github.com/aussiebroadwan/gateway/pkg/gatewaysdk"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * End-to-end harness: a RabbitMQ container, the gateway application wired
 * exactly as in production, and small in-test workers that speak the
 * envelope format on the worker queues.
 */

// workerFunc answers one request with a status and a message.
type workerFunc func(req broker.Request) (int, string)

type gatewayEnv struct {
	baseURL   string
	brokerURL string
	conn      *amqp.Connection
}

// setupGateway starts RabbitMQ and the gateway and waits until the gateway
// reports ready.
func setupGateway(t *testing.T) *gatewayEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
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
	t.Cleanup(func() {
		if err := ctr.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)
	brokerURL := fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port())

	cfg, err := app.LoadConfig()
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.DatabaseFile = filepath.Join(dir, "gateway.db")
	cfg.PepperFile = filepath.Join(dir, "pepper")
	cfg.BrokerURL = brokerURL
	cfg.ReconnectDelay = 200 * time.Millisecond
	cfg.CallTimeout = 5 * time.Second
	cfg.CookieSecure = false
	cfg.LogLevel = "warn"

	application, err := app.New(ctx, cfg)
	require.NoError(t, err)
	application.Start()

	server := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		server.Close()
		_ = application.Shutdown()
	})

	conn, err := amqp.Dial(brokerURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	env := &gatewayEnv{baseURL: server.URL, brokerURL: brokerURL, conn: conn}
	require.Eventually(t, func() bool {
		resp, err := http.Get(server.URL + "/readyz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 100*time.Millisecond, "gateway never became ready")

	return env
}

func (e *gatewayEnv) client() *gatewaysdk.Client {
	return gatewaysdk.NewClient(e.baseURL)
}

// runWorker consumes queue and replies to every request that expects one.
func (e *gatewayEnv) runWorker(t *testing.T, queue broker.Queue, handle workerFunc) {
	t.Helper()

	ch, err := e.conn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })

	_, err = ch.QueueDeclare(string(queue), true, false, false, false, nil)
	require.NoError(t, err)
	deliveries, err := ch.Consume(string(queue), "", true, false, false, false, nil)
	require.NoError(t, err)

	go func() {
		for d := range deliveries {
			var req broker.Request
			if json.Unmarshal(d.Body, &req) != nil {
				continue
			}
			status, msg := handle(req)
			if req.ID == "" {
				continue
			}
			body, _ := json.Marshal(broker.Reply{ReqID: req.ID, Op: req.Op, Status: status, Message: msg})
			_ = ch.PublishWithContext(context.Background(), "", d.ReplyTo, false, false, amqp.Publishing{
				ContentType:   "application/json",
				CorrelationId: d.CorrelationId,
				Body:          body,
			})
		}
	}()
}

// notify publishes a worker notification for userID.
func (e *gatewayEnv) notify(userID string, payload any) error {
	ch, err := e.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(broker.Notification{UserID: userID, Payload: raw})
	if err != nil {
		return err
	}
	return ch.PublishWithContext(context.Background(), "", broker.DefaultNotificationQueue, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

// profileWorker creates every profile except those named in taken, and
// answers reads with the caller's subject.
func profileWorker(taken ...string) workerFunc {
	return func(req broker.Request) (int, string) {
		switch req.Op {
		case broker.OpProfileCreate:
			var p struct {
				Username string `json:"username"`
			}
			_ = json.Unmarshal([]byte(req.Message), &p)
			for _, name := range taken {
				if p.Username == name {
					return http.StatusConflict, `{"reason":"name unavailable"}`
				}
			}
			return http.StatusCreated, req.Message
		case broker.OpProfileGet:
			body, _ := json.Marshal(map[string]string{"id": req.Claim.Subject})
			return http.StatusOK, string(body)
		default:
			return http.StatusNotImplemented, ""
		}
	}
}

func signUp(t *testing.T, c *gatewaysdk.Client, username string) *gatewaysdk.SignInResponse {
	t.Helper()
	resp, err := c.SignUp(context.Background(), gatewaysdk.SignUpRequest{
		Username: username,
		Password: "correct-horse-battery",
	})
	require.NoError(t, err, "sign-up should succeed")
	require.NotEmpty(t, resp.Subject)
	return resp
}
