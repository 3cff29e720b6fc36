package broker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aussiebroadwan/gateway/internal/gateway/broker"
	amqp "github.com/rabbitmq/amqp091-go"
)

type published struct {
	queue string
	msg   amqp.Publishing
}

// fakeBroker stands in for RabbitMQ: it records declarations and publishes
// and lets tests push deliveries into whatever queues the bridge consumes.
type fakeBroker struct {
	mu        sync.Mutex
	consumers map[string]chan amqp.Delivery
	declared  []string
	conn      *fakeConn
	published chan published

	dials    atomic.Int32
	failDial atomic.Bool
	anon     atomic.Int32
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		consumers: make(map[string]chan amqp.Delivery),
		published: make(chan published, 64),
	}
}

func (f *fakeBroker) Dial(string) (broker.Connection, error) {
	f.dials.Add(1)
	if f.failDial.Load() {
		return nil, errors.New("connection refused")
	}
	c := &fakeConn{broker: f}
	f.mu.Lock()
	f.conn = c
	f.mu.Unlock()
	return c, nil
}

// Deliver pushes body onto queue as if a worker had published it.
func (f *fakeBroker) Deliver(queue string, body []byte) bool {
	f.mu.Lock()
	ch, ok := f.consumers[queue]
	f.mu.Unlock()
	if !ok {
		return false
	}
	ch <- amqp.Delivery{Body: body}
	return true
}

// Drop simulates the broker closing the connection.
func (f *fakeBroker) Drop() {
	f.mu.Lock()
	c := f.conn
	f.mu.Unlock()
	if c != nil {
		c.drop(&amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED"})
	}
}

func (f *fakeBroker) Declared() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.declared...)
}

type fakeConn struct {
	broker *fakeBroker

	mu     sync.Mutex
	notify []chan *amqp.Error
	chans  []*fakeChannel
	closed bool
}

func (c *fakeConn) Channel() (broker.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &fakeChannel{conn: c, consumers: make(map[string]chan amqp.Delivery)}
	c.chans = append(c.chans, ch)
	return ch, nil
}

func (c *fakeConn) NotifyClose(r chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = append(c.notify, r)
	return r
}

func (c *fakeConn) Close() error {
	c.drop(nil)
	return nil
}

func (c *fakeConn) drop(reason *amqp.Error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	notify, chans := c.notify, c.chans
	c.mu.Unlock()

	for _, ch := range chans {
		ch.shutdown(reason)
	}
	for _, n := range notify {
		if reason != nil {
			n <- reason
		}
		close(n)
	}
}

type fakeChannel struct {
	conn *fakeConn

	mu        sync.Mutex
	consumers map[string]chan amqp.Delivery
	notify    []chan *amqp.Error
	closed    bool
}

func (ch *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	b := ch.conn.broker
	if name == "" {
		name = fmt.Sprintf("amq.gen-%d", b.anon.Add(1))
	}
	b.mu.Lock()
	b.declared = append(b.declared, name)
	b.mu.Unlock()
	return amqp.Queue{Name: name}, nil
}

func (ch *fakeChannel) Consume(queue, _ string, _, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	d := make(chan amqp.Delivery, 64)
	ch.mu.Lock()
	ch.consumers[queue] = d
	ch.mu.Unlock()

	b := ch.conn.broker
	b.mu.Lock()
	b.consumers[queue] = d
	b.mu.Unlock()
	return d, nil
}

func (ch *fakeChannel) PublishWithContext(ctx context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if closed {
		return amqp.ErrClosed
	}
	select {
	case ch.conn.broker.published <- published{queue: key, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ch *fakeChannel) NotifyClose(r chan *amqp.Error) chan *amqp.Error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.notify = append(ch.notify, r)
	return r
}

func (ch *fakeChannel) Close() error {
	ch.shutdown(nil)
	return nil
}

func (ch *fakeChannel) shutdown(reason *amqp.Error) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	consumers, notify := ch.consumers, ch.notify
	ch.mu.Unlock()

	b := ch.conn.broker
	b.mu.Lock()
	for q, d := range consumers {
		if b.consumers[q] == d {
			delete(b.consumers, q)
		}
	}
	b.mu.Unlock()

	for _, d := range consumers {
		close(d)
	}
	for _, n := range notify {
		if reason != nil {
			n <- reason
		}
		close(n)
	}
}
