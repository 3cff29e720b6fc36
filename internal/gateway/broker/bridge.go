// Package broker makes request/reply over a message broker look like a
// synchronous call to HTTP handlers.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/gateway/pkg/jwtx"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultReconnectDelay    = 5 * time.Second
	DefaultCallTimeout       = 10 * time.Second
	DefaultOutboxSize        = 256
	DefaultNotificationQueue = "gateway.notifications"
)

var (
	ErrUpstreamUnavailable  = errors.New("broker: upstream unavailable")
	ErrGatewayTimeout       = errors.New("broker: no reply within timeout")
	ErrOutboxFull           = errors.New("broker: outbox full")
	ErrCorrelationCollision = errors.New("broker: correlation id already in flight")
)

// State of the broker connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Observer receives bridge events, typically for metrics.
type Observer interface {
	StateChanged(State)
	CallFinished(q Queue, outcome string, elapsed time.Duration)
	PendingChanged(n int)
	ReplyDropped(reason string)
}

type nopObserver struct{}

func (nopObserver) StateChanged(State)                        {}
func (nopObserver) CallFinished(Queue, string, time.Duration) {}
func (nopObserver) PendingChanged(int)                        {}
func (nopObserver) ReplyDropped(string)                       {}

// Options configures a Bridge.
type Options struct {
	URL string

	// ReplyQueue is declared exclusive and auto-delete. Empty lets the broker
	// pick a name.
	ReplyQueue        string
	NotificationQueue string
	Queues            []Queue

	ReconnectDelay time.Duration
	CallTimeout    time.Duration
	OutboxSize     int

	Dial     Dialer
	NewID    func() string
	Logger   *slog.Logger
	Observer Observer

	// OnNotification receives every worker notification while Ready.
	OnNotification func(userID string, payload []byte)
}

// Attachment is a credential to hand back with a successful reply, for the
// caller to set as a cookie.
type Attachment struct {
	Token  string
	Claims jwtx.Claims
}

// Result is a worker's reply.
type Result struct {
	Status int
	Body   string
	Attach *Attachment
}

// OK reports a 2xx status.
func (r Result) OK() bool { return r.Status >= 200 && r.Status < 300 }

// entry is one outstanding call. Whoever deletes it from the pending map owns
// it; only the owner may send on done, so it completes exactly once.
type entry struct {
	queue  Queue
	op     Op
	attach *Attachment
	done   chan Reply
}

type outbound struct {
	queue Queue
	req   Request
}

// Bridge owns the broker connection, the correlation map and the outbox.
type Bridge struct {
	opts Options
	log  *slog.Logger
	obs  Observer

	state atomic.Int32

	mu      sync.Mutex
	pending map[string]*entry

	pubMu   sync.Mutex
	ch      Channel
	replyTo string

	outbox chan outbound

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Bridge. Call Start to begin connecting.
func New(opts Options) *Bridge {
	if opts.NotificationQueue == "" {
		opts.NotificationQueue = DefaultNotificationQueue
	}
	if len(opts.Queues) == 0 {
		opts.Queues = AllQueues()
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	if opts.Dial == nil {
		opts.Dial = DialAMQP
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &Bridge{
		opts:    opts,
		log:     opts.Logger.With("component", "broker"),
		obs:     opts.Observer,
		pending: make(map[string]*entry),
		outbox:  make(chan outbound, opts.OutboxSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// State returns the current connection state.
func (b *Bridge) State() State { return State(b.state.Load()) }

// Pending returns the number of outstanding correlation entries.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) setState(s State) {
	if State(b.state.Swap(int32(s))) != s {
		b.log.Info("broker state changed", "state", s.String())
		b.obs.StateChanged(s)
	}
}

// Start connects in the background and keeps reconnecting until Stop.
func (b *Bridge) Start() {
	if b.started.Swap(true) {
		return
	}
	go b.run()
}

// Stop closes the connection and waits for the background loop to exit.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	if b.started.Load() {
		<-b.doneCh
	}
	b.setState(StateDisconnected)
}

// WaitReady blocks until the bridge is Ready or ctx ends.
func (b *Bridge) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for b.State() != StateReady {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Call publishes body to q and waits for the correlated reply. It fails fast
// with ErrUpstreamUnavailable when the bridge is not Ready, and with
// ErrGatewayTimeout when no reply arrives within the call timeout. attach is
// returned with the result only when the worker replies 2xx.
func (b *Bridge) Call(ctx context.Context, q Queue, op Op, body string, claim jwtx.Claims, attach *Attachment) (Result, error) {
	if err := ValidateOp(q, op); err != nil {
		return Result{}, err
	}
	start := time.Now()
	if b.State() != StateReady {
		b.obs.CallFinished(q, "unavailable", 0)
		return Result{}, ErrUpstreamUnavailable
	}

	id := b.opts.NewID()
	e := &entry{queue: q, op: op, attach: attach, done: make(chan Reply, 1)}
	if !b.register(id, e) {
		b.obs.CallFinished(q, "collision", 0)
		return Result{}, ErrCorrelationCollision
	}

	log := b.log.With("corr_id", id, "queue", string(q), "op", OpName(q, op))
	if err := b.publish(ctx, q, Request{ID: id, Op: op, Message: body, Claim: claim}); err != nil {
		b.unregister(id)
		b.obs.CallFinished(q, "unavailable", time.Since(start))
		log.Warn("broker publish failed", "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	timer := time.NewTimer(b.opts.CallTimeout)
	defer timer.Stop()

	select {
	case r := <-e.done:
		return b.finish(q, e, r, start), nil
	case <-timer.C:
		if b.unregister(id) {
			b.obs.CallFinished(q, "timeout", time.Since(start))
			log.Warn("broker call timed out", "timeout", b.opts.CallTimeout)
			return Result{}, ErrGatewayTimeout
		}
	case <-ctx.Done():
		if b.unregister(id) {
			b.obs.CallFinished(q, "canceled", time.Since(start))
			return Result{}, ctx.Err()
		}
	}

	// The reply won the race for the entry and is about to deliver.
	return b.finish(q, e, <-e.done, start), nil
}

// Notify queues a fire-and-forget message. It is published as soon as the
// bridge is Ready; ErrOutboxFull is returned when the bounded outbox has no
// room.
func (b *Bridge) Notify(q Queue, op Op, body string, claim jwtx.Claims) error {
	if err := ValidateOp(q, op); err != nil {
		return err
	}
	select {
	case b.outbox <- outbound{queue: q, req: Request{Op: op, Message: body, Claim: claim}}:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (b *Bridge) finish(q Queue, e *entry, r Reply, start time.Time) Result {
	b.obs.CallFinished(q, "reply", time.Since(start))
	res := Result{Status: r.Status, Body: r.Message}
	if res.OK() {
		res.Attach = e.attach
	}
	return res
}

func (b *Bridge) register(id string, e *entry) bool {
	b.mu.Lock()
	if _, exists := b.pending[id]; exists {
		b.mu.Unlock()
		return false
	}
	b.pending[id] = e
	n := len(b.pending)
	b.mu.Unlock()

	b.obs.PendingChanged(n)
	return true
}

// unregister removes id and reports whether the caller now owns the entry.
func (b *Bridge) unregister(id string) bool {
	b.mu.Lock()
	_, ok := b.pending[id]
	delete(b.pending, id)
	n := len(b.pending)
	b.mu.Unlock()

	if ok {
		b.obs.PendingChanged(n)
	}
	return ok
}

func (b *Bridge) publish(ctx context.Context, q Queue, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	if b.ch == nil {
		return ErrUpstreamUnavailable
	}

	msg := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	}
	if req.ID != "" {
		msg.CorrelationId = req.ID
		msg.ReplyTo = b.replyTo
	}
	return b.ch.PublishWithContext(ctx, "", string(q), false, false, msg)
}

func (b *Bridge) handleReply(d amqp.Delivery) {
	r, err := DecodeReply(d.Body)
	if err != nil {
		b.log.Warn("dropping unparseable reply", "corr_id", d.CorrelationId, "error", err)
		b.obs.ReplyDropped("malformed")
		return
	}

	b.mu.Lock()
	e, ok := b.pending[r.ReqID]
	if ok && e.op != r.Op {
		b.mu.Unlock()
		b.log.Warn("dropping reply with mismatched op",
			"corr_id", r.ReqID, "queue", string(e.queue), "want_op", int(e.op), "got_op", int(r.Op))
		b.obs.ReplyDropped("op_mismatch")
		return
	}
	if ok {
		delete(b.pending, r.ReqID)
	}
	n := len(b.pending)
	b.mu.Unlock()

	if !ok {
		b.log.Info("dropping reply for unknown correlation id", "corr_id", r.ReqID)
		b.obs.ReplyDropped("unknown_id")
		return
	}

	b.obs.PendingChanged(n)
	e.done <- r
}

func (b *Bridge) handleNotification(d amqp.Delivery) {
	n, err := DecodeNotification(d.Body)
	if err != nil {
		b.log.Warn("dropping unparseable notification", "error", err)
		return
	}
	if b.opts.OnNotification != nil {
		b.opts.OnNotification(n.UserID, n.Payload)
	}
}

func (b *Bridge) run() {
	defer close(b.doneCh)

	for {
		b.setState(StateConnecting)
		if err := b.session(); err != nil {
			b.log.Warn("broker session ended", "error", err, "retry_in", b.opts.ReconnectDelay)
		}

		timer := time.NewTimer(b.opts.ReconnectDelay)
		select {
		case <-b.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs one connection until it closes or Stop is called.
func (b *Bridge) session() error {
	conn, err := b.opts.Dial(b.opts.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	for _, q := range b.opts.Queues {
		if _, err := ch.QueueDeclare(string(q), true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", q, err)
		}
	}
	if _, err := ch.QueueDeclare(b.opts.NotificationQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", b.opts.NotificationQueue, err)
	}
	replyQ, err := ch.QueueDeclare(b.opts.ReplyQueue, false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare reply queue: %w", err)
	}

	replies, err := ch.Consume(replyQ.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume replies: %w", err)
	}
	notes, err := ch.Consume(b.opts.NotificationQueue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume notifications: %w", err)
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	b.pubMu.Lock()
	b.ch, b.replyTo = ch, replyQ.Name
	b.pubMu.Unlock()
	defer func() {
		b.setState(StateConnecting)
		b.pubMu.Lock()
		b.ch, b.replyTo = nil, ""
		b.pubMu.Unlock()
	}()

	b.setState(StateReady)
	b.log.Info("broker consuming", "reply_queue", replyQ.Name, "notification_queue", b.opts.NotificationQueue)

	for {
		select {
		case <-b.stopCh:
			return nil
		case cerr := <-connClosed:
			return fmt.Errorf("connection closed: %v", cerr)
		case cerr := <-chanClosed:
			return fmt.Errorf("channel closed: %v", cerr)
		case d, ok := <-replies:
			if !ok {
				return errors.New("reply consumer cancelled")
			}
			b.handleReply(d)
		case d, ok := <-notes:
			if !ok {
				return errors.New("notification consumer cancelled")
			}
			b.handleNotification(d)
		case o := <-b.outbox:
			if err := b.publish(context.Background(), o.queue, o.req); err != nil {
				b.requeue(o)
				return fmt.Errorf("flush outbox: %w", err)
			}
		}
	}
}

func (b *Bridge) requeue(o outbound) {
	select {
	case b.outbox <- o:
	default:
		b.log.Warn("outbox full, dropping message", "queue", string(o.queue), "op", OpName(o.queue, o.req.Op))
	}
}
