package messaging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/stream-go/core/loop"
	"github.com/codewandler/stream-go/core/transport"
)

type DispatcherOptions struct {
	// Name identifies the output stream in logs and metrics.
	Name      string
	Transport transport.Transport
	Router    Router
	// Loop is the execution context result handlers run in. When nil the
	// dispatcher creates and owns one.
	Loop    *loop.Loop
	Log     *slog.Logger
	Metrics DispatchMetrics
	// AckAddress receives acks and fails for tracked messages. Defaults to
	// "<name>.ack.<random id>".
	AckAddress string
}

// DispatchSettings is the resolved form of a list of DispatchOption.
type DispatchSettings struct {
	Timeout     time.Duration
	Retry       bool
	MaxAttempts int
	Handler     ResultHandler
}

type DispatchOption func(*DispatchSettings)

func ApplyDispatchOptions(opts ...DispatchOption) DispatchSettings {
	var s DispatchSettings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithTimeout sets the ack deadline of a tracked message. Without a timeout a
// tracked message resolves only on explicit ack or fail.
func WithTimeout(d time.Duration) DispatchOption {
	return func(s *DispatchSettings) { s.Timeout = d }
}

// WithRetry resends timed out messages until maxAttempts sends were made.
// maxAttempts <= 0 retries forever.
func WithRetry(maxAttempts int) DispatchOption {
	return func(s *DispatchSettings) {
		s.Retry = true
		s.MaxAttempts = maxAttempts
	}
}

// WithResultHandler tracks the message and reports its outcome to h. h runs
// inside the dispatcher's loop and must not block.
func WithResultHandler(h ResultHandler) DispatchOption {
	return func(s *DispatchSettings) { s.Handler = h }
}

// Dispatcher sends messages of one output stream to the connections of a pool
// and tracks their acknowledgement.
type Dispatcher struct {
	name       string
	log        *slog.Logger
	transport  transport.Transport
	router     Router
	metrics    DispatchMetrics
	ackAddress string

	loop     *loop.Loop
	ownsLoop bool
	tracker  *Tracker

	pool atomic.Pointer[ConnectionPool]

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	sub    transport.Subscription
	closed atomic.Bool
}

func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Transport == nil {
		return nil, ErrTransportRequired
	}
	name := opts.Name
	if name == "" {
		name = "dispatcher"
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("dispatcher", name))
	router := opts.Router
	if router == nil {
		router = RoundRobin()
	}
	m := opts.Metrics
	if m == nil {
		m = NopDispatchMetrics()
	}
	ackAddress := opts.AckAddress
	if ackAddress == "" {
		ackAddress = name + ".ack." + gonanoid.Must()
	}

	d := &Dispatcher{
		name:       name,
		log:        log,
		transport:  opts.Transport,
		router:     router,
		metrics:    m,
		ackAddress: ackAddress,
		loop:       opts.Loop,
	}
	if d.loop == nil {
		d.loop = loop.New(loop.Options{Log: log})
		d.ownsLoop = true
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.tracker = NewTracker(TrackerOptions{
		Name:    name,
		Loop:    d.loop,
		Log:     log,
		Metrics: m,
		Resend:  d.resend,
	})
	return d, nil
}

func (d *Dispatcher) Name() string       { return d.name }
func (d *Dispatcher) AckAddress() string { return d.ackAddress }
func (d *Dispatcher) Tracker() *Tracker  { return d.tracker }

// Init binds the dispatcher to pool. It may be called again to swap pools;
// messages already sent keep their pending acks.
func (d *Dispatcher) Init(pool *ConnectionPool) {
	d.pool.Store(pool)
}

// Open subscribes the ack address. Tracked messages can only resolve through
// ack or fail once the dispatcher is open.
func (d *Dispatcher) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed.Load() {
		return ErrDispatcherClosed
	}
	if d.sub != nil {
		return nil
	}
	sub, err := d.transport.Subscribe(ctx, d.ackAddress, d.handleOutcome)
	if err != nil {
		return err
	}
	d.sub = sub
	return nil
}

func (d *Dispatcher) handleOutcome(_ context.Context, env transport.Envelope) ([]byte, error) {
	id := MessageID(env.Header(headerID))
	if id == "" {
		return nil, nil
	}
	switch env.Type {
	case TypeAck:
		d.tracker.ResolveAck(id, env.Header(headerFrom))
	case TypeFail:
		d.tracker.ResolveFail(id, env.Header(headerReason))
	default:
		d.log.Warn("unexpected envelope on ack address", slog.String("type", env.Type))
	}
	return nil, nil
}

// Close unsubscribes the ack address and resolves every pending message with
// ErrDispatcherClosed. The resolution runs in the loop; Close does not wait
// for it and may be called from a result handler.
func (d *Dispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.mu.Lock()
	sub := d.sub
	d.sub = nil
	d.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Unsubscribe()
	}
	d.loop.Finally(func() { d.tracker.resolveAll(ErrDispatcherClosed) })
	d.cancel()
	if d.ownsLoop {
		d.loop.Close()
	}
	return err
}

// Dispatch routes msg to the pool. Without a result handler the message is
// fire-and-forget. The returned id correlates the message with its outcome;
// msg.ID is used when set.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message, opts ...DispatchOption) (MessageID, error) {
	if d.closed.Load() {
		return "", ErrDispatcherClosed
	}
	pool := d.pool.Load()
	if pool == nil {
		return "", ErrNotInitialized
	}

	cfg := ApplyDispatchOptions(opts...)
	if msg.ID == "" {
		msg.ID = NewMessageID()
	}
	if msg.Stream == "" {
		msg.Stream = d.name
	}

	if cfg.Handler == nil {
		if pool.Len() == 0 {
			return "", ErrNoConnections
		}
		msg.AckTo = ""
		if !d.loop.Run(func() { d.send(ctx, msg, pool) }) {
			return "", ErrDispatcherClosed
		}
		return msg.ID, nil
	}

	msg.AckTo = d.ackAddress
	p := NewPendingAck(msg.ID, cfg.Timeout, cfg.Retry, cfg.MaxAttempts, cfg.Handler)
	p.Stream = msg.Stream
	p.msg = msg
	if !d.loop.Run(func() { d.dispatchTracked(ctx, p, pool) }) {
		return "", ErrDispatcherClosed
	}
	return msg.ID, nil
}

func (d *Dispatcher) dispatchTracked(ctx context.Context, p *PendingAck, pool *ConnectionPool) {
	if d.closed.Load() {
		if p.Handler != nil {
			p.Handler(Result{ID: p.ID, Stream: p.Stream, Err: ErrDispatcherClosed})
		}
		return
	}
	if !d.tracker.register(p, nil) {
		return
	}
	p.setTargets(d.send(ctx, p.msg, pool))
	if len(p.awaiting) == 0 && p.Timeout <= 0 {
		d.tracker.resolve(p, OutcomeFail, ErrNoConnections)
	}
}

// resend runs inside the loop when a retryable message times out. It picks
// from the current pool, not the one the message was first sent with.
func (d *Dispatcher) resend(p *PendingAck) []string {
	pool := d.pool.Load()
	if pool == nil {
		return nil
	}
	return d.send(d.ctx, p.msg, pool)
}

// send returns the addresses the message was handed to.
func (d *Dispatcher) send(ctx context.Context, msg Message, pool *ConnectionPool) []string {
	targets := d.router.Select(msg, pool.Snapshot())
	if len(targets) == 0 {
		d.log.Debug("no connection for message", slog.String("id", string(msg.ID)))
		d.metrics.SendFailed(msg.Stream)
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	sent := make([]string, 0, len(targets))
	for _, c := range targets {
		if err := c.Send(ctx, msg); err != nil {
			d.log.Warn("send failed",
				slog.String("id", string(msg.ID)),
				slog.String("address", c.Address()),
				slog.Any("error", err),
			)
			d.metrics.SendFailed(msg.Stream)
			continue
		}
		d.metrics.MessageSent(msg.Stream)
		sent = append(sent, c.Address())
	}
	return sent
}
