// Package feeder is the producer side of an output stream. A Feeder emits
// messages through a dispatcher, bounds the number of unresolved emissions and
// asks the producer for more work only while there is room.
package feeder

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/stream-go/core/hooks"
	"github.com/codewandler/stream-go/core/loop"
	"github.com/codewandler/stream-go/core/messaging"
)

const (
	DefaultFeedQueueMaxSize  = 1000
	DefaultAutoRetryAttempts = -1
	DefaultFeedInterval      = 10 * time.Millisecond
	// ackTimeoutFactor scales FeedInterval into the default AckTimeout.
	ackTimeoutFactor = 3000
)

// Dispatcher is the part of messaging.Dispatcher a feeder uses.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg messaging.Message, opts ...messaging.DispatchOption) (messaging.MessageID, error)
}

// Handlers are the feeder-wide reactions to terminal outcomes. Exactly one
// of them runs per emitted message. Nil fields fall back to logging.
type Handlers struct {
	Ack     func(id messaging.MessageID)
	Fail    func(id messaging.MessageID, err error)
	Timeout func(id messaging.MessageID, err error)
}

// FeedFunc is invoked whenever the feeder can accept another message.
type FeedFunc func(f *Feeder)

type Options struct {
	Name       string
	Dispatcher Dispatcher
	// Loop runs feed callbacks and outcome reactions. Pass the dispatcher's
	// loop to keep both on one goroutine. Created and owned when nil.
	Loop    *loop.Loop
	Log     *slog.Logger
	Metrics Metrics
	Hooks   []hooks.OutputHook

	FeedQueueMaxSize int
	AutoRetry        bool
	// AutoRetryAttempts bounds sends per message when AutoRetry is set.
	// Values <= 0 retry forever.
	AutoRetryAttempts int
	FeedInterval      time.Duration
	// AckTimeout defaults to FeedInterval * 3000.
	AckTimeout time.Duration

	Handlers Handlers
}

type Feeder struct {
	name       string
	log        *slog.Logger
	dispatcher Dispatcher
	metrics    Metrics
	hooks      hooks.OutputHooks
	handlers   Handlers

	maxSize     int
	retry       bool
	maxAttempts int
	interval    time.Duration
	ackTimeout  time.Duration

	loop     *loop.Loop
	ownsLoop bool

	inFlight atomic.Int64

	mu      sync.Mutex
	feed    FeedFunc
	started bool
	closed  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(opts Options) (*Feeder, error) {
	if opts.Dispatcher == nil {
		return nil, ErrDispatcherRequired
	}
	name := opts.Name
	if name == "" {
		name = "feeder"
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("feeder", name))
	m := opts.Metrics
	if m == nil {
		m = NopMetrics()
	}
	maxSize := opts.FeedQueueMaxSize
	if maxSize <= 0 {
		maxSize = DefaultFeedQueueMaxSize
	}
	attempts := opts.AutoRetryAttempts
	if attempts == 0 {
		attempts = DefaultAutoRetryAttempts
	}
	interval := opts.FeedInterval
	if interval <= 0 {
		interval = DefaultFeedInterval
	}
	ackTimeout := opts.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = interval * ackTimeoutFactor
	}

	f := &Feeder{
		name:        name,
		log:         log,
		dispatcher:  opts.Dispatcher,
		metrics:     m,
		hooks:       append(hooks.OutputHooks(nil), opts.Hooks...),
		handlers:    opts.Handlers,
		maxSize:     maxSize,
		retry:       opts.AutoRetry,
		maxAttempts: attempts,
		interval:    interval,
		ackTimeout:  ackTimeout,
		loop:        opts.Loop,
	}
	if f.loop == nil {
		f.loop = loop.New(loop.Options{Log: log})
		f.ownsLoop = true
	}
	f.ctx, f.cancel = context.WithCancel(context.Background())
	return f, nil
}

func (f *Feeder) Name() string                { return f.name }
func (f *Feeder) FeedQueueMaxSize() int       { return f.maxSize }
func (f *Feeder) AckTimeout() time.Duration   { return f.ackTimeout }
func (f *Feeder) FeedInterval() time.Duration { return f.interval }

// InFlight returns the number of emitted messages without terminal outcome.
func (f *Feeder) InFlight() int { return int(f.inFlight.Load()) }

// Full reports whether the feed queue bound is reached.
func (f *Feeder) Full() bool { return f.InFlight() >= f.maxSize }

// OnFeed sets the callback asking the producer for the next message.
func (f *Feeder) OnFeed(fn FeedFunc) *Feeder {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feed = fn
	return f
}

// Start begins invoking the feed callback every FeedInterval while the feeder
// is not full. It stops when ctx is done or the feeder is closed.
func (f *Feeder) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed.Load() {
		return ErrFeederClosed
	}
	if f.started {
		return ErrAlreadyStarted
	}
	f.started = true

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		f.loop.Run(f.doFeed)
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.ctx.Done():
				return
			case <-ticker.C:
				f.loop.Run(f.doFeed)
			}
		}
	}()
	return nil
}

// doFeed runs in the loop.
func (f *Feeder) doFeed() {
	if f.closed.Load() || f.Full() {
		return
	}
	f.mu.Lock()
	fn := f.feed
	f.mu.Unlock()
	if fn != nil {
		fn(f)
	}
}

// Emit sends data as the payload of a new message. h, when set, receives the
// outcome after the feeder-wide handler ran.
func (f *Feeder) Emit(data []byte, h messaging.ResultHandler) (messaging.MessageID, error) {
	return f.EmitMessage(messaging.Message{Data: data}, h)
}

// EmitJSON encodes v and emits it on f.
func EmitJSON[T any](f *Feeder, v T, h messaging.ResultHandler) (messaging.MessageID, error) {
	msg, err := messaging.NewJSONMessage(f.name, v)
	if err != nil {
		return "", err
	}
	return f.EmitMessage(msg, h)
}

func (f *Feeder) EmitMessage(msg messaging.Message, h messaging.ResultHandler) (messaging.MessageID, error) {
	if f.closed.Load() {
		return "", ErrFeederClosed
	}
	if !f.reserve() {
		f.metrics.Rejected(f.name)
		return "", ErrFeedQueueFull
	}
	if msg.ID == "" {
		msg.ID = messaging.NewMessageID()
	}
	if msg.Stream == "" {
		msg.Stream = f.name
	}

	opts := []messaging.DispatchOption{
		messaging.WithTimeout(f.ackTimeout),
		messaging.WithResultHandler(f.resultHandler(h)),
	}
	if f.retry {
		opts = append(opts, messaging.WithRetry(f.maxAttempts))
	}

	f.hooks.Emit(msg.ID)
	id, err := f.dispatcher.Dispatch(f.ctx, msg, opts...)
	if err != nil {
		f.release()
		f.hooks.Failed(msg.ID)
		return "", err
	}
	f.metrics.Emitted(f.name)
	return id, nil
}

func (f *Feeder) reserve() bool {
	for {
		n := f.inFlight.Load()
		if n >= int64(f.maxSize) {
			return false
		}
		if f.inFlight.CompareAndSwap(n, n+1) {
			f.metrics.InFlight(f.name, int(n+1))
			return true
		}
	}
}

func (f *Feeder) release() int {
	n := f.inFlight.Add(-1)
	f.metrics.InFlight(f.name, int(n))
	return int(n)
}

func (f *Feeder) resultHandler(h messaging.ResultHandler) messaging.ResultHandler {
	return func(r messaging.Result) {
		if !f.loop.Run(func() { f.react(r, h) }) {
			// loop closed; still free the slot so InFlight stays accurate
			f.release()
		}
	}
}

// react runs in the loop.
func (f *Feeder) react(r messaging.Result, h messaging.ResultHandler) {
	n := f.release()

	switch {
	case r.Err == nil:
		f.metrics.Resolved(f.name, messaging.OutcomeAck)
		f.hooks.Acked(r.ID)
		f.onAck(r.ID)
	case errors.Is(r.Err, messaging.ErrDispatchTimeout):
		f.metrics.Resolved(f.name, messaging.OutcomeTimeout)
		f.hooks.TimedOut(r.ID)
		f.onTimeout(r.ID, r.Err)
	default:
		f.metrics.Resolved(f.name, messaging.OutcomeFail)
		f.hooks.Failed(r.ID)
		f.onFail(r.ID, r.Err)
	}
	if h != nil {
		h(r)
	}

	if n == f.maxSize-1 {
		f.mu.Lock()
		started := f.started
		f.mu.Unlock()
		if started {
			f.doFeed()
		}
	}
}

func (f *Feeder) onAck(id messaging.MessageID) {
	if f.handlers.Ack != nil {
		f.handlers.Ack(id)
		return
	}
	f.log.Debug("message acked", slog.String("id", string(id)))
}

func (f *Feeder) onFail(id messaging.MessageID, err error) {
	if f.handlers.Fail != nil {
		f.handlers.Fail(id, err)
		return
	}
	f.log.Warn("message failed", slog.String("id", string(id)), slog.Any("error", err))
}

func (f *Feeder) onTimeout(id messaging.MessageID, err error) {
	if f.handlers.Timeout != nil {
		f.handlers.Timeout(id, err)
		return
	}
	f.log.Warn("message timed out", slog.String("id", string(id)), slog.Any("error", err))
}

// Close stops feeding. Messages in flight still resolve through the
// dispatcher; their reactions are dropped once an owned loop has stopped.
// Close does not wait for the loop, so reactions may call it.
func (f *Feeder) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.cancel()
	f.wg.Wait()
	if f.ownsLoop {
		f.loop.Close()
	}
	return nil
}
