package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/stream-go/core/transport"
)

type TransportConfig struct {
	Connect Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log     *slog.Logger // Log for diagnostics (optional)
	// SubjectPrefix is prepended to every address, e.g. "strm" -> strm.<address>.
	// Empty maps addresses to subjects one to one.
	SubjectPrefix string
	// MaxConcurrentHandlers caps handlers running at once. Zero means unlimited.
	MaxConcurrentHandlers int
}

// Transport maps addresses to NATS subjects. Envelopes travel JSON encoded;
// request replies use the same frame as the in-memory transport.
type Transport struct {
	nc      *natsgo.Conn
	closeNc Release
	log     *slog.Logger
	prefix  string
	sem     chan struct{}

	mu   sync.Mutex
	subs map[*natsgo.Subscription]struct{}

	// handlers tracks running handler goroutines.
	handlers sync.WaitGroup
	closed   atomic.Bool
}

func NewTransport(cfg TransportConfig) (*Transport, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	t := &Transport{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("transport", "nats")),
		prefix:  cfg.SubjectPrefix,
		subs:    make(map[*natsgo.Subscription]struct{}),
	}
	if cfg.MaxConcurrentHandlers > 0 {
		t.sem = make(chan struct{}, cfg.MaxConcurrentHandlers)
	}
	return t, nil
}

func (t *Transport) subject(address string) string {
	if t.prefix == "" {
		return address
	}
	return t.prefix + "." + address
}

func (t *Transport) Publish(ctx context.Context, env transport.Envelope) error {
	if t.closed.Load() {
		return transport.ErrTransportClosed
	}
	if env.Address == "" {
		return transport.ErrAddressRequired
	}
	env.ReplyTo = ""
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := t.nc.Publish(t.subject(env.Address), payload); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

func (t *Transport) Request(ctx context.Context, env transport.Envelope) ([]byte, error) {
	if t.closed.Load() {
		return nil, transport.ErrTransportClosed
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	env.ReplyTo = ""
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	msg, err := t.nc.RequestWithContext(ctx, t.subject(env.Address), payload)
	switch {
	case errors.Is(err, natsgo.ErrNoResponders):
		return nil, transport.ErrNoResponders
	case errors.Is(err, natsgo.ErrConnectionClosed):
		return nil, transport.ErrTransportClosed
	case err != nil:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("nats: request: %w", err)
	}
	return transport.DecodeResponse(msg.Data)
}

// Subscribe runs h on its own goroutine per envelope, so a slow handler does
// not hold up the subscription.
func (t *Transport) Subscribe(ctx context.Context, address string, h transport.Handler) (transport.Subscription, error) {
	if t.closed.Load() {
		return nil, transport.ErrTransportClosed
	}
	if address == "" {
		return nil, transport.ErrAddressRequired
	}
	log := t.log.With(slog.String("address", address))

	sub, err := t.nc.Subscribe(t.subject(address), func(msg *natsgo.Msg) {
		var env transport.Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			log.Error("failed to decode envelope", slog.Any("error", err))
			return
		}
		env.ReplyTo = msg.Reply

		if t.closed.Load() {
			return
		}
		t.handlers.Add(1)
		go func() {
			defer t.handlers.Done()
			t.handle(ctx, log, h, env, msg)
		}()
	})
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %s: %w", address, err)
	}

	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	s := &subscription{sub: sub, t: t}
	context.AfterFunc(ctx, func() { _ = s.Unsubscribe() })
	log.Debug("subscribed")
	return s, nil
}

func (t *Transport) handle(ctx context.Context, log *slog.Logger, h transport.Handler, env transport.Envelope, msg *natsgo.Msg) {
	if t.sem != nil {
		select {
		case t.sem <- struct{}{}:
			defer func() { <-t.sem }()
		case <-ctx.Done():
			return
		}
	}

	data, err := h(ctx, env)
	if msg.Reply == "" {
		if err != nil {
			log.Error("publish handler failed", slog.String("type", env.Type), slog.Any("error", err))
		}
		return
	}
	if err := msg.Respond(transport.EncodeResponse(data, err)); err != nil {
		log.Error("failed to publish reply", slog.Any("error", err))
	}
}

// Close unsubscribes everything, waits for running handlers and releases the
// connection.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	for s := range t.subs {
		_ = s.Unsubscribe()
	}
	t.subs = map[*natsgo.Subscription]struct{}{}
	t.mu.Unlock()

	t.handlers.Wait()
	if t.nc != nil {
		_ = t.nc.Flush()
		t.closeNc()
	}
	return nil
}

type subscription struct {
	sub  *natsgo.Subscription
	t    *Transport
	once sync.Once
}

func (s *subscription) Unsubscribe() (err error) {
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
		if errors.Is(err, natsgo.ErrConnectionClosed) || errors.Is(err, natsgo.ErrBadSubscription) {
			err = nil
		}
		s.t.mu.Lock()
		delete(s.t.subs, s.sub)
		s.t.mu.Unlock()
	})
	return err
}

var _ transport.Transport = (*Transport)(nil)
