package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// responseFrame is the reply encoding shared by all transports.
type responseFrame struct {
	Data []byte `json:"data,omitempty"`
	Err  string `json:"err,omitempty"`
}

// EncodeResponse encodes a handler result as a reply frame.
func EncodeResponse(data []byte, err error) []byte {
	rf := responseFrame{Data: data}
	if err != nil {
		rf.Err = err.Error()
		rf.Data = nil
	}
	b, _ := json.Marshal(rf)
	return b
}

// DecodeResponse is the inverse of EncodeResponse.
func DecodeResponse(b []byte) ([]byte, error) {
	var rf responseFrame
	if err := json.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rf.Err != "" {
		return nil, errors.New(rf.Err)
	}
	return rf.Data, nil
}

type MemoryTransportOpts struct {
	Log *slog.Logger
	// HandlerTimeout bounds a single handler invocation. Zero means no bound.
	HandlerTimeout time.Duration
	// MaxConcurrentHandlers caps concurrently running handlers. Zero means
	// unlimited.
	MaxConcurrentHandlers int
}

// MemoryTransport delivers envelopes between subscribers in the same process.
type MemoryTransport struct {
	mu  sync.RWMutex
	log *slog.Logger

	closed bool

	// address -> subID -> handler
	subs map[string]map[string]Handler

	// replyTo -> chan response bytes
	inboxes map[string]chan []byte

	handlerTimeout time.Duration
	sem            chan struct{}
	wg             sync.WaitGroup
	done           chan struct{}

	seq uint64
}

func NewInMemoryTransport(opts ...MemoryTransportOpts) *MemoryTransport {
	var o MemoryTransportOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	log := o.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	var sem chan struct{}
	if o.MaxConcurrentHandlers > 0 {
		sem = make(chan struct{}, o.MaxConcurrentHandlers)
	}
	return &MemoryTransport{
		log:            log.With(slog.String("transport", "mem")),
		subs:           make(map[string]map[string]Handler),
		inboxes:        make(map[string]chan []byte),
		handlerTimeout: o.HandlerTimeout,
		sem:            sem,
		done:           make(chan struct{}),
	}
}

func (t *MemoryTransport) WithLog(log *slog.Logger) *MemoryTransport {
	t.log = log.With(slog.String("transport", "mem"))
	return t
}

// handlersFor copies the handlers so user code is never invoked under the
// lock. The returned handlers are already accounted for in t.wg and must each
// be passed to spawn.
func (t *MemoryTransport) handlersFor(address string) ([]Handler, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	subs := t.subs[address]
	handlers := make([]Handler, 0, len(subs))
	for _, h := range subs {
		handlers = append(handlers, h)
	}
	t.wg.Add(len(handlers))
	return handlers, nil
}

func (t *MemoryTransport) Publish(ctx context.Context, env Envelope) error {
	if env.Address == "" {
		return ErrAddressRequired
	}
	handlers, err := t.handlersFor(env.Address)
	if err != nil {
		return err
	}
	if len(handlers) == 0 {
		t.log.Debug("dropping envelope without subscribers", slog.String("address", env.Address), slog.String("type", env.Type))
		return nil
	}
	env.ReplyTo = ""
	ctx = context.WithoutCancel(ctx)
	for _, h := range handlers {
		t.spawn(ctx, h, env)
	}
	return nil
}

func (t *MemoryTransport) Request(ctx context.Context, env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	handlers, err := t.handlersFor(env.Address)
	if err != nil {
		return nil, err
	}
	if len(handlers) == 0 {
		return nil, ErrNoResponders
	}

	replyTo := t.newInboxID()
	replyCh, err := t.registerInbox(replyTo)
	if err != nil {
		for range handlers {
			t.wg.Done()
		}
		return nil, err
	}
	defer t.unregisterInbox(replyTo)

	env.ReplyTo = replyTo
	for _, h := range handlers {
		t.spawn(ctx, h, env)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, ErrTransportClosed
	case b := <-replyCh:
		return DecodeResponse(b)
	}
}

func (t *MemoryTransport) Subscribe(ctx context.Context, address string, h Handler) (Subscription, error) {
	if address == "" {
		return nil, ErrAddressRequired
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.subs[address] == nil {
		t.subs[address] = make(map[string]Handler)
	}

	subID := t.newSubID(address)
	t.subs[address][subID] = h

	s := &subscription{
		t:       t,
		log:     t.log.With(slog.String("subscription", subID)),
		address: address,
		subID:   subID,
	}
	s.log.Debug("subscribed", slog.String("address", address))

	context.AfterFunc(ctx, func() {
		_ = s.Unsubscribe()
	})

	return s, nil
}

// Close stops accepting envelopes and waits for running handlers.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	for k := range t.inboxes {
		delete(t.inboxes, k)
	}
	for address := range t.subs {
		delete(t.subs, address)
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.log.Debug("closed")
	return nil
}

/* ---------------------- internals ---------------------- */

type subscription struct {
	t       *MemoryTransport
	log     *slog.Logger
	address string
	subID   string
	once    sync.Once
}

func (s *subscription) Unsubscribe() error {
	s.once.Do(func() {
		s.t.mu.Lock()
		defer s.t.mu.Unlock()
		if subs := s.t.subs[s.address]; subs != nil {
			delete(subs, s.subID)
			if len(subs) == 0 {
				delete(s.t.subs, s.address)
			}
		}
		s.log.Debug("unsubscribed")
	})
	return nil
}

func (t *MemoryTransport) spawn(ctx context.Context, h Handler, env Envelope) {
	go func() {
		defer t.wg.Done()
		if t.sem != nil {
			select {
			case t.sem <- struct{}{}:
				defer func() { <-t.sem }()
			case <-ctx.Done():
				return
			}
		}
		t.invokeHandler(ctx, h, env)
	}()
}

func (t *MemoryTransport) invokeHandler(ctx context.Context, h Handler, env Envelope) {
	var (
		resp []byte
		err  error
	)
	if t.handlerTimeout > 0 {
		hctx, cancel := context.WithTimeout(ctx, t.handlerTimeout)
		resp, err = h(hctx, env)
		if errors.Is(hctx.Err(), context.DeadlineExceeded) {
			err = ErrHandlerTimeout
		}
		cancel()
	} else {
		resp, err = h(ctx, env)
	}

	if env.ReplyTo == "" {
		if err != nil {
			t.log.Error("publish handler failed", slog.String("address", env.Address), slog.String("type", env.Type), slog.Any("error", err))
		}
		return
	}

	b := EncodeResponse(resp, err)

	t.mu.RLock()
	ch := t.inboxes[env.ReplyTo]
	t.mu.RUnlock()
	if ch == nil {
		t.log.Debug("dropping response", slog.String("replyTo", env.ReplyTo))
		return
	}

	// first reply wins; later ones are dropped
	select {
	case ch <- b:
	default:
	}
}

func (t *MemoryTransport) newInboxID() string {
	n := atomic.AddUint64(&t.seq, 1)
	return fmt.Sprintf("inbox.%d", n)
}

func (t *MemoryTransport) newSubID(address string) string {
	n := atomic.AddUint64(&t.seq, 1)
	return fmt.Sprintf("sub.%s.%d", address, n)
}

func (t *MemoryTransport) registerInbox(replyTo string) (<-chan []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}
	ch := make(chan []byte, 1)
	t.inboxes[replyTo] = ch
	return ch, nil
}

func (t *MemoryTransport) unregisterInbox(replyTo string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.inboxes, replyTo)
}

var _ Transport = (*MemoryTransport)(nil)
