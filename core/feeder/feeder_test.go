package feeder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/core/hooks"
	"github.com/codewandler/stream-go/core/messaging"
	"github.com/codewandler/stream-go/core/transport"
)

// fakeDispatcher keeps result handlers so tests decide outcomes.
type fakeDispatcher struct {
	mu       sync.Mutex
	pending  map[messaging.MessageID]messaging.ResultHandler
	settings []messaging.DispatchSettings
	err      error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{pending: map[messaging.MessageID]messaging.ResultHandler{}}
}

func (d *fakeDispatcher) Dispatch(_ context.Context, msg messaging.Message, opts ...messaging.DispatchOption) (messaging.MessageID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	s := messaging.ApplyDispatchOptions(opts...)
	d.pending[msg.ID] = s.Handler
	d.settings = append(d.settings, s)
	return msg.ID, nil
}

func (d *fakeDispatcher) resolve(id messaging.MessageID, err error) {
	d.mu.Lock()
	h := d.pending[id]
	delete(d.pending, id)
	d.mu.Unlock()
	h(messaging.Result{ID: id, Err: err, Attempts: 1})
}

func (d *fakeDispatcher) dispatched() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.settings)
}

func newFeeder(t *testing.T, opts Options) *Feeder {
	t.Helper()
	f, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFeeder_Defaults(t *testing.T) {
	f := newFeeder(t, Options{Dispatcher: newFakeDispatcher()})
	require.Equal(t, 1000, f.FeedQueueMaxSize())
	require.Equal(t, 10*time.Millisecond, f.FeedInterval())
	require.Equal(t, 30*time.Second, f.AckTimeout())

	_, err := New(Options{})
	require.ErrorIs(t, err, ErrDispatcherRequired)
}

func TestFeeder_EmitPassesPolicy(t *testing.T) {
	d := newFakeDispatcher()
	f := newFeeder(t, Options{Dispatcher: d, AutoRetry: true, AutoRetryAttempts: 3, AckTimeout: time.Second})

	id, err := EmitJSON(f, map[string]string{"k": "v"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Equal(t, 1, f.InFlight())

	s := d.settings[0]
	require.Equal(t, time.Second, s.Timeout)
	require.True(t, s.Retry)
	require.Equal(t, 3, s.MaxAttempts)
	require.NotNil(t, s.Handler)
}

func TestFeeder_NeverExceedsBound(t *testing.T) {
	d := newFakeDispatcher()
	f := newFeeder(t, Options{Dispatcher: d, FeedQueueMaxSize: 2})

	id1, err := f.Emit([]byte("1"), nil)
	require.NoError(t, err)
	_, err = f.Emit([]byte("2"), nil)
	require.NoError(t, err)
	require.True(t, f.Full())

	_, err = f.Emit([]byte("3"), nil)
	require.ErrorIs(t, err, ErrFeedQueueFull)
	require.Equal(t, 2, f.InFlight())
	require.Equal(t, 2, d.dispatched())

	d.resolve(id1, nil)
	require.Eventually(t, func() bool { return f.InFlight() == 1 }, time.Second, time.Millisecond)
	_, err = f.Emit([]byte("3"), nil)
	require.NoError(t, err)
}

func TestFeeder_ConcurrentEmitsRespectBound(t *testing.T) {
	d := newFakeDispatcher()
	f := newFeeder(t, Options{Dispatcher: d, FeedQueueMaxSize: 10})

	var ok atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.Emit(nil, nil); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(10), ok.Load())
	require.Equal(t, 10, f.InFlight())
}

func TestFeeder_FeedStopsWhileFull(t *testing.T) {
	d := newFakeDispatcher()
	f := newFeeder(t, Options{Dispatcher: d, FeedQueueMaxSize: 2, FeedInterval: 5 * time.Millisecond})

	var feeds atomic.Int32
	ids := make(chan messaging.MessageID, 3)
	emitted := 0
	f.OnFeed(func(f *Feeder) {
		feeds.Add(1)
		if emitted == 3 {
			return
		}
		id, err := f.Emit([]byte("x"), nil)
		if err == nil {
			emitted++
			ids <- id
		}
	})
	require.NoError(t, f.Start(t.Context()))

	require.Eventually(t, func() bool { return f.InFlight() == 2 }, time.Second, time.Millisecond)
	settled := feeds.Load()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, settled, feeds.Load(), "feed callback must not run while full")
	require.Equal(t, 2, d.dispatched())

	d.resolve(<-ids, nil)
	require.Eventually(t, func() bool { return d.dispatched() == 3 }, time.Second, time.Millisecond)
	require.Equal(t, 2, f.InFlight())
}

func TestFeeder_OutcomeRouting(t *testing.T) {
	d := newFakeDispatcher()

	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}
	f := newFeeder(t, Options{
		Dispatcher: d,
		Handlers: Handlers{
			Ack:     func(messaging.MessageID) { record("ack") },
			Fail:    func(messaging.MessageID, error) { record("fail") },
			Timeout: func(messaging.MessageID, error) { record("timeout") },
		},
	})

	perEmit := func(r messaging.Result) { record("emit-handler") }
	a, err := f.Emit(nil, perEmit)
	require.NoError(t, err)
	b, err := f.Emit(nil, perEmit)
	require.NoError(t, err)
	c, err := f.Emit(nil, perEmit)
	require.NoError(t, err)

	d.resolve(a, nil)
	d.resolve(b, &messaging.FailureError{ID: b, Reason: "no"})
	d.resolve(c, &messaging.TimeoutError{ID: c, Attempts: 1})

	require.Eventually(t, func() bool { return f.InFlight() == 0 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 6
	}, time.Second, time.Millisecond)
	require.Equal(t, []string{"ack", "emit-handler", "fail", "emit-handler", "timeout", "emit-handler"}, events)
}

type outputRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *outputRecorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *outputRecorder) Emit(messaging.MessageID)     { r.add("emit") }
func (r *outputRecorder) Acked(messaging.MessageID)    { r.add("acked") }
func (r *outputRecorder) Failed(messaging.MessageID)   { r.add("failed") }
func (r *outputRecorder) TimedOut(messaging.MessageID) { r.add("timeout") }

func (r *outputRecorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestFeeder_DispatchErrorReleasesSlot(t *testing.T) {
	d := newFakeDispatcher()
	d.err = messaging.ErrNotInitialized
	rec := &outputRecorder{}
	f := newFeeder(t, Options{Dispatcher: d, FeedQueueMaxSize: 1, Hooks: []hooks.OutputHook{rec}})

	_, err := f.Emit(nil, nil)
	require.ErrorIs(t, err, messaging.ErrNotInitialized)
	require.Equal(t, 0, f.InFlight())
	require.Equal(t, []string{"emit", "failed"}, rec.Events())
}

func TestFeeder_Closed(t *testing.T) {
	f := newFeeder(t, Options{Dispatcher: newFakeDispatcher()})
	require.NoError(t, f.Close())
	_, err := f.Emit(nil, nil)
	require.ErrorIs(t, err, ErrFeederClosed)
	require.ErrorIs(t, f.Start(t.Context()), ErrFeederClosed)
}

type sink struct {
	addr  string
	sends atomic.Int32
}

func (s *sink) Address() string { return s.addr }
func (s *sink) Send(context.Context, messaging.Message) error {
	s.sends.Add(1)
	return nil
}

func TestFeeder_AutoRetryWithDispatcher(t *testing.T) {
	tr := transport.NewInMemoryTransport()
	defer tr.Close()

	d, err := messaging.NewDispatcher(messaging.DispatcherOptions{Transport: tr, Name: "out"})
	require.NoError(t, err)
	defer d.Close()
	s := &sink{addr: "never-acks"}
	d.Init(messaging.NewConnectionPool("out", s))

	timeouts := make(chan error, 1)
	rec := &outputRecorder{}
	f := newFeeder(t, Options{
		Dispatcher:        d,
		AutoRetry:         true,
		AutoRetryAttempts: 2,
		AckTimeout:        30 * time.Millisecond,
		Hooks:             []hooks.OutputHook{rec},
		Handlers: Handlers{
			Timeout: func(_ messaging.MessageID, err error) { timeouts <- err },
		},
	})

	_, err = f.Emit([]byte("x"), nil)
	require.NoError(t, err)

	select {
	case err := <-timeouts:
		var te *messaging.TimeoutError
		require.True(t, errors.As(err, &te))
		require.True(t, te.Exhausted)
	case <-time.After(time.Second):
		t.Fatal("no timeout")
	}
	require.Equal(t, int32(2), s.sends.Load())
	require.Eventually(t, func() bool { return f.InFlight() == 0 }, time.Second, time.Millisecond)
	require.Equal(t, []string{"emit", "timeout"}, rec.Events())
}
