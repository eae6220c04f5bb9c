package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/core/transport"
)

type recordingConn struct {
	addr string

	mu   sync.Mutex
	sent []Message
}

func newRecordingConn(addr string) *recordingConn { return &recordingConn{addr: addr} }

func (c *recordingConn) Address() string { return c.addr }

func (c *recordingConn) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingConn) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

func newTestDispatcher(t *testing.T, opts DispatcherOptions) *Dispatcher {
	t.Helper()
	if opts.Transport == nil {
		opts.Transport = transport.NewInMemoryTransport()
	}
	d, err := NewDispatcher(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func waitResult(t *testing.T, ch <-chan Result, timeout time.Duration) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(timeout):
		t.Fatal("no result")
		return Result{}
	}
}

func resultChan() (chan Result, DispatchOption) {
	ch := make(chan Result, 16)
	return ch, WithResultHandler(func(r Result) { ch <- r })
}
