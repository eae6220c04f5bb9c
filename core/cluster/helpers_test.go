package cluster

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/core/topology"
	"github.com/codewandler/stream-go/core/transport"
)

var errBoom = errors.New("boom")

// testRegistry registers "noop" (always starts) and "fail" (never starts).
func testRegistry() *Registry {
	return NewRegistry().
		Register("noop", func(context.Context, Instance) (Component, error) {
			return ComponentFunc(func(context.Context) error { return nil }), nil
		}).
		Register("fail", func(context.Context, Instance) (Component, error) {
			return nil, errBoom
		})
}

func testNetwork(name string) *topology.Network {
	return &topology.Network{
		Name: name,
		Components: []topology.Component{
			{Name: "source", Main: "noop"},
			{Name: "sink", Main: "noop", Instances: 2},
		},
		Connections: []topology.Connection{
			{Source: "source", Stream: "out", Target: "sink", Port: "in"},
		},
	}
}

func newMemTransport(t *testing.T) *transport.MemoryTransport {
	t.Helper()
	tr := transport.NewInMemoryTransport()
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func startCluster(t *testing.T, c Cluster) {
	t.Helper()
	require.NoError(t, c.Start(t.Context()))
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
}

// countingTransport counts requests per address.
type countingTransport struct {
	transport.Transport

	mu     sync.Mutex
	counts map[string]int
	// fail, when set, replaces every request result.
	fail error
	// hold, when set, parks every request until it is closed. entered
	// receives one value per parked request.
	hold    chan struct{}
	entered chan struct{}
}

func countRequests(t transport.Transport) *countingTransport {
	return &countingTransport{Transport: t, counts: map[string]int{}}
}

func (c *countingTransport) Request(ctx context.Context, env transport.Envelope) ([]byte, error) {
	c.mu.Lock()
	c.counts[env.Address]++
	fail, hold := c.fail, c.hold
	c.mu.Unlock()
	if hold != nil {
		c.entered <- struct{}{}
		<-hold
	}
	if fail != nil {
		return nil, fail
	}
	return c.Transport.Request(ctx, env)
}

func (c *countingTransport) Count(address string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[address]
}

// gate blocks a component factory until released.
type gate struct {
	entered atomic.Int32
	release chan struct{}
}

func newGate() *gate { return &gate{release: make(chan struct{})} }

func (g *gate) factory(ctx context.Context, _ Instance) (Component, error) {
	g.entered.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return ComponentFunc(func(context.Context) error { return nil }), nil
}
