package messaging

import (
	"context"
	"sync"

	"github.com/codewandler/stream-go/core/ds"
	"github.com/codewandler/stream-go/core/transport"
)

// Connection is one downstream endpoint of an output stream.
type Connection interface {
	Address() string
	Send(ctx context.Context, msg Message) error
}

// TransportConnection publishes messages to an address on a transport.
type TransportConnection struct {
	t       transport.Transport
	address string
}

func NewConnection(t transport.Transport, address string) *TransportConnection {
	return &TransportConnection{t: t, address: address}
}

func (c *TransportConnection) Address() string { return c.address }

func (c *TransportConnection) Send(ctx context.Context, msg Message) error {
	return c.t.Publish(ctx, msg.Envelope(c.address))
}

var _ Connection = (*TransportConnection)(nil)

// ConnectionPool holds the live connections of one output stream, keyed by
// address and kept in insertion order. It is safe for concurrent use; the
// pool owns its connections and dispatchers only see snapshots.
type ConnectionPool struct {
	name string

	mu    sync.RWMutex
	order *ds.StringSet
	conns map[string]Connection
}

func NewConnectionPool(name string, conns ...Connection) *ConnectionPool {
	p := &ConnectionPool{
		name:  name,
		order: ds.NewStringSet(),
		conns: make(map[string]Connection, len(conns)),
	}
	for _, c := range conns {
		p.Add(c)
	}
	return p
}

func (p *ConnectionPool) Name() string { return p.name }

// Add adds c unless a connection with the same address exists.
func (p *ConnectionPool) Add(c Connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.order.Add(c.Address()) {
		return false
	}
	p.conns[c.Address()] = c
	return true
}

func (p *ConnectionPool) Remove(address string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.order.Remove(address) == 0 {
		return false
	}
	delete(p.conns, address)
	return true
}

func (p *ConnectionPool) Get(address string) (Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.conns[address]
	return c, ok
}

func (p *ConnectionPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.order.Len()
}

// Snapshot returns the current members in insertion order.
func (p *ConnectionPool) Snapshot() []Connection {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Connection, 0, p.order.Len())
	for _, addr := range p.order.Values() {
		out = append(out, p.conns[addr])
	}
	return out
}

// Sync replaces the membership with conns, keeping existing members that are
// still present so their position in the rotation is stable.
func (p *ConnectionPool) Sync(conns ...Connection) (added, removed int) {
	target := ds.NewStringSet()
	byAddr := make(map[string]Connection, len(conns))
	for _, c := range conns {
		target.Add(c.Address())
		byAddr[c.Address()] = c
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	add, remove := p.order.Diff(target)
	p.order.Remove(remove...)
	for _, addr := range remove {
		delete(p.conns, addr)
	}
	for _, addr := range add {
		p.order.Add(addr)
		p.conns[addr] = byAddr[addr]
	}
	return len(add), len(remove)
}
