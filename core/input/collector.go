// Package input receives messages addressed to a component instance and
// reports their outcome back to the sender.
package input

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/codewandler/stream-go/core/cache"
	"github.com/codewandler/stream-go/core/hooks"
	"github.com/codewandler/stream-go/core/transport"
)

type CollectorOptions struct {
	// Address of the owning instance; ports listen below it.
	Address   string
	Transport transport.Transport
	Log       *slog.Logger
	Hooks     []hooks.InputHook
	// DedupeWindow is the number of acknowledged message ids remembered.
	// A tracked message arriving again with a remembered id is acknowledged
	// without reaching the consumer. Zero disables it.
	DedupeWindow int
	// DedupeTTL bounds how long an id is remembered. Zero keeps it until
	// evicted.
	DedupeTTL time.Duration
}

// Collector owns the input ports of one instance.
type Collector struct {
	address   string
	transport transport.Transport
	log       *slog.Logger
	hooks     hooks.InputHooks
	acked     *cache.IDs

	// ctx is used for acks and fails so they outlive the receiving handler.
	ctx context.Context

	mu       sync.Mutex
	ports    map[string]*Port
	openCtx  context.Context
	isOpen   bool
	isClosed bool
}

func NewCollector(opts CollectorOptions) (*Collector, error) {
	if opts.Address == "" {
		return nil, ErrAddressRequired
	}
	if opts.Transport == nil {
		return nil, ErrTransportMissing
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		address:   opts.Address,
		transport: opts.Transport,
		log:       log.With(slog.String("instance", opts.Address)),
		hooks:     append(hooks.InputHooks(nil), opts.Hooks...),
		acked:     cache.NewIDs(opts.DedupeWindow, opts.DedupeTTL),
		ctx:       context.Background(),
		ports:     make(map[string]*Port),
	}, nil
}

func (c *Collector) Address() string { return c.address }

// AddHook registers h. Deliveries already in progress keep the hooks they
// started with.
func (c *Collector) AddHook(h hooks.InputHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(hooks.InputHooks, 0, len(c.hooks)+1)
	c.hooks = append(append(next, c.hooks...), h)
}

// inputHooks returns the current hook list. The slice is never written after
// it is published.
func (c *Collector) inputHooks() hooks.InputHooks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hooks
}

func (c *Collector) rememberAck(d *Delivery) {
	if !d.Message.Tracked() {
		return
	}
	c.acked.Remember(string(d.Message.ID))
}

func (c *Collector) alreadyAcked(d *Delivery) bool {
	if !d.Message.Tracked() {
		return false
	}
	return c.acked.Seen(string(d.Message.ID))
}

// PortAddress returns the address the named port of the instance at address
// listens on.
func PortAddress(address, port string) string {
	return address + ".in." + port
}

// Port returns the named port, creating it on first use. A port created while
// the collector is open is opened immediately.
func (c *Collector) Port(name string) (*Port, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return nil, ErrCollectorClosed
	}
	if p, ok := c.ports[name]; ok {
		return p, nil
	}
	p := &Port{
		name:      name,
		address:   PortAddress(c.address, name),
		collector: c,
		log:       c.log.With(slog.String("port", name)),
	}
	if c.isOpen {
		if err := p.open(c.openCtx); err != nil {
			return nil, err
		}
	}
	c.ports[name] = p
	return p, nil
}

// Ports returns all ports sorted by name.
func (c *Collector) Ports() []*Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Port, 0, len(c.ports))
	for _, p := range c.ports {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Open subscribes every port. Subscriptions end when ctx is done or on Close.
func (c *Collector) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return ErrCollectorClosed
	}
	if c.isOpen {
		return nil
	}
	for _, p := range c.ports {
		if err := p.open(ctx); err != nil {
			for _, q := range c.ports {
				_ = q.close()
			}
			return err
		}
	}
	c.openCtx = ctx
	c.isOpen = true
	return nil
}

func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return nil
	}
	c.isClosed = true
	c.isOpen = false
	var errs []error
	for _, p := range c.ports {
		errs = append(errs, p.close())
	}
	return errors.Join(errs...)
}

// Scoped opens the collector, runs fn and closes the collector when fn
// returns, whatever the outcome.
func (c *Collector) Scoped(ctx context.Context, fn func(ctx context.Context, c *Collector) error) (err error) {
	if err := c.Open(ctx); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, c.Close())
	}()
	return fn(ctx, c)
}
