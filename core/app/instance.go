package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/codewandler/stream-go/core/cluster"
	"github.com/codewandler/stream-go/core/feeder"
	"github.com/codewandler/stream-go/core/input"
	"github.com/codewandler/stream-go/core/loop"
	"github.com/codewandler/stream-go/core/messaging"
)

// SetupFunc installs consumers and feeders on a freshly bound instance.
type SetupFunc func(ctx context.Context, ic *InstanceContext) error

// InstanceContext holds the wiring of one deployed instance: a collector with
// a port per input and a dispatcher per output stream, all sharing one loop.
// It satisfies cluster.Component.
type InstanceContext struct {
	inst cluster.Instance
	rt   *Runtime
	log  *slog.Logger
	loop *loop.Loop

	// ctx bounds every subscription of the instance; it ends on Stop.
	ctx    context.Context
	cancel context.CancelFunc

	collector *input.Collector
	outputs   map[string]*messaging.Dispatcher

	mu      sync.Mutex
	feeders []*feeder.Feeder
	stopped bool
}

// Bind wires inst to the runtime's transport. Output dispatchers are open
// when Bind returns; inputs start receiving on Open.
func (r *Runtime) Bind(ctx context.Context, inst cluster.Instance) (*InstanceContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.isClosed() {
		return nil, ErrRuntimeClosed
	}

	log := r.log.With(slog.String("instance", inst.Address))
	ic := &InstanceContext{
		inst:    inst,
		rt:      r,
		log:     log,
		loop:    loop.New(loop.Options{Log: log}),
		outputs: make(map[string]*messaging.Dispatcher, len(inst.Outputs)),
	}
	ic.ctx, ic.cancel = context.WithCancel(r.ctx)

	collector, err := input.NewCollector(input.CollectorOptions{
		Address:      inst.Address,
		Transport:    r.transport,
		Log:          r.log,
		Hooks:        r.inputHooks,
		DedupeWindow: r.dedupeWindow,
		DedupeTTL:    r.dedupeTTL,
	})
	if err != nil {
		return nil, errors.Join(err, ic.Stop(ctx))
	}
	ic.collector = collector
	for _, name := range inst.Inputs {
		if _, err := collector.Port(name); err != nil {
			return nil, errors.Join(err, ic.Stop(ctx))
		}
	}

	for _, out := range inst.Outputs {
		d, err := ic.bindOutput(out)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("output %s: %w", out.Stream, err), ic.Stop(ctx))
		}
		ic.outputs[out.Stream] = d
	}

	log.Debug("instance bound", slog.Int("inputs", len(inst.Inputs)), slog.Int("outputs", len(inst.Outputs)))
	return ic, nil
}

func (ic *InstanceContext) bindOutput(out cluster.Output) (*messaging.Dispatcher, error) {
	router, err := messaging.NewRouter(out.Routing)
	if err != nil {
		return nil, err
	}
	d, err := messaging.NewDispatcher(messaging.DispatcherOptions{
		Name:       out.Stream,
		Transport:  ic.rt.transport,
		Router:     router,
		Loop:       ic.loop,
		Log:        ic.log,
		Metrics:    ic.rt.metrics.Dispatch,
		AckAddress: ic.inst.Address + ".ack." + out.Stream,
	})
	if err != nil {
		return nil, err
	}
	conns := make([]messaging.Connection, 0, len(out.Targets))
	for _, target := range out.Targets {
		conns = append(conns, messaging.NewConnection(ic.rt.transport, target))
	}
	d.Init(messaging.NewConnectionPool(out.Stream, conns...))
	if err := d.Open(ic.ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (ic *InstanceContext) Instance() cluster.Instance  { return ic.inst }
func (ic *InstanceContext) Address() string             { return ic.inst.Address }
func (ic *InstanceContext) Log() *slog.Logger           { return ic.log }
func (ic *InstanceContext) Loop() *loop.Loop            { return ic.loop }
func (ic *InstanceContext) Context() context.Context    { return ic.ctx }
func (ic *InstanceContext) Collector() *input.Collector { return ic.collector }

// Config returns the component configuration value for key.
func (ic *InstanceContext) Config(key string) (any, bool) {
	v, ok := ic.inst.Config[key]
	return v, ok
}

// Input returns the port name, creating it when the topology did not declare
// it.
func (ic *InstanceContext) Input(name string) (*input.Port, error) {
	return ic.collector.Port(name)
}

// Handle installs c on the input port name.
func (ic *InstanceContext) Handle(name string, c input.Consumer) error {
	p, err := ic.Input(name)
	if err != nil {
		return err
	}
	p.Handle(c)
	return nil
}

// Output returns the dispatcher of stream.
func (ic *InstanceContext) Output(stream string) (*messaging.Dispatcher, error) {
	d, ok := ic.outputs[stream]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOutput, stream)
	}
	return d, nil
}

// Outputs returns the names of the bound output streams in lexical order.
func (ic *InstanceContext) Outputs() []string {
	out := make([]string, 0, len(ic.outputs))
	for s := range ic.outputs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Feeder creates a feeder emitting on stream. Name, Dispatcher, Loop, Log,
// Metrics and Hooks are filled in when unset. The feeder is closed on Stop.
func (ic *InstanceContext) Feeder(stream string, opts feeder.Options) (*feeder.Feeder, error) {
	d, err := ic.Output(stream)
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		opts.Name = ic.inst.Address + "." + stream
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = d
	}
	if opts.Loop == nil {
		opts.Loop = ic.loop
	}
	if opts.Log == nil {
		opts.Log = ic.log
	}
	if opts.Metrics == nil {
		opts.Metrics = ic.rt.metrics.Feeder
	}
	if opts.Hooks == nil {
		opts.Hooks = ic.rt.outputHooks
	}

	ic.mu.Lock()
	defer ic.mu.Unlock()
	if ic.stopped {
		return nil, ErrInstanceClosed
	}
	f, err := feeder.New(opts)
	if err != nil {
		return nil, err
	}
	ic.feeders = append(ic.feeders, f)
	return f, nil
}

// Open subscribes the input ports.
func (ic *InstanceContext) Open() error {
	ic.mu.Lock()
	stopped := ic.stopped
	ic.mu.Unlock()
	if stopped {
		return ErrInstanceClosed
	}
	return ic.collector.Open(ic.ctx)
}

// Stop closes feeders, then inputs, then outputs. Pending messages of the
// outputs resolve with messaging.ErrDispatcherClosed once the loop drains.
// Stop does not wait for that, so it may be called from a reaction running
// in the instance loop; Done reports when the loop has exited.
func (ic *InstanceContext) Stop(context.Context) error {
	ic.mu.Lock()
	if ic.stopped {
		ic.mu.Unlock()
		return nil
	}
	ic.stopped = true
	feeders := ic.feeders
	ic.feeders = nil
	ic.mu.Unlock()

	var errs []error
	for _, f := range feeders {
		errs = append(errs, f.Close())
	}
	if ic.collector != nil {
		errs = append(errs, ic.collector.Close())
	}
	for _, d := range ic.outputs {
		errs = append(errs, d.Close())
	}
	ic.cancel()
	ic.loop.Close()

	ic.log.Debug("instance stopped")
	return errors.Join(errs...)
}

// Done is closed once the instance loop has exited after Stop.
func (ic *InstanceContext) Done() <-chan struct{} { return ic.loop.Done() }

var _ cluster.Component = (*InstanceContext)(nil)
