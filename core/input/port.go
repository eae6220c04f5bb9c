package input

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/codewandler/stream-go/core/messaging"
	"github.com/codewandler/stream-go/core/transport"
)

// Consumer handles deliveries of one port. Deliveries may arrive
// concurrently.
type Consumer func(d *Delivery)

// Port receives the messages of one named input stream of an instance at
// "<instance address>.in.<name>".
type Port struct {
	name      string
	address   string
	collector *Collector
	log       *slog.Logger

	mu       sync.Mutex
	consumer Consumer
	sub      transport.Subscription
}

func (p *Port) Name() string    { return p.name }
func (p *Port) Address() string { return p.address }

// Handle sets the consumer. Messages received without a consumer are failed.
func (p *Port) Handle(c Consumer) *Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumer = c
	return p
}

func (p *Port) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sub != nil
}

func (p *Port) open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub != nil {
		return nil
	}
	sub, err := p.collector.transport.Subscribe(ctx, p.address, p.receive)
	if err != nil {
		return fmt.Errorf("open port %s: %w", p.name, err)
	}
	p.sub = sub
	p.log.Debug("port opened")
	return nil
}

func (p *Port) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sub == nil {
		return nil
	}
	err := p.sub.Unsubscribe()
	p.sub = nil
	p.log.Debug("port closed")
	return err
}

func (p *Port) receive(_ context.Context, env transport.Envelope) ([]byte, error) {
	if env.Type != messaging.TypeMessage {
		p.log.Warn("unexpected envelope", slog.String("type", env.Type))
		return nil, nil
	}
	d := &Delivery{Message: messaging.MessageFromEnvelope(env), port: p}
	if p.collector.alreadyAcked(d) {
		p.log.Debug("duplicate delivery acked", slog.String("id", string(d.Message.ID)))
		p.settle(p.publish(messaging.AckEnvelope(d.Message, p.address)))
		return nil, nil
	}
	p.collector.inputHooks().Received(d.Message.ID)

	p.mu.Lock()
	consumer := p.consumer
	p.mu.Unlock()

	if consumer == nil {
		p.settle(d.Fail("no consumer"))
		return nil, nil
	}
	p.consume(consumer, d)
	return nil, nil
}

func (p *Port) consume(consumer Consumer, d *Delivery) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("consumer panicked",
				slog.String("id", string(d.Message.ID)),
				slog.Any("recovered", r),
				slog.String("stack", string(debug.Stack())),
			)
			if !d.Settled() {
				p.settle(d.Fail(fmt.Sprintf("panic: %v", r)))
			}
		}
	}()
	consumer(d)
}

func (p *Port) settle(err error) {
	if err != nil {
		p.log.Warn("failed to settle message", slog.Any("error", err))
	}
}

func (p *Port) publish(env transport.Envelope) error {
	return p.collector.transport.Publish(p.collector.ctx, env)
}
