package input

import (
	"sync/atomic"

	"github.com/codewandler/stream-go/core/messaging"
)

// Delivery is one received message. The consumer settles it exactly once with
// Ack or Fail, possibly after the consumer func has returned.
type Delivery struct {
	Message messaging.Message

	port    *Port
	settled atomic.Bool
}

func (d *Delivery) ID() messaging.MessageID { return d.Message.ID }

// Settled reports whether Ack or Fail was called.
func (d *Delivery) Settled() bool { return d.settled.Load() }

func (d *Delivery) Ack() error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	d.port.collector.inputHooks().Ack(d.Message.ID)
	d.port.collector.rememberAck(d)
	if !d.Message.Tracked() {
		return nil
	}
	return d.port.publish(messaging.AckEnvelope(d.Message, d.port.address))
}

func (d *Delivery) Fail(reason string) error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	d.port.collector.inputHooks().Fail(d.Message.ID)
	if !d.Message.Tracked() {
		return nil
	}
	return d.port.publish(messaging.FailEnvelope(d.Message, d.port.address, reason))
}

// Decode unmarshals the JSON payload of the delivered message.
func Decode[T any](d *Delivery) (T, error) {
	return messaging.Decode[T](d.Message)
}
