// Package hooks lets observers follow messages through input ports and
// feeders. Hooks are invoked synchronously on the component's goroutine and
// must not block.
package hooks

import "github.com/codewandler/stream-go/core/messaging"

type InputHook interface {
	Received(id messaging.MessageID)
	Ack(id messaging.MessageID)
	Fail(id messaging.MessageID)
}

type OutputHook interface {
	Emit(id messaging.MessageID)
	Acked(id messaging.MessageID)
	Failed(id messaging.MessageID)
	TimedOut(id messaging.MessageID)
}

// InputHooks fans out to every hook in order.
type InputHooks []InputHook

func (hs InputHooks) Received(id messaging.MessageID) {
	for _, h := range hs {
		h.Received(id)
	}
}

func (hs InputHooks) Ack(id messaging.MessageID) {
	for _, h := range hs {
		h.Ack(id)
	}
}

func (hs InputHooks) Fail(id messaging.MessageID) {
	for _, h := range hs {
		h.Fail(id)
	}
}

// OutputHooks fans out to every hook in order.
type OutputHooks []OutputHook

func (hs OutputHooks) Emit(id messaging.MessageID) {
	for _, h := range hs {
		h.Emit(id)
	}
}

func (hs OutputHooks) Acked(id messaging.MessageID) {
	for _, h := range hs {
		h.Acked(id)
	}
}

func (hs OutputHooks) Failed(id messaging.MessageID) {
	for _, h := range hs {
		h.Failed(id)
	}
}

func (hs OutputHooks) TimedOut(id messaging.MessageID) {
	for _, h := range hs {
		h.TimedOut(id)
	}
}

// InputFuncs adapts plain functions to InputHook. Nil fields are skipped.
type InputFuncs struct {
	OnReceived func(messaging.MessageID)
	OnAck      func(messaging.MessageID)
	OnFail     func(messaging.MessageID)
}

func (f InputFuncs) Received(id messaging.MessageID) {
	if f.OnReceived != nil {
		f.OnReceived(id)
	}
}

func (f InputFuncs) Ack(id messaging.MessageID) {
	if f.OnAck != nil {
		f.OnAck(id)
	}
}

func (f InputFuncs) Fail(id messaging.MessageID) {
	if f.OnFail != nil {
		f.OnFail(id)
	}
}

var (
	_ InputHook  = InputHooks(nil)
	_ InputHook  = InputFuncs{}
	_ OutputHook = OutputHooks(nil)
)
