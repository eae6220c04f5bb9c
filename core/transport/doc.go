// Package transport moves opaque envelopes between logical addresses.
//
// A [Transport] supports three interactions:
//
//   - [Transport.Publish]: fire-and-forget delivery to every subscriber of an address
//   - [Transport.Request]: deliver and wait for the first reply
//   - [Transport.Subscribe]: receive envelopes sent to an address
//
// Request reports [ErrNoResponders] when nobody is subscribed to the target
// address. The cluster scope resolver relies on that signal to tell an
// orchestrated deployment apart from a local or grid one.
//
// [MemoryTransport] delivers within the process. The adapters/nats package
// provides a NATS implementation.
package transport
