// Package nats adapts NATS to the runtime's capabilities.
//
// [Transport] implements transport.Transport on core NATS subjects, with
// no-responder detection for requests. [KvStore] implements kv.Store on a
// JetStream key/value bucket and [Grid] implements grid.Grid with a
// heartbeat membership bucket plus one bucket per shared map.
//
// Connections come from a [Connector]; [ReuseConnection] lets several
// adapters share one connection:
//
//	connect := nats.ReuseConnection(nats.ConnectDefault())
//	tr, _ := nats.NewTransport(nats.TransportConfig{Connect: connect})
//	g, _ := nats.NewGrid(ctx, nats.GridConfig{Connect: connect})
package nats
