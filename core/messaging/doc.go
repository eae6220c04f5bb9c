// Package messaging implements reliable dispatch of messages to a pool of
// downstream connections.
//
// # Dispatch
//
// A [Dispatcher] selects one or more connections from its [ConnectionPool]
// using a [Router] and sends the message:
//
//	d.Init(pool)
//	id, err := d.Dispatch(ctx, msg,
//	    messaging.WithTimeout(100*time.Millisecond),
//	    messaging.WithRetry(3),
//	    messaging.WithResultHandler(func(r messaging.Result) {
//	        // r.Err is nil, *TimeoutError or *FailureError
//	    }),
//	)
//
// Without a result handler the message is fire-and-forget. With a handler the
// message is tracked until the receiver acks or fails it, or until its
// deadline passes. Only timeouts are retried; an explicit failure is terminal.
//
// # Acking
//
// Tracked messages carry the dispatcher's ack address. Receivers publish
// "ack" and "fail" envelopes to it and the [Tracker] resolves the matching
// pending entry exactly once. Duplicate or late outcomes are ignored.
//
// # Routing
//
//   - [RoundRobin]: rotates over the pool members
//   - [Random]: picks a uniformly random member
//   - [Broadcast]: sends to every member; a tracked broadcast succeeds once all targets acked
//   - [KeyHash]: rendezvous hashing of [Message.Key] over member addresses
package messaging
