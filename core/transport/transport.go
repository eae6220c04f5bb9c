package transport

import (
	"context"
)

type Subscription interface {
	Unsubscribe() error
}

// Handler processes an envelope. For requests the returned bytes (or error)
// are sent back to the requester; for publishes they are discarded.
type Handler = func(ctx context.Context, env Envelope) ([]byte, error)

type Transport interface {
	// Publish delivers env to all subscribers of env.Address without waiting.
	// Envelopes published to an address without subscribers are dropped.
	Publish(ctx context.Context, env Envelope) error

	// Request delivers env and waits for a reply. Returns ErrNoResponders if
	// nobody is subscribed to env.Address.
	Request(ctx context.Context, env Envelope) ([]byte, error)

	// Subscribe registers h for address until ctx is done or the subscription
	// is removed.
	Subscribe(ctx context.Context, address string, h Handler) (Subscription, error)

	Close() error
}
