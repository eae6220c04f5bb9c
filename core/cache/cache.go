package cache

import "time"

type PutOptions struct {
	TTL time.Duration
}

type PutOption func(*PutOptions)

// WithTTL expires the entry ttl after the put. Zero means no expiry.
func WithTTL(ttl time.Duration) PutOption {
	return func(o *PutOptions) {
		o.TTL = ttl
	}
}

type Cache interface {
	Get(key string) (any, bool)
	Put(key string, val any, opts ...PutOption)
	Delete(key string)
	Len() int
}

// IDs remembers identifiers, e.g. the message ids an input already
// acknowledged. A zero size remembers nothing.
type IDs struct {
	c   Cache
	ttl time.Duration
}

func NewIDs(size int, ttl time.Duration) *IDs {
	if size <= 0 {
		return &IDs{c: NewNop()}
	}
	return &IDs{c: NewLRU(LRUOpts{Size: size}), ttl: ttl}
}

func (s *IDs) Remember(id string) { s.c.Put(id, struct{}{}, WithTTL(s.ttl)) }

func (s *IDs) Seen(id string) bool {
	_, ok := s.c.Get(id)
	return ok
}

func (s *IDs) Forget(id string) { s.c.Delete(id) }
