package messaging

import (
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/codewandler/stream-go/internal/hrw"
)

// Router selects the connections a message is sent to. conns is a snapshot
// of the pool taken when the send happens; it may be empty.
type Router interface {
	Name() string
	Select(msg Message, conns []Connection) []Connection
}

const (
	RouterRoundRobin = "round-robin"
	RouterRandom     = "random"
	RouterBroadcast  = "broadcast"
	RouterKeyHash    = "key-hash"
)

// NewRouter returns the routing policy registered under name. An empty name
// selects round-robin.
func NewRouter(name string) (Router, error) {
	switch name {
	case "", RouterRoundRobin:
		return RoundRobin(), nil
	case RouterRandom:
		return Random(), nil
	case RouterBroadcast, "all":
		return Broadcast(), nil
	case RouterKeyHash, "fields":
		return KeyHash(""), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRouter, name)
	}
}

type roundRobin struct {
	next atomic.Uint64
}

// RoundRobin rotates over the members in pool order. Membership changes shift
// the rotation but every member keeps getting its turn.
func RoundRobin() Router { return &roundRobin{} }

func (r *roundRobin) Name() string { return RouterRoundRobin }

func (r *roundRobin) Select(_ Message, conns []Connection) []Connection {
	if len(conns) == 0 {
		return nil
	}
	n := r.next.Add(1) - 1
	return []Connection{conns[n%uint64(len(conns))]}
}

type random struct{}

func Random() Router { return random{} }

func (random) Name() string { return RouterRandom }

func (random) Select(_ Message, conns []Connection) []Connection {
	if len(conns) == 0 {
		return nil
	}
	return []Connection{conns[rand.IntN(len(conns))]}
}

type broadcast struct{}

func Broadcast() Router { return broadcast{} }

func (broadcast) Name() string { return RouterBroadcast }

func (broadcast) Select(_ Message, conns []Connection) []Connection {
	return conns
}

type keyHash struct {
	seed string
}

// KeyHash routes messages with equal keys to the same member. Messages without
// a key are hashed by id.
func KeyHash(seed string) Router { return keyHash{seed: seed} }

func (keyHash) Name() string { return RouterKeyHash }

func (r keyHash) Select(msg Message, conns []Connection) []Connection {
	if len(conns) == 0 {
		return nil
	}
	key := msg.Key
	if key == "" {
		key = string(msg.ID)
	}
	addrs := make([]string, len(conns))
	for i, c := range conns {
		addrs[i] = c.Address()
	}
	idx, _ := hrw.Best(key, addrs, r.seed)
	return []Connection{conns[idx]}
}
