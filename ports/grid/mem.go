package grid

import (
	"context"
	"sort"
	"sync"

	"github.com/codewandler/stream-go/core/ds"
	"github.com/codewandler/stream-go/ports/kv"
)

// MemHub simulates a data grid inside one process. Every node joined to the
// same hub sees the same membership and maps.
type MemHub struct {
	mu      sync.Mutex
	members *ds.StringSet
	maps    map[string]*kv.MemStore
}

func NewMemHub() *MemHub {
	return &MemHub{
		members: ds.NewStringSet(),
		maps:    map[string]*kv.MemStore{},
	}
}

// Join adds nodeID to the membership and returns its view of the grid.
func (h *MemHub) Join(nodeID string) *MemGrid {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members.Add(nodeID)
	return &MemGrid{hub: h, nodeID: nodeID}
}

func (h *MemHub) memberIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := h.members.Values()
	sort.Strings(ids)
	return ids
}

func (h *MemHub) store(name string) *kv.MemStore {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.maps[name]
	if !ok {
		s = kv.NewMemStore()
		h.maps[name] = s
	}
	return s
}

type MemGrid struct {
	hub    *MemHub
	nodeID string
}

func (g *MemGrid) NodeID() string { return g.nodeID }

func (g *MemGrid) Members(context.Context) ([]string, error) {
	return g.hub.memberIDs(), nil
}

func (g *MemGrid) Map(_ context.Context, name string) (kv.Store, error) {
	return g.hub.store(name), nil
}

func (g *MemGrid) Leave(context.Context) error {
	g.hub.mu.Lock()
	defer g.hub.mu.Unlock()
	g.hub.members.Remove(g.nodeID)
	return nil
}

var _ Grid = (*MemGrid)(nil)
