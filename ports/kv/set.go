package kv

import (
	"context"
	"sort"
)

// Set is a distributed set of strings layered on a Store: members are keys
// with empty entries.
type Set struct {
	store Store
}

func NewSet(store Store) *Set { return &Set{store: store} }

func (s *Set) Add(ctx context.Context, member string) error {
	return s.store.Put(ctx, member, Entry{}, PutOptions{})
}

func (s *Set) Remove(ctx context.Context, member string) error {
	return s.store.Delete(ctx, member)
}

func (s *Set) Contains(ctx context.Context, member string) (bool, error) {
	return Has(ctx, s.store, member)
}

// Members returns the members in lexical order.
func (s *Set) Members(ctx context.Context) ([]string, error) {
	keys, err := s.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
