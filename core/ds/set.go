// Package ds provides small generic data structures shared by the runtime.
package ds

import (
	"encoding/json"
	"fmt"
)

type StringSet = Set[string]

// Set is an ordered set with O(1) membership tests that preserves insertion
// order. Connection pools rely on the order for fair rotation and grid
// membership relies on it for deterministic placement.
//
// Set is not safe for concurrent use.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

func (s *Set[T]) String() string {
	return fmt.Sprintf("%v", s.order)
}

// Add adds v to the set and reports whether it was not present before.
func (s *Set[T]) Add(v T) bool {
	if s.Contains(v) {
		return false
	}
	s.items[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

// Remove removes the given values and reports how many were present.
func (s *Set[T]) Remove(vs ...T) int {
	removed := 0
	for _, v := range vs {
		if _, ok := s.items[v]; ok {
			delete(s.items, v)
			removed++
		}
	}
	if removed == 0 {
		return 0
	}

	newOrder := make([]T, 0, len(s.items))
	for _, v := range s.order {
		if _, ok := s.items[v]; ok {
			newOrder = append(newOrder, v)
		}
	}
	s.order = newOrder
	return removed
}

func (s *Set[T]) Contains(v T) bool {
	_, ok := s.items[v]
	return ok
}

func (s *Set[T]) Len() int { return len(s.items) }

func (s *Set[T]) IsEmpty() bool { return len(s.items) == 0 }

// Values returns a copy of the elements in insertion order.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}

// Diff computes the transition from s to other:
//   - add:    present in other but not in s, in other's order
//   - remove: present in s but not in other, in s's order
func (s *Set[T]) Diff(other *Set[T]) (add []T, remove []T) {
	for _, v := range other.order {
		if !s.Contains(v) {
			add = append(add, v)
		}
	}
	for _, v := range s.order {
		if !other.Contains(v) {
			remove = append(remove, v)
		}
	}
	return add, remove
}

func (s *Set[T]) Clear() {
	s.items = map[T]struct{}{}
	s.order = nil
}

// MarshalJSON serializes the set as an ordered JSON array.
func (s Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var vs []T
	if err := json.Unmarshal(data, &vs); err != nil {
		return err
	}
	s.Clear()
	for _, v := range vs {
		s.Add(v)
	}
	return nil
}

func NewSet[T comparable](items ...T) *Set[T] {
	set := &Set[T]{items: map[T]struct{}{}, order: make([]T, 0, len(items))}
	for _, item := range items {
		set.Add(item)
	}
	return set
}

func NewStringSet(items ...string) *StringSet {
	return NewSet(items...)
}
