// Package kv defines the key/value capability clusters expose as distributed
// maps and sets. Depending on the cluster scope a Store is process local
// ([MemStore]), backed by a shared data grid or served remotely by a control
// plane.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// Entry is the stored value. Data is opaque to stores; the typed helpers
// below keep it JSON.
type Entry struct {
	Data []byte
	Meta map[string]any
}

type PutOptions struct {
	// TTL expires the entry. Zero keeps it until deleted.
	TTL time.Duration
}

type Store interface {
	Put(ctx context.Context, key string, entry Entry, opts PutOptions) error
	// Get returns ErrNotFound for missing and expired keys.
	Get(ctx context.Context, key string) (entry Entry, err error)
	// Delete of a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists all keys currently stored. Order is unspecified.
	Keys(ctx context.Context) ([]string, error)
}

// Put stores v JSON encoded under key.
func Put[T any](ctx context.Context, store Store, key string, v T, opts PutOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Put(ctx, key, Entry{Data: data}, opts)
}

// Get decodes the JSON value under key.
func Get[T any](ctx context.Context, store Store, key string) (out T, err error) {
	entry, err := store.Get(ctx, key)
	if err != nil {
		return
	}
	if err = json.Unmarshal(entry.Data, &out); err != nil {
		err = fmt.Errorf("decode %s: %w", key, err)
	}
	return
}

// Has reports whether key holds a live entry.
func Has(ctx context.Context, store Store, key string) (bool, error) {
	_, err := store.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
