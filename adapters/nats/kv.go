package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/stream-go/ports/kv"
)

type KvConfig struct {
	Connect Connector
	Bucket  string
	// Storage defaults to jetstream.FileStorage.
	Storage  jetstream.StorageType
	MaxBytes int64
	// Replicas of the bucket stream. Defaults to 1.
	Replicas int
}

// KvStore is a kv.Store backed by a JetStream key/value bucket. Keys are
// base64url encoded so any string is a valid key. TTLs are enforced on read,
// expired entries are removed lazily.
type KvStore struct {
	kv      jetstream.KeyValue
	closeNc Release
}

type kvRecord struct {
	Data      []byte         `json:"data,omitempty"`
	Meta      map[string]any `json:"meta,omitempty"`
	ExpiresAt time.Time      `json:"expires_at,omitzero"`
}

func (r kvRecord) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

func NewKvStore(ctx context.Context, cfg KvConfig) (*KvStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}

	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	bucket, err := ensureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		Storage:  cfg.Storage,
		MaxBytes: cfg.MaxBytes,
		Replicas: cfg.Replicas,
	})
	if err != nil {
		closeNc()
		return nil, err
	}
	return &KvStore{kv: bucket, closeNc: closeNc}, nil
}

// ensureBucket creates or updates the bucket named by cfg.Bucket after
// mapping the name onto the characters JetStream allows.
func ensureBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	cfg.Bucket = BucketName(cfg.Bucket)
	if cfg.Replicas <= 0 {
		cfg.Replicas = 1
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("nats: bucket %s: %w", cfg.Bucket, err)
	}
	return kv, nil
}

// BucketName maps name onto the bucket alphabet [A-Za-z0-9_-]; every other
// character becomes '_'.
func BucketName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
}

func encodeKey(key string) string { return base64.RawURLEncoding.EncodeToString([]byte(key)) }

func decodeKey(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	return string(b), err
}

func (k *KvStore) Put(ctx context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	rec := kvRecord{Data: entry.Data, Meta: entry.Meta}
	if opts.TTL > 0 {
		rec.ExpiresAt = time.Now().Add(opts.TTL)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := k.kv.Put(ctx, encodeKey(key), data); err != nil {
		return fmt.Errorf("nats: put %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Get(ctx context.Context, key string) (kv.Entry, error) {
	rec, err := k.get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return kv.Entry{}, err
		}
		return kv.Entry{}, fmt.Errorf("nats: get %s: %w", key, err)
	}
	return kv.Entry{Data: rec.Data, Meta: rec.Meta}, nil
}

func (k *KvStore) get(ctx context.Context, encoded string) (kvRecord, error) {
	var rec kvRecord
	e, err := k.kv.Get(ctx, encoded)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return rec, kv.ErrNotFound
		}
		return rec, err
	}
	if err := json.Unmarshal(e.Value(), &rec); err != nil {
		return rec, err
	}
	if rec.expired(time.Now()) {
		_ = k.kv.Delete(ctx, encoded, jetstream.LastRevision(e.Revision()))
		return rec, kv.ErrNotFound
	}
	return rec, nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	if err := k.kv.Delete(ctx, encodeKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists live keys. Every key is read once to filter expired entries.
func (k *KvStore) Keys(ctx context.Context) ([]string, error) {
	lister, err := k.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("nats: list keys: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var keys []string
	for encoded := range lister.Keys() {
		key, err := decodeKey(encoded)
		if err != nil {
			continue
		}
		if _, err := k.get(ctx, encoded); err != nil {
			if errors.Is(err, kv.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("nats: get %s: %w", key, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Close releases the connection lease.
func (k *KvStore) Close() error {
	if k.closeNc != nil {
		k.closeNc()
	}
	return nil
}

var _ kv.Store = (*KvStore)(nil)
