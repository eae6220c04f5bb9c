package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/ports/kv"
)

func TestKV(t *testing.T) {
	type fooBar struct {
		Fruit string
		Count int
	}
	connectNats := NewTestContainer(t)
	store, err := NewKvStore(t.Context(), KvConfig{
		Bucket:  "map_set.fruits",
		Connect: connectNats,
		Storage: jetstream.MemoryStorage,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, kv.Put(t.Context(), store, "apple pie", fooBar{Fruit: "apple", Count: 10}, kv.PutOptions{}))

	v, err := kv.Get[fooBar](t.Context(), store, "apple pie")
	require.NoError(t, err)
	require.Equal(t, fooBar{Fruit: "apple", Count: 10}, v)

	_, err = store.Get(t.Context(), "pear")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Put(t.Context(), "short", kv.Entry{Data: []byte("x")}, kv.PutOptions{TTL: 50 * time.Millisecond}))
	keys, err := store.Keys(t.Context())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"apple pie", "short"}, keys)

	time.Sleep(100 * time.Millisecond)
	_, err = store.Get(t.Context(), "short")
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.NoError(t, store.Delete(t.Context(), "apple pie"))
	require.NoError(t, store.Delete(context.Background(), "apple pie"))
	keys, err = store.Keys(t.Context())
	require.NoError(t, err)
	require.Empty(t, keys)

	set := kv.NewSet(store)
	require.NoError(t, set.Add(t.Context(), "a/b c"))
	ok, err := set.Contains(t.Context(), "a/b c")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBucketName(t *testing.T) {
	require.Equal(t, "map_set_words", BucketName("map_set.words"))
	require.Equal(t, "strm_members", BucketName("strm_members"))
	require.Equal(t, "a-b_c_", BucketName("a-b c*"))
}
