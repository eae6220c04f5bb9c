package nats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/ports/kv"
)

func TestGrid(t *testing.T) {
	connect := ReuseConnection(NewTestContainer(t))
	prefix := TestPrefix()

	join := func(id string) *Grid {
		g, err := NewGrid(t.Context(), GridConfig{
			Connect:           connect,
			NodeID:            id,
			Prefix:            prefix,
			HeartbeatInterval: 100 * time.Millisecond,
			MemberTTL:         time.Second,
		})
		require.NoError(t, err)
		return g
	}

	a := join("node-a")
	b := join("node-b")

	members, err := a.Members(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"node-a", "node-b"}, members)

	ma, err := a.Map(t.Context(), "networks")
	require.NoError(t, err)
	mb, err := b.Map(t.Context(), "networks")
	require.NoError(t, err)

	require.NoError(t, ma.Put(t.Context(), "wc", kv.Entry{Data: []byte(`{"owner":"node-a"}`)}, kv.PutOptions{}))
	e, err := mb.Get(t.Context(), "wc")
	require.NoError(t, err)
	require.JSONEq(t, `{"owner":"node-a"}`, string(e.Data))

	require.NoError(t, b.Leave(t.Context()))
	require.NoError(t, b.Leave(t.Context()))
	members, err = a.Members(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"node-a"}, members)

	require.NoError(t, a.Leave(t.Context()))
}

func TestGrid_InvalidTTL(t *testing.T) {
	_, err := NewGrid(t.Context(), GridConfig{
		HeartbeatInterval: time.Second,
		MemberTTL:         time.Second,
	})
	require.Error(t, err)
}
