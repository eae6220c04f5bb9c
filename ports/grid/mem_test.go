package grid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/ports/kv"
)

func TestMemHub(t *testing.T) {
	hub := NewMemHub()
	n1 := hub.Join("node-b")
	n2 := hub.Join("node-a")

	members, err := n1.Members(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"node-a", "node-b"}, members)

	m1, err := n1.Map(t.Context(), "networks")
	require.NoError(t, err)
	m2, err := n2.Map(t.Context(), "networks")
	require.NoError(t, err)

	require.NoError(t, kv.Put(t.Context(), m1, "wordcount", 3, kv.PutOptions{}))
	v, err := kv.Get[int](t.Context(), m2, "wordcount")
	require.NoError(t, err)
	require.Equal(t, 3, v)

	require.NoError(t, n2.Leave(t.Context()))
	members, err = n1.Members(t.Context())
	require.NoError(t, err)
	require.Equal(t, []string{"node-b"}, members)
}
