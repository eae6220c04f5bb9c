package messaging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/core/transport"
)

func addresses(cs []Connection) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Address()
	}
	return out
}

func TestConnectionPool(t *testing.T) {
	p := NewConnectionPool("out", newRecordingConn("a"), newRecordingConn("b"))
	require.Equal(t, "out", p.Name())
	require.Equal(t, 2, p.Len())

	require.False(t, p.Add(newRecordingConn("a")))
	require.True(t, p.Add(newRecordingConn("c")))
	require.Equal(t, []string{"a", "b", "c"}, addresses(p.Snapshot()))

	require.True(t, p.Remove("b"))
	require.False(t, p.Remove("b"))
	_, ok := p.Get("b")
	require.False(t, ok)
	require.Equal(t, []string{"a", "c"}, addresses(p.Snapshot()))
}

func TestConnectionPool_Sync(t *testing.T) {
	p := NewConnectionPool("out", newRecordingConn("a"), newRecordingConn("b"))
	snap := p.Snapshot()

	added, removed := p.Sync(newRecordingConn("b"), newRecordingConn("c"))
	require.Equal(t, 1, added)
	require.Equal(t, 1, removed)
	require.Equal(t, []string{"b", "c"}, addresses(p.Snapshot()))

	// earlier snapshots are unaffected
	require.Equal(t, []string{"a", "b"}, addresses(snap))
}

func TestMessage_EnvelopeRoundTrip(t *testing.T) {
	m := Message{
		ID:      "m1",
		Stream:  "words",
		Key:     "k",
		Data:    []byte(`"hi"`),
		Headers: map[string]string{"trace": "t1"},
		AckTo:   "out.ack.1",
	}
	env := m.Envelope("worker.in.words")
	require.Equal(t, TypeMessage, env.Type)
	require.NoError(t, env.Validate())
	require.Equal(t, m, MessageFromEnvelope(env))

	s, err := Decode[string](m)
	require.NoError(t, err)
	require.Equal(t, "hi", s)

	ack := AckEnvelope(m, "worker.in.words")
	require.Equal(t, "out.ack.1", ack.Address)
	require.Equal(t, TypeAck, ack.Type)

	fail := FailEnvelope(m, "worker.in.words", "bad")
	require.Equal(t, "bad", fail.Header(headerReason))
}

func TestTransportConnection_Send(t *testing.T) {
	tr := transport.NewInMemoryTransport()
	defer tr.Close()
	c := NewConnection(tr, "nowhere")
	require.Equal(t, "nowhere", c.Address())
	require.NoError(t, c.Send(t.Context(), Message{ID: "x"}))
}
