package messaging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func conns(addrs ...string) []Connection {
	out := make([]Connection, len(addrs))
	for i, a := range addrs {
		out[i] = newRecordingConn(a)
	}
	return out
}

func TestNewRouter(t *testing.T) {
	for name, want := range map[string]string{
		"":          RouterRoundRobin,
		"random":    RouterRandom,
		"all":       RouterBroadcast,
		"broadcast": RouterBroadcast,
		"fields":    RouterKeyHash,
	} {
		r, err := NewRouter(name)
		require.NoError(t, err)
		require.Equal(t, want, r.Name())
	}

	_, err := NewRouter("nope")
	require.ErrorIs(t, err, ErrUnknownRouter)
}

func TestRouter_EmptySnapshot(t *testing.T) {
	for _, r := range []Router{RoundRobin(), Random(), Broadcast(), KeyHash("")} {
		require.Empty(t, r.Select(Message{ID: "x"}, nil), r.Name())
	}
}

func TestRoundRobin_Fair(t *testing.T) {
	r := RoundRobin()
	cs := conns("a", "b", "c")
	counts := map[string]int{}
	for range 30 {
		sel := r.Select(Message{}, cs)
		require.Len(t, sel, 1)
		counts[sel[0].Address()]++
	}
	require.Equal(t, map[string]int{"a": 10, "b": 10, "c": 10}, counts)
}

func TestKeyHash_StableUnderMembershipChange(t *testing.T) {
	r := KeyHash("seed")
	before := conns("a", "b", "c", "d")
	after := conns("a", "b", "c")

	moved := 0
	for i := range 200 {
		msg := Message{Key: fmt.Sprintf("k-%d", i)}
		x := r.Select(msg, before)[0].Address()
		y := r.Select(msg, after)[0].Address()
		require.Equal(t, x, r.Select(msg, before)[0].Address())
		if x != "d" {
			require.Equal(t, x, y, "keys of surviving members must not move")
		} else {
			moved++
		}
	}
	require.Positive(t, moved)
}

func TestBroadcast_SelectsAll(t *testing.T) {
	require.Len(t, Broadcast().Select(Message{}, conns("a", "b")), 2)
}
