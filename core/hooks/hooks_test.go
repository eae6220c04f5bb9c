package hooks

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/core/messaging"
)

type recorder struct{ events []string }

func (r *recorder) Emit(id messaging.MessageID)   { r.events = append(r.events, "emit:"+string(id)) }
func (r *recorder) Acked(id messaging.MessageID)  { r.events = append(r.events, "acked:"+string(id)) }
func (r *recorder) Failed(id messaging.MessageID) { r.events = append(r.events, "failed:"+string(id)) }
func (r *recorder) TimedOut(id messaging.MessageID) {
	r.events = append(r.events, "timeout:"+string(id))
}

func TestOutputHooks_FanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	hs := OutputHooks{a, b}
	hs.Emit("1")
	hs.Acked("1")
	hs.Failed("2")
	hs.TimedOut("3")

	want := []string{"emit:1", "acked:1", "failed:2", "timeout:3"}
	require.Equal(t, want, a.events)
	require.Equal(t, want, b.events)
}

func TestInputFuncs(t *testing.T) {
	var got []string
	hs := InputHooks{
		InputFuncs{OnReceived: func(id messaging.MessageID) { got = append(got, "r:"+string(id)) }},
		InputFuncs{OnAck: func(id messaging.MessageID) { got = append(got, "a:"+string(id)) }},
	}
	hs.Received("x")
	hs.Ack("x")
	hs.Fail("x")
	require.Equal(t, []string{"r:x", "a:x"}, got)
}
