package messaging

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/core/loop"
)

func TestTracker_ResolutionIsIdempotent(t *testing.T) {
	l := loop.New(loop.Options{})
	defer l.Close()
	tr := NewTracker(TrackerOptions{Loop: l})

	var calls atomic.Int32
	var last atomic.Value
	p := NewPendingAck("m1", 0, false, 0, func(r Result) {
		calls.Add(1)
		last.Store(r)
	})
	tr.Register(p, "a")
	tr.ResolveAck("m1", "a")
	tr.ResolveAck("m1", "a")
	tr.ResolveFail("m1", "late")
	tr.ResolveAck("unknown", "a")

	require.Equal(t, 0, tr.Pending())
	require.Equal(t, int32(1), calls.Load())
	require.NoError(t, last.Load().(Result).Err)
}

func TestTracker_AckRacingTimeout(t *testing.T) {
	l := loop.New(loop.Options{})
	defer l.Close()
	tr := NewTracker(TrackerOptions{Loop: l})

	var calls atomic.Int32
	p := NewPendingAck("m1", 10*time.Millisecond, false, 0, func(Result) { calls.Add(1) })
	tr.Register(p, "a")
	time.Sleep(10 * time.Millisecond)
	tr.ResolveAck("m1", "a")

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, 0, tr.Pending())
}

func TestTracker_UnlimitedRetry(t *testing.T) {
	l := loop.New(loop.Options{})
	defer l.Close()

	var resends atomic.Int32
	tr := NewTracker(TrackerOptions{
		Loop: l,
		Resend: func(*PendingAck) []string {
			resends.Add(1)
			return []string{"a"}
		},
	})

	done := make(chan Result, 1)
	p := NewPendingAck("m1", 5*time.Millisecond, true, 0, func(r Result) { done <- r })
	require.Equal(t, -1, p.AttemptsRemaining)
	tr.Register(p, "a")

	require.Eventually(t, func() bool { return resends.Load() >= 5 }, time.Second, time.Millisecond)
	tr.ResolveAck("m1", "a")
	r := <-done
	require.NoError(t, r.Err)
	require.Greater(t, r.Attempts, 5)
}

func TestNewPendingAck_Attempts(t *testing.T) {
	require.Equal(t, 0, NewPendingAck("x", time.Second, false, 5, nil).AttemptsRemaining)
	require.Equal(t, 2, NewPendingAck("x", time.Second, true, 3, nil).AttemptsRemaining)
	require.Equal(t, 0, NewPendingAck("x", time.Second, true, 1, nil).AttemptsRemaining)
	require.Equal(t, -1, NewPendingAck("x", time.Second, true, -1, nil).AttemptsRemaining)
}
