package loop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoop_order(t *testing.T) {
	l := New(Options{})
	defer l.Close()

	var (
		mu  sync.Mutex
		got []int
	)
	for i := range 100 {
		require.True(t, l.Run(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.True(t, l.Sync(func() {}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestLoop_nested_run(t *testing.T) {
	l := New(Options{})
	defer l.Close()

	done := make(chan struct{})
	l.Run(func() {
		l.Run(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested func did not run")
	}
}

func TestLoop_panic_is_contained(t *testing.T) {
	recovered := make(chan any, 1)
	l := New(Options{OnPanic: func(r any, _ []byte) { recovered <- r }})
	defer l.Close()

	l.Run(func() { panic("boom") })
	require.True(t, l.Sync(func() {}))
	require.Equal(t, "boom", <-recovered)
}

func TestLoop_close_drains(t *testing.T) {
	l := New(Options{})
	ran := 0
	for range 10 {
		l.Run(func() { ran++ })
	}
	l.Close()
	<-l.Done()
	require.Equal(t, 10, ran)
	require.False(t, l.Run(func() {}))
	require.False(t, l.Sync(func() {}))
}

func TestLoop_finally(t *testing.T) {
	l := New(Options{})

	ran := make(chan string, 2)
	l.Run(func() {
		// queued from inside the loop without blocking it
		l.Finally(func() { ran <- "open" })
	})
	require.Equal(t, "open", <-ran)

	l.Close()
	l.Finally(func() {
		select {
		case <-l.Done():
			ran <- "closed"
		default:
			ran <- "loop still running"
		}
	})
	select {
	case got := <-ran:
		require.Equal(t, "closed", got)
	case <-time.After(time.Second):
		t.Fatal("finally did not run after close")
	}
}
