package sf

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSingleflight_SharesConcurrentCalls(t *testing.T) {
	g := New[int]()

	var (
		calls   atomic.Int32
		release = make(chan struct{})
		wg      sync.WaitGroup
		results = make([]*int, 5)
	)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := g.Do("k", func() (*int, error) {
				calls.Add(1)
				<-release
				n := 42
				return &n, nil
			})
			if err == nil {
				results[i] = v
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		require.NotNil(t, v)
		require.Equal(t, 42, *v)
	}
}

func TestSingleflight_DoesNotCache(t *testing.T) {
	g := New[string]()

	var calls int
	fn := func() (*string, error) {
		calls++
		s := "x"
		return &s, nil
	}
	_, err := g.Do("k", fn)
	require.NoError(t, err)
	_, err = g.Do("k", fn)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestSingleflight_Error(t *testing.T) {
	g := New[string]()
	boom := errors.New("boom")

	v, err := g.Do("k", func() (*string, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	require.Nil(t, v)
}
