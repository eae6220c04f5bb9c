package nats

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/stream-go/core/transport"
)

func newTestTransport(t *testing.T, connect Connector) *Transport {
	t.Helper()
	tp, err := NewTransport(TransportConfig{Connect: connect, SubjectPrefix: TestPrefix()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Close() })
	return tp
}

func TestNats_Transport(t *testing.T) {
	connectNatsC := ReuseConnection(NewTestContainer(t))

	t.Run("connect & close", func(t *testing.T) {
		nc, closeNc, err := connectNatsC()
		require.NoError(t, err)
		require.NotNil(t, nc)
		require.NoError(t, nc.Flush())
		closeNc()
	})

	t.Run("request", func(t *testing.T) {
		tp := newTestTransport(t, connectNatsC)

		s, err := tp.Subscribe(t.Context(), "echo", func(ctx context.Context, env transport.Envelope) ([]byte, error) {
			return append([]byte(env.Header("greeting")+" "), env.Data...), nil
		})
		require.NoError(t, err)

		data, err := tp.Request(t.Context(), transport.NewEnvelope("echo", "test", []byte("world"), transport.WithHeader("greeting", "hello")))
		require.NoError(t, err)
		require.Equal(t, "hello world", string(data))

		require.NoError(t, s.Unsubscribe())
		require.NoError(t, s.Unsubscribe())
	})

	t.Run("request error", func(t *testing.T) {
		tp := newTestTransport(t, connectNatsC)

		_, err := tp.Subscribe(t.Context(), "fail", func(context.Context, transport.Envelope) ([]byte, error) {
			return nil, errors.New("boom")
		})
		require.NoError(t, err)

		_, err = tp.Request(t.Context(), transport.NewEnvelope("fail", "test", nil))
		require.EqualError(t, err, "boom")
	})

	t.Run("no responders", func(t *testing.T) {
		tp := newTestTransport(t, connectNatsC)

		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()
		_, err := tp.Request(ctx, transport.NewEnvelope("nobody.home", "test", nil))
		require.ErrorIs(t, err, transport.ErrNoResponders)
	})

	t.Run("publish fanout", func(t *testing.T) {
		tp := newTestTransport(t, connectNatsC)

		var got atomic.Int32
		for range 2 {
			_, err := tp.Subscribe(t.Context(), "fan", func(context.Context, transport.Envelope) ([]byte, error) {
				got.Add(1)
				return nil, nil
			})
			require.NoError(t, err)
		}
		require.NoError(t, tp.nc.Flush())

		require.NoError(t, tp.Publish(t.Context(), transport.NewEnvelope("fan", "test", []byte("x"))))
		require.Eventually(t, func() bool { return got.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("closed", func(t *testing.T) {
		tp, err := NewTransport(TransportConfig{Connect: connectNatsC})
		require.NoError(t, err)
		require.NoError(t, tp.Close())
		require.NoError(t, tp.Close())

		_, err = tp.Request(t.Context(), transport.NewEnvelope("x", "test", nil))
		require.ErrorIs(t, err, transport.ErrTransportClosed)
		require.ErrorIs(t, tp.Publish(t.Context(), transport.NewEnvelope("x", "test", nil)), transport.ErrTransportClosed)
	})
}
