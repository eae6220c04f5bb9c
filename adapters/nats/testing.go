package nats

import (
	"context"
	"os"
	"testing"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type Testing interface {
	require.TestingT
	Context() context.Context
	Logf(format string, args ...any)
	Skip(args ...any)
	Cleanup(func())
}

// NewTestContainer connects tests to a JetStream enabled NATS server. With
// NATS_URL set that server is used, otherwise a container is started for the
// duration of the test. Skipped in -short mode.
func NewTestContainer(t Testing) Connector {
	if testing.Short() {
		t.Skip("nats tests skipped in short mode")
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		t.Logf("nats url: %s", url)
		return ConnectURL(url)
	}

	ctx := t.Context()
	natsC, err := testcontainers.Run(
		ctx, "nats:latest",
		testcontainers.WithCmd("-js"),
		testcontainers.WithExposedPorts("4222/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("4222/tcp"),
			wait.ForLog("Server is ready"),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(natsC); err != nil {
			t.Errorf("failed to terminate container: %s", err.Error())
		}
	})

	ip, err := natsC.ContainerIP(ctx)
	require.NoError(t, err)
	t.Logf("nats ip: %s", ip)
	return ConnectURL("nats://" + ip + ":4222")
}

// TestPrefix returns a subject and bucket prefix unique to one test, so
// tests sharing a server do not see each other.
func TestPrefix() string {
	return "t" + gonanoid.MustGenerate("abcdefghijklmnopqrstuvwxyz0123456789", 8)
}
