package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/codewandler/stream-go/adapters/nats"
	"github.com/codewandler/stream-go/core/app"
	"github.com/codewandler/stream-go/core/cluster"
	"github.com/codewandler/stream-go/core/feeder"
	"github.com/codewandler/stream-go/core/input"
	"github.com/codewandler/stream-go/core/messaging"
	"github.com/codewandler/stream-go/core/topology"
	"github.com/codewandler/stream-go/core/transport"
)

// === Config ===

// NOTE: run nats: docker run --net=host nats:latest -js

var (
	logLevel     = slog.LevelInfo
	N            = getEnvInt("N", 50_000)
	queueSize    = getEnvInt("Q", 1_000)
	sinks        = getEnvInt("SINKS", 4)
	routing      = getEnv("ROUTING", messaging.RouterRoundRobin)
	backendType  = getEnv("BACKEND", "memory")
	autoRetry    = getEnvBool("RETRY", false)
	ackTimeoutMs = getEnvInt("ACK_TIMEOUT_MS", 5_000)
)

func getEnvBool(key string, fallback bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	return v == "1" || strings.ToLower(v) == "true"
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

// === Bench ===

type counters struct {
	acked, failed, timedOut, received atomic.Int64
	done                              chan struct{}
}

func (c *counters) resolved() int64 {
	return c.acked.Load() + c.failed.Load() + c.timedOut.Load()
}

func (c *counters) check() {
	if c.resolved() == int64(N) {
		close(c.done)
	}
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))

	fmt.Printf("Backend:  %s\n", backendType)
	fmt.Printf("Messages: %d (queue %d, sinks %d, routing %s, retry %t)\n", N, queueSize, sinks, routing, autoRetry)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	tr := createTransport(log)
	defer func() { checkErr(tr.Close()) }()

	rt, err := app.New(app.Config{
		Context:   ctx,
		Log:       log,
		Transport: tr,
		Cluster:   cluster.Config{Address: "feedbench", Scope: cluster.ScopeLocal},
	})
	checkErr(err)
	defer func() { checkErr(rt.Close(context.Background())) }()

	c := &counters{done: make(chan struct{})}
	checkErr(register(rt, c))

	// === START ===

	log.Info("==================================")
	log.Info("Starting ...")

	memBefore := getMemUsage()
	startAt := time.Now()

	_, err = rt.Deploy(ctx, &topology.Network{
		Name: "bench",
		Components: []topology.Component{
			{Name: "source", Main: "source"},
			{Name: "sink", Main: "sink", Instances: sinks},
		},
		Connections: []topology.Connection{
			{Source: "source", Stream: "out", Target: "sink", Port: "in", Routing: routing},
		},
	})
	checkErr(err)

	progress := time.NewTicker(time.Second)
	defer progress.Stop()
	lastTime, lastCount := startAt, int64(0)
loop:
	for {
		select {
		case <-c.done:
			break loop
		case <-ctx.Done():
			log.Error("bench timed out", slog.Int64("resolved", c.resolved()))
			break loop
		case now := <-progress.C:
			n := c.resolved()
			rate := float64(n-lastCount) / now.Sub(lastTime).Seconds()
			log.Info("progress", slog.Int64("resolved", n), slog.String("rate", fmt.Sprintf("%.0f msg/s", rate)))
			lastTime, lastCount = now, n
		}
	}

	elapsed := time.Since(startAt)
	memAfter := getMemUsage()
	checkErr(rt.Undeploy(context.Background(), "bench"))

	// === REPORT ===

	fmt.Println("==================================")
	fmt.Printf("Duration:  %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Rate:      %.0f msg/s\n", float64(c.resolved())/elapsed.Seconds())
	fmt.Printf("Acked:     %d\n", c.acked.Load())
	fmt.Printf("Failed:    %d\n", c.failed.Load())
	fmt.Printf("Timed out: %d\n", c.timedOut.Load())
	fmt.Printf("Received:  %d\n", c.received.Load())
	fmt.Printf("Alloc:     %d MiB (total %d MiB, %d GCs)\n",
		memAfter.Alloc/1024/1024,
		(memAfter.TotalAlloc-memBefore.TotalAlloc)/1024/1024,
		memAfter.NumGC-memBefore.NumGC,
	)
}

func register(rt *app.Runtime, c *counters) error {
	err := rt.Register("source", func(_ context.Context, ic *app.InstanceContext) error {
		var emitted int
		f, err := ic.Feeder("out", feeder.Options{
			FeedQueueMaxSize: queueSize,
			AutoRetry:        autoRetry,
			AckTimeout:       time.Duration(ackTimeoutMs) * time.Millisecond,
			FeedInterval:     time.Millisecond,
			Handlers: feeder.Handlers{
				Ack:     func(messaging.MessageID) { c.acked.Add(1); c.check() },
				Fail:    func(messaging.MessageID, error) { c.failed.Add(1); c.check() },
				Timeout: func(messaging.MessageID, error) { c.timedOut.Add(1); c.check() },
			},
		})
		if err != nil {
			return err
		}
		payload := []byte(`"payload"`)
		f.OnFeed(func(f *feeder.Feeder) {
			for emitted < N && !f.Full() {
				if _, err := f.Emit(payload, nil); err != nil {
					return
				}
				emitted++
			}
		})
		return f.Start(ic.Context())
	})
	if err != nil {
		return err
	}
	return rt.Register("sink", func(_ context.Context, ic *app.InstanceContext) error {
		return ic.Handle("in", func(d *input.Delivery) {
			c.received.Add(1)
			_ = d.Ack()
		})
	})
}

func createTransport(log *slog.Logger) transport.Transport {
	switch backendType {
	case "nats":
		tr, err := nats.NewTransport(nats.TransportConfig{
			Connect:       nats.ConnectDefault(),
			Log:           log,
			SubjectPrefix: "feedbench",
		})
		checkErr(err)
		return tr
	default:
		return transport.NewInMemoryTransport(transport.MemoryTransportOpts{Log: log})
	}
}

// === Mem ===

type MemUsage struct {
	Alloc      uint64 // bytes allocated and still in use
	TotalAlloc uint64 // cumulative bytes allocated
	Sys        uint64 // total bytes obtained from OS
	NumGC      uint32 // gc cycles
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// === Helpers ===

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}
