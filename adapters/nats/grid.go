package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/stream-go/ports/grid"
	"github.com/codewandler/stream-go/ports/kv"
)

const (
	DefaultGridPrefix        = "strm"
	DefaultHeartbeatInterval = time.Second
	DefaultMemberTTL         = 5 * time.Second
)

type GridConfig struct {
	Connect Connector
	Log     *slog.Logger
	// NodeID defaults to "node-<random>".
	NodeID string
	// Prefix names the buckets of this grid: <prefix>_members and
	// <prefix>_map_<name>.
	Prefix string
	// HeartbeatInterval is how often membership is refreshed; MemberTTL is
	// how long a silent member stays listed.
	HeartbeatInterval time.Duration
	MemberTTL         time.Duration
	Storage           jetstream.StorageType
}

// Grid is a grid.Grid on JetStream. Membership is a key/value bucket with a
// max age: every member rewrites its key each heartbeat, members that stop
// doing so drop out after MemberTTL.
type Grid struct {
	nodeID   string
	prefix   string
	log      *slog.Logger
	js       jetstream.JetStream
	members  jetstream.KeyValue
	storage  jetstream.StorageType
	interval time.Duration
	closeNc  Release

	mu   sync.Mutex
	maps map[string]*KvStore
	left bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGrid joins the grid and starts the heartbeat. Leave stops it.
func NewGrid(ctx context.Context, cfg GridConfig) (*Grid, error) {
	connect := cfg.Connect
	if connect == nil {
		connect = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultGridPrefix
	}
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ttl := cfg.MemberTTL
	if ttl <= 0 {
		ttl = DefaultMemberTTL
	}
	if ttl <= interval {
		return nil, fmt.Errorf("member ttl %s must exceed heartbeat interval %s", ttl, interval)
	}

	nc, closeNc, err := connect()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}
	members, err := ensureBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:  prefix + "_members",
		TTL:     ttl,
		Storage: cfg.Storage,
	})
	if err != nil {
		closeNc()
		return nil, err
	}

	g := &Grid{
		nodeID:   nodeID,
		prefix:   prefix,
		log:      log.With(slog.String("grid", prefix), slog.String("node", nodeID)),
		js:       js,
		members:  members,
		storage:  cfg.Storage,
		interval: interval,
		closeNc:  closeNc,
		maps:     map[string]*KvStore{},
	}
	if err := g.heartbeat(ctx); err != nil {
		closeNc()
		return nil, err
	}

	hbCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g.cancel = cancel
	g.wg.Add(1)
	go g.run(hbCtx)

	g.log.Info("joined grid")
	return g, nil
}

func (g *Grid) run(ctx context.Context) {
	defer g.wg.Done()
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.heartbeat(ctx); err != nil && ctx.Err() == nil {
				g.log.Warn("heartbeat failed", slog.Any("error", err))
			}
		}
	}
}

func (g *Grid) heartbeat(ctx context.Context) error {
	_, err := g.members.Put(ctx, g.nodeID, []byte(time.Now().UTC().Format(time.RFC3339Nano)))
	return err
}

func (g *Grid) NodeID() string { return g.nodeID }

func (g *Grid) Members(ctx context.Context) ([]string, error) {
	lister, err := g.members.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("nats: list members: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var out []string
	for id := range lister.Keys() {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

// Map returns the shared map name. Stores are created once per name.
func (g *Grid) Map(ctx context.Context, name string) (kv.Store, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.maps[name]; ok {
		return s, nil
	}
	bucket, err := ensureBucket(ctx, g.js, jetstream.KeyValueConfig{
		Bucket:  g.prefix + "_map_" + name,
		Storage: g.storage,
	})
	if err != nil {
		return nil, err
	}
	s := &KvStore{kv: bucket}
	g.maps[name] = s
	return s, nil
}

// Leave stops the heartbeat, removes this node from the membership and
// releases the connection.
func (g *Grid) Leave(ctx context.Context) error {
	g.mu.Lock()
	if g.left {
		g.mu.Unlock()
		return nil
	}
	g.left = true
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()

	err := g.members.Delete(ctx, g.nodeID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		err = nil
	}
	g.closeNc()
	g.log.Info("left grid")
	return err
}

var _ grid.Grid = (*Grid)(nil)
