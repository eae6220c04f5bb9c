package messaging

import (
	"log/slog"
	"time"

	"github.com/codewandler/stream-go/core/loop"
	"github.com/codewandler/stream-go/core/metrics"
)

// Result is the terminal outcome of a tracked message. Err is nil on ack,
// a *FailureError on explicit fail and a *TimeoutError on timeout.
type Result struct {
	ID       MessageID
	Stream   string
	Attempts int
	Err      error
}

func (r Result) Succeeded() bool { return r.Err == nil }

type ResultHandler func(Result)

// PendingAck is the bookkeeping record of one in-flight tracked message.
// All fields are owned by the tracker's loop once registered.
type PendingAck struct {
	ID      MessageID
	Stream  string
	Timeout time.Duration
	Retry   bool
	// AttemptsRemaining counts resends still allowed; -1 is unlimited.
	AttemptsRemaining int
	Handler           ResultHandler

	Deadline time.Time
	Attempts int

	msg Message

	// awaiting holds the addresses of the last send. With more than one
	// target every one of them must ack.
	awaiting   map[string]struct{}
	generation uint64
	timer      *time.Timer
	duration   metrics.Timer
}

// NewPendingAck builds an entry for a message that may be sent at most
// maxAttempts times (<= 0 is unlimited when retry is set).
func NewPendingAck(id MessageID, timeout time.Duration, retry bool, maxAttempts int, h ResultHandler) *PendingAck {
	remaining := 0
	if retry {
		remaining = maxAttempts - 1
		if maxAttempts <= 0 {
			remaining = -1
		}
	}
	return &PendingAck{
		ID:                id,
		Timeout:           timeout,
		Retry:             retry,
		AttemptsRemaining: remaining,
		Handler:           h,
	}
}

// ResendFunc sends p again and returns the addresses that received it.
type ResendFunc func(p *PendingAck) []string

type TrackerOptions struct {
	// Name labels the pending gauge. Defaults to "tracker".
	Name    string
	Loop    *loop.Loop
	Log     *slog.Logger
	Metrics DispatchMetrics
	// Resend is invoked inside the loop when a retryable entry times out.
	Resend ResendFunc
}

// Tracker maps message ids to pending acks and is the single authority that
// resolves them. Exported methods may be called from any goroutine; they hand
// off into the tracker's loop. Resolving an unknown id is a no-op, so
// duplicate acks and timer/ack races resolve exactly once.
type Tracker struct {
	name    string
	loop    *loop.Loop
	log     *slog.Logger
	metrics DispatchMetrics
	resend  ResendFunc

	pending map[MessageID]*PendingAck
}

func NewTracker(opts TrackerOptions) *Tracker {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = NopDispatchMetrics()
	}
	l := opts.Loop
	if l == nil {
		l = loop.New(loop.Options{Log: log})
	}
	resend := opts.Resend
	if resend == nil {
		resend = func(*PendingAck) []string { return nil }
	}
	name := opts.Name
	if name == "" {
		name = "tracker"
	}
	return &Tracker{
		name:    name,
		loop:    l,
		log:     log,
		metrics: m,
		resend:  resend,
		pending: make(map[MessageID]*PendingAck),
	}
}

// Register starts tracking p. targets are the addresses of the first send.
func (t *Tracker) Register(p *PendingAck, targets ...string) {
	t.loop.Run(func() { t.register(p, targets) })
}

func (t *Tracker) ResolveAck(id MessageID, from string) {
	t.loop.Run(func() { t.resolveAck(id, from) })
}

func (t *Tracker) ResolveFail(id MessageID, reason string) {
	t.loop.Run(func() { t.resolveFail(id, reason) })
}

// Pending returns the number of unresolved entries. It waits for the loop,
// so result handlers must not call it.
func (t *Tracker) Pending() int {
	n := 0
	t.loop.Sync(func() { n = len(t.pending) })
	return n
}

// ResolveAll resolves every pending entry with err.
func (t *Tracker) ResolveAll(err error) {
	t.loop.Run(func() { t.resolveAll(err) })
}

/* ---------------------- loop context ---------------------- */

func (t *Tracker) register(p *PendingAck, targets []string) bool {
	if _, exists := t.pending[p.ID]; exists {
		t.log.Warn("duplicate message id", slog.String("id", string(p.ID)))
		if p.Handler != nil {
			p.Handler(Result{ID: p.ID, Stream: p.Stream, Err: ErrDuplicateMessageID})
		}
		return false
	}
	p.Attempts = 1
	p.duration = t.metrics.AckDuration(p.Stream)
	p.setTargets(targets)
	t.pending[p.ID] = p
	t.metrics.PendingAcks(t.name, len(t.pending))
	t.arm(p)
	return true
}

func (t *Tracker) arm(p *PendingAck) {
	if p.Timeout <= 0 {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.generation++
	gen := p.generation
	id := p.ID
	p.Deadline = time.Now().Add(p.Timeout)
	p.timer = time.AfterFunc(p.Timeout, func() {
		t.loop.Run(func() { t.expire(id, gen) })
	})
}

func (t *Tracker) resolveAck(id MessageID, from string) {
	p, ok := t.pending[id]
	if !ok {
		return
	}
	if len(p.awaiting) > 1 {
		if _, ok := p.awaiting[from]; !ok {
			return
		}
		delete(p.awaiting, from)
		if len(p.awaiting) > 0 {
			return
		}
	}
	t.resolve(p, OutcomeAck, nil)
}

func (t *Tracker) resolveFail(id MessageID, reason string) {
	p, ok := t.pending[id]
	if !ok {
		return
	}
	t.resolve(p, OutcomeFail, &FailureError{ID: id, Reason: reason})
}

// expire fires when the deadline of the given generation passes. Timers of
// earlier generations (re-armed by a retry) are ignored.
func (t *Tracker) expire(id MessageID, gen uint64) {
	p, ok := t.pending[id]
	if !ok || p.generation != gen {
		return
	}

	if p.Retry && p.AttemptsRemaining != 0 {
		if p.AttemptsRemaining > 0 {
			p.AttemptsRemaining--
		}
		p.Attempts++
		t.log.Debug("retrying message", slog.String("id", string(id)), slog.Int("attempt", p.Attempts))
		t.metrics.MessageRetried(p.Stream)
		p.setTargets(t.resend(p))
		t.arm(p)
		return
	}

	t.resolve(p, OutcomeTimeout, &TimeoutError{ID: id, Attempts: p.Attempts, Exhausted: p.Retry})
}

func (t *Tracker) resolveAll(err error) {
	for _, p := range t.pending {
		t.resolve(p, OutcomeClosed, err)
	}
}

func (t *Tracker) resolve(p *PendingAck, outcome string, err error) {
	delete(t.pending, p.ID)
	if p.timer != nil {
		p.timer.Stop()
	}
	p.duration.ObserveDuration()
	t.metrics.MessageResolved(p.Stream, outcome)
	t.metrics.PendingAcks(t.name, len(t.pending))
	if p.Handler != nil {
		p.Handler(Result{ID: p.ID, Stream: p.Stream, Attempts: p.Attempts, Err: err})
	}
}

func (p *PendingAck) setTargets(targets []string) {
	p.awaiting = make(map[string]struct{}, len(targets))
	for _, addr := range targets {
		p.awaiting[addr] = struct{}{}
	}
}
