// Package loop provides a serialized execution context: a single goroutine
// that runs submitted functions one at a time, in submission order.
//
// Components that own mutable state (pending ack tables, feeder counters)
// mutate it only from inside their loop. Timers and transport handlers that
// fire on other goroutines hand off into the loop with [Loop.Run] instead of
// touching the state directly.
package loop

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

type OnPanic func(recovered any, stack []byte)

type Options struct {
	Log     *slog.Logger
	OnPanic OnPanic
}

// Loop runs funcs sequentially on a dedicated goroutine. The queue is
// unbounded so Run never blocks, which allows funcs running inside the loop
// to enqueue follow-up work.
type Loop struct {
	log     *slog.Logger
	onPanic OnPanic

	mu      sync.Mutex
	queue   []func()
	closing bool

	wake chan struct{}
	done chan struct{}
}

func New(opts Options) *Loop {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	onPanic := opts.OnPanic
	if onPanic == nil {
		onPanic = func(recovered any, stack []byte) {
			log.Error("loop task panicked", slog.Any("recovered", recovered), slog.String("stack", string(stack)))
		}
	}

	l := &Loop{
		log:     log,
		onPanic: onPanic,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Run enqueues f. It returns false if the loop is closing and f was dropped.
func (l *Loop) Run(f func()) bool {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops accepting work. Funcs already queued still run. Close does not
// wait; use Done for that.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closing {
		l.mu.Unlock()
		return
	}
	l.closing = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Finally runs f in the loop, or right after the loop goroutine has exited
// when the loop is already closing. It never blocks, so it is safe to call
// from inside the loop.
func (l *Loop) Finally(f func()) {
	if l.Run(f) {
		return
	}
	go func() {
		<-l.done
		f()
	}()
}

// Sync runs f in the loop and waits for it to finish. It must not be called
// from inside the loop. Returns false if the loop is closing.
func (l *Loop) Sync(f func()) bool {
	finished := make(chan struct{})
	if !l.Run(func() {
		defer close(finished)
		f()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		closing := l.closing
		l.mu.Unlock()

		if len(batch) == 0 {
			if closing {
				return
			}
			<-l.wake
			continue
		}

		for _, f := range batch {
			l.safeRun(f)
		}
	}
}

func (l *Loop) safeRun(f func()) {
	defer func() {
		if r := recover(); r != nil {
			l.onPanic(r, debug.Stack())
		}
	}()
	f()
}
