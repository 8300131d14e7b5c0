// Package loop separates the control context from the data context. The
// data context is one goroutine that runs the engine; control code reaches
// it through Invoke, which runs a function between two events.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/timing"
)

// ErrRunning is returned by Go when the data goroutine already runs.
var ErrRunning = errors.New("loop already running")

const (
	invokePending int32 = iota
	invokeRunning
	invokeCancelled
)

type invocation struct {
	fn    func()
	state atomic.Int32
	done  chan struct{}
}

// Loop owns the data goroutine.
type Loop struct {
	mu      sync.Mutex
	running bool
	pending []*invocation
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// New creates a loop that is not running.
func New() *Loop {
	return &Loop{}
}

// Running reports whether the data goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.running
}

// Invoke runs fn on the data goroutine at the next safe point and waits for
// it. When the loop is not running fn runs on the caller. If ctx ends before
// fn started, fn never runs and the context error is returned. Invoke must
// not be called from the data goroutine.
func (l *Loop) Invoke(ctx context.Context, fn func()) error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		fn()

		return nil
	}

	inv := &invocation{fn: fn, done: make(chan struct{})}
	l.pending = append(l.pending, inv)
	l.mu.Unlock()

	select {
	case <-inv.done:
		return nil
	case <-ctx.Done():
		if inv.state.CompareAndSwap(invokePending, invokeCancelled) {
			return ctx.Err()
		}

		<-inv.done

		return nil
	}
}

// Post queues fn for the data goroutine without waiting for it. When the
// loop is not running fn runs on the caller. Post may be called from any
// goroutine, including the data goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		fn()

		return
	}

	l.pending = append(l.pending, &invocation{fn: fn, done: make(chan struct{})})
	l.mu.Unlock()
}

// Drain runs the pending invocations. The data goroutine calls it between
// events.
func (l *Loop) Drain() {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	runAll(pending)
}

func runAll(pending []*invocation) {
	for _, inv := range pending {
		if inv.state.CompareAndSwap(invokePending, invokeRunning) {
			inv.fn()
		}
		close(inv.done)
	}
}

// Func drains pending invocations after every engine event. Attach the loop
// to the engine with AcceptHook.
func (l *Loop) Func(ctx hooking.HookCtx) {
	if ctx.Pos == timing.HookPosAfterEvent {
		l.Drain()
	}
}

// Go starts the data goroutine running fn. The context passed to fn is
// cancelled by Stop.
func (l *Loop) Go(fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.running = true
	l.cancel = cancel
	l.done = make(chan struct{})
	l.err = nil

	go l.run(ctx, fn)

	return nil
}

func (l *Loop) run(ctx context.Context, fn func(ctx context.Context) error) {
	err := fn(ctx)

	l.mu.Lock()
	l.running = false
	l.err = err
	pending := l.pending
	l.pending = nil
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	runAll(pending)
	cancel()
	close(done)
}

// Wait blocks until the data goroutine returns and reports its error.
func (l *Loop) Wait() error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done == nil {
		return nil
	}

	<-done

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.err
}

// Stop cancels the data goroutine and waits for it.
func (l *Loop) Stop() error {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	return l.Wait()
}

// RunEngine returns a function for Go that runs engine until it drains or
// the loop stops.
func RunEngine(engine *timing.SerialEngine) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		stop := context.AfterFunc(ctx, engine.Stop)
		defer stop()

		return engine.Run()
	}
}
