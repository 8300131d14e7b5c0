package timing

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/mediagraph/instrumentation/hooking"
)

// Option configures a SerialEngine.
type Option func(e *SerialEngine)

// WithPeriod paces the engine so that cycle t is not processed before
// start + t*period on the wall clock. A zero period runs as fast as possible.
func WithPeriod(period time.Duration) Option {
	return func(e *SerialEngine) {
		e.period = period
	}
}

// SerialEngine processes scheduled events sequentially in cycle order.
type SerialEngine struct {
	*hooking.HookableBase

	timeLock sync.RWMutex
	now      VTimeInCycle

	queue          eventQueue
	secondaryQueue eventQueue

	isPaused     bool
	isPausedLock sync.Mutex
	pauseLock    sync.Mutex

	singleRunLock sync.Mutex
	stopped       atomic.Bool

	period  time.Duration
	start   time.Time
	base    VTimeInCycle
	clock   func() time.Time
	sleep   func(time.Duration)
	maxLate atomic.Int64
}

// NewSerialEngine creates a SerialEngine.
func NewSerialEngine(opts ...Option) *SerialEngine {
	e := &SerialEngine{
		HookableBase:   hooking.NewHookableBase(),
		queue:          newScheduledEventQueue(),
		secondaryQueue: newScheduledEventQueue(),
		clock:          time.Now,
		sleep:          time.Sleep,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Period returns the pacing period, zero when unpaced.
func (e *SerialEngine) Period() time.Duration { return e.period }

// Schedule registers an event to be handled in the future. It is safe to
// call from any goroutine.
func (e *SerialEngine) Schedule(evt ScheduledEvent) {
	now := e.readNow()
	if evt.Time < now {
		panic(fmt.Sprintf(
			"timing: cannot schedule event in the past, evt %s @ %d, now %d",
			reflect.TypeOf(evt.Event), evt.Time, now,
		))
	}

	eventCopy := evt
	if evt.IsSecondary {
		e.secondaryQueue.Push(&eventCopy)
		return
	}

	e.queue.Push(&eventCopy)
}

func (e *SerialEngine) readNow() VTimeInCycle {
	e.timeLock.RLock()
	t := e.now
	e.timeLock.RUnlock()

	return t
}

func (e *SerialEngine) writeNow(t VTimeInCycle) {
	e.timeLock.Lock()
	e.now = t
	e.timeLock.Unlock()
}

// Run processes scheduled events until none is left or Stop is called. The
// first error returned by a handler ends the run.
func (e *SerialEngine) Run() error {
	e.singleRunLock.Lock()
	defer e.singleRunLock.Unlock()

	defer e.stopped.Store(false)

	e.start = e.clock()
	e.base = e.readNow()

	for {
		if e.stopped.Load() || e.noMoreEvent() {
			return nil
		}

		if err := e.runOne(); err != nil {
			return err
		}
	}
}

func (e *SerialEngine) runOne() error {
	e.pauseLock.Lock()
	defer e.pauseLock.Unlock()

	evt := e.nextEvent()
	if evt == nil {
		return nil
	}

	now := e.readNow()
	if evt.Time < now {
		panic(fmt.Sprintf(
			"timing: cannot run event in the past, evt %s @ %d, now %d",
			reflect.TypeOf(evt.Event), evt.Time, now,
		))
	}

	e.pace(evt.Time)
	e.writeNow(evt.Time)

	hookCtx := hooking.HookCtx{
		Domain: e,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
	}
	e.InvokeHook(hookCtx)

	var err error
	if evt.Handler != nil {
		err = evt.Handler.Handle(evt.Event)
	}

	hookCtx.Pos = HookPosAfterEvent
	hookCtx.Detail = err
	e.InvokeHook(hookCtx)

	return err
}

func (e *SerialEngine) pace(t VTimeInCycle) {
	if e.period <= 0 {
		return
	}

	due := e.start.Add(time.Duration(t-e.base) * e.period)

	wait := due.Sub(e.clock())
	if wait > 0 {
		e.sleep(wait)
		return
	}

	if late := int64(-wait); late > e.maxLate.Load() {
		e.maxLate.Store(late)
	}
}

// MaxLateness returns the largest delay seen between a due cycle and its
// processing in a paced run.
func (e *SerialEngine) MaxLateness() time.Duration {
	return time.Duration(e.maxLate.Load())
}

func (e *SerialEngine) noMoreEvent() bool {
	return e.queue.Len() == 0 && e.secondaryQueue.Len() == 0
}

func (e *SerialEngine) nextEvent() *ScheduledEvent {
	if e.queue.Len() == 0 {
		return e.secondaryQueue.Pop()
	}

	if e.secondaryQueue.Len() == 0 {
		return e.queue.Pop()
	}

	primary := e.queue.Peek()
	secondary := e.secondaryQueue.Peek()

	if primary.Time <= secondary.Time {
		e.queue.Pop()
		return primary
	}

	e.secondaryQueue.Pop()

	return secondary
}

// NextEventTime returns the cycle of the next pending event.
func (e *SerialEngine) NextEventTime() (VTimeInCycle, bool) {
	t := maxCycleValue

	if evt := e.queue.Peek(); evt != nil {
		t = evt.Time
	}

	if evt := e.secondaryQueue.Peek(); evt != nil && evt.Time < t {
		t = evt.Time
	}

	return t, t != maxCycleValue
}

// Stop makes Run return after the event being processed, or right away if
// called before Run. Pending events stay queued for the next Run.
func (e *SerialEngine) Stop() {
	e.stopped.Store(true)
}

// Pause prevents the engine from dispatching more events until Continue is
// called.
func (e *SerialEngine) Pause() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if e.isPaused {
		return
	}

	e.pauseLock.Lock()
	e.isPaused = true
}

// Continue resumes event processing after a Pause.
func (e *SerialEngine) Continue() {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return
	}

	e.pauseLock.Unlock()
	e.isPaused = false
}

// Paused reports whether the engine is paused.
func (e *SerialEngine) Paused() bool {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	return e.isPaused
}

// WhilePaused runs fn and reports true if the engine is paused. No event
// runs and Continue waits until fn returns.
func (e *SerialEngine) WhilePaused(fn func()) bool {
	e.isPausedLock.Lock()
	defer e.isPausedLock.Unlock()

	if !e.isPaused {
		return false
	}

	fn()

	return true
}

// CurrentTime returns the cycle of the most recently executed event.
func (e *SerialEngine) CurrentTime() VTimeInCycle {
	return e.readNow()
}

var _ EventScheduler = (*SerialEngine)(nil)
