// Package timing drives graph cycles. Events are plain values delivered to a
// Handler at a cycle; the engine runs them in cycle order and can pace them
// against the wall clock.
package timing

import (
	"time"

	"github.com/sarchlab/mediagraph/instrumentation/hooking"
)

// VTimeInCycle counts graph cycles.
type VTimeInCycle uint64

const maxCycleValue = ^VTimeInCycle(0)

// HookPosBeforeEvent fires before an event is handled. Item is the
// *ScheduledEvent.
var HookPosBeforeEvent = &hooking.HookPos{Name: "BeforeEvent"}

// HookPosAfterEvent fires after an event was handled.
var HookPosAfterEvent = &hooking.HookPos{Name: "AfterEvent"}

// Handler processes events of various types. Handlers switch on the event
// type:
//
//	func (s *Scheduler) Handle(event any) error {
//	    switch e := event.(type) {
//	    case *CycleEvent:
//	        return s.cycle(e)
//	    default:
//	        return fmt.Errorf("unknown event type: %T", event)
//	    }
//	}
type Handler interface {
	Handle(event any) error
}

// TimeTeller exposes the current cycle.
type TimeTeller interface {
	CurrentTime() VTimeInCycle
}

// EventScheduler schedules events on the timeline.
type EventScheduler interface {
	TimeTeller
	Schedule(event ScheduledEvent)
}

// ScheduledEvent is the engine-facing wrapper of an event payload.
type ScheduledEvent struct {
	// Event is delivered to the handler as is.
	Event any

	// Time is the cycle when the event is processed.
	Time VTimeInCycle

	// Handler processes the event.
	Handler Handler

	// IsSecondary events run after all primary events of the same cycle.
	IsSecondary bool
}

// Period returns the wall-clock length of a cycle that processes quantum
// frames at rate frames per second.
func Period(quantum, rate uint32) time.Duration {
	if rate == 0 {
		return 0
	}

	return time.Duration(uint64(quantum) * uint64(time.Second) / uint64(rate))
}
