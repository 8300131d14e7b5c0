package node

import (
	"fmt"

	"github.com/sarchlab/mediagraph/result"
)

// InvalidID marks an absent buffer or port.
const InvalidID = ^uint32(0)

// Direction tells whether a port consumes or produces buffers.
type Direction int

// Port directions.
const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Reverse returns the opposite direction.
func (d Direction) Reverse() Direction {
	if d == DirectionInput {
		return DirectionOutput
	}

	return DirectionInput
}

func (d Direction) valid() bool {
	return d == DirectionInput || d == DirectionOutput
}

// Status is the per-cycle result of processing and the state of an IO area.
// The positive values are flags. Negative values carry an errno.
type Status int32

// Statuses.
const (
	StatusOK         Status = 0
	StatusNeedBuffer Status = 1 << 0
	StatusHaveBuffer Status = 1 << 1
	StatusStopped    Status = 1 << 2
	StatusDrained    Status = 1 << 3
)

// StatusFromErr encodes an error as a status.
func StatusFromErr(err error) Status {
	return Status(result.Errno(err))
}

// Err returns the error carried by a negative status.
func (s Status) Err() error {
	if s >= 0 {
		return nil
	}

	return result.FromErrno(int(s))
}

// Has reports whether all the flags of f are set.
func (s Status) Has(f Status) bool {
	return s >= 0 && s&f == f
}

func (s Status) String() string {
	if s < 0 {
		return fmt.Sprintf("error(%v)", s.Err())
	}

	switch s {
	case StatusOK:
		return "ok"
	case StatusNeedBuffer:
		return "need-buffer"
	case StatusHaveBuffer:
		return "have-buffer"
	case StatusStopped:
		return "stopped"
	case StatusDrained:
		return "drained"
	default:
		return fmt.Sprintf("status(%#x)", int32(s))
	}
}

// IOType identifies an IO area.
type IOType uint32

// IO area types.
const (
	IOTypeInvalid IOType = iota
	IOTypeBuffers
	IOTypeClock
	IOTypePosition
	IOTypeRange
)

func (t IOType) String() string {
	switch t {
	case IOTypeBuffers:
		return "Buffers"
	case IOTypeClock:
		return "Clock"
	case IOTypePosition:
		return "Position"
	case IOTypeRange:
		return "Range"
	default:
		return "Invalid"
	}
}

// IORange is a requested region of a stream.
type IORange struct {
	Offset  uint64
	MinSize uint32
	MaxSize uint32
}

// IOBuffers is the record exchanged between a port and its peer once per
// cycle.
type IOBuffers struct {
	Status   Status
	BufferID uint32
	Range    IORange
}

// NewIOBuffers returns an idle area.
func NewIOBuffers() *IOBuffers {
	return &IOBuffers{Status: StatusNeedBuffer, BufferID: InvalidID}
}

// IOClock describes the driving clock of the graph.
type IOClock struct {
	Nsec      int64
	RateNum   uint32
	RateDenom uint32
	Position  uint64
	Duration  uint64
	Xruns     uint64
}

// IOPosition is the position of the graph in the current cycle.
type IOPosition struct {
	Clock IOClock
	Cycle uint64
}

func checkIOArea(id IOType, area any) (isNil bool, err error) {
	switch a := area.(type) {
	case nil:
		return true, nil
	case *IOBuffers:
		if id == IOTypeBuffers {
			return a == nil, nil
		}
	case *IOClock:
		if id == IOTypeClock {
			return a == nil, nil
		}
	case *IOPosition:
		if id == IOTypePosition {
			return a == nil, nil
		}
	case *IORange:
		if id == IOTypeRange {
			return a == nil, nil
		}
	}

	return false, fmt.Errorf("io %s with %T: %w", id, area, result.ErrInvalidArgument)
}
