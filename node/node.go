// Package node defines the processing contract every graph node
// implements, the IO areas exchanged each cycle and the port state machine.
// NodeBase implements the port-level half of the contract so that concrete
// nodes only describe formats and process data.
package node

import (
	"context"
	"fmt"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/param"
)

// Limits of the fixed tables.
const (
	MaxPorts   = 64
	MaxBuffers = 64
)

// Command changes the run state of a node.
type Command int

// Commands.
const (
	CommandStart Command = iota
	CommandPause
	CommandSuspend
)

func (c Command) String() string {
	switch c {
	case CommandStart:
		return "start"
	case CommandPause:
		return "pause"
	case CommandSuspend:
		return "suspend"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Info describes a node.
type Info struct {
	Name           string
	MaxInputPorts  uint32
	MaxOutputPorts uint32
	Props          map[string]string
}

// EventType tells what an Event reports.
type EventType int

// Event types.
const (
	EventInfoChanged EventType = iota
	EventPortInfoChanged
	EventError
)

// Event is an out-of-band notification from a node.
type Event struct {
	Type      EventType
	Direction Direction
	PortID    uint32
	Err       error
}

// Callbacks receive the notifications of a node. Done and Event run on the
// control context. NeedInput, HaveOutput and ReuseBuffer may run on the data
// context and must not block.
type Callbacks interface {
	Done(seq int, err error)
	Event(ev Event)
	NeedInput()
	HaveOutput()
	ReuseBuffer(portID, bufferID uint32)
}

// CallbackFuncs adapts functions to Callbacks. Nil functions are ignored.
type CallbackFuncs struct {
	DoneFunc        func(seq int, err error)
	EventFunc       func(ev Event)
	NeedInputFunc   func()
	HaveOutputFunc  func()
	ReuseBufferFunc func(portID, bufferID uint32)
}

// Done calls DoneFunc.
func (c CallbackFuncs) Done(seq int, err error) {
	if c.DoneFunc != nil {
		c.DoneFunc(seq, err)
	}
}

// Event calls EventFunc.
func (c CallbackFuncs) Event(ev Event) {
	if c.EventFunc != nil {
		c.EventFunc(ev)
	}
}

// NeedInput calls NeedInputFunc.
func (c CallbackFuncs) NeedInput() {
	if c.NeedInputFunc != nil {
		c.NeedInputFunc()
	}
}

// HaveOutput calls HaveOutputFunc.
func (c CallbackFuncs) HaveOutput() {
	if c.HaveOutputFunc != nil {
		c.HaveOutputFunc()
	}
}

// ReuseBuffer calls ReuseBufferFunc.
func (c CallbackFuncs) ReuseBuffer(portID, bufferID uint32) {
	if c.ReuseBufferFunc != nil {
		c.ReuseBufferFunc(portID, bufferID)
	}
}

// Node is a processing unit with input and output ports. All methods except
// Process and PortReuseBuffer run on the control context.
type Node interface {
	hooking.Hookable

	Info() Info
	SetCallbacks(cb Callbacks)

	// EnumParams returns the first object of the given id at or after index
	// that matches filter, and the index to continue from.
	// param.ErrEnumEnd reports the end of the list.
	EnumParams(id param.ID, index uint32, filter *param.Object) (*param.Object, uint32, error)
	SetParam(id param.ID, flags uint32, p *param.Object) error
	SetIO(id IOType, area any) error
	SendCommand(cmd Command) error

	AddPort(dir Direction, portID uint32) error
	RemovePort(dir Direction, portID uint32) error

	PortEnumParams(dir Direction, portID uint32, id param.ID, index uint32,
		filter *param.Object) (*param.Object, uint32, error)
	PortSetParam(dir Direction, portID uint32, id param.ID, flags uint32,
		p *param.Object) error
	PortUseBuffers(dir Direction, portID uint32, buffers []*buffer.Buffer) error
	PortSetIO(dir Direction, portID uint32, id IOType, area any) error
	PortReuseBuffer(portID, bufferID uint32) error

	Process() Status
}

// SplitProcessor is implemented by nodes that handle the input and output
// halves of a cycle separately.
type SplitProcessor interface {
	ProcessInput() Status
	ProcessOutput() Status
}

// Invoker runs fn on the data context at a safe point between cycles and
// returns once fn has run.
type Invoker interface {
	Invoke(ctx context.Context, fn func()) error
}

// InlineInvoker runs fn on the caller. It is used when there is no data
// context yet.
type InlineInvoker struct{}

// Invoke runs fn.
func (InlineInvoker) Invoke(_ context.Context, fn func()) error {
	fn()
	return nil
}
