package node

import (
	"fmt"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

// PortState is the negotiation state of a port.
type PortState int

// Port states.
const (
	PortStateInit PortState = iota
	PortStateConfigure
	PortStateReady
	PortStatePaused
)

func (s PortState) String() string {
	switch s {
	case PortStateInit:
		return "init"
	case PortStateConfigure:
		return "configure"
	case PortStateReady:
		return "ready"
	case PortStatePaused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// HookPosPortStateChanged fires after a port changed state. Detail is a
	// StateChange.
	HookPosPortStateChanged = &hooking.HookPos{Name: "Port State Changed"}

	// HookPosPortBuffersChanged fires after the buffer table of a port was
	// replaced. Detail is the new table length.
	HookPosPortBuffersChanged = &hooking.HookPos{Name: "Port Buffers Changed"}
)

// StateChange is the detail of HookPosPortStateChanged.
type StateChange struct {
	From, To PortState
}

// Port is one connection point of a node. Structural changes happen on the
// control context. Queue operations happen on the data context.
type Port struct {
	*hooking.HookableBase

	direction Direction
	id        uint32
	state     PortState

	formats []*param.Object
	metas   []param.MetaInfo
	format  *param.Object

	pendingSeq    int
	pendingFormat *param.Object

	buffers    []*buffer.Buffer
	queue      []uint32
	queued     []bool
	checkedOut []bool

	io      *IOBuffers
	ioRange *IORange

	// Data is free for the owning node.
	Data any
}

// NewPort creates a port in the INIT state.
func NewPort(dir Direction, id uint32) *Port {
	return &Port{
		HookableBase: hooking.NewHookableBase(),
		direction:    dir,
		id:           id,
		pendingSeq:   -1,
	}
}

// Direction returns the port direction.
func (p *Port) Direction() Direction { return p.direction }

// ID returns the port id.
func (p *Port) ID() uint32 { return p.id }

// State returns the current state.
func (p *Port) State() PortState { return p.state }

// Format returns the negotiated format, nil if none.
func (p *Port) Format() *param.Object { return p.format }

// Formats returns the formats the port can enumerate.
func (p *Port) Formats() []*param.Object { return p.formats }

// SetFormats replaces the list of formats the port can enumerate.
func (p *Port) SetFormats(formats ...*param.Object) { p.formats = formats }

// Metas returns the metadata the port asks buffers to carry.
func (p *Port) Metas() []param.MetaInfo { return p.metas }

// SetMetas replaces the metadata requirements.
func (p *Port) SetMetas(metas ...param.MetaInfo) { p.metas = metas }

// IO returns the buffers IO area, nil if not set.
func (p *Port) IO() *IOBuffers { return p.io }

// Range returns the range IO area, nil if not set.
func (p *Port) Range() *IORange { return p.ioRange }

// Buffers returns the attached buffers.
func (p *Port) Buffers() []*buffer.Buffer { return p.buffers }

// NumBuffers returns the size of the buffer table.
func (p *Port) NumBuffers() int { return len(p.buffers) }

// Buffer returns the attached buffer with the given id.
func (p *Port) Buffer(id uint32) (*buffer.Buffer, bool) {
	if id >= uint32(len(p.buffers)) {
		return nil, false
	}

	return p.buffers[id], true
}

func (p *Port) setState(s PortState) {
	if p.state == s {
		return
	}

	from := p.state
	p.state = s

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosPortStateChanged,
		Item:   p,
		Detail: StateChange{From: from, To: s},
	})
}

// Attach moves a new port to CONFIGURE.
func (p *Port) Attach() {
	if p.state == PortStateInit {
		p.setState(PortStateConfigure)
	}
}

// SetFormat fixes the format. A nil format releases the buffers and returns
// to CONFIGURE from any state.
func (p *Port) SetFormat(format *param.Object) error {
	if format == nil {
		p.ClearBuffers()
		p.format = nil
		p.pendingFormat = nil
		p.pendingSeq = -1
		p.setState(PortStateConfigure)

		return nil
	}

	if p.state == PortStateInit {
		return fmt.Errorf("port %s %d not attached: %w",
			p.direction, p.id, result.ErrIO)
	}

	if p.state == PortStatePaused {
		p.ClearBuffers()
	}

	p.format = format
	p.pendingFormat = nil
	p.pendingSeq = -1
	p.setState(PortStateReady)

	return nil
}

// SetPendingFormat records a format whose acceptance completes later. The
// port stays in CONFIGURE until CompleteFormat.
func (p *Port) SetPendingFormat(seq int, format *param.Object) {
	p.ClearBuffers()
	p.format = nil
	p.pendingSeq = seq
	p.pendingFormat = format
	p.setState(PortStateConfigure)
}

// CompleteFormat finishes a pending format change. It reports whether seq
// was pending on this port.
func (p *Port) CompleteFormat(seq int, err error) bool {
	if p.pendingSeq != seq || p.pendingFormat == nil {
		return false
	}

	format := p.pendingFormat
	p.pendingFormat = nil
	p.pendingSeq = -1

	if err == nil {
		_ = p.SetFormat(format)
	}

	return true
}

// ValidateBuffers checks a buffer table against the port without changing
// anything.
func (p *Port) ValidateBuffers(buffers []*buffer.Buffer) error {
	if len(buffers) == 0 {
		return nil
	}

	if p.format == nil {
		return fmt.Errorf("port %s %d: %w", p.direction, p.id, result.ErrNoFormat)
	}

	if len(buffers) > MaxBuffers {
		return fmt.Errorf("port %s %d: %d buffers: %w",
			p.direction, p.id, len(buffers), result.ErrNoSpace)
	}

	for i, b := range buffers {
		if b == nil || b.ID != uint32(i) {
			return fmt.Errorf("port %s %d: buffer slot %d: %w",
				p.direction, p.id, i, result.ErrInvalidArgument)
		}
	}

	return nil
}

// SetBuffers replaces the buffer table. Output buffers start queued in table
// order. Input buffers start free. An empty table returns to READY.
func (p *Port) SetBuffers(buffers []*buffer.Buffer) error {
	if err := p.ValidateBuffers(buffers); err != nil {
		return err
	}

	p.ClearBuffers()

	if len(buffers) == 0 {
		if p.state == PortStatePaused {
			p.setState(PortStateReady)
		}
		return nil
	}

	p.buffers = append(make([]*buffer.Buffer, 0, len(buffers)), buffers...)
	p.queued = make([]bool, len(buffers))
	p.checkedOut = make([]bool, len(buffers))
	p.queue = make([]uint32, 0, len(buffers))

	if p.direction == DirectionOutput {
		for i := range buffers {
			p.queue = append(p.queue, uint32(i))
			p.queued[i] = true
		}
	}

	p.InvokeHook(hooking.HookCtx{
		Domain: p,
		Pos:    HookPosPortBuffersChanged,
		Item:   p,
		Detail: len(buffers),
	})

	p.setState(PortStatePaused)

	return nil
}

// ClearBuffers drops the buffer table and the queues.
func (p *Port) ClearBuffers() {
	hadBuffers := len(p.buffers) > 0

	p.buffers = nil
	p.queue = nil
	p.queued = nil
	p.checkedOut = nil

	if hadBuffers {
		p.InvokeHook(hooking.HookCtx{
			Domain: p,
			Pos:    HookPosPortBuffersChanged,
			Item:   p,
			Detail: 0,
		})
	}
}

// Clear tears the port down before destruction.
func (p *Port) Clear() {
	p.ClearBuffers()
	p.format = nil
	p.pendingFormat = nil
	p.pendingSeq = -1
	p.io = nil
	p.ioRange = nil
}

// SetIO installs or removes an IO area.
func (p *Port) SetIO(id IOType, area any) error {
	isNil, err := checkIOArea(id, area)
	if err != nil {
		return err
	}

	switch id {
	case IOTypeBuffers:
		if isNil {
			p.io = nil
		} else {
			p.io = area.(*IOBuffers)
		}
	case IOTypeRange:
		if isNil {
			p.ioRange = nil
		} else {
			p.ioRange = area.(*IORange)
		}
	default:
		return fmt.Errorf("port io %s: %w", id, result.ErrNotFound)
	}

	return nil
}

// Dequeue takes the oldest free output buffer.
func (p *Port) Dequeue() (*buffer.Buffer, bool) {
	if len(p.queue) == 0 {
		return nil, false
	}

	id := p.queue[0]
	p.queue = p.queue[1:]
	p.queued[id] = false

	return p.buffers[id], true
}

// ReuseBuffer puts an output buffer back at the tail of the free queue.
func (p *Port) ReuseBuffer(id uint32) error {
	if id >= uint32(len(p.buffers)) {
		return fmt.Errorf("port %s %d: reuse buffer %d: %w",
			p.direction, p.id, id, result.ErrInvalidArgument)
	}

	if p.queued[id] {
		return nil
	}

	p.queued[id] = true
	p.queue = append(p.queue, id)

	return nil
}

// Queued returns the ids of the free output buffers, oldest first.
func (p *Port) Queued() []uint32 {
	return append([]uint32(nil), p.queue...)
}

// CheckOut marks an input buffer as being read by the node.
func (p *Port) CheckOut(id uint32) (*buffer.Buffer, error) {
	if id >= uint32(len(p.buffers)) {
		return nil, fmt.Errorf("port %s %d: buffer %d: %w",
			p.direction, p.id, id, result.ErrInvalidArgument)
	}

	p.checkedOut[id] = true

	return p.buffers[id], nil
}

// Release marks an input buffer as no longer read by the node.
func (p *Port) Release(id uint32) {
	if id < uint32(len(p.checkedOut)) {
		p.checkedOut[id] = false
	}
}

// CheckedOut reports whether the input buffer is being read.
func (p *Port) CheckedOut(id uint32) bool {
	return id < uint32(len(p.checkedOut)) && p.checkedOut[id]
}

func (p *Port) String() string {
	return fmt.Sprintf("%s port %d (%s)", p.direction, p.id, p.state)
}
