package node

import (
	"context"
	"fmt"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/idgen"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

var (
	// HookPosPortAdded fires after a port was added. Item is the port.
	HookPosPortAdded = &hooking.HookPos{Name: "Port Added"}

	// HookPosPortRemoved fires before a port is torn down.
	HookPosPortRemoved = &hooking.HookPos{Name: "Port Removed"}

	// HookPosCommand fires after a command was applied. Item is the Command.
	HookPosCommand = &hooking.HookPos{Name: "Command"}
)

// PortHandler lets a concrete node take part in port negotiation.
type PortHandler interface {
	// PortFormat validates a format about to be set. An error from
	// result.Async leaves the port in CONFIGURE until CompletePortFormat.
	PortFormat(port *Port, format *param.Object) error

	// PortBuffers lists buffer requirements of a port that has a format.
	PortBuffers(port *Port) []*param.Object
}

// NodeBase implements the port-level operations of Node. Concrete nodes
// embed it, provide a PortHandler and implement Process.
type NodeBase struct {
	*hooking.HookableBase

	name      string
	handler   PortHandler
	invoker   Invoker
	callbacks Callbacks
	maxPorts  [2]uint32
	ports     [2][]*Port
	numPorts  [2]int
	paramIDs  []param.ID
	started   bool
	seq       idgen.Sequence

	clock    *IOClock
	position *IOPosition
}

// NewNodeBase creates a NodeBase that calls back into handler.
func NewNodeBase(name string, handler PortHandler) *NodeBase {
	n := &NodeBase{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		handler:      handler,
		invoker:      InlineInvoker{},
		callbacks:    CallbackFuncs{},
		maxPorts:     [2]uint32{MaxPorts, MaxPorts},
	}

	n.ports[DirectionInput] = make([]*Port, MaxPorts)
	n.ports[DirectionOutput] = make([]*Port, MaxPorts)

	return n
}

// NextSeq returns a sequence number for an operation the node completes
// later with result.Async.
func (n *NodeBase) NextSeq() int {
	return n.seq.Next()
}

// Name returns the node name.
func (n *NodeBase) Name() string {
	return n.name
}

// SetMaxPorts bounds the port tables. It must be called before ports are
// added.
func (n *NodeBase) SetMaxPorts(inputs, outputs uint32) {
	n.maxPorts = [2]uint32{min(inputs, MaxPorts), min(outputs, MaxPorts)}
}

// SetInvoker sets how buffer table swaps reach the data context.
func (n *NodeBase) SetInvoker(inv Invoker) {
	if inv == nil {
		inv = InlineInvoker{}
	}

	n.invoker = inv
}

// Invoke runs fn on the data context.
func (n *NodeBase) Invoke(fn func()) error {
	return n.invoker.Invoke(context.Background(), fn)
}

// SetParamIDs sets the node-level parameter ids listed by IDList.
func (n *NodeBase) SetParamIDs(ids ...param.ID) {
	n.paramIDs = ids
}

// Info describes the node.
func (n *NodeBase) Info() Info {
	return Info{
		Name:           n.name,
		MaxInputPorts:  n.maxPorts[DirectionInput],
		MaxOutputPorts: n.maxPorts[DirectionOutput],
	}
}

// SetCallbacks installs the callbacks. Nil installs no-op callbacks.
func (n *NodeBase) SetCallbacks(cb Callbacks) {
	if cb == nil {
		cb = CallbackFuncs{}
	}

	n.callbacks = cb
}

// Callbacks returns the installed callbacks.
func (n *NodeBase) Callbacks() Callbacks {
	return n.callbacks
}

// EnumParams lists the node-level parameter ids. Nodes with properties
// extend it.
func (n *NodeBase) EnumParams(
	id param.ID,
	index uint32,
	filter *param.Object,
) (*param.Object, uint32, error) {
	switch id {
	case param.IDList:
		objs := make([]*param.Object, 0, len(n.paramIDs))
		for _, pid := range n.paramIDs {
			objs = append(objs, param.ListObject(pid))
		}
		return param.Enumerate(objs, index, filter)
	default:
		return nil, index, fmt.Errorf("node %s param %s: %w",
			n.name, id, result.ErrNotFound)
	}
}

// SetParam rejects every id. Nodes with properties override it.
func (n *NodeBase) SetParam(id param.ID, _ uint32, _ *param.Object) error {
	return fmt.Errorf("node %s param %s: %w", n.name, id, result.ErrNotFound)
}

// SetIO installs the node-level clock and position areas.
func (n *NodeBase) SetIO(id IOType, area any) error {
	isNil, err := checkIOArea(id, area)
	if err != nil {
		return err
	}

	switch id {
	case IOTypeClock:
		n.clock = nil
		if !isNil {
			n.clock = area.(*IOClock)
		}
	case IOTypePosition:
		n.position = nil
		if !isNil {
			n.position = area.(*IOPosition)
		}
	default:
		return fmt.Errorf("node %s io %s: %w", n.name, id, result.ErrNotFound)
	}

	return nil
}

// Clock returns the clock area, nil if not set.
func (n *NodeBase) Clock() *IOClock { return n.clock }

// Position returns the position area, nil if not set.
func (n *NodeBase) Position() *IOPosition { return n.position }

// SendCommand applies a run state change. Suspend drops every negotiated
// format.
func (n *NodeBase) SendCommand(cmd Command) error {
	switch cmd {
	case CommandStart:
		n.started = true
	case CommandPause:
		n.started = false
	case CommandSuspend:
		n.started = false
		err := n.invoker.Invoke(context.Background(), func() {
			n.EachPort(func(p *Port) {
				_ = p.SetFormat(nil)
			})
		})
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("node %s command %s: %w",
			n.name, cmd, result.ErrNotSupported)
	}

	n.InvokeHook(hooking.HookCtx{
		Domain: n,
		Pos:    HookPosCommand,
		Item:   cmd,
	})

	return nil
}

// Started reports whether the node was started.
func (n *NodeBase) Started() bool {
	return n.started
}

// AddPort creates a port. The id must be below the port limit.
func (n *NodeBase) AddPort(dir Direction, portID uint32) error {
	_, err := n.NewPort(dir, portID)
	return err
}

// NewPort creates a port and returns it so the node can describe it.
func (n *NodeBase) NewPort(dir Direction, portID uint32) (*Port, error) {
	if !dir.valid() || portID >= n.maxPorts[dir] {
		return nil, fmt.Errorf("node %s add %s port %d: %w",
			n.name, dir, portID, result.ErrInvalidArgument)
	}

	if n.ports[dir][portID] != nil {
		return nil, fmt.Errorf("node %s add %s port %d: %w",
			n.name, dir, portID, result.ErrBusy)
	}

	p := NewPort(dir, portID)
	p.Attach()

	err := n.invoker.Invoke(context.Background(), func() {
		n.ports[dir][portID] = p
		n.numPorts[dir]++
	})
	if err != nil {
		return nil, err
	}

	n.InvokeHook(hooking.HookCtx{
		Domain: n,
		Pos:    HookPosPortAdded,
		Item:   p,
	})

	n.callbacks.Event(Event{Type: EventPortInfoChanged, Direction: dir, PortID: portID})

	return p, nil
}

// FreePortID returns the lowest unused port id, ErrNoSpace if the table is
// full.
func (n *NodeBase) FreePortID(dir Direction) (uint32, error) {
	if !dir.valid() {
		return 0, fmt.Errorf("direction %d: %w", dir, result.ErrInvalidArgument)
	}

	for id := uint32(0); id < n.maxPorts[dir]; id++ {
		if n.ports[dir][id] == nil {
			return id, nil
		}
	}

	return 0, fmt.Errorf("node %s %s ports: %w", n.name, dir, result.ErrNoSpace)
}

// RemovePort tears a port down and removes it.
func (n *NodeBase) RemovePort(dir Direction, portID uint32) error {
	p, err := n.Port(dir, portID)
	if err != nil {
		return err
	}

	n.InvokeHook(hooking.HookCtx{
		Domain: n,
		Pos:    HookPosPortRemoved,
		Item:   p,
	})

	err = n.invoker.Invoke(context.Background(), func() {
		p.Clear()
		n.ports[dir][portID] = nil
		n.numPorts[dir]--
	})
	if err != nil {
		return err
	}

	n.callbacks.Event(Event{Type: EventPortInfoChanged, Direction: dir, PortID: portID})

	return nil
}

// Port looks a port up.
func (n *NodeBase) Port(dir Direction, portID uint32) (*Port, error) {
	if !dir.valid() || portID >= uint32(len(n.ports[dir])) ||
		n.ports[dir][portID] == nil {
		return nil, fmt.Errorf("node %s %s port %d: %w",
			n.name, dir, portID, result.ErrInvalidArgument)
	}

	return n.ports[dir][portID], nil
}

// NumPorts returns the number of ports in a direction.
func (n *NodeBase) NumPorts(dir Direction) int {
	if !dir.valid() {
		return 0
	}

	return n.numPorts[dir]
}

// Ports returns the ports of a direction in id order.
func (n *NodeBase) Ports(dir Direction) []*Port {
	if !dir.valid() {
		return nil
	}

	ports := make([]*Port, 0, n.numPorts[dir])
	for _, p := range n.ports[dir] {
		if p != nil {
			ports = append(ports, p)
		}
	}

	return ports
}

// EachPort visits inputs then outputs without allocating.
func (n *NodeBase) EachPort(fn func(p *Port)) {
	for _, dir := range []Direction{DirectionInput, DirectionOutput} {
		for _, p := range n.ports[dir] {
			if p != nil {
				fn(p)
			}
		}
	}
}

// PortEnumParams enumerates the negotiation objects of a port.
func (n *NodeBase) PortEnumParams(
	dir Direction,
	portID uint32,
	id param.ID,
	index uint32,
	filter *param.Object,
) (*param.Object, uint32, error) {
	p, err := n.Port(dir, portID)
	if err != nil {
		return nil, index, err
	}

	objs, err := n.portParams(p, id)
	if err != nil {
		return nil, index, err
	}

	return param.Enumerate(objs, index, filter)
}

func (n *NodeBase) portParams(p *Port, id param.ID) ([]*param.Object, error) {
	switch id {
	case param.IDList:
		return []*param.Object{
			param.ListObject(param.IDEnumFormat),
			param.ListObject(param.IDFormat),
			param.ListObject(param.IDBuffers),
			param.ListObject(param.IDMeta),
			param.ListObject(param.IDIO),
		}, nil
	case param.IDEnumFormat:
		if p.format != nil {
			return []*param.Object{p.format}, nil
		}
		return p.formats, nil
	case param.IDFormat:
		if p.format == nil {
			return nil, fmt.Errorf("%s: %w", p, result.ErrNoFormat)
		}
		return []*param.Object{p.format}, nil
	case param.IDBuffers:
		if p.format == nil {
			return nil, fmt.Errorf("%s: %w", p, result.ErrNoFormat)
		}
		if n.handler == nil {
			return nil, nil
		}
		return n.handler.PortBuffers(p), nil
	case param.IDMeta:
		if p.format == nil {
			return nil, fmt.Errorf("%s: %w", p, result.ErrNoFormat)
		}
		objs := make([]*param.Object, 0, len(p.metas))
		for _, m := range p.metas {
			objs = append(objs, m.Object())
		}
		return objs, nil
	case param.IDIO:
		return []*param.Object{
			param.IOInfo{ID: uint32(IOTypeBuffers), Size: 8}.Object(),
			param.IOInfo{ID: uint32(IOTypeRange), Size: 16}.Object(),
		}, nil
	default:
		return nil, fmt.Errorf("%s param %s: %w", p, id, result.ErrNotFound)
	}
}

// PortSetParam sets the format of a port. A nil format clears it.
func (n *NodeBase) PortSetParam(
	dir Direction,
	portID uint32,
	id param.ID,
	_ uint32,
	obj *param.Object,
) error {
	p, err := n.Port(dir, portID)
	if err != nil {
		return err
	}

	if id != param.IDFormat {
		return fmt.Errorf("%s set param %s: %w", p, id, result.ErrNotFound)
	}

	if obj == nil {
		return n.invoker.Invoke(context.Background(), func() {
			_ = p.SetFormat(nil)
		})
	}

	if !param.IsFixated(obj) {
		return fmt.Errorf("%s format not fixated: %w", p, result.ErrInvalidArgument)
	}

	if n.handler != nil {
		err = n.handler.PortFormat(p, obj)
		if seq, ok := result.IsPending(err); ok {
			ierr := n.invoker.Invoke(context.Background(), func() {
				p.SetPendingFormat(seq, obj)
			})
			if ierr != nil {
				return ierr
			}
			return err
		}
		if err != nil {
			return err
		}
	}

	var setErr error
	err = n.invoker.Invoke(context.Background(), func() {
		setErr = p.SetFormat(obj)
	})
	if err != nil {
		return err
	}

	return setErr
}

// CompletePortFormat finishes an asynchronous format change and reports it
// through Done.
func (n *NodeBase) CompletePortFormat(dir Direction, portID uint32, seq int, err error) error {
	p, perr := n.Port(dir, portID)
	if perr != nil {
		return perr
	}

	var found bool
	ierr := n.invoker.Invoke(context.Background(), func() {
		found = p.CompleteFormat(seq, err)
	})
	if ierr != nil {
		return ierr
	}

	if !found {
		return fmt.Errorf("%s seq %d: %w", p, seq, result.ErrNotFound)
	}

	n.callbacks.Done(seq, err)

	return nil
}

// PortUseBuffers attaches a buffer table. The swap happens on the data
// context.
func (n *NodeBase) PortUseBuffers(dir Direction, portID uint32, buffers []*buffer.Buffer) error {
	p, err := n.Port(dir, portID)
	if err != nil {
		return err
	}

	if err := p.ValidateBuffers(buffers); err != nil {
		return err
	}

	var setErr error
	err = n.invoker.Invoke(context.Background(), func() {
		setErr = p.SetBuffers(buffers)
	})
	if err != nil {
		return err
	}

	return setErr
}

// PortSetIO installs an IO area on a port.
func (n *NodeBase) PortSetIO(dir Direction, portID uint32, id IOType, area any) error {
	p, err := n.Port(dir, portID)
	if err != nil {
		return err
	}

	if _, err := checkIOArea(id, area); err != nil {
		return err
	}

	var setErr error
	err = n.invoker.Invoke(context.Background(), func() {
		setErr = p.SetIO(id, area)
	})
	if err != nil {
		return err
	}

	return setErr
}

// PortReuseBuffer requeues a buffer on an output port.
func (n *NodeBase) PortReuseBuffer(portID, bufferID uint32) error {
	p, err := n.Port(DirectionOutput, portID)
	if err != nil {
		return err
	}

	return p.ReuseBuffer(bufferID)
}

// InputBuffer reads the IO area of an input port. It returns the buffer the
// peer handed over, checked out, with StatusHaveBuffer. StatusOK means there
// is nothing to read. A negative status means the IO area is missing or
// names an unknown buffer; the error is also written back to the area.
func (n *NodeBase) InputBuffer(p *Port) (*buffer.Buffer, Status) {
	io := p.io
	if io == nil {
		return nil, StatusFromErr(result.ErrIO)
	}

	if io.Status != StatusHaveBuffer {
		return nil, StatusOK
	}

	b, err := p.CheckOut(io.BufferID)
	if err != nil {
		io.Status = StatusFromErr(err)
		return nil, io.Status
	}

	return b, StatusHaveBuffer
}

// ReleaseInput hands the checked out buffer back to the peer through the IO
// area and sets the status the port reports, StatusNeedBuffer to ask for
// more or StatusOK.
func (n *NodeBase) ReleaseInput(p *Port, status Status) {
	io := p.io
	if io == nil {
		return
	}

	if p.CheckedOut(io.BufferID) {
		p.Release(io.BufferID)
	} else {
		io.BufferID = InvalidID
	}

	io.Status = status
}

// HoldInput keeps the checked out buffer and tells the peer it will come back
// through ReuseBuffer.
func (n *NodeBase) HoldInput(p *Port, status Status) uint32 {
	io := p.io
	if io == nil {
		return InvalidID
	}

	id := io.BufferID
	io.BufferID = InvalidID
	io.Status = status

	return id
}

// ReturnInput releases a held input buffer and notifies the peer.
func (n *NodeBase) ReturnInput(p *Port, bufferID uint32) {
	p.Release(bufferID)
	n.callbacks.ReuseBuffer(p.id, bufferID)
}

// OutputWanted reports whether the peer consumed the last output buffer.
func (n *NodeBase) OutputWanted(p *Port) bool {
	return p.io != nil && p.io.Status != StatusHaveBuffer
}

// DequeueOutput recycles the buffer the peer handed back through the IO
// area and takes the oldest free buffer.
func (n *NodeBase) DequeueOutput(p *Port) (*buffer.Buffer, bool) {
	io := p.io
	if io != nil && io.Status != StatusHaveBuffer && io.BufferID != InvalidID {
		_ = p.ReuseBuffer(io.BufferID)
		io.BufferID = InvalidID
	}

	return p.Dequeue()
}

// QueueOutput publishes a filled buffer on an output port.
func (n *NodeBase) QueueOutput(p *Port, b *buffer.Buffer) {
	if p.io == nil {
		_ = p.ReuseBuffer(b.ID)
		return
	}

	p.io.BufferID = b.ID
	p.io.Status = StatusHaveBuffer
}
