package mix

import (
	"fmt"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/idgen"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

// Tee fans the output port of a follower node out to its links. Each
// buffer goes back to the follower once every link that received it
// released it.
type Tee struct {
	*node.NodeBase

	follower node.Node
	portID   uint32
	io       *node.IOBuffers
	links    *idgen.FreeList[*Link]
	refs     [node.MaxBuffers]uint16
	overruns uint64
}

// NewTee creates a tee on an output port of follower and installs the
// parent IO area on that port.
func NewTee(name string, follower node.Node, portID uint32) (*Tee, error) {
	t := &Tee{
		follower: follower,
		portID:   portID,
		io:       node.NewIOBuffers(),
		links:    idgen.NewFreeList[*Link](),
	}
	t.NodeBase = node.NewNodeBase(name, t)
	t.SetMaxPorts(0, node.MaxPorts)

	err := follower.PortSetIO(node.DirectionOutput, portID, node.IOTypeBuffers, t.io)
	if err != nil {
		return nil, fmt.Errorf("tee %s: %w", name, err)
	}

	return t, nil
}

// Follower returns the node and port the tee serves.
func (t *Tee) Follower() (node.Node, uint32) { return t.follower, t.portID }

// ParentIO returns the area shared with the follower port.
func (t *Tee) ParentIO() *node.IOBuffers { return t.io }

// Overruns returns how many buffers links missed.
func (t *Tee) Overruns() uint64 { return t.overruns }

// AddLink attaches a new link and returns its mix id. The link enters the
// table on the data context once its port exists.
func (t *Tee) AddLink() (*Link, error) {
	id, err := t.FreePortID(node.DirectionOutput)
	if err != nil {
		return nil, fmt.Errorf("tee %s links: %w", t.Name(), err)
	}

	p, err := t.NewPort(node.DirectionOutput, id)
	if err != nil {
		return nil, err
	}

	l := &Link{id: id, enabled: true}

	err = t.Invoke(func() {
		l.port = p
		t.links.InsertAt(id, l)
	})
	if err != nil {
		_ = t.NodeBase.RemovePort(node.DirectionOutput, id)
		return nil, err
	}

	return l, nil
}

// Link looks a link up by mix id.
func (t *Tee) Link(id uint32) (*Link, bool) {
	return t.links.Lookup(id)
}

// Links returns the links in mix id order.
func (t *Tee) Links() []*Link {
	links := make([]*Link, 0, t.links.Len())
	t.links.Each(func(_ uint32, l *Link) bool {
		links = append(links, l)
		return true
	})

	return links
}

// RemoveLink detaches a link. Buffers still handed to it are released.
func (t *Tee) RemoveLink(id uint32) error {
	l, ok := t.links.Lookup(id)
	if !ok {
		return fmt.Errorf("tee %s link %d: %w", t.Name(), id, result.ErrNotFound)
	}

	err := t.Invoke(func() {
		t.dropLink(l)
		t.links.Remove(id)
	})
	if err != nil {
		return err
	}

	return t.NodeBase.RemovePort(node.DirectionOutput, id)
}

// SetLinkEnabled includes or excludes a link from the broadcast. Disabling
// a link releases the buffers it holds.
func (t *Tee) SetLinkEnabled(id uint32, enabled bool) error {
	l, ok := t.links.Lookup(id)
	if !ok {
		return fmt.Errorf("tee %s link %d: %w", t.Name(), id, result.ErrNotFound)
	}

	return t.Invoke(func() {
		l.enabled = enabled
		if !enabled {
			t.dropLink(l)
		}
	})
}

func (t *Tee) dropLink(l *Link) {
	if io := l.IO(); io != nil {
		io.Status = node.StatusNeedBuffer
		io.BufferID = node.InvalidID
	}

	for id := range l.held {
		for l.held[id] > 0 {
			t.releaseFrom(l, uint32(id))
		}
	}
}

// AddPort is not supported; links get their ids from AddLink.
func (t *Tee) AddPort(dir node.Direction, portID uint32) error {
	return fmt.Errorf("tee %s add port: %w", t.Name(), result.ErrNotSupported)
}

// RemovePort removes a link.
func (t *Tee) RemovePort(dir node.Direction, portID uint32) error {
	if dir != node.DirectionOutput {
		return fmt.Errorf("tee %s %s port: %w", t.Name(), dir, result.ErrInvalidArgument)
	}

	return t.RemoveLink(portID)
}

// PortEnumParams answers for a link with the parameters of the follower
// port. IO and the list of ids are the link's own.
func (t *Tee) PortEnumParams(
	dir node.Direction,
	portID uint32,
	id param.ID,
	index uint32,
	filter *param.Object,
) (*param.Object, uint32, error) {
	if _, err := t.Port(dir, portID); err != nil {
		return nil, index, err
	}

	switch id {
	case param.IDIO, param.IDList:
		return t.NodeBase.PortEnumParams(dir, portID, id, index, filter)
	default:
		return t.follower.PortEnumParams(node.DirectionOutput, t.portID, id, index, filter)
	}
}

// PortFormat sets the format on the follower port when it has none and
// otherwise requires the link format to match it.
func (t *Tee) PortFormat(_ *node.Port, format *param.Object) error {
	current, _, err := t.follower.PortEnumParams(node.DirectionOutput, t.portID,
		param.IDFormat, 0, nil)
	if err != nil {
		return t.follower.PortSetParam(node.DirectionOutput, t.portID,
			param.IDFormat, 0, format)
	}

	if _, err := param.Filter(current, format); err != nil {
		return fmt.Errorf("tee %s: %w", t.Name(), result.ErrNotSupported)
	}

	return nil
}

// PortBuffers defers to the follower.
func (t *Tee) PortBuffers(*node.Port) []*param.Object {
	var objs []*param.Object

	for index := uint32(0); ; {
		obj, next, err := t.follower.PortEnumParams(node.DirectionOutput,
			t.portID, param.IDBuffers, index, nil)
		if err != nil {
			return objs
		}
		objs = append(objs, obj)
		index = next
	}
}

// PortUseBuffers attaches the follower buffers to a link.
func (t *Tee) PortUseBuffers(
	dir node.Direction,
	portID uint32,
	buffers []*buffer.Buffer,
) error {
	l, ok := t.links.Lookup(portID)
	if !ok || dir != node.DirectionOutput {
		return fmt.Errorf("tee %s %s link %d: %w",
			t.Name(), dir, portID, result.ErrInvalidArgument)
	}

	if err := t.Invoke(func() { t.dropLink(l) }); err != nil {
		return err
	}

	return t.NodeBase.PortUseBuffers(dir, portID, buffers)
}

// PortReuseBuffer takes back a buffer a link consumer returned out of band.
func (t *Tee) PortReuseBuffer(portID, bufferID uint32) error {
	l, ok := t.links.Lookup(portID)
	if !ok || bufferID >= node.MaxBuffers {
		return fmt.Errorf("tee %s link %d buffer %d: %w",
			t.Name(), portID, bufferID, result.ErrInvalidArgument)
	}

	if l.held[bufferID] == 0 {
		return nil
	}

	t.releaseFrom(l, bufferID)

	return nil
}

func (t *Tee) releaseFrom(l *Link, id uint32) {
	l.held[id]--

	if t.refs[id] == 0 {
		return
	}

	t.refs[id]--
	if t.refs[id] == 0 {
		_ = t.follower.PortReuseBuffer(t.portID, id)
	}
}

// ProcessInput collects the buffers links handed back and tells the
// follower whether more data is wanted.
func (t *Tee) ProcessInput() node.Status {
	need := false

	t.links.Each(func(_ uint32, l *Link) bool {
		io := l.IO()
		if io == nil || io.Status == node.StatusHaveBuffer {
			return true
		}

		if io.BufferID < node.MaxBuffers && l.held[io.BufferID] > 0 {
			t.releaseFrom(l, io.BufferID)
		}
		io.BufferID = node.InvalidID

		if l.enabled && io.Status.Has(node.StatusNeedBuffer) {
			need = true
		}

		return true
	})

	if need && t.io.Status != node.StatusHaveBuffer {
		t.io.Status = node.StatusNeedBuffer
		return node.StatusNeedBuffer
	}

	return node.StatusOK
}

// ProcessOutput broadcasts the buffer the follower produced to every
// enabled link.
func (t *Tee) ProcessOutput() node.Status {
	io := t.io
	if io.Status != node.StatusHaveBuffer {
		return node.StatusOK
	}

	id := io.BufferID
	if id >= node.MaxBuffers {
		io.Status = node.StatusFromErr(result.ErrInvalidArgument)
		return io.Status
	}

	var sent uint16
	t.links.Each(func(_ uint32, l *Link) bool {
		lio := l.IO()
		if !l.enabled || lio == nil || id >= l.numBuffers() {
			return true
		}

		if lio.Status == node.StatusHaveBuffer && lio.BufferID < node.MaxBuffers &&
			l.held[lio.BufferID] > 0 {
			t.overrun(l)
			t.releaseFrom(l, lio.BufferID)
		}

		lio.Status = node.StatusHaveBuffer
		lio.BufferID = id
		l.held[id]++
		sent++

		return true
	})

	if sent == 0 {
		io.Status = node.StatusNeedBuffer
		return node.StatusNeedBuffer
	}

	t.refs[id] += sent
	io.Status = node.StatusNeedBuffer
	io.BufferID = node.InvalidID

	return node.StatusHaveBuffer
}

func (t *Tee) overrun(l *Link) {
	t.overruns++

	t.InvokeHook(hooking.HookCtx{
		Domain: t,
		Pos:    HookPosOverrun,
		Item:   l,
	})
}

// Process runs the output half, for callers that do not split.
func (t *Tee) Process() node.Status {
	return t.ProcessOutput()
}

var (
	_ node.Node           = (*Tee)(nil)
	_ node.SplitProcessor = (*Tee)(nil)
)
