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

// Mix feeds the input port of a follower node from its links. Each cycle
// the first enabled link, in mix id order, is the only one the follower
// sees. The follower buffer table is the concatenation of
// the link tables; Mix translates ids in both directions.
type Mix struct {
	*node.NodeBase

	follower  node.Node
	portID    uint32
	io        *node.IOBuffers
	links     *idgen.FreeList[*Link]
	owners    []*Link
	active    *Link
	underruns uint64
}

// NewMix creates a mix on an input port of follower and installs the parent
// IO area on that port.
func NewMix(name string, follower node.Node, portID uint32) (*Mix, error) {
	m := &Mix{
		follower: follower,
		portID:   portID,
		io:       node.NewIOBuffers(),
		links:    idgen.NewFreeList[*Link](),
	}
	m.NodeBase = node.NewNodeBase(name, m)
	m.SetMaxPorts(node.MaxPorts, 0)

	err := follower.PortSetIO(node.DirectionInput, portID, node.IOTypeBuffers, m.io)
	if err != nil {
		return nil, fmt.Errorf("mix %s: %w", name, err)
	}

	return m, nil
}

// Follower returns the node and port the mix serves.
func (m *Mix) Follower() (node.Node, uint32) { return m.follower, m.portID }

// ParentIO returns the area shared with the follower port.
func (m *Mix) ParentIO() *node.IOBuffers { return m.io }

// Underruns returns how many cycles found no buffer on any enabled link.
func (m *Mix) Underruns() uint64 { return m.underruns }

// Active returns the link that supplied the buffer the follower holds.
func (m *Mix) Active() *Link { return m.active }

// AddLink attaches a new link. The link enters the table on the data
// context once its port exists.
func (m *Mix) AddLink() (*Link, error) {
	id, err := m.FreePortID(node.DirectionInput)
	if err != nil {
		return nil, fmt.Errorf("mix %s links: %w", m.Name(), err)
	}

	p, err := m.NewPort(node.DirectionInput, id)
	if err != nil {
		return nil, err
	}

	l := &Link{id: id, enabled: true}

	err = m.Invoke(func() {
		l.port = p
		m.links.InsertAt(id, l)
	})
	if err != nil {
		_ = m.NodeBase.RemovePort(node.DirectionInput, id)
		return nil, err
	}

	return l, nil
}

// Link looks a link up by mix id.
func (m *Mix) Link(id uint32) (*Link, bool) {
	return m.links.Lookup(id)
}

// Links returns the links in mix id order.
func (m *Mix) Links() []*Link {
	links := make([]*Link, 0, m.links.Len())
	m.links.Each(func(_ uint32, l *Link) bool {
		links = append(links, l)
		return true
	})

	return links
}

// RemoveLink detaches a link and shrinks the follower table.
func (m *Mix) RemoveLink(id uint32) error {
	l, ok := m.links.Lookup(id)
	if !ok {
		return fmt.Errorf("mix %s link %d: %w", m.Name(), id, result.ErrNotFound)
	}

	err := m.Invoke(func() {
		m.links.Remove(id)
		if m.active == l {
			m.active = nil
		}
	})
	if err != nil {
		return err
	}

	if err := m.NodeBase.RemovePort(node.DirectionInput, id); err != nil {
		return err
	}

	return m.rebuild()
}

// SetLinkEnabled includes or excludes a link from selection.
func (m *Mix) SetLinkEnabled(id uint32, enabled bool) error {
	l, ok := m.links.Lookup(id)
	if !ok {
		return fmt.Errorf("mix %s link %d: %w", m.Name(), id, result.ErrNotFound)
	}

	return m.Invoke(func() { l.enabled = enabled })
}

// AddPort is not supported; links get their ids from AddLink.
func (m *Mix) AddPort(dir node.Direction, portID uint32) error {
	return fmt.Errorf("mix %s add port: %w", m.Name(), result.ErrNotSupported)
}

// RemovePort removes a link.
func (m *Mix) RemovePort(dir node.Direction, portID uint32) error {
	if dir != node.DirectionInput {
		return fmt.Errorf("mix %s %s port: %w", m.Name(), dir, result.ErrInvalidArgument)
	}

	return m.RemoveLink(portID)
}

// PortEnumParams answers for a link with the parameters of the follower
// port.
func (m *Mix) PortEnumParams(
	dir node.Direction,
	portID uint32,
	id param.ID,
	index uint32,
	filter *param.Object,
) (*param.Object, uint32, error) {
	if _, err := m.Port(dir, portID); err != nil {
		return nil, index, err
	}

	switch id {
	case param.IDIO, param.IDList:
		return m.NodeBase.PortEnumParams(dir, portID, id, index, filter)
	default:
		return m.follower.PortEnumParams(node.DirectionInput, m.portID, id, index, filter)
	}
}

// PortFormat sets the format on the follower port when it has none and
// otherwise requires the link format to match it.
func (m *Mix) PortFormat(_ *node.Port, format *param.Object) error {
	current, _, err := m.follower.PortEnumParams(node.DirectionInput, m.portID,
		param.IDFormat, 0, nil)
	if err != nil {
		return m.follower.PortSetParam(node.DirectionInput, m.portID,
			param.IDFormat, 0, format)
	}

	if _, err := param.Filter(current, format); err != nil {
		return fmt.Errorf("mix %s: %w", m.Name(), result.ErrNotSupported)
	}

	return nil
}

// PortBuffers defers to the follower.
func (m *Mix) PortBuffers(*node.Port) []*param.Object {
	var objs []*param.Object

	for index := uint32(0); ; {
		obj, next, err := m.follower.PortEnumParams(node.DirectionInput,
			m.portID, param.IDBuffers, index, nil)
		if err != nil {
			return objs
		}
		objs = append(objs, obj)
		index = next
	}
}

// PortUseBuffers attaches buffers to a link and hands the new combined
// table to the follower.
func (m *Mix) PortUseBuffers(
	dir node.Direction,
	portID uint32,
	buffers []*buffer.Buffer,
) error {
	if _, ok := m.links.Lookup(portID); !ok || dir != node.DirectionInput {
		return fmt.Errorf("mix %s %s link %d: %w",
			m.Name(), dir, portID, result.ErrInvalidArgument)
	}

	total := len(buffers)
	m.links.Each(func(id uint32, l *Link) bool {
		if id != portID {
			total += l.port.NumBuffers()
		}
		return true
	})

	if total > node.MaxBuffers {
		return fmt.Errorf("mix %s: %d buffers: %w", m.Name(), total, result.ErrNoSpace)
	}

	if err := m.NodeBase.PortUseBuffers(dir, portID, buffers); err != nil {
		return err
	}

	return m.rebuild()
}

// rebuild lays the link tables end to end and gives the result to the
// follower. The views share data and metas with the link buffers.
func (m *Mix) rebuild() error {
	var (
		table  []*buffer.Buffer
		owners []*Link
		bases  = map[*Link]uint32{}
	)

	m.links.Each(func(_ uint32, l *Link) bool {
		bases[l] = uint32(len(table))
		for _, b := range l.port.Buffers() {
			table = append(table, &buffer.Buffer{
				ID:    uint32(len(table)),
				Metas: b.Metas,
				Datas: b.Datas,
			})
			owners = append(owners, l)
		}
		return true
	})

	err := m.Invoke(func() {
		for l, base := range bases {
			l.base = base
		}
		m.owners = owners
		m.active = nil
		m.io.Status = node.StatusNeedBuffer
		m.io.BufferID = node.InvalidID
	})
	if err != nil {
		return err
	}

	return m.follower.PortUseBuffers(node.DirectionInput, m.portID, table)
}

// PortReuseBuffer forwards a buffer the follower returned out of band to
// the link that supplied it.
func (m *Mix) PortReuseBuffer(_, bufferID uint32) error {
	if bufferID >= uint32(len(m.owners)) {
		return fmt.Errorf("mix %s buffer %d: %w",
			m.Name(), bufferID, result.ErrInvalidArgument)
	}

	l := m.owners[bufferID]
	if l.onReuse != nil {
		l.onReuse(bufferID - l.base)
	}

	return nil
}

// ProcessInput copies the IO of the first enabled link to the follower. A
// link that has no buffer ready is an underrun; later links are not
// consulted.
func (m *Mix) ProcessInput() node.Status {
	io := m.io
	if io.Status == node.StatusHaveBuffer {
		return node.StatusHaveBuffer
	}

	var chosen *Link
	m.links.Each(func(_ uint32, l *Link) bool {
		if l.enabled && l.IO() != nil {
			chosen = l
			return false
		}
		return true
	})

	io.BufferID = node.InvalidID
	io.Status = node.StatusNeedBuffer

	if chosen == nil {
		return node.StatusNeedBuffer
	}

	m.active = chosen

	lio := chosen.IO()
	if lio.Status != node.StatusHaveBuffer || lio.BufferID >= chosen.numBuffers() {
		m.underruns++
		m.InvokeHook(hooking.HookCtx{
			Domain: m,
			Pos:    HookPosUnderrun,
			Item:   m,
		})

		return node.StatusNeedBuffer
	}

	io.Status = node.StatusHaveBuffer
	io.BufferID = chosen.base + lio.BufferID

	return node.StatusHaveBuffer
}

// ProcessOutput fans the follower verdict back to every link. The active
// link gets the returned buffer. Other links see their pending buffer
// handed back unused.
func (m *Mix) ProcessOutput() node.Status {
	io := m.io
	if io.Status == node.StatusHaveBuffer {
		return node.StatusOK
	}

	status := io.Status
	returned := io.BufferID

	m.links.Each(func(_ uint32, l *Link) bool {
		lio := l.IO()
		if lio == nil {
			return true
		}

		if l == m.active {
			lio.BufferID = node.InvalidID
			if returned < uint32(len(m.owners)) && m.owners[returned] == l {
				lio.BufferID = returned - l.base
			}
		}

		lio.Status = status

		return true
	})

	m.active = nil
	io.BufferID = node.InvalidID

	return status
}

// Process runs the input half, for callers that do not split.
func (m *Mix) Process() node.Status {
	return m.ProcessInput()
}

var (
	_ node.Node           = (*Mix)(nil)
	_ node.SplitProcessor = (*Mix)(nil)
)
