package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/mix"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

// Endpoint names a port of a graph node.
type Endpoint struct {
	Node string
	Port uint32
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Node, e.Port)
}

// Link connects an output port to an input port. Both sides share one IO
// area.
type Link struct {
	id      uint32
	out, in Endpoint
	tee     *mix.Tee
	outLink *mix.Link
	mix     *mix.Mix
	inLink  *mix.Link
	io      *node.IOBuffers
	format  *param.Object
	enabled bool
}

// ID returns the link id.
func (l *Link) ID() uint32 { return l.id }

// Output returns the producing end.
func (l *Link) Output() Endpoint { return l.out }

// Input returns the consuming end.
func (l *Link) Input() Endpoint { return l.in }

// Format returns the negotiated format.
func (l *Link) Format() *param.Object { return l.format }

// Enabled reports whether buffers flow over the link.
func (l *Link) Enabled() bool { return l.enabled }

// IO returns the area shared by both ends.
func (l *Link) IO() *node.IOBuffers { return l.io }

func (l *Link) String() string {
	return fmt.Sprintf("link %d %s -> %s", l.id, l.out, l.in)
}

// Links returns the links in id order.
func (g *Graph) Links() []*Link {
	g.lock.Lock()
	defer g.lock.Unlock()

	var links []*Link
	g.links.Each(func(_ uint32, l *Link) bool {
		links = append(links, l)
		return true
	})

	return links
}

// LinkByID looks a link up.
func (g *Graph) LinkByID(id uint32) (*Link, bool) {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.links.Lookup(id)
}

// Link connects out to in. The format is the first output format the input
// accepts, fixated. The buffers are allocated once per output port from the
// graph pool and shared by every link of that port. A link that would close
// a cycle fails with result.ErrBusy.
func (g *Graph) Link(ctx context.Context, out, in Endpoint) (*Link, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	src, ok := g.nodes[out.Node]
	if !ok {
		return nil, fmt.Errorf("link output %s: %w", out, result.ErrNotFound)
	}

	dst, ok := g.nodes[in.Node]
	if !ok {
		return nil, fmt.Errorf("link input %s: %w", in, result.ErrNotFound)
	}

	l := &Link{out: out, in: in, io: node.NewIOBuffers(), enabled: true}
	l.id = g.links.Insert(l)

	if err := g.sched.rebuild(); err != nil {
		g.links.Remove(l.id)
		return nil, fmt.Errorf("%s: %w", l, err)
	}

	if err := g.setupLink(ctx, src, dst, l); err != nil {
		g.teardownLink(l)
		g.links.Remove(l.id)
		_ = g.sched.rebuild()

		return nil, fmt.Errorf("%s: %w", l, err)
	}

	g.log.Info("link added",
		"link", l.id, "output", out.String(), "input", in.String(),
		"format", l.format.String())
	g.InvokeHook(hooking.HookCtx{Domain: g, Pos: HookPosLinkAdded, Item: l})

	return l, nil
}

func (g *Graph) setupLink(ctx context.Context, src, dst *graphNode, l *Link) error {
	var err error

	if l.tee, err = g.teeFor(src, l.out.Port); err != nil {
		return err
	}

	if l.mix, err = g.mixFor(dst, l.in.Port); err != nil {
		return err
	}

	if l.outLink, err = l.tee.AddLink(); err != nil {
		return err
	}

	if l.inLink, err = l.mix.AddLink(); err != nil {
		return err
	}

	outID, inID := l.outLink.MixID(), l.inLink.MixID()

	err = l.tee.PortSetIO(node.DirectionOutput, outID, node.IOTypeBuffers, l.io)
	if err != nil {
		return err
	}

	err = l.mix.PortSetIO(node.DirectionInput, inID, node.IOTypeBuffers, l.io)
	if err != nil {
		return err
	}

	if l.format, err = g.negotiateFormat(l); err != nil {
		return err
	}

	err = g.settleFormat(ctx, l.tee.NodeBase, node.DirectionOutput, outID,
		l.tee.PortSetParam(node.DirectionOutput, outID, param.IDFormat, 0, l.format))
	if err != nil {
		return fmt.Errorf("output format: %w", err)
	}

	err = g.settleFormat(ctx, l.mix.NodeBase, node.DirectionInput, inID,
		l.mix.PortSetParam(node.DirectionInput, inID, param.IDFormat, 0, l.format))
	if err != nil {
		return fmt.Errorf("input format: %w", err)
	}

	set, err := g.buffersFor(src, l)
	if err != nil {
		return err
	}

	if err := l.tee.PortUseBuffers(node.DirectionOutput, outID, set.Buffers); err != nil {
		return err
	}

	if err := l.mix.PortUseBuffers(node.DirectionInput, inID, set.Buffers); err != nil {
		return err
	}

	tee := l.tee
	l.inLink.OnReuse(func(bufferID uint32) {
		_ = tee.PortReuseBuffer(outID, bufferID)
	})

	return nil
}

func (g *Graph) teeFor(gn *graphNode, port uint32) (*mix.Tee, error) {
	if t, ok := gn.tees[port]; ok {
		return t, nil
	}

	if err := ensurePort(gn.node, node.DirectionOutput, port); err != nil {
		return nil, err
	}

	t, err := mix.NewTee(fmt.Sprintf("%s.out%d", gn.name, port), gn.node, port)
	if err != nil {
		return nil, err
	}
	t.SetInvoker(g.loop)

	err = g.invoke(func() {
		gn.tees[port] = t
		gn.refreshLists()
	})

	return t, err
}

func (g *Graph) mixFor(gn *graphNode, port uint32) (*mix.Mix, error) {
	if m, ok := gn.mixes[port]; ok {
		return m, nil
	}

	if err := ensurePort(gn.node, node.DirectionInput, port); err != nil {
		return nil, err
	}

	m, err := mix.NewMix(fmt.Sprintf("%s.in%d", gn.name, port), gn.node, port)
	if err != nil {
		return nil, err
	}
	m.SetInvoker(g.loop)

	err = g.invoke(func() {
		gn.mixes[port] = m
		gn.refreshLists()
	})

	return m, err
}

// ensurePort adds a port to nodes with dynamic ports.
func ensurePort(n node.Node, dir node.Direction, port uint32) error {
	_, _, err := n.PortEnumParams(dir, port, param.IDList, 0, nil)
	if err == nil || !errors.Is(err, result.ErrInvalidArgument) {
		return nil
	}

	if err := n.AddPort(dir, port); err != nil {
		return fmt.Errorf("%s port %d: %w", dir, port, err)
	}

	return nil
}

// negotiateFormat picks the first output format the input accepts.
func (g *Graph) negotiateFormat(l *Link) (*param.Object, error) {
	outID, inID := l.outLink.MixID(), l.inLink.MixID()

	for index := uint32(0); ; {
		candidate, next, err := l.tee.PortEnumParams(node.DirectionOutput, outID,
			param.IDEnumFormat, index, nil)
		if errors.Is(err, param.ErrEnumEnd) {
			break
		}
		if err != nil {
			return nil, err
		}
		index = next

		accepted, _, err := l.mix.PortEnumParams(node.DirectionInput, inID,
			param.IDEnumFormat, 0, candidate)
		if errors.Is(err, param.ErrEnumEnd) {
			continue
		}
		if err != nil {
			return nil, err
		}

		format := param.Fixate(accepted)
		format.ID = param.IDFormat

		return format, nil
	}

	return nil, fmt.Errorf("no common format: %w", result.ErrNotSupported)
}

// settleFormat waits for an asynchronous format change of the follower and
// completes the link port that was left pending.
func (g *Graph) settleFormat(
	ctx context.Context,
	adapter *node.NodeBase,
	dir node.Direction,
	mixID uint32,
	err error,
) error {
	seq, pending := result.IsPending(err)
	if !pending {
		return err
	}

	done := g.waitDone(ctx, seq)
	if cerr := adapter.CompletePortFormat(dir, mixID, seq, done); cerr != nil {
		return cerr
	}

	return done
}

// buffersFor returns the buffer set of the output port, allocating it on
// the first link.
func (g *Graph) buffersFor(src *graphNode, l *Link) (*buffer.Set, error) {
	if set, ok := src.sets[l.out.Port]; ok {
		return set, nil
	}

	outID, inID := l.outLink.MixID(), l.inLink.MixID()

	produced, _, err := l.tee.PortEnumParams(node.DirectionOutput, outID,
		param.IDBuffers, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("output buffers: %w", err)
	}

	merged := produced
	wanted, _, err := l.mix.PortEnumParams(node.DirectionInput, inID,
		param.IDBuffers, 0, nil)
	if err == nil {
		if m, ferr := param.Filter(produced, wanted); ferr == nil {
			merged = m
		} else {
			g.log.Debug("input buffer requirements ignored",
				"link", l.id, "err", ferr)
		}
	}

	info, err := param.ParseBuffersInfo(param.Fixate(merged))
	if err != nil {
		return nil, err
	}

	var metas []param.MetaInfo
	for index := uint32(0); ; {
		obj, next, err := l.tee.PortEnumParams(node.DirectionOutput, outID,
			param.IDMeta, index, nil)
		if err != nil {
			break
		}
		index = next

		if meta, err := param.ParseMetaInfo(obj); err == nil {
			metas = append(metas, meta)
		}
	}

	set, err := buffer.Alloc(g.pool, buffer.RequirementsFrom(info, metas...))
	if err != nil {
		return nil, err
	}

	err = src.node.PortUseBuffers(node.DirectionOutput, l.out.Port, set.Buffers)
	if err != nil {
		_ = set.Free()
		return nil, err
	}

	src.sets[l.out.Port] = set

	g.log.Debug("buffers allocated",
		"port", l.out.String(), "buffers", info.Buffers, "size", info.Size)

	return set, nil
}

// Unlink removes a link. Ports left without links drop their format and
// buffers.
func (g *Graph) Unlink(id uint32) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	l, ok := g.links.Lookup(id)
	if !ok {
		return fmt.Errorf("graph %s link %d: %w", g.name, id, result.ErrNotFound)
	}

	g.teardownLink(l)
	g.links.Remove(id)

	if err := g.sched.rebuild(); err != nil {
		return err
	}

	g.log.Info("link removed", "link", id)
	g.InvokeHook(hooking.HookCtx{Domain: g, Pos: HookPosLinkRemoved, Item: l})

	return nil
}

func (g *Graph) teardownLink(l *Link) {
	if l.tee != nil && l.outLink != nil {
		if err := l.tee.RemoveLink(l.outLink.MixID()); err != nil {
			g.log.Warn("remove output link", "link", l.id, "err", err)
		}
	}

	if l.mix != nil && l.inLink != nil {
		if err := l.mix.RemoveLink(l.inLink.MixID()); err != nil {
			g.log.Warn("remove input link", "link", l.id, "err", err)
		}
	}

	if src, ok := g.nodes[l.out.Node]; ok && l.tee != nil && len(l.tee.Links()) == 0 {
		g.releaseOutput(src, l.out.Port)
	}

	if dst, ok := g.nodes[l.in.Node]; ok && l.mix != nil && len(l.mix.Links()) == 0 {
		err := dst.node.PortSetParam(node.DirectionInput, l.in.Port, param.IDFormat, 0, nil)
		if err != nil {
			g.log.Warn("clear input format", "port", l.in.String(), "err", err)
		}
	}
}

func (g *Graph) releaseOutput(src *graphNode, port uint32) {
	err := src.node.PortSetParam(node.DirectionOutput, port, param.IDFormat, 0, nil)
	if err != nil {
		g.log.Warn("clear output format", "node", src.name, "port", port, "err", err)
	}

	if set, ok := src.sets[port]; ok {
		delete(src.sets, port)
		if err := set.Free(); err != nil {
			g.log.Warn("free buffers", "node", src.name, "port", port, "err", err)
		}
	}
}

// SetLinkEnabled starts or stops the flow of buffers over a link without
// renegotiating it.
func (g *Graph) SetLinkEnabled(id uint32, enabled bool) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	l, ok := g.links.Lookup(id)
	if !ok {
		return fmt.Errorf("graph %s link %d: %w", g.name, id, result.ErrNotFound)
	}

	if err := l.tee.SetLinkEnabled(l.outLink.MixID(), enabled); err != nil {
		return err
	}

	if err := l.mix.SetLinkEnabled(l.inLink.MixID(), enabled); err != nil {
		return err
	}

	l.enabled = enabled

	return nil
}
