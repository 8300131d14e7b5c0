package graph

import (
	"context"

	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/node"
)

// nodeCallbacks routes the notifications of one node into the graph.
type nodeCallbacks struct {
	g  *Graph
	gn *graphNode
}

func (c *nodeCallbacks) Done(seq int, err error) {
	c.g.complete(seq, err)
}

func (c *nodeCallbacks) Event(ev node.Event) {
	c.g.log.Debug("node event",
		"node", c.gn.name, "type", ev.Type, "direction", ev.Direction.String(),
		"port", ev.PortID)

	c.g.InvokeHook(hooking.HookCtx{
		Domain: c.g,
		Pos:    HookPosNodeEvent,
		Item:   c.gn.node,
		Detail: ev,
	})
}

func (c *nodeCallbacks) NeedInput() {
	c.g.sched.Trigger()
}

func (c *nodeCallbacks) HaveOutput() {
	c.g.sched.Trigger()
}

// ReuseBuffer hands a buffer the node kept past its cycle back to the link
// it came from.
func (c *nodeCallbacks) ReuseBuffer(portID, bufferID uint32) {
	m, ok := c.gn.mixes[portID]
	if !ok {
		return
	}

	if err := m.PortReuseBuffer(0, bufferID); err != nil {
		c.g.log.Warn("reuse buffer",
			"node", c.gn.name, "port", portID, "buffer", bufferID, "err", err)
	}
}

func (g *Graph) complete(seq int, err error) {
	g.doneLock.Lock()
	defer g.doneLock.Unlock()

	if ch, ok := g.waiters[seq]; ok {
		delete(g.waiters, seq)
		ch <- err

		return
	}

	g.early[seq] = err
}

func (g *Graph) waitDone(ctx context.Context, seq int) error {
	g.doneLock.Lock()
	if err, ok := g.early[seq]; ok {
		delete(g.early, seq)
		g.doneLock.Unlock()

		return err
	}

	ch := make(chan error, 1)
	g.waiters[seq] = ch
	g.doneLock.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		g.doneLock.Lock()
		delete(g.waiters, seq)
		g.doneLock.Unlock()

		return ctx.Err()
	}
}

var _ node.Callbacks = (*nodeCallbacks)(nil)
