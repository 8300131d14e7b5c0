// Package graph connects nodes into a processing graph. Every linked output
// port gets a Tee and every linked input port a Mix, so a port can take part
// in any number of links. The Scheduler runs one cycle per timing event on
// the data goroutine owned by the loop.
package graph

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/idgen"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/logging"
	"github.com/sarchlab/mediagraph/loop"
	"github.com/sarchlab/mediagraph/mem/shm"
	"github.com/sarchlab/mediagraph/mix"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/result"
	"github.com/sarchlab/mediagraph/timing"
)

var (
	// HookPosNodeAdded fires after a node joined the graph. Item is the
	// node.
	HookPosNodeAdded = &hooking.HookPos{Name: "Node Added"}

	// HookPosNodeRemoved fires after a node left the graph.
	HookPosNodeRemoved = &hooking.HookPos{Name: "Node Removed"}

	// HookPosLinkAdded fires after a link was negotiated. Item is the Link.
	HookPosLinkAdded = &hooking.HookPos{Name: "Link Added"}

	// HookPosLinkRemoved fires after a link was torn down.
	HookPosLinkRemoved = &hooking.HookPos{Name: "Link Removed"}

	// HookPosNodeEvent fires when a node reports an event. Item is the node,
	// Detail the node.Event.
	HookPosNodeEvent = &hooking.HookPos{Name: "Node Event"}
)

type invokerSetter interface {
	SetInvoker(inv node.Invoker)
}

// graphNode is a node and the adapters on its ports.
type graphNode struct {
	name  string
	node  node.Node
	tees  map[uint32]*mix.Tee
	mixes map[uint32]*mix.Mix
	sets  map[uint32]*buffer.Set

	// teeList and mixList hold the adapters in port order for the data
	// goroutine.
	teeList []*mix.Tee
	mixList []*mix.Mix
}

func (gn *graphNode) refreshLists() {
	gn.teeList = sortedValues(gn.tees)
	gn.mixList = sortedValues(gn.mixes)
}

func sortedValues[T any](m map[uint32]T) []T {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	values := make([]T, 0, len(keys))
	for _, k := range keys {
		values = append(values, m[k])
	}

	return values
}

// Graph is a set of nodes and the links between their ports.
type Graph struct {
	*hooking.HookableBase

	name     string
	log      logging.Logger
	pool     *shm.Pool
	ownsPool bool
	loop     *loop.Loop
	engine   *timing.SerialEngine
	sched    *Scheduler

	lock  sync.Mutex
	nodes map[string]*graphNode
	order []string
	links *idgen.FreeList[*Link]

	doneLock sync.Mutex
	waiters  map[int]chan error
	early    map[int]error

	clock    node.IOClock
	position node.IOPosition
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// Pool returns the pool buffers are allocated from.
func (g *Graph) Pool() *shm.Pool { return g.pool }

// Loop returns the loop that owns the data goroutine.
func (g *Graph) Loop() *loop.Loop { return g.loop }

// Engine returns the engine that drives cycles.
func (g *Graph) Engine() *timing.SerialEngine { return g.engine }

// Scheduler returns the cycle scheduler.
func (g *Graph) Scheduler() *Scheduler { return g.sched }

// Clock returns the clock area shared with every node.
func (g *Graph) Clock() *node.IOClock { return &g.clock }

// Position returns the position area shared with every node.
func (g *Graph) Position() *node.IOPosition { return &g.position }

func (g *Graph) invoke(fn func()) error {
	return g.loop.Invoke(context.Background(), fn)
}

// AddNode adds a node under a unique name.
func (g *Graph) AddNode(name string, n node.Node) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	if _, ok := g.nodes[name]; ok {
		return fmt.Errorf("graph %s node %q: %w", g.name, name, result.ErrBusy)
	}

	gn := &graphNode{
		name:  name,
		node:  n,
		tees:  make(map[uint32]*mix.Tee),
		mixes: make(map[uint32]*mix.Mix),
		sets:  make(map[uint32]*buffer.Set),
	}

	if s, ok := n.(invokerSetter); ok {
		s.SetInvoker(g.loop)
	}
	n.SetCallbacks(&nodeCallbacks{g: g, gn: gn})

	if err := n.SetIO(node.IOTypeClock, &g.clock); err != nil {
		g.log.Debug("node takes no clock", "node", name, "err", err)
	}
	if err := n.SetIO(node.IOTypePosition, &g.position); err != nil {
		g.log.Debug("node takes no position", "node", name, "err", err)
	}

	g.nodes[name] = gn
	g.order = append(g.order, name)

	if err := g.sched.rebuild(); err != nil {
		delete(g.nodes, name)
		g.order = g.order[:len(g.order)-1]
		return err
	}

	g.log.Info("node added", "node", name, "info", n.Info().Name)
	g.InvokeHook(hooking.HookCtx{Domain: g, Pos: HookPosNodeAdded, Item: n})

	return nil
}

// Node looks a node up by name.
func (g *Graph) Node(name string) (node.Node, bool) {
	g.lock.Lock()
	defer g.lock.Unlock()

	gn, ok := g.nodes[name]
	if !ok {
		return nil, false
	}

	return gn.node, true
}

// NodeNames returns the node names in the order they were added.
func (g *Graph) NodeNames() []string {
	g.lock.Lock()
	defer g.lock.Unlock()

	return slices.Clone(g.order)
}

// RemoveNode unlinks and removes a node. The node is paused first.
func (g *Graph) RemoveNode(name string) error {
	g.lock.Lock()
	gn, ok := g.nodes[name]
	if !ok {
		g.lock.Unlock()
		return fmt.Errorf("graph %s node %q: %w", g.name, name, result.ErrNotFound)
	}

	var ids []uint32
	g.links.Each(func(id uint32, l *Link) bool {
		if l.out.Node == name || l.in.Node == name {
			ids = append(ids, id)
		}
		return true
	})
	g.lock.Unlock()

	for _, id := range ids {
		if err := g.Unlink(id); err != nil {
			return err
		}
	}

	if err := gn.node.SendCommand(node.CommandPause); err != nil {
		g.log.Warn("pause before removal failed", "node", name, "err", err)
	}

	g.lock.Lock()
	defer g.lock.Unlock()

	delete(g.nodes, name)
	g.order = slices.DeleteFunc(g.order, func(n string) bool { return n == name })

	if err := g.sched.rebuild(); err != nil {
		return err
	}

	gn.node.SetCallbacks(nil)

	g.log.Info("node removed", "node", name)
	g.InvokeHook(hooking.HookCtx{Domain: g, Pos: HookPosNodeRemoved, Item: gn.node})

	return nil
}

// SendCommand sends cmd to every node in processing order.
func (g *Graph) SendCommand(cmd node.Command) error {
	for _, gn := range g.sched.snapshot() {
		if err := gn.node.SendCommand(cmd); err != nil {
			return fmt.Errorf("node %s %s: %w", gn.name, cmd, err)
		}
	}

	return nil
}

// Start starts every node and runs cycles on the data goroutine. Zero
// cycles runs until Stop.
func (g *Graph) Start(cycles uint64) error {
	if err := g.SendCommand(node.CommandStart); err != nil {
		return err
	}

	g.sched.Schedule(cycles)

	return g.loop.Go(loop.RunEngine(g.engine))
}

// Wait blocks until the cycles requested by Start ran.
func (g *Graph) Wait() error {
	return g.loop.Wait()
}

// Stop ends the data goroutine and pauses every node.
func (g *Graph) Stop() error {
	err := g.loop.Stop()
	g.sched.Cancel()

	if perr := g.SendCommand(node.CommandPause); perr != nil && err == nil {
		err = perr
	}

	return err
}

// Close unlinks everything and frees the buffers. The pool is closed if the
// graph created it.
func (g *Graph) Close() error {
	if g.loop.Running() {
		if err := g.Stop(); err != nil {
			g.log.Warn("stop on close", "err", err)
		}
	}

	for _, l := range g.Links() {
		if err := g.Unlink(l.id); err != nil {
			return err
		}
	}

	if g.ownsPool {
		return g.pool.Close()
	}

	return nil
}

// Xruns returns how many times a linked input port found no buffer.
func (g *Graph) Xruns() uint64 {
	return g.sched.Xruns()
}
