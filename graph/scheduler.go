package graph

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/loop"
	"github.com/sarchlab/mediagraph/mix"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/result"
	"github.com/sarchlab/mediagraph/timing"
)

var (
	// HookPosCycleStart fires before the first node of a cycle runs. Item is
	// the cycle number.
	HookPosCycleStart = &hooking.HookPos{Name: "Cycle Start"}

	// HookPosNodeProcessed fires after a node processed. Item is the
	// ProcessRecord.
	HookPosNodeProcessed = &hooking.HookPos{Name: "Node Processed"}

	// HookPosCycleEnd fires after the last node of a cycle ran.
	HookPosCycleEnd = &hooking.HookPos{Name: "Cycle End"}

	// HookPosXrun fires when a linked input port had no buffer. Item is the
	// XrunRecord.
	HookPosXrun = &hooking.HookPos{Name: "Xrun"}
)

// CycleEvent asks the scheduler to run one cycle.
type CycleEvent struct {
	Triggered bool
}

// ProcessRecord describes one node run inside a cycle.
type ProcessRecord struct {
	Cycle  uint64
	Node   string
	Status node.Status
}

// XrunRecord describes one under-run.
type XrunRecord struct {
	Cycle uint64
	Node  string
	Port  uint32
}

// Scheduler runs the nodes of a graph in dependency order, one cycle per
// CycleEvent.
type Scheduler struct {
	*hooking.HookableBase

	g       *Graph
	quantum uint32
	rate    uint32

	order []*graphNode

	lock      sync.Mutex
	remaining uint64
	endless   bool
	queued    bool

	triggerQueued atomic.Bool
	cycles        atomic.Uint64
	xruns         atomic.Uint64
}

func newScheduler(g *Graph, quantum, rate uint32) *Scheduler {
	return &Scheduler{
		HookableBase: hooking.NewHookableBase(),
		g:            g,
		quantum:      quantum,
		rate:         rate,
	}
}

// Quantum returns the frames per cycle.
func (s *Scheduler) Quantum() uint32 { return s.quantum }

// Cycles returns how many cycles ran.
func (s *Scheduler) Cycles() uint64 { return s.cycles.Load() }

// Xruns returns how many under-runs were seen.
func (s *Scheduler) Xruns() uint64 { return s.xruns.Load() }

// Order returns the node names in processing order.
func (s *Scheduler) Order() []string {
	nodes := s.snapshot()
	names := make([]string, len(nodes))
	for i, gn := range nodes {
		names[i] = gn.name
	}

	return names
}

func (s *Scheduler) snapshot() []*graphNode {
	var nodes []*graphNode
	_ = s.g.invoke(func() {
		nodes = append(nodes, s.order...)
	})

	return nodes
}

// rebuild recomputes the processing order. The caller holds the graph lock.
func (s *Scheduler) rebuild() error {
	order, err := s.sort()
	if err != nil {
		return err
	}

	return s.g.invoke(func() { s.order = order })
}

// sort orders nodes so that producers run before their consumers. Nodes
// that do not depend on each other keep the order they were added in.
func (s *Scheduler) sort() ([]*graphNode, error) {
	g := s.g
	indegree := make(map[string]int, len(g.order))
	next := make(map[string][]string)

	g.links.Each(func(_ uint32, l *Link) bool {
		indegree[l.in.Node]++
		next[l.out.Node] = append(next[l.out.Node], l.in.Node)
		return true
	})

	order := make([]*graphNode, 0, len(g.order))
	done := make(map[string]bool, len(g.order))

	for len(order) < len(g.order) {
		progressed := false

		for _, name := range g.order {
			if done[name] || indegree[name] > 0 {
				continue
			}

			done[name] = true
			order = append(order, g.nodes[name])
			progressed = true

			for _, n := range next[name] {
				indegree[n]--
			}
		}

		if !progressed {
			return nil, fmt.Errorf("graph %s has a cycle: %w", g.name, result.ErrBusy)
		}
	}

	return order, nil
}

// Schedule queues cycles after the current one. Zero cycles runs until
// Cancel.
func (s *Scheduler) Schedule(cycles uint64) {
	s.lock.Lock()
	s.endless = cycles == 0
	s.remaining = cycles
	start := !s.queued
	s.queued = true
	s.lock.Unlock()

	if start {
		s.scheduleNext(false)
	}
}

// Cancel drops the cycles not run yet.
func (s *Scheduler) Cancel() {
	s.lock.Lock()
	s.endless = false
	s.remaining = 0
	s.lock.Unlock()
}

// Trigger asks for an extra cycle, for nodes that produce or consume on
// their own time. It may be called from any goroutine; the cycle is queued
// from the data goroutine.
func (s *Scheduler) Trigger() {
	if s.triggerQueued.CompareAndSwap(false, true) {
		s.g.loop.Post(func() { s.scheduleNext(true) })
	}
}

func (s *Scheduler) scheduleNext(triggered bool) {
	engine := s.g.engine
	t := engine.CurrentTime()
	if s.cycles.Load() > 0 {
		t++
	}

	engine.Schedule(timing.ScheduledEvent{
		Event:       &CycleEvent{Triggered: triggered},
		Time:        t,
		Handler:     s,
		IsSecondary: triggered,
	})
}

// RunCycles runs n cycles on the data goroutine and waits for them.
func (s *Scheduler) RunCycles(n uint64) error {
	if n == 0 {
		return nil
	}

	s.Schedule(n)

	if err := s.g.loop.Go(loop.RunEngine(s.g.engine)); err != nil {
		return err
	}

	return s.g.loop.Wait()
}

// Handle runs a cycle.
func (s *Scheduler) Handle(event any) error {
	evt, ok := event.(*CycleEvent)
	if !ok {
		return fmt.Errorf("scheduler: unknown event type: %T", event)
	}

	if evt.Triggered {
		s.triggerQueued.Store(false)
		s.runCycle()

		return nil
	}

	s.lock.Lock()
	if !s.endless && s.remaining == 0 {
		s.queued = false
		s.lock.Unlock()

		return nil
	}
	if !s.endless {
		s.remaining--
	}
	more := s.endless || s.remaining > 0
	s.queued = more
	s.lock.Unlock()

	s.runCycle()

	if more {
		s.scheduleNext(false)
	}

	return nil
}

func (s *Scheduler) runCycle() {
	cycle := s.cycles.Add(1)
	g := s.g

	g.clock.Position += uint64(s.quantum)
	g.clock.Duration = uint64(s.quantum)
	g.clock.Nsec = int64(timing.Period(s.quantum, s.rate)) * int64(cycle)
	g.position.Clock = g.clock
	g.position.Cycle = cycle

	s.InvokeHook(hooking.HookCtx{Domain: s, Pos: HookPosCycleStart, Item: cycle})

	for _, gn := range s.order {
		s.processNode(cycle, gn)
	}

	s.InvokeHook(hooking.HookCtx{Domain: s, Pos: HookPosCycleEnd, Item: cycle})
}

func (s *Scheduler) processNode(cycle uint64, gn *graphNode) {
	for _, t := range gn.teeList {
		t.ProcessInput()
	}

	for _, m := range gn.mixList {
		before := m.Underruns()
		m.ProcessInput()

		if m.Underruns() != before {
			s.xrun(cycle, gn, m)
		}
	}

	status := gn.node.Process()

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosNodeProcessed,
		Item:   ProcessRecord{Cycle: cycle, Node: gn.name, Status: status},
	})

	if status < 0 {
		s.g.log.Debug("node process failed",
			"node", gn.name, "cycle", cycle, "err", status.Err())
	}

	for _, t := range gn.teeList {
		t.ProcessOutput()
	}

	for _, m := range gn.mixList {
		m.ProcessOutput()
	}
}

func (s *Scheduler) xrun(cycle uint64, gn *graphNode, m *mix.Mix) {
	s.xruns.Add(1)
	s.g.clock.Xruns++

	_, port := m.Follower()

	s.InvokeHook(hooking.HookCtx{
		Domain: s,
		Pos:    HookPosXrun,
		Item:   XrunRecord{Cycle: cycle, Node: gn.name, Port: port},
	})

	s.g.log.Debug("xrun", "node", gn.name, "port", port, "cycle", cycle)
}

var _ timing.Handler = (*Scheduler)(nil)
