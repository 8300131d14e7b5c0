// Package tracing turns the scheduler hooks of a graph into cycle
// statistics and recorded traces.
package tracing

import (
	"sync"
	"time"

	"github.com/sarchlab/mediagraph/graph"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
)

// NodeStats summarises the runs of one node.
type NodeStats struct {
	Node      string `json:"node"`
	Processed uint64 `json:"processed"`
	Errors    uint64 `json:"errors"`
	Xruns     uint64 `json:"xruns"`
}

// Summary summarises the cycles seen so far.
type Summary struct {
	Cycles      uint64        `json:"cycles"`
	Xruns       uint64        `json:"xruns"`
	TotalTime   time.Duration `json:"total_time"`
	MaxTime     time.Duration `json:"max_time"`
	AverageTime time.Duration `json:"average_time"`
	Nodes       []NodeStats   `json:"nodes"`
}

// StatsTracer measures how long cycles take and counts what each node did.
type StatsTracer struct {
	lock sync.Mutex
	now  func() time.Time

	started time.Time
	summary Summary
	order   []string
	nodes   map[string]*NodeStats
}

// NewStatsTracer creates a StatsTracer.
func NewStatsTracer() *StatsTracer {
	return &StatsTracer{
		now:   time.Now,
		nodes: make(map[string]*NodeStats),
	}
}

func (t *StatsTracer) node(name string) *NodeStats {
	s, ok := t.nodes[name]
	if !ok {
		s = &NodeStats{Node: name}
		t.nodes[name] = s
		t.order = append(t.order, name)
	}

	return s
}

// Func implements hooking.Hook.
func (t *StatsTracer) Func(ctx hooking.HookCtx) {
	t.lock.Lock()
	defer t.lock.Unlock()

	switch ctx.Pos {
	case graph.HookPosCycleStart:
		t.started = t.now()
	case graph.HookPosCycleEnd:
		if t.started.IsZero() {
			return
		}

		d := t.now().Sub(t.started)
		t.started = time.Time{}
		t.summary.Cycles++
		t.summary.TotalTime += d
		t.summary.MaxTime = max(t.summary.MaxTime, d)
	case graph.HookPosNodeProcessed:
		rec := ctx.Item.(graph.ProcessRecord)
		s := t.node(rec.Node)
		s.Processed++
		if rec.Status < 0 {
			s.Errors++
		}
	case graph.HookPosXrun:
		rec := ctx.Item.(graph.XrunRecord)
		t.node(rec.Node).Xruns++
		t.summary.Xruns++
	}
}

// Summary returns a copy of the statistics.
func (t *StatsTracer) Summary() Summary {
	t.lock.Lock()
	defer t.lock.Unlock()

	s := t.summary
	if s.Cycles > 0 {
		s.AverageTime = s.TotalTime / time.Duration(s.Cycles)
	}

	s.Nodes = make([]NodeStats, 0, len(t.order))
	for _, name := range t.order {
		s.Nodes = append(s.Nodes, *t.nodes[name])
	}

	return s
}

// Reset forgets everything seen so far.
func (t *StatsTracer) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.started = time.Time{}
	t.summary = Summary{}
	t.order = nil
	t.nodes = make(map[string]*NodeStats)
}

// Attach registers hooks on the scheduler of g. It must be called before
// the graph starts.
func Attach(g *graph.Graph, hooks ...hooking.Hook) {
	for _, h := range hooks {
		g.Scheduler().AcceptHook(h)
	}
}
