package graph

import (
	"github.com/rs/xid"

	"github.com/sarchlab/mediagraph/idgen"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/logging"
	"github.com/sarchlab/mediagraph/loop"
	"github.com/sarchlab/mediagraph/mem/shm"
	"github.com/sarchlab/mediagraph/timing"
)

// Builder can build graphs.
type Builder struct {
	name    string
	logger  logging.Logger
	pool    *shm.Pool
	engine  *timing.SerialEngine
	quantum uint32
	rate    uint32
}

// MakeBuilder creates a builder with a quantum of 1024 frames at 48 kHz.
func MakeBuilder() Builder {
	return Builder{
		quantum: 1024,
		rate:    48000,
	}
}

// WithName sets the graph name. Unnamed graphs get a unique name.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger logging.Logger) Builder {
	b.logger = logger
	return b
}

// WithPool sets the pool buffers are allocated from. By default the graph
// creates and owns a pool.
func (b Builder) WithPool(pool *shm.Pool) Builder {
	b.pool = pool
	return b
}

// WithEngine sets the engine that drives cycles.
func (b Builder) WithEngine(engine *timing.SerialEngine) Builder {
	b.engine = engine
	return b
}

// WithQuantum sets the frames processed per cycle.
func (b Builder) WithQuantum(quantum uint32) Builder {
	b.quantum = quantum
	return b
}

// WithRate sets the graph sample rate.
func (b Builder) WithRate(rate uint32) Builder {
	b.rate = rate
	return b
}

// Build creates the graph.
func (b Builder) Build() *Graph {
	name := b.name
	if name == "" {
		name = "graph-" + xid.New().String()
	}

	log := logging.OrNop(b.logger).With("graph", name)

	pool := b.pool
	ownsPool := false
	if pool == nil {
		pool = shm.MakeBuilder().WithName(name).WithLogger(log).Build()
		ownsPool = true
	}

	engine := b.engine
	if engine == nil {
		engine = timing.NewSerialEngine()
	}

	g := &Graph{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		log:          log,
		pool:         pool,
		ownsPool:     ownsPool,
		loop:         loop.New(),
		engine:       engine,
		nodes:        make(map[string]*graphNode),
		links:        idgen.NewFreeList[*Link](),
		waiters:      make(map[int]chan error),
		early:        make(map[int]error),
	}

	g.clock.RateNum = 1
	g.clock.RateDenom = b.rate
	g.clock.Duration = uint64(b.quantum)
	g.position.Clock = g.clock

	g.sched = newScheduler(g, b.quantum, b.rate)
	engine.AcceptHook(g.loop)

	return g
}
