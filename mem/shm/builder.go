package shm

import (
	"github.com/rs/xid"

	"github.com/sarchlab/mediagraph/idgen"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/logging"
)

// Builder can build pools.
type Builder struct {
	name   string
	logger logging.Logger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{}
}

// WithName sets the pool name. Unnamed pools get a unique name.
func (b Builder) WithName(name string) Builder {
	b.name = name
	return b
}

// WithLogger sets the logger used to report stray mappings.
func (b Builder) WithLogger(logger logging.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a new pool.
func (b Builder) Build() *Pool {
	name := b.name
	if name == "" {
		name = "pool-" + xid.New().String()
	}

	return &Pool{
		HookableBase: hooking.NewHookableBase(),
		name:         name,
		logger:       logging.OrNop(b.logger).With("pool", name),
		blocks:       idgen.NewFreeList[*Block](),
		byIdentity:   make(map[fileID]*Block),
	}
}
