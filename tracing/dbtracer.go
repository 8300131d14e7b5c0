package tracing

import (
	"errors"
	"sync"
	"time"

	"github.com/sarchlab/mediagraph/datarecording"
	"github.com/sarchlab/mediagraph/graph"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/logging"
)

// Table names written by DBTracer.
const (
	CycleTable   = "mediagraph_cycles"
	ProcessTable = "mediagraph_process"
	XrunTable    = "mediagraph_xruns"
)

// CycleEntry is one row of CycleTable.
type CycleEntry struct {
	Cycle    uint64
	Start    int64
	Duration int64
}

// ProcessEntry is one row of ProcessTable.
type ProcessEntry struct {
	Cycle  uint64
	Node   string
	Status int
}

// XrunEntry is one row of XrunTable.
type XrunEntry struct {
	Cycle uint64
	Node  string
	Port  uint32
}

// DBTracer writes every cycle, node run and xrun to a recorder. Wall clock
// times are nanoseconds since the Unix epoch.
type DBTracer struct {
	lock    sync.Mutex
	backend datarecording.Recorder
	log     logging.Logger
	now     func() time.Time

	cycle   uint64
	started time.Time
	failed  bool
}

// NewDBTracer creates the tables in backend.
func NewDBTracer(backend datarecording.Recorder, log logging.Logger) (*DBTracer, error) {
	err := errors.Join(
		backend.CreateTable(CycleTable, CycleEntry{}),
		backend.CreateTable(ProcessTable, ProcessEntry{}),
		backend.CreateTable(XrunTable, XrunEntry{}),
	)
	if err != nil {
		return nil, err
	}

	return &DBTracer{
		backend: backend,
		log:     logging.OrNop(log).With("component", "dbtracer"),
		now:     time.Now,
	}, nil
}

// Func implements hooking.Hook.
func (t *DBTracer) Func(ctx hooking.HookCtx) {
	t.lock.Lock()
	defer t.lock.Unlock()

	var err error

	switch ctx.Pos {
	case graph.HookPosCycleStart:
		t.cycle = ctx.Item.(uint64)
		t.started = t.now()
	case graph.HookPosCycleEnd:
		err = t.backend.InsertData(CycleTable, CycleEntry{
			Cycle:    t.cycle,
			Start:    t.started.UnixNano(),
			Duration: int64(t.now().Sub(t.started)),
		})
	case graph.HookPosNodeProcessed:
		rec := ctx.Item.(graph.ProcessRecord)
		err = t.backend.InsertData(ProcessTable, ProcessEntry{
			Cycle:  rec.Cycle,
			Node:   rec.Node,
			Status: int(rec.Status),
		})
	case graph.HookPosXrun:
		rec := ctx.Item.(graph.XrunRecord)
		err = t.backend.InsertData(XrunTable, XrunEntry(rec))
	}

	if err != nil && !t.failed {
		t.failed = true
		t.log.Error("trace write failed, later failures are not logged", "err", err)
	}
}

// Flush writes buffered rows.
func (t *DBTracer) Flush() error {
	return t.backend.Flush()
}
