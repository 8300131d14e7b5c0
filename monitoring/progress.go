package monitoring

import (
	"sync"
	"time"

	"github.com/sarchlab/mediagraph/graph"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
)

// Progress is what the monitor reports for a bar.
type Progress struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// A ProgressBar counts work items that started and finished.
type ProgressBar struct {
	lock sync.Mutex
	p    Progress
}

// Begin marks n items as in progress.
func (b *ProgressBar) Begin(n uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.p.InProgress += n
}

// Complete moves n in-progress items to finished.
func (b *ProgressBar) Complete(n uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.p.InProgress -= min(n, b.p.InProgress)
	b.p.Finished += n
}

// Progress returns a copy of the counters.
func (b *ProgressBar) Progress() Progress {
	b.lock.Lock()
	defer b.lock.Unlock()

	return b.p
}

// cycleProgress moves a bar one step per scheduler cycle.
type cycleProgress struct {
	bar *ProgressBar
}

func (c *cycleProgress) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case graph.HookPosCycleStart:
		c.bar.Begin(1)
	case graph.HookPosCycleEnd:
		c.bar.Complete(1)
	}
}
