package tracing

import "time"

// SetClock replaces the wall clock of a tracer.
func (t *StatsTracer) SetClock(now func() time.Time) { t.now = now }

// SetClock replaces the wall clock of a tracer.
func (t *DBTracer) SetClock(now func() time.Time) { t.now = now }
