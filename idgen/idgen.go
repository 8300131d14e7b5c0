// Package idgen provides the id sources used by the graph: sequence numbers
// for asynchronous operations and free-list maps for small integer ids that
// are recycled (pool blocks, mix ports, links).
package idgen

import "sync/atomic"

// Sequence hands out increasing sequence numbers starting at 1, so that 0
// never names an operation. The zero value is ready to use.
type Sequence struct {
	last atomic.Int64
}

// Next returns the next number.
func (s *Sequence) Next() int {
	return int(s.last.Add(1))
}
