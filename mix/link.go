// Package mix lets one node port take part in any number of graph links.
// A Tee sits on an output port and fans each produced buffer out to its
// links. A Mix sits on an input port and picks, each cycle, the first
// enabled link that has a buffer. Both are nodes themselves: every link is
// a port of the adapter, keyed by a small mix id.
package mix

import (
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/node"
)

var (
	// HookPosUnderrun fires when a mix finds no enabled link with a buffer.
	// Item is the Mix.
	HookPosUnderrun = &hooking.HookPos{Name: "Underrun"}

	// HookPosOverrun fires when a tee overwrites a buffer a link did not
	// consume. Item is the Link.
	HookPosOverrun = &hooking.HookPos{Name: "Overrun"}
)

// Link is one graph link attached to an adapter.
type Link struct {
	id      uint32
	port    *node.Port
	enabled bool

	// held counts references a tee handed to this link, per buffer.
	held [node.MaxBuffers]uint8

	// base is the offset of the link buffers in a mix follower table.
	base uint32

	onReuse func(bufferID uint32)
}

// MixID returns the id of the link inside its adapter.
func (l *Link) MixID() uint32 { return l.id }

// Port returns the sub-port of the link.
func (l *Link) Port() *node.Port { return l.port }

// Enabled reports whether the link takes part in processing.
func (l *Link) Enabled() bool { return l.enabled }

// IO returns the IO area of the link, nil if not installed.
func (l *Link) IO() *node.IOBuffers {
	if l.port == nil {
		return nil
	}

	return l.port.IO()
}

// OnReuse sets the function called when the consumer behind a mix returns a
// buffer of this link asynchronously.
func (l *Link) OnReuse(fn func(bufferID uint32)) { l.onReuse = fn }

func (l *Link) numBuffers() uint32 {
	if l.port == nil {
		return 0
	}

	return uint32(l.port.NumBuffers())
}
