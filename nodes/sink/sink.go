// Package sink provides an input-only node that consumes buffers and counts
// what it saw.
package sink

import (
	"fmt"
	"sync/atomic"

	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/nodes/audio"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

// Config configures a Node.
type Config struct {
	// Formats accepted, preferred first. Empty accepts every sample format
	// the audio helpers know.
	Formats []param.AudioFormat

	// Hold keeps each buffer for one extra cycle and returns it through
	// ReuseBuffer instead of the IO area.
	Hold bool
}

// Stats is a snapshot of what a sink consumed.
type Stats struct {
	Buffers uint64
	Frames  uint64
	LastSeq uint64
	Last    float64
}

// Node is the sink.
type Node struct {
	*node.NodeBase

	cfg  Config
	port *node.Port
	info param.AudioInfo
	held []uint32

	buffers atomic.Uint64
	frames  atomic.Uint64
	lastSeq atomic.Uint64
	last    atomic.Value
}

// New creates a sink with one input port.
func New(name string, cfg Config) (*Node, error) {
	if len(cfg.Formats) == 0 {
		cfg.Formats = []param.AudioFormat{
			param.AudioFormatS16, param.AudioFormatS32,
			param.AudioFormatF32, param.AudioFormatF64,
		}
	}

	for _, f := range cfg.Formats {
		if !audio.Supported(f) {
			return nil, fmt.Errorf("sink %s: format %s: %w", name, f, result.ErrNotSupported)
		}
	}

	n := &Node{cfg: cfg}
	n.NodeBase = node.NewNodeBase(name, n)
	n.SetMaxPorts(1, 0)
	n.last.Store(0.0)

	p, err := n.NewPort(node.DirectionInput, 0)
	if err != nil {
		return nil, err
	}
	p.SetFormats(audio.FormatObject(cfg.Formats, 0, 0))
	p.SetMetas(audio.HeaderMeta)
	n.port = p

	return n, nil
}

// PortFormat accepts the configured sample formats.
func (n *Node) PortFormat(_ *node.Port, format *param.Object) error {
	info, err := param.ParseAudioInfo(format)
	if err != nil {
		return err
	}

	for _, f := range n.cfg.Formats {
		if f == info.Format {
			n.info = info
			return nil
		}
	}

	return fmt.Errorf("sink %s: format %s: %w", n.Name(), info.Format, result.ErrNotSupported)
}

// PortBuffers accepts a wide range of buffer layouts.
func (n *Node) PortBuffers(*node.Port) []*param.Object {
	return []*param.Object{audio.ConsumerBuffers(n.info)}
}

// Stats returns what the sink consumed so far. It is safe to call from any
// goroutine.
func (n *Node) Stats() Stats {
	return Stats{
		Buffers: n.buffers.Load(),
		Frames:  n.frames.Load(),
		LastSeq: n.lastSeq.Load(),
		Last:    n.last.Load().(float64),
	}
}

// Process consumes the buffer handed over by the peer.
func (n *Node) Process() node.Status {
	for _, id := range n.held {
		n.ReturnInput(n.port, id)
	}
	n.held = n.held[:0]

	if !n.Started() {
		return node.StatusOK
	}

	b, status := n.InputBuffer(n.port)
	if status < 0 {
		return status
	}

	if status != node.StatusHaveBuffer {
		n.ReleaseInput(n.port, node.StatusNeedBuffer)
		return node.StatusNeedBuffer
	}

	d := &b.Datas[0]
	frames := d.Frames(n.info.BytesPerFrame())

	n.buffers.Add(1)
	n.frames.Add(uint64(frames))
	if frames > 0 {
		n.last.Store(audio.Sample(n.info.Format, d.Payload(), 0))
	}
	if h := b.Header(); h != nil {
		n.lastSeq.Store(h.Seq)
	}

	if n.cfg.Hold {
		n.held = append(n.held, n.HoldInput(n.port, node.StatusNeedBuffer))
		return node.StatusNeedBuffer
	}

	n.ReleaseInput(n.port, node.StatusNeedBuffer)

	return node.StatusNeedBuffer
}

var _ node.Node = (*Node)(nil)
