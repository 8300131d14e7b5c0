// Package testsrc provides an output-only node that fills buffers with a
// ramp. It either produces whenever the graph asks (pull) or only after
// Push (push), signalling HaveOutput.
package testsrc

import (
	"fmt"
	"sync/atomic"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/nodes/audio"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

// Mode selects who decides when a buffer is produced.
type Mode int

// Production modes.
const (
	ModePull Mode = iota
	ModePush
)

// ParseMode converts "pull" or "push".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "pull", "sync":
		return ModePull, nil
	case "push", "async":
		return ModePush, nil
	default:
		return ModePull, fmt.Errorf("testsrc mode %q: %w", s, result.ErrInvalidArgument)
	}
}

// Config configures a Node.
type Config struct {
	Formats  []param.AudioFormat
	Rate     uint32
	Channels uint32
	Buffers  uint32
	Quantum  uint32
	Mode     Mode
}

// DefaultConfig produces stereo S16 or F32 at 48 kHz in pull mode.
func DefaultConfig() Config {
	return Config{
		Formats:  []param.AudioFormat{param.AudioFormatS16, param.AudioFormatF32},
		Rate:     48000,
		Channels: 2,
		Buffers:  4,
		Quantum:  1024,
	}
}

// Node is the ramp source.
type Node struct {
	*node.NodeBase

	cfg  Config
	port *node.Port
	info param.AudioInfo

	pushed   atomic.Int64
	frame    uint64
	produced uint64
	starved  uint64
}

// New creates a source with one output port.
func New(name string, cfg Config) (*Node, error) {
	if len(cfg.Formats) == 0 {
		return nil, fmt.Errorf("testsrc %s: no formats: %w", name, result.ErrInvalidArgument)
	}

	for _, f := range cfg.Formats {
		if !audio.Supported(f) {
			return nil, fmt.Errorf("testsrc %s: format %s: %w",
				name, f, result.ErrNotSupported)
		}
	}

	if cfg.Buffers == 0 || cfg.Quantum == 0 {
		return nil, fmt.Errorf("testsrc %s: %d buffers of %d frames: %w",
			name, cfg.Buffers, cfg.Quantum, result.ErrInvalidArgument)
	}

	n := &Node{cfg: cfg}
	n.NodeBase = node.NewNodeBase(name, n)
	n.SetMaxPorts(0, 1)

	p, err := n.NewPort(node.DirectionOutput, 0)
	if err != nil {
		return nil, err
	}
	p.SetFormats(audio.FormatObject(cfg.Formats, cfg.Rate, cfg.Channels))
	p.SetMetas(audio.HeaderMeta)
	n.port = p

	return n, nil
}

// PortFormat accepts any raw audio format the source was configured with.
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

	return fmt.Errorf("testsrc %s: format %s: %w", n.Name(), info.Format, result.ErrNotSupported)
}

// PortBuffers asks for the configured number of quantum-sized buffers.
func (n *Node) PortBuffers(*node.Port) []*param.Object {
	return []*param.Object{audio.ProducerBuffers(n.cfg.Buffers, n.cfg.Quantum, n.info)}
}

// Push makes a push mode source produce one buffer on the next cycle.
func (n *Node) Push() {
	n.pushed.Add(1)
	n.Callbacks().HaveOutput()
}

// Produced returns how many buffers were filled.
func (n *Node) Produced() uint64 { return n.produced }

// Starved returns how many cycles found no free buffer.
func (n *Node) Starved() uint64 { return n.starved }

// Format returns the negotiated format.
func (n *Node) Format() param.AudioInfo { return n.info }

// Process fills the next free buffer when the peer consumed the last one.
func (n *Node) Process() node.Status {
	if !n.Started() || !n.OutputWanted(n.port) {
		return node.StatusOK
	}

	if n.cfg.Mode == ModePush {
		if n.pushed.Load() <= 0 {
			return node.StatusOK
		}
		n.pushed.Add(-1)
	}

	b, ok := n.DequeueOutput(n.port)
	if !ok {
		n.starved++
		return node.StatusOK
	}

	n.fill(b)
	n.QueueOutput(n.port, b)
	n.produced++

	return node.StatusHaveBuffer
}

func (n *Node) fill(b *buffer.Buffer) {
	d := &b.Datas[0]
	info := n.info
	data := d.Bytes()
	frames := min(n.cfg.Quantum, d.MaxFrames(info.BytesPerFrame()))

	for f := uint32(0); f < frames; f++ {
		v := Ramp(n.frame+uint64(f), info.Rate)
		for c := uint32(0); c < info.Channels; c++ {
			audio.PutSample(info.Format, data, f*info.Channels+c, v)
		}
	}

	audio.Fill(d, frames, info)

	if h := b.Header(); h != nil {
		h.Flags = 0
		h.Seq = n.produced
		h.PTS = int64(n.frame) * 1_000_000_000 / int64(info.Rate)
	}

	n.frame += uint64(frames)
}

// Ramp is the value of frame: a saw tooth rising from -1 to 1 once a
// second.
func Ramp(frame uint64, rate uint32) float64 {
	if rate == 0 {
		return 0
	}

	return float64(frame%uint64(rate))*2/float64(rate) - 1
}

var _ node.Node = (*Node)(nil)
