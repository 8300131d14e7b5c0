// Package mixer provides a node that sums any number of inputs into one
// output.
package mixer

import (
	"fmt"

	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/nodes/audio"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

// Config configures a Node.
type Config struct {
	Formats []param.AudioFormat
	Buffers uint32
	Quantum uint32
}

// DefaultConfig mixes float samples in quanta of 1024 frames.
func DefaultConfig() Config {
	return Config{
		Formats: []param.AudioFormat{param.AudioFormatF32, param.AudioFormatS16},
		Buffers: 4,
		Quantum: 1024,
	}
}

// Node is the mixer. Input ports are created on demand.
type Node struct {
	*node.NodeBase

	cfg  Config
	out  *node.Port
	info param.AudioInfo
	acc  []float64
	seq  uint64
}

// New creates a mixer with output port 0 and no inputs.
func New(name string, cfg Config) (*Node, error) {
	if len(cfg.Formats) == 0 {
		return nil, fmt.Errorf("mixer %s: no formats: %w", name, result.ErrInvalidArgument)
	}

	for _, f := range cfg.Formats {
		if !audio.Supported(f) {
			return nil, fmt.Errorf("mixer %s: format %s: %w", name, f, result.ErrNotSupported)
		}
	}

	if cfg.Buffers == 0 || cfg.Quantum == 0 {
		return nil, fmt.Errorf("mixer %s: %d buffers of %d frames: %w",
			name, cfg.Buffers, cfg.Quantum, result.ErrInvalidArgument)
	}

	n := &Node{cfg: cfg}
	n.NodeBase = node.NewNodeBase(name, n)
	n.SetMaxPorts(node.MaxPorts, 1)

	var err error

	n.out, err = n.NewPort(node.DirectionOutput, 0)
	if err != nil {
		return nil, err
	}
	n.out.SetMetas(audio.HeaderMeta)
	n.offer()

	return n, nil
}

// AddPort adds an input port.
func (n *Node) AddPort(dir node.Direction, portID uint32) error {
	if dir != node.DirectionInput {
		return fmt.Errorf("mixer %s add %s port: %w", n.Name(), dir, result.ErrNotSupported)
	}

	p, err := n.NewPort(dir, portID)
	if err != nil {
		return err
	}
	p.SetMetas(audio.HeaderMeta)

	n.offer()

	return nil
}

// AddInput adds an input on the lowest free id and returns it.
func (n *Node) AddInput() (uint32, error) {
	id, err := n.FreePortID(node.DirectionInput)
	if err != nil {
		return 0, err
	}

	return id, n.AddPort(node.DirectionInput, id)
}

// RemovePort removes an input port. The output stays.
func (n *Node) RemovePort(dir node.Direction, portID uint32) error {
	if dir != node.DirectionInput {
		return fmt.Errorf("mixer %s remove %s port: %w", n.Name(), dir, result.ErrNotSupported)
	}

	if err := n.NodeBase.RemovePort(dir, portID); err != nil {
		return err
	}

	n.offer()

	return nil
}

// configured returns a port that has a format, nil if none has.
func (n *Node) configured() *node.Port {
	var found *node.Port

	n.EachPort(func(p *node.Port) {
		if found == nil && p.Format() != nil {
			found = p
		}
	})

	return found
}

// offer makes every port offer the format already chosen, or all
// configured formats when none is.
func (n *Node) offer() {
	enum := audio.FormatObject(n.cfg.Formats, 0, 0)
	if p := n.configured(); p != nil {
		enum = p.Format().Clone()
		enum.ID = param.IDEnumFormat
	}

	n.EachPort(func(p *node.Port) {
		p.SetFormats(enum)
	})
}

// PortFormat requires every port to use the same format.
func (n *Node) PortFormat(p *node.Port, format *param.Object) error {
	info, err := param.ParseAudioInfo(format)
	if err != nil {
		return err
	}

	supported := false
	for _, f := range n.cfg.Formats {
		supported = supported || f == info.Format
	}

	if !supported {
		return fmt.Errorf("mixer %s: format %s: %w", n.Name(), info.Format, result.ErrNotSupported)
	}

	var mismatch error

	n.EachPort(func(other *node.Port) {
		if other == p || other.Format() == nil || mismatch != nil {
			return
		}

		cur, err := param.ParseAudioInfo(other.Format())
		if err != nil {
			mismatch = err
			return
		}

		if cur.Format != info.Format || cur.Rate != info.Rate || cur.Channels != info.Channels {
			mismatch = fmt.Errorf("mixer %s: %s does not match %s: %w",
				n.Name(), p, other, result.ErrNotSupported)
		}
	})

	if mismatch != nil {
		return mismatch
	}

	n.info = info

	enum := info.Object(param.IDEnumFormat)
	n.EachPort(func(other *node.Port) {
		if other != p {
			other.SetFormats(enum)
		}
	})

	return nil
}

// PortSetParam restores the offered formats when the last format is
// cleared.
func (n *Node) PortSetParam(
	dir node.Direction,
	portID uint32,
	id param.ID,
	flags uint32,
	obj *param.Object,
) error {
	err := n.NodeBase.PortSetParam(dir, portID, id, flags, obj)
	if err == nil && id == param.IDFormat && obj == nil {
		n.offer()
	}

	return err
}

// PortBuffers fills quantum-sized buffers on the output and accepts a range
// on inputs.
func (n *Node) PortBuffers(p *node.Port) []*param.Object {
	if p.Direction() == node.DirectionOutput {
		return []*param.Object{audio.ProducerBuffers(n.cfg.Buffers, n.cfg.Quantum, n.info)}
	}

	return []*param.Object{audio.ConsumerBuffers(n.info)}
}

// Process sums the buffers present on the inputs. Nothing is produced when
// no input had data.
func (n *Node) Process() node.Status {
	if !n.Started() || !n.OutputWanted(n.out) {
		return node.StatusOK
	}

	info := n.info
	bpf := info.BytesPerFrame()
	samples := int(n.cfg.Quantum * info.Channels)

	if cap(n.acc) < samples {
		n.acc = make([]float64, samples)
	}
	acc := n.acc[:samples]
	clear(acc)

	frames := uint32(0)
	inputs := 0

	n.EachPort(func(p *node.Port) {
		if p.Direction() != node.DirectionInput {
			return
		}

		b, status := n.InputBuffer(p)
		if status != node.StatusHaveBuffer {
			n.ReleaseInput(p, node.StatusNeedBuffer)
			return
		}

		src := b.Datas[0].Payload()
		f := min(uint32(len(src))/max(bpf, 1), n.cfg.Quantum)
		for i := uint32(0); i < f*info.Channels; i++ {
			acc[i] += audio.Sample(info.Format, src, i)
		}

		frames = max(frames, f)
		inputs++

		n.ReleaseInput(p, node.StatusNeedBuffer)
	})

	if inputs == 0 {
		return node.StatusNeedBuffer
	}

	out, ok := n.DequeueOutput(n.out)
	if !ok {
		return node.StatusNeedBuffer
	}

	d := &out.Datas[0]
	frames = min(frames, d.MaxFrames(bpf))
	dst := d.Bytes()

	for i := uint32(0); i < frames*info.Channels; i++ {
		audio.PutSample(info.Format, dst, i, acc[i])
	}

	audio.Fill(d, frames, info)

	if h := out.Header(); h != nil {
		h.Flags = 0
		h.Seq = n.seq
		h.PTS = 0
		if pos := n.Position(); pos != nil {
			h.PTS = pos.Clock.Nsec
		}
	}
	n.seq++

	n.QueueOutput(n.out, out)

	return node.StatusHaveBuffer | node.StatusNeedBuffer
}

var _ node.Node = (*Node)(nil)
