// Package volume provides a one-in one-out node that scales samples by a
// volume property.
package volume

import (
	"fmt"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/nodes/audio"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

var allFormats = []param.AudioFormat{
	param.AudioFormatF32, param.AudioFormatS16,
	param.AudioFormatS32, param.AudioFormatF64,
}

// Config configures a Node.
type Config struct {
	Volume  float64
	Mute    bool
	Buffers uint32
	Quantum uint32
}

// DefaultConfig passes samples through unchanged.
func DefaultConfig() Config {
	return Config{Volume: 1, Buffers: 4, Quantum: 1024}
}

// Node is the volume filter.
type Node struct {
	*node.NodeBase

	cfg   Config
	props param.PropsInfo
	in    *node.Port
	out   *node.Port
	info  param.AudioInfo
}

// New creates a volume node with input and output port 0.
func New(name string, cfg Config) (*Node, error) {
	if cfg.Volume < 0 {
		return nil, fmt.Errorf("volume %s: volume %f: %w", name, cfg.Volume, result.ErrInvalidArgument)
	}

	if cfg.Buffers == 0 || cfg.Quantum == 0 {
		return nil, fmt.Errorf("volume %s: %d buffers of %d frames: %w",
			name, cfg.Buffers, cfg.Quantum, result.ErrInvalidArgument)
	}

	n := &Node{
		cfg:   cfg,
		props: param.PropsInfo{Volume: cfg.Volume, Mute: cfg.Mute},
	}
	n.NodeBase = node.NewNodeBase(name, n)
	n.SetMaxPorts(1, 1)
	n.SetParamIDs(param.IDProps)

	var err error

	n.in, err = n.NewPort(node.DirectionInput, 0)
	if err != nil {
		return nil, err
	}
	n.in.SetFormats(audio.FormatObject(allFormats, 0, 0))
	n.in.SetMetas(audio.HeaderMeta)

	n.out, err = n.NewPort(node.DirectionOutput, 0)
	if err != nil {
		return nil, err
	}
	n.out.SetFormats(audio.FormatObject(allFormats, 0, 0))
	n.out.SetMetas(audio.HeaderMeta)

	return n, nil
}

// Props returns the current properties.
func (n *Node) Props() param.PropsInfo {
	var p param.PropsInfo
	_ = n.Invoke(func() { p = n.props })

	return p
}

// EnumParams adds the Props object to the node parameters.
func (n *Node) EnumParams(
	id param.ID,
	index uint32,
	filter *param.Object,
) (*param.Object, uint32, error) {
	if id != param.IDProps {
		return n.NodeBase.EnumParams(id, index, filter)
	}

	return param.Enumerate([]*param.Object{n.Props().Object()}, index, filter)
}

// SetParam updates the properties. Keys the node does not know are
// ignored.
func (n *Node) SetParam(id param.ID, flags uint32, obj *param.Object) error {
	if id != param.IDProps {
		return n.NodeBase.SetParam(id, flags, obj)
	}

	var (
		changed bool
		err     error
	)

	ierr := n.Invoke(func() {
		changed, err = param.ApplyProps(&n.props, obj)
	})
	if ierr != nil {
		return ierr
	}

	if err != nil {
		return fmt.Errorf("volume %s: %w", n.Name(), err)
	}

	if changed {
		n.Callbacks().Event(node.Event{Type: node.EventInfoChanged})
	}

	return nil
}

// PortFormat requires both ports to agree on one format.
func (n *Node) PortFormat(p *node.Port, format *param.Object) error {
	info, err := param.ParseAudioInfo(format)
	if err != nil {
		return err
	}

	if !audio.Supported(info.Format) {
		return fmt.Errorf("volume %s: format %s: %w", n.Name(), info.Format, result.ErrNotSupported)
	}

	other := n.out
	if p == n.out {
		other = n.in
	}

	if f := other.Format(); f != nil {
		cur, err := param.ParseAudioInfo(f)
		if err != nil {
			return err
		}

		if cur.Format != info.Format || cur.Rate != info.Rate || cur.Channels != info.Channels {
			return fmt.Errorf("volume %s: %s does not match %s port: %w",
				n.Name(), info.Format, other.Direction(), result.ErrNotSupported)
		}
	}

	n.info = info
	other.SetFormats(info.Object(param.IDEnumFormat))

	return nil
}

// PortSetParam restores the offered formats when a format is cleared.
func (n *Node) PortSetParam(
	dir node.Direction,
	portID uint32,
	id param.ID,
	flags uint32,
	obj *param.Object,
) error {
	err := n.NodeBase.PortSetParam(dir, portID, id, flags, obj)
	if err != nil || id != param.IDFormat || obj != nil {
		return err
	}

	for _, p := range []*node.Port{n.in, n.out} {
		other := n.out
		if p == n.out {
			other = n.in
		}

		if f := other.Format(); f != nil {
			enum := f.Clone()
			enum.ID = param.IDEnumFormat
			p.SetFormats(enum)
		} else {
			p.SetFormats(audio.FormatObject(allFormats, 0, 0))
		}
	}

	return nil
}

// PortBuffers fills quantum-sized buffers on the output and accepts a range
// on the input.
func (n *Node) PortBuffers(p *node.Port) []*param.Object {
	if p.Direction() == node.DirectionOutput {
		return []*param.Object{audio.ProducerBuffers(n.cfg.Buffers, n.cfg.Quantum, n.info)}
	}

	return []*param.Object{audio.ConsumerBuffers(n.info)}
}

// Process scales one input buffer into one output buffer.
func (n *Node) Process() node.Status {
	if !n.Started() || !n.OutputWanted(n.out) {
		return node.StatusOK
	}

	in, status := n.InputBuffer(n.in)
	if status < 0 {
		return status
	}

	if status != node.StatusHaveBuffer {
		n.ReleaseInput(n.in, node.StatusNeedBuffer)
		return node.StatusNeedBuffer
	}

	out, ok := n.DequeueOutput(n.out)
	if !ok {
		n.ReleaseInput(n.in, node.StatusNeedBuffer)
		return node.StatusNeedBuffer
	}

	n.scale(in, out)
	n.QueueOutput(n.out, out)
	n.ReleaseInput(n.in, node.StatusNeedBuffer)

	return node.StatusHaveBuffer | node.StatusNeedBuffer
}

func (n *Node) scale(in, out *buffer.Buffer) {
	info := n.info
	bpf := info.BytesPerFrame()
	src := in.Datas[0].Payload()
	dst := out.Datas[0].Bytes()

	gain := n.props.Volume
	if n.props.Mute {
		gain = 0
	}

	frames := min(uint32(len(src))/max(bpf, 1), out.Datas[0].MaxFrames(bpf))
	for i := uint32(0); i < frames*info.Channels; i++ {
		audio.PutSample(info.Format, dst, i, audio.Sample(info.Format, src, i)*gain)
	}

	audio.Fill(&out.Datas[0], frames, info)

	if hi, ho := in.Header(), out.Header(); ho != nil {
		*ho = buffer.MetaHeader{}
		if hi != nil {
			*ho = *hi
		}
	}
}

var _ node.Node = (*Node)(nil)
