// Package nodetest wires single nodes to real buffers so their Process can
// be driven without a graph.
package nodetest

import (
	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/mem/shm"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/nodes/audio"
	"github.com/sarchlab/mediagraph/param"
)

// Port is a port with a negotiated format, buffers and an IO area.
type Port struct {
	Node node.Node
	Dir  node.Direction
	ID   uint32
	IO   *node.IOBuffers
	Set  *buffer.Set
}

// Attach sets format on the port, allocates the buffers the port asks for
// from pool and installs a fresh IO area.
func Attach(
	pool *shm.Pool,
	n node.Node,
	dir node.Direction,
	portID uint32,
	format *param.Object,
) (*Port, error) {
	if err := n.PortSetParam(dir, portID, param.IDFormat, 0, format); err != nil {
		return nil, err
	}

	obj, _, err := n.PortEnumParams(dir, portID, param.IDBuffers, 0, nil)
	if err != nil {
		return nil, err
	}

	info, err := param.ParseBuffersInfo(param.Fixate(obj))
	if err != nil {
		return nil, err
	}

	var metas []param.MetaInfo
	for i := uint32(0); ; {
		m, next, err := n.PortEnumParams(dir, portID, param.IDMeta, i, nil)
		if err != nil {
			break
		}

		mi, err := param.ParseMetaInfo(m)
		if err != nil {
			return nil, err
		}

		metas = append(metas, mi)
		i = next
	}

	set, err := buffer.Alloc(pool, buffer.RequirementsFrom(info, metas...))
	if err != nil {
		return nil, err
	}

	if err := n.PortUseBuffers(dir, portID, set.Buffers); err != nil {
		_ = set.Free()
		return nil, err
	}

	io := node.NewIOBuffers()
	if err := n.PortSetIO(dir, portID, node.IOTypeBuffers, io); err != nil {
		_ = set.Free()
		return nil, err
	}

	return &Port{Node: n, Dir: dir, ID: portID, IO: io, Set: set}, nil
}

// Buffer returns buffer id of the set.
func (p *Port) Buffer(id uint32) *buffer.Buffer {
	return p.Set.Buffers[id]
}

// Offer puts frames of samples produced by fn into buffer id and hands it
// to an input port.
func (p *Port) Offer(id uint32, info param.AudioInfo, frames uint32, fn func(i uint32) float64) {
	d := &p.Set.Buffers[id].Datas[0]
	data := d.Bytes()

	for i := uint32(0); i < frames*info.Channels; i++ {
		audio.PutSample(info.Format, data, i, fn(i))
	}

	bpf := info.BytesPerFrame()
	d.Chunk.Offset = 0
	d.Chunk.Size = frames * bpf
	d.Chunk.Stride = int32(bpf)
	d.Chunk.Flags = buffer.ChunkFlagNone

	p.IO.BufferID = id
	p.IO.Status = node.StatusHaveBuffer
}

// Samples reads the valid samples of the buffer an output port published.
func (p *Port) Samples(info param.AudioInfo) []float64 {
	if p.IO.Status != node.StatusHaveBuffer {
		return nil
	}

	d := &p.Set.Buffers[p.IO.BufferID].Datas[0]
	payload := d.Payload()
	n := uint32(len(payload)) / info.Format.SampleSize()

	out := make([]float64, n)
	for i := range out {
		out[i] = audio.Sample(info.Format, payload, uint32(i))
	}

	return out
}

// Consume marks the published output buffer as taken and returns it.
func (p *Port) Consume() {
	p.IO.Status = node.StatusNeedBuffer
}

// Close frees the buffers.
func (p *Port) Close() error {
	return p.Set.Free()
}
