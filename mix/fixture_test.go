package mix

import (
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/param"
)

var s16Stereo = param.AudioInfo{
	Format:   param.AudioFormatS16,
	Rate:     48000,
	Channels: 2,
}.Object(param.IDFormat)

type acceptAll struct{}

func (acceptAll) PortFormat(*node.Port, *param.Object) error { return nil }

func (acceptAll) PortBuffers(*node.Port) []*param.Object {
	return []*param.Object{param.BuffersInfo{
		Buffers: 3, Blocks: 1, Size: 64, Stride: 4, Align: 16,
	}.Object()}
}

type fakeNode struct {
	*node.NodeBase
}

func newFakeNode(name string, dir node.Direction) *fakeNode {
	n := &fakeNode{NodeBase: node.NewNodeBase(name, acceptAll{})}
	Expect(n.AddPort(dir, 0)).To(Succeed())

	return n
}

func (n *fakeNode) Process() node.Status { return node.StatusOK }

func (n *fakeNode) port(dir node.Direction) *node.Port {
	p, err := n.Port(dir, 0)
	Expect(err).NotTo(HaveOccurred())

	return p
}

func fakeBuffers(n int) []*buffer.Buffer {
	bufs := make([]*buffer.Buffer, n)
	for i := range bufs {
		bufs[i] = &buffer.Buffer{
			ID:    uint32(i),
			Datas: []buffer.Data{{Type: buffer.DataTypeMemPtr, MaxSize: 64}},
		}
	}

	return bufs
}

// connect joins a tee link and a mix link through one IO area the way the
// graph does.
func connect(t *Tee, m *Mix, bufs []*buffer.Buffer) (*Link, *Link) {
	out, err := t.AddLink()
	Expect(err).NotTo(HaveOccurred())
	in, err := m.AddLink()
	Expect(err).NotTo(HaveOccurred())

	io := node.NewIOBuffers()
	Expect(t.PortSetIO(node.DirectionOutput, out.MixID(), node.IOTypeBuffers, io)).
		To(Succeed())
	Expect(m.PortSetIO(node.DirectionInput, in.MixID(), node.IOTypeBuffers, io)).
		To(Succeed())

	Expect(t.PortSetParam(node.DirectionOutput, out.MixID(), param.IDFormat, 0, s16Stereo)).
		To(Succeed())
	Expect(m.PortSetParam(node.DirectionInput, in.MixID(), param.IDFormat, 0, s16Stereo)).
		To(Succeed())

	Expect(t.PortUseBuffers(node.DirectionOutput, out.MixID(), bufs)).To(Succeed())
	Expect(m.PortUseBuffers(node.DirectionInput, in.MixID(), bufs)).To(Succeed())

	in.OnReuse(func(id uint32) {
		Expect(t.PortReuseBuffer(out.MixID(), id)).To(Succeed())
	})

	return out, in
}

// produce publishes the next free buffer of the producer.
func produce(p *fakeNode) uint32 {
	port := p.port(node.DirectionOutput)
	b, ok := p.DequeueOutput(port)
	Expect(ok).To(BeTrue())
	p.QueueOutput(port, b)

	return b.ID
}
