package node

import (
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/mem/shm"
	"github.com/sarchlab/mediagraph/param"
)

type acceptAll struct{}

func (acceptAll) PortFormat(*Port, *param.Object) error { return nil }

func (acceptAll) PortBuffers(*Port) []*param.Object {
	return []*param.Object{param.BuffersInfo{
		Buffers: 3, Blocks: 1, Size: 1024, Stride: 4, Align: 16,
	}.Object()}
}

var _ = Describe("Output port round trip", func() {
	var (
		pool *shm.Pool
		set  *buffer.Set
		n    *NodeBase
		io   *IOBuffers
	)

	BeforeEach(func() {
		pool = shm.MakeBuilder().Build()
		n = NewNodeBase("producer", acceptAll{})
		Expect(n.AddPort(DirectionOutput, 0)).To(Succeed())
		Expect(n.PortSetParam(DirectionOutput, 0, param.IDFormat, 0, s16Stereo)).
			To(Succeed())

		obj, _, err := n.PortEnumParams(DirectionOutput, 0, param.IDBuffers, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		info, err := param.ParseBuffersInfo(param.Fixate(obj))
		Expect(err).NotTo(HaveOccurred())
		set, err = buffer.Alloc(pool, buffer.RequirementsFrom(info))
		Expect(err).NotTo(HaveOccurred())

		io = NewIOBuffers()
		Expect(n.PortSetIO(DirectionOutput, 0, IOTypeBuffers, io)).To(Succeed())
	})

	AfterEach(func() {
		Expect(set.Free()).To(Succeed())
		Expect(pool.Close()).To(Succeed())
	})

	It("should requeue a consumed buffer behind the others", func() {
		port, _ := n.Port(DirectionOutput, 0)
		Expect(port.State()).To(Equal(PortStateReady))

		Expect(n.PortUseBuffers(DirectionOutput, 0, set.Buffers)).To(Succeed())
		Expect(port.State()).To(Equal(PortStatePaused))

		b, ok := n.DequeueOutput(port)
		Expect(ok).To(BeTrue())
		Expect(b.ID).To(BeZero())
		d := &b.Datas[0]
		for i := uint32(0); i < 256; i++ {
			binary.LittleEndian.PutUint32(d.Bytes()[i*4:], i)
		}
		d.Chunk.Offset = 0
		d.Chunk.Size = 1024
		d.Chunk.Flags = buffer.ChunkFlagNone
		n.QueueOutput(port, b)

		Expect(io.Status).To(Equal(StatusHaveBuffer))
		consumed, _ := port.Buffer(io.BufferID)
		Expect(consumed.Datas[0].Frames(4)).To(Equal(uint32(256)))
		Expect(binary.LittleEndian.Uint32(consumed.Datas[0].Payload()[1020:])).
			To(Equal(uint32(255)))
		Expect(n.PortReuseBuffer(0, io.BufferID)).To(Succeed())
		io.BufferID = InvalidID
		io.Status = StatusNeedBuffer

		Expect(port.Queued()).To(Equal([]uint32{1, 2, 0}))
	})
})
