package mix

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

var _ = Describe("Mix follower", func() {
	var (
		mockCtrl *gomock.Controller
		follower *MockNode
		m        *Mix
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		follower = NewMockNode(mockCtrl)

		follower.EXPECT().
			PortSetIO(node.DirectionInput, uint32(1), node.IOTypeBuffers, gomock.Any()).
			Return(nil)

		var err error
		m, err = NewMix("f.mix", follower, 1)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should set the link format on a follower that has none", func() {
		follower.EXPECT().
			PortEnumParams(node.DirectionInput, uint32(1), param.IDFormat, uint32(0), gomock.Nil()).
			Return(nil, uint32(0), param.ErrEnumEnd)
		follower.EXPECT().
			PortSetParam(node.DirectionInput, uint32(1), param.IDFormat, uint32(0), s16Stereo).
			Return(nil)

		l, err := m.AddLink()
		Expect(err).NotTo(HaveOccurred())
		Expect(m.PortSetParam(node.DirectionInput, l.MixID(), param.IDFormat, 0, s16Stereo)).
			To(Succeed())
	})

	It("should hand the follower one table built from every link", func() {
		follower.EXPECT().
			PortEnumParams(node.DirectionInput, uint32(1), param.IDFormat, uint32(0), gomock.Nil()).
			Return(s16Stereo, uint32(1), nil).
			Times(2)

		var tables [][]*buffer.Buffer
		follower.EXPECT().
			PortUseBuffers(node.DirectionInput, uint32(1), gomock.Any()).
			DoAndReturn(func(_ node.Direction, _ uint32, table []*buffer.Buffer) error {
				tables = append(tables, table)
				return nil
			}).
			Times(3)

		set0, set1 := fakeBuffers(2), fakeBuffers(3)
		for _, set := range [][]*buffer.Buffer{set0, set1} {
			l, err := m.AddLink()
			Expect(err).NotTo(HaveOccurred())
			Expect(m.PortSetParam(node.DirectionInput, l.MixID(), param.IDFormat, 0, s16Stereo)).
				To(Succeed())
			Expect(m.PortUseBuffers(node.DirectionInput, l.MixID(), set)).To(Succeed())
		}

		Expect(tables).To(HaveLen(2))
		Expect(tables[1]).To(HaveLen(5))
		Expect(tables[1][2].ID).To(Equal(uint32(2)))
		Expect(&tables[1][2].Datas[0]).To(BeIdenticalTo(&set1[0].Datas[0]))

		Expect(m.RemoveLink(0)).To(Succeed())
		Expect(tables[2]).To(HaveLen(3))
		Expect(&tables[2][0].Datas[0]).To(BeIdenticalTo(&set1[0].Datas[0]))
	})

	It("should reject a link format the follower does not have", func() {
		other := param.AudioInfo{
			Format:   param.AudioFormatF32,
			Rate:     48000,
			Channels: 2,
		}.Object(param.IDFormat)

		follower.EXPECT().
			PortEnumParams(node.DirectionInput, uint32(1), param.IDFormat, uint32(0), gomock.Nil()).
			Return(s16Stereo, uint32(1), nil)

		l, err := m.AddLink()
		Expect(err).NotTo(HaveOccurred())

		err = m.PortSetParam(node.DirectionInput, l.MixID(), param.IDFormat, 0, other)
		Expect(errors.Is(err, result.ErrNotSupported)).To(BeTrue())
	})

	It("should fail when the follower refuses the IO area", func() {
		other := NewMockNode(mockCtrl)
		other.EXPECT().
			PortSetIO(node.DirectionInput, uint32(0), node.IOTypeBuffers, gomock.Any()).
			Return(result.ErrInvalidArgument)

		_, err := NewMix("other.mix", other, 0)
		Expect(errors.Is(err, result.ErrInvalidArgument)).To(BeTrue())
	})
})
