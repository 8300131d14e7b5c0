package testsrc_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mediagraph/mem/shm"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/nodes/nodetest"
	"github.com/sarchlab/mediagraph/nodes/testsrc"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

var s16Stereo = param.AudioInfo{
	Format:   param.AudioFormatS16,
	Rate:     48000,
	Channels: 2,
}

var _ = Describe("Node", func() {
	var (
		pool *shm.Pool
		cfg  testsrc.Config
		src  *testsrc.Node
		out  *nodetest.Port
	)

	attach := func() {
		var err error

		src, err = testsrc.New("src", cfg)
		Expect(err).NotTo(HaveOccurred())

		out, err = nodetest.Attach(pool, src, node.DirectionOutput, 0,
			s16Stereo.Object(param.IDFormat))
		Expect(err).NotTo(HaveOccurred())
	}

	BeforeEach(func() {
		pool = shm.MakeBuilder().Build()
		cfg = testsrc.DefaultConfig()
		cfg.Buffers = 2
		cfg.Quantum = 64
	})

	AfterEach(func() {
		if out != nil {
			Expect(out.Close()).To(Succeed())
			out = nil
		}
		Expect(pool.Close()).To(Succeed())
	})

	It("should reject bad configurations", func() {
		bad := cfg
		bad.Formats = nil
		_, err := testsrc.New("src", bad)
		Expect(err).To(MatchError(result.ErrInvalidArgument))

		bad = cfg
		bad.Formats = []param.AudioFormat{param.AudioFormat(99)}
		_, err = testsrc.New("src", bad)
		Expect(err).To(MatchError(result.ErrNotSupported))

		bad = cfg
		bad.Quantum = 0
		_, err = testsrc.New("src", bad)
		Expect(err).To(MatchError(result.ErrInvalidArgument))
	})

	It("should reject formats it was not configured with", func() {
		src, err := testsrc.New("src", cfg)
		Expect(err).NotTo(HaveOccurred())

		f64 := param.AudioInfo{Format: param.AudioFormatF64, Rate: 48000, Channels: 2}
		err = src.PortSetParam(node.DirectionOutput, 0, param.IDFormat, 0,
			f64.Object(param.IDFormat))
		Expect(err).To(MatchError(result.ErrNotSupported))
	})

	It("should ask for quantum sized buffers", func() {
		attach()

		Expect(out.Set.Len()).To(Equal(2))
		Expect(out.Buffer(0).Datas[0].MaxSize).To(BeNumerically(">=", 64*4))
		Expect(out.Buffer(0).Header()).NotTo(BeNil())
		Expect(src.Format()).To(Equal(s16Stereo))
	})

	It("should not produce before start", func() {
		attach()

		Expect(src.Process()).To(Equal(node.StatusOK))
		Expect(src.Produced()).To(BeZero())
	})

	It("should fill a ramp", func() {
		attach()
		Expect(src.SendCommand(node.CommandStart)).To(Succeed())

		Expect(src.Process()).To(Equal(node.StatusHaveBuffer))
		Expect(out.IO.BufferID).To(Equal(uint32(0)))

		samples := out.Samples(s16Stereo)
		Expect(samples).To(HaveLen(128))
		Expect(samples[0]).To(BeNumerically("~", -1, 1e-3))
		Expect(samples[1]).To(Equal(samples[0]))
		Expect(samples[126]).To(BeNumerically("~", testsrc.Ramp(63, 48000), 1e-3))

		h := out.Buffer(0).Header()
		Expect(h.Seq).To(BeZero())
		Expect(h.PTS).To(BeZero())
	})

	It("should wait until the peer took the buffer", func() {
		attach()
		Expect(src.SendCommand(node.CommandStart)).To(Succeed())

		Expect(src.Process()).To(Equal(node.StatusHaveBuffer))
		Expect(src.Process()).To(Equal(node.StatusOK))
		Expect(src.Produced()).To(Equal(uint64(1)))

		out.Consume()
		Expect(src.Process()).To(Equal(node.StatusHaveBuffer))
		Expect(out.IO.BufferID).To(Equal(uint32(1)))
		Expect(out.Buffer(1).Header().Seq).To(Equal(uint64(1)))
		Expect(out.Buffer(1).Header().PTS).To(Equal(int64(64 * 1_000_000_000 / 48000)))

		out.Consume()
		Expect(src.Process()).To(Equal(node.StatusHaveBuffer))
		Expect(out.IO.BufferID).To(Equal(uint32(0)))
	})

	It("should count cycles without a free buffer", func() {
		attach()
		Expect(src.SendCommand(node.CommandStart)).To(Succeed())

		hold := func() {
			out.IO.Status = node.StatusNeedBuffer
			out.IO.BufferID = node.InvalidID
		}

		Expect(src.Process()).To(Equal(node.StatusHaveBuffer))
		hold()
		Expect(src.Process()).To(Equal(node.StatusHaveBuffer))
		hold()
		Expect(src.Process()).To(Equal(node.StatusOK))
		Expect(src.Starved()).To(Equal(uint64(1)))

		Expect(src.PortReuseBuffer(0, 0)).To(Succeed())
		Expect(src.Process()).To(Equal(node.StatusHaveBuffer))
		Expect(out.IO.BufferID).To(Equal(uint32(0)))
	})

	It("should only produce after a push in push mode", func() {
		cfg.Mode = testsrc.ModePush
		attach()

		signalled := 0
		src.SetCallbacks(node.CallbackFuncs{
			HaveOutputFunc: func() { signalled++ },
		})
		Expect(src.SendCommand(node.CommandStart)).To(Succeed())

		Expect(src.Process()).To(Equal(node.StatusOK))

		src.Push()
		Expect(signalled).To(Equal(1))
		Expect(src.Process()).To(Equal(node.StatusHaveBuffer))

		out.Consume()
		Expect(src.Process()).To(Equal(node.StatusOK))
		Expect(src.Produced()).To(Equal(uint64(1)))
	})

	It("should parse modes", func() {
		m, err := testsrc.ParseMode("push")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(testsrc.ModePush))

		m, err = testsrc.ParseMode("")
		Expect(err).NotTo(HaveOccurred())
		Expect(m).To(Equal(testsrc.ModePull))

		_, err = testsrc.ParseMode("sideways")
		Expect(err).To(MatchError(result.ErrInvalidArgument))
	})
})
