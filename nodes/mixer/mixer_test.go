package mixer_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mediagraph/mem/shm"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/nodes/mixer"
	"github.com/sarchlab/mediagraph/nodes/nodetest"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

var f32Mono = param.AudioInfo{
	Format:   param.AudioFormatF32,
	Rate:     48000,
	Channels: 1,
}

func constant(v float64) func(uint32) float64 {
	return func(uint32) float64 { return v }
}

var _ = Describe("Node", func() {
	var (
		pool  *shm.Pool
		mx    *mixer.Node
		ports []*nodetest.Port
	)

	attach := func(dir node.Direction, id uint32) *nodetest.Port {
		p, err := nodetest.Attach(pool, mx, dir, id, f32Mono.Object(param.IDFormat))
		Expect(err).NotTo(HaveOccurred())
		ports = append(ports, p)

		return p
	}

	BeforeEach(func() {
		pool = shm.MakeBuilder().Build()

		cfg := mixer.DefaultConfig()
		cfg.Buffers = 2
		cfg.Quantum = 8

		var err error
		mx, err = mixer.New("mixer", cfg)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		for _, p := range ports {
			Expect(p.Close()).To(Succeed())
		}
		ports = nil
		Expect(pool.Close()).To(Succeed())
	})

	Context("ports", func() {
		It("should add inputs on the lowest free id", func() {
			Expect(mx.AddInput()).To(Equal(uint32(0)))
			Expect(mx.AddInput()).To(Equal(uint32(1)))
			Expect(mx.RemovePort(node.DirectionInput, 0)).To(Succeed())
			Expect(mx.AddInput()).To(Equal(uint32(0)))
			Expect(mx.NumPorts(node.DirectionInput)).To(Equal(2))
		})

		It("should keep its single output", func() {
			Expect(mx.AddPort(node.DirectionOutput, 1)).
				To(MatchError(result.ErrNotSupported))
			Expect(mx.RemovePort(node.DirectionOutput, 0)).
				To(MatchError(result.ErrNotSupported))
		})

		It("should run out of inputs", func() {
			for i := 0; i < node.MaxPorts; i++ {
				_, err := mx.AddInput()
				Expect(err).NotTo(HaveOccurred())
			}

			_, err := mx.AddInput()
			Expect(err).To(MatchError(result.ErrNoSpace))
		})

		It("should offer the chosen format on new inputs", func() {
			Expect(mx.PortSetParam(node.DirectionOutput, 0, param.IDFormat, 0,
				f32Mono.Object(param.IDFormat))).To(Succeed())

			id, err := mx.AddInput()
			Expect(err).NotTo(HaveOccurred())

			obj, _, err := mx.PortEnumParams(node.DirectionInput, id, param.IDEnumFormat, 0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(param.IsFixated(obj)).To(BeTrue())

			s16 := f32Mono
			s16.Format = param.AudioFormatS16
			err = mx.PortSetParam(node.DirectionInput, id, param.IDFormat, 0,
				s16.Object(param.IDFormat))
			Expect(err).To(MatchError(result.ErrNotSupported))
		})

		It("should offer every format again when the last one is cleared", func() {
			Expect(mx.PortSetParam(node.DirectionOutput, 0, param.IDFormat, 0,
				f32Mono.Object(param.IDFormat))).To(Succeed())
			Expect(mx.PortSetParam(node.DirectionOutput, 0, param.IDFormat, 0, nil)).
				To(Succeed())

			obj, _, err := mx.PortEnumParams(node.DirectionOutput, 0, param.IDEnumFormat, 0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(param.IsFixated(obj)).To(BeFalse())
		})
	})

	Context("processing", func() {
		var in0, in1, out *nodetest.Port

		BeforeEach(func() {
			Expect(mx.AddInput()).To(Equal(uint32(0)))
			Expect(mx.AddInput()).To(Equal(uint32(1)))

			in0 = attach(node.DirectionInput, 0)
			in1 = attach(node.DirectionInput, 1)
			out = attach(node.DirectionOutput, 0)

			Expect(mx.SendCommand(node.CommandStart)).To(Succeed())
		})

		It("should sum the inputs", func() {
			in0.Offer(0, f32Mono, 4, constant(0.25))
			in1.Offer(2, f32Mono, 2, constant(0.5))

			Expect(mx.Process()).To(Equal(node.StatusHaveBuffer | node.StatusNeedBuffer))
			Expect(out.Samples(f32Mono)).To(Equal([]float64{0.75, 0.75, 0.25, 0.25}))
			Expect(in0.IO.Status).To(Equal(node.StatusNeedBuffer))
			Expect(in1.IO.Status).To(Equal(node.StatusNeedBuffer))
		})

		It("should pass a single input through", func() {
			in1.Offer(1, f32Mono, 3, constant(-0.5))

			Expect(mx.Process()).To(Equal(node.StatusHaveBuffer | node.StatusNeedBuffer))
			Expect(out.Samples(f32Mono)).To(Equal([]float64{-0.5, -0.5, -0.5}))
		})

		It("should clip the sum", func() {
			in0.Offer(0, f32Mono, 1, constant(0.75))
			in1.Offer(0, f32Mono, 1, constant(0.75))

			Expect(mx.Process()).To(Equal(node.StatusHaveBuffer | node.StatusNeedBuffer))
			Expect(out.Samples(f32Mono)).To(Equal([]float64{1}))
		})

		It("should not produce without input", func() {
			Expect(mx.Process()).To(Equal(node.StatusNeedBuffer))
			Expect(out.IO.Status).To(Equal(node.StatusNeedBuffer))
		})

		It("should number its output", func() {
			in0.Offer(0, f32Mono, 1, constant(0.1))
			Expect(mx.Process()).To(Equal(node.StatusHaveBuffer | node.StatusNeedBuffer))
			Expect(out.Buffer(out.IO.BufferID).Header().Seq).To(BeZero())

			out.Consume()
			in0.Offer(1, f32Mono, 1, constant(0.1))
			Expect(mx.Process()).To(Equal(node.StatusHaveBuffer | node.StatusNeedBuffer))
			Expect(out.IO.BufferID).To(Equal(uint32(1)))
			Expect(out.Buffer(1).Header().Seq).To(Equal(uint64(1)))
		})
	})
})
