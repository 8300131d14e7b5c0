package node

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/instrumentation/hooking"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

type stateRecorder struct {
	changes []StateChange
}

func (r *stateRecorder) Func(ctx hooking.HookCtx) {
	if ctx.Pos == HookPosPortStateChanged {
		r.changes = append(r.changes, ctx.Detail.(StateChange))
	}
}

func fakeBuffers(n int) []*buffer.Buffer {
	bufs := make([]*buffer.Buffer, n)
	for i := range bufs {
		bufs[i] = &buffer.Buffer{ID: uint32(i)}
	}

	return bufs
}

var s16Stereo = param.AudioInfo{
	Format:   param.AudioFormatS16,
	Rate:     48000,
	Channels: 2,
}.Object(param.IDFormat)

var _ = Describe("Port", func() {
	var (
		port     *Port
		recorder *stateRecorder
	)

	BeforeEach(func() {
		port = NewPort(DirectionOutput, 3)
		recorder = &stateRecorder{}
		port.AcceptHook(recorder)
	})

	It("should start in init", func() {
		Expect(port.State()).To(Equal(PortStateInit))
		Expect(port.ID()).To(Equal(uint32(3)))
		Expect(port.Direction()).To(Equal(DirectionOutput))
	})

	It("should walk init, configure, ready, paused", func() {
		port.Attach()
		Expect(port.SetFormat(s16Stereo)).To(Succeed())
		Expect(port.SetBuffers(fakeBuffers(2))).To(Succeed())

		Expect(recorder.changes).To(Equal([]StateChange{
			{From: PortStateInit, To: PortStateConfigure},
			{From: PortStateConfigure, To: PortStateReady},
			{From: PortStateReady, To: PortStatePaused},
		}))
	})

	It("should refuse a format before being attached", func() {
		err := port.SetFormat(s16Stereo)

		Expect(errors.Is(err, result.ErrIO)).To(BeTrue())
		Expect(port.State()).To(Equal(PortStateInit))
	})

	It("should refuse buffers without a format", func() {
		port.Attach()

		err := port.SetBuffers(fakeBuffers(1))

		Expect(errors.Is(err, result.ErrNoFormat)).To(BeTrue())
		Expect(port.State()).To(Equal(PortStateConfigure))
	})

	It("should go back to ready with an empty table", func() {
		port.Attach()
		_ = port.SetFormat(s16Stereo)
		_ = port.SetBuffers(fakeBuffers(2))

		Expect(port.SetBuffers(nil)).To(Succeed())

		Expect(port.State()).To(Equal(PortStateReady))
		Expect(port.NumBuffers()).To(BeZero())
	})

	DescribeTable("null format from any state",
		func(setup func()) {
			setup()

			Expect(port.SetFormat(nil)).To(Succeed())

			Expect(port.State()).To(Equal(PortStateConfigure))
			Expect(port.NumBuffers()).To(BeZero())
			Expect(port.Format()).To(BeNil())
		},
		Entry("init", func() {}),
		Entry("configure", func() { port.Attach() }),
		Entry("ready", func() {
			port.Attach()
			_ = port.SetFormat(s16Stereo)
		}),
		Entry("paused", func() {
			port.Attach()
			_ = port.SetFormat(s16Stereo)
			_ = port.SetBuffers(fakeBuffers(3))
		}),
	)

	It("should release buffers when the format changes", func() {
		port.Attach()
		_ = port.SetFormat(s16Stereo)
		_ = port.SetBuffers(fakeBuffers(3))

		Expect(port.SetFormat(s16Stereo.Clone())).To(Succeed())

		Expect(port.State()).To(Equal(PortStateReady))
		Expect(port.NumBuffers()).To(BeZero())
	})

	It("should bound the buffer table", func() {
		port.Attach()
		_ = port.SetFormat(s16Stereo)

		err := port.SetBuffers(fakeBuffers(MaxBuffers + 1))

		Expect(errors.Is(err, result.ErrNoSpace)).To(BeTrue())
		Expect(port.State()).To(Equal(PortStateReady))
	})

	It("should require buffer ids to match their slots", func() {
		port.Attach()
		_ = port.SetFormat(s16Stereo)
		bufs := fakeBuffers(2)
		bufs[1].ID = 7

		err := port.SetBuffers(bufs)

		Expect(errors.Is(err, result.ErrInvalidArgument)).To(BeTrue())
	})

	Context("output queue", func() {
		BeforeEach(func() {
			port.Attach()
			_ = port.SetFormat(s16Stereo)
			_ = port.SetBuffers(fakeBuffers(3))
		})

		It("should start with every buffer queued in order", func() {
			Expect(port.Queued()).To(Equal([]uint32{0, 1, 2}))
		})

		It("should requeue at the tail", func() {
			b, ok := port.Dequeue()
			Expect(ok).To(BeTrue())
			Expect(b.ID).To(Equal(uint32(0)))

			Expect(port.ReuseBuffer(0)).To(Succeed())

			Expect(port.Queued()).To(Equal([]uint32{1, 2, 0}))
		})

		It("should ignore reuse of a queued buffer", func() {
			Expect(port.ReuseBuffer(1)).To(Succeed())
			Expect(port.Queued()).To(Equal([]uint32{0, 1, 2}))
		})

		It("should reject unknown buffers", func() {
			err := port.ReuseBuffer(3)
			Expect(errors.Is(err, result.ErrInvalidArgument)).To(BeTrue())
		})

		It("should run dry", func() {
			for i := 0; i < 3; i++ {
				_, ok := port.Dequeue()
				Expect(ok).To(BeTrue())
			}

			_, ok := port.Dequeue()
			Expect(ok).To(BeFalse())
		})
	})

	Context("input buffers", func() {
		BeforeEach(func() {
			port = NewPort(DirectionInput, 0)
			port.Attach()
			_ = port.SetFormat(s16Stereo)
			_ = port.SetBuffers(fakeBuffers(2))
		})

		It("should start free", func() {
			Expect(port.Queued()).To(BeEmpty())
			Expect(port.CheckedOut(0)).To(BeFalse())
			Expect(port.CheckedOut(1)).To(BeFalse())
		})

		It("should check out and release", func() {
			b, err := port.CheckOut(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.ID).To(Equal(uint32(1)))
			Expect(port.CheckedOut(1)).To(BeTrue())

			port.Release(1)

			Expect(port.CheckedOut(1)).To(BeFalse())
		})
	})

	Context("io", func() {
		It("should install and remove the buffers area", func() {
			io := NewIOBuffers()

			Expect(port.SetIO(IOTypeBuffers, io)).To(Succeed())
			Expect(port.IO()).To(BeIdenticalTo(io))

			Expect(port.SetIO(IOTypeBuffers, nil)).To(Succeed())
			Expect(port.IO()).To(BeNil())

			var typedNil *IOBuffers
			Expect(port.SetIO(IOTypeBuffers, io)).To(Succeed())
			Expect(port.SetIO(IOTypeBuffers, typedNil)).To(Succeed())
			Expect(port.IO()).To(BeNil())
		})

		It("should reject a mismatched area", func() {
			err := port.SetIO(IOTypeBuffers, &IOClock{})
			Expect(errors.Is(err, result.ErrInvalidArgument)).To(BeTrue())
		})

		It("should not take node-level areas", func() {
			err := port.SetIO(IOTypeClock, &IOClock{})
			Expect(errors.Is(err, result.ErrNotFound)).To(BeTrue())
		})
	})

	It("should complete a pending format", func() {
		port.Attach()
		port.SetPendingFormat(4, s16Stereo)
		Expect(port.State()).To(Equal(PortStateConfigure))

		Expect(port.CompleteFormat(3, nil)).To(BeFalse())
		Expect(port.CompleteFormat(4, nil)).To(BeTrue())

		Expect(port.State()).To(Equal(PortStateReady))
		Expect(port.Format()).To(BeIdenticalTo(s16Stereo))
	})

	It("should stay in configure when a pending format fails", func() {
		port.Attach()
		port.SetPendingFormat(4, s16Stereo)

		Expect(port.CompleteFormat(4, result.ErrNotSupported)).To(BeTrue())

		Expect(port.State()).To(Equal(PortStateConfigure))
		Expect(port.Format()).To(BeNil())
	})
})
