package param_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/mediagraph/param"
)

var _ = Describe("Intersect", func() {
	It("should intersect enums keeping the preferred value", func() {
		a := param.EnumID(3, 1, 2, 3)
		b := param.EnumID(2, 2, 3, 4)

		v, err := param.Intersect(a, b)

		Expect(err).NotTo(HaveOccurred())
		Expect(v.Choice).To(Equal(param.ChoiceEnum))
		Expect(v.Default().X).To(Equal(int64(3)))
		Expect(v.Values[1:]).To(HaveLen(2))
	})

	It("should collapse a single survivor", func() {
		v, err := param.Intersect(param.EnumID(1, 1, 2), param.Id(2))

		Expect(err).NotTo(HaveOccurred())
		Expect(v.Choice).To(Equal(param.ChoiceNone))
		Expect(v.Default().X).To(Equal(int64(2)))
	})

	It("should intersect ranges", func() {
		v, err := param.Intersect(
			param.RangeInt(48000, 8000, 96000),
			param.RangeInt(44100, 44100, 192000))

		Expect(err).NotTo(HaveOccurred())
		Expect(v.Choice).To(Equal(param.ChoiceRange))
		Expect(v.Values[1].X).To(Equal(int64(44100)))
		Expect(v.Values[2].X).To(Equal(int64(96000)))
		Expect(v.Default().X).To(Equal(int64(48000)))
	})

	It("should filter an enum through a range", func() {
		v, err := param.Intersect(
			param.EnumInt(44100, 22050, 44100, 48000),
			param.RangeInt(48000, 40000, 50000))

		Expect(err).NotTo(HaveOccurred())
		Expect(v.Choice).To(Equal(param.ChoiceEnum))
		Expect(v.Default().X).To(Equal(int64(44100)))
		Expect(v.Values[1:]).To(ConsistOf(
			param.Pod{X: 44100}, param.Pod{X: 48000}))
	})

	It("should honor steps", func() {
		v, err := param.Intersect(
			param.StepInt(1024, 256, 4096, 256),
			param.EnumInt(1000, 1000, 1280))

		Expect(err).NotTo(HaveOccurred())
		Expect(v.Choice).To(Equal(param.ChoiceNone))
		Expect(v.Default().X).To(Equal(int64(1280)))
	})

	It("should intersect rectangles per dimension", func() {
		v, err := param.Intersect(
			param.RangeRect(param.Pod{X: 640, Y: 480},
				param.Pod{X: 1, Y: 1}, param.Pod{X: 1920, Y: 1080}),
			param.Rect(320, 240))

		Expect(err).NotTo(HaveOccurred())
		Expect(v.Default()).To(Equal(param.Pod{X: 320, Y: 240}))
	})

	It("should compare fractions by value", func() {
		v, err := param.Intersect(param.Frac(30, 1), param.Frac(60, 2))

		Expect(err).NotTo(HaveOccurred())
		Expect(v.Default()).To(Equal(param.Pod{X: 30, Y: 1}))
	})

	It("should fail on disjoint values", func() {
		_, err := param.Intersect(param.RangeInt(1, 1, 2), param.RangeInt(5, 5, 9))
		Expect(errors.Is(err, param.ErrNoMatch)).To(BeTrue())

		_, err = param.Intersect(param.Int(1), param.Id(1))
		Expect(errors.Is(err, param.ErrNoMatch)).To(BeTrue())
	})

	It("should reject malformed values", func() {
		bad := param.Value{Kind: param.KindInt, Choice: param.ChoiceRange}

		_, err := param.Intersect(bad, param.Int(1))

		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Filter", func() {
	var format *param.Object

	BeforeEach(func() {
		format = param.NewObject(param.TypeFormat, param.IDEnumFormat).
			Set(param.KeyMediaType, param.Id(param.MediaTypeAudio)).
			Set(param.KeyAudioFormat, param.EnumID(
				uint32(param.AudioFormatF32),
				uint32(param.AudioFormatS16),
				uint32(param.AudioFormatF32))).
			Set(param.KeyAudioRate, param.RangeInt(48000, 1, 384000))
	})

	It("should pass through keys missing on either side", func() {
		filter := param.NewObject(param.TypeFormat, param.IDFormat).
			Set(param.KeyAudioRate, param.Int(44100)).
			Set(param.KeyAudioChannels, param.Int(2))

		out, err := param.Filter(format, filter)

		Expect(err).NotTo(HaveOccurred())
		Expect(out.ID).To(Equal(param.IDEnumFormat))
		rate, _ := out.Int(param.KeyAudioRate)
		Expect(rate).To(Equal(int64(44100)))
		ch, ok := out.Int(param.KeyAudioChannels)
		Expect(ok).To(BeTrue())
		Expect(ch).To(Equal(int64(2)))
		_, ok = out.Find(param.KeyAudioFormat)
		Expect(ok).To(BeTrue())
	})

	It("should not modify its inputs", func() {
		filter := param.NewObject(param.TypeFormat, param.IDFormat).
			Set(param.KeyAudioRate, param.Int(44100))

		_, err := param.Filter(format, filter)
		Expect(err).NotTo(HaveOccurred())

		p, _ := format.Find(param.KeyAudioRate)
		Expect(p.Value.Choice).To(Equal(param.ChoiceRange))
	})

	It("should fail on type mismatch", func() {
		_, err := param.Filter(format, param.NewObject(param.TypeProps, param.IDProps))

		Expect(errors.Is(err, param.ErrNoMatch)).To(BeTrue())
	})

	It("should copy without a filter", func() {
		out, err := param.Filter(format, nil)

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(format))
		Expect(out).NotTo(BeIdenticalTo(format))
	})
})

var _ = Describe("Fixate", func() {
	It("should collapse every choice", func() {
		obj := param.NewObject(param.TypeParamBuffers, param.IDBuffers).
			Set(param.KeyBuffersBuffers, param.RangeInt(100, 1, 64)).
			Set(param.KeyBuffersSize, param.StepInt(1000, 0, 4096, 256)).
			Set(param.KeyBuffersStride, param.EnumInt(3, 4, 8))

		out := param.Fixate(obj)

		Expect(param.IsFixated(out)).To(BeTrue())
		Expect(param.IsFixated(obj)).To(BeFalse())
		n, _ := out.Int(param.KeyBuffersBuffers)
		Expect(n).To(Equal(int64(64)))
		size, _ := out.Int(param.KeyBuffersSize)
		Expect(size).To(Equal(int64(768)))
		stride, _ := out.Int(param.KeyBuffersStride)
		Expect(stride).To(Equal(int64(4)))
	})
})

var _ = Describe("Enumerate", func() {
	var objs []*param.Object

	BeforeEach(func() {
		objs = []*param.Object{
			param.AudioInfo{Format: param.AudioFormatS16, Rate: 44100, Channels: 2}.
				Object(param.IDEnumFormat),
			param.AudioInfo{Format: param.AudioFormatF32, Rate: 48000, Channels: 2}.
				Object(param.IDEnumFormat),
		}
	})

	It("should walk the cursor", func() {
		obj, next, err := param.Enumerate(objs, 0, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(Equal(uint32(1)))
		Expect(obj).To(Equal(objs[0]))

		_, next, err = param.Enumerate(objs, next, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(Equal(uint32(2)))

		_, _, err = param.Enumerate(objs, next, nil)
		Expect(err).To(Equal(param.ErrEnumEnd))
	})

	It("should skip objects the filter rejects", func() {
		filter := param.NewObject(param.TypeFormat, param.IDFormat).
			Set(param.KeyAudioRate, param.Int(48000))

		obj, next, err := param.Enumerate(objs, 0, filter)

		Expect(err).NotTo(HaveOccurred())
		Expect(next).To(Equal(uint32(2)))
		f, _ := obj.Int(param.KeyAudioFormat)
		Expect(param.AudioFormat(f)).To(Equal(param.AudioFormatF32))
	})
})
