package shm_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"

	"github.com/sarchlab/mediagraph/mem/shm"
	"github.com/sarchlab/mediagraph/result"
)

var _ = Describe("Map", func() {
	var (
		pool     *shm.Pool
		block    *shm.Block
		pageSize uint64
	)

	BeforeEach(func() {
		pageSize = uint64(unix.Getpagesize())
		pool = shm.MakeBuilder().Build()

		var err error
		block, err = pool.Alloc(shm.FlagReadWrite, 4*pageSize)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(pool.Close()).To(Succeed())
	})

	It("should fail out of bounds without crashing", func() {
		_, err := pool.Map(block, shm.MapRead, 3*pageSize, 2*pageSize, shm.Tag{})

		Expect(errors.Is(err, shm.ErrOutOfBounds)).To(BeTrue())
		Expect(errors.Is(err, result.ErrInvalidArgument)).To(BeTrue())
	})

	It("should fail on offset overflow", func() {
		_, err := pool.Map(block, shm.MapRead, ^uint64(0)-1, 16, shm.Tag{})

		Expect(errors.Is(err, shm.ErrOutOfBounds)).To(BeTrue())
	})

	It("should map sub-page offsets", func() {
		m, err := pool.Map(block, shm.MapReadWrite, 10, 20, shm.Tag{})
		Expect(err).NotTo(HaveOccurred())

		Expect(m.Bytes()).To(HaveLen(20))
		Expect(m.Mapping().Offset()).To(Equal(uint64(0)))
		Expect(m.Mapping().Size()).To(Equal(pageSize))
	})

	It("should reuse a covering mapping", func() {
		whole, err := pool.Map(block, shm.MapReadWrite, 0, 4*pageSize, shm.Tag{})
		Expect(err).NotTo(HaveOccurred())
		part, err := pool.Map(block, shm.MapRead, pageSize+5, 100, shm.Tag{})
		Expect(err).NotTo(HaveOccurred())

		Expect(part.Mapping()).To(BeIdenticalTo(whole.Mapping()))
		Expect(whole.Mapping().Refs()).To(Equal(2))
		Expect(pool.Stats().Mappings).To(Equal(1))

		whole.Bytes()[pageSize+5] = 7
		Expect(part.Bytes()[0]).To(Equal(byte(7)))
	})

	It("should not reuse a mapping with weaker protection", func() {
		ro, err := pool.Map(block, shm.MapRead, 0, pageSize, shm.Tag{})
		Expect(err).NotTo(HaveOccurred())
		rw, err := pool.Map(block, shm.MapReadWrite, 0, pageSize, shm.Tag{})
		Expect(err).NotTo(HaveOccurred())

		Expect(rw.Mapping()).NotTo(BeIdenticalTo(ro.Mapping()))
	})

	It("should unmap when the last memmap goes", func() {
		a, _ := pool.Map(block, shm.MapRead, 0, 64, shm.Tag{})
		b, _ := pool.Map(block, shm.MapRead, 64, 64, shm.Tag{})

		Expect(a.Free()).To(Succeed())
		Expect(pool.Stats().Mappings).To(Equal(1))
		Expect(b.Free()).To(Succeed())
		Expect(pool.Stats().Mappings).To(Equal(0))
		Expect(a.Bytes()).To(BeNil())
	})

	It("should find maps by tag", func() {
		tag := shm.Tag{1, 2, 3, 4, 5}
		m, _ := pool.Map(block, shm.MapRead, 0, 64, tag)

		found, ok := pool.FindTag(tag)

		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(m))
		_, ok = pool.FindTag(shm.Tag{9})
		Expect(ok).To(BeFalse())
	})

	It("should map by id", func() {
		m, err := pool.MapID(block.ID(), shm.MapRead, 0, 64, shm.Tag{})
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Block()).To(BeIdenticalTo(block))

		_, err = pool.MapID(99, shm.MapRead, 0, 64, shm.Tag{})
		Expect(errors.Is(err, result.ErrNotFound)).To(BeTrue())
	})

	It("should refuse unmappable blocks", func() {
		b, err := pool.Alloc(shm.FlagReadWrite|shm.FlagUnmappable, 64)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Map(b, shm.MapRead, 0, 64, shm.Tag{})

		Expect(errors.Is(err, result.ErrAccess)).To(BeTrue())
	})

	It("should refuse writable maps of read-only blocks", func() {
		b, err := pool.Alloc(shm.FlagReadable, 64)
		Expect(err).NotTo(HaveOccurred())

		_, err = pool.Map(b, shm.MapReadWrite, 0, 64, shm.Tag{})
		Expect(errors.Is(err, result.ErrAccess)).To(BeTrue())

		_, err = pool.Map(b, shm.MapReadWrite|shm.MapPrivate, 0, 64, shm.Tag{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should release stray mappings when the block goes", func() {
		m, _ := pool.Map(block, shm.MapReadWrite, 0, 64, shm.Tag{})

		Expect(pool.Free(block)).To(Succeed())

		Expect(m.Valid()).To(BeFalse())
		Expect(m.Bytes()).To(BeNil())
		Expect(m.Free()).To(Succeed())
		Expect(pool.Stats()).To(Equal(shm.Stats{}))
	})
})
