package buffer

import (
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/sarchlab/mediagraph/mem/shm"
	"github.com/sarchlab/mediagraph/param"
	"github.com/sarchlab/mediagraph/result"
)

// DefaultAlign is used when a requirement does not name an alignment.
const DefaultAlign = 16

// Requirements is the negotiated shape of a buffer set.
type Requirements struct {
	Buffers  uint32
	Blocks   uint32
	Size     uint32
	Stride   uint32
	Align    uint32
	DataType DataType
	Metas    []param.MetaInfo
}

// RequirementsFrom combines a fixated Buffers param with Meta params.
func RequirementsFrom(info param.BuffersInfo, metas ...param.MetaInfo) Requirements {
	dt := DataTypeMemFd
	if info.DataType != 0 && info.DataType&DataTypeMemFd.Mask() == 0 {
		dt = DataTypeMemPtr
	}

	return Requirements{
		Buffers:  info.Buffers,
		Blocks:   info.Blocks,
		Size:     info.Size,
		Stride:   info.Stride,
		Align:    info.Align,
		DataType: dt,
		Metas:    metas,
	}
}

type layout struct {
	metaOffsets  []uint64
	chunkOffset  uint64
	dataOffset   uint64
	dataStride   uint64
	bufferStride uint64
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

func (r Requirements) layout() (layout, error) {
	if r.Buffers == 0 || r.Blocks == 0 || r.Size == 0 {
		return layout{}, fmt.Errorf("buffers %d blocks %d size %d: %w",
			r.Buffers, r.Blocks, r.Size, result.ErrInvalidArgument)
	}

	align := uint64(r.Align)
	if align == 0 {
		align = DefaultAlign
	}

	if bits.OnesCount64(align) != 1 {
		return layout{}, fmt.Errorf("align %d: %w", align, result.ErrInvalidArgument)
	}

	align = max(align, 8)

	var l layout
	var off uint64
	for _, m := range r.Metas {
		size := uint64(m.Size)
		if MetaType(m.Type) == MetaTypeHeader {
			size = max(size, uint64(MetaHeaderSize))
		}

		l.metaOffsets = append(l.metaOffsets, off)
		off += alignUp(size, 8)
	}

	l.chunkOffset = off
	off += chunkSize * uint64(r.Blocks)

	l.dataOffset = alignUp(off, align)
	l.dataStride = alignUp(uint64(r.Size), align)
	l.bufferStride = l.dataOffset + l.dataStride*uint64(r.Blocks)

	return l, nil
}

// Set is a group of buffers sharing one memory block.
type Set struct {
	pool    *shm.Pool
	block   *shm.Block
	req     Requirements
	region  *shm.MemMap
	Buffers []*Buffer
}

// Alloc allocates a buffer set in one sealed block of the pool.
func Alloc(pool *shm.Pool, req Requirements) (*Set, error) {
	l, err := req.layout()
	if err != nil {
		return nil, err
	}

	total := l.bufferStride * uint64(req.Buffers)

	block, err := pool.Alloc(shm.FlagReadWrite|shm.FlagSeal, total)
	if err != nil {
		return nil, err
	}

	s, err := build(pool, block, req, l)
	if err != nil {
		_ = pool.Free(block)
		return nil, err
	}

	for _, b := range s.Buffers {
		for i := range b.Datas {
			*b.Datas[i].Chunk = Chunk{Stride: int32(req.Stride), Flags: ChunkFlagEmpty}
		}
	}

	return s, nil
}

// Import rebuilds a buffer set exported by another pool. The buffers share
// memory with the exporting set.
func Import(pool *shm.Pool, d shm.Descriptor, req Requirements) (*Set, error) {
	l, err := req.layout()
	if err != nil {
		return nil, err
	}

	if d.Size < l.bufferStride*uint64(req.Buffers) {
		return nil, fmt.Errorf("import %d bytes for %d: %w",
			d.Size, l.bufferStride*uint64(req.Buffers), shm.ErrOutOfBounds)
	}

	block, err := pool.ImportDescriptor(d)
	if err != nil {
		return nil, err
	}

	s, err := build(pool, block, req, l)
	if err != nil {
		_ = pool.Free(block)
		return nil, err
	}

	return s, nil
}

func build(pool *shm.Pool, block *shm.Block, req Requirements, l layout) (*Set, error) {
	total := l.bufferStride * uint64(req.Buffers)

	region, err := pool.Map(block, shm.MapReadWrite, 0, total,
		shm.Tag{block.ID()})
	if err != nil {
		return nil, err
	}

	s := &Set{pool: pool, block: block, req: req, region: region}
	mem := region.Bytes()

	for i := uint32(0); i < req.Buffers; i++ {
		base := uint64(i) * l.bufferStride
		b := &Buffer{ID: i}
		s.Buffers = append(s.Buffers, b)

		for n, m := range req.Metas {
			off := base + l.metaOffsets[n]
			size := uint64(m.Size)
			if MetaType(m.Type) == MetaTypeHeader {
				size = max(size, uint64(MetaHeaderSize))
			}
			b.Metas = append(b.Metas, Meta{
				Type: MetaType(m.Type),
				Size: uint32(size),
				Data: mem[off : off+size : off+size],
			})
		}

		for n := uint32(0); n < req.Blocks; n++ {
			chunk := (*Chunk)(unsafe.Pointer(
				&mem[base+l.chunkOffset+uint64(n)*chunkSize]))
			off := base + l.dataOffset + uint64(n)*l.dataStride

			m, err := pool.Map(block, shm.MapReadWrite, off, uint64(req.Size),
				shm.Tag{block.ID(), i, n + 1})
			if err != nil {
				s.release()
				return nil, err
			}

			d := Data{
				Type:      req.DataType,
				FD:        -1,
				MapOffset: uint32(off),
				MaxSize:   req.Size,
				Map:       m,
				Chunk:     chunk,
			}
			if req.DataType == DataTypeMemFd {
				d.FD = block.FD()
			}

			b.Datas = append(b.Datas, d)
		}
	}

	return s, nil
}

// Block returns the backing block.
func (s *Set) Block() *shm.Block {
	return s.block
}

// Requirements returns the shape of the set.
func (s *Set) Requirements() Requirements {
	return s.req
}

// Export describes the backing block for Import in another pool.
func (s *Set) Export() shm.Descriptor {
	return s.block.Export()
}

// Len returns the number of buffers.
func (s *Set) Len() int {
	return len(s.Buffers)
}

func (s *Set) release() {
	for _, b := range s.Buffers {
		for i := range b.Datas {
			if b.Datas[i].Map != nil {
				_ = b.Datas[i].Map.Free()
				b.Datas[i].Map = nil
			}
		}
	}

	if s.region != nil {
		_ = s.region.Free()
		s.region = nil
	}
}

// Free releases the mappings and the block reference. The buffers must no
// longer be attached to any port.
func (s *Set) Free() error {
	if s.block == nil {
		return nil
	}

	s.release()

	err := s.pool.Free(s.block)
	s.block = nil
	s.Buffers = nil

	return err
}
