// Package buffer describes negotiated media buffers. A buffer is a list of
// data planes and metadata, all living in shared memory so that producer
// and consumer see the same bytes.
package buffer

import (
	"unsafe"

	"github.com/sarchlab/mediagraph/mem/shm"
)

// DataType is the storage kind of a data plane.
type DataType uint32

// Data types.
const (
	DataTypeInvalid DataType = iota
	DataTypeMemPtr
	DataTypeMemFd
	DataTypeDmaBuf
)

// Mask returns the bit used in a Buffers param DataType mask.
func (t DataType) Mask() uint32 {
	return 1 << uint32(t)
}

func (t DataType) String() string {
	switch t {
	case DataTypeMemPtr:
		return "MemPtr"
	case DataTypeMemFd:
		return "MemFd"
	case DataTypeDmaBuf:
		return "DmaBuf"
	default:
		return "Invalid"
	}
}

// Chunk flags.
const (
	ChunkFlagNone      int32 = 0
	ChunkFlagCorrupted int32 = 1 << 0
	ChunkFlagEmpty     int32 = 1 << 1
)

// Chunk is the valid region of a data plane. It lives in shared memory and
// is changed in place by whichever side owns the buffer.
type Chunk struct {
	Offset uint32
	Size   uint32
	Stride int32
	Flags  int32
}

const chunkSize = uint64(unsafe.Sizeof(Chunk{}))

// Frames returns the number of whole frames in the chunk. Partial frames
// are dropped.
func (c *Chunk) Frames(bytesPerFrame uint32) uint32 {
	if bytesPerFrame == 0 {
		return 0
	}

	return c.Size / bytesPerFrame
}

// Data is one plane of a buffer.
type Data struct {
	Type      DataType
	Flags     uint32
	FD        int
	MapOffset uint32
	MaxSize   uint32
	Map       *shm.MemMap
	Chunk     *Chunk
}

// Bytes returns the whole plane.
func (d *Data) Bytes() []byte {
	if d.Map == nil {
		return nil
	}

	return d.Map.Bytes()
}

// Payload returns the valid region described by the chunk, clamped to the
// plane.
func (d *Data) Payload() []byte {
	b := d.Bytes()
	if b == nil {
		return nil
	}

	start := uint64(d.Chunk.Offset) % uint64(d.MaxSize)
	end := min(start+uint64(d.Chunk.Size), uint64(d.MaxSize))

	return b[start:end]
}

// Frames returns the whole frames in the valid region.
func (d *Data) Frames(bytesPerFrame uint32) uint32 {
	if bytesPerFrame == 0 {
		return 0
	}

	return uint32(len(d.Payload())) / bytesPerFrame
}

// MaxFrames returns the number of whole frames the plane can hold.
func (d *Data) MaxFrames(bytesPerFrame uint32) uint32 {
	if bytesPerFrame == 0 {
		return 0
	}

	return d.MaxSize / bytesPerFrame
}

// MetaType identifies a metadata record.
type MetaType uint32

// Metadata types.
const (
	MetaTypeInvalid MetaType = iota
	MetaTypeHeader
	MetaTypeBusy
)

// Header metadata flags.
const (
	HeaderFlagDiscont uint32 = 1 << iota
	HeaderFlagCorrupted
	HeaderFlagGap
)

// MetaHeader is the generic per-buffer header metadata.
type MetaHeader struct {
	Flags     uint32
	Offset    uint32
	PTS       int64
	DTSOffset int64
	Seq       uint64
}

// MetaHeaderSize is the shared memory footprint of a MetaHeader.
const MetaHeaderSize = uint32(unsafe.Sizeof(MetaHeader{}))

// Meta is one metadata record of a buffer.
type Meta struct {
	Type MetaType
	Size uint32
	Data []byte
}

// Header returns the record as a header, nil if it is not one.
func (m *Meta) Header() *MetaHeader {
	if m.Type != MetaTypeHeader || uint32(len(m.Data)) < MetaHeaderSize {
		return nil
	}

	return (*MetaHeader)(unsafe.Pointer(&m.Data[0]))
}

// Buffer is one negotiated buffer.
type Buffer struct {
	ID    uint32
	Metas []Meta
	Datas []Data
}

// FindMeta returns the first record of the given type.
func (b *Buffer) FindMeta(t MetaType) *Meta {
	for i := range b.Metas {
		if b.Metas[i].Type == t {
			return &b.Metas[i]
		}
	}

	return nil
}

// Header returns the header metadata if the buffer carries one.
func (b *Buffer) Header() *MetaHeader {
	m := b.FindMeta(MetaTypeHeader)
	if m == nil {
		return nil
	}

	return m.Header()
}
