// Package audio holds the format and sample helpers shared by the audio
// nodes.
package audio

import (
	"encoding/binary"
	"math"

	"github.com/sarchlab/mediagraph/buffer"
	"github.com/sarchlab/mediagraph/node"
	"github.com/sarchlab/mediagraph/param"
)

// MaxRate bounds the rates a node offers.
const MaxRate = 384000

// MaxChannels bounds the channel counts a node offers.
const MaxChannels = 64

// HeaderMeta asks for a header record on every buffer.
var HeaderMeta = param.MetaInfo{
	Type: uint32(buffer.MetaTypeHeader),
	Size: buffer.MetaHeaderSize,
}

// Supported reports whether the helpers can read and write f.
func Supported(f param.AudioFormat) bool {
	switch f {
	case param.AudioFormatS16, param.AudioFormatS32,
		param.AudioFormatF32, param.AudioFormatF64:
		return true
	default:
		return false
	}
}

// FormatObject builds an EnumFormat object offering formats, preferring the
// first, with a preferred rate and channel count. A zero rate or channel
// count accepts any value.
func FormatObject(formats []param.AudioFormat, rate, channels uint32) *param.Object {
	ids := make([]uint32, len(formats))
	for i, f := range formats {
		ids[i] = uint32(f)
	}

	obj := param.NewObject(param.TypeFormat, param.IDEnumFormat).
		Set(param.KeyMediaType, param.Id(param.MediaTypeAudio)).
		Set(param.KeyMediaSubtype, param.Id(param.MediaSubtypeRaw)).
		Set(param.KeyAudioFormat, param.EnumID(ids[0], ids...))

	if rate == 0 {
		obj.Set(param.KeyAudioRate, param.RangeInt(48000, 1, MaxRate))
	} else {
		obj.Set(param.KeyAudioRate, param.Int(int64(rate)))
	}

	if channels == 0 {
		obj.Set(param.KeyAudioChannels, param.RangeInt(2, 1, MaxChannels))
	} else {
		obj.Set(param.KeyAudioChannels, param.Int(int64(channels)))
	}

	return obj
}

// ProducerBuffers is the fixed requirement of a node that fills buffers of
// quantum frames.
func ProducerBuffers(buffers, quantum uint32, info param.AudioInfo) *param.Object {
	bpf := info.BytesPerFrame()

	return param.BuffersInfo{
		Buffers: buffers,
		Blocks:  1,
		Size:    quantum * bpf,
		Stride:  bpf,
		Align:   buffer.DefaultAlign,
	}.Object()
}

// ConsumerBuffers accepts anything from two buffers of one frame up to the
// port limit.
func ConsumerBuffers(info param.AudioInfo) *param.Object {
	bpf := int64(info.BytesPerFrame())

	return param.NewObject(param.TypeParamBuffers, param.IDBuffers).
		Set(param.KeyBuffersBuffers, param.RangeInt(4, 2, node.MaxBuffers)).
		Set(param.KeyBuffersBlocks, param.Int(1)).
		Set(param.KeyBuffersSize, param.RangeInt(1024*bpf, bpf, math.MaxInt32)).
		Set(param.KeyBuffersStride, param.Int(bpf))
}

// Sample reads sample i of data as a float in [-1, 1].
func Sample(f param.AudioFormat, data []byte, i uint32) float64 {
	switch f {
	case param.AudioFormatS16:
		return float64(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	case param.AudioFormatS32:
		return float64(int32(binary.LittleEndian.Uint32(data[i*4:]))) / 2147483648
	case param.AudioFormatF32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	case param.AudioFormatF64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	default:
		return 0
	}
}

// PutSample writes v, clamped to [-1, 1], as sample i of data.
func PutSample(f param.AudioFormat, data []byte, i uint32, v float64) {
	v = max(-1, min(1, v))

	switch f {
	case param.AudioFormatS16:
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(math.Round(v*32767))))
	case param.AudioFormatS32:
		binary.LittleEndian.PutUint32(data[i*4:], uint32(int32(math.Round(v*2147483647))))
	case param.AudioFormatF32:
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(v)))
	case param.AudioFormatF64:
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
	}
}

// Fill marks the first frames of d valid.
func Fill(d *buffer.Data, frames uint32, info param.AudioInfo) {
	bpf := info.BytesPerFrame()

	d.Chunk.Offset = 0
	d.Chunk.Size = frames * bpf
	d.Chunk.Stride = int32(bpf)
	d.Chunk.Flags = buffer.ChunkFlagNone
}
