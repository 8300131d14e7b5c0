package param

import (
	"fmt"

	"github.com/sarchlab/mediagraph/result"
)

// Media types.
const (
	MediaTypeUnknown uint32 = iota
	MediaTypeAudio
	MediaTypeVideo
)

// Media subtypes.
const (
	MediaSubtypeUnknown uint32 = iota
	MediaSubtypeRaw
)

// AudioFormat is a sample format.
type AudioFormat uint32

// Audio sample formats.
const (
	AudioFormatUnknown AudioFormat = iota
	AudioFormatS16
	AudioFormatS32
	AudioFormatF32
	AudioFormatF64
)

// SampleSize returns the bytes per sample, 0 if unknown.
func (f AudioFormat) SampleSize() uint32 {
	switch f {
	case AudioFormatS16:
		return 2
	case AudioFormatS32, AudioFormatF32:
		return 4
	case AudioFormatF64:
		return 8
	default:
		return 0
	}
}

func (f AudioFormat) String() string {
	switch f {
	case AudioFormatS16:
		return "S16"
	case AudioFormatS32:
		return "S32"
	case AudioFormatF32:
		return "F32"
	case AudioFormatF64:
		return "F64"
	default:
		return "unknown"
	}
}

// ParseAudioFormat turns a name into an AudioFormat.
func ParseAudioFormat(s string) (AudioFormat, error) {
	for _, f := range []AudioFormat{
		AudioFormatS16, AudioFormatS32, AudioFormatF32, AudioFormatF64,
	} {
		if f.String() == s {
			return f, nil
		}
	}

	return AudioFormatUnknown,
		fmt.Errorf("audio format %q: %w", s, result.ErrInvalidArgument)
}

// VideoFormat is a pixel format.
type VideoFormat uint32

// Pixel formats.
const (
	VideoFormatUnknown VideoFormat = iota
	VideoFormatRGBA
	VideoFormatRGB
	VideoFormatGray8
)

// PixelSize returns the bytes per pixel, 0 if unknown.
func (f VideoFormat) PixelSize() uint32 {
	switch f {
	case VideoFormatRGBA:
		return 4
	case VideoFormatRGB:
		return 3
	case VideoFormatGray8:
		return 1
	default:
		return 0
	}
}

// Channel positions.
const (
	ChannelUnknown uint32 = iota
	ChannelMono
	ChannelFL
	ChannelFR
	ChannelFC
	ChannelLFE
	ChannelRL
	ChannelRR
)

// DefaultPosition returns the conventional layout for a channel count.
func DefaultPosition(channels uint32) []uint32 {
	switch channels {
	case 1:
		return []uint32{ChannelMono}
	case 2:
		return []uint32{ChannelFL, ChannelFR}
	case 6:
		return []uint32{ChannelFL, ChannelFR, ChannelFC, ChannelLFE,
			ChannelRL, ChannelRR}
	default:
		return nil
	}
}

// AudioInfo describes raw interleaved audio.
type AudioInfo struct {
	Format   AudioFormat
	Rate     uint32
	Channels uint32
	Position []uint32
}

// BytesPerFrame returns the size of one frame over all channels.
func (i AudioInfo) BytesPerFrame() uint32 {
	return i.Format.SampleSize() * i.Channels
}

// Object builds a fixed format object.
func (i AudioInfo) Object(id ID) *Object {
	obj := NewObject(TypeFormat, id).
		Set(KeyMediaType, Id(MediaTypeAudio)).
		Set(KeyMediaSubtype, Id(MediaSubtypeRaw)).
		Set(KeyAudioFormat, Id(uint32(i.Format))).
		Set(KeyAudioRate, Int(int64(i.Rate))).
		Set(KeyAudioChannels, Int(int64(i.Channels)))

	if len(i.Position) > 0 {
		pos := make([]int64, len(i.Position))
		for n, p := range i.Position {
			pos[n] = int64(p)
		}
		obj.Set(KeyAudioPosition, IntArray(pos...))
	}

	return obj
}

// ParseAudioInfo reads a fixated audio format. Unknown keys are ignored.
func ParseAudioInfo(obj *Object) (AudioInfo, error) {
	var info AudioInfo

	if err := mustBeMedia(obj, MediaTypeAudio); err != nil {
		return info, err
	}

	format, _ := obj.Int(KeyAudioFormat)
	rate, _ := obj.Int(KeyAudioRate)
	channels, _ := obj.Int(KeyAudioChannels)

	info.Format = AudioFormat(format)
	info.Rate = uint32(rate)
	info.Channels = uint32(channels)

	if p, ok := obj.Find(KeyAudioPosition); ok && p.Value.Kind == KindIntArray {
		for _, c := range p.Value.Default().Array {
			info.Position = append(info.Position, uint32(c))
		}
	}

	if info.Format.SampleSize() == 0 || info.Rate == 0 || info.Channels == 0 {
		return info, fmt.Errorf("incomplete audio format %+v: %w",
			info, result.ErrInvalidArgument)
	}

	return info, nil
}

// VideoInfo describes raw video.
type VideoInfo struct {
	Format    VideoFormat
	Width     uint32
	Height    uint32
	RateNum   uint32
	RateDenom uint32
}

// Stride returns the bytes of one row.
func (i VideoInfo) Stride() uint32 {
	return i.Format.PixelSize() * i.Width
}

// FrameSize returns the bytes of one picture.
func (i VideoInfo) FrameSize() uint32 {
	return i.Stride() * i.Height
}

// Object builds a fixed format object.
func (i VideoInfo) Object(id ID) *Object {
	return NewObject(TypeFormat, id).
		Set(KeyMediaType, Id(MediaTypeVideo)).
		Set(KeyMediaSubtype, Id(MediaSubtypeRaw)).
		Set(KeyVideoFormat, Id(uint32(i.Format))).
		Set(KeyVideoSize, Rect(i.Width, i.Height)).
		Set(KeyVideoFramerate, Frac(i.RateNum, i.RateDenom))
}

// ParseVideoInfo reads a fixated video format.
func ParseVideoInfo(obj *Object) (VideoInfo, error) {
	var info VideoInfo

	if err := mustBeMedia(obj, MediaTypeVideo); err != nil {
		return info, err
	}

	format, _ := obj.Int(KeyVideoFormat)
	info.Format = VideoFormat(format)

	if p, ok := obj.Find(KeyVideoSize); ok && p.Value.Kind == KindRectangle {
		d := p.Value.Default()
		info.Width, info.Height = uint32(d.X), uint32(d.Y)
	}

	if p, ok := obj.Find(KeyVideoFramerate); ok && p.Value.Kind == KindFraction {
		d := p.Value.Default()
		info.RateNum, info.RateDenom = uint32(d.X), uint32(d.Y)
	}

	if info.Format.PixelSize() == 0 || info.Width == 0 || info.Height == 0 {
		return info, fmt.Errorf("incomplete video format %+v: %w",
			info, result.ErrInvalidArgument)
	}

	return info, nil
}

func mustBeMedia(obj *Object, mediaType uint32) error {
	if obj == nil || obj.Type != TypeFormat {
		return fmt.Errorf("not a format: %w", result.ErrInvalidArgument)
	}

	mt, ok := obj.Int(KeyMediaType)
	if !ok || uint32(mt) != mediaType {
		return fmt.Errorf("media type %d: %w", mt, result.ErrInvalidArgument)
	}

	return nil
}

// MediaType returns the media type of a format object.
func MediaType(obj *Object) (uint32, uint32, bool) {
	if obj == nil || obj.Type != TypeFormat {
		return 0, 0, false
	}

	mt, ok := obj.Int(KeyMediaType)
	if !ok {
		return 0, 0, false
	}

	st, _ := obj.Int(KeyMediaSubtype)

	return uint32(mt), uint32(st), true
}

// BuffersInfo is a buffer requirement.
type BuffersInfo struct {
	Buffers  uint32
	Blocks   uint32
	Size     uint32
	Stride   uint32
	Align    uint32
	DataType uint32
}

// Object builds a fixed Buffers object.
func (i BuffersInfo) Object() *Object {
	obj := NewObject(TypeParamBuffers, IDBuffers).
		Set(KeyBuffersBuffers, Int(int64(i.Buffers))).
		Set(KeyBuffersBlocks, Int(int64(i.Blocks))).
		Set(KeyBuffersSize, Int(int64(i.Size))).
		Set(KeyBuffersStride, Int(int64(i.Stride))).
		Set(KeyBuffersAlign, Int(int64(i.Align)))

	if i.DataType != 0 {
		obj.Set(KeyBuffersDataType, Int(int64(i.DataType)))
	}

	return obj
}

// ParseBuffersInfo reads a fixated Buffers object. Missing keys default to
// one block with no alignment.
func ParseBuffersInfo(obj *Object) (BuffersInfo, error) {
	if obj == nil || obj.Type != TypeParamBuffers {
		return BuffersInfo{}, fmt.Errorf("not a buffers param: %w",
			result.ErrInvalidArgument)
	}

	get := func(k Key, def uint32) uint32 {
		if v, ok := obj.Int(k); ok {
			return uint32(v)
		}
		return def
	}

	info := BuffersInfo{
		Buffers:  get(KeyBuffersBuffers, 0),
		Blocks:   get(KeyBuffersBlocks, 1),
		Size:     get(KeyBuffersSize, 0),
		Stride:   get(KeyBuffersStride, 0),
		Align:    get(KeyBuffersAlign, 0),
		DataType: get(KeyBuffersDataType, 0),
	}

	if info.Buffers == 0 || info.Blocks == 0 || info.Size == 0 {
		return info, fmt.Errorf("incomplete buffers param %+v: %w",
			info, result.ErrInvalidArgument)
	}

	return info, nil
}

// MetaInfo is a metadata requirement.
type MetaInfo struct {
	Type uint32
	Size uint32
}

// Object builds a Meta object.
func (i MetaInfo) Object() *Object {
	return NewObject(TypeParamMeta, IDMeta).
		Set(KeyMetaType, Id(i.Type)).
		Set(KeyMetaSize, Int(int64(i.Size)))
}

// ParseMetaInfo reads a Meta object.
func ParseMetaInfo(obj *Object) (MetaInfo, error) {
	if obj == nil || obj.Type != TypeParamMeta {
		return MetaInfo{}, fmt.Errorf("not a meta param: %w",
			result.ErrInvalidArgument)
	}

	t, _ := obj.Int(KeyMetaType)
	s, _ := obj.Int(KeyMetaSize)

	return MetaInfo{Type: uint32(t), Size: uint32(s)}, nil
}

// IOInfo describes an IO area a port supports.
type IOInfo struct {
	ID   uint32
	Size uint32
}

// Object builds an IO object.
func (i IOInfo) Object() *Object {
	return NewObject(TypeParamIO, IDIO).
		Set(KeyIOID, Id(i.ID)).
		Set(KeyIOSize, Int(int64(i.Size)))
}

// ParseIOInfo reads an IO object.
func ParseIOInfo(obj *Object) (IOInfo, error) {
	if obj == nil || obj.Type != TypeParamIO {
		return IOInfo{}, fmt.Errorf("not an io param: %w",
			result.ErrInvalidArgument)
	}

	id, _ := obj.Int(KeyIOID)
	size, _ := obj.Int(KeyIOSize)

	return IOInfo{ID: uint32(id), Size: uint32(size)}, nil
}

// PropsInfo holds the common node properties.
type PropsInfo struct {
	Volume float64
	Mute   bool
}

// Object builds a Props object.
func (i PropsInfo) Object() *Object {
	return NewObject(TypeProps, IDProps).
		Set(KeyPropsVolume, Float(i.Volume)).
		Set(KeyPropsMute, Bool(i.Mute))
}

// ApplyProps updates info with the keys present in obj. Unknown keys are
// ignored. It reports whether anything changed.
func ApplyProps(info *PropsInfo, obj *Object) (bool, error) {
	if obj == nil || obj.Type != TypeProps {
		return false, fmt.Errorf("not a props object: %w",
			result.ErrInvalidArgument)
	}

	changed := false

	if v, ok := obj.Float(KeyPropsVolume); ok && v != info.Volume {
		if v < 0 {
			return false, fmt.Errorf("volume %f: %w", v,
				result.ErrInvalidArgument)
		}
		info.Volume = v
		changed = true
	}

	if v, ok := obj.Int(KeyPropsMute); ok && (v != 0) != info.Mute {
		info.Mute = v != 0
		changed = true
	}

	return changed, nil
}

// ListObject builds a List object naming one supported parameter id.
func ListObject(id ID) *Object {
	return NewObject(TypeParamList, IDList).Set(KeyListID, Id(uint32(id)))
}

// LatencyObject builds a Latency object.
func LatencyObject(direction uint32, minQuantum, maxQuantum int64) *Object {
	return NewObject(TypeParamLatency, IDLatency).
		Set(KeyLatencyDirection, Id(direction)).
		Set(KeyLatencyMinQuantum, Int(minQuantum)).
		Set(KeyLatencyMaxQuantum, Int(maxQuantum))
}
