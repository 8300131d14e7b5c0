// Package param holds the typed key/value property objects that nodes use
// to describe and negotiate formats, buffer requirements, metadata and IO
// areas.
package param

import (
	"errors"
	"fmt"

	"github.com/sarchlab/mediagraph/result"
)

// ErrEnumEnd is returned by enumerations when no more objects are left. It is
// not a failure.
var ErrEnumEnd = errors.New("enumeration end")

// ErrNoMatch is returned when two objects have no common value for a key.
var ErrNoMatch = fmt.Errorf("%w: no common value", result.ErrInvalidArgument)

// ID identifies a parameter that can be enumerated or set.
type ID uint32

// Parameter ids.
const (
	IDInvalid ID = iota
	IDList
	IDPropInfo
	IDProps
	IDEnumFormat
	IDFormat
	IDBuffers
	IDMeta
	IDIO
	IDLatency
)

var idNames = map[ID]string{
	IDInvalid:    "Invalid",
	IDList:       "List",
	IDPropInfo:   "PropInfo",
	IDProps:      "Props",
	IDEnumFormat: "EnumFormat",
	IDFormat:     "Format",
	IDBuffers:    "Buffers",
	IDMeta:       "Meta",
	IDIO:         "IO",
	IDLatency:    "Latency",
}

func (id ID) String() string {
	if n, ok := idNames[id]; ok {
		return n
	}

	return fmt.Sprintf("ID(%d)", uint32(id))
}

// ObjectType tells which keys an Object carries.
type ObjectType uint32

// Object types.
const (
	TypeInvalid ObjectType = iota
	TypeProps
	TypeFormat
	TypeParamBuffers
	TypeParamMeta
	TypeParamIO
	TypeParamList
	TypeParamLatency
	TypePropInfo
)

// Key identifies a property inside an Object.
type Key uint32

// Property keys. The blocks follow the object types they belong to.
const (
	KeyInvalid Key = iota

	KeyMediaType
	KeyMediaSubtype

	KeyAudioFormat
	KeyAudioRate
	KeyAudioChannels
	KeyAudioPosition

	KeyVideoFormat
	KeyVideoSize
	KeyVideoFramerate

	KeyBuffersBuffers
	KeyBuffersBlocks
	KeyBuffersSize
	KeyBuffersStride
	KeyBuffersAlign
	KeyBuffersDataType

	KeyMetaType
	KeyMetaSize

	KeyIOID
	KeyIOSize

	KeyListID

	KeyLatencyDirection
	KeyLatencyMinQuantum
	KeyLatencyMaxQuantum

	KeyPropInfoID
	KeyPropInfoName
	KeyPropInfoType

	KeyPropsVolume
	KeyPropsMute
)

// Prop flags.
const (
	PropFlagReadOnly uint32 = 1 << iota
	PropFlagMandatory
)

// Prop is one key of an Object.
type Prop struct {
	Key   Key    `json:"key"`
	Flags uint32 `json:"flags,omitempty"`
	Value Value  `json:"value"`
}

// Object is a typed collection of properties.
type Object struct {
	Type  ObjectType `json:"type"`
	ID    ID         `json:"id"`
	Props []Prop     `json:"props"`
}

// NewObject creates an empty object.
func NewObject(t ObjectType, id ID) *Object {
	return &Object{Type: t, ID: id}
}

// Set adds or replaces a property and returns the object for chaining.
func (o *Object) Set(key Key, v Value) *Object {
	for i := range o.Props {
		if o.Props[i].Key == key {
			o.Props[i].Value = v
			return o
		}
	}

	o.Props = append(o.Props, Prop{Key: key, Value: v})

	return o
}

// Find returns the property with the given key.
func (o *Object) Find(key Key) (*Prop, bool) {
	if o == nil {
		return nil, false
	}

	for i := range o.Props {
		if o.Props[i].Key == key {
			return &o.Props[i], true
		}
	}

	return nil, false
}

// Clone returns a deep copy.
func (o *Object) Clone() *Object {
	if o == nil {
		return nil
	}

	c := &Object{Type: o.Type, ID: o.ID, Props: make([]Prop, len(o.Props))}
	for i, p := range o.Props {
		c.Props[i] = Prop{Key: p.Key, Flags: p.Flags, Value: p.Value.Clone()}
	}

	return c
}

// Int returns the default integer value of a key.
func (o *Object) Int(key Key) (int64, bool) {
	p, ok := o.Find(key)
	if !ok {
		return 0, false
	}

	switch p.Value.Kind {
	case KindInt, KindID, KindBool:
		return p.Value.Default().X, true
	default:
		return 0, false
	}
}

// Float returns the default float value of a key.
func (o *Object) Float(key Key) (float64, bool) {
	p, ok := o.Find(key)
	if !ok || p.Value.Kind != KindFloat {
		return 0, false
	}

	return p.Value.Default().F, true
}

func (o *Object) String() string {
	if o == nil {
		return "<nil>"
	}

	return fmt.Sprintf("object type %d id %s with %d props",
		o.Type, o.ID, len(o.Props))
}
