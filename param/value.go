package param

import (
	"cmp"
	"fmt"
	"slices"
)

// Kind is the type of the values of a property.
type Kind uint32

// Value kinds.
const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindID
	KindFloat
	KindFraction
	KindRectangle
	KindIntArray
)

// Choice tells how the Values of a property are laid out.
//
//	ChoiceNone:  [value]
//	ChoiceRange: [default, min, max]
//	ChoiceStep:  [default, min, max, step]
//	ChoiceEnum:  [default, alternatives...]
type Choice uint32

// Choices.
const (
	ChoiceNone Choice = iota
	ChoiceRange
	ChoiceStep
	ChoiceEnum
)

// Pod is a single value. Int, ID and Bool use X. Fractions are X/Y and
// rectangles X by Y. Floats use F and arrays use Array.
type Pod struct {
	X     int64   `json:"x,omitempty"`
	Y     int64   `json:"y,omitempty"`
	F     float64 `json:"f,omitempty"`
	Array []int64 `json:"array,omitempty"`
}

// Value is the possibly open set of values of a property.
type Value struct {
	Kind   Kind   `json:"kind"`
	Choice Choice `json:"choice,omitempty"`
	Values []Pod  `json:"values"`
}

// Bool creates a fixed boolean value.
func Bool(b bool) Value {
	var x int64
	if b {
		x = 1
	}

	return Value{Kind: KindBool, Values: []Pod{{X: x}}}
}

// Int creates a fixed integer value.
func Int(v int64) Value {
	return Value{Kind: KindInt, Values: []Pod{{X: v}}}
}

// Id creates a fixed enumerated id value.
func Id(v uint32) Value {
	return Value{Kind: KindID, Values: []Pod{{X: int64(v)}}}
}

// Float creates a fixed float value.
func Float(v float64) Value {
	return Value{Kind: KindFloat, Values: []Pod{{F: v}}}
}

// Frac creates a fixed fraction.
func Frac(num, denom uint32) Value {
	return Value{Kind: KindFraction, Values: []Pod{{X: int64(num), Y: int64(denom)}}}
}

// Rect creates a fixed rectangle.
func Rect(width, height uint32) Value {
	return Value{Kind: KindRectangle, Values: []Pod{{X: int64(width), Y: int64(height)}}}
}

// IntArray creates a fixed integer array.
func IntArray(v ...int64) Value {
	return Value{Kind: KindIntArray, Values: []Pod{{Array: slices.Clone(v)}}}
}

// RangeInt creates an integer range.
func RangeInt(def, minimum, maximum int64) Value {
	return Value{
		Kind:   KindInt,
		Choice: ChoiceRange,
		Values: []Pod{{X: def}, {X: minimum}, {X: maximum}},
	}
}

// StepInt creates an integer range where only multiples of step above min
// are valid.
func StepInt(def, minimum, maximum, step int64) Value {
	return Value{
		Kind:   KindInt,
		Choice: ChoiceStep,
		Values: []Pod{{X: def}, {X: minimum}, {X: maximum}, {X: step}},
	}
}

// RangeFloat creates a float range.
func RangeFloat(def, minimum, maximum float64) Value {
	return Value{
		Kind:   KindFloat,
		Choice: ChoiceRange,
		Values: []Pod{{F: def}, {F: minimum}, {F: maximum}},
	}
}

// RangeRect creates a rectangle range, bounded per dimension.
func RangeRect(def, minimum, maximum Pod) Value {
	return Value{
		Kind:   KindRectangle,
		Choice: ChoiceRange,
		Values: []Pod{def, minimum, maximum},
	}
}

// RangeFrac creates a fraction range.
func RangeFrac(def, minimum, maximum Pod) Value {
	return Value{
		Kind:   KindFraction,
		Choice: ChoiceRange,
		Values: []Pod{def, minimum, maximum},
	}
}

// EnumID creates an enumeration of ids. The default is preferred.
func EnumID(def uint32, alternatives ...uint32) Value {
	v := Value{Kind: KindID, Choice: ChoiceEnum, Values: []Pod{{X: int64(def)}}}
	for _, a := range alternatives {
		v.Values = append(v.Values, Pod{X: int64(a)})
	}

	return v
}

// EnumInt creates an enumeration of integers.
func EnumInt(def int64, alternatives ...int64) Value {
	v := Value{Kind: KindInt, Choice: ChoiceEnum, Values: []Pod{{X: def}}}
	for _, a := range alternatives {
		v.Values = append(v.Values, Pod{X: a})
	}

	return v
}

// Default returns the preferred value.
func (v Value) Default() Pod {
	if len(v.Values) == 0 {
		return Pod{}
	}

	return v.Values[0]
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	c := Value{Kind: v.Kind, Choice: v.Choice, Values: make([]Pod, len(v.Values))}
	for i, p := range v.Values {
		c.Values[i] = Pod{X: p.X, Y: p.Y, F: p.F, Array: slices.Clone(p.Array)}
	}

	return c
}

// Validate checks that the value layout matches its choice.
func (v Value) Validate() error {
	want := map[Choice]int{ChoiceNone: 1, ChoiceRange: 3, ChoiceStep: 4}

	switch v.Choice {
	case ChoiceNone, ChoiceRange, ChoiceStep:
		if len(v.Values) != want[v.Choice] {
			return fmt.Errorf("choice %d with %d values: %w",
				v.Choice, len(v.Values), ErrNoMatch)
		}
	case ChoiceEnum:
		if len(v.Values) == 0 {
			return fmt.Errorf("empty enum: %w", ErrNoMatch)
		}
	default:
		return fmt.Errorf("unknown choice %d: %w", v.Choice, ErrNoMatch)
	}

	if v.Kind == KindIntArray && v.Choice != ChoiceNone && v.Choice != ChoiceEnum {
		return fmt.Errorf("array range: %w", ErrNoMatch)
	}

	return nil
}

// alternatives lists the discrete values of a None or Enum value.
func (v Value) alternatives() []Pod {
	switch v.Choice {
	case ChoiceNone:
		return v.Values[:1]
	case ChoiceEnum:
		if len(v.Values) == 1 {
			return v.Values
		}
		return v.Values[1:]
	default:
		return nil
	}
}

func (v Value) discrete() bool {
	return v.Choice == ChoiceNone || v.Choice == ChoiceEnum
}

// Contains reports whether p is an accepted value.
func (v Value) Contains(p Pod) bool {
	switch v.Choice {
	case ChoiceNone, ChoiceEnum:
		for _, a := range v.alternatives() {
			if equal(v.Kind, a, p) {
				return true
			}
		}
		return false
	case ChoiceRange:
		return within(v.Kind, p, v.Values[1], v.Values[2])
	case ChoiceStep:
		return within(v.Kind, p, v.Values[1], v.Values[2]) &&
			onStep(v.Kind, p, v.Values[1], v.Values[3])
	default:
		return false
	}
}

func equal(k Kind, a, b Pod) bool {
	switch k {
	case KindFloat:
		return a.F == b.F
	case KindFraction:
		return compareFraction(a, b) == 0
	case KindRectangle:
		return a.X == b.X && a.Y == b.Y
	case KindIntArray:
		return slices.Equal(a.Array, b.Array)
	default:
		return a.X == b.X
	}
}

func compareFraction(a, b Pod) int {
	return cmp.Compare(a.X*b.Y, b.X*a.Y)
}

func within(k Kind, p, lo, hi Pod) bool {
	switch k {
	case KindFloat:
		return p.F >= lo.F && p.F <= hi.F
	case KindFraction:
		return compareFraction(p, lo) >= 0 && compareFraction(p, hi) <= 0
	case KindRectangle:
		return p.X >= lo.X && p.X <= hi.X && p.Y >= lo.Y && p.Y <= hi.Y
	case KindIntArray:
		return false
	default:
		return p.X >= lo.X && p.X <= hi.X
	}
}

func onStep(k Kind, p, lo, step Pod) bool {
	switch k {
	case KindInt:
		return step.X <= 0 || (p.X-lo.X)%step.X == 0
	case KindRectangle:
		return (step.X <= 0 || (p.X-lo.X)%step.X == 0) &&
			(step.Y <= 0 || (p.Y-lo.Y)%step.Y == 0)
	default:
		return true
	}
}

// clamp moves p into [lo, hi].
func clamp(k Kind, p, lo, hi Pod) Pod {
	switch k {
	case KindFloat:
		p.F = max(lo.F, min(p.F, hi.F))
	case KindFraction:
		if compareFraction(p, lo) < 0 {
			return lo
		}
		if compareFraction(p, hi) > 0 {
			return hi
		}
	case KindRectangle:
		p.X = max(lo.X, min(p.X, hi.X))
		p.Y = max(lo.Y, min(p.Y, hi.Y))
	default:
		p.X = max(lo.X, min(p.X, hi.X))
	}

	return p
}

func maxPod(k Kind, a, b Pod) Pod {
	switch k {
	case KindFloat:
		return Pod{F: max(a.F, b.F)}
	case KindFraction:
		if compareFraction(a, b) >= 0 {
			return a
		}
		return b
	case KindRectangle:
		return Pod{X: max(a.X, b.X), Y: max(a.Y, b.Y)}
	default:
		return Pod{X: max(a.X, b.X)}
	}
}

func minPod(k Kind, a, b Pod) Pod {
	switch k {
	case KindFloat:
		return Pod{F: min(a.F, b.F)}
	case KindFraction:
		if compareFraction(a, b) <= 0 {
			return a
		}
		return b
	case KindRectangle:
		return Pod{X: min(a.X, b.X), Y: min(a.Y, b.Y)}
	default:
		return Pod{X: min(a.X, b.X)}
	}
}
