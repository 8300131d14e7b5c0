package param

import (
	"fmt"
)

// Intersect returns the values accepted by both a and b. The preferred value
// of a wins when it is still acceptable.
func Intersect(a, b Value) (Value, error) {
	if err := a.Validate(); err != nil {
		return Value{}, err
	}

	if err := b.Validate(); err != nil {
		return Value{}, err
	}

	if a.Kind != b.Kind {
		return Value{}, fmt.Errorf("kind %d and %d: %w", a.Kind, b.Kind, ErrNoMatch)
	}

	switch {
	case a.discrete():
		return pick(a, b, a.alternatives())
	case b.discrete():
		return pick(a, b, b.alternatives())
	default:
		return intersectRanges(a, b)
	}
}

func pick(a, b Value, candidates []Pod) (Value, error) {
	var kept []Pod
	for _, p := range candidates {
		if a.Contains(p) && b.Contains(p) {
			kept = append(kept, p)
		}
	}

	switch len(kept) {
	case 0:
		return Value{}, ErrNoMatch
	case 1:
		return Value{Kind: a.Kind, Values: kept}, nil
	}

	def := kept[0]
	if a.Contains(a.Default()) && b.Contains(a.Default()) {
		def = a.Default()
	}

	return Value{
		Kind:   a.Kind,
		Choice: ChoiceEnum,
		Values: append([]Pod{def}, kept...),
	}, nil
}

func intersectRanges(a, b Value) (Value, error) {
	k := a.Kind
	lo := maxPod(k, a.Values[1], b.Values[1])
	hi := minPod(k, a.Values[2], b.Values[2])

	if !within(k, lo, lo, hi) {
		return Value{}, ErrNoMatch
	}

	def := clamp(k, a.Default(), lo, hi)

	if equal(k, lo, hi) {
		return Value{Kind: k, Values: []Pod{lo}}, nil
	}

	switch {
	case a.Choice == ChoiceStep:
		return Value{Kind: k, Choice: ChoiceStep,
			Values: []Pod{def, lo, hi, a.Values[3]}}, nil
	case b.Choice == ChoiceStep:
		return Value{Kind: k, Choice: ChoiceStep,
			Values: []Pod{def, lo, hi, b.Values[3]}}, nil
	default:
		return Value{Kind: k, Choice: ChoiceRange,
			Values: []Pod{def, lo, hi}}, nil
	}
}

// Filter intersects obj with filter key by key. Keys present on only one
// side pass through unchanged. A nil filter returns a copy of obj.
func Filter(obj, filter *Object) (*Object, error) {
	if obj == nil {
		return nil, fmt.Errorf("filter nil object: %w", ErrNoMatch)
	}

	if filter == nil {
		return obj.Clone(), nil
	}

	if obj.Type != filter.Type {
		return nil, fmt.Errorf("object type %d against %d: %w",
			obj.Type, filter.Type, ErrNoMatch)
	}

	out := &Object{Type: obj.Type, ID: obj.ID}

	for _, p := range obj.Props {
		fp, ok := filter.Find(p.Key)
		if !ok {
			out.Props = append(out.Props, Prop{
				Key: p.Key, Flags: p.Flags, Value: p.Value.Clone(),
			})
			continue
		}

		v, err := Intersect(p.Value, fp.Value)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", p.Key, err)
		}

		out.Props = append(out.Props, Prop{
			Key: p.Key, Flags: p.Flags | fp.Flags, Value: v,
		})
	}

	for _, fp := range filter.Props {
		if _, ok := obj.Find(fp.Key); ok {
			continue
		}

		out.Props = append(out.Props, Prop{
			Key: fp.Key, Flags: fp.Flags, Value: fp.Value.Clone(),
		})
	}

	return out, nil
}

// Fixate collapses every property to its default value, clamped into the
// allowed set.
func Fixate(obj *Object) *Object {
	out := obj.Clone()
	if out == nil {
		return nil
	}

	for i := range out.Props {
		out.Props[i].Value = fixateValue(out.Props[i].Value)
	}

	return out
}

func fixateValue(v Value) Value {
	if len(v.Values) == 0 {
		return v
	}

	def := v.Default()

	switch v.Choice {
	case ChoiceRange:
		def = clamp(v.Kind, def, v.Values[1], v.Values[2])
	case ChoiceStep:
		def = clamp(v.Kind, def, v.Values[1], v.Values[2])
		if v.Kind == KindInt && v.Values[3].X > 0 {
			lo := v.Values[1].X
			def.X = lo + (def.X-lo)/v.Values[3].X*v.Values[3].X
		}
	case ChoiceEnum:
		if !v.Contains(def) {
			def = v.alternatives()[0]
		}
	}

	return Value{Kind: v.Kind, Values: []Pod{def}}
}

// IsFixated reports whether every property holds a single value.
func IsFixated(obj *Object) bool {
	if obj == nil {
		return false
	}

	for _, p := range obj.Props {
		if p.Value.Choice != ChoiceNone {
			return false
		}
	}

	return true
}

// Enumerate returns the first object of objs at or after index that
// survives the filter, along with the index to resume from. ErrEnumEnd
// reports exhaustion.
func Enumerate(objs []*Object, index uint32, filter *Object) (*Object, uint32, error) {
	for i := int(index); i < len(objs); i++ {
		res, err := Filter(objs[i], filter)
		if err != nil {
			continue
		}

		return res, uint32(i + 1), nil
	}

	return nil, uint32(len(objs)), ErrEnumEnd
}
