package variant

import (
	"iter"

	"github.com/go-gum/unpack"
)

// Source adapts a Value to an unpack.Source.
//
// Dictionaries provide named children, arrays, packed arrays and the fixed size math
// types iterate over their elements. A Nil child is reported as unpack.ErrNoValue.
func Source(v Value) unpack.Source {
	return valueSource{value: v}
}

type valueSource struct {
	value Value
}

var _ unpack.BytesSource = valueSource{}

func (s valueSource) Bool() (bool, error) {
	if b, ok := s.value.(Bool); ok {
		return bool(b), nil
	}

	return false, unpack.ErrNotSupported
}

func (s valueSource) Int() (int64, error) {
	if i, ok := s.value.(Int); ok {
		return int64(i), nil
	}

	return 0, unpack.ErrNotSupported
}

func (s valueSource) Uint() (uint64, error) {
	i, ok := s.value.(Int)
	if !ok || i < 0 {
		return 0, unpack.ErrNotSupported
	}

	return uint64(i), nil
}

func (s valueSource) Float() (float64, error) {
	switch v := s.value.(type) {
	case Float:
		return float64(v), nil
	case Double:
		return float64(v), nil
	case Int:
		return float64(v), nil
	default:
		return 0, unpack.ErrNotSupported
	}
}

func (s valueSource) String() (string, error) {
	switch v := s.value.(type) {
	case String:
		return string(v), nil
	case StringName:
		return string(v), nil
	case NodePath:
		return v.String(), nil
	default:
		return "", unpack.ErrNotSupported
	}
}

func (s valueSource) Bytes() ([]byte, error) {
	if b, ok := s.value.(PackedByteArray); ok {
		return b, nil
	}

	return nil, unpack.ErrNotSupported
}

func (s valueSource) Get(key string) (unpack.Source, error) {
	var (
		child Value
		ok    bool
	)

	switch v := s.value.(type) {
	case Dictionary:
		child, ok = v.Get(key)

	case ObjectRef:
		child, ok = v.field(key)

	default:
		return nil, unpack.ErrNotSupported
	}

	if _, isNil := child.(Nil); !ok || isNil {
		return nil, unpack.ErrNoValue
	}

	return Source(child), nil
}

func (s valueSource) KeyValues() (iter.Seq2[unpack.Source, unpack.Source], error) {
	dict, ok := s.value.(Dictionary)
	if !ok {
		return nil, unpack.ErrNotSupported
	}

	return func(yield func(unpack.Source, unpack.Source) bool) {
		for _, entry := range dict {
			if !yield(unpack.StringSource(entry.Key), Source(entry.Value)) {
				return
			}
		}
	}, nil
}

func (s valueSource) Iter() (iter.Seq[unpack.Source], error) {
	if wide, ok := s.value.(PackedInt64Array); ok {
		return func(yield func(unpack.Source) bool) {
			for _, item := range wide {
				if !yield(int64Source(item)) {
					return
				}
			}
		}, nil
	}

	items, ok := Elements(s.value)
	if !ok {
		return nil, unpack.ErrNotSupported
	}

	return func(yield func(unpack.Source) bool) {
		for _, item := range items {
			if !yield(Source(item)) {
				return
			}
		}
	}, nil
}

// int64Source holds an element of a PackedInt64Array, which has no Value of its own.
type int64Source int64

func (s int64Source) Int() (int64, error) {
	return int64(s), nil
}

func (s int64Source) Uint() (uint64, error) {
	if s < 0 {
		return 0, unpack.ErrNotSupported
	}

	return uint64(s), nil
}

func (s int64Source) Float() (float64, error) {
	return float64(s), nil
}

func (int64Source) Bool() (bool, error)     { return false, unpack.ErrNotSupported }
func (int64Source) String() (string, error) { return "", unpack.ErrNotSupported }

func (int64Source) Get(string) (unpack.Source, error) {
	return nil, unpack.ErrNotSupported
}

func (int64Source) KeyValues() (iter.Seq2[unpack.Source, unpack.Source], error) {
	return nil, unpack.ErrNotSupported
}

func (int64Source) Iter() (iter.Seq[unpack.Source], error) {
	return nil, unpack.ErrNotSupported
}

// field exposes an object reference as a small record.
func (o ObjectRef) field(key string) (Value, bool) {
	switch key {
	case "kind":
		return String(o.Kind.String()), true
	case "type":
		return String(o.Type), o.Kind == ObjectExternal
	case "path":
		return String(o.Path), o.Kind == ObjectExternal
	case "index":
		return Int(o.Index), o.Kind == ObjectInternal || o.Kind == ObjectExternalIndex
	default:
		return nil, false
	}
}

// Elements returns the items of an Array, a packed array other than PackedInt64Array,
// or a fixed size math type as a sequence of Values. Real components are returned as
// Double, Color channels as Float and integer components as Int.
func Elements(v Value) ([]Value, bool) {
	switch v := v.(type) {
	case Array:
		return v, true
	case PackedByteArray:
		return convert(v, func(b byte) Value { return Int(b) }), true
	case PackedInt32Array:
		return convert(v, func(i int32) Value { return Int(i) }), true
	case PackedFloat32Array:
		return convert(v, func(f float32) Value { return Float(f) }), true
	case PackedFloat64Array:
		return convert(v, func(f float64) Value { return Double(f) }), true
	case PackedStringArray:
		return convert(v, func(s string) Value { return String(s) }), true
	case PackedVector2Array:
		return convert(v, func(e Vector2) Value { return e }), true
	case PackedVector3Array:
		return convert(v, func(e Vector3) Value { return e }), true
	case PackedColorArray:
		return convert(v, func(e Color) Value { return e }), true
	case Color:
		return convert(v[:], func(f float32) Value { return Float(f) }), true
	case Vector2I:
		return convert(v[:], func(i int32) Value { return Int(i) }), true
	case Vector3I:
		return convert(v[:], func(i int32) Value { return Int(i) }), true
	case Vector4I:
		return convert(v[:], func(i int32) Value { return Int(i) }), true
	case Rect2I:
		return convert(v[:], func(i int32) Value { return Int(i) }), true
	}

	if reals, ok := Reals(v); ok {
		return convert(reals, func(f float64) Value { return Double(f) }), true
	}

	return nil, false
}

// Reals returns the components of a real valued math type.
func Reals(v Value) ([]float64, bool) {
	switch v := v.(type) {
	case Vector2:
		return v[:], true
	case Vector3:
		return v[:], true
	case Vector4:
		return v[:], true
	case Rect2:
		return v[:], true
	case Plane:
		return v[:], true
	case Quaternion:
		return v[:], true
	case AABB:
		return v[:], true
	case Basis:
		return v[:], true
	case Transform2D:
		return v[:], true
	case Transform3D:
		return v[:], true
	case Projection:
		return v[:], true
	default:
		return nil, false
	}
}

func convert[S ~[]E, E any](items S, fn func(E) Value) []Value {
	values := make([]Value, len(items))
	for idx, item := range items {
		values[idx] = fn(item)
	}

	return values
}
