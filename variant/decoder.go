// Package variant decodes the tagged binary values stored in binary resource files.
//
// Every value starts with a little-endian u32 tag, followed by a payload whose layout
// depends on the tag. Containers nest arbitrarily. Real valued components are four
// bytes wide unless the enclosing container declared eight byte reals, which is
// threaded through the whole decode by the Decoder.
package variant

import (
	"io"
	"strings"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/binread"
)

// sharedBit marks a Dictionary or Array as shared. It overlaps the length field.
const sharedBit = 0x80000000

// inlineStringBit marks a NodePath name that is stored inline instead of
// referencing the string table.
const inlineStringBit = 0x80000000

const absoluteNodePath = 0x8000

const maxDepth = 512

// Decoder holds the settings that apply to a whole resource.
type Decoder struct {
	// Real64 selects eight byte reals for vectors, transforms and the like.
	Real64 bool

	// Strings is the string table NodePath names are resolved against.
	Strings []string
}

// Decode reads one value from r using four or eight byte reals.
func Decode(r io.Reader, useReal64 bool) (Value, error) {
	return Decoder{Real64: useReal64}.Decode(r)
}

// Decode reads one value from r. Any failure aborts the whole value, no partial
// result is returned.
func (d Decoder) Decode(r io.Reader) (Value, error) {
	return d.Read(binread.NewReader(r, errors.PhaseVariant))
}

// Read reads one value from an existing reader, keeping its position bookkeeping.
func (d Decoder) Read(r *binread.Reader) (Value, error) {
	v, err := d.read(r, 0)
	if err != nil {
		return nil, err
	}

	return v, nil
}

func (d Decoder) read(r *binread.Reader, depth int) (Value, error) {
	start := r.Position()

	if depth > maxDepth {
		return nil, errors.UnsupportedFeature(r.Phase(), start, "values nested deeper than %d", maxDepth)
	}

	tag, err := r.U32()
	if err != nil {
		return nil, err
	}

	switch Tag(tag) {
	case TagNil:
		return Nil{}, nil

	case TagBool:
		v, err := r.U32()
		return Bool(v > 0), err

	case TagInt:
		v, err := r.I32()
		return Int(v), err

	case TagFloat:
		v, err := r.F32()
		return Float(v), err

	case TagDouble:
		v, err := r.F64()
		return Double(v), err

	case TagString:
		v, err := r.CString32()
		return String(v), err

	case TagStringName:
		v, err := r.CString32()
		return StringName(v), err

	case TagVector2:
		var v Vector2
		err := d.reals(r, v[:])
		return v, err

	case TagVector3:
		var v Vector3
		err := d.reals(r, v[:])
		return v, err

	case TagVector4:
		var v Vector4
		err := d.reals(r, v[:])
		return v, err

	case TagRect2:
		var v Rect2
		err := d.reals(r, v[:])
		return v, err

	case TagPlane:
		var v Plane
		err := d.reals(r, v[:])
		return v, err

	case TagQuaternion:
		var v Quaternion
		err := d.reals(r, v[:])
		return v, err

	case TagAABB:
		var v AABB
		err := d.reals(r, v[:])
		return v, err

	case TagBasis:
		var v Basis
		err := d.reals(r, v[:])
		return v, err

	case TagTransform2D:
		var v Transform2D
		err := d.reals(r, v[:])
		return v, err

	case TagTransform3D:
		var v Transform3D
		err := d.reals(r, v[:])
		return v, err

	case TagProjection:
		var v Projection
		err := d.reals(r, v[:])
		return v, err

	case TagColor:
		return readColor(r)

	case TagVector2I:
		var v Vector2I
		err := readInts(r, v[:])
		return v, err

	case TagVector3I:
		var v Vector3I
		err := readInts(r, v[:])
		return v, err

	case TagVector4I:
		var v Vector4I
		err := readInts(r, v[:])
		return v, err

	case TagRect2I:
		var v Rect2I
		err := readInts(r, v[:])
		return v, err

	case TagNodePath:
		return d.readNodePath(r)

	case TagObject:
		return readObject(r)

	case TagDictionary:
		return d.readDictionary(r, depth)

	case TagArray:
		return d.readArray(r, depth)

	case TagPackedByteArray:
		return readByteArray(r)

	case TagPackedInt32Array:
		return readPacked[PackedInt32Array](r, r.I32)

	case TagPackedInt64Array:
		return readPacked[PackedInt64Array](r, r.I64)

	case TagPackedFloat32Array:
		return readPacked[PackedFloat32Array](r, r.F32)

	case TagPackedFloat64Array:
		return readPacked[PackedFloat64Array](r, r.F64)

	case TagPackedStringArray:
		return readPacked[PackedStringArray](r, r.CString32)

	case TagPackedVector2Array:
		return readPacked[PackedVector2Array](r, func() (Vector2, error) {
			var v Vector2
			err := d.reals(r, v[:])
			return v, err
		})

	case TagPackedVector3Array:
		return readPacked[PackedVector3Array](r, func() (Vector3, error) {
			var v Vector3
			err := d.reals(r, v[:])
			return v, err
		})

	case TagPackedColorArray:
		return readPacked[PackedColorArray](r, func() (Color, error) {
			return readColor(r)
		})

	default:
		return nil, errors.UnknownTag(r.Phase(), start, uint64(tag))
	}
}

func (d Decoder) reals(r *binread.Reader, dst []float64) error {
	for idx := range dst {
		v, err := r.Real(d.Real64)
		if err != nil {
			return err
		}

		dst[idx] = v
	}

	return nil
}

func readInts(r *binread.Reader, dst []int32) error {
	for idx := range dst {
		v, err := r.I32()
		if err != nil {
			return err
		}

		dst[idx] = v
	}

	return nil
}

func readColor(r *binread.Reader) (Color, error) {
	var c Color
	for idx := range c {
		v, err := r.F32()
		if err != nil {
			return Color{}, err
		}

		c[idx] = v
	}

	return c, nil
}

// readPacked reads a u32 element count followed by that many elements.
func readPacked[S ~[]E, E any](r *binread.Reader, read func() (E, error)) (S, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}

	items := make(S, 0, min(n, 1024))
	for range n {
		item, err := read()
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}

// readByteArray reads the raw bytes and skips the padding up to the next four byte boundary.
func readByteArray(r *binread.Reader) (PackedByteArray, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}

	buf, err := r.Bytes(uint64(n))
	if err != nil {
		return nil, err
	}

	if err := r.SkipPadding(int64(n), 4); err != nil {
		return nil, err
	}

	if buf == nil {
		buf = []byte{}
	}

	return PackedByteArray(buf), nil
}

func (d Decoder) readDictionary(r *binread.Reader, depth int) (Dictionary, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}

	n &^= sharedBit

	dict := make(Dictionary, 0, min(n, 1024))
	for range n {
		keyOffset := r.Position()

		key, err := d.read(r, depth+1)
		if err != nil {
			return nil, err
		}

		str, ok := key.(String)
		if !ok {
			return nil, errors.KeyTypeViolation(r.Phase(), keyOffset, key.Tag().String())
		}

		value, err := d.read(r, depth+1)
		if err != nil {
			return nil, err
		}

		dict = append(dict, Entry{Key: string(str), Value: value})
	}

	return dict, nil
}

func (d Decoder) readArray(r *binread.Reader, depth int) (Array, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}

	n &^= sharedBit

	items := make(Array, 0, min(n, 1024))
	for range n {
		item, err := d.read(r, depth+1)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}

func readObject(r *binread.Reader) (ObjectRef, error) {
	start := r.Position()

	kind, err := r.U32()
	if err != nil {
		return ObjectRef{}, err
	}

	ref := ObjectRef{Kind: ObjectKind(kind)}

	switch ref.Kind {
	case ObjectEmpty:
		return ref, nil

	case ObjectExternal:
		if ref.Type, err = r.CString32(); err != nil {
			return ObjectRef{}, err
		}

		if ref.Path, err = r.CString32(); err != nil {
			return ObjectRef{}, err
		}

		return ref, nil

	case ObjectInternal, ObjectExternalIndex:
		if ref.Index, err = r.U32(); err != nil {
			return ObjectRef{}, err
		}

		return ref, nil

	default:
		return ObjectRef{}, errors.New(r.Phase(), errors.KindUnknownTag).
			At(start).
			Value(uint64(kind)).
			Detail("unknown object reference kind %d", kind).
			Build()
	}
}

func (d Decoder) readNodePath(r *binread.Reader) (NodePath, error) {
	nameCount, err := r.U16()
	if err != nil {
		return NodePath{}, err
	}

	subnameCount, err := r.U16()
	if err != nil {
		return NodePath{}, err
	}

	path := NodePath{Absolute: subnameCount&absoluteNodePath != 0}
	subnameCount &^= absoluteNodePath

	for range nameCount {
		name, err := d.stringRef(r)
		if err != nil {
			return NodePath{}, err
		}

		path.Names = append(path.Names, name)
	}

	for range subnameCount {
		name, err := d.stringRef(r)
		if err != nil {
			return NodePath{}, err
		}

		path.Subnames = append(path.Subnames, name)
	}

	return path, nil
}

// stringRef reads a u32 index into the string table, or an inline string when
// the high bit is set.
func (d Decoder) stringRef(r *binread.Reader) (string, error) {
	start := r.Position()

	ref, err := r.U32()
	if err != nil {
		return "", err
	}

	if ref&inlineStringBit != 0 {
		s, err := r.String(uint64(ref &^ inlineStringBit))
		return strings.TrimRight(s, "\x00"), err
	}

	if int(ref) >= len(d.Strings) {
		return "", errors.MalformedHeader(r.Phase(), start,
			"string table index %d out of range, table has %d entries", ref, len(d.Strings))
	}

	return d.Strings[ref], nil
}
