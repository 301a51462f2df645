package variant

import (
	"fmt"
	"slices"
	"strings"
)

// Tag is the u32 discriminant that precedes every encoded variant.
type Tag uint32

const (
	TagNil                Tag = 1
	TagBool               Tag = 2
	TagInt                Tag = 3
	TagFloat              Tag = 4
	TagString             Tag = 5
	TagVector2            Tag = 10
	TagRect2              Tag = 11
	TagVector3            Tag = 12
	TagPlane              Tag = 13
	TagQuaternion         Tag = 14
	TagAABB               Tag = 15
	TagBasis              Tag = 16
	TagTransform3D        Tag = 17
	TagTransform2D        Tag = 18
	TagColor              Tag = 20
	TagNodePath           Tag = 22
	TagObject             Tag = 24
	TagDictionary         Tag = 26
	TagArray              Tag = 30
	TagPackedByteArray    Tag = 31
	TagPackedInt32Array   Tag = 32
	TagPackedFloat32Array Tag = 33
	TagPackedStringArray  Tag = 34
	TagPackedVector3Array Tag = 35
	TagPackedColorArray   Tag = 36
	TagPackedVector2Array Tag = 37
	TagDouble             Tag = 41
	TagStringName         Tag = 44
	TagVector2I           Tag = 45
	TagRect2I             Tag = 46
	TagVector3I           Tag = 47
	TagPackedInt64Array   Tag = 48
	TagPackedFloat64Array Tag = 49
	TagVector4            Tag = 50
	TagVector4I           Tag = 51
	TagProjection         Tag = 52
)

var tagNames = map[Tag]string{
	TagNil:                "Nil",
	TagBool:               "Bool",
	TagInt:                "Int",
	TagFloat:              "Float",
	TagString:             "String",
	TagVector2:            "Vector2",
	TagRect2:              "Rect2",
	TagVector3:            "Vector3",
	TagPlane:              "Plane",
	TagQuaternion:         "Quaternion",
	TagAABB:               "AABB",
	TagBasis:              "Basis",
	TagTransform3D:        "Transform3D",
	TagTransform2D:        "Transform2D",
	TagColor:              "Color",
	TagNodePath:           "NodePath",
	TagObject:             "Object",
	TagDictionary:         "Dictionary",
	TagArray:              "Array",
	TagPackedByteArray:    "PackedByteArray",
	TagPackedInt32Array:   "PackedInt32Array",
	TagPackedFloat32Array: "PackedFloat32Array",
	TagPackedStringArray:  "PackedStringArray",
	TagPackedVector3Array: "PackedVector3Array",
	TagPackedColorArray:   "PackedColorArray",
	TagPackedVector2Array: "PackedVector2Array",
	TagDouble:             "Double",
	TagStringName:         "StringName",
	TagVector2I:           "Vector2I",
	TagRect2I:             "Rect2I",
	TagVector3I:           "Vector3I",
	TagPackedInt64Array:   "PackedInt64Array",
	TagPackedFloat64Array: "PackedFloat64Array",
	TagVector4:            "Vector4",
	TagVector4I:           "Vector4I",
	TagProjection:         "Projection",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}

	return fmt.Sprintf("Tag(%d)", uint32(t))
}

// Value is a decoded variant. The set of implementations is closed, one type per Tag.
//
// Real valued components are stored as float64 regardless of the real width
// of the container they were read from.
type Value interface {
	Tag() Tag
	variant()
}

type Nil struct{}

type Bool bool

// Int is the 32 bit integer variant.
type Int int32

// Float is the 32 bit float variant, Double the 64 bit one.
type Float float32

type Double float64

type String string

type StringName string

type Vector2 [2]float64

type Vector3 [3]float64

type Vector4 [4]float64

// Rect2 holds position x, y followed by size x, y.
type Rect2 [4]float64

// Plane holds the normal x, y, z followed by the distance d.
type Plane [4]float64

type Quaternion [4]float64

// AABB holds position x, y, z followed by size x, y, z.
type AABB [6]float64

// Basis holds three rows of three components.
type Basis [9]float64

// Transform2D holds the x, y and origin columns.
type Transform2D [6]float64

// Transform3D holds a Basis followed by the origin.
type Transform3D [12]float64

type Projection [16]float64

type Color [4]float32

type Vector2I [2]int32

type Vector3I [3]int32

type Vector4I [4]int32

type Rect2I [4]int32

// NodePath addresses a node and optionally a property path below it.
type NodePath struct {
	Names    []string
	Subnames []string
	Absolute bool
}

func (p NodePath) String() string {
	var b strings.Builder
	if p.Absolute {
		b.WriteByte('/')
	}

	b.WriteString(strings.Join(p.Names, "/"))
	for _, sub := range p.Subnames {
		b.WriteByte(':')
		b.WriteString(sub)
	}

	return b.String()
}

// ObjectKind selects the payload of an ObjectRef.
type ObjectKind uint32

const (
	ObjectEmpty         ObjectKind = 0
	ObjectExternal      ObjectKind = 1
	ObjectInternal      ObjectKind = 2
	ObjectExternalIndex ObjectKind = 3
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectEmpty:
		return "empty"
	case ObjectExternal:
		return "external"
	case ObjectInternal:
		return "internal"
	case ObjectExternalIndex:
		return "external_index"
	default:
		return fmt.Sprintf("ObjectKind(%d)", uint32(k))
	}
}

// ObjectRef references another resource. Type and Path are set for ObjectExternal,
// Index for ObjectInternal and ObjectExternalIndex.
type ObjectRef struct {
	Kind  ObjectKind
	Type  string
	Path  string
	Index uint32
}

// Entry is a single key/value pair of a Dictionary.
type Entry struct {
	Key   string
	Value Value
}

// Dictionary keeps its entries in stream order.
type Dictionary []Entry

// Get returns the value of the last entry with the given key.
func (d Dictionary) Get(key string) (Value, bool) {
	for _, entry := range slices.Backward(d) {
		if entry.Key == key {
			return entry.Value, true
		}
	}

	return nil, false
}

type Array []Value

type PackedByteArray []byte

type PackedInt32Array []int32

type PackedInt64Array []int64

type PackedFloat32Array []float32

type PackedFloat64Array []float64

type PackedStringArray []string

type PackedVector2Array []Vector2

type PackedVector3Array []Vector3

type PackedColorArray []Color

func (Nil) Tag() Tag                { return TagNil }
func (Bool) Tag() Tag               { return TagBool }
func (Int) Tag() Tag                { return TagInt }
func (Float) Tag() Tag              { return TagFloat }
func (Double) Tag() Tag             { return TagDouble }
func (String) Tag() Tag             { return TagString }
func (StringName) Tag() Tag         { return TagStringName }
func (Vector2) Tag() Tag            { return TagVector2 }
func (Vector3) Tag() Tag            { return TagVector3 }
func (Vector4) Tag() Tag            { return TagVector4 }
func (Rect2) Tag() Tag              { return TagRect2 }
func (Plane) Tag() Tag              { return TagPlane }
func (Quaternion) Tag() Tag         { return TagQuaternion }
func (AABB) Tag() Tag               { return TagAABB }
func (Basis) Tag() Tag              { return TagBasis }
func (Transform2D) Tag() Tag        { return TagTransform2D }
func (Transform3D) Tag() Tag        { return TagTransform3D }
func (Projection) Tag() Tag         { return TagProjection }
func (Color) Tag() Tag              { return TagColor }
func (Vector2I) Tag() Tag           { return TagVector2I }
func (Vector3I) Tag() Tag           { return TagVector3I }
func (Vector4I) Tag() Tag           { return TagVector4I }
func (Rect2I) Tag() Tag             { return TagRect2I }
func (NodePath) Tag() Tag           { return TagNodePath }
func (ObjectRef) Tag() Tag          { return TagObject }
func (Dictionary) Tag() Tag         { return TagDictionary }
func (Array) Tag() Tag              { return TagArray }
func (PackedByteArray) Tag() Tag    { return TagPackedByteArray }
func (PackedInt32Array) Tag() Tag   { return TagPackedInt32Array }
func (PackedInt64Array) Tag() Tag   { return TagPackedInt64Array }
func (PackedFloat32Array) Tag() Tag { return TagPackedFloat32Array }
func (PackedFloat64Array) Tag() Tag { return TagPackedFloat64Array }
func (PackedStringArray) Tag() Tag  { return TagPackedStringArray }
func (PackedVector2Array) Tag() Tag { return TagPackedVector2Array }
func (PackedVector3Array) Tag() Tag { return TagPackedVector3Array }
func (PackedColorArray) Tag() Tag   { return TagPackedColorArray }

func (Nil) variant()                {}
func (Bool) variant()               {}
func (Int) variant()                {}
func (Float) variant()              {}
func (Double) variant()             {}
func (String) variant()             {}
func (StringName) variant()         {}
func (Vector2) variant()            {}
func (Vector3) variant()            {}
func (Vector4) variant()            {}
func (Rect2) variant()              {}
func (Plane) variant()              {}
func (Quaternion) variant()         {}
func (AABB) variant()               {}
func (Basis) variant()              {}
func (Transform2D) variant()        {}
func (Transform3D) variant()        {}
func (Projection) variant()         {}
func (Color) variant()              {}
func (Vector2I) variant()           {}
func (Vector3I) variant()           {}
func (Vector4I) variant()           {}
func (Rect2I) variant()             {}
func (NodePath) variant()           {}
func (ObjectRef) variant()          {}
func (Dictionary) variant()         {}
func (Array) variant()              {}
func (PackedByteArray) variant()    {}
func (PackedInt32Array) variant()   {}
func (PackedInt64Array) variant()   {}
func (PackedFloat32Array) variant() {}
func (PackedFloat64Array) variant() {}
func (PackedStringArray) variant()  {}
func (PackedVector2Array) variant() {}
func (PackedVector3Array) variant() {}
func (PackedColorArray) variant()   {}
