package variant

import (
	"testing"

	"github.com/go-gum/unpack"
	"github.com/stretchr/testify/require"
)

func TestSourceUnmarshal(t *testing.T) {
	type Point struct {
		X, Y float32
	}

	type Ref struct {
		Kind string `unpack:"kind"`
		Path string `unpack:"path"`
	}

	type Sprite struct {
		Name     string             `unpack:"name"`
		Frames   int                `unpack:"frames"`
		Speed    float64            `unpack:"speed"`
		Position Point              `unpack:"position"`
		Size     [2]int32           `unpack:"size"`
		Tint     [4]float32         `unpack:"tint"`
		Data     []byte             `unpack:"data"`
		Tags     []string           `unpack:"tags"`
		Offsets  []int64            `unpack:"offsets"`
		Texture  Ref                `unpack:"texture"`
		Path     string             `unpack:"path"`
		Meta     map[string]float64 `unpack:"meta"`
		Missing  *string            `unpack:"missing"`
	}

	value := Dictionary{
		{Key: "name", Value: StringName("hero")},
		{Key: "frames", Value: Int(4)},
		{Key: "speed", Value: Float(0.5)},
		{Key: "position", Value: Vector2{1.5, -2}},
		{Key: "size", Value: Vector2I{16, 32}},
		{Key: "tint", Value: Color{1, 0.5, 0.25, 1}},
		{Key: "data", Value: PackedByteArray{1, 2, 3}},
		{Key: "tags", Value: PackedStringArray{"a", "b"}},
		{Key: "offsets", Value: PackedInt64Array{1 << 40, -1}},
		{Key: "texture", Value: ObjectRef{Kind: ObjectExternal, Type: "Texture2D", Path: "res://hero.png"}},
		{Key: "path", Value: NodePath{Names: []string{"a", "b"}}},
		{Key: "meta", Value: Dictionary{{Key: "weight", Value: Double(2.5)}}},
		{Key: "missing", Value: Nil{}},
	}

	sprite, err := unpack.UnmarshalNew[Sprite](Source(value))
	require.NoError(t, err)
	require.Equal(t, Sprite{
		Name:     "hero",
		Frames:   4,
		Speed:    0.5,
		Position: Point{X: 1.5, Y: -2},
		Size:     [2]int32{16, 32},
		Tint:     [4]float32{1, 0.5, 0.25, 1},
		Data:     []byte{1, 2, 3},
		Tags:     []string{"a", "b"},
		Offsets:  []int64{1 << 40, -1},
		Texture:  Ref{Kind: "external", Path: "res://hero.png"},
		Path:     "a/b",
		Meta:     map[string]float64{"weight": 2.5},
	}, sprite)
}

func TestSourceRejectsMismatch(t *testing.T) {
	_, err := unpack.UnmarshalNew[string](Source(Int(1)))
	require.ErrorIs(t, err, unpack.ErrNotSupported)

	_, err = unpack.UnmarshalNew[uint8](Source(Int(-1)))
	require.ErrorIs(t, err, unpack.ErrNotSupported)

	_, err = unpack.UnmarshalNew[[]int](Source(Dictionary{}))
	require.ErrorIs(t, err, unpack.ErrNotSupported)
}

func TestElements(t *testing.T) {
	items, ok := Elements(Vector3{1, 2, 3})
	require.True(t, ok)
	require.Equal(t, []Value{Double(1), Double(2), Double(3)}, items)

	items, ok = Elements(PackedInt32Array{5})
	require.True(t, ok)
	require.Equal(t, []Value{Int(5)}, items)

	_, ok = Elements(String("x"))
	require.False(t, ok)
}

func TestPlain(t *testing.T) {
	value := Dictionary{
		{Key: "a", Value: Array{Int(1), Nil{}, Vector2{1, 2}}},
		{Key: "ref", Value: ObjectRef{Kind: ObjectInternal, Index: 3}},
		{Key: "path", Value: NodePath{Names: []string{"x"}}},
		{Key: "bytes", Value: PackedByteArray{9}},
		{Key: "points", Value: PackedVector2Array{{1, 2}}},
	}

	require.Equal(t, map[string]any{
		"a":   []any{int32(1), nil, []float64{1, 2}},
		"ref": map[string]any{"kind": "internal", "index": uint32(3)},
		"path": map[string]any{
			"names":    []string{"x"},
			"subnames": []string{},
			"absolute": false,
		},
		"bytes":  []byte{9},
		"points": [][]float64{{1, 2}},
	}, Plain(value))
}
