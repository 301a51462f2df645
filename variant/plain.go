package variant

// Plain converts a Value to plain go values: nil, bool, int32, int64, float32, float64,
// string, []byte, slices, map[string]any. The result can be handed to any generic
// encoder. Object references and node paths become small maps.
func Plain(v Value) any {
	switch v := v.(type) {
	case nil, Nil:
		return nil
	case Bool:
		return bool(v)
	case Int:
		return int32(v)
	case Float:
		return float32(v)
	case Double:
		return float64(v)
	case String:
		return string(v)
	case StringName:
		return string(v)
	case Color:
		return v[:]
	case Vector2I:
		return v[:]
	case Vector3I:
		return v[:]
	case Vector4I:
		return v[:]
	case Rect2I:
		return v[:]

	case NodePath:
		return map[string]any{
			"names":    nonNil(v.Names),
			"subnames": nonNil(v.Subnames),
			"absolute": v.Absolute,
		}

	case ObjectRef:
		obj := map[string]any{"kind": v.Kind.String()}
		switch v.Kind {
		case ObjectExternal:
			obj["type"] = v.Type
			obj["path"] = v.Path
		case ObjectInternal, ObjectExternalIndex:
			obj["index"] = v.Index
		}

		return obj

	case Dictionary:
		dict := make(map[string]any, len(v))
		for _, entry := range v {
			dict[entry.Key] = Plain(entry.Value)
		}

		return dict

	case Array:
		items := make([]any, len(v))
		for idx, item := range v {
			items[idx] = Plain(item)
		}

		return items

	case PackedByteArray:
		return []byte(v)
	case PackedInt32Array:
		return []int32(v)
	case PackedInt64Array:
		return []int64(v)
	case PackedFloat32Array:
		return []float32(v)
	case PackedFloat64Array:
		return []float64(v)
	case PackedStringArray:
		return []string(v)

	case PackedVector2Array:
		items := make([][]float64, len(v))
		for idx := range v {
			items[idx] = v[idx][:]
		}

		return items

	case PackedVector3Array:
		items := make([][]float64, len(v))
		for idx := range v {
			items[idx] = v[idx][:]
		}

		return items

	case PackedColorArray:
		items := make([][]float32, len(v))
		for idx := range v {
			items[idx] = v[idx][:]
		}

		return items
	}

	if reals, ok := Reals(v); ok {
		return reals
	}

	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}

	return s
}
