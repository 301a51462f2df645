package unpack

import (
	"reflect"
	"slices"
	"strings"
)

type field struct {
	Name  string
	Type  reflect.Type
	Index []int
}

type fieldCandidate struct {
	Explicit bool
	Field    field
}

// fieldsToSerialize returns the fields of struct type ty that are visible under Go's
// embedding rules, in declaration order. Fields embedded deeper are shadowed by shallower
// ones; on equal depth an explicitly tagged field wins, otherwise the name is dropped.
func fieldsToSerialize(ty reflect.Type, structTag string) []field {
	if ty.Kind() != reflect.Struct {
		panic("not a struct")
	}

	type queued struct {
		Type        reflect.Type
		ParentIndex []int
	}

	// walk the type in bfs order
	queue := []queued{{Type: ty}}

	candidates := map[string][]fieldCandidate{}

	var order []string

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		for idx := range item.Type.NumField() {
			fi := item.Type.Field(idx)
			if !fi.IsExported() {
				continue
			}

			name, explicit := nameOf(fi, structTag)
			if name == "" {
				continue
			}

			// allocate a fresh index slice, siblings must not share the backing array
			parent := item.ParentIndex
			index := append(parent[:len(parent):len(parent)], fi.Index...)

			if fi.Anonymous && !explicit {
				if fi.Type.Kind() == reflect.Struct {
					queue = append(queue, queued{fi.Type, index})
				}

				continue
			}

			if len(candidates[name]) == 0 {
				order = append(order, name)
			}

			candidates[name] = append(candidates[name], fieldCandidate{
				Explicit: explicit,
				Field:    field{Name: name, Index: index, Type: fi.Type},
			})
		}
	}

	var fields []field

	for _, name := range order {
		if winner, ok := dominantField(candidates[name]); ok {
			fields = append(fields, winner)
		}
	}

	return fields
}

// dominantField picks the field that wins among candidates sharing the same name.
// candidates are sorted by depth, shallowest first.
func dominantField(candidates []fieldCandidate) (field, bool) {
	if len(candidates) == 0 {
		panic("candidates are empty")
	}

	depth := func(c fieldCandidate) int { return len(c.Field.Index) }

	if !slices.IsSortedFunc(candidates, func(a, b fieldCandidate) int { return depth(a) - depth(b) }) {
		panic("candidates are not sorted")
	}

	// take the prefix of candidates on the shallowest depth
	visible := candidates[:1]
	for len(visible) < len(candidates) && depth(candidates[len(visible)]) == depth(candidates[0]) {
		visible = candidates[:len(visible)+1]
	}

	if len(visible) == 1 {
		return visible[0].Field, true
	}

	explicit := slices.DeleteFunc(slices.Clone(visible), func(c fieldCandidate) bool { return !c.Explicit })
	if len(explicit) == 1 {
		return explicit[0].Field, true
	}

	// ambiguous, the name is ignored without raising an error
	return field{}, false
}

func nameOf(fi reflect.StructField, structTag string) (name string, explicit bool) {
	tag := fi.Tag.Get(structTag)

	switch {
	case tag == "":
		return fi.Name, false

	case tag == "-":
		// empty name: skip this field
		return "", true
	}

	alias, _, _ := strings.Cut(tag, ",")
	if alias == "" {
		// no alias before the comma, keep field name
		return fi.Name, false
	}

	return alias, true
}
