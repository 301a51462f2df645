package pickle

import (
	"iter"
	"slices"
)

// Kind identifies the variant of a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBinary
	KindList
	KindDict
	KindTuple
	KindModule
	KindInstance
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindUint:
		return "Uint"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBinary:
		return "Binary"
	case KindList:
		return "List"
	case KindDict:
		return "Dict"
	case KindTuple:
		return "Tuple"
	case KindModule:
		return "Module"
	case KindInstance:
		return "Instance"
	default:
		return "Unknown"
	}
}

// Value is a decoded pickle value. The set of implementations is closed:
// None, Bool, Int, Uint, Float, String, Binary, Tuple, ModuleRef, *List, *Dict and *Instance.
//
// List, Dict and Instance are shared references. A value retrieved from the memo
// is the same object that was stored, later mutations are visible through both.
type Value interface {
	Kind() Kind
	value()
}

type None struct{}

type Bool bool

type Int int64

type Uint uint64

type Float float64

type String string

type Binary []byte

// Tuple has a fixed arity, set when it is built.
type Tuple []Value

// ModuleRef references a global by module and name, e.g. renpy.ast.Say.
type ModuleRef struct {
	Module string
	Name   string
}

func (m ModuleRef) String() string {
	return m.Module + "." + m.Name
}

type List struct {
	Items []Value
}

// Dict maps string keys to values and keeps the insertion order of its keys.
type Dict struct {
	keys  []string
	items map[string]Value
}

// Instance is a class instance built by REDUCE or NEWOBJ.
type Instance struct {
	Class ModuleRef

	// Args holds the constructor arguments, usually a Tuple.
	Args Value

	// State is set by a later BUILD, nil until then.
	State Value

	// Fields holds items assigned through SETITEM or SETITEMS.
	Fields *Dict
}

func (None) Kind() Kind      { return KindNone }
func (Bool) Kind() Kind      { return KindBool }
func (Int) Kind() Kind       { return KindInt }
func (Uint) Kind() Kind      { return KindUint }
func (Float) Kind() Kind     { return KindFloat }
func (String) Kind() Kind    { return KindString }
func (Binary) Kind() Kind    { return KindBinary }
func (Tuple) Kind() Kind     { return KindTuple }
func (ModuleRef) Kind() Kind { return KindModule }
func (*List) Kind() Kind     { return KindList }
func (*Dict) Kind() Kind     { return KindDict }
func (*Instance) Kind() Kind { return KindInstance }

func (None) value()      {}
func (Bool) value()      {}
func (Int) value()       {}
func (Uint) value()      {}
func (Float) value()     {}
func (String) value()    {}
func (Binary) value()    {}
func (Tuple) value()     {}
func (ModuleRef) value() {}
func (*List) value()     {}
func (*Dict) value()     {}
func (*Instance) value() {}

func NewList(items ...Value) *List {
	return &List{Items: items}
}

func NewDict() *Dict {
	return &Dict{items: map[string]Value{}}
}

// Set stores value under key. An existing key keeps its position.
func (d *Dict) Set(key string, value Value) {
	if _, ok := d.items[key]; !ok {
		d.keys = append(d.keys, key)
	}

	d.items[key] = value
}

func (d *Dict) Get(key string) (Value, bool) {
	value, ok := d.items[key]
	return value, ok
}

func (d *Dict) Len() int {
	return len(d.keys)
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	return slices.Clone(d.keys)
}

// All iterates the entries in insertion order.
func (d *Dict) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		for _, key := range d.keys {
			if !yield(key, d.items[key]) {
				return
			}
		}
	}
}

func newInstance(class ModuleRef, args Value) *Instance {
	return &Instance{Class: class, Args: args, Fields: NewDict()}
}

// Attr looks up a named attribute of the instance. Fields are consulted first,
// then the state: either a dict, or a (dict, slots) tuple as written for classes
// with __slots__.
func (inst *Instance) Attr(name string) (Value, bool) {
	if value, ok := inst.Fields.Get(name); ok {
		return value, true
	}

	for _, dict := range stateDicts(inst.State) {
		if value, ok := dict.Get(name); ok {
			return value, true
		}
	}

	return nil, false
}

// Attrs iterates all named attributes, in the lookup order of Attr. Shadowed names
// are yielded once.
func (inst *Instance) Attrs() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		seen := map[string]struct{}{}

		dicts := append([]*Dict{inst.Fields}, stateDicts(inst.State)...)
		for _, dict := range dicts {
			for key, value := range dict.All() {
				if _, ok := seen[key]; ok {
					continue
				}

				seen[key] = struct{}{}

				if !yield(key, value) {
					return
				}
			}
		}
	}
}

func stateDicts(state Value) []*Dict {
	switch state := state.(type) {
	case *Dict:
		return []*Dict{state}

	case Tuple:
		var dicts []*Dict
		for _, item := range state {
			if dict, ok := item.(*Dict); ok {
				dicts = append(dicts, dict)
			}
		}

		return dicts

	default:
		return nil
	}
}
