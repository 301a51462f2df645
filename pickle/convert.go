package pickle

import (
	"fmt"

	"github.com/go-gum/unpack"
	"github.com/go-gum/unpack/errors"
	"golang.org/x/exp/constraints"
)

func mismatch(want string, got Value) error {
	return errors.TypeMismatch(errors.PhasePickle, -1, want, kindOf(got).String())
}

// AsInt narrows an Int or Uint value to T. Values outside of the range of T
// fail with an error wrapping strconv.ErrRange.
func AsInt[T constraints.Integer](v Value) (T, error) {
	var (
		result T
		err    error
	)

	switch v := v.(type) {
	case Int:
		result, err = unpack.NarrowInt[T](int64(v))
	case Uint:
		result, err = unpack.NarrowUint[T](uint64(v))
	default:
		return 0, mismatch("Int", v)
	}

	if err != nil {
		return 0, fmt.Errorf("pickle int: %w", err)
	}

	return result, nil
}

func AsBool(v Value) (bool, error) {
	b, ok := v.(Bool)
	if !ok {
		return false, mismatch("Bool", v)
	}

	return bool(b), nil
}

// AsFloat returns a Float value. Integers are converted.
func AsFloat(v Value) (float64, error) {
	switch v := v.(type) {
	case Float:
		return float64(v), nil
	case Int:
		return float64(v), nil
	case Uint:
		return float64(v), nil
	default:
		return 0, mismatch("Float", v)
	}
}

func AsString(v Value) (string, error) {
	s, ok := v.(String)
	if !ok {
		return "", mismatch("String", v)
	}

	return string(s), nil
}

func AsBytes(v Value) ([]byte, error) {
	b, ok := v.(Binary)
	if !ok {
		return nil, mismatch("Binary", v)
	}

	return b, nil
}

// AsList returns the items of a List or a Tuple.
func AsList(v Value) ([]Value, error) {
	switch v := v.(type) {
	case *List:
		return v.Items, nil
	case Tuple:
		return v, nil
	default:
		return nil, mismatch("List", v)
	}
}

// AsTuple returns the items of a Tuple with exactly n items.
func AsTuple(v Value, n int) (Tuple, error) {
	t, ok := v.(Tuple)
	if !ok {
		return nil, mismatch("Tuple", v)
	}

	if len(t) != n {
		return nil, mismatch(fmt.Sprintf("Tuple of %d", n), v)
	}

	return t, nil
}

func AsDict(v Value) (*Dict, error) {
	d, ok := v.(*Dict)
	if !ok {
		return nil, mismatch("Dict", v)
	}

	return d, nil
}

func AsModule(v Value) (ModuleRef, error) {
	m, ok := v.(ModuleRef)
	if !ok {
		return ModuleRef{}, mismatch("Module", v)
	}

	return m, nil
}

func AsInstance(v Value) (*Instance, error) {
	inst, ok := v.(*Instance)
	if !ok {
		return nil, mismatch("Instance", v)
	}

	return inst, nil
}

// Optional applies as unless v is None. ok is false for None.
func Optional[T any](v Value, as func(Value) (T, error)) (value T, ok bool, err error) {
	if _, isNone := v.(None); isNone || v == nil {
		return value, false, nil
	}

	value, err = as(v)
	if err != nil {
		return value, false, err
	}

	return value, true, nil
}
