package unpack

import (
	"fmt"
	"strconv"

	"golang.org/x/exp/constraints"
)

// NarrowInt converts v to the integer type T. It fails with an error wrapping
// strconv.ErrRange if v can not be represented by T.
func NarrowInt[T constraints.Integer](v int64) (T, error) {
	narrowed := T(v)
	if int64(narrowed) != v || (narrowed < 0) != (v < 0) {
		return 0, fmt.Errorf("narrow %d to %T: %w", v, narrowed, strconv.ErrRange)
	}

	return narrowed, nil
}

// NarrowUint converts v to the integer type T. It fails with an error wrapping
// strconv.ErrRange if v can not be represented by T.
func NarrowUint[T constraints.Integer](v uint64) (T, error) {
	narrowed := T(v)
	if uint64(narrowed) != v || narrowed < 0 {
		return 0, fmt.Errorf("narrow %d to %T: %w", v, narrowed, strconv.ErrRange)
	}

	return narrowed, nil
}

// Narrow converts an integer of any width and signedness to T.
func Narrow[T, S constraints.Integer](v S) (T, error) {
	if isSigned[S]() {
		return NarrowInt[T](int64(v))
	}

	return NarrowUint[T](uint64(v))
}

func isSigned[T constraints.Integer]() bool {
	return ^T(0) < 0
}
