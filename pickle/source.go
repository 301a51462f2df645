package pickle

import (
	"fmt"
	"iter"
	"math"

	"github.com/go-gum/unpack"
	"golang.org/x/text/encoding/charmap"
)

// Source adapts a Value to an unpack.Source, so a decoded object graph can be
// unmarshalled onto go types.
//
// Dicts and instances provide named children. An instance exposes its attributes
// as returned by Instance.Attr. A None child is reported as unpack.ErrNoValue, so
// pointer fields stay nil. Lists and tuples are iterable, a struct target is filled
// positionally from a tuple.
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
	switch v := s.value.(type) {
	case Int:
		return int64(v), nil

	case Uint:
		if uint64(v) > math.MaxInt64 {
			return 0, unpack.ErrNotSupported
		}

		return int64(v), nil

	default:
		return 0, unpack.ErrNotSupported
	}
}

func (s valueSource) Uint() (uint64, error) {
	switch v := s.value.(type) {
	case Uint:
		return uint64(v), nil

	case Int:
		if v < 0 {
			return 0, unpack.ErrNotSupported
		}

		return uint64(v), nil

	default:
		return 0, unpack.ErrNotSupported
	}
}

func (s valueSource) Float() (float64, error) {
	f, err := AsFloat(s.value)
	if err != nil {
		return 0, unpack.ErrNotSupported
	}

	return f, nil
}

func (s valueSource) String() (string, error) {
	if str, ok := s.value.(String); ok {
		return string(str), nil
	}

	return "", unpack.ErrNotSupported
}

// Bytes returns Binary values as they are. A String is encoded as latin-1, which
// restores the raw bytes of a python 2 str. Strings with characters outside of
// latin-1 are not supported.
func (s valueSource) Bytes() ([]byte, error) {
	switch v := s.value.(type) {
	case Binary:
		return v, nil

	case String:
		encoded, err := charmap.ISO8859_1.NewEncoder().String(string(v))
		if err != nil {
			return nil, fmt.Errorf("encode %q as latin-1: %w", v, unpack.ErrNotSupported)
		}

		return []byte(encoded), nil

	default:
		return nil, unpack.ErrNotSupported
	}
}

func (s valueSource) Get(key string) (unpack.Source, error) {
	var (
		child Value
		ok    bool
	)

	switch v := s.value.(type) {
	case *Dict:
		child, ok = v.Get(key)
	case *Instance:
		child, ok = v.Attr(key)
	default:
		return nil, unpack.ErrNotSupported
	}

	if _, isNone := child.(None); !ok || isNone {
		return nil, unpack.ErrNoValue
	}

	return Source(child), nil
}

func (s valueSource) KeyValues() (iter.Seq2[unpack.Source, unpack.Source], error) {
	var entries iter.Seq2[string, Value]

	switch v := s.value.(type) {
	case *Dict:
		entries = v.All()
	case *Instance:
		entries = v.Attrs()
	default:
		return nil, unpack.ErrNotSupported
	}

	return func(yield func(unpack.Source, unpack.Source) bool) {
		for key, value := range entries {
			if !yield(unpack.StringSource(key), Source(value)) {
				return
			}
		}
	}, nil
}

func (s valueSource) Iter() (iter.Seq[unpack.Source], error) {
	items, err := AsList(s.value)
	if err != nil {
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
