// Package fixture builds pickle streams and script containers for tests.
package fixture

import (
	"fmt"
	"math"

	"github.com/go-gum/unpack/internal/binread"
	"github.com/go-gum/unpack/pickle"
)

// Tuple is written as a pickle tuple.
type Tuple []any

// KV is a single dict entry.
type KV struct {
	Key   string
	Value any
}

// Dict is written as a pickle dict, keys in order.
type Dict []KV

// ByteString is written as a python 2 str with SHORT_BINSTRING or BINSTRING.
type ByteString []byte

// Object is written as GLOBAL, its argument tuple, NEWOBJ and, if State is
// not nil, BUILD.
type Object struct {
	Module string
	Name   string
	Args   Tuple
	State  any
}

// Node returns an object in the layout used for script nodes: the state is a
// tuple of None and a dict of attributes.
func Node(module, name string, attrs Dict) Object {
	return Object{Module: module, Name: name, Args: Tuple{}, State: Tuple{nil, attrs}}
}

// Pickle encodes v as a protocol 2 pickle stream.
func Pickle(v any) []byte {
	w := binread.NewWriter()
	w.U8(byte(pickle.OpProto)).U8(2)
	writeValue(w, v)
	w.U8(byte(pickle.OpStop))
	return w.Bytes()
}

func op(w *binread.Writer, ops ...pickle.Opcode) {
	for _, o := range ops {
		w.U8(byte(o))
	}
}

func writeValue(w *binread.Writer, v any) {
	switch v := v.(type) {
	case nil:
		op(w, pickle.OpNone)

	case bool:
		if v {
			op(w, pickle.OpNewTrue)
		} else {
			op(w, pickle.OpNewFalse)
		}

	case int:
		writeInt(w, int64(v))

	case int64:
		writeInt(w, v)

	case uint64:
		if v > math.MaxInt64 {
			panic(fmt.Sprintf("fixture: %d does not fit into a LONG1", v))
		}

		writeInt(w, int64(v))

	case float64:
		op(w, pickle.OpBinFloat)
		bits := math.Float64bits(v)
		for shift := 56; shift >= 0; shift -= 8 {
			w.U8(byte(bits >> shift))
		}

	case string:
		op(w, pickle.OpBinUnicode)
		w.String32(v)

	case []byte:
		if len(v) < 256 {
			op(w, pickle.OpShortBinBytes)
			w.U8(uint8(len(v)))
		} else {
			op(w, pickle.OpBinBytes)
			w.U32(uint32(len(v)))
		}

		w.Raw(v...)

	case ByteString:
		if len(v) < 256 {
			op(w, pickle.OpShortBinString)
			w.U8(uint8(len(v)))
		} else {
			op(w, pickle.OpBinString)
			w.U32(uint32(len(v)))
		}

		w.Raw(v...)

	case []any:
		op(w, pickle.OpEmptyList)
		if len(v) == 0 {
			return
		}

		op(w, pickle.OpMark)
		for _, item := range v {
			writeValue(w, item)
		}

		op(w, pickle.OpAppends)

	case Tuple:
		op(w, pickle.OpMark)
		for _, item := range v {
			writeValue(w, item)
		}

		op(w, pickle.OpTuple)

	case Dict:
		op(w, pickle.OpEmptyDict)
		if len(v) == 0 {
			return
		}

		op(w, pickle.OpMark)
		for _, entry := range v {
			writeValue(w, entry.Key)
			writeValue(w, entry.Value)
		}

		op(w, pickle.OpSetItems)

	case Object:
		op(w, pickle.OpGlobal)
		w.Raw([]byte(v.Module + "\n" + v.Name + "\n")...)

		args := v.Args
		if args == nil {
			args = Tuple{}
		}

		writeValue(w, args)
		op(w, pickle.OpNewObj)

		if v.State != nil {
			writeValue(w, v.State)
			op(w, pickle.OpBuild)
		}

	default:
		panic(fmt.Sprintf("fixture: can not pickle %T", v))
	}
}

func writeInt(w *binread.Writer, v int64) {
	switch {
	case v >= 0 && v < 256:
		op(w, pickle.OpBinInt1)
		w.U8(uint8(v))

	case v >= math.MinInt32 && v <= math.MaxInt32:
		op(w, pickle.OpBinInt)
		w.I32(int32(v))

	default:
		op(w, pickle.OpLong1)
		w.U8(8)
		w.I64(v)
	}
}
