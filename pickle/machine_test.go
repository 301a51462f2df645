package pickle

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/go-gum/unpack/errors"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyDict(t *testing.T) {
	data := newStream(4).op(OpEmptyDict, OpMemoize).stop()

	value, err := ParseBytes(data)
	require.NoError(t, err)

	dict, err := AsDict(value)
	require.NoError(t, err)
	require.Equal(t, 0, dict.Len())
}

func TestParseListAppend(t *testing.T) {
	data := newStream(4).
		op(OpEmptyList, OpMemoize).
		shortUnicode("hello").
		op(OpAppend).
		stop()

	value, err := ParseBytes(data)
	require.NoError(t, err)
	require.Equal(t, NewList(String("hello")), value)
}

func TestParseTupleKeepsPushOrder(t *testing.T) {
	data := newStream(2).
		op(OpMark).
		u8(OpBinInt1, 1).
		u8(OpBinInt1, 2).
		u8(OpBinInt1, 3).
		op(OpTuple).
		stop()

	value, err := ParseBytes(data)
	require.NoError(t, err)
	require.Equal(t, Tuple{Uint(1), Uint(2), Uint(3)}, value)

	data = newStream(2).
		u8(OpBinInt1, 1).
		u8(OpBinInt1, 2).
		u8(OpBinInt1, 3).
		op(OpTuple3).
		stop()

	value, err = ParseBytes(data)
	require.NoError(t, err)
	require.Equal(t, Tuple{Uint(1), Uint(2), Uint(3)}, value)
}

func TestParseMemoRoundTrip(t *testing.T) {
	data := newStream(3).
		shortUnicode("stored").
		u8(OpBinPut, 3).
		op(OpPop).
		u8(OpBinGet, 3).
		stop()

	value, err := ParseBytes(data)
	require.NoError(t, err)
	require.Equal(t, String("stored"), value)

	data = newStream(3).
		shortUnicode("stored").
		u32(OpLongBinPut, 70000).
		op(OpPop).
		u32(OpLongBinGet, 70000).
		stop()

	value, err = ParseBytes(data)
	require.NoError(t, err)
	require.Equal(t, String("stored"), value)

	data = newStream(2).
		shortUnicode("text").
		line(OpPut, "7").
		op(OpPop).
		line(OpGet, "7").
		stop()

	value, err = ParseBytes(data)
	require.NoError(t, err)
	require.Equal(t, String("text"), value)
}

func TestParseMemoSharesComposites(t *testing.T) {
	// d = {}; d["self"] = d
	data := newStream(4).
		op(OpEmptyDict, OpMemoize).
		shortUnicode("self").
		u8(OpBinGet, 0).
		op(OpSetItem).
		stop()

	value, err := ParseBytes(data)
	require.NoError(t, err)

	dict, err := AsDict(value)
	require.NoError(t, err)

	self, ok := dict.Get("self")
	require.True(t, ok)
	require.Same(t, dict, self)
}

func TestParseMemoViolation(t *testing.T) {
	// slot 0 stays empty
	data := newStream(2).
		op(OpNone).
		u8(OpBinPut, 1).
		u8(OpBinGet, 0).
		stop()

	_, err := ParseBytes(data)
	require.True(t, errors.IsKind(err, errors.KindMemoViolation))

	data = newStream(2).u8(OpBinGet, 5).stop()

	_, err = ParseBytes(data)
	require.True(t, errors.IsKind(err, errors.KindMemoViolation))

	// memoize needs a value on the stack
	data = newStream(4).op(OpMark, OpMemoize).stop()

	_, err = ParseBytes(data)
	require.True(t, errors.IsKind(err, errors.KindStackDiscipline))
}

func TestParseProtocol(t *testing.T) {
	for _, protocol := range []byte{2, 3, 4, 5} {
		value, err := ParseBytes(newStream(protocol).op(OpNone).stop())
		require.NoError(t, err, "protocol %d", protocol)
		require.Equal(t, None{}, value)
	}

	_, err := ParseBytes(newStream(1).op(OpNone).stop())
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhasePickle, Kind: errors.KindUnsupportedFeature})

	for _, protocol := range []byte{0, 6, 0xff} {
		_, err = ParseBytes(newStream(protocol).op(OpNone).stop())
		require.ErrorIs(t, err, &errors.Error{Phase: errors.PhasePickle, Kind: errors.KindUnsupportedFeature}, "protocol %d", protocol)
		require.ErrorContains(t, err, fmt.Sprintf("protocol %d", protocol))
	}

	// first opcode must declare the protocol
	_, err = ParseBytes([]byte{byte(OpNone), byte(OpStop)})
	require.True(t, errors.IsKind(err, errors.KindMalformedHeader))

	// but only once
	_, err = ParseBytes(newStream(2).op(OpProto).raw(2).op(OpNone).stop())
	require.True(t, errors.IsKind(err, errors.KindMalformedHeader))
}

func TestParseUnknownOpcode(t *testing.T) {
	_, err := ParseBytes(newStream(4).raw(0xff).stop())
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhasePickle, Kind: errors.KindUnknownTag})

	var decodeErr *errors.Error
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, int64(2), decodeErr.Offset)
	require.Equal(t, uint64(0xff), decodeErr.Value)
}

func TestParseUnsupportedOpcode(t *testing.T) {
	for _, op := range []Opcode{OpExt1, OpPersID, OpInst, OpObj, OpEmptySet, OpFrozenSet, OpNewObjEx, OpLong4, OpNextBuffer} {
		_, err := ParseBytes(newStream(5).op(op).stop())
		require.True(t, errors.IsKind(err, errors.KindUnsupportedFeature), "opcode %s", op)
	}
}

func TestParseStackDiscipline(t *testing.T) {
	// nothing left for the result
	_, err := ParseBytes(newStream(2).stop())
	require.True(t, errors.IsKind(err, errors.KindStackDiscipline))

	// APPENDS without a mark
	_, err = ParseBytes(newStream(2).op(OpEmptyList, OpNone, OpAppends).stop())
	require.True(t, errors.IsKind(err, errors.KindStackDiscipline))

	// APPEND on a mark
	_, err = ParseBytes(newStream(2).op(OpMark, OpNone, OpAppend).stop())
	require.True(t, errors.IsKind(err, errors.KindStackDiscipline))
}

func TestParseTruncated(t *testing.T) {
	data := newStream(4).op(OpShortBinUnicode).raw(5, 'h', 'e').bytes()

	_, err := ParseBytes(data)
	require.True(t, errors.IsKind(err, errors.KindTruncated))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// missing STOP
	_, err = ParseBytes(newStream(4).op(OpNone).bytes())
	require.True(t, errors.IsKind(err, errors.KindTruncated))
}

func TestParseDictKeyMustBeString(t *testing.T) {
	data := newStream(2).
		op(OpEmptyDict).
		u8(OpBinInt1, 1).
		u8(OpBinInt1, 2).
		op(OpSetItem).
		stop()

	_, err := ParseBytes(data)
	require.True(t, errors.IsKind(err, errors.KindKeyTypeViolation))
}

func TestParseContainers(t *testing.T) {
	data := newStream(2).
		op(OpMark).
		shortUnicode("a").
		u8(OpBinInt1, 1).
		shortUnicode("b").
		op(OpMark).
		op(OpNewTrue, OpNewFalse).
		op(OpList).
		op(OpDict).
		stop()

	value, err := ParseBytes(data)
	require.NoError(t, err)

	dict, err := AsDict(value)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, dict.Keys())

	b, _ := dict.Get("b")
	require.Equal(t, NewList(Bool(true), Bool(false)), b)

	data = newStream(2).
		op(OpEmptyList).
		op(OpMark).
		u8(OpBinInt1, 1).
		u8(OpBinInt1, 2).
		op(OpAppends).
		op(OpEmptyDict, OpMark).
		shortUnicode("k1").u8(OpBinInt1, 1).
		shortUnicode("k2").u8(OpBinInt1, 2).
		op(OpSetItems).
		op(OpTuple2).
		stop()

	value, err = ParseBytes(data)
	require.NoError(t, err)

	tuple, err := AsTuple(value, 2)
	require.NoError(t, err)
	require.Equal(t, NewList(Uint(1), Uint(2)), tuple[0])

	dict, err = AsDict(tuple[1])
	require.NoError(t, err)
	require.Equal(t, []string{"k1", "k2"}, dict.Keys())
}

func TestParseInstance(t *testing.T) {
	// renpy.ast.Say.__new__(Say) with state (None, {"what": "Hi"})
	data := newStream(2).
		line(OpGlobal, "renpy.ast", "Say").
		op(OpEmptyTuple).
		op(OpNewObj).
		op(OpNone).
		op(OpEmptyDict).
		shortUnicode("what").
		shortUnicode("Hi").
		op(OpSetItem).
		op(OpTuple2).
		op(OpBuild).
		stop()

	value, err := ParseBytes(data)
	require.NoError(t, err)

	inst, err := AsInstance(value)
	require.NoError(t, err)
	require.Equal(t, ModuleRef{Module: "renpy.ast", Name: "Say"}, inst.Class)
	require.Equal(t, Tuple{}, inst.Args)

	what, ok := inst.Attr("what")
	require.True(t, ok)
	require.Equal(t, String("Hi"), what)

	_, ok = inst.Attr("who")
	require.False(t, ok)
}

func TestParseInstanceStateAndFields(t *testing.T) {
	// collections.OrderedDict via STACK_GLOBAL, REDUCE and SETITEMS
	data := newStream(4).
		shortUnicode("collections").
		shortUnicode("OrderedDict").
		op(OpStackGlobal).
		op(OpEmptyTuple).
		op(OpReduce).
		op(OpMark).
		shortUnicode("x").u8(OpBinInt1, 1).
		op(OpSetItems).
		stop()

	value, err := ParseBytes(data)
	require.NoError(t, err)

	inst, err := AsInstance(value)
	require.NoError(t, err)
	require.Equal(t, "collections.OrderedDict", inst.Class.String())
	require.Nil(t, inst.State)

	x, ok := inst.Attr("x")
	require.True(t, ok)
	require.Equal(t, Uint(1), x)

	// BUILD needs an instance
	_, err = ParseBytes(newStream(2).op(OpEmptyDict, OpNone, OpBuild).stop())
	require.True(t, errors.IsKind(err, errors.KindTypeMismatch))

	// REDUCE needs a class reference
	_, err = ParseBytes(newStream(2).op(OpNone, OpEmptyTuple, OpReduce).stop())
	require.True(t, errors.IsKind(err, errors.KindTypeMismatch))
}

func TestParseNumbers(t *testing.T) {
	bigEndian := binary.BigEndian.AppendUint64(nil, math.Float64bits(2.5))

	tests := []struct {
		name string
		data []byte
		want Value
	}{
		{"binint", newStream(2).u32(OpBinInt, 0xfffffff9).stop(), Int(-7)},
		{"binint1", newStream(2).u8(OpBinInt1, 200).stop(), Uint(200)},
		{"binint2", newStream(2).op(OpBinInt2).raw(0x34, 0x12).stop(), Uint(0x1234)},
		{"long1 positive", newStream(2).op(OpLong1).raw(2, 0xff, 0x00).stop(), Int(255)},
		{"long1 negative", newStream(2).op(OpLong1).raw(1, 0xff).stop(), Int(-1)},
		{"long1 zero", newStream(2).op(OpLong1).raw(0).stop(), Int(0)},
		{"binfloat", newStream(2).op(OpBinFloat).raw(bigEndian...).stop(), Float(2.5)},
		{"int text", newStream(2).line(OpInt, "-42").stop(), Int(-42)},
		{"int bool", newStream(2).line(OpInt, "01").stop(), Bool(true)},
		{"long text", newStream(2).line(OpLong, "12L").stop(), Int(12)},
		{"float text", newStream(2).line(OpFloat, "0.25").stop(), Float(0.25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := ParseBytes(tt.data)
			require.NoError(t, err)
			require.Equal(t, tt.want, value)
		})
	}

	_, err := ParseBytes(newStream(2).op(OpLong1).raw(9, 1, 2, 3, 4, 5, 6, 7, 8, 9).stop())
	require.True(t, errors.IsKind(err, errors.KindUnsupportedFeature))
}

func TestParseStrings(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Value
	}{
		{"short binstring latin1", newStream(2).op(OpShortBinString).raw(2, 'a', 0xe9).stop(), String("aé")},
		{"binstring", newStream(2).u32(OpBinString, 1).raw('z').stop(), String("z")},
		{"binunicode", newStream(2).u32(OpBinUnicode, 3).raw('a', 'b', 'c').stop(), String("abc")},
		{"binunicode8", newStream(4).op(OpBinUnicode8).raw(2, 0, 0, 0, 0, 0, 0, 0, 'o', 'k').stop(), String("ok")},
		{"short binbytes", newStream(3).op(OpShortBinBytes).raw(2, 0x00, 0xff).stop(), Binary{0x00, 0xff}},
		{"binbytes empty", newStream(3).u32(OpBinBytes, 0).stop(), Binary{}},
		{"bytearray8", newStream(5).op(OpByteArray8).raw(1, 0, 0, 0, 0, 0, 0, 0, 0x7f).stop(), Binary{0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := ParseBytes(tt.data)
			require.NoError(t, err)
			require.Equal(t, tt.want, value)
		})
	}

	// unicode must be valid UTF-8
	_, err := ParseBytes(newStream(2).op(OpShortBinUnicode).raw(1, 0xff).stop())
	require.True(t, errors.IsKind(err, errors.KindTypeMismatch))
}

func TestParseFrameAndStackOps(t *testing.T) {
	data := newStream(4).
		op(OpFrame).raw(9, 0, 0, 0, 0, 0, 0, 0).
		u8(OpBinInt1, 1).
		op(OpDup).
		op(OpMark).
		u8(OpBinInt1, 9).
		op(OpPopMark).
		op(OpTuple2).
		stop()

	value, err := ParseBytes(data)
	require.NoError(t, err)
	require.Equal(t, Tuple{Uint(1), Uint(1)}, value)
}
