// Package pickle decodes python pickle streams of protocol 2 to 5 into a closed
// tree of Values. Only the opcodes that appear in real game archives are implemented,
// every other opcode fails the decode.
package pickle

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-gum/unpack/errors"
	"github.com/go-gum/unpack/internal/binread"
	"golang.org/x/text/encoding/charmap"
)

// Parse decodes exactly one pickle from r. The stream must start with a PROTO
// opcode declaring protocol 2, 3, 4 or 5 and end with STOP.
func Parse(r io.Reader) (Value, error) {
	m := &machine{r: binread.NewReader(r, errors.PhasePickle)}
	return m.run()
}

// ParseBytes decodes a pickle held in memory.
func ParseBytes(data []byte) (Value, error) {
	return Parse(bytes.NewReader(data))
}

type handler func(*machine) error

var handlers = [256]handler{
	OpMark:            (*machine).opMark,
	OpStop:            (*machine).opStop,
	OpPop:             (*machine).opPop,
	OpPopMark:         (*machine).opPopMark,
	OpDup:             (*machine).opDup,
	OpFloat:           (*machine).opFloat,
	OpInt:             (*machine).opInt,
	OpBinInt:          (*machine).opBinInt,
	OpBinInt1:         (*machine).opBinInt1,
	OpLong:            (*machine).opLong,
	OpBinInt2:         (*machine).opBinInt2,
	OpNone:            (*machine).opNone,
	OpReduce:          (*machine).opReduce,
	OpBinString:       (*machine).opBinString,
	OpShortBinString:  (*machine).opShortBinString,
	OpBinUnicode:      (*machine).opBinUnicode,
	OpAppend:          (*machine).opAppend,
	OpBuild:           (*machine).opBuild,
	OpGlobal:          (*machine).opGlobal,
	OpDict:            (*machine).opDict,
	OpEmptyDict:       (*machine).opEmptyDict,
	OpAppends:         (*machine).opAppends,
	OpGet:             (*machine).opGet,
	OpBinGet:          (*machine).opBinGet,
	OpLongBinGet:      (*machine).opLongBinGet,
	OpList:            (*machine).opList,
	OpEmptyList:       (*machine).opEmptyList,
	OpPut:             (*machine).opPut,
	OpBinPut:          (*machine).opBinPut,
	OpLongBinPut:      (*machine).opLongBinPut,
	OpSetItem:         (*machine).opSetItem,
	OpTuple:           (*machine).opTuple,
	OpEmptyTuple:      (*machine).opEmptyTuple,
	OpSetItems:        (*machine).opSetItems,
	OpBinFloat:        (*machine).opBinFloat,
	OpProto:           (*machine).opProto,
	OpNewObj:          (*machine).opReduce,
	OpTuple1:          (*machine).opTuple1,
	OpTuple2:          (*machine).opTuple2,
	OpTuple3:          (*machine).opTuple3,
	OpNewTrue:         (*machine).opNewTrue,
	OpNewFalse:        (*machine).opNewFalse,
	OpLong1:           (*machine).opLong1,
	OpBinBytes:        (*machine).opBinBytes,
	OpShortBinBytes:   (*machine).opShortBinBytes,
	OpShortBinUnicode: (*machine).opShortBinUnicode,
	OpBinUnicode8:     (*machine).opBinUnicode8,
	OpBinBytes8:       (*machine).opBinBytes8,
	OpStackGlobal:     (*machine).opStackGlobal,
	OpMemoize:         (*machine).opMemoize,
	OpFrame:           (*machine).opFrame,
	OpByteArray8:      (*machine).opBinBytes8,
}

// machine holds the state of a single decode call.
type machine struct {
	r     *binread.Reader
	stack stack
	memo  memo

	// declared protocol, zero until the PROTO opcode was read
	protocol uint8

	// offset of the opcode currently executed
	offset int64

	stopped bool
}

func (m *machine) run() (Value, error) {
	if err := m.readProtocol(); err != nil {
		return nil, err
	}

	for !m.stopped {
		m.offset = m.r.Position()

		b, err := m.r.U8()
		if err != nil {
			return nil, err
		}

		op := Opcode(b)

		h := handlers[op]
		if h == nil {
			if op.Defined() {
				return nil, errors.UnsupportedFeature(errors.PhasePickle, m.offset, "opcode %s is not implemented", op)
			}

			return nil, errors.UnknownTag(errors.PhasePickle, m.offset, uint64(b))
		}

		if err := h(m); err != nil {
			return nil, err
		}
	}

	return m.stack.Pop(m.offset)
}

func (m *machine) readProtocol() error {
	start := m.r.Position()

	b, err := m.r.U8()
	if err != nil {
		return err
	}

	if Opcode(b) != OpProto {
		return errors.MalformedHeader(errors.PhasePickle, start, "first opcode must be PROTO, got %s", Opcode(b))
	}

	version, err := m.r.U8()
	if err != nil {
		return err
	}

	switch version {
	case 2, 3, 4, 5:
		m.protocol = version
		return nil

	case 0, 1:
		return errors.New(errors.PhasePickle, errors.KindUnsupportedFeature).
			At(start+1).
			Value(version).
			Detail("unsupported protocol %d", version).
			Build()

	default:
		// above 5
		return errors.New(errors.PhasePickle, errors.KindUnsupportedFeature).
			At(start+1).
			Value(version).
			Detail("unknown protocol %d", version).
			Build()
	}
}

func (m *machine) typeMismatch(want string, got Value) error {
	return errors.TypeMismatch(errors.PhasePickle, m.offset, want, kindOf(got).String())
}

func (m *machine) opProto() error {
	return errors.MalformedHeader(errors.PhasePickle, m.offset, "PROTO is only valid as the first opcode")
}

func (m *machine) opStop() error {
	m.stopped = true
	return nil
}

func (m *machine) opFrame() error {
	// frame length is a preload hint only
	_, err := m.r.U64()
	return err
}

func (m *machine) opMark() error {
	m.stack.PushMark()
	return nil
}

func (m *machine) opPop() error {
	return m.stack.Discard(m.offset)
}

func (m *machine) opPopMark() error {
	_, err := m.stack.PopToMark(m.offset)
	return err
}

func (m *machine) opDup() error {
	top, err := m.stack.Top(m.offset)
	if err != nil {
		return err
	}

	m.stack.Push(top)
	return nil
}

func (m *machine) opNone() error {
	m.stack.Push(None{})
	return nil
}

func (m *machine) opNewTrue() error {
	m.stack.Push(Bool(true))
	return nil
}

func (m *machine) opNewFalse() error {
	m.stack.Push(Bool(false))
	return nil
}

func (m *machine) opBinInt() error {
	v, err := m.r.I32()
	if err != nil {
		return err
	}

	m.stack.Push(Int(v))
	return nil
}

func (m *machine) opBinInt1() error {
	v, err := m.r.U8()
	if err != nil {
		return err
	}

	m.stack.Push(Uint(v))
	return nil
}

func (m *machine) opBinInt2() error {
	v, err := m.r.U16()
	if err != nil {
		return err
	}

	m.stack.Push(Uint(v))
	return nil
}

func (m *machine) opLong1() error {
	n, err := m.r.U8()
	if err != nil {
		return err
	}

	data, err := m.r.Bytes(uint64(n))
	if err != nil {
		return err
	}

	if n > 8 {
		return errors.UnsupportedFeature(errors.PhasePickle, m.offset, "LONG1 of %d bytes exceeds 64 bit", n)
	}

	m.stack.Push(Int(decodeLong(data)))
	return nil
}

// decodeLong decodes a little-endian two's complement integer of at most 8 bytes.
func decodeLong(data []byte) int64 {
	if len(data) == 0 {
		return 0
	}

	var buf [8]byte
	if data[len(data)-1]&0x80 != 0 {
		// sign extend
		buf = [8]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	}

	copy(buf[:], data)
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

func (m *machine) opInt() error {
	line, err := m.r.Line()
	if err != nil {
		return err
	}

	switch line {
	case "00":
		m.stack.Push(Bool(false))
		return nil
	case "01":
		m.stack.Push(Bool(true))
		return nil
	}

	return m.pushDecimal(line)
}

func (m *machine) opLong() error {
	line, err := m.r.Line()
	if err != nil {
		return err
	}

	return m.pushDecimal(strings.TrimSuffix(line, "L"))
}

func (m *machine) pushDecimal(text string) error {
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return errors.New(errors.PhasePickle, errors.KindUnsupportedFeature).
			At(m.offset).
			Detail("decimal integer %q", text).
			Cause(err).
			Build()
	}

	m.stack.Push(Int(v))
	return nil
}

func (m *machine) opFloat() error {
	line, err := m.r.Line()
	if err != nil {
		return err
	}

	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return errors.New(errors.PhasePickle, errors.KindTypeMismatch).
			At(m.offset).
			Detail("decimal float %q", line).
			Cause(err).
			Build()
	}

	m.stack.Push(Float(v))
	return nil
}

func (m *machine) opBinFloat() error {
	var buf [8]byte
	if err := m.r.ReadFull(buf[:]); err != nil {
		return err
	}

	m.stack.Push(Float(math.Float64frombits(binary.BigEndian.Uint64(buf[:]))))
	return nil
}

func (m *machine) opShortBinUnicode() error {
	s, err := m.r.String8()
	if err != nil {
		return err
	}

	m.stack.Push(String(s))
	return nil
}

func (m *machine) opBinUnicode() error {
	s, err := m.r.String32()
	if err != nil {
		return err
	}

	m.stack.Push(String(s))
	return nil
}

func (m *machine) opBinUnicode8() error {
	s, err := m.r.String64()
	if err != nil {
		return err
	}

	m.stack.Push(String(s))
	return nil
}

func (m *machine) opShortBinString() error {
	n, err := m.r.U8()
	if err != nil {
		return err
	}

	return m.pushLatin1(uint64(n))
}

func (m *machine) opBinString() error {
	n, err := m.r.U32()
	if err != nil {
		return err
	}

	return m.pushLatin1(uint64(n))
}

// pushLatin1 pushes a python 2 byte string. Those are decoded as latin-1.
func (m *machine) pushLatin1(n uint64) error {
	data, err := m.r.Bytes(n)
	if err != nil {
		return err
	}

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return errors.New(errors.PhasePickle, errors.KindTypeMismatch).At(m.offset).Cause(err).Build()
	}

	m.stack.Push(String(decoded))
	return nil
}

func (m *machine) opShortBinBytes() error {
	n, err := m.r.U8()
	if err != nil {
		return err
	}

	return m.pushBinary(uint64(n))
}

func (m *machine) opBinBytes() error {
	n, err := m.r.U32()
	if err != nil {
		return err
	}

	return m.pushBinary(uint64(n))
}

func (m *machine) opBinBytes8() error {
	n, err := m.r.U64()
	if err != nil {
		return err
	}

	return m.pushBinary(n)
}

func (m *machine) pushBinary(n uint64) error {
	data, err := m.r.Bytes(n)
	if err != nil {
		return err
	}

	if data == nil {
		data = []byte{}
	}

	m.stack.Push(Binary(data))
	return nil
}

func (m *machine) opEmptyList() error {
	m.stack.Push(NewList())
	return nil
}

func (m *machine) opList() error {
	items, err := m.stack.PopToMark(m.offset)
	if err != nil {
		return err
	}

	m.stack.Push(NewList(items...))
	return nil
}

func (m *machine) opAppend() error {
	item, err := m.stack.Pop(m.offset)
	if err != nil {
		return err
	}

	list, err := m.topList()
	if err != nil {
		return err
	}

	list.Items = append(list.Items, item)
	return nil
}

func (m *machine) opAppends() error {
	items, err := m.stack.PopToMark(m.offset)
	if err != nil {
		return err
	}

	list, err := m.topList()
	if err != nil {
		return err
	}

	list.Items = append(list.Items, items...)
	return nil
}

func (m *machine) topList() (*List, error) {
	top, err := m.stack.Top(m.offset)
	if err != nil {
		return nil, err
	}

	list, ok := top.(*List)
	if !ok {
		return nil, m.typeMismatch("List", top)
	}

	return list, nil
}

func (m *machine) opEmptyDict() error {
	m.stack.Push(NewDict())
	return nil
}

func (m *machine) opDict() error {
	items, err := m.stack.PopToMark(m.offset)
	if err != nil {
		return err
	}

	dict := NewDict()
	if err := m.setItems(dict, items); err != nil {
		return err
	}

	m.stack.Push(dict)
	return nil
}

func (m *machine) opSetItem() error {
	items, err := m.stack.PopN(m.offset, 2)
	if err != nil {
		return err
	}

	target, err := m.topDict()
	if err != nil {
		return err
	}

	return m.setItems(target, items)
}

func (m *machine) opSetItems() error {
	items, err := m.stack.PopToMark(m.offset)
	if err != nil {
		return err
	}

	target, err := m.topDict()
	if err != nil {
		return err
	}

	return m.setItems(target, items)
}

// topDict returns the dict on top of the stack. For an instance its field dict is returned.
func (m *machine) topDict() (*Dict, error) {
	top, err := m.stack.Top(m.offset)
	if err != nil {
		return nil, err
	}

	switch top := top.(type) {
	case *Dict:
		return top, nil
	case *Instance:
		return top.Fields, nil
	default:
		return nil, m.typeMismatch("Dict", top)
	}
}

// setItems stores alternating key/value items into dict.
func (m *machine) setItems(dict *Dict, items []Value) error {
	if len(items)%2 != 0 {
		return errors.StackDiscipline(errors.PhasePickle, m.offset, "odd number of items for key/value pairs")
	}

	for idx := 0; idx < len(items); idx += 2 {
		key, ok := items[idx].(String)
		if !ok {
			return errors.KeyTypeViolation(errors.PhasePickle, m.offset, kindOf(items[idx]).String())
		}

		dict.Set(string(key), items[idx+1])
	}

	return nil
}

func (m *machine) opEmptyTuple() error {
	m.stack.Push(Tuple{})
	return nil
}

func (m *machine) opTuple() error {
	items, err := m.stack.PopToMark(m.offset)
	if err != nil {
		return err
	}

	m.stack.Push(Tuple(items))
	return nil
}

func (m *machine) opTuple1() error { return m.pushTuple(1) }
func (m *machine) opTuple2() error { return m.pushTuple(2) }
func (m *machine) opTuple3() error { return m.pushTuple(3) }

func (m *machine) pushTuple(n int) error {
	items, err := m.stack.PopN(m.offset, n)
	if err != nil {
		return err
	}

	m.stack.Push(Tuple(items))
	return nil
}

func (m *machine) opGlobal() error {
	module, err := m.r.Line()
	if err != nil {
		return err
	}

	name, err := m.r.Line()
	if err != nil {
		return err
	}

	m.stack.Push(ModuleRef{Module: module, Name: name})
	return nil
}

func (m *machine) opStackGlobal() error {
	items, err := m.stack.PopN(m.offset, 2)
	if err != nil {
		return err
	}

	module, ok := items[0].(String)
	if !ok {
		return m.typeMismatch("String", items[0])
	}

	name, ok := items[1].(String)
	if !ok {
		return m.typeMismatch("String", items[1])
	}

	m.stack.Push(ModuleRef{Module: string(module), Name: string(name)})
	return nil
}

// opReduce handles REDUCE and NEWOBJ. Both combine a class reference and its
// arguments into an instance without calling into any code.
func (m *machine) opReduce() error {
	items, err := m.stack.PopN(m.offset, 2)
	if err != nil {
		return err
	}

	class, ok := items[0].(ModuleRef)
	if !ok {
		return m.typeMismatch("Module", items[0])
	}

	m.stack.Push(newInstance(class, items[1]))
	return nil
}

func (m *machine) opBuild() error {
	state, err := m.stack.Pop(m.offset)
	if err != nil {
		return err
	}

	top, err := m.stack.Top(m.offset)
	if err != nil {
		return err
	}

	inst, ok := top.(*Instance)
	if !ok {
		return m.typeMismatch("Instance", top)
	}

	inst.State = state
	return nil
}

func (m *machine) opMemoize() error {
	return m.memoize(uint64(m.memo.Len()))
}

func (m *machine) opPut() error {
	index, err := m.decimalIndex()
	if err != nil {
		return err
	}

	return m.memoize(index)
}

func (m *machine) opBinPut() error {
	index, err := m.r.U8()
	if err != nil {
		return err
	}

	return m.memoize(uint64(index))
}

func (m *machine) opLongBinPut() error {
	index, err := m.r.U32()
	if err != nil {
		return err
	}

	return m.memoize(uint64(index))
}

// memoize stores the top of the stack without popping it.
func (m *machine) memoize(index uint64) error {
	top, err := m.stack.Top(m.offset)
	if err != nil {
		return err
	}

	return m.memo.Put(m.offset, index, top)
}

func (m *machine) opGet() error {
	index, err := m.decimalIndex()
	if err != nil {
		return err
	}

	return m.recall(index)
}

func (m *machine) opBinGet() error {
	index, err := m.r.U8()
	if err != nil {
		return err
	}

	return m.recall(uint64(index))
}

func (m *machine) opLongBinGet() error {
	index, err := m.r.U32()
	if err != nil {
		return err
	}

	return m.recall(uint64(index))
}

func (m *machine) recall(index uint64) error {
	value, err := m.memo.Get(m.offset, index)
	if err != nil {
		return err
	}

	m.stack.Push(value)
	return nil
}

func (m *machine) decimalIndex() (uint64, error) {
	line, err := m.r.Line()
	if err != nil {
		return 0, err
	}

	index, err := strconv.ParseUint(line, 10, 64)
	if err != nil {
		return 0, errors.New(errors.PhasePickle, errors.KindMemoViolation).
			At(m.offset).
			Detail("memo index %q", line).
			Cause(err).
			Build()
	}

	return index, nil
}

func kindOf(v Value) Kind {
	if v == nil {
		return KindNone
	}

	return v.Kind()
}
