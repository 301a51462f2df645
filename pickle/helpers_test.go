package pickle

import (
	"github.com/go-gum/unpack/internal/binread"
)

// stream assembles pickle byte streams for tests.
type stream struct {
	w *binread.Writer
}

func newStream(protocol byte) *stream {
	s := &stream{w: binread.NewWriter()}
	return s.op(OpProto).raw(protocol)
}

func (s *stream) op(ops ...Opcode) *stream {
	for _, op := range ops {
		s.w.U8(byte(op))
	}

	return s
}

func (s *stream) raw(data ...byte) *stream {
	s.w.Raw(data...)
	return s
}

func (s *stream) u8(op Opcode, v uint8) *stream {
	s.op(op)
	s.w.U8(v)
	return s
}

func (s *stream) u32(op Opcode, v uint32) *stream {
	s.op(op)
	s.w.U32(v)
	return s
}

func (s *stream) shortUnicode(str string) *stream {
	s.op(OpShortBinUnicode)
	s.w.U8(uint8(len(str)))
	s.w.Raw([]byte(str)...)
	return s
}

func (s *stream) line(op Opcode, lines ...string) *stream {
	s.op(op)
	for _, l := range lines {
		s.w.Raw([]byte(l + "\n")...)
	}

	return s
}

func (s *stream) stop() []byte {
	s.op(OpStop)
	return s.w.Bytes()
}

func (s *stream) bytes() []byte {
	return s.w.Bytes()
}
