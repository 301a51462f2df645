package binread

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer builds little-endian byte streams. It mirrors Reader and is used to assemble
// fixtures for the decoders.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return w.buf.Len()
}

func (w *Writer) Raw(data ...byte) *Writer {
	w.buf.Write(data)
	return w
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf.WriteByte(v)
	return w
}

func (w *Writer) U16(v uint16) *Writer {
	w.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
	return w
}

func (w *Writer) U64(v uint64) *Writer {
	w.buf.Write(binary.LittleEndian.AppendUint64(nil, v))
	return w
}

func (w *Writer) I32(v int32) *Writer {
	return w.U32(uint32(v))
}

func (w *Writer) I64(v int64) *Writer {
	return w.U64(uint64(v))
}

func (w *Writer) F32(v float32) *Writer {
	return w.U32(math.Float32bits(v))
}

func (w *Writer) F64(v float64) *Writer {
	return w.U64(math.Float64bits(v))
}

// String32 writes a uint32 length followed by the bytes of s.
func (w *Writer) String32(s string) *Writer {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
	return w
}

// CString32 writes s with a trailing NUL, prefixed by the uint32 length including the NUL.
func (w *Writer) CString32(s string) *Writer {
	w.U32(uint32(len(s) + 1))
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
	return w
}

// CString writes s followed by a NUL byte.
func (w *Writer) CString(s string) *Writer {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
	return w
}

// Pad writes zero bytes until the length is a multiple of align.
func (w *Writer) Pad(align int) *Writer {
	for range Padding(int64(w.buf.Len()), int64(align)) {
		w.buf.WriteByte(0)
	}
	return w
}
