// Package binread implements the primitive reads shared by all decoders: little-endian
// scalars, length-prefixed strings, magic checks, skipping and alignment padding.
package binread

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/go-gum/unpack/errors"
)

// Reader wraps an io.Reader with position tracking. Errors are reported as
// *errors.Error tagged with the phase the reader was created for.
type Reader struct {
	r     io.Reader
	phase errors.Phase
	pos   int64
	buf   [8]byte
}

// NewReader creates a new Reader for the given phase. The initial position is the
// current offset of r if r is an io.Seeker, zero otherwise.
func NewReader(r io.Reader, phase errors.Phase) *Reader {
	var pos int64
	if seeker, ok := r.(io.Seeker); ok {
		if cur, err := seeker.Seek(0, io.SeekCurrent); err == nil {
			pos = cur
		}
	}

	return &Reader{r: r, phase: phase, pos: pos}
}

// FromBytes creates a Reader over an in-memory buffer.
func FromBytes(data []byte, phase errors.Phase) *Reader {
	return NewReader(bytes.NewReader(data), phase)
}

// Position returns the current byte position.
func (r *Reader) Position() int64 {
	return r.pos
}

// Phase returns the phase errors of this reader are tagged with.
func (r *Reader) Phase() errors.Phase {
	return r.phase
}

// SetPhase changes the phase errors are tagged with and returns the previous one.
func (r *Reader) SetPhase(phase errors.Phase) errors.Phase {
	prev := r.phase
	r.phase = phase
	return prev
}

// Seek moves to an absolute position. The underlying reader must implement io.Seeker.
func (r *Reader) Seek(pos int64) error {
	seeker, ok := r.r.(io.Seeker)
	if !ok {
		return errors.UnsupportedFeature(r.phase, r.pos, "seek on a non seekable stream")
	}

	if _, err := seeker.Seek(pos, io.SeekStart); err != nil {
		return errors.New(r.phase, errors.KindTruncated).At(r.pos).Detail("seek to %d", pos).Cause(err).Build()
	}

	r.pos = pos
	return nil
}

// Skip advances over n bytes. Skipping past the end of the input fails like a
// short read, even though seeking there would succeed.
func (r *Reader) Skip(n int64) error {
	if seeker, ok := r.r.(io.Seeker); ok {
		return r.skipSeek(seeker, n)
	}

	copied, err := io.CopyN(io.Discard, r.r, n)
	r.pos += copied
	if err != nil {
		return r.truncated(err)
	}

	return nil
}

func (r *Reader) skipSeek(seeker io.Seeker, n int64) error {
	cur, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return r.truncated(err)
	}

	end, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return r.truncated(err)
	}

	target := min(cur+n, end)
	if _, err := seeker.Seek(target, io.SeekStart); err != nil {
		return r.truncated(err)
	}

	r.pos += target - cur
	if target < cur+n {
		return r.truncated(io.ErrUnexpectedEOF)
	}

	return nil
}

// SkipPadding skips the bytes needed to align a run of length n to a multiple of align.
func (r *Reader) SkipPadding(n int64, align int64) error {
	return r.Skip(Padding(n, align))
}

// Padding returns (align - n % align) % align.
func Padding(n int64, align int64) int64 {
	return (align - n%align) % align
}

// ReadFull fills buf completely.
func (r *Reader) ReadFull(buf []byte) error {
	n, err := io.ReadFull(r.r, buf)
	r.pos += int64(n)
	if err != nil {
		return r.truncated(err)
	}

	return nil
}

// Bytes reads exactly n bytes into a new slice.
func (r *Reader) Bytes(n uint64) ([]byte, error) {
	if n > math.MaxInt32 {
		return nil, errors.UnsupportedFeature(r.phase, r.pos, "length %d exceeds the supported maximum", n)
	}

	// read through a limited reader so a corrupt length fails on EOF
	// instead of allocating the whole claimed size up front.
	var buf bytes.Buffer
	copied, err := io.CopyN(&buf, r.r, int64(n))
	r.pos += copied
	if err != nil {
		return nil, r.truncated(err)
	}

	return buf.Bytes(), nil
}

func (r *Reader) fixed(n int) ([]byte, error) {
	if err := r.ReadFull(r.buf[:n]); err != nil {
		return nil, err
	}

	return r.buf[:n], nil
}

// U8 reads a single byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.fixed(1)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	b, err := r.fixed(2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.fixed(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() (uint64, error) {
	b, err := r.fixed(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

// I32 reads a little-endian int32.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// I64 reads a little-endian int64.
func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

// F32 reads a little-endian IEEE 754 float32.
func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

// F64 reads a little-endian IEEE 754 float64.
func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	return math.Float64frombits(v), err
}

// Real reads a float64 when real64 is set and a widened float32 otherwise.
func (r *Reader) Real(real64 bool) (float64, error) {
	if real64 {
		return r.F64()
	}

	v, err := r.F32()
	return float64(v), err
}

// Magic reads len(magic) bytes and reports whether they match.
func (r *Reader) Magic(magic []byte) (bool, error) {
	buf, err := r.Bytes(uint64(len(magic)))
	if err != nil {
		return false, err
	}

	return bytes.Equal(buf, magic), nil
}

// String reads a string of exactly n bytes. The bytes must be valid UTF-8.
func (r *Reader) String(n uint64) (string, error) {
	start := r.pos

	buf, err := r.Bytes(n)
	if err != nil {
		return "", err
	}

	if !utf8.Valid(buf) {
		return "", errors.New(r.phase, errors.KindTypeMismatch).
			At(start).
			Detail("invalid UTF-8 sequence: %x", preview(buf)).
			Build()
	}

	return string(buf), nil
}

// String8 reads a string prefixed by a uint8 length.
func (r *Reader) String8() (string, error) {
	n, err := r.U8()
	if err != nil {
		return "", err
	}

	return r.String(uint64(n))
}

// String32 reads a string prefixed by a little-endian uint32 length.
func (r *Reader) String32() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}

	return r.String(uint64(n))
}

// String64 reads a string prefixed by a little-endian uint64 length.
func (r *Reader) String64() (string, error) {
	n, err := r.U64()
	if err != nil {
		return "", err
	}

	return r.String(n)
}

// CString32 reads a uint32 length-prefixed string and trims trailing NUL bytes.
func (r *Reader) CString32() (string, error) {
	s, err := r.String32()
	if err != nil {
		return "", err
	}

	return strings.TrimRight(s, "\x00"), nil
}

// Line reads bytes up to and excluding the next '\n'.
func (r *Reader) Line() (string, error) {
	return r.until('\n')
}

// CString reads bytes up to and excluding the next NUL byte.
func (r *Reader) CString() (string, error) {
	return r.until(0)
}

func (r *Reader) until(delim byte) (string, error) {
	var line []byte
	for {
		b, err := r.U8()
		if err != nil {
			return "", err
		}

		if b == delim {
			return string(line), nil
		}

		line = append(line, b)
	}
}

func (r *Reader) truncated(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}

	return errors.Truncated(r.phase, r.pos, err)
}

// WrapError annotates err with the current position and a section name.
func (r *Reader) WrapError(section string, err error) error {
	return fmt.Errorf("%s at position %d: %w", section, r.pos, err)
}

func preview(data []byte) []byte {
	if len(data) > 32 {
		return data[:32]
	}

	return data
}
