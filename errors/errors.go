package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates which decoder produced the error
type Phase string

const (
	PhasePickle      Phase = "pickle"      // opcode stream
	PhaseVariant     Phase = "variant"     // tagged variant values
	PhaseResource    Phase = "resource"    // resource container header and tables
	PhaseCompression Phase = "compression" // block-chunked decompression
	PhaseArchive     Phase = "archive"     // archive backends
	PhaseScript      Phase = "script"      // compiled script containers
	PhaseTexture     Phase = "texture"     // imported texture files
)

// Kind categorizes the error
type Kind string

const (
	KindMalformedHeader    Kind = "malformed_header"
	KindUnsupportedFeature Kind = "unsupported_feature"
	KindStackDiscipline    Kind = "stack_discipline"
	KindMemoViolation      Kind = "memo_violation"
	KindUnknownTag         Kind = "unknown_tag"
	KindTypeMismatch       Kind = "type_mismatch"
	KindKeyTypeViolation   Kind = "key_type_violation"
	KindTruncated          Kind = "truncated"
)

// Error is the structured error type used by all decoders
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string

	// Offset is the stream position the error was raised at, -1 if unknown.
	Offset int64
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a Phase
// matches errors of the same Kind raised in any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}

	return e.Kind == t.Kind
}

// IsKind reports whether err, or any error it wraps, is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}

	return e.Kind == kind
}

// KindOf returns the kind of the first *Error in err's chain, or the empty Kind.
func KindOf(err error) Kind {
	var e *Error
	if !stderrors.As(err, &e) {
		return ""
	}

	return e.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:  phase,
			Kind:   kind,
			Offset: -1,
		},
	}
}

// At sets the stream offset
func (b *Builder) At(offset int64) *Builder {
	b.err.Offset = offset
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors, one per kind

// MalformedHeader creates an error for a magic or version mismatch
func MalformedHeader(phase Phase, offset int64, detail string, args ...any) *Error {
	return New(phase, KindMalformedHeader).At(offset).Detail(detail, args...).Build()
}

// UnsupportedFeature creates an error for a recognized but rejected input
func UnsupportedFeature(phase Phase, offset int64, detail string, args ...any) *Error {
	return New(phase, KindUnsupportedFeature).At(offset).Detail(detail, args...).Build()
}

// StackDiscipline creates an error for a pop on an empty stack or on a mark
func StackDiscipline(phase Phase, offset int64, detail string) *Error {
	return New(phase, KindStackDiscipline).At(offset).Detail("%s", detail).Build()
}

// MemoViolation creates an error for an out of range or empty memo slot
func MemoViolation(phase Phase, offset int64, index uint64, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMemoViolation,
		Offset: offset,
		Value:  index,
		Detail: fmt.Sprintf("memo index %d: %s", index, detail),
	}
}

// UnknownTag creates an error for an unrecognized opcode or discriminant
func UnknownTag(phase Phase, offset int64, tag uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownTag,
		Offset: offset,
		Value:  tag,
		Detail: fmt.Sprintf("unknown tag 0x%02x", tag),
	}
}

// TypeMismatch creates an error for a conversion requested against an incompatible value
func TypeMismatch(phase Phase, offset int64, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Offset: offset,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// KeyTypeViolation creates an error for a dictionary key that is not a string
func KeyTypeViolation(phase Phase, offset int64, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindKeyTypeViolation,
		Offset: offset,
		Detail: fmt.Sprintf("dictionary key must be a string, got %s", got),
	}
}

// Truncated wraps an I/O error raised because the input ended early
func Truncated(phase Phase, offset int64, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTruncated,
		Offset: offset,
		Cause:  cause,
	}
}
