package unpack

import (
	"errors"
	"iter"
)

var ErrNoValue = errors.New("no value")
var ErrNotSupported = errors.New("not supported")

// Source represents the abstract interface to a decoded data source, designed to work
// with the [Unmarshal] function.
//
// A [Source] provides methods to interpret the source data in different forms:
//   - **Primitive types**: Supports conversion to basic Go types such as `bool`, `int`, `uint`,
//     `float`, and `string`.
//   - **Objects**: Accesses nested data structures using [Source.Get], which retrieves
//     a value corresponding to a specified key.
//   - **Slices**: Iterates over list-like structures using [Source.Iter].
//   - **Maps**: Handles key-value pairs via [Source.KeyValues].
//
// If converting the [Source] into a particular type isn't possible, the method must return
// [ErrNotSupported] as the error.
//
// A struct target is filled by name through [Source.Get]. If the [Source] does not support
// Get but can be iterated, the struct is filled positionally in field order. This matches
// tuple shaped values like the argument lists of a pickled constructor call.
//
// To facilitate the creation of custom [Source] implementations, the package includes
// two ready-to-use implementations:
//
//  1. **[StringSource]**: parses strings into various target types using `strconv`.
//  2. **[EmptySource]**: returns [ErrNotSupported] for all methods. Embed it as a base for
//     your own implementation.
type Source interface {
	// Bool returns the current value as a bool.
	// Returns error ErrNotSupported if the value can not be represented as such.
	Bool() (bool, error)

	// Int returns the current value as an int64.
	// Returns error ErrNotSupported if the value can not be represented as such.
	Int() (int64, error)

	// Uint returns the current value as an uint64.
	// Returns error ErrNotSupported if the value can not be represented as such.
	Uint() (uint64, error)

	// Float returns the current value as a float64.
	// Returns error ErrNotSupported if the value can not be represented as such.
	Float() (float64, error)

	// String returns the current value as a string.
	// Returns error ErrNotSupported if the value can not be represented as such.
	String() (string, error)

	// Get returns a child value of this [Source] if it exists.
	// Returns error [ErrNotSupported] if the current [Source] does not have any
	// named child values. If the [Source] does have children, but just not the
	// requested child, [ErrNoValue] must be returned.
	Get(key string) (Source, error)

	// KeyValues interprets the [Source] as a map and iterates over the
	// elements within. It yields a pair of key and value [Source] instances.
	// Returns [ErrNotSupported] if the [Source] is not iterable.
	KeyValues() (iter.Seq2[Source, Source], error)

	// Iter interprets the [Source] as a slice and iterates over the
	// elements within.
	// Returns [ErrNotSupported] if the [Source] is not iterable.
	Iter() (iter.Seq[Source], error)
}

// BinarySource extends the [Source] interface by adding methods for extracting
// integer, unsigned integer, and floating-point values of specific bit sizes.
//
// When using [Unmarshal], it will prioritize these specific methods (e.g., `Int8`, `Uint16`, etc.)
// over the more generic [Source.Int] or [Source.Float] methods.
type BinarySource interface {
	Source

	Int8() (int8, error)
	Int16() (int16, error)
	Int32() (int32, error)
	Int64() (int64, error)

	Uint8() (uint8, error)
	Uint16() (uint16, error)
	Uint32() (uint32, error)
	Uint64() (uint64, error)

	Float32() (float32, error)
	Float64() (float64, error)
}

// BytesSource is implemented by sources that hold raw binary data. A `[]byte` target
// is filled through [BytesSource.Bytes] when available, falling back to [Source.Iter].
type BytesSource interface {
	Source

	Bytes() ([]byte, error)
}
