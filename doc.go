// Package unpack provides a generic data model to describe access to decoded game archive data.
// It further provides a [Decoder] type to [Unmarshal] data onto go types (e.g. structs, slices,
// strings, etc) similar to [json.Unmarshal].
//
// The [Source] defines access to a decoded value. It adapts the underlying representation
// using a set of functions. The [Decoder.Unmarshal] function walks the target type and pulls data out
// of the [Source] using functions like [Source.Int], [Source.String], etc.
//
// The format specific packages (pickle, variant) produce their own closed value trees and
// provide adapters to [Source], so that decoded object graphs can be mapped onto plain structs.
package unpack
