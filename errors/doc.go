// Package errors provides the structured error type returned by all decoders in this module.
//
// Errors are categorized by Phase (which decoder raised it) and Kind (what went wrong).
// Every decode call that fails returns exactly one *Error; decoders never return a
// partially built value together with an error.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhasePickle, errors.KindUnknownTag).
//		At(offset).
//		Value(opcode).
//		Detail("invalid opcode 0x%02x", opcode).
//		Build()
//
// Or use the convenience constructors:
//
//	err := errors.UnknownTag(errors.PhaseVariant, offset, tag)
//	err := errors.StackDiscipline(errors.PhasePickle, offset, "pop on empty stack")
//
// Callers check the category with errors.IsKind, or with the standard library
// errors.Is against a template error:
//
//	if errors.IsKind(err, errors.KindUnsupportedFeature) { ... }
package errors
