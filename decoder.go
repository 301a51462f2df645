package unpack

import (
	"encoding"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"sync"

	"golang.org/x/exp/constraints"
)

type NotSupportedError struct {
	Type reflect.Type
}

func (n NotSupportedError) Error() string {
	return fmt.Sprintf("type %q is not supported", n.Type)
}

func Unmarshal(source Source, target any) error {
	return dec.Unmarshal(source, target)
}

func UnmarshalNew[T any](source Source) (T, error) {
	return UnmarshalNewWith[T](&dec, source)
}

func UnmarshalNewWith[T any](dec *Decoder, source Source) (T, error) {
	var target T
	err := dec.Unmarshal(source, &target)
	return target, err
}

// A setter sets the reflect.Value to a value extracted from the given Source
type setter func(Source, reflect.Value) error

// A set of types that are currently in construction
type typeSet map[reflect.Type]struct{}

var tyTextUnmarshaler = reflect.TypeFor[encoding.TextUnmarshaler]()

// DefaultTag is the struct tag used to rename fields if no other tag is configured.
const DefaultTag = "unpack"

// The default Decoder instance.
var dec Decoder

// Decoder can be used to customize unmarshalling. This type is typesafe.
type Decoder struct {
	// the struct tag that is used
	structTag string

	// Cache for setters, indexed by reflect.Type
	setterCache sync.Map

	// Require values for fields. Set to true to fail with ErrNoValue
	// if a value is missing in a Source
	requireValues bool
}

func NewDecoder() *Decoder {
	return &Decoder{
		structTag: DefaultTag,
	}
}

func (d *Decoder) WithTag(structTag string) *Decoder {
	if d.structTag == structTag {
		return d
	}

	return &Decoder{
		structTag:     structTag,
		requireValues: d.requireValues,
	}
}

func (d *Decoder) RequireValues() *Decoder {
	if d.requireValues {
		return d
	}

	return &Decoder{
		structTag:     d.structTag,
		requireValues: true,
	}
}

func (d *Decoder) Unmarshal(source Source, target any) error {
	targetPtr := reflect.ValueOf(target)
	if targetPtr.Kind() != reflect.Pointer || targetPtr.IsNil() {
		return fmt.Errorf("target must be a non nil pointer, got %T", target)
	}

	targetValue := targetPtr.Elem()

	// build the setter for the targets type
	setter, err := d.setterOf(typeSet{}, targetValue.Type())
	if err != nil {
		return err
	}

	return setter(source, targetValue)
}

func (d *Decoder) setterOf(inConstruction typeSet, ty reflect.Type) (setter, error) {
	if cached, ok := d.setterCache.Load(ty); ok {
		return cached.(setter), nil
	}

	if _, ok := inConstruction[ty]; ok {
		// detected a cycle. return a setter that does a cache lookup when executed.
		// we assume that the actual setter will be in the cache once this setter is executed.
		lazySetter := func(source Source, target reflect.Value) error {
			cached, _ := d.setterCache.Load(ty)
			return cached.(setter)(source, target)
		}

		return lazySetter, nil
	}

	inConstruction[ty] = struct{}{}

	setter, err := d.makeSetterOf(inConstruction, ty)
	if err != nil {
		return nil, err
	}

	d.setterCache.Store(ty, setter)

	return setter, nil
}

func (d *Decoder) makeSetterOf(inConstruction typeSet, ty reflect.Type) (setter, error) {
	if reflect.PointerTo(ty).Implements(tyTextUnmarshaler) {
		return setTextUnmarshaler, nil
	}

	switch ty.Kind() {
	case reflect.Bool:
		return setBool, nil

	case reflect.Int:
		return makeSetInt[int](BinarySource.Int64), nil

	case reflect.Int8:
		return makeSetInt[int8](BinarySource.Int8), nil

	case reflect.Int16:
		return makeSetInt[int16](BinarySource.Int16), nil

	case reflect.Int32:
		return makeSetInt[int32](BinarySource.Int32), nil

	case reflect.Int64:
		return makeSetInt[int64](BinarySource.Int64), nil

	case reflect.Uint:
		return makeSetInt[uint](BinarySource.Uint64), nil

	case reflect.Uint8:
		return makeSetInt[uint8](BinarySource.Uint8), nil

	case reflect.Uint16:
		return makeSetInt[uint16](BinarySource.Uint16), nil

	case reflect.Uint32:
		return makeSetInt[uint32](BinarySource.Uint32), nil

	case reflect.Uint64:
		return makeSetInt[uint64](BinarySource.Uint64), nil

	case reflect.Float32:
		return setFloat32, nil

	case reflect.Float64:
		return setFloat64, nil

	case reflect.String:
		return setString, nil

	case reflect.Pointer:
		return d.makeSetPointer(inConstruction, ty)

	case reflect.Struct:
		return d.makeSetStruct(inConstruction, ty)

	case reflect.Slice:
		if ty.Elem().Kind() == reflect.Uint8 {
			return d.makeSetBytes(inConstruction, ty)
		}

		return d.makeSetSlice(inConstruction, ty)

	case reflect.Array:
		return d.makeSetArray(inConstruction, ty)

	case reflect.Map:
		return d.makeSetMap(inConstruction, ty)

	default:
		return nil, NotSupportedError{Type: ty}
	}
}

func (d *Decoder) makeSetStruct(inConstruction typeSet, ty reflect.Type) (setter, error) {
	var setters []setter

	structTag := d.structTag
	if structTag == "" {
		structTag = DefaultTag
	}

	fields := fieldsToSerialize(ty, structTag)

	for _, field := range fields {
		de, err := d.setterOf(inConstruction, field.Type)
		if err != nil {
			return nil, fmt.Errorf("setter for field %q: %w", field.Name, err)
		}

		setters = append(setters, de)
	}

	setPositional := func(source Source, target reflect.Value) error {
		sourceIter, err := source.Iter()
		if err != nil {
			return fmt.Errorf("as tuple: %w", err)
		}

		next, stop := iter.Pull(sourceIter)
		defer stop()

		for idx, field := range fields {
			fieldSource, ok := next()
			if !ok {
				if d.requireValues {
					return fmt.Errorf("field %q: %w", field.Name, ErrNoValue)
				}

				break
			}

			fieldValue := target.FieldByIndex(field.Index)
			if err := setters[idx](fieldSource, fieldValue); err != nil {
				return fmt.Errorf("set field %q on %q: %w", field.Name, target.Type(), err)
			}
		}

		return nil
	}

	setter := func(source Source, target reflect.Value) error {
		for idx, field := range fields {
			fieldSource, err := source.Get(field.Name)
			switch {
			case errors.Is(err, ErrNoValue):
				if d.requireValues {
					return fmt.Errorf("field %q: %w", field.Name, err)
				}
				// It is okay to not get a value at all,
				// in that case we just skip the field
				continue

			case idx == 0 && errors.Is(err, ErrNotSupported):
				// no named children, try to fill the struct like a tuple
				return setPositional(source, target)

			case err != nil:
				return fmt.Errorf("lookup child %q: %w", field.Name, err)
			}

			fieldValue := target.FieldByIndex(field.Index)
			if err := setters[idx](fieldSource, fieldValue); err != nil {
				return fmt.Errorf("set field %q on %q: %w", field.Name, target.Type(), err)
			}
		}

		return nil
	}

	return setter, nil
}

func (d *Decoder) makeSetMap(inConstruction typeSet, ty reflect.Type) (setter, error) {
	keySetter, err := d.setterOf(inConstruction, ty.Key())
	if err != nil {
		return nil, fmt.Errorf("setter for key type %q: %w", ty, err)
	}

	valueSetter, err := d.setterOf(inConstruction, ty.Elem())
	if err != nil {
		return nil, fmt.Errorf("setter for value type %q: %w", ty, err)
	}

	keyType := ty.Key()
	valueType := ty.Elem()

	setter := func(source Source, target reflect.Value) error {
		keyValues, err := source.KeyValues()
		if err != nil {
			return fmt.Errorf("iterate key/value pairs: %w", err)
		}

		mapTarget := reflect.MakeMap(ty)

		for keySource, valueSource := range keyValues {
			keyTarget := reflect.New(keyType).Elem()
			if err := keySetter(keySource, keyTarget); err != nil {
				return fmt.Errorf("set key: %w", err)
			}

			valueTarget := reflect.New(valueType).Elem()
			if err := valueSetter(valueSource, valueTarget); err != nil {
				return fmt.Errorf("set value for key %v: %w", keyTarget, err)
			}

			mapTarget.SetMapIndex(keyTarget, valueTarget)
		}

		target.Set(mapTarget)

		return nil
	}

	return setter, nil
}

func (d *Decoder) makeSetSlice(inConstruction typeSet, ty reflect.Type) (setter, error) {
	elementSetter, err := d.setterOf(inConstruction, ty.Elem())
	if err != nil {
		return nil, fmt.Errorf("setter for element type %q: %w", ty, err)
	}

	// a empty element
	placeholderValue := reflect.New(ty.Elem()).Elem()

	setter := func(source Source, target reflect.Value) error {
		sourceIter, err := source.Iter()
		if err != nil {
			return fmt.Errorf("as iter: %w", err)
		}

		for elementSource := range sourceIter {
			// add an empty element to grow the list
			target.Set(reflect.Append(target, placeholderValue))

			idx := target.Len() - 1
			elementValue := target.Index(idx)
			if err := elementSetter(elementSource, elementValue); err != nil {
				return fmt.Errorf("set element idx=%d: %w", idx, err)
			}
		}

		return nil
	}

	return setter, nil
}

func (d *Decoder) makeSetBytes(inConstruction typeSet, ty reflect.Type) (setter, error) {
	sliceSetter, err := d.makeSetSlice(inConstruction, ty)
	if err != nil {
		return nil, err
	}

	setter := func(source Source, target reflect.Value) error {
		bytesSource, ok := source.(BytesSource)
		if !ok {
			return sliceSetter(source, target)
		}

		data, err := bytesSource.Bytes()
		if err != nil {
			return fmt.Errorf("get bytes value: %w", err)
		}

		target.SetBytes(data)
		return nil
	}

	return setter, nil
}

func (d *Decoder) makeSetArray(inConstruction typeSet, ty reflect.Type) (setter, error) {
	elementSetter, err := d.setterOf(inConstruction, ty.Elem())
	if err != nil {
		return nil, fmt.Errorf("setter for element type %q: %w", ty, err)
	}

	// number of elements in the array
	elementCount := ty.Len()

	setter := func(source Source, target reflect.Value) error {
		sourceIter, err := source.Iter()
		if err != nil {
			return fmt.Errorf("as iter: %w", err)
		}

		next, stop := iter.Pull(sourceIter)
		defer stop()

		for idx := 0; idx < elementCount; idx++ {
			elementSource, ok := next()
			if !ok {
				break
			}

			elementValue := target.Index(idx)
			if err := elementSetter(elementSource, elementValue); err != nil {
				return fmt.Errorf("set element idx=%d: %w", idx, err)
			}
		}

		return nil
	}

	return setter, nil
}

func (d *Decoder) makeSetPointer(inConstruction typeSet, ty reflect.Type) (setter, error) {
	pointeeType := ty.Elem()

	pointeeSetter, err := d.setterOf(inConstruction, pointeeType)
	if err != nil {
		return nil, err
	}

	setter := func(source Source, target reflect.Value) error {
		// newValue is now a pointer to an instance of the pointeeType
		newValue := reflect.New(pointeeType)
		if err := pointeeSetter(source, newValue.Elem()); err != nil {
			return err
		}

		// set pointer to the new value
		target.Set(newValue)

		return nil
	}

	return setter, err
}

func setBool(source Source, target reflect.Value) error {
	boolValue, err := source.Bool()
	if err != nil {
		return fmt.Errorf("get bool value: %w", err)
	}

	target.SetBool(boolValue)
	return nil
}

// makeSetInt creates a setter for integer type T. Sized values are pulled from a
// BinarySource using parse, all other sources go through Source.Int or Source.Uint
// and are narrowed to T.
func makeSetInt[T, P constraints.Integer](parse func(BinarySource) (P, error)) setter {
	return func(source Source, target reflect.Value) error {
		value, err := intValueOf[T](source, parse)
		if err != nil {
			return err
		}

		if isSigned[T]() {
			target.SetInt(int64(value))
		} else {
			target.SetUint(uint64(value))
		}

		return nil
	}
}

func intValueOf[T, P constraints.Integer](source Source, parse func(BinarySource) (P, error)) (T, error) {
	if binarySource, ok := source.(BinarySource); ok {
		parsedValue, err := parse(binarySource)
		if err != nil {
			return 0, fmt.Errorf("get %T value: %w", parsedValue, err)
		}

		return Narrow[T](parsedValue)
	}

	// no binary source, need to fallback to Source.Int or Source.Uint
	if isSigned[T]() {
		intValue, err := source.Int()
		if err != nil {
			return 0, fmt.Errorf("get int value: %w", err)
		}

		return NarrowInt[T](intValue)
	}

	uintValue, err := source.Uint()
	if err != nil {
		return 0, fmt.Errorf("get uint value: %w", err)
	}

	return NarrowUint[T](uintValue)
}

func setFloat32(source Source, target reflect.Value) error {
	if binarySource, ok := source.(BinarySource); ok {
		floatValue, err := binarySource.Float32()
		if err != nil {
			return fmt.Errorf("get float32 value: %w", err)
		}

		target.SetFloat(float64(floatValue))
		return nil
	}

	return setFloat64(source, target)
}

func setFloat64(source Source, target reflect.Value) error {
	floatValue, err := source.Float()
	if err != nil {
		return fmt.Errorf("get float value: %w", err)
	}

	target.SetFloat(floatValue)
	return nil
}

func setString(source Source, target reflect.Value) error {
	stringValue, err := source.String()
	if err != nil {
		return fmt.Errorf("get string value: %w", err)
	}

	target.SetString(stringValue)

	return nil
}

func setTextUnmarshaler(source Source, target reflect.Value) error {
	text, err := source.String()
	if err != nil {
		return fmt.Errorf("get string value: %w", err)
	}

	m := target.Addr().Interface().(encoding.TextUnmarshaler)
	return m.UnmarshalText([]byte(text))
}
