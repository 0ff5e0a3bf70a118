package rowstore

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

// Buffer is the typed backing storage a branch reads from when a row is
// filled. Its length is fixed for its lifetime; growing a branch means
// allocating a new Buffer and re-binding it with Tree.SetAddress.
type Buffer interface {
	// Type returns the stored element type. It is never Half.
	Type() ElementType
	// Len returns the capacity in elements.
	Len() int
	// Set converts v to the element type and stores it at i.
	Set(i int, v any) error
	// Get returns the element at i as its Go type.
	Get(i int) any

	appendTo(b array.Builder, n int) error
}

type number interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~float32 | ~float64
}

// NewBuffer allocates a zeroed buffer of n elements of t's storage type.
func NewBuffer(t ElementType, n int) (Buffer, error) {
	if n < 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "negative buffer length %d", n)
	}
	switch t.Storage() {
	case Int8:
		return newNumBuffer[int8](Int8, n), nil
	case Uint8:
		return newNumBuffer[uint8](Uint8, n), nil
	case Int16:
		return newNumBuffer[int16](Int16, n), nil
	case Uint16:
		return newNumBuffer[uint16](Uint16, n), nil
	case Int32:
		return newNumBuffer[int32](Int32, n), nil
	case Uint32:
		return newNumBuffer[uint32](Uint32, n), nil
	case Int64:
		return newNumBuffer[int64](Int64, n), nil
	case Uint64:
		return newNumBuffer[uint64](Uint64, n), nil
	case Float32:
		return newNumBuffer[float32](Float32, n), nil
	case Float64:
		return newNumBuffer[float64](Float64, n), nil
	case Bool:
		return &boolBuffer{data: make([]bool, n)}, nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unrecognized element type %q", byte(t))
}

type numBuffer[T number] struct {
	typ  ElementType
	data []T
}

func newNumBuffer[T number](typ ElementType, n int) *numBuffer[T] {
	return &numBuffer[T]{typ: typ, data: make([]T, n)}
}

func (b *numBuffer[T]) Type() ElementType { return b.typ }
func (b *numBuffer[T]) Len() int          { return len(b.data) }
func (b *numBuffer[T]) Get(i int) any     { return b.data[i] }

func (b *numBuffer[T]) Set(i int, v any) error {
	if i < 0 || i >= len(b.data) {
		return errors.Newf(errors.ErrorTypeInternal, "index %d out of range [0, %d)", i, len(b.data))
	}
	x, ok := convertNumber[T](v)
	if !ok {
		return errors.Newf(errors.ErrorTypeData, "cannot store %T in %s buffer", v, b.typ)
	}
	b.data[i] = x
	return nil
}

func (b *numBuffer[T]) appendTo(bld array.Builder, n int) error {
	if n > len(b.data) {
		return errors.Newf(errors.ErrorTypeData, "row needs %d elements but buffer holds %d", n, len(b.data))
	}
	return appendNumbers(bld, b.data[:n])
}

type boolBuffer struct {
	data []bool
}

func (b *boolBuffer) Type() ElementType { return Bool }
func (b *boolBuffer) Len() int          { return len(b.data) }
func (b *boolBuffer) Get(i int) any     { return b.data[i] }

func (b *boolBuffer) Set(i int, v any) error {
	if i < 0 || i >= len(b.data) {
		return errors.Newf(errors.ErrorTypeInternal, "index %d out of range [0, %d)", i, len(b.data))
	}
	switch x := v.(type) {
	case bool:
		b.data[i] = x
	default:
		f, ok := AsFloat64(v)
		if !ok {
			return errors.Newf(errors.ErrorTypeData, "cannot store %T in bool buffer", v)
		}
		b.data[i] = f != 0
	}
	return nil
}

func (b *boolBuffer) appendTo(bld array.Builder, n int) error {
	if n > len(b.data) {
		return errors.Newf(errors.ErrorTypeData, "row needs %d elements but buffer holds %d", n, len(b.data))
	}
	bb, ok := bld.(*array.BooleanBuilder)
	if !ok {
		return fmt.Errorf("bool buffer cannot feed %T", bld)
	}
	bb.AppendValues(b.data[:n], nil)
	return nil
}

func appendNumbers[T number](bld array.Builder, data []T) error {
	switch bb := bld.(type) {
	case *array.Int8Builder:
		for _, v := range data {
			bb.Append(int8(v))
		}
	case *array.Uint8Builder:
		for _, v := range data {
			bb.Append(uint8(v))
		}
	case *array.Int16Builder:
		for _, v := range data {
			bb.Append(int16(v))
		}
	case *array.Uint16Builder:
		for _, v := range data {
			bb.Append(uint16(v))
		}
	case *array.Int32Builder:
		for _, v := range data {
			bb.Append(int32(v))
		}
	case *array.Uint32Builder:
		for _, v := range data {
			bb.Append(uint32(v))
		}
	case *array.Int64Builder:
		for _, v := range data {
			bb.Append(int64(v))
		}
	case *array.Uint64Builder:
		for _, v := range data {
			bb.Append(uint64(v))
		}
	case *array.Float32Builder:
		for _, v := range data {
			bb.Append(float32(v))
		}
	case *array.Float64Builder:
		for _, v := range data {
			bb.Append(float64(v))
		}
	default:
		return fmt.Errorf("numeric buffer cannot feed %T", bld)
	}
	return nil
}

func convertNumber[T number](v any) (T, bool) {
	switch x := v.(type) {
	case int:
		return T(x), true
	case int8:
		return T(x), true
	case int16:
		return T(x), true
	case int32:
		return T(x), true
	case int64:
		return T(x), true
	case uint:
		return T(x), true
	case uint8:
		return T(x), true
	case uint16:
		return T(x), true
	case uint32:
		return T(x), true
	case uint64:
		return T(x), true
	case float32:
		return T(x), true
	case float64:
		return T(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsFloat64 converts any Go numeric or bool value to float64.
func AsFloat64(v any) (float64, bool) {
	return convertNumber[float64](v)
}

// AsInt64 converts any Go numeric or bool value to int64, truncating floats.
func AsInt64(v any) (int64, bool) {
	return convertNumber[int64](v)
}

// AsUint64 converts any Go numeric or bool value to uint64. Negative values
// are rejected.
func AsUint64(v any) (uint64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, float32, float64:
		if f, _ := AsFloat64(v); f < 0 {
			return 0, false
		}
	}
	return convertNumber[uint64](v)
}
