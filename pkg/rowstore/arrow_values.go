package rowstore

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// appendFromArray copies row i of arr into bld. Both must have the same type.
func appendFromArray(bld array.Builder, arr arrow.Array, i int) error {
	switch a := arr.(type) {
	case *array.List:
		lb, ok := bld.(*array.ListBuilder)
		if !ok {
			return fmt.Errorf("list row cannot feed %T", bld)
		}
		start, end := a.ValueOffsets(i)
		lb.Append(true)
		return appendRange(lb.ValueBuilder(), a.ListValues(), start, end)
	case *array.FixedSizeList:
		fb, ok := bld.(*array.FixedSizeListBuilder)
		if !ok {
			return fmt.Errorf("fixed-size list row cannot feed %T", bld)
		}
		start, end := a.ValueOffsets(i)
		fb.Append(true)
		return appendRange(fb.ValueBuilder(), a.ListValues(), start, end)
	}
	return appendRange(bld, arr, int64(i), int64(i)+1)
}

func appendRange(bld array.Builder, arr arrow.Array, start, end int64) error {
	switch a := arr.(type) {
	case *array.Int8:
		b := bld.(*array.Int8Builder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	case *array.Uint8:
		b := bld.(*array.Uint8Builder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	case *array.Int16:
		b := bld.(*array.Int16Builder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	case *array.Uint16:
		b := bld.(*array.Uint16Builder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	case *array.Int32:
		b := bld.(*array.Int32Builder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	case *array.Uint32:
		b := bld.(*array.Uint32Builder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	case *array.Int64:
		b := bld.(*array.Int64Builder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	case *array.Uint64:
		b := bld.(*array.Uint64Builder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	case *array.Float32:
		b := bld.(*array.Float32Builder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	case *array.Float64:
		b := bld.(*array.Float64Builder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	case *array.Boolean:
		b := bld.(*array.BooleanBuilder)
		for j := start; j < end; j++ {
			b.Append(a.Value(int(j)))
		}
	default:
		return fmt.Errorf("unsupported array type %s", arr.DataType())
	}
	return nil
}

type valuer[T any] interface {
	Value(int) T
}

func collect[T any](a valuer[T], start, end int64) []T {
	out := make([]T, 0, end-start)
	for j := start; j < end; j++ {
		out = append(out, a.Value(int(j)))
	}
	return out
}

// arrayValue returns row i of arr as a Go value: a scalar for primitive
// arrays, a typed slice for list arrays.
func arrayValue(arr arrow.Array, i int) (any, error) {
	switch a := arr.(type) {
	case *array.List:
		start, end := a.ValueOffsets(i)
		return sliceValue(a.ListValues(), start, end)
	case *array.FixedSizeList:
		start, end := a.ValueOffsets(i)
		return sliceValue(a.ListValues(), start, end)
	case *array.Int8:
		return a.Value(i), nil
	case *array.Uint8:
		return a.Value(i), nil
	case *array.Int16:
		return a.Value(i), nil
	case *array.Uint16:
		return a.Value(i), nil
	case *array.Int32:
		return a.Value(i), nil
	case *array.Uint32:
		return a.Value(i), nil
	case *array.Int64:
		return a.Value(i), nil
	case *array.Uint64:
		return a.Value(i), nil
	case *array.Float32:
		return a.Value(i), nil
	case *array.Float64:
		return a.Value(i), nil
	case *array.Boolean:
		return a.Value(i), nil
	}
	return nil, fmt.Errorf("unsupported array type %s", arr.DataType())
}

func sliceValue(arr arrow.Array, start, end int64) (any, error) {
	switch a := arr.(type) {
	case *array.Int8:
		return collect[int8](a, start, end), nil
	case *array.Uint8:
		return collect[uint8](a, start, end), nil
	case *array.Int16:
		return collect[int16](a, start, end), nil
	case *array.Uint16:
		return collect[uint16](a, start, end), nil
	case *array.Int32:
		return collect[int32](a, start, end), nil
	case *array.Uint32:
		return collect[uint32](a, start, end), nil
	case *array.Int64:
		return collect[int64](a, start, end), nil
	case *array.Uint64:
		return collect[uint64](a, start, end), nil
	case *array.Float32:
		return collect[float32](a, start, end), nil
	case *array.Float64:
		return collect[float64](a, start, end), nil
	case *array.Boolean:
		return collect[bool](a, start, end), nil
	}
	return nil, fmt.Errorf("unsupported list element type %s", arr.DataType())
}
