// Package rowstore implements the columnar row store that ntuple tables are
// written into: typed branch buffers, append-only row trees backed by Apache
// Arrow, and containers that hold named trees and opaque objects.
package rowstore

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

// ElementType is the element type of a branch, identified by its
// single-character leaf code.
type ElementType byte

const (
	Int8    ElementType = 'B'
	Uint8   ElementType = 'b'
	Int16   ElementType = 'S'
	Uint16  ElementType = 's'
	Int32   ElementType = 'I'
	Uint32  ElementType = 'i'
	Int64   ElementType = 'L'
	Uint64  ElementType = 'l'
	Float32 ElementType = 'F'
	Float64 ElementType = 'D'
	Bool    ElementType = 'O'
	// Half is a float32 branch whose values are narrowed to IEEE binary16
	// before they are stored. The store sees it as Float32.
	Half ElementType = 'H'
)

type typeInfo struct {
	name  string
	arrow arrow.DataType
}

var typeTable = map[ElementType]typeInfo{
	Int8:    {"int8", arrow.PrimitiveTypes.Int8},
	Uint8:   {"uint8", arrow.PrimitiveTypes.Uint8},
	Int16:   {"int16", arrow.PrimitiveTypes.Int16},
	Uint16:  {"uint16", arrow.PrimitiveTypes.Uint16},
	Int32:   {"int32", arrow.PrimitiveTypes.Int32},
	Uint32:  {"uint32", arrow.PrimitiveTypes.Uint32},
	Int64:   {"int64", arrow.PrimitiveTypes.Int64},
	Uint64:  {"uint64", arrow.PrimitiveTypes.Uint64},
	Float32: {"float32", arrow.PrimitiveTypes.Float32},
	Float64: {"float64", arrow.PrimitiveTypes.Float64},
	Bool:    {"bool", arrow.FixedWidthTypes.Boolean},
	Half:    {"float16", arrow.PrimitiveTypes.Float32},
}

// ParseElementType resolves a leaf code. Unknown codes are configuration errors.
func ParseElementType(code string) (ElementType, error) {
	if len(code) != 1 {
		return 0, errors.Newf(errors.ErrorTypeConfig, "unrecognized element type %q", code)
	}
	t := ElementType(code[0])
	if !t.Valid() {
		return 0, errors.Newf(errors.ErrorTypeConfig, "unrecognized element type %q", code)
	}
	return t, nil
}

// Valid reports whether t is one of the supported element types.
func (t ElementType) Valid() bool {
	_, ok := typeTable[t]
	return ok
}

// Code returns the leaf code character.
func (t ElementType) Code() string { return string(rune(t)) }

// Storage returns the type the store actually holds. Half is downgraded to Float32.
func (t ElementType) Storage() ElementType {
	if t == Half {
		return Float32
	}
	return t
}

// ArrowType returns the Arrow element type used for the branch values.
func (t ElementType) ArrowType() arrow.DataType {
	return typeTable[t].arrow
}

// IsFloat reports whether values of t are floating point.
func (t ElementType) IsFloat() bool {
	return t == Float32 || t == Float64 || t == Half
}

func (t ElementType) String() string {
	if info, ok := typeTable[t]; ok {
		return info.name
	}
	return fmt.Sprintf("ElementType(%q)", byte(t))
}

func elementTypeFromArrow(dt arrow.DataType) (ElementType, bool) {
	switch dt.ID() {
	case arrow.INT8:
		return Int8, true
	case arrow.UINT8:
		return Uint8, true
	case arrow.INT16:
		return Int16, true
	case arrow.UINT16:
		return Uint16, true
	case arrow.INT32:
		return Int32, true
	case arrow.UINT32:
		return Uint32, true
	case arrow.INT64:
		return Int64, true
	case arrow.UINT64:
		return Uint64, true
	case arrow.FLOAT32:
		return Float32, true
	case arrow.FLOAT64:
		return Float64, true
	case arrow.BOOL:
		return Bool, true
	}
	return 0, false
}
