package rowstore

import (
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

// Descriptor is the leaf-list description of one branch:
//
//	NAME/TYPE          scalar
//	NAME[FIXEDLEN]/TYPE fixed-length array
//	NAME[LENVAR]/TYPE  array whose length is held by branch LENVAR
type Descriptor struct {
	Name   string
	Type   ElementType
	Len    int
	LenVar string
}

// IsScalar reports whether the branch holds one value per row.
func (d Descriptor) IsScalar() bool { return d.LenVar == "" && d.Len <= 1 }

// IsFixed reports whether the branch holds exactly Len values per row.
func (d Descriptor) IsFixed() bool { return d.LenVar == "" && d.Len > 1 }

// IsVariable reports whether the row length comes from a count branch.
func (d Descriptor) IsVariable() bool { return d.LenVar != "" }

// String renders the descriptor. Half is written with the float32 code.
func (d Descriptor) String() string {
	code := d.Type.Storage().Code()
	switch {
	case d.IsVariable():
		return d.Name + "[" + d.LenVar + "]/" + code
	case d.IsFixed():
		return d.Name + "[" + strconv.Itoa(d.Len) + "]/" + code
	default:
		return d.Name + "/" + code
	}
}

// ArrowType returns the Arrow type of a whole row of this branch.
func (d Descriptor) ArrowType() arrow.DataType {
	elem := d.Type.ArrowType()
	switch {
	case d.IsVariable():
		return arrow.ListOf(elem)
	case d.IsFixed():
		return arrow.FixedSizeListOf(int32(d.Len), elem)
	default:
		return elem
	}
}

// Validate checks the descriptor is well formed.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "branch name is empty")
	}
	if strings.ContainsAny(d.Name, "[]/") {
		return errors.Newf(errors.ErrorTypeConfig, "branch name %q contains reserved characters", d.Name)
	}
	if !d.Type.Valid() {
		return errors.Newf(errors.ErrorTypeConfig, "unrecognized element type %q for branch %s", byte(d.Type), d.Name)
	}
	if d.Len < 1 {
		return errors.Newf(errors.ErrorTypeConfig, "branch %s has length %d, want >= 1", d.Name, d.Len)
	}
	if d.LenVar != "" && d.Len > 1 {
		return errors.Newf(errors.ErrorTypeConfig, "branch %s has both a fixed length and a length variable", d.Name)
	}
	if d.LenVar == d.Name {
		return errors.Newf(errors.ErrorTypeConfig, "branch %s cannot count itself", d.Name)
	}
	return nil
}

// ParseDescriptor parses a leaf-list string.
func ParseDescriptor(s string) (Descriptor, error) {
	slash := strings.LastIndexByte(s, '/')
	if slash < 0 {
		return Descriptor{}, errors.Newf(errors.ErrorTypeConfig, "descriptor %q has no type", s)
	}
	typ, err := ParseElementType(s[slash+1:])
	if err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{Name: s[:slash], Type: typ, Len: 1}

	if open := strings.IndexByte(d.Name, '['); open >= 0 {
		if !strings.HasSuffix(d.Name, "]") {
			return Descriptor{}, errors.Newf(errors.ErrorTypeConfig, "descriptor %q has an unterminated dimension", s)
		}
		dim := d.Name[open+1 : len(d.Name)-1]
		d.Name = d.Name[:open]
		if n, err := strconv.Atoi(dim); err == nil {
			d.Len = n
		} else {
			d.LenVar = dim
		}
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}
