package ntuple

import (
	"math"
	"reflect"

	"github.com/x448/float16"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/metrics"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
)

type columnOptions struct {
	length int
	lenVar string
	title  string
}

// ColumnOption configures a column at declaration.
type ColumnOption func(*columnOptions)

// WithLength declares a fixed-length array column of n elements. Combined
// with WithLengthVar it sets the initial buffer capacity instead.
func WithLength(n int) ColumnOption {
	return func(o *columnOptions) { o.length = n }
}

// WithLengthVar declares a variable-length array column whose per-row
// element count is held by the named length column.
func WithLengthVar(name string) ColumnOption {
	return func(o *columnOptions) { o.lenVar = name }
}

// WithTitle sets the branch title.
func WithTitle(title string) ColumnOption {
	return func(o *columnOptions) { o.title = title }
}

// Column is one typed field of a Table with its own backing buffer.
type Column struct {
	tree     *rowstore.Tree
	desc     rowstore.Descriptor
	declared rowstore.ElementType
	buf      rowstore.Buffer
	log      *zap.Logger
}

// columnSpec resolves the declaration of a column without touching the
// tree.
func columnSpec(name, typ string, opts ...ColumnOption) (rowstore.Descriptor, rowstore.ElementType, columnOptions, error) {
	o := columnOptions{length: 1}
	for _, opt := range opts {
		opt(&o)
	}
	et, err := rowstore.ParseElementType(typ)
	if err != nil {
		return rowstore.Descriptor{}, 0, o, err
	}
	if o.length < 1 {
		return rowstore.Descriptor{}, 0, o, errors.Newf(errors.ErrorTypeConfig, "column %s has length %d, want >= 1", name, o.length)
	}
	desc := rowstore.Descriptor{Name: name, Type: et.Storage(), Len: o.length}
	if o.lenVar != "" {
		desc.Len = 1
		desc.LenVar = o.lenVar
	}
	if err := desc.Validate(); err != nil {
		return rowstore.Descriptor{}, 0, o, err
	}
	return desc, et, o, nil
}

func newColumn(tree *rowstore.Tree, log *zap.Logger, name, typ string, opts ...ColumnOption) (*Column, error) {
	desc, et, o, err := columnSpec(name, typ, opts...)
	if err != nil {
		return nil, err
	}
	buf, err := rowstore.NewBuffer(et, o.length)
	if err != nil {
		return nil, err
	}
	if _, err := tree.Branch(desc, et, buf, o.title); err != nil {
		return nil, err
	}
	return &Column{
		tree:     tree,
		desc:     desc,
		declared: et,
		buf:      buf,
		log:      log,
	}, nil
}

// Name returns the column name.
func (c *Column) Name() string { return c.desc.Name }

// Type returns the declared element type, which is Half for narrowed columns.
func (c *Column) Type() rowstore.ElementType { return c.declared }

// Descriptor returns the leaf-list descriptor registered with the store.
func (c *Column) Descriptor() rowstore.Descriptor { return c.desc }

// LengthVar returns the name of the length column, or "".
func (c *Column) LengthVar() string { return c.desc.LenVar }

// Capacity returns the current buffer size in elements.
func (c *Column) Capacity() int { return c.buf.Len() }

// Get returns buffer element i as its stored Go type.
func (c *Column) Get(i int) any { return c.buf.Get(i) }

// Fill stores value in the column buffer. Scalars take a single value;
// fixed-length columns take a slice or array of exactly their length;
// variable-length columns take a slice of any length and grow their buffer
// as needed. Half columns narrow every element to binary16 precision.
// Every element is converted before the buffer is touched, so a failed Fill
// leaves the column unchanged.
func (c *Column) Fill(value any) error {
	staged, err := c.stage(value)
	if err != nil {
		return err
	}
	return c.commit(staged)
}

// stage converts value into a scratch buffer of the column's type.
func (c *Column) stage(value any) (rowstore.Buffer, error) {
	if !c.desc.IsVariable() && !c.desc.IsFixed() {
		scratch, err := rowstore.NewBuffer(c.declared, 1)
		if err != nil {
			return nil, err
		}
		return scratch, c.setInto(scratch, 0, value)
	}
	rv, err := sequence(c.desc.Name, value)
	if err != nil {
		return nil, err
	}
	if c.desc.IsFixed() && rv.Len() != c.desc.Len {
		return nil, errors.Newf(errors.ErrorTypeLengthMismatch, "column %s has fixed length %d but was filled with %d values", c.desc.Name, c.desc.Len, rv.Len())
	}
	scratch, err := rowstore.NewBuffer(c.declared, rv.Len())
	if err != nil {
		return nil, err
	}
	for i := 0; i < rv.Len(); i++ {
		if err := c.setInto(scratch, i, rv.Index(i).Interface()); err != nil {
			return nil, err
		}
	}
	return scratch, nil
}

// commit copies staged values into the column buffer, growing a
// variable-length buffer first when they do not fit.
func (c *Column) commit(staged rowstore.Buffer) error {
	if n := staged.Len(); n > c.buf.Len() {
		if err := c.grow(n); err != nil {
			return err
		}
	}
	for i := 0; i < staged.Len(); i++ {
		if err := c.buf.Set(i, staged.Get(i)); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "commit column "+c.desc.Name)
		}
	}
	return nil
}

// grow replaces the buffer with one of max(n, 2*capacity) elements and
// re-binds the store branch to it before any element is written.
func (c *Column) grow(n int) error {
	size := 2 * c.buf.Len()
	if n > size {
		size = n
	}
	buf, err := rowstore.NewBuffer(c.declared, size)
	if err != nil {
		return err
	}
	if err := c.tree.SetAddress(c.desc.Name, buf); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "rebind grown buffer").WithDetail("column", c.desc.Name)
	}
	c.log.Debug("column buffer grown",
		zap.String("column", c.desc.Name),
		zap.Int("from", c.buf.Len()),
		zap.Int("to", size))
	c.buf = buf
	metrics.BufferRegrowths.WithLabelValues(c.tree.Name()).Inc()
	return nil
}

func (c *Column) setInto(buf rowstore.Buffer, i int, v any) error {
	if c.declared == rowstore.Half {
		f, ok := rowstore.AsFloat64(v)
		if !ok {
			return errors.Newf(errors.ErrorTypeData, "column %s cannot store %T", c.desc.Name, v)
		}
		v = narrowHalf(f)
	}
	if err := buf.Set(i, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "fill column "+c.desc.Name)
	}
	return nil
}

// narrowHalf rounds f to the nearest IEEE binary16 value, ties to even.
// Rounding through float32 can land on a binary16 tie that f itself is not
// on, so the neighbours of the first result are compared against f.
func narrowHalf(f float64) float32 {
	const maxHalf = 65504
	h := float16.Fromfloat32(float32(f))
	if h.IsNaN() {
		return h.Float32()
	}
	if h.IsInf(0) {
		// Below the 65520 overflow tie, f rounds to the largest finite value.
		if a := math.Abs(f); a < 65520 {
			return float32(math.Copysign(maxHalf, f))
		}
		return h.Float32()
	}
	best, bestDiff := h, math.Abs(float64(h.Float32())-f)
	for _, bits := range []uint16{h.Bits() - 1, h.Bits() + 1} {
		n := float16.Frombits(bits)
		if n.Signbit() != h.Signbit() || n.IsNaN() || n.IsInf(0) {
			continue
		}
		d := math.Abs(float64(n.Float32()) - f)
		if d < bestDiff || (d == bestDiff && bits&1 == 0) {
			best, bestDiff = n, d
		}
	}
	return best.Float32()
}

// sequence returns value as a reflect.Value of kind Slice or Array.
func sequence(column string, value any) (reflect.Value, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return reflect.Value{}, errors.Newf(errors.ErrorTypeData, "column %s is an array but was filled with %T", column, value)
	}
	return rv, nil
}
