package rowstore

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/logger"
	"github.com/ajitpratap0/nebula-ntuple/pkg/metrics"
)

// ClassTree is the class name recorded for row trees in a container.
const ClassTree = "TTree"

// Branch is one column of a Tree. Its values come either from a bound Buffer
// or, for branches cloned from another tree, from that tree's current entry.
type Branch struct {
	tree     *Tree
	index    int
	desc     Descriptor
	declared ElementType
	title    string
	active   bool

	buf     Buffer
	source  *Branch
	builder array.Builder
}

// Name returns the branch name.
func (b *Branch) Name() string { return b.desc.Name }

// Descriptor returns the leaf-list description of the branch.
func (b *Branch) Descriptor() Descriptor { return b.desc }

// Declared returns the element type the branch was declared with, which is
// Half for downgraded branches.
func (b *Branch) Declared() ElementType { return b.declared }

// Title returns the branch title.
func (b *Branch) Title() string { return b.title }

// SetTitle replaces the branch title.
func (b *Branch) SetTitle(title string) { b.title = title }

// Active reports whether the branch takes part in clones.
func (b *Branch) Active() bool { return b.active }

// Tree is an append-only columnar row store. Rows are appended with Fill,
// which snapshots every branch's current value; rows are read back by
// positioning the cursor with GetEntry.
type Tree struct {
	name  string
	title string
	mem   memory.Allocator

	branches []*Branch
	byName   map[string]*Branch

	batches []arrow.Record
	pending int
	entries int64

	cursor   int64
	batchIdx int
	batchRow int

	file *File
	log  *zap.Logger
}

// NewTree creates an empty detached tree.
func NewTree(name, title string) *Tree {
	return &Tree{
		name:   name,
		title:  title,
		mem:    memory.DefaultAllocator,
		byName: make(map[string]*Branch),
		cursor: -1,
		log:    logger.With(zap.String("tree", name)),
	}
}

// Name returns the tree name.
func (t *Tree) Name() string { return t.name }

// Title returns the tree title.
func (t *Tree) Title() string { return t.title }

// Entries returns the number of rows in the tree.
func (t *Tree) Entries() int64 { return t.entries }

// File returns the container the tree is written to, if any.
func (t *Tree) File() *File { return t.file }

// SetFile attaches the tree to a container so that Write persists into it.
func (t *Tree) SetFile(f *File) { t.file = f }

// Branches returns the branches in declaration order.
func (t *Tree) Branches() []*Branch {
	out := make([]*Branch, len(t.branches))
	copy(out, t.branches)
	return out
}

// GetBranch returns the named branch or nil.
func (t *Tree) GetBranch(name string) *Branch {
	return t.byName[name]
}

// Branch declares a new branch bound to buf. For variable-length branches
// the count branch must already exist. Declaring is only allowed while the
// tree holds no rows.
func (t *Tree) Branch(desc Descriptor, declared ElementType, buf Buffer, title string) (*Branch, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if t.entries > 0 {
		return nil, errors.Newf(errors.ErrorTypeState, "cannot add branch %s to tree %s after %d rows", desc.Name, t.name, t.entries)
	}
	if _, exists := t.byName[desc.Name]; exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "branch %s already exists in tree %s", desc.Name, t.name)
	}
	if desc.IsVariable() {
		if _, ok := t.byName[desc.LenVar]; !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig, "count branch %s for %s does not exist", desc.LenVar, desc.Name)
		}
	}
	if buf != nil && buf.Type() != desc.Type.Storage() {
		return nil, errors.Newf(errors.ErrorTypeConfig, "branch %s is %s but buffer holds %s", desc.Name, desc.Type.Storage(), buf.Type())
	}
	if buf != nil && desc.IsFixed() && buf.Len() < desc.Len {
		return nil, errors.Newf(errors.ErrorTypeConfig, "branch %s needs %d elements but buffer holds %d", desc.Name, desc.Len, buf.Len())
	}
	return t.addBranch(desc, declared, buf, title), nil
}

func (t *Tree) addBranch(desc Descriptor, declared ElementType, buf Buffer, title string) *Branch {
	b := &Branch{
		tree:     t,
		index:    len(t.branches),
		desc:     desc,
		declared: declared,
		title:    title,
		active:   true,
		buf:      buf,
		builder:  array.NewBuilder(t.mem, desc.ArrowType()),
	}
	t.branches = append(t.branches, b)
	t.byName[desc.Name] = b
	return b
}

// SetAddress re-binds a branch to a new buffer. This is how a branch follows
// its buffer when the buffer is reallocated.
func (t *Tree) SetAddress(name string, buf Buffer) error {
	b, ok := t.byName[name]
	if !ok {
		return errors.Newf(errors.ErrorTypeUnknownColumn, "tree %s has no branch %s", t.name, name)
	}
	if buf == nil || buf.Type() != b.desc.Type.Storage() {
		return errors.Newf(errors.ErrorTypeConfig, "branch %s cannot bind buffer of another type", name)
	}
	b.buf = buf
	b.source = nil
	return nil
}

// SetBranchStatus enables or disables a branch for cloning.
func (t *Tree) SetBranchStatus(name string, active bool) error {
	b, ok := t.byName[name]
	if !ok {
		return errors.Newf(errors.ErrorTypeUnknownColumn, "tree %s has no branch %s", t.name, name)
	}
	b.active = active
	return nil
}

// Fill appends one row built from every branch's current value. Either the
// whole row is appended or, on error, nothing is.
func (t *Tree) Fill() error {
	counts := make([]int, len(t.branches))
	for i, b := range t.branches {
		n, err := b.rowLength()
		if err != nil {
			return err
		}
		counts[i] = n
	}
	for i, b := range t.branches {
		if err := b.appendRow(counts[i]); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, fmt.Sprintf("fill branch %s", b.desc.Name))
		}
	}
	t.pending++
	t.entries++
	metrics.RowsFilled.WithLabelValues(t.name).Inc()
	return nil
}

// rowLength returns how many elements the branch contributes to the row
// being filled, after checking the value source can provide them.
func (b *Branch) rowLength() (int, error) {
	if b.buf == nil && b.source == nil {
		return 0, errors.Newf(errors.ErrorTypeState, "branch %s has no buffer bound", b.desc.Name)
	}
	if b.source != nil {
		if _, _, err := b.source.tree.current(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	switch {
	case b.desc.IsScalar():
		return 1, nil
	case b.desc.IsFixed():
		return b.desc.Len, nil
	}
	count := b.tree.byName[b.desc.LenVar]
	v, err := count.currentValue()
	if err != nil {
		return 0, err
	}
	n, ok := AsInt64(v)
	if !ok || n < 0 {
		return 0, errors.Newf(errors.ErrorTypeData, "count branch %s holds %v", count.desc.Name, v)
	}
	if int(n) > b.buf.Len() {
		return 0, errors.Newf(errors.ErrorTypeData, "branch %s needs %d elements but its buffer holds %d", b.desc.Name, n, b.buf.Len()).
			WithDetail("count_branch", count.desc.Name)
	}
	return int(n), nil
}

func (b *Branch) appendRow(n int) error {
	if b.source != nil {
		rec, row, err := b.source.tree.current()
		if err != nil {
			return err
		}
		return appendFromArray(b.builder, rec.Column(b.source.index), row)
	}
	switch bld := b.builder.(type) {
	case *array.ListBuilder:
		bld.Append(true)
		return b.buf.appendTo(bld.ValueBuilder(), n)
	case *array.FixedSizeListBuilder:
		bld.Append(true)
		return b.buf.appendTo(bld.ValueBuilder(), n)
	default:
		return b.buf.appendTo(bld, n)
	}
}

// currentValue returns the value the branch would contribute to a row right
// now. It is used to read count branches.
func (b *Branch) currentValue() (any, error) {
	if b.source != nil {
		rec, row, err := b.source.tree.current()
		if err != nil {
			return nil, err
		}
		return arrayValue(rec.Column(b.source.index), row)
	}
	if b.buf == nil || b.buf.Len() == 0 {
		return nil, errors.Newf(errors.ErrorTypeState, "branch %s has no buffer bound", b.desc.Name)
	}
	return b.buf.Get(0), nil
}

// cut moves the rows held in the builders into a record batch.
func (t *Tree) cut() {
	if t.pending == 0 {
		return
	}
	cols := make([]arrow.Array, len(t.branches))
	for i, b := range t.branches {
		cols[i] = b.builder.NewArray()
	}
	rec := array.NewRecord(t.schema(), cols, int64(t.pending))
	for _, c := range cols {
		c.Release()
	}
	t.batches = append(t.batches, rec)
	t.pending = 0
}

func (t *Tree) schema() *arrow.Schema {
	fields := make([]arrow.Field, len(t.branches))
	for i, b := range t.branches {
		fields[i] = b.field()
	}
	md := arrow.NewMetadata([]string{metaTreeName, metaTreeTitle}, []string{t.name, t.title})
	return arrow.NewSchema(fields, &md)
}

// Write persists the tree into its container. Writing an unchanged tree again
// replaces the stored copy with identical content.
func (t *Tree) Write() error {
	if t.file == nil {
		return errors.Newf(errors.ErrorTypeState, "tree %s is not attached to a container", t.name)
	}
	return t.file.WriteTree(t)
}

// Release frees the Arrow memory held by the tree.
func (t *Tree) Release() {
	for _, rec := range t.batches {
		rec.Release()
	}
	t.batches = nil
	for _, b := range t.branches {
		b.builder.Release()
	}
}
