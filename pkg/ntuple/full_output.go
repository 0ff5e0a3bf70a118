package ntuple

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/metrics"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
	"github.com/ajitpratap0/nebula-ntuple/pkg/selection"
)

// Names of the auxiliary entries FullOutput knows about.
const (
	MetaDataName         = "MetaData"
	ParameterSetsName    = "ParameterSets"
	RunsName             = "Runs"
	LuminosityBlocksName = "LuminosityBlocks"

	RunBranch  = "run"
	LumiBranch = "luminosityBlock"
)

// RowFilter decides which rows of the Runs and LuminosityBlocks trees are
// copied.
type RowFilter interface {
	FilterRunOnly(run uint32) bool
	FilterRunLumi(run, lumi uint32) bool
}

type fullOptions struct {
	selection  *selection.Selection
	fullClone  bool
	provenance bool
	filter     RowFilter
}

// FullOption configures NewFullOutput.
type FullOption func(*fullOptions)

// WithBranchSelection activates only the input branches the selection keeps.
func WithBranchSelection(s *selection.Selection) FullOption {
	return func(o *fullOptions) { o.selection = s }
}

// WithFullClone copies every input row into the output tree up front instead
// of starting from an empty clone.
func WithFullClone() FullOption {
	return func(o *fullOptions) { o.fullClone = true }
}

// WithProvenance copies the MetaData and ParameterSets entries.
func WithProvenance() FullOption {
	return func(o *fullOptions) { o.provenance = true }
}

// WithRowFilter filters the Runs and LuminosityBlocks trees row by row.
func WithRowFilter(f RowFilter) FullOption {
	return func(o *fullOptions) { o.filter = f }
}

type namedObject struct {
	name string
	obj  *rowstore.Object
}

// FullOutput is a Table cloned from an input tree, together with the
// auxiliary trees and objects of the input container.
type FullOutput struct {
	*Table

	input        *rowstore.Tree
	otherTrees   []*rowstore.Tree
	otherObjects []namedObject
	written      bool
}

// NewFullOutput clones tree into output and collects the other entries of
// input to be written alongside it.
func NewFullOutput(input *rowstore.File, tree *rowstore.Tree, output *rowstore.File, opts ...FullOption) (*FullOutput, error) {
	if input == nil || tree == nil || output == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "input container, input tree and output container are required")
	}
	var o fullOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.selection != nil {
		if _, err := o.selection.Apply(tree); err != nil {
			return nil, err
		}
	}
	var (
		outTree *rowstore.Tree
		err     error
	)
	if o.fullClone {
		outTree, err = tree.CopyTree(nil)
	} else {
		outTree, err = tree.CloneTree(0)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "clone input tree").WithDetail("tree", tree.Name())
	}

	out := &FullOutput{
		Table: NewTable(output, outTree),
		input: tree,
	}
	for _, k := range input.Keys() {
		if err := out.collect(input, k, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (o *FullOutput) collect(input *rowstore.File, k rowstore.Key, opts fullOptions) error {
	switch {
	case k.Name == o.input.Name():
		return nil
	case k.Name == MetaDataName || k.Name == ParameterSetsName:
		if !opts.provenance {
			return nil
		}
		if k.IsTree() {
			return o.copyTree(input, k.Name, nil)
		}
		return o.copyObject(input, k.Name)
	case k.IsTree() && k.Name == RunsName:
		return o.copyTree(input, k.Name, runPredicate(opts.filter))
	case k.IsTree() && k.Name == LuminosityBlocksName:
		return o.copyTree(input, k.Name, lumiPredicate(opts.filter))
	case k.IsTree():
		o.log.Warn("not copying unknown tree", zap.String("key", k.Name))
		return nil
	default:
		return o.copyObject(input, k.Name)
	}
}

func (o *FullOutput) copyTree(input *rowstore.File, name string, keep func(*rowstore.Tree) (bool, error)) error {
	src, err := input.GetTree(name)
	if err != nil {
		return err
	}
	counted := func(t *rowstore.Tree) (bool, error) {
		ok := true
		if keep != nil {
			var err error
			if ok, err = keep(t); err != nil {
				return false, err
			}
		}
		decision := metrics.DecisionKept
		if !ok {
			decision = metrics.DecisionDropped
		}
		metrics.AuxRows.WithLabelValues(name, decision).Inc()
		return ok, nil
	}
	dst, err := src.CopyTree(counted)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "copy auxiliary tree").WithDetail("tree", name)
	}
	o.log.Debug("auxiliary tree copied",
		zap.String("key", name),
		zap.Int64("rows", src.Entries()),
		zap.Int64("kept", dst.Entries()))
	o.otherTrees = append(o.otherTrees, dst)
	return nil
}

func (o *FullOutput) copyObject(input *rowstore.File, name string) error {
	obj, err := input.GetObject(name)
	if err != nil {
		return err
	}
	o.otherObjects = append(o.otherObjects, namedObject{name: name, obj: obj})
	return nil
}

func runPredicate(f RowFilter) func(*rowstore.Tree) (bool, error) {
	if f == nil {
		return nil
	}
	return func(t *rowstore.Tree) (bool, error) {
		run, err := t.Uint32(RunBranch)
		if err != nil {
			return false, err
		}
		return f.FilterRunOnly(run), nil
	}
}

func lumiPredicate(f RowFilter) func(*rowstore.Tree) (bool, error) {
	if f == nil {
		return nil
	}
	return func(t *rowstore.Tree) (bool, error) {
		run, err := t.Uint32(RunBranch)
		if err != nil {
			return false, err
		}
		lumi, err := t.Uint32(LumiBranch)
		if err != nil {
			return false, err
		}
		return f.FilterRunLumi(run, lumi), nil
	}
}

// Input returns the tree the output was cloned from.
func (o *FullOutput) Input() *rowstore.Tree { return o.input }

// Fill materializes the input tree's current entry and appends it, together
// with any columns declared on the output, as one row.
func (o *FullOutput) Fill() error {
	if err := o.input.ReadAllBranches(); err != nil {
		return err
	}
	return o.Table.Fill()
}

// Write persists the output tree, then the copied auxiliary trees, then the
// copied objects. Writing twice does nothing.
func (o *FullOutput) Write() error {
	if o.written {
		return nil
	}
	if err := o.Table.Write(); err != nil {
		return err
	}
	for _, t := range o.otherTrees {
		if err := o.file.WriteTree(t); err != nil {
			return err
		}
	}
	for _, no := range o.otherObjects {
		if err := o.file.WriteObject(no.name, no.obj); err != nil {
			return err
		}
	}
	o.written = true
	return nil
}
