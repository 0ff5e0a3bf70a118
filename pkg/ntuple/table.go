package ntuple

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/logger"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
)

// State is the lifecycle stage of a Table.
type State int

const (
	// StateDeclaring accepts new columns.
	StateDeclaring State = iota
	// StateFilling has committed at least one row; the schema is frozen.
	StateFilling
	// StateClosed has been written; no more rows are accepted.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDeclaring:
		return "declaring"
	case StateFilling:
		return "filling"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Table is a set of named Columns written into one row tree.
type Table struct {
	file    *rowstore.File
	tree    *rowstore.Tree
	columns map[string]*Column
	state   State
	log     *zap.Logger
}

// NewTable wraps tree for writing into file.
func NewTable(file *rowstore.File, tree *rowstore.Tree) *Table {
	tree.SetFile(file)
	return &Table{
		file:    file,
		tree:    tree,
		columns: make(map[string]*Column),
		log:     logger.With(logger.Tree(tree.Name())),
	}
}

// Tree returns the underlying row tree.
func (t *Table) Tree() *rowstore.Tree { return t.tree }

// State returns the table's lifecycle stage.
func (t *Table) State() State { return t.state }

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column { return t.columns[name] }

// Branch declares a column of element type typ (a leaf code such as "F" or
// "H"). A length variable that names neither an existing column nor a store
// branch is created first as a uint32 scalar.
func (t *Table) Branch(name, typ string, opts ...ColumnOption) (*Column, error) {
	if t.state != StateDeclaring || t.tree.Entries() > 0 {
		return nil, errors.Newf(errors.ErrorTypeState, "cannot declare column %s: table %s is %s", name, t.tree.Name(), t.stateName())
	}

	// Validate the whole declaration before an implicit length column is
	// added, so a rejected declaration leaves the tree unchanged.
	desc, _, o, err := columnSpec(name, typ, opts...)
	if err != nil {
		return nil, err
	}
	if t.tree.GetBranch(desc.Name) != nil {
		return nil, errors.Newf(errors.ErrorTypeConfig, "column %s already exists in table %s", name, t.tree.Name())
	}
	if o.lenVar != "" {
		if _, ok := t.columns[o.lenVar]; !ok && t.tree.GetBranch(o.lenVar) == nil {
			lc, err := newColumn(t.tree, t.log, o.lenVar, rowstore.Uint32.Code())
			if err != nil {
				return nil, err
			}
			t.columns[o.lenVar] = lc
			t.log.Debug("length column created", zap.String("column", o.lenVar), zap.String("for", name))
		}
	}

	c, err := newColumn(t.tree, t.log, name, typ, opts...)
	if err != nil {
		return nil, err
	}
	t.columns[name] = c
	return c, nil
}

// FillBranch fills the named column. When the column's length variable is a
// column of this table, it is set to the element count of value. Nothing is
// stored unless every element of value converts.
func (t *Table) FillBranch(name string, value any) error {
	if t.state == StateClosed {
		return errors.Newf(errors.ErrorTypeState, "table %s is closed", t.tree.Name())
	}
	c, ok := t.columns[name]
	if !ok {
		return errors.Newf(errors.ErrorTypeUnknownColumn, "column %s was never declared in table %s", name, t.tree.Name())
	}
	staged, err := c.stage(value)
	if err != nil {
		return err
	}
	var (
		lc     *Column
		length rowstore.Buffer
	)
	if lv := c.LengthVar(); lv != "" {
		if lc = t.columns[lv]; lc != nil {
			if length, err = lc.stage(staged.Len()); err != nil {
				return err
			}
		}
	}
	if err := c.commit(staged); err != nil {
		return err
	}
	if lc != nil {
		return lc.commit(length)
	}
	return nil
}

// Fill commits the current value of every column as one row.
func (t *Table) Fill() error {
	if t.state == StateClosed {
		return errors.Newf(errors.ErrorTypeState, "table %s is closed", t.tree.Name())
	}
	if err := t.tree.Fill(); err != nil {
		return err
	}
	t.state = StateFilling
	return nil
}

// Write persists the tree into its container and closes the table. Writing
// a closed table does nothing.
func (t *Table) Write() error {
	if t.state == StateClosed {
		return nil
	}
	if err := t.tree.Write(); err != nil {
		return err
	}
	t.state = StateClosed
	t.log.Debug("table written", zap.Int64("entries", t.tree.Entries()))
	return nil
}

func (t *Table) stateName() string {
	if t.state == StateDeclaring {
		return "holding rows"
	}
	return t.state.String()
}
