package rowstore

import (
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"go.uber.org/zap"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

// GetEntry positions the read cursor on row i.
func (t *Tree) GetEntry(i int64) error {
	if i < 0 || i >= t.entries {
		return errors.Newf(errors.ErrorTypeData, "entry %d out of range [0, %d) in tree %s", i, t.entries, t.name)
	}
	t.cut()
	t.cursor = i
	return t.locate()
}

// ReadAllBranches materializes the current entry for every branch, so that
// trees cloned from this one can copy it.
func (t *Tree) ReadAllBranches() error {
	_, _, err := t.current()
	return err
}

// Cursor returns the current entry, or -1 before the first GetEntry.
func (t *Tree) Cursor() int64 { return t.cursor }

func (t *Tree) locate() error {
	row := t.cursor
	for i, rec := range t.batches {
		n := rec.NumRows()
		if row < n {
			t.batchIdx, t.batchRow = i, int(row)
			return nil
		}
		row -= n
	}
	return errors.Newf(errors.ErrorTypeInternal, "entry %d not found in %d batches", t.cursor, len(t.batches))
}

func (t *Tree) current() (arrow.Record, int, error) {
	if t.cursor < 0 {
		return nil, 0, errors.Newf(errors.ErrorTypeState, "tree %s has no current entry", t.name)
	}
	if t.batchIdx >= len(t.batches) {
		return nil, 0, errors.Newf(errors.ErrorTypeState, "tree %s cursor is stale", t.name)
	}
	return t.batches[t.batchIdx], t.batchRow, nil
}

// Value returns the named branch's value at the current entry: a scalar for
// scalar branches, a typed slice for array branches.
func (t *Tree) Value(name string) (any, error) {
	b, ok := t.byName[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnknownColumn, "tree %s has no branch %s", t.name, name)
	}
	rec, row, err := t.current()
	if err != nil {
		return nil, err
	}
	return arrayValue(rec.Column(b.index), row)
}

// Uint returns an unsigned scalar branch value at the current entry.
func (t *Tree) Uint(name string) (uint64, error) {
	v, err := t.Value(name)
	if err != nil {
		return 0, err
	}
	u, ok := AsUint64(v)
	if !ok {
		return 0, errors.Newf(errors.ErrorTypeData, "branch %s holds %T, not an unsigned scalar", name, v)
	}
	return u, nil
}

// Uint32 is Uint for branches read as run or luminosity block numbers. A
// value beyond uint32 is a Data error.
func (t *Tree) Uint32(name string) (uint32, error) {
	u, err := t.Uint(name)
	if err != nil {
		return 0, err
	}
	if u > math.MaxUint32 {
		return 0, errors.Newf(errors.ErrorTypeData, "branch %s of tree %s holds %d, beyond uint32", name, t.name, u)
	}
	return uint32(u), nil
}

// CloneTree creates a tree with the same name, title and active branches.
// The clone's branches read from this tree's current entry when the clone is
// filled. nentries selects how many rows are copied immediately: 0 for none,
// a negative value for all.
func (t *Tree) CloneTree(nentries int64) (*Tree, error) {
	clone := NewTree(t.name, t.title)
	clone.mem = t.mem

	needed := make(map[string]bool)
	for _, b := range t.branches {
		if b.active && b.desc.IsVariable() {
			needed[b.desc.LenVar] = true
		}
	}
	for _, b := range t.branches {
		if !b.active && !needed[b.desc.Name] {
			continue
		}
		if !b.active {
			t.log.Debug("keeping inactive count branch", zap.String("branch", b.desc.Name))
		}
		nb := clone.addBranch(b.desc, b.declared, nil, b.title)
		nb.source = b
	}

	if nentries < 0 || nentries > t.entries {
		nentries = t.entries
	}
	for i := int64(0); i < nentries; i++ {
		if err := t.GetEntry(i); err != nil {
			return nil, err
		}
		if err := clone.Fill(); err != nil {
			return nil, err
		}
	}
	return clone, nil
}

// CopyTree clones the tree and copies every row for which keep returns true.
// A nil keep copies all rows.
func (t *Tree) CopyTree(keep func(*Tree) (bool, error)) (*Tree, error) {
	clone, err := t.CloneTree(0)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < t.entries; i++ {
		if err := t.GetEntry(i); err != nil {
			return nil, err
		}
		if keep != nil {
			ok, err := keep(t)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		if err := clone.Fill(); err != nil {
			return nil, err
		}
	}
	return clone, nil
}

// Records returns the tree's rows as Arrow record batches sharing the tree's
// schema. The batches stay owned by the tree.
func (t *Tree) Records() []arrow.Record {
	t.cut()
	out := make([]arrow.Record, len(t.batches))
	copy(out, t.batches)
	return out
}
