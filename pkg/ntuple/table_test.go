package ntuple

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-ntuple/pkg/blobstore"
	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/metrics"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
)

func newTestTable(t *testing.T, treeName string) (*Table, *rowstore.File, blobstore.Store) {
	t.Helper()
	store := blobstore.NewMemoryStore()
	file, err := rowstore.Create(context.Background(), store, "out")
	require.NoError(t, err)
	tree := rowstore.NewTree(treeName, "")
	t.Cleanup(tree.Release)
	return NewTable(file, tree), file, store
}

func reopen(t *testing.T, file *rowstore.File, store blobstore.Store, tree string) *rowstore.Tree {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, file.Close(ctx))
	in, err := rowstore.Open(ctx, store, file.Name())
	require.NoError(t, err)
	out, err := in.GetTree(tree)
	require.NoError(t, err)
	return out
}

func TestTableTwoRowScenario(t *testing.T) {
	table, file, store := newTestTable(t, "Events")

	_, err := table.Branch("a", "I")
	require.NoError(t, err)
	_, err = table.Branch("b", "F", WithLengthVar("nb"))
	require.NoError(t, err)

	require.NoError(t, table.FillBranch("a", 5))
	require.NoError(t, table.FillBranch("b", []float32{1.0, 2.0}))
	require.NoError(t, table.Fill())
	require.NoError(t, table.FillBranch("a", 7))
	require.NoError(t, table.FillBranch("b", []float32{3.0}))
	require.NoError(t, table.Fill())
	require.NoError(t, table.Write())

	tree := reopen(t, file, store, "Events")
	require.Equal(t, int64(2), tree.Entries())

	var descs []string
	for _, b := range tree.Branches() {
		descs = append(descs, b.Descriptor().String())
	}
	assert.Equal(t, []string{"a/I", "nb/i", "b[nb]/F"}, descs)

	want := []struct {
		a  int32
		nb uint32
		b  []float32
	}{
		{5, 2, []float32{1, 2}},
		{7, 1, []float32{3}},
	}
	for i, w := range want {
		require.NoError(t, tree.GetEntry(int64(i)))
		a, err := tree.Value("a")
		require.NoError(t, err)
		assert.Equal(t, w.a, a)
		nb, err := tree.Value("nb")
		require.NoError(t, err)
		assert.Equal(t, w.nb, nb)
		b, err := tree.Value("b")
		require.NoError(t, err)
		assert.Equal(t, w.b, b)
	}
}

func TestFixedLengthColumn(t *testing.T) {
	table, _, _ := newTestTable(t, "T")
	c, err := table.Branch("p", "D", WithLength(3), WithTitle("momentum"))
	require.NoError(t, err)
	assert.Equal(t, "p[3]/D", c.Descriptor().String())
	assert.Equal(t, "momentum", table.Tree().GetBranch("p").Title())

	for _, bad := range []any{[]float64{1, 2}, []float64{1, 2, 3, 4}, []float64{}} {
		err := table.FillBranch("p", bad)
		assert.True(t, errors.IsType(err, errors.ErrorTypeLengthMismatch), "%v", bad)
	}
	assert.True(t, errors.IsType(table.FillBranch("p", 1.0), errors.ErrorTypeData))

	require.NoError(t, table.FillBranch("p", [3]int{4, 5, 6}))
	for i, want := range []float64{4, 5, 6} {
		assert.Equal(t, want, c.Get(i))
	}
}

func TestVariableColumnGrowth(t *testing.T) {
	table, _, _ := newTestTable(t, "growth-test")
	c, err := table.Branch("x", "l", WithLengthVar("n"))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Capacity())
	before := testutil.ToFloat64(metrics.BufferRegrowths.WithLabelValues("growth-test"))

	steps := []struct {
		length   int
		capacity int
	}{
		{1, 1}, {2, 2}, {3, 4}, {5, 8}, {6, 8}, {20, 20},
	}
	for row, s := range steps {
		values := make([]uint64, s.length)
		for i := range values {
			values[i] = uint64(row*100 + i)
		}
		require.NoError(t, table.FillBranch("x", values))
		assert.Equal(t, s.capacity, c.Capacity(), "length %d", s.length)
		for i, v := range values {
			assert.Equal(t, v, c.Get(i))
		}
		assert.Equal(t, uint32(s.length), table.Column("n").Get(0))
		require.NoError(t, table.Fill())
	}
	assert.Equal(t, before+4, testutil.ToFloat64(metrics.BufferRegrowths.WithLabelValues("growth-test")))

	tree := table.Tree()
	for row, s := range steps {
		require.NoError(t, tree.GetEntry(int64(row)))
		v, err := tree.Value("x")
		require.NoError(t, err)
		got := v.([]uint64)
		require.Len(t, got, s.length)
		assert.Equal(t, uint64(row*100), got[0])
		assert.Equal(t, uint64(row*100+s.length-1), got[s.length-1])
	}
}

func TestHalfPrecisionColumn(t *testing.T) {
	table, _, _ := newTestTable(t, "T")
	c, err := table.Branch("h", "H")
	require.NoError(t, err)
	assert.Equal(t, rowstore.Half, c.Type())
	assert.Equal(t, "h/F", c.Descriptor().String())
	assert.Equal(t, rowstore.Half, table.Tree().GetBranch("h").Declared())

	require.NoError(t, table.FillBranch("h", 0.1))
	got := c.Get(0).(float32)
	assert.Equal(t, float32(0.0999755859375), got)
	rel := math.Abs(float64(got)-0.1) / 0.1
	assert.Greater(t, rel, 1e-5)
	assert.Less(t, rel, 1e-3)

	// 1.75 units in the last place rounds up, and subnormals survive.
	require.NoError(t, table.FillBranch("h", 1+1.75/1024))
	assert.Equal(t, float32(1.001953125), c.Get(0))
	require.NoError(t, table.FillBranch("h", 1e-5))
	assert.Equal(t, float32(1.0013580322265625e-05), c.Get(0))

	// Values exactly representable in binary16 are unchanged.
	arr, err := table.Branch("hv", "H", WithLengthVar("nh"))
	require.NoError(t, err)
	require.NoError(t, table.FillBranch("hv", []float64{0.5, 1, 2048}))
	assert.Equal(t, float32(0.5), arr.Get(0))
	assert.Equal(t, float32(1), arr.Get(1))
	assert.Equal(t, float32(2048), arr.Get(2))

	assert.True(t, errors.IsType(table.FillBranch("h", "x"), errors.ErrorTypeData))
}

// Ties go to the even mantissa; a value just above a tie must not be
// rounded to the tie first.
func TestNarrowHalf(t *testing.T) {
	for _, tc := range []struct {
		in   float64
		want float32
	}{
		{0, 0},
		{1, 1},
		{-2.5, -2.5},
		{1 + 1.75/1024, 1 + 2.0/1024},
		{1 + 0.5/1024, 1},
		{1 + 1.5/1024, 1 + 2.0/1024},
		{1 + 0x1p-11 + 0x1p-40, 1 + 0x1p-10},
		{1e-5, 1.0013580322265625e-05},
		{0x1p-26, 0},
		{-0x1p-24, -0x1p-24},
		{65519.99, 65504},
		{65520, float32(math.Inf(1))},
		{-1e6, float32(math.Inf(-1))},
	} {
		assert.Equal(t, tc.want, narrowHalf(tc.in), "%g", tc.in)
	}
	assert.True(t, math.IsNaN(float64(narrowHalf(math.NaN()))))
}

func TestFailedFillLeavesColumnsUnchanged(t *testing.T) {
	table, _, _ := newTestTable(t, "T")
	v, err := table.Branch("v", "F", WithLengthVar("n"))
	require.NoError(t, err)
	require.NoError(t, table.FillBranch("v", []float32{1}))

	err = table.FillBranch("v", []any{2.0, 3.0, "bad"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Equal(t, uint32(1), table.Column("n").Get(0))
	assert.Equal(t, 1, v.Capacity())
	assert.Equal(t, float32(1), v.Get(0))

	p, err := table.Branch("p", "I", WithLength(3))
	require.NoError(t, err)
	require.NoError(t, table.FillBranch("p", []int{1, 2, 3}))
	assert.Error(t, table.FillBranch("p", []any{7, 8, "nine"}))
	assert.Equal(t, int32(1), p.Get(0))
	assert.Equal(t, int32(2), p.Get(1))

	require.NoError(t, table.Fill())
	tree := table.Tree()
	require.NoError(t, tree.GetEntry(0))
	got, err := tree.Value("v")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, got)
}

func TestRejectedDeclarationAddsNoLengthColumn(t *testing.T) {
	table, _, _ := newTestTable(t, "T")

	_, err := table.Branch("w", "Q", WithLengthVar("m"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = table.Branch("w[0]", "F", WithLengthVar("m"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = table.Branch("w", "F")
	require.NoError(t, err)
	_, err = table.Branch("w", "F", WithLengthVar("m"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	assert.Nil(t, table.Column("m"))
	assert.Nil(t, table.Tree().GetBranch("m"))
	assert.Len(t, table.Tree().Branches(), 1)
}

func TestLengthColumnCreatedOnce(t *testing.T) {
	table, _, _ := newTestTable(t, "T")
	_, err := table.Branch("Jet_pt", "F", WithLengthVar("nJet"))
	require.NoError(t, err)
	_, err = table.Branch("Jet_eta", "F", WithLengthVar("nJet"))
	require.NoError(t, err)

	var names []string
	for _, b := range table.Tree().Branches() {
		names = append(names, b.Name())
	}
	assert.Equal(t, []string{"nJet", "Jet_pt", "Jet_eta"}, names)
	assert.Equal(t, "nJet/i", table.Column("nJet").Descriptor().String())

	require.NoError(t, table.FillBranch("Jet_pt", []float32{1, 2, 3}))
	require.NoError(t, table.FillBranch("Jet_eta", []float32{0.1, 0.2, 0.3}))
	require.NoError(t, table.Fill())
}

func TestExplicitLengthColumnIsReused(t *testing.T) {
	table, _, _ := newTestTable(t, "T")
	_, err := table.Branch("n", "b")
	require.NoError(t, err)
	_, err = table.Branch("v", "S", WithLengthVar("n"))
	require.NoError(t, err)
	assert.Equal(t, "n/b", table.Column("n").Descriptor().String())

	require.NoError(t, table.FillBranch("v", []int16{-1, 2}))
	assert.Equal(t, uint8(2), table.Column("n").Get(0))
}

func TestTableErrors(t *testing.T) {
	table, _, _ := newTestTable(t, "T")

	_, err := table.Branch("x", "Q")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = table.Branch("x", "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = table.Branch("x", "F", WithLength(0))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	err = table.FillBranch("never", 1)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownColumn))

	_, err = table.Branch("v", "F", WithLengthVar("n"))
	require.NoError(t, err)
	assert.True(t, errors.IsType(table.FillBranch("v", 3.0), errors.ErrorTypeData))
}

func TestTableStateMachine(t *testing.T) {
	table, file, store := newTestTable(t, "Events")
	assert.Equal(t, StateDeclaring, table.State())

	_, err := table.Branch("a", "i")
	require.NoError(t, err)
	require.NoError(t, table.FillBranch("a", 1))
	require.NoError(t, table.Fill())
	assert.Equal(t, StateFilling, table.State())

	_, err = table.Branch("late", "F")
	assert.True(t, errors.IsType(err, errors.ErrorTypeState))

	// No implicit reset: the second row repeats the first value.
	require.NoError(t, table.Fill())

	require.NoError(t, table.Write())
	assert.Equal(t, StateClosed, table.State())
	require.NoError(t, table.Write())

	assert.True(t, errors.IsType(table.Fill(), errors.ErrorTypeState))
	assert.True(t, errors.IsType(table.FillBranch("a", 2), errors.ErrorTypeState))

	tree := reopen(t, file, store, "Events")
	assert.Equal(t, int64(2), tree.Entries())
	require.NoError(t, tree.GetEntry(1))
	a, err := tree.Value("a")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), a)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "declaring", StateDeclaring.String())
	assert.Equal(t, "filling", StateFilling.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(9).String())
}
