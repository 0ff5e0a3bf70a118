package rowstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

// newEventTree builds a tree with a scalar run, a fixed array and a
// variable array counted by n.
func newEventTree(t *testing.T) (*Tree, map[string]Buffer) {
	t.Helper()
	tree := NewTree("Events", "test events")
	bufs := map[string]Buffer{}
	for _, tc := range []struct {
		desc string
		size int
	}{
		{"run/i", 1},
		{"p[3]/D", 3},
		{"n/i", 1},
		{"pt[n]/F", 4},
	} {
		d, err := ParseDescriptor(tc.desc)
		require.NoError(t, err)
		buf, err := NewBuffer(d.Type, tc.size)
		require.NoError(t, err)
		_, err = tree.Branch(d, d.Type, buf, "")
		require.NoError(t, err)
		bufs[d.Name] = buf
	}
	return tree, bufs
}

func fillEvent(t *testing.T, tree *Tree, bufs map[string]Buffer, run uint32, pts ...float32) {
	t.Helper()
	require.NoError(t, bufs["run"].Set(0, run))
	for i := 0; i < 3; i++ {
		require.NoError(t, bufs["p"].Set(i, float64(run)+float64(i)))
	}
	require.NoError(t, bufs["n"].Set(0, len(pts)))
	for i, pt := range pts {
		require.NoError(t, bufs["pt"].Set(i, pt))
	}
	require.NoError(t, tree.Fill())
}

func TestTreeFillAndRead(t *testing.T) {
	tree, bufs := newEventTree(t)
	defer tree.Release()

	fillEvent(t, tree, bufs, 1, 10, 20)
	fillEvent(t, tree, bufs, 2)
	fillEvent(t, tree, bufs, 3, 5, 6, 7, 8)
	assert.Equal(t, int64(3), tree.Entries())

	require.NoError(t, tree.GetEntry(0))
	v, err := tree.Value("pt")
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 20}, v)
	v, err = tree.Value("p")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, v)

	require.NoError(t, tree.GetEntry(1))
	v, err = tree.Value("pt")
	require.NoError(t, err)
	assert.Equal(t, []float32{}, v)

	require.NoError(t, tree.GetEntry(2))
	run, err := tree.Uint("run")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), run)
	v, err = tree.Value("pt")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 6, 7, 8}, v)

	assert.True(t, errors.IsType(tree.GetEntry(3), errors.ErrorTypeData))
	_, err = tree.Value("missing")
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnknownColumn))
}

func TestUint32RejectsWideValues(t *testing.T) {
	tree := NewTree("Events", "")
	defer tree.Release()
	d, err := ParseDescriptor("run/l")
	require.NoError(t, err)
	buf, err := NewBuffer(d.Type, 1)
	require.NoError(t, err)
	_, err = tree.Branch(d, d.Type, buf, "")
	require.NoError(t, err)
	for _, run := range []uint64{4294967295, 1 << 32} {
		require.NoError(t, buf.Set(0, run))
		require.NoError(t, tree.Fill())
	}

	require.NoError(t, tree.GetEntry(0))
	run, err := tree.Uint32("run")
	require.NoError(t, err)
	assert.Equal(t, uint32(4294967295), run)

	require.NoError(t, tree.GetEntry(1))
	_, err = tree.Uint32("run")
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestTreeFillRejectsOversizedCount(t *testing.T) {
	tree, bufs := newEventTree(t)
	defer tree.Release()

	require.NoError(t, bufs["n"].Set(0, 5))
	err := tree.Fill()
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
	assert.Equal(t, int64(0), tree.Entries())

	bigger, err := NewBuffer(Float32, 8)
	require.NoError(t, err)
	require.NoError(t, tree.SetAddress("pt", bigger))
	require.NoError(t, tree.Fill())
	assert.Equal(t, int64(1), tree.Entries())
}

func TestTreeBranchErrors(t *testing.T) {
	tree := NewTree("T", "")
	buf, _ := NewBuffer(Int32, 1)

	_, err := tree.Branch(Descriptor{Name: "x", Type: Float32, Len: 1, LenVar: "n"}, Float32, buf, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "missing count branch")

	_, err = tree.Branch(Descriptor{Name: "x", Type: Float32, Len: 1}, Float32, buf, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "buffer type mismatch")

	_, err = tree.Branch(Descriptor{Name: "a", Type: Int32, Len: 1}, Int32, buf, "")
	require.NoError(t, err)
	_, err = tree.Branch(Descriptor{Name: "a", Type: Int32, Len: 1}, Int32, buf, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "duplicate")

	_, err = tree.Branch(Descriptor{Name: "v", Type: Int32, Len: 3}, Int32, buf, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "fixed buffer too small")

	require.NoError(t, tree.Fill())
	other, _ := NewBuffer(Int32, 1)
	_, err = tree.Branch(Descriptor{Name: "b", Type: Int32, Len: 1}, Int32, other, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeState))

	assert.True(t, errors.IsType(tree.Write(), errors.ErrorTypeState), "no container")
}

func TestCloneTreeKeepsCountBranches(t *testing.T) {
	tree, bufs := newEventTree(t)
	defer tree.Release()
	fillEvent(t, tree, bufs, 1, 10)
	fillEvent(t, tree, bufs, 2, 20, 30)

	require.NoError(t, tree.SetBranchStatus("n", false))
	require.NoError(t, tree.SetBranchStatus("p", false))

	clone, err := tree.CloneTree(-1)
	require.NoError(t, err)
	defer clone.Release()

	var names []string
	for _, b := range clone.Branches() {
		names = append(names, b.Name())
	}
	assert.Equal(t, []string{"run", "n", "pt"}, names)
	assert.Equal(t, int64(2), clone.Entries())

	require.NoError(t, clone.GetEntry(1))
	v, err := clone.Value("pt")
	require.NoError(t, err)
	assert.Equal(t, []float32{20, 30}, v)
}

func TestCloneTreeThenFillFollowsSource(t *testing.T) {
	tree, bufs := newEventTree(t)
	defer tree.Release()
	fillEvent(t, tree, bufs, 1, 10)
	fillEvent(t, tree, bufs, 2, 20, 30)
	fillEvent(t, tree, bufs, 3)

	clone, err := tree.CloneTree(0)
	require.NoError(t, err)
	defer clone.Release()
	assert.Equal(t, int64(0), clone.Entries())

	assert.True(t, errors.IsType(clone.Fill(), errors.ErrorTypeState), "source has no current entry")

	for _, i := range []int64{2, 0} {
		require.NoError(t, tree.GetEntry(i))
		require.NoError(t, tree.ReadAllBranches())
		require.NoError(t, clone.Fill())
	}
	require.NoError(t, clone.GetEntry(1))
	run, err := clone.Uint("run")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), run)
}

func TestCopyTreeWithPredicate(t *testing.T) {
	tree, bufs := newEventTree(t)
	defer tree.Release()
	for run := uint32(1); run <= 4; run++ {
		fillEvent(t, tree, bufs, run)
	}

	copied, err := tree.CopyTree(func(src *Tree) (bool, error) {
		run, err := src.Uint("run")
		return run%2 == 0, err
	})
	require.NoError(t, err)
	defer copied.Release()

	assert.Equal(t, int64(2), copied.Entries())
	require.NoError(t, copied.GetEntry(0))
	run, err := copied.Uint("run")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), run)
}

func TestTreeIPCRoundTrip(t *testing.T) {
	tree, bufs := newEventTree(t)
	defer tree.Release()
	fillEvent(t, tree, bufs, 1, 1.5)
	fillEvent(t, tree, bufs, 2, 2.5, 3.5)

	for _, c := range []TreeCompression{TreeCompressionNone, TreeCompressionLZ4, TreeCompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			data, err := tree.MarshalIPC(c)
			require.NoError(t, err)

			back, err := UnmarshalTree(data)
			require.NoError(t, err)
			defer back.Release()

			assert.Equal(t, "Events", back.Name())
			assert.Equal(t, "test events", back.Title())
			assert.Equal(t, int64(2), back.Entries())
			require.Len(t, back.Branches(), 4)
			assert.Equal(t, "pt[n]/F", back.GetBranch("pt").Descriptor().String())
			assert.Equal(t, "p[3]/D", back.GetBranch("p").Descriptor().String())

			require.NoError(t, back.GetEntry(1))
			v, err := back.Value("pt")
			require.NoError(t, err)
			assert.Equal(t, []float32{2.5, 3.5}, v)
		})
	}
}

func TestUnmarshalTreeKeepsDeclaredHalf(t *testing.T) {
	tree := NewTree("F", "")
	defer tree.Release()
	buf, err := NewBuffer(Half, 1)
	require.NoError(t, err)
	_, err = tree.Branch(Descriptor{Name: "h", Type: Float32, Len: 1}, Half, buf, "half precision")
	require.NoError(t, err)
	require.NoError(t, tree.Fill())

	data, err := tree.MarshalIPC(TreeCompressionNone)
	require.NoError(t, err)
	back, err := UnmarshalTree(data)
	require.NoError(t, err)
	defer back.Release()

	b := back.GetBranch("h")
	require.NotNil(t, b)
	assert.Equal(t, Half, b.Declared())
	assert.Equal(t, "h/F", b.Descriptor().String())
	assert.Equal(t, "half precision", b.Title())
}

func TestParseTreeCompression(t *testing.T) {
	c, err := ParseTreeCompression("")
	require.NoError(t, err)
	assert.Equal(t, TreeCompressionNone, c)
	c, err = ParseTreeCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, TreeCompressionZstd, c)
	_, err = ParseTreeCompression("snappy")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
