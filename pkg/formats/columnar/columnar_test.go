package columnar

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
	"github.com/ajitpratap0/nebula-ntuple/pkg/rowstore"
)

// newTree builds a tree with a scalar and a variable-length branch.
func newTree(t *testing.T, rows int) *rowstore.Tree {
	t.Helper()
	tree := rowstore.NewTree("Events", "")
	t.Cleanup(tree.Release)

	run, err := rowstore.NewBuffer(rowstore.Uint32, 1)
	require.NoError(t, err)
	n, err := rowstore.NewBuffer(rowstore.Uint32, 1)
	require.NoError(t, err)
	pt, err := rowstore.NewBuffer(rowstore.Float32, 8)
	require.NoError(t, err)

	_, err = tree.Branch(rowstore.Descriptor{Name: "run", Type: rowstore.Uint32, Len: 1}, rowstore.Uint32, run, "")
	require.NoError(t, err)
	_, err = tree.Branch(rowstore.Descriptor{Name: "n", Type: rowstore.Uint32, Len: 1}, rowstore.Uint32, n, "")
	require.NoError(t, err)
	_, err = tree.Branch(rowstore.Descriptor{Name: "pt", Type: rowstore.Float32, Len: 1, LenVar: "n"}, rowstore.Float32, pt, "")
	require.NoError(t, err)

	for i := 0; i < rows; i++ {
		require.NoError(t, run.Set(0, i))
		count := i % 4
		require.NoError(t, n.Set(0, count))
		for j := 0; j < count; j++ {
			require.NoError(t, pt.Set(j, float32(i*10+j)))
		}
		require.NoError(t, tree.Fill())
	}
	return tree
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("Parquet")
	require.NoError(t, err)
	assert.Equal(t, Parquet, f)
	f, err = ParseFormat("arrow")
	require.NoError(t, err)
	assert.Equal(t, Arrow, f)

	_, err = ParseFormat("orc")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestExportParquet(t *testing.T) {
	for _, codec := range []string{"none", "snappy", "gzip", "zstd"} {
		t.Run(codec, func(t *testing.T) {
			tree := newTree(t, 10)
			cfg := DefaultWriterConfig()
			cfg.Compression = codec
			cfg.RowGroupSize = 4

			var buf bytes.Buffer
			stats, err := Export(context.Background(), &buf, tree, cfg)
			require.NoError(t, err)
			assert.Equal(t, int64(10), stats.Rows)
			assert.Equal(t, int64(buf.Len()), stats.Bytes)

			fr, err := file.NewParquetReader(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			defer fr.Close()
			assert.Equal(t, int64(10), fr.NumRows())
			assert.GreaterOrEqual(t, fr.NumRowGroups(), 3)

			reader, err := pqarrow.NewFileReader(fr, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
			require.NoError(t, err)
			table, err := reader.ReadTable(context.Background())
			require.NoError(t, err)
			defer table.Release()

			assert.Equal(t, int64(10), table.NumRows())
			names := make([]string, 0, table.NumCols())
			for _, f := range table.Schema().Fields() {
				names = append(names, f.Name)
			}
			assert.Equal(t, []string{"run", "n", "pt"}, names)
		})
	}
}

func TestExportArrow(t *testing.T) {
	tree := newTree(t, 6)
	cfg := &WriterConfig{Format: Arrow, Compression: "lz4"}

	var buf bytes.Buffer
	stats, err := Export(context.Background(), &buf, tree, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(6), stats.Rows)
	assert.Equal(t, 1, stats.Batches)

	r, err := ipc.NewFileReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer r.Close()

	field, ok := r.Schema().FieldsByName("pt")
	require.True(t, ok)
	idx := field[0].Metadata.FindKey("ntuple.leaflist")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "pt[n]/F", field[0].Metadata.Values()[idx])

	rec, err := r.Record(0)
	require.NoError(t, err)
	assert.Equal(t, int64(6), rec.NumRows())
	pts := rec.Column(2).(*array.List)
	start, end := pts.ValueOffsets(3)
	assert.Equal(t, int64(3), end-start)
}

func TestExportRejectsUnknownCodec(t *testing.T) {
	tree := newTree(t, 1)
	_, err := Export(context.Background(), &bytes.Buffer{}, tree, &WriterConfig{Format: Parquet, Compression: "brotli-9"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = Export(context.Background(), &bytes.Buffer{}, tree, &WriterConfig{Format: Arrow, Compression: "snappy"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = Export(context.Background(), &bytes.Buffer{}, tree, &WriterConfig{Format: "orc"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestGetFormatInfo(t *testing.T) {
	assert.Equal(t, ".parquet", GetFormatInfo(Parquet).FileExtension)
	assert.Equal(t, ".arrow", GetFormatInfo(Arrow).FileExtension)
	assert.Nil(t, GetFormatInfo("orc"))
}
