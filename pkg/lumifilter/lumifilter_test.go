package lumifilter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

const golden = `{
  "273158": [[1, 1279]],
  "273302": [[470, 620], [1, 459]],
  "273400": []
}`

func TestFilter(t *testing.T) {
	f, err := Parse([]byte(golden))
	require.NoError(t, err)
	assert.Equal(t, []uint32{273158, 273302, 273400}, f.Runs())

	assert.True(t, f.FilterRunOnly(273158))
	assert.True(t, f.FilterRunOnly(273400))
	assert.False(t, f.FilterRunOnly(1))

	tests := []struct {
		run, lumi uint32
		want      bool
	}{
		{273158, 1, true},
		{273158, 1279, true},
		{273158, 1280, false},
		{273302, 459, true},
		{273302, 465, false},
		{273302, 470, true},
		{273302, 621, false},
		{273400, 1, false},
		{1, 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.FilterRunLumi(tt.run, tt.lumi), "run %d lumi %d", tt.run, tt.lumi)
	}
}

func TestParseErrors(t *testing.T) {
	for _, doc := range []string{
		`not json`,
		`{"abc": [[1, 2]]}`,
		`{"1": [[1, 2, 3]]}`,
		`{"1": [[5, 2]]}`,
	} {
		_, err := Parse([]byte(doc))
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), doc)
	}
}

func TestReadAndLoad(t *testing.T) {
	f, err := Read(strings.NewReader(golden))
	require.NoError(t, err)
	assert.True(t, f.FilterRunLumi(273302, 500))

	file := filepath.Join(t.TempDir(), "golden.json")
	require.NoError(t, os.WriteFile(file, []byte(golden), 0o644))
	f, err = Load(file)
	require.NoError(t, err)
	assert.Len(t, f.Runs(), 3)

	_, err = Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
