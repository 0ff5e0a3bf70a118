package rowstore

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-ntuple/pkg/errors"
)

func TestDescriptorString(t *testing.T) {
	tests := []struct {
		desc Descriptor
		want string
	}{
		{Descriptor{Name: "a", Type: Int32, Len: 1}, "a/I"},
		{Descriptor{Name: "b", Type: Float64, Len: 3}, "b[3]/D"},
		{Descriptor{Name: "pt", Type: Float32, Len: 1, LenVar: "nJet"}, "pt[nJet]/F"},
		{Descriptor{Name: "eta", Type: Half, Len: 1, LenVar: "nJet"}, "eta[nJet]/F"},
		{Descriptor{Name: "flag", Type: Bool, Len: 1}, "flag/O"},
		{Descriptor{Name: "n", Type: Uint32, Len: 1}, "n/i"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.desc.String())
	}
}

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor("b[3]/D")
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Name: "b", Type: Float64, Len: 3}, d)
	assert.True(t, d.IsFixed())

	d, err = ParseDescriptor("pt[nJet]/F")
	require.NoError(t, err)
	assert.Equal(t, Descriptor{Name: "pt", Type: Float32, Len: 1, LenVar: "nJet"}, d)
	assert.True(t, d.IsVariable())

	d, err = ParseDescriptor("run/i")
	require.NoError(t, err)
	assert.True(t, d.IsScalar())
	assert.Equal(t, "run/i", d.String())
}

func TestParseDescriptorErrors(t *testing.T) {
	for _, s := range []string{"a", "a/X", "a/II", "/I", "a[3/I", "a[a]/I", "a[0]/I"} {
		_, err := ParseDescriptor(s)
		assert.Error(t, err, s)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), s)
	}
}

func TestDescriptorArrowType(t *testing.T) {
	scalar := Descriptor{Name: "a", Type: Int32, Len: 1}
	assert.Equal(t, arrow.INT32, scalar.ArrowType().ID())

	fixed := Descriptor{Name: "b", Type: Float64, Len: 3}
	fsl, ok := fixed.ArrowType().(*arrow.FixedSizeListType)
	require.True(t, ok)
	assert.Equal(t, int32(3), fsl.Len())
	assert.Equal(t, arrow.FLOAT64, fsl.Elem().ID())

	variable := Descriptor{Name: "c", Type: Half, Len: 1, LenVar: "n"}
	list, ok := variable.ArrowType().(*arrow.ListType)
	require.True(t, ok)
	assert.Equal(t, arrow.FLOAT32, list.Elem().ID())
}

func TestParseElementType(t *testing.T) {
	for _, code := range []string{"B", "b", "S", "s", "I", "i", "L", "l", "F", "D", "O", "H"} {
		et, err := ParseElementType(code)
		require.NoError(t, err, code)
		assert.Equal(t, code, et.Code())
	}
	assert.Equal(t, Float32, Half.Storage())
	assert.Equal(t, Int8, Int8.Storage())

	_, err := ParseElementType("Z")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
