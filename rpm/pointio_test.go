package rpm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestTextPointsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.txt")

	x := mat.NewDense(3, 2, []float64{
		0.5, -1.25,
		100, 200,
		-0.001, 3,
	})
	require.NoError(t, SavePoints(path, x))

	got, err := LoadPoints(path)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(x, got, 1e-12))
}

func TestGeoJSONPointsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "points.geojson")

	x := mat.NewDense(4, 2, []float64{
		0, 0,
		1.5, 2.5,
		-3, 4,
		10, -20,
	})
	require.NoError(t, SavePoints(path, x))

	got, err := LoadPoints(path)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(x, got, 1e-12))
}

func TestParseTextPointsSkipsCommentsAndBlanks(t *testing.T) {
	data := []byte("# corner points\n0 0\n\n1 0\n# another comment\n0 1\n1 1")
	x, err := parseTextPoints(data)
	require.NoError(t, err)
	rows, _ := x.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 1.0, x.At(3, 0))
}

func TestParseTextPointsErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "single coordinate", data: "1.5"},
		{name: "not a number", data: "a b"},
		{name: "empty", data: ""},
		{name: "only comments", data: "# nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTextPoints([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLoadPointsMissingFile(t *testing.T) {
	_, err := LoadPoints(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestDecodePointsPayload(t *testing.T) {
	geo, err := EncodePointsGeoJSON(unitCorners())
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload []byte
		rows    int
	}{
		{name: "geojson", payload: geo, rows: 4},
		{name: "json pairs", payload: []byte(`[[0,0],[1,0],[0,1]]`), rows: 3},
		{name: "text", payload: []byte("0 0\n1 1"), rows: 2},
		{name: "text with leading space", payload: []byte("  0.5 0.5\n1 2"), rows: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := DecodePointsPayload(tt.payload)
			require.NoError(t, err)
			rows, cols := x.Dims()
			assert.Equal(t, tt.rows, rows)
			assert.Equal(t, 2, cols)
		})
	}
}

func TestDecodePointsPayloadErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "empty", payload: nil},
		{name: "whitespace", payload: []byte("   ")},
		{name: "empty json array", payload: []byte("[]")},
		{name: "malformed json", payload: []byte("[[1,2,")},
		{name: "malformed geojson", payload: []byte("{not json")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePointsPayload(tt.payload)
			assert.Error(t, err)
		})
	}
}

func TestSavePointsRejectsBadSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.txt")
	err := SavePoints(path, mat.NewDense(2, 3, nil))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
