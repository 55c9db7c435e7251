package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/choropleth-cli/internal/observation"
)

func TestOpenOutput_Stdout(t *testing.T) {
	var buf bytes.Buffer
	for _, path := range []string{"", "-"} {
		w, closeFn, err := openOutput(&buf, path)
		require.NoError(t, err)
		assert.Same(t, &buf, w)
		assert.NoError(t, closeFn())
	}
}

func TestOpenOutput_FileCloseErrorReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.geojson")
	w, closeFn, err := openOutput(nil, path)
	require.NoError(t, err)

	_, err = w.Write([]byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	// A second close fails and must surface.
	err = closeFn()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close "+path)
}

func TestOpenOutput_CreateError(t *testing.T) {
	_, _, err := openOutput(nil, filepath.Join(t.TempDir(), "missing", "map.geojson"))
	require.Error(t, err)
}

func TestSaveRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "life_expectancy.csv")
	records := []observation.Record{
		{"SpatialDimType": "COUNTRY", "SpatialDim": "USA", "TimeDim": float64(2019), "Dim1": "SEX_BTSX", "NumericValue": 78.5},
	}
	require.NoError(t, saveRecords(path, records, observation.Columns{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "SpatialDimType,SpatialDim,TimeDim,Dim1,NumericValue\nCOUNTRY,USA,2019,SEX_BTSX,78.5\n", string(data))
}

func TestSaveRecords_CreateError(t *testing.T) {
	dir := t.TempDir()
	// The output path is an existing directory.
	err := saveRecords(dir, nil, observation.Columns{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch: create output")
}
