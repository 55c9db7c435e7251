package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ghoRow struct {
	SpatialDim   string   `json:"SpatialDim"`
	NumericValue *float64 `json:"NumericValue"`
}

func collectJSON[T any](outCh <-chan T, errCh <-chan error) ([]T, error) {
	var out []T
	for v := range outCh {
		out = append(out, v)
	}
	return out, <-errCh
}

func TestDecodeJSONArray(t *testing.T) {
	rows, err := collectJSON[ghoRow](DecodeJSONArray[ghoRow](context.Background(),
		strings.NewReader(`[{"SpatialDim":"USA","NumericValue":78.5},{"SpatialDim":"FRA","NumericValue":null}]`)))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "USA", rows[0].SpatialDim)
	assert.InDelta(t, 78.5, *rows[0].NumericValue, 1e-9)
	assert.Nil(t, rows[1].NumericValue)
}

func TestDecodeJSONArray_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"object instead of array", `{"a":1}`},
		{"bad element", `[{"SpatialDim":1}]`},
		{"truncated", `[{"SpatialDim":"USA"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collectJSON[ghoRow](DecodeJSONArray[ghoRow](context.Background(), strings.NewReader(tt.input)))
			require.Error(t, err)
		})
	}
}

func TestDecodeJSONArray_Empty(t *testing.T) {
	rows, err := collectJSON[ghoRow](DecodeJSONArray[ghoRow](context.Background(), strings.NewReader("")))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDecodeJSONEnvelope(t *testing.T) {
	input := `{
		"@odata.context": "https://ghoapi.azureedge.net/api/$metadata#WHOSIS_000001",
		"meta": {"nested": [1, 2, {"value": "not this one"}]},
		"value": [{"SpatialDim":"USA","NumericValue":78.5},{"SpatialDim":"NOR","NumericValue":83.2}]
	}`
	rows, err := collectJSON[ghoRow](DecodeJSONEnvelope[ghoRow](context.Background(), strings.NewReader(input), "value"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "NOR", rows[1].SpatialDim)
}

func TestDecodeJSONEnvelope_MissingKey(t *testing.T) {
	rows, err := collectJSON[ghoRow](DecodeJSONEnvelope[ghoRow](context.Background(), strings.NewReader(`{"other":[]}`), "value"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDecodeJSONEnvelope_NotObject(t *testing.T) {
	_, err := collectJSON[ghoRow](DecodeJSONEnvelope[ghoRow](context.Background(), strings.NewReader(`[]`), "value"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '{'")
}

func TestDecodeJSONObject(t *testing.T) {
	obj, err := DecodeJSONObject[map[string]any](strings.NewReader(`{"type":"FeatureCollection"}`))
	require.NoError(t, err)
	assert.Equal(t, "FeatureCollection", (*obj)["type"])

	_, err = DecodeJSONObject[map[string]any](strings.NewReader(`{`))
	require.Error(t, err)
}
