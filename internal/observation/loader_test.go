package observation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/choropleth-cli/internal/fetcher"
	"github.com/sells-group/choropleth-cli/internal/model"
)

const ghoCSV = `Id,IndicatorCode,SpatialDimType,SpatialDim,TimeDimType,TimeDim,Dim1Type,Dim1,NumericValue
1,WHOSIS_000001,COUNTRY,usa,YEAR,2019,SEX,SEX_BTSX,78.5
2,WHOSIS_000001,COUNTRY,FRA,YEAR,2019,SEX,SEX_MLE,79.7
3,WHOSIS_000001,REGION,AFR,YEAR,2019,SEX,SEX_BTSX,64.5
4,WHOSIS_000001,COUNTRY,NOR,YEAR,2019.0,SEX,SEX_FMLE,
5,WHOSIS_000001,COUNTRY,DEU,YEAR,2018,SEX,Both sexes,n/a
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestLoader(opts ...Option) *Loader {
	return NewLoader(fetcher.NewRouter(nil, nil), opts...)
}

func TestLoad_CSV(t *testing.T) {
	obs, err := newTestLoader().Load(context.Background(), writeFile(t, "life.csv", ghoCSV))
	require.NoError(t, err)
	require.Len(t, obs, 4)

	assert.Equal(t, "USA", obs[0].CountryCode)
	assert.Equal(t, 2019, obs[0].Period)
	assert.Equal(t, "SEX_BTSX", obs[0].Category)
	require.NotNil(t, obs[0].Value)
	assert.InDelta(t, 78.5, *obs[0].Value, 1e-9)

	assert.Equal(t, "NOR", obs[2].CountryCode)
	assert.Equal(t, 2019, obs[2].Period)
	assert.Nil(t, obs[2].Value)

	assert.Equal(t, "DEU", obs[3].CountryCode)
	assert.Nil(t, obs[3].Value)
	for _, o := range obs {
		assert.Equal(t, model.DimensionCountry, o.DimensionType)
	}
}

func TestLoad_MissingColumn(t *testing.T) {
	path := writeFile(t, "bad.csv", "SpatialDimType,SpatialDim,TimeDim,Dim1\nCOUNTRY,USA,2019,SEX_BTSX\n")
	_, err := newTestLoader().Load(context.Background(), path)
	require.Error(t, err)
	assert.True(t, model.IsMalformedInput(err))
	assert.Contains(t, err.Error(), "NumericValue")
}

func TestLoad_MalformedRows(t *testing.T) {
	tests := []struct {
		name string
		row  string
	}{
		{"bad period", "COUNTRY,USA,twenty,SEX_BTSX,78"},
		{"fractional period", "COUNTRY,USA,2019.5,SEX_BTSX,78"},
		{"empty code", "COUNTRY, ,2019,SEX_BTSX,78"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "rows.csv", "SpatialDimType,SpatialDim,TimeDim,Dim1,NumericValue\n"+tt.row+"\n")
			_, err := newTestLoader().Load(context.Background(), path)
			require.Error(t, err)
			assert.True(t, model.IsMalformedInput(err))
		})
	}
}

func TestLoad_NonCountryRowsAreNotValidated(t *testing.T) {
	path := writeFile(t, "rows.csv", "SpatialDimType,SpatialDim,TimeDim,Dim1,NumericValue\nGLOBAL,,,SEX_BTSX,73\n\n")
	obs, err := newTestLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestLoad_EmptyFile(t *testing.T) {
	_, err := newTestLoader().Load(context.Background(), writeFile(t, "empty.csv", ""))
	require.Error(t, err)
	assert.True(t, model.IsMalformedInput(err))
}

func TestLoad_CustomColumns(t *testing.T) {
	path := writeFile(t, "custom.csv", "level,iso3,year,sex,value\ncountry,KEN,2015,female,66.1\n")
	l := newTestLoader(WithColumns(Columns{
		DimensionType: "level", CountryCode: "iso3", Period: "year", Category: "sex", Value: "value",
	}))
	obs, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "KEN", obs[0].CountryCode)
	assert.Equal(t, "female", obs[0].Category)
}

func TestLoad_JSONEnvelope(t *testing.T) {
	doc := `{"@odata.context":"x","value":[
		{"SpatialDimType":"COUNTRY","SpatialDim":"USA","TimeDim":2019,"Dim1":"SEX_BTSX","NumericValue":78.5},
		{"SpatialDimType":"COUNTRY","SpatialDim":"FRA","TimeDim":2019,"Dim1":"SEX_MLE","NumericValue":null},
		{"SpatialDimType":"WORLDBANKINCOMEGROUP","SpatialDim":"WB_HI","TimeDim":2019,"Dim1":"SEX_BTSX","NumericValue":80.1}
	]}`
	obs, err := newTestLoader().Load(context.Background(), writeFile(t, "gho.json", doc))
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, 2019, obs[0].Period)
	assert.InDelta(t, 78.5, *obs[0].Value, 1e-9)
	assert.Nil(t, obs[1].Value)
}

func TestLoad_JSONArrayAndMissingColumns(t *testing.T) {
	obs, err := newTestLoader().Load(context.Background(), writeFile(t, "rows.json",
		`[{"SpatialDimType":"COUNTRY","SpatialDim":"ITA","TimeDim":"2000","Dim1":"SEX_FMLE","NumericValue":"82.3"}]`))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.InDelta(t, 82.3, *obs[0].Value, 1e-9)

	_, err = newTestLoader().Load(context.Background(), writeFile(t, "bad.json",
		`{"value":[{"SpatialDim":"ITA","TimeDim":2000}]}`))
	require.Error(t, err)
	assert.True(t, model.IsMalformedInput(err))

	_, err = newTestLoader().Load(context.Background(), writeFile(t, "scalar.json", `42`))
	require.Error(t, err)
	assert.True(t, model.IsMalformedInput(err))
}

func TestLoad_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Life")
	require.NoError(t, err)
	for _, r := range [][]string{
		{"SpatialDimType", "SpatialDim", "TimeDim", "Dim1", "NumericValue"},
		{"COUNTRY", "JPN", "2019", "SEX_BTSX", "84.3"},
		{"COUNTRY", "JPN", "2019", "SEX_MLE", "81.5"},
	} {
		row := sheet.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	path := filepath.Join(t.TempDir(), "life.xlsx")
	require.NoError(t, f.Save(path))

	obs, err := newTestLoader(WithSheet("Life")).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "SEX_MLE", obs[1].Category)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := newTestLoader().Load(context.Background(), writeFile(t, "life.parquet", "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"data/raw.csv", FormatCSV},
		{"data/RAW.XLSX", FormatXLSX},
		{"data/gho.json", FormatJSON},
		{"https://ghoapi.azureedge.net/api/WHOSIS_000001", FormatJSON},
		{"https://example.com/export.csv?download=1", FormatCSV},
		{"data/noext", ""},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, detectFormat(tt.location))
		})
	}
}

func TestParsePeriodAndValue(t *testing.T) {
	n, ok := parsePeriod(" 2019 ")
	assert.True(t, ok)
	assert.Equal(t, 2019, n)
	_, ok = parsePeriod("")
	assert.False(t, ok)
	_, ok = parsePeriod("NaN")
	assert.False(t, ok)

	assert.Nil(t, parseValue(""))
	assert.Nil(t, parseValue("Inf"))
	assert.Nil(t, parseValue("72.1 [70.0-74.2]"))
	require.NotNil(t, parseValue(" 72.1 "))
	assert.InDelta(t, 72.1, *parseValue("72.1"), 1e-9)
}

func TestColumnsValidate(t *testing.T) {
	require.NoError(t, DefaultColumns().Validate())
	require.NoError(t, Columns{}.Validate())
	err := Columns{CountryCode: "code", Period: "CODE"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapped twice")
}
