package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/choropleth-cli/internal/config"
)

const fixtureCSV = `SpatialDimType,SpatialDim,TimeDim,Dim1,NumericValue
COUNTRY,ABC,2020,SEX_FMLE,70
COUNTRY,ABC,2020,SEX_FMLE,74
COUNTRY,XYZ,2020,SEX_FMLE,50
COUNTRY,ABC,2020,SEX_BTSX,68
COUNTRY,XYZ,2020,SEX_BTSX,52
COUNTRY,ABC,2019,SEX_BTSX,67
REGION,AFR,2020,SEX_BTSX,60
`

const fixtureGeoJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","id":"ABC","properties":{"name":"Alphaland"},
  "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
 {"type":"Feature","id":"-99","properties":{"name":"Zedland"},
  "geometry":{"type":"Polygon","coordinates":[[[2,0],[3,0],[3,1],[2,0]]]}},
 {"type":"Feature","id":"ATA","properties":{"name":"Antarctica"},
  "geometry":{"type":"Polygon","coordinates":[[[0,-80],[1,-80],[1,-81],[0,-80]]]}}
]}`

const fixtureTables = `tables:
  synonyms:
    both: [both, bothsexes, sexbtsx]
    male: [male, sexmle]
    female: [female, sexfmle]
  patches:
    - name: Zedland
      canonical_id: XYZ
`

type fixture struct {
	Dir          string
	Observations string
	Boundary     string
	Tables       string
	DB           string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	fx := fixture{
		Dir:          dir,
		Observations: filepath.Join(dir, "life_expectancy.csv"),
		Boundary:     filepath.Join(dir, "world.json"),
		Tables:       filepath.Join(dir, "tables.yaml"),
		DB:           filepath.Join(dir, "maps.db"),
	}
	require.NoError(t, os.WriteFile(fx.Observations, []byte(fixtureCSV), 0o644))
	require.NoError(t, os.WriteFile(fx.Boundary, []byte(fixtureGeoJSON), 0o644))
	require.NoError(t, os.WriteFile(fx.Tables, []byte(fixtureTables), 0o644))
	return fx
}

func (fx fixture) config() *config.Config {
	c := &config.Config{}
	c.Log = config.LogConfig{Level: "error", Format: "json"}
	c.Store = config.StoreConfig{Driver: "sqlite", DatabaseURL: fx.DB, TTLHours: 1}
	c.Fetch = config.FetchConfig{TimeoutSecs: 5, MaxAttempts: 1, GHOBaseURL: config.DefaultGHOBaseURL, Indicator: config.DefaultGHOIndicator}
	c.Observations.Location = fx.Observations
	c.Boundary.Sources = []config.BoundarySource{
		{Type: config.BoundaryTypeGeoJSON, Location: filepath.Join(fx.Dir, "absent.json")},
		{Type: config.BoundaryTypeGeoJSON, Location: fx.Boundary},
	}
	c.Boundary.Exclude = []string{"Antarctica"}
	c.Classify = config.ClassifyConfig{
		Reference:      []float64{50, 60, 70, 80, 87},
		HistogramBands: []float64{40, 50, 60, 70, 80, 90},
		Precision:      1,
		NoDataLabel:    "No data",
	}
	c.Tables.Path = fx.Tables
	c.Precompute.Concurrency = 2
	c.Server.Port = 8080
	return c
}

func newTestEnv(t *testing.T) (*mapEnv, fixture) {
	t.Helper()
	fx := newFixture(t)
	env, err := initEngine(context.Background(), fx.config(), "build")
	require.NoError(t, err)
	return env, fx
}
