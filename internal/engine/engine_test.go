package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/choropleth-cli/internal/classify"
	"github.com/sells-group/choropleth-cli/internal/model"
	"github.com/sells-group/choropleth-cli/internal/tables"
)

func ptr(v float64) *float64 { return &v }

func obs(code string, period int, cat string, v *float64) model.Observation {
	return model.Observation{DimensionType: "COUNTRY", CountryCode: code, Period: period, Category: cat, Value: v}
}

func testTables() *tables.Tables {
	return &tables.Tables{
		Synonyms: tables.Synonyms{
			Both:   []string{"both sexes", "SEX_BTSX"},
			Male:   []string{"male", "SEX_MLE"},
			Female: []string{"female", "SEX_FMLE"},
		},
		Patches: []model.PatchRule{{Name: "Zedland", CanonicalID: "XYZ"}},
	}
}

func scenario() ([]model.Observation, []model.BoundaryFeature) {
	observations := []model.Observation{
		obs("ABC", 2020, "female", ptr(70)),
		obs("ABC", 2020, "female", ptr(74)),
		obs("XYZ", 2020, "female", ptr(50)),
	}
	features := []model.BoundaryFeature{
		{FeatureID: "abc", DisplayName: "Alphaland"},
		{FeatureID: "missing", DisplayName: "Zedland"},
	}
	return observations, features
}

func newEngine(t *testing.T, observations []model.Observation, features []model.BoundaryFeature, opts Options) *Engine {
	t.Helper()
	e, err := New(observations, features, testTables(), opts)
	require.NoError(t, err)
	return e
}

func TestRun_EndToEnd(t *testing.T) {
	o, f := scenario()
	e := newEngine(t, o, f, Options{})

	res, err := e.Run(context.Background(), model.Selection{Period: 2020, Category: model.CategoryFemale})
	require.NoError(t, err)

	assert.False(t, res.Empty)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []model.AggregatedValue{
		{CountryCode: "ABC", Mean: 72, Count: 2},
		{CountryCode: "XYZ", Mean: 50, Count: 1},
	}, res.Aggregated)
	assert.Equal(t, classify.DefaultReferenceScale, res.Bins)
	assert.Equal(t, []string{"50.0–60.0", "60.0–70.0", "70.0–80.0", "80.0–87.0"}, res.BinLabels)

	require.Len(t, res.Features, 2)
	assert.Equal(t, "Alphaland", res.Features[0].Feature.DisplayName)
	assert.Equal(t, "ABC", res.Features[0].CanonicalID)
	require.NotNil(t, res.Features[0].Value)
	assert.InDelta(t, 72.0, *res.Features[0].Value, 1e-9)
	assert.Equal(t, "72.0", res.Features[0].Label)
	assert.Equal(t, 2, res.Features[0].Bin)

	assert.Equal(t, "Zedland", res.Features[1].Feature.DisplayName)
	assert.Equal(t, "XYZ", res.Features[1].CanonicalID)
	require.NotNil(t, res.Features[1].Value)
	assert.InDelta(t, 50.0, *res.Features[1].Value, 1e-9)
	assert.Equal(t, 0, res.Features[1].Bin)

	assert.Empty(t, res.Diagnostics.UnmatchedFeatures)
	assert.Empty(t, res.Diagnostics.UnmatchedCodes)
	assert.Equal(t, 2, res.Matched())
	assert.Empty(t, res.Missing())
}

func TestRun_FallbackScale(t *testing.T) {
	o := []model.Observation{
		obs("ABC", 2020, "SEX_BTSX", ptr(30)),
		obs("XYZ", 2020, "SEX_BTSX", ptr(95)),
	}
	_, f := scenario()
	res, err := newEngine(t, o, f, Options{}).Run(context.Background(), model.Selection{Period: 2020, Category: model.CategoryBoth})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Bins), 3)
	assert.LessOrEqual(t, res.Bins[0], 30.0)
	assert.GreaterOrEqual(t, res.Bins[len(res.Bins)-1], 95.0)
	assert.True(t, res.Bins.Valid())
}

func TestRun_EmptySelection(t *testing.T) {
	o, f := scenario()
	e := newEngine(t, o, f, Options{NoDataLabel: "n/a"})

	res, err := e.Run(context.Background(), model.Selection{Period: 1999, Category: model.CategoryFemale})
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Empty(t, res.Aggregated)
	assert.Nil(t, res.Bins)
	require.Len(t, res.Features, 2)
	for _, af := range res.Features {
		assert.Nil(t, af.Value)
		assert.Equal(t, "n/a", af.Label)
		assert.Equal(t, -1, af.Bin)
	}
	assert.Len(t, res.Diagnostics.UnmatchedFeatures, 2)
	assert.Len(t, res.Missing(), 2)
}

func TestRun_UnknownCategoryIsEmpty(t *testing.T) {
	o, f := scenario()
	o = append(o, obs("ABC", 2020, "other", ptr(60)))
	e := newEngine(t, o, f, Options{})

	res, err := e.RunQuery(context.Background(), Query{Period: "2020", Category: "other"})
	require.NoError(t, err)
	assert.Equal(t, model.CategoryUnknown, res.Selection.Category)
	assert.True(t, res.Empty)
	assert.Equal(t, []string{"other"}, res.Diagnostics.UnknownCategories)
}

func TestRun_UnreconciledDiagnostics(t *testing.T) {
	o := []model.Observation{
		obs("ABC", 2020, "male", ptr(61)),
		obs("QQQ", 2020, "male", ptr(64)),
	}
	f := []model.BoundaryFeature{
		{FeatureID: "ABC", DisplayName: "Alphaland"},
		{FeatureID: "-99", DisplayName: "Nowhere"},
	}
	res, err := newEngine(t, o, f, Options{}).Run(context.Background(), model.Selection{Period: 2020, Category: model.CategoryMale})
	require.NoError(t, err)
	assert.Equal(t, []model.UnmatchedFeature{{Name: "Nowhere", CanonicalID: ""}}, res.Diagnostics.UnmatchedFeatures)
	assert.Equal(t, []string{"QQQ"}, res.Diagnostics.UnmatchedCodes)
	assert.Equal(t, 1, res.Matched())
}

func TestRun_Cancelled(t *testing.T) {
	o, f := scenario()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine(t, o, f, Options{}).Run(ctx, model.Selection{Period: 2020, Category: model.CategoryFemale})
	require.Error(t, err)
}

func TestRun_Cache(t *testing.T) {
	o, f := scenario()
	sel := model.Selection{Period: 2020, Category: model.CategoryFemale}

	cached := newEngine(t, o, f, Options{Cache: true})
	first, err := cached.Run(context.Background(), sel)
	require.NoError(t, err)
	first.Features[0].Label = "changed"
	first.Aggregated[0].Mean = -1

	second, err := cached.Run(context.Background(), sel)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, "72.0", second.Features[0].Label)
	assert.InDelta(t, 72.0, second.Aggregated[0].Mean, 1e-9)

	uncached := newEngine(t, o, f, Options{})
	a, err := uncached.Run(context.Background(), sel)
	require.NoError(t, err)
	b, err := uncached.Run(context.Background(), sel)
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRun_CacheKeysOnCanonicalSelection(t *testing.T) {
	o, f := scenario()
	e := newEngine(t, o, f, Options{Cache: true})

	a, err := e.RunQuery(context.Background(), Query{Period: "2020", Category: "Female"})
	require.NoError(t, err)
	b, err := e.RunQuery(context.Background(), Query{Period: "2020.0", Category: "SEX_FMLE"})
	require.NoError(t, err)
	assert.Equal(t, a.RunID, b.RunID)
}

func TestResolve(t *testing.T) {
	o, f := scenario()
	e := newEngine(t, o, f, Options{})

	tests := []struct {
		name    string
		q       Query
		want    model.Selection
		wantErr bool
	}{
		{"canonical", Query{"2020", "FEMALE"}, model.Selection{Period: 2020, Category: model.CategoryFemale}, false},
		{"spelling variant", Query{" 2019 ", "Both-Sexes"}, model.Selection{Period: 2019, Category: model.CategoryBoth}, false},
		{"float period", Query{"2018.0", "Male"}, model.Selection{Period: 2018, Category: model.CategoryMale}, false},
		{"unknown category", Query{"2018", "??"}, model.Selection{Period: 2018, Category: model.CategoryUnknown}, false},
		{"bad period", Query{"latest", "male"}, model.Selection{}, true},
		{"fractional period", Query{"2018.5", "male"}, model.Selection{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Resolve(tt.q)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunAll(t *testing.T) {
	o, f := scenario()
	o = append(o,
		obs("ABC", 2019, "male", ptr(65)),
		obs("XYZ", 2019, "male", ptr(48)),
	)
	e := newEngine(t, o, f, Options{})

	sels := e.Selections()
	require.Len(t, sels, 4)

	results, err := e.RunAll(context.Background(), sels, 2)
	require.NoError(t, err)
	require.Len(t, results, len(sels))
	for i, res := range results {
		assert.Equal(t, sels[i], res.Selection)
		assert.Len(t, res.Features, 2)
	}
	assert.True(t, results[0].Empty)  // 2020 male
	assert.False(t, results[1].Empty) // 2020 female
	assert.False(t, results[2].Empty) // 2019 male
}

func TestRunAll_Cancelled(t *testing.T) {
	o, f := scenario()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine(t, o, f, Options{}).RunAll(ctx, []model.Selection{{Period: 2020, Category: model.CategoryFemale}}, 0)
	require.Error(t, err)
}

func TestHistogram(t *testing.T) {
	o, f := scenario()
	e := newEngine(t, o, f, Options{})

	counts, err := e.Histogram(context.Background(), model.Selection{Period: 2020, Category: model.CategoryFemale}, nil)
	require.NoError(t, err)
	require.Len(t, counts, 5)
	assert.Equal(t, 1, counts[1].Count) // 50-60
	assert.Equal(t, 1, counts[3].Count) // 70-80

	_, err = e.Histogram(context.Background(), model.Selection{Period: 2020, Category: model.CategoryFemale}, model.BinEdges{1})
	require.Error(t, err)
}

func TestNew_InvalidReference(t *testing.T) {
	_, err := New(nil, nil, testTables(), Options{Reference: model.BinEdges{3, 2, 1}})
	require.Error(t, err)
}

func TestNew_DefaultTables(t *testing.T) {
	e, err := New([]model.Observation{obs("FRA", 2020, "SEX_BTSX", ptr(82.3))},
		[]model.BoundaryFeature{{FeatureID: "-99", DisplayName: "France"}}, nil, Options{})
	require.NoError(t, err)

	res, err := e.Run(context.Background(), model.Selection{Period: 2020, Category: model.CategoryBoth})
	require.NoError(t, err)
	assert.Equal(t, "FRA", res.Features[0].CanonicalID)
	assert.Equal(t, "82.3", res.Features[0].Label)
}
