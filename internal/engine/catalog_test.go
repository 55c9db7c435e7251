package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/choropleth-cli/internal/model"
)

func TestPeriodsAndCategories(t *testing.T) {
	o := []model.Observation{
		obs("ABC", 2018, "male", ptr(60)),
		obs("ABC", 2020, "female", ptr(70)),
		obs("ABC", 2019, "other", ptr(70)),
		obs("ABC", 2021, "female", nil),
		{DimensionType: "REGION", CountryCode: "AFR", Period: 2022, Category: "male", Value: ptr(55)},
	}
	e := newEngine(t, o, nil, Options{})

	assert.Equal(t, []int{2020, 2019, 2018}, e.Periods())
	assert.Equal(t, []model.Category{model.CategoryMale, model.CategoryFemale}, e.Categories())
	assert.Len(t, e.Selections(), 6)
}

func TestFingerprint(t *testing.T) {
	o, f := scenario()
	a := newEngine(t, o, f, Options{})
	b := newEngine(t, o, f, Options{Cache: true})
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 16)

	c := newEngine(t, o, f, Options{Reference: model.BinEdges{40, 60, 80, 100}})
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	d := newEngine(t, o[:2], f, Options{})
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}
