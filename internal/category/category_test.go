package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/choropleth-cli/internal/model"
	"github.com/sells-group/choropleth-cli/internal/tables"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	tbl, err := tables.Default()
	require.NoError(t, err)
	return NewNormalizer(tbl.Synonyms.ByCategory())
}

func strPtr(s string) *string { return &s }

func TestNormalize_Missing(t *testing.T) {
	n := newTestNormalizer(t)
	assert.Equal(t, model.CategoryUnknown, n.Normalize(nil))
	assert.Equal(t, model.CategoryUnknown, n.Normalize(strPtr("")))
	assert.Equal(t, model.CategoryUnknown, n.Normalize(strPtr("   ")))
}

func TestNormalize_SynonymGroups(t *testing.T) {
	n := newTestNormalizer(t)

	groups := map[model.Category][]string{
		model.CategoryBoth: {
			"Both sexes", "BOTH-SEXES", "both_sexes", " bothsexes ", "Both",
			"BTSX", "SEX_BTSX", "sex-btsx", "Les deux sexes", "Ambos sexos",
		},
		model.CategoryMale: {
			"Male", "MALE", " m ", "M", "MLE", "SEX_MLE", "Homme", "Masculin", "masculino",
		},
		model.CategoryFemale: {
			"Female", "FEMALE", "f", "FMLE", "SEX_FMLE", "sex fmle", "Femme", "Féminin", "FEMENINO",
		},
	}

	for want, spellings := range groups {
		for _, s := range spellings {
			t.Run(want.String()+"/"+s, func(t *testing.T) {
				assert.Equal(t, want, n.Normalize(strPtr(s)))
			})
		}
	}
}

func TestNormalize_Unknown(t *testing.T) {
	n := newTestNormalizer(t)
	for _, s := range []string{"other", "xx", "malefemale", "SEX_UNK", "42"} {
		assert.Equal(t, model.CategoryUnknown, n.NormalizeString(s), s)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newTestNormalizer(t)
	for _, c := range model.Categories {
		code := c.String()
		assert.Equal(t, c, n.NormalizeString(code))
		assert.Equal(t, n.NormalizeString(code), n.NormalizeString(n.NormalizeString(code).String()))
	}
	assert.Equal(t, model.CategoryUnknown, n.NormalizeString(model.CategoryUnknown.String()))
}

func TestNormalize_CanonicalBypassesEmptyTable(t *testing.T) {
	n := NewNormalizer(nil)
	assert.Equal(t, model.CategoryFemale, n.NormalizeString("FEMALE"))
	assert.Equal(t, model.CategoryBoth, n.NormalizeString("both"))
	assert.Equal(t, model.CategoryUnknown, n.NormalizeString("btsx"))
}

func TestNewNormalizer_IgnoresUnknownKey(t *testing.T) {
	n := NewNormalizer(map[model.Category][]string{
		model.CategoryUnknown: {"zzz"},
		model.CategoryMale:    {"zzz-m"},
	})
	assert.Equal(t, model.CategoryUnknown, n.NormalizeString("zzz"))
	assert.Equal(t, model.CategoryMale, n.NormalizeString("ZZZ_M"))
}

func TestUnmatched(t *testing.T) {
	n := newTestNormalizer(t)
	got := n.Unmatched([]string{"Female", "SEX_UNK", "zz", "SEX_UNK", "Male"})
	assert.Equal(t, []string{"SEX_UNK", "zz"}, got)
	assert.Empty(t, n.Unmatched([]string{"Both sexes"}))
}
