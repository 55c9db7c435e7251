// Package aggregate collapses raw observations into one representative value
// per canonical country for a (period, category) selection.
package aggregate

import (
	"math"
	"sort"

	"github.com/sells-group/choropleth-cli/internal/model"
)

// CategoryResolver maps a raw category string onto a canonical category.
type CategoryResolver interface {
	NormalizeString(raw string) model.Category
}

// CodeResolver canonicalizes an observation-side country code.
type CodeResolver interface {
	Observation(code string) string
}

// Aggregate filters observations to the selection and returns the mean value
// per canonical country code, sorted by code. Rows that are not country-level,
// have no value, or carry a non-finite value are skipped; a country whose rows
// are all skipped is absent from the output. An empty result is not an error.
func Aggregate(obs []model.Observation, sel model.Selection, cats CategoryResolver, codes CodeResolver) []model.AggregatedValue {
	groups := make(map[string]*meanAcc)
	for _, o := range obs {
		if o.Period != sel.Period || !o.Admissible() {
			continue
		}
		if v := *o.Value; math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if cats.NormalizeString(o.Category) != sel.Category {
			continue
		}
		code := codes.Observation(o.CountryCode)
		if code == "" {
			continue
		}
		acc, ok := groups[code]
		if !ok {
			acc = &meanAcc{}
			groups[code] = acc
		}
		acc.add(*o.Value)
	}

	out := make([]model.AggregatedValue, 0, len(groups))
	for code, acc := range groups {
		out = append(out, model.AggregatedValue{
			CountryCode: code,
			Mean:        acc.mean(),
			Count:       acc.n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CountryCode < out[j].CountryCode })
	return out
}

// Values extracts the mean values in output order.
func Values(agg []model.AggregatedValue) []float64 {
	vals := make([]float64, len(agg))
	for i, a := range agg {
		vals[i] = a.Mean
	}
	return vals
}

// meanAcc accumulates a compensated (Kahan) sum so the mean does not depend on
// the order rows arrive in beyond rounding.
type meanAcc struct {
	sum  float64
	comp float64
	n    int
}

func (m *meanAcc) add(v float64) {
	y := v - m.comp
	t := m.sum + y
	m.comp = (t - m.sum) - y
	m.sum = t
	m.n++
}

func (m *meanAcc) mean() float64 {
	return m.sum / float64(m.n)
}
