// Package annotate left-joins boundary features with aggregated values.
package annotate

import (
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/choropleth-cli/internal/classify"
	"github.com/sells-group/choropleth-cli/internal/model"
)

// NoDataLabel is the label attached to features without a value.
const NoDataLabel = "No data"

// IDResolver returns the canonical id of a boundary feature ("" when none).
type IDResolver interface {
	Boundary(f model.BoundaryFeature) string
}

// Options controls labels and classification of annotated features.
type Options struct {
	// Precision is the number of decimals in value labels. Default: 1.
	Precision int
	// NoDataLabel replaces the default missing-value label when set.
	NoDataLabel string
	// Edges, when set, assigns each valued feature its bin index.
	Edges model.BinEdges
}

// Annotate returns one AnnotatedFeature per input feature, in input order.
// Features whose canonical id has no aggregated value keep a nil Value and the
// no-data label. Aggregated codes must be unique.
func Annotate(features []model.BoundaryFeature, aggregated []model.AggregatedValue, ids IDResolver, opts Options) ([]model.AnnotatedFeature, error) {
	lookup := make(map[string]float64, len(aggregated))
	for _, a := range aggregated {
		if _, dup := lookup[a.CountryCode]; dup {
			return nil, eris.Errorf("annotate: duplicate aggregated code %q", a.CountryCode)
		}
		lookup[a.CountryCode] = a.Mean
	}

	precision := opts.Precision
	if precision <= 0 {
		precision = 1
	}
	noData := opts.NoDataLabel
	if noData == "" {
		noData = NoDataLabel
	}

	out := make([]model.AnnotatedFeature, len(features))
	for i, f := range features {
		af := model.AnnotatedFeature{
			Feature:     f,
			CanonicalID: ids.Boundary(f),
			Label:       noData,
			Bin:         -1,
		}
		if af.CanonicalID != "" {
			if v, ok := lookup[af.CanonicalID]; ok {
				val := v
				af.Value = &val
				af.Label = FormatValue(v, precision)
				if len(opts.Edges) > 0 {
					af.Bin = classify.BinIndex(v, opts.Edges)
				}
			}
		}
		out[i] = af
	}
	return out, nil
}

// FormatValue renders v with a fixed number of decimals.
func FormatValue(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64)
}
