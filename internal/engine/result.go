package engine

import (
	"github.com/sells-group/choropleth-cli/internal/model"
)

// Result is the output of one selection. Bins and BinLabels are empty when
// Empty is set: there is nothing to classify and the map renders without a
// scale.
type Result struct {
	RunID       string                   `json:"run_id"`
	Selection   model.Selection          `json:"selection"`
	Aggregated  []model.AggregatedValue  `json:"aggregated"`
	Bins        model.BinEdges           `json:"bins,omitempty"`
	BinLabels   []string                 `json:"bin_labels,omitempty"`
	Features    []model.AnnotatedFeature `json:"-"`
	Diagnostics model.Diagnostics        `json:"diagnostics"`
	Empty       bool                     `json:"empty"`
}

// Matched is the number of features that received a value.
func (r *Result) Matched() int {
	var n int
	for _, f := range r.Features {
		if f.HasValue() {
			n++
		}
	}
	return n
}

// Missing lists the features without a value, in feature order.
func (r *Result) Missing() []model.AnnotatedFeature {
	var out []model.AnnotatedFeature
	for _, f := range r.Features {
		if !f.HasValue() {
			out = append(out, f)
		}
	}
	return out
}

// clone copies the slices a caller could modify. Values behind pointers and
// geometries are shared; nothing in the engine writes to them.
func (r *Result) clone() *Result {
	c := *r
	c.Aggregated = append([]model.AggregatedValue(nil), r.Aggregated...)
	c.Bins = append(model.BinEdges(nil), r.Bins...)
	c.BinLabels = append([]string(nil), r.BinLabels...)
	c.Features = append([]model.AnnotatedFeature(nil), r.Features...)
	c.Diagnostics = model.Diagnostics{
		UnmatchedFeatures: append([]model.UnmatchedFeature{}, r.Diagnostics.UnmatchedFeatures...),
		UnmatchedCodes:    append([]string{}, r.Diagnostics.UnmatchedCodes...),
		UnknownCategories: append([]string(nil), r.Diagnostics.UnknownCategories...),
	}
	if c.Aggregated == nil {
		c.Aggregated = []model.AggregatedValue{}
	}
	return &c
}
