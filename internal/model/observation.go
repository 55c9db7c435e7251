// Package model defines the data contracts shared by the reconciliation and
// classification engine.
package model

import "strings"

// DimensionCountry is the only admissible spatial dimension type.
const DimensionCountry = "COUNTRY"

// Observation is one raw indicator row as delivered by the observation source.
type Observation struct {
	DimensionType string   `json:"dimension_type"`
	CountryCode   string   `json:"country_code"`
	Period        int      `json:"period"`
	Category      string   `json:"category"`
	Value         *float64 `json:"value,omitempty"`
}

// Admissible reports whether the row is a country-level observation with a value.
func (o Observation) Admissible() bool {
	return strings.EqualFold(strings.TrimSpace(o.DimensionType), DimensionCountry) && o.Value != nil
}

// AggregatedValue is the representative value of one canonical country for a
// single (period, category) selection.
type AggregatedValue struct {
	CountryCode string  `json:"canonical_country_code"`
	Mean        float64 `json:"mean_value"`
	Count       int     `json:"count"`
}
