package model

import "fmt"

// Selection identifies one engine invocation: a period and a canonical category.
type Selection struct {
	Period   int      `json:"period"`
	Category Category `json:"category"`
}

// Key returns the cache key for the selection. Keys are built from canonical
// values only so spelling variants of the same category share an entry.
func (s Selection) Key() string {
	return fmt.Sprintf("%d:%s", s.Period, s.Category)
}

// Diagnostics enumerates identifiers that could not be matched across datasets.
type Diagnostics struct {
	// Boundary features that received no value (name and canonical id, id may be empty).
	UnmatchedFeatures []UnmatchedFeature `json:"unmatched_features"`
	// Aggregated country codes that no boundary feature claimed.
	UnmatchedCodes []string `json:"unmatched_codes"`
	// Raw category spellings that normalized to unknown.
	UnknownCategories []string `json:"unknown_categories,omitempty"`
}

// UnmatchedFeature is a boundary feature without a joined value.
type UnmatchedFeature struct {
	Name        string `json:"name"`
	CanonicalID string `json:"canonical_id"`
}
