package model

import (
	"github.com/twpayne/go-geom"
)

// BoundaryFeature is one country polygon or multipolygon from a boundary dataset.
// FeatureID is the dataset's own identifier and may be empty.
type BoundaryFeature struct {
	FeatureID   string         `json:"feature_id"`
	DisplayName string         `json:"display_name"`
	Geometry    geom.T         `json:"-"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// PatchRule overrides the canonical id of a boundary feature whose display
// name (or one of its aliases) matches.
type PatchRule struct {
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	CanonicalID string   `yaml:"canonical_id" json:"canonical_id"`
}

// AnnotatedFeature is a boundary feature with its joined value and label.
// Value is nil when no aggregated value matched. Bin is -1 when unclassified.
type AnnotatedFeature struct {
	Feature     BoundaryFeature `json:"feature"`
	CanonicalID string          `json:"canonical_id,omitempty"`
	Value       *float64        `json:"value,omitempty"`
	Label       string          `json:"value_label"`
	Bin         int             `json:"bin"`
}

// HasValue reports whether the feature received a value.
func (a AnnotatedFeature) HasValue() bool {
	return a.Value != nil
}
