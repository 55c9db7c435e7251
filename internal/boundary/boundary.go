// Package boundary loads country boundary layers (GeoJSON or zipped
// shapefiles) into model.BoundaryFeature values, trying fallback sources in
// order.
package boundary

import (
	"context"
	"strconv"
	"strings"

	"github.com/sells-group/choropleth-cli/internal/model"
	"github.com/sells-group/choropleth-cli/internal/reconcile"
	"github.com/sells-group/choropleth-cli/internal/textnorm"
)

// Provider yields the features of one boundary dataset.
type Provider interface {
	Name() string
	Load(ctx context.Context) ([]model.BoundaryFeature, error)
}

// FeatureIDKey in FieldExtractor.IDKeys refers to the GeoJSON feature id
// rather than a property.
const FeatureIDKey = "feature.id"

// FieldExtractor picks the native id and display name of a feature from
// ordered candidate keys. The first candidate with a usable value wins.
type FieldExtractor struct {
	IDKeys   []string `yaml:"id_keys" mapstructure:"id_keys"`
	NameKeys []string `yaml:"name_keys" mapstructure:"name_keys"`
}

// DefaultFieldExtractor covers the folium world-countries layer and Natural
// Earth admin-0 files.
func DefaultFieldExtractor() FieldExtractor {
	return FieldExtractor{
		IDKeys:   []string{FeatureIDKey, "iso3", "ISO_A3", "iso_a3", "ADM0_A3"},
		NameKeys: []string{"name", "NAME", "ADMIN"},
	}
}

func (fx FieldExtractor) withDefaults() FieldExtractor {
	d := DefaultFieldExtractor()
	if len(fx.IDKeys) == 0 {
		fx.IDKeys = d.IDKeys
	}
	if len(fx.NameKeys) == 0 {
		fx.NameKeys = d.NameKeys
	}
	return fx
}

// ID returns the first candidate id that is not a missing-id sentinel, or "".
func (fx FieldExtractor) ID(featureID string, props map[string]any) string {
	for _, k := range fx.withDefaults().IDKeys {
		v := featureID
		if k != FeatureIDKey {
			v = propString(props, k)
		}
		if !reconcile.IsMissingID(v) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Name returns the first non-blank candidate name, or "".
func (fx FieldExtractor) Name(props map[string]any) string {
	for _, k := range fx.withDefaults().NameKeys {
		if v := strings.TrimSpace(propString(props, k)); v != "" {
			return v
		}
	}
	return ""
}

// Feature builds a BoundaryFeature from raw parts.
func (fx FieldExtractor) Feature(featureID string, props map[string]any) model.BoundaryFeature {
	return model.BoundaryFeature{
		FeatureID:   fx.ID(featureID, props),
		DisplayName: fx.Name(props),
		Properties:  props,
	}
}

func propString(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// Exclude drops features whose display name matches one of names
// (accent- and case-insensitive).
type Exclude []string

// DefaultExclude removes Antarctica, which dominates equal-area views and has
// no observations.
func DefaultExclude() Exclude {
	return Exclude{"Antarctica"}
}

// Apply returns the features that are not excluded, in order.
func (e Exclude) Apply(features []model.BoundaryFeature) []model.BoundaryFeature {
	if len(e) == 0 {
		return features
	}
	drop := make(map[string]bool, len(e))
	for _, n := range e {
		drop[textnorm.NameKey(n)] = true
	}
	out := make([]model.BoundaryFeature, 0, len(features))
	for _, f := range features {
		if drop[textnorm.NameKey(f.DisplayName)] {
			continue
		}
		out = append(out, f)
	}
	return out
}
