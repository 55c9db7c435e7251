// Package export renders engine results for the map layer: an annotated
// GeoJSON FeatureCollection and a CSV of countries without data.
package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/choropleth-cli/internal/engine"
	"github.com/sells-group/choropleth-cli/internal/model"
)

// Feature property names written on every feature.
const (
	PropName        = "name"
	PropCanonicalID = "canonical_id"
	PropValue       = "value"
	PropValueLabel  = "value_label"
	PropBin         = "bin"
)

// GeoJSONOptions controls what WriteGeoJSON includes.
type GeoJSONOptions struct {
	// SourceProperties copies the boundary dataset's own properties onto each
	// feature before the annotated ones are set.
	SourceProperties bool
	// Indent pretty-prints the output.
	Indent bool
}

// collection is a FeatureCollection with the selection and scale as foreign
// members so the map layer can build its legend without a second request.
type collection struct {
	Type      string             `json:"type"`
	Period    int                `json:"period"`
	Category  model.Category     `json:"category"`
	Empty     bool               `json:"empty"`
	Bins      model.BinEdges     `json:"bins"`
	BinLabels []string           `json:"bin_labels"`
	Features  []*geojson.Feature `json:"features"`
}

// MarshalGeoJSON encodes a result as a FeatureCollection.
func MarshalGeoJSON(res *engine.Result, opts GeoJSONOptions) ([]byte, error) {
	if res == nil {
		return nil, eris.New("export: nil result")
	}
	fc := collection{
		Type:      "FeatureCollection",
		Period:    res.Selection.Period,
		Category:  res.Selection.Category,
		Empty:     res.Empty,
		Bins:      res.Bins,
		BinLabels: res.BinLabels,
		Features:  make([]*geojson.Feature, 0, len(res.Features)),
	}
	if fc.Bins == nil {
		fc.Bins = model.BinEdges{}
	}
	if fc.BinLabels == nil {
		fc.BinLabels = []string{}
	}
	for _, af := range res.Features {
		fc.Features = append(fc.Features, feature(af, opts.SourceProperties))
	}

	var (
		data []byte
		err  error
	)
	if opts.Indent {
		data, err = json.MarshalIndent(fc, "", "  ")
	} else {
		data, err = json.Marshal(fc)
	}
	if err != nil {
		return nil, eris.Wrap(err, "export: marshal geojson")
	}
	return data, nil
}

// WriteGeoJSON writes MarshalGeoJSON's output to w.
func WriteGeoJSON(w io.Writer, res *engine.Result, opts GeoJSONOptions) error {
	data, err := MarshalGeoJSON(res, opts)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "export: write geojson")
	}
	return nil
}

func feature(af model.AnnotatedFeature, source bool) *geojson.Feature {
	props := make(map[string]any, len(af.Feature.Properties)+5)
	if source {
		for k, v := range af.Feature.Properties {
			props[k] = v
		}
	}
	props[PropName] = af.Feature.DisplayName
	props[PropCanonicalID] = af.CanonicalID
	props[PropValueLabel] = af.Label
	props[PropBin] = af.Bin
	if af.Value != nil {
		props[PropValue] = *af.Value
	} else {
		props[PropValue] = nil
	}
	return &geojson.Feature{
		ID:         af.CanonicalID,
		Geometry:   af.Feature.Geometry,
		Properties: props,
	}
}
