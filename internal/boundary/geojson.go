package boundary

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth-cli/internal/fetcher"
	"github.com/sells-group/choropleth-cli/internal/model"
)

// GeoJSON reads a FeatureCollection from a local path or an http(s)/ftp URL.
type GeoJSON struct {
	Location string
	Fields   FieldExtractor
	fetch    fetcher.Fetcher
}

// NewGeoJSON creates a GeoJSON provider.
func NewGeoJSON(f fetcher.Fetcher, location string, fields FieldExtractor) *GeoJSON {
	return &GeoJSON{Location: location, Fields: fields, fetch: f}
}

// Name identifies the provider in logs and errors.
func (g *GeoJSON) Name() string {
	return "geojson:" + g.Location
}

// Load downloads and decodes the collection.
func (g *GeoJSON) Load(ctx context.Context) ([]model.BoundaryFeature, error) {
	body, err := g.fetch.Download(ctx, g.Location)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open %s", g.Location)
	}
	defer body.Close() //nolint:errcheck

	raw, err := fetcher.DecodeJSONObject[rawCollection](body)
	if err != nil {
		return nil, model.MalformedInput("boundary: decode %s: %v", g.Location, err)
	}
	return raw.features(g.Fields)
}

// rawCollection keeps geometries undecoded so a single bad geometry drops
// its feature instead of the whole layer.
type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

type rawFeature struct {
	ID         json.RawMessage `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

func (rc *rawCollection) features(fx FieldExtractor) ([]model.BoundaryFeature, error) {
	if !strings.EqualFold(rc.Type, "FeatureCollection") {
		return nil, model.MalformedInput("boundary: expected FeatureCollection, got %q", rc.Type)
	}

	out := make([]model.BoundaryFeature, 0, len(rc.Features))
	var skipped int
	for i, rf := range rc.Features {
		g, err := decodeGeometry(rf.Geometry)
		if err != nil || g == nil {
			skipped++
			zap.L().Debug("boundary: skipping feature without usable geometry", zap.Int("index", i), zap.Error(err))
			continue
		}
		f := fx.Feature(rawID(rf.ID), rf.Properties)
		f.Geometry = g
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, model.MalformedInput("boundary: no parsable geometry in %d features", len(rc.Features))
	}
	if skipped > 0 {
		zap.L().Warn("boundary: features without geometry dropped", zap.Int("skipped", skipped))
	}
	return out, nil
}

func decodeGeometry(raw json.RawMessage) (geom.T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return g, nil
	default:
		return nil, eris.Errorf("boundary: unsupported geometry %T", g)
	}
}

// rawID renders a string or numeric feature id as text.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
