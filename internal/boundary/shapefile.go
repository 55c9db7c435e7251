package boundary

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth-cli/internal/fetcher"
	"github.com/sells-group/choropleth-cli/internal/model"
)

// Shapefile reads polygons from a zipped shapefile (local or remote) or from
// a bare .shp path with its sidecar files next to it.
type Shapefile struct {
	Location string
	Fields   FieldExtractor
	fetch    fetcher.Fetcher
}

// NewShapefile creates a Shapefile provider.
func NewShapefile(f fetcher.Fetcher, location string, fields FieldExtractor) *Shapefile {
	return &Shapefile{Location: location, Fields: fields, fetch: f}
}

// Name identifies the provider in logs and errors.
func (s *Shapefile) Name() string {
	return "shapefile:" + s.Location
}

// Load extracts the archive into a temp dir and reads every polygon record.
func (s *Shapefile) Load(ctx context.Context) ([]model.BoundaryFeature, error) {
	if strings.EqualFold(filepath.Ext(s.Location), ".shp") && !fetcher.IsRemote(s.Location) {
		return readShapefile(s.Location, s.Fields)
	}

	dir, err := os.MkdirTemp("", "boundary-*")
	if err != nil {
		return nil, eris.Wrap(err, "boundary: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	zipPath := filepath.Join(dir, "layer.zip")
	if _, err := s.fetch.DownloadToFile(ctx, s.Location, zipPath); err != nil {
		return nil, eris.Wrapf(err, "boundary: download %s", s.Location)
	}

	files, err := fetcher.ExtractZIP(zipPath, filepath.Join(dir, "layer"))
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: extract %s", s.Location)
	}
	shpPath := fetcher.FindByExt(files, ".shp")
	if shpPath == "" {
		return nil, model.MalformedInput("boundary: no .shp file in %s", s.Location)
	}
	return readShapefile(shpPath, s.Fields)
}

func readShapefile(path string, fx FieldExtractor) ([]model.BoundaryFeature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", filepath.Base(path))
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var (
		out     []model.BoundaryFeature
		records int
	)
	for reader.Next() {
		records++
		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			continue
		}

		props := make(map[string]any, len(names))
		for i, n := range names {
			props[n] = strings.TrimSpace(reader.Attribute(i))
		}
		f := fx.Feature("", props)
		f.Geometry = g
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, model.MalformedInput("boundary: no polygon geometry in %d shapefile records", records)
	}

	zap.L().Debug("boundary: shapefile read", zap.String("path", path), zap.Int("records", records), zap.Int("features", len(out)))
	return out, nil
}

// shapeToGeom converts a shapefile polygon to a MultiPolygon with holes
// attached to the outer ring that precedes them. Shapefile outer rings wind
// clockwise (negative signed area) and holes counter-clockwise.
func shapeToGeom(shape shp.Shape) geom.T {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	var current *geom.Polygon
	flush := func() {
		if current == nil {
			return
		}
		if err := mp.Push(current); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon", zap.Error(err))
		}
		current = nil
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for _, pt := range p.Points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)

		if signedArea(flat) <= 0 || current == nil {
			flush()
			current = geom.NewPolygon(geom.XY)
		}
		if err := current.Push(ring); err != nil {
			zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is the shoelace area of a flat XY ring; positive when
// counter-clockwise.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return sum / 2
}
