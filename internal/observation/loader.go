package observation

import (
	"bufio"
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth-cli/internal/fetcher"
	"github.com/sells-group/choropleth-cli/internal/model"
)

// Supported source formats.
const (
	FormatAuto = ""
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatJSON = "json"
)

// Loader reads observation tables from local paths or remote locations.
type Loader struct {
	fetch  fetcher.Fetcher
	cols   Columns
	format string
	sheet  string
	log    *zap.Logger
}

// Option customizes a Loader.
type Option func(*Loader)

// WithColumns overrides the source column names.
func WithColumns(c Columns) Option {
	return func(l *Loader) { l.cols = c.withDefaults() }
}

// WithFormat forces a format instead of inferring it from the location.
func WithFormat(format string) Option {
	return func(l *Loader) { l.format = strings.ToLower(format) }
}

// WithSheet selects a worksheet by name for XLSX sources.
func WithSheet(name string) Option {
	return func(l *Loader) { l.sheet = name }
}

// NewLoader creates a Loader that reads through f.
func NewLoader(f fetcher.Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetch: f,
		cols:  DefaultColumns(),
		log:   zap.L().With(zap.String("component", "observation")),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load reads every country-level observation at location. Missing columns or a
// country row without a code or period fail the whole batch with
// model.ErrMalformedInput.
func (l *Loader) Load(ctx context.Context, location string) ([]model.Observation, error) {
	format := l.format
	if format == FormatAuto {
		format = detectFormat(location)
	}

	p := &rowParser{cols: l.cols}
	var (
		obs []model.Observation
		err error
	)
	switch format {
	case FormatCSV:
		obs, err = l.loadCSV(ctx, location, p)
	case FormatXLSX:
		obs, err = l.loadXLSX(ctx, location, p)
	case FormatJSON:
		obs, err = l.loadJSON(ctx, location, p)
	default:
		return nil, eris.Errorf("observation: unsupported format %q for %s", format, location)
	}
	if err != nil {
		return nil, err
	}

	l.log.Info("observations loaded",
		zap.String("location", location),
		zap.String("format", format),
		zap.Int("rows", p.rows),
		zap.Int("country_rows", len(obs)),
		zap.Int("skipped_non_country", p.skipped),
		zap.Int("missing_value", p.noValue),
	)
	return obs, nil
}

// detectFormat infers the format from the location's extension. Remote
// locations without one are assumed to be the GHO API.
func detectFormat(location string) string {
	p := location
	if fetcher.IsRemote(location) {
		if u, err := url.Parse(location); err == nil {
			p = u.Path
		}
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	case ".json":
		return FormatJSON
	case "":
		if fetcher.IsRemote(location) {
			return FormatJSON
		}
	}
	return strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
}

func (l *Loader) loadCSV(ctx context.Context, location string, p *rowParser) ([]model.Observation, error) {
	body, err := l.fetch.Download(ctx, location)
	if err != nil {
		return nil, eris.Wrapf(err, "observation: open %s", location)
	}
	defer body.Close() //nolint:errcheck

	rowCh, errCh := fetcher.StreamCSV(ctx, body, fetcher.CSVOptions{LazyQuotes: true})
	return l.consumeRows(rowCh, errCh, p)
}

func (l *Loader) loadXLSX(ctx context.Context, location string, p *rowParser) ([]model.Observation, error) {
	local := location
	if fetcher.IsRemote(location) {
		dir, err := os.MkdirTemp("", "observations-*")
		if err != nil {
			return nil, eris.Wrap(err, "observation: create temp dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		local = filepath.Join(dir, "observations.xlsx")
		if _, err := l.fetch.DownloadToFile(ctx, location, local); err != nil {
			return nil, eris.Wrapf(err, "observation: download %s", location)
		}
	}

	rowCh, errCh := fetcher.StreamXLSX(ctx, local, fetcher.XLSXOptions{SheetName: l.sheet})
	return l.consumeRows(rowCh, errCh, p)
}

// consumeRows treats the first row as the header. It drains rowCh on failure
// so the producer goroutine can exit.
func (l *Loader) consumeRows(rowCh <-chan []string, errCh <-chan error, p *rowParser) ([]model.Observation, error) {
	var (
		idx      map[string]int
		obs      []model.Observation
		firstErr error
	)
	for row := range rowCh {
		if firstErr != nil {
			continue
		}
		if idx == nil {
			idx, firstErr = headerIndex(row, l.cols)
			continue
		}
		if blankRow(row) {
			continue
		}
		o, keep, err := p.parse(rowGetter(idx, row))
		if err != nil {
			firstErr = err
			continue
		}
		if keep {
			obs = append(obs, o)
		}
	}
	if err := <-errCh; err != nil && firstErr == nil {
		firstErr = eris.Wrap(err, "observation: read rows")
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if idx == nil {
		return nil, model.MalformedInput("observation: no header row")
	}
	return obs, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func (l *Loader) loadJSON(ctx context.Context, location string, p *rowParser) ([]model.Observation, error) {
	body, err := l.fetch.Download(ctx, location)
	if err != nil {
		return nil, eris.Wrapf(err, "observation: open %s", location)
	}
	defer body.Close() //nolint:errcheck

	records, err := decodeRecords(ctx, body)
	if err != nil {
		return nil, err
	}
	return l.fromRecords(records, p)
}

// FromRecords converts GHO records into observations.
func (l *Loader) FromRecords(records []Record) ([]model.Observation, error) {
	return l.fromRecords(records, &rowParser{cols: l.cols})
}

func (l *Loader) fromRecords(records []Record, p *rowParser) ([]model.Observation, error) {
	if len(records) > 0 {
		if err := checkRecordColumns(records[0], l.cols); err != nil {
			return nil, err
		}
	}
	obs := make([]model.Observation, 0, len(records))
	for _, r := range records {
		o, keep, err := p.parse(r.field)
		if err != nil {
			return nil, err
		}
		if keep {
			obs = append(obs, o)
		}
	}
	return obs, nil
}

// decodeRecords accepts either the OData envelope {"value": [...]} or a bare
// array of records.
func decodeRecords(ctx context.Context, r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	first, err := firstNonSpace(br)
	if err != nil {
		return nil, model.MalformedInput("observation: empty json document")
	}

	var (
		outCh <-chan Record
		errCh <-chan error
	)
	switch first {
	case '{':
		outCh, errCh = fetcher.DecodeJSONEnvelope[Record](ctx, br, "value")
	case '[':
		outCh, errCh = fetcher.DecodeJSONArray[Record](ctx, br)
	default:
		return nil, model.MalformedInput("observation: unexpected json start %q", first)
	}

	var records []Record
	for rec := range outCh {
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "observation: decode json")
	}
	return records, nil
}

func firstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
		case 0xEF:
			bom, err := br.Peek(3)
			if err == nil && bom[1] == 0xBB && bom[2] == 0xBF {
				_, _ = br.Discard(3)
				continue
			}
			return b[0], nil
		default:
			return b[0], nil
		}
	}
}
