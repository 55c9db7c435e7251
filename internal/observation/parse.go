package observation

import (
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/choropleth-cli/internal/model"
)

// getter returns a field of the current row and whether the row has it.
type getter func(name string) (string, bool)

// rowParser converts source rows into observations and tallies what it skips.
type rowParser struct {
	cols    Columns
	rows    int
	skipped int
	noValue int
}

// parse returns the observation for one row. keep is false for rows that are
// not country-level; they carry nothing the engine can use. A country row
// without a country code or a usable period is malformed.
func (p *rowParser) parse(get getter) (obs model.Observation, keep bool, err error) {
	p.rows++

	dim, _ := get(p.cols.DimensionType)
	dim = strings.TrimSpace(dim)
	if !strings.EqualFold(dim, model.DimensionCountry) {
		p.skipped++
		return model.Observation{}, false, nil
	}

	code, _ := get(p.cols.CountryCode)
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.Observation{}, false, model.MalformedInput("observation: row %d: empty %s", p.rows, p.cols.CountryCode)
	}

	rawPeriod, _ := get(p.cols.Period)
	period, ok := parsePeriod(rawPeriod)
	if !ok {
		return model.Observation{}, false, model.MalformedInput("observation: row %d: bad %s %q", p.rows, p.cols.Period, rawPeriod)
	}

	cat, _ := get(p.cols.Category)
	rawValue, _ := get(p.cols.Value)
	value := parseValue(rawValue)
	if value == nil {
		p.noValue++
	}

	return model.Observation{
		DimensionType: model.DimensionCountry,
		CountryCode:   code,
		Period:        period,
		Category:      strings.TrimSpace(cat),
		Value:         value,
	}, true, nil
}

// parsePeriod accepts integer years, including the "2019.0" spelling that
// spreadsheet round trips produce.
func parsePeriod(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// parseValue returns nil for anything that is not a finite number.
func parseValue(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil
	}
	return &f
}

// headerIndex maps column names to positions, case-insensitively and ignoring
// surrounding whitespace. Missing required columns are malformed input.
func headerIndex(header []string, cols Columns) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		k := strings.ToLower(strings.TrimSpace(h))
		if _, dup := byName[k]; !dup {
			byName[k] = i
		}
	}

	idx := make(map[string]int, 5)
	var missing []string
	for _, name := range cols.names() {
		i, ok := byName[strings.ToLower(name)]
		if !ok {
			missing = append(missing, name)
			continue
		}
		idx[name] = i
	}
	if len(missing) > 0 {
		return nil, model.MalformedInput("observation: missing required columns %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func rowGetter(idx map[string]int, row []string) getter {
	return func(name string) (string, bool) {
		i, ok := idx[name]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}
}
