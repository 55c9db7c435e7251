package observation

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/choropleth-cli/internal/model"
)

// Record is one row of a GHO OData response, keyed by field name.
type Record map[string]any

// field returns the named field as text, matching the name exactly first and
// then case-insensitively. JSON null reads as "".
func (r Record) field(name string) (string, bool) {
	v, ok := r[name]
	if !ok {
		for k, kv := range r {
			if strings.EqualFold(k, name) {
				v, ok = kv, true
				break
			}
		}
	}
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", true
	}
}

// checkRecordColumns reports the required columns absent from r.
func checkRecordColumns(r Record, cols Columns) error {
	var missing []string
	for _, name := range cols.names() {
		if _, ok := r.field(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return model.MalformedInput("observation: missing required columns %s", strings.Join(missing, ", "))
	}
	return nil
}

// recordColumns returns the union of field names, required columns first in
// their canonical order, the rest sorted.
func recordColumns(records []Record, cols Columns) []string {
	out := cols.names()
	seen := make(map[string]bool, len(out))
	for _, c := range out {
		seen[c] = true
	}
	var extra []string
	for _, r := range records {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
