package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/sells-group/choropleth-cli/internal/model"
	"github.com/sells-group/choropleth-cli/internal/tables"
)

// Periods lists the periods with at least one admissible observation,
// most recent first.
func (e *Engine) Periods() []int {
	seen := make(map[int]bool)
	for _, o := range e.obs {
		if o.Admissible() {
			seen[o.Period] = true
		}
	}
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// Categories lists the canonical categories present in the observations, in
// model.Categories order.
func (e *Engine) Categories() []model.Category {
	seen := make(map[model.Category]bool)
	for _, o := range e.obs {
		if o.Admissible() {
			seen[e.cats.NormalizeString(o.Category)] = true
		}
	}
	out := make([]model.Category, 0, len(model.Categories))
	for _, c := range model.Categories {
		if seen[c] {
			out = append(out, c)
		}
	}
	return out
}

// Selections is the cross product of Periods and Categories.
func (e *Engine) Selections() []model.Selection {
	periods := e.Periods()
	cats := e.Categories()
	out := make([]model.Selection, 0, len(periods)*len(cats))
	for _, p := range periods {
		for _, c := range cats {
			out = append(out, model.Selection{Period: p, Category: c})
		}
	}
	return out
}

// fingerprint hashes everything that affects a result.
func fingerprint(obs []model.Observation, features []model.BoundaryFeature, t *tables.Tables, opts Options) string {
	h := sha256.New()
	for _, o := range obs {
		v := "-"
		if o.Value != nil {
			v = strconv.FormatFloat(*o.Value, 'g', -1, 64)
		}
		fmt.Fprintf(h, "o|%s|%s|%d|%s|%s\n", o.DimensionType, o.CountryCode, o.Period, o.Category, v)
	}
	for _, f := range features {
		fmt.Fprintf(h, "f|%s|%s|", f.FeatureID, f.DisplayName)
		if f.Geometry != nil {
			fmt.Fprint(h, f.Geometry.FlatCoords())
		}
		fmt.Fprintln(h)
	}
	for _, c := range model.Categories {
		fmt.Fprintf(h, "s|%s|%v\n", c, t.Synonyms.ByCategory()[c])
	}
	for _, p := range t.Patches {
		fmt.Fprintf(h, "p|%s|%v|%s\n", p.Name, p.Aliases, p.CanonicalID)
	}
	fmt.Fprintf(h, "r|%v|%d|%s\n", opts.Reference, opts.Precision, opts.NoDataLabel)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
