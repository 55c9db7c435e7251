// Package category maps free-form spellings of the demographic dimension onto
// the closed set of canonical categories.
package category

import (
	"sort"

	"github.com/sells-group/choropleth-cli/internal/model"
	"github.com/sells-group/choropleth-cli/internal/textnorm"
)

// Normalizer resolves raw category strings against an immutable synonym table.
type Normalizer struct {
	synonyms  map[string]model.Category
	canonical map[string]model.Category
}

// NewNormalizer builds a Normalizer from synonym lists keyed by category.
// Lists are copied; later changes to the input have no effect.
func NewNormalizer(synonyms map[model.Category][]string) *Normalizer {
	n := &Normalizer{
		synonyms:  make(map[string]model.Category),
		canonical: make(map[string]model.Category, len(model.Categories)),
	}
	for _, c := range model.Categories {
		n.canonical[c.String()] = c
	}
	for cat, list := range synonyms {
		if !cat.Known() {
			continue
		}
		for _, raw := range list {
			if key := textnorm.Compact(raw); key != "" {
				n.synonyms[key] = cat
			}
		}
	}
	return n
}

// Normalize resolves a possibly missing raw value. Missing input is Unknown.
func (n *Normalizer) Normalize(raw *string) model.Category {
	if raw == nil {
		return model.CategoryUnknown
	}
	return n.NormalizeString(*raw)
}

// NormalizeString resolves a raw value. Canonical codes are returned as-is
// before any folding so normalization is idempotent on its own output.
func (n *Normalizer) NormalizeString(raw string) model.Category {
	if c, ok := n.canonical[raw]; ok {
		return c
	}
	key := textnorm.Compact(raw)
	if key == "" {
		return model.CategoryUnknown
	}
	for code, c := range n.canonical {
		if key == textnorm.Compact(code) {
			return c
		}
	}
	if c, ok := n.synonyms[key]; ok {
		return c
	}
	return model.CategoryUnknown
}

// Unmatched returns the distinct raw strings that normalize to Unknown, sorted.
func (n *Normalizer) Unmatched(raws []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range raws {
		if seen[raw] {
			continue
		}
		seen[raw] = true
		if n.NormalizeString(raw) == model.CategoryUnknown {
			out = append(out, raw)
		}
	}
	sort.Strings(out)
	return out
}
