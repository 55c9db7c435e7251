// Package reconcile maps observation and boundary identifiers onto a single
// canonical country-code space.
//
// Reconciliation is one-way: observation codes are authoritative and only
// canonicalized, while boundary identifiers are first-guessed from the
// dataset and then overridden by an explicit patch table keyed on display
// names.
package reconcile

import (
	"sort"
	"strings"

	"github.com/sells-group/choropleth-cli/internal/model"
	"github.com/sells-group/choropleth-cli/internal/textnorm"
)

// missingIDs are native identifiers that boundary datasets use to mean "none".
var missingIDs = map[string]bool{
	"":     true,
	"-99":  true,
	"-1":   true,
	"NULL": true,
	"NONE": true,
	"N/A":  true,
}

// PatchTable is an immutable lookup from display name or alias to canonical id.
type PatchTable struct {
	byName map[string]string
	rules  []model.PatchRule
}

// NewPatchTable indexes rules by folded name and aliases. Later rules do not
// override earlier ones; the tables package rejects duplicate names up front.
func NewPatchTable(rules []model.PatchRule) *PatchTable {
	pt := &PatchTable{
		byName: make(map[string]string, len(rules)),
		rules:  make([]model.PatchRule, len(rules)),
	}
	copy(pt.rules, rules)
	for _, r := range rules {
		id := canonical(r.CanonicalID)
		if id == "" {
			continue
		}
		for _, n := range append([]string{r.Name}, r.Aliases...) {
			key := textnorm.NameKey(n)
			if key == "" {
				continue
			}
			if _, ok := pt.byName[key]; !ok {
				pt.byName[key] = id
			}
		}
	}
	return pt
}

// Lookup returns the patched id for a display name.
func (pt *PatchTable) Lookup(name string) (string, bool) {
	if pt == nil {
		return "", false
	}
	id, ok := pt.byName[textnorm.NameKey(name)]
	return id, ok
}

// Rules returns a copy of the configured rules.
func (pt *PatchTable) Rules() []model.PatchRule {
	if pt == nil {
		return nil
	}
	out := make([]model.PatchRule, len(pt.rules))
	copy(out, pt.rules)
	return out
}

// Reconciler canonicalizes identifiers from both datasets.
type Reconciler struct {
	patches *PatchTable
}

// New creates a Reconciler with the given patch table (may be nil).
func New(patches *PatchTable) *Reconciler {
	return &Reconciler{patches: patches}
}

// Observation canonicalizes an observation-side country code.
func (r *Reconciler) Observation(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Boundary returns the canonical id for a boundary feature, or "" when the
// feature has neither a usable native id nor a matching patch.
func (r *Reconciler) Boundary(f model.BoundaryFeature) string {
	if id, ok := r.patches.Lookup(f.DisplayName); ok {
		return id
	}
	return canonical(f.FeatureID)
}

// Patched reports whether the feature's id comes from the patch table.
func (r *Reconciler) Patched(f model.BoundaryFeature) bool {
	_, ok := r.patches.Lookup(f.DisplayName)
	return ok
}

// IsMissingID reports whether a native identifier is one of the "none"
// sentinels boundary datasets use.
func IsMissingID(id string) bool {
	return missingIDs[strings.ToUpper(strings.TrimSpace(id))]
}

func canonical(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	if missingIDs[id] {
		return ""
	}
	return id
}

// Unreconciled lists boundary features without a value and aggregated codes
// that no feature claimed. Both lists are sorted for stable output.
func (r *Reconciler) Unreconciled(features []model.BoundaryFeature, aggregated []model.AggregatedValue) model.Diagnostics {
	have := make(map[string]bool, len(aggregated))
	for _, a := range aggregated {
		have[a.CountryCode] = true
	}

	claimed := make(map[string]bool, len(features))
	diag := model.Diagnostics{
		UnmatchedFeatures: []model.UnmatchedFeature{},
		UnmatchedCodes:    []string{},
	}
	for _, f := range features {
		id := r.Boundary(f)
		if id != "" {
			claimed[id] = true
		}
		if id == "" || !have[id] {
			diag.UnmatchedFeatures = append(diag.UnmatchedFeatures, model.UnmatchedFeature{
				Name:        f.DisplayName,
				CanonicalID: id,
			})
		}
	}
	for _, a := range aggregated {
		if !claimed[a.CountryCode] {
			diag.UnmatchedCodes = append(diag.UnmatchedCodes, a.CountryCode)
		}
	}

	sort.Slice(diag.UnmatchedFeatures, func(i, j int) bool {
		return diag.UnmatchedFeatures[i].Name < diag.UnmatchedFeatures[j].Name
	})
	sort.Strings(diag.UnmatchedCodes)
	return diag
}
