// Package tables loads the static synonym and patch tables the engine is
// configured with. Tables are read once at startup and never mutated.
package tables

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/choropleth-cli/internal/model"
	"github.com/sells-group/choropleth-cli/internal/textnorm"
)

//go:embed defaults.yaml
var defaultTables []byte

// Synonyms lists raw spellings per canonical category.
type Synonyms struct {
	Both   []string `yaml:"both"`
	Male   []string `yaml:"male"`
	Female []string `yaml:"female"`
}

// ByCategory returns the synonym lists keyed by canonical category.
func (s Synonyms) ByCategory() map[model.Category][]string {
	return map[model.Category][]string{
		model.CategoryBoth:   s.Both,
		model.CategoryMale:   s.Male,
		model.CategoryFemale: s.Female,
	}
}

// Tables is the full static configuration of the engine.
type Tables struct {
	Synonyms Synonyms          `yaml:"synonyms"`
	Patches  []model.PatchRule `yaml:"patches"`
}

// Default returns the embedded tables.
func Default() (*Tables, error) {
	return parse(defaultTables)
}

// Load reads tables from a YAML file. An empty path yields the embedded defaults.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tables: read %s", path)
	}
	return parse(data)
}

func parse(data []byte) (*Tables, error) {
	// The file has a top-level "tables" key.
	var wrapper struct {
		Tables Tables `yaml:"tables"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "tables: parse")
	}

	t := &wrapper.Tables
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for i := range t.Patches {
		t.Patches[i].CanonicalID = strings.ToUpper(strings.TrimSpace(t.Patches[i].CanonicalID))
	}
	return t, nil
}

// Validate checks that no spelling maps to two categories and that every patch
// has a name and a canonical id, with no name or alias claimed twice.
func (t *Tables) Validate() error {
	seen := make(map[string]model.Category)
	for cat, list := range t.Synonyms.ByCategory() {
		for _, raw := range list {
			key := textnorm.Compact(raw)
			if key == "" {
				return eris.Errorf("tables: empty synonym for %s", cat)
			}
			if prev, ok := seen[key]; ok && prev != cat {
				return eris.Errorf("tables: synonym %q maps to both %s and %s", raw, prev, cat)
			}
			seen[key] = cat
		}
	}

	names := make(map[string]string)
	for _, p := range t.Patches {
		if strings.TrimSpace(p.Name) == "" {
			return eris.New("tables: patch with empty name")
		}
		if strings.TrimSpace(p.CanonicalID) == "" {
			return eris.Errorf("tables: patch %q has no canonical_id", p.Name)
		}
		for _, n := range append([]string{p.Name}, p.Aliases...) {
			key := textnorm.NameKey(n)
			if owner, ok := names[key]; ok {
				return eris.Errorf("tables: patch name %q already used by %q", n, owner)
			}
			names[key] = p.Name
		}
	}
	return nil
}
