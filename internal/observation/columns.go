// Package observation loads indicator rows from CSV, XLSX, or GHO OData JSON
// and downloads indicators from the WHO Global Health Observatory.
package observation

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Columns names the source fields that feed model.Observation. The defaults
// are the GHO OData field names.
type Columns struct {
	DimensionType string `yaml:"dimension_type" mapstructure:"dimension_type"`
	CountryCode   string `yaml:"country_code" mapstructure:"country_code"`
	Period        string `yaml:"period" mapstructure:"period"`
	Category      string `yaml:"category" mapstructure:"category"`
	Value         string `yaml:"value" mapstructure:"value"`
}

// DefaultColumns returns the GHO column names.
func DefaultColumns() Columns {
	return Columns{
		DimensionType: "SpatialDimType",
		CountryCode:   "SpatialDim",
		Period:        "TimeDim",
		Category:      "Dim1",
		Value:         "NumericValue",
	}
}

// withDefaults fills blank names from DefaultColumns.
func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.DimensionType == "" {
		c.DimensionType = d.DimensionType
	}
	if c.CountryCode == "" {
		c.CountryCode = d.CountryCode
	}
	if c.Period == "" {
		c.Period = d.Period
	}
	if c.Category == "" {
		c.Category = d.Category
	}
	if c.Value == "" {
		c.Value = d.Value
	}
	return c
}

func (c Columns) names() []string {
	return []string{c.DimensionType, c.CountryCode, c.Period, c.Category, c.Value}
}

// Validate rejects duplicate column names.
func (c Columns) Validate() error {
	seen := make(map[string]bool, 5)
	for _, n := range c.withDefaults().names() {
		k := strings.ToLower(n)
		if seen[k] {
			return eris.Errorf("observation: column %q mapped twice", n)
		}
		seen[k] = true
	}
	return nil
}
