package model

import (
	"github.com/rotisserie/eris"
)

// Category is the closed set of canonical demographic categories.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryBoth
	CategoryMale
	CategoryFemale
)

// Categories lists the known canonical categories in display order.
var Categories = []Category{CategoryBoth, CategoryMale, CategoryFemale}

var categoryCodes = map[Category]string{
	CategoryUnknown: "unknown",
	CategoryBoth:    "BOTH",
	CategoryMale:    "MALE",
	CategoryFemale:  "FEMALE",
}

var categoryLabels = map[Category]string{
	CategoryUnknown: "Unknown",
	CategoryBoth:    "Both sexes",
	CategoryMale:    "Male",
	CategoryFemale:  "Female",
}

// String returns the canonical code.
func (c Category) String() string {
	if s, ok := categoryCodes[c]; ok {
		return s
	}
	return categoryCodes[CategoryUnknown]
}

// Label returns a human-readable name.
func (c Category) Label() string {
	if s, ok := categoryLabels[c]; ok {
		return s
	}
	return categoryLabels[CategoryUnknown]
}

// Known reports whether c is one of the canonical categories.
func (c Category) Known() bool {
	return c == CategoryBoth || c == CategoryMale || c == CategoryFemale
}

// MarshalText encodes the canonical code.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts canonical codes only; free-form spellings go through
// the category normalizer.
func (c *Category) UnmarshalText(b []byte) error {
	for k, v := range categoryCodes {
		if v == string(b) {
			*c = k
			return nil
		}
	}
	return eris.Errorf("model: unknown category code %q", string(b))
}
