// Package model defines the records that flow through the petroleum ETL pipeline.
package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Category tags one of the two disjoint transaction streams.
type Category string

const (
	CategoryBDC Category = "BDC" // bulk distribution companies
	CategoryOMC Category = "OMC" // oil marketing companies
)

// Categories lists every category in load order.
var Categories = []Category{CategoryBDC, CategoryOMC}

// String returns the category tag.
func (c Category) String() string { return string(c) }

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryBDC || c == CategoryOMC
}

// ParseCategory converts "bdc", "OMC", etc. into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", eris.Errorf("unknown category: %q (valid: BDC, OMC)", s)
	}
	return c, nil
}

// CompanyKey identifies a company dimension row. Local IDs are only unique
// within a category, so the pair is the key.
type CompanyKey struct {
	Category Category `json:"category"`
	LocalID  int      `json:"local_id"`
}
