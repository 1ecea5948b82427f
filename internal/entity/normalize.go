// Package entity consolidates per-identifier aggregates into one row per
// resolved physician.
package entity

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/pharmareach-cli/internal/store"
)

var titleCaser = cases.Title(language.AmericanEnglish)

// NormalizeCity trims whitespace and title-cases the raw city text, so
// "NEW YORK" and "new york " collapse to one value.
func NormalizeCity(raw string) string {
	return titleCaser.String(strings.ToLower(strings.TrimSpace(raw)))
}

// NormalizeState trims and upper-cases the raw state code.
func NormalizeState(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// NormalizeLocation applies both normalizations to a first-seen location.
func NormalizeLocation(l store.Location) store.Location {
	l.City = NormalizeCity(l.City)
	l.State = NormalizeState(l.State)
	return l
}
