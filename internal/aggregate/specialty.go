// Package aggregate builds per-identifier physician aggregates from the
// raw payment tables: spend sums, specialty buckets, and the dominant
// paying manufacturer.
package aggregate

import "strings"

// Target specialty buckets.
const (
	SpecialtyOncology   = "Oncology"
	SpecialtyCardiology = "Cardiology"
	SpecialtyNeurology  = "Neurology"
)

// specialtyRule maps a substring of the raw specialty text to a bucket.
type specialtyRule struct {
	pattern string
	bucket  string
}

// specialtyRules is ordered; the first matching rule wins, so text like
// "Medical Oncology; Cardiovascular Disease" classifies as Oncology.
var specialtyRules = []specialtyRule{
	{pattern: "oncology", bucket: SpecialtyOncology},
	{pattern: "cardiovascular", bucket: SpecialtyCardiology},
	{pattern: "neurology", bucket: SpecialtyNeurology},
}

// CategorizeSpecialty maps raw specialty text onto one of the target
// buckets. Matching is case-insensitive substring, first-match-wins.
// The second return value is false for specialties outside the target set.
func CategorizeSpecialty(raw string) (string, bool) {
	lower := strings.ToLower(raw)
	for _, r := range specialtyRules {
		if strings.Contains(lower, r.pattern) {
			return r.bucket, true
		}
	}
	return "", false
}

// Buckets lists the target specialty buckets in precedence order.
func Buckets() []string {
	out := make([]string, len(specialtyRules))
	for i, r := range specialtyRules {
		out[i] = r.bucket
	}
	return out
}
