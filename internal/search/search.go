// Package search implements the dashboard consumption contract over the
// derived entity table: filter, rank by lead score, cap, and report the
// dominant payer across the filtered market.
package search

import (
	"context"
	"sort"

	"github.com/sells-group/pharmareach-cli/internal/model"
	"github.com/sells-group/pharmareach-cli/internal/store"
)

// DefaultLimit caps the ranked target list.
const DefaultLimit = 5

// Query specifies a high-value-target search. Specialty matches exactly;
// City is a case-insensitive substring match. A zero Limit means
// DefaultLimit.
type Query struct {
	Specialty string `json:"specialty"`
	City      string `json:"city"`
	Limit     int    `json:"limit"`
}

// Target is one ranked entity plus its display metrics.
type Target struct {
	Entity        model.PhysicianEntity `json:"entity"`
	ScientificPct float64               `json:"scientific_pct"`
}

// Result is the outcome of one search. Matched counts the full filtered
// set, of which Targets holds only the ranked top slice. DominantPayer is
// the manufacturer with the largest summed total spend across the full
// filtered set, not just the top targets; empty when nothing matched.
type Result struct {
	Targets       []Target `json:"targets"`
	Matched       int      `json:"matched"`
	DominantPayer string   `json:"dominant_payer,omitempty"`
}

// Run executes the query against the store.
func Run(ctx context.Context, st store.Store, q Query) (*Result, error) {
	matches, err := st.ListEntities(ctx, store.EntityFilter{
		Specialty: q.Specialty,
		City:      q.City,
	})
	if err != nil {
		return nil, err
	}
	return Rank(matches, q.Limit), nil
}

// Rank orders matches by lead score descending (full name breaks ties for
// stable output) and caps the target list at limit.
func Rank(matches []model.PhysicianEntity, limit int) *Result {
	if limit <= 0 {
		limit = DefaultLimit
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].LeadScore != matches[j].LeadScore {
			return matches[i].LeadScore > matches[j].LeadScore
		}
		return matches[i].FullName < matches[j].FullName
	})

	res := &Result{
		Matched:       len(matches),
		DominantPayer: dominantPayer(matches),
	}

	top := matches
	if len(top) > limit {
		top = top[:limit]
	}
	res.Targets = make([]Target, 0, len(top))
	for _, e := range top {
		res.Targets = append(res.Targets, Target{
			Entity:        e,
			ScientificPct: e.ScientificPct(),
		})
	}
	return res
}

// dominantPayer is the argmax of summed total spend grouped by primary
// manufacturer. Alphabetical tie-break keeps the answer deterministic.
func dominantPayer(matches []model.PhysicianEntity) string {
	if len(matches) == 0 {
		return ""
	}

	sums := make(map[string]int64)
	for _, e := range matches {
		sums[e.PrimaryManufacturer] += e.TotalCents
	}

	var winner string
	var max int64 = -1
	for payer, cents := range sums {
		if cents > max || (cents == max && payer < winner) {
			winner = payer
			max = cents
		}
	}
	return winner
}
