package aggregate

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pharmareach-cli/internal/model"
	"github.com/sells-group/pharmareach-cli/internal/pipeline"
	"github.com/sells-group/pharmareach-cli/internal/store"
)

// Build computes one PhysicianAggregate per raw recipient identifier and
// replaces the physician_aggregates table. Commercial spend comes from
// grouped payments rows restricted to the target specialties; research
// spend left-joins on identifier and defaults to zero.
// Returns the number of aggregates written.
func Build(ctx context.Context, st store.Store) (int64, error) {
	log := zap.L().With(zap.String("stage", "aggregate"))

	groups, err := st.CommercialSpendGroups(ctx)
	if err != nil {
		return 0, err
	}
	if len(groups) == 0 {
		return 0, &pipeline.DegenerateInputError{Stage: "aggregate", Reason: "payments table is empty"}
	}

	research, err := st.ResearchSpendByRecipient(ctx)
	if err != nil {
		return 0, err
	}

	payerGroups, err := st.PayerSpendGroups(ctx)
	if err != nil {
		return 0, err
	}
	primary := ResolvePrimaryPayers(payerGroups)

	aggs := reduceGroups(groups)
	if len(aggs) == 0 {
		return 0, &pipeline.DegenerateInputError{Stage: "aggregate", Reason: "no rows match the target specialties"}
	}

	for i := range aggs {
		a := &aggs[i]
		a.ResearchCents = research[a.RecipientID]
		a.TotalCents = a.CommercialCents + a.ResearchCents
		a.PrimaryManufacturer = primary[a.RecipientID]

		if a.TotalCents != a.CommercialCents+a.ResearchCents || a.CommercialCents < 0 || a.ResearchCents < 0 {
			return 0, eris.Errorf("aggregate: spend invariant violated for %s", a.RecipientID)
		}
	}

	if err := st.ReplaceAggregates(ctx, aggs); err != nil {
		return 0, err
	}

	log.Info("aggregates built",
		zap.Int("physicians", len(aggs)),
		zap.Int("research_joined", len(research)),
	)
	return int64(len(aggs)), nil
}

// reduceGroups categorizes each grouped commercial-spend row and collapses
// the survivors to one aggregate per recipient identifier. An identifier
// seen under multiple buckets keeps the bucket holding most of its money;
// exact ties resolve by rule precedence. Name fields are first-seen in the
// store's sorted group order.
func reduceGroups(groups []store.SpendGroup) []model.PhysicianAggregate {
	type acc struct {
		agg       model.PhysicianAggregate
		perBucket map[string]int64
	}

	byID := make(map[string]*acc)
	var order []string

	for _, g := range groups {
		bucket, ok := CategorizeSpecialty(g.RawSpecialty)
		if !ok {
			continue
		}

		a, seen := byID[g.RecipientID]
		if !seen {
			a = &acc{
				agg: model.PhysicianAggregate{
					RecipientID: g.RecipientID,
					FirstName:   g.FirstName,
					LastName:    g.LastName,
				},
				perBucket: make(map[string]int64, 1),
			}
			byID[g.RecipientID] = a
			order = append(order, g.RecipientID)
		}
		a.agg.CommercialCents += g.AmountCents
		a.perBucket[bucket] += g.AmountCents
	}

	out := make([]model.PhysicianAggregate, 0, len(order))
	for _, id := range order {
		a := byID[id]
		a.agg.Specialty = dominantBucket(a.perBucket)
		out = append(out, a.agg)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out
}

// dominantBucket picks the bucket with the most spend, ties resolved by
// rule precedence order.
func dominantBucket(perBucket map[string]int64) string {
	var winner string
	var max int64 = -1
	for _, bucket := range Buckets() {
		if cents, ok := perBucket[bucket]; ok && cents > max {
			winner = bucket
			max = cents
		}
	}
	return winner
}
