package entity

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pharmareach-cli/internal/model"
	"github.com/sells-group/pharmareach-cli/internal/pipeline"
	"github.com/sells-group/pharmareach-cli/internal/store"
)

// Build resolves the aggregate table into one entity per physician and
// replaces physician_entities. Returns the number of entities written.
func Build(ctx context.Context, st store.Store) (int64, error) {
	log := zap.L().With(zap.String("stage", "consolidate"))

	aggs, err := st.ListAggregates(ctx)
	if err != nil {
		return 0, err
	}
	if len(aggs) == 0 {
		return 0, &pipeline.DegenerateInputError{Stage: "consolidate", Reason: "physician_aggregates table is empty"}
	}

	locs, err := st.FirstSeenLocations(ctx)
	if err != nil {
		return 0, err
	}
	locByID := make(map[string]store.Location, len(locs))
	for _, l := range locs {
		locByID[l.RecipientID] = NormalizeLocation(l)
	}

	segs, err := st.ListSegments(ctx)
	if err != nil {
		return 0, err
	}
	if len(segs) == 0 {
		log.Warn("segments table is empty, entities get no segment or influence data")
	}

	entities := Consolidate(aggs, locByID, segs)

	// Money must survive the merge exactly: the summed totals across
	// entities and across pre-merge aggregates have to agree in cents.
	var aggTotal, entTotal int64
	for _, a := range aggs {
		aggTotal += a.TotalCents
	}
	for _, e := range entities {
		entTotal += e.TotalCents
	}
	if aggTotal != entTotal {
		return 0, eris.Errorf("consolidate: merge lost money: aggregates %d cents, entities %d cents", aggTotal, entTotal)
	}

	if err := st.ReplaceEntities(ctx, entities); err != nil {
		return 0, err
	}

	log.Info("entities consolidated",
		zap.Int("aggregates", len(aggs)),
		zap.Int("entities", len(entities)),
	)
	return int64(len(entities)), nil
}

// entityKey identifies one resolved physician. Consolidating on exact
// (full name, specialty) is a deliberate heuristic: the disclosure data
// hands the same human a fresh identifier per reporting entity. It will
// collide distinct physicians sharing a name and specialty, and will miss
// merges when a name is spelled inconsistently.
type entityKey struct {
	fullName  string
	specialty string
}

type entityAcc struct {
	entity      model.PhysicianEntity
	loyaltySum  float64
	constituent int
}

// Consolidate merges aggregates sharing (full name, specialty) into one
// PhysicianEntity each. Reducers per field: first-seen for identifier,
// location, segment and manufacturer; sum for money; max for influence;
// mean for loyalty. log_total_spend is recomputed from the summed total —
// reusing a pre-merge log value would be wrong once totals are combined.
// Input order fixes first-seen semantics; callers pass aggregates sorted
// by recipient identifier. Output is sorted by (full name, specialty).
func Consolidate(aggs []model.PhysicianAggregate, locByID map[string]store.Location, segs map[string]model.Segment) []model.PhysicianEntity {
	byKey := make(map[entityKey]*entityAcc)
	var order []entityKey

	for _, a := range aggs {
		key := entityKey{fullName: a.FullName(), specialty: a.Specialty}
		seg := segs[a.RecipientID]

		acc, seen := byKey[key]
		if !seen {
			loc := locByID[a.RecipientID]
			acc = &entityAcc{
				entity: model.PhysicianEntity{
					RecipientID:         a.RecipientID,
					FullName:            key.fullName,
					Specialty:           key.specialty,
					City:                loc.City,
					State:               loc.State,
					SegmentName:         seg.SegmentName,
					PrimaryManufacturer: a.PrimaryManufacturer,
				},
			}
			byKey[key] = acc
			order = append(order, key)
		}

		acc.entity.CommercialCents += a.CommercialCents
		acc.entity.ResearchCents += a.ResearchCents
		acc.entity.TotalCents += a.TotalCents
		if seg.InfluenceRatio > acc.entity.InfluenceRatio {
			acc.entity.InfluenceRatio = seg.InfluenceRatio
		}
		acc.loyaltySum += seg.MfgLoyaltyPct
		acc.constituent++
	}

	out := make([]model.PhysicianEntity, 0, len(order))
	for _, key := range order {
		acc := byKey[key]
		acc.entity.MfgLoyaltyPct = acc.loyaltySum / float64(acc.constituent)
		acc.entity.LogTotalSpend = math.Log1p(model.CentsToDollars(acc.entity.TotalCents))
		out = append(out, acc.entity)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FullName != out[j].FullName {
			return out[i].FullName < out[j].FullName
		}
		return out[i].Specialty < out[j].Specialty
	})
	return out
}
