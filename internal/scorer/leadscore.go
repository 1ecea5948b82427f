// Package scorer computes the composite lead score over the consolidated
// entity population.
package scorer

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/pharmareach-cli/internal/model"
	"github.com/sells-group/pharmareach-cli/internal/pipeline"
	"github.com/sells-group/pharmareach-cli/internal/store"
)

// The lead score blends financial scale with scientific influence 70/30.
// Influence is expressed in [0, 1], so its scaled contribution tops out at
// influenceWeight and the combined score stays in [0, 100].
const (
	spendWeight     = 0.7
	influenceWeight = 30.0

	scaleMin = 0.0
	scaleMax = 100.0

	// neutralScaled is emitted when min-max scaling is undefined: a
	// single-entity population, or one where every entity has identical
	// log spend.
	neutralScaled = 50.0
)

// MinMaxScale maps vals linearly onto [scaleMin, scaleMax], population min
// to scaleMin and max to scaleMax. A zero-range population maps every
// value to neutralScaled instead of dividing by zero.
func MinMaxScale(vals []float64) []float64 {
	out := make([]float64, len(vals))
	if len(vals) == 0 {
		return out
	}

	min, max := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	if min == max {
		for i := range out {
			out[i] = neutralScaled
		}
		return out
	}

	span := max - min
	for i, v := range vals {
		out[i] = scaleMin + (v-min)/span*(scaleMax-scaleMin)
	}
	return out
}

// ClampRatio forces an influence ratio into [0, 1]. The second return
// value reports whether clamping changed the input.
func ClampRatio(v float64) (float64, bool) {
	switch {
	case v < 0:
		return 0, true
	case v > 1:
		return 1, true
	default:
		return v, false
	}
}

// Score sets LeadScore on every entity from min-max-scaled log spend and
// the clamped influence ratio. The input slice is modified in place and
// returned; the count of clamped ratios is the second return value.
func Score(entities []model.PhysicianEntity) ([]model.PhysicianEntity, int) {
	logSpend := make([]float64, len(entities))
	for i, e := range entities {
		logSpend[i] = e.LogTotalSpend
	}
	scaled := MinMaxScale(logSpend)

	clamped := 0
	for i := range entities {
		ratio, wasClamped := ClampRatio(entities[i].InfluenceRatio)
		if wasClamped {
			clamped++
		}
		entities[i].InfluenceRatio = ratio
		entities[i].LeadScore = scaled[i]*spendWeight + ratio*influenceWeight
	}
	return entities, clamped
}

// Build recomputes every lead score and rewrites physician_entities
// wholesale. Returns the number of entities scored.
func Build(ctx context.Context, st store.Store) (int64, error) {
	log := zap.L().With(zap.String("stage", "score"))

	entities, err := st.ListEntities(ctx, store.EntityFilter{})
	if err != nil {
		return 0, err
	}
	if len(entities) == 0 {
		return 0, &pipeline.DegenerateInputError{Stage: "score", Reason: "physician_entities table is empty"}
	}

	scored, clamped := Score(entities)
	if clamped > 0 {
		log.Warn("influence ratios outside [0, 1] were clamped", zap.Int("count", clamped))
	}

	if err := st.ReplaceEntities(ctx, scored); err != nil {
		return 0, err
	}

	log.Info("lead scores computed", zap.Int("entities", len(scored)))
	return int64(len(scored)), nil
}
