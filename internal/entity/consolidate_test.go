package entity

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmareach-cli/internal/aggregate"
	"github.com/sells-group/pharmareach-cli/internal/ingest"
	"github.com/sells-group/pharmareach-cli/internal/model"
	"github.com/sells-group/pharmareach-cli/internal/pipeline"
	"github.com/sells-group/pharmareach-cli/internal/schema"
	"github.com/sells-group/pharmareach-cli/internal/scorer"
	"github.com/sells-group/pharmareach-cli/internal/store"
)

func TestConsolidate_MergesSharedNameAndSpecialty(t *testing.T) {
	// The same physician appears under two recipient identifiers.
	aggs := []model.PhysicianAggregate{
		{RecipientID: "42", FirstName: "Ann", LastName: "Lee", Specialty: "Oncology",
			CommercialCents: 100_00, ResearchCents: 50_00, TotalCents: 150_00, PrimaryManufacturer: "Acme"},
		{RecipientID: "77", FirstName: "Ann", LastName: "Lee", Specialty: "Oncology",
			CommercialCents: 30_00, TotalCents: 30_00, PrimaryManufacturer: "Beta"},
		{RecipientID: "99", FirstName: "Bo", LastName: "Chen", Specialty: "Neurology",
			CommercialCents: 10_00, TotalCents: 10_00, PrimaryManufacturer: "Beta"},
	}
	locByID := map[string]store.Location{
		"42": {RecipientID: "42", City: "New York", State: "NY"},
		"77": {RecipientID: "77", City: "Boston", State: "MA"},
	}
	segs := map[string]model.Segment{
		"42": {RecipientID: "42", SegmentName: "KOL", InfluenceRatio: 0.4, MfgLoyaltyPct: 60},
		"77": {RecipientID: "77", SegmentName: "Community", InfluenceRatio: 0.9, MfgLoyaltyPct: 20},
	}

	out := Consolidate(aggs, locByID, segs)
	require.Len(t, out, 2)

	ann := out[0]
	assert.Equal(t, "Ann Lee", ann.FullName)
	// First-seen reducers follow input order.
	assert.Equal(t, "42", ann.RecipientID)
	assert.Equal(t, "New York", ann.City)
	assert.Equal(t, "NY", ann.State)
	assert.Equal(t, "KOL", ann.SegmentName)
	assert.Equal(t, "Acme", ann.PrimaryManufacturer)
	// Money sums exactly.
	assert.Equal(t, int64(130_00), ann.CommercialCents)
	assert.Equal(t, int64(50_00), ann.ResearchCents)
	assert.Equal(t, int64(180_00), ann.TotalCents)
	// Influence is the max, loyalty the mean, across constituents.
	assert.InDelta(t, 0.9, ann.InfluenceRatio, 1e-9)
	assert.InDelta(t, 40.0, ann.MfgLoyaltyPct, 1e-9)
	// Log spend is recomputed from the merged total.
	assert.InDelta(t, math.Log1p(180.0), ann.LogTotalSpend, 1e-9)

	assert.Equal(t, "Bo Chen", out[1].FullName)
}

func TestConsolidate_SameNameDifferentSpecialtyStaysSplit(t *testing.T) {
	aggs := []model.PhysicianAggregate{
		{RecipientID: "1", FirstName: "Ann", LastName: "Lee", Specialty: "Oncology", TotalCents: 10_00},
		{RecipientID: "2", FirstName: "Ann", LastName: "Lee", Specialty: "Cardiology", TotalCents: 20_00},
	}

	out := Consolidate(aggs, nil, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "Cardiology", out[0].Specialty) // sorted output
	assert.Equal(t, "Oncology", out[1].Specialty)
}

func TestConsolidate_NoSegmentData(t *testing.T) {
	aggs := []model.PhysicianAggregate{
		{RecipientID: "1", FirstName: "Ann", LastName: "Lee", Specialty: "Oncology", TotalCents: 10_00},
	}

	out := Consolidate(aggs, nil, nil)
	require.Len(t, out, 1)
	assert.Empty(t, out[0].SegmentName)
	assert.Zero(t, out[0].InfluenceRatio)
	assert.Zero(t, out[0].MfgLoyaltyPct)
}

func TestBuild_EmptyAggregates(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	_, err = Build(context.Background(), st)
	require.Error(t, err)
	assert.True(t, pipeline.IsDegenerateInput(err))
}

// TestBuild_FromIngestedSources drives the real stages end to end: two
// source files through ingest, aggregation, consolidation, and scoring.
// The same physician appears under two recipient identifiers with
// differently cased cities and must come out as one entity with a single
// normalized city and exactly summed spend.
func TestBuild_FromIngestedSources(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	dir := t.TempDir()
	commercial := filepath.Join(dir, "general.csv")
	require.NoError(t, os.WriteFile(commercial, []byte(
		"Applicable_Manufacturer_or_Applicable_GPO_Making_Payment_Name,"+
			"Total_Amount_of_Payment_USDollars,Covered_Recipient_Specialty_1,"+
			"Recipient_City,Recipient_State,Nature_of_Payment_or_Transfer_of_Value,"+
			"Covered_Recipient_Profile_ID,Covered_Recipient_First_Name,"+
			"Covered_Recipient_Last_Name,Date_of_Payment\n"+
			"Acme,100.00,Medical Oncology,NEW YORK,NY,Consulting,42,Ann,Lee,2024-01-15\n"+
			"Acme,50.00,Medical Oncology,NEW YORK,NY,Consulting,42,Ann,Lee,2024-02-01\n"+
			"Beta,25.00,Medical Oncology,new york,ny,Speaking,77,Ann,Lee,2024-03-01\n"+
			"Acme,10.00,Neurology,Boston,MA,Consulting,99,Bo,Chen,2024-01-20\n",
	), 0o644))

	research := filepath.Join(dir, "research.csv")
	require.NoError(t, os.WriteFile(research, []byte(
		"Applicable_Manufacturer_or_Applicable_GPO_Making_Payment_Name,"+
			"Total_Amount_of_Payment_USDollars,Covered_Recipient_Profile_ID,"+
			"Recipient_City,Recipient_State,Covered_Recipient_Specialty_1,Date_of_Payment\n"+
			"Acme,60.00,42,NEW YORK,NY,Medical Oncology,2024-04-01\n",
	), 0o644))

	segments := filepath.Join(dir, "segments.csv")
	require.NoError(t, os.WriteFile(segments, []byte(
		"id,segment_name,influence_ratio,mfg_loyalty_pct\n"+
			"42,KOL,0.9,80\n"+
			"77,Community,0.2,10\n",
	), 0o644))

	runAll := func() []model.PhysicianEntity {
		t.Helper()
		loader := ingest.NewLoader(st, false)
		_, err := loader.Load(ctx, schema.CommercialPayments, commercial, 2)
		require.NoError(t, err)
		_, err = loader.Load(ctx, schema.ResearchPayments, research, 0)
		require.NoError(t, err)
		_, err = ingest.LoadSegments(ctx, st, segments)
		require.NoError(t, err)

		_, err = aggregate.Build(ctx, st)
		require.NoError(t, err)
		_, err = Build(ctx, st)
		require.NoError(t, err)
		_, err = scorer.Build(ctx, st)
		require.NoError(t, err)

		entities, err := st.ListEntities(ctx, store.EntityFilter{})
		require.NoError(t, err)
		return entities
	}

	entities := runAll()
	require.Len(t, entities, 2)

	byName := make(map[string]model.PhysicianEntity, len(entities))
	for _, e := range entities {
		byName[e.FullName] = e
	}

	ann, ok := byName["Ann Lee"]
	require.True(t, ok)
	// Both identifiers merged; 42 was loaded first.
	assert.Equal(t, "42", ann.RecipientID)
	assert.Equal(t, "Oncology", ann.Specialty)
	// First-seen raw city "NEW YORK" comes out normalized.
	assert.Equal(t, "New York", ann.City)
	assert.Equal(t, "NY", ann.State)
	// Money sums exactly across both identifiers.
	assert.Equal(t, int64(175_00), ann.CommercialCents)
	assert.Equal(t, int64(60_00), ann.ResearchCents)
	assert.Equal(t, int64(235_00), ann.TotalCents)
	assert.Equal(t, "Acme", ann.PrimaryManufacturer)
	assert.Equal(t, "KOL", ann.SegmentName)
	assert.InDelta(t, 0.9, ann.InfluenceRatio, 1e-9)
	assert.InDelta(t, 45.0, ann.MfgLoyaltyPct, 1e-9)
	// Largest log spend and 0.9 influence: 100*0.7 + 0.9*30.
	assert.InDelta(t, 97.0, ann.LeadScore, 1e-9)

	bo, ok := byName["Bo Chen"]
	require.True(t, ok)
	assert.Equal(t, "Boston", bo.City)
	assert.Equal(t, int64(10_00), bo.TotalCents)
	assert.InDelta(t, 0.0, bo.LeadScore, 1e-9)

	// Rerunning every stage over the same sources reproduces the rows
	// exactly.
	assert.Equal(t, entities, runAll())
}

func TestBuild_WritesEntities(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	require.NoError(t, st.ReplaceAggregates(ctx, []model.PhysicianAggregate{
		{RecipientID: "1", FirstName: "Ann", LastName: "Lee", Specialty: "Oncology",
			CommercialCents: 100_00, TotalCents: 100_00, PrimaryManufacturer: "Acme"},
		{RecipientID: "2", FirstName: "Ann", LastName: "Lee", Specialty: "Oncology",
			CommercialCents: 50_00, TotalCents: 50_00, PrimaryManufacturer: "Beta"},
	}))

	n, err := Build(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entities, err := st.ListEntities(ctx, store.EntityFilter{})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, int64(150_00), entities[0].TotalCents)
}
