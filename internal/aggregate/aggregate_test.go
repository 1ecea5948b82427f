package aggregate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmareach-cli/internal/model"
	"github.com/sells-group/pharmareach-cli/internal/pipeline"
	"github.com/sells-group/pharmareach-cli/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func loadTable(t *testing.T, st store.Store, table string, rows []model.PaymentRecord) {
	t.Helper()
	ctx := context.Background()
	staging := table + "_staging"
	require.NoError(t, st.CreatePaymentStaging(ctx, staging))
	require.NoError(t, st.InsertPayments(ctx, staging, rows))
	require.NoError(t, st.SwapTable(ctx, staging, table))
}

func TestBuild_EmptyPayments(t *testing.T) {
	st := newTestStore(t)

	_, err := Build(context.Background(), st)
	require.Error(t, err)
	assert.True(t, pipeline.IsDegenerateInput(err))
}

func TestBuild_NoTargetSpecialties(t *testing.T) {
	st := newTestStore(t)

	loadTable(t, st, "payments", []model.PaymentRecord{
		{PayerName: "Acme", AmountCents: 10_00, RecipientID: "1", Specialty: "Family Medicine"},
	})

	_, err := Build(context.Background(), st)
	require.Error(t, err)
	assert.True(t, pipeline.IsDegenerateInput(err))
}

func TestBuild_EndToEnd(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	loadTable(t, st, "payments", []model.PaymentRecord{
		{PayerName: "Acme", AmountCents: 100_00, RecipientID: "1", FirstName: "Ann", LastName: "Lee", Specialty: "Medical Oncology"},
		{PayerName: "Beta", AmountCents: 40_00, RecipientID: "1", FirstName: "Ann", LastName: "Lee", Specialty: "Medical Oncology"},
		{PayerName: "Acme", AmountCents: 25_00, RecipientID: "2", FirstName: "Bo", LastName: "Chen", Specialty: "Cardiovascular Disease"},
		// Outside the target specialties, must not survive.
		{PayerName: "Acme", AmountCents: 999_00, RecipientID: "3", FirstName: "Cy", LastName: "Diaz", Specialty: "Family Medicine"},
	})
	loadTable(t, st, "research_payments", []model.PaymentRecord{
		{PayerName: "Acme", AmountCents: 60_00, RecipientID: "1"},
	})

	n, err := Build(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	aggs, err := st.ListAggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 2)

	ann := aggs[0]
	assert.Equal(t, "1", ann.RecipientID)
	assert.Equal(t, SpecialtyOncology, ann.Specialty)
	assert.Equal(t, int64(140_00), ann.CommercialCents)
	assert.Equal(t, int64(60_00), ann.ResearchCents)
	assert.Equal(t, int64(200_00), ann.TotalCents)
	assert.Equal(t, "Acme", ann.PrimaryManufacturer)

	bo := aggs[1]
	assert.Equal(t, SpecialtyCardiology, bo.Specialty)
	assert.Zero(t, bo.ResearchCents) // no research rows joins to zero
	assert.Equal(t, bo.CommercialCents, bo.TotalCents)
}

func TestBuild_MultiBucketRecipientKeepsDominantBucket(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	loadTable(t, st, "payments", []model.PaymentRecord{
		{PayerName: "Acme", AmountCents: 10_00, RecipientID: "1", FirstName: "Ann", LastName: "Lee", Specialty: "Medical Oncology"},
		{PayerName: "Acme", AmountCents: 90_00, RecipientID: "1", FirstName: "Ann", LastName: "Lee", Specialty: "Neurology"},
	})

	n, err := Build(ctx, st)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	aggs, err := st.ListAggregates(ctx)
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	// One row per identifier, carrying all its money and the bucket
	// holding most of it.
	assert.Equal(t, SpecialtyNeurology, aggs[0].Specialty)
	assert.Equal(t, int64(100_00), aggs[0].CommercialCents)
}

func TestBuild_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	loadTable(t, st, "payments", []model.PaymentRecord{
		{PayerName: "Acme", AmountCents: 100_00, RecipientID: "1", FirstName: "Ann", LastName: "Lee", Specialty: "Medical Oncology"},
	})

	_, err := Build(ctx, st)
	require.NoError(t, err)
	first, err := st.ListAggregates(ctx)
	require.NoError(t, err)

	_, err = Build(ctx, st)
	require.NoError(t, err)
	second, err := st.ListAggregates(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
