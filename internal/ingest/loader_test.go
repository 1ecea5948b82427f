package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmareach-cli/internal/model"
	"github.com/sells-group/pharmareach-cli/internal/pipeline"
	"github.com/sells-group/pharmareach-cli/internal/schema"
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

// commercialCSV writes a minimal general-payments file: each row is
// payer, amount, specialty, city, state, id, first, last.
func commercialCSV(t *testing.T, rows ...[]string) string {
	t.Helper()

	var b strings.Builder
	b.WriteString("Applicable_Manufacturer_or_Applicable_GPO_Making_Payment_Name," +
		"Total_Amount_of_Payment_USDollars,Covered_Recipient_Specialty_1," +
		"Recipient_City,Recipient_State,Nature_of_Payment_or_Transfer_of_Value," +
		"Covered_Recipient_Profile_ID,Covered_Recipient_First_Name," +
		"Covered_Recipient_Last_Name,Date_of_Payment\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s,Consulting,%s,%s,%s,2024-01-15\n",
			r[0], r[1], r[2], r[3], r[4], r[5], r[6], r[7])
	}

	path := filepath.Join(t.TempDir(), "general.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestLoad_MissingFile(t *testing.T) {
	st := newTestStore(t)
	loader := NewLoader(st, false)

	_, err := loader.Load(context.Background(), schema.CommercialPayments,
		filepath.Join(t.TempDir(), "absent.csv"), 0)
	require.Error(t, err)
	assert.True(t, pipeline.IsMissingSource(err))
}

func TestLoad_SchemaMismatch(t *testing.T) {
	st := newTestStore(t)
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("one,two\n1,2\n"), 0o644))

	loader := NewLoader(st, false)
	_, err := loader.Load(context.Background(), schema.CommercialPayments, path, 0)
	require.Error(t, err)
	assert.True(t, pipeline.IsSchemaMismatch(err))

	// Nothing reaches the live table on a failed load.
	counts, err := st.TableCounts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts["payments"])
}

func TestLoad_ChunkedIngest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	path := commercialCSV(t,
		[]string{"Acme", "100.00", "Medical Oncology", "New York", "NY", "1", "Ann", "Lee"},
		[]string{"Acme", "50.25", "Medical Oncology", "New York", "NY", "1", "Ann", "Lee"},
		[]string{"Beta", "75.00", "Neurology", "Boston", "MA", "2", "Bo", "Chen"},
	)

	// Chunk size below row count forces multiple flushes.
	loader := NewLoader(st, false)
	n, err := loader.Load(ctx, schema.CommercialPayments, path, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	counts, err := st.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts["payments"])

	groups, err := st.CommercialSpendGroups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, int64(150_25), groups[0].AmountCents) // amounts land as cents
}

func TestLoad_DropsMalformedRows(t *testing.T) {
	st := newTestStore(t)

	path := commercialCSV(t,
		[]string{"Acme", "100.00", "Medical Oncology", "New York", "NY", "1", "Ann", "Lee"},
		[]string{"Acme", "not-a-number", "Medical Oncology", "New York", "NY", "1", "Ann", "Lee"},
		[]string{"Acme", "-5.00", "Medical Oncology", "New York", "NY", "1", "Ann", "Lee"},
		[]string{"Acme", "10.00", "Medical Oncology", "New York", "NY", "", "No", "ID"},
	)

	loader := NewLoader(st, false)
	n, err := loader.Load(context.Background(), schema.CommercialPayments, path, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLoad_SkipsUnchangedSource(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	path := commercialCSV(t,
		[]string{"Acme", "100.00", "Medical Oncology", "New York", "NY", "1", "Ann", "Lee"},
	)

	loader := NewLoader(st, false)
	n, err := loader.Load(ctx, schema.CommercialPayments, path, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Same size and mtime: the second load is a cache hit.
	n, err = loader.Load(ctx, schema.CommercialPayments, path, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Force bypasses the cache.
	forced := NewLoader(st, true)
	n, err = forced.Load(ctx, schema.CommercialPayments, path, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLoad_ReloadsChangedSource(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	path := commercialCSV(t,
		[]string{"Acme", "100.00", "Medical Oncology", "New York", "NY", "1", "Ann", "Lee"},
	)

	loader := NewLoader(st, false)
	_, err := loader.Load(ctx, schema.CommercialPayments, path, 0)
	require.NoError(t, err)

	// Grow the file and backdate nothing; size change alone invalidates.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("Beta,75.00,Neurology,Boston,MA,Consulting,2,Bo,Chen,2024-01-16\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	n, err := loader.Load(ctx, schema.CommercialPayments, path, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestLoadSegments(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "segments.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"id,segment_name,influence_ratio,mfg_loyalty_pct\n"+
			"1,KOL,0.9,80\n"+
			"2,Community,0.2,10\n"+
			"3,Broken,not-a-number,0\n"+
			",Orphan,0.5,0\n",
	), 0o644))

	n, err := LoadSegments(ctx, st, path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	segs, err := st.ListSegments(ctx)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "KOL", segs["1"].SegmentName)
	assert.InDelta(t, 0.2, segs["2"].InfluenceRatio, 1e-9)
}

func TestLoadSegments_DuplicateIdentifierLastWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Externally produced segment files can repeat an identifier; the
	// later row wins rather than failing the load.
	path := filepath.Join(t.TempDir(), "segments.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"id,segment_name,influence_ratio,mfg_loyalty_pct\n"+
			"42,KOL,0.9,80\n"+
			"42,Community,0.3,10\n",
	), 0o644))

	_, err := LoadSegments(ctx, st, path)
	require.NoError(t, err)

	segs, err := st.ListSegments(ctx)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "Community", segs["42"].SegmentName)
	assert.InDelta(t, 0.3, segs["42"].InfluenceRatio, 1e-9)
}

func TestLoadSegments_MissingFile(t *testing.T) {
	st := newTestStore(t)
	_, err := LoadSegments(context.Background(), st, filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
	assert.True(t, pipeline.IsMissingSource(err))
}

// --- Cache ---

func TestFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.csv")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	stamp, err := Fingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, path, stamp.Path)
	assert.Equal(t, int64(3), stamp.SizeBytes)
	assert.False(t, stamp.ModTime.IsZero())
}

func TestUnchanged(t *testing.T) {
	mod := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	cur := model.SourceStamp{Path: "/data/f.csv", SizeBytes: 100, ModTime: mod}

	assert.False(t, Unchanged(cur, nil))
	prev := cur
	assert.True(t, Unchanged(cur, &prev))

	bigger := cur
	bigger.SizeBytes = 200
	assert.False(t, Unchanged(bigger, &prev))

	later := cur
	later.ModTime = mod.Add(time.Minute)
	assert.False(t, Unchanged(later, &prev))
}
