package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmareach-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetLoadStamp_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT path, size_bytes, mod_time, rows, loaded_at FROM load_log`).
		WithArgs("/data/missing.csv").
		WillReturnError(pgx.ErrNoRows)

	stamp, err := s.GetLoadStamp(context.Background(), "/data/missing.csv")
	require.NoError(t, err)
	assert.Nil(t, stamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLoadStamp_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mod := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	loaded := mod.Add(5 * time.Minute)
	mock.ExpectQuery(`SELECT path, size_bytes, mod_time, rows, loaded_at FROM load_log`).
		WithArgs("/data/general.csv").
		WillReturnRows(pgxmock.NewRows([]string{"path", "size_bytes", "mod_time", "rows", "loaded_at"}).
			AddRow("/data/general.csv", int64(123456), mod, int64(42), loaded))

	stamp, err := s.GetLoadStamp(context.Background(), "/data/general.csv")
	require.NoError(t, err)
	require.NotNil(t, stamp)
	assert.Equal(t, int64(42), stamp.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordLoadStamp_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO load_log .* ON CONFLICT`).
		WithArgs("/data/general.csv", int64(123456), pgxmock.AnyArg(), int64(42), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordLoadStamp(context.Background(), model.SourceStamp{
		Path:      "/data/general.csv",
		SizeBytes: 123456,
		ModTime:   time.Now(),
		Rows:      42,
		LoadedAt:  time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertPayments_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"payments_staging"}, pgPaymentInsertColumns).
		WillReturnResult(2)

	err := s.InsertPayments(context.Background(), "payments_staging", []model.PaymentRecord{
		{PayerName: "Acme", AmountCents: 10_00, RecipientID: "1"},
		{PayerName: "Beta", AmountCents: 5_00, RecipientID: "2"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertPayments_EmptyBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// No COPY expected for an empty batch.
	err := s.InsertPayments(context.Background(), "payments_staging", nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SwapTable_Transactional(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS payments`).
		WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`ALTER TABLE payments_staging RENAME TO payments`).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_payments_recipient`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	err := s.SwapTable(context.Background(), "payments_staging", "payments")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResearchSpendByRecipient(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT recipient_id, SUM\(amount_cents\) FROM research_payments`).
		WillReturnRows(pgxmock.NewRows([]string{"recipient_id", "sum"}).
			AddRow("1", int64(150_00)).
			AddRow("2", int64(25_00)))

	spend, err := s.ResearchSpendByRecipient(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"1": 150_00, "2": 25_00}, spend)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEntities_FilterPlaceholders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM physician_entities WHERE 1=1 AND specialty = \$1 AND city ILIKE \$2`).
		WithArgs("Oncology", "%new york%").
		WillReturnRows(pgxmock.NewRows([]string{
			"recipient_id", "full_name", "specialty", "city", "state", "segment_name",
			"commercial_cents", "research_cents", "total_cents", "primary_manufacturer",
			"influence_ratio", "mfg_loyalty_pct", "log_total_spend", "lead_score",
		}).AddRow("1", "Ann Lee", "Oncology", "New York", "NY", "KOL",
			int64(10_00), int64(5_00), int64(15_00), "Acme", 0.9, 80.0, 7.3, 92.5))

	got, err := s.ListEntities(context.Background(), EntityFilter{Specialty: "Oncology", City: "new york"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Ann Lee", got[0].FullName)
	assert.Equal(t, int64(15_00), got[0].TotalCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteStageRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_runs SET`).
		WithArgs("failed", int64(0), "boom", pgxmock.AnyArg(), "no-such-run").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteStageRun(context.Background(), "no-such-run", model.RunStatusFailed, 0, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
