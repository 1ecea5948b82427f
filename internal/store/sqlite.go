package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pharmareach-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// paymentColumns is shared between the live payment tables and their
// staging twins. seq records load order; first-seen reads depend on it.
const paymentColumns = `
	seq           INTEGER PRIMARY KEY,
	payer_name    TEXT NOT NULL,
	amount_cents  INTEGER NOT NULL,
	specialty     TEXT,
	city          TEXT,
	state         TEXT,
	nature        TEXT,
	recipient_id  TEXT NOT NULL,
	first_name    TEXT,
	last_name     TEXT,
	payment_date  TEXT
`

var sqliteMigration = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS payments (%s);
CREATE TABLE IF NOT EXISTS research_payments (%s);

CREATE TABLE IF NOT EXISTS segments (
	recipient_id    TEXT PRIMARY KEY,
	segment_name    TEXT NOT NULL,
	influence_ratio REAL NOT NULL DEFAULT 0,
	mfg_loyalty_pct REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS physician_aggregates (
	recipient_id         TEXT PRIMARY KEY,
	first_name           TEXT,
	last_name            TEXT,
	specialty            TEXT NOT NULL,
	commercial_cents     INTEGER NOT NULL,
	research_cents       INTEGER NOT NULL,
	total_cents          INTEGER NOT NULL,
	primary_manufacturer TEXT
);

CREATE TABLE IF NOT EXISTS physician_entities (
	recipient_id         TEXT NOT NULL,
	full_name            TEXT NOT NULL,
	specialty            TEXT NOT NULL,
	city                 TEXT,
	state                TEXT,
	segment_name         TEXT,
	commercial_cents     INTEGER NOT NULL,
	research_cents       INTEGER NOT NULL,
	total_cents          INTEGER NOT NULL,
	primary_manufacturer TEXT,
	influence_ratio      REAL NOT NULL DEFAULT 0,
	mfg_loyalty_pct      REAL NOT NULL DEFAULT 0,
	log_total_spend      REAL NOT NULL DEFAULT 0,
	lead_score           REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (full_name, specialty)
);

CREATE TABLE IF NOT EXISTS load_log (
	path       TEXT PRIMARY KEY,
	size_bytes INTEGER NOT NULL,
	mod_time   DATETIME NOT NULL,
	rows       INTEGER NOT NULL,
	loaded_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	rows_out    INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_payments_recipient ON payments(recipient_id);
CREATE INDEX IF NOT EXISTS idx_research_recipient ON research_payments(recipient_id);
CREATE INDEX IF NOT EXISTS idx_entities_specialty ON physician_entities(specialty);
CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at);
`, paymentColumns, paymentColumns)

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreatePaymentStaging(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return eris.Wrapf(err, "sqlite: drop staging %s", table)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, table, paymentColumns))
	return eris.Wrapf(err, "sqlite: create staging %s", table)
}

func (s *SQLiteStore) InsertPayments(ctx context.Context, table string, rows []model.PaymentRecord) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert payments")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (payer_name, amount_cents, specialty, city, state, nature, recipient_id, first_name, last_name, payment_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table))
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", table)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.PayerName, r.AmountCents, r.Specialty, r.City, r.State,
			r.Nature, r.RecipientID, r.FirstName, r.LastName, r.PaymentDate,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert into %s", table)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit insert payments")
}

// SwapTable atomically replaces the live table with its fully loaded
// staging twin, so a failed load never leaves a partial live table.
func (s *SQLiteStore) SwapTable(ctx context.Context, staging, live string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin swap")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, live)); err != nil {
		return eris.Wrapf(err, "sqlite: drop %s", live)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, staging, live)); err != nil {
		return eris.Wrapf(err, "sqlite: rename %s to %s", staging, live)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_recipient ON %s(recipient_id)`, live, live)); err != nil {
		return eris.Wrapf(err, "sqlite: index %s", live)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit swap")
}

func (s *SQLiteStore) GetLoadStamp(ctx context.Context, path string) (*model.SourceStamp, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT path, size_bytes, mod_time, rows, loaded_at FROM load_log WHERE path = ?`, path)

	var st model.SourceStamp
	err := row.Scan(&st.Path, &st.SizeBytes, &st.ModTime, &st.Rows, &st.LoadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get load stamp %s", path)
	}
	return &st, nil
}

func (s *SQLiteStore) RecordLoadStamp(ctx context.Context, stamp model.SourceStamp) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO load_log (path, size_bytes, mod_time, rows, loaded_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET size_bytes = excluded.size_bytes, mod_time = excluded.mod_time,
		 rows = excluded.rows, loaded_at = excluded.loaded_at`,
		stamp.Path, stamp.SizeBytes, stamp.ModTime.UTC(), stamp.Rows, stamp.LoadedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record load stamp %s", stamp.Path)
}

func (s *SQLiteStore) ReplaceSegments(ctx context.Context, rows []model.Segment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace segments")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM segments`); err != nil {
		return eris.Wrap(err, "sqlite: clear segments")
	}

	// Upsert: a recipient duplicated in the source batch resolves
	// last-wins instead of aborting the load.
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO segments (recipient_id, segment_name, influence_ratio, mfg_loyalty_pct) VALUES (?, ?, ?, ?)
		 ON CONFLICT(recipient_id) DO UPDATE SET segment_name = excluded.segment_name,
		 influence_ratio = excluded.influence_ratio, mfg_loyalty_pct = excluded.mfg_loyalty_pct`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert segments")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.RecipientID, r.SegmentName, r.InfluenceRatio, r.MfgLoyaltyPct); err != nil {
			return eris.Wrapf(err, "sqlite: insert segment %s", r.RecipientID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace segments")
}

func (s *SQLiteStore) CommercialSpendGroups(ctx context.Context) ([]SpendGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recipient_id, first_name, last_name, specialty, SUM(amount_cents)
		FROM payments
		GROUP BY recipient_id, first_name, last_name, specialty
		ORDER BY recipient_id, first_name, last_name, specialty`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: commercial spend groups")
	}
	defer rows.Close()

	var out []SpendGroup
	for rows.Next() {
		var g SpendGroup
		if err := rows.Scan(&g.RecipientID, &g.FirstName, &g.LastName, &g.RawSpecialty, &g.AmountCents); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan spend group")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: commercial spend groups iterate")
}

func (s *SQLiteStore) ResearchSpendByRecipient(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient_id, SUM(amount_cents) FROM research_payments GROUP BY recipient_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: research spend")
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var cents int64
		if err := rows.Scan(&id, &cents); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan research spend")
		}
		out[id] = cents
	}
	return out, eris.Wrap(rows.Err(), "sqlite: research spend iterate")
}

func (s *SQLiteStore) PayerSpendGroups(ctx context.Context) ([]PayerSpend, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recipient_id, payer_name, SUM(amount_cents)
		FROM payments
		GROUP BY recipient_id, payer_name
		ORDER BY recipient_id, payer_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: payer spend groups")
	}
	defer rows.Close()

	var out []PayerSpend
	for rows.Next() {
		var p PayerSpend
		if err := rows.Scan(&p.RecipientID, &p.PayerName, &p.AmountCents); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan payer spend")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: payer spend groups iterate")
}

// FirstSeenLocations returns each recipient's city/state from the earliest
// loaded payment row, in load order.
func (s *SQLiteStore) FirstSeenLocations(ctx context.Context) ([]Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recipient_id, city, state FROM (
			SELECT recipient_id, city, state,
			       ROW_NUMBER() OVER (PARTITION BY recipient_id ORDER BY seq) AS rn
			FROM payments
		) WHERE rn = 1
		ORDER BY recipient_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: first-seen locations")
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.RecipientID, &l.City, &l.State); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan location")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: first-seen locations iterate")
}

func (s *SQLiteStore) ListSegments(ctx context.Context) (map[string]model.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipient_id, segment_name, influence_ratio, mfg_loyalty_pct FROM segments`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list segments")
	}
	defer rows.Close()

	out := make(map[string]model.Segment)
	for rows.Next() {
		var seg model.Segment
		if err := rows.Scan(&seg.RecipientID, &seg.SegmentName, &seg.InfluenceRatio, &seg.MfgLoyaltyPct); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan segment")
		}
		out[seg.RecipientID] = seg
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list segments iterate")
}

func (s *SQLiteStore) ReplaceAggregates(ctx context.Context, rows []model.PhysicianAggregate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace aggregates")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM physician_aggregates`); err != nil {
		return eris.Wrap(err, "sqlite: clear aggregates")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO physician_aggregates
		(recipient_id, first_name, last_name, specialty, commercial_cents, research_cents, total_cents, primary_manufacturer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert aggregates")
	}
	defer stmt.Close()

	for _, a := range rows {
		if _, err := stmt.ExecContext(ctx,
			a.RecipientID, a.FirstName, a.LastName, a.Specialty,
			a.CommercialCents, a.ResearchCents, a.TotalCents, a.PrimaryManufacturer,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert aggregate %s", a.RecipientID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace aggregates")
}

func (s *SQLiteStore) ListAggregates(ctx context.Context) ([]model.PhysicianAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recipient_id, first_name, last_name, specialty, commercial_cents, research_cents, total_cents, primary_manufacturer
		FROM physician_aggregates
		ORDER BY recipient_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list aggregates")
	}
	defer rows.Close()

	var out []model.PhysicianAggregate
	for rows.Next() {
		var a model.PhysicianAggregate
		if err := rows.Scan(&a.RecipientID, &a.FirstName, &a.LastName, &a.Specialty,
			&a.CommercialCents, &a.ResearchCents, &a.TotalCents, &a.PrimaryManufacturer); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan aggregate")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list aggregates iterate")
}

func (s *SQLiteStore) ReplaceEntities(ctx context.Context, rows []model.PhysicianEntity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace entities")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM physician_entities`); err != nil {
		return eris.Wrap(err, "sqlite: clear entities")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO physician_entities
		(recipient_id, full_name, specialty, city, state, segment_name, commercial_cents, research_cents, total_cents,
		 primary_manufacturer, influence_ratio, mfg_loyalty_pct, log_total_spend, lead_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert entities")
	}
	defer stmt.Close()

	for _, e := range rows {
		if _, err := stmt.ExecContext(ctx,
			e.RecipientID, e.FullName, e.Specialty, e.City, e.State, e.SegmentName,
			e.CommercialCents, e.ResearchCents, e.TotalCents, e.PrimaryManufacturer,
			e.InfluenceRatio, e.MfgLoyaltyPct, e.LogTotalSpend, e.LeadScore,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert entity %s", e.FullName)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace entities")
}

func (s *SQLiteStore) ListEntities(ctx context.Context, filter EntityFilter) ([]model.PhysicianEntity, error) {
	query := `
		SELECT recipient_id, full_name, specialty, city, state, segment_name, commercial_cents, research_cents, total_cents,
		       primary_manufacturer, influence_ratio, mfg_loyalty_pct, log_total_spend, lead_score
		FROM physician_entities WHERE 1=1`
	var args []any

	if filter.Specialty != "" {
		query += ` AND specialty = ?`
		args = append(args, filter.Specialty)
	}
	if filter.City != "" {
		query += ` AND instr(lower(city), lower(?)) > 0`
		args = append(args, filter.City)
	}
	query += ` ORDER BY lead_score DESC, full_name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var out []model.PhysicianEntity
	for rows.Next() {
		var e model.PhysicianEntity
		if err := rows.Scan(&e.RecipientID, &e.FullName, &e.Specialty, &e.City, &e.State, &e.SegmentName,
			&e.CommercialCents, &e.ResearchCents, &e.TotalCents, &e.PrimaryManufacturer,
			&e.InfluenceRatio, &e.MfgLoyaltyPct, &e.LogTotalSpend, &e.LeadScore); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

var countedTables = []string{
	"payments", "research_payments", "segments",
	"physician_aggregates", "physician_entities",
}

func (s *SQLiteStore) TableCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(countedTables))
	for _, t := range countedTables {
		var n int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t)).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "sqlite: count %s", t)
		}
		out[t] = n
	}
	return out, nil
}

func (s *SQLiteStore) CreateStageRun(ctx context.Context, stage string) (*model.StageRun, error) {
	run := &model.StageRun{
		ID:        uuid.New().String(),
		Stage:     stage,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, stage, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Stage, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert stage run %s", stage)
	}
	return run, nil
}

func (s *SQLiteStore) CompleteStageRun(ctx context.Context, runID string, status model.RunStatus, rowsOut int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, rows_out = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), rowsOut, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete stage run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: stage run %s not found", runID)
	}
	return nil
}

func (s *SQLiteStore) ListStageRuns(ctx context.Context, limit int) ([]model.StageRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stage, status, rows_out, COALESCE(error, ''), started_at, finished_at
		FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stage runs")
	}
	defer rows.Close()

	var out []model.StageRun
	for rows.Next() {
		var r model.StageRun
		var status string
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Stage, &status, &r.RowsOut, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage run")
		}
		r.Status = model.RunStatus(status)
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list stage runs iterate")
}
