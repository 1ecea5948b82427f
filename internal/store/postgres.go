package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmareach-cli/internal/db"
	"github.com/sells-group/pharmareach-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// pgPaymentColumns mirrors paymentColumns with Postgres types.
const pgPaymentColumns = `
	seq           BIGSERIAL PRIMARY KEY,
	payer_name    TEXT NOT NULL,
	amount_cents  BIGINT NOT NULL,
	specialty     TEXT,
	city          TEXT,
	state         TEXT,
	nature        TEXT,
	recipient_id  TEXT NOT NULL,
	first_name    TEXT,
	last_name     TEXT,
	payment_date  TEXT
`

var pgPaymentInsertColumns = []string{
	"payer_name", "amount_cents", "specialty", "city", "state",
	"nature", "recipient_id", "first_name", "last_name", "payment_date",
}

var postgresMigration = fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS payments (%s);
CREATE TABLE IF NOT EXISTS research_payments (%s);

CREATE TABLE IF NOT EXISTS segments (
	recipient_id    TEXT PRIMARY KEY,
	segment_name    TEXT NOT NULL,
	influence_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
	mfg_loyalty_pct DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS physician_aggregates (
	recipient_id         TEXT PRIMARY KEY,
	first_name           TEXT,
	last_name            TEXT,
	specialty            TEXT NOT NULL,
	commercial_cents     BIGINT NOT NULL,
	research_cents       BIGINT NOT NULL,
	total_cents          BIGINT NOT NULL,
	primary_manufacturer TEXT
);

CREATE TABLE IF NOT EXISTS physician_entities (
	recipient_id         TEXT NOT NULL,
	full_name            TEXT NOT NULL,
	specialty            TEXT NOT NULL,
	city                 TEXT,
	state                TEXT,
	segment_name         TEXT,
	commercial_cents     BIGINT NOT NULL,
	research_cents       BIGINT NOT NULL,
	total_cents          BIGINT NOT NULL,
	primary_manufacturer TEXT,
	influence_ratio      DOUBLE PRECISION NOT NULL DEFAULT 0,
	mfg_loyalty_pct      DOUBLE PRECISION NOT NULL DEFAULT 0,
	log_total_spend      DOUBLE PRECISION NOT NULL DEFAULT 0,
	lead_score           DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (full_name, specialty)
);

CREATE TABLE IF NOT EXISTS load_log (
	path       TEXT PRIMARY KEY,
	size_bytes BIGINT NOT NULL,
	mod_time   TIMESTAMPTZ NOT NULL,
	rows       BIGINT NOT NULL,
	loaded_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	rows_out    BIGINT NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_payments_recipient ON payments(recipient_id);
CREATE INDEX IF NOT EXISTS idx_research_recipient ON research_payments(recipient_id);
CREATE INDEX IF NOT EXISTS idx_entities_specialty ON physician_entities(specialty);
CREATE INDEX IF NOT EXISTS idx_runs_started ON pipeline_runs(started_at);
`, pgPaymentColumns, pgPaymentColumns)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreatePaymentStaging(ctx context.Context, table string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return eris.Wrapf(err, "postgres: drop staging %s", table)
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, table, pgPaymentColumns))
	return eris.Wrapf(err, "postgres: create staging %s", table)
}

func (s *PostgresStore) InsertPayments(ctx context.Context, table string, rows []model.PaymentRecord) error {
	copyRows := make([][]any, 0, len(rows))
	for _, r := range rows {
		copyRows = append(copyRows, []any{
			r.PayerName, r.AmountCents, r.Specialty, r.City, r.State,
			r.Nature, r.RecipientID, r.FirstName, r.LastName, r.PaymentDate,
		})
	}
	_, err := db.CopyFrom(ctx, s.pool, table, pgPaymentInsertColumns, copyRows)
	return eris.Wrapf(err, "postgres: insert into %s", table)
}

func (s *PostgresStore) SwapTable(ctx context.Context, staging, live string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin swap")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, live)); err != nil {
		return eris.Wrapf(err, "postgres: drop %s", live)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, staging, live)); err != nil {
		return eris.Wrapf(err, "postgres: rename %s to %s", staging, live)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_%s_recipient ON %s(recipient_id)`, live, live)); err != nil {
		return eris.Wrapf(err, "postgres: index %s", live)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit swap")
}

func (s *PostgresStore) GetLoadStamp(ctx context.Context, path string) (*model.SourceStamp, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT path, size_bytes, mod_time, rows, loaded_at FROM load_log WHERE path = $1`, path)

	var st model.SourceStamp
	err := row.Scan(&st.Path, &st.SizeBytes, &st.ModTime, &st.Rows, &st.LoadedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get load stamp %s", path)
	}
	return &st, nil
}

func (s *PostgresStore) RecordLoadStamp(ctx context.Context, stamp model.SourceStamp) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO load_log (path, size_bytes, mod_time, rows, loaded_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (path) DO UPDATE SET size_bytes = EXCLUDED.size_bytes, mod_time = EXCLUDED.mod_time,
		 rows = EXCLUDED.rows, loaded_at = EXCLUDED.loaded_at`,
		stamp.Path, stamp.SizeBytes, stamp.ModTime.UTC(), stamp.Rows, stamp.LoadedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record load stamp %s", stamp.Path)
}

func (s *PostgresStore) ReplaceSegments(ctx context.Context, rows []model.Segment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace segments")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM segments`); err != nil {
		return eris.Wrap(err, "postgres: clear segments")
	}
	// Upsert: a recipient duplicated in the source batch resolves
	// last-wins instead of aborting the load.
	for _, r := range rows {
		if _, err := tx.Exec(ctx,
			`INSERT INTO segments (recipient_id, segment_name, influence_ratio, mfg_loyalty_pct) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (recipient_id) DO UPDATE SET segment_name = EXCLUDED.segment_name,
			 influence_ratio = EXCLUDED.influence_ratio, mfg_loyalty_pct = EXCLUDED.mfg_loyalty_pct`,
			r.RecipientID, r.SegmentName, r.InfluenceRatio, r.MfgLoyaltyPct,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert segment %s", r.RecipientID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace segments")
}

func (s *PostgresStore) CommercialSpendGroups(ctx context.Context) ([]SpendGroup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recipient_id, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(specialty, ''), SUM(amount_cents)
		FROM payments
		GROUP BY recipient_id, first_name, last_name, specialty
		ORDER BY recipient_id, first_name, last_name, specialty`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: commercial spend groups")
	}
	defer rows.Close()

	var out []SpendGroup
	for rows.Next() {
		var g SpendGroup
		if err := rows.Scan(&g.RecipientID, &g.FirstName, &g.LastName, &g.RawSpecialty, &g.AmountCents); err != nil {
			return nil, eris.Wrap(err, "postgres: scan spend group")
		}
		out = append(out, g)
	}
	return out, eris.Wrap(rows.Err(), "postgres: commercial spend groups iterate")
}

func (s *PostgresStore) ResearchSpendByRecipient(ctx context.Context) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT recipient_id, SUM(amount_cents) FROM research_payments GROUP BY recipient_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: research spend")
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var cents int64
		if err := rows.Scan(&id, &cents); err != nil {
			return nil, eris.Wrap(err, "postgres: scan research spend")
		}
		out[id] = cents
	}
	return out, eris.Wrap(rows.Err(), "postgres: research spend iterate")
}

func (s *PostgresStore) PayerSpendGroups(ctx context.Context) ([]PayerSpend, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recipient_id, payer_name, SUM(amount_cents)
		FROM payments
		GROUP BY recipient_id, payer_name
		ORDER BY recipient_id, payer_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: payer spend groups")
	}
	defer rows.Close()

	var out []PayerSpend
	for rows.Next() {
		var p PayerSpend
		if err := rows.Scan(&p.RecipientID, &p.PayerName, &p.AmountCents); err != nil {
			return nil, eris.Wrap(err, "postgres: scan payer spend")
		}
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: payer spend groups iterate")
}

func (s *PostgresStore) FirstSeenLocations(ctx context.Context) ([]Location, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recipient_id, COALESCE(city, ''), COALESCE(state, '') FROM (
			SELECT recipient_id, city, state,
			       ROW_NUMBER() OVER (PARTITION BY recipient_id ORDER BY seq) AS rn
			FROM payments
		) ranked WHERE rn = 1
		ORDER BY recipient_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: first-seen locations")
	}
	defer rows.Close()

	var out []Location
	for rows.Next() {
		var l Location
		if err := rows.Scan(&l.RecipientID, &l.City, &l.State); err != nil {
			return nil, eris.Wrap(err, "postgres: scan location")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: first-seen locations iterate")
}

func (s *PostgresStore) ListSegments(ctx context.Context) (map[string]model.Segment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT recipient_id, segment_name, influence_ratio, mfg_loyalty_pct FROM segments`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list segments")
	}
	defer rows.Close()

	out := make(map[string]model.Segment)
	for rows.Next() {
		var seg model.Segment
		if err := rows.Scan(&seg.RecipientID, &seg.SegmentName, &seg.InfluenceRatio, &seg.MfgLoyaltyPct); err != nil {
			return nil, eris.Wrap(err, "postgres: scan segment")
		}
		out[seg.RecipientID] = seg
	}
	return out, eris.Wrap(rows.Err(), "postgres: list segments iterate")
}

func (s *PostgresStore) ReplaceAggregates(ctx context.Context, rows []model.PhysicianAggregate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace aggregates")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM physician_aggregates`); err != nil {
		return eris.Wrap(err, "postgres: clear aggregates")
	}
	for _, a := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO physician_aggregates
			(recipient_id, first_name, last_name, specialty, commercial_cents, research_cents, total_cents, primary_manufacturer)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.RecipientID, a.FirstName, a.LastName, a.Specialty,
			a.CommercialCents, a.ResearchCents, a.TotalCents, a.PrimaryManufacturer,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert aggregate %s", a.RecipientID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace aggregates")
}

func (s *PostgresStore) ListAggregates(ctx context.Context) ([]model.PhysicianAggregate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT recipient_id, COALESCE(first_name, ''), COALESCE(last_name, ''), specialty,
		       commercial_cents, research_cents, total_cents, COALESCE(primary_manufacturer, '')
		FROM physician_aggregates
		ORDER BY recipient_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list aggregates")
	}
	defer rows.Close()

	var out []model.PhysicianAggregate
	for rows.Next() {
		var a model.PhysicianAggregate
		if err := rows.Scan(&a.RecipientID, &a.FirstName, &a.LastName, &a.Specialty,
			&a.CommercialCents, &a.ResearchCents, &a.TotalCents, &a.PrimaryManufacturer); err != nil {
			return nil, eris.Wrap(err, "postgres: scan aggregate")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list aggregates iterate")
}

func (s *PostgresStore) ReplaceEntities(ctx context.Context, rows []model.PhysicianEntity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace entities")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM physician_entities`); err != nil {
		return eris.Wrap(err, "postgres: clear entities")
	}
	for _, e := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO physician_entities
			(recipient_id, full_name, specialty, city, state, segment_name, commercial_cents, research_cents, total_cents,
			 primary_manufacturer, influence_ratio, mfg_loyalty_pct, log_total_spend, lead_score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			e.RecipientID, e.FullName, e.Specialty, e.City, e.State, e.SegmentName,
			e.CommercialCents, e.ResearchCents, e.TotalCents, e.PrimaryManufacturer,
			e.InfluenceRatio, e.MfgLoyaltyPct, e.LogTotalSpend, e.LeadScore,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert entity %s", e.FullName)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace entities")
}

func (s *PostgresStore) ListEntities(ctx context.Context, filter EntityFilter) ([]model.PhysicianEntity, error) {
	query := `
		SELECT recipient_id, full_name, specialty, COALESCE(city, ''), COALESCE(state, ''), COALESCE(segment_name, ''),
		       commercial_cents, research_cents, total_cents, COALESCE(primary_manufacturer, ''),
		       influence_ratio, mfg_loyalty_pct, log_total_spend, lead_score
		FROM physician_entities WHERE 1=1`
	var args []any

	if filter.Specialty != "" {
		args = append(args, filter.Specialty)
		query += fmt.Sprintf(` AND specialty = $%d`, len(args))
	}
	if filter.City != "" {
		args = append(args, "%"+filter.City+"%")
		query += fmt.Sprintf(` AND city ILIKE $%d`, len(args))
	}
	query += ` ORDER BY lead_score DESC, full_name ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var out []model.PhysicianEntity
	for rows.Next() {
		var e model.PhysicianEntity
		if err := rows.Scan(&e.RecipientID, &e.FullName, &e.Specialty, &e.City, &e.State, &e.SegmentName,
			&e.CommercialCents, &e.ResearchCents, &e.TotalCents, &e.PrimaryManufacturer,
			&e.InfluenceRatio, &e.MfgLoyaltyPct, &e.LogTotalSpend, &e.LeadScore); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

func (s *PostgresStore) TableCounts(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(countedTables))
	for _, t := range countedTables {
		var n int64
		if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, t)).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "postgres: count %s", t)
		}
		out[t] = n
	}
	return out, nil
}

func (s *PostgresStore) CreateStageRun(ctx context.Context, stage string) (*model.StageRun, error) {
	run := &model.StageRun{
		ID:        uuid.New().String(),
		Stage:     stage,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, stage, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Stage, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert stage run %s", stage)
	}
	return run, nil
}

func (s *PostgresStore) CompleteStageRun(ctx context.Context, runID string, status model.RunStatus, rowsOut int64, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, rows_out = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), rowsOut, errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete stage run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: stage run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) ListStageRuns(ctx context.Context, limit int) ([]model.StageRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, stage, status, rows_out, COALESCE(error, ''), started_at, finished_at
		FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stage runs")
	}
	defer rows.Close()

	var out []model.StageRun
	for rows.Next() {
		var r model.StageRun
		var status string
		var finished *time.Time
		if err := rows.Scan(&r.ID, &r.Stage, &status, &r.RowsOut, &r.Error, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage run")
		}
		r.Status = model.RunStatus(status)
		r.FinishedAt = finished
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list stage runs iterate")
}
