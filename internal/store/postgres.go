package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/db"
	"github.com/sells-group/sos-priors/internal/model"
)

// PostgresStore implements Store using pgxpool. Statistic arrays are stored
// as DOUBLE PRECISION[].
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	fill    Fill
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig, fill Fill) (*PostgresStore, error) {
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
	if minConns > maxConns {
		minConns = maxConns
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
	return &PostgresStore{pool: pool, closeFn: pool.Close, fill: fill}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reaches (
	reach_id          BIGINT PRIMARY KEY,
	continent         TEXT NOT NULL,
	position          INTEGER NOT NULL,
	geom              BYTEA,
	mean_q            DOUBLE PRECISION NOT NULL,
	min_q             DOUBLE PRECISION NOT NULL,
	max_q             DOUBLE PRECISION NOT NULL,
	two_year_return_q DOUBLE PRECISION NOT NULL,
	monthly_q         DOUBLE PRECISION[] NOT NULL,
	flow_duration_q   DOUBLE PRECISION[] NOT NULL
);

CREATE TABLE IF NOT EXISTS gauges (
	agency      TEXT NOT NULL,
	site_id     TEXT NOT NULL,
	historical  SMALLINT NOT NULL,
	reach_id    BIGINT NOT NULL,
	calibration SMALLINT NOT NULL,
	continent   TEXT NOT NULL,
	PRIMARY KEY (agency, site_id, historical)
);

CREATE TABLE IF NOT EXISTS gauge_stats (
	agency            TEXT NOT NULL,
	site_id           TEXT NOT NULL,
	historical        SMALLINT NOT NULL,
	reach_id          BIGINT NOT NULL,
	calibration       SMALLINT NOT NULL,
	continent         TEXT NOT NULL,
	run_id            TEXT NOT NULL,
	valid_days        INTEGER NOT NULL,
	first_date        DATE,
	last_date         DATE,
	mean_q            DOUBLE PRECISION NOT NULL,
	min_q             DOUBLE PRECISION NOT NULL,
	max_q             DOUBLE PRECISION NOT NULL,
	two_year_return_q DOUBLE PRECISION NOT NULL,
	monthly_q         DOUBLE PRECISION[] NOT NULL,
	flow_duration_q   DOUBLE PRECISION[] NOT NULL,
	PRIMARY KEY (agency, site_id, historical)
);

CREATE TABLE IF NOT EXISTS reach_provenance (
	reach_id           BIGINT PRIMARY KEY,
	run_id             TEXT NOT NULL,
	overwritten        SMALLINT NOT NULL,
	overwritten_source TEXT NOT NULL,
	bad_prior          SMALLINT NOT NULL,
	bad_prior_source   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS provenance_history (
	run_id             TEXT NOT NULL,
	reach_id           BIGINT NOT NULL,
	overwritten        SMALLINT NOT NULL,
	overwritten_source TEXT NOT NULL,
	bad_prior          SMALLINT NOT NULL,
	bad_prior_source   TEXT NOT NULL,
	PRIMARY KEY (run_id, reach_id)
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	continent    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	summary      JSONB,
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_reaches_continent ON reaches(continent, position);
CREATE INDEX IF NOT EXISTS idx_gauges_continent ON gauges(continent);
CREATE INDEX IF NOT EXISTS idx_gauge_stats_lookup ON gauge_stats(continent, agency, historical);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_continent ON runs(continent);
`

var (
	reachColumns  = append([]string{"reach_id", "continent", "position", "geom"}, statsColumns...)
	gaugeColumns  = []string{"agency", "site_id", "historical", "reach_id", "calibration", "continent"}
	gaugeStatCols = append(append(append([]string{}, gaugeColumns...), "run_id", "valid_days", "first_date", "last_date"), statsColumns...)
	ledgerColumns = []string{"reach_id", "run_id", "overwritten", "overwritten_source", "bad_prior", "bad_prior_source"}
	gaugeKeys     = []string{"agency", "site_id", "historical"}
)

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

func (s *PostgresStore) UpsertReaches(ctx context.Context, reaches []model.Reach) (int64, error) {
	missing := s.fill.statsRow(model.MissingStatistics())
	rows := make([][]any, len(reaches))
	for i, r := range reaches {
		rows[i] = append([]any{r.ReachID, r.Continent, i, r.Geometry}, missing...)
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "reaches",
		Columns:      reachColumns,
		ConflictKeys: []string{"reach_id"},
		UpdateCols:   []string{"continent", "position", "geom"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert reaches")
}

func (s *PostgresStore) LoadCanonical(ctx context.Context, continent string) (*model.Canonical, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT reach_id, mean_q, min_q, max_q, two_year_return_q, monthly_q, flow_duration_q
		 FROM reaches WHERE continent = $1 ORDER BY position, reach_id`,
		continent,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load canonical %s", continent)
	}
	defer rows.Close()

	c := &model.Canonical{Continent: continent}
	for rows.Next() {
		var r model.CanonicalReachPrior
		var mean, minQ, maxQ, tyr float64
		var monthly, fdq []float64
		if err := rows.Scan(&r.ReachID, &mean, &minQ, &maxQ, &tyr, &monthly, &fdq); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reach")
		}
		if r.Statistics, err = s.fill.scanStats(mean, minQ, maxQ, tyr, monthly, fdq); err != nil {
			return nil, eris.Wrapf(err, "postgres: reach %d", r.ReachID)
		}
		c.Reaches = append(c.Reaches, r)
	}
	return c, eris.Wrap(rows.Err(), "postgres: load canonical iterate")
}

// SaveCanonical upserts reach statistics. Positions of existing reaches are
// kept; new reaches are appended after the current maximum.
func (s *PostgresStore) SaveCanonical(ctx context.Context, canonical *model.Canonical) error {
	var base int
	if err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM reaches WHERE continent = $1`, canonical.Continent,
	).Scan(&base); err != nil {
		return eris.Wrap(err, "postgres: next position")
	}

	cols := append([]string{"reach_id", "continent", "position"}, statsColumns...)
	rows := make([][]any, len(canonical.Reaches))
	for i, r := range canonical.Reaches {
		rows[i] = append([]any{r.ReachID, canonical.Continent, base + i}, s.fill.statsRow(r.Statistics)...)
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "reaches",
		Columns:      cols,
		ConflictKeys: []string{"reach_id"},
		UpdateCols:   statsColumns,
	}, rows)
	return eris.Wrap(err, "postgres: save canonical")
}

func (s *PostgresStore) UpsertGauges(ctx context.Context, gauges []model.Gauge) (int64, error) {
	rows := make([][]any, len(gauges))
	for i, g := range gauges {
		rows[i] = s.gaugeRow(g)
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "gauges",
		Columns:      gaugeColumns,
		ConflictKeys: gaugeKeys,
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert gauges")
}

func (s *PostgresStore) LoadGauges(ctx context.Context, continent string) ([]model.Gauge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agency, site_id, historical, reach_id, calibration, continent
		 FROM gauges WHERE continent = $1 ORDER BY agency, historical DESC, site_id`,
		continent,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load gauges %s", continent)
	}
	defer rows.Close()

	var gauges []model.Gauge
	for rows.Next() {
		var g model.Gauge
		var historical, cal int16
		if err := rows.Scan(&g.Agency, &g.SiteID, &historical, &g.ReachID, &cal, &g.Continent); err != nil {
			return nil, eris.Wrap(err, "postgres: scan gauge")
		}
		g.Historical = historical == 1
		g.Calibration = model.CalFlag(cal)
		g.ReachID = s.fill.unreachID(g.ReachID)
		gauges = append(gauges, g)
	}
	return gauges, eris.Wrap(rows.Err(), "postgres: load gauges iterate")
}

func (s *PostgresStore) SaveGaugeStats(ctx context.Context, runID string, stats []model.GaugeStatistics) error {
	rows := make([][]any, len(stats))
	for i, gs := range stats {
		row := append(s.gaugeRow(gs.Gauge), runID, gs.ValidDays, dateArg(gs.Coverage.First), dateArg(gs.Coverage.Last))
		rows[i] = append(row, s.fill.statsRow(gs.Statistics)...)
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "gauge_stats",
		Columns:      gaugeStatCols,
		ConflictKeys: gaugeKeys,
	}, rows)
	return eris.Wrap(err, "postgres: save gauge stats")
}

func (s *PostgresStore) LoadGaugeStats(ctx context.Context, continent, agency string, historical bool) ([]model.GaugeStatistics, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agency, site_id, historical, reach_id, calibration, continent, valid_days, first_date, last_date,
		        mean_q, min_q, max_q, two_year_return_q, monthly_q, flow_duration_q
		 FROM gauge_stats WHERE continent = $1 AND agency = $2 AND historical = $3 ORDER BY site_id`,
		continent, agency, flag(historical),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load gauge stats %s/%s", continent, agency)
	}
	defer rows.Close()

	var out []model.GaugeStatistics
	for rows.Next() {
		var gs model.GaugeStatistics
		var hist, cal int16
		var first, last *time.Time
		var mean, minQ, maxQ, tyr float64
		var monthly, fdq []float64
		if err := rows.Scan(&gs.Gauge.Agency, &gs.Gauge.SiteID, &hist, &gs.Gauge.ReachID, &cal,
			&gs.Gauge.Continent, &gs.ValidDays, &first, &last, &mean, &minQ, &maxQ, &tyr, &monthly, &fdq); err != nil {
			return nil, eris.Wrap(err, "postgres: scan gauge stats")
		}
		if first != nil && last != nil {
			gs.Coverage = model.Coverage{First: first, Last: last}
		}
		gs.Gauge.Historical = hist == 1
		gs.Gauge.Calibration = model.CalFlag(cal)
		gs.Gauge.ReachID = s.fill.unreachID(gs.Gauge.ReachID)
		if gs.Statistics, err = s.fill.scanStats(mean, minQ, maxQ, tyr, monthly, fdq); err != nil {
			return nil, eris.Wrapf(err, "postgres: gauge %s/%s", gs.Gauge.Agency, gs.Gauge.SiteID)
		}
		out = append(out, gs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: load gauge stats iterate")
}

// SaveLedger upserts current provenance and appends the pass to the history
// with COPY.
func (s *PostgresStore) SaveLedger(ctx context.Context, records []model.ReachProvenance) error {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{
			r.ReachID, r.RunID,
			flag(r.Overwritten), s.fill.code(r.OverwrittenSource),
			flag(r.BadPrior), s.fill.code(r.BadPriorSource),
		}
	}
	if _, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "reach_provenance",
		Columns:      ledgerColumns,
		ConflictKeys: []string{"reach_id"},
	}, rows); err != nil {
		return eris.Wrap(err, "postgres: save ledger")
	}
	_, err := db.CopyFrom(ctx, s.pool, "provenance_history", ledgerColumns, rows)
	return eris.Wrap(err, "postgres: append provenance history")
}

func (s *PostgresStore) LoadProvenance(ctx context.Context, reachID int64) (*model.ReachProvenance, error) {
	var p model.ReachProvenance
	var overwritten, bad int16
	var oSrc, bSrc string
	err := s.pool.QueryRow(ctx,
		`SELECT reach_id, run_id, overwritten, overwritten_source, bad_prior, bad_prior_source
		 FROM reach_provenance WHERE reach_id = $1`,
		reachID,
	).Scan(&p.ReachID, &p.RunID, &overwritten, &oSrc, &bad, &bSrc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "provenance for reach %d", reachID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load provenance %d", reachID)
	}
	p.Overwritten = overwritten == 1
	p.OverwrittenSource = s.fill.uncode(oSrc)
	p.BadPrior = bad == 1
	p.BadPriorSource = s.fill.uncode(bSrc)
	return &p, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, continent string, startedAt time.Time) (*model.Run, error) {
	id := uuid.New().String()
	startedAt = startedAt.UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, continent, status, started_at) VALUES ($1, $2, $3, $4)`,
		id, continent, string(model.RunStatusRunning), startedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Continent: continent,
		Status:    model.RunStatusRunning,
		StartedAt: startedAt,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary, at time.Time) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusComplete), summaryJSON, at.UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error, at time.Time) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), msg, at.UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, continent, status, summary, error, started_at, completed_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, continent, status, summary, error, started_at, completed_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Continent != "" {
		query += fmt.Sprintf(` AND continent = $%d`, argIdx)
		args = append(args, filter.Continent)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) gaugeRow(g model.Gauge) []any {
	return []any{g.Agency, g.SiteID, flag(g.Historical), s.fill.reachID(g.ReachID), int(g.Calibration), g.Continent}
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var summary []byte
	var runErr *string

	if err := row.Scan(&r.ID, &r.Continent, &r.Status, &summary, &runErr, &r.StartedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	if runErr != nil {
		r.Error = *runErr
	}
	if len(summary) > 0 {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summary, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}
