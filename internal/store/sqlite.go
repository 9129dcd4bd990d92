package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/sos-priors/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Statistic arrays are
// stored as JSON text.
type SQLiteStore struct {
	db   *sql.DB
	fill Fill
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, fill Fill) (*SQLiteStore, error) {
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
	return &SQLiteStore{db: db, fill: fill}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reaches (
	reach_id          INTEGER PRIMARY KEY,
	continent         TEXT NOT NULL,
	position          INTEGER NOT NULL,
	geom              BLOB,
	mean_q            REAL NOT NULL,
	min_q             REAL NOT NULL,
	max_q             REAL NOT NULL,
	two_year_return_q REAL NOT NULL,
	monthly_q         TEXT NOT NULL,
	flow_duration_q   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS gauges (
	agency      TEXT NOT NULL,
	site_id     TEXT NOT NULL,
	historical  INTEGER NOT NULL,
	reach_id    INTEGER NOT NULL,
	calibration INTEGER NOT NULL,
	continent   TEXT NOT NULL,
	PRIMARY KEY (agency, site_id, historical)
);

CREATE TABLE IF NOT EXISTS gauge_stats (
	agency            TEXT NOT NULL,
	site_id           TEXT NOT NULL,
	historical        INTEGER NOT NULL,
	reach_id          INTEGER NOT NULL,
	calibration       INTEGER NOT NULL,
	continent         TEXT NOT NULL,
	run_id            TEXT NOT NULL,
	valid_days        INTEGER NOT NULL,
	first_date        DATETIME,
	last_date         DATETIME,
	mean_q            REAL NOT NULL,
	min_q             REAL NOT NULL,
	max_q             REAL NOT NULL,
	two_year_return_q REAL NOT NULL,
	monthly_q         TEXT NOT NULL,
	flow_duration_q   TEXT NOT NULL,
	PRIMARY KEY (agency, site_id, historical)
);

CREATE TABLE IF NOT EXISTS reach_provenance (
	reach_id           INTEGER PRIMARY KEY,
	run_id             TEXT NOT NULL,
	overwritten        INTEGER NOT NULL,
	overwritten_source TEXT NOT NULL,
	bad_prior          INTEGER NOT NULL,
	bad_prior_source   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS provenance_history (
	run_id             TEXT NOT NULL,
	reach_id           INTEGER NOT NULL,
	overwritten        INTEGER NOT NULL,
	overwritten_source TEXT NOT NULL,
	bad_prior          INTEGER NOT NULL,
	bad_prior_source   TEXT NOT NULL,
	PRIMARY KEY (run_id, reach_id)
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	continent    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	summary      TEXT,
	error        TEXT,
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_reaches_continent ON reaches(continent, position);
CREATE INDEX IF NOT EXISTS idx_gauges_continent ON gauges(continent);
CREATE INDEX IF NOT EXISTS idx_gauge_stats_lookup ON gauge_stats(continent, agency, historical);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_continent ON runs(continent);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertReaches inserts reaches with missing statistics, or refreshes the
// continent, position and geometry of reaches already present. Position is
// the index in reaches.
func (s *SQLiteStore) UpsertReaches(ctx context.Context, reaches []model.Reach) (int64, error) {
	missing, err := s.statsArgs(model.MissingStatistics())
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO reaches
			(reach_id, continent, position, geom, mean_q, min_q, max_q, two_year_return_q, monthly_q, flow_duration_q)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(reach_id) DO UPDATE SET
				continent = excluded.continent, position = excluded.position, geom = excluded.geom`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare upsert reaches")
		}
		defer stmt.Close()

		for i, r := range reaches {
			args := append([]any{r.ReachID, r.Continent, i, r.Geometry}, missing...)
			res, err := stmt.ExecContext(ctx, args...)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert reach %d", r.ReachID)
			}
			affected, _ := res.RowsAffected()
			n += affected
		}
		return nil
	})
	return n, err
}

func (s *SQLiteStore) LoadCanonical(ctx context.Context, continent string) (*model.Canonical, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT reach_id, mean_q, min_q, max_q, two_year_return_q, monthly_q, flow_duration_q
		 FROM reaches WHERE continent = ? ORDER BY position, reach_id`,
		continent,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load canonical %s", continent)
	}
	defer rows.Close()

	c := &model.Canonical{Continent: continent}
	for rows.Next() {
		var r model.CanonicalReachPrior
		var mean, minQ, maxQ, tyr float64
		var monthly, fdq string
		if err := rows.Scan(&r.ReachID, &mean, &minQ, &maxQ, &tyr, &monthly, &fdq); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reach")
		}
		if r.Statistics, err = s.scanStats(mean, minQ, maxQ, tyr, monthly, fdq); err != nil {
			return nil, eris.Wrapf(err, "sqlite: reach %d", r.ReachID)
		}
		c.Reaches = append(c.Reaches, r)
	}
	return c, eris.Wrap(rows.Err(), "sqlite: load canonical iterate")
}

// SaveCanonical writes the statistics of every reach. Reaches not yet present
// are appended after the existing ones.
func (s *SQLiteStore) SaveCanonical(ctx context.Context, canonical *model.Canonical) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var base int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM reaches WHERE continent = ?`, canonical.Continent,
		).Scan(&base); err != nil {
			return eris.Wrap(err, "sqlite: next position")
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO reaches
			(reach_id, continent, position, mean_q, min_q, max_q, two_year_return_q, monthly_q, flow_duration_q)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(reach_id) DO UPDATE SET
				mean_q = excluded.mean_q, min_q = excluded.min_q, max_q = excluded.max_q,
				two_year_return_q = excluded.two_year_return_q,
				monthly_q = excluded.monthly_q, flow_duration_q = excluded.flow_duration_q`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare save canonical")
		}
		defer stmt.Close()

		for i, r := range canonical.Reaches {
			stats, err := s.statsArgs(r.Statistics)
			if err != nil {
				return err
			}
			args := append([]any{r.ReachID, canonical.Continent, base + i}, stats...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return eris.Wrapf(err, "sqlite: save reach %d", r.ReachID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpsertGauges(ctx context.Context, gauges []model.Gauge) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO gauges
			(agency, site_id, historical, reach_id, calibration, continent) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(agency, site_id, historical) DO UPDATE SET
				reach_id = excluded.reach_id, calibration = excluded.calibration, continent = excluded.continent`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare upsert gauges")
		}
		defer stmt.Close()

		for _, g := range gauges {
			res, err := stmt.ExecContext(ctx,
				g.Agency, g.SiteID, flag(g.Historical), s.fill.reachID(g.ReachID), int(g.Calibration), g.Continent)
			if err != nil {
				return eris.Wrapf(err, "sqlite: upsert gauge %s/%s", g.Agency, g.SiteID)
			}
			affected, _ := res.RowsAffected()
			n += affected
		}
		return nil
	})
	return n, err
}

func (s *SQLiteStore) LoadGauges(ctx context.Context, continent string) ([]model.Gauge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agency, site_id, historical, reach_id, calibration, continent
		 FROM gauges WHERE continent = ? ORDER BY agency, historical DESC, site_id`,
		continent,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load gauges %s", continent)
	}
	defer rows.Close()

	var gauges []model.Gauge
	for rows.Next() {
		var g model.Gauge
		var historical, cal int
		if err := rows.Scan(&g.Agency, &g.SiteID, &historical, &g.ReachID, &cal, &g.Continent); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan gauge")
		}
		g.Historical = historical == 1
		g.Calibration = model.CalFlag(cal)
		g.ReachID = s.fill.unreachID(g.ReachID)
		gauges = append(gauges, g)
	}
	return gauges, eris.Wrap(rows.Err(), "sqlite: load gauges iterate")
}

// SaveGaugeStats keeps the latest statistics per gauge.
func (s *SQLiteStore) SaveGaugeStats(ctx context.Context, runID string, stats []model.GaugeStatistics) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO gauge_stats
			(agency, site_id, historical, reach_id, calibration, continent, run_id, valid_days,
			 first_date, last_date, mean_q, min_q, max_q, two_year_return_q, monthly_q, flow_duration_q)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare save gauge stats")
		}
		defer stmt.Close()

		for _, gs := range stats {
			g := gs.Gauge
			vals, err := s.statsArgs(gs.Statistics)
			if err != nil {
				return err
			}
			args := append([]any{
				g.Agency, g.SiteID, flag(g.Historical), s.fill.reachID(g.ReachID), int(g.Calibration),
				g.Continent, runID, gs.ValidDays, dateArg(gs.Coverage.First), dateArg(gs.Coverage.Last),
			}, vals...)
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return eris.Wrapf(err, "sqlite: save gauge stats %s/%s", g.Agency, g.SiteID)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) LoadGaugeStats(ctx context.Context, continent, agency string, historical bool) ([]model.GaugeStatistics, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agency, site_id, historical, reach_id, calibration, continent, valid_days, first_date, last_date,
		        mean_q, min_q, max_q, two_year_return_q, monthly_q, flow_duration_q
		 FROM gauge_stats WHERE continent = ? AND agency = ? AND historical = ? ORDER BY site_id`,
		continent, agency, flag(historical),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load gauge stats %s/%s", continent, agency)
	}
	defer rows.Close()

	var out []model.GaugeStatistics
	for rows.Next() {
		var gs model.GaugeStatistics
		var hist, cal int
		var first, last sql.NullTime
		var mean, minQ, maxQ, tyr float64
		var monthly, fdq string
		if err := rows.Scan(&gs.Gauge.Agency, &gs.Gauge.SiteID, &hist, &gs.Gauge.ReachID, &cal,
			&gs.Gauge.Continent, &gs.ValidDays, &first, &last, &mean, &minQ, &maxQ, &tyr, &monthly, &fdq); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan gauge stats")
		}
		if first.Valid && last.Valid {
			f, l := first.Time.UTC(), last.Time.UTC()
			gs.Coverage = model.Coverage{First: &f, Last: &l}
		}
		gs.Gauge.Historical = hist == 1
		gs.Gauge.Calibration = model.CalFlag(cal)
		gs.Gauge.ReachID = s.fill.unreachID(gs.Gauge.ReachID)
		if gs.Statistics, err = s.scanStats(mean, minQ, maxQ, tyr, monthly, fdq); err != nil {
			return nil, eris.Wrapf(err, "sqlite: gauge %s/%s", gs.Gauge.Agency, gs.Gauge.SiteID)
		}
		out = append(out, gs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: load gauge stats iterate")
}

// SaveLedger replaces the current provenance of every reach in records and
// appends the records to the history.
func (s *SQLiteStore) SaveLedger(ctx context.Context, records []model.ReachProvenance) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"reach_provenance", "provenance_history"} {
			stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO `+table+`
				(reach_id, run_id, overwritten, overwritten_source, bad_prior, bad_prior_source)
				VALUES (?, ?, ?, ?, ?, ?)`)
			if err != nil {
				return eris.Wrapf(err, "sqlite: prepare %s", table)
			}
			for _, r := range records {
				if _, err := stmt.ExecContext(ctx, s.ledgerArgs(r)...); err != nil {
					stmt.Close()
					return eris.Wrapf(err, "sqlite: save %s for reach %d", table, r.ReachID)
				}
			}
			stmt.Close()
		}
		return nil
	})
}

func (s *SQLiteStore) LoadProvenance(ctx context.Context, reachID int64) (*model.ReachProvenance, error) {
	var p model.ReachProvenance
	var overwritten, bad int
	var oSrc, bSrc string
	err := s.db.QueryRowContext(ctx,
		`SELECT reach_id, run_id, overwritten, overwritten_source, bad_prior, bad_prior_source
		 FROM reach_provenance WHERE reach_id = ?`,
		reachID,
	).Scan(&p.ReachID, &p.RunID, &overwritten, &oSrc, &bad, &bSrc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "provenance for reach %d", reachID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load provenance %d", reachID)
	}
	p.Overwritten = overwritten == 1
	p.OverwrittenSource = s.fill.uncode(oSrc)
	p.BadPrior = bad == 1
	p.BadPriorSource = s.fill.uncode(bSrc)
	return &p, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, continent string, startedAt time.Time) (*model.Run, error) {
	id := uuid.New().String()
	startedAt = startedAt.UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, continent, status, started_at) VALUES (?, ?, ?, ?)`,
		id, continent, string(model.RunStatusRunning), startedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Continent: continent,
		Status:    model.RunStatusRunning,
		StartedAt: startedAt,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, summary *model.RunSummary, at time.Time) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), string(summaryJSON), at.UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error, at time.Time) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), msg, at.UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, continent, status, summary, error, started_at, completed_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, continent, status, summary, error, started_at, completed_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Continent != "" {
		query += ` AND continent = ?`
		args = append(args, filter.Continent)
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// statsArgs renders a bundle in statsColumns order with arrays as JSON.
func (s *SQLiteStore) statsArgs(st model.Statistics) ([]any, error) {
	row := s.fill.statsRow(st)
	for _, i := range []int{4, 5} {
		b, err := json.Marshal(row[i])
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal statistics")
		}
		row[i] = string(b)
	}
	return row, nil
}

func (s *SQLiteStore) scanStats(mean, minQ, maxQ, tyr float64, monthlyJSON, fdqJSON string) (model.Statistics, error) {
	var monthly, fdq []float64
	if err := json.Unmarshal([]byte(monthlyJSON), &monthly); err != nil {
		return model.Statistics{}, eris.Wrap(err, "sqlite: unmarshal monthly_q")
	}
	if err := json.Unmarshal([]byte(fdqJSON), &fdq); err != nil {
		return model.Statistics{}, eris.Wrap(err, "sqlite: unmarshal flow_duration_q")
	}
	return s.fill.scanStats(mean, minQ, maxQ, tyr, monthly, fdq)
}

func (s *SQLiteStore) ledgerArgs(r model.ReachProvenance) []any {
	return []any{
		r.ReachID, r.RunID,
		flag(r.Overwritten), s.fill.code(r.OverwrittenSource),
		flag(r.BadPrior), s.fill.code(r.BadPriorSource),
	}
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var summaryJSON, runErr sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&r.ID, &r.Continent, &r.Status, &summaryJSON, &runErr, &r.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Error = runErr.String
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if summaryJSON.Valid && strings.TrimSpace(summaryJSON.String) != "" {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}
