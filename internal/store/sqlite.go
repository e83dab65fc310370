package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/featuremart/internal/feature"
	"github.com/sells-group/featuremart/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local runs and
// tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
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

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS facts (
	entity_id       TEXT NOT NULL,
	state           TEXT,
	kind            TEXT NOT NULL,
	event_timestamp DATETIME NOT NULL,
	loan_amount     REAL,
	funded_amount   REAL,
	annual_income   REAL,
	dti             REAL,
	int_rate_pct    REAL,
	revol_util_pct  REAL,
	fico_avg        REAL,
	UNIQUE (entity_id, event_timestamp, kind)
);

CREATE TABLE IF NOT EXISTS build_runs (
	id          TEXT PRIMARY KEY,
	feature_set TEXT NOT NULL,
	status      TEXT NOT NULL,
	fact_count  INTEGER NOT NULL DEFAULT 0,
	row_count   INTEGER NOT NULL DEFAULT 0,
	violations  INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS violations (
	run_id    TEXT NOT NULL REFERENCES build_runs(id),
	rule      TEXT NOT NULL,
	entity_id TEXT,
	ts        DATETIME,
	detail    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_facts_entity ON facts(entity_id, event_timestamp);
CREATE INDEX IF NOT EXISTS idx_build_runs_started ON build_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_violations_run ON violations(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertFacts(ctx context.Context, facts []model.Fact) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert facts: begin tx")
	}
	defer tx.Rollback()

	cols := append([]string{"entity_id", "state", "kind", "event_timestamp"}, factAttributeColumns...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR REPLACE INTO facts (%s) VALUES (%s)`,
		strings.Join(cols, ", "), placeholders))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert facts: prepare")
	}
	defer stmt.Close()

	var n int64
	for _, f := range facts {
		vals := make([]any, 0, len(cols))
		var state any
		if f.State != "" {
			state = f.State
		}
		vals = append(vals, f.EntityID, state, string(f.Kind), f.EventTimestamp.UTC())
		for _, col := range factAttributeColumns {
			if v := f.Value(col); v != nil {
				vals = append(vals, *v)
			} else {
				vals = append(vals, nil)
			}
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return 0, eris.Wrap(err, "sqlite: insert fact")
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert facts: commit")
	}
	return n, nil
}

func (s *SQLiteStore) LoadFacts(ctx context.Context) ([]model.Fact, error) {
	cols := strings.Join(factAttributeColumns, ", ")
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT entity_id, state, kind, event_timestamp, %s
		 FROM facts ORDER BY entity_id, event_timestamp`, cols))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load facts")
	}
	defer rows.Close()

	var facts []model.Fact
	for rows.Next() {
		var (
			f     model.Fact
			state sql.NullString
			kind  string
			attrs = make([]sql.NullFloat64, len(factAttributeColumns))
		)
		dest := []any{&f.EntityID, &state, &kind, &f.EventTimestamp}
		for i := range attrs {
			dest = append(dest, &attrs[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact")
		}
		f.State = state.String
		f.Kind = model.FactKind(kind)
		f.Values = make(map[string]*float64, len(factAttributeColumns))
		for i, col := range factAttributeColumns {
			if attrs[i].Valid {
				v := attrs[i].Float64
				f.Values[col] = &v
			}
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: iterate facts")
}

func (s *SQLiteStore) CreateStaging(ctx context.Context, set feature.FeatureSet) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS features_staging"); err != nil {
		return eris.Wrap(err, "sqlite: drop staging")
	}
	if _, err := s.db.ExecContext(ctx, featureTableDDL("features_staging", set, "DATETIME", "REAL")); err != nil {
		return eris.Wrap(err, "sqlite: create staging")
	}
	return nil
}

func (s *SQLiteStore) WriteStaging(ctx context.Context, set feature.FeatureSet, rows []model.FeatureRow) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: write staging: begin tx")
	}
	defer tx.Rollback()

	cols := stagingColumns(set)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO features_staging (%s) VALUES (%s)`,
		strings.Join(cols, ", "), placeholders))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: write staging: prepare")
	}
	defer stmt.Close()

	var n int64
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, featureRowValues(set, row)...); err != nil {
			return 0, eris.Wrap(err, "sqlite: write staging row")
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: write staging: commit")
	}
	return n, nil
}

// Promote swaps the staging table into place within one transaction. The
// previous table is retained as features_prev for rollback.
func (s *SQLiteStore) Promote(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: promote: begin tx")
	}
	defer tx.Rollback()

	var hasLive bool
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = 'features'`,
	).Scan(&hasLive)
	if err != nil {
		return eris.Wrap(err, "sqlite: promote: check live table")
	}

	stmts := []string{"DROP TABLE IF EXISTS features_prev"}
	if hasLive {
		stmts = append(stmts, "ALTER TABLE features RENAME TO features_prev")
	}
	stmts = append(stmts, "ALTER TABLE features_staging RENAME TO features")

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlite: promote: %s", stmt)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: promote: commit")
}

func (s *SQLiteStore) StartRun(ctx context.Context, run *model.BuildRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO build_runs (id, feature_set, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.FeatureSet, string(run.Status), run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: start run %s", run.ID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.BuildRun) error {
	var errMsg any
	if run.Error != "" {
		errMsg = run.Error
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE build_runs
		 SET status = ?, fact_count = ?, row_count = ?, violations = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.Status), run.FactCount, run.RowCount, run.Violations, errMsg, time.Now().UTC(), run.ID,
	)
	return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.BuildRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, feature_set, status, fact_count, row_count, violations, error, started_at, finished_at
		 FROM build_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.BuildRun, error) {
	query := `SELECT id, feature_set, status, fact_count, row_count, violations, error, started_at, finished_at
	 FROM build_runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.BuildRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) SaveViolations(ctx context.Context, runID string, violations []model.Violation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: save violations: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO violations (run_id, rule, entity_id, ts, detail) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: save violations: prepare")
	}
	defer stmt.Close()

	for _, v := range violations {
		var entity, ts any
		if v.EntityID != "" {
			entity = v.EntityID
		}
		if !v.Timestamp.IsZero() {
			ts = v.Timestamp.UTC()
		}
		if _, err := stmt.ExecContext(ctx, runID, v.Rule, entity, ts, v.Detail); err != nil {
			return eris.Wrap(err, "sqlite: save violation")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: save violations: commit")
}

func (s *SQLiteStore) ListViolations(ctx context.Context, runID string) ([]model.Violation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule, entity_id, ts, detail FROM violations WHERE run_id = ?`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list violations for run %s", runID)
	}
	defer rows.Close()

	var out []model.Violation
	for rows.Next() {
		var (
			v      model.Violation
			entity sql.NullString
			ts     sql.NullTime
		)
		if err := rows.Scan(&v.Rule, &entity, &ts, &v.Detail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan violation")
		}
		v.EntityID = entity.String
		if ts.Valid {
			v.Timestamp = ts.Time
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate violations")
}
