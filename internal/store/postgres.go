package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/featuremart/internal/db"
	"github.com/sells-group/featuremart/internal/feature"
	"github.com/sells-group/featuremart/internal/model"
)

// Table names. Features live in their own schema so the swap rename stays
// local to it.
const (
	pgSchema        = "featuremart"
	pgFactsTable    = pgSchema + ".facts"
	pgFeaturesTable = pgSchema + ".features"
	pgStagingTable  = pgSchema + ".features_staging"
	pgRunsTable     = pgSchema + ".build_runs"
	pgViolTable     = pgSchema + ".violations"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	return &PostgresStore{pool: pool}, nil
}

const pgMigration = `
CREATE SCHEMA IF NOT EXISTS featuremart;

CREATE TABLE IF NOT EXISTS featuremart.facts (
	entity_id       TEXT NOT NULL,
	state           TEXT,
	kind            TEXT NOT NULL,
	event_timestamp TIMESTAMPTZ NOT NULL,
	loan_amount     DOUBLE PRECISION,
	funded_amount   DOUBLE PRECISION,
	annual_income   DOUBLE PRECISION,
	dti             DOUBLE PRECISION,
	int_rate_pct    DOUBLE PRECISION,
	revol_util_pct  DOUBLE PRECISION,
	fico_avg        DOUBLE PRECISION,
	UNIQUE (entity_id, event_timestamp, kind)
);

CREATE TABLE IF NOT EXISTS featuremart.build_runs (
	id          TEXT PRIMARY KEY,
	feature_set TEXT NOT NULL,
	status      TEXT NOT NULL,
	fact_count  BIGINT NOT NULL DEFAULT 0,
	row_count   BIGINT NOT NULL DEFAULT 0,
	violations  BIGINT NOT NULL DEFAULT 0,
	error       TEXT,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS featuremart.violations (
	run_id    TEXT NOT NULL REFERENCES featuremart.build_runs(id),
	rule      TEXT NOT NULL,
	entity_id TEXT,
	ts        TIMESTAMPTZ,
	detail    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_facts_entity ON featuremart.facts(entity_id, event_timestamp);
CREATE INDEX IF NOT EXISTS idx_build_runs_started ON featuremart.build_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_violations_run ON featuremart.violations(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, pgMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertFacts(ctx context.Context, facts []model.Fact) (int64, error) {
	columns := append([]string{"entity_id", "state", "kind", "event_timestamp"}, factAttributeColumns...)
	rows := make([][]any, 0, len(facts))
	for _, f := range facts {
		vals := make([]any, 0, len(columns))
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
		rows = append(rows, vals)
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        pgFactsTable,
		Columns:      columns,
		ConflictKeys: []string{"entity_id", "event_timestamp", "kind"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert facts")
	}
	return n, nil
}

func (s *PostgresStore) LoadFacts(ctx context.Context) ([]model.Fact, error) {
	cols := strings.Join(factAttributeColumns, ", ")
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT entity_id, state, kind, event_timestamp, %s
		 FROM %s ORDER BY entity_id, event_timestamp`, cols, pgFactsTable))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load facts")
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
			return nil, eris.Wrap(err, "postgres: scan fact")
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
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate facts")
	}
	return facts, nil
}

func (s *PostgresStore) CreateStaging(ctx context.Context, set feature.FeatureSet) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", pgStagingTable)); err != nil {
		return eris.Wrap(err, "postgres: drop staging")
	}
	if _, err := s.pool.Exec(ctx, featureTableDDL(pgStagingTable, set, "TIMESTAMPTZ", "DOUBLE PRECISION")); err != nil {
		return eris.Wrap(err, "postgres: create staging")
	}
	return nil
}

func (s *PostgresStore) WriteStaging(ctx context.Context, set feature.FeatureSet, rows []model.FeatureRow) (int64, error) {
	data := make([][]any, 0, len(rows))
	for _, row := range rows {
		data = append(data, featureRowValues(set, row))
	}
	n, err := db.CopyFrom(ctx, s.pool, pgStagingTable, stagingColumns(set), data)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: write staging")
	}
	return n, nil
}

func (s *PostgresStore) Promote(ctx context.Context) error {
	return db.SwapTables(ctx, s.pool, pgFeaturesTable, pgStagingTable)
}

func (s *PostgresStore) StartRun(ctx context.Context, run *model.BuildRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO featuremart.build_runs (id, feature_set, status, started_at)
		 VALUES ($1, $2, $3, $4)`,
		run.ID, run.FeatureSet, string(run.Status), run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: start run %s", run.ID)
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.BuildRun) error {
	var errMsg any
	if run.Error != "" {
		errMsg = run.Error
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE featuremart.build_runs
		 SET status = $1, fact_count = $2, row_count = $3, violations = $4, error = $5, finished_at = $6
		 WHERE id = $7`,
		string(run.Status), run.FactCount, run.RowCount, run.Violations, errMsg, time.Now().UTC(), run.ID,
	)
	return eris.Wrapf(err, "postgres: finish run %s", run.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.BuildRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, feature_set, status, fact_count, row_count, violations, error, started_at, finished_at
		 FROM featuremart.build_runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.BuildRun, error) {
	query := `SELECT id, feature_set, status, fact_count, row_count, violations, error, started_at, finished_at
	 FROM featuremart.build_runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.BuildRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) SaveViolations(ctx context.Context, runID string, violations []model.Violation) error {
	rows := make([][]any, 0, len(violations))
	for _, v := range violations {
		var entity, ts any
		if v.EntityID != "" {
			entity = v.EntityID
		}
		if !v.Timestamp.IsZero() {
			ts = v.Timestamp.UTC()
		}
		rows = append(rows, []any{runID, v.Rule, entity, ts, v.Detail})
	}
	_, err := db.CopyFrom(ctx, s.pool, pgViolTable,
		[]string{"run_id", "rule", "entity_id", "ts", "detail"}, rows)
	return eris.Wrapf(err, "postgres: save violations for run %s", runID)
}

func (s *PostgresStore) ListViolations(ctx context.Context, runID string) ([]model.Violation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT rule, entity_id, ts, detail FROM featuremart.violations WHERE run_id = $1`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list violations for run %s", runID)
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
			return nil, eris.Wrap(err, "postgres: scan violation")
		}
		v.EntityID = entity.String
		if ts.Valid {
			v.Timestamp = ts.Time
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate violations")
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (*model.BuildRun, error) {
	var (
		run      model.BuildRun
		status   string
		errMsg   sql.NullString
		finished sql.NullTime
	)
	if err := r.Scan(&run.ID, &run.FeatureSet, &status, &run.FactCount, &run.RowCount,
		&run.Violations, &errMsg, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	run.Status = model.RunStatus(status)
	run.Error = errMsg.String
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

// featureTableDDL builds the staging table definition from the catalog's
// column list. The key columns are fixed; feature columns follow catalog
// order.
func featureTableDDL(table string, set feature.FeatureSet, tsType, numType string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table)
	fmt.Fprintf(&b, "\tentity_id       TEXT NOT NULL,\n")
	fmt.Fprintf(&b, "\tevent_timestamp %s NOT NULL,\n", tsType)
	fmt.Fprintf(&b, "\tstate           TEXT")
	for _, col := range set.Columns() {
		colType := numType
		if col.Text {
			colType = "TEXT"
		}
		fmt.Fprintf(&b, ",\n\t%s %s", col.Name, colType)
	}
	b.WriteString("\n)")
	return b.String()
}
