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

	"github.com/sells-group/ecm-cli/internal/dataset"
	"github.com/sells-group/ecm-cli/internal/db"
	"github.com/sells-group/ecm-cli/internal/model"
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

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_run":   `INSERT INTO runs (id, query, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_run": `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
	"fail_run":     `UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"get_run":      `SELECT id, query, status, result, error, created_at, updated_at FROM runs WHERE id = $1`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ecm_measures (
	position     INTEGER PRIMARY KEY,
	measure_key  TEXT NOT NULL,
	bldg_types   TEXT,
	conflict_ids TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ecm_savings (
	seq                INTEGER PRIMARY KEY,
	measure_id         INTEGER NOT NULL,
	building_type      INTEGER NOT NULL,
	vintage            INTEGER NOT NULL,
	climate_zone       INTEGER NOT NULL,
	saving_pct         DOUBLE PRECISION NOT NULL DEFAULT 0,
	co2_reduction_klbs DOUBLE PRECISION NOT NULL DEFAULT 0,
	cost               DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ecm_baselines (
	seq           INTEGER PRIMARY KEY,
	building_type INTEGER NOT NULL,
	vintage       INTEGER NOT NULL,
	climate_zone  INTEGER NOT NULL,
	energy        DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query      JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
`

var (
	measureColumns  = []string{"position", "measure_key", "bldg_types", "conflict_ids"}
	savingColumns   = []string{"seq", "measure_id", "building_type", "vintage", "climate_zone", "saving_pct", "co2_reduction_klbs", "cost"}
	baselineColumns = []string{"seq", "building_type", "vintage", "climate_zone", "energy"}
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

// ReplaceDataset truncates the dataset tables and bulk loads ds with COPY
// inside one transaction.
func (s *PostgresStore) ReplaceDataset(ctx context.Context, ds *dataset.Dataset) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace dataset")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `TRUNCATE ecm_measures, ecm_savings, ecm_baselines`); err != nil {
		return eris.Wrap(err, "postgres: truncate dataset")
	}

	measures := make([][]any, len(ds.Measures))
	for i, m := range ds.Measures {
		measures[i] = []any{i, m.Key, encodeBuildingTypes(m), joinIDs(m.ConflictIDs, conflictSep)}
	}
	savings := make([][]any, len(ds.Savings))
	for i, sv := range ds.Savings {
		savings[i] = []any{i, sv.MeasureID, sv.BuildingType, sv.Vintage, sv.ClimateZone, sv.SavingPct, sv.CO2ReductionKlbs, sv.Cost}
	}
	baselines := make([][]any, len(ds.Baselines))
	for i, b := range ds.Baselines {
		baselines[i] = []any{i, b.BuildingType, b.Vintage, b.ClimateZone, b.Energy}
	}

	for _, load := range []struct {
		table   string
		columns []string
		rows    [][]any
	}{
		{"ecm_measures", measureColumns, measures},
		{"ecm_savings", savingColumns, savings},
		{"ecm_baselines", baselineColumns, baselines},
	} {
		if _, err := db.CopyFrom(ctx, tx, load.table, load.columns, load.rows); err != nil {
			return eris.Wrap(err, "postgres: replace dataset")
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace dataset")
}

// LoadDataset returns the stored dataset in import order.
func (s *PostgresStore) LoadDataset(ctx context.Context) (*dataset.Dataset, error) {
	ds := &dataset.Dataset{}

	rows, err := s.pool.Query(ctx, `SELECT measure_key, bldg_types, conflict_ids FROM ecm_measures ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load measures")
	}
	for rows.Next() {
		var key, conflicts string
		var bldg *string
		if err := rows.Scan(&key, &bldg, &conflicts); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan measure")
		}
		m, err := decodeMeasure(key, bldg, conflicts)
		if err != nil {
			rows.Close()
			return nil, err
		}
		ds.Measures = append(ds.Measures, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: load measures iterate")
	}
	if len(ds.Measures) == 0 {
		return nil, errNoDataset()
	}

	rows, err = s.pool.Query(ctx,
		`SELECT measure_id, building_type, vintage, climate_zone, saving_pct, co2_reduction_klbs, cost FROM ecm_savings ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load savings")
	}
	for rows.Next() {
		var sv dataset.Saving
		if err := rows.Scan(&sv.MeasureID, &sv.BuildingType, &sv.Vintage, &sv.ClimateZone, &sv.SavingPct, &sv.CO2ReductionKlbs, &sv.Cost); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan saving")
		}
		ds.Savings = append(ds.Savings, sv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: load savings iterate")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT building_type, vintage, climate_zone, energy FROM ecm_baselines ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load baselines")
	}
	defer rows.Close()
	for rows.Next() {
		var b dataset.Baseline
		if err := rows.Scan(&b.BuildingType, &b.Vintage, &b.ClimateZone, &b.Energy); err != nil {
			return nil, eris.Wrap(err, "postgres: scan baseline")
		}
		ds.Baselines = append(ds.Baselines, b)
	}
	return ds, eris.Wrap(rows.Err(), "postgres: load baselines iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, q model.Query) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queryJSON, err := json.Marshal(q)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal query")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, query, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, queryJSON, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Query:     q,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, rec *model.Recommendation) error {
	resultJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

// FailRun marks a run infeasible or failed depending on cause.
func (s *PostgresStore) FailRun(ctx context.Context, runID string, cause error) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.StatusForError(cause)), errorText(cause), time.Now().UTC(), runID,
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
		`SELECT id, query, status, result, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, query, status, result, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.BuildingType > 0 {
		query += fmt.Sprintf(` AND (query->'context'->>'building_type')::int = $%d`, argIdx)
		args = append(args, filter.BuildingType)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
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
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var queryJSON []byte
	var resultJSON *[]byte
	var status string

	if err := row.Scan(&r.ID, &queryJSON, &status, &resultJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)

	if err := json.Unmarshal(queryJSON, &r.Query); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal query")
	}
	if resultJSON != nil {
		r.Result = &model.Recommendation{}
		if err := json.Unmarshal(*resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}
