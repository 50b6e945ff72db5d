package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ecm-cli/internal/dataset"
	"github.com/sells-group/ecm-cli/internal/model"
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

const sqliteMigration = `
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
	saving_pct         REAL NOT NULL DEFAULT 0,
	co2_reduction_klbs REAL NOT NULL DEFAULT 0,
	cost               REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ecm_baselines (
	seq           INTEGER PRIMARY KEY,
	building_type INTEGER NOT NULL,
	vintage       INTEGER NOT NULL,
	climate_zone  INTEGER NOT NULL,
	energy        REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReplaceDataset swaps the stored dataset for ds in one transaction.
func (s *SQLiteStore) ReplaceDataset(ctx context.Context, ds *dataset.Dataset) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace dataset")
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"ecm_measures", "ecm_savings", "ecm_baselines"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return eris.Wrapf(err, "sqlite: clear %s", table)
		}
	}

	for i, m := range ds.Measures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ecm_measures (position, measure_key, bldg_types, conflict_ids) VALUES (?, ?, ?, ?)`,
			i, m.Key, encodeBuildingTypes(m), joinIDs(m.ConflictIDs, conflictSep),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert measure %s", m.Key)
		}
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO ecm_savings (seq, measure_id, building_type, vintage, climate_zone, saving_pct, co2_reduction_klbs, cost)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare savings insert")
	}
	defer stmt.Close()
	for i, sv := range ds.Savings {
		if _, err := stmt.ExecContext(ctx, i, sv.MeasureID, sv.BuildingType, sv.Vintage, sv.ClimateZone, sv.SavingPct, sv.CO2ReductionKlbs, sv.Cost); err != nil {
			return eris.Wrapf(err, "sqlite: insert saving %d", i)
		}
	}

	for i, b := range ds.Baselines {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ecm_baselines (seq, building_type, vintage, climate_zone, energy) VALUES (?, ?, ?, ?, ?)`,
			i, b.BuildingType, b.Vintage, b.ClimateZone, b.Energy,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert baseline %d", i)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace dataset")
}

// LoadDataset returns the stored dataset in import order.
func (s *SQLiteStore) LoadDataset(ctx context.Context) (*dataset.Dataset, error) {
	ds := &dataset.Dataset{}

	rows, err := s.db.QueryContext(ctx, `SELECT measure_key, bldg_types, conflict_ids FROM ecm_measures ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load measures")
	}
	defer rows.Close()
	for rows.Next() {
		var key, conflicts string
		var bldg sql.NullString
		if err := rows.Scan(&key, &bldg, &conflicts); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan measure")
		}
		var bt *string
		if bldg.Valid {
			bt = &bldg.String
		}
		m, err := decodeMeasure(key, bt, conflicts)
		if err != nil {
			return nil, err
		}
		ds.Measures = append(ds.Measures, m)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load measures iterate")
	}
	if len(ds.Measures) == 0 {
		return nil, errNoDataset()
	}

	srows, err := s.db.QueryContext(ctx,
		`SELECT measure_id, building_type, vintage, climate_zone, saving_pct, co2_reduction_klbs, cost FROM ecm_savings ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load savings")
	}
	defer srows.Close()
	for srows.Next() {
		var sv dataset.Saving
		if err := srows.Scan(&sv.MeasureID, &sv.BuildingType, &sv.Vintage, &sv.ClimateZone, &sv.SavingPct, &sv.CO2ReductionKlbs, &sv.Cost); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan saving")
		}
		ds.Savings = append(ds.Savings, sv)
	}
	if err := srows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load savings iterate")
	}

	brows, err := s.db.QueryContext(ctx,
		`SELECT building_type, vintage, climate_zone, energy FROM ecm_baselines ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load baselines")
	}
	defer brows.Close()
	for brows.Next() {
		var b dataset.Baseline
		if err := brows.Scan(&b.BuildingType, &b.Vintage, &b.ClimateZone, &b.Energy); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan baseline")
		}
		ds.Baselines = append(ds.Baselines, b)
	}
	return ds, eris.Wrap(brows.Err(), "sqlite: load baselines iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, q model.Query) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queryJSON, err := json.Marshal(q)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal query")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(queryJSON), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Query:     q,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, rec *model.Recommendation) error {
	resultJSON, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// FailRun marks a run infeasible or failed depending on cause.
func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.StatusForError(cause)), errorText(cause), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, query, status, result, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, query, status, result, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.BuildingType > 0 {
		query += ` AND json_extract(query, '$.context.building_type') = ?`
		args = append(args, filter.BuildingType)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, filter.limit())

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

// scanRun returns sql.ErrNoRows unwrapped so callers can map it.
func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var queryJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &queryJSON, &r.Status, &resultJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(queryJSON), &r.Query); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal query")
	}
	if resultJSON.Valid {
		r.Result = &model.Recommendation{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
