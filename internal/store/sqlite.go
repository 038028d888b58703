package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshot_runs (
	id         TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	records    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS attribute_records (
	run_id       TEXT NOT NULL REFERENCES snapshot_runs(id) ON DELETE CASCADE,
	guid         TEXT NOT NULL,
	type_name    TEXT NOT NULL,
	field        TEXT NOT NULL,
	status       TEXT NOT NULL,
	source       TEXT NOT NULL DEFAULT '',
	value        TEXT NOT NULL DEFAULT '',
	unit         TEXT NOT NULL DEFAULT '',
	decision_key TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, guid, field)
);

CREATE INDEX IF NOT EXISTS idx_snapshot_runs_created_at ON snapshot_runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, model string, records []Record) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Model:     model,
		Records:   len(records),
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_runs (id, model, records, created_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Model, run.Records, run.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attribute_records (run_id, guid, type_name, field, status, source, value, unit, decision_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert record")
	}
	defer stmt.Close()

	for _, r := range records {
		value, err := encodeValue(r.Value)
		if err != nil {
			return nil, err
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, r.GUID, r.Type, r.Field, r.Status, r.Source, value, r.Unit, r.DecisionKey,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert record %s.%s", r.GUID, r.Field)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit")
	}
	return run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx,
		`SELECT id, model, records, created_at FROM snapshot_runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.Model, &r.Records, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, records, created_at FROM snapshot_runs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Model, &r.Records, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) LoadRecords(ctx context.Context, runID string) ([]Record, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT guid, type_name, field, status, source, value, unit, decision_key
		 FROM attribute_records WHERE run_id = ? ORDER BY guid, field`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load records %s", runID)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate records")
}
