package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
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

	maxConns := int32(4)
	minConns := int32(1)
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

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshot_runs (
	id         TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	records    INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
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

// SaveRun writes the run header and bulk-loads its records with COPY in a
// single transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, model string, records []Record) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Model:     model,
		Records:   len(records),
		CreatedAt: time.Now().UTC(),
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		value, err := encodeValue(r.Value)
		if err != nil {
			return nil, err
		}
		rows = append(rows, []any{
			run.ID, r.GUID, r.Type, r.Field, r.Status, r.Source, value, r.Unit, r.DecisionKey,
		})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshot_runs (id, model, records, created_at) VALUES ($1, $2, $3, $4)`,
		run.ID, run.Model, run.Records, run.CreatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	if len(rows) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"attribute_records"}, recordColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return nil, eris.Wrap(err, "postgres: COPY INTO attribute_records")
		}
		if int(n) != len(rows) {
			return nil, eris.Errorf("postgres: copied %d of %d records", n, len(rows))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit")
	}
	return run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, model, records, created_at FROM snapshot_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Model, &r.Records, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, model, records, created_at FROM snapshot_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Model, &r.Records, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) LoadRecords(ctx context.Context, runID string) ([]Record, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT guid, type_name, field, status, source, value, unit, decision_key
		 FROM attribute_records WHERE run_id = $1 ORDER BY guid, field`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load records %s", runID)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate records")
}
