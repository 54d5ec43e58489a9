package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/case-forecast/internal/db"
	"github.com/sells-group/case-forecast/internal/model"
)

// PostgresStore implements Store on a pgx connection pool, for
// deployments where several API replicas share run history.
type PostgresStore struct {
	pool    db.Pool
	q       statements
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres connects, pings and returns a PostgresStore. A nil poolCfg
// keeps 2 to 10 connections.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns, pgxCfg.MinConns = 10, 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
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
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{pool: pool, q: postgresDialect.statements(), closeFn: closeFn}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	source_kind     TEXT NOT NULL,
	source_location TEXT NOT NULL DEFAULT '',
	source_etag     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'queued',
	result          JSONB,
	error           TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_source_kind ON runs(source_kind);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
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

func (s *PostgresStore) CreateRun(ctx context.Context, source model.SourceInfo) (*model.Run, error) {
	run, args := newRun(source)
	if _, err := s.pool.Exec(ctx, s.q.insertRun, args...); err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	return s.execOne(ctx, "run", runID, s.q.updateStatus, string(status), time.Now().UTC(), runID)
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunSummary) error {
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	return s.execOne(ctx, "run", runID, s.q.updateResult,
		data, string(model.RunStatusComplete), time.Now().UTC(), runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	return s.execOne(ctx, "run", runID, s.q.failRun,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, s.q.getRun, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, postgresDialect.notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query, args := postgresDialect.listRuns(filter)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// PruneRuns deletes phases and runs in one transaction.
func (s *PostgresStore) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune begin")
	}
	abort := func(err error, action string) (int64, error) {
		_ = tx.Rollback(ctx)
		return 0, eris.Wrap(err, "postgres: "+action)
	}

	if _, err := tx.Exec(ctx, s.q.prunePhases, cutoff); err != nil {
		return abort(err, "prune phases")
	}
	tag, err := tx.Exec(ctx, s.q.pruneRuns, cutoff)
	if err != nil {
		return abort(err, "prune runs")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: prune commit")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	phase, args := newPhase(runID, name)
	if _, err := s.pool.Exec(ctx, s.q.insertPhase, args...); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert phase for run %s", runID)
	}
	return phase, nil
}

func (s *PostgresStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal phase result")
	}
	return s.execOne(ctx, "phase", phaseID, s.q.completePhase, string(result.Status), data, phaseID)
}

func (s *PostgresStore) ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error) {
	rows, err := s.pool.Query(ctx, s.q.listPhases, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list phases %s", runID)
	}
	defer rows.Close()

	var phases []model.RunPhase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan phase")
		}
		phases = append(phases, p)
	}
	return phases, eris.Wrap(rows.Err(), "postgres: list phases iterate")
}

func (s *PostgresStore) execOne(ctx context.Context, entity, id, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update %s %s", entity, id)
	}
	if tag.RowsAffected() == 0 {
		return postgresDialect.notFound(entity, id)
	}
	return nil
}
