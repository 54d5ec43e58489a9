package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/case-forecast/internal/model"
)

// SQLiteStore implements Store on a local modernc.org/sqlite file.
type SQLiteStore struct {
	db *sql.DB
	q  statements
}

// NewSQLite opens the database at dsn in WAL mode.
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
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, q: sqliteDialect.statements()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	source_kind     TEXT NOT NULL,
	source_location TEXT NOT NULL DEFAULT '',
	source_etag     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'queued',
	result          TEXT,
	error           TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_source_kind ON runs(source_kind);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source model.SourceInfo) (*model.Run, error) {
	run, args := newRun(source)
	if _, err := s.db.ExecContext(ctx, s.q.insertRun, args...); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	return s.execOne(ctx, "run", runID, s.q.updateStatus, string(status), time.Now().UTC(), runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, result *model.RunSummary) error {
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	return s.execOne(ctx, "run", runID, s.q.updateResult,
		string(data), string(model.RunStatusComplete), time.Now().UTC(), runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, reason string) error {
	return s.execOne(ctx, "run", runID, s.q.failRun,
		string(model.RunStatusFailed), reason, time.Now().UTC(), runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, s.q.getRun, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sqliteDialect.notFound("run", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query, args := sqliteDialect.listRuns(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune begin")
	}
	defer tx.Rollback() //nolint:errcheck

	cutoff = cutoff.UTC()
	if _, err := tx.ExecContext(ctx, s.q.prunePhases, cutoff); err != nil {
		return 0, eris.Wrap(err, "sqlite: prune phases")
	}
	res, err := tx.ExecContext(ctx, s.q.pruneRuns, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune runs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune rows affected")
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: prune commit")
}

func (s *SQLiteStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	phase, args := newPhase(runID, name)
	if _, err := s.db.ExecContext(ctx, s.q.insertPhase, args...); err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert phase for run %s", runID)
	}
	return phase, nil
}

func (s *SQLiteStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal phase result")
	}
	return s.execOne(ctx, "phase", phaseID, s.q.completePhase, string(result.Status), string(data), phaseID)
}

func (s *SQLiteStore) ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error) {
	rows, err := s.db.QueryContext(ctx, s.q.listPhases, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list phases %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var phases []model.RunPhase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan phase")
		}
		phases = append(phases, p)
	}
	return phases, eris.Wrap(rows.Err(), "sqlite: list phases iterate")
}

// execOne runs an update that must touch exactly one entity row.
func (s *SQLiteStore) execOne(ctx context.Context, entity, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s %s", entity, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return sqliteDialect.notFound(entity, id)
	}
	return nil
}
