package store

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/case-forecast/internal/model"
)

// Both backends share one schema shape and one set of statements; only
// the placeholder syntax differs.

const (
	runColumns   = `id, source_kind, source_location, source_etag, status, result, error, created_at, updated_at`
	phaseColumns = `id, run_id, name, status, result, started_at`
)

type dialect struct {
	name string
	bind func(n int) string
}

var (
	sqliteDialect   = dialect{name: "sqlite", bind: func(int) string { return "?" }}
	postgresDialect = dialect{name: "postgres", bind: func(n int) string { return "$" + strconv.Itoa(n) }}
)

// statements holds every fixed query rendered for one dialect.
type statements struct {
	insertRun, updateStatus, updateResult, failRun, getRun string
	insertPhase, completePhase, listPhases                 string
	prunePhases, pruneRuns                                 string
}

func (d dialect) statements() statements {
	p := d.placeholders
	return statements{
		insertRun:     `INSERT INTO runs (` + runColumns + `) VALUES (` + p(9) + `)`,
		updateStatus:  `UPDATE runs SET status = ` + d.bind(1) + `, updated_at = ` + d.bind(2) + ` WHERE id = ` + d.bind(3),
		updateResult:  `UPDATE runs SET result = ` + d.bind(1) + `, status = ` + d.bind(2) + `, updated_at = ` + d.bind(3) + ` WHERE id = ` + d.bind(4),
		failRun:       `UPDATE runs SET status = ` + d.bind(1) + `, error = ` + d.bind(2) + `, updated_at = ` + d.bind(3) + ` WHERE id = ` + d.bind(4),
		getRun:        `SELECT ` + runColumns + ` FROM runs WHERE id = ` + d.bind(1),
		insertPhase:   `INSERT INTO run_phases (` + phaseColumns + `) VALUES (` + p(6) + `)`,
		completePhase: `UPDATE run_phases SET status = ` + d.bind(1) + `, result = ` + d.bind(2) + ` WHERE id = ` + d.bind(3),
		listPhases:    `SELECT ` + phaseColumns + ` FROM run_phases WHERE run_id = ` + d.bind(1) + ` ORDER BY started_at, id`,
		prunePhases:   `DELETE FROM run_phases WHERE run_id IN (SELECT id FROM runs WHERE created_at < ` + d.bind(1) + `)`,
		pruneRuns:     `DELETE FROM runs WHERE created_at < ` + d.bind(1),
	}
}

func (d dialect) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.bind(i + 1)
	}
	return strings.Join(parts, ", ")
}

// listRuns renders the filtered, newest-first run listing.
func (d dialect) listRuns(f RunFilter) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return d.bind(len(args))
	}

	sb.WriteString(`SELECT ` + runColumns + ` FROM runs`)
	var where []string
	if f.Status != "" {
		where = append(where, `status = `+arg(string(f.Status)))
	}
	if f.SourceKind != "" {
		where = append(where, `source_kind = `+arg(string(f.SourceKind)))
	}
	if len(where) > 0 {
		sb.WriteString(` WHERE ` + strings.Join(where, ` AND `))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	sb.WriteString(` ORDER BY created_at DESC, id LIMIT ` + arg(limit))
	if f.Offset > 0 {
		sb.WriteString(` OFFSET ` + arg(f.Offset))
	}
	return sb.String(), args
}

func (d dialect) notFound(entity, id string) error {
	return eris.Wrapf(model.ErrNotFound, "%s: %s %s", d.name, entity, id)
}

// newRun builds a queued run and the arguments for insertRun.
func newRun(source model.SourceInfo) (*model.Run, []any) {
	now := time.Now().UTC()
	r := &model.Run{
		ID:        uuid.New().String(),
		Source:    source,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r, []any{
		r.ID, string(source.Kind), source.Location, source.ETag,
		string(r.Status), nil, "", now, now,
	}
}

// newPhase builds a running phase and the arguments for insertPhase.
func newPhase(runID, name string) (*model.RunPhase, []any) {
	p := &model.RunPhase{
		ID:        uuid.New().String(),
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	return p, []any{p.ID, p.RunID, p.Name, string(p.Status), nil, p.StartedAt}
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun leaves the driver's no-rows error unwrapped so callers can
// map it.
func scanRun(row scanner) (*model.Run, error) {
	var (
		r            model.Run
		kind, status string
		result       []byte
	)
	if err := row.Scan(&r.ID, &kind, &r.Source.Location, &r.Source.ETag, &status,
		&result, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Source.Kind = model.SourceKind(kind)
	r.Status = model.RunStatus(status)
	if result != nil {
		r.Result = &model.RunSummary{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return nil, eris.Wrapf(err, "unmarshal result of run %s", r.ID)
		}
	}
	return &r, nil
}

func scanPhase(row scanner) (model.RunPhase, error) {
	var (
		p      model.RunPhase
		status string
		result []byte
	)
	if err := row.Scan(&p.ID, &p.RunID, &p.Name, &status, &result, &p.StartedAt); err != nil {
		return p, err
	}
	p.Status = model.PhaseStatus(status)
	if result != nil {
		p.Result = &model.PhaseResult{}
		if err := json.Unmarshal(result, p.Result); err != nil {
			return p, eris.Wrapf(err, "unmarshal result of phase %s", p.ID)
		}
	}
	return p, nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
