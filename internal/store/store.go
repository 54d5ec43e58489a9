// Package store persists forecast run history.
package store

import (
	"context"
	"time"

	"github.com/sells-group/case-forecast/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status     model.RunStatus  `json:"status,omitempty"`
	SourceKind model.SourceKind `json:"source_kind,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// DefaultListLimit caps ListRuns when the filter sets no limit.
const DefaultListLimit = 100

// Store defines the persistence interface for forecast runs. Lookups of
// unknown IDs fail with model.ErrNotFound.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, source model.SourceInfo) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, result *model.RunSummary) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// PruneRuns deletes runs created before cutoff, with their phases, and
	// reports how many runs went.
	PruneRuns(ctx context.Context, cutoff time.Time) (int64, error)

	// Phases
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error
	ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
