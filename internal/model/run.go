package model

import "time"

// RunStatus represents the current state of a forecast run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusIngesting  RunStatus = "ingesting"
	RunStatusAuditing   RunStatus = "auditing"
	RunStatusFitting    RunStatus = "fitting"
	RunStatusEvaluating RunStatus = "evaluating"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// Run represents a single pipeline invocation.
type Run struct {
	ID        string      `json:"id"`
	Source    SourceInfo  `json:"source"`
	Status    RunStatus   `json:"status"`
	Result    *RunSummary `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RunSummary is the persisted outcome of a run.
type RunSummary struct {
	Points       int                `json:"points"`
	QualityScore int                `json:"quality_score"`
	Horizon      int                `json:"horizon"`
	Forecast     []ForecastPoint    `json:"forecast"`
	Validation   *ValidationMetrics `json:"validation,omitempty"`
	Accuracy     AccuracyReport     `json:"accuracy"`
	Flags        []Flag             `json:"flags,omitempty"`
	Warnings     []string           `json:"warnings,omitempty"`
	Phases       []PhaseResult      `json:"phases"`
}

// RunPhase represents a phase within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Summarize projects a Result and its phases into the persisted form.
func Summarize(r *Result, phases []PhaseResult) *RunSummary {
	return &RunSummary{
		Points:       len(r.Observations),
		QualityScore: r.Quality.Score,
		Horizon:      r.Request.HorizonWeeks,
		Forecast:     r.Forecast,
		Validation:   r.Validation,
		Accuracy:     r.Accuracy,
		Flags:        r.Flags,
		Warnings:     r.Warnings,
		Phases:       phases,
	}
}
