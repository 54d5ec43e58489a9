package model

import "time"

// SourceKind names an ingestion path.
type SourceKind string

const (
	SourceSheet  SourceKind = "sheet"
	SourceUpload SourceKind = "upload"
	SourceSample SourceKind = "sample"
)

// SourceInfo describes where a dataset came from.
type SourceInfo struct {
	Kind     SourceKind `json:"kind"`
	Location string     `json:"location,omitempty"`
	ETag     string     `json:"etag,omitempty"`
}

// Dataset is a cleaned, audited series ready for forecasting.
type Dataset struct {
	Source      SourceInfo    `json:"source"`
	Series      Series        `json:"series"`
	DroppedRows int           `json:"dropped_rows"`
	Quality     QualityReport `json:"quality"`
	LoadedAt    time.Time     `json:"loaded_at"`
}

// Result is the structured output handed to the presentation layer.
type Result struct {
	RunID          string             `json:"run_id,omitempty"`
	Source         SourceInfo         `json:"source"`
	Request        ForecastRequest    `json:"request"`
	Observations   Series             `json:"observations"`
	DroppedRows    int                `json:"dropped_rows"`
	Quality        QualityReport      `json:"quality"`
	Validation     *ValidationMetrics `json:"validation,omitempty"`
	Forecast       []ForecastPoint    `json:"forecast"`
	Baseline       float64            `json:"baseline"`
	HistoricalMean float64            `json:"historical_mean"`
	Flags          []Flag             `json:"flags,omitempty"`
	Accuracy       AccuracyReport     `json:"accuracy"`
	Components     []ComponentPoint   `json:"components,omitempty"`
	Warnings       []string           `json:"warnings,omitempty"`
	GeneratedAt    time.Time          `json:"generated_at"`
}
