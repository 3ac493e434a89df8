package models

import "time"

// TrendPoint is one historical observation of a title in a stored snapshot.
type TrendPoint struct {
	Date       string  `json:"date"`
	Source     string  `json:"source"`
	SourceName string  `json:"source_name"`
	Rank       int     `json:"rank"`
	Heat       string  `json:"heat"`
	HeatValue  float64 `json:"heat_value"`
	Category   string  `json:"category"`
	Gender     string  `json:"gender"`
	Period     string  `json:"period"`
	BookURL    string  `json:"book_url"`
}

// SourceCount is the number of stored records for one source on one date.
type SourceCount struct {
	Source     string `json:"source"`
	SourceName string `json:"source_name"`
	Count      int    `json:"count"`
}

// Refresh outcomes reported per source.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeCached  = "cached"
	OutcomeError   = "error"
)

// Refresh run statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// SourceResult is the outcome of one source within a refresh cycle.
type SourceResult struct {
	Source  string `json:"source"`
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// RefreshSummary reports a full multi-source refresh.
type RefreshSummary struct {
	RunID      string         `json:"run_id"`
	Date       string         `json:"date"`
	Trigger    string         `json:"trigger"`
	Status     string         `json:"status"`
	Total      int            `json:"total"`
	Results    []SourceResult `json:"results"`
	Errors     []string       `json:"errors,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}
