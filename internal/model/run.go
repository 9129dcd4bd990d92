package model

import "time"

// RunStatus represents the current state of a priors update run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunType says whether a run may change the canonical priors.
type RunType string

const (
	// RunConstrained applies reconciliation to the canonical priors.
	RunConstrained RunType = "constrained"
	// RunUnconstrained computes and stores gauge statistics only.
	RunUnconstrained RunType = "unconstrained"
)

// Run is one priors update for a continent.
type Run struct {
	ID          string      `json:"id"`
	Continent   string      `json:"continent"`
	Status      RunStatus   `json:"status"`
	Summary     *RunSummary `json:"summary,omitempty"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// SourceSummary counts what one priority entry contributed to a pass.
type SourceSummary struct {
	Source      string `json:"source"`
	Historical  bool   `json:"historical"`
	Gauges      int    `json:"gauges"`
	Candidates  int    `json:"candidates"`
	FetchFailed int    `json:"fetch_failed"`
	Empty       int    `json:"empty"`
	Unmatched   int    `json:"unmatched"`
	Overwritten int    `json:"overwritten"`
	BadPriors   int    `json:"bad_priors"`
	Guarded     int    `json:"guarded"`
	NotCAL      int    `json:"not_cal"`
}

// DiagnosticTotals sums series diagnostics over every gauge of a run.
type DiagnosticTotals struct {
	Observations int `json:"observations"`
	Rejected     int `json:"rejected"`
	OutOfRange   int `json:"out_of_range"`
	NonFinite    int `json:"non_finite"`
	ParseErrors  int `json:"parse_errors"`
}

// Coverage is the span of dates holding at least one valid value.
// Both ends are nil when no series had data.
type Coverage struct {
	First *time.Time `json:"first,omitempty"`
	Last  *time.Time `json:"last,omitempty"`
}

// RunSummary is stored with a completed run.
type RunSummary struct {
	Reaches     int              `json:"reaches"`
	Overwritten int              `json:"overwritten"`
	BadPriors   int              `json:"bad_priors"`
	Sources     []SourceSummary  `json:"sources"`
	Diagnostics DiagnosticTotals `json:"diagnostics"`
	Coverage    Coverage         `json:"coverage"`
	DryRun      bool             `json:"dry_run,omitempty"`
	RunType     RunType          `json:"run_type,omitempty"`
}
