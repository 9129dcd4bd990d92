// Package monitoring exposes run metrics and raises alerts when recent runs
// degrade.
package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/store"
)

// Snapshot holds a point-in-time view of run health.
type Snapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`

	// Totals over completed runs.
	Overwritten   int     `json:"overwritten"`
	BadPriors     int     `json:"bad_priors"`
	Gauges        int     `json:"gauges"`
	FetchFailed   int     `json:"fetch_failed"`
	FetchFailRate float64 `json:"fetch_fail_rate"`

	LastComplete  *time.Time `json:"last_complete,omitempty"`
	LookbackHours int        `json:"lookback_hours"`
	CollectedAt   time.Time  `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector summarizes recent runs from the run log.
type Collector struct {
	runs  RunLister
	clock clockwork.Clock
}

// NewCollector creates a collector. A nil clock uses real time.
func NewCollector(runs RunLister, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{runs: runs, clock: clock}
}

// Collect gathers a snapshot of runs started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.clock.Now().UTC()
	snap := &Snapshot{LookbackHours: lookbackHours, CollectedAt: now}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			if r.CompletedAt != nil && (snap.LastComplete == nil || r.CompletedAt.After(*snap.LastComplete)) {
				t := *r.CompletedAt
				snap.LastComplete = &t
			}
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Summary == nil {
			continue
		}
		snap.Overwritten += r.Summary.Overwritten
		snap.BadPriors += r.Summary.BadPriors
		for _, s := range r.Summary.Sources {
			snap.Gauges += s.Gauges
			snap.FetchFailed += s.FetchFailed
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.Gauges > 0 {
		snap.FetchFailRate = float64(snap.FetchFailed) / float64(snap.Gauges)
	}
	return snap, nil
}
