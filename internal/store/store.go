// Package store persists reach priors, the gauge catalog, gauge statistics,
// provenance and the run log.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/model"
)

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Continent string          `json:"continent,omitempty"`
	Status    model.RunStatus `json:"status,omitempty"`
	Limit     int             `json:"limit,omitempty"`
	Offset    int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the priors pipeline.
type Store interface {
	// Reaches
	UpsertReaches(ctx context.Context, reaches []model.Reach) (int64, error)
	LoadCanonical(ctx context.Context, continent string) (*model.Canonical, error)
	SaveCanonical(ctx context.Context, canonical *model.Canonical) error

	// Gauges
	UpsertGauges(ctx context.Context, gauges []model.Gauge) (int64, error)
	LoadGauges(ctx context.Context, continent string) ([]model.Gauge, error)
	SaveGaugeStats(ctx context.Context, runID string, stats []model.GaugeStatistics) error
	LoadGaugeStats(ctx context.Context, continent, agency string, historical bool) ([]model.GaugeStatistics, error)

	// Provenance
	SaveLedger(ctx context.Context, records []model.ReachProvenance) error
	LoadProvenance(ctx context.Context, reachID int64) (*model.ReachProvenance, error)

	// Runs
	CreateRun(ctx context.Context, continent string, startedAt time.Time) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, summary *model.RunSummary, at time.Time) error
	FailRun(ctx context.Context, runID string, runErr error, at time.Time) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// statsColumns are the reach and gauge statistic columns in storage order.
var statsColumns = []string{"mean_q", "min_q", "max_q", "two_year_return_q", "monthly_q", "flow_duration_q"}
