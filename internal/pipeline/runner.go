// Package pipeline runs one priors update: it pulls every catalog gauge of a
// continent, computes gauge statistics and reconciles them into the
// canonical reach priors.
package pipeline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/agency"
	"github.com/sells-group/sos-priors/internal/calendar"
	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/monitoring"
	"github.com/sells-group/sos-priors/internal/priority"
	"github.com/sells-group/sos-priors/internal/reconcile"
	"github.com/sells-group/sos-priors/internal/stats"
	"github.com/sells-group/sos-priors/internal/store"
)

// ReportUploader archives a finished run.
type ReportUploader interface {
	Upload(ctx context.Context, run *model.Run) error
}

// Options selects what a run does.
type Options struct {
	Continent string
	// Sources limits the run to these agencies. Empty means every entry of
	// the continent's priority order.
	Sources []string
	// ReuseHistoric takes historical gauge statistics from the last run
	// instead of pulling the archives again.
	ReuseHistoric bool
	// DryRun reconciles without writing statistics, priors or provenance.
	DryRun bool
	// RunType defaults to constrained. Unconstrained runs store gauge
	// statistics but leave the canonical priors and provenance untouched.
	RunType model.RunType
}

// ParseRunType validates a run type name. An empty name is constrained.
func ParseRunType(s string) (model.RunType, error) {
	switch model.RunType(s) {
	case "", model.RunConstrained:
		return model.RunConstrained, nil
	case model.RunUnconstrained:
		return model.RunUnconstrained, nil
	}
	return "", eris.Errorf("pipeline: unknown run type %q", s)
}

// defaultStatsOptions holds the per-agency statistics quirks.
var defaultStatsOptions = map[agency.Code]stats.Options{
	agency.HydroShare: {MinFDCValues: 21},
}

// Runner wires the store, the agency adapters and the reconciliation engine.
type Runner struct {
	cfg      *config.Config
	store    store.Store
	registry *agency.Registry
	table    priority.Table
	metrics  *monitoring.Metrics
	uploader ReportUploader
	engine   *reconcile.Engine
	clock    clockwork.Clock
	stats    map[agency.Code]stats.Options
}

// New creates a Runner. metrics and uploader may be nil.
func New(
	cfg *config.Config,
	st store.Store,
	reg *agency.Registry,
	table priority.Table,
	metrics *monitoring.Metrics,
	uploader ReportUploader,
) *Runner {
	return &Runner{
		cfg:      cfg,
		store:    st,
		registry: reg,
		table:    table,
		metrics:  metrics,
		uploader: uploader,
		engine:   reconcile.NewEngine(),
		clock:    clockwork.NewRealClock(),
		stats:    defaultStatsOptions,
	}
}

// WithClock replaces the wall clock used for run timestamps and the open
// calendar end.
func (r *Runner) WithClock(c clockwork.Clock) *Runner {
	r.clock = c
	return r
}

// Run executes one update and records it in the run log. The returned run
// is non-nil whenever the run row was created, including on failure.
func (r *Runner) Run(ctx context.Context, opts Options) (*model.Run, error) {
	log := zap.L().With(
		zap.String("component", "pipeline.runner"),
		zap.String("continent", opts.Continent),
	)

	started := r.clock.Now().UTC()
	run, err := r.store.CreateRun(ctx, opts.Continent, started)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: run started",
		zap.Strings("sources", opts.Sources),
		zap.Bool("reuse_historic", opts.ReuseHistoric),
		zap.Bool("dry_run", opts.DryRun),
		zap.String("run_type", string(opts.runType())),
	)

	summary, runErr := r.execute(ctx, run.ID, opts)
	finished := r.clock.Now().UTC()
	run.CompletedAt = &finished

	// The run row is closed even when ctx was cancelled.
	bg := context.WithoutCancel(ctx)

	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
		if err := r.store.FailRun(bg, run.ID, runErr, finished); err != nil {
			log.Error("pipeline: failed to mark run failed", zap.Error(err))
		}
		r.metrics.ObserveRun(opts.Continent, model.RunStatusFailed, finished.Sub(started))
		log.Error("pipeline: run failed", zap.Error(runErr))
		return run, runErr
	}

	run.Status = model.RunStatusComplete
	run.Summary = summary
	if err := r.store.CompleteRun(bg, run.ID, summary, finished); err != nil {
		return run, eris.Wrap(err, "pipeline: complete run")
	}
	r.metrics.ObserveRun(opts.Continent, model.RunStatusComplete, finished.Sub(started))

	log.Info("pipeline: run complete",
		zap.Int("reaches", summary.Reaches),
		zap.Int("overwritten", summary.Overwritten),
		zap.Int("bad_priors", summary.BadPriors),
		zap.Duration("elapsed", finished.Sub(started)),
	)

	if r.uploader != nil {
		if err := r.uploader.Upload(bg, run); err != nil {
			log.Warn("pipeline: run report upload failed", zap.Error(err))
		}
	}
	return run, nil
}

func (r *Runner) execute(ctx context.Context, runID string, opts Options) (*model.RunSummary, error) {
	canonical, err := r.store.LoadCanonical(ctx, opts.Continent)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load canonical")
	}
	if canonical.Len() == 0 {
		return nil, eris.Wrapf(reconcile.ErrEmptyCanonical, "pipeline: continent %s", opts.Continent)
	}

	grid, err := calendar.Parse(r.cfg.Calendar.Start, r.cfg.Calendar.End, r.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	entries, err := r.table.For(opts.Continent)
	if err != nil {
		return nil, err
	}
	if entries, err = filterEntries(entries, opts.Sources); err != nil {
		return nil, err
	}

	gauges, err := r.store.LoadGauges(ctx, opts.Continent)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load gauges")
	}

	results, err := r.collect(ctx, grid, entries, groupGauges(gauges), opts)
	if err != nil {
		return nil, err
	}

	sources := make([]reconcile.Source, len(entries))
	for i, e := range entries {
		sources[i] = reconcile.Source{
			Name:       e.Name(),
			Code:       e.SourceCode(),
			Historical: e.Historical,
			Candidates: candidates(results[i]),
			Reserved:   reserved(results[i]),
		}
	}

	ledger, rsum, err := r.engine.Reconcile(canonical, sources)
	if err != nil {
		return nil, err
	}

	summary := summarize(canonical.Len(), entries, results, rsum)
	summary.DryRun = opts.DryRun
	summary.RunType = opts.runType()
	for _, s := range rsum.Sources {
		r.metrics.ObserveSource(s.Name, s.Overwritten, s.BadPriors)
	}

	if opts.DryRun {
		return summary, nil
	}

	if err := r.store.SaveGaugeStats(ctx, runID, fresh(results)); err != nil {
		return nil, eris.Wrap(err, "pipeline: save gauge statistics")
	}
	if summary.RunType == model.RunUnconstrained {
		return summary, nil
	}
	if err := r.store.SaveCanonical(ctx, canonical); err != nil {
		return nil, eris.Wrap(err, "pipeline: save canonical")
	}
	if err := r.store.SaveLedger(ctx, ledger.Records(canonical.ReachIDs(), runID)); err != nil {
		return nil, eris.Wrap(err, "pipeline: save ledger")
	}
	return summary, nil
}

func (o Options) runType() model.RunType {
	if o.RunType == "" {
		return model.RunConstrained
	}
	return o.RunType
}

// filterEntries keeps the entries whose agency is named in sources.
func filterEntries(entries []priority.Entry, sources []string) ([]priority.Entry, error) {
	if len(sources) == 0 {
		return entries, nil
	}
	want := make(map[agency.Code]bool, len(sources))
	for _, s := range sources {
		c, err := agency.ParseCode(s)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: source filter")
		}
		want[c] = true
	}

	var out []priority.Entry
	for _, e := range entries {
		if want[e.Agency] {
			out = append(out, e)
		}
	}
	return out, nil
}

// summarize folds gauge results and reconciliation counts into the run summary.
func summarize(reaches int, entries []priority.Entry, results [][]gaugeResult, rsum reconcile.Summary) *model.RunSummary {
	sum := &model.RunSummary{
		Reaches:     reaches,
		Overwritten: rsum.Overwritten,
		BadPriors:   rsum.BadPriors,
	}

	var first, last time.Time
	for i, e := range entries {
		ss := model.SourceSummary{Source: e.Name(), Historical: e.Historical}
		if i < len(rsum.Sources) {
			rs := rsum.Sources[i]
			ss.Candidates = rs.Candidates
			ss.Unmatched = rs.Unmatched
			ss.Overwritten = rs.Overwritten
			ss.BadPriors = rs.BadPriors
			ss.Guarded = rs.Guarded
			ss.NotCAL = rs.NotCAL
		}

		for _, res := range results[i] {
			ss.Gauges++
			switch {
			case res.fetchErr != nil:
				ss.FetchFailed++
			case !res.ok:
				ss.Empty++
			}

			d := res.diag
			sum.Diagnostics.Observations += d.Observations
			sum.Diagnostics.Rejected += d.Rejected
			sum.Diagnostics.OutOfRange += d.OutOfRange
			sum.Diagnostics.NonFinite += d.NonFinite
			sum.Diagnostics.ParseErrors += len(d.ParseErrors)

			if res.first.IsZero() {
				continue
			}
			if first.IsZero() || res.first.Before(first) {
				first = res.first
			}
			if res.last.After(last) {
				last = res.last
			}
		}
		sum.Sources = append(sum.Sources, ss)
	}

	if !first.IsZero() {
		sum.Coverage = model.Coverage{First: &first, Last: &last}
	}
	return sum
}
