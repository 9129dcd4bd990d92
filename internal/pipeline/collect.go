package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sos-priors/internal/agency"
	"github.com/sells-group/sos-priors/internal/calendar"
	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/priority"
	"github.com/sells-group/sos-priors/internal/series"
	"github.com/sells-group/sos-priors/internal/stats"
)

// gaugeResult is the outcome of one (site, agency) task.
type gaugeResult struct {
	gauge     model.Gauge
	stats     model.Statistics
	ok        bool
	reused    bool
	validDays int
	fetchErr  error
	diag      series.Diagnostics
	// Dates of the first and last valid values; zero when the series was empty.
	first time.Time
	last  time.Time
}

type entryKey struct {
	code       agency.Code
	historical bool
}

// groupGauges buckets the catalog by agency and archive flag. Agency names
// are normalized to their config key. Rows naming an unknown agency are skipped.
func groupGauges(gauges []model.Gauge) map[entryKey][]model.Gauge {
	out := make(map[entryKey][]model.Gauge)
	for _, g := range gauges {
		code, err := agency.ParseCode(g.Agency)
		if err != nil {
			zap.L().Warn("pipeline: skipping gauge with unknown agency",
				zap.String("agency", g.Agency),
				zap.String("site_id", g.SiteID),
			)
			continue
		}
		g.Agency = code.Key()
		k := entryKey{code: code, historical: g.Historical}
		out[k] = append(out[k], g)
	}
	return out
}

// entryPlan is what one entry needs before any of its gauges is fetched.
type entryPlan struct {
	gauges  []model.Gauge
	adapter agency.Adapter
	stats   stats.Options
	stored  map[string]model.GaugeStatistics
}

// collect computes statistics for every gauge of every entry. Adapters and
// stored statistics are resolved for all entries before the first fetch
// starts, so a setup error never leaves tasks running. Tasks run
// concurrently and each writes only its own slot of the result matrix.
func (r *Runner) collect(
	ctx context.Context,
	grid *calendar.Grid,
	entries []priority.Entry,
	catalog map[entryKey][]model.Gauge,
	opts Options,
) ([][]gaugeResult, error) {
	plans, err := r.plan(ctx, entries, catalog, opts)
	if err != nil {
		return nil, err
	}

	concurrency := r.cfg.Fetch.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([][]gaugeResult, len(entries))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, p := range plans {
		results[i] = make([]gaugeResult, len(p.gauges))
		for j, gauge := range p.gauges {
			slot := &results[i][j]
			if gs, ok := p.stored[gauge.SiteID]; ok {
				*slot = reusedResult(gauge, gs)
				continue
			}
			g.Go(func() error {
				*slot = r.processGauge(gCtx, p.adapter, grid, gauge, p.stats)
				return nil
			})
		}
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: collect")
	}
	return results, nil
}

// plan resolves the adapter and, for archives reused from a previous run,
// the stored statistics of every entry that has gauges.
func (r *Runner) plan(
	ctx context.Context,
	entries []priority.Entry,
	catalog map[entryKey][]model.Gauge,
	opts Options,
) ([]entryPlan, error) {
	plans := make([]entryPlan, len(entries))
	for i, e := range entries {
		gauges := catalog[entryKey{code: e.Agency, historical: e.Historical}]
		if len(gauges) == 0 {
			continue
		}

		adapter, err := r.registry.Get(e.Agency)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: %s", e.Name())
		}
		p := entryPlan{gauges: gauges, adapter: adapter, stats: r.stats[e.Agency]}

		if opts.ReuseHistoric && e.Historical {
			if p.stored, err = r.storedStats(ctx, opts.Continent, e); err != nil {
				return nil, err
			}
		}
		plans[i] = p
	}
	return plans, nil
}

// reusedResult rebuilds a task slot from statistics stored by a previous run.
func reusedResult(gauge model.Gauge, gs model.GaugeStatistics) gaugeResult {
	res := gaugeResult{gauge: gauge, stats: gs.Statistics, ok: true, reused: true, validDays: gs.ValidDays}
	if gs.Coverage.First != nil && gs.Coverage.Last != nil {
		res.first, res.last = *gs.Coverage.First, *gs.Coverage.Last
	}
	return res
}

// storedStats loads the statistics of the previous run keyed by site id.
func (r *Runner) storedStats(ctx context.Context, continent string, e priority.Entry) (map[string]model.GaugeStatistics, error) {
	rows, err := r.store.LoadGaugeStats(ctx, continent, e.Agency.Key(), e.Historical)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load stored %s statistics", e.Name())
	}
	out := make(map[string]model.GaugeStatistics, len(rows))
	for _, gs := range rows {
		out[gs.Gauge.SiteID] = gs
	}
	zap.L().Info("pipeline: reusing stored statistics",
		zap.String("source", e.Name()),
		zap.Int("gauges", len(out)),
	)
	return out, nil
}

// processGauge fetches, regularizes and summarizes one site. Failures are
// recorded in the result, never returned.
func (r *Runner) processGauge(
	ctx context.Context,
	adapter agency.Adapter,
	grid *calendar.Grid,
	gauge model.Gauge,
	opts stats.Options,
) gaugeResult {
	res := gaugeResult{gauge: gauge}
	log := zap.L().With(
		zap.String("agency", gauge.Agency),
		zap.String("site_id", gauge.SiteID),
	)

	batch, err := adapter.Fetch(ctx, agency.Site{ID: gauge.SiteID, Start: grid.Start(), End: grid.End()})
	if err != nil {
		log.Warn("pipeline: fetch failed", zap.Error(err))
		r.metrics.FetchFailed(gauge.Agency)
		res.fetchErr = err
		return res
	}

	s, diag := series.FromBatch(grid, batch)
	res.diag = diag
	r.metrics.ObserveSeries(gauge.Agency, diag)
	for _, pe := range diag.ParseErrors {
		log.Debug("pipeline: record dropped", zap.Error(pe))
	}

	if first, last, ok := series.Coverage(s); ok {
		res.first, res.last = s.Date(first), s.Date(last)
	}

	res.stats, res.ok = opts.Compute(s)
	res.validDays = s.ValidCount()
	if !res.ok {
		log.Debug("pipeline: no valid discharge in window")
	}
	return res
}

// candidates turns the computed results of one entry into reconciliation input.
func candidates(results []gaugeResult) []model.SourceCandidate {
	var out []model.SourceCandidate
	for _, res := range results {
		if !res.ok {
			continue
		}
		out = append(out, model.SourceCandidate{
			ReachID:     res.gauge.ReachID,
			Agency:      res.gauge.Agency,
			SiteID:      res.gauge.SiteID,
			Statistics:  res.stats,
			Calibration: res.gauge.Calibration,
		})
	}
	return out
}

// reserved lists the reaches of an entry's VAL gauges, fetched or not.
func reserved(results []gaugeResult) []int64 {
	var out []int64
	for _, res := range results {
		if res.gauge.Calibration == model.VAL {
			out = append(out, res.gauge.ReachID)
		}
	}
	return out
}

// fresh returns the statistics computed in this run, skipping reused ones.
func fresh(results [][]gaugeResult) []model.GaugeStatistics {
	var out []model.GaugeStatistics
	for _, entry := range results {
		for _, res := range entry {
			if !res.ok || res.reused {
				continue
			}
			out = append(out, model.GaugeStatistics{
				Gauge:      res.gauge,
				Statistics: res.stats,
				ValidDays:  res.validDays,
				Coverage:   res.coverage(),
			})
		}
	}
	return out
}

// coverage is the span of valid values, nil-bounded when the series was empty.
func (res gaugeResult) coverage() model.Coverage {
	if res.first.IsZero() || res.last.IsZero() {
		return model.Coverage{}
	}
	first, last := res.first, res.last
	return model.Coverage{First: &first, Last: &last}
}
