// Package reconcile overwrites canonical reach priors with gauge statistics
// and records the provenance of every decision.
package reconcile

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/reachmap"
)

// ErrEmptyCanonical is returned when there are no reaches to reconcile against.
var ErrEmptyCanonical = eris.New("reconcile: canonical store has no reaches")

// Source is one entry of the priority order with its candidates.
// Historical sources bypass the calibration filter.
type Source struct {
	Name       string
	Code       model.SourceCode
	Historical bool
	Candidates []model.SourceCandidate
	// Reserved lists the reaches of the entry's VAL gauges, whether or not
	// those gauges produced a candidate this pass.
	Reserved []int64
}

// SourceResult counts what a single source did during a pass.
type SourceResult struct {
	Name        string
	Code        model.SourceCode
	Historical  bool
	Candidates  int
	Unmatched   int
	NotCAL      int
	Guarded     int
	Overwritten int
	BadPriors   int
}

// Summary describes a finished pass.
type Summary struct {
	Sources        []SourceResult
	GuardedReaches int
	Overwritten    int
	BadPriors      int
}

// Engine applies sources to a canonical store in priority order.
type Engine struct {
	log *zap.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine() *Engine {
	return &Engine{log: zap.L().With(zap.String("component", "reconcile.engine"))}
}

// Reconcile applies sources to canonical in the given order, mutating the
// reach statistics in place. A later source may overwrite a reach already
// written by an earlier one. The returned ledger is built fresh for this pass.
func (e *Engine) Reconcile(canonical *model.Canonical, sources []Source) (*Ledger, Summary, error) {
	if canonical == nil || canonical.Len() == 0 {
		return nil, Summary{}, ErrEmptyCanonical
	}

	idx := reachmap.NewIndex(canonical.ReachIDs())
	mapped := make([]reachmap.Result, len(sources))
	for i, src := range sources {
		ids := make([]int64, len(src.Candidates))
		for j, c := range src.Candidates {
			ids[j] = c.ReachID
		}
		mapped[i] = idx.Map(ids)
	}

	guarded := validationReaches(idx, sources, mapped)
	ledger := NewLedger(canonical.Len())
	summary := Summary{GuardedReaches: len(guarded)}

	for i, src := range sources {
		res := e.applySource(canonical, ledger, src, mapped[i], guarded)
		summary.Sources = append(summary.Sources, res)
		e.log.Info("source applied",
			zap.String("source", src.Name),
			zap.Bool("historical", src.Historical),
			zap.Int("candidates", res.Candidates),
			zap.Int("overwritten", res.Overwritten),
			zap.Int("bad_priors", res.BadPriors),
			zap.Int("guarded", res.Guarded),
			zap.Int("unmatched", res.Unmatched),
		)
	}

	summary.Overwritten, summary.BadPriors = ledger.Counts()
	return ledger, summary, nil
}

// validationReaches returns the positions that any VAL gauge of the pass maps
// to, from candidates and from reserved reaches alike.
func validationReaches(idx reachmap.Index, sources []Source, mapped []reachmap.Result) map[int]bool {
	guarded := make(map[int]bool)
	for i, src := range sources {
		for j, c := range src.Candidates {
			if c.Calibration != model.VAL {
				continue
			}
			if pos, ok := mapped[i].Lookup(j); ok {
				guarded[pos] = true
			}
		}
		reserved := idx.Map(src.Reserved)
		for j := range src.Reserved {
			if pos, ok := reserved.Lookup(j); ok {
				guarded[pos] = true
			}
		}
	}
	return guarded
}

func (e *Engine) applySource(canonical *model.Canonical, ledger *Ledger, src Source, m reachmap.Result, guarded map[int]bool) SourceResult {
	res := SourceResult{Name: src.Name, Code: src.Code, Historical: src.Historical, Candidates: len(src.Candidates)}

	var order []int
	groups := make(map[int][]model.SourceCandidate)
	for j, c := range src.Candidates {
		pos, ok := m.Lookup(j)
		if !ok {
			res.Unmatched++
			continue
		}
		if !src.Historical && c.Calibration != model.CAL {
			res.NotCAL++
			continue
		}
		if _, seen := groups[pos]; !seen {
			order = append(order, pos)
		}
		groups[pos] = append(groups[pos], c)
	}

	for _, pos := range order {
		if guarded[pos] {
			res.Guarded++
			continue
		}

		reach := &canonical.Reaches[pos]
		winner := SelectWinner(groups[pos], reach.Statistics.MeanQ)

		if !Valid(winner.Statistics) {
			ledger.markBad(pos, src.Code)
			res.BadPriors++
			continue
		}
		reach.Statistics = winner.Statistics
		ledger.markOverwritten(pos, src.Code)
		res.Overwritten++
	}
	return res
}

// SelectWinner returns the candidate whose mean is closest to baselineMean.
// Ties go to the earliest candidate, as does any comparison involving NaN.
func SelectWinner(cands []model.SourceCandidate, baselineMean float64) model.SourceCandidate {
	best := 0
	bestDist := math.Abs(cands[0].Statistics.MeanQ - baselineMean)
	for i := 1; i < len(cands); i++ {
		d := math.Abs(cands[i].Statistics.MeanQ - baselineMean)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return cands[best]
}

// Valid reports whether no statistic is zero or negative. Missing values do not invalidate.
func Valid(s model.Statistics) bool {
	ok := true
	s.Values(func(_ string, v float64) {
		if v <= 0 {
			ok = false
		}
	})
	return ok
}
