package reconcile

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sos-priors/internal/model"
)

// uniform builds statistics with every field equal to q.
func uniform(q float64) model.Statistics {
	s := model.Statistics{MeanQ: q, MinQ: q, MaxQ: q, TwoYearReturnQ: q}
	for i := range s.MonthlyQ {
		s.MonthlyQ[i] = q
	}
	for i := range s.FlowDurationQ {
		s.FlowDurationQ[i] = q
	}
	return s
}

func canonicalOf(means ...float64) *model.Canonical {
	c := &model.Canonical{Continent: "na"}
	for i, m := range means {
		c.Reaches = append(c.Reaches, model.CanonicalReachPrior{ReachID: int64(100 + i), Statistics: uniform(m)})
	}
	return c
}

func cand(reach int64, q float64, cal model.CalFlag) model.SourceCandidate {
	return model.SourceCandidate{ReachID: reach, Statistics: uniform(q), Calibration: cal}
}

func source(name string, historical bool, cands ...model.SourceCandidate) Source {
	return Source{Name: name, Code: model.NewSourceCode(name), Historical: historical, Candidates: cands}
}

func TestReconcile_EmptyCanonical(t *testing.T) {
	_, _, err := NewEngine().Reconcile(&model.Canonical{}, nil)
	assert.True(t, errors.Is(err, ErrEmptyCanonical))

	_, _, err = NewEngine().Reconcile(nil, nil)
	assert.True(t, errors.Is(err, ErrEmptyCanonical))
}

func TestReconcile_SingleCandidateOverwrites(t *testing.T) {
	c := canonicalOf(100, 200)
	ledger, sum, err := NewEngine().Reconcile(c, []Source{source("usgs", false, cand(101, 50, model.CAL))})
	require.NoError(t, err)

	assert.Equal(t, uniform(100), c.Reaches[0].Statistics)
	assert.Equal(t, uniform(50), c.Reaches[1].Statistics)

	rec := ledger.Record(1)
	assert.True(t, rec.Overwritten)
	assert.Equal(t, model.SourceCode("usgs"), rec.OverwrittenSource)
	assert.False(t, rec.BadPrior)
	assert.False(t, ledger.Record(0).Overwritten)
	assert.Equal(t, 1, sum.Overwritten)
}

func TestReconcile_WinnerClosestToBaselineMean(t *testing.T) {
	c := canonicalOf(100)
	_, _, err := NewEngine().Reconcile(c, []Source{
		source("usgs", false, cand(100, 80, model.CAL), cand(100, 95, model.CAL)),
	})
	require.NoError(t, err)
	assert.InDelta(t, 95, c.Reaches[0].Statistics.MeanQ, 1e-12)
}

func TestSelectWinner_TieGoesToFirst(t *testing.T) {
	cands := []model.SourceCandidate{cand(1, 90, model.CAL), cand(1, 110, model.CAL)}
	w := SelectWinner(cands, 100)
	assert.InDelta(t, 90, w.Statistics.MeanQ, 1e-12)

	w = SelectWinner(cands, math.NaN())
	assert.InDelta(t, 90, w.Statistics.MeanQ, 1e-12)
}

func TestReconcile_ValidationGate(t *testing.T) {
	c := canonicalOf(100)
	bad := cand(100, 40, model.CAL)
	bad.Statistics.MinQ = 0

	ledger, sum, err := NewEngine().Reconcile(c, []Source{source("usgs", false, bad)})
	require.NoError(t, err)

	assert.Equal(t, uniform(100), c.Reaches[0].Statistics)
	rec := ledger.Record(0)
	assert.False(t, rec.Overwritten)
	assert.True(t, rec.BadPrior)
	assert.Equal(t, model.SourceCode("usgs"), rec.BadPriorSource)
	assert.Equal(t, 1, sum.BadPriors)
}

func TestValid(t *testing.T) {
	negFDC := uniform(5)
	negFDC.FlowDurationQ[19] = -1

	zeroMonth := uniform(5)
	zeroMonth.MonthlyQ[3] = 0

	missingMonth := uniform(5)
	missingMonth.MonthlyQ[3] = math.NaN()

	assert.True(t, Valid(uniform(5)))
	assert.False(t, Valid(negFDC))
	assert.False(t, Valid(zeroMonth))
	assert.True(t, Valid(missingMonth))
}

func TestReconcile_ValidationReachExclusivity(t *testing.T) {
	c := canonicalOf(100)
	ledger, sum, err := NewEngine().Reconcile(c, []Source{
		source("WSC", false, cand(100, 50, model.VAL)),
		source("usgs", false, cand(100, 60, model.CAL)),
	})
	require.NoError(t, err)

	assert.Equal(t, uniform(100), c.Reaches[0].Statistics)
	assert.False(t, ledger.Record(0).Overwritten)
	assert.Equal(t, 1, sum.GuardedReaches)
	assert.Equal(t, 1, sum.Sources[1].Guarded)
	assert.Equal(t, 1, sum.Sources[0].NotCAL)
}

func TestReconcile_ReservedReachWithoutCandidate(t *testing.T) {
	c := canonicalOf(100, 200)
	wsc := source("WSC", false)
	wsc.Reserved = []int64{100, 999}

	ledger, sum, err := NewEngine().Reconcile(c, []Source{
		wsc,
		source("usgs", false, cand(100, 60, model.CAL), cand(101, 150, model.CAL)),
	})
	require.NoError(t, err)

	assert.Equal(t, uniform(100), c.Reaches[0].Statistics)
	assert.False(t, ledger.Record(0).Overwritten)
	assert.True(t, ledger.Record(1).Overwritten)
	assert.Equal(t, 1, sum.GuardedReaches)
	assert.Equal(t, 1, sum.Sources[1].Guarded)
}

func TestReconcile_GuardAppliesToHistoricalSources(t *testing.T) {
	c := canonicalOf(100)
	ledger, _, err := NewEngine().Reconcile(c, []Source{
		source("grdc", true, cand(100, 70, model.CAL)),
		source("usgs", false, cand(100, 60, model.VAL)),
	})
	require.NoError(t, err)
	assert.Equal(t, uniform(100), c.Reaches[0].Statistics)
	assert.False(t, ledger.Record(0).Overwritten)
}

func TestReconcile_SequentialOverwriteLatestWins(t *testing.T) {
	c := canonicalOf(100)
	ledger, _, err := NewEngine().Reconcile(c, []Source{
		source("grdc", true, cand(100, 70, model.CAL)),
		source("usgs", false, cand(100, 60, model.CAL)),
	})
	require.NoError(t, err)

	assert.Equal(t, uniform(60), c.Reaches[0].Statistics)
	assert.Equal(t, model.SourceCode("usgs"), ledger.Record(0).OverwrittenSource)
}

func TestReconcile_LaterWinnerMeasuredAgainstUpdatedBaseline(t *testing.T) {
	c := canonicalOf(100)
	_, _, err := NewEngine().Reconcile(c, []Source{
		source("grdc", true, cand(100, 10, model.CAL)),
		source("usgs", false, cand(100, 95, model.CAL), cand(100, 15, model.CAL)),
	})
	require.NoError(t, err)
	assert.InDelta(t, 15, c.Reaches[0].Statistics.MeanQ, 1e-12)
}

func TestReconcile_BadPriorKeepsEarlierOverwrite(t *testing.T) {
	c := canonicalOf(100)
	bad := cand(100, 60, model.CAL)
	bad.Statistics.TwoYearReturnQ = -3

	ledger, _, err := NewEngine().Reconcile(c, []Source{
		source("grdc", true, cand(100, 70, model.CAL)),
		source("DEFRA", false, bad),
	})
	require.NoError(t, err)

	rec := ledger.Record(0)
	assert.True(t, rec.Overwritten)
	assert.Equal(t, model.SourceCode("grdc"), rec.OverwrittenSource)
	assert.True(t, rec.BadPrior)
	assert.Equal(t, model.SourceCode("DEFR"), rec.BadPriorSource)
	assert.Equal(t, uniform(70), c.Reaches[0].Statistics)
}

func TestReconcile_CalibrationFilter(t *testing.T) {
	c := canonicalOf(100, 100)
	_, sum, err := NewEngine().Reconcile(c, []Source{
		source("usgs", false, cand(100, 50, model.CAL), cand(101, 60, model.VAL)),
	})
	require.NoError(t, err)
	assert.Equal(t, uniform(50), c.Reaches[0].Statistics)
	assert.Equal(t, uniform(100), c.Reaches[1].Statistics)
	assert.Equal(t, 1, sum.Sources[0].NotCAL)
}

func TestReconcile_HistoricalSourceOverwrites(t *testing.T) {
	c := canonicalOf(100)
	_, sum, err := NewEngine().Reconcile(c, []Source{source("MLIT", true, cand(100, 50, model.CAL))})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sources[0].Overwritten)
	assert.Zero(t, sum.Sources[0].NotCAL)
}

func TestReconcile_UnmatchedCounted(t *testing.T) {
	c := canonicalOf(100)
	ledger, sum, err := NewEngine().Reconcile(c, []Source{
		source("usgs", false, cand(999, 50, model.CAL)),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Sources[0].Unmatched)
	assert.Equal(t, 1, ledger.Len())
	assert.False(t, ledger.Record(0).Overwritten)
}

func TestReconcile_LedgerRebuiltEachPass(t *testing.T) {
	c := canonicalOf(100)
	e := NewEngine()

	first, _, err := e.Reconcile(c, []Source{source("usgs", false, cand(100, 50, model.CAL))})
	require.NoError(t, err)
	assert.True(t, first.Record(0).Overwritten)

	second, _, err := e.Reconcile(c, nil)
	require.NoError(t, err)
	assert.False(t, second.Record(0).Overwritten)
	assert.True(t, second.Record(0).OverwrittenSource.IsZero())
}

func TestLedger_Records(t *testing.T) {
	l := NewLedger(2)
	l.markOverwritten(1, "usgs")
	l.markBad(1, "WSC")

	recs := l.Records([]int64{7, 8}, "run-1")
	require.Len(t, recs, 2)
	assert.Equal(t, int64(8), recs[1].ReachID)
	assert.Equal(t, "run-1", recs[1].RunID)
	assert.True(t, recs[1].Overwritten)
	assert.True(t, recs[1].BadPrior)

	assert.Equal(t, []bool{false, true}, l.Overwritten())
	assert.Equal(t, []model.SourceCode{"", "WSC"}, l.BadPriorSource())
	o, b := l.Counts()
	assert.Equal(t, 1, o)
	assert.Equal(t, 1, b)
}
