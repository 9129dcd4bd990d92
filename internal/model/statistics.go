package model

import (
	"math"
	"time"
)

// Number of samples in a flow-duration curve and months in a climatology.
const (
	FDCPoints = 20
	Months    = 12
)

// DailySeries is a dense daily discharge series aligned index-for-index with
// a calendar grid. Missing days hold NaN.
type DailySeries struct {
	Start  time.Time `json:"start"`
	Values []float64 `json:"values"`
}

// Len returns the number of days in the series.
func (s *DailySeries) Len() int { return len(s.Values) }

// Date returns the calendar date of slot i.
func (s *DailySeries) Date(i int) time.Time { return s.Start.AddDate(0, 0, i) }

// Valid reports whether slot i holds a value.
func (s *DailySeries) Valid(i int) bool { return !math.IsNaN(s.Values[i]) }

// ValidCount returns the number of non-missing days.
func (s *DailySeries) ValidCount() int {
	n := 0
	for _, v := range s.Values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Statistics is the fixed bundle of discharge statistics attached to a reach.
type Statistics struct {
	MeanQ          float64            `json:"mean_q"`
	MinQ           float64            `json:"min_q"`
	MaxQ           float64            `json:"max_q"`
	MonthlyQ       [Months]float64    `json:"monthly_q"`
	FlowDurationQ  [FDCPoints]float64 `json:"flow_duration_q"`
	TwoYearReturnQ float64            `json:"two_year_return_q"`
}

// MissingStatistics returns a bundle with every field missing.
func MissingStatistics() Statistics {
	nan := math.NaN()
	s := Statistics{MeanQ: nan, MinQ: nan, MaxQ: nan, TwoYearReturnQ: nan}
	for i := range s.MonthlyQ {
		s.MonthlyQ[i] = nan
	}
	for i := range s.FlowDurationQ {
		s.FlowDurationQ[i] = nan
	}
	return s
}

// Values calls fn for every number in the bundle.
func (s Statistics) Values(fn func(field string, v float64)) {
	for _, v := range s.FlowDurationQ {
		fn("flow_duration_q", v)
	}
	fn("max_q", s.MaxQ)
	for _, v := range s.MonthlyQ {
		fn("monthly_q", v)
	}
	fn("mean_q", s.MeanQ)
	fn("min_q", s.MinQ)
	fn("two_year_return_q", s.TwoYearReturnQ)
}

// ReachStatistics ties a statistics bundle to a reach and the series it came from.
type ReachStatistics struct {
	ReachID    int64        `json:"reach_id"`
	Statistics Statistics   `json:"statistics"`
	Series     *DailySeries `json:"-"`
}
