// Package stats derives the fixed discharge statistic bundle from a daily series.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/sos-priors/internal/model"
)

// Options tunes Compute for agency-specific quirks.
type Options struct {
	// MinFDCValues leaves the flow-duration curve missing unless the series
	// has more than this many valid values. Zero always computes it.
	MinFDCValues int
}

// Compute derives statistics with default options.
func Compute(s *model.DailySeries) (model.Statistics, bool) {
	return Options{}.Compute(s)
}

// Compute derives the statistic bundle from s. It returns false when the
// series holds no valid values; the zero Statistics must not be used then.
func (o Options) Compute(s *model.DailySeries) (model.Statistics, bool) {
	values := make([]float64, 0, s.Len())
	years := make(map[int]float64)
	var monthSum [model.Months]float64
	var monthN [model.Months]int

	for i, v := range s.Values {
		if math.IsNaN(v) {
			continue
		}
		values = append(values, v)

		d := s.Date(i)
		m := int(d.Month()) - 1
		monthSum[m] += v
		monthN[m]++

		if cur, ok := years[d.Year()]; !ok || v > cur {
			years[d.Year()] = v
		}
	}
	if len(values) == 0 {
		return model.Statistics{}, false
	}

	out := model.MissingStatistics()
	out.MeanQ = stat.Mean(values, nil)
	out.MinQ = floats.Min(values)
	out.MaxQ = floats.Max(values)

	for m := range monthSum {
		if monthN[m] > 0 {
			out.MonthlyQ[m] = monthSum[m] / float64(monthN[m])
		}
	}

	if len(values) > o.MinFDCValues {
		out.FlowDurationQ = FlowDuration(values)
	}

	maxima := make([]float64, 0, len(years))
	for _, v := range years {
		maxima = append(maxima, v)
	}
	out.TwoYearReturnQ = TwoYearReturn(maxima)

	return out, true
}

// TwoYearReturn ranks annual maxima in descending order and returns the
// ceil((Y+1)/2)-th. It returns NaN for an empty slice.
func TwoYearReturn(annualMaxima []float64) float64 {
	n := len(annualMaxima)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), annualMaxima...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	m := int(math.Ceil(float64(n+1) / 2))
	return sorted[m-1]
}
