// Package series maps raw agency observations onto the shared daily calendar.
package series

import (
	"math"

	"github.com/sells-group/sos-priors/internal/calendar"
	"github.com/sells-group/sos-priors/internal/model"
)

// Diagnostics counts what Regularize dropped. It never aborts a series.
type Diagnostics struct {
	Observations int                `json:"observations"`
	Rejected     int                `json:"rejected"`
	OutOfRange   int                `json:"out_of_range"`
	NonFinite    int                `json:"non_finite"`
	ParseErrors  []model.ParseError `json:"parse_errors,omitempty"`
}

// AddParseErrors carries per-record parse failures from a batch into the diagnostics.
func (d *Diagnostics) AddParseErrors(errs []model.ParseError) {
	d.ParseErrors = append(d.ParseErrors, errs...)
}

// Dropped returns the number of observations that did not reach the series.
func (d *Diagnostics) Dropped() int {
	return d.Rejected + d.OutOfRange + d.NonFinite + len(d.ParseErrors)
}

// Regularize averages observations per calendar date onto grid. Days without
// an accepted observation stay NaN. The result always has grid.Len() slots.
func Regularize(grid *calendar.Grid, observations []model.RawObservation) (*model.DailySeries, Diagnostics) {
	var diag Diagnostics
	diag.Observations = len(observations)

	sums := make([]float64, grid.Len())
	counts := make([]int, grid.Len())

	for _, obs := range observations {
		if obs.Rejected {
			diag.Rejected++
			continue
		}
		if math.IsNaN(obs.Discharge) || math.IsInf(obs.Discharge, 0) {
			diag.NonFinite++
			continue
		}
		i, ok := grid.Index(obs.Timestamp)
		if !ok {
			diag.OutOfRange++
			continue
		}
		sums[i] += obs.Discharge
		counts[i]++
	}

	values := make([]float64, grid.Len())
	for i := range values {
		if counts[i] == 0 {
			values[i] = math.NaN()
			continue
		}
		values[i] = sums[i] / float64(counts[i])
	}

	return &model.DailySeries{Start: grid.Start(), Values: values}, diag
}

// FromBatch regularizes a batch and carries its parse errors into the diagnostics.
func FromBatch(grid *calendar.Grid, batch *model.Batch) (*model.DailySeries, Diagnostics) {
	s, diag := Regularize(grid, batch.Observations)
	diag.AddParseErrors(batch.ParseErrors)
	return s, diag
}

// Coverage returns the first and last dates holding a valid value, or false when none do.
func Coverage(s *model.DailySeries) (first, last int, ok bool) {
	first, last = -1, -1
	for i, v := range s.Values {
		if math.IsNaN(v) {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	return first, last, first >= 0
}
