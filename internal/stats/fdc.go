package stats

import (
	"sort"

	"gonum.org/v1/gonum/interp"

	"github.com/sells-group/sos-priors/internal/model"
)

// FDCProbabilities are the exceedance percentages sampled by FlowDuration: 1, 6, ..., 96.
var FDCProbabilities = func() [model.FDCPoints]float64 {
	var p [model.FDCPoints]float64
	for i := range p {
		p[i] = float64(1 + 5*i)
	}
	return p
}()

// FlowDuration builds the 20-point flow-duration curve of values using
// Weibull plotting positions p_j = 100*j/(n+1) over the values sorted in
// descending order. Probabilities outside the observed range take the
// nearest end value. values must not be empty.
func FlowDuration(values []float64) [model.FDCPoints]float64 {
	var out [model.FDCPoints]float64

	sorted := append([]float64(nil), values...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	n := len(sorted)
	if n == 1 {
		for i := range out {
			out[i] = sorted[0]
		}
		return out
	}

	probs := make([]float64, n)
	for j := range probs {
		probs[j] = 100 * float64(j+1) / float64(n+1)
	}

	// probs is strictly increasing for n >= 2, so Fit cannot fail here.
	var pl interp.PiecewiseLinear
	if err := pl.Fit(probs, sorted); err != nil {
		return model.MissingStatistics().FlowDurationQ
	}
	for i, p := range FDCProbabilities {
		out[i] = pl.Predict(p)
	}
	return out
}
