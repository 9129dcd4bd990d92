package store

import (
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sos-priors/internal/model"
)

// Fill holds the sentinels written in place of missing values. NaN never
// reaches the database; a stored sentinel reads back as missing.
type Fill struct {
	Float  float64
	Int    int
	Source string
}

// DefaultFill returns the standard sentinels.
func DefaultFill() Fill {
	return Fill{Float: -999999999999, Int: -999, Source: "xxxx"}
}

// float replaces NaN with the float sentinel.
func (f Fill) float(v float64) float64 {
	if math.IsNaN(v) {
		return f.Float
	}
	return v
}

func (f Fill) unfloat(v float64) float64 {
	if v == f.Float {
		return math.NaN()
	}
	return v
}

func (f Fill) floats(vs []float64) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = f.float(v)
	}
	return out
}

func (f Fill) unfloats(dst, vs []float64, field string) error {
	if len(vs) != len(dst) {
		return eris.Errorf("store: %s has %d values, want %d", field, len(vs), len(dst))
	}
	for i, v := range vs {
		dst[i] = f.unfloat(v)
	}
	return nil
}

func (f Fill) code(c model.SourceCode) string {
	if c.IsZero() {
		return f.Source
	}
	return string(c)
}

func (f Fill) uncode(s string) model.SourceCode {
	if s == f.Source {
		return ""
	}
	return model.SourceCode(s)
}

func (f Fill) reachID(id int64) int64 {
	if id == 0 {
		return int64(f.Int)
	}
	return id
}

func (f Fill) unreachID(id int64) int64 {
	if id == int64(f.Int) {
		return 0
	}
	return id
}

// statsRow flattens a statistics bundle into statsColumns order with fills
// applied. The two arrays are returned as slices.
func (f Fill) statsRow(s model.Statistics) []any {
	return []any{
		f.float(s.MeanQ),
		f.float(s.MinQ),
		f.float(s.MaxQ),
		f.float(s.TwoYearReturnQ),
		f.floats(s.MonthlyQ[:]),
		f.floats(s.FlowDurationQ[:]),
	}
}

// scanStats rebuilds a bundle from stored columns.
func (f Fill) scanStats(mean, minQ, maxQ, tyr float64, monthly, fdq []float64) (model.Statistics, error) {
	s := model.Statistics{
		MeanQ:          f.unfloat(mean),
		MinQ:           f.unfloat(minQ),
		MaxQ:           f.unfloat(maxQ),
		TwoYearReturnQ: f.unfloat(tyr),
	}
	if err := f.unfloats(s.MonthlyQ[:], monthly, "monthly_q"); err != nil {
		return s, err
	}
	if err := f.unfloats(s.FlowDurationQ[:], fdq, "flow_duration_q"); err != nil {
		return s, err
	}
	return s, nil
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// dateArg is the value written to a nullable date column.
func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
