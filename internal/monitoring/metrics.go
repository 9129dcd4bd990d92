package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/series"
)

const namespace = "sos_priors"

// Metrics holds the Prometheus collectors for priors runs. A nil *Metrics
// records nothing.
type Metrics struct {
	// Series regularization, labels: agency.
	Observations *prometheus.CounterVec
	Rejected     *prometheus.CounterVec
	OutOfRange   *prometheus.CounterVec
	NonFinite    *prometheus.CounterVec
	ParseErrors  *prometheus.CounterVec

	FetchFailures *prometheus.CounterVec // labels: agency

	// Reconciliation outcomes, labels: source.
	Overwritten *prometheus.CounterVec
	BadPriors   *prometheus.CounterVec

	Runs        *prometheus.CounterVec   // labels: continent, status
	RunDuration *prometheus.HistogramVec // labels: continent, status
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	m := &Metrics{
		Observations:  counter("observations_total", "Raw discharge readings received.", "agency"),
		Rejected:      counter("observations_rejected_total", "Readings dropped by agency quality filters.", "agency"),
		OutOfRange:    counter("observations_out_of_range_total", "Readings dated outside the calendar grid.", "agency"),
		NonFinite:     counter("observations_non_finite_total", "Readings with a NaN or infinite discharge.", "agency"),
		ParseErrors:   counter("parse_errors_total", "Records that could not be parsed.", "agency"),
		FetchFailures: counter("fetch_failures_total", "Site pulls that produced nothing usable.", "agency"),
		Overwritten:   counter("reaches_overwritten_total", "Reaches overwritten with gauge statistics.", "source"),
		BadPriors:     counter("bad_priors_total", "Winning candidates rejected by validation.", "source"),
		Runs:          counter("runs_total", "Finished runs by outcome.", "continent", "status"),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a priors run.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"continent", "status"}),
	}

	reg.MustRegister(
		m.Observations,
		m.Rejected,
		m.OutOfRange,
		m.NonFinite,
		m.ParseErrors,
		m.FetchFailures,
		m.Overwritten,
		m.BadPriors,
		m.Runs,
		m.RunDuration,
	)
	return m
}

// ObserveSeries records the diagnostics of one regularized site.
func (m *Metrics) ObserveSeries(agency string, d series.Diagnostics) {
	if m == nil {
		return
	}
	m.Observations.WithLabelValues(agency).Add(float64(d.Observations))
	m.Rejected.WithLabelValues(agency).Add(float64(d.Rejected))
	m.OutOfRange.WithLabelValues(agency).Add(float64(d.OutOfRange))
	m.NonFinite.WithLabelValues(agency).Add(float64(d.NonFinite))
	m.ParseErrors.WithLabelValues(agency).Add(float64(len(d.ParseErrors)))
}

// FetchFailed counts a failed site pull.
func (m *Metrics) FetchFailed(agency string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(agency).Inc()
}

// ObserveSource records what one source did to the canonical priors.
func (m *Metrics) ObserveSource(source string, overwritten, badPriors int) {
	if m == nil {
		return
	}
	m.Overwritten.WithLabelValues(source).Add(float64(overwritten))
	m.BadPriors.WithLabelValues(source).Add(float64(badPriors))
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(continent string, status model.RunStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(continent, string(status)).Inc()
	m.RunDuration.WithLabelValues(continent, string(status)).Observe(d.Seconds())
}
