package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/series"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveSeries("usgs", series.Diagnostics{
		Observations: 10,
		Rejected:     2,
		OutOfRange:   1,
		ParseErrors:  []model.ParseError{{SiteID: "1"}},
	})
	m.FetchFailed("wsc")
	m.FetchFailed("wsc")
	m.ObserveSource("usgs", 4, 1)
	m.ObserveRun("na", model.RunStatusComplete, 90*time.Second)

	assert.Equal(t, 10.0, testutil.ToFloat64(m.Observations.WithLabelValues("usgs")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Rejected.WithLabelValues("usgs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParseErrors.WithLabelValues("usgs")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues("wsc")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Overwritten.WithLabelValues("usgs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("na", "complete")))

	n, err := testutil.GatherAndCount(reg, "sos_priors_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSeries("usgs", series.Diagnostics{Observations: 1})
		m.FetchFailed("usgs")
		m.ObserveSource("usgs", 1, 1)
		m.ObserveRun("na", model.RunStatusFailed, time.Second)
	})
}
