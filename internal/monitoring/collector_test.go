package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/store"
)

type mockRuns struct {
	runs   []model.Run
	err    error
	called chan struct{}
}

func (m *mockRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if m.called != nil {
		select {
		case m.called <- struct{}{}:
		default:
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	var out []model.Run
	for _, r := range m.runs {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

var collectNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestCollector_Empty(t *testing.T) {
	c := NewCollector(&mockRuns{}, clockwork.NewFakeClockAt(collectNow))

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.FailRate)
	assert.Nil(t, snap.LastComplete)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, collectNow, snap.CollectedAt)
}

func TestCollector_Runs(t *testing.T) {
	done1 := collectNow.Add(-50 * time.Minute)
	done2 := collectNow.Add(-90 * time.Minute)
	runs := &mockRuns{runs: []model.Run{
		{ID: "1", Status: model.RunStatusComplete, StartedAt: collectNow.Add(-time.Hour), CompletedAt: &done1,
			Summary: &model.RunSummary{Overwritten: 10, BadPriors: 1, Sources: []model.SourceSummary{
				{Source: "usgs", Gauges: 8, FetchFailed: 2},
				{Source: "wsc", Gauges: 2},
			}}},
		{ID: "2", Status: model.RunStatusComplete, StartedAt: collectNow.Add(-2 * time.Hour), CompletedAt: &done2,
			Summary: &model.RunSummary{Overwritten: 5}},
		{ID: "3", Status: model.RunStatusFailed, StartedAt: collectNow.Add(-3 * time.Hour)},
		{ID: "4", Status: model.RunStatusRunning, StartedAt: collectNow.Add(-time.Minute)},
		// Outside the window.
		{ID: "5", Status: model.RunStatusFailed, StartedAt: collectNow.Add(-48 * time.Hour)},
	}}

	snap, err := NewCollector(runs, clockwork.NewFakeClockAt(collectNow)).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 1e-9)
	assert.Equal(t, 15, snap.Overwritten)
	assert.Equal(t, 1, snap.BadPriors)
	assert.Equal(t, 10, snap.Gauges)
	assert.InDelta(t, 0.2, snap.FetchFailRate, 1e-9)
	require.NotNil(t, snap.LastComplete)
	assert.Equal(t, done1, *snap.LastComplete)
}

func TestCollector_ListError(t *testing.T) {
	c := NewCollector(&mockRuns{err: errors.New("db down")}, nil)
	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")
}
