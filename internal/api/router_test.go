package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sos-priors/internal/model"
	"github.com/sells-group/sos-priors/internal/monitoring"
	"github.com/sells-group/sos-priors/internal/store"
)

type fakeReader struct {
	runs       []model.Run
	provenance map[int64]model.ReachProvenance
	err        error
	lastFilter store.RunFilter
}

func (f *fakeReader) GetRun(_ context.Context, id string) (*model.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, eris.Wrapf(store.ErrNotFound, "run %s", id)
}

func (f *fakeReader) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.runs, nil
}

func (f *fakeReader) LoadProvenance(_ context.Context, reachID int64) (*model.ReachProvenance, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.provenance[reachID]
	if !ok {
		return nil, eris.Wrapf(store.ErrNotFound, "reach %d", reachID)
	}
	return &p, nil
}

var apiNow = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func newReader() *fakeReader {
	return &fakeReader{
		runs: []model.Run{
			{ID: "r1", Continent: "na", Status: model.RunStatusComplete, StartedAt: apiNow.Add(-time.Hour),
				Summary: &model.RunSummary{Reaches: 5, Overwritten: 2}},
			{ID: "r2", Continent: "eu", Status: model.RunStatusFailed, StartedAt: apiNow.Add(-2 * time.Hour), Error: "boom"},
		},
		provenance: map[int64]model.ReachProvenance{
			71224100223: {ReachID: 71224100223, RunID: "r1", ProvenanceRecord: model.ProvenanceRecord{
				Overwritten: true, OverwrittenSource: "usgs",
			}},
		},
	}
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := do(t, NewRouter(newReader(), Options{}), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListRuns(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantFilter store.RunFilter
	}{
		{name: "defaults", path: "/runs", wantStatus: http.StatusOK, wantFilter: store.RunFilter{Limit: 50}},
		{
			name:       "filtered",
			path:       "/runs?continent=na&status=complete&limit=10&offset=20",
			wantStatus: http.StatusOK,
			wantFilter: store.RunFilter{Continent: "na", Status: model.RunStatusComplete, Limit: 10, Offset: 20},
		},
		{name: "limit capped", path: "/runs?limit=10000", wantStatus: http.StatusOK, wantFilter: store.RunFilter{Limit: 500}},
		{name: "bad status", path: "/runs?status=paused", wantStatus: http.StatusBadRequest},
		{name: "bad limit", path: "/runs?limit=ten", wantStatus: http.StatusBadRequest},
		{name: "negative offset", path: "/runs?offset=-1", wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rd := newReader()
			rec := do(t, NewRouter(rd, Options{}), tt.path)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			assert.Equal(t, tt.wantFilter, rd.lastFilter)

			var runs []model.Run
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
			assert.Len(t, runs, 2)
		})
	}
}

func TestListRuns_EmptyIsArray(t *testing.T) {
	rec := do(t, NewRouter(&fakeReader{}, Options{}), "/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestListRuns_StoreError(t *testing.T) {
	rec := do(t, NewRouter(&fakeReader{err: errors.New("db closed")}, Options{}), "/runs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db closed")
}

func TestGetRun(t *testing.T) {
	h := NewRouter(newReader(), Options{})

	rec := do(t, h, "/runs/r1")
	require.Equal(t, http.StatusOK, rec.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "na", run.Continent)
	assert.Equal(t, 2, run.Summary.Overwritten)

	rec = do(t, h, "/runs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProvenance(t *testing.T) {
	h := NewRouter(newReader(), Options{})

	rec := do(t, h, "/reaches/71224100223/provenance")
	require.Equal(t, http.StatusOK, rec.Code)
	var p model.ReachProvenance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.True(t, p.Overwritten)
	assert.Equal(t, model.SourceCode("usgs"), p.OverwrittenSource)

	assert.Equal(t, http.StatusNotFound, do(t, h, "/reaches/1/provenance").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "/reaches/abc/provenance").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "/reaches/-4/provenance").Code)
}

func TestStatus(t *testing.T) {
	rd := newReader()
	h := NewRouter(rd, Options{
		Collector:     monitoring.NewCollector(rd, clockwork.NewFakeClockAt(apiNow)),
		LookbackHours: 24,
	})

	rec := do(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap monitoring.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 2, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 2, snap.Overwritten)
}

func TestOptionalRoutesUnmounted(t *testing.T) {
	h := NewRouter(newReader(), Options{})
	assert.Equal(t, http.StatusNotFound, do(t, h, "/status").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, "/metrics").Code)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	m.FetchFailed("usgs")

	rec := do(t, NewRouter(newReader(), Options{Gatherer: reg}), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sos_priors_fetch_failures_total{agency="usgs"} 1`)
}

func TestCORS(t *testing.T) {
	h := NewRouter(newReader(), Options{AllowedOrigins: []string{"https://hydro.example.org"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://hydro.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://hydro.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://elsewhere.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
