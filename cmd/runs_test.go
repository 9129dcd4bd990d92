package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/sos-priors/internal/model"
)

func TestTruncateID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"3f2a9c1e-7b4d-4e8a-9f00-1c2d3e4f5a6b", "3f2a9c1e"},
		{"short", "short"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateID(tt.in))
	}
}

func TestFormatRunsList(t *testing.T) {
	started := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	done := started.Add(95 * time.Second)
	runs := []model.Run{
		{
			ID: "3f2a9c1e-7b4d-4e8a-9f00-1c2d3e4f5a6b", Continent: "na", Status: model.RunStatusComplete,
			StartedAt: started, CompletedAt: &done,
			Summary: &model.RunSummary{Overwritten: 12, BadPriors: 3},
		},
		{ID: "abc", Continent: "eu", Status: model.RunStatusRunning, StartedAt: started},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "OVERWRITTEN")
	assert.Contains(t, out, "3f2a9c1e ")
	assert.NotContains(t, out, "7b4d")
	assert.Contains(t, out, "1m35s")
	assert.Contains(t, out, "2024-06-01 08:00")
	assert.Contains(t, out, "running")
}

func TestFormatRunSummary(t *testing.T) {
	first := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	run := &model.Run{
		ID: "r1", Continent: "na", Status: model.RunStatusComplete,
		Summary: &model.RunSummary{
			Reaches: 100, Overwritten: 7, BadPriors: 2,
			Sources: []model.SourceSummary{
				{Source: "historical grdc", Historical: true, Gauges: 4, Candidates: 3, Overwritten: 3},
				{Source: "usgs", Gauges: 6, FetchFailed: 1, Candidates: 5, Overwritten: 4, BadPriors: 2},
			},
			Diagnostics: model.DiagnosticTotals{Observations: 3650, Rejected: 12},
			Coverage:    model.Coverage{First: &first, Last: &last},
		},
	}

	var buf bytes.Buffer
	formatRunSummary(&buf, run)
	out := buf.String()

	assert.Regexp(t, `Overwritten:\s+7\n`, out)
	assert.Contains(t, out, "2020-01-01 to 2020-12-31")
	assert.Contains(t, out, "3650 (rejected 12")
	assert.Contains(t, out, "historical grdc")
	assert.Contains(t, out, "SOURCE")
	assert.NotContains(t, out, "dry run")
}

func TestFormatRunSummary_NoCoverage(t *testing.T) {
	run := &model.Run{
		ID: "r2", Continent: "eu", Status: model.RunStatusComplete,
		Summary: &model.RunSummary{DryRun: true},
	}

	var buf bytes.Buffer
	formatRunSummary(&buf, run)
	out := buf.String()

	assert.Contains(t, out, "NO TIME DATA")
	assert.Contains(t, out, "dry run")
	assert.NotContains(t, out, "SOURCE")
}

func TestFormatRunSummary_Failed(t *testing.T) {
	run := &model.Run{ID: "r3", Continent: "sa", Status: model.RunStatusFailed, Error: "calendar: bad start"}

	var buf bytes.Buffer
	formatRunSummary(&buf, run)
	out := buf.String()

	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "calendar: bad start")
	assert.NotContains(t, out, "Reaches")
}

func TestFormatProvenance(t *testing.T) {
	p := &model.ReachProvenance{
		ReachID: 71224100223,
		RunID:   "r1",
		ProvenanceRecord: model.ProvenanceRecord{
			Overwritten: true, OverwrittenSource: "usgs",
			BadPrior: true, BadPriorSource: "WSC",
		},
	}

	var buf bytes.Buffer
	formatProvenance(&buf, p)
	out := buf.String()

	assert.Contains(t, out, "71224100223")
	assert.Contains(t, out, "usgs")
	assert.Regexp(t, `Bad prior from:\s+WSC`, out)
}
