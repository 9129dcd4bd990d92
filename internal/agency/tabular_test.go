package agency

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/sos-priors/internal/config"
)

func TestTabular_ABOMQualityFilter(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Bureau of Meteorology export\nDate,Q,Quality Code\n" +
			"2020-01-01,5.5,10\n2020-01-02,6.5,-1\n2020-01-03,7.5,\n2020-01-04,x,10\n"))
	})

	cfg := config.TabularConfig{
		URL: srv.URL + "/abom/{site}.csv", SkipRows: 1,
		DateColumn: "Date", DateLayout: "2006-01-02", DischargeColumn: "Q",
		QualityColumn: "Quality Code", MinQuality: -1,
	}
	batch, err := NewTabular(ABOM, cfg, testOpener()).Fetch(context.Background(), testSite("410001"))
	require.NoError(t, err)

	require.Len(t, batch.Observations, 3)
	assert.Len(t, batch.ParseErrors, 1)
	assert.False(t, batch.Observations[0].Rejected)
	assert.True(t, batch.Observations[1].Rejected)
	assert.True(t, batch.Observations[2].Rejected, "missing quality code")
}

func TestTabular_DGAPaddingAndHidrowebLayout(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dga/00123456.csv", r.URL.Path)
		_, _ = w.Write([]byte("Date;Q\n20200105;1.5\n"))
	})

	cfg := config.TabularConfig{
		URL: srv.URL + "/dga/{site}.csv", Delimiter: ";", SitePad: 8, Scale: 2,
		DateColumn: "Date", DateLayout: "20060102", DischargeColumn: "Q",
	}
	batch, err := NewTabular(DGA, cfg, testOpener()).Fetch(context.Background(), testSite("123456"))
	require.NoError(t, err)
	require.Len(t, batch.Observations, 1)
	assert.Equal(t, "123456", batch.SiteID)
	assert.Equal(t, 5, batch.Observations[0].Timestamp.Day())
	assert.InDelta(t, 3.0, batch.Observations[0].Discharge, 0)
}

func TestTabular_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("data")
	require.NoError(t, err)
	for _, r := range [][]string{{"date", "value"}, {"2020-06-01", "42"}} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write(buf.Bytes()) })

	cfg := config.TabularConfig{
		URL:        srv.URL + "/defra/{site}.xlsx",
		DateColumn: "date", DateLayout: "2006-01-02", DischargeColumn: "value",
	}
	batch, err := NewTabular(DEFRA, cfg, testOpener()).Fetch(context.Background(), testSite("39001"))
	require.NoError(t, err)
	require.Len(t, batch.Observations, 1)
	assert.InDelta(t, 42.0, batch.Observations[0].Discharge, 0)
}

func TestTabular_Errors(t *testing.T) {
	_, err := NewTabular(EAU, config.TabularConfig{}, testOpener()).Fetch(context.Background(), testSite("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no url configured")

	srv := serve(t, func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("when,flow\n")) })
	cfg := config.TabularConfig{URL: srv.URL + "/{site}", DateColumn: "Date", DateLayout: "2006-01-02", DischargeColumn: "Q"}
	_, err = NewTabular(EAU, cfg, testOpener()).Fetch(context.Background(), testSite("1"))
	require.Error(t, err)

	empty := serve(t, func(w http.ResponseWriter, r *http.Request) {})
	cfg.URL = empty.URL + "/{site}"
	batch, err := NewTabular(EAU, cfg, testOpener()).Fetch(context.Background(), testSite("1"))
	require.NoError(t, err)
	assert.Empty(t, batch.Observations)
}

func TestTabular_NonPositive(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Date,Q\n2020-01-01,4.0\n2020-01-02,0\n2020-01-03,-1\n"))
	})

	tests := []struct {
		name        string
		reject      bool
		wantKept    int
		wantLastDay int
	}{
		{name: "kept by default", reject: false, wantKept: 3, wantLastDay: 3},
		{name: "rejected when configured", reject: true, wantKept: 1, wantLastDay: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.TabularConfig{
				URL: srv.URL + "/eau/{site}.csv", DateColumn: "Date", DateLayout: "2006-01-02",
				DischargeColumn: "Q", RejectNonPositive: tt.reject,
			}
			batch, err := NewTabular(EAU, cfg, testOpener()).Fetch(context.Background(), testSite("Y1234"))
			require.NoError(t, err)
			require.Len(t, batch.Observations, 3)

			ok := accepted(batch)
			require.Len(t, ok, tt.wantKept)
			assert.Equal(t, tt.wantLastDay, ok[len(ok)-1].Timestamp.Day())
		})
	}
}
