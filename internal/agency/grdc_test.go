package agency

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sos-priors/internal/config"
)

// latin1 GRDC export; 0xED is "í" in ISO-8859-1.
var grdcExport = []byte("# Title:    GRDC STATION DATA FILE\n" +
	"# River:    R\xedo Negro\n" +
	"# DATA\n" +
	"YYYY-MM-DD;hh:mm; Value\n" +
	"2020-01-01;--:--;    123.000\n" +
	"2020-01-02;--:--;   -999.000\n" +
	"2020-01-03;--:--;      0.000\n" +
	"bad;--:--;1\n" +
	"2020-01-04\n")

func writeGRDCArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grdc.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, body := range map[string][]byte{
		"export/3629000_Q_Day.Cmd.txt": grdcExport,
		"export/README.txt":            []byte("ignored"),
	} {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestGRDC_Fetch(t *testing.T) {
	path := writeGRDCArchive(t)
	a := NewGRDC(config.GRDCConfig{Archive: path}, testOpener())

	batch, err := a.Fetch(context.Background(), testSite("3629000"))
	require.NoError(t, err)

	require.Len(t, batch.Observations, 3)
	assert.Len(t, batch.ParseErrors, 2)
	assert.InDelta(t, 123.0, batch.Observations[0].Discharge, 0)
	assert.False(t, batch.Observations[0].Rejected)
	assert.True(t, batch.Observations[1].Rejected)
	assert.False(t, batch.Observations[2].Rejected, "zero flow is a reading")
	assert.Zero(t, batch.Observations[2].Discharge)

	// archive is read once per run
	require.NoError(t, os.Remove(path))
	empty, err := a.Fetch(context.Background(), testSite("1111111"))
	require.NoError(t, err)
	assert.Empty(t, empty.Observations)
}

func TestGRDC_NoArchive(t *testing.T) {
	_, err := NewGRDC(config.GRDCConfig{}, testOpener()).Fetch(context.Background(), testSite("1"))
	require.Error(t, err)

	_, err = NewGRDC(config.GRDCConfig{Archive: filepath.Join(t.TempDir(), "none.zip")}, testOpener()).
		Fetch(context.Background(), testSite("1"))
	require.Error(t, err)
}
