package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "sos-priors.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "1980-01-01", cfg.Calendar.Start)
	assert.Empty(t, cfg.Calendar.End)
	assert.InDelta(t, -999999999999.0, cfg.Fill.Float, 0)
	assert.Equal(t, -999, cfg.Fill.Int)
	assert.Equal(t, "xxxx", cfg.Fill.Source)
	assert.Equal(t, 8, cfg.Fetch.Concurrency)
	assert.Equal(t, "https://waterservices.usgs.gov/nwis/dv/", cfg.Agencies.USGS.BaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	abom := cfg.Agencies.Tabular["abom"]
	assert.Equal(t, "Quality Code", abom.QualityColumn)
	assert.InDelta(t, -1.0, abom.MinQuality, 0)
	assert.Equal(t, 8, cfg.Agencies.Tabular["dga"].SitePad)
	assert.Equal(t, "20060102", cfg.Agencies.Tabular["hidroweb"].DateLayout)

	assert.NoError(t, cfg.Validate(ModeUpdate))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/sos
calendar:
  start: "2000-01-01"
  end: "2020-12-31"
fetch:
  concurrency: 4
  rate_limits:
    waterservices.usgs.gov: 2
agencies:
  tabular:
    abom:
      url: https://example.org/abom/{site}.csv
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "2020-12-31", cfg.Calendar.End)
	assert.Equal(t, 4, cfg.Fetch.Concurrency)
	assert.InDelta(t, 2.0, cfg.Fetch.RateLimits["waterservices.usgs.gov"], 0)
	assert.Equal(t, "https://example.org/abom/{site}.csv", cfg.Agencies.Tabular["abom"].URL)
	// Defaults still apply for unset values
	assert.Equal(t, "Q", cfg.Agencies.Tabular["abom"].DischargeColumn)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store:\n  driver: postgres\n"), 0o644))

	t.Setenv("SOS_STORE_DRIVER", "sqlite")
	t.Setenv("SOS_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadInvalidFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [\n"), 0o644))

	_, err := Load()
	require.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

// validDefaults returns a Config that passes validation in every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "file.db"
	cfg.Calendar.Start = "1980-01-01"
	cfg.Fill.Source = "xxxx"
	cfg.Fetch.TimeoutSecs = 60
	cfg.Fetch.FTPTimeoutSecs = 30
	cfg.Fetch.Concurrency = 8
	cfg.Agencies.USGS.BaseURL = "https://waterservices.usgs.gov/nwis/dv/"
	cfg.Agencies.WSC.BaseURL = "https://wateroffice.ec.gc.ca/services/real_time_data/csv/inline"
	cfg.Server.Port = 8080
	cfg.Monitoring.LookbackWindowHours = 168
	cfg.Sword.Version = "16"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "defaults update", mode: ModeUpdate, mutate: func(*Config) {}},
		{name: "defaults serve", mode: ModeServe, mutate: func(*Config) {}},
		{
			name:    "unknown mode",
			mode:    "bogus",
			mutate:  func(*Config) {},
			wantErr: []string{"unknown mode"},
		},
		{
			name:    "bad driver",
			mode:    ModeUpdate,
			mutate:  func(c *Config) { c.Store.Driver = "mysql" },
			wantErr: []string{"store.driver must be one of [sqlite postgres]"},
		},
		{
			name: "bad calendar and fill",
			mode: ModeUpdate,
			mutate: func(c *Config) {
				c.Calendar.Start = "01/01/1980"
				c.Fill.Source = "toolong"
			},
			wantErr: []string{"calendar.start must be a date", "fill.source must be <= 4"},
		},
		{
			name:    "concurrency bounds",
			mode:    ModeUpdate,
			mutate:  func(c *Config) { c.Fetch.Concurrency = 0 },
			wantErr: []string{"fetch.concurrency must be >= 1"},
		},
		{
			name:    "archive needs bucket",
			mode:    ModeUpdate,
			mutate:  func(c *Config) { c.Archive.Enabled = true; c.Archive.Endpoint = "localhost:9000" },
			wantErr: []string{"archive.bucket is required"},
		},
		{
			name: "tabular layout",
			mode: ModeUpdate,
			mutate: func(c *Config) {
				c.Agencies.Tabular = map[string]TabularConfig{"eau": {DateColumn: "Date", DateLayout: "2006-01-02"}}
			},
			wantErr: []string{"discharge_column is required"},
		},
		{
			name: "monitoring thresholds",
			mode: ModeServe,
			mutate: func(c *Config) {
				c.Monitoring.FailureRateThreshold = 1.5
				c.Monitoring.WebhookURL = "not a url"
			},
			wantErr: []string{"monitoring.failure_rate_threshold must be <= 1", "monitoring.webhook_url failed url validation"},
		},
		{
			name:    "serve port",
			mode:    ModeServe,
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: []string{"server.port must be between 1 and 65535"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}
