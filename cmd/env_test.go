package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/store"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestStoreFill(t *testing.T) {
	fill := storeFill(config.FillConfig{Float: -999999999999, Int: -999, Source: "xxxx"})
	assert.Equal(t, store.Fill{Float: -999999999999, Int: -999, Source: "xxxx"}, fill)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "mysql"}})

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitStore_SQLite(t *testing.T) {
	withConfig(t, &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "priors.db")},
		Fill:  config.FillConfig{Float: -999999999999, Int: -999, Source: "xxxx"},
	})

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Migrate(context.Background()))
}
