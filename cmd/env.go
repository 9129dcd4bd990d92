package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sos-priors/internal/agency"
	"github.com/sells-group/sos-priors/internal/archive"
	"github.com/sells-group/sos-priors/internal/config"
	"github.com/sells-group/sos-priors/internal/fetcher"
	"github.com/sells-group/sos-priors/internal/monitoring"
	"github.com/sells-group/sos-priors/internal/pipeline"
	"github.com/sells-group/sos-priors/internal/priority"
	"github.com/sells-group/sos-priors/internal/store"
)

// storeFill converts the configured sentinels to the store boundary value.
func storeFill(c config.FillConfig) store.Fill {
	return store.Fill{Float: c.Float, Int: c.Int, Source: c.Source}
}

func initStore(ctx context.Context) (store.Store, error) {
	fill := storeFill(cfg.Fill)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "sos-priors.db"
		}
		return store.NewSQLite(dsn, fill)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns}, fill)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore validates the config for mode, opens the store and migrates it.
// Callers close the store.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newOpener() *fetcher.Opener {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		RateLimits: cfg.Fetch.RateLimits,
	})
	ftpFetcher := fetcher.NewFTPFetcher(fetcher.FTPOptions{
		Timeout: time.Duration(cfg.Fetch.FTPTimeoutSecs) * time.Second,
	})
	return fetcher.NewOpener(httpFetcher, ftpFetcher)
}

// runnerEnv holds the store and the runner used by update.
type runnerEnv struct {
	Store  store.Store
	Runner *pipeline.Runner
}

// Close releases the store.
func (e *runnerEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initRunner wires the store, the agency adapters, the priority table and
// the optional report archive into a pipeline runner.
func initRunner(ctx context.Context, reg prometheus.Registerer) (*runnerEnv, error) {
	st, err := openStore(ctx, config.ModeUpdate)
	if err != nil {
		return nil, err
	}

	table, err := priority.Load(cfg.PriorityFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var uploader pipeline.ReportUploader
	if cfg.Archive.Enabled {
		client, err := archive.NewClient(cfg.Archive)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a := archive.New(client, cfg.Archive.Bucket)
		if err := a.EnsureBucket(ctx); err != nil {
			// Reports are best effort; the run still proceeds.
			zap.L().Warn("archive bucket unavailable", zap.Error(err))
		}
		uploader = a
	}

	var metrics *monitoring.Metrics
	if reg != nil {
		metrics = monitoring.NewMetrics(reg)
	}

	registry := agency.NewDefaultRegistry(cfg, newOpener())
	return &runnerEnv{
		Store:  st,
		Runner: pipeline.New(cfg, st, registry, table, metrics, uploader),
	}, nil
}
