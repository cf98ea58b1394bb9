package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kozaktomas/facegate/internal/archive"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/embedding"
	"github.com/kozaktomas/facegate/internal/logger"
	"github.com/kozaktomas/facegate/internal/match"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/service"
	"github.com/kozaktomas/facegate/internal/store"
	"github.com/kozaktomas/facegate/internal/store/mysql"
	"github.com/kozaktomas/facegate/internal/store/postgres"
)

// indexMode controls how a command treats the nearest-neighbor index.
type indexMode int

const (
	// indexSkip is for commands that never touch the index.
	indexSkip indexMode = iota
	// indexLoad is for commands that search the index.
	indexLoad
	// indexSync is for commands that change identities: the index is kept
	// in step only when a snapshot path is configured, because a stale
	// snapshot with an unchanged identity count would pass the freshness
	// check on the next load.
	indexSync
)

// app bundles a wired service with the resources a command must release
// when it finishes.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	svc     *service.Service
	index   *store.Index
	closers []func() error
}

// Close releases connections in reverse wiring order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Printf("Warning: cleanup failed: %v\n", err)
		}
	}
}

// saveIndex persists the index snapshot when a path is configured.
func (a *app) saveIndex() {
	if a.index == nil || a.cfg.Store.IndexPath == "" {
		return
	}
	if err := a.index.Save(a.cfg.Store.IndexPath, a.cfg.Model.Name, a.cfg.ResolveDim()); err != nil {
		fmt.Printf("Warning: failed to save identify index: %v\n", err)
	}
}

// openStore selects the identity store backend from configuration.
func openStore(cfg *config.Config) (store.IdentityWriter, func() error, error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := postgres.Open(&cfg.Store)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		return postgres.NewIdentityRepository(pool), pool.Close, nil
	case "mysql":
		pool, err := mysql.Open(cfg.Store.MysqlDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MySQL: %w", err)
		}
		return mysql.NewIdentityRepository(pool), pool.Close, nil
	default:
		return store.NewMemoryStore(), nil, nil
	}
}

// openArchive selects the enrollment image archive backend.
func openArchive(cfg *config.Config) (archive.Store, error) {
	switch cfg.Archive.Backend {
	case "local":
		return archive.NewLocalStore(cfg.Archive.Dir)
	case "minio":
		return archive.NewMinioStore(&cfg.Archive)
	default:
		return archive.Disabled{}, nil
	}
}

// newApp wires the identity store, archive, model client and service.
// collector may be nil, which disables metrics recording.
func newApp(cfg *config.Config, log *slog.Logger, mode indexMode, collector *metrics.Collector) (*app, error) {
	metric, err := match.ParseMetric(cfg.Match.Metric)
	if err != nil {
		return nil, err
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	arch, err := openArchive(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	extractor := embedding.NewModelClient(
		cfg.Model.URL,
		cfg.Model.Name,
		cfg.ResolveDim(),
		cfg.Model.Concurrency,
		embedding.QualityPolicy{
			MaxImageSize:    cfg.Quality.MaxImageSize,
			MinImageEdge:    cfg.Quality.MinImageEdge,
			MinFaceWidthPx:  cfg.Quality.MinFaceWidthPx,
			MinFaceWidthRel: cfg.Quality.MinFaceWidthRel,
			MinDetScore:     cfg.Quality.MinDetScore,
			AmbiguityRatio:  cfg.Quality.AmbiguityRatio,
		},
	)

	if mode == indexLoad || (mode == indexSync && cfg.Store.IndexPath != "") {
		a.index, err = store.LoadOrRebuildIndex(context.Background(), st, cfg.Store.IndexPath, cfg.Model.Name, cfg.ResolveDim())
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to prepare identify index: %w", err)
		}
	}

	a.svc = service.New(service.Config{
		Extractor: extractor,
		Store:     st,
		Index:     a.index,
		Archive:   arch,
		Metrics:   collector,
		Logger:    log,
		Metric:    metric,
		Threshold: cfg.ResolveThreshold(),
		Timeout:   cfg.Server.RequestTimeout,
	})
	return a, nil
}

// newCLIApp wires the service for one-shot commands. Service logs go to
// stderr at error level so they do not mix with command output.
func newCLIApp(mode indexMode) (*app, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newApp(cfg, logger.New(os.Stderr, "error"), mode, nil)
}
