package pipeline

import (
	"context"
	"path/filepath"
	"statement_report/pkg/core/agent"
	"statement_report/pkg/core/config"
	"statement_report/pkg/core/logging"
	"statement_report/pkg/core/prompt"
	"statement_report/pkg/core/store"

	"go.uber.org/zap"
)

// Stores are the persistence backends chosen at startup.
type Stores struct {
	Cache   *store.ExtractionCache
	Reports *store.ReportRepo
}

// Bootstrap wires a Service from cfg: prompt overrides, Postgres when a
// database url is configured (file storage otherwise) and Sentry reporting
// when a DSN is set. cleanup releases the pool and flushes Sentry.
func Bootstrap(ctx context.Context, cfg config.Config, logger *zap.Logger) (svc *Service, stores Stores, cleanup func(), err error) {
	registry := prompt.Get()
	if cfg.PromptsDir != "" {
		n, err := prompt.LoadFromDirectory(registry, cfg.PromptsDir)
		if err != nil {
			logger.Warn("[PROMPT] failed to load prompt overrides, using built-in prompts",
				zap.String("dir", cfg.PromptsDir), zap.Error(err))
		} else {
			logger.Info("[PROMPT] loaded prompt overrides",
				zap.Int("count", n), zap.Int("total", registry.Count()), zap.String("dir", cfg.PromptsDir))
		}
	}

	if cfg.Secrets.DatabaseURL != "" {
		if err := store.InitDB(ctx, cfg.Secrets.DatabaseURL); err != nil {
			return nil, Stores{}, nil, err
		}
		logger.Info("[CONFIG] using postgres storage")
	} else {
		logger.Info("[CONFIG] using file storage", zap.String("dir", cfg.Storage.FileDir))
	}
	pool := store.GetPool()

	fileDir := func(sub string) string {
		if pool != nil {
			return ""
		}
		return filepath.Join(cfg.Storage.FileDir, sub)
	}
	stores.Cache, err = store.NewExtractionCache(pool, fileDir("extractions"))
	if err != nil {
		return nil, Stores{}, nil, err
	}
	stores.Reports, err = store.NewReportRepo(pool, fileDir("reports"))
	if err != nil {
		return nil, Stores{}, nil, err
	}

	var reporter ErrorReporter
	enabled, err := logging.InitSentry(cfg.Secrets.SentryDSN, cfg.Secrets.Environment)
	if err != nil {
		logger.Error("sentry initialization failed", zap.Error(err))
	}
	if enabled {
		reporter = logging.Capture
		logger.Info("[CONFIG] sentry reporting enabled")
	}

	svc = &Service{
		Manager:  agent.NewManager(cfg, logger.Named("agent")),
		Config:   cfg,
		Cache:    stores.Cache,
		Repo:     stores.Reports,
		Prompts:  registry,
		Reporter: reporter,
		Logger:   logger,
	}
	cleanup = func() {
		store.Close()
		logging.Flush()
	}
	logger.Info("[CONFIG] pipeline ready",
		zap.String("active_provider", cfg.ActiveProvider),
		zap.Bool("degrade_on_extraction_failure", cfg.Pipeline.DegradeOnExtractionFailure))
	return svc, stores, cleanup, nil
}
