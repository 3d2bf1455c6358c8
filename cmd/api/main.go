package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"statement_report/pkg/api/config"
	"statement_report/pkg/api/insight"
	"statement_report/pkg/api/report"
	coreconfig "statement_report/pkg/core/config"
	"statement_report/pkg/core/logging"
	"statement_report/pkg/core/pipeline"
	"syscall"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func main() {
	configPath := flag.String("config", coreconfig.DefaultPath, "path to the YAML config")
	flag.Parse()

	cfg, err := coreconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[CONFIG] %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, stores, cleanup, err := pipeline.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer cleanup()

	router := gin.New()
	router.Use(gin.Recovery(), CORSMiddleware())
	if cfg.Secrets.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20

	api := router.Group("/api")
	config.NewHandler(svc.Manager).Register(api)
	report.NewHandler(svc, svc, stores.Reports, cfg.Server.MaxUploadMB<<20, logger.Named("api")).Register(api)
	insight.NewHandler(svc, stores.Reports, cfg.Server.MaxUploadMB<<20, logger.Named("api")).Register(api)

	server := &http.Server{Addr: cfg.Server.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		logger.Info("Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("API server starting",
		zap.String("addr", cfg.Server.Addr),
		zap.Strings("routes", []string{
			"GET  /api/config",
			"POST /api/config/switch",
			"POST /api/reports",
			"GET  /api/reports",
			"GET  /api/reports/:id",
			"POST /api/chat",
			"POST /api/sentiment",
			"POST /api/anomalies",
		}))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("[FATAL] Server failed to start", zap.Error(err))
		os.Exit(1)
	}
}
