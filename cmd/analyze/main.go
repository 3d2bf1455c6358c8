package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"statement_report/pkg/core/config"
	"statement_report/pkg/core/logging"
	"statement_report/pkg/core/pipeline"
	"statement_report/pkg/core/sentiment"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config")
	out := flag.String("out", "", "write the report JSON here instead of stdout")
	mediaType := flag.String("type", "", "media type of the input (detected when empty)")
	degrade := flag.Bool("degrade", false, "continue with an empty record when extraction fails")
	withSentiment := flag.Bool("sentiment", false, "also classify the sentiment of the generated sections")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: analyze [flags] <file>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[CONFIG] %v\n", err)
		os.Exit(1)
	}
	if *degrade {
		cfg.Pipeline.DegradeOnExtractionFailure = true
	}
	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(context.Background(), cfg, logger, path, *mediaType, *out, *withSentiment); err != nil {
		logger.Error("analysis failed", zap.String("file", path), zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, path, mediaType, out string, withSentiment bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if mediaType == "" {
		mediaType = mime.TypeByExtension(filepath.Ext(path))
	}

	svc, _, cleanup, err := pipeline.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := svc.Run(ctx, pipeline.Input{Name: filepath.Base(path), MediaType: mediaType, Data: data})
	if err != nil {
		return err
	}
	if degraded := a.Result.Narratives().Degraded(); len(degraded) > 0 {
		logger.Warn("some sections are placeholders", zap.Any("sections", degraded))
	}
	if withSentiment {
		res, err := svc.Sentiment(ctx, sentiment.ReportText(a.Result))
		if err != nil {
			logger.Warn("sentiment unavailable", zap.Error(err))
		} else {
			logger.Info("report sentiment", zap.String("label", string(res.Label)), zap.Float64("score", res.Score))
		}
	}

	body, err := json.MarshalIndent(a.Result, "", "  ")
	if err != nil {
		return err
	}
	if out == "" {
		_, err = os.Stdout.Write(append(body, '\n'))
		return err
	}
	if err := os.WriteFile(out, body, 0644); err != nil {
		return err
	}
	logger.Info("report written", zap.String("id", a.ID), zap.String("path", out))
	return nil
}
