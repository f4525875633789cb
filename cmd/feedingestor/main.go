package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"FeedIngestor/internal/app"
	"FeedIngestor/internal/config"
	"FeedIngestor/internal/logging"
)

const runOnceEnv = "RUN_ONCE"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Path())
	if err != nil {
		logging.New("error", "text").Error("configuration rejected", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("application setup failed", "error", err)
		os.Exit(1)
	}

	if once, _ := strconv.ParseBool(os.Getenv(runOnceEnv)); once {
		summary, err := application.RunOnce(ctx)
		if err != nil {
			logger.Error("ingestion run failed", "error", err)
			os.Exit(1)
		}
		logger.Info("ingestion run complete", "run_id", summary.RunID, "stored", summary.Totals.Stored, "feeds_failed", summary.Totals.FeedsFailed)
		return
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
