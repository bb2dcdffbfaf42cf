package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"crossarb/internal/config"
	"crossarb/internal/database"
	"crossarb/internal/runner"
)

func main() {
	configDir := flag.String("config", ".", "directory containing config.yaml")
	reportRun := flag.Int64("report-run", 0, "print the summary of a persisted run instead of running")
	reportFile := flag.String("report-file", "", "print the summary of an equity curve parquet instead of running")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger := newLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *reportFile != "" {
		s, err := runner.ReportFile(*reportFile)
		if err != nil {
			logger.Error("Cannot report equity curve", "path", *reportFile, "error", err)
			os.Exit(1)
		}
		runner.PrintSummary(os.Stdout, cfg.Pair, s)
		return
	}

	var repo database.Repository
	if runner.NeedsDatabase(cfg) || *reportRun != 0 {
		pg, err := database.NewPostgresRepository(ctx, logger, cfg.Database.DSN())
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()

		if err := pg.Migrate(ctx); err != nil {
			logger.Error("Failed to migrate database", "error", err)
			os.Exit(1)
		}
		repo = pg
	}

	r := runner.New(logger, cfg, repo)
	if *reportRun != 0 {
		s, err := r.ReportRun(ctx, *reportRun)
		if err != nil {
			logger.Error("Cannot report run", "runID", *reportRun, "error", err)
			os.Exit(1)
		}
		runner.PrintSummary(os.Stdout, cfg.Pair, s)
		return
	}

	res, err := r.Run(ctx)
	if err != nil {
		logger.Error("Backtest could not run", "error", err)
		os.Exit(1)
	}

	runner.PrintSummary(os.Stdout, cfg.Pair, res.Summary)
	if res.RunID != 0 {
		logger.Info("Run persisted", "runID", res.RunID)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
