package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/lingo/internal/cli"
	"horse.fit/lingo/internal/db"
	"horse.fit/lingo/internal/gateway"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Database ping timeout")
	probe := fs.String("probe", "", "Optional text to run through detection as a smoke test")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return 1
	}

	loaded, err := buildModels(cfg, logger, false)
	if err != nil {
		logger.Error().Err(err).Msg("health check failed")
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer loaded.Close()
	models := gateway.New(loaded.handles, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *probe != "" {
		result, err := models.Detect(ctx, *probe)
		if err != nil {
			logger.Error().Err(err).Msg("detection probe failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		logger.Info().Str("language", result.Language).Str("accuracy", result.Confidence).Msg("detection probe passed")
	}

	if cfg.HasDatabase() {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Error().Err(err).Msg("health check failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		defer pool.Close()

		runs, err := db.NewRunStore(pool).CountRuns(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("health check failed")
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			return 1
		}
		logger.Info().Int64("recorded_runs", runs).Msg("database health check passed")
	}

	status := models.Status()
	logger.Info().
		Str("classifier", status.Classifier).
		Str("provider", status.Provider).
		Str("model", status.Model).
		Bool("database", cfg.HasDatabase()).
		Msg("health check passed")
	fmt.Println("ok")
	return 0
}
