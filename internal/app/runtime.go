package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/annotator"
	"horse.fit/lingo/internal/breaker"
	"horse.fit/lingo/internal/cli"
	"horse.fit/lingo/internal/config"
	"horse.fit/lingo/internal/db"
	"horse.fit/lingo/internal/gateway"
	"horse.fit/lingo/internal/langdetect"
	"horse.fit/lingo/internal/logging"
	"horse.fit/lingo/internal/translation"
)

// loadRuntime loads .env, config and the logger the way every command does.
func loadRuntime(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// modelSet holds one generation of loaded model handles and what must be
// released when they are replaced.
type modelSet struct {
	handles  *gateway.Handles
	registry *translation.Registry
}

func (m *modelSet) Close() error {
	if m == nil || m.registry == nil {
		return nil
	}
	return m.registry.Close()
}

// buildModels constructs the configured classifier and translation provider.
func buildModels(cfg *config.Config, logger zerolog.Logger, preload bool) (*modelSet, error) {
	classifier, err := langdetect.New(cfg.Detector, langdetect.Options{
		Languages: cfg.DetectorLanguageList(),
		Preload:   preload,
		Endpoint:  cfg.FastTextEndpoint,
		Timeout:   cfg.InferenceTimeout,
		Breaker: breaker.Settings{
			MaxFailures: cfg.BreakerMaxFailures,
			Cooldown:    cfg.BreakerCooldown,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	registry, err := translation.NewRegistryFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build translation registry: %w", err)
	}
	provider, err := registry.Provider(registry.DefaultProvider())
	if err != nil {
		_ = registry.Close()
		return nil, err
	}

	logger.Info().
		Str("detector", classifier.Name()).
		Str("provider", provider.Name()).
		Str("model", translation.ModelName(provider)).
		Msg("models loaded")

	return &modelSet{
		handles: &gateway.Handles{
			Classifier: classifier,
			Translator: provider,
			TargetLang: cfg.TranslationTargetLang,
		},
		registry: registry,
	}, nil
}

// openRunRecorder persists run history to Postgres when DATABASE_URL is set
// and keeps it in memory otherwise.
func openRunRecorder(cfg *config.Config, logger zerolog.Logger) (annotator.RunRecorder, func(), error) {
	if !cfg.HasDatabase() {
		logger.Info().Int("size", cfg.RunHistorySize).Msg("run history kept in memory")
		return annotator.NewMemoryHistory(cfg.RunHistorySize), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return db.NewRunStore(pool), func() { _ = pool.Close() }, nil
}
