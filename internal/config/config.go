package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// DatabaseURL is optional; without it run history stays in memory.
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"4"`

	Detector          string `envconfig:"DETECTOR" default:"lingua"`
	DetectorLanguages string `envconfig:"DETECTOR_LANGUAGES" default:""`
	FastTextEndpoint  string `envconfig:"FASTTEXT_ENDPOINT" default:"http://127.0.0.1:8846"`

	TranslationProvider   string `envconfig:"TRANSLATION_PROVIDER" default:"marian"`
	TranslationTargetLang string `envconfig:"TRANSLATION_TARGET_LANG" default:"en"`
	MarianEndpoint        string `envconfig:"MARIAN_ENDPOINT" default:"http://127.0.0.1:8847"`
	MarianModel           string `envconfig:"MARIAN_MODEL" default:"Helsinki-NLP/opus-mt-mul-en"`
	MarianMaxLength       int    `envconfig:"MARIAN_MAX_LENGTH" default:"512"`
	MarianAPIToken        string `envconfig:"MARIAN_API_TOKEN" default:""`
	OpenAIBaseURL         string `envconfig:"OPENAI_BASE_URL" default:"http://127.0.0.1:8845/v1"`
	OpenAIAPIKey          string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel           string `envconfig:"OPENAI_MODEL" default:"tencent/HY-MT1.5-7B"`
	GoogleTranslateAPIKey string `envconfig:"GOOGLE_TRANSLATE_API_KEY" default:""`

	InferenceTimeout   time.Duration `envconfig:"INFERENCE_TIMEOUT" default:"120s"`
	BreakerMaxFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerCooldown    time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`

	WorkerPoolSize      int  `envconfig:"WORKER_POOL_SIZE" default:"4"`
	WorkerQueueDepth    int  `envconfig:"WORKER_QUEUE_DEPTH" default:"64"`
	AnnotateConcurrency int  `envconfig:"ANNOTATE_CONCURRENCY" default:"4"`
	AnnotateFailFast    bool `envconfig:"ANNOTATE_FAIL_FAST" default:"false"`

	SourceColumn    string `envconfig:"SOURCE_COLUMN" default:"News_Title"`
	DataPath        string `envconfig:"DATA_PATH" default:""`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"."`
	UploadBodyLimit string `envconfig:"UPLOAD_BODY_LIMIT" default:"32M"`
	RunHistorySize  int    `envconfig:"RUN_HISTORY_SIZE" default:"50"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.Detector) == "" {
		return fmt.Errorf("DETECTOR is required")
	}
	if strings.TrimSpace(c.TranslationProvider) == "" {
		return fmt.Errorf("TRANSLATION_PROVIDER is required")
	}
	if strings.TrimSpace(c.TranslationTargetLang) == "" {
		return fmt.Errorf("TRANSLATION_TARGET_LANG is required")
	}
	if c.MarianMaxLength < 1 {
		return fmt.Errorf("MARIAN_MAX_LENGTH must be >= 1")
	}
	if c.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be > 0")
	}
	if c.BreakerMaxFailures < 1 {
		return fmt.Errorf("BREAKER_MAX_FAILURES must be >= 1")
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("WORKER_POOL_SIZE must be >= 1")
	}
	if c.WorkerQueueDepth < 0 {
		return fmt.Errorf("WORKER_QUEUE_DEPTH must be >= 0")
	}
	if c.AnnotateConcurrency < 1 {
		return fmt.Errorf("ANNOTATE_CONCURRENCY must be >= 1")
	}
	if strings.TrimSpace(c.SourceColumn) == "" {
		return fmt.Errorf("SOURCE_COLUMN is required")
	}
	if strings.TrimSpace(c.UploadDir) == "" {
		return fmt.Errorf("UPLOAD_DIR is required")
	}
	if c.RunHistorySize < 1 {
		return fmt.Errorf("RUN_HISTORY_SIZE must be >= 1")
	}
	return nil
}

// HasDatabase reports whether run history should be persisted to Postgres.
func (c *Config) HasDatabase() bool {
	return c != nil && strings.TrimSpace(c.DatabaseURL) != ""
}

// DetectorLanguageList splits DETECTOR_LANGUAGES into trimmed, de-duplicated codes.
func (c *Config) DetectorLanguageList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.DetectorLanguages, ",")
	codes := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		code := strings.ToLower(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if _, exists := seen[code]; exists {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}
