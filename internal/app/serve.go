package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/annotator"
	"horse.fit/lingo/internal/cli"
	"horse.fit/lingo/internal/config"
	"horse.fit/lingo/internal/gateway"
	"horse.fit/lingo/internal/httpapi"
	"horse.fit/lingo/internal/workpool"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8000, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 30*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 10*time.Minute, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return 1
	}

	loaded, err := buildModels(cfg, logger, true)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to load models")
		fmt.Fprintf(os.Stderr, "Failed to load models: %v\n", err)
		return 1
	}
	models := gateway.New(loaded.handles, logger)
	reloader := &modelReloader{cfg: cfg, logger: logger, gateway: models, current: loaded}
	defer reloader.Close()

	recorder, closeRecorder, err := openRunRecorder(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer closeRecorder()

	annotations := annotator.New(models, annotator.Options{
		SourceColumn: cfg.SourceColumn,
		Concurrency:  cfg.AnnotateConcurrency,
		FailFast:     cfg.AnnotateFailFast,
		Recorder:     recorder,
		Logger:       logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DataPath != "" {
		if _, err := annotations.Reload(ctx, cfg.DataPath, filepath.Base(cfg.DataPath)); err != nil {
			logger.Warn().Err(err).Str("path", cfg.DataPath).Msg("initial dataset was not loaded")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				reloader.Reload()
				continue
			}
			cancel()
			return
		}
	}()

	srv := httpapi.NewServer(models, annotations, workpool.New(cfg.WorkerPoolSize, cfg.WorkerQueueDepth), logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		UploadDir:       cfg.UploadDir,
		BodyLimit:       cfg.UploadBodyLimit,
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}

// modelReloader rebuilds model handles on SIGHUP. A failed rebuild keeps the
// current handles.
type modelReloader struct {
	mu      sync.Mutex
	cfg     *config.Config
	logger  zerolog.Logger
	gateway *gateway.Gateway
	current *modelSet
}

func (r *modelReloader) Reload() {
	next, err := buildModels(r.cfg, r.logger, true)
	if err != nil {
		r.logger.Error().Err(err).Msg("model reload failed, keeping current models")
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gateway.Swap(next.handles)
	previous := r.current
	r.current = next
	// In-flight calls may still hold the old handles; release them after a grace period.
	time.AfterFunc(r.cfg.InferenceTimeout, func() {
		if err := previous.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("close replaced models")
		}
	})
}

func (r *modelReloader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.current.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("close models")
	}
}
