package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/annotator"
	"horse.fit/lingo/internal/dataset"
	"horse.fit/lingo/internal/gateway"
	"horse.fit/lingo/internal/workpool"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// Models is the gateway surface the server calls.
type Models interface {
	Detect(ctx context.Context, text string) (gateway.DetectionResult, error)
	Translate(ctx context.Context, text string) (gateway.TranslationResult, error)
	Status() gateway.Status
	Labels() []string
}

// Annotations is the batch annotator surface the server calls.
type Annotations interface {
	Reload(ctx context.Context, path, filename string) (*annotator.Report, error)
	Dataframe() *dataset.Table
	Snapshot() *annotator.Snapshot
	RecentRuns(ctx context.Context, limit int) ([]annotator.Report, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	UploadDir       string
	BodyLimit       string
}

type Server struct {
	models      Models
	annotations Annotations
	pool        *workpool.Pool
	logger      zerolog.Logger
	opts        Options
}

func NewServer(models Models, annotations Annotations, pool *workpool.Pool, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8000
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	uploadDir := strings.TrimSpace(opts.UploadDir)
	if uploadDir == "" {
		uploadDir = "."
	}
	bodyLimit := strings.TrimSpace(opts.BodyLimit)
	if bodyLimit == "" {
		bodyLimit = "32M"
	}

	return &Server{
		models:      models,
		annotations: annotations,
		pool:        pool,
		logger:      logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			UploadDir:       uploadDir,
			BodyLimit:       bodyLimit,
		},
	}
}

// Handler builds the echo instance with middleware and routes.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(s.opts.BodyLimit))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.POST("/detect_language", s.handleDetectLanguage)
	e.POST("/translate", s.handleTranslate)
	e.POST("/upload_data/", s.handleUploadData)
	e.GET("/get_processed_data", s.handleProcessedData)

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/runs", s.handleRuns)
	api.GET("/languages", s.handleLanguages)

	return e
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.models == nil || s.annotations == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := s.Handler()
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("lingo web server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("lingo web server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		s.logger.Error().Err(err).Str("uri", c.Request().RequestURI).Msg("unhandled handler error")
	}

	if status >= 500 {
		_ = errorWithStatus(c, status, message)
		return
	}
	_ = fail(c, status, message, nil)
}

// respondModelError maps gateway, pool and dataset errors to JSend bodies.
func (s *Server) respondModelError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, gateway.ErrEmptyInput):
		return failValidation(c, map[string]string{"text": "must not be empty"})
	case errors.Is(err, dataset.ErrLoad):
		return fail(c, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, gateway.ErrUndetermined):
		return fail(c, http.StatusUnprocessableEntity, err.Error(), nil)
	case errors.Is(err, gateway.ErrFormat), errors.Is(err, gateway.ErrTranslation):
		s.logger.Error().Err(err).Msg("model call failed")
		return errorWithStatus(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, gateway.ErrModelUnavailable):
		s.logger.Error().Err(err).Msg("model unavailable")
		return errorWithStatus(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, workpool.ErrSaturated):
		s.logger.Warn().Err(err).Msg("rejecting request")
		c.Response().Header().Set("Retry-After", "1")
		return errorWithStatus(c, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errorWithStatus(c, http.StatusServiceUnavailable, "request cancelled before the model call finished")
	default:
		s.logger.Error().Err(err).Msg("request failed")
		return internalError(c, "Internal server error")
	}
}
