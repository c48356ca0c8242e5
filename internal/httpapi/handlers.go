package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/lingo/internal/annotator"
	"horse.fit/lingo/internal/gateway"
	"horse.fit/lingo/internal/globaltime"
	"horse.fit/lingo/internal/translation"
	"horse.fit/lingo/internal/workpool"
)

const uploadInfo = "file uploaded successfully"

type detectResponse struct {
	Language  string  `json:"language"`
	Accuracy  string  `json:"accuracy"`
	TimeSpent float64 `json:"time_spent"`
}

type translateResponse struct {
	Translation string  `json:"translation"`
	TimeSpent   float64 `json:"time_spent"`
}

type uploadResponse struct {
	Info     string `json:"info"`
	Filename string `json:"filename"`
}

func (s *Server) handleDetectLanguage(c echo.Context) error {
	text := c.FormValue("text")
	ctx := c.Request().Context()

	started := globaltime.Now()
	result, err := workpool.Do(ctx, s.pool, func(taskCtx context.Context) (gateway.DetectionResult, error) {
		return s.models.Detect(taskCtx, text)
	})
	timeSpent := globaltime.ElapsedMS(started)
	if err != nil {
		return s.respondModelError(c, err)
	}

	return c.JSON(http.StatusOK, detectResponse{
		Language:  result.Language,
		Accuracy:  result.Confidence,
		TimeSpent: timeSpent,
	})
}

func (s *Server) handleTranslate(c echo.Context) error {
	text := c.FormValue("text")
	ctx := c.Request().Context()

	started := globaltime.Now()
	result, err := workpool.Do(ctx, s.pool, func(taskCtx context.Context) (gateway.TranslationResult, error) {
		return s.models.Translate(taskCtx, text)
	})
	timeSpent := globaltime.ElapsedMS(started)
	if err != nil {
		return s.respondModelError(c, err)
	}

	return c.JSON(http.StatusOK, translateResponse{
		Translation: result.Text,
		TimeSpent:   timeSpent,
	})
}

func (s *Server) handleUploadData(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		return failValidation(c, map[string]string{"file": "multipart field is required"})
	}
	filename := strings.TrimSpace(header.Filename)

	src, err := header.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "Failed to read upload", nil)
	}
	defer src.Close()

	path, err := annotator.SaveUpload(s.opts.UploadDir, filename, src)
	if err != nil {
		s.logger.Error().Err(err).Str("filename", filename).Msg("store upload failed")
		return fail(c, http.StatusBadRequest, err.Error(), nil)
	}

	// The run finishes and publishes even if the client disconnects.
	ctx := context.WithoutCancel(c.Request().Context())
	if _, err := s.annotations.Reload(ctx, path, filename); err != nil {
		return s.respondUploadError(c, err)
	}

	return c.JSON(http.StatusOK, uploadResponse{
		Info:     uploadInfo,
		Filename: filename,
	})
}

// respondUploadError reports row-level failures of a fail-fast run against
// the offending row instead of the form field of the single-text endpoints.
func (s *Server) respondUploadError(c echo.Context, err error) error {
	var rowErr *annotator.RowError
	if !errors.As(err, &rowErr) {
		return s.respondModelError(c, err)
	}
	if errors.Is(err, gateway.ErrEmptyInput) || errors.Is(err, gateway.ErrUndetermined) {
		return fail(c, http.StatusUnprocessableEntity, err.Error(), map[string]any{
			"row":   rowErr.Row,
			"stage": rowErr.Stage,
		})
	}
	return s.respondModelError(c, err)
}

func (s *Server) handleProcessedData(c echo.Context) error {
	table := s.annotations.Dataframe()
	if table == nil {
		return c.JSON(http.StatusOK, []any{})
	}
	return c.JSON(http.StatusOK, table)
}

func (s *Server) handleHealth(c echo.Context) error {
	status := s.models.Status()

	datasetInfo := map[string]any{"loaded": false}
	if snapshot := s.annotations.Snapshot(); snapshot != nil {
		datasetInfo = map[string]any{
			"loaded":    true,
			"rows":      snapshot.Table.Len(),
			"columns":   snapshot.Table.Columns,
			"loaded_at": snapshot.LoadedAt,
			"run_id":    snapshot.Report.RunID,
		}
	}

	return success(c, map[string]any{
		"service": "lingo",
		"time":    globaltime.UTC(),
		"models":  status,
		"pool":    s.pool.Stats(),
		"dataset": datasetInfo,
	})
}

func (s *Server) handleRuns(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultRunsLimit, 1, maxRunsLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	runs, err := s.annotations.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query annotation runs failed")
		return internalError(c, "Failed to load annotation runs")
	}
	return success(c, map[string]any{
		"items": runs,
	})
}

func (s *Server) handleLanguages(c echo.Context) error {
	status := s.models.Status()
	return success(c, map[string]any{
		"detector":    status.Classifier,
		"languages":   translation.LanguageOptions(s.models.Labels()),
		"target_lang": status.TargetLang,
	})
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}
