// Package annotator applies language detection and translation to every row
// of a table and publishes the latest annotated table.
package annotator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/lingo/internal/dataset"
	"horse.fit/lingo/internal/gateway"
	"horse.fit/lingo/internal/globaltime"
)

const (
	DefaultSourceColumn = "News_Title"

	ColumnLanguage    = "Detected_Language"
	ColumnAccuracy    = "Accuracy"
	ColumnTranslation = "English Translation"
)

// ErrMissingColumn is wrapped in a *dataset.LoadError when the source column
// does not exist.
var ErrMissingColumn = errors.New("source column not found")

// Model is the subset of the gateway the annotator needs.
type Model interface {
	Detect(ctx context.Context, text string) (gateway.DetectionResult, error)
	Translate(ctx context.Context, text string) (gateway.TranslationResult, error)
}

type Options struct {
	SourceColumn string
	Concurrency  int
	// FailFast aborts the run on the first row error instead of recording it.
	FailFast bool
	Recorder RunRecorder
	Logger   zerolog.Logger
}

// Snapshot is the published result of the latest successful run.
type Snapshot struct {
	Table    *dataset.Table
	Report   *Report
	LoadedAt time.Time
}

type Service struct {
	model        Model
	sourceColumn string
	concurrency  int
	failFast     bool
	recorder     RunRecorder
	logger       zerolog.Logger

	reloadMu sync.Mutex
	current  atomic.Pointer[Snapshot]
}

func New(model Model, opts Options) *Service {
	sourceColumn := strings.TrimSpace(opts.SourceColumn)
	if sourceColumn == "" {
		sourceColumn = DefaultSourceColumn
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Service{
		model:        model,
		sourceColumn: sourceColumn,
		concurrency:  concurrency,
		failFast:     opts.FailFast,
		recorder:     opts.Recorder,
		logger:       opts.Logger,
	}
}

func (s *Service) SourceColumn() string {
	return s.sourceColumn
}

// Snapshot returns the current published snapshot, or nil before the first
// successful run.
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

// Dataframe returns the current annotated table, or nil when nothing has
// been loaded. Callers must not modify it.
func (s *Service) Dataframe() *dataset.Table {
	snapshot := s.current.Load()
	if snapshot == nil {
		return nil
	}
	return snapshot.Table
}

// Annotate returns an annotated copy of table. The input is never modified.
// Annotation columns that already exist are overwritten in place.
func (s *Service) Annotate(ctx context.Context, table *dataset.Table) (*dataset.Table, *Report, error) {
	report := &Report{
		RunID:        uuid.New(),
		SourceColumn: s.sourceColumn,
		FailFast:     s.failFast,
		StartedAt:    globaltime.UTC(),
	}
	annotated, err := s.annotate(ctx, table, report)
	s.finish(report, err)
	if err != nil {
		return nil, report, err
	}
	return annotated, report, nil
}

func (s *Service) annotate(ctx context.Context, table *dataset.Table, report *Report) (*dataset.Table, error) {
	if table == nil {
		return nil, &dataset.LoadError{Err: fmt.Errorf("table is nil")}
	}
	source := table.ColumnIndex(s.sourceColumn)
	if source < 0 {
		return nil, &dataset.LoadError{Err: fmt.Errorf("%w: %q", ErrMissingColumn, s.sourceColumn)}
	}

	out := table.Clone()
	languageIdx := out.EnsureColumn(ColumnLanguage)
	accuracyIdx := out.EnsureColumn(ColumnAccuracy)
	translationIdx := out.EnsureColumn(ColumnTranslation)
	report.Rows = out.Len()

	var (
		mu       sync.Mutex
		failures []RowFailure
	)
	fail := func(row int, stage string, err error) error {
		if s.failFast {
			return &RowError{Row: row, Stage: stage, Err: err}
		}
		mu.Lock()
		failures = append(failures, RowFailure{Row: row, Stage: stage, Error: err.Error()})
		mu.Unlock()
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for i := range out.Rows {
		row := out.Rows[i]
		text := row[source]
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			row[languageIdx], row[accuracyIdx], row[translationIdx] = "", "", ""

			detection, err := s.model.Detect(groupCtx, text)
			if err != nil {
				return fail(i, StageDetect, err)
			}
			translated, err := s.model.Translate(groupCtx, text)
			if err != nil {
				return fail(i, StageTranslate, err)
			}

			row[languageIdx] = detection.Language
			row[accuracyIdx] = detection.Confidence
			row[translationIdx] = translated.Text
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].Row < failures[j].Row })
	report.Failures = failures
	report.Failed = len(failures)
	report.Annotated = report.Rows - report.Failed
	return out, nil
}

func (s *Service) finish(report *Report, err error) {
	report.FinishedAt = globaltime.UTC()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	if err != nil {
		report.Status = StatusFailed
		report.Error = err.Error()
		return
	}
	report.Status = StatusSucceeded
}

// Reload loads the file at path, annotates it and publishes the result.
// Reloads are serialized; readers keep seeing the previous snapshot until
// the new one is complete. A failed reload leaves the snapshot unchanged.
func (s *Service) Reload(ctx context.Context, path, filename string) (*Report, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	started := globaltime.UTC()
	table, err := dataset.Load(path)

	var (
		annotated *dataset.Table
		report    *Report
	)
	if err != nil {
		report = &Report{
			RunID:        uuid.New(),
			SourceColumn: s.sourceColumn,
			FailFast:     s.failFast,
			StartedAt:    started,
		}
		s.finish(report, err)
	} else {
		annotated, report, err = s.Annotate(ctx, table)
		report.StartedAt = started
		report.Duration = report.FinishedAt.Sub(started)
		if err != nil {
			var loadErr *dataset.LoadError
			if errors.As(err, &loadErr) && loadErr.Path == "" {
				loadErr.Path = path
				report.Error = err.Error()
			}
		}
	}
	report.Filename = filename
	report.StoredPath = path

	if err == nil {
		s.current.Store(&Snapshot{Table: annotated, Report: report, LoadedAt: report.FinishedAt})
	}
	s.record(ctx, report)

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Warn().Err(err)
	}
	event.
		Str("run_id", report.RunID.String()).
		Str("path", path).
		Int("rows", report.Rows).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("annotation run finished")

	return report, err
}

func (s *Service) record(ctx context.Context, report *Report) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordRun(context.WithoutCancel(ctx), report); err != nil {
		s.logger.Warn().Err(err).Str("run_id", report.RunID.String()).Msg("failed to record annotation run")
	}
}

// RecentRuns returns recorded reports, newest first.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]Report, error) {
	if s.recorder == nil {
		return []Report{}, nil
	}
	return s.recorder.RecentRuns(ctx, limit)
}
