package annotator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const (
	StageDetect    = "detect"
	StageTranslate = "translate"
)

// RowFailure records one row that could not be annotated. Row is the
// zero-based position in the table.
type RowFailure struct {
	Row   int    `json:"row"`
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// RowError aborts a fail-fast run at the first row that could not be
// annotated.
type RowError struct {
	Row   int
	Stage string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %v", e.Row, e.Stage, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Report summarizes one annotation run.
type Report struct {
	RunID        uuid.UUID     `json:"run_id"`
	Filename     string        `json:"filename,omitempty"`
	StoredPath   string        `json:"stored_path,omitempty"`
	SourceColumn string        `json:"source_column"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	FailFast     bool          `json:"fail_fast"`
	Rows         int           `json:"rows"`
	Annotated    int           `json:"annotated"`
	Failed       int           `json:"failed"`
	Failures     []RowFailure  `json:"failures,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Duration     time.Duration `json:"duration_ns"`
}

// RunRecorder persists annotation reports.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *Report) error
	RecentRuns(ctx context.Context, limit int) ([]Report, error)
}

// MemoryHistory keeps the most recent reports in a fixed-size ring.
type MemoryHistory struct {
	mu    sync.Mutex
	runs  []Report
	next  int
	count int
}

func NewMemoryHistory(size int) *MemoryHistory {
	if size < 1 {
		size = 1
	}
	return &MemoryHistory{runs: make([]Report, size)}
}

func (h *MemoryHistory) RecordRun(_ context.Context, report *Report) error {
	if report == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	stored := *report
	stored.Failures = append([]RowFailure(nil), report.Failures...)
	h.runs[h.next] = stored
	h.next = (h.next + 1) % len(h.runs)
	if h.count < len(h.runs) {
		h.count++
	}
	return nil
}

// RecentRuns returns up to limit reports, newest first. limit <= 0 returns all.
func (h *MemoryHistory) RecentRuns(_ context.Context, limit int) ([]Report, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 || limit > h.count {
		limit = h.count
	}
	out := make([]Report, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (h.next - i + len(h.runs)) % len(h.runs)
		out = append(out, h.runs[idx])
	}
	return out, nil
}
