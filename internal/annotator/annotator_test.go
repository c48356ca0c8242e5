package annotator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/dataset"
	"horse.fit/lingo/internal/gateway"
)

type stubModel struct {
	mu          sync.Mutex
	detectCalls int
	failOn      map[string]error
	languages   map[string]string
}

func (m *stubModel) Detect(_ context.Context, text string) (gateway.DetectionResult, error) {
	m.mu.Lock()
	m.detectCalls++
	m.mu.Unlock()

	if err := m.failOn[text]; err != nil {
		return gateway.DetectionResult{}, err
	}
	code := m.languages[text]
	if code == "" {
		code = "en"
	}
	return gateway.DetectionResult{Language: code, Confidence: "99.50%", Probability: 0.995}, nil
}

func (m *stubModel) Translate(_ context.Context, text string) (gateway.TranslationResult, error) {
	return gateway.TranslationResult{Text: "EN: " + text}, nil
}

func newsTable(t *testing.T) *dataset.Table {
	t.Helper()

	table, err := dataset.New([]string{"id", "date", "News_Title"}, [][]string{
		{"1", "2024-01-01", "Bonjour le monde"},
		{"2", "2024-01-02", "Hola mundo"},
		{"3", "2024-01-03", "Guten Tag"},
	})
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	return table
}

func newTestService(model Model, opts Options) *Service {
	opts.Logger = zerolog.Nop()
	return New(model, opts)
}

func TestAnnotateAppendsThreeColumnsInOrder(t *testing.T) {
	t.Parallel()

	model := &stubModel{languages: map[string]string{
		"Bonjour le monde": "fr",
		"Hola mundo":       "es",
		"Guten Tag":        "de",
	}}
	service := newTestService(model, Options{Concurrency: 2})

	input := newsTable(t)
	out, report, err := service.Annotate(context.Background(), input)
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}

	wantColumns := []string{"id", "date", "News_Title", "Detected_Language", "Accuracy", "English Translation"}
	if strings.Join(out.Columns, "|") != strings.Join(wantColumns, "|") {
		t.Fatalf("unexpected columns: %v", out.Columns)
	}
	wantLanguages := []string{"fr", "es", "de"}
	for i, row := range out.Rows {
		if row[3] != wantLanguages[i] {
			t.Fatalf("row %d: expected %s, got %s", i, wantLanguages[i], row[3])
		}
		if row[4] != "99.50%" || row[5] != "EN: "+row[2] {
			t.Fatalf("row %d: unexpected annotation %#v", i, row)
		}
	}
	if len(input.Columns) != 3 {
		t.Fatalf("input table was modified: %v", input.Columns)
	}
	if report.Rows != 3 || report.Annotated != 3 || report.Failed != 0 || report.Status != StatusSucceeded {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestAnnotateOverwritesExistingAnnotationColumns(t *testing.T) {
	t.Parallel()

	service := newTestService(&stubModel{}, Options{})
	first, _, err := service.Annotate(context.Background(), newsTable(t))
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	second, _, err := service.Annotate(context.Background(), first)
	if err != nil {
		t.Fatalf("annotate again: %v", err)
	}
	if len(second.Columns) != 6 {
		t.Fatalf("expected columns to be reused, got %v", second.Columns)
	}
}

func TestAnnotateIsolatesRowFailures(t *testing.T) {
	t.Parallel()

	model := &stubModel{failOn: map[string]error{"Hola mundo": gateway.ErrUndetermined}}
	service := newTestService(model, Options{Concurrency: 3})

	out, report, err := service.Annotate(context.Background(), newsTable(t))
	if err != nil {
		t.Fatalf("annotate: %v", err)
	}
	if report.Failed != 1 || report.Annotated != 2 {
		t.Fatalf("unexpected counters: %+v", report)
	}
	failure := report.Failures[0]
	if failure.Row != 1 || failure.Stage != StageDetect || !strings.Contains(failure.Error, "could not be determined") {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if out.Rows[1][3] != "" || out.Rows[1][5] != "" {
		t.Fatalf("expected empty cells for failed row, got %#v", out.Rows[1])
	}
	if out.Rows[2][3] == "" {
		t.Fatalf("expected later rows to be annotated, got %#v", out.Rows[2])
	}
}

func TestAnnotateFailFast(t *testing.T) {
	t.Parallel()

	model := &stubModel{failOn: map[string]error{"Bonjour le monde": gateway.ErrFormat}}
	service := newTestService(model, Options{Concurrency: 1, FailFast: true})

	_, report, err := service.Annotate(context.Background(), newsTable(t))
	if !errors.Is(err, gateway.ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
	var rowErr *RowError
	if !errors.As(err, &rowErr) || rowErr.Row != 0 || rowErr.Stage != StageDetect {
		t.Fatalf("expected row error for row 0 detect, got %#v", err)
	}
	if report.Status != StatusFailed {
		t.Fatalf("expected failed report, got %+v", report)
	}
}

func TestAnnotateMissingSourceColumn(t *testing.T) {
	t.Parallel()

	service := newTestService(&stubModel{}, Options{SourceColumn: "Headline"})
	_, _, err := service.Annotate(context.Background(), newsTable(t))
	if !errors.Is(err, dataset.ErrLoad) || !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected load error for missing column, got %v", err)
	}
}

func TestReloadPublishesSnapshotAndRecordsRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "uploaded_news.csv")
	content := "id,News_Title\n1,Bonjour\n2,Hola\n3,Hallo\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	history := NewMemoryHistory(5)
	service := newTestService(&stubModel{}, Options{Concurrency: 2, Recorder: history})
	if service.Dataframe() != nil {
		t.Fatalf("expected no table before the first reload")
	}

	report, err := service.Reload(context.Background(), path, "news.csv")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	table := service.Dataframe()
	if table == nil || table.Len() != 3 || len(table.Columns) != 5 {
		t.Fatalf("unexpected published table: %#v", table)
	}

	encoded, err := json.Marshal(table)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.HasPrefix(string(encoded), `[{"id":"1","News_Title":"Bonjour","Detected_Language":"en","Accuracy":"99.50%","English Translation":"EN: Bonjour"}`) {
		t.Fatalf("unexpected json: %s", encoded)
	}

	runs, err := service.RecentRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != report.RunID || runs[0].Filename != "news.csv" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestReloadFailureKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	if err := os.WriteFile(good, []byte("News_Title\nBonjour\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	history := NewMemoryHistory(5)
	service := newTestService(&stubModel{}, Options{Recorder: history})
	if _, err := service.Reload(context.Background(), good, "good.csv"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	before := service.Snapshot()

	report, err := service.Reload(context.Background(), filepath.Join(dir, "missing.xlsx"), "missing.xlsx")
	if !errors.Is(err, dataset.ErrLoad) {
		t.Fatalf("expected load error, got %v", err)
	}
	if report.Status != StatusFailed {
		t.Fatalf("expected failed report, got %+v", report)
	}
	if service.Snapshot() != before {
		t.Fatalf("expected snapshot to be unchanged")
	}

	runs, _ := history.RecentRuns(context.Background(), 0)
	if len(runs) != 2 || runs[0].Status != StatusFailed {
		t.Fatalf("expected failed run to be recorded first, got %+v", runs)
	}
}

func TestConcurrentReadersDuringReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	service := newTestService(&stubModel{}, Options{Concurrency: 4})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		path := filepath.Join(dir, fmt.Sprintf("batch%d.csv", i))
		rows := strings.Repeat(fmt.Sprintf("text %d\n", i), i+1)
		if err := os.WriteFile(path, []byte("News_Title\n"+rows), 0o644); err != nil {
			t.Fatalf("write csv: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Reload(context.Background(), path, filepath.Base(path)); err != nil {
				t.Errorf("reload: %v", err)
			}
		}()
	}

	for i := 0; i < 100; i++ {
		snapshot := service.Snapshot()
		if snapshot == nil {
			continue
		}
		for _, row := range snapshot.Table.Rows {
			if len(row) != len(snapshot.Table.Columns) {
				t.Fatalf("torn snapshot: %d cells for %d columns", len(row), len(snapshot.Table.Columns))
			}
		}
	}
	wg.Wait()

	if service.Dataframe() == nil {
		t.Fatalf("expected a published table")
	}
}
