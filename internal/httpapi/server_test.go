package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"horse.fit/lingo/internal/annotator"
	"horse.fit/lingo/internal/gateway"
	"horse.fit/lingo/internal/globaltime"
	"horse.fit/lingo/internal/langdetect"
	"horse.fit/lingo/internal/translation"
	"horse.fit/lingo/internal/workpool"
)

type fakeClassifier struct {
	labels    map[string]string
	err       error
	onPredict func()
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *fakeClassifier) Predict(_ context.Context, text string) (langdetect.Prediction, error) {
	if c.onPredict != nil {
		c.onPredict()
	}
	if c.entered != nil {
		c.once.Do(func() { close(c.entered) })
		<-c.release
	}
	if c.err != nil {
		return langdetect.Prediction{}, c.err
	}
	code := c.labels[text]
	if code == "" {
		code = "en"
	}
	return langdetect.Prediction{Label: "__label__" + code, Probability: 0.98761}, nil
}

func (c *fakeClassifier) Name() string {
	return "fake"
}

func (c *fakeClassifier) Labels() []string {
	return []string{"de", "en", "fr"}
}

type fakeTranslator struct{}

func (fakeTranslator) Translate(_ context.Context, req translation.TranslateRequest) (*translation.TranslateResponse, error) {
	return &translation.TranslateResponse{Text: "EN(" + req.Text + ")</s>", TargetLang: req.TargetLang}, nil
}

func (fakeTranslator) Name() string {
	return "fake"
}

func (fakeTranslator) SupportedLanguages() []string {
	return []string{"en"}
}

type testEnv struct {
	echo      *echo.Echo
	uploadDir string
	history   *annotator.MemoryHistory
}

func newTestEnv(t *testing.T, classifier langdetect.Classifier, pool *workpool.Pool) *testEnv {
	t.Helper()
	return newTestEnvWithPolicy(t, classifier, pool, false)
}

func newTestEnvWithPolicy(t *testing.T, classifier langdetect.Classifier, pool *workpool.Pool, failFast bool) *testEnv {
	t.Helper()

	var handles *gateway.Handles
	if classifier != nil {
		handles = &gateway.Handles{Classifier: classifier, Translator: fakeTranslator{}}
	}
	models := gateway.New(handles, zerolog.Nop())
	history := annotator.NewMemoryHistory(10)
	annotations := annotator.New(models, annotator.Options{Concurrency: 2, FailFast: failFast, Recorder: history, Logger: zerolog.Nop()})
	if pool == nil {
		pool = workpool.New(2, 4)
	}

	uploadDir := t.TempDir()
	server := NewServer(models, annotations, pool, zerolog.Nop(), Options{UploadDir: uploadDir})
	return &testEnv{echo: server.Handler(), uploadDir: uploadDir, history: history}
}

func (env *testEnv) postForm(path, text string) *httptest.ResponseRecorder {
	form := url.Values{"text": {text}}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload_data/", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestDetectLanguageResponseShape(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClassifier{labels: map[string]string{"Bonjour le monde": "fr"}}, nil)
	rec := env.postForm("/detect_language", "Bonjour le monde")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if len(body) != 3 {
		t.Fatalf("expected exactly three fields, got %v", body)
	}
	if body["language"] != "fr" || body["accuracy"] != "98.76%" {
		t.Fatalf("unexpected body: %v", body)
	}
	if spent, ok := body["time_spent"].(float64); !ok || spent < 0 {
		t.Fatalf("unexpected time_spent: %v", body["time_spent"])
	}
}

func TestTimeSpentIsRoundedMilliseconds(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	globaltime.SetMockTime(start)
	defer globaltime.ResetTime()

	env := newTestEnv(t, &fakeClassifier{onPredict: func() {
		globaltime.SetMockTime(start.Add(1234560 * time.Nanosecond))
	}}, nil)

	body := decodeBody(t, env.postForm("/detect_language", "Hello world"))
	if body["time_spent"] != 1.23 {
		t.Fatalf("expected time_spent 1.23, got %v", body["time_spent"])
	}
}

func TestTranslateResponseShape(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClassifier{}, nil)
	rec := env.postForm("/translate", "Hola mundo")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if len(body) != 2 || body["translation"] != "EN(Hola mundo)" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["time_spent"].(float64); !ok {
		t.Fatalf("expected numeric time_spent, got %v", body["time_spent"])
	}
}

func TestModelErrorsMapToStatusCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		classifier langdetect.Classifier
		path       string
		text       string
		wantStatus int
		wantJSend  string
	}{
		{name: "empty detect", classifier: &fakeClassifier{}, path: "/detect_language", text: "   ", wantStatus: http.StatusBadRequest, wantJSend: "fail"},
		{name: "empty translate", classifier: &fakeClassifier{}, path: "/translate", text: "", wantStatus: http.StatusBadRequest, wantJSend: "fail"},
		{name: "undetermined", classifier: &fakeClassifier{err: langdetect.ErrUndetermined}, path: "/detect_language", text: "1234", wantStatus: http.StatusUnprocessableEntity, wantJSend: "fail"},
		{name: "bad label", classifier: &fakeClassifier{labels: map[string]string{"x": "fr__extra"}}, path: "/detect_language", text: "x", wantStatus: http.StatusBadGateway, wantJSend: "error"},
		{name: "unloaded", classifier: nil, path: "/detect_language", text: "hello", wantStatus: http.StatusServiceUnavailable, wantJSend: "error"},
	}
	for _, tc := range cases {
		env := newTestEnv(t, tc.classifier, nil)
		rec := env.postForm(tc.path, tc.text)
		if rec.Code != tc.wantStatus {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.wantStatus, rec.Code, rec.Body.String())
		}
		if body := decodeBody(t, rec); body["status"] != tc.wantJSend {
			t.Fatalf("%s: expected jsend status %q, got %v", tc.name, tc.wantJSend, body)
		}
	}
}

func TestSaturatedPoolRejectsRequests(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{entered: make(chan struct{}), release: make(chan struct{})}
	env := newTestEnv(t, classifier, workpool.New(1, 0))

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- env.postForm("/detect_language", "first")
	}()
	<-classifier.entered

	rec := env.postForm("/detect_language", "second")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while saturated, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	close(classifier.release)
	if first := <-done; first.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", first.Code)
	}
}

func TestConcurrentRequestsAreIndependent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClassifier{labels: map[string]string{"Guten Tag": "de", "Bonjour": "fr"}}, workpool.New(4, 64))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		text, want := "Guten Tag", "de"
		if i%2 == 0 {
			text, want = "Bonjour", "fr"
		}
		wg.Add(1)
		if i%4 < 2 {
			go func() {
				defer wg.Done()
				rec := env.postForm("/detect_language", text)
				if rec.Code != http.StatusOK {
					t.Errorf("detect: expected 200, got %d", rec.Code)
					return
				}
				var body detectResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Errorf("decode: %v", err)
					return
				}
				if body.Language != want {
					t.Errorf("text %q: expected %s, got %s", text, want, body.Language)
				}
			}()
			continue
		}
		go func() {
			defer wg.Done()
			rec := env.postForm("/translate", text)
			if rec.Code != http.StatusOK {
				t.Errorf("translate: expected 200, got %d", rec.Code)
				return
			}
			var body translateResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			if body.Translation != "EN("+text+")" {
				t.Errorf("text %q: unexpected translation %q", text, body.Translation)
			}
		}()
	}
	wg.Wait()
}

func TestProcessedDataIsEmptyBeforeUpload(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClassifier{}, nil)
	rec := env.get("/get_processed_data")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestUploadAnnotatesAndPublishesTable(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClassifier{labels: map[string]string{
		"Bonjour le monde": "fr",
		"Guten Tag":        "de",
	}}, nil)

	content := "id,date,News_Title\n1,2024-01-01,Bonjour le monde\n2,2024-01-02,Guten Tag\n3,2024-01-03,Good morning\n"
	rec := env.upload(t, "news.csv", content)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["info"] != "file uploaded successfully" || body["filename"] != "news.csv" {
		t.Fatalf("unexpected upload response: %v", body)
	}
	if _, err := os.Stat(filepath.Join(env.uploadDir, "uploaded_news.csv")); err != nil {
		t.Fatalf("expected stored upload: %v", err)
	}

	rec = env.get("/get_processed_data")
	var rows []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != 6 {
			t.Fatalf("row %d: expected 6 columns, got %v", i, row)
		}
	}
	if rows[0]["Detected_Language"] != "fr" || rows[1]["Accuracy"] != "98.76%" || rows[2]["English Translation"] != "EN(Good morning)" {
		t.Fatalf("unexpected annotations: %v", rows)
	}
	if !strings.HasPrefix(rec.Body.String(), `[{"id":1,"date":"2024-01-01","News_Title":"Bonjour le monde","Detected_Language":"fr"`) {
		t.Fatalf("expected keys in column order, got %s", rec.Body.String())
	}

	runs := decodeBody(t, env.get("/api/v1/runs?limit=5"))
	items, _ := runs["data"].(map[string]any)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one recorded run, got %v", runs)
	}
}

func TestUploadAnnotatesWorkbook(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClassifier{labels: map[string]string{"Bonjour le monde": "fr"}}, nil)

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"", "News_Title"},
		{0, "Bonjour le monde"},
		{1, "Good morning"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}
	var workbook bytes.Buffer
	if err := f.Write(&workbook); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	_ = f.Close()

	rec := env.upload(t, "cleaned_data.xlsx", workbook.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(filepath.Join(env.uploadDir, "uploaded_cleaned_data.xlsx")); err != nil {
		t.Fatalf("expected stored upload: %v", err)
	}

	body := env.get("/get_processed_data").Body.String()
	want := `[{"Unnamed: 0":0,"News_Title":"Bonjour le monde","Detected_Language":"fr","Accuracy":"98.76%","English Translation":"EN(Bonjour le monde)"},` +
		`{"Unnamed: 0":1,"News_Title":"Good morning","Detected_Language":"en","Accuracy":"98.76%","English Translation":"EN(Good morning)"}]`
	if strings.TrimSpace(body) != want {
		t.Fatalf("unexpected processed data:\n got %s\nwant %s", body, want)
	}
}

func TestFailFastUploadReportsOffendingRow(t *testing.T) {
	t.Parallel()

	env := newTestEnvWithPolicy(t, &fakeClassifier{}, nil, true)

	rec := env.upload(t, "news.csv", "id,News_Title\n1,Bonjour\n2,\n")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].(map[string]any)
	if body["status"] != "fail" || data["row"] != float64(1) || data["stage"] != "detect" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, exists := data["validation_errors"]; exists {
		t.Fatalf("upload errors must not report form field errors: %v", body)
	}
	if strings.TrimSpace(env.get("/get_processed_data").Body.String()) != "[]" {
		t.Fatalf("failed run must not publish a table")
	}
}

func TestUploadRejectsBadFiles(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClassifier{}, nil)

	if rec := env.upload(t, "notes.txt", "hello"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported format, got %d", rec.Code)
	}
	if rec := env.upload(t, "news.csv", "Headline\nBonjour\n"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing source column, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload_data/", strings.NewReader(""))
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", rec.Code)
	}

	if strings.TrimSpace(env.get("/get_processed_data").Body.String()) != "[]" {
		t.Fatalf("failed uploads must not publish a table")
	}
}

func TestAPIEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, &fakeClassifier{}, nil)

	health := decodeBody(t, env.get("/api/v1/health"))
	if health["status"] != "success" {
		t.Fatalf("unexpected health: %v", health)
	}
	models, _ := health["data"].(map[string]any)["models"].(map[string]any)
	if models["ready"] != true || models["classifier"] != "fake" {
		t.Fatalf("unexpected model status: %v", health)
	}

	languages := decodeBody(t, env.get("/api/v1/languages"))
	options, _ := languages["data"].(map[string]any)["languages"].([]any)
	if len(options) != 3 {
		t.Fatalf("unexpected languages: %v", languages)
	}

	if rec := env.get("/api/v1/runs?limit=0"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", rec.Code)
	}

	rec := env.get("/missing")
	if rec.Code != http.StatusNotFound || decodeBody(t, rec)["status"] != "fail" {
		t.Fatalf("expected jsend 404, got %d: %s", rec.Code, rec.Body.String())
	}
}
