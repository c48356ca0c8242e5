package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"horse.fit/lingo/internal/breaker"
	"horse.fit/lingo/internal/globaltime"
)

const (
	// DefaultMarianEndpoint points to a local Hugging Face inference server.
	DefaultMarianEndpoint = "http://127.0.0.1:8847"
	// DefaultMarianModel translates from many source languages into English.
	DefaultMarianModel     = "Helsinki-NLP/opus-mt-mul-en"
	DefaultMarianMaxLength = 512
)

type MarianOptions struct {
	Endpoint   string
	Model      string
	MaxLength  int
	APIToken   string
	TargetLang string
	Timeout    time.Duration
	Breaker    *breaker.Breaker
}

// MarianProvider calls a MarianMT model served behind a Hugging Face style
// inference endpoint. Tokenization, truncation and decoding happen server-side
// with the parameters sent in each request.
type MarianProvider struct {
	modelURL   string
	model      string
	maxLength  int
	apiToken   string
	targetLang string
	client     *http.Client
	breaker    *breaker.Breaker
}

func NewMarianProvider(opts MarianOptions) *MarianProvider {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultMarianModel
	}
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMarianMaxLength
	}
	target := normalizeLangCode(opts.TargetLang)
	if target == "" {
		target = "en"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &MarianProvider{
		modelURL:   marianModelURL(opts.Endpoint, model),
		model:      model,
		maxLength:  maxLength,
		apiToken:   strings.TrimSpace(opts.APIToken),
		targetLang: target,
		client:     &http.Client{Timeout: timeout},
		breaker:    opts.Breaker,
	}
}

func (p *MarianProvider) Name() string {
	return "marian"
}

// ModelName returns the configured model identifier.
func (p *MarianProvider) ModelName() string {
	if p == nil {
		return ""
	}
	return p.model
}

func (p *MarianProvider) BreakerState() string {
	return p.breaker.State()
}

func (p *MarianProvider) SupportedLanguages() []string {
	return []string{p.targetLang}
}

type marianRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters marianParameters `json:"parameters"`
}

type marianParameters struct {
	MaxLength         int    `json:"max_length"`
	Truncation        bool   `json:"truncation"`
	Padding           string `json:"padding"`
	DoSample          bool   `json:"do_sample"`
	SkipSpecialTokens bool   `json:"skip_special_tokens"`
}

type marianResult struct {
	TranslationText string `json:"translation_text"`
	GeneratedText   string `json:"generated_text"`
}

type marianError struct {
	Error string `json:"error"`
}

func (p *MarianProvider) Translate(ctx context.Context, req TranslateRequest) (*TranslateResponse, error) {
	if p == nil {
		return nil, fmt.Errorf("marian provider is nil")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	if target := normalizeLangCode(req.TargetLang); target != "" && target != p.targetLang {
		return nil, fmt.Errorf("model %s translates into %q, not %q", p.model, p.targetLang, target)
	}

	body, err := json.Marshal(marianRequest{
		Inputs: text,
		Parameters: marianParameters{
			MaxLength:         p.maxLength,
			Truncation:        true,
			Padding:           "longest",
			DoSample:          false,
			SkipSpecialTokens: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal translation request: %w", err)
	}

	started := globaltime.Now()
	var results []marianResult
	err = p.breaker.Do(func() error {
		var callErr error
		results, callErr = p.post(ctx, body)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("translation response was empty")
	}

	raw := results[0].TranslationText
	if raw == "" {
		raw = results[0].GeneratedText
	}
	translated := SanitizeOutput(raw)
	if translated == "" {
		return nil, fmt.Errorf("translation response was empty")
	}

	return &TranslateResponse{
		Text:         translated,
		SourceLang:   normalizeLangCode(req.SourceLang),
		TargetLang:   p.targetLang,
		ProviderName: p.Name(),
		LatencyMs:    globaltime.Since(started).Milliseconds(),
	}, nil
}

func (p *MarianProvider) post(ctx context.Context, body []byte) ([]marianResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.modelURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build translation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiToken)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send translation request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read translation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errPayload marianError
		if unmarshalErr := json.Unmarshal(respBody, &errPayload); unmarshalErr == nil {
			if msg := strings.TrimSpace(errPayload.Error); msg != "" {
				return nil, fmt.Errorf("translation endpoint status %d: %s", resp.StatusCode, msg)
			}
		}
		return nil, fmt.Errorf("translation endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var results []marianResult
	if err := json.Unmarshal(respBody, &results); err != nil {
		return nil, fmt.Errorf("decode translation response: %w", err)
	}
	return results, nil
}

func marianModelURL(endpoint, model string) string {
	raw := strings.TrimSpace(endpoint)
	if raw == "" {
		raw = DefaultMarianEndpoint
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		parsed, _ = url.Parse(DefaultMarianEndpoint)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/models/" + model
	return parsed.String()
}
