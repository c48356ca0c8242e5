package translation

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"horse.fit/lingo/internal/breaker"
	"horse.fit/lingo/internal/globaltime"
)

const (
	// DefaultOpenAIBaseURL points to a local OpenAI-compatible translation endpoint.
	DefaultOpenAIBaseURL = "http://127.0.0.1:8845/v1"
	// DefaultOpenAIModel is the default HY-MT model name.
	DefaultOpenAIModel = "tencent/HY-MT1.5-7B"
)

type OpenAIOptions struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Breaker *breaker.Breaker
}

// OpenAIProvider translates text through an OpenAI-compatible chat
// completions API. Sampling is pinned to temperature 0.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	breaker *breaker.Breaker
}

func NewOpenAIProvider(opts OpenAIOptions) *OpenAIProvider {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	clientConfig := openai.DefaultConfig(strings.TrimSpace(opts.APIKey))
	clientConfig.BaseURL = normalizeBaseURL(opts.BaseURL)
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   model,
		breaker: opts.Breaker,
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// ModelName returns the configured model identifier.
func (p *OpenAIProvider) ModelName() string {
	if p == nil {
		return ""
	}
	return p.model
}

func (p *OpenAIProvider) BreakerState() string {
	return p.breaker.State()
}

func (p *OpenAIProvider) SupportedLanguages() []string {
	return SupportedTranslationLanguageCodes()
}

func (p *OpenAIProvider) Translate(ctx context.Context, req TranslateRequest) (*TranslateResponse, error) {
	if p == nil {
		return nil, fmt.Errorf("openai provider is nil")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}
	targetLang := normalizeLangCode(req.TargetLang)
	if targetLang == "" {
		targetLang = "en"
	}

	started := globaltime.Now()
	var resp openai.ChatCompletionResponse
	err := p.breaker.Do(func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: p.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: buildTranslationPrompt(text, targetLang),
				},
			},
			// A literal 0 is dropped by omitempty and the server default applies.
			Temperature: math.SmallestNonzeroFloat32,
		})
		if callErr != nil {
			return fmt.Errorf("chat completion: %w", callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("translation response missing choices")
	}

	translated := SanitizeOutput(resp.Choices[0].Message.Content)
	if translated == "" {
		return nil, fmt.Errorf("translation response was empty")
	}

	return &TranslateResponse{
		Text:         translated,
		SourceLang:   normalizeLangCode(req.SourceLang),
		TargetLang:   targetLang,
		ProviderName: p.Name(),
		LatencyMs:    globaltime.Since(started).Milliseconds(),
	}, nil
}

func buildTranslationPrompt(text, targetLang string) string {
	return fmt.Sprintf("Translate the following segment into %s, without additional explanation.\n\n%s", LanguageName(targetLang), text)
}

func normalizeBaseURL(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return DefaultOpenAIBaseURL
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultOpenAIBaseURL
	}
	path := strings.TrimRight(parsed.Path, "/")
	path = strings.TrimSuffix(path, "/chat/completions")
	if path == "" {
		path = "/v1"
	}
	parsed.Path = path
	return parsed.String()
}
