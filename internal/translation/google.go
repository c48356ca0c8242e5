package translation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"horse.fit/lingo/internal/breaker"
	"horse.fit/lingo/internal/globaltime"
)

// GoogleProvider uses the Google Cloud Translation API. Without an API key
// the client falls back to application default credentials.
type GoogleProvider struct {
	apiKey  string
	breaker *breaker.Breaker

	mu     sync.Mutex
	client *translate.Client
}

func NewGoogleProvider(apiKey string, b *breaker.Breaker) *GoogleProvider {
	return &GoogleProvider{
		apiKey:  strings.TrimSpace(apiKey),
		breaker: b,
	}
}

func (p *GoogleProvider) Name() string {
	return "google"
}

func (p *GoogleProvider) BreakerState() string {
	return p.breaker.State()
}

func (p *GoogleProvider) SupportedLanguages() []string {
	return SupportedTranslationLanguageCodes()
}

func (p *GoogleProvider) Translate(ctx context.Context, req TranslateRequest) (*TranslateResponse, error) {
	if p == nil {
		return nil, fmt.Errorf("google provider is nil")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("text is required")
	}

	targetCode := normalizeLangCode(req.TargetLang)
	if targetCode == "" {
		targetCode = "en"
	}
	target, err := language.Parse(targetCode)
	if err != nil {
		return nil, fmt.Errorf("parse target language %q: %w", targetCode, err)
	}

	opts := &translate.Options{Format: translate.Text}
	if sourceCode := normalizeLangCode(req.SourceLang); sourceCode != "" && sourceCode != "und" {
		if source, parseErr := language.Parse(sourceCode); parseErr == nil {
			opts.Source = source
		}
	}

	client, err := p.getClient()
	if err != nil {
		return nil, err
	}

	started := globaltime.Now()
	var results []translate.Translation
	err = p.breaker.Do(func() error {
		var callErr error
		results, callErr = client.Translate(ctx, []string{text}, target, opts)
		if callErr != nil {
			return fmt.Errorf("google translate: %w", callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("translation response was empty")
	}

	translated := SanitizeOutput(results[0].Text)
	if translated == "" {
		return nil, fmt.Errorf("translation response was empty")
	}

	sourceLang := normalizeLangCode(req.SourceLang)
	if base, confidence := results[0].Source.Base(); confidence != language.No {
		sourceLang = base.String()
	}

	return &TranslateResponse{
		Text:         translated,
		SourceLang:   sourceLang,
		TargetLang:   targetCode,
		ProviderName: p.Name(),
		LatencyMs:    globaltime.Since(started).Milliseconds(),
	}, nil
}

// Close releases the underlying API client, if one was created.
func (p *GoogleProvider) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *GoogleProvider) getClient() (*translate.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}

	var clientOpts []option.ClientOption
	if p.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(p.apiKey))
	}
	// The client outlives any single request.
	client, err := translate.NewClient(context.Background(), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create google translate client: %w", err)
	}
	p.client = client
	return client, nil
}
