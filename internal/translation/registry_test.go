package translation

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/config"
)

type stubProvider struct {
	name  string
	calls int
	resp  TranslateResponse
}

func (p *stubProvider) Translate(_ context.Context, _ TranslateRequest) (*TranslateResponse, error) {
	p.calls++
	resp := p.resp
	if resp.ProviderName == "" {
		resp.ProviderName = p.name
	}
	return &resp, nil
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) SupportedLanguages() []string {
	return []string{"en"}
}

func TestRegistryResolvesDefault(t *testing.T) {
	t.Parallel()

	registry := NewRegistry(" Stub ")
	if err := registry.Register(&stubProvider{name: "stub"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register(&stubProvider{name: "other"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if registry.DefaultProvider() != "stub" {
		t.Fatalf("expected normalized default provider, got %q", registry.DefaultProvider())
	}

	provider, err := registry.Provider("")
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if provider.Name() != "stub" {
		t.Fatalf("unexpected default provider: %q", provider.Name())
	}
	if _, err := registry.Provider("missing"); err == nil {
		t.Fatalf("expected unknown provider to fail")
	}
	if names := registry.ProviderNames(); len(names) != 2 || names[0] != "other" {
		t.Fatalf("unexpected provider names: %v", names)
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		TranslationProvider:   "openai",
		TranslationTargetLang: "en",
		MarianModel:           "Helsinki-NLP/opus-mt-mul-en",
		OpenAIModel:           "m",
		BreakerMaxFailures:    3,
	}
	registry, err := NewRegistryFromConfig(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("registry from config: %v", err)
	}
	defer registry.Close()

	provider, err := registry.Provider("")
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if provider.Name() != "openai" || ModelName(provider) != "m" {
		t.Fatalf("unexpected provider %q model %q", provider.Name(), ModelName(provider))
	}

	cfg.TranslationProvider = "deepl"
	if _, err := NewRegistryFromConfig(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected unknown default provider to fail")
	}
}
