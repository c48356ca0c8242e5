package translation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/breaker"
	"horse.fit/lingo/internal/config"
)

// DefaultProviderName is used when TRANSLATION_PROVIDER is blank.
const DefaultProviderName = "marian"

// Registry stores translation providers and resolves a default provider.
type Registry struct {
	providers       map[string]Provider
	defaultProvider string
}

func NewRegistry(defaultProvider string) *Registry {
	normalizedDefault := normalizeProviderName(defaultProvider)
	if normalizedDefault == "" {
		normalizedDefault = DefaultProviderName
	}

	return &Registry{
		providers:       make(map[string]Provider),
		defaultProvider: normalizedDefault,
	}
}

// NewRegistryFromConfig registers every built-in provider, each behind its
// own circuit breaker, and selects TRANSLATION_PROVIDER as the default.
func NewRegistryFromConfig(cfg *config.Config, logger zerolog.Logger) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	settings := breaker.Settings{
		MaxFailures: cfg.BreakerMaxFailures,
		Cooldown:    cfg.BreakerCooldown,
	}

	registry := NewRegistry(cfg.TranslationProvider)
	providers := []Provider{
		NewMarianProvider(MarianOptions{
			Endpoint:   cfg.MarianEndpoint,
			Model:      cfg.MarianModel,
			MaxLength:  cfg.MarianMaxLength,
			APIToken:   cfg.MarianAPIToken,
			TargetLang: cfg.TranslationTargetLang,
			Timeout:    cfg.InferenceTimeout,
			Breaker:    breaker.New("marian", settings, logger),
		}),
		NewOpenAIProvider(OpenAIOptions{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.InferenceTimeout,
			Breaker: breaker.New("openai", settings, logger),
		}),
		NewGoogleProvider(cfg.GoogleTranslateAPIKey, breaker.New("google", settings, logger)),
	}
	for _, provider := range providers {
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}

	if _, err := registry.Provider(""); err != nil {
		return nil, err
	}
	return registry, nil
}

// Register adds one provider.
func (r *Registry) Register(provider Provider) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if provider == nil {
		return fmt.Errorf("provider is nil")
	}
	name := normalizeProviderName(provider.Name())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	r.providers[name] = provider
	return nil
}

// Provider resolves a provider by name. Empty names use the configured default provider.
func (r *Registry) Provider(name string) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if len(r.providers) == 0 {
		return nil, fmt.Errorf("no translation providers are registered")
	}

	resolvedName := normalizeProviderName(name)
	if resolvedName == "" {
		resolvedName = r.defaultProvider
	}
	provider, ok := r.providers[resolvedName]
	if ok {
		return provider, nil
	}

	return nil, fmt.Errorf("translation provider %q is not registered (available: %s)", resolvedName, strings.Join(r.ProviderNames(), ", "))
}

func (r *Registry) DefaultProvider() string {
	if r == nil {
		return ""
	}
	return r.defaultProvider
}

func (r *Registry) ProviderNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases provider resources that hold long-lived clients.
func (r *Registry) Close() error {
	if r == nil {
		return nil
	}
	var firstErr error
	for _, provider := range r.providers {
		closer, ok := provider.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type modelNameProvider interface {
	ModelName() string
}

// ModelName reports the model behind a provider, or "" when it does not expose one.
func ModelName(provider Provider) string {
	named, ok := provider.(modelNameProvider)
	if !ok {
		return ""
	}
	return strings.TrimSpace(named.ModelName())
}

func normalizeProviderName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
