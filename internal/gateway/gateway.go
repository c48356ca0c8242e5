package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/breaker"
	"horse.fit/lingo/internal/globaltime"
	"horse.fit/lingo/internal/langdetect"
	"horse.fit/lingo/internal/language"
	"horse.fit/lingo/internal/translation"
)

var (
	ErrModelUnavailable = errors.New("model is not loaded")
	ErrFormat           = errors.New("unexpected classifier output")
	ErrTranslation      = errors.New("translation failed")
	ErrEmptyInput       = errors.New("text is required")
	ErrUndetermined     = errors.New("language could not be determined")
)

// DefaultTargetLang is used when Handles.TargetLang is blank.
const DefaultTargetLang = "en"

// Handles are the loaded models. A published Handles value is never mutated.
type Handles struct {
	Classifier langdetect.Classifier
	Translator translation.Provider
	TargetLang string
}

type DetectionResult struct {
	Language    string
	Confidence  string
	Probability float64
	ElapsedMS   float64
}

type TranslationResult struct {
	Text      string
	ElapsedMS float64
}

type Status struct {
	Ready             bool   `json:"ready"`
	Classifier        string `json:"classifier"`
	ClassifierBreaker string `json:"classifier_breaker,omitempty"`
	Provider          string `json:"provider"`
	ProviderBreaker   string `json:"provider_breaker,omitempty"`
	Model             string `json:"model,omitempty"`
	TargetLang        string `json:"target_lang"`
}

// breakerReporter is implemented by remote backends guarded by a breaker.
type breakerReporter interface {
	BreakerState() string
}

func breakerState(backend any) string {
	if reporter, ok := backend.(breakerReporter); ok {
		return reporter.BreakerState()
	}
	return ""
}

// Gateway serves detection and translation calls against the current handles.
type Gateway struct {
	handles atomic.Pointer[Handles]
	logger  zerolog.Logger
}

func New(handles *Handles, logger zerolog.Logger) *Gateway {
	g := &Gateway{logger: logger}
	g.Swap(handles)
	return g
}

// Swap publishes new handles and returns the previous ones.
func (g *Gateway) Swap(handles *Handles) *Handles {
	if handles != nil {
		copied := *handles
		copied.TargetLang = strings.ToLower(strings.TrimSpace(copied.TargetLang))
		if copied.TargetLang == "" {
			copied.TargetLang = DefaultTargetLang
		}
		handles = &copied
	}
	previous := g.handles.Swap(handles)

	status := g.Status()
	g.logger.Info().
		Bool("ready", status.Ready).
		Str("classifier", status.Classifier).
		Str("provider", status.Provider).
		Str("model", status.Model).
		Msg("model handles published")
	return previous
}

func (g *Gateway) Status() Status {
	handles := g.handles.Load()
	if handles == nil {
		return Status{}
	}

	status := Status{TargetLang: handles.TargetLang}
	if handles.Classifier != nil {
		status.Classifier = handles.Classifier.Name()
		status.ClassifierBreaker = breakerState(handles.Classifier)
	}
	if handles.Translator != nil {
		status.Provider = handles.Translator.Name()
		status.Model = translation.ModelName(handles.Translator)
		status.ProviderBreaker = breakerState(handles.Translator)
	}
	status.Ready = handles.Classifier != nil && handles.Translator != nil
	return status
}

// Labels returns the language codes the classifier can emit, nil when unknown.
func (g *Gateway) Labels() []string {
	handles := g.handles.Load()
	if handles == nil || handles.Classifier == nil {
		return nil
	}
	return handles.Classifier.Labels()
}

func (g *Gateway) ready() (*Handles, error) {
	handles := g.handles.Load()
	if handles == nil || handles.Classifier == nil || handles.Translator == nil {
		return nil, ErrModelUnavailable
	}
	return handles, nil
}

// Detect identifies the language of text with the loaded classifier.
func (g *Gateway) Detect(ctx context.Context, text string) (DetectionResult, error) {
	handles, err := g.ready()
	if err != nil {
		return DetectionResult{}, err
	}
	input := strings.TrimSpace(text)
	if input == "" {
		return DetectionResult{}, ErrEmptyInput
	}

	started := globaltime.Now()
	prediction, err := handles.Classifier.Predict(ctx, input)
	if err != nil {
		switch {
		case errors.Is(err, langdetect.ErrUndetermined):
			return DetectionResult{}, fmt.Errorf("%w: %v", ErrUndetermined, err)
		case errors.Is(err, breaker.ErrOpen):
			return DetectionResult{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		default:
			return DetectionResult{}, fmt.Errorf("detect language: %w", err)
		}
	}

	code, err := language.ParseLabel(prediction.Label)
	if err != nil {
		return DetectionResult{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	probability := ClampProbability(prediction.Probability)
	return DetectionResult{
		Language:    code,
		Confidence:  FormatConfidence(probability),
		Probability: probability,
		ElapsedMS:   globaltime.Milliseconds(globaltime.Since(started)),
	}, nil
}

// Translate renders text in the configured target language.
func (g *Gateway) Translate(ctx context.Context, text string) (TranslationResult, error) {
	handles, err := g.ready()
	if err != nil {
		return TranslationResult{}, err
	}
	input := strings.TrimSpace(text)
	if input == "" {
		return TranslationResult{}, ErrEmptyInput
	}

	started := globaltime.Now()
	resp, err := handles.Translator.Translate(ctx, translation.TranslateRequest{
		Text:       input,
		TargetLang: handles.TargetLang,
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			return TranslationResult{}, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
		}
		return TranslationResult{}, fmt.Errorf("%w: %w", ErrTranslation, err)
	}
	if resp == nil {
		return TranslationResult{}, fmt.Errorf("%w: provider %s returned no response", ErrTranslation, handles.Translator.Name())
	}

	translated := translation.SanitizeOutput(resp.Text)
	if translated == "" {
		return TranslationResult{}, fmt.Errorf("%w: empty output", ErrTranslation)
	}

	return TranslationResult{
		Text:      translated,
		ElapsedMS: globaltime.Milliseconds(globaltime.Since(started)),
	}, nil
}
