package langdetect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/breaker"
)

const (
	BackendLingua   = "lingua"
	BackendWhatlang = "whatlang"
	BackendFastText = "fasttext"
)

// ErrUndetermined means the backend produced no usable prediction for the text.
var ErrUndetermined = errors.New("language could not be determined")

// Prediction is the top-ranked classifier output. Label uses the fastText
// convention ("__label__fr"); Probability is in [0,1].
type Prediction struct {
	Label       string
	Probability float64
}

// Classifier identifies the language of a text.
type Classifier interface {
	Predict(ctx context.Context, text string) (Prediction, error)
	Name() string
	// Labels returns the language codes the backend can emit, or nil when
	// the set is not known locally.
	Labels() []string
}

// Options configures classifier construction.
type Options struct {
	// Languages restricts lingua and whatlang to these ISO 639-1 codes.
	Languages []string
	// Preload loads lingua models eagerly instead of on first use.
	Preload bool

	Endpoint string
	Timeout  time.Duration
	Breaker  breaker.Settings
	Logger   zerolog.Logger
}

// New resolves a classifier backend by name.
func New(name string, opts Options) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case BackendLingua, "":
		return NewLingua(opts.Languages, opts.Preload)
	case BackendWhatlang:
		return NewWhatlang(opts.Languages)
	case BackendFastText:
		return NewFastText(opts.Endpoint, opts.Timeout, breaker.New("fasttext", opts.Breaker, opts.Logger))
	default:
		return nil, fmt.Errorf("unsupported detector %q (available: %s, %s, %s)", name, BackendLingua, BackendWhatlang, BackendFastText)
	}
}
