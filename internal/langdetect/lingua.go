package langdetect

import (
	"context"
	"fmt"
	"sort"
	"strings"

	lingua "github.com/pemistahl/lingua-go"

	"horse.fit/lingo/internal/language"
)

// LinguaClassifier runs the lingua-go n-gram models in-process.
type LinguaClassifier struct {
	detector lingua.LanguageDetector
	labels   []string
}

// NewLingua builds a detector over the given ISO 639-1 codes, or over every
// supported language when codes is empty.
func NewLingua(codes []string, preload bool) (*LinguaClassifier, error) {
	languages, err := linguaLanguages(codes)
	if err != nil {
		return nil, err
	}

	builder := lingua.NewLanguageDetectorBuilder().FromLanguages(languages...)
	if preload {
		builder = builder.WithPreloadedLanguageModels()
	}

	labels := make([]string, 0, len(languages))
	for _, lang := range languages {
		labels = append(labels, linguaCode(lang))
	}
	sort.Strings(labels)

	return &LinguaClassifier{
		detector: builder.Build(),
		labels:   labels,
	}, nil
}

func (c *LinguaClassifier) Name() string {
	return BackendLingua
}

func (c *LinguaClassifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

func (c *LinguaClassifier) Predict(ctx context.Context, text string) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	values := c.detector.ComputeLanguageConfidenceValues(text)
	if len(values) == 0 || values[0].Value() <= 0 {
		return Prediction{}, ErrUndetermined
	}

	top := values[0]
	return Prediction{
		Label:       language.FormatLabel(linguaCode(top.Language())),
		Probability: top.Value(),
	}, nil
}

func linguaLanguages(codes []string) ([]lingua.Language, error) {
	all := lingua.AllLanguages()
	if len(codes) == 0 {
		return all, nil
	}

	byCode := make(map[string]lingua.Language, len(all))
	for _, lang := range all {
		byCode[linguaCode(lang)] = lang
	}

	selected := make([]lingua.Language, 0, len(codes))
	for _, raw := range codes {
		code := language.NormalizeCode(raw)
		lang, ok := byCode[code]
		if !ok {
			return nil, fmt.Errorf("lingua does not support language %q", raw)
		}
		selected = append(selected, lang)
	}
	if len(selected) < 2 {
		return nil, fmt.Errorf("lingua needs at least 2 languages, got %d", len(selected))
	}
	return selected, nil
}

func linguaCode(lang lingua.Language) string {
	return strings.ToLower(lang.IsoCode639_1().String())
}
