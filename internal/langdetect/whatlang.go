package langdetect

import (
	"context"
	"fmt"
	"sort"

	"github.com/abadojack/whatlanggo"

	"horse.fit/lingo/internal/language"
)

// WhatlangClassifier uses whatlanggo's trigram profiles.
type WhatlangClassifier struct {
	options whatlanggo.Options
	labels  []string
}

func NewWhatlang(codes []string) (*WhatlangClassifier, error) {
	byCode := make(map[string]whatlanggo.Lang, len(whatlanggo.Langs))
	for lang := range whatlanggo.Langs {
		if code := lang.Iso6391(); code != "" {
			byCode[code] = lang
		}
	}

	options := whatlanggo.Options{}
	if len(codes) > 0 {
		options.Whitelist = make(map[whatlanggo.Lang]bool, len(codes))
		for _, raw := range codes {
			code := language.NormalizeCode(raw)
			lang, ok := byCode[code]
			if !ok {
				return nil, fmt.Errorf("whatlang does not support language %q", raw)
			}
			options.Whitelist[lang] = true
		}
	}

	labels := make([]string, 0, len(byCode))
	for code, lang := range byCode {
		if options.Whitelist != nil && !options.Whitelist[lang] {
			continue
		}
		labels = append(labels, code)
	}
	sort.Strings(labels)

	return &WhatlangClassifier{options: options, labels: labels}, nil
}

func (c *WhatlangClassifier) Name() string {
	return BackendWhatlang
}

func (c *WhatlangClassifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

func (c *WhatlangClassifier) Predict(ctx context.Context, text string) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	info := whatlanggo.DetectWithOptions(text, c.options)
	code := info.Lang.Iso6391()
	if code == "" || info.Confidence <= 0 {
		return Prediction{}, ErrUndetermined
	}

	confidence := info.Confidence
	if confidence > 1 {
		confidence = 1
	}
	return Prediction{
		Label:       language.FormatLabel(code),
		Probability: confidence,
	}, nil
}
