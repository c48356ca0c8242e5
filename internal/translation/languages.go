package translation

import (
	"sort"
	"strings"
)

type LanguageOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

var translationLanguageLabels = map[string]string{
	"ar": "Arabic",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"hi": "Hindi",
	"id": "Indonesian",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"sv": "Swedish",
	"th": "Thai",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"vi": "Vietnamese",
	"zh": "Chinese",
}

func SupportedTranslationLanguageCodes() []string {
	codes := make([]string, 0, len(translationLanguageLabels))
	for code := range translationLanguageLabels {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// LanguageName returns the English name for a code, or the upper-cased code
// when no label is known.
func LanguageName(code string) string {
	normalized := normalizeLangCode(code)
	if label, ok := translationLanguageLabels[normalized]; ok {
		return label
	}
	if normalized == "" {
		return "English"
	}
	return strings.ToUpper(normalized)
}

// LanguageOptions labels a list of codes, sorted by code.
func LanguageOptions(codes []string) []LanguageOption {
	seen := make(map[string]struct{}, len(codes))
	options := make([]LanguageOption, 0, len(codes))
	for _, raw := range codes {
		code := normalizeLangCode(raw)
		if code == "" {
			continue
		}
		if _, exists := seen[code]; exists {
			continue
		}
		seen[code] = struct{}{}
		options = append(options, LanguageOption{Code: code, Label: LanguageName(code)})
	}
	sort.Slice(options, func(i, j int) bool { return options[i].Code < options[j].Code })
	return options
}
