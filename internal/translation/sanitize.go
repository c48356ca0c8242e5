package translation

import (
	"regexp"
	"strings"
	"unicode"
)

// Marian/SentencePiece control tokens, including ">>fra<<" style target tags.
var specialTokenPattern = regexp.MustCompile(`</?s>|<pad>|<unk>|<mask>|▁|>>[A-Za-z]{2,3}(?:_[A-Za-z]+)?<<`)

// SanitizeOutput strips special tokens and control characters from decoded
// model output and collapses whitespace.
func SanitizeOutput(text string) string {
	cleaned := specialTokenPattern.ReplaceAllString(text, " ")
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}

func normalizeLangCode(raw string) string {
	code := strings.ToLower(strings.TrimSpace(raw))
	code = strings.ReplaceAll(code, "_", "-")
	if dash := strings.IndexByte(code, '-'); dash >= 0 {
		code = code[:dash]
	}
	return code
}
