package language

import (
	"errors"
	"fmt"
	"strings"
)

// LabelPrefix is the fastText label prefix used by every classifier backend.
const LabelPrefix = "__label__"

const labelSeparator = "__"

var ErrMalformedLabel = errors.New("malformed classifier label")

// FormatLabel renders a language code as a fastText label, e.g. "__label__fr".
func FormatLabel(code string) string {
	return LabelPrefix + strings.ToLower(strings.TrimSpace(code))
}

// ParseLabel extracts the language code from a "<prefix>__<prefix>__<code>"
// label. The label must split into exactly three segments on "__" and the
// third segment must be a non-empty code.
func ParseLabel(label string) (string, error) {
	parts := strings.Split(strings.TrimSpace(label), labelSeparator)
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: %q has %d segments", ErrMalformedLabel, label, len(parts))
	}

	code := strings.ToLower(strings.TrimSpace(parts[2]))
	if code == "" {
		return "", fmt.Errorf("%w: %q has no language code", ErrMalformedLabel, label)
	}
	if NormalizeTag(code) == "" {
		return "", fmt.Errorf("%w: %q has invalid language code", ErrMalformedLabel, label)
	}
	return code, nil
}
