package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "lingo"

// New builds the process logger. ENVIRONMENT=local switches to the
// human-readable console writer; every other environment logs JSON lines.
func New(environment, level string) (zerolog.Logger, error) {
	var writer io.Writer = os.Stdout
	if isLocal(environment) {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	return NewWithWriter(writer, level)
}

// NewWithWriter builds a logger that writes to w at the given level.
func NewWithWriter(w io.Writer, level string) (zerolog.Logger, error) {
	parsedLevel, err := ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	if w == nil {
		w = io.Discard
	}

	return zerolog.New(w).
		Level(parsedLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger(), nil
}

// ParseLevel accepts zerolog level names case-insensitively; blank means info.
func ParseLevel(level string) (zerolog.Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		return zerolog.InfoLevel, nil
	}
	parsed, err := zerolog.ParseLevel(normalized)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse LOG_LEVEL=%q: %w", level, err)
	}
	return parsed, nil
}

func isLocal(environment string) bool {
	return strings.EqualFold(strings.TrimSpace(environment), "local")
}
