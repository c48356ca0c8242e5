package breaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrOpen is returned while the breaker rejects calls after repeated failures.
var ErrOpen = errors.New("circuit breaker is open")

type Settings struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration
}

// Breaker guards calls to one remote inference backend.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func New(name string, settings Settings, logger zerolog.Logger) *Breaker {
	maxFailures := settings.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	cooldown := settings.Cooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return &Breaker{cb: cb}
}

// Do runs fn through the breaker. Failures of fn count towards opening it.
func (b *Breaker) Do(fn func() error) error {
	if b == nil || b.cb == nil {
		return fn()
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrOpen, b.cb.Name())
	}
	return err
}

// State returns the current breaker state name ("closed", "open", "half-open").
func (b *Breaker) State() string {
	if b == nil || b.cb == nil {
		return gobreaker.StateClosed.String()
	}
	return b.cb.State().String()
}
