package globaltime

import (
	"math"
	"sync"
	"time"
)

var (
	mu      sync.RWMutex
	nowFunc = time.Now
)

func Now() time.Time {
	mu.RLock()
	defer mu.RUnlock()
	return nowFunc()
}

func UTC() time.Time {
	return Now().UTC()
}

// Since reports the elapsed time from start using the mockable clock.
func Since(start time.Time) time.Duration {
	return Now().Sub(start)
}

// Milliseconds converts a duration into fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// ElapsedMS returns the milliseconds since start on the mockable clock,
// rounded to 2 decimals.
func ElapsedMS(start time.Time) float64 {
	return math.Round(Milliseconds(Since(start))*100) / 100
}

func SetMockTime(t time.Time) {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = func() time.Time { return t }
}

func ResetTime() {
	mu.Lock()
	defer mu.Unlock()
	nowFunc = time.Now
}
