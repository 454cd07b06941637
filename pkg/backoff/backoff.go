// Package backoff computes retry delays for bounded polling and reconnect loops.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config defines exponential backoff behavior.
type Config struct {
	// InitialDelay is the delay returned for the first attempt
	InitialDelay time.Duration

	// Multiplier grows the delay between attempts (values below 1 are treated as 1)
	Multiplier float64

	// MaxDelay caps the delay (0 means uncapped)
	MaxDelay time.Duration

	// Jitter scales each delay by a random factor in [0.5, 1.5)
	Jitter bool
}

// DefaultConfig returns the delays used by port reclamation.
func DefaultConfig() Config {
	return Config{
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   1.5,
		MaxDelay:     2 * time.Second,
	}
}

// NextDelay returns the retry delay for attempt N (1-based).
func NextDelay(cfg Config, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
