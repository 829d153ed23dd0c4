package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || cfg.InitialDelay <= 0 {
		return jitter(cfg, float64(cfg.InitialDelay), rng)
	}
	mult := math.Max(cfg.Multiplier, 1.0)
	delay := float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return jitter(cfg, delay, rng)
}

func jitter(cfg BackoffConfig, delay float64, rng *rand.Rand) time.Duration {
	if !cfg.Jitter || delay <= 0 {
		return time.Duration(delay)
	}
	f := 0.5
	if rng != nil {
		f = 0.5 + rng.Float64()
	}
	return time.Duration(delay * f)
}

// Backoff tracks consecutive reopen attempts for a supervisor loop.
type Backoff struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	attempt int
}

func NewBackoff(cfg BackoffConfig, rng *rand.Rand) *Backoff {
	return &Backoff{cfg: cfg, rng: rng}
}

// Next advances the attempt counter. ok is false once MaxAttempts is spent.
func (b *Backoff) Next() (delay time.Duration, ok bool) {
	if b.cfg.MaxAttempts > 0 && b.attempt >= b.cfg.MaxAttempts {
		return 0, false
	}
	b.attempt++
	return NextBackoffDelay(b.cfg, b.attempt, b.rng), true
}

func (b *Backoff) Attempt() int { return b.attempt }

func (b *Backoff) Reset() { b.attempt = 0 }
