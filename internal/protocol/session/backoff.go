package session

import (
	"math"
	"math/rand"
	"time"
)

// Delay returns the un-jittered wait before retry n (1-based):
// InitialDelay * Multiplier^(n-1), capped at MaxDelay.
func (c BackoffConfig) Delay(n int) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	if n < 1 {
		n = 1
	}
	mult := math.Max(c.Multiplier, 1)
	d := float64(c.InitialDelay) * math.Pow(mult, float64(n-1))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// backoff is the retry schedule of one Redialer. It restarts after every successful
// dial, so a link that flaps once does not inherit the delay of an earlier outage.
type backoff struct {
	cfg     BackoffConfig
	rng     *rand.Rand
	retries int
}

func newBackoff(cfg BackoffConfig, seed int64) *backoff {
	return &backoff{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Next advances the schedule and returns the wait before the next dial. With Jitter
// the delay is scaled by a factor in [0.5, 1.5), never past MaxDelay.
func (b *backoff) Next() time.Duration {
	b.retries++
	d := b.cfg.Delay(b.retries)
	if !b.cfg.Jitter || d <= 0 {
		return d
	}
	d = time.Duration(float64(d) * (0.5 + b.rng.Float64()))
	if b.cfg.MaxDelay > 0 && d > b.cfg.MaxDelay {
		d = b.cfg.MaxDelay
	}
	return d
}

func (b *backoff) Reset() {
	b.retries = 0
}

// Retries is the number of delays handed out since the last Reset.
func (b *backoff) Retries() int {
	return b.retries
}
