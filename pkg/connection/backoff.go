package connection

import (
	"math/rand"
	"sync"
	"time"
)

// Default backoff schedule.
const (
	// InitialDelay is the first rejoin delay.
	InitialDelay = 1 * time.Second

	// MaxDelay caps the rejoin delay.
	MaxDelay = 60 * time.Second

	// DelayMultiplier is the factor by which the delay grows.
	DelayMultiplier = 2.0

	// JitterFactor is the maximum jitter as a fraction of the base
	// delay.
	JitterFactor = 0.25
)

// BackoffConfig customizes the backoff schedule. Zero values select
// the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (cfg *BackoffConfig) applyDefaults() {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialDelay
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DelayMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
}

// Backoff produces an exponentially growing, jittered delay sequence.
type Backoff struct {
	mu       sync.Mutex
	cfg      BackoffConfig
	current  time.Duration
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a backoff with the given schedule.
func NewBackoff(cfg BackoffConfig) *Backoff {
	cfg.applyDefaults()
	return &Backoff{
		cfg:     cfg,
		current: cfg.Initial,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay before the next attempt and advances the
// schedule.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.jittered(b.current)
	b.attempts++

	next := time.Duration(float64(b.current) * b.cfg.Multiplier)
	if next > b.cfg.Max {
		next = b.cfg.Max
	}
	b.current = next

	return delay
}

// Peek returns the upcoming delay without advancing the schedule.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jittered(b.current)
}

// Reset restarts the schedule. Called after a successful join.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.cfg.Initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last
// reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.cfg.Jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.cfg.Jitter*b.rng.Float64())
}
