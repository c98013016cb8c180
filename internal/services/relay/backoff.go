package relay

import (
	"math/rand"
	"time"
)

type Rand interface {
	Int63n(n int64) int64
}

type BackoffConfig struct {
	Initial time.Duration // default: 500ms
	Max     time.Duration // default: 30s
	// Jitter — доля задержки, которая случайно вычитается (0..1). default: 0.2
	Jitter float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial: 500 * time.Millisecond,
		Max:     30 * time.Second,
		Jitter:  0.2,
	}
}

// Backoff считает паузу перед перезапуском consumer'а после ошибки.
type Backoff struct {
	cfg BackoffConfig
	r   Rand
}

func NewBackoff(cfg BackoffConfig, r Rand) *Backoff {
	def := DefaultBackoffConfig()
	if cfg.Initial <= 0 {
		cfg.Initial = def.Initial
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	if cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		cfg.Jitter = def.Jitter
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Backoff{cfg: cfg, r: r}
}

// Delay returns the pause after the given number of consecutive failures
// (1-based): Initial doubled per failure, capped at Max.
func (b *Backoff) Delay(failures int) time.Duration {
	d := b.cfg.Initial
	for i := 1; i < failures && d < b.cfg.Max; i++ {
		d *= 2
	}
	if d > b.cfg.Max {
		d = b.cfg.Max
	}
	if j := int64(float64(d) * b.cfg.Jitter); j > 0 {
		d -= time.Duration(b.r.Int63n(j + 1))
	}
	return d
}
