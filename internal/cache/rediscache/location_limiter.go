package rediscache

import (
	"context"
	"time"

	"github.com/BearBump/WashTrack/internal/cache"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultLocationWindow = time.Minute

// LocationLimiter считает точки каждого мойщика в окнах, выровненных по
// времени. У каждого окна свой ключ, поэтому мойщик, который шлёт точки
// без перерыва, не продлевает окно и раз в окно снова получает лимит.
type LocationLimiter struct {
	c      *redis.Client
	window time.Duration
	now    func() time.Time
}

func NewLocationLimiter(c *redis.Client, window time.Duration) *LocationLimiter {
	if window <= 0 {
		window = defaultLocationWindow
	}
	return &LocationLimiter{c: c, window: window, now: time.Now}
}

func (l *LocationLimiter) WithClock(now func() time.Time) *LocationLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

func (l *LocationLimiter) Allow(ctx context.Context, washerID string, limit int64) (cache.Decision, error) {
	now := l.now()
	slot := now.UnixNano() / int64(l.window)
	key := cache.LocationRateKey(washerID, slot)

	pipe := l.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	// ключ окна живёт не дольше самого окна
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return cache.Decision{}, errors.Wrap(err, "redis location limit")
	}

	d := cache.Decision{Count: incr.Val()}
	d.Allowed = d.Count <= limit
	if !d.Allowed {
		windowEnd := time.Unix(0, (slot+1)*int64(l.window))
		d.RetryAfter = windowEnd.Sub(now)
	}
	return d, nil
}
