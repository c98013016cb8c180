package cache

import (
	"context"
	"strconv"
	"time"
)

// BytesCache хранит сериализованные значения (JSON) по ключу с TTL.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Decision is the outcome of one rate-limited call.
type Decision struct {
	Allowed bool
	// Count is the number of calls in the current window, this one included.
	Count int64
	// RetryAfter is the time left until the window resets; zero when allowed.
	RetryAfter time.Duration
}

// LocationLimiter ограничивает, сколько точек мойщик может прислать за окно.
type LocationLimiter interface {
	Allow(ctx context.Context, washerID string, limit int64) (Decision, error)
}

func OrderKey(orderID string) string {
	return "order:" + orderID
}

func LastLocationKey(orderID string) string {
	return "location:last:" + orderID
}

// LocationRateKey is the counter of one washer in one window; slot is the
// window number since the Unix epoch.
func LocationRateKey(washerID string, slot int64) string {
	return "rl:location:" + washerID + ":" + strconv.FormatInt(slot, 10)
}
