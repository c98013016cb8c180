package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/WashTrack/internal/broker/kafka"
	"github.com/BearBump/WashTrack/internal/broker/messages"
	"github.com/BearBump/WashTrack/internal/realtime"
	"github.com/pkg/errors"
)

type Consumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

// Relay переносит журнал изменений заказов из Kafka в realtime-шину:
// row-change в orders:{id}, broadcast в tracking:{id}.
type Relay struct {
	consumer Consumer
	pub      realtime.Publisher
	backoff  *Backoff

	startedAtUnixNano  int64
	lastEventUnixNano  atomic.Int64
	totalRelayed       atomic.Int64
	totalSkipped       atomic.Int64
	totalErrors        atomic.Int64
	consecutiveFailure atomic.Int64
	lastErrorMu        sync.Mutex
	lastError          string
}

func New(consumer Consumer, pub realtime.Publisher) *Relay {
	return &Relay{
		consumer:          consumer,
		pub:               pub,
		backoff:           NewBackoff(DefaultBackoffConfig(), nil),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Relay) WithBackoff(cfg BackoffConfig) *Relay {
	r.backoff = NewBackoff(cfg, nil)
	return r
}

type Stats struct {
	StartedAt    time.Time  `json:"startedAt"`
	LastEventAt  *time.Time `json:"lastEventAt,omitempty"`
	TotalRelayed int64      `json:"totalRelayed"`
	TotalSkipped int64      `json:"totalSkipped"`
	TotalErrors  int64      `json:"totalErrors"`
	LastError    string     `json:"lastError,omitempty"`
}

func (r *Relay) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalRelayed: r.totalRelayed.Load(),
		TotalSkipped: r.totalSkipped.Load(),
		TotalErrors:  r.totalErrors.Load(),
	}
	if n := r.lastEventUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastEventAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

// Run consumes until ctx is done. A failed Consume (publish error, broker
// error) is restarted after a backoff; the failed record is not committed and
// will be redelivered.
func (r *Relay) Run(ctx context.Context) error {
	for {
		err := r.consumer.Consume(ctx, func(key, value []byte) error {
			return r.Handle(ctx, key, value)
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// consumer вернулся без ошибки только при отмене, но не крутимся вхолостую
			err = errors.New("consumer stopped")
		}
		r.recordError(err)
		failures := r.consecutiveFailure.Add(1)
		d := r.backoff.Delay(int(failures))
		slog.Error("relay consumer failed, restarting", "error", err.Error(), "failures", failures, "backoff", d.String())

		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Handle forwards one change-log record. Malformed records are skipped so
// they do not block the partition.
func (r *Relay) Handle(ctx context.Context, key, value []byte) error {
	var c messages.OrderChange
	if err := json.Unmarshal(value, &c); err != nil {
		r.totalSkipped.Add(1)
		slog.Warn("skip malformed order change", "key", string(key), "error", err.Error())
		return nil
	}
	if c.OrderID == "" || (c.Kind != realtime.KindRowChange && c.Kind != realtime.KindBroadcast) || c.Event == "" {
		r.totalSkipped.Add(1)
		slog.Warn("skip incomplete order change", "key", string(key), "kind", string(c.Kind), "event", c.Event)
		return nil
	}

	if err := r.pub.Publish(ctx, c.Topic(), c.RealtimeEvent()); err != nil {
		r.totalErrors.Add(1)
		return errors.Wrapf(err, "relay %s to %s", c.Event, c.Topic())
	}
	r.totalRelayed.Add(1)
	r.consecutiveFailure.Store(0)
	r.lastEventUnixNano.Store(time.Now().UTC().UnixNano())
	return nil
}

func (r *Relay) recordError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}
