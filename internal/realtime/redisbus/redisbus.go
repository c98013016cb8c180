package redisbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/WashTrack/internal/realtime"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultAckTimeout = 10 * time.Second
	defaultRetryDelay = time.Second
)

// Bus carries realtime events over Redis Pub/Sub, one Redis channel per topic.
// A lost connection is reported as CHANNEL_ERROR; the subscription keeps
// reconnecting and reports SUBSCRIBED once Redis acknowledges it again.
type Bus struct {
	c          *redis.Client
	ackTimeout time.Duration
	retryDelay time.Duration
}

func New(addr string) *Bus {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr}))
}

func NewWithClient(c *redis.Client) *Bus {
	return &Bus{c: c, ackTimeout: defaultAckTimeout, retryDelay: defaultRetryDelay}
}

// WithAckTimeout bounds how long a subscription may stay unacknowledged before
// it is reported as TIMED_OUT.
func (b *Bus) WithAckTimeout(d time.Duration) *Bus {
	if d > 0 {
		b.ackTimeout = d
	}
	return b
}

// WithRetryDelay sets the pause between reconnect attempts after a receive error.
func (b *Bus) WithRetryDelay(d time.Duration) *Bus {
	if d > 0 {
		b.retryDelay = d
	}
	return b
}

func (b *Bus) Ping(ctx context.Context) error {
	return errors.Wrap(b.c.Ping(ctx).Err(), "redis ping")
}

func (b *Bus) Close() error {
	return b.c.Close()
}

func (b *Bus) Publish(ctx context.Context, topic string, e realtime.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if err := b.c.Publish(ctx, topic, payload).Err(); err != nil {
		return errors.Wrap(err, "redis publish")
	}
	return nil
}

type subscription struct {
	ps     *redis.PubSub
	done   chan struct{}
	once   sync.Once
	psOnce sync.Once
	psErr  error
}

func (b *Bus) Subscribe(ctx context.Context, topic string, filter realtime.Filter, h realtime.Handler, onStatus realtime.StatusFunc) (realtime.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if onStatus == nil {
		onStatus = func(realtime.Status, error) {}
	}
	// Подписка живёт дольше запроса, который её открыл.
	subCtx := context.WithoutCancel(ctx)
	s := &subscription{
		ps:   b.c.Subscribe(subCtx, topic),
		done: make(chan struct{}),
	}
	go s.run(subCtx, topic, filter, h, onStatus, b.ackTimeout, b.retryDelay)
	return s, nil
}

func (s *subscription) run(ctx context.Context, topic string, filter realtime.Filter, h realtime.Handler, onStatus realtime.StatusFunc, ackTimeout, retryDelay time.Duration) {
	ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
	_, err := s.ps.Receive(ackCtx)
	cancel()
	if err != nil {
		if s.closed() {
			return
		}
		_ = s.closePubSub()
		if errors.Is(err, context.DeadlineExceeded) {
			onStatus(realtime.StatusTimedOut, errors.Wrap(err, "subscribe "+topic))
			return
		}
		onStatus(realtime.StatusChannelError, errors.Wrap(err, "subscribe "+topic))
		return
	}
	if s.closed() {
		return
	}
	onStatus(realtime.StatusSubscribed, nil)

	// Receive, а не Channel(): Channel() переподключается молча и потерю
	// соединения наружу не видно.
	healthy := true
	for {
		msg, err := s.ps.Receive(ctx)
		if s.closed() {
			return
		}
		if err != nil {
			if healthy {
				healthy = false
				slog.Warn("realtime channel lost", "topic", topic, "error", err.Error())
				onStatus(realtime.StatusChannelError, errors.Wrap(err, "receive "+topic))
			}
			// go-redis переподписывается при следующем Receive
			if !s.wait(retryDelay) {
				return
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" && !healthy {
				healthy = true
				slog.Info("realtime channel restored", "topic", topic)
				onStatus(realtime.StatusSubscribed, nil)
			}
		case *redis.Message:
			var e realtime.Event
			if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
				slog.Warn("skip malformed realtime event", "topic", topic, "error", err.Error())
				continue
			}
			if !filter.Match(e) || s.closed() {
				continue
			}
			h(e)
		}
	}
}

// wait sleeps for d unless the subscription is closed first.
func (s *subscription) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.done:
		return false
	case <-t.C:
		return true
	}
}

func (s *subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// closePubSub closes the Redis connection once; a failed subscribe closes it
// before the owner calls Unsubscribe.
func (s *subscription) closePubSub() error {
	s.psOnce.Do(func() { s.psErr = s.ps.Close() })
	return s.psErr
}

func (s *subscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		if cerr := s.closePubSub(); cerr != nil {
			err = errors.Wrap(cerr, "redis unsubscribe")
		}
	})
	return err
}
