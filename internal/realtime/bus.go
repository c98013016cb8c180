package realtime

import (
	"context"
	"sync"
)

const defaultQueueSize = 256

// Bus is an in-process Transport and Publisher.
type Bus struct {
	mu     sync.Mutex
	topics map[string]map[*busSub]struct{}

	queueSize int
}

func NewBus() *Bus {
	return &Bus{
		topics:    make(map[string]map[*busSub]struct{}),
		queueSize: defaultQueueSize,
	}
}

type busSub struct {
	bus    *Bus
	topic  string
	filter Filter
	h      Handler

	queue chan Event
	done  chan struct{}
	once  sync.Once
}

func (b *Bus) Subscribe(ctx context.Context, topic string, filter Filter, h Handler, onStatus StatusFunc) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &busSub{
		bus:    b,
		topic:  topic,
		filter: filter,
		h:      h,
		queue:  make(chan Event, b.queueSize),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*busSub]struct{})
		b.topics[topic] = subs
	}
	subs[s] = struct{}{}
	b.mu.Unlock()

	go s.run(onStatus)
	return s, nil
}

func (s *busSub) run(onStatus StatusFunc) {
	if onStatus != nil {
		onStatus(StatusSubscribed, nil)
	}
	for {
		select {
		case <-s.done:
			return
		case e := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			s.h(e)
		}
	}
}

func (s *busSub) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if subs, ok := s.bus.topics[s.topic]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.bus.topics, s.topic)
			}
		}
		s.bus.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Publish enqueues e for every matching subscriber of topic. It blocks while a
// subscriber queue is full.
func (b *Bus) Publish(ctx context.Context, topic string, e Event) error {
	b.mu.Lock()
	targets := make([]*busSub, 0, len(b.topics[topic]))
	for s := range b.topics[topic] {
		if s.filter.Match(e) {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.queue <- e:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}
