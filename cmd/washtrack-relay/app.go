package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/WashTrack/config"
	"github.com/BearBump/WashTrack/internal/broker/kafka"
	"github.com/BearBump/WashTrack/internal/realtime"
	"github.com/BearBump/WashTrack/internal/realtime/redisbus"
	"github.com/BearBump/WashTrack/internal/services/relay"
)

type readyPublisher interface {
	realtime.Publisher
	Ping(ctx context.Context) error
}

type relayFactories struct {
	newConsumer  func(cfg *config.Config, topic, group string) (relay.Consumer, func())
	newPublisher func(cfg *config.Config) (readyPublisher, func())
}

func defaultRelayFactories() relayFactories {
	return relayFactories{
		newConsumer: func(cfg *config.Config, topic, group string) (relay.Consumer, func()) {
			c := kafka.NewConsumer(cfg.Kafka.Brokers(), topic, group)
			return c, func() { _ = c.Close() }
		},
		newPublisher: func(cfg *config.Config) (readyPublisher, func()) {
			b := redisbus.New(cfg.Redis.Addr())
			return b, func() { _ = b.Close() }
		},
	}
}

// RunRelay wires the Kafka consumer to the realtime bus and serves the
// operational HTTP endpoints until ctx is done.
func RunRelay(ctx context.Context, cfg *config.Config, f relayFactories) error {
	topic := cfg.Kafka.OrderChangesTopicName
	if topic == "" {
		topic = "order.changes"
	}
	group := cfg.WashTrack.KafkaConsumerGroup
	if group == "" {
		group = "washtrack-relay"
	}
	httpAddr := cfg.WashTrack.RelayHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}
	backoff := relay.DefaultBackoffConfig()
	if ms := cfg.WashTrack.RelayBackoffInitialMillis; ms > 0 {
		backoff.Initial = time.Duration(ms) * time.Millisecond
	}
	if s := cfg.WashTrack.RelayBackoffMaxSeconds; s > 0 {
		backoff.Max = time.Duration(s) * time.Second
	}

	consumer, closeConsumer := f.newConsumer(cfg, topic, group)
	defer closeConsumer()
	pub, closePub := f.newPublisher(cfg)
	defer closePub()

	r := relay.New(consumer, pub).WithBackoff(backoff)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runRelayHTTPServer(ctx, relayHTTPOpts{
			httpAddr: httpAddr,
			relay:    r,
			ready:    pub,
			cfg:      cfg,
		})
	}()

	slog.Info("relay started", "topic", topic, "group", group)
	err := r.Run(ctx)
	cancel()
	<-httpErr
	return err
}
