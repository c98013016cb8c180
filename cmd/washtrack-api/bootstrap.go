package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/WashTrack/config"
	"github.com/BearBump/WashTrack/internal/broker/kafka"
	"github.com/BearBump/WashTrack/internal/cache/rediscache"
	"github.com/BearBump/WashTrack/internal/services/orders"
	"github.com/BearBump/WashTrack/internal/storage/pgorders"
	"github.com/redis/go-redis/v9"
)

type apiApp struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   apiOpts
	svc    *orders.Service
	deps   []pinger

	closers []func()
}

func mustBootstrapAPI() *apiApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		swaggerPath = "api/swagger.json"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.WashTrack.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.OrderChangesTopicName
	if topic == "" {
		topic = "order.changes"
	}
	orderTTL := time.Duration(cfg.WashTrack.OrderCacheTTLSeconds) * time.Second
	if orderTTL <= 0 {
		orderTTL = 10 * time.Minute
	}
	locationTTL := time.Duration(cfg.WashTrack.LastLocationTTLSeconds) * time.Second
	if locationTTL <= 0 {
		locationTTL = 30 * time.Minute
	}
	locationPerMin := int64(cfg.WashTrack.LocationRateLimitPerMinute)
	if locationPerMin <= 0 {
		locationPerMin = 120
	}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)

	// один клиент на кэш и лимитер
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	rc := rediscache.NewWithClient(rdb)
	rl := rediscache.NewLocationLimiter(rdb, time.Minute)

	producer := kafka.NewProducer(cfg.Kafka.Brokers())

	svc := orders.New(st, rc, orderTTL).
		WithProducer(producer, topic).
		WithLocationLimits(rl, locationPerMin, locationTTL)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &apiApp{
		ctx:    ctx,
		cancel: cancel,
		opts: apiOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
			apiKey:      cfg.WashTrack.APIKey,
		},
		svc:  svc,
		deps: []pinger{st, rc},
		closers: []func(){
			func() { _ = producer.Close() },
			func() { _ = rc.Close() },
			st.Close,
		},
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgorders.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgorders.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *apiApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *apiApp) Run() error {
	return runWashtrackAPI(a.ctx, a.opts, a.svc, a.deps...)
}
