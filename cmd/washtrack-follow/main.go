package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/WashTrack/config"
	"github.com/BearBump/WashTrack/internal/integrations/backend/fake"
	"github.com/pkg/errors"
)

// washtrack-follow следит за одним заказом: статус, чат и позиция мойщика.
// Без backend.base_url работает в демо-режиме с локальным backend'ом.
func main() {
	cfg := &config.Config{}
	if p := os.Getenv("configPath"); p != "" {
		var err error
		cfg, err = config.LoadConfig(p)
		if err != nil {
			panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var deps followDeps
	if cfg.Backend.BaseURL != "" {
		deps = remoteDeps(cfg)
	} else {
		if cfg.Backend.OrderID == "" {
			cfg.Backend.OrderID = "order-demo"
		}
		if destination(cfg.Backend) == nil {
			cfg.Backend.DestinationLat, cfg.Backend.DestinationLng = 55.7558, 37.6173
		}
		var fb *fake.Backend
		deps, fb = demoDeps(cfg)
		go simulateWasher(ctx, fb, demoRoute{
			orderID:  cfg.Backend.OrderID,
			washerID: cfg.Backend.WasherID,
			from:     demoStart,
			to:       *destination(cfg.Backend),
			steps:    20,
			every:    time.Second,
		})
		slog.Info("demo mode", "order_id", cfg.Backend.OrderID)
	}
	defer deps.close()

	if err := runFollow(ctx, cfg, deps, time.Second); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("washtrack-follow stopped", "error", err.Error())
		deps.close()
		cancel()
		os.Exit(1)
	}
}
