package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/WashTrack/config"
	"github.com/pkg/errors"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := RunRelay(ctx, cfg, defaultRelayFactories()); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("washtrack-relay stopped", "error", err.Error())
		cancel()
		os.Exit(1)
	}
}
