package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/WashTrack/config"
	"github.com/BearBump/WashTrack/internal/geo"
	"github.com/BearBump/WashTrack/internal/integrations/backend"
	"github.com/BearBump/WashTrack/internal/integrations/backend/fake"
	"github.com/BearBump/WashTrack/internal/models"
	"github.com/BearBump/WashTrack/internal/realtime"
)

// Стартовая точка мойщика в демо-режиме, если не задано иное.
var demoStart = geo.Point{Lat: 55.7512, Lng: 37.6184}

type demoRoute struct {
	orderID  string
	washerID string
	from, to geo.Point
	steps    int
	every    time.Duration
}

// demoDeps builds an in-process backend and bus with one order on the way.
func demoDeps(cfg *config.Config) (followDeps, *fake.Backend) {
	bus := realtime.NewBus()
	fb := fake.New(bus)

	washerID := cfg.Backend.WasherID
	if washerID == "" {
		washerID = "washer-demo"
		cfg.Backend.WasherID = washerID
	}
	if cfg.Backend.UserID == "" {
		cfg.Backend.UserID = "customer-demo"
	}
	fb.PutOrder(models.Order{
		ID:         cfg.Backend.OrderID,
		CustomerID: cfg.Backend.UserID,
		WasherID:   &washerID,
		Status:     models.OrderStatusAssigned,
	})
	return followDeps{
		backend:   fb,
		identity:  backend.StaticIdentity(cfg.Backend.UserID),
		transport: bus,
		close:     func() {},
	}, fb
}

// simulateWasher moves the washer along a straight line to the destination,
// updating the order status on the way and on arrival.
func simulateWasher(ctx context.Context, fb *fake.Backend, r demoRoute) {
	if r.steps <= 0 {
		r.steps = 10
	}
	t := time.NewTicker(r.every)
	defer t.Stop()

	eta := time.Now().UTC().Add(time.Duration(r.steps) * r.every)
	if err := fb.UpdateStatus(ctx, r.orderID, models.OrderStatusOnTheWay, &eta); err != nil {
		slog.Error("demo status", "error", err.Error())
	}

	speed := geo.Distance(r.from, r.to) / (float64(r.steps) * r.every.Seconds())
	for i := 1; i <= r.steps; i++ {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		k := float64(i) / float64(r.steps)
		pos := models.Position{
			Latitude:  geo.Lerp(r.from.Lat, r.to.Lat, k),
			Longitude: geo.Lerp(r.from.Lng, r.to.Lng, k),
			Speed:     &speed,
			Timestamp: time.Now().UTC(),
		}
		if err := fb.ReportLocation(ctx, r.orderID, r.washerID, pos); err != nil {
			slog.Error("demo location", "error", err.Error())
		}
		if i == r.steps/2 {
			_ = fb.InsertMessage(ctx, models.MessageCreateInput{
				OrderID:      r.orderID,
				SenderID:     r.washerID,
				SenderType:   models.SenderTypeWasher,
				Content:      fmt.Sprintf("%d minutes away", r.steps/2),
				IsQuickReply: true,
			})
		}
	}
	_ = fb.UpdateStatus(ctx, r.orderID, models.OrderStatusArrived, nil)
	_ = fb.UpdateStatus(ctx, r.orderID, models.OrderStatusCompleted, nil)
}
