package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/WashTrack/config"
	"github.com/BearBump/WashTrack/internal/geo"
	"github.com/BearBump/WashTrack/internal/integrations/backend"
	"github.com/BearBump/WashTrack/internal/integrations/backend/resthttp"
	"github.com/BearBump/WashTrack/internal/models"
	"github.com/BearBump/WashTrack/internal/realtime"
	"github.com/BearBump/WashTrack/internal/realtime/redisbus"
	"github.com/BearBump/WashTrack/internal/services/orderchannel"
	"github.com/BearBump/WashTrack/internal/services/tracker"
	"github.com/pkg/errors"
)

type followDeps struct {
	backend   backend.Backend
	identity  backend.Identity
	transport realtime.Transport
	close     func()
}

func remoteDeps(cfg *config.Config) followDeps {
	client := resthttp.New(cfg.Backend.BaseURL, cfg.Backend.APIKey, cfg.Backend.UserID)
	bus := redisbus.New(cfg.Redis.Addr())
	if s := cfg.Tracker.SubscribeTimeoutSeconds; s > 0 {
		bus.WithAckTimeout(time.Duration(s) * time.Second)
	}
	return followDeps{
		backend:   client,
		identity:  client,
		transport: bus,
		close:     func() { _ = bus.Close() },
	}
}

func trackerConfig(c config.TrackerConfig) tracker.Config {
	tc := tracker.DefaultConfig()
	if c.Interpolate != nil {
		tc.Interpolate = *c.Interpolate
	}
	if c.InterpolationMillis > 0 {
		tc.InterpolationDuration = time.Duration(c.InterpolationMillis) * time.Millisecond
	}
	if c.FrameMillis > 0 {
		tc.FrameInterval = time.Duration(c.FrameMillis) * time.Millisecond
	}
	if c.AverageSpeedKmh > 0 {
		tc.AverageSpeedKmh = c.AverageSpeedKmh
	}
	return tc
}

func destination(c config.BackendConfig) *geo.Point {
	if c.DestinationLat == 0 && c.DestinationLng == 0 {
		return nil
	}
	return &geo.Point{Lat: c.DestinationLat, Lng: c.DestinationLng}
}

// runFollow opens the order channel and the washer tracker for one order and
// logs their state until ctx is done.
func runFollow(ctx context.Context, cfg *config.Config, deps followDeps, logEvery time.Duration) error {
	orderID := cfg.Backend.OrderID
	if orderID == "" {
		return errors.New("backend.order_id is required")
	}
	if logEvery <= 0 {
		logEvery = time.Second
	}

	ch, err := orderchannel.Open(ctx, orderchannel.Deps{
		Backend:   deps.backend,
		Identity:  deps.identity,
		Transport: deps.transport,
	}, orderID)
	if err != nil {
		return err
	}
	defer ch.Close()

	washerID := cfg.Backend.WasherID
	if washerID == "" {
		if w := ch.State().WasherID; w != nil {
			washerID = *w
		}
	}

	tr := tracker.New(deps.transport).WithConfig(trackerConfig(cfg.Tracker))
	if err := tr.Start(ctx, orderID, washerID, destination(cfg.Backend)); err != nil {
		return err
	}
	defer tr.Stop()

	t := time.NewTicker(logEvery)
	defer t.Stop()

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch.Changes():
			st := ch.State()
			for _, m := range st.Messages[min(seen, len(st.Messages)):] {
				logMessage(m)
			}
			seen = len(st.Messages)
			slog.Info("order",
				"order_id", orderID,
				"status", string(st.OrderStatus),
				"connection", string(st.Connection),
				"error", st.Error,
			)
			if st.OrderStatus.Terminal() {
				slog.Info("order finished", "order_id", orderID, "status", string(st.OrderStatus))
				return nil
			}
		case <-t.C:
			logTracker(orderID, tr.State())
		}
	}
}

func logMessage(m models.Message) {
	slog.Info("message",
		"id", m.ID,
		"sender_type", string(m.SenderType),
		"quick_reply", m.IsQuickReply,
		"content", m.Content,
		"created_at", m.CreatedAt.Format(time.RFC3339),
	)
}

func logTracker(orderID string, st tracker.State) {
	args := []any{"order_id", orderID, "tracking", st.IsTracking}
	if p := st.CurrentLocation; p != nil {
		args = append(args, "lat", p.Latitude, "lng", p.Longitude)
	}
	if st.ETA != nil {
		args = append(args, "eta_min", *st.ETA)
	}
	if st.Error != "" {
		args = append(args, "error", st.Error)
	}
	slog.Info("washer", args...)
}
