package main

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/WashTrack/config"
	"github.com/BearBump/WashTrack/internal/geo"
	"github.com/BearBump/WashTrack/internal/models"
	"github.com/BearBump/WashTrack/internal/services/tracker"
	"github.com/stretchr/testify/require"
)

func TestTrackerConfig_Defaults(t *testing.T) {
	require.Equal(t, tracker.DefaultConfig(), trackerConfig(config.TrackerConfig{}))

	off := false
	tc := trackerConfig(config.TrackerConfig{Interpolate: &off, InterpolationMillis: 500, FrameMillis: 33, AverageSpeedKmh: 20})
	require.False(t, tc.Interpolate)
	require.Equal(t, 500*time.Millisecond, tc.InterpolationDuration)
	require.Equal(t, 33*time.Millisecond, tc.FrameInterval)
	require.Equal(t, 20.0, tc.AverageSpeedKmh)
}

func TestDestination(t *testing.T) {
	require.Nil(t, destination(config.BackendConfig{}))
	require.Equal(t, &geo.Point{Lat: 1, Lng: 2}, destination(config.BackendConfig{DestinationLat: 1, DestinationLng: 2}))
}

func TestRunFollow_RequiresOrderID(t *testing.T) {
	err := runFollow(context.Background(), &config.Config{}, followDeps{}, time.Millisecond)
	require.Error(t, err)
}

func TestRunFollow_DemoRunsUntilOrderCompletes(t *testing.T) {
	cfg := &config.Config{Backend: config.BackendConfig{OrderID: "o1", DestinationLat: 55.7558, DestinationLng: 37.6173}}
	deps, fb := demoDeps(cfg)
	require.Equal(t, "washer-demo", cfg.Backend.WasherID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runFollow(ctx, cfg, deps, 10*time.Millisecond) }()

	// даём подпискам подняться до первой точки
	time.Sleep(50 * time.Millisecond)
	go simulateWasher(ctx, fb, demoRoute{
		orderID:  "o1",
		washerID: cfg.Backend.WasherID,
		from:     demoStart,
		to:       geo.Point{Lat: 55.7558, Lng: 37.6173},
		steps:    4,
		every:    20 * time.Millisecond,
	})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("follow did not observe order completion")
	}

	o, err := fb.GetOrder(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, o.Status)

	msgs, err := fb.GetMessages(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}
