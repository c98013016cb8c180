package tracker

import (
	"time"

	"github.com/BearBump/WashTrack/internal/models"
)

// FrameScheduler runs fn once on the next frame. The returned cancel drops the
// pending call if it has not fired yet.
type FrameScheduler interface {
	Schedule(fn func(now time.Time)) (cancel func())
}

type timerScheduler struct {
	interval time.Duration
}

// NewFrameScheduler schedules frames on a fixed cadence (~60 fps for 16ms).
func NewFrameScheduler(interval time.Duration) FrameScheduler {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	return &timerScheduler{interval: interval}
}

func (s *timerScheduler) Schedule(fn func(now time.Time)) func() {
	t := time.AfterFunc(s.interval, func() { fn(time.Now()) })
	return func() { t.Stop() }
}

// animation is one interpolation run from the displayed position to a raw sample.
type animation struct {
	from     models.Position
	to       models.Position
	start    time.Time
	duration time.Duration
	cancel   func()
}

func (a *animation) progress(now time.Time) float64 {
	if a.duration <= 0 {
		return 1
	}
	return float64(now.Sub(a.start)) / float64(a.duration)
}

func (a *animation) stop() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}
