package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/WashTrack/internal/geo"
	"github.com/BearBump/WashTrack/internal/models"
	"github.com/BearBump/WashTrack/internal/realtime"
	"github.com/pkg/errors"
)

const (
	DefaultInterpolationDuration = 1000 * time.Millisecond
	DefaultFrameInterval         = 16 * time.Millisecond
)

var ErrOrderIDRequired = errors.New("orderId is required")

type Config struct {
	// Interpolate smooths raw samples into continuous motion. When false raw
	// samples are applied as is.
	Interpolate           bool
	InterpolationDuration time.Duration
	FrameInterval         time.Duration
	AverageSpeedKmh       float64
}

func DefaultConfig() Config {
	return Config{
		Interpolate:           true,
		InterpolationDuration: DefaultInterpolationDuration,
		FrameInterval:         DefaultFrameInterval,
		AverageSpeedKmh:       geo.DefaultAverageSpeedKmh,
	}
}

// State is a snapshot of the tracker for the UI layer.
type State struct {
	CurrentLocation  *models.Position
	PreviousLocation *models.Position
	// RawLocation is the last sample received from the feed, before smoothing.
	RawLocation *models.Position
	IsTracking  bool
	Error       string
	ETA         *int
}

type session struct {
	orderID  string
	washerID string
	sub      realtime.Subscription
}

// Tracker keeps a smooth washer position for one order and a rolling ETA.
type Tracker struct {
	transport realtime.Transport
	frames    FrameScheduler
	now       func() time.Time
	cfg       Config

	mu          sync.Mutex
	session     *session
	lastOrderID string
	current     *models.Position
	previous    *models.Position
	lastRaw     *models.Position
	dest        *geo.Point
	eta         *int
	tracking    bool
	err         string
	anim        *animation
	onLocation  func(models.Position)
	seq         uint64

	// emitMu serializes callbacks; emitted drops positions older than the last delivered one.
	emitMu  sync.Mutex
	emitted uint64
}

func New(transport realtime.Transport) *Tracker {
	cfg := DefaultConfig()
	return &Tracker{
		transport: transport,
		frames:    NewFrameScheduler(cfg.FrameInterval),
		now:       time.Now,
		cfg:       cfg,
	}
}

func (t *Tracker) WithConfig(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.InterpolationDuration <= 0 {
		cfg.InterpolationDuration = def.InterpolationDuration
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = def.FrameInterval
	}
	if cfg.AverageSpeedKmh <= 0 {
		cfg.AverageSpeedKmh = def.AverageSpeedKmh
	}
	t.cfg = cfg
	t.frames = NewFrameScheduler(cfg.FrameInterval)
	return t
}

func (t *Tracker) WithFrameScheduler(fs FrameScheduler) *Tracker {
	if fs != nil {
		t.frames = fs
	}
	return t
}

func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	if now != nil {
		t.now = now
	}
	return t
}

// OnLocation registers a callback for every displayed position, raw or interpolated.
func (t *Tracker) OnLocation(fn func(models.Position)) {
	t.mu.Lock()
	t.onLocation = fn
	t.mu.Unlock()
}

// Start subscribes to the position feed of orderID. It is a no-op while a
// session is active. Subscription failures end up in State().Error, not in the
// returned error.
func (t *Tracker) Start(ctx context.Context, orderID, washerID string, destination *geo.Point) error {
	if orderID == "" {
		return ErrOrderIDRequired
	}

	t.mu.Lock()
	if t.session != nil {
		t.mu.Unlock()
		return nil
	}
	s := &session{orderID: orderID, washerID: washerID}
	t.session = s
	if t.lastOrderID != orderID {
		// другой заказ: ничего от прошлого, включая точку назначения
		t.current, t.previous, t.lastRaw, t.eta, t.dest = nil, nil, nil, nil, nil
		t.lastOrderID = orderID
	}
	if destination != nil {
		d := *destination
		t.dest = &d
	}
	t.err = ""
	t.mu.Unlock()

	sub, err := t.transport.Subscribe(ctx, realtime.LocationTopic(orderID),
		realtime.Filter{Kind: realtime.KindBroadcast, Event: realtime.EventLocationUpdate},
		func(e realtime.Event) { t.handleEvent(s, e) },
		func(st realtime.Status, err error) { t.handleStatus(s, st, err) },
	)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		slog.Error("subscribe to location updates", "order_id", orderID, "error", err.Error())
		if t.session == s {
			t.session = nil
			t.tracking = false
			t.err = subscribeError(err)
		}
		return nil
	}
	if t.session != s {
		// Stop успел вызваться, пока открывали подписку.
		_ = sub.Unsubscribe()
		return nil
	}
	s.sub = sub
	return nil
}

// Stop closes the subscription and cancels the running interpolation. Safe to
// call repeatedly. The last displayed position stays in State.
func (t *Tracker) Stop() {
	t.mu.Lock()
	s := t.session
	t.stopAnimationLocked()
	t.session = nil
	t.tracking = false
	t.mu.Unlock()

	if s != nil && s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			slog.Warn("unsubscribe location updates", "order_id", s.orderID, "error", err.Error())
		}
	}
}

// SetDestination changes the ETA target. The ETA is recomputed on the next
// position, not immediately.
func (t *Tracker) SetDestination(lat, lng float64) {
	t.mu.Lock()
	t.dest = &geo.Point{Lat: lat, Lng: lng}
	t.mu.Unlock()
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := State{
		CurrentLocation:  copyPos(t.current),
		PreviousLocation: copyPos(t.previous),
		RawLocation:      copyPos(t.lastRaw),
		IsTracking:       t.tracking,
		Error:            t.err,
	}
	if t.eta != nil {
		eta := *t.eta
		st.ETA = &eta
	}
	return st
}

func (t *Tracker) handleStatus(s *session, st realtime.Status, err error) {
	t.mu.Lock()
	if t.session != s {
		t.mu.Unlock()
		return
	}
	switch st {
	case realtime.StatusSubscribed:
		t.tracking = true
		t.err = ""
		t.mu.Unlock()
		slog.Info("location tracking started", "order_id", s.orderID, "washer_id", s.washerID)
		return
	case realtime.StatusChannelError, realtime.StatusTimedOut:
		if err == nil {
			err = errors.New(string(st))
		}
		// Сессия закончилась: следующий Start подпишется заново.
		// Последняя показанная точка остаётся в State.
		t.stopAnimationLocked()
		t.session = nil
		t.tracking = false
		t.err = subscribeError(err)
		sub := s.sub
		t.mu.Unlock()

		slog.Error("location channel failed", "order_id", s.orderID, "status", string(st), "error", err.Error())
		if sub != nil {
			if uerr := sub.Unsubscribe(); uerr != nil {
				slog.Warn("unsubscribe location updates", "order_id", s.orderID, "error", uerr.Error())
			}
		}
		return
	case realtime.StatusClosed:
		t.tracking = false
	}
	t.mu.Unlock()
}

func (t *Tracker) handleEvent(s *session, e realtime.Event) {
	var upd models.LocationUpdate
	if err := json.Unmarshal(e.Payload, &upd); err != nil {
		slog.Warn("skip malformed location update", "order_id", s.orderID, "error", err.Error())
		return
	}
	t.onUpdate(s, upd)
}

func (t *Tracker) onUpdate(s *session, upd models.LocationUpdate) {
	t.mu.Lock()
	if t.session != s {
		t.mu.Unlock()
		return
	}
	if s.washerID != "" && upd.WasherID != s.washerID {
		t.mu.Unlock()
		return
	}

	raw := upd.Position
	t.lastRaw = &raw
	t.previous = copyPos(t.current)

	if t.current == nil || !t.cfg.Interpolate {
		t.stopAnimationLocked()
		t.current = &raw
		t.updateETALocked()
		t.emitUnlock(raw)
		return
	}

	// Новая точка прерывает текущую анимацию и стартует с того, что уже показано.
	t.stopAnimationLocked()
	a := &animation{
		from:     *t.current,
		to:       raw,
		start:    t.now(),
		duration: t.cfg.InterpolationDuration,
	}
	t.anim = a
	t.scheduleLocked(a)
	t.mu.Unlock()
}

func (t *Tracker) scheduleLocked(a *animation) {
	a.cancel = t.frames.Schedule(func(now time.Time) { t.frame(a, now) })
}

func (t *Tracker) frame(a *animation, now time.Time) {
	t.mu.Lock()
	if t.anim != a {
		t.mu.Unlock()
		return
	}
	p := a.progress(now)
	pos := geo.Interpolate(a.from, a.to, geo.EaseOutCubic(p))
	t.current = &pos
	t.updateETALocked()
	if p < 1 {
		t.scheduleLocked(a)
	} else {
		t.anim = nil
	}
	t.emitUnlock(pos)
}

func (t *Tracker) stopAnimationLocked() {
	if t.anim != nil {
		t.anim.stop()
		t.anim = nil
	}
}

func (t *Tracker) updateETALocked() {
	if t.dest == nil || t.current == nil {
		return
	}
	eta := geo.CalculateETA(*t.current, *t.dest, t.cfg.AverageSpeedKmh)
	t.eta = &eta
}

// emitUnlock releases t.mu and hands pos to the callback. A position produced
// before one already delivered is dropped.
func (t *Tracker) emitUnlock(pos models.Position) {
	t.seq++
	seq, cb := t.seq, t.onLocation
	t.mu.Unlock()

	if cb == nil {
		return
	}
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	if seq <= t.emitted {
		return
	}
	t.emitted = seq
	cb(pos)
}

func subscribeError(err error) string {
	return fmt.Sprintf("failed to subscribe to location updates: %v", err)
}

func copyPos(p *models.Position) *models.Position {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
