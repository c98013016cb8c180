package orderchannel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/WashTrack/internal/integrations/backend"
	"github.com/BearBump/WashTrack/internal/models"
	"github.com/BearBump/WashTrack/internal/realtime"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	ErrOrderIDRequired  = errors.New("orderId is required")
	ErrNotAuthenticated = errors.New("user not authenticated")
	ErrEmptyMessage     = errors.New("message content is empty")
)

type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnected    ConnState = "connected"
	ConnErrored      ConnState = "errored"
)

type Deps struct {
	Backend   backend.Backend
	Identity  backend.Identity
	Transport realtime.Transport
}

// State is a snapshot for the UI layer. Messages are ordered by CreatedAt.
// Connection and Error follow the order topic; LocationError follows the
// washer-location topic, so a stale WasherLocation is visible as such.
type State struct {
	OrderStatus      models.OrderStatus
	WasherID         *string
	EstimatedArrival *time.Time
	WasherLocation   *models.Position
	Messages         []models.Message
	Connection       ConnState
	IsConnected      bool
	Error            string
	LocationError    string
}

// Channel keeps status, ETA and the chat log of one order in sync with the backend.
type Channel struct {
	orderID   string
	backend   backend.Backend
	identity  backend.Identity
	transport realtime.Transport

	mu               sync.Mutex
	status           models.OrderStatus
	washerID         *string
	estimatedArrival *time.Time
	washerLocation   *models.Position
	messages         []models.Message
	seen             map[string]struct{}
	conn             ConnState
	err              string
	locationErr      string
	subs             []realtime.Subscription
	closed           bool

	changes chan struct{}
}

// Open subscribes to the order's change and location topics and then loads the
// current state. Subscription and fetch failures are reported through State.
func Open(ctx context.Context, deps Deps, orderID string) (*Channel, error) {
	if orderID == "" {
		return nil, ErrOrderIDRequired
	}
	c := &Channel{
		orderID:   orderID,
		backend:   deps.Backend,
		identity:  deps.Identity,
		transport: deps.Transport,
		seen:      make(map[string]struct{}),
		conn:      ConnDisconnected,
		changes:   make(chan struct{}, 1),
	}

	// Сначала подписка, потом загрузка: всё, что придёт во время fetch,
	// сольётся с результатом по id без дублей.
	c.subscribe(ctx)
	if err := c.Load(ctx); err != nil {
		slog.Error("initial order load", "order_id", orderID, "error", err.Error())
	}
	return c, nil
}

func (c *Channel) OrderID() string { return c.orderID }

// Changes signals (coalesced) that State has changed.
func (c *Channel) Changes() <-chan struct{} { return c.changes }

func (c *Channel) subscribe(ctx context.Context) {
	orderSub, err := c.transport.Subscribe(ctx, realtime.OrderTopic(c.orderID),
		realtime.Filter{Kind: realtime.KindRowChange},
		c.handleRowChange,
		c.handleStatus,
	)
	if err != nil {
		slog.Error("subscribe order changes", "order_id", c.orderID, "error", err.Error())
		c.mu.Lock()
		c.conn = ConnErrored
		c.err = err.Error()
		c.mu.Unlock()
	} else {
		c.addSub(orderSub)
	}

	locSub, err := c.transport.Subscribe(ctx, realtime.LocationTopic(c.orderID),
		realtime.Filter{Kind: realtime.KindBroadcast, Event: realtime.EventLocationUpdate},
		c.handleLocation,
		c.handleLocationStatus,
	)
	if err != nil {
		slog.Error("subscribe washer location", "order_id", c.orderID, "error", err.Error())
		c.mu.Lock()
		c.locationErr = err.Error()
		c.mu.Unlock()
		return
	}
	c.addSub(locSub)
}

func (c *Channel) addSub(s realtime.Subscription) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = s.Unsubscribe()
		return
	}
	c.subs = append(c.subs, s)
	c.mu.Unlock()
}

// Load fetches the order row and full message history in parallel and replaces
// the in-memory state. On error the previous state is kept.
func (c *Channel) Load(ctx context.Context) error {
	var (
		order *models.Order
		msgs  []*models.Message
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := c.backend.GetOrder(gctx, c.orderID)
		if err != nil {
			return errors.Wrap(err, "get order")
		}
		order = o
		return nil
	})
	g.Go(func() error {
		m, err := c.backend.GetMessages(gctx, c.orderID)
		if err != nil {
			return errors.Wrap(err, "get messages")
		}
		msgs = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if order == nil {
		return errors.Wrap(backend.ErrNotFound, "get order")
	}

	c.mu.Lock()
	c.status = order.Status
	c.washerID = order.WasherID
	c.estimatedArrival = order.EstimatedArrival

	merged := make([]models.Message, 0, len(msgs)+len(c.messages))
	seen := make(map[string]struct{}, len(msgs)+len(c.messages))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, *m)
	}
	// push-сообщения, которых ещё нет в выборке
	for _, m := range c.messages {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].CreatedAt.Before(merged[j].CreatedAt) })
	c.messages = merged
	c.seen = seen
	c.mu.Unlock()

	c.notify()
	return nil
}

// Refetch reloads order and messages; same as Load.
func (c *Channel) Refetch(ctx context.Context) error {
	if err := c.Load(ctx); err != nil {
		slog.Error("refetch order", "order_id", c.orderID, "error", err.Error())
		return err
	}
	return nil
}

// SendMessage persists a customer message. The message shows up in State only
// when the backend echoes it through the push channel.
func (c *Channel) SendMessage(ctx context.Context, content string, isQuickReply bool) error {
	userID, ok := c.identity.CurrentUserID(ctx)
	if !ok || userID == "" {
		return ErrNotAuthenticated
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	err := c.backend.InsertMessage(ctx, models.MessageCreateInput{
		OrderID:      c.orderID,
		SenderID:     userID,
		SenderType:   models.SenderTypeCustomer,
		Content:      content,
		IsQuickReply: isQuickReply,
	})
	if err != nil {
		c.mu.Lock()
		c.err = err.Error()
		c.mu.Unlock()
		c.notify()
		return errors.Wrap(err, "send message")
	}
	return nil
}

// Close unsubscribes from both topics. Safe to call repeatedly.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.conn = ConnDisconnected
	c.mu.Unlock()

	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			slog.Warn("unsubscribe order channel", "order_id", c.orderID, "error", err.Error())
		}
	}
	c.notify()
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{
		OrderStatus:   c.status,
		Messages:      append([]models.Message(nil), c.messages...),
		Connection:    c.conn,
		IsConnected:   c.conn == ConnConnected,
		Error:         c.err,
		LocationError: c.locationErr,
	}
	if c.washerID != nil {
		w := *c.washerID
		st.WasherID = &w
	}
	if c.estimatedArrival != nil {
		t := *c.estimatedArrival
		st.EstimatedArrival = &t
	}
	if c.washerLocation != nil {
		p := *c.washerLocation
		st.WasherLocation = &p
	}
	return st
}

func (c *Channel) handleStatus(st realtime.Status, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	switch st {
	case realtime.StatusSubscribed:
		c.conn = ConnConnected
		c.err = ""
	case realtime.StatusChannelError, realtime.StatusTimedOut:
		c.conn = ConnErrored
		if err != nil {
			c.err = err.Error()
		} else {
			c.err = "order channel " + strings.ToLower(string(st))
		}
		slog.Error("order channel failed", "order_id", c.orderID, "status", string(st), "error", c.err)
	case realtime.StatusClosed:
		c.conn = ConnDisconnected
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Channel) handleLocationStatus(st realtime.Status, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	switch st {
	case realtime.StatusSubscribed:
		c.locationErr = ""
	case realtime.StatusChannelError, realtime.StatusTimedOut:
		if err != nil {
			c.locationErr = err.Error()
		} else {
			c.locationErr = "washer location channel " + strings.ToLower(string(st))
		}
		slog.Warn("washer location channel failed", "order_id", c.orderID, "status", string(st), "error", c.locationErr)
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.notify()
}

type orderRow struct {
	ID               string             `json:"id"`
	Status           models.OrderStatus `json:"status"`
	WasherID         *string            `json:"washer_id"`
	EstimatedArrival *time.Time         `json:"estimated_arrival"`
}

func (c *Channel) handleRowChange(e realtime.Event) {
	switch {
	case e.Table == realtime.TableOrders && e.Event == realtime.EventUpdate:
		var row orderRow
		if err := json.Unmarshal(e.Payload, &row); err != nil {
			slog.Warn("skip malformed order update", "order_id", c.orderID, "error", err.Error())
			return
		}
		if row.ID != "" && row.ID != c.orderID {
			return
		}
		c.applyOrderUpdate(row)
	case e.Table == realtime.TableMessages && e.Event == realtime.EventInsert:
		var m models.Message
		if err := json.Unmarshal(e.Payload, &m); err != nil {
			slog.Warn("skip malformed message insert", "order_id", c.orderID, "error", err.Error())
			return
		}
		if m.ID == "" || (m.OrderID != "" && m.OrderID != c.orderID) {
			return
		}
		c.appendMessage(m)
	}
}

func (c *Channel) applyOrderUpdate(row orderRow) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if row.Status.Valid() {
		c.status = row.Status
	}
	c.estimatedArrival = row.EstimatedArrival
	if row.WasherID != nil {
		c.washerID = row.WasherID
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Channel) appendMessage(m models.Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.seen[m.ID]; ok {
		c.mu.Unlock()
		return
	}
	c.seen[m.ID] = struct{}{}

	// Обычно это конец списка; опоздавшее сообщение встаёт на своё место по времени.
	i := len(c.messages)
	for i > 0 && c.messages[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	c.messages = append(c.messages, models.Message{})
	copy(c.messages[i+1:], c.messages[i:])
	c.messages[i] = m
	c.mu.Unlock()
	c.notify()
}

func (c *Channel) handleLocation(e realtime.Event) {
	var upd models.LocationUpdate
	if err := json.Unmarshal(e.Payload, &upd); err != nil {
		slog.Warn("skip malformed location update", "order_id", c.orderID, "error", err.Error())
		return
	}
	pos := upd.Position

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.washerLocation = &pos
	c.mu.Unlock()
	c.notify()
}

func (c *Channel) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
