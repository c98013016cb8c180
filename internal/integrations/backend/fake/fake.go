package fake

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/WashTrack/internal/integrations/backend"
	"github.com/BearBump/WashTrack/internal/models"
	"github.com/BearBump/WashTrack/internal/realtime"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Backend is an in-memory "managed backend": rows live in maps, every write is
// echoed as a realtime event, as the real backend does through Kafka and the relay.
type Backend struct {
	pub realtime.Publisher
	now func() time.Time

	mu       sync.Mutex
	orders   map[string]models.Order
	messages map[string][]models.Message
}

func New(pub realtime.Publisher) *Backend {
	return &Backend{
		pub:      pub,
		now:      func() time.Time { return time.Now().UTC() },
		orders:   make(map[string]models.Order),
		messages: make(map[string][]models.Message),
	}
}

func (b *Backend) PutOrder(o models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = b.now()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	b.orders[o.ID] = o
}

func (b *Backend) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[orderID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &o, nil
}

func (b *Backend) GetMessages(ctx context.Context, orderID string) ([]*models.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*models.Message, 0, len(b.messages[orderID]))
	for _, m := range b.messages[orderID] {
		m := m
		out = append(out, &m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *Backend) InsertMessage(ctx context.Context, in models.MessageCreateInput) error {
	b.mu.Lock()
	if _, ok := b.orders[in.OrderID]; !ok {
		b.mu.Unlock()
		return backend.ErrNotFound
	}
	m := models.Message{
		ID:           uuid.NewString(),
		OrderID:      in.OrderID,
		SenderID:     in.SenderID,
		SenderType:   in.SenderType,
		Content:      in.Content,
		IsQuickReply: in.IsQuickReply,
		CreatedAt:    b.now(),
	}
	b.messages[in.OrderID] = append(b.messages[in.OrderID], m)
	b.mu.Unlock()

	return b.publishRow(ctx, in.OrderID, realtime.EventInsert, realtime.TableMessages, m)
}

func (b *Backend) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus, estimatedArrival *time.Time) error {
	if !status.Valid() {
		return errors.Errorf("invalid status %q", status)
	}
	b.mu.Lock()
	o, ok := b.orders[orderID]
	if !ok {
		b.mu.Unlock()
		return backend.ErrNotFound
	}
	o.Status = status
	o.EstimatedArrival = estimatedArrival
	o.UpdatedAt = b.now()
	b.orders[orderID] = o
	b.mu.Unlock()

	return b.publishRow(ctx, orderID, realtime.EventUpdate, realtime.TableOrders, o)
}

func (b *Backend) ReportLocation(ctx context.Context, orderID, washerID string, pos models.Position) error {
	if b.pub == nil {
		return nil
	}
	e, err := realtime.NewBroadcast(realtime.EventLocationUpdate, models.LocationUpdate{WasherID: washerID, Position: pos})
	if err != nil {
		return errors.Wrap(err, "marshal location")
	}
	return b.pub.Publish(ctx, realtime.LocationTopic(orderID), e)
}

func (b *Backend) publishRow(ctx context.Context, orderID, event, table string, row any) error {
	if b.pub == nil {
		return nil
	}
	e, err := realtime.NewRowChange(event, table, row)
	if err != nil {
		return errors.Wrap(err, "marshal row")
	}
	if err := b.pub.Publish(ctx, realtime.OrderTopic(orderID), e); err != nil {
		slog.Error("fake backend publish", "order_id", orderID, "error", err.Error())
		return err
	}
	return nil
}
