package orders

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BearBump/WashTrack/internal/broker/messages"
	"github.com/BearBump/WashTrack/internal/cache"
	"github.com/BearBump/WashTrack/internal/models"
	"github.com/BearBump/WashTrack/internal/realtime"
	"github.com/BearBump/WashTrack/internal/storage/pgorders"
	"github.com/pkg/errors"
)

const (
	MaxMessageLength = 2000

	defaultLocationTTL       = 30 * time.Minute
	defaultLocationPerMinute = 120
	publishAttempts          = 3
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrInvalidStatus   = errors.New("invalid order status")
	ErrInvalidSender   = errors.New("invalid sender type")
	ErrEmptyMessage    = errors.New("message content is empty")
	ErrMessageTooLong  = errors.New("message content is too long")
	ErrInvalidPosition = errors.New("invalid position")
	ErrWasherMismatch  = errors.New("washer is not assigned to the order")
	ErrRateLimited     = errors.New("location rate limit exceeded")
	ErrNoLocation      = errors.New("no location reported yet")
	ErrMissingCustomer = errors.New("customer_id is required")
	ErrMissingSender   = errors.New("sender_id is required")
)

// RateLimitedError отдаётся, когда мойщик превысил лимит точек.
// errors.Is(err, ErrRateLimited) для него true.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return ErrRateLimited.Error() + ", retry after " + e.RetryAfter.String()
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

type Repository interface {
	CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, estimatedArrival *time.Time) (*models.Order, error)
	InsertMessage(ctx context.Context, in models.MessageCreateInput) (*models.Message, error)
	ListMessages(ctx context.Context, orderID string) ([]*models.Message, error)
	MarkMessagesRead(ctx context.Context, orderID string, reader models.SenderType, at time.Time) (int64, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Service is the server side of order status, chat and washer location.
// Every successful write is appended to the order change log.
type Service struct {
	repo     Repository
	cache    cache.BytesCache
	orderTTL time.Duration

	producer Producer
	topic    string

	limiter           cache.LocationLimiter
	locationPerMinute int64
	locationTTL       time.Duration

	now func() time.Time
}

func New(repo Repository, c cache.BytesCache, orderTTL time.Duration) *Service {
	return &Service{
		repo:              repo,
		cache:             c,
		orderTTL:          orderTTL,
		locationPerMinute: defaultLocationPerMinute,
		locationTTL:       defaultLocationTTL,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithProducer(p Producer, topic string) *Service {
	s.producer = p
	s.topic = topic
	return s
}

// WithLocationLimits caps location reports per washer; perMinute matches the
// limiter's window, which is one minute in production.
func (s *Service) WithLocationLimits(l cache.LocationLimiter, perMinute int64, ttl time.Duration) *Service {
	s.limiter = l
	if perMinute > 0 {
		s.locationPerMinute = perMinute
	}
	if ttl > 0 {
		s.locationTTL = ttl
	}
	return s
}

func (s *Service) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, ErrMissingCustomer
	}
	o, err := s.repo.CreateOrder(ctx, in)
	if err != nil {
		return nil, err
	}
	s.cacheOrder(ctx, o)
	return o, nil
}

// GetOrder читает заказ из кэша, при промахе из БД. Ошибки кэша не фатальны.
func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if s.cacheEnabled() {
		b, ok, err := s.cache.Get(ctx, cache.OrderKey(id))
		if err != nil {
			slog.Warn("order cache get", "order_id", id, "error", err.Error())
		}
		if ok {
			var o models.Order
			if json.Unmarshal(b, &o) == nil {
				return &o, nil
			}
		}
	}

	o, err := s.repo.GetOrder(ctx, id)
	if errors.Is(err, pgorders.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	s.cacheOrder(ctx, o)
	return o, nil
}

func (s *Service) ListMessages(ctx context.Context, orderID string) ([]*models.Message, error) {
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, orderID)
}

func (s *Service) PostMessage(ctx context.Context, in models.MessageCreateInput) (*models.Message, error) {
	if !in.SenderType.Valid() {
		return nil, ErrInvalidSender
	}
	if strings.TrimSpace(in.SenderID) == "" {
		return nil, ErrMissingSender
	}
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(in.Content) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	m, err := s.repo.InsertMessage(ctx, in)
	if errors.Is(err, pgorders.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	change, err := messages.NewRowChange(m.OrderID, realtime.EventInsert, realtime.TableMessages, m, m.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "build message change")
	}
	s.publishBestEffort(ctx, change)
	return m, nil
}

// MarkRead отмечает прочитанными сообщения собеседника reader'а.
func (s *Service) MarkRead(ctx context.Context, orderID string, reader models.SenderType) (int64, error) {
	if !reader.Valid() {
		return 0, ErrInvalidSender
	}
	if _, err := s.GetOrder(ctx, orderID); err != nil {
		return 0, err
	}
	return s.repo.MarkMessagesRead(ctx, orderID, reader, s.now())
}

// UpdateStatus overwrites status and ETA. A nil estimatedArrival clears it.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus, estimatedArrival *time.Time) (*models.Order, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	o, err := s.repo.UpdateOrderStatus(ctx, orderID, status, estimatedArrival)
	if errors.Is(err, pgorders.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	s.cacheOrder(ctx, o)

	change, err := messages.NewRowChange(o.ID, realtime.EventUpdate, realtime.TableOrders, o, o.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "build order change")
	}
	s.publishBestEffort(ctx, change)
	return o, nil
}

// ReportLocation принимает точку от мойщика и рассылает её подписчикам заказа.
// Позиция нигде не хранится кроме кэша последней точки.
func (s *Service) ReportLocation(ctx context.Context, orderID string, upd models.LocationUpdate) error {
	if !validPosition(upd.Position) {
		return ErrInvalidPosition
	}
	o, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if upd.WasherID == "" || o.WasherID == nil || *o.WasherID != upd.WasherID {
		return ErrWasherMismatch
	}

	if s.limiter != nil {
		d, err := s.limiter.Allow(ctx, upd.WasherID, s.locationPerMinute)
		if err != nil {
			return err
		}
		if !d.Allowed {
			slog.Warn("location rate limit exceeded", "washer_id", upd.WasherID, "count", d.Count, "retry_after", d.RetryAfter.String())
			return &RateLimitedError{RetryAfter: d.RetryAfter}
		}
	}

	if upd.Timestamp.IsZero() {
		upd.Timestamp = s.now()
	}

	if s.cache != nil {
		b, _ := json.Marshal(upd)
		if err := s.cache.Set(ctx, cache.LastLocationKey(orderID), b, s.locationTTL); err != nil {
			slog.Warn("cache last location", "order_id", orderID, "error", err.Error())
		}
	}

	change, err := messages.NewBroadcast(orderID, realtime.EventLocationUpdate, upd, upd.Timestamp)
	if err != nil {
		return errors.Wrap(err, "build location change")
	}
	// для позиции публикация и есть сама операция
	return s.publish(ctx, change)
}

func (s *Service) LastLocation(ctx context.Context, orderID string) (*models.LocationUpdate, error) {
	if s.cache == nil {
		return nil, ErrNoLocation
	}
	b, ok, err := s.cache.Get(ctx, cache.LastLocationKey(orderID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoLocation
	}
	var upd models.LocationUpdate
	if err := json.Unmarshal(b, &upd); err != nil {
		return nil, errors.Wrap(err, "decode last location")
	}
	return &upd, nil
}

func (s *Service) cacheEnabled() bool {
	return s.cache != nil && s.orderTTL > 0
}

func (s *Service) cacheOrder(ctx context.Context, o *models.Order) {
	if !s.cacheEnabled() || o == nil {
		return
	}
	b, _ := json.Marshal(o)
	if err := s.cache.Set(ctx, cache.OrderKey(o.ID), b, s.orderTTL); err != nil {
		slog.Warn("order cache set", "order_id", o.ID, "error", err.Error())
	}
}

// publishBestEffort логирует ошибку: строка уже записана, клиенты догонят через refetch.
func (s *Service) publishBestEffort(ctx context.Context, c messages.OrderChange) {
	if err := s.publish(ctx, c); err != nil {
		slog.Error("publish order change", "order_id", c.OrderID, "event", c.Event, "table", c.Table, "error", err.Error())
	}
}

func (s *Service) publish(ctx context.Context, c messages.OrderChange) error {
	if s.producer == nil {
		return nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal order change")
	}

	var pubErr error
	for i := 0; i < publishAttempts; i++ {
		if pubErr = s.producer.Publish(ctx, s.topic, []byte(c.OrderID), b); pubErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(50*(i+1)) * time.Millisecond):
		}
	}
	return pubErr
}

func validPosition(p models.Position) bool {
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180 &&
		(p.Speed == nil || *p.Speed >= 0)
}
