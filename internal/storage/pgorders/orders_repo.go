package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/WashTrack/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const orderColumns = `id, customer_id, washer_id, status, estimated_arrival, created_at, updated_at`

// CreateOrder вставляет заказ в статусе pending. Пустой ID генерируется.
func (s *Storage) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := models.OrderStatusPending
	if in.WasherID != nil {
		status = models.OrderStatusAssigned
	}
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO orders (id, customer_id, washer_id, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$5)
RETURNING `+orderColumns, id, in.CustomerID, in.WasherID, status, now)
	o, err := scanOrder(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert order")
	}
	return o, nil
}

func (s *Storage) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	return o, nil
}

// UpdateOrderStatus перезаписывает статус и ETA (nil очищает ETA).
func (s *Storage) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, estimatedArrival *time.Time) (*models.Order, error) {
	row := s.db.QueryRow(ctx, `
UPDATE orders
SET status = $2, estimated_arrival = $3, updated_at = now()
WHERE id = $1
RETURNING `+orderColumns, id, status, estimatedArrival)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return o, nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	if err := row.Scan(
		&o.ID, &o.CustomerID, &o.WasherID, &o.Status,
		&o.EstimatedArrival, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &o, nil
}
