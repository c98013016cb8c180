package models

import "time"

type OrderStatus string

// Статусы заказа в порядке жизненного цикла.
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusAssigned   OrderStatus = "assigned"
	OrderStatusOnTheWay   OrderStatus = "on_the_way"
	OrderStatusArrived    OrderStatus = "arrived"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusAssigned, OrderStatusOnTheWay,
		OrderStatusArrived, OrderStatusInProgress, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further status transitions are expected.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type Order struct {
	ID               string      `json:"id"`
	CustomerID       string      `json:"customer_id"`
	WasherID         *string     `json:"washer_id,omitempty"`
	Status           OrderStatus `json:"status"`
	EstimatedArrival *time.Time  `json:"estimated_arrival,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

type OrderCreateInput struct {
	ID         string
	CustomerID string
	WasherID   *string
}
