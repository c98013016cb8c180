package models

import "time"

type SenderType string

const (
	SenderTypeCustomer SenderType = "customer"
	SenderTypeWasher   SenderType = "washer"
)

func (t SenderType) Valid() bool {
	return t == SenderTypeCustomer || t == SenderTypeWasher
}

// Message — сообщение чата по заказу. После создания не меняется.
type Message struct {
	ID           string     `json:"id"`
	OrderID      string     `json:"order_id"`
	SenderID     string     `json:"sender_id"`
	SenderType   SenderType `json:"sender_type"`
	Content      string     `json:"content"`
	IsQuickReply bool       `json:"is_quick_reply"`
	CreatedAt    time.Time  `json:"created_at"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
}

type MessageCreateInput struct {
	OrderID      string     `json:"order_id"`
	SenderID     string     `json:"sender_id"`
	SenderType   SenderType `json:"sender_type"`
	Content      string     `json:"content"`
	IsQuickReply bool       `json:"is_quick_reply"`
}
