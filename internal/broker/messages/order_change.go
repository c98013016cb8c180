package messages

import (
	"encoding/json"
	"time"

	"github.com/BearBump/WashTrack/internal/realtime"
)

// OrderChange is one record of the order change log. Kind/Event/Table follow
// realtime.Event so the relay can forward it without reinterpreting.
type OrderChange struct {
	OrderID    string          `json:"order_id"`
	Kind       realtime.Kind   `json:"kind"`
	Event      string          `json:"event"`
	Table      string          `json:"table,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewRowChange(orderID, event, table string, row any, at time.Time) (OrderChange, error) {
	e, err := realtime.NewRowChange(event, table, row)
	if err != nil {
		return OrderChange{}, err
	}
	return fromEvent(orderID, e, at), nil
}

func NewBroadcast(orderID, event string, payload any, at time.Time) (OrderChange, error) {
	e, err := realtime.NewBroadcast(event, payload)
	if err != nil {
		return OrderChange{}, err
	}
	return fromEvent(orderID, e, at), nil
}

func fromEvent(orderID string, e realtime.Event, at time.Time) OrderChange {
	return OrderChange{
		OrderID:    orderID,
		Kind:       e.Kind,
		Event:      e.Event,
		Table:      e.Table,
		Payload:    e.Payload,
		OccurredAt: at.UTC(),
	}
}

func (c OrderChange) RealtimeEvent() realtime.Event {
	return realtime.Event{Kind: c.Kind, Event: c.Event, Table: c.Table, Payload: c.Payload}
}

// Topic returns the realtime topic the change is delivered to.
func (c OrderChange) Topic() string {
	if c.Kind == realtime.KindBroadcast {
		return realtime.LocationTopic(c.OrderID)
	}
	return realtime.OrderTopic(c.OrderID)
}
