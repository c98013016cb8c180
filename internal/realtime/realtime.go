// Package realtime describes push subscriptions scoped to a single order
// and ships an in-process Bus implementation.
package realtime

import (
	"context"
	"encoding/json"
)

type Kind string

const (
	KindRowChange Kind = "row_change"
	KindBroadcast Kind = "broadcast"
)

// Row-change event names and tables.
const (
	EventInsert = "insert"
	EventUpdate = "update"

	TableOrders   = "orders"
	TableMessages = "messages"

	EventLocationUpdate = "location_update"
)

type Event struct {
	Kind    Kind            `json:"kind"`
	Event   string          `json:"event"`
	Table   string          `json:"table,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Filter matches events; empty fields match anything.
type Filter struct {
	Kind  Kind
	Event string
	Table string
}

func (f Filter) Match(e Event) bool {
	if f.Kind != "" && f.Kind != e.Kind {
		return false
	}
	if f.Event != "" && f.Event != e.Event {
		return false
	}
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	return true
}

type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusChannelError Status = "CHANNEL_ERROR"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
)

type Handler func(Event)

// StatusFunc receives acknowledgment and channel state changes. err is set for
// StatusChannelError and StatusTimedOut. A transport that reconnects on its own
// may report StatusSubscribed again after StatusChannelError.
type StatusFunc func(st Status, err error)

type Subscription interface {
	Unsubscribe() error
}

// Transport opens subscriptions. Subscribe must not block on the acknowledgment:
// it is reported through onStatus. Events of one subscription are delivered
// sequentially, in arrival order.
type Transport interface {
	Subscribe(ctx context.Context, topic string, filter Filter, h Handler, onStatus StatusFunc) (Subscription, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, e Event) error
}

func OrderTopic(orderID string) string {
	return "orders:" + orderID
}

func LocationTopic(orderID string) string {
	return "tracking:" + orderID
}

func NewRowChange(event, table string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: KindRowChange, Event: event, Table: table, Payload: b}, nil
}

func NewBroadcast(event string, payload any) (Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: KindBroadcast, Event: event, Payload: b}, nil
}
