package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	events   []Event
	statuses []Status
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) status(st Status, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, st)
}

func (r *recorder) snapshot() ([]Event, []Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...), append([]Status(nil), r.statuses...)
}

func TestFilter_Match(t *testing.T) {
	e := Event{Kind: KindRowChange, Event: EventInsert, Table: TableMessages}

	require.True(t, Filter{}.Match(e))
	require.True(t, Filter{Kind: KindRowChange, Table: TableMessages}.Match(e))
	require.False(t, Filter{Kind: KindBroadcast}.Match(e))
	require.False(t, Filter{Event: EventUpdate}.Match(e))
	require.False(t, Filter{Table: TableOrders}.Match(e))
}

func TestBus_DeliversInOrderAndAcks(t *testing.T) {
	b := NewBus()
	rec := &recorder{}
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, OrderTopic("o1"), Filter{Kind: KindRowChange}, rec.handle, rec.status)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	for _, ev := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(ctx, OrderTopic("o1"), Event{Kind: KindRowChange, Event: ev}))
	}
	// другой топик и неподходящий фильтр не доставляются
	require.NoError(t, b.Publish(ctx, OrderTopic("o2"), Event{Kind: KindRowChange, Event: "x"}))
	require.NoError(t, b.Publish(ctx, OrderTopic("o1"), Event{Kind: KindBroadcast, Event: "y"}))

	require.Eventually(t, func() bool {
		evs, _ := rec.snapshot()
		return len(evs) == 3
	}, time.Second, 5*time.Millisecond)

	evs, sts := rec.snapshot()
	require.Equal(t, "a", evs[0].Event)
	require.Equal(t, "b", evs[1].Event)
	require.Equal(t, "c", evs[2].Event)
	require.Equal(t, []Status{StatusSubscribed}, sts)
}

func TestBus_UnsubscribeStopsDeliveryAndIsIdempotent(t *testing.T) {
	b := NewBus()
	rec := &recorder{}
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, LocationTopic("o1"), Filter{}, rec.handle, nil)
	require.NoError(t, err)
	require.Equal(t, 1, b.Subscribers(LocationTopic("o1")))

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe())
	require.Equal(t, 0, b.Subscribers(LocationTopic("o1")))

	require.NoError(t, b.Publish(ctx, LocationTopic("o1"), Event{Kind: KindBroadcast}))
	time.Sleep(20 * time.Millisecond)
	evs, _ := rec.snapshot()
	require.Empty(t, evs)
}

func TestBus_SubscribeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBus().Subscribe(ctx, "t", Filter{}, func(Event) {}, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewRowChangeAndBroadcast(t *testing.T) {
	e, err := NewRowChange(EventUpdate, TableOrders, map[string]string{"status": "arrived"})
	require.NoError(t, err)
	require.Equal(t, KindRowChange, e.Kind)
	require.JSONEq(t, `{"status":"arrived"}`, string(e.Payload))

	e, err = NewBroadcast(EventLocationUpdate, map[string]float64{"latitude": 1})
	require.NoError(t, err)
	require.Equal(t, KindBroadcast, e.Kind)
	require.Empty(t, e.Table)
}
