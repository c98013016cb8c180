package ordersapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/BearBump/WashTrack/internal/cache/rediscache"
	"github.com/BearBump/WashTrack/internal/integrations/backend"
	"github.com/BearBump/WashTrack/internal/integrations/backend/resthttp"
	"github.com/BearBump/WashTrack/internal/models"
	"github.com/BearBump/WashTrack/internal/services/orders"
	"github.com/BearBump/WashTrack/internal/storage/pgorders"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type repo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	msgs   []*models.Message
}

func newRepo() *repo { return &repo{orders: map[string]*models.Order{}} }

func (r *repo) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	o := &models.Order{ID: in.ID, CustomerID: in.CustomerID, WasherID: in.WasherID, Status: models.OrderStatusPending, CreatedAt: now, UpdatedAt: now}
	if o.ID == "" {
		o.ID = "o" + strconv.Itoa(len(r.orders)+1)
	}
	r.orders[o.ID] = o
	c := *o
	return &c, nil
}

func (r *repo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, pgorders.ErrNotFound
	}
	c := *o
	return &c, nil
}

func (r *repo) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, eta *time.Time) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, pgorders.ErrNotFound
	}
	o.Status, o.EstimatedArrival, o.UpdatedAt = status, eta, time.Now().UTC()
	c := *o
	return &c, nil
}

func (r *repo) InsertMessage(ctx context.Context, in models.MessageCreateInput) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[in.OrderID]; !ok {
		return nil, pgorders.ErrNotFound
	}
	m := &models.Message{
		ID: "m" + strconv.Itoa(len(r.msgs)+1), OrderID: in.OrderID, SenderID: in.SenderID,
		SenderType: in.SenderType, Content: in.Content, IsQuickReply: in.IsQuickReply,
		CreatedAt: time.Now().UTC(),
	}
	r.msgs = append(r.msgs, m)
	return m, nil
}

func (r *repo) ListMessages(ctx context.Context, orderID string) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.msgs {
		if m.OrderID == orderID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *repo) MarkMessagesRead(ctx context.Context, orderID string, reader models.SenderType, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.msgs {
		if m.OrderID == orderID && m.SenderType != reader && m.ReadAt == nil {
			t := at
			m.ReadAt = &t
			n++
		}
	}
	return n, nil
}

type harness struct {
	srv  *httptest.Server
	repo *repo
}

func newHarness(t *testing.T, apiKey string) *harness {
	mr := miniredis.RunT(t)
	rc := rediscache.New(mr.Addr())
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	// фиксированное время: окно лимитера не должно смениться посреди теста
	rl := rediscache.NewLocationLimiter(rdb, time.Minute).
		WithClock(func() time.Time { return time.Unix(130, 0) })

	rp := newRepo()
	svc := orders.New(rp, rc, time.Minute).WithLocationLimits(rl, 2, time.Minute)

	r := chi.NewRouter()
	New(svc, apiKey).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &harness{srv: srv, repo: rp}
}

func (h *harness) do(t *testing.T, method, path string, body any, hdr map[string]string) (*http.Response, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestOrdersAPI_Flow(t *testing.T) {
	h := newHarness(t, "")
	washer := "w1"

	resp, body := h.do(t, http.MethodPost, "/v1/orders", map[string]any{"id": "o1", "customer_id": "c1", "washer_id": washer}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	resp, body = h.do(t, http.MethodGet, "/v1/orders/o1", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var o models.Order
	require.NoError(t, json.Unmarshal(body, &o))
	require.Equal(t, "c1", o.CustomerID)

	eta := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
	resp, body = h.do(t, http.MethodPut, "/v1/orders/o1/status", map[string]any{"status": "on_the_way", "estimated_arrival": eta}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &o))
	require.Equal(t, models.OrderStatusOnTheWay, o.Status)
	require.True(t, eta.Equal(*o.EstimatedArrival))

	resp, _ = h.do(t, http.MethodPost, "/v1/orders/o1/messages",
		map[string]any{"sender_type": "customer", "content": "blue car"},
		map[string]string{UserIDHeader: "c1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/v1/orders/o1/messages", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs messagesResponse
	require.NoError(t, json.Unmarshal(body, &msgs))
	require.Len(t, msgs.Messages, 1)
	require.Equal(t, "c1", msgs.Messages[0].SenderID)

	resp, body = h.do(t, http.MethodPost, "/v1/orders/o1/messages/read", map[string]any{"reader": "washer"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"updated":1}`, string(body))

	resp, _ = h.do(t, http.MethodPost, "/v1/orders/o1/location", map[string]any{
		"washer_id": "w1", "latitude": 30.05, "longitude": 31.24,
	}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body = h.do(t, http.MethodGet, "/v1/orders/o1/location", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loc models.LocationUpdate
	require.NoError(t, json.Unmarshal(body, &loc))
	require.Equal(t, 30.05, loc.Latitude)
}

func TestOrdersAPI_ErrorMapping(t *testing.T) {
	h := newHarness(t, "")
	h.do(t, http.MethodPost, "/v1/orders", map[string]any{"id": "o1", "customer_id": "c1", "washer_id": "w1"}, nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown order", http.MethodGet, "/v1/orders/nope", nil, http.StatusNotFound},
		{"bad status", http.MethodPut, "/v1/orders/o1/status", map[string]any{"status": "flying"}, http.StatusBadRequest},
		{"bad json", http.MethodPut, "/v1/orders/o1/status", "not an object", http.StatusBadRequest},
		{"empty message", http.MethodPost, "/v1/orders/o1/messages", map[string]any{"sender_id": "c1", "sender_type": "customer", "content": " "}, http.StatusBadRequest},
		{"missing customer", http.MethodPost, "/v1/orders", map[string]any{"id": "o2"}, http.StatusBadRequest},
		{"message to unknown order", http.MethodPost, "/v1/orders/nope/messages", map[string]any{"sender_id": "c1", "sender_type": "customer", "content": "x"}, http.StatusNotFound},
		{"wrong washer", http.MethodPost, "/v1/orders/o1/location", map[string]any{"washer_id": "w2", "latitude": 1, "longitude": 1}, http.StatusForbidden},
		{"no location yet", http.MethodGet, "/v1/orders/o1/location", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := h.do(t, tc.method, tc.path, tc.body, nil)
			require.Equal(t, tc.want, resp.StatusCode, string(body))
			require.Contains(t, string(body), `"error"`)
		})
	}
}

func TestOrdersAPI_LocationRateLimit(t *testing.T) {
	h := newHarness(t, "")
	h.do(t, http.MethodPost, "/v1/orders", map[string]any{"id": "o1", "customer_id": "c1", "washer_id": "w1"}, nil)

	body := map[string]any{"washer_id": "w1", "latitude": 1, "longitude": 1}
	for i := 0; i < 2; i++ {
		resp, _ := h.do(t, http.MethodPost, "/v1/orders/o1/location", body, nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	resp, _ := h.do(t, http.MethodPost, "/v1/orders/o1/location", body, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "50", resp.Header.Get("Retry-After"))
}

func TestOrdersAPI_APIKey(t *testing.T) {
	h := newHarness(t, "secret")

	resp, _ := h.do(t, http.MethodGet, "/v1/orders/o1", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/v1/orders/o1", nil, map[string]string{"Authorization": "Bearer secret"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// Клиент из integrations/backend должен понимать ответы этого API.
func TestOrdersAPI_WithRestClient(t *testing.T) {
	h := newHarness(t, "secret")
	washer := "w1"
	_, err := h.repo.CreateOrder(context.Background(), models.OrderCreateInput{ID: "o1", CustomerID: "c1", WasherID: &washer})
	require.NoError(t, err)

	c := resthttp.New(h.srv.URL, "secret", "c1")
	ctx := context.Background()

	require.NoError(t, c.InsertMessage(ctx, models.MessageCreateInput{
		OrderID: "o1", SenderID: "c1", SenderType: models.SenderTypeCustomer, Content: "hello", IsQuickReply: true,
	}))

	o, err := c.GetOrder(ctx, "o1")
	require.NoError(t, err)
	require.Equal(t, "w1", *o.WasherID)

	msgs, err := c.GetMessages(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].IsQuickReply)

	_, err = c.GetOrder(ctx, "missing")
	require.ErrorIs(t, err, backend.ErrNotFound)
}
