package resthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/WashTrack/internal/integrations/backend"
	"github.com/BearBump/WashTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestClient_GetOrder_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/orders/o1", r.URL.Path)
		require.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		require.Equal(t, "u1", r.Header.Get(UserIDHeader))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"o1","customer_id":"u1","washer_id":"w1","status":"on_the_way","estimated_arrival":"2025-01-01T12:30:00Z"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "u1")
	o, err := c.GetOrder(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusOnTheWay, o.Status)
	require.Equal(t, "w1", *o.WasherID)
	require.WithinDuration(t, time.Date(2025, 1, 1, 12, 30, 0, 0, time.UTC), *o.EstimatedArrival, time.Second)
}

func TestClient_GetOrder_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", "").GetOrder(context.Background(), "missing")
	require.ErrorIs(t, err, backend.ErrNotFound)
}

func TestClient_GetMessages_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/orders/o1/messages", r.URL.Path)
		_, _ = w.Write([]byte(`{"messages":[
  {"id":"m1","order_id":"o1","sender_id":"u1","sender_type":"customer","content":"hi","is_quick_reply":false,"created_at":"2025-01-01T12:00:00Z"},
  {"id":"m2","order_id":"o1","sender_id":"w1","sender_type":"washer","content":"on my way","is_quick_reply":true,"created_at":"2025-01-01T12:01:00Z"}
]}`))
	}))
	defer srv.Close()

	msgs, err := New(srv.URL, "", "u1").GetMessages(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, models.SenderTypeWasher, msgs[1].SenderType)
	require.True(t, msgs[1].IsQuickReply)
}

func TestClient_InsertMessage(t *testing.T) {
	var got models.MessageCreateInput
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/orders/o1/messages", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"m1"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "", "u1").InsertMessage(context.Background(), models.MessageCreateInput{
		OrderID: "o1", SenderID: "u1", SenderType: models.SenderTypeCustomer, Content: "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "hello", got.Content)
	require.Equal(t, models.SenderTypeCustomer, got.SenderType)
}

func TestClient_ErrorBodySurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"content is required"}`))
	}))
	defer srv.Close()

	err := New(srv.URL, "", "u1").InsertMessage(context.Background(), models.MessageCreateInput{OrderID: "o1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "content is required")
}

func TestClient_CurrentUserID(t *testing.T) {
	id, ok := New("", "", "u1").CurrentUserID(context.Background())
	require.True(t, ok)
	require.Equal(t, "u1", id)

	_, ok = New("", "", "").CurrentUserID(context.Background())
	require.False(t, ok)
}
