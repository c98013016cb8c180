package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BearBump/WashTrack/internal/models"
	"github.com/BearBump/WashTrack/internal/services/orders"
	"github.com/BearBump/WashTrack/internal/storage/pgorders"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct{}

func (r *fakeRepo) CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error) {
	return &models.Order{ID: in.ID, CustomerID: in.CustomerID, Status: models.OrderStatusPending}, nil
}
func (r *fakeRepo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if id != "o1" {
		return nil, pgorders.ErrNotFound
	}
	return &models.Order{ID: "o1", CustomerID: "c1", Status: models.OrderStatusAssigned}, nil
}
func (r *fakeRepo) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, eta *time.Time) (*models.Order, error) {
	return &models.Order{ID: id, Status: status, EstimatedArrival: eta}, nil
}
func (r *fakeRepo) InsertMessage(ctx context.Context, in models.MessageCreateInput) (*models.Message, error) {
	return &models.Message{ID: "m1", OrderID: in.OrderID}, nil
}
func (r *fakeRepo) ListMessages(ctx context.Context, orderID string) ([]*models.Message, error) {
	return []*models.Message{}, nil
}
func (r *fakeRepo) MarkMessagesRead(ctx context.Context, orderID string, reader models.SenderType, at time.Time) (int64, error) {
	return 0, nil
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func writeSwagger(t *testing.T) string {
	t.Helper()
	sw := filepath.Join(t.TempDir(), "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))
	return sw
}

func TestRouter_ServesDocsHealthAndOrders(t *testing.T) {
	svc := orders.New(&fakeRepo{}, nil, 0)
	srv := httptest.NewServer(newRouter(apiOpts{swaggerPath: writeSwagger(t)}, svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/swagger.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), `"swagger"`)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/orders/o1")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/orders/missing")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_ReadyzReportsDependency(t *testing.T) {
	svc := orders.New(&fakeRepo{}, nil, 0)
	down := pingerFunc(func(context.Context) error { return errors.New("pg down") })
	srv := httptest.NewServer(newRouter(apiOpts{swaggerPath: writeSwagger(t)}, svc, down))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Contains(t, string(body), "pg down")
}

func TestRunWashtrackAPI_StopsOnCancel(t *testing.T) {
	svc := orders.New(&fakeRepo{}, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runWashtrackAPI(ctx, apiOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: writeSwagger(t),
			onListen:    func(a string) { addrCh <- a },
		}, svc)
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start")
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting server to stop")
	}
}

func TestRunWashtrackAPI_RequiresSwagger(t *testing.T) {
	svc := orders.New(&fakeRepo{}, nil, 0)
	err := runWashtrackAPI(context.Background(), apiOpts{httpAddr: "127.0.0.1:0"}, svc)
	require.Error(t, err)

	err = runWashtrackAPI(context.Background(), apiOpts{httpAddr: "127.0.0.1:0", swaggerPath: "/nope/swagger.json"}, svc)
	require.Error(t, err)
}
