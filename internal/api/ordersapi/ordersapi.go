package ordersapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/WashTrack/internal/models"
	"github.com/BearBump/WashTrack/internal/services/orders"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

const UserIDHeader = "X-User-ID"

const maxBodyBytes = 64 << 10

type Service interface {
	CreateOrder(ctx context.Context, in models.OrderCreateInput) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListMessages(ctx context.Context, orderID string) ([]*models.Message, error)
	PostMessage(ctx context.Context, in models.MessageCreateInput) (*models.Message, error)
	MarkRead(ctx context.Context, orderID string, reader models.SenderType) (int64, error)
	UpdateStatus(ctx context.Context, orderID string, status models.OrderStatus, estimatedArrival *time.Time) (*models.Order, error)
	ReportLocation(ctx context.Context, orderID string, upd models.LocationUpdate) error
	LastLocation(ctx context.Context, orderID string) (*models.LocationUpdate, error)
}

type OrdersAPI struct {
	svc    Service
	apiKey string
}

func New(svc Service, apiKey string) *OrdersAPI {
	return &OrdersAPI{svc: svc, apiKey: apiKey}
}

// Routes mounts /v1/orders. With an empty apiKey requests are not authenticated.
func (a *OrdersAPI) Routes(r chi.Router) {
	r.Route("/v1/orders", func(r chi.Router) {
		r.Use(a.requireAPIKey)
		r.Post("/", a.createOrder)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getOrder)
			r.Put("/status", a.updateStatus)
			r.Get("/messages", a.listMessages)
			r.Post("/messages", a.postMessage)
			r.Post("/messages/read", a.markRead)
			r.Get("/location", a.lastLocation)
			r.Post("/location", a.reportLocation)
		})
	})
}

func (a *OrdersAPI) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(a.apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type createOrderRequest struct {
	ID         string  `json:"id"`
	CustomerID string  `json:"customer_id"`
	WasherID   *string `json:"washer_id"`
}

func (a *OrdersAPI) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := a.svc.CreateOrder(r.Context(), models.OrderCreateInput{ID: req.ID, CustomerID: req.CustomerID, WasherID: req.WasherID})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (a *OrdersAPI) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := a.svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type updateStatusRequest struct {
	Status           models.OrderStatus `json:"status"`
	EstimatedArrival *time.Time         `json:"estimated_arrival"`
}

func (a *OrdersAPI) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := a.svc.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.EstimatedArrival)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type messagesResponse struct {
	Messages []*models.Message `json:"messages"`
}

func (a *OrdersAPI) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := a.svc.ListMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs})
}

// postMessage: отправитель берётся из X-User-ID, если он передан.
func (a *OrdersAPI) postMessage(w http.ResponseWriter, r *http.Request) {
	var in models.MessageCreateInput
	if !decode(w, r, &in) {
		return
	}
	in.OrderID = chi.URLParam(r, "id")
	if uid := r.Header.Get(UserIDHeader); uid != "" {
		in.SenderID = uid
	}
	m, err := a.svc.PostMessage(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type markReadRequest struct {
	Reader models.SenderType `json:"reader"`
}

func (a *OrdersAPI) markRead(w http.ResponseWriter, r *http.Request) {
	var req markReadRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := a.svc.MarkRead(r.Context(), chi.URLParam(r, "id"), req.Reader)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (a *OrdersAPI) reportLocation(w http.ResponseWriter, r *http.Request) {
	var upd models.LocationUpdate
	if !decode(w, r, &upd) {
		return
	}
	if err := a.svc.ReportLocation(r.Context(), chi.URLParam(r, "id"), upd); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *OrdersAPI) lastLocation(w http.ResponseWriter, r *http.Request) {
	upd, err := a.svc.LastLocation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound), errors.Is(err, orders.ErrNoLocation):
		return http.StatusNotFound
	case errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, orders.ErrInvalidSender),
		errors.Is(err, orders.ErrEmptyMessage),
		errors.Is(err, orders.ErrMessageTooLong),
		errors.Is(err, orders.ErrInvalidPosition),
		errors.Is(err, orders.ErrMissingCustomer),
		errors.Is(err, orders.ErrMissingSender):
		return http.StatusBadRequest
	case errors.Is(err, orders.ErrWasherMismatch):
		return http.StatusForbidden
	case errors.Is(err, orders.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	var rl *orders.RateLimitedError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		secs := int64((rl.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	if code == http.StatusInternalServerError {
		slog.Error("orders api", "error", msg)
		msg = "internal error"
	}
	writeError(w, code, msg)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
