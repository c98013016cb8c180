package resthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/WashTrack/internal/integrations/backend"
	"github.com/BearBump/WashTrack/internal/models"
	"github.com/pkg/errors"
)

const UserIDHeader = "X-User-ID"

// Client talks to the washtrack-api HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	userID  string
	httpc   *http.Client
}

func New(baseURL, apiKey, userID string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		userID:  userID,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) CurrentUserID(context.Context) (string, bool) {
	return c.userID, c.userID != ""
}

func (c *Client) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

type messagesResp struct {
	Messages []*models.Message `json:"messages"`
}

func (c *Client) GetMessages(ctx context.Context, orderID string) ([]*models.Message, error) {
	var r messagesResp
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderID)+"/messages", nil, &r); err != nil {
		return nil, err
	}
	return r.Messages, nil
}

func (c *Client) InsertMessage(ctx context.Context, in models.MessageCreateInput) error {
	return c.do(ctx, http.MethodPost, "/v1/orders/"+url.PathEscape(in.OrderID)+"/messages", in, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u = u.JoinPath(path)

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal body")
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.userID != "" {
		req.Header.Set(UserIDHeader, c.userID)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return backend.ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return fmt.Errorf("washtrack api http %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("washtrack api http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}
