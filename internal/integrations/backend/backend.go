package backend

import (
	"context"

	"github.com/BearBump/WashTrack/internal/models"
	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("not found")

// Backend is the row fetch/write side of the managed backend session.
type Backend interface {
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	// GetMessages returns the order's messages ascending by creation time.
	GetMessages(ctx context.Context, orderID string) ([]*models.Message, error)
	InsertMessage(ctx context.Context, in models.MessageCreateInput) error
}

type Identity interface {
	CurrentUserID(ctx context.Context) (string, bool)
}

// StaticIdentity is a fixed user id; empty means signed out.
type StaticIdentity string

func (s StaticIdentity) CurrentUserID(context.Context) (string, bool) {
	return string(s), s != ""
}
