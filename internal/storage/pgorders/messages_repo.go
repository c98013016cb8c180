package pgorders

import (
	"context"
	"time"

	"github.com/BearBump/WashTrack/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

func (s *Storage) InsertMessage(ctx context.Context, in models.MessageCreateInput) (*models.Message, error) {
	m := &models.Message{
		ID:           uuid.NewString(),
		OrderID:      in.OrderID,
		SenderID:     in.SenderID,
		SenderType:   in.SenderType,
		Content:      in.Content,
		IsQuickReply: in.IsQuickReply,
		CreatedAt:    time.Now().UTC(),
	}

	tag, err := s.db.Exec(ctx, `
INSERT INTO messages (id, order_id, sender_id, sender_type, content, is_quick_reply, created_at)
SELECT $1,$2,$3,$4,$5,$6,$7
WHERE EXISTS (SELECT 1 FROM orders WHERE id = $2)
`, m.ID, m.OrderID, m.SenderID, m.SenderType, m.Content, m.IsQuickReply, m.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "insert message")
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return m, nil
}

// ListMessages возвращает всю историю заказа по возрастанию created_at.
func (s *Storage) ListMessages(ctx context.Context, orderID string) ([]*models.Message, error) {
	rows, err := s.db.Query(ctx, `
SELECT id::text, order_id, sender_id, sender_type, content, is_quick_reply, created_at, read_at
FROM messages
WHERE order_id = $1
ORDER BY created_at ASC, id ASC
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select messages")
	}
	defer rows.Close()

	out := []*models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(
			&m.ID, &m.OrderID, &m.SenderID, &m.SenderType,
			&m.Content, &m.IsQuickReply, &m.CreatedAt, &m.ReadAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		out = append(out, &m)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// MarkMessagesRead проставляет read_at сообщениям, отправленным не reader'ом.
func (s *Storage) MarkMessagesRead(ctx context.Context, orderID string, reader models.SenderType, at time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE messages SET read_at = $3
WHERE order_id = $1 AND sender_type <> $2 AND read_at IS NULL
`, orderID, reader, at.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "mark messages read")
	}
	return tag.RowsAffected(), nil
}
