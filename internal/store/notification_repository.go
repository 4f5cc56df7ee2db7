package store

import (
	"context"
	"encoding/json"

	"github.com/wayfarer/social-service/internal/domain"
)

// CreateNotification ignores a notification whose id already exists.
func (r *PostgresRepository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	defer observeDB(ctx, "notifications.create")()

	payload := n.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, payload, is_read, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.UserID, n.Type, string(blob), n.IsRead, n.CreatedAt)
	return err
}

func (r *PostgresRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	defer observeDB(ctx, "notifications.list")()
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, type, payload::text, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR is_read = FALSE)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var (
			n           domain.Notification
			payloadText string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &payloadText, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Payload = map[string]any{}
		if payloadText != "" {
			_ = json.Unmarshal([]byte(payloadText), &n.Payload)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	defer observeDB(ctx, "notifications.mark_read")()
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return notFound(err, ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	defer observeDB(ctx, "notifications.mark_all_read")()
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
