package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/wayfarer/social-service/internal/domain"
)

const friendColumns = `id, user_id, friend_user_id, status, created_at, updated_at`

func scanFriend(row pgx.Row) (*domain.Friend, error) {
	var f domain.Friend
	if err := row.Scan(&f.ID, &f.UserID, &f.FriendUserID, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *PostgresRepository) GetFriendEdge(ctx context.Context, userID, friendUserID string) (*domain.Friend, error) {
	defer observeDB(ctx, "friends.get_edge")()
	row := r.db.QueryRow(ctx, `SELECT `+friendColumns+` FROM friends WHERE user_id = $1 AND friend_user_id = $2`, userID, friendUserID)
	f, err := scanFriend(row)
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return f, nil
}

func (r *PostgresRepository) SaveFriendEdges(ctx context.Context, edges []domain.Friend, events ...OutboxEvent) error {
	defer observeDB(ctx, "friends.save_edges")()
	return r.withTx(ctx, func(tx pgx.Tx) error {
		for _, edge := range edges {
			if _, err := tx.Exec(ctx, `
				INSERT INTO friends (`+friendColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (user_id, friend_user_id)
				DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
			`, edge.ID, edge.UserID, edge.FriendUserID, edge.Status, edge.CreatedAt, edge.UpdatedAt); err != nil {
				return err
			}
		}
		return enqueueEventsTx(ctx, tx, events)
	})
}

// ListFriendEdges returns the user's edges in one direction, filtered by status when one is given.
func (r *PostgresRepository) ListFriendEdges(ctx context.Context, userID string, direction domain.FriendDirection, status domain.FriendStatus) ([]domain.Friend, error) {
	defer observeDB(ctx, "friends.list_edges")()
	filter := `user_id = $1`
	if direction == domain.FriendIncoming {
		filter = `friend_user_id = $1 AND status <> 'blocked'`
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+friendColumns+`
		FROM friends
		WHERE `+filter+` AND ($2 = '' OR status = $2)
		ORDER BY created_at
	`, userID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []domain.Friend
	for rows.Next() {
		f, err := scanFriend(rows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, *f)
	}
	return edges, rows.Err()
}
