package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wayfarer/social-service/internal/domain"
)

const groupColumns = `id, host_user_id, city, country, title, description, tags, window_start, window_end,
	capacity_min, capacity_max, composition, visibility, status, created_at, updated_at`

func scanGroup(row pgx.Row) (*domain.Group, error) {
	var (
		g           domain.Group
		composition []byte
	)
	if err := row.Scan(&g.ID, &g.HostUserID, &g.City, &g.Country, &g.Title, &g.Description, &g.Tags,
		&g.StartDate, &g.EndDate, &g.CapacityMin, &g.CapacityMax, &composition, &g.Visibility,
		&g.Status, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	if len(composition) > 0 {
		if err := json.Unmarshal(composition, &g.Composition); err != nil {
			return nil, err
		}
	}
	return &g, nil
}

const memberColumns = `id, group_id, user_id, role, join_status, intro_text, created_at, updated_at`

func scanMember(row pgx.Row) (*domain.GroupMember, error) {
	var m domain.GroupMember
	if err := row.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Role, &m.JoinStatus, &m.IntroText, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func insertMemberTx(ctx context.Context, tx pgx.Tx, m *domain.GroupMember) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO group_members (`+memberColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.GroupID, m.UserID, m.Role, m.JoinStatus, m.IntroText, m.CreatedAt, m.UpdatedAt)
	if uniqueViolation(err) != "" {
		return ErrConflict
	}
	return err
}

func (r *PostgresRepository) CreateGroup(ctx context.Context, group *domain.Group, host *domain.GroupMember, events ...OutboxEvent) error {
	defer observeDB(ctx, "groups.create")()

	composition, err := json.Marshal(group.Composition)
	if err != nil {
		return err
	}
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO groups (`+groupColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13, $14, $15, $16)
		`, group.ID, group.HostUserID, group.City, group.Country, group.Title, group.Description, group.Tags,
			group.StartDate, group.EndDate, group.CapacityMin, group.CapacityMax, string(composition),
			group.Visibility, group.Status, group.CreatedAt, group.UpdatedAt); err != nil {
			return err
		}
		if err := insertMemberTx(ctx, tx, host); err != nil {
			return err
		}
		return enqueueEventsTx(ctx, tx, events)
	})
}

func (r *PostgresRepository) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	defer observeDB(ctx, "groups.get")()
	g, err := scanGroup(r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return g, nil
}

// ListGroupsByCity returns open and full groups in the city whose window has not ended.
func (r *PostgresRepository) ListGroupsByCity(ctx context.Context, city string, now time.Time) ([]domain.Group, error) {
	defer observeDB(ctx, "groups.list_by_city")()
	rows, err := r.db.Query(ctx, `
		SELECT `+groupColumns+`
		FROM groups
		WHERE city = $1 AND status <> 'closed' AND window_end >= $2
		ORDER BY window_start
	`, city, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func (r *PostgresRepository) GetMember(ctx context.Context, groupID, userID string) (*domain.GroupMember, error) {
	defer observeDB(ctx, "group_members.get")()
	m, err := scanMember(r.db.QueryRow(ctx, `SELECT `+memberColumns+` FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID))
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return m, nil
}

func (r *PostgresRepository) ListMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error) {
	defer observeDB(ctx, "group_members.list")()
	rows, err := r.db.Query(ctx, `SELECT `+memberColumns+` FROM group_members WHERE group_id = $1 ORDER BY created_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.GroupMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (r *PostgresRepository) CreateMember(ctx context.Context, member *domain.GroupMember, events ...OutboxEvent) error {
	defer observeDB(ctx, "group_members.create")()
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertMemberTx(ctx, tx, member); err != nil {
			return err
		}
		return enqueueEventsTx(ctx, tx, events)
	})
}

// SetMemberStatus locks the group row so concurrent approvals cannot exceed capacity.
func (r *PostgresRepository) SetMemberStatus(
	ctx context.Context,
	groupID, userID string,
	status domain.JoinStatus,
	now time.Time,
	events ...OutboxEvent,
) (*domain.Group, error) {
	defer observeDB(ctx, "group_members.set_status")()

	var updated *domain.Group
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		group, err := scanGroup(tx.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1 FOR UPDATE`, groupID))
		if err != nil {
			return notFound(err, ErrNotFound)
		}

		var approved int
		if err := tx.QueryRow(ctx, `
			SELECT COUNT(1) FROM group_members
			WHERE group_id = $1 AND join_status = 'approved' AND user_id <> $2
		`, groupID, userID).Scan(&approved); err != nil {
			return err
		}
		if status == domain.JoinApproved && approved >= group.CapacityMax {
			return ErrGroupFull
		}

		tag, err := tx.Exec(ctx, `
			UPDATE group_members SET join_status = $1, updated_at = $2
			WHERE group_id = $3 AND user_id = $4
		`, status, now, groupID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if status == domain.JoinApproved {
			approved++
		}
		next := nextGroupStatus(group.Status, approved, group.CapacityMax)
		if next != group.Status {
			if _, err := tx.Exec(ctx, `UPDATE groups SET status = $1, updated_at = $2 WHERE id = $3`, next, now, groupID); err != nil {
				return err
			}
			group.Status = next
			group.UpdatedAt = now
		}
		updated = group
		return enqueueEventsTx(ctx, tx, events)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// nextGroupStatus derives open/full from the approved headcount. Closed is terminal.
func nextGroupStatus(current domain.GroupStatus, approved, capacityMax int) domain.GroupStatus {
	if current == domain.GroupClosed {
		return current
	}
	if approved >= capacityMax {
		return domain.GroupFull
	}
	return domain.GroupOpen
}

func (r *PostgresRepository) CloseExpiredGroups(ctx context.Context, now time.Time) (int64, error) {
	defer observeDB(ctx, "groups.close_expired")()
	tag, err := r.db.Exec(ctx, `
		UPDATE groups SET status = 'closed', updated_at = $1
		WHERE status <> 'closed' AND window_end < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) CreateMessage(ctx context.Context, message *domain.Message, events ...OutboxEvent) error {
	defer observeDB(ctx, "messages.create")()
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO messages (id, group_id, user_id, content, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, message.ID, message.GroupID, message.UserID, message.Content, message.CreatedAt); err != nil {
			return err
		}
		return enqueueEventsTx(ctx, tx, events)
	})
}

// ListMessages returns the newest limit messages, oldest first.
func (r *PostgresRepository) ListMessages(ctx context.Context, groupID string, limit int) ([]domain.Message, error) {
	defer observeDB(ctx, "messages.list")()
	rows, err := r.db.Query(ctx, `
		SELECT id, group_id, user_id, content, created_at FROM (
			SELECT id, group_id, user_id, content, created_at
			FROM messages
			WHERE group_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at
	`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
