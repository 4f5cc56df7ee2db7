package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wayfarer/social-service/internal/domain"
)

const presenceColumns = `id, user_id, city, country, status, visibility, updated_at`

func scanPresence(row pgx.Row) (*domain.Presence, error) {
	var p domain.Presence
	if err := row.Scan(&p.ID, &p.UserID, &p.City, &p.Country, &p.Status, &p.Visibility, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func insertPresenceTx(ctx context.Context, tx pgx.Tx, p *domain.Presence) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO presence (id, user_id, city, country, status, visibility, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, p.UserID, p.City, p.Country, p.Status, p.Visibility, p.UpdatedAt)
	return err
}

// AppendPresence adds a history row. Earlier rows are never modified.
func (r *PostgresRepository) AppendPresence(ctx context.Context, presence *domain.Presence, events ...OutboxEvent) error {
	defer observeDB(ctx, "presence.append")()
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertPresenceTx(ctx, tx, presence); err != nil {
			return err
		}
		return enqueueEventsTx(ctx, tx, events)
	})
}

func (r *PostgresRepository) LatestPresence(ctx context.Context, userID string) (*domain.Presence, error) {
	defer observeDB(ctx, "presence.latest")()
	row := r.db.QueryRow(ctx, `
		SELECT `+presenceColumns+`
		FROM presence
		WHERE user_id = $1
		ORDER BY updated_at DESC, seq DESC
		LIMIT 1
	`, userID)
	p, err := scanPresence(row)
	if err != nil {
		return nil, notFound(err, ErrNotFound)
	}
	return p, nil
}

func (r *PostgresRepository) LatestPresenceInCity(ctx context.Context, city string) ([]domain.Presence, error) {
	defer observeDB(ctx, "presence.latest_in_city")()
	rows, err := r.db.Query(ctx, `
		SELECT `+presenceColumns+` FROM (
			SELECT DISTINCT ON (user_id) `+presenceColumns+`
			FROM presence
			WHERE user_id IN (SELECT user_id FROM presence WHERE city = $1)
			ORDER BY user_id, updated_at DESC, seq DESC
		) latest
		WHERE city = $1 AND visibility <> 'private'
		ORDER BY updated_at DESC
	`, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Presence
	for rows.Next() {
		p, err := scanPresence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

const tripColumns = `id, user_id, city, country, start_date, end_date, visibility, is_current, created_at, updated_at`

func (r *PostgresRepository) CreateTrip(ctx context.Context, trip *domain.Trip) error {
	defer observeDB(ctx, "trips.create")()
	_, err := r.db.Exec(ctx, `
		INSERT INTO trips (`+tripColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, trip.ID, trip.UserID, trip.City, trip.Country, trip.StartDate, trip.EndDate,
		trip.Visibility, trip.IsCurrent, trip.CreatedAt, trip.UpdatedAt)
	return err
}

func (r *PostgresRepository) ListTripsByUser(ctx context.Context, userID string) ([]domain.Trip, error) {
	defer observeDB(ctx, "trips.list_by_user")()
	rows, err := r.db.Query(ctx, `SELECT `+tripColumns+` FROM trips WHERE user_id = $1 ORDER BY start_date`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []domain.Trip
	for rows.Next() {
		var t domain.Trip
		if err := rows.Scan(&t.ID, &t.UserID, &t.City, &t.Country, &t.StartDate, &t.EndDate,
			&t.Visibility, &t.IsCurrent, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// RefreshCurrentTrips flips is_current on trips whose window started or ended.
func (r *PostgresRepository) RefreshCurrentTrips(ctx context.Context, now time.Time) (int64, error) {
	defer observeDB(ctx, "trips.refresh_current")()
	tag, err := r.db.Exec(ctx, `
		UPDATE trips
		SET is_current = ($1 BETWEEN start_date AND end_date), updated_at = $1
		WHERE is_current <> ($1 BETWEEN start_date AND end_date)
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
