package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/wayfarer/social-service/internal/domain"
)

const userColumns = `id, clerk_user_id, handle, display_name, email, bio, avatar_url, home_city,
	languages, interests, settings, onboarding_complete, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user     domain.User
		settings []byte
	)
	if err := row.Scan(
		&user.ID,
		&user.ClerkUserID,
		&user.Handle,
		&user.DisplayName,
		&user.Email,
		&user.Bio,
		&user.AvatarURL,
		&user.HomeCity,
		&user.Languages,
		&user.Interests,
		&settings,
		&user.OnboardingComplete,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		var decoded domain.UserSettings
		if err := json.Unmarshal(settings, &decoded); err != nil {
			log.Printf("level=warn component=store msg=\"invalid user settings\" user_id=%s err=%v", user.ID, err)
		} else {
			user.Settings = &decoded
		}
	}
	return &user, nil
}

func (r *PostgresRepository) FindByClerkUserID(ctx context.Context, clerkUserID string) (*domain.User, error) {
	defer observeDB(ctx, "users.find_by_clerk_id")()
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE clerk_user_id = $1`, strings.TrimSpace(clerkUserID))
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	defer observeDB(ctx, "users.find_by_id")()
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

func (r *PostgresRepository) FindByHandle(ctx context.Context, handle string) (*domain.User, error) {
	defer observeDB(ctx, "users.find_by_handle")()
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE handle = $1`, strings.ToLower(strings.TrimSpace(handle)))
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

// CreateUserIfAbsent relies on the unique clerk_user_id index, so concurrent
// deliveries for the same identity resolve to a single row.
func (r *PostgresRepository) CreateUserIfAbsent(ctx context.Context, input NewUser, events ...OutboxEvent) (string, bool, error) {
	defer observeDB(ctx, "users.create_if_absent")()

	var (
		userID  string
		created bool
	)
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (id, clerk_user_id, display_name, email, onboarding_complete, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, $5, $5)
			ON CONFLICT (clerk_user_id) DO NOTHING
			RETURNING id
		`, input.ID, input.ClerkUserID, input.DisplayName, input.Email, input.Now).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			return tx.QueryRow(ctx, `SELECT id FROM users WHERE clerk_user_id = $1`, input.ClerkUserID).Scan(&userID)
		}
		if err != nil {
			return err
		}
		created = true
		return enqueueEventsTx(ctx, tx, events)
	})
	if err != nil {
		return "", false, err
	}
	return userID, created, nil
}

// buildUserPatch returns SET clauses numbered from $1 and their arguments.
func buildUserPatch(patch domain.UserPatch) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.DisplayName != nil {
		add("display_name", *patch.DisplayName)
	}
	if patch.Handle != nil {
		add("handle", *patch.Handle)
	}
	if patch.Bio != nil {
		add("bio", *patch.Bio)
	}
	if patch.AvatarURL != nil {
		add("avatar_url", *patch.AvatarURL)
	}
	if patch.HomeCity != nil {
		add("home_city", *patch.HomeCity)
	}
	if patch.Languages != nil {
		add("languages", *patch.Languages)
	}
	if patch.Interests != nil {
		add("interests", *patch.Interests)
	}
	if patch.Settings != nil {
		blob, err := json.Marshal(patch.Settings)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, string(blob))
		sets = append(sets, fmt.Sprintf("settings = $%d::jsonb", len(args)))
	}
	if patch.OnboardingComplete != nil {
		// onboarding never reverts
		args = append(args, *patch.OnboardingComplete)
		sets = append(sets, fmt.Sprintf("onboarding_complete = (onboarding_complete OR $%d)", len(args)))
	}
	return sets, args, nil
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, clerkUserID string, patch domain.UserPatch, now time.Time, events ...OutboxEvent) (*domain.User, error) {
	defer observeDB(ctx, "users.update")()

	sets, args, err := buildUserPatch(patch)
	if err != nil {
		return nil, err
	}
	args = append(args, now)
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, strings.TrimSpace(clerkUserID))
	query := fmt.Sprintf(`UPDATE users SET %s WHERE clerk_user_id = $%d RETURNING %s`, strings.Join(sets, ", "), len(args), userColumns)

	var updated *domain.User
	err = r.withTx(ctx, func(tx pgx.Tx) error {
		user, err := scanUser(tx.QueryRow(ctx, query, args...))
		if err != nil {
			if uniqueViolation(err) != "" {
				return ErrHandleTaken
			}
			return notFound(err, ErrUserNotFound)
		}
		updated = user
		return enqueueEventsTx(ctx, tx, events)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *PostgresRepository) CompleteOnboarding(
	ctx context.Context,
	clerkUserID string,
	req domain.OnboardingRequest,
	seed domain.Presence,
	events ...OutboxEvent,
) (*domain.User, error) {
	defer observeDB(ctx, "users.complete_onboarding")()

	var onboarded *domain.User
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var userID string
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE clerk_user_id = $1 FOR UPDATE`, clerkUserID).Scan(&userID); err != nil {
			return notFound(err, ErrUserNotFound)
		}

		user, err := scanUser(tx.QueryRow(ctx, `
			UPDATE users
			SET handle = $1, home_city = $2, interests = $3, onboarding_complete = TRUE, updated_at = $4
			WHERE id = $5
			RETURNING `+userColumns,
			req.Handle, req.HomeCity, req.Interests, seed.UpdatedAt, userID,
		))
		if err != nil {
			if constraint := uniqueViolation(err); constraint != "" {
				log.Printf("level=info component=store msg=\"handle claim rejected\" constraint=%s", constraint)
				return ErrHandleTaken
			}
			return err
		}

		seed.UserID = userID
		if err := insertPresenceTx(ctx, tx, &seed); err != nil {
			return err
		}
		onboarded = user
		return enqueueEventsTx(ctx, tx, events)
	})
	if err != nil {
		return nil, err
	}
	return onboarded, nil
}
