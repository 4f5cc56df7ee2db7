/**
 * @description
 * UserService owns the user profile lifecycle: create-once provisioning from
 * the identity provider, profile patches and onboarding. Every operation takes
 * the caller's Clerk user id explicitly.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wayfarer/social-service/internal/domain"
	"github.com/wayfarer/social-service/internal/metrics"
	"github.com/wayfarer/social-service/internal/store"
	"github.com/wayfarer/social-service/pkg/changefeed"
)

var (
	ErrClerkUserIDRequired   = errors.New("clerk user id is required")
	ErrDisplayNameRequired   = errors.New("display name is required")
	ErrOnboardingIrrevocable = errors.New("onboarding cannot be reverted")
)

type UserService struct {
	repo     store.UserRepository
	notify   changeNotifier
	logger   *slog.Logger
	exchange string
	now      func() time.Time
}

func NewUserService(repo store.UserRepository, feed changefeed.Feed, logger *slog.Logger, exchange string) *UserService {
	return &UserService{
		repo:     repo,
		notify:   changeNotifier{feed: feed, users: repo, logger: logger},
		logger:   logger,
		exchange: exchange,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateUserInput carries the identity provider's view of a new user.
type CreateUserInput struct {
	ClerkUserID string
	Email       *string
	DisplayName string
}

// GetUserByClerkID returns the user or nil when none exists. No user has an
// empty Clerk id, so a blank one is answered without a lookup.
func (s *UserService) GetUserByClerkID(ctx context.Context, clerkUserID string) (*domain.User, error) {
	clerkUserID = strings.TrimSpace(clerkUserID)
	if clerkUserID == "" {
		return nil, nil
	}
	user, err := s.repo.FindByClerkUserID(ctx, clerkUserID)
	if errors.Is(err, store.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by clerk id: %w", err)
	}
	return user, nil
}

// GetCurrentUser is GetUserByClerkID for a possibly anonymous caller.
func (s *UserService) GetCurrentUser(ctx context.Context, clerkUserID string) (*domain.User, error) {
	return s.GetUserByClerkID(ctx, clerkUserID)
}

// GetUserByHandle returns store.ErrUserNotFound when no user holds handle.
func (s *UserService) GetUserByHandle(ctx context.Context, handle string) (*domain.User, error) {
	normalized, err := domain.NormalizeHandle(handle)
	if err != nil {
		return nil, store.ErrUserNotFound
	}
	return s.repo.FindByHandle(ctx, normalized)
}

// CreateUser inserts the user unless one already exists for the Clerk id,
// in which case the existing id is returned and nothing is merged.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (string, error) {
	clerkUserID := strings.TrimSpace(input.ClerkUserID)
	if clerkUserID == "" {
		return "", invalid(ErrClerkUserIDRequired)
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		return "", invalid(ErrDisplayNameRequired)
	}
	var email *string
	if input.Email != nil {
		if trimmed := strings.TrimSpace(*input.Email); trimmed != "" {
			email = &trimmed
		}
	}

	newUser := store.NewUser{
		ID:          uuid.NewString(),
		ClerkUserID: clerkUserID,
		Email:       email,
		DisplayName: displayName,
		Now:         s.now(),
	}
	event := store.OutboxEvent{
		Exchange:   s.exchange,
		RoutingKey: domain.EventUserCreated,
		Payload: domain.UserCreatedEvent{
			UserID:      newUser.ID,
			ClerkUserID: clerkUserID,
			DisplayName: displayName,
		},
	}

	id, created, err := s.repo.CreateUserIfAbsent(ctx, newUser, event)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	if created {
		s.logger.Info("user created", "clerk_user_id", clerkUserID, "user_id", id)
		s.notify.clerkUsers(ctx, clerkUserID)
	}
	return id, nil
}

// UpdateUser applies patch to the user and refreshes updatedAt.
func (s *UserService) UpdateUser(ctx context.Context, clerkUserID string, patch domain.UserPatch) (string, error) {
	clerkUserID = strings.TrimSpace(clerkUserID)
	if clerkUserID == "" {
		return "", ErrUnauthenticated
	}
	if err := normalizePatch(&patch); err != nil {
		return "", invalid(err)
	}

	current, err := s.repo.FindByClerkUserID(ctx, clerkUserID)
	if err != nil {
		return "", err
	}
	if patch.OnboardingComplete != nil && !*patch.OnboardingComplete && current.OnboardingComplete {
		return "", invalid(ErrOnboardingIrrevocable)
	}

	// an empty patch only touches updatedAt and announces nothing
	var events []store.OutboxEvent
	if !patch.IsEmpty() {
		events = append(events, store.OutboxEvent{
			Exchange:   s.exchange,
			RoutingKey: domain.EventUserUpdated,
			Payload:    domain.UserUpdatedEvent{UserID: current.ID, ClerkUserID: clerkUserID},
		})
	}
	updated, err := s.repo.UpdateUser(ctx, clerkUserID, patch, s.now(), events...)
	if err != nil {
		return "", err
	}
	s.notify.clerkUsers(ctx, clerkUserID)
	return updated.ID, nil
}

func normalizePatch(patch *domain.UserPatch) error {
	if patch.DisplayName != nil {
		name := strings.TrimSpace(*patch.DisplayName)
		if name == "" {
			return ErrDisplayNameRequired
		}
		patch.DisplayName = &name
	}
	if patch.Handle != nil {
		handle, err := domain.NormalizeHandle(*patch.Handle)
		if err != nil {
			return err
		}
		patch.Handle = &handle
	}
	if patch.HomeCity != nil {
		city := strings.TrimSpace(*patch.HomeCity)
		if city == "" {
			return domain.ErrHomeCityRequired
		}
		patch.HomeCity = &city
	}
	if patch.Interests != nil {
		interests, err := domain.NormalizeInterests(*patch.Interests)
		if err != nil {
			return err
		}
		patch.Interests = &interests
	}
	if patch.Languages != nil {
		languages := make([]string, 0, len(*patch.Languages))
		for _, language := range *patch.Languages {
			if trimmed := strings.TrimSpace(language); trimmed != "" {
				languages = append(languages, trimmed)
			}
		}
		patch.Languages = &languages
	}
	if patch.Settings != nil && patch.Settings.PresenceVisibilityDefault != "" &&
		!patch.Settings.PresenceVisibilityDefault.Valid() {
		return domain.ErrInvalidVisibility
	}
	return nil
}

// CompleteOnboarding claims the handle, records home city and interests,
// marks the user onboarded and seeds a home presence, all in one write.
func (s *UserService) CompleteOnboarding(ctx context.Context, clerkUserID string, req domain.OnboardingRequest) (string, error) {
	clerkUserID = strings.TrimSpace(clerkUserID)
	if clerkUserID == "" {
		return "", ErrUnauthenticated
	}
	if err := req.Normalize(); err != nil {
		return "", invalid(err)
	}

	user, err := s.repo.FindByClerkUserID(ctx, clerkUserID)
	if err != nil {
		return "", err
	}

	now := s.now()
	seed := domain.Presence{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		City:       req.HomeCity,
		Country:    "",
		Status:     domain.PresenceHome,
		Visibility: domain.VisibilityFriends,
		UpdatedAt:  now,
	}
	events := []store.OutboxEvent{
		{
			Exchange:   s.exchange,
			RoutingKey: domain.EventUserOnboarded,
			Payload: domain.UserOnboardedEvent{
				UserID:      user.ID,
				ClerkUserID: clerkUserID,
				Handle:      req.Handle,
				HomeCity:    req.HomeCity,
				Interests:   req.Interests,
			},
		},
		{
			Exchange:   s.exchange,
			RoutingKey: domain.EventPresenceUpdated,
			Payload: domain.PresenceUpdatedEvent{
				UserID:     user.ID,
				PresenceID: seed.ID,
				City:       seed.City,
				Status:     seed.Status,
				Visibility: seed.Visibility,
			},
		},
	}

	updated, err := s.repo.CompleteOnboarding(ctx, clerkUserID, req, seed, events...)
	if err != nil {
		return "", err
	}
	metrics.RecordOnboardingCompleted()
	s.logger.Info("onboarding completed", "clerk_user_id", clerkUserID, "handle", req.Handle)
	s.notify.clerkUsers(ctx, clerkUserID)
	return updated.ID, nil
}
