package store

import (
	"context"
	"errors"
	"time"

	"github.com/wayfarer/social-service/internal/domain"
)

var (
	ErrUserNotFound = errors.New("User not found")
	ErrHandleTaken  = errors.New("Handle already taken")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrGroupFull    = errors.New("group is full")
)

// OutboxEvent is an event written to the outbox in the same transaction as
// the state change it describes.
type OutboxEvent struct {
	Exchange   string
	RoutingKey string
	Payload    interface{}
}

type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// NewUser is the input for the create-once user insert.
type NewUser struct {
	ID          string
	ClerkUserID string
	Email       *string
	DisplayName string
	Now         time.Time
}

// UserRepository defines the interface for user data storage.
type UserRepository interface {
	FindByClerkUserID(ctx context.Context, clerkUserID string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByHandle(ctx context.Context, handle string) (*domain.User, error)
	// CreateUserIfAbsent inserts the user unless one already exists for the
	// Clerk id. created is false when the existing id is returned.
	CreateUserIfAbsent(ctx context.Context, input NewUser, events ...OutboxEvent) (id string, created bool, err error)
	UpdateUser(ctx context.Context, clerkUserID string, patch domain.UserPatch, now time.Time, events ...OutboxEvent) (*domain.User, error)
	// CompleteOnboarding claims the handle, marks the user onboarded and
	// appends the seed presence in one transaction.
	CompleteOnboarding(ctx context.Context, clerkUserID string, req domain.OnboardingRequest, seed domain.Presence, events ...OutboxEvent) (*domain.User, error)
}

type PresenceRepository interface {
	AppendPresence(ctx context.Context, presence *domain.Presence, events ...OutboxEvent) error
	LatestPresence(ctx context.Context, userID string) (*domain.Presence, error)
	LatestPresenceInCity(ctx context.Context, city string) ([]domain.Presence, error)
}

type TripRepository interface {
	CreateTrip(ctx context.Context, trip *domain.Trip) error
	ListTripsByUser(ctx context.Context, userID string) ([]domain.Trip, error)
	RefreshCurrentTrips(ctx context.Context, now time.Time) (int64, error)
}

type FriendRepository interface {
	GetFriendEdge(ctx context.Context, userID, friendUserID string) (*domain.Friend, error)
	// SaveFriendEdges upserts edges keyed by (user, friend).
	SaveFriendEdges(ctx context.Context, edges []domain.Friend, events ...OutboxEvent) error
	// ListFriendEdges lists edges from userID, or to userID when direction is
	// incoming. Incoming blocked edges are never listed.
	ListFriendEdges(ctx context.Context, userID string, direction domain.FriendDirection, status domain.FriendStatus) ([]domain.Friend, error)
}

type GroupRepository interface {
	CreateGroup(ctx context.Context, group *domain.Group, host *domain.GroupMember, events ...OutboxEvent) error
	GetGroup(ctx context.Context, id string) (*domain.Group, error)
	ListGroupsByCity(ctx context.Context, city string, now time.Time) ([]domain.Group, error)
	GetMember(ctx context.Context, groupID, userID string) (*domain.GroupMember, error)
	ListMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error)
	CreateMember(ctx context.Context, member *domain.GroupMember, events ...OutboxEvent) error
	// SetMemberStatus updates a membership and recomputes the group's
	// open/full status against its capacity.
	SetMemberStatus(ctx context.Context, groupID, userID string, status domain.JoinStatus, now time.Time, events ...OutboxEvent) (*domain.Group, error)
	CloseExpiredGroups(ctx context.Context, now time.Time) (int64, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, message *domain.Message, events ...OutboxEvent) error
	ListMessages(ctx context.Context, groupID string, limit int) ([]domain.Message, error)
}

type NotificationRepository interface {
	// CreateNotification is a no-op for an id that already exists.
	CreateNotification(ctx context.Context, notification *domain.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
}

type OutboxRepository interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}

// Repository is the full persistence surface used by the service.
type Repository interface {
	UserRepository
	PresenceRepository
	TripRepository
	FriendRepository
	GroupRepository
	MessageRepository
	NotificationRepository
	OutboxRepository
	Ping(ctx context.Context) error
}

var (
	_ Repository = (*PostgresRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)
