package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/wayfarer/social-service/internal/domain"
	"github.com/wayfarer/social-service/internal/store"
	"github.com/wayfarer/social-service/pkg/changefeed"
	"github.com/wayfarer/social-service/pkg/rabbitmq"
)

// Notification types stored for the in-app inbox.
const (
	NotificationFriendRequest   = "friend_request"
	NotificationFriendAccepted  = "friend_accepted"
	NotificationJoinRequest     = "group_join_request"
	NotificationMembershipState = "group_membership"
	NotificationGroupMessage    = "group_message"
)

// NotificationHandler turns social events into inbox notifications.
type NotificationHandler struct {
	repo   store.Repository
	notify changeNotifier
	logger *slog.Logger
	now    func() time.Time
}

func NewNotificationHandler(repo store.Repository, feed changefeed.Feed, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		repo:   repo,
		notify: changeNotifier{feed: feed, users: repo, logger: logger},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Bindings maps each consumed routing key to its handler.
func (h *NotificationHandler) Bindings() map[string]rabbitmq.Handler {
	return map[string]rabbitmq.Handler{
		domain.EventFriendRequested:        h.HandleFriendRequested,
		domain.EventFriendAccepted:         h.HandleFriendAccepted,
		domain.EventGroupJoinRequested:     h.HandleGroupJoinRequested,
		domain.EventGroupMembershipDecided: h.HandleGroupMembershipDecided,
		domain.EventGroupMessagePosted:     h.HandleGroupMessagePosted,
	}
}

func (h *NotificationHandler) HandleFriendRequested(ctx context.Context, body []byte) bool {
	var event domain.FriendEvent
	if !h.decode(domain.EventFriendRequested, body, &event) {
		return true
	}
	return h.deliver(ctx, NotificationFriendRequest, event.EventID, event, event.ToUserID)
}

func (h *NotificationHandler) HandleFriendAccepted(ctx context.Context, body []byte) bool {
	var event domain.FriendEvent
	if !h.decode(domain.EventFriendAccepted, body, &event) {
		return true
	}
	return h.deliver(ctx, NotificationFriendAccepted, event.EventID, event, event.ToUserID)
}

func (h *NotificationHandler) HandleGroupJoinRequested(ctx context.Context, body []byte) bool {
	var event domain.GroupJoinRequestedEvent
	if !h.decode(domain.EventGroupJoinRequested, body, &event) {
		return true
	}
	return h.deliver(ctx, NotificationJoinRequest, event.EventID, event, event.HostUserID)
}

func (h *NotificationHandler) HandleGroupMembershipDecided(ctx context.Context, body []byte) bool {
	var event domain.GroupMembershipDecidedEvent
	if !h.decode(domain.EventGroupMembershipDecided, body, &event) {
		return true
	}
	return h.deliver(ctx, NotificationMembershipState, event.EventID, event, event.UserID)
}

// HandleGroupMessagePosted notifies every approved member except the author.
func (h *NotificationHandler) HandleGroupMessagePosted(ctx context.Context, body []byte) bool {
	var event domain.GroupMessagePostedEvent
	if !h.decode(domain.EventGroupMessagePosted, body, &event) {
		return true
	}
	members, err := h.repo.ListMembers(ctx, event.GroupID)
	if err != nil {
		h.logger.Error("failed to list group members", "group_id", event.GroupID, "error", err)
		return false
	}
	var recipients []string
	for _, m := range members {
		if m.JoinStatus == domain.JoinApproved && m.UserID != event.AuthorID {
			recipients = append(recipients, m.UserID)
		}
	}
	return h.deliver(ctx, NotificationGroupMessage, event.EventID, event, recipients...)
}

// decode reports false for payloads that can never be processed; those are
// acknowledged and dropped.
func (h *NotificationHandler) decode(routingKey string, body []byte, out interface{}) bool {
	if err := json.Unmarshal(body, out); err != nil {
		h.logger.Error("malformed event payload", "event_type", routingKey, "error", err)
		return false
	}
	return true
}

// deliver writes one notification per recipient. Redelivering an event with
// an id rewrites the same notification ids, which the store ignores.
func (h *NotificationHandler) deliver(ctx context.Context, kind, eventID string, event interface{}, recipients ...string) bool {
	payload, err := toPayload(event)
	if err != nil {
		h.logger.Error("failed to encode notification payload", "type", kind, "error", err)
		return true
	}
	for _, userID := range recipients {
		if userID == "" {
			continue
		}
		notification := &domain.Notification{
			ID:        notificationID(kind, eventID, userID),
			UserID:    userID,
			Type:      kind,
			Payload:   payload,
			CreatedAt: h.now(),
		}
		if err := h.repo.CreateNotification(ctx, notification); err != nil {
			h.logger.Error("failed to create notification", "type", kind, "user_id", userID, "error", err)
			return false
		}
	}
	h.notify.userIDs(ctx, recipients...)
	return true
}

// notificationNamespace seeds the name-based ids of event notifications.
var notificationNamespace = uuid.MustParse("6f1c9a52-7d0e-4c8b-9a43-2f5e8b1d0c77")

func notificationID(kind, eventID, userID string) string {
	if eventID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(notificationNamespace, []byte(kind+"/"+eventID+"/"+userID)).String()
}

func toPayload(event interface{}) (map[string]any, error) {
	blob, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(blob, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// LocalPublisher delivers events straight to in-process handlers. It stands
// in for RabbitMQ when no broker is configured. Events nobody handles locally
// go to the logging fallback producer.
type LocalPublisher struct {
	bindings map[string]rabbitmq.Handler
	unbound  rabbitmq.Publisher
	logger   *slog.Logger
}

func NewLocalPublisher(bindings map[string]rabbitmq.Handler, logger *slog.Logger) *LocalPublisher {
	return &LocalPublisher{bindings: bindings, unbound: &rabbitmq.EventProducerFallback{}, logger: logger}
}

func (p *LocalPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	handler, ok := p.bindings[routingKey]
	if !ok {
		return p.unbound.Publish(ctx, exchange, routingKey, body)
	}
	blob, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if !handler(ctx, blob) {
		p.logger.Warn("local event handler failed", "event_type", routingKey)
		return errLocalDelivery
	}
	return nil
}

func (p *LocalPublisher) Close() {}

var _ rabbitmq.Publisher = (*LocalPublisher)(nil)
