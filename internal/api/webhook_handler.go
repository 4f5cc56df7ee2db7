package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/wayfarer/social-service/internal/app"
	"github.com/wayfarer/social-service/internal/domain"
	"github.com/wayfarer/social-service/internal/metrics"
)

const maxWebhookBodyBytes = 1 << 20

const webhookErrorBody = "Webhook error"

// UserCreator is the part of the user service the webhook needs.
type UserCreator interface {
	CreateUser(ctx context.Context, input app.CreateUserInput) (string, error)
}

// ClerkWebhookHandler keeps the user table in step with the identity provider.
type ClerkWebhookHandler struct {
	users    UserCreator
	verifier *svixVerifier
	dedup    Deduper
	logger   *slog.Logger
}

// NewClerkWebhookHandler builds the handler. An empty secret disables signature
// verification, which is only meant for local development.
func NewClerkWebhookHandler(users UserCreator, secret string, dedup Deduper, logger *slog.Logger) (*ClerkWebhookHandler, error) {
	verifier, err := newSvixVerifier(secret)
	if err != nil {
		return nil, err
	}
	if verifier == nil {
		logger.Warn("CLERK_WEBHOOK_SECRET is not set; webhook signatures will not be verified")
	}
	if dedup == nil {
		dedup = NewMemoryDeduper()
	}
	return &ClerkWebhookHandler{users: users, verifier: verifier, dedup: dedup, logger: logger}, nil
}

// ServeHTTP implements the http.Handler interface.
func (h *ClerkWebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With("request_id", requestID(r))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		logger.Warn("failed to read webhook body", "error", err)
		metrics.RecordWebhookEvent("unknown", "error")
		writeText(w, http.StatusBadRequest, webhookErrorBody)
		return
	}

	if h.verifier != nil {
		if err := h.verifier.verify(r.Header, body); err != nil {
			logger.Warn("rejected webhook signature", "error", err)
			metrics.RecordWebhookEvent("unknown", "invalid_signature")
			writeText(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	event, err := decodeWebhookEvent(body)
	if err != nil {
		logger.Warn("failed to decode webhook payload", "error", err)
		metrics.RecordWebhookEvent("unknown", "error")
		writeText(w, http.StatusBadRequest, webhookErrorBody)
		return
	}
	logger = logger.With("event_type", event.Type, "clerk_user_id", event.Data.ID)

	id := deliveryID(r.Header)
	if id != "" {
		first, err := h.dedup.Claim(r.Context(), id)
		if err != nil {
			// CreateUser is idempotent; process anyway.
			logger.Warn("webhook dedup unavailable", "error", err)
			first = true
		}
		if !first {
			logger.Info("duplicate webhook delivery ignored", "delivery_id", id)
			metrics.RecordWebhookEvent(event.Type, "duplicate")
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	if err := h.handle(r.Context(), logger, event); err != nil {
		logger.Error("webhook handling failed", "error", err)
		if id != "" {
			if releaseErr := h.dedup.Release(r.Context(), id); releaseErr != nil {
				logger.Warn("failed to release webhook delivery", "error", releaseErr)
			}
		}
		metrics.RecordWebhookEvent(event.Type, "error")
		writeText(w, http.StatusBadRequest, webhookErrorBody)
		return
	}

	metrics.RecordWebhookEvent(event.Type, "ok")
	w.WriteHeader(http.StatusOK)
}

func (h *ClerkWebhookHandler) handle(ctx context.Context, logger *slog.Logger, event domain.ClerkWebhookEvent) error {
	switch event.Type {
	case domain.ClerkUserCreated, domain.ClerkUserUpdated:
		if event.Data.ID == "" {
			return errors.New("webhook payload has no user id")
		}
		userID, err := h.users.CreateUser(ctx, app.CreateUserInput{
			ClerkUserID: event.Data.ID,
			Email:       event.Data.PrimaryEmail(),
			DisplayName: event.Data.DisplayName(),
		})
		if err != nil {
			return err
		}
		logger.Info("user synced from webhook", "user_id", userID)
	case domain.ClerkUserDeleted:
		logger.Info("user deleted upstream; record kept")
	default:
		logger.Info("ignoring webhook event")
	}
	return nil
}

var errEmptyWebhookPayload = errors.New("webhook payload is null")

// decodeWebhookEvent rejects a JSON null as well as malformed JSON.
func decodeWebhookEvent(body []byte) (domain.ClerkWebhookEvent, error) {
	var event *domain.ClerkWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return domain.ClerkWebhookEvent{}, err
	}
	if event == nil {
		return domain.ClerkWebhookEvent{}, errEmptyWebhookPayload
	}
	return *event, nil
}
