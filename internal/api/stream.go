package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wayfarer/social-service/internal/app"
	"github.com/wayfarer/social-service/pkg/changefeed"
)

const streamHeartbeat = 25 * time.Second

// StreamHandler pushes the caller's user record over Server-Sent Events
// whenever something they can see changes.
type StreamHandler struct {
	users     *app.UserService
	feed      changefeed.Feed
	logger    *slog.Logger
	heartbeat time.Duration
}

func NewStreamHandler(users *app.UserService, feed changefeed.Feed, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{users: users, feed: feed, logger: logger, heartbeat: streamHeartbeat}
}

// ServeHTTP handles GET /me/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || h.feed == nil {
		writeMessage(w, http.StatusNotImplemented, "Streaming is not supported")
		return
	}

	ctx := r.Context()
	clerkID := clerkUserID(r)
	logger := h.logger.With("clerk_user_id", clerkID, "request_id", requestID(r))

	changes, cancel, err := h.feed.Subscribe(ctx, changefeed.UserTopic(clerkID))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := h.sendUser(w, r, clerkID); err != nil {
		logger.Warn("stream write failed", "error", err)
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, open := <-changes:
			if !open {
				return
			}
			if err := h.sendUser(w, r, clerkID); err != nil {
				logger.Warn("stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

// sendUser writes one "user" event. The data is null while no record exists.
func (h *StreamHandler) sendUser(w http.ResponseWriter, r *http.Request, clerkID string) error {
	user, err := h.users.GetCurrentUser(r.Context(), clerkID)
	if err != nil {
		return err
	}
	blob, err := json.Marshal(user)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: user\ndata: %s\n\n", blob)
	return err
}
