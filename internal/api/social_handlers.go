package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wayfarer/social-service/internal/app"
	"github.com/wayfarer/social-service/internal/domain"
)

// SocialHandlers exposes presence, trips, friends, groups, messages and notifications.
type SocialHandlers struct {
	social *app.SocialService
	logger *slog.Logger
}

func NewSocialHandlers(social *app.SocialService, logger *slog.Logger) *SocialHandlers {
	return &SocialHandlers{social: social, logger: logger}
}

type friendRequestBody struct {
	UserID string `json:"user_id"`
}

type joinRequestBody struct {
	IntroText string `json:"intro_text"`
}

type decisionBody struct {
	Approve *bool `json:"approve"`
}

type messageBody struct {
	Content string `json:"content"`
}

func (h *SocialHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, h.logger, r, err)
}

// parseID returns raw in canonical uuid form.
func parseID(raw string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// pathID reads a uuid route parameter and answers 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, param, kind string) (string, bool) {
	id, ok := parseID(chi.URLParam(r, param))
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid "+kind+" ID format")
	}
	return id, ok
}

func (h *SocialHandlers) GetPresence(w http.ResponseWriter, r *http.Request) {
	presence, err := h.social.GetCurrentPresence(r.Context(), clerkUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if presence == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, presence)
}

func (h *SocialHandlers) UpdatePresence(w http.ResponseWriter, r *http.Request) {
	var update domain.PresenceUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		h.fail(w, r, err)
		return
	}
	presence, err := h.social.UpdatePresence(r.Context(), clerkUserID(r), update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, presence)
}

func (h *SocialHandlers) ListPresence(w http.ResponseWriter, r *http.Request) {
	entries, err := h.social.ListPresenceInCity(r.Context(), clerkUserID(r), r.URL.Query().Get("city"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

func (h *SocialHandlers) ListTrips(w http.ResponseWriter, r *http.Request) {
	trips, err := h.social.ListTrips(r.Context(), clerkUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(trips))
}

func (h *SocialHandlers) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var req domain.TripRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	trip, err := h.social.CreateTrip(r.Context(), clerkUserID(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

func (h *SocialHandlers) ListFriends(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	direction := domain.FriendDirection(strings.TrimSpace(query.Get("direction")))
	status := domain.FriendStatus(strings.TrimSpace(query.Get("status")))
	friends, err := h.social.ListFriends(r.Context(), clerkUserID(r), direction, status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(friends))
}

func (h *SocialHandlers) RequestFriend(w http.ResponseWriter, r *http.Request) {
	var body friendRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	friendID, ok := parseID(body.UserID)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid user ID format")
		return
	}
	edge, err := h.social.RequestFriend(r.Context(), clerkUserID(r), friendID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (h *SocialHandlers) AcceptFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID", "user")
	if !ok {
		return
	}
	edge, err := h.social.AcceptFriend(r.Context(), clerkUserID(r), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

func (h *SocialHandlers) BlockUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID", "user")
	if !ok {
		return
	}
	edge, err := h.social.BlockUser(r.Context(), clerkUserID(r), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

func (h *SocialHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req domain.GroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	group, err := h.social.CreateGroup(r.Context(), clerkUserID(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (h *SocialHandlers) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.social.ListGroupsInCity(r.Context(), clerkUserID(r), r.URL.Query().Get("city"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(groups))
}

func (h *SocialHandlers) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID", "group")
	if !ok {
		return
	}
	detail, err := h.social.GetGroup(r.Context(), clerkUserID(r), groupID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *SocialHandlers) RequestToJoin(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID", "group")
	if !ok {
		return
	}
	var body joinRequestBody
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	member, err := h.social.RequestToJoin(r.Context(), clerkUserID(r), groupID, body.IntroText)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *SocialHandlers) DecideMembership(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID", "group")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID", "user")
	if !ok {
		return
	}
	var body decisionBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if body.Approve == nil {
		writeMessage(w, http.StatusBadRequest, "approve is required")
		return
	}
	group, err := h.social.DecideMembership(r.Context(), clerkUserID(r), groupID, userID, *body.Approve)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *SocialHandlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID", "group")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID", "user")
	if !ok {
		return
	}
	group, err := h.social.RemoveMember(r.Context(), clerkUserID(r), groupID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (h *SocialHandlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID", "group")
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = parsed
	}
	messages, err := h.social.ListMessages(r.Context(), clerkUserID(r), groupID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(messages))
}

func (h *SocialHandlers) PostMessage(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID", "group")
	if !ok {
		return
	}
	var body messageBody
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	message, err := h.social.PostMessage(r.Context(), clerkUserID(r), groupID, body.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, message)
}

func (h *SocialHandlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	notifications, err := h.social.ListNotifications(r.Context(), clerkUserID(r), unreadOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(notifications))
}

func (h *SocialHandlers) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	notificationID, ok := pathID(w, r, "notificationID", "notification")
	if !ok {
		return
	}
	if err := h.social.MarkNotificationRead(r.Context(), clerkUserID(r), notificationID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SocialHandlers) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	updated, err := h.social.MarkAllNotificationsRead(r.Context(), clerkUserID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
