package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wayfarer/social-service/internal/app"
	"github.com/wayfarer/social-service/internal/domain"
	"github.com/wayfarer/social-service/internal/store"
)

// UserHandlers serves the caller's own profile.
type UserHandlers struct {
	users  *app.UserService
	logger *slog.Logger
}

func NewUserHandlers(users *app.UserService, logger *slog.Logger) *UserHandlers {
	return &UserHandlers{users: users, logger: logger}
}

// publicProfile is what other users may see about someone.
type publicProfile struct {
	ID          string   `json:"id"`
	Handle      *string  `json:"handle,omitempty"`
	DisplayName string   `json:"display_name"`
	Bio         *string  `json:"bio,omitempty"`
	AvatarURL   *string  `json:"avatar_url,omitempty"`
	HomeCity    *string  `json:"home_city,omitempty"`
	Languages   []string `json:"languages,omitempty"`
	Interests   []string `json:"interests,omitempty"`
}

func toPublicProfile(u *domain.User) publicProfile {
	return publicProfile{
		ID:          u.ID,
		Handle:      u.Handle,
		DisplayName: u.DisplayName,
		Bio:         u.Bio,
		AvatarURL:   u.AvatarURL,
		HomeCity:    u.HomeCity,
		Languages:   u.Languages,
		Interests:   u.Interests,
	}
}

func clerkUserID(r *http.Request) string {
	id, _ := GetClerkUserID(r.Context())
	return id
}

// GetMe handles GET /me.
func (h *UserHandlers) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetCurrentUser(r.Context(), clerkUserID(r))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, r, store.ErrUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateMe handles PATCH /me.
func (h *UserHandlers) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch domain.UserPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if _, err := h.users.UpdateUser(r.Context(), clerkUserID(r), patch); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.respondWithCurrentUser(w, r)
}

// CompleteOnboarding handles POST /me/onboarding.
func (h *UserHandlers) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	var req domain.OnboardingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	if _, err := h.users.CompleteOnboarding(r.Context(), clerkUserID(r), req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.respondWithCurrentUser(w, r)
}

// GetByHandle handles GET /users/by-handle/{handle}.
func (h *UserHandlers) GetByHandle(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByHandle(r.Context(), strings.TrimSpace(chi.URLParam(r, "handle")))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicProfile(user))
}

func (h *UserHandlers) respondWithCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetCurrentUser(r.Context(), clerkUserID(r))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, r, store.ErrUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
