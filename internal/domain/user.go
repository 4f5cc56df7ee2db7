package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Visibility controls who can see a user's presence or trip.
type Visibility string

const (
	VisibilityFriends Visibility = "friends"
	VisibilityFOF     Visibility = "fof"
	VisibilityHub     Visibility = "hub"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is one of the known visibility levels.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityFriends, VisibilityFOF, VisibilityHub, VisibilityPrivate:
		return true
	}
	return false
}

const (
	HandleMinLength = 3
	HandleMaxLength = 20
	MaxInterests    = 5
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

var (
	ErrInvalidHandle     = errors.New("handle must be 3-20 characters of a-z, 0-9 or _")
	ErrTooManyInterests  = errors.New("select at most 5 interests")
	ErrBlankInterest     = errors.New("interests cannot be blank")
	ErrHomeCityRequired  = errors.New("home city is required")
	ErrInvalidVisibility = errors.New("invalid visibility")
)

// UserSettings holds per-user privacy preferences.
type UserSettings struct {
	PresenceVisibilityDefault Visibility `json:"presence_visibility_default,omitempty"`
	DMFromStrangers           bool       `json:"dm_from_strangers"`
}

// User is the application-side profile keyed by the identity provider's user id.
type User struct {
	ID                 string        `json:"id"`
	ClerkUserID        string        `json:"clerk_user_id"`
	Handle             *string       `json:"handle,omitempty"`
	DisplayName        string        `json:"display_name"`
	Email              *string       `json:"email,omitempty"`
	Bio                *string       `json:"bio,omitempty"`
	AvatarURL          *string       `json:"avatar_url,omitempty"`
	HomeCity           *string       `json:"home_city,omitempty"`
	Languages          []string      `json:"languages,omitempty"`
	Interests          []string      `json:"interests,omitempty"`
	Settings           *UserSettings `json:"settings,omitempty"`
	OnboardingComplete bool          `json:"onboarding_complete"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// PresenceVisibility returns the visibility new presence rows should default to.
func (u *User) PresenceVisibility() Visibility {
	if u != nil && u.Settings != nil && u.Settings.PresenceVisibilityDefault.Valid() {
		return u.Settings.PresenceVisibilityDefault
	}
	return VisibilityFriends
}

// UserPatch carries a partial profile update. Nil fields are left untouched.
type UserPatch struct {
	DisplayName        *string       `json:"display_name,omitempty"`
	Handle             *string       `json:"handle,omitempty"`
	Bio                *string       `json:"bio,omitempty"`
	AvatarURL          *string       `json:"avatar_url,omitempty"`
	HomeCity           *string       `json:"home_city,omitempty"`
	Languages          *[]string     `json:"languages,omitempty"`
	Interests          *[]string     `json:"interests,omitempty"`
	Settings           *UserSettings `json:"settings,omitempty"`
	OnboardingComplete *bool         `json:"onboarding_complete,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.DisplayName == nil && p.Handle == nil && p.Bio == nil && p.AvatarURL == nil &&
		p.HomeCity == nil && p.Languages == nil && p.Interests == nil && p.Settings == nil &&
		p.OnboardingComplete == nil
}

// OnboardingRequest is the payload submitted when a user finishes onboarding.
type OnboardingRequest struct {
	Handle    string   `json:"handle"`
	HomeCity  string   `json:"home_city"`
	Interests []string `json:"interests"`
}

// Normalize trims and canonicalizes the request in place and validates it.
func (r *OnboardingRequest) Normalize() error {
	handle, err := NormalizeHandle(r.Handle)
	if err != nil {
		return err
	}
	r.Handle = handle

	r.HomeCity = strings.TrimSpace(r.HomeCity)
	if r.HomeCity == "" {
		return ErrHomeCityRequired
	}

	interests, err := NormalizeInterests(r.Interests)
	if err != nil {
		return err
	}
	r.Interests = interests
	return nil
}

// NormalizeHandle lowercases and trims a handle and checks its shape.
func NormalizeHandle(raw string) (string, error) {
	handle := strings.ToLower(strings.TrimSpace(raw))
	if len(handle) < HandleMinLength || len(handle) > HandleMaxLength {
		return "", ErrInvalidHandle
	}
	if !handlePattern.MatchString(handle) {
		return "", ErrInvalidHandle
	}
	return handle, nil
}

// NormalizeInterests trims entries, drops duplicates and enforces the cap.
func NormalizeInterests(raw []string) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, interest := range raw {
		trimmed := strings.TrimSpace(interest)
		if trimmed == "" {
			return nil, ErrBlankInterest
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) > MaxInterests {
		return nil, ErrTooManyInterests
	}
	return out, nil
}

// DisplayNameFromParts joins first and last name, falling back to "User".
func DisplayNameFromParts(first, last string) string {
	name := strings.TrimSpace(first + " " + last)
	if name == "" {
		return "User"
	}
	return name
}
