package domain

import (
	"errors"
	"strings"
	"time"
)

type FriendStatus string

const (
	FriendRequested FriendStatus = "requested"
	FriendAccepted  FriendStatus = "accepted"
	FriendBlocked   FriendStatus = "blocked"
)

func (s FriendStatus) Valid() bool {
	switch s {
	case FriendRequested, FriendAccepted, FriendBlocked:
		return true
	}
	return false
}

// FriendDirection selects edges a user created or edges pointing at them.
type FriendDirection string

const (
	FriendOutgoing FriendDirection = "outgoing"
	FriendIncoming FriendDirection = "incoming"
)

func (d FriendDirection) Valid() bool {
	return d == FriendOutgoing || d == FriendIncoming
}

// Friend is a directional edge from UserID to FriendUserID.
type Friend struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	FriendUserID string       `json:"friend_user_id"`
	Status       FriendStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

type CompositionPreset string

const (
	PresetAny              CompositionPreset = "any"
	PresetMixed            CompositionPreset = "mixed"
	PresetWomenOnly        CompositionPreset = "womenOnly"
	PresetBeginnersWelcome CompositionPreset = "beginnersWelcome"
)

func (p CompositionPreset) Valid() bool {
	switch p {
	case PresetAny, PresetMixed, PresetWomenOnly, PresetBeginnersWelcome:
		return true
	}
	return false
}

type GroupStatus string

const (
	GroupOpen   GroupStatus = "open"
	GroupFull   GroupStatus = "full"
	GroupClosed GroupStatus = "closed"
)

type MemberRole string

const (
	RoleHost   MemberRole = "host"
	RoleMember MemberRole = "member"
)

type JoinStatus string

const (
	JoinPending  JoinStatus = "pending"
	JoinApproved JoinStatus = "approved"
	JoinDeclined JoinStatus = "declined"
	JoinRemoved  JoinStatus = "removed"
)

// Composition describes who a group is looking for.
type Composition struct {
	Preset CompositionPreset `json:"preset"`
	Notes  *string           `json:"notes,omitempty"`
}

// Group is a hosted meetup in a city.
type Group struct {
	ID          string      `json:"id"`
	HostUserID  string      `json:"host_user_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags"`
	City        string      `json:"city"`
	Country     string      `json:"country"`
	StartDate   time.Time   `json:"start_date"`
	EndDate     time.Time   `json:"end_date"`
	CapacityMin int         `json:"capacity_min"`
	CapacityMax int         `json:"capacity_max"`
	Composition Composition `json:"composition"`
	Visibility  Visibility  `json:"visibility"`
	Status      GroupStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// GroupMember records a user's membership state in a group.
type GroupMember struct {
	ID         string     `json:"id"`
	GroupID    string     `json:"group_id"`
	UserID     string     `json:"user_id"`
	Role       MemberRole `json:"role"`
	JoinStatus JoinStatus `json:"join_status"`
	IntroText  *string    `json:"intro_text,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Message struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
}

const MaxMessageLength = 2000

var (
	ErrTitleRequired     = errors.New("title is required")
	ErrInvalidCapacity   = errors.New("capacity must satisfy 1 <= min <= max")
	ErrInvalidPreset     = errors.New("invalid composition preset")
	ErrInvalidGroupDates = errors.New("group end date must not be before start date")
	ErrEmptyMessage      = errors.New("message cannot be empty")
	ErrMessageTooLong    = errors.New("message exceeds 2000 characters")
)

// GroupRequest is the client payload for hosting a group.
type GroupRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Tags        []string    `json:"tags"`
	City        string      `json:"city"`
	Country     string      `json:"country"`
	StartDate   time.Time   `json:"start_date"`
	EndDate     time.Time   `json:"end_date"`
	CapacityMin int         `json:"capacity_min"`
	CapacityMax int         `json:"capacity_max"`
	Composition Composition `json:"composition"`
	Visibility  Visibility  `json:"visibility,omitempty"`
}

func (r *GroupRequest) Normalize() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.City = strings.TrimSpace(r.City)
	r.Country = strings.TrimSpace(r.Country)
	if r.Title == "" {
		return ErrTitleRequired
	}
	if r.City == "" {
		return ErrCityRequired
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() || r.EndDate.Before(r.StartDate) {
		return ErrInvalidGroupDates
	}
	if r.CapacityMin < 1 || r.CapacityMax < r.CapacityMin {
		return ErrInvalidCapacity
	}
	if r.Composition.Preset == "" {
		r.Composition.Preset = PresetAny
	}
	if !r.Composition.Preset.Valid() {
		return ErrInvalidPreset
	}
	if r.Visibility == "" {
		r.Visibility = VisibilityHub
	}
	if !r.Visibility.Valid() {
		return ErrInvalidVisibility
	}
	tags := make([]string, 0, len(r.Tags))
	for _, tag := range r.Tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	r.Tags = tags
	return nil
}

// NormalizeMessage trims content and enforces length bounds.
func NormalizeMessage(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if len([]rune(trimmed)) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return trimmed, nil
}
