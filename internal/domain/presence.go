package domain

import (
	"errors"
	"strings"
	"time"
)

// PresenceStatus tells whether a user is at home or travelling.
type PresenceStatus string

const (
	PresenceHome   PresenceStatus = "home"
	PresenceTravel PresenceStatus = "travel"
)

func (s PresenceStatus) Valid() bool {
	return s == PresenceHome || s == PresenceTravel
}

var (
	ErrCityRequired      = errors.New("city is required")
	ErrInvalidStatus     = errors.New("invalid presence status")
	ErrInvalidTripWindow = errors.New("trip end date must not be before start date")
)

// Presence is one entry in a user's location history. The current presence
// is the entry with the greatest UpdatedAt.
type Presence struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	City       string         `json:"city"`
	Country    string         `json:"country"`
	Status     PresenceStatus `json:"status"`
	Visibility Visibility     `json:"visibility"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// PresenceUpdate is the client payload for reporting a new location.
type PresenceUpdate struct {
	City       string         `json:"city"`
	Country    string         `json:"country"`
	Status     PresenceStatus `json:"status"`
	Visibility Visibility     `json:"visibility,omitempty"`
}

func (u *PresenceUpdate) Normalize() error {
	u.City = strings.TrimSpace(u.City)
	u.Country = strings.TrimSpace(u.Country)
	if u.City == "" {
		return ErrCityRequired
	}
	if u.Status == "" {
		u.Status = PresenceTravel
	}
	if !u.Status.Valid() {
		return ErrInvalidStatus
	}
	if u.Visibility != "" && !u.Visibility.Valid() {
		return ErrInvalidVisibility
	}
	return nil
}

// Trip is a planned stay in a city.
type Trip struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	City       string     `json:"city"`
	Country    string     `json:"country"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    time.Time  `json:"end_date"`
	Visibility Visibility `json:"visibility"`
	IsCurrent  bool       `json:"is_current"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TripRequest is the client payload for planning a trip.
type TripRequest struct {
	City       string     `json:"city"`
	Country    string     `json:"country"`
	StartDate  time.Time  `json:"start_date"`
	EndDate    time.Time  `json:"end_date"`
	Visibility Visibility `json:"visibility,omitempty"`
}

func (r *TripRequest) Normalize() error {
	r.City = strings.TrimSpace(r.City)
	r.Country = strings.TrimSpace(r.Country)
	if r.City == "" {
		return ErrCityRequired
	}
	if r.StartDate.IsZero() || r.EndDate.IsZero() || r.EndDate.Before(r.StartDate) {
		return ErrInvalidTripWindow
	}
	if r.Visibility == "" {
		r.Visibility = VisibilityFriends
	}
	if !r.Visibility.Valid() {
		return ErrInvalidVisibility
	}
	return nil
}

// TripIsCurrent reports whether now falls inside the trip window, inclusive.
func TripIsCurrent(start, end, now time.Time) bool {
	return !now.Before(start) && !now.After(end)
}
