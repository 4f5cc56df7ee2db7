package domain

import "strings"

// Clerk webhook event types handled by the service.
const (
	ClerkUserCreated = "user.created"
	ClerkUserUpdated = "user.updated"
	ClerkUserDeleted = "user.deleted"
)

// ClerkWebhookEvent is the envelope Clerk posts for user lifecycle events.
type ClerkWebhookEvent struct {
	Type   string        `json:"type"`
	Object string        `json:"object,omitempty"`
	Data   ClerkUserData `json:"data"`
}

type ClerkEmailAddress struct {
	ID           string `json:"id,omitempty"`
	EmailAddress string `json:"email_address"`
}

// ClerkUserData holds the subset of the Clerk user object the service reads.
type ClerkUserData struct {
	ID             string              `json:"id"`
	EmailAddresses []ClerkEmailAddress `json:"email_addresses"`
	FirstName      *string             `json:"first_name"`
	LastName       *string             `json:"last_name"`
	ImageURL       *string             `json:"image_url,omitempty"`
}

// PrimaryEmail returns the first listed address, or nil when none is present.
func (d ClerkUserData) PrimaryEmail() *string {
	if len(d.EmailAddresses) == 0 {
		return nil
	}
	email := strings.TrimSpace(d.EmailAddresses[0].EmailAddress)
	if email == "" {
		return nil
	}
	return &email
}

// DisplayName derives the profile name from first and last name.
func (d ClerkUserData) DisplayName() string {
	var first, last string
	if d.FirstName != nil {
		first = *d.FirstName
	}
	if d.LastName != nil {
		last = *d.LastName
	}
	return DisplayNameFromParts(first, last)
}
