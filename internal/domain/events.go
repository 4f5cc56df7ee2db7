package domain

// Routing keys published on the social events exchange.
const (
	EventUserCreated            = "user.created"
	EventUserUpdated            = "user.updated"
	EventUserOnboarded          = "user.onboarded"
	EventPresenceUpdated        = "presence.updated"
	EventFriendRequested        = "friend.requested"
	EventFriendAccepted         = "friend.accepted"
	EventGroupCreated           = "group.created"
	EventGroupJoinRequested     = "group.join_requested"
	EventGroupMembershipDecided = "group.membership_decided"
	EventGroupMessagePosted     = "group.message_posted"
)

type UserCreatedEvent struct {
	UserID      string `json:"user_id"`
	ClerkUserID string `json:"clerk_user_id"`
	DisplayName string `json:"display_name"`
}

type UserUpdatedEvent struct {
	UserID      string `json:"user_id"`
	ClerkUserID string `json:"clerk_user_id"`
}

type UserOnboardedEvent struct {
	UserID      string   `json:"user_id"`
	ClerkUserID string   `json:"clerk_user_id"`
	Handle      string   `json:"handle"`
	HomeCity    string   `json:"home_city"`
	Interests   []string `json:"interests"`
}

type PresenceUpdatedEvent struct {
	UserID     string         `json:"user_id"`
	PresenceID string         `json:"presence_id"`
	City       string         `json:"city"`
	Status     PresenceStatus `json:"status"`
	Visibility Visibility     `json:"visibility"`
}

// FriendEvent is published for friend requests and acceptances. EventID, here
// and on the group events below, names one occurrence; notifications created
// from it are keyed on it.
type FriendEvent struct {
	EventID    string `json:"event_id,omitempty"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
}

type GroupCreatedEvent struct {
	GroupID    string `json:"group_id"`
	HostUserID string `json:"host_user_id"`
	City       string `json:"city"`
}

type GroupJoinRequestedEvent struct {
	EventID    string `json:"event_id,omitempty"`
	GroupID    string `json:"group_id"`
	HostUserID string `json:"host_user_id"`
	UserID     string `json:"user_id"`
}

type GroupMembershipDecidedEvent struct {
	EventID    string     `json:"event_id,omitempty"`
	GroupID    string     `json:"group_id"`
	UserID     string     `json:"user_id"`
	JoinStatus JoinStatus `json:"join_status"`
}

type GroupMessagePostedEvent struct {
	EventID   string `json:"event_id,omitempty"`
	GroupID   string `json:"group_id"`
	MessageID string `json:"message_id"`
	AuthorID  string `json:"author_id"`
}
