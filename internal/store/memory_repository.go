package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wayfarer/social-service/internal/domain"
)

type memoryOutboxEntry struct {
	message       OutboxMessage
	status        string
	nextAttemptAt time.Time
	claimedAt     time.Time
	lastError     string
}

type memoryPresence struct {
	seq int64
	domain.Presence
}

// MemoryRepository keeps everything in process memory. It backs local runs
// without DATABASE_URL and the service tests.
type MemoryRepository struct {
	mu  sync.RWMutex
	now func() time.Time

	users         map[string]*domain.User // by id
	usersByClerk  map[string]string
	usersByHandle map[string]string
	presence      []memoryPresence
	presenceSeq   int64
	trips         map[string]*domain.Trip
	friends       map[[2]string]*domain.Friend
	groups        map[string]*domain.Group
	members       map[[2]string]*domain.GroupMember
	messages      []domain.Message
	notifications []*domain.Notification
	outbox        []*memoryOutboxEntry
	outboxSeq     int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:           time.Now,
		users:         make(map[string]*domain.User),
		usersByClerk:  make(map[string]string),
		usersByHandle: make(map[string]string),
		trips:         make(map[string]*domain.Trip),
		friends:       make(map[[2]string]*domain.Friend),
		groups:        make(map[string]*domain.Group),
		members:       make(map[[2]string]*domain.GroupMember),
	}
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

func cloneUser(u *domain.User) *domain.User {
	c := *u
	if u.Languages != nil {
		c.Languages = append([]string(nil), u.Languages...)
	}
	if u.Interests != nil {
		c.Interests = append([]string(nil), u.Interests...)
	}
	if u.Settings != nil {
		settings := *u.Settings
		c.Settings = &settings
	}
	return &c
}

func (r *MemoryRepository) enqueueLocked(events []OutboxEvent) error {
	for _, event := range events {
		blob, err := json.Marshal(event.Payload)
		if err != nil {
			return err
		}
		r.outboxSeq++
		r.outbox = append(r.outbox, &memoryOutboxEntry{
			message: OutboxMessage{
				ID:         r.outboxSeq,
				Exchange:   strings.TrimSpace(event.Exchange),
				RoutingKey: strings.TrimSpace(event.RoutingKey),
				Payload:    blob,
			},
			status:        "pending",
			nextAttemptAt: r.now(),
		})
	}
	return nil
}

func (r *MemoryRepository) FindByClerkUserID(ctx context.Context, clerkUserID string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.usersByClerk[strings.TrimSpace(clerkUserID)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryRepository) FindByHandle(ctx context.Context, handle string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.usersByHandle[strings.ToLower(strings.TrimSpace(handle))]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(r.users[id]), nil
}

func (r *MemoryRepository) CreateUserIfAbsent(ctx context.Context, input NewUser, events ...OutboxEvent) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.usersByClerk[input.ClerkUserID]; ok {
		return id, false, nil
	}
	user := &domain.User{
		ID:          input.ID,
		ClerkUserID: input.ClerkUserID,
		DisplayName: input.DisplayName,
		Email:       input.Email,
		CreatedAt:   input.Now,
		UpdatedAt:   input.Now,
	}
	if err := r.enqueueLocked(events); err != nil {
		return "", false, err
	}
	r.users[user.ID] = user
	r.usersByClerk[user.ClerkUserID] = user.ID
	return user.ID, true, nil
}

// claimHandleLocked moves the handle index entry for user to handle.
func (r *MemoryRepository) claimHandleLocked(user *domain.User, handle string) error {
	if owner, ok := r.usersByHandle[handle]; ok && owner != user.ID {
		return ErrHandleTaken
	}
	if user.Handle != nil && *user.Handle != handle {
		delete(r.usersByHandle, *user.Handle)
	}
	r.usersByHandle[handle] = user.ID
	h := handle
	user.Handle = &h
	return nil
}

func (r *MemoryRepository) UpdateUser(ctx context.Context, clerkUserID string, patch domain.UserPatch, now time.Time, events ...OutboxEvent) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.usersByClerk[strings.TrimSpace(clerkUserID)]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := cloneUser(r.users[id])

	if patch.Handle != nil {
		if owner, taken := r.usersByHandle[*patch.Handle]; taken && owner != user.ID {
			return nil, ErrHandleTaken
		}
	}
	if err := r.enqueueLocked(events); err != nil {
		return nil, err
	}
	if patch.Handle != nil {
		_ = r.claimHandleLocked(user, *patch.Handle)
	}
	if patch.DisplayName != nil {
		user.DisplayName = *patch.DisplayName
	}
	if patch.Bio != nil {
		user.Bio = patch.Bio
	}
	if patch.AvatarURL != nil {
		user.AvatarURL = patch.AvatarURL
	}
	if patch.HomeCity != nil {
		user.HomeCity = patch.HomeCity
	}
	if patch.Languages != nil {
		user.Languages = append([]string(nil), (*patch.Languages)...)
	}
	if patch.Interests != nil {
		user.Interests = append([]string(nil), (*patch.Interests)...)
	}
	if patch.Settings != nil {
		settings := *patch.Settings
		user.Settings = &settings
	}
	if patch.OnboardingComplete != nil {
		user.OnboardingComplete = user.OnboardingComplete || *patch.OnboardingComplete
	}
	user.UpdatedAt = now
	r.users[id] = user
	return cloneUser(user), nil
}

func (r *MemoryRepository) CompleteOnboarding(
	ctx context.Context,
	clerkUserID string,
	req domain.OnboardingRequest,
	seed domain.Presence,
	events ...OutboxEvent,
) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.usersByClerk[clerkUserID]
	if !ok {
		return nil, ErrUserNotFound
	}
	user := cloneUser(r.users[id])
	if owner, taken := r.usersByHandle[req.Handle]; taken && owner != user.ID {
		return nil, ErrHandleTaken
	}
	if err := r.enqueueLocked(events); err != nil {
		return nil, err
	}

	_ = r.claimHandleLocked(user, req.Handle)
	homeCity := req.HomeCity
	user.HomeCity = &homeCity
	user.Interests = append([]string(nil), req.Interests...)
	user.OnboardingComplete = true
	user.UpdatedAt = seed.UpdatedAt
	r.users[id] = user

	seed.UserID = id
	r.appendPresenceLocked(seed)
	return cloneUser(user), nil
}

func (r *MemoryRepository) appendPresenceLocked(p domain.Presence) {
	r.presenceSeq++
	r.presence = append(r.presence, memoryPresence{seq: r.presenceSeq, Presence: p})
}

func (r *MemoryRepository) AppendPresence(ctx context.Context, presence *domain.Presence, events ...OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enqueueLocked(events); err != nil {
		return err
	}
	r.appendPresenceLocked(*presence)
	return nil
}

// latestLocked returns the newest presence per user, ties broken by insertion order.
func (r *MemoryRepository) latestLocked() map[string]memoryPresence {
	latest := make(map[string]memoryPresence)
	for _, p := range r.presence {
		current, ok := latest[p.UserID]
		if !ok || p.UpdatedAt.After(current.UpdatedAt) ||
			(p.UpdatedAt.Equal(current.UpdatedAt) && p.seq > current.seq) {
			latest[p.UserID] = p
		}
	}
	return latest
}

func (r *MemoryRepository) LatestPresence(ctx context.Context, userID string) (*domain.Presence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.latestLocked()[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := p.Presence
	return &out, nil
}

func (r *MemoryRepository) LatestPresenceInCity(ctx context.Context, city string) ([]domain.Presence, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Presence
	for _, p := range r.latestLocked() {
		if p.City == city && p.Visibility != domain.VisibilityPrivate {
			out = append(out, p.Presence)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemoryRepository) CreateTrip(ctx context.Context, trip *domain.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := *trip
	r.trips[t.ID] = &t
	return nil
}

func (r *MemoryRepository) ListTripsByUser(ctx context.Context, userID string) ([]domain.Trip, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Trip
	for _, t := range r.trips {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *MemoryRepository) RefreshCurrentTrips(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var changed int64
	for _, t := range r.trips {
		current := domain.TripIsCurrent(t.StartDate, t.EndDate, now)
		if current != t.IsCurrent {
			t.IsCurrent = current
			t.UpdatedAt = now
			changed++
		}
	}
	return changed, nil
}

func (r *MemoryRepository) GetFriendEdge(ctx context.Context, userID, friendUserID string) (*domain.Friend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	edge, ok := r.friends[[2]string{userID, friendUserID}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *edge
	return &out, nil
}

func (r *MemoryRepository) SaveFriendEdges(ctx context.Context, edges []domain.Friend, events ...OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enqueueLocked(events); err != nil {
		return err
	}
	for _, edge := range edges {
		key := [2]string{edge.UserID, edge.FriendUserID}
		if existing, ok := r.friends[key]; ok {
			existing.Status = edge.Status
			existing.UpdatedAt = edge.UpdatedAt
			continue
		}
		e := edge
		r.friends[key] = &e
	}
	return nil
}

func (r *MemoryRepository) ListFriendEdges(ctx context.Context, userID string, direction domain.FriendDirection, status domain.FriendStatus) ([]domain.Friend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Friend
	for _, edge := range r.friends {
		if status != "" && edge.Status != status {
			continue
		}
		if direction == domain.FriendIncoming {
			if edge.FriendUserID == userID && edge.Status != domain.FriendBlocked {
				out = append(out, *edge)
			}
			continue
		}
		if edge.UserID == userID {
			out = append(out, *edge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func cloneGroup(g *domain.Group) *domain.Group {
	c := *g
	c.Tags = append([]string(nil), g.Tags...)
	return &c
}

func (r *MemoryRepository) CreateGroup(ctx context.Context, group *domain.Group, host *domain.GroupMember, events ...OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.members[[2]string{host.GroupID, host.UserID}]; exists {
		return ErrConflict
	}
	if err := r.enqueueLocked(events); err != nil {
		return err
	}
	r.groups[group.ID] = cloneGroup(group)
	m := *host
	r.members[[2]string{m.GroupID, m.UserID}] = &m
	return nil
}

func (r *MemoryRepository) GetGroup(ctx context.Context, id string) (*domain.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneGroup(g), nil
}

func (r *MemoryRepository) ListGroupsByCity(ctx context.Context, city string, now time.Time) ([]domain.Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Group
	for _, g := range r.groups {
		if g.City == city && g.Status != domain.GroupClosed && !g.EndDate.Before(now) {
			out = append(out, *cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *MemoryRepository) GetMember(ctx context.Context, groupID, userID string) (*domain.GroupMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[[2]string{groupID, userID}]
	if !ok {
		return nil, ErrNotFound
	}
	out := *m
	return &out, nil
}

func (r *MemoryRepository) ListMembers(ctx context.Context, groupID string) ([]domain.GroupMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.GroupMember
	for key, m := range r.members {
		if key[0] == groupID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) CreateMember(ctx context.Context, member *domain.GroupMember, events ...OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{member.GroupID, member.UserID}
	if _, exists := r.members[key]; exists {
		return ErrConflict
	}
	if err := r.enqueueLocked(events); err != nil {
		return err
	}
	m := *member
	r.members[key] = &m
	return nil
}

func (r *MemoryRepository) SetMemberStatus(
	ctx context.Context,
	groupID, userID string,
	status domain.JoinStatus,
	now time.Time,
	events ...OutboxEvent,
) (*domain.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	group, ok := r.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	member, ok := r.members[[2]string{groupID, userID}]
	if !ok {
		return nil, ErrNotFound
	}

	approved := 0
	for key, m := range r.members {
		if key[0] == groupID && key[1] != userID && m.JoinStatus == domain.JoinApproved {
			approved++
		}
	}
	if status == domain.JoinApproved && approved >= group.CapacityMax {
		return nil, ErrGroupFull
	}
	if err := r.enqueueLocked(events); err != nil {
		return nil, err
	}

	member.JoinStatus = status
	member.UpdatedAt = now
	if status == domain.JoinApproved {
		approved++
	}
	if next := nextGroupStatus(group.Status, approved, group.CapacityMax); next != group.Status {
		group.Status = next
		group.UpdatedAt = now
	}
	return cloneGroup(group), nil
}

func (r *MemoryRepository) CloseExpiredGroups(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var closed int64
	for _, g := range r.groups {
		if g.Status != domain.GroupClosed && g.EndDate.Before(now) {
			g.Status = domain.GroupClosed
			g.UpdatedAt = now
			closed++
		}
	}
	return closed, nil
}

func (r *MemoryRepository) CreateMessage(ctx context.Context, message *domain.Message, events ...OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enqueueLocked(events); err != nil {
		return err
	}
	r.messages = append(r.messages, *message)
	return nil
}

func (r *MemoryRepository) ListMessages(ctx context.Context, groupID string, limit int) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Message
	for _, m := range r.messages {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *MemoryRepository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.notifications {
		if existing.ID == n.ID {
			return nil
		}
	}
	c := *n
	r.notifications = append(r.notifications, &c)
	return nil
}

func (r *MemoryRepository) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Notification
	for i := len(r.notifications) - 1; i >= 0; i-- {
		n := r.notifications[i]
		if n.UserID != userID || (unreadOnly && n.IsRead) {
			continue
		}
		out = append(out, *n)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkNotificationRead(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.notifications {
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, n := range r.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (r *MemoryRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	now := r.now()
	stale := time.Duration(staleAfterSeconds) * time.Second

	var claimed []OutboxMessage
	for _, entry := range r.outbox {
		if len(claimed) == limit {
			break
		}
		due := entry.status == "pending" && !entry.nextAttemptAt.After(now)
		reclaim := entry.status == "processing" && now.Sub(entry.claimedAt) > stale
		if !due && !reclaim {
			continue
		}
		entry.status = "processing"
		entry.claimedAt = now
		entry.message.Attempts++
		claimed = append(claimed, entry.message)
	}
	return claimed, nil
}

func (r *MemoryRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.outbox {
		if entry.message.ID == id {
			entry.status = "published"
			entry.lastError = ""
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	for _, entry := range r.outbox {
		if entry.message.ID == id {
			entry.status = "pending"
			entry.nextAttemptAt = r.now().Add(time.Duration(retryAfterSeconds) * time.Second)
			entry.lastError = reason
			return nil
		}
	}
	return ErrNotFound
}

// PendingOutbox returns the routing keys of messages not yet published, in enqueue order.
func (r *MemoryRepository) PendingOutbox() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	for _, entry := range r.outbox {
		if entry.status != "published" {
			keys = append(keys, entry.message.RoutingKey)
		}
	}
	return keys
}
