package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wayfarer/social-service/internal/domain"
	"github.com/wayfarer/social-service/internal/store"
	"github.com/wayfarer/social-service/pkg/changefeed"
)

const (
	defaultMessagePageSize      = 50
	maxMessagePageSize          = 200
	defaultNotificationPageSize = 100
)

var (
	ErrSelfRelation     = errors.New("cannot target yourself")
	ErrInvalidFriend    = errors.New("invalid friend status")
	ErrInvalidDirection = errors.New("direction must be incoming or outgoing")
	ErrGroupNotOpen     = errors.New("group is not accepting requests")
	ErrAlreadyMember    = errors.New("membership already exists")
	ErrNotPending       = errors.New("membership is not pending")
	ErrHostMembership   = errors.New("the host's membership cannot be changed")
)

// SocialService covers presence, trips, friendships, groups, messages and
// notifications for an identified caller.
type SocialService struct {
	repo     store.Repository
	notify   changeNotifier
	logger   *slog.Logger
	exchange string
	now      func() time.Time
}

func NewSocialService(repo store.Repository, feed changefeed.Feed, logger *slog.Logger, exchange string) *SocialService {
	return &SocialService{
		repo:     repo,
		notify:   changeNotifier{feed: feed, users: repo, logger: logger},
		logger:   logger,
		exchange: exchange,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GroupDetail is a group together with its membership list.
type GroupDetail struct {
	domain.Group
	Members []domain.GroupMember `json:"members"`
}

func (s *SocialService) caller(ctx context.Context, clerkUserID string) (*domain.User, error) {
	clerkUserID = strings.TrimSpace(clerkUserID)
	if clerkUserID == "" {
		return nil, ErrUnauthenticated
	}
	return s.repo.FindByClerkUserID(ctx, clerkUserID)
}

func (s *SocialService) event(routingKey string, payload interface{}) store.OutboxEvent {
	return store.OutboxEvent{Exchange: s.exchange, RoutingKey: routingKey, Payload: payload}
}

// UpdatePresence appends a new current location for the caller. An empty
// visibility falls back to the user's default.
func (s *SocialService) UpdatePresence(ctx context.Context, clerkUserID string, update domain.PresenceUpdate) (*domain.Presence, error) {
	user, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	if err := update.Normalize(); err != nil {
		return nil, invalid(err)
	}
	if update.Visibility == "" {
		update.Visibility = user.PresenceVisibility()
	}

	presence := &domain.Presence{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		City:       update.City,
		Country:    update.Country,
		Status:     update.Status,
		Visibility: update.Visibility,
		UpdatedAt:  s.now(),
	}
	err = s.repo.AppendPresence(ctx, presence, s.event(domain.EventPresenceUpdated, domain.PresenceUpdatedEvent{
		UserID:     user.ID,
		PresenceID: presence.ID,
		City:       presence.City,
		Status:     presence.Status,
		Visibility: presence.Visibility,
	}))
	if err != nil {
		return nil, fmt.Errorf("append presence: %w", err)
	}
	s.notify.clerkUsers(ctx, user.ClerkUserID)
	return presence, nil
}

// GetCurrentPresence returns the caller's latest presence or nil.
func (s *SocialService) GetCurrentPresence(ctx context.Context, clerkUserID string) (*domain.Presence, error) {
	user, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	presence, err := s.repo.LatestPresence(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return presence, err
}

// ListPresenceInCity lists users whose latest presence is in city, hiding
// private entries.
func (s *SocialService) ListPresenceInCity(ctx context.Context, clerkUserID, city string) ([]domain.Presence, error) {
	if _, err := s.caller(ctx, clerkUserID); err != nil {
		return nil, err
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, invalid(domain.ErrCityRequired)
	}
	return s.repo.LatestPresenceInCity(ctx, city)
}

func (s *SocialService) CreateTrip(ctx context.Context, clerkUserID string, req domain.TripRequest) (*domain.Trip, error) {
	user, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	if err := req.Normalize(); err != nil {
		return nil, invalid(err)
	}

	now := s.now()
	trip := &domain.Trip{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		City:       req.City,
		Country:    req.Country,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Visibility: req.Visibility,
		IsCurrent:  domain.TripIsCurrent(req.StartDate, req.EndDate, now),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateTrip(ctx, trip); err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}
	s.notify.clerkUsers(ctx, user.ClerkUserID)
	return trip, nil
}

func (s *SocialService) ListTrips(ctx context.Context, clerkUserID string) ([]domain.Trip, error) {
	user, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTripsByUser(ctx, user.ID)
}

// RequestFriend sends a friend request. Repeating a request is a no-op and a
// request to someone who already asked the caller accepts theirs.
func (s *SocialService) RequestFriend(ctx context.Context, clerkUserID, friendUserID string) (*domain.Friend, error) {
	me, target, err := s.counterpart(ctx, clerkUserID, friendUserID)
	if err != nil {
		return nil, err
	}

	theirs, err := s.friendEdge(ctx, target.ID, me.ID)
	if err != nil {
		return nil, err
	}
	if theirs != nil && theirs.Status == domain.FriendBlocked {
		return nil, fmt.Errorf("%w: user is unavailable", ErrForbidden)
	}

	mine, err := s.friendEdge(ctx, me.ID, target.ID)
	if err != nil {
		return nil, err
	}
	if mine != nil {
		switch mine.Status {
		case domain.FriendBlocked:
			return nil, fmt.Errorf("%w: unblock the user first", ErrForbidden)
		case domain.FriendRequested, domain.FriendAccepted:
			return mine, nil
		}
	}
	if theirs != nil && theirs.Status == domain.FriendRequested {
		return s.acceptEdges(ctx, me, target, theirs, mine)
	}

	edge := s.newEdge(me.ID, target.ID, domain.FriendRequested)
	err = s.repo.SaveFriendEdges(ctx, []domain.Friend{edge},
		s.event(domain.EventFriendRequested, domain.FriendEvent{EventID: uuid.NewString(), FromUserID: me.ID, ToUserID: target.ID}))
	if err != nil {
		return nil, fmt.Errorf("save friend request: %w", err)
	}
	s.notify.clerkUsers(ctx, me.ClerkUserID, target.ClerkUserID)
	return &edge, nil
}

// AcceptFriend accepts requesterUserID's pending request and records the
// reciprocal edge.
func (s *SocialService) AcceptFriend(ctx context.Context, clerkUserID, requesterUserID string) (*domain.Friend, error) {
	me, requester, err := s.counterpart(ctx, clerkUserID, requesterUserID)
	if err != nil {
		return nil, err
	}
	theirs, err := s.friendEdge(ctx, requester.ID, me.ID)
	if err != nil {
		return nil, err
	}
	if theirs == nil || theirs.Status == domain.FriendBlocked {
		return nil, fmt.Errorf("%w: no pending friend request", store.ErrNotFound)
	}
	mine, err := s.friendEdge(ctx, me.ID, requester.ID)
	if err != nil {
		return nil, err
	}
	if theirs.Status == domain.FriendAccepted && mine != nil && mine.Status == domain.FriendAccepted {
		return mine, nil
	}
	return s.acceptEdges(ctx, me, requester, theirs, mine)
}

func (s *SocialService) acceptEdges(ctx context.Context, me, requester *domain.User, theirs, mine *domain.Friend) (*domain.Friend, error) {
	now := s.now()
	accepted := *theirs
	accepted.Status = domain.FriendAccepted
	accepted.UpdatedAt = now

	var reciprocal domain.Friend
	if mine != nil {
		reciprocal = *mine
		reciprocal.Status = domain.FriendAccepted
		reciprocal.UpdatedAt = now
	} else {
		reciprocal = s.newEdge(me.ID, requester.ID, domain.FriendAccepted)
	}

	err := s.repo.SaveFriendEdges(ctx, []domain.Friend{accepted, reciprocal},
		s.event(domain.EventFriendAccepted, domain.FriendEvent{EventID: uuid.NewString(), FromUserID: me.ID, ToUserID: requester.ID}))
	if err != nil {
		return nil, fmt.Errorf("accept friend request: %w", err)
	}
	s.notify.clerkUsers(ctx, me.ClerkUserID, requester.ClerkUserID)
	return &reciprocal, nil
}

// BlockUser records a blocked edge from the caller to otherUserID.
func (s *SocialService) BlockUser(ctx context.Context, clerkUserID, otherUserID string) (*domain.Friend, error) {
	me, other, err := s.counterpart(ctx, clerkUserID, otherUserID)
	if err != nil {
		return nil, err
	}
	mine, err := s.friendEdge(ctx, me.ID, other.ID)
	if err != nil {
		return nil, err
	}

	var edge domain.Friend
	if mine != nil {
		edge = *mine
		edge.Status = domain.FriendBlocked
		edge.UpdatedAt = s.now()
	} else {
		edge = s.newEdge(me.ID, other.ID, domain.FriendBlocked)
	}
	if err := s.repo.SaveFriendEdges(ctx, []domain.Friend{edge}); err != nil {
		return nil, fmt.Errorf("block user: %w", err)
	}
	s.notify.clerkUsers(ctx, me.ClerkUserID)
	return &edge, nil
}

// ListFriends lists the caller's outgoing edges by default. The incoming
// direction shows requests waiting on the caller, never who blocked them.
func (s *SocialService) ListFriends(ctx context.Context, clerkUserID string, direction domain.FriendDirection, status domain.FriendStatus) ([]domain.Friend, error) {
	me, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	if direction == "" {
		direction = domain.FriendOutgoing
	}
	if !direction.Valid() {
		return nil, invalid(ErrInvalidDirection)
	}
	if status != "" && !status.Valid() {
		return nil, invalid(ErrInvalidFriend)
	}
	return s.repo.ListFriendEdges(ctx, me.ID, direction, status)
}

// counterpart resolves the caller and the other user of a relationship.
func (s *SocialService) counterpart(ctx context.Context, clerkUserID, otherUserID string) (*domain.User, *domain.User, error) {
	me, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, nil, err
	}
	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" || otherUserID == me.ID {
		return nil, nil, invalid(ErrSelfRelation)
	}
	other, err := s.repo.FindByID(ctx, otherUserID)
	if err != nil {
		return nil, nil, err
	}
	return me, other, nil
}

func (s *SocialService) friendEdge(ctx context.Context, userID, friendUserID string) (*domain.Friend, error) {
	edge, err := s.repo.GetFriendEdge(ctx, userID, friendUserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return edge, err
}

func (s *SocialService) newEdge(userID, friendUserID string, status domain.FriendStatus) domain.Friend {
	now := s.now()
	return domain.Friend{
		ID:           uuid.NewString(),
		UserID:       userID,
		FriendUserID: friendUserID,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CreateGroup opens a group hosted by the caller, who joins as its first
// approved member.
func (s *SocialService) CreateGroup(ctx context.Context, clerkUserID string, req domain.GroupRequest) (*domain.Group, error) {
	host, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	if err := req.Normalize(); err != nil {
		return nil, invalid(err)
	}

	now := s.now()
	group := &domain.Group{
		ID:          uuid.NewString(),
		HostUserID:  host.ID,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		City:        req.City,
		Country:     req.Country,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		CapacityMin: req.CapacityMin,
		CapacityMax: req.CapacityMax,
		Composition: req.Composition,
		Visibility:  req.Visibility,
		Status:      domain.GroupOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if group.CapacityMax == 1 {
		group.Status = domain.GroupFull
	}
	member := &domain.GroupMember{
		ID:         uuid.NewString(),
		GroupID:    group.ID,
		UserID:     host.ID,
		Role:       domain.RoleHost,
		JoinStatus: domain.JoinApproved,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = s.repo.CreateGroup(ctx, group, member, s.event(domain.EventGroupCreated, domain.GroupCreatedEvent{
		GroupID:    group.ID,
		HostUserID: host.ID,
		City:       group.City,
	}))
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.logger.Info("group created", "group_id", group.ID, "clerk_user_id", host.ClerkUserID)
	s.notify.clerkUsers(ctx, host.ClerkUserID)
	return group, nil
}

func (s *SocialService) GetGroup(ctx context.Context, clerkUserID, groupID string) (*GroupDetail, error) {
	if _, err := s.caller(ctx, clerkUserID); err != nil {
		return nil, err
	}
	group, err := s.repo.GetGroup(ctx, strings.TrimSpace(groupID))
	if err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, group.ID)
	if err != nil {
		return nil, err
	}
	return &GroupDetail{Group: *group, Members: members}, nil
}

// ListGroupsInCity lists open and full groups in city that have not ended.
func (s *SocialService) ListGroupsInCity(ctx context.Context, clerkUserID, city string) ([]domain.Group, error) {
	if _, err := s.caller(ctx, clerkUserID); err != nil {
		return nil, err
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, invalid(domain.ErrCityRequired)
	}
	return s.repo.ListGroupsByCity(ctx, city, s.now())
}

// RequestToJoin files a pending membership. Re-requesting while pending
// returns the existing request.
func (s *SocialService) RequestToJoin(ctx context.Context, clerkUserID, groupID, introText string) (*domain.GroupMember, error) {
	me, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	group, err := s.repo.GetGroup(ctx, strings.TrimSpace(groupID))
	if err != nil {
		return nil, err
	}

	existing, err := s.member(ctx, group.ID, me.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.JoinStatus == domain.JoinPending {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %w", store.ErrConflict, ErrAlreadyMember)
	}
	if group.Status != domain.GroupOpen {
		return nil, fmt.Errorf("%w: %w", store.ErrConflict, ErrGroupNotOpen)
	}

	now := s.now()
	member := &domain.GroupMember{
		ID:         uuid.NewString(),
		GroupID:    group.ID,
		UserID:     me.ID,
		Role:       domain.RoleMember,
		JoinStatus: domain.JoinPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if intro := strings.TrimSpace(introText); intro != "" {
		member.IntroText = &intro
	}
	err = s.repo.CreateMember(ctx, member, s.event(domain.EventGroupJoinRequested, domain.GroupJoinRequestedEvent{
		EventID:    uuid.NewString(),
		GroupID:    group.ID,
		HostUserID: group.HostUserID,
		UserID:     me.ID,
	}))
	if errors.Is(err, store.ErrConflict) {
		// lost a race with a concurrent request from the same user
		if current, getErr := s.member(ctx, group.ID, me.ID); getErr == nil && current != nil && current.JoinStatus == domain.JoinPending {
			return current, nil
		}
		return nil, fmt.Errorf("%w: %w", store.ErrConflict, ErrAlreadyMember)
	}
	if err != nil {
		return nil, fmt.Errorf("request to join: %w", err)
	}
	s.notify.clerkUsers(ctx, me.ClerkUserID)
	s.notify.userIDs(ctx, group.HostUserID)
	return member, nil
}

// DecideMembership lets the host approve or decline a pending request.
// Approving the member that fills the group marks it full.
func (s *SocialService) DecideMembership(ctx context.Context, clerkUserID, groupID, memberUserID string, approve bool) (*domain.Group, error) {
	host, group, member, err := s.hostAction(ctx, clerkUserID, groupID, memberUserID)
	if err != nil {
		return nil, err
	}
	if member.JoinStatus != domain.JoinPending {
		return nil, fmt.Errorf("%w: %w", store.ErrConflict, ErrNotPending)
	}

	status := domain.JoinDeclined
	if approve {
		if group.Status == domain.GroupClosed {
			return nil, fmt.Errorf("%w: %w", store.ErrConflict, ErrGroupNotOpen)
		}
		status = domain.JoinApproved
	}
	updated, err := s.repo.SetMemberStatus(ctx, group.ID, member.UserID, status, s.now(),
		s.event(domain.EventGroupMembershipDecided, domain.GroupMembershipDecidedEvent{
			EventID:    uuid.NewString(),
			GroupID:    group.ID,
			UserID:     member.UserID,
			JoinStatus: status,
		}))
	if err != nil {
		return nil, err
	}
	s.logger.Info("membership decided", "group_id", group.ID, "user_id", member.UserID, "join_status", status, "group_status", updated.Status)
	s.notify.clerkUsers(ctx, host.ClerkUserID)
	s.notify.userIDs(ctx, member.UserID)
	return updated, nil
}

// RemoveMember removes a member from the group. The host may remove anyone
// but themselves; members may remove themselves. A full group reopens.
func (s *SocialService) RemoveMember(ctx context.Context, clerkUserID, groupID, memberUserID string) (*domain.Group, error) {
	me, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	group, err := s.repo.GetGroup(ctx, strings.TrimSpace(groupID))
	if err != nil {
		return nil, err
	}
	memberUserID = strings.TrimSpace(memberUserID)
	if group.HostUserID != me.ID && memberUserID != me.ID {
		return nil, fmt.Errorf("%w: only the host can remove members", ErrForbidden)
	}
	if memberUserID == group.HostUserID {
		return nil, invalid(ErrHostMembership)
	}
	member, err := s.repo.GetMember(ctx, group.ID, memberUserID)
	if err != nil {
		return nil, err
	}
	if member.JoinStatus == domain.JoinRemoved {
		return group, nil
	}

	updated, err := s.repo.SetMemberStatus(ctx, group.ID, member.UserID, domain.JoinRemoved, s.now(),
		s.event(domain.EventGroupMembershipDecided, domain.GroupMembershipDecidedEvent{
			EventID:    uuid.NewString(),
			GroupID:    group.ID,
			UserID:     member.UserID,
			JoinStatus: domain.JoinRemoved,
		}))
	if err != nil {
		return nil, err
	}
	s.notify.clerkUsers(ctx, me.ClerkUserID)
	s.notify.userIDs(ctx, group.HostUserID, member.UserID)
	return updated, nil
}

func (s *SocialService) hostAction(ctx context.Context, clerkUserID, groupID, memberUserID string) (*domain.User, *domain.Group, *domain.GroupMember, error) {
	host, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, nil, nil, err
	}
	group, err := s.repo.GetGroup(ctx, strings.TrimSpace(groupID))
	if err != nil {
		return nil, nil, nil, err
	}
	if group.HostUserID != host.ID {
		return nil, nil, nil, fmt.Errorf("%w: only the host can manage members", ErrForbidden)
	}
	memberUserID = strings.TrimSpace(memberUserID)
	if memberUserID == host.ID {
		return nil, nil, nil, invalid(ErrHostMembership)
	}
	member, err := s.repo.GetMember(ctx, group.ID, memberUserID)
	if err != nil {
		return nil, nil, nil, err
	}
	return host, group, member, nil
}

func (s *SocialService) member(ctx context.Context, groupID, userID string) (*domain.GroupMember, error) {
	member, err := s.repo.GetMember(ctx, groupID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return member, err
}

// approvedMember returns the caller's membership or ErrForbidden.
func (s *SocialService) approvedMember(ctx context.Context, groupID, userID string) (*domain.GroupMember, error) {
	member, err := s.member(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil || member.JoinStatus != domain.JoinApproved {
		return nil, fmt.Errorf("%w: not a member of this group", ErrForbidden)
	}
	return member, nil
}

// PostMessage adds a message to the group chat. Only approved members post.
func (s *SocialService) PostMessage(ctx context.Context, clerkUserID, groupID, content string) (*domain.Message, error) {
	me, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	content, err = domain.NormalizeMessage(content)
	if err != nil {
		return nil, invalid(err)
	}
	group, err := s.repo.GetGroup(ctx, strings.TrimSpace(groupID))
	if err != nil {
		return nil, err
	}
	if _, err := s.approvedMember(ctx, group.ID, me.ID); err != nil {
		return nil, err
	}

	message := &domain.Message{
		ID:        uuid.NewString(),
		GroupID:   group.ID,
		UserID:    me.ID,
		Content:   content,
		CreatedAt: s.now(),
	}
	err = s.repo.CreateMessage(ctx, message, s.event(domain.EventGroupMessagePosted, domain.GroupMessagePostedEvent{
		EventID:   uuid.NewString(),
		GroupID:   group.ID,
		MessageID: message.ID,
		AuthorID:  me.ID,
	}))
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	members, err := s.repo.ListMembers(ctx, group.ID)
	if err != nil {
		s.logger.Warn("failed to list members for change notification", "group_id", group.ID, "error", err)
		return message, nil
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.JoinStatus == domain.JoinApproved {
			ids = append(ids, m.UserID)
		}
	}
	s.notify.userIDs(ctx, ids...)
	return message, nil
}

// ListMessages returns the latest messages of a group, oldest first.
func (s *SocialService) ListMessages(ctx context.Context, clerkUserID, groupID string, limit int) ([]domain.Message, error) {
	me, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	group, err := s.repo.GetGroup(ctx, strings.TrimSpace(groupID))
	if err != nil {
		return nil, err
	}
	if _, err := s.approvedMember(ctx, group.ID, me.ID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessagePageSize
	}
	if limit > maxMessagePageSize {
		limit = maxMessagePageSize
	}
	return s.repo.ListMessages(ctx, group.ID, limit)
}

func (s *SocialService) ListNotifications(ctx context.Context, clerkUserID string, unreadOnly bool) ([]domain.Notification, error) {
	me, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListNotifications(ctx, me.ID, unreadOnly, defaultNotificationPageSize)
}

func (s *SocialService) MarkNotificationRead(ctx context.Context, clerkUserID, notificationID string) error {
	me, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return err
	}
	if err := s.repo.MarkNotificationRead(ctx, me.ID, strings.TrimSpace(notificationID)); err != nil {
		return err
	}
	s.notify.clerkUsers(ctx, me.ClerkUserID)
	return nil
}

func (s *SocialService) MarkAllNotificationsRead(ctx context.Context, clerkUserID string) (int64, error) {
	me, err := s.caller(ctx, clerkUserID)
	if err != nil {
		return 0, err
	}
	updated, err := s.repo.MarkAllNotificationsRead(ctx, me.ID)
	if err != nil {
		return 0, err
	}
	if updated > 0 {
		s.notify.clerkUsers(ctx, me.ClerkUserID)
	}
	return updated, nil
}
