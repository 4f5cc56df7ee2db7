package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/wayfarer/social-service/internal/domain"
	"github.com/wayfarer/social-service/internal/store"
	"github.com/wayfarer/social-service/pkg/changefeed"
	"github.com/wayfarer/social-service/pkg/rabbitmq"
)

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	blob, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return blob
}

func TestNotificationHandler_FriendRequested(t *testing.T) {
	f := newSocialFixture(t, "ana", "ben")
	ctx := context.Background()
	handler := NewNotificationHandler(f.repo, nil, testLogger())

	ok := handler.HandleFriendRequested(ctx, mustJSON(t, domain.FriendEvent{FromUserID: f.ids["ana"], ToUserID: f.ids["ben"]}))
	if !ok {
		t.Fatal("expected handler to acknowledge")
	}

	inbox, err := f.social.ListNotifications(ctx, "ben", true)
	if err != nil {
		t.Fatalf("ListNotifications returned error: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Type != NotificationFriendRequest {
		t.Fatalf("unexpected inbox: %+v", inbox)
	}
	if inbox[0].Payload["from_user_id"] != f.ids["ana"] {
		t.Fatalf("expected payload to carry requester id, got %v", inbox[0].Payload)
	}

	if err := f.social.MarkNotificationRead(ctx, "ben", inbox[0].ID); err != nil {
		t.Fatalf("MarkNotificationRead returned error: %v", err)
	}
	unread, _ := f.social.ListNotifications(ctx, "ben", true)
	if len(unread) != 0 {
		t.Fatalf("expected no unread notifications, got %d", len(unread))
	}
	if err := f.social.MarkNotificationRead(ctx, "ana", inbox[0].ID); err == nil {
		t.Fatal("expected marking someone else's notification to fail")
	}
}

func TestNotificationHandler_MalformedPayloadIsDropped(t *testing.T) {
	f := newSocialFixture(t)
	handler := NewNotificationHandler(f.repo, nil, testLogger())
	if !handler.HandleGroupJoinRequested(context.Background(), []byte("{not json")) {
		t.Fatal("expected malformed payload to be acknowledged")
	}
}

func TestNotificationHandler_GroupMessageSkipsAuthor(t *testing.T) {
	f := newSocialFixture(t, "host", "ana", "ben")
	ctx := context.Background()
	group := newTestGroup(t, f, "host", 5)
	_, _ = f.social.RequestToJoin(ctx, "ana", group.ID, "")
	_, _ = f.social.RequestToJoin(ctx, "ben", group.ID, "")
	if _, err := f.social.DecideMembership(ctx, "host", group.ID, f.ids["ana"], true); err != nil {
		t.Fatalf("DecideMembership returned error: %v", err)
	}

	handler := NewNotificationHandler(f.repo, nil, testLogger())
	body := mustJSON(t, domain.GroupMessagePostedEvent{GroupID: group.ID, MessageID: "m1", AuthorID: f.ids["ana"]})
	if !handler.HandleGroupMessagePosted(ctx, body) {
		t.Fatal("expected handler to acknowledge")
	}

	counts := map[string]int{}
	for _, who := range []string{"host", "ana", "ben"} {
		inbox, _ := f.social.ListNotifications(ctx, who, false)
		counts[who] = len(inbox)
	}
	if counts["host"] != 1 || counts["ana"] != 0 || counts["ben"] != 0 {
		t.Fatalf("expected only the host notified, got %v", counts)
	}
}

// failingInbox fails the nth notification write once.
type failingInbox struct {
	*store.MemoryRepository
	failOn int
	writes int
}

func (r *failingInbox) CreateNotification(ctx context.Context, n *domain.Notification) error {
	r.writes++
	if r.writes == r.failOn {
		return errors.New("connection reset")
	}
	return r.MemoryRepository.CreateNotification(ctx, n)
}

func TestNotificationHandler_RedeliveryAfterPartialWrite(t *testing.T) {
	f := newSocialFixture(t, "host", "ana", "ben", "cai")
	ctx := context.Background()
	group := newTestGroup(t, f, "host", 5)
	for _, who := range []string{"ana", "ben", "cai"} {
		if _, err := f.social.RequestToJoin(ctx, who, group.ID, ""); err != nil {
			t.Fatalf("RequestToJoin(%s) returned error: %v", who, err)
		}
		if _, err := f.social.DecideMembership(ctx, "host", group.ID, f.ids[who], true); err != nil {
			t.Fatalf("DecideMembership(%s) returned error: %v", who, err)
		}
	}

	repo := &failingInbox{MemoryRepository: f.repo, failOn: 2}
	handler := NewNotificationHandler(repo, nil, testLogger())
	body := mustJSON(t, domain.GroupMessagePostedEvent{EventID: "evt-1", GroupID: group.ID, MessageID: "m1", AuthorID: f.ids["host"]})

	if handler.HandleGroupMessagePosted(ctx, body) {
		t.Fatal("expected the failed write to request redelivery")
	}
	if !handler.HandleGroupMessagePosted(ctx, body) {
		t.Fatal("expected redelivery to acknowledge")
	}

	for _, who := range []string{"ana", "ben", "cai"} {
		inbox, err := f.social.ListNotifications(ctx, who, false)
		if err != nil {
			t.Fatalf("ListNotifications returned error: %v", err)
		}
		messages := 0
		for _, n := range inbox {
			if n.Type == NotificationGroupMessage {
				messages++
			}
		}
		if messages != 1 {
			t.Fatalf("expected exactly one message notification for %s, got %d", who, messages)
		}
	}
}

func TestNotificationID(t *testing.T) {
	first := notificationID(NotificationGroupMessage, "evt-1", "user-a")
	if again := notificationID(NotificationGroupMessage, "evt-1", "user-a"); again != first {
		t.Fatalf("expected a stable id, got %s and %s", first, again)
	}
	if other := notificationID(NotificationGroupMessage, "evt-1", "user-b"); other == first {
		t.Fatal("expected recipients to get distinct ids")
	}
	if notificationID(NotificationGroupMessage, "", "user-a") == notificationID(NotificationGroupMessage, "", "user-a") {
		t.Fatal("expected events without an id to get fresh ids")
	}
}

func TestLocalPublisher_RoutesThroughOutbox(t *testing.T) {
	repo := store.NewMemoryRepository()
	hub := changefeed.NewHub()
	users := NewUserService(repo, hub, testLogger(), "social_events")
	social := NewSocialService(repo, hub, testLogger(), "social_events")
	ctx := context.Background()
	_, _ = users.CreateUser(ctx, CreateUserInput{ClerkUserID: "ana", DisplayName: "Ana"})
	benID, _ := users.CreateUser(ctx, CreateUserInput{ClerkUserID: "ben", DisplayName: "Ben"})

	changes, cancel, _ := hub.Subscribe(ctx, changefeed.UserTopic("ben"))
	defer cancel()

	if _, err := social.RequestFriend(ctx, "ana", benID); err != nil {
		t.Fatalf("RequestFriend returned error: %v", err)
	}
	<-changes

	handler := NewNotificationHandler(repo, hub, testLogger())
	local := NewLocalPublisher(handler.Bindings(), testLogger())
	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) { return local, nil }, testLogger(), 0)
	if err := dispatcher.flushOnce(ctx); err != nil {
		t.Fatalf("flushOnce returned error: %v", err)
	}

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("expected ben to be notified of the new inbox entry")
	}
	inbox, _ := social.ListNotifications(ctx, "ben", true)
	if len(inbox) != 1 {
		t.Fatalf("expected 1 notification for ben, got %d", len(inbox))
	}
}
