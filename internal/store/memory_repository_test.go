package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wayfarer/social-service/internal/domain"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, repo *MemoryRepository, id, clerkID string) {
	t.Helper()
	if _, _, err := repo.CreateUserIfAbsent(context.Background(), NewUser{ID: id, ClerkUserID: clerkID, DisplayName: "User", Now: testNow}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestMemoryCreateUserIfAbsentIsCreateOnce(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	email := "a@b.com"

	id, created, err := repo.CreateUserIfAbsent(ctx, NewUser{ID: "u1", ClerkUserID: "ext123", Email: &email, DisplayName: "Jane Doe", Now: testNow},
		OutboxEvent{Exchange: "social_events", RoutingKey: domain.EventUserCreated, Payload: domain.UserCreatedEvent{UserID: "u1"}})
	if err != nil || !created || id != "u1" {
		t.Fatalf("expected new user u1, got id=%q created=%v err=%v", id, created, err)
	}

	id, created, err = repo.CreateUserIfAbsent(ctx, NewUser{ID: "u2", ClerkUserID: "ext123", DisplayName: "Someone Else", Now: testNow.Add(time.Hour)},
		OutboxEvent{Exchange: "social_events", RoutingKey: domain.EventUserCreated, Payload: domain.UserCreatedEvent{UserID: "u2"}})
	if err != nil || created || id != "u1" {
		t.Fatalf("expected existing user u1, got id=%q created=%v err=%v", id, created, err)
	}

	user, err := repo.FindByClerkUserID(ctx, "ext123")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.DisplayName != "Jane Doe" || !user.CreatedAt.Equal(testNow) {
		t.Fatalf("expected original record to be unchanged, got %+v", user)
	}
	if diff := cmp.Diff([]string{domain.EventUserCreated}, repo.PendingOutbox()); diff != "" {
		t.Fatalf("outbox mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryCompleteOnboardingHandleConflict(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedUser(t, repo, "u1", "clerk_a")
	seedUser(t, repo, "u2", "clerk_b")

	seed := domain.Presence{ID: "p1", City: "Lisbon", Status: domain.PresenceHome, Visibility: domain.VisibilityFriends, UpdatedAt: testNow}
	req := domain.OnboardingRequest{Handle: "alice", HomeCity: "Lisbon", Interests: []string{"Nightlife"}}
	user, err := repo.CompleteOnboarding(ctx, "clerk_a", req, seed)
	if err != nil {
		t.Fatalf("onboard a: %v", err)
	}
	if !user.OnboardingComplete || user.Handle == nil || *user.Handle != "alice" {
		t.Fatalf("unexpected onboarded user: %+v", user)
	}

	seed.ID = "p2"
	if _, err := repo.CompleteOnboarding(ctx, "clerk_b", req, seed); !errors.Is(err, ErrHandleTaken) {
		t.Fatalf("expected ErrHandleTaken, got %v", err)
	}
	other, _ := repo.FindByClerkUserID(ctx, "clerk_b")
	if other.OnboardingComplete || other.Handle != nil {
		t.Fatalf("expected loser to be untouched, got %+v", other)
	}
	if _, err := repo.LatestPresence(ctx, "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no presence for loser, got %v", err)
	}

	// Re-onboarding with the user's own handle is not a conflict.
	seed.ID = "p3"
	seed.UpdatedAt = testNow.Add(time.Minute)
	if _, err := repo.CompleteOnboarding(ctx, "clerk_a", req, seed); err != nil {
		t.Fatalf("expected own handle to be reusable, got %v", err)
	}

	if _, err := repo.CompleteOnboarding(ctx, "missing", req, seed); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryUpdateUserReleasesOldHandle(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	seedUser(t, repo, "u1", "clerk_a")
	seedUser(t, repo, "u2", "clerk_b")

	first := "first"
	if _, err := repo.UpdateUser(ctx, "clerk_a", domain.UserPatch{Handle: &first}, testNow); err != nil {
		t.Fatalf("claim first: %v", err)
	}
	second := "second"
	if _, err := repo.UpdateUser(ctx, "clerk_a", domain.UserPatch{Handle: &second}, testNow); err != nil {
		t.Fatalf("claim second: %v", err)
	}
	if _, err := repo.UpdateUser(ctx, "clerk_b", domain.UserPatch{Handle: &first}, testNow); err != nil {
		t.Fatalf("expected released handle to be claimable, got %v", err)
	}
	if _, err := repo.UpdateUser(ctx, "clerk_b", domain.UserPatch{Handle: &second}, testNow); !errors.Is(err, ErrHandleTaken) {
		t.Fatalf("expected ErrHandleTaken, got %v", err)
	}

	notDone := false
	done := true
	if _, err := repo.UpdateUser(ctx, "clerk_a", domain.UserPatch{OnboardingComplete: &done}, testNow); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	user, err := repo.UpdateUser(ctx, "clerk_a", domain.UserPatch{OnboardingComplete: &notDone}, testNow)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if !user.OnboardingComplete {
		t.Fatal("expected onboarding flag to stay set")
	}

	if _, err := repo.UpdateUser(ctx, "missing", domain.UserPatch{Handle: &first}, testNow); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestMemoryLatestPresence(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	rows := []domain.Presence{
		{ID: "p1", UserID: "u1", City: "Lisbon", Status: domain.PresenceHome, Visibility: domain.VisibilityFriends, UpdatedAt: testNow},
		{ID: "p2", UserID: "u1", City: "Porto", Status: domain.PresenceTravel, Visibility: domain.VisibilityHub, UpdatedAt: testNow.Add(time.Hour)},
		{ID: "p3", UserID: "u1", City: "Faro", Status: domain.PresenceTravel, Visibility: domain.VisibilityHub, UpdatedAt: testNow.Add(30 * time.Minute)},
		{ID: "p4", UserID: "u2", City: "Porto", Status: domain.PresenceTravel, Visibility: domain.VisibilityPrivate, UpdatedAt: testNow},
		{ID: "p5", UserID: "u3", City: "Porto", Status: domain.PresenceHome, Visibility: domain.VisibilityFOF, UpdatedAt: testNow},
	}
	for i := range rows {
		if err := repo.AppendPresence(ctx, &rows[i]); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	latest, err := repo.LatestPresence(ctx, "u1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != "p2" {
		t.Fatalf("expected newest row p2, got %s", latest.ID)
	}

	inPorto, err := repo.LatestPresenceInCity(ctx, "Porto")
	if err != nil {
		t.Fatalf("in city: %v", err)
	}
	var ids []string
	for _, p := range inPorto {
		ids = append(ids, p.ID)
	}
	if diff := cmp.Diff([]string{"p2", "p5"}, ids); diff != "" {
		t.Fatalf("city presence mismatch (-want +got):\n%s", diff)
	}
}

func TestMemorySetMemberStatusEnforcesCapacity(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	group := &domain.Group{ID: "g1", HostUserID: "host", CapacityMin: 1, CapacityMax: 2, Status: domain.GroupOpen, EndDate: testNow.Add(time.Hour)}
	host := &domain.GroupMember{ID: "m0", GroupID: "g1", UserID: "host", Role: domain.RoleHost, JoinStatus: domain.JoinApproved}
	if err := repo.CreateGroup(ctx, group, host); err != nil {
		t.Fatalf("create group: %v", err)
	}
	for _, uid := range []string{"a", "b"} {
		if err := repo.CreateMember(ctx, &domain.GroupMember{ID: "m_" + uid, GroupID: "g1", UserID: uid, Role: domain.RoleMember, JoinStatus: domain.JoinPending}); err != nil {
			t.Fatalf("create member %s: %v", uid, err)
		}
	}
	if err := repo.CreateMember(ctx, &domain.GroupMember{ID: "dup", GroupID: "g1", UserID: "a"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate membership, got %v", err)
	}

	updated, err := repo.SetMemberStatus(ctx, "g1", "a", domain.JoinApproved, testNow)
	if err != nil {
		t.Fatalf("approve a: %v", err)
	}
	if updated.Status != domain.GroupFull {
		t.Fatalf("expected group to be full, got %q", updated.Status)
	}
	if _, err := repo.SetMemberStatus(ctx, "g1", "b", domain.JoinApproved, testNow); !errors.Is(err, ErrGroupFull) {
		t.Fatalf("expected ErrGroupFull, got %v", err)
	}

	updated, err = repo.SetMemberStatus(ctx, "g1", "a", domain.JoinRemoved, testNow)
	if err != nil {
		t.Fatalf("remove a: %v", err)
	}
	if updated.Status != domain.GroupOpen {
		t.Fatalf("expected group to reopen, got %q", updated.Status)
	}

	closed, err := repo.CloseExpiredGroups(ctx, testNow.Add(2*time.Hour))
	if err != nil || closed != 1 {
		t.Fatalf("expected one group closed, got %d (%v)", closed, err)
	}
}

func TestMemoryOutboxClaimRetryPublish(t *testing.T) {
	repo := NewMemoryRepository()
	clock := testNow
	repo.now = func() time.Time { return clock }
	ctx := context.Background()

	seedUser(t, repo, "u1", "clerk_a")
	name := "Jane"
	if _, err := repo.UpdateUser(ctx, "clerk_a", domain.UserPatch{DisplayName: &name}, testNow,
		OutboxEvent{Exchange: "social_events", RoutingKey: domain.EventUserUpdated, Payload: domain.UserUpdatedEvent{UserID: "u1"}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	claimed, err := repo.ClaimOutboxMessages(ctx, 10, 120)
	if err != nil || len(claimed) != 1 || claimed[0].Attempts != 1 {
		t.Fatalf("expected one claimed message, got %+v (%v)", claimed, err)
	}
	if again, _ := repo.ClaimOutboxMessages(ctx, 10, 120); len(again) != 0 {
		t.Fatalf("expected in-flight message not to be reclaimed, got %+v", again)
	}

	if err := repo.MarkOutboxFailed(ctx, claimed[0].ID, 4, "broker down"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if early, _ := repo.ClaimOutboxMessages(ctx, 10, 120); len(early) != 0 {
		t.Fatalf("expected backoff to delay retry, got %+v", early)
	}

	clock = clock.Add(5 * time.Second)
	retry, _ := repo.ClaimOutboxMessages(ctx, 10, 120)
	if len(retry) != 1 || retry[0].Attempts != 2 {
		t.Fatalf("expected retry with attempt 2, got %+v", retry)
	}
	if err := repo.MarkOutboxPublished(ctx, retry[0].ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if pending := repo.PendingOutbox(); len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %v", pending)
	}
}
