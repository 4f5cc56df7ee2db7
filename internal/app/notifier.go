package app

import (
	"context"
	"log/slog"

	"github.com/wayfarer/social-service/internal/store"
	"github.com/wayfarer/social-service/pkg/changefeed"
)

// changeNotifier tells subscribed clients that data they watch has changed.
// Publish failures are logged; the write has already committed.
type changeNotifier struct {
	feed   changefeed.Feed
	users  store.UserRepository
	logger *slog.Logger
}

func (n changeNotifier) clerkUsers(ctx context.Context, clerkUserIDs ...string) {
	if n.feed == nil {
		return
	}
	for _, clerkUserID := range clerkUserIDs {
		if clerkUserID == "" {
			continue
		}
		if err := n.feed.Publish(ctx, changefeed.UserTopic(clerkUserID)); err != nil {
			n.logger.Warn("failed to publish change notification", "clerk_user_id", clerkUserID, "error", err)
		}
	}
}

// userIDs resolves internal user ids to Clerk ids before notifying.
func (n changeNotifier) userIDs(ctx context.Context, userIDs ...string) {
	if n.feed == nil {
		return
	}
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		user, err := n.users.FindByID(ctx, id)
		if err != nil {
			n.logger.Warn("skipping change notification for unknown user", "user_id", id, "error", err)
			continue
		}
		n.clerkUsers(ctx, user.ClerkUserID)
	}
}
