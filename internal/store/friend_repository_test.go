package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wayfarer/social-service/internal/domain"
)

func TestPostgresListFriendEdges(t *testing.T) {
	tests := []struct {
		name      string
		direction domain.FriendDirection
		status    domain.FriendStatus
		expect    *regexp.Regexp
	}{
		{
			name:      "outgoing accepted",
			direction: domain.FriendOutgoing,
			status:    domain.FriendAccepted,
			expect:    regexp.MustCompile(`WHERE user_id = \$1 AND \(\$2 = '' OR status = \$2\)`),
		},
		{
			name:      "incoming requests hide blocks",
			direction: domain.FriendIncoming,
			status:    domain.FriendRequested,
			expect:    regexp.MustCompile(`WHERE friend_user_id = \$1 AND status <> 'blocked' AND \(\$2 = '' OR status = \$2\)`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{
				t: t,
				queries: []queryExpectation{
					{
						expect: tt.expect,
						args:   []any{"u-1", string(tt.status)},
						rows:   [][]any{{"f-1", "u-2", "u-1", string(tt.status), repoNow, repoNow}},
					},
				},
			}
			edges, err := NewPostgresRepository(db).ListFriendEdges(context.Background(), "u-1", tt.direction, tt.status)
			if err != nil {
				t.Fatalf("ListFriendEdges returned error: %v", err)
			}
			if len(edges) != 1 || edges[0].Status != tt.status {
				t.Fatalf("unexpected edges %+v", edges)
			}
			db.assertDone()
		})
	}
}

func TestPostgresCreateNotification_IgnoresExistingID(t *testing.T) {
	db := &fakeDB{
		t: t,
		execs: []execExpectation{
			{
				expect: regexp.MustCompile(`(?s)INSERT INTO notifications .*ON CONFLICT \(id\) DO NOTHING`),
				args:   []any{"n-1", "u-1", "friend_request", "{}", false, repoNow},
				tag:    "INSERT 0 0",
			},
		},
	}
	err := NewPostgresRepository(db).CreateNotification(context.Background(), &domain.Notification{
		ID: "n-1", UserID: "u-1", Type: "friend_request", CreatedAt: repoNow,
	})
	if err != nil {
		t.Fatalf("CreateNotification returned error: %v", err)
	}
	db.assertDone()
}

func TestPostgresMarkNotificationRead(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		err     error
		wantErr error
	}{
		{name: "marked", tag: "UPDATE 1"},
		{name: "not owned", tag: "UPDATE 0", wantErr: ErrNotFound},
		{name: "malformed id", err: &pgconn.PgError{Code: "22P02"}, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{
				t: t,
				execs: []execExpectation{
					{expect: regexp.MustCompile(`UPDATE notifications SET is_read = TRUE WHERE id = \$1 AND user_id = \$2`), args: []any{"n-1", "u-1"}, tag: tt.tag, err: tt.err},
				},
			}
			err := NewPostgresRepository(db).MarkNotificationRead(context.Background(), "u-1", "n-1")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			db.assertDone()
		})
	}
}
