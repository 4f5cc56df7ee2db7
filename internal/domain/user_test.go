package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "alice", want: "alice"},
		{input: "  Alice_99 ", want: "alice_99"},
		{input: "ab", wantErr: true},
		{input: strings.Repeat("a", 21), wantErr: true},
		{input: strings.Repeat("a", 20), want: strings.Repeat("a", 20)},
		{input: "al ice", wantErr: true},
		{input: "alice!", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeHandle(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidHandle) {
					t.Fatalf("expected ErrInvalidHandle, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNormalizeInterests(t *testing.T) {
	got, err := NormalizeInterests([]string{" Nightlife ", "Food & Dining", "nightlife"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"Nightlife", "Food & Dining"}, got); diff != "" {
		t.Fatalf("interests mismatch (-want +got):\n%s", diff)
	}

	if _, err := NormalizeInterests([]string{"a", "b", "c", "d", "e", "f"}); !errors.Is(err, ErrTooManyInterests) {
		t.Fatalf("expected ErrTooManyInterests, got %v", err)
	}
	if _, err := NormalizeInterests([]string{"Music", "  "}); !errors.Is(err, ErrBlankInterest) {
		t.Fatalf("expected ErrBlankInterest, got %v", err)
	}

	empty, err := NormalizeInterests(nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty interests, got %v (%v)", empty, err)
	}
}

func TestOnboardingRequestNormalize(t *testing.T) {
	req := OnboardingRequest{Handle: " Alice ", HomeCity: "  Lisbon ", Interests: []string{"Adventure"}}
	if err := req.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := OnboardingRequest{Handle: "alice", HomeCity: "Lisbon", Interests: []string{"Adventure"}}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}

	missingCity := OnboardingRequest{Handle: "alice", HomeCity: "   "}
	if err := missingCity.Normalize(); !errors.Is(err, ErrHomeCityRequired) {
		t.Fatalf("expected ErrHomeCityRequired, got %v", err)
	}
}

func TestDisplayNameFromParts(t *testing.T) {
	tests := []struct {
		first, last, want string
	}{
		{first: "Jane", last: "Doe", want: "Jane Doe"},
		{first: "Jane", last: "", want: "Jane"},
		{first: "", last: "Doe", want: "Doe"},
		{first: "", last: "", want: "User"},
		{first: "  ", last: " ", want: "User"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := DisplayNameFromParts(tt.first, tt.last); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestClerkWebhookEventDecoding(t *testing.T) {
	body := `{"type":"user.created","data":{"id":"ext123","email_addresses":[{"email_address":"a@b.com"},{"email_address":"c@d.com"}],"first_name":"Jane","last_name":null}}`

	var event ClerkWebhookEvent
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Type != ClerkUserCreated {
		t.Fatalf("expected type %q, got %q", ClerkUserCreated, event.Type)
	}
	if email := event.Data.PrimaryEmail(); email == nil || *email != "a@b.com" {
		t.Fatalf("expected first email a@b.com, got %v", email)
	}
	if name := event.Data.DisplayName(); name != "Jane" {
		t.Fatalf("expected display name Jane, got %q", name)
	}

	var noEmail ClerkUserData
	if noEmail.PrimaryEmail() != nil {
		t.Fatal("expected nil email when no addresses are present")
	}
}

func TestPresenceVisibilityDefault(t *testing.T) {
	var nilUser *User
	if got := nilUser.PresenceVisibility(); got != VisibilityFriends {
		t.Fatalf("expected friends for nil user, got %q", got)
	}
	user := &User{Settings: &UserSettings{PresenceVisibilityDefault: VisibilityHub}}
	if got := user.PresenceVisibility(); got != VisibilityHub {
		t.Fatalf("expected hub, got %q", got)
	}
}

func TestTripRequestNormalize(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	req := TripRequest{City: " Tokyo ", StartDate: start, EndDate: start.Add(72 * time.Hour)}
	if err := req.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.City != "Tokyo" || req.Visibility != VisibilityFriends {
		t.Fatalf("unexpected normalized trip: %+v", req)
	}

	backwards := TripRequest{City: "Tokyo", StartDate: start, EndDate: start.Add(-time.Hour)}
	if err := backwards.Normalize(); !errors.Is(err, ErrInvalidTripWindow) {
		t.Fatalf("expected ErrInvalidTripWindow, got %v", err)
	}

	if !TripIsCurrent(start, start.Add(time.Hour), start) {
		t.Fatal("expected trip to be current at its start instant")
	}
	if TripIsCurrent(start, start.Add(time.Hour), start.Add(2*time.Hour)) {
		t.Fatal("expected trip to be over after its end")
	}
}

func TestGroupRequestNormalize(t *testing.T) {
	start := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	base := GroupRequest{
		Title:       "Sunset drinks",
		City:        "Lisbon",
		StartDate:   start,
		EndDate:     start.Add(3 * time.Hour),
		CapacityMin: 2,
		CapacityMax: 6,
		Tags:        []string{" bars ", ""},
	}

	ok := base
	if err := ok.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.Composition.Preset != PresetAny || ok.Visibility != VisibilityHub {
		t.Fatalf("expected defaults to be applied, got %+v", ok)
	}
	if diff := cmp.Diff([]string{"bars"}, ok.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}

	badCapacity := base
	badCapacity.CapacityMin = 7
	if err := badCapacity.Normalize(); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}

	badPreset := base
	badPreset.Composition.Preset = "everyone"
	if err := badPreset.Normalize(); !errors.Is(err, ErrInvalidPreset) {
		t.Fatalf("expected ErrInvalidPreset, got %v", err)
	}
}

func TestNormalizeMessage(t *testing.T) {
	if _, err := NormalizeMessage("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := NormalizeMessage(strings.Repeat("x", MaxMessageLength+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong, got %v", err)
	}
	got, err := NormalizeMessage(" hello ")
	if err != nil || got != "hello" {
		t.Fatalf("expected trimmed content, got %q (%v)", got, err)
	}
}
