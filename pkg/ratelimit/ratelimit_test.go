package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseWindowResult(t *testing.T) {
	count, retry, err := parseWindowResult([]interface{}{int64(3), int64(1500)}, 60000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 || retry != 2 {
		t.Fatalf("expected count=3 retry=2, got count=%d retry=%d", count, retry)
	}

	_, retry, err = parseWindowResult([]interface{}{int64(1), int64(-1)}, 60000)
	if err != nil || retry != 60 {
		t.Fatalf("expected missing ttl to fall back to window, got retry=%d err=%v", retry, err)
	}

	if _, _, err := parseWindowResult("OK", 1000); err == nil {
		t.Fatal("expected error for unexpected response shape")
	}
}

func TestRedisLimiterNilIsNoop(t *testing.T) {
	var limiter *RedisLimiter
	count, retry, err := limiter.Consume(context.Background(), "api", "user_1", 10, time.Minute)
	if err != nil || count != 0 || retry != 0 {
		t.Fatalf("expected no-op, got count=%d retry=%d err=%v", count, retry, err)
	}
}

func TestIPRateLimiterMiddleware(t *testing.T) {
	limiter := NewIPRateLimiter(0.001, 2, time.Minute, false)
	handler := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/clerk", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1:4000"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := do("10.0.0.1:4001"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once burst is spent, got %d", code)
	}
	if code := do("10.0.0.2:4000"); code != http.StatusOK {
		t.Fatalf("expected other IP to be unaffected, got %d", code)
	}
}

func TestClientIPHonoursProxySetting(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 192.0.2.10")

	if got := NewIPRateLimiter(1, 1, time.Minute, true).clientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected forwarded client IP, got %q", got)
	}
	if got := NewIPRateLimiter(1, 1, time.Minute, false).clientIP(req); got != "192.0.2.10" {
		t.Fatalf("expected remote address, got %q", got)
	}
}
