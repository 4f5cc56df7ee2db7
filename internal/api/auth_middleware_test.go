package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type testIssuer struct {
	key    *rsa.PrivateKey
	server *httptest.Server
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	jwks := map[string]any{
		"keys": []map[string]string{{
			"kid": "test-key",
			"kty": "RSA",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	return &testIssuer{key: key, server: server}
}

func (i *testIssuer) token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-key"
	signed, err := token.SignedString(i.key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestClerkAuthMiddleware(t *testing.T) {
	issuer := newTestIssuer(t)
	now := time.Now()

	validClaims := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "user_abc",
			"iss": "https://clerk.example.com",
			"aud": []string{"wayfarer"},
			"exp": now.Add(time.Hour).Unix(),
			"iat": now.Unix(),
		}
	}

	tests := []struct {
		name          string
		header        func() (string, string)
		allowFallback bool
		wantStatus    int
		wantUser      string
	}{
		{
			name:       "valid token",
			header:     func() (string, string) { return "Authorization", "Bearer " + issuer.token(t, validClaims()) },
			wantStatus: http.StatusOK,
			wantUser:   "user_abc",
		},
		{
			name: "expired token",
			header: func() (string, string) {
				claims := validClaims()
				claims["exp"] = now.Add(-time.Hour).Unix()
				return "Authorization", "Bearer " + issuer.token(t, claims)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong issuer",
			header: func() (string, string) {
				claims := validClaims()
				claims["iss"] = "https://evil.example.com"
				return "Authorization", "Bearer " + issuer.token(t, claims)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong audience",
			header: func() (string, string) {
				claims := validClaims()
				claims["aud"] = "someone-else"
				return "Authorization", "Bearer " + issuer.token(t, claims)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "single audience string",
			header: func() (string, string) {
				claims := validClaims()
				claims["aud"] = "wayfarer"
				return "Authorization", "Bearer " + issuer.token(t, claims)
			},
			wantStatus: http.StatusOK,
			wantUser:   "user_abc",
		},
		{
			name: "missing subject",
			header: func() (string, string) {
				claims := validClaims()
				delete(claims, "sub")
				return "Authorization", "Bearer " + issuer.token(t, claims)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "missing expiry",
			header: func() (string, string) {
				claims := validClaims()
				delete(claims, "exp")
				return "Authorization", "Bearer " + issuer.token(t, claims)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			header:     func() (string, string) { return "Authorization", "Token abc" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "header fallback disabled",
			header:     func() (string, string) { return "X-Clerk-User-Id", "user_abc" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:          "header fallback enabled",
			header:        func() (string, string) { return "X-Clerk-User-Id", "user_abc" },
			allowFallback: true,
			wantStatus:    http.StatusOK,
			wantUser:      "user_abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = GetClerkUserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			handler := ClerkAuthMiddleware(AuthMiddlewareConfig{
				JWKSURL:             issuer.server.URL,
				ExpectedIssuer:      "https://clerk.example.com",
				ExpectedAudience:    "wayfarer",
				AllowHeaderFallback: tt.allowFallback,
			})(next)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			name, value := tt.header()
			req.Header.Set(name, value)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if gotUser != tt.wantUser {
				t.Fatalf("expected user %q, got %q", tt.wantUser, gotUser)
			}
		})
	}
}

func TestKeySet(t *testing.T) {
	issuer := newTestIssuer(t)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		issuer.server.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	keys := newKeySet(server.URL)
	ctx := context.Background()

	key, err := keys.key(ctx, "test-key")
	if err != nil {
		t.Fatalf("expected key, got %v", err)
	}
	if key.N.Cmp(issuer.key.PublicKey.N) != 0 || key.E != issuer.key.PublicKey.E {
		t.Fatal("decoded key does not match the issuer key")
	}
	if _, err := keys.key(ctx, "test-key"); err != nil {
		t.Fatalf("expected cached key, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}

	// an unknown kid may refetch once, then waits for the limiter
	for i := 0; i < 3; i++ {
		if _, err := keys.key(ctx, "rotated"); !errors.Is(err, errUnknownKID) {
			t.Fatalf("expected errUnknownKID, got %v", err)
		}
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
}

func TestJWKRSAPublicKey(t *testing.T) {
	tests := []struct {
		name    string
		key     jwk
		wantErr bool
	}{
		{name: "valid", key: jwk{Kid: "a", Kty: "RSA", N: "sXch", E: "AQAB"}},
		{name: "bad modulus", key: jwk{Kid: "a", Kty: "RSA", N: "!!", E: "AQAB"}, wantErr: true},
		{name: "empty modulus", key: jwk{Kid: "a", Kty: "RSA", N: "", E: "AQAB"}, wantErr: true},
		{name: "zero exponent", key: jwk{Kid: "a", Kty: "RSA", N: "sXch", E: "AA"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.key.rsaPublicKey()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}
