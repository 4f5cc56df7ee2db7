package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const clerkUserIDContextKey contextKey = "clerkUserID"

// AuthMiddlewareConfig controls how incoming requests are authenticated.
type AuthMiddlewareConfig struct {
	JWKSURL             string
	ExpectedAudience    string
	ExpectedIssuer      string
	AllowHeaderFallback bool
}

// tokenVerifier checks RS256 session tokens against the Clerk key set.
type tokenVerifier struct {
	keys    *keySet
	options []jwt.ParserOption
}

func newTokenVerifier(cfg AuthMiddlewareConfig) *tokenVerifier {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
	}
	if issuer := strings.TrimSpace(cfg.ExpectedIssuer); issuer != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(cfg.ExpectedAudience); audience != "" {
		options = append(options, jwt.WithAudience(audience))
	}
	return &tokenVerifier{keys: newKeySet(cfg.JWKSURL), options: options}
}

// subject returns the sub claim of a valid token.
func (v *tokenVerifier) subject(ctx context.Context, raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("token has no kid")
		}
		return v.keys.key(ctx, kid)
	}, v.options...)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// ClerkAuthMiddleware validates Clerk session JWTs and puts the Clerk user id
// into the request context. For local environments the X-Clerk-User-Id header
// can be trusted instead when AllowHeaderFallback is set.
func ClerkAuthMiddleware(cfg AuthMiddlewareConfig) func(http.Handler) http.Handler {
	verifier := newTokenVerifier(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader != "" {
				tokenString, ok := bearerToken(authHeader)
				if !ok {
					writeMessage(w, http.StatusUnauthorized, "Invalid Authorization header format")
					return
				}
				if verifier.keys.url == "" {
					writeMessage(w, http.StatusUnauthorized, "Token verification is not configured")
					return
				}

				userID, err := verifier.subject(r.Context(), tokenString)
				if err != nil {
					writeMessage(w, http.StatusUnauthorized, "Invalid token")
					return
				}
				next.ServeHTTP(w, r.WithContext(WithClerkUserID(r.Context(), userID)))
				return
			}

			if cfg.AllowHeaderFallback {
				if userID := strings.TrimSpace(r.Header.Get("X-Clerk-User-Id")); userID != "" {
					next.ServeHTTP(w, r.WithContext(WithClerkUserID(r.Context(), userID)))
					return
				}
			}

			writeMessage(w, http.StatusUnauthorized, "Authorization required")
		})
	}
}

// GetClerkUserID returns the authenticated Clerk user ID from request context.
func GetClerkUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(clerkUserIDContextKey).(string)
	return userID, ok && userID != ""
}

func WithClerkUserID(ctx context.Context, clerkUserID string) context.Context {
	return context.WithValue(ctx, clerkUserIDContextKey, clerkUserID)
}

func bearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}

	return token, true
}
