package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/wayfarer/social-service/internal/metrics"
	"github.com/wayfarer/social-service/pkg/ratelimit"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterConfig carries everything the HTTP surface is built from.
type RouterConfig struct {
	Users   *UserHandlers
	Social  *SocialHandlers
	Stream  http.Handler
	Webhook http.Handler
	Store   Pinger
	Auth    AuthMiddlewareConfig
	Logger  *slog.Logger
	Metrics bool
	Origins []string

	UserLimiter        *ratelimit.RedisLimiter
	UserLimitPerMinute int
	WebhookLimiter     *ratelimit.IPRateLimiter
}

// NewRouter creates the service's HTTP handler.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Clerk-User-Id", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if cfg.Metrics {
		r.Use(metrics.Middleware())
		r.Handle("/metrics", metrics.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Store == nil {
			writeText(w, http.StatusOK, "ready")
			return
		}
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := cfg.Store.Ping(ctx); err != nil {
			cfg.Logger.Warn("readiness check failed", "error", err)
			writeText(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		writeText(w, http.StatusOK, "ready")
	})

	r.Group(func(r chi.Router) {
		if cfg.WebhookLimiter != nil {
			r.Use(cfg.WebhookLimiter.Middleware())
		}
		r.Use(middleware.Timeout(30 * time.Second))
		r.Method(http.MethodPost, "/clerk", cfg.Webhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(cfg.Auth))
		r.Use(UserRateLimitMiddleware(cfg.UserLimiter, cfg.UserLimitPerMinute, cfg.Logger))

		// Long-lived; kept out of the request timeout below.
		r.Method(http.MethodGet, "/me/stream", cfg.Stream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/me", cfg.Users.GetMe)
			r.Patch("/me", cfg.Users.UpdateMe)
			r.Post("/me/onboarding", cfg.Users.CompleteOnboarding)
			r.Get("/users/by-handle/{handle}", cfg.Users.GetByHandle)

			r.Get("/me/presence", cfg.Social.GetPresence)
			r.Post("/me/presence", cfg.Social.UpdatePresence)
			r.Get("/presence", cfg.Social.ListPresence)

			r.Get("/me/trips", cfg.Social.ListTrips)
			r.Post("/me/trips", cfg.Social.CreateTrip)

			r.Get("/me/friends", cfg.Social.ListFriends)
			r.Post("/me/friends", cfg.Social.RequestFriend)
			r.Post("/me/friends/{userID}/accept", cfg.Social.AcceptFriend)
			r.Post("/me/friends/{userID}/block", cfg.Social.BlockUser)

			r.Route("/groups", func(r chi.Router) {
				r.Post("/", cfg.Social.CreateGroup)
				r.Get("/", cfg.Social.ListGroups)
				r.Get("/{groupID}", cfg.Social.GetGroup)
				r.Post("/{groupID}/join", cfg.Social.RequestToJoin)
				r.Post("/{groupID}/members/{userID}/decision", cfg.Social.DecideMembership)
				r.Delete("/{groupID}/members/{userID}", cfg.Social.RemoveMember)
				r.Get("/{groupID}/messages", cfg.Social.ListMessages)
				r.Post("/{groupID}/messages", cfg.Social.PostMessage)
			})

			r.Get("/me/notifications", cfg.Social.ListNotifications)
			r.Post("/me/notifications/read-all", cfg.Social.MarkAllNotificationsRead)
			r.Post("/me/notifications/{notificationID}/read", cfg.Social.MarkNotificationRead)
		})
	})

	return r
}

// UserRateLimitMiddleware applies a fixed per-minute request budget to each
// authenticated user. A nil limiter disables it; limiter errors let the request through.
func UserRateLimitMiddleware(limiter *ratelimit.RedisLimiter, perMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := GetClerkUserID(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			count, retryAfter, err := limiter.Consume(r.Context(), "api", subject, perMinute, time.Minute)
			if err != nil {
				logger.Warn("rate limiter unavailable", "clerk_user_id", subject, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if count > perMinute {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeMessage(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
