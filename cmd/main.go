// Command social-service runs the HTTP API, the Clerk webhook, the outbox
// dispatcher, the notification consumer and the maintenance scheduler.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/wayfarer/social-service/internal/api"
	"github.com/wayfarer/social-service/internal/app"
	"github.com/wayfarer/social-service/internal/config"
	"github.com/wayfarer/social-service/internal/store"
	"github.com/wayfarer/social-service/pkg/changefeed"
	"github.com/wayfarer/social-service/pkg/rabbitmq"
	"github.com/wayfarer/social-service/pkg/ratelimit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file loaded", "error", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting social-service", "port", cfg.ServerPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repository, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	redisClient := openRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var feed changefeed.Feed = changefeed.NewHub()
	var limiter *ratelimit.RedisLimiter
	var dedup api.Deduper
	if redisClient != nil {
		feed = changefeed.NewRedisFeed(redisClient, "")
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RedisRateLimitPrefix)
		dedup = api.NewRedisDeduper(redisClient, "")
	}

	users := app.NewUserService(repository, feed, logger, cfg.EventsExchange)
	social := app.NewSocialService(repository, feed, logger, cfg.EventsExchange)
	notifications := app.NewNotificationHandler(repository, feed, logger)

	dial := startMessaging(ctx, cfg, notifications, logger)
	if dial != nil {
		pollInterval := time.Duration(cfg.OutboxPollIntervalMillis) * time.Millisecond
		dispatcher := app.NewOutboxDispatcher(repository, dial, logger, pollInterval)
		go dispatcher.Run(ctx)
	}

	scheduler := app.NewScheduler(app.NewJobs(repository, logger), logger, *cfg)
	scheduler.Start()
	logger.Info("scheduler started")

	webhook, err := api.NewClerkWebhookHandler(users, cfg.ClerkWebhookSecret, dedup, logger)
	if err != nil {
		logger.Error("invalid webhook configuration", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterConfig{
		Users:   api.NewUserHandlers(users, logger),
		Social:  api.NewSocialHandlers(social, logger),
		Stream:  api.NewStreamHandler(users, feed, logger),
		Webhook: webhook,
		Store:   repository,
		Auth: api.AuthMiddlewareConfig{
			JWKSURL:             cfg.ClerkJWKSURL,
			ExpectedAudience:    cfg.ClerkAudience,
			ExpectedIssuer:      cfg.ClerkIssuer,
			AllowHeaderFallback: cfg.AllowHeaderAuthFallback,
		},
		Logger:             logger,
		Metrics:            cfg.PrometheusEnabled,
		Origins:            cfg.AllowedOrigins(),
		UserLimiter:        limiter,
		UserLimitPerMinute: cfg.APIRateLimitPerMinute,
		WebhookLimiter:     ratelimit.NewIPRateLimiter(float64(cfg.WebhookRateLimitPerSec), cfg.WebhookRateLimitPerSec*2, 10*time.Minute, false),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	<-scheduler.Stop().Done()
	logger.Info("shutdown complete")
}

// openStore connects to Postgres and applies migrations, or falls back to the
// in-memory store when DATABASE_URL is empty.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Repository, func(), error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL is not set; using the in-memory store, data will not survive a restart")
		return store.NewMemoryRepository(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to stay compatible with poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := store.ApplyMigrations(ctx, dbpool, logger); err != nil {
		dbpool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("database connection established")

	return store.NewPostgresRepository(dbpool), dbpool.Close, nil
}

// openRedis returns nil when Redis is not configured or unreachable; the
// features backed by it degrade to in-process equivalents.
func openRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn("REDIS_URL is not set; rate limiting disabled and changes stay in-process")
		return nil
	}

	options, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; continuing without redis", "error", err)
		return nil
	}

	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; continuing without redis", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected")
	return client
}

// startMessaging starts the notification consumer and returns how the outbox
// dispatcher reaches a publisher. Without RabbitMQ, events are delivered to the
// notification handler in process.
func startMessaging(ctx context.Context, cfg *config.Config, notifications *app.NotificationHandler, logger *slog.Logger) app.DialFunc {
	if strings.TrimSpace(cfg.RabbitMQURL) == "" {
		logger.Warn("RABBITMQ_URL is not set; delivering events in process")
		local := app.NewLocalPublisher(notifications.Bindings(), logger)
		return func() (rabbitmq.Publisher, error) { return local, nil }
	}

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		logger.Error("rabbitmq consumer unavailable; notifications will not be created", "error", err, "url", rabbitmq.MaskURL(cfg.RabbitMQURL))
	} else {
		if err := consumer.ConsumeWithBindings(ctx, cfg.EventsExchange, cfg.NotificationQueue, notifications.Bindings()); err != nil {
			logger.Error("notification consumer failed to start", "error", err)
			consumer.Close()
		} else {
			logger.Info("notification consumer started", "queue", cfg.NotificationQueue)
			go func() {
				<-ctx.Done()
				consumer.Close()
			}()
		}
	}

	return func() (rabbitmq.Publisher, error) {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			return nil, err
		}
		return producer, nil
	}
}
