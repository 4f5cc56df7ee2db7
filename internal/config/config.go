// Package config loads service settings from the environment and an optional
// .env file using viper.
package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultServerPort          = "8080"
	defaultRateLimitPrefix     = "wayfarer:rate_limit"
	defaultEventsExchange      = "social_events"
	defaultNotificationQueue   = "social_service.notifications"
	defaultAPIRatePerMinute    = 120
	defaultWebhookRatePerSec   = 10
	defaultTripRefreshSchedule = "@every 15m"
	defaultGroupExpirySchedule = "@every 5m"
	defaultOutboxPollMs        = 1200
)

// Config holds all configuration for the social service.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	EventsExchange           string `mapstructure:"EVENTS_EXCHANGE"`
	NotificationQueue        string `mapstructure:"NOTIFICATION_QUEUE"`
	ClerkJWKSURL             string `mapstructure:"CLERK_JWKS_URL"`
	ClerkIssuer              string `mapstructure:"CLERK_ISSUER"`
	ClerkAudience            string `mapstructure:"CLERK_AUDIENCE"`
	AllowHeaderAuthFallback  bool   `mapstructure:"ALLOW_HEADER_AUTH_FALLBACK"`
	ClerkWebhookSecret       string `mapstructure:"CLERK_WEBHOOK_SECRET"`
	CORSAllowedOrigins       string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	PrometheusEnabled        bool   `mapstructure:"PROMETHEUS_ENABLED"`
	APIRateLimitPerMinute    int    `mapstructure:"API_RATE_LIMIT_PER_MINUTE"`
	WebhookRateLimitPerSec   int    `mapstructure:"WEBHOOK_RATE_LIMIT_PER_SECOND"`
	TripRefreshSchedule      string `mapstructure:"TRIP_REFRESH_SCHEDULE"`
	GroupExpirySchedule      string `mapstructure:"GROUP_EXPIRY_SCHEDULE"`
	OutboxPollIntervalMillis int    `mapstructure:"OUTBOX_POLL_INTERVAL_MS"`
}

// LoadConfig reads configuration from environment variables and an optional
// .env file under path.
func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", defaultServerPort)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("NOTIFICATION_QUEUE", defaultNotificationQueue)
	viper.SetDefault("ALLOW_HEADER_AUTH_FALLBACK", false)
	viper.SetDefault("PROMETHEUS_ENABLED", false)
	viper.SetDefault("API_RATE_LIMIT_PER_MINUTE", defaultAPIRatePerMinute)
	viper.SetDefault("WEBHOOK_RATE_LIMIT_PER_SECOND", defaultWebhookRatePerSec)
	viper.SetDefault("TRIP_REFRESH_SCHEDULE", defaultTripRefreshSchedule)
	viper.SetDefault("GROUP_EXPIRY_SCHEDULE", defaultGroupExpirySchedule)
	viper.SetDefault("OUTBOX_POLL_INTERVAL_MS", defaultOutboxPollMs)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("NOTIFICATION_QUEUE")
	_ = viper.BindEnv("CLERK_JWKS_URL")
	_ = viper.BindEnv("CLERK_ISSUER")
	_ = viper.BindEnv("CLERK_AUDIENCE")
	_ = viper.BindEnv("ALLOW_HEADER_AUTH_FALLBACK")
	_ = viper.BindEnv("CLERK_WEBHOOK_SECRET")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("PROMETHEUS_ENABLED")
	_ = viper.BindEnv("API_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("WEBHOOK_RATE_LIMIT_PER_SECOND")
	_ = viper.BindEnv("TRIP_REFRESH_SCHEDULE")
	_ = viper.BindEnv("GROUP_EXPIRY_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_POLL_INTERVAL_MS")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.normalize()
	return &config, nil
}

func (c *Config) normalize() {
	c.ServerPort = strings.TrimSpace(c.ServerPort)
	if c.ServerPort == "" {
		c.ServerPort = defaultServerPort
	}
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.RabbitMQURL = strings.TrimSpace(c.RabbitMQURL)
	c.ClerkWebhookSecret = strings.TrimSpace(c.ClerkWebhookSecret)

	c.RedisRateLimitPrefix = strings.TrimSpace(c.RedisRateLimitPrefix)
	if c.RedisRateLimitPrefix == "" {
		c.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	if strings.TrimSpace(c.EventsExchange) == "" {
		c.EventsExchange = defaultEventsExchange
	}
	if strings.TrimSpace(c.NotificationQueue) == "" {
		c.NotificationQueue = defaultNotificationQueue
	}
	if c.APIRateLimitPerMinute <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive API rate limit; using default\" value=%d", c.APIRateLimitPerMinute)
		c.APIRateLimitPerMinute = defaultAPIRatePerMinute
	}
	if c.WebhookRateLimitPerSec <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive webhook rate limit; using default\" value=%d", c.WebhookRateLimitPerSec)
		c.WebhookRateLimitPerSec = defaultWebhookRatePerSec
	}
	if c.OutboxPollIntervalMillis <= 0 {
		c.OutboxPollIntervalMillis = defaultOutboxPollMs
	}
	if strings.TrimSpace(c.TripRefreshSchedule) == "" {
		c.TripRefreshSchedule = defaultTripRefreshSchedule
	}
	if strings.TrimSpace(c.GroupExpirySchedule) == "" {
		c.GroupExpirySchedule = defaultGroupExpirySchedule
	}
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas. Empty means any origin.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
