// Package config loads runtime settings for both the api and worker
// entrypoints from environment variables, degrading a single feature's
// job rather than crashing the process when an optional var is absent.
package config

import (
	"fmt"
	"os"
)

// Config holds runtime settings loaded from env vars.
type Config struct {
	HTTPAddr    string
	DatabaseURL string
	RedisURL    string
	Environment string
	LogLevel    string

	EnableSentry      bool
	SentryDSN         string
	SentryEnvironment string

	// Slack OAuth + delivery.
	SlackClientID     string
	SlackClientSecret string
	SlackBotToken     string

	// AI insight provider; optional — absence falls back to the
	// heuristic summary, never a hard failure.
	AIProviderBaseURL string
	AIProviderAPIKey  string

	CronSecret string
	SiteURL    string

	WebhookProxySecret    string
	WebhookProviderSecret string

	ScheduleDailyDigestCron        string
	ScheduleMorningBriefCron       string
	ScheduleMeetingPrepCron        string
	ScheduleDealMomentumNudgeCron  string
	ScheduleMeetingDebriefCron     string
	ScheduleReengagementCron       string
	ScheduleReconciliationCron     string
	ScheduleDLQReplayCron          string
	ScheduleTranscriptQueueTickCron string
}

// Load loads configuration from environment variables. Only
// DATABASE_URL is required; every other feature-specific var degrades
// that feature alone (per §6: "Absent required env for a feature
// causes that feature's job to log and exit 0, no crash").
func Load() Config {
	return Config{
		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		DatabaseURL: envRequired("DATABASE_URL"),
		RedisURL:    envOr("REDIS_URL", "redis://localhost:6379/0"),
		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    envOr("LOG_LEVEL", "info"),

		EnableSentry:      envOr("ENABLE_SENTRY", "false") == "true",
		SentryDSN:         envOr("SENTRY_DSN", ""),
		SentryEnvironment: envOr("SENTRY_ENVIRONMENT", "development"),

		SlackClientID:     envOr("SLACK_CLIENT_ID", ""),
		SlackClientSecret: envOr("SLACK_CLIENT_SECRET", ""),
		SlackBotToken:     envOr("SLACK_BOT_TOKEN", ""),

		AIProviderBaseURL: envOr("AI_PROVIDER_BASE_URL", ""),
		AIProviderAPIKey:  envOr("AI_PROVIDER_API_KEY", ""),

		CronSecret: envOr("CRON_SECRET", ""),
		SiteURL:    envOr("SITE_URL", "http://localhost:3000"),

		WebhookProxySecret:    envOr("WEBHOOK_PROXY_SECRET", ""),
		WebhookProviderSecret: envOr("WEBHOOK_PROVIDER_SECRET", ""),

		ScheduleDailyDigestCron:         envOr("SCHEDULE_DAILY_DIGEST_CRON", "0 10 * * *"),
		ScheduleMorningBriefCron:        envOr("SCHEDULE_MORNING_BRIEF_CRON", "0 8 * * *"),
		ScheduleMeetingPrepCron:         envOr("SCHEDULE_MEETING_PREP_CRON", "*/15 * * * *"),
		ScheduleDealMomentumNudgeCron:   envOr("SCHEDULE_DEAL_MOMENTUM_NUDGE_CRON", "0 9 * * *"),
		ScheduleMeetingDebriefCron:      envOr("SCHEDULE_MEETING_DEBRIEF_CRON", "*/10 * * * *"),
		ScheduleReengagementCron:        envOr("SCHEDULE_REENGAGEMENT_CRON", "0 10 * * *"),
		ScheduleReconciliationCron:      envOr("SCHEDULE_RECONCILIATION_CRON", "*/30 * * * *"),
		ScheduleDLQReplayCron:           envOr("SCHEDULE_DLQ_REPLAY_CRON", "*/5 * * * *"),
		ScheduleTranscriptQueueTickCron: envOr("SCHEDULE_TRANSCRIPT_QUEUE_TICK_CRON", "* * * * *"),
	}
}

// Validate checks that all required configuration is present and valid.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("WARNING: %s is not set. This is required in production.\n", key)
	}
	return value
}
