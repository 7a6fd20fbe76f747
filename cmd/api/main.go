// Package main is the entry point for the engagement engine's API
// service: webhook ingest, health/metrics, and the cron/admin trigger
// surface.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq"

	"github.com/sixtyapp/engagement-engine/internal/cache"
	"github.com/sixtyapp/engagement-engine/internal/crmdata"
	"github.com/sixtyapp/engagement-engine/internal/dispatch"
	"github.com/sixtyapp/engagement-engine/internal/engagement"
	"github.com/sixtyapp/engagement-engine/internal/monitoring"
	"github.com/sixtyapp/engagement-engine/internal/store"
	"github.com/sixtyapp/engagement-engine/internal/telemetry"
	"github.com/sixtyapp/engagement-engine/internal/webhook"
	"github.com/sixtyapp/engagement-engine/services/api/internal/config"
	"github.com/sixtyapp/engagement-engine/services/api/internal/httpserver"
	sentrypkg "github.com/sixtyapp/engagement-engine/services/api/internal/sentry"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	if err := sentrypkg.Init(cfg); err != nil {
		logger.Printf("WARNING: Sentry initialization failed: %v", err)
	} else if cfg.EnableSentry {
		logger.Printf("Sentry initialized for environment: %s", cfg.SentryEnvironment)
	}
	defer sentrypkg.Flush(2 * time.Second)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	if err := telemetry.InitGlobalLogger(telemetry.DefaultLogConfig()); err != nil {
		logger.Printf("WARNING: structured logger init failed: %v", err)
	}

	otelCfg := telemetry.LoadConfigFromEnv()
	shutdownOtel, err := telemetry.InitializeOpenTelemetry(context.Background(), otelCfg)
	if err != nil {
		logger.Printf("WARNING: OpenTelemetry init failed: %v", err)
	} else {
		defer shutdownOtel()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := telemetry.InstrumentDatabase("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Printf("failed to close db: %v", err)
		}
	}()

	redisConfig, err := cache.ConfigFromURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	redisService, err := cache.NewInstrumentedRedisService(redisConfig)
	if err != nil {
		logger.Printf("WARNING: redis connection failed, cache-backed features degraded: %v", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	userMetricsCache := store.NewCache(redisClient)

	asynqRedisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url for asynq: %v", err)
	}
	asynqClient := asynq.NewClient(asynqRedisOpt)
	defer asynqClient.Close()

	durable := store.NewDurableStore(db)
	engagementCfg := engagement.NewDefaultConfig()

	orgStore := crmdata.NewOrgStore(db)
	callStore := crmdata.NewCallStore(db)
	ownerResolver := crmdata.NewOwnerResolver(db)
	debriefEnqueuer := crmdata.NewAsynqEnqueuer(asynqClient)
	transcriptEnqueuer := crmdata.NewTranscriptIngestEnqueuer(durable, debriefEnqueuer)
	metricsProvider := crmdata.NewMetricsProvider(db, userMetricsCache, engagementCfg)

	var slackSender *dispatch.SlackSender
	if cfg.SlackBotToken != "" {
		slackSender = dispatch.NewSlackSender(cfg.SlackBotToken)
	}

	dispatcher := dispatch.NewDispatcher(durable, userMetricsCache, slackSender, engagementCfg,
		orgStore.FeatureSettings, orgStore.Recipient, metricsProvider.Lookup)

	metrics := monitoring.NewMetricsCollector()
	health := monitoring.NewHealthChecker("engagement-api", "dev", "", "")
	health.RegisterDatabaseCheck("postgres", db)
	if redisService != nil {
		health.RegisterRedisCheck("redis", redisService)
	}

	webhookHandler := &webhook.Handler{
		Store:      callStore,
		Owners:     ownerResolver,
		Transcript: transcriptEnqueuer,
	}
	webhookParser := crmdata.NewWebhookParser(db)
	webhookCfg := &webhook.TelephonyWebhookConfig{
		Handler:    webhookHandler,
		Secrets:    webhook.Secrets{ProxySecret: cfg.WebhookProxySecret, ProviderSecret: cfg.WebhookProviderSecret},
		WebhookURL: cfg.SiteURL + "/webhook/telephony",
		Parse:      webhookParser.Parse,
	}

	featureUsers := crmdata.NewFeatureUsers(db)
	payloadBuilder := crmdata.NewPayloadBuilder(db)
	notificationMirror := crmdata.NewNotificationMirror(db)
	engagementLog := crmdata.NewEngagementLog(metrics)

	jobHandlers := crmdata.NewJobHandlers(dispatcher, durable, engagementCfg, orgStore, featureUsers, payloadBuilder, callStore, notificationMirror, engagementLog)

	app := httpserver.New(httpserver.Dependencies{
		CronSecret: cfg.CronSecret,
		Webhook:    webhookCfg,
		Health:     health,
		Metrics:    metrics,
		Jobs:       jobHandlers,
	})

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := app.Listen(cfg.HTTPAddr); err != nil {
			if groupCtx.Err() != nil {
				return nil
			}
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		logger.Printf("server error: %v", err)
		os.Exit(1)
	}
}
