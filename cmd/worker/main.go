// Package main is the entry point for the engagement engine's worker
// service: the asynq task worker and cron scheduler driving every
// scheduled job and the transcript queue tick.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
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
	"github.com/sixtyapp/engagement-engine/internal/jobs"
	"github.com/sixtyapp/engagement-engine/internal/monitoring"
	"github.com/sixtyapp/engagement-engine/internal/store"
	"github.com/sixtyapp/engagement-engine/internal/telemetry"
	"github.com/sixtyapp/engagement-engine/internal/transcript"
	"github.com/sixtyapp/engagement-engine/services/api/internal/config"
)

const concurrency = 10

func main() {
	log.Println("Starting engagement engine worker...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	if err := telemetry.InitGlobalLogger(telemetry.DefaultLogConfig()); err != nil {
		log.Printf("WARNING: structured logger init failed: %v", err)
	}

	db, err := telemetry.InstrumentDatabase("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close db: %v", err)
		}
	}()

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
	debriefEnqueuer := crmdata.NewAsynqEnqueuer(asynqClient)
	transcriptFetcher := crmdata.NewTranscriptFetcher(db, cfg.AIProviderBaseURL, cfg.AIProviderAPIKey)
	metricsProvider := crmdata.NewMetricsProvider(db, userMetricsCache, engagementCfg)

	var slackSender *dispatch.SlackSender
	if cfg.SlackBotToken != "" {
		slackSender = dispatch.NewSlackSender(cfg.SlackBotToken)
	}

	dispatcher := dispatch.NewDispatcher(durable, userMetricsCache, slackSender, engagementCfg,
		orgStore.FeatureSettings, orgStore.Recipient, metricsProvider.Lookup)

	featureUsers := crmdata.NewFeatureUsers(db)
	payloadBuilder := crmdata.NewPayloadBuilder(db)
	notificationMirror := crmdata.NewNotificationMirror(db)
	metrics := monitoring.NewMetricsCollector()
	engagementLog := crmdata.NewEngagementLog(metrics)

	handlers := crmdata.NewJobHandlers(dispatcher, durable, engagementCfg, orgStore, featureUsers, payloadBuilder, callStore, notificationMirror, engagementLog)
	transcriptWorker := transcript.NewWorker(durable, callStore, transcriptFetcher, debriefEnqueuer)

	worker, err := jobs.NewWorker(cfg.RedisURL, concurrency)
	if err != nil {
		log.Fatalf("failed to create worker: %v", err)
	}
	worker.RegisterHandler(jobs.TypeDailyDigest, handlers.DailyDigest())
	worker.RegisterHandler(jobs.TypeMorningBrief, handlers.MorningBrief())
	worker.RegisterHandler(jobs.TypeMeetingPrep, handlers.MeetingPrep())
	worker.RegisterHandler(jobs.TypeDealMomentumNudge, handlers.DealMomentumNudge())
	worker.RegisterHandler(jobs.TypeMeetingDebrief, handlers.MeetingDebrief())
	worker.RegisterHandler(jobs.TypeReengagement, handlers.Reengagement())
	worker.RegisterHandler(jobs.TypeReconciliationSweep, handlers.ReconciliationSweep())
	worker.RegisterHandler(jobs.TypeDLQReplay, handlers.DLQReplay())
	worker.RegisterHandler(jobs.TypeTranscriptQueueTick, handlers.TranscriptQueueTick(transcriptWorker))

	scheduler, err := jobs.NewScheduler(cfg.RedisURL, jobs.ScheduleConfig{
		DailyDigestCron:         cfg.ScheduleDailyDigestCron,
		MorningBriefCron:        cfg.ScheduleMorningBriefCron,
		MeetingPrepCron:         cfg.ScheduleMeetingPrepCron,
		DealMomentumNudgeCron:   cfg.ScheduleDealMomentumNudgeCron,
		MeetingDebriefCron:      cfg.ScheduleMeetingDebriefCron,
		ReengagementCron:        cfg.ScheduleReengagementCron,
		ReconciliationCron:      cfg.ScheduleReconciliationCron,
		DLQReplayCron:           cfg.ScheduleDLQReplayCron,
		TranscriptQueueTickCron: cfg.ScheduleTranscriptQueueTickCron,
	})
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthServer := startHealthServer(worker, metrics)

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Println("Starting task scheduler...")
		return scheduler.Run()
	})

	g.Go(func() error {
		log.Println("Starting task worker...")
		return worker.Run()
	})

	<-ctx.Done()
	log.Println("Shutting down worker service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server shutdown error: %v", err)
	}

	scheduler.Shutdown()
	worker.Shutdown()

	log.Println("Worker service stopped")
}

// startHealthServer starts the health check and metrics HTTP server.
func startHealthServer(worker *jobs.Worker, metrics *monitoring.MetricsCollector) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if worker.IsHealthy() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
		}
	})
	mux.HandleFunc("/metrics.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(metrics.GetMetricsSummary())
	})

	server := &http.Server{
		Addr:              ":9090",
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Println("Health server listening on :9090")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Health server error: %v", err)
		}
	}()

	return server
}
