package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/school-whatsapp-hub/cmd/mainconfig"
	"github.com/wolfman30/school-whatsapp-hub/internal/api/router"
	"github.com/wolfman30/school-whatsapp-hub/internal/app/bootstrap"
	"github.com/wolfman30/school-whatsapp-hub/internal/assistant"
	appconfig "github.com/wolfman30/school-whatsapp-hub/internal/config"
	"github.com/wolfman30/school-whatsapp-hub/internal/http/handlers"
	"github.com/wolfman30/school-whatsapp-hub/internal/leads"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	"github.com/wolfman30/school-whatsapp-hub/internal/observability/metrics"
	"github.com/wolfman30/school-whatsapp-hub/internal/scheduling"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting school-whatsapp-hub API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, messagingMetrics := setupMessagingMetrics()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Persistence: Postgres when configured, in-memory otherwise (local dev).
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	var (
		leadsRepo      leads.Repository
		store          messaging.ConversationStore
		scheduledStore scheduling.Store
		sqlDB          *sql.DB
	)
	healthChecks := map[string]router.HealthCheck{}
	if pool != nil {
		defer pool.Close()
		leadsRepo = leads.NewPostgresRepository(pool)
		store = messaging.NewStore(pool)
		scheduledStore = scheduling.NewPostgresStore(pool)
		sqlDB = stdlib.OpenDBFromPool(pool)
		defer sqlDB.Close()
		healthChecks["postgres"] = pool.Ping
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		memStore := messaging.NewMemoryStore()
		leadsRepo = leads.NewInMemoryRepository()
		store = memStore
		scheduledStore = scheduling.NewMemoryStore(func(conversationID string) string {
			if conv, err := memStore.GetConversation(context.Background(), conversationID); err == nil {
				return conv.LeadID
			}
			return ""
		})
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	sender, err := bootstrap.BuildOutboundSender(cfg, store, messagingMetrics, logger)
	if err != nil {
		logger.Error("failed to build outbound sender", "error", err)
		os.Exit(1)
	}

	emailSender, err := bootstrap.BuildEmailSender(cfg, &awsCfg, logger)
	if err != nil {
		logger.Error("failed to build email sender", "error", err)
		os.Exit(1)
	}
	alerter := bootstrap.BuildFailureAlerter(cfg, emailSender, leadsRepo, logger)
	dispatcher := bootstrap.BuildDispatcher(cfg, scheduledStore, sender, alerter, messagingMetrics, logger)

	publisher, inlineWorker := setupAssistant(ctx, cfg, &awsCfg, store, sender, messagingMetrics, logger)

	webhookCfg := handlers.WhatsAppWebhookConfig{
		Resolver: messaging.NewResolver(leadsRepo, store, logger),
		Statuses: messaging.NewStatusUpdater(store, messagingMetrics, logger),
		Logger:   logger,
		Metrics:  messagingMetrics,
	}
	if processed := bootstrap.BuildProcessedStore(redisClient, cfg); processed != nil {
		webhookCfg.Processed = processed
	}
	if publisher != nil {
		webhookCfg.Assistant = publisher
	}
	if archiver := bootstrap.BuildMediaArchiver(cfg, &awsCfg, store, logger); archiver != nil {
		webhookCfg.Archiver = archiver
	}

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		WhatsAppWebhook:    handlers.NewWhatsAppWebhookHandler(webhookCfg),
		SchedulerRun:       handlers.NewSchedulerRunHandler(dispatcher, logger),
		LeadsHandler:       leads.NewHandler(leadsRepo, logger),
		ScheduledHandler:   scheduling.NewHandler(scheduledStore, logger),
		AdminMessaging:     handlers.NewAdminMessagingHandler(sender, logger),
		WebhookToken:       cfg.WhatsAppWebhookToken,
		CronToken:          cfg.CronToken,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HealthChecks:       healthChecks,
	}
	if sqlDB != nil {
		routerCfg.AdminConversations = handlers.NewAdminConversationsHandler(sqlDB, logger)
		routerCfg.AdminDashboard = handlers.NewAdminDashboardHandler(sqlDB, logger)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set, admin routes are disabled")
	}
	r := router.New(routerCfg)

	// Without an external cron the API process runs the dispatcher itself.
	if cfg.CronToken == "" {
		go dispatcher.Run(ctx)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	waitForInlineWorker(inlineWorker, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMessagingMetrics() (http.Handler, *metrics.MessagingMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), metrics.NewMessagingMetrics(registry)
}

func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if url == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed", "error", err)
		os.Exit(1)
	}
	return pool
}

// setupAssistant returns a nil publisher when the assistant is off. The
// worker is only started here when jobs travel over the in-memory queue;
// with SQS the conversation-worker binary consumes them.
func setupAssistant(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, store messaging.ConversationStore, sender *messaging.OutboundSender, m *metrics.MessagingMetrics, logger *logging.Logger) (*assistant.Publisher, *assistant.Worker) {
	llm, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build assistant llm client", "error", err)
		os.Exit(1)
	}
	if llm == nil {
		return nil, nil
	}
	queue, inline, err := bootstrap.BuildAssistantQueue(cfg, awsCfg)
	if err != nil {
		logger.Error("failed to build assistant queue", "error", err)
		os.Exit(1)
	}
	publisher := assistant.NewPublisher(queue, logger)
	if !inline {
		return publisher, nil
	}
	responder, err := bootstrap.BuildResponder(cfg, store, llm, sender, m, logger)
	if err != nil {
		logger.Error("failed to build assistant responder", "error", err)
		os.Exit(1)
	}
	return publisher, setupInlineWorker(ctx, cfg, responder, queue, logger)
}

func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, handler assistantJobHandler, queue assistant.Queue, logger *logging.Logger) *assistant.Worker {
	if handler == nil || queue == nil {
		return nil
	}
	worker := assistant.NewWorker(handler, queue, logger,
		assistant.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)
	logger.Info("inline assistant worker started", "workers", cfg.WorkerCount)
	return worker
}

func waitForInlineWorker(worker *assistant.Worker, logger *logging.Logger) {
	if worker == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline assistant worker stopped")
	case <-time.After(30 * time.Second):
		logger.Error("inline assistant worker shutdown timed out")
	}
}

type assistantJobHandler interface {
	Respond(ctx context.Context, job assistant.Job) (*messaging.Message, error)
}
