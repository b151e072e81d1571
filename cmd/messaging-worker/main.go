package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/school-whatsapp-hub/cmd/mainconfig"
	"github.com/wolfman30/school-whatsapp-hub/internal/app/bootstrap"
	"github.com/wolfman30/school-whatsapp-hub/internal/config"
	"github.com/wolfman30/school-whatsapp-hub/internal/leads"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	"github.com/wolfman30/school-whatsapp-hub/internal/scheduling"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// The messaging worker runs the scheduled-send dispatcher on a ticker for
// deployments that do not trigger /internal/scheduler/run from a cron.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).WithComponent("messaging-worker")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" || cfg.WhatsAppAPIBaseURL == "" {
		logger.Error("messaging worker requires DATABASE_URL and WHATSAPP_API_BASE_URL")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	store := messaging.NewStore(pool)
	sender, err := bootstrap.BuildOutboundSender(cfg, store, nil, logger)
	if err != nil {
		logger.Error("failed to build outbound sender", "error", err)
		os.Exit(1)
	}
	email, err := bootstrap.BuildEmailSender(cfg, &awsCfg, logger)
	if err != nil {
		logger.Error("failed to build email sender", "error", err)
		os.Exit(1)
	}
	alerter := bootstrap.BuildFailureAlerter(cfg, email, leads.NewPostgresRepository(pool), logger)

	dispatcher := bootstrap.BuildDispatcher(cfg, scheduling.NewPostgresStore(pool), sender, alerter, nil, logger)
	go dispatcher.Run(ctx)
	logger.Info("scheduled dispatcher started", "interval", cfg.SchedulerInterval, "batch_size", cfg.SchedulerBatchSize)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("messaging worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}
