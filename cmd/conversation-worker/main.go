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
	"github.com/wolfman30/school-whatsapp-hub/internal/assistant"
	appconfig "github.com/wolfman30/school-whatsapp-hub/internal/config"
	"github.com/wolfman30/school-whatsapp-hub/internal/messaging"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

// The conversation worker consumes assistant reply jobs from SQS.
func main() {
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).WithComponent("conversation-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" || cfg.AssistantQueueURL == "" {
		logger.Error("conversation worker requires DATABASE_URL and ASSISTANT_QUEUE_URL")
		os.Exit(1)
	}

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := messaging.NewStore(pool)
	sender, err := bootstrap.BuildOutboundSender(cfg, store, nil, logger)
	if err != nil {
		logger.Error("failed to build outbound sender", "error", err)
		os.Exit(1)
	}

	llm, err := bootstrap.BuildLLMClient(ctx, cfg, &awsConfig, logger)
	if err != nil || llm == nil {
		logger.Error("assistant llm not available", "error", err, "enabled", cfg.AssistantEnabled)
		os.Exit(1)
	}
	responder, err := bootstrap.BuildResponder(cfg, store, llm, sender, nil, logger)
	if err != nil {
		logger.Error("failed to build responder", "error", err)
		os.Exit(1)
	}

	cfg.UseMemoryQueue = false
	queue, _, err := bootstrap.BuildAssistantQueue(cfg, &awsConfig)
	if err != nil {
		logger.Error("failed to build assistant queue", "error", err)
		os.Exit(1)
	}

	worker := assistant.NewWorker(
		responder,
		queue,
		logger,
		assistant.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
