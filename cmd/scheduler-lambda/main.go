package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	appconfig "github.com/wolfman30/school-whatsapp-hub/internal/config"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

type config struct {
	upstreamBaseURL string
	upstreamTimeout time.Duration
	cronToken       string
}

func configFrom(cfg *appconfig.Config) (config, error) {
	baseURL := strings.TrimSpace(cfg.UpstreamBaseURL)
	if baseURL == "" {
		return config{}, errors.New("UPSTREAM_BASE_URL is required")
	}
	token := strings.TrimSpace(cfg.CronToken)
	if token == "" {
		return config{}, errors.New("CRON_TOKEN is required")
	}
	timeout := cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = 50 * time.Second
	}
	return config{
		upstreamBaseURL: strings.TrimRight(baseURL, "/"),
		upstreamTimeout: timeout,
		cronToken:       token,
	}, nil
}

// The scheduler Lambda is fired by an EventBridge schedule and asks the API
// for one dispatcher pass.
func main() {
	appCfg := appconfig.Load()
	logger := logging.New(appCfg.LogLevel).WithComponent("scheduler-lambda")

	cfg, err := configFrom(appCfg)
	if err != nil {
		logger.Error("invalid scheduler lambda config", "error", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: cfg.upstreamTimeout}
	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (runSummary, error) {
		summary, err := handle(ctx, cfg, client, evt)
		if err != nil {
			logger.Error("scheduler run failed", "error", err, "event_id", evt.ID)
			return summary, err
		}
		logger.Info("scheduler run finished",
			"event_id", evt.ID,
			"claimed", summary.Claimed,
			"sent", summary.Sent,
			"failed", summary.Failed,
			"reclaimed", summary.Reclaimed,
		)
		return summary, nil
	})
}

type runSummary struct {
	Success   bool  `json:"success"`
	Selected  int   `json:"selected"`
	Claimed   int   `json:"claimed"`
	Sent      int   `json:"sent"`
	Failed    int   `json:"failed"`
	Skipped   int   `json:"skipped"`
	Reclaimed int64 `json:"reclaimed"`
}

func handle(ctx context.Context, cfg config, client *http.Client, evt events.CloudWatchEvent) (runSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.upstreamBaseURL+"/internal/scheduler/run", nil)
	if err != nil {
		return runSummary{}, err
	}
	req.Header.Set("token", cfg.cronToken)
	if evt.ID != "" {
		req.Header.Set("X-Request-Id", evt.ID)
	}

	resp, err := client.Do(req)
	if err != nil {
		return runSummary{}, fmt.Errorf("scheduler run: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return runSummary{}, fmt.Errorf("scheduler run: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return runSummary{}, fmt.Errorf("scheduler run: upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var summary runSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return runSummary{}, fmt.Errorf("scheduler run: decode summary: %w", err)
	}
	return summary, nil
}
