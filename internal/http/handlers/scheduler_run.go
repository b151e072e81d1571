package handlers

import (
	"context"
	"net/http"

	scheduledworker "github.com/wolfman30/school-whatsapp-hub/internal/worker/scheduled"
	"github.com/wolfman30/school-whatsapp-hub/pkg/logging"
)

type dispatchRunner interface {
	DispatchOnce(ctx context.Context) (scheduledworker.Summary, error)
}

// SchedulerRunHandler lets an external cron trigger one dispatcher pass.
type SchedulerRunHandler struct {
	runner dispatchRunner
	logger *logging.Logger
}

func NewSchedulerRunHandler(runner dispatchRunner, logger *logging.Logger) *SchedulerRunHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SchedulerRunHandler{runner: runner, logger: logger}
}

type schedulerRunResponse struct {
	Success bool `json:"success"`
	scheduledworker.Summary
}

// Run handles POST /internal/scheduler/run.
func (h *SchedulerRunHandler) Run(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.DispatchOnce(r.Context())
	if err != nil {
		h.logger.Error("scheduler run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "scheduler run failed"})
		return
	}
	writeJSON(w, http.StatusOK, schedulerRunResponse{Success: true, Summary: summary})
}
