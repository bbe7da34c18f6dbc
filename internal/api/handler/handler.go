package handler

import (
	"log/slog"

	"github.com/mangashelf/mangashelf/internal/jobs/runner"
	"github.com/mangashelf/mangashelf/internal/jobs/scheduler"
	"github.com/mangashelf/mangashelf/shared/postgresql"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Scheduler    *scheduler.Scheduler
	WorkerRunner *runner.WorkerRunner
	DBClient     *postgresql.Client
}

// JobHandler handles job-related HTTP requests. WorkerRunner is nil when no
// runner was started in this process; the status endpoint reports that
// explicitly.
type JobHandler struct {
	logger       *slog.Logger
	scheduler    *scheduler.Scheduler
	workerRunner *runner.WorkerRunner
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:       deps.Logger,
		scheduler:    deps.Scheduler,
		workerRunner: deps.WorkerRunner,
	}
}
