package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mangashelf/mangashelf/internal/jobs/domain"
)

// Handler executes one job of a registered type. The returned payload is
// surfaced to the caller (e.g. an API response); it is not persisted.
type Handler interface {
	Execute(ctx context.Context, job *domain.Job) (domain.Payload, error)
}

// HandlerFunc adapts a plain function to the Handler interface
type HandlerFunc func(ctx context.Context, job *domain.Job) (domain.Payload, error)

// Execute implements Handler
func (f HandlerFunc) Execute(ctx context.Context, job *domain.Job) (domain.Payload, error) {
	return f(ctx, job)
}

// Registry maps job_type tags to handlers. Registering a new job type never
// touches the worker's execution loop.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job type, replacing any previous binding
func (r *Registry) Register(jobType string, handler Handler) {
	r.handlers[jobType] = handler
}

// Resolve looks up the handler for a job type
func (r *Registry) Resolve(jobType string) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types returns the registered job types, sorted
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// JobStore is the slice of job storage the worker needs for outcome
// bookkeeping
type JobStore interface {
	MarkCompleted(ctx context.Context, jobID string) error
	MarkRetry(ctx context.Context, jobID, errorMessage string) error
	MarkFailed(ctx context.Context, jobID, errorMessage string) error
}

// Worker executes one claimed job to a terminal or retry outcome
type Worker struct {
	logger   *slog.Logger
	store    JobStore
	registry *Registry
}

// NewWorker creates a new Worker instance
func NewWorker(store JobStore, registry *Registry, logger *slog.Logger) *Worker {
	return &Worker{
		logger:   logger,
		store:    store,
		registry: registry,
	}
}

// ExecuteJob runs an already-claimed job. The caller must have claimed the
// job first; anything not in running status fails fast without touching the
// row. Whatever the handler does, the job row always reaches a well-defined
// state: completed on success, pending (retry) or failed on error. Handler
// errors are re-raised as an ExecutionError after bookkeeping so the runner
// can log and count them.
func (w *Worker) ExecuteJob(ctx context.Context, job *domain.Job) (domain.Payload, error) {
	if job.Status != domain.JobStatusRunning {
		return nil, fmt.Errorf("%w: job %s has status %q", domain.ErrJobNotClaimed, job.ID, job.Status)
	}

	w.logger.Info("Executing job",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.Int("retry_count", job.RetryCount),
	)

	handler, ok := w.registry.Resolve(job.JobType)
	if !ok {
		err := fmt.Errorf("%w: %q", domain.ErrUnknownJobType, job.JobType)
		return nil, w.recordFailure(ctx, job, err)
	}

	result, err := handler.Execute(ctx, job)
	if err != nil {
		return nil, w.recordFailure(ctx, job, err)
	}

	if err := w.store.MarkCompleted(ctx, job.ID); err != nil {
		// The work itself succeeded; surface the bookkeeping failure.
		return nil, fmt.Errorf("job %s succeeded but completion update failed: %w", job.ID, err)
	}

	w.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
	)

	return result, nil
}

// recordFailure runs the failure bookkeeping as its own statement, separate
// from whatever the handler was doing, so a crashed handler can never leave
// the row stuck in running.
func (w *Worker) recordFailure(ctx context.Context, job *domain.Job, execErr error) error {
	if job.RetryCount < job.MaxRetries {
		if err := w.store.MarkRetry(ctx, job.ID, execErr.Error()); err != nil {
			w.logger.Error("Failed to return job to pending for retry",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		} else {
			w.logger.Warn("Job failed, will retry",
				slog.String("job_id", job.ID),
				slog.String("job_type", job.JobType),
				slog.Int("retry_count", job.RetryCount+1),
				slog.Int("max_retries", job.MaxRetries),
				slog.String("error", execErr.Error()),
			)
		}
		return domain.NewExecutionError(job.ID, job.JobType, execErr)
	}

	if err := w.store.MarkFailed(ctx, job.ID, execErr.Error()); err != nil {
		w.logger.Error("Failed to mark job as failed",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	} else {
		w.logger.Error("Job failed permanently, retries exhausted",
			slog.String("job_id", job.ID),
			slog.String("job_type", job.JobType),
			slog.Int("retry_count", job.RetryCount),
			slog.Int("max_retries", job.MaxRetries),
			slog.String("error", execErr.Error()),
		)
	}
	return domain.NewExecutionError(job.ID, job.JobType, execErr)
}
