package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mangashelf/mangashelf/internal/jobs/domain"
)

// ClaimStore is the slice of job storage the runner needs for claiming
type ClaimStore interface {
	SelectClaimable(ctx context.Context, limit int) ([]string, error)
	ClaimJobs(ctx context.Context, jobIDs []string, workerID string) ([]domain.Job, error)
}

// JobExecutor runs one claimed job to a settled outcome
type JobExecutor interface {
	ExecuteJob(ctx context.Context, job *domain.Job) (domain.Payload, error)
}

// EventPublisher emits job lifecycle events for the notification boundary.
// A nil publisher disables events; the queue never depends on them.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// Routing keys for job lifecycle events.
const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// WorkerStatus is a snapshot of the runner for the status endpoint
type WorkerStatus struct {
	Running             bool    `json:"running"`
	ActiveJobs          int     `json:"active_jobs"`
	MaxConcurrentJobs   int     `json:"max_concurrent_jobs"`
	PollIntervalSeconds float64 `json:"poll_interval_seconds"`
}

// WorkerRunnerConfig holds worker runner configuration
type WorkerRunnerConfig struct {
	WorkerID          string
	PollInterval      time.Duration
	MaxConcurrentJobs int
}

// WorkerRunner continuously claims pending jobs and executes each in its own
// goroutine, bounded by the concurrency limit. Multiple runner processes can
// share one database; the conditional claim update in the store is the only
// cross-process synchronization.
type WorkerRunner struct {
	logger    *slog.Logger
	store     ClaimStore
	executor  JobExecutor
	publisher EventPublisher

	workerID      string
	pollInterval  time.Duration
	maxConcurrent int

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	sem chan struct{}

	activeMu sync.Mutex
	active   map[string]struct{}
}

// NewWorkerRunner creates a new WorkerRunner instance. publisher may be nil.
func NewWorkerRunner(cfg *WorkerRunnerConfig, store ClaimStore, executor JobExecutor, publisher EventPublisher, logger *slog.Logger) *WorkerRunner {
	return &WorkerRunner{
		logger:        logger,
		store:         store,
		executor:      executor,
		publisher:     publisher,
		workerID:      cfg.WorkerID,
		pollInterval:  cfg.PollInterval,
		maxConcurrent: cfg.MaxConcurrentJobs,
		sem:           make(chan struct{}, cfg.MaxConcurrentJobs),
		active:        make(map[string]struct{}),
	}
}

// Start launches the poll loop. Calling Start while running is a no-op.
func (r *WorkerRunner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		r.logger.Warn("Worker runner already running, ignoring start")
		return
	}

	r.running = true
	r.stopChan = make(chan struct{})

	r.logger.Info("Worker runner starting",
		slog.String("worker_id", r.workerID),
		slog.Duration("poll_interval", r.pollInterval),
		slog.Int("max_concurrent_jobs", r.maxConcurrent),
	)

	r.wg.Add(1)
	go r.pollLoop(ctx, r.stopChan)
}

// Stop suppresses further poll cycles and waits for every in-flight job to
// finish before returning. Calling Stop while stopped is a no-op.
func (r *WorkerRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.logger.Info("Worker runner stopping, draining active jobs",
		slog.Int("active_jobs", r.activeCount()),
	)

	r.wg.Wait()

	r.logger.Info("Worker runner stopped")
}

// Status returns a snapshot of the runner
func (r *WorkerRunner) Status() WorkerStatus {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()

	return WorkerStatus{
		Running:             running,
		ActiveJobs:          r.activeCount(),
		MaxConcurrentJobs:   r.maxConcurrent,
		PollIntervalSeconds: r.pollInterval.Seconds(),
	}
}

func (r *WorkerRunner) pollLoop(ctx context.Context, stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

// pollOnce runs one claim-and-dispatch cycle. Infrastructure errors are
// logged and left for the next tick; they never terminate the loop.
func (r *WorkerRunner) pollOnce(ctx context.Context) {
	slots := r.maxConcurrent - r.activeCount()
	if slots <= 0 {
		// Saturated: claiming anything now would only strand rows in
		// running, so the cycle issues no query at all.
		r.logger.Debug("All job slots busy, skipping poll cycle")
		return
	}

	candidates, err := r.store.SelectClaimable(ctx, slots)
	if err != nil {
		r.logger.Error("Failed to select claimable jobs",
			slog.Any("error", err),
		)
		return
	}
	if len(candidates) == 0 {
		return
	}

	claimed, err := r.store.ClaimJobs(ctx, candidates, r.workerID)
	if err != nil {
		r.logger.Error("Failed to claim jobs",
			slog.Any("error", err),
		)
		return
	}

	for _, job := range claimed {
		r.sem <- struct{}{}
		r.trackStart(job.ID)
		r.wg.Add(1)

		go func(job domain.Job) {
			defer r.wg.Done()
			defer r.trackDone(job.ID)
			defer func() { <-r.sem }()

			r.runJob(ctx, &job)
		}(job)
	}
}

// runJob executes one claimed job. The job row is settled by the executor
// whatever happens here; this level only logs and emits the lifecycle event.
func (r *WorkerRunner) runJob(ctx context.Context, job *domain.Job) {
	result, err := r.executor.ExecuteJob(ctx, job)
	if err != nil {
		r.logger.Error("Job execution failed",
			slog.String("job_id", job.ID),
			slog.String("job_type", job.JobType),
			slog.String("worker_id", r.workerID),
			slog.Any("error", err),
		)
		r.publishEvent(ctx, EventJobFailed, job, err)
		return
	}

	r.logger.Info("Job execution finished",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.String("worker_id", r.workerID),
		slog.Any("result", result),
	)
	r.publishEvent(ctx, EventJobCompleted, job, nil)
}

func (r *WorkerRunner) publishEvent(ctx context.Context, routingKey string, job *domain.Job, execErr error) {
	if r.publisher == nil {
		return
	}

	event := map[string]any{
		"job_id":    job.ID,
		"job_type":  job.JobType,
		"worker_id": r.workerID,
	}
	if execErr != nil {
		event["error"] = execErr.Error()
	}

	body, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("Failed to encode job event",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return
	}

	if err := r.publisher.Publish(ctx, routingKey, body); err != nil {
		r.logger.Warn("Failed to publish job event",
			slog.String("job_id", job.ID),
			slog.String("routing_key", routingKey),
			slog.Any("error", err),
		)
	}
}

func (r *WorkerRunner) trackStart(jobID string) {
	r.activeMu.Lock()
	r.active[jobID] = struct{}{}
	r.activeMu.Unlock()
}

func (r *WorkerRunner) trackDone(jobID string) {
	r.activeMu.Lock()
	delete(r.active, jobID)
	r.activeMu.Unlock()
}

func (r *WorkerRunner) activeCount() int {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	return len(r.active)
}
