package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mangashelf/mangashelf/internal/jobs/scheduler"
)

// RecurringScheduler enqueues due recurring work
type RecurringScheduler interface {
	ScheduleLibraryScans(ctx context.Context) (*scheduler.ScheduleResult, error)
	ScheduleUpdateChecks(ctx context.Context) (*scheduler.ScheduleResult, error)
}

// SchedulerRunner invokes the recurring-enqueue operations on a fixed
// interval, one sequential pass per tick. It only writes new pending rows;
// claiming and state transitions belong to the worker side.
type SchedulerRunner struct {
	logger    *slog.Logger
	scheduler RecurringScheduler
	interval  time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewSchedulerRunner creates a new SchedulerRunner instance
func NewSchedulerRunner(sched RecurringScheduler, interval time.Duration, logger *slog.Logger) *SchedulerRunner {
	return &SchedulerRunner{
		logger:    logger,
		scheduler: sched,
		interval:  interval,
	}
}

// Start launches the enqueue loop. Calling Start while running is a no-op.
func (r *SchedulerRunner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		r.logger.Warn("Scheduler runner already running, ignoring start")
		return
	}

	r.running = true
	r.stopChan = make(chan struct{})

	r.logger.Info("Scheduler runner starting",
		slog.Duration("interval", r.interval),
	)

	r.wg.Add(1)
	go r.loop(ctx, r.stopChan)
}

// Stop halts the enqueue loop and waits for an in-progress pass to finish.
// Calling Stop while stopped is a no-op.
func (r *SchedulerRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()

	r.logger.Info("Scheduler runner stopped")
}

// Running reports whether the runner is started
func (r *SchedulerRunner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *SchedulerRunner) loop(ctx context.Context, stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runPass(ctx)
		}
	}
}

// runPass runs one sequential enqueue pass. A failing pass is logged and
// retried on the next tick.
func (r *SchedulerRunner) runPass(ctx context.Context) {
	scans, err := r.scheduler.ScheduleLibraryScans(ctx)
	if err != nil {
		r.logger.Error("Library scan scheduling failed",
			slog.Any("error", err),
		)
	} else if scans.Scheduled > 0 || scans.Skipped > 0 {
		r.logger.Info("Library scan pass finished",
			slog.Int("scheduled", scans.Scheduled),
			slog.Int("skipped", scans.Skipped),
			slog.Int("total_paths", scans.Total),
		)
	}

	checks, err := r.scheduler.ScheduleUpdateChecks(ctx)
	if err != nil {
		r.logger.Error("Update check scheduling failed",
			slog.Any("error", err),
		)
	} else if checks.Scheduled > 0 || checks.Skipped > 0 {
		r.logger.Info("Update check pass finished",
			slog.Int("scheduled", checks.Scheduled),
			slog.Int("skipped", checks.Skipped),
			slog.Int("total_series", checks.Total),
		)
	}
}
