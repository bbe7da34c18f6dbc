package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mangashelf/mangashelf/internal/jobs/domain"
)

const jobColumns = `id, job_type, payload, status, priority, retry_count, max_retries,
	worker_id, scheduled_at, started_at, completed_at, error_message, created_at, updated_at`

// Storage handles all database operations on the jobs table
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new job row
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			id, job_type, payload, status, priority,
			retry_count, max_retries, scheduled_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.JobType,
		job.Payload,
		job.Status,
		job.Priority,
		job.RetryCount,
		job.MaxRetries,
		job.ScheduledAt,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a job by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// ListRecentJobs returns jobs ordered newest-first, optionally filtered by type
func (s *Storage) ListRecentJobs(ctx context.Context, jobType string, limit int) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if jobType != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, jobType)
		argIdx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// QueueStats holds queue counts by status and by job_type/status combination
type QueueStats struct {
	ByStatus     map[string]int `json:"by_status"`
	ByTypeStatus map[string]int `json:"by_type_status"`
	Total        int            `json:"total"`
}

// GetQueueStats counts jobs by status and by {job_type}_{status}
func (s *Storage) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	query := `SELECT job_type, status, COUNT(*) AS count FROM jobs GROUP BY job_type, status`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	defer rows.Close()

	stats := &QueueStats{
		ByStatus:     make(map[string]int),
		ByTypeStatus: make(map[string]int),
	}

	for rows.Next() {
		var jobType, status string
		var count int
		if err := rows.Scan(&jobType, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan queue stats row: %w", err)
		}
		stats.ByStatus[status] += count
		stats.ByTypeStatus[jobType+"_"+status] = count
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return stats, nil
}

// HasActiveJob reports whether an uncompleted (pending or running) job of the
// given type references targetID under payloadKey. This is a plain query, not
// a unique constraint: two schedulers racing can both see false and insert.
// Duplicate recurring jobs are idempotent, so the window is tolerated.
func (s *Storage) HasActiveJob(ctx context.Context, jobType, payloadKey, targetID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM jobs
			WHERE job_type = $1
			  AND status IN ($2, $3)
			  AND payload ->> $4 = $5
		)
	`

	var exists bool
	err := s.db.GetContext(ctx, &exists, query,
		jobType, domain.JobStatusPending, domain.JobStatusRunning, payloadKey, targetID)
	if err != nil {
		return false, fmt.Errorf("failed to check for active job: %w", err)
	}

	return exists, nil
}

// SelectClaimable returns the ids of up to limit claimable jobs, ordered by
// (priority desc, scheduled_at asc). The ids are candidates only; ClaimJobs
// decides which of them this worker actually gets.
func (s *Storage) SelectClaimable(ctx context.Context, limit int) ([]string, error) {
	query := `
		SELECT id FROM jobs
		WHERE status = $1 AND scheduled_at <= NOW()
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT $2
	`

	var ids []string
	err := s.db.SelectContext(ctx, &ids, query, domain.JobStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable jobs: %w", err)
	}

	return ids, nil
}

// ClaimJobs atomically flips the candidate ids from pending to running and
// returns only the rows this statement actually updated. The re-check of
// status = pending inside the UPDATE is what makes claiming safe across
// concurrent workers: an id flipped by another worker in the same instant
// simply drops out of the RETURNING set here.
func (s *Storage) ClaimJobs(ctx context.Context, jobIDs []string, workerID string) ([]domain.Job, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}

	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE id = ANY($3)
		  AND status = $4
		RETURNING ` + jobColumns

	rows, err := s.db.QueryxContext(ctx, query,
		domain.JobStatusRunning, workerID, pq.Array(jobIDs), domain.JobStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	defer rows.Close()

	var claimed []domain.Job
	for rows.Next() {
		var job domain.Job
		if err := rows.StructScan(&job); err != nil {
			return nil, fmt.Errorf("failed to scan claimed job: %w", err)
		}
		claimed = append(claimed, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claimed jobs: %w", err)
	}

	if len(claimed) < len(jobIDs) {
		s.logger.Debug("Some candidate jobs were claimed by another worker",
			slog.Int("requested", len(jobIDs)),
			slog.Int("claimed", len(claimed)),
			slog.String("worker_id", workerID),
		)
	}

	return claimed, nil
}

// MarkCompleted moves a job to its terminal completed state and clears the
// last error message
func (s *Storage) MarkCompleted(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    completed_at = NOW(),
		    error_message = NULL,
		    updated_at = NOW()
		WHERE id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, jobID); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	return nil
}

// MarkRetry returns a job to pending for re-claiming: retry_count is
// incremented, started_at cleared, and the failure reason recorded
func (s *Storage) MarkRetry(ctx context.Context, jobID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    retry_count = retry_count + 1,
		    started_at = NULL,
		    error_message = $2,
		    updated_at = NOW()
		WHERE id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusPending, errorMessage, jobID); err != nil {
		return fmt.Errorf("failed to mark job for retry: %w", err)
	}

	return nil
}

// MarkFailed moves a job to its terminal failed state
func (s *Storage) MarkFailed(ctx context.Context, jobID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    completed_at = NOW(),
		    error_message = $2,
		    updated_at = NOW()
		WHERE id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, errorMessage, jobID); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return nil
}

// DeleteCompletedBefore bulk-deletes completed jobs whose completed_at is
// older than the cutoff and returns the number of rows removed
func (s *Storage) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM jobs WHERE status = $1 AND completed_at < $2`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("Old completed jobs deleted",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff),
	)

	return deleted, nil
}
