package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mangashelf/mangashelf/internal/catalog"
	"github.com/mangashelf/mangashelf/internal/jobs/domain"
	"github.com/mangashelf/mangashelf/internal/jobs/store"
)

// Payload keys written by the scheduler and read back by handlers and by the
// duplicate check.
const (
	PayloadKeyLibraryPathID = "library_path_id"
	PayloadKeyLibraryPath   = "library_path"
	PayloadKeyMangaID       = "manga_id"
	PayloadKeyDownloadType  = "download_type"
	PayloadKeySeriesID      = "series_id"
	PayloadKeyMangaDxID     = "mangadx_id"
)

const (
	libraryScanPriority = 1
	updateCheckPriority = 2
)

// JobStore is the slice of job storage the scheduler needs
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListRecentJobs(ctx context.Context, jobType string, limit int) ([]domain.Job, error)
	GetQueueStats(ctx context.Context) (*store.QueueStats, error)
	HasActiveJob(ctx context.Context, jobType, payloadKey, targetID string) (bool, error)
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CatalogStore is the slice of catalog storage the scheduler needs
type CatalogStore interface {
	ListEnabledPaths(ctx context.Context) ([]catalog.LibraryPath, error)
	GetPath(ctx context.Context, pathID string) (*catalog.LibraryPath, error)
	ListWatchedSeries(ctx context.Context) ([]catalog.Series, error)
}

// ScheduleResult reports one recurring-enqueue pass
type ScheduleResult struct {
	Scheduled int `json:"scheduled"`
	Skipped   int `json:"skipped"`
	Total     int `json:"total"`
}

// Scheduler enqueues recurring and operator-requested work without flooding
// the queue with duplicates
type Scheduler struct {
	logger  *slog.Logger
	jobs    JobStore
	catalog CatalogStore
	now     func() time.Time
}

// NewScheduler creates a new Scheduler instance
func NewScheduler(jobs JobStore, catalogStore CatalogStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger:  logger,
		jobs:    jobs,
		catalog: catalogStore,
		now:     time.Now,
	}
}

// ScheduleLibraryScans enqueues a library_scan job for every enabled path
// that is due for scanning and has no uncompleted scan job already queued.
func (s *Scheduler) ScheduleLibraryScans(ctx context.Context) (*ScheduleResult, error) {
	paths, err := s.catalog.ListEnabledPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load library paths: %w", err)
	}

	now := s.now()
	result := &ScheduleResult{Total: len(paths)}

	for _, path := range paths {
		if !path.ScanDue(now) {
			continue
		}

		active, err := s.jobs.HasActiveJob(ctx, domain.JobTypeLibraryScan, PayloadKeyLibraryPathID, path.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicate scan job: %w", err)
		}
		if active {
			result.Skipped++
			s.logger.Debug("Scan job already queued for path, skipping",
				slog.String("library_path_id", path.ID),
				slog.String("path", path.Path),
			)
			continue
		}

		payload := domain.Payload{
			PayloadKeyLibraryPathID: path.ID,
			PayloadKeyLibraryPath:   path.Path,
		}
		job := s.newJob(domain.JobTypeLibraryScan, payload, libraryScanPriority)

		if err := s.jobs.CreateJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to enqueue scan job: %w", err)
		}

		result.Scheduled++
		s.logger.Info("Library scan scheduled",
			slog.String("job_id", job.ID),
			slog.String("library_path_id", path.ID),
			slog.String("path", path.Path),
		)
	}

	return result, nil
}

// ScheduleManualScan enqueues an operator-triggered scan, bypassing both the
// interval eligibility and the duplicate check. An empty pathID means all
// enabled paths; a non-empty pathID must resolve to an existing path.
func (s *Scheduler) ScheduleManualScan(ctx context.Context, pathID string, priority int) (string, error) {
	if err := domain.ValidatePriority(priority); err != nil {
		return "", err
	}

	payload := domain.Payload{}
	if pathID != "" {
		path, err := s.catalog.GetPath(ctx, pathID)
		if err != nil {
			return "", err
		}
		payload[PayloadKeyLibraryPathID] = path.ID
		payload[PayloadKeyLibraryPath] = path.Path
	}

	job := s.newJob(domain.JobTypeLibraryScan, payload, priority)
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue manual scan: %w", err)
	}

	s.logger.Info("Manual scan scheduled",
		slog.String("job_id", job.ID),
		slog.String("library_path_id", pathID),
		slog.Int("priority", priority),
	)

	return job.ID, nil
}

// ScheduleDownload enqueues a download job. mangaID is required.
func (s *Scheduler) ScheduleDownload(ctx context.Context, mangaID, downloadType, seriesID string, priority int) (string, error) {
	if mangaID == "" {
		return "", fmt.Errorf("%w: manga_id is required", domain.ErrInvalidPayload)
	}
	if err := domain.ValidatePriority(priority); err != nil {
		return "", err
	}
	if downloadType == "" {
		downloadType = "manga"
	}

	payload := domain.Payload{
		PayloadKeyMangaID:      mangaID,
		PayloadKeyDownloadType: downloadType,
	}
	if seriesID != "" {
		payload[PayloadKeySeriesID] = seriesID
	}

	job := s.newJob(domain.JobTypeDownload, payload, priority)
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue download: %w", err)
	}

	s.logger.Info("Download scheduled",
		slog.String("job_id", job.ID),
		slog.String("manga_id", mangaID),
		slog.String("download_type", downloadType),
	)

	return job.ID, nil
}

// ScheduleUpdateChecks enqueues a chapter_update_check job for every watched
// series that has no uncompleted check already queued.
func (s *Scheduler) ScheduleUpdateChecks(ctx context.Context) (*ScheduleResult, error) {
	series, err := s.catalog.ListWatchedSeries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load watched series: %w", err)
	}

	result := &ScheduleResult{Total: len(series)}

	for _, sr := range series {
		if sr.MangaDxID == nil {
			continue
		}

		active, err := s.jobs.HasActiveJob(ctx, domain.JobTypeChapterUpdateCheck, PayloadKeySeriesID, sr.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check for duplicate update check: %w", err)
		}
		if active {
			result.Skipped++
			continue
		}

		payload := domain.Payload{
			PayloadKeySeriesID:  sr.ID,
			PayloadKeyMangaDxID: *sr.MangaDxID,
		}
		job := s.newJob(domain.JobTypeChapterUpdateCheck, payload, updateCheckPriority)

		if err := s.jobs.CreateJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to enqueue update check: %w", err)
		}

		result.Scheduled++
		s.logger.Info("Chapter update check scheduled",
			slog.String("job_id", job.ID),
			slog.String("series_id", sr.ID),
			slog.String("title", sr.Title),
		)
	}

	return result, nil
}

// GetJobStatus returns a single job by id
func (s *Scheduler) GetJobStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.jobs.GetJobByID(ctx, jobID)
}

// GetRecentJobs returns jobs newest-first, optionally filtered by type
func (s *Scheduler) GetRecentJobs(ctx context.Context, jobType string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.jobs.ListRecentJobs(ctx, jobType, limit)
}

// GetQueueStats returns job counts by status and by type/status combination
func (s *Scheduler) GetQueueStats(ctx context.Context) (*store.QueueStats, error) {
	return s.jobs.GetQueueStats(ctx)
}

// CleanupOldJobs deletes completed jobs older than the retention window and
// returns the number removed
func (s *Scheduler) CleanupOldJobs(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("older_than_days must be positive, got %d", olderThanDays)
	}

	cutoff := s.now().AddDate(0, 0, -olderThanDays)
	return s.jobs.DeleteCompletedBefore(ctx, cutoff)
}

func (s *Scheduler) newJob(jobType string, payload domain.Payload, priority int) *domain.Job {
	now := s.now()
	return &domain.Job{
		ID:          uuid.New().String(),
		JobType:     jobType,
		Payload:     payload,
		Status:      domain.JobStatusPending,
		Priority:    priority,
		RetryCount:  0,
		MaxRetries:  domain.DefaultMaxRetries,
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
