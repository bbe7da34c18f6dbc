package dto

import (
	"time"

	"github.com/mangashelf/mangashelf/internal/jobs/domain"
)

// ScheduleRequest is the body of POST /api/v1/jobs/schedule
type ScheduleRequest struct {
	JobType       string `json:"job_type" binding:"required"`
	LibraryPathID string `json:"library_path_id"`
	MangaID       string `json:"manga_id"`
	DownloadType  string `json:"download_type"`
	SeriesID      string `json:"series_id"`
	Priority      int    `json:"priority"`
}

// ScheduleResponse reports the outcome of a schedule request
type ScheduleResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	ScheduledCount int    `json:"scheduled_count"`
	JobID          string `json:"job_id,omitempty"`
}

// ListJobsRequest holds the query parameters of GET /api/v1/jobs
type ListJobsRequest struct {
	JobType string `form:"job_type"`
	Limit   int    `form:"limit"`
}

// JobDTO is the API representation of a job row
type JobDTO struct {
	ID           string         `json:"id"`
	JobType      string         `json:"job_type"`
	Payload      map[string]any `json:"payload"`
	Status       string         `json:"status"`
	Priority     int            `json:"priority"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	WorkerID     *string        `json:"worker_id,omitempty"`
	ScheduledAt  string         `json:"scheduled_at"`
	StartedAt    *string        `json:"started_at,omitempty"`
	CompletedAt  *string        `json:"completed_at,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    string         `json:"created_at"`
	UpdatedAt    string         `json:"updated_at"`
}

// FromJob converts a domain job to its API representation
func FromJob(job *domain.Job) JobDTO {
	return JobDTO{
		ID:           job.ID,
		JobType:      job.JobType,
		Payload:      job.Payload,
		Status:       job.Status,
		Priority:     job.Priority,
		RetryCount:   job.RetryCount,
		MaxRetries:   job.MaxRetries,
		WorkerID:     job.WorkerID,
		ScheduledAt:  job.ScheduledAt.Format(time.RFC3339),
		StartedAt:    formatTime(job.StartedAt),
		CompletedAt:  formatTime(job.CompletedAt),
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
