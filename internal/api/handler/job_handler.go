package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mangashelf/mangashelf/internal/api/dto"
	"github.com/mangashelf/mangashelf/internal/jobs/domain"
)

const defaultCleanupDays = 30

// ScheduleJob handles POST /api/v1/jobs/schedule.
// Accepts a manual library scan, a download, or an auto_schedule trigger
// that runs a full recurring-scan pass immediately.
func (h *JobHandler) ScheduleJob(c *gin.Context) {
	var req dto.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.Priority == 0 {
		req.Priority = 5
	}

	ctx := c.Request.Context()

	switch req.JobType {
	case domain.JobTypeLibraryScan:
		jobID, err := h.scheduler.ScheduleManualScan(ctx, req.LibraryPathID, req.Priority)
		if err != nil {
			h.scheduleError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.ScheduleResponse{
			Status:         "scheduled",
			Message:        "Manual library scan scheduled",
			ScheduledCount: 1,
			JobID:          jobID,
		})

	case domain.JobTypeDownload:
		jobID, err := h.scheduler.ScheduleDownload(ctx, req.MangaID, req.DownloadType, req.SeriesID, req.Priority)
		if err != nil {
			h.scheduleError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.ScheduleResponse{
			Status:         "scheduled",
			Message:        "Download scheduled",
			ScheduledCount: 1,
			JobID:          jobID,
		})

	case "auto_schedule":
		result, err := h.scheduler.ScheduleLibraryScans(ctx)
		if err != nil {
			h.logger.Error("Auto schedule pass failed", slog.Any("error", err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to schedule library scans",
			})
			return
		}
		c.JSON(http.StatusOK, dto.ScheduleResponse{
			Status:         "scheduled",
			Message:        "Library scan pass completed",
			ScheduledCount: result.Scheduled,
		})

	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown job_type: " + req.JobType,
		})
	}
}

// scheduleError maps scheduling failures to client or server errors
func (h *JobHandler) scheduleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrLibraryPathNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidPayload), errors.Is(err, domain.ErrInvalidPriority):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Failed to schedule job", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to schedule job"})
	}
}

// QueueStatus handles GET /api/v1/jobs/status
func (h *JobHandler) QueueStatus(c *gin.Context) {
	stats, err := h.scheduler.GetQueueStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get queue stats", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get queue stats",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":     stats,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// ListJobs handles GET /api/v1/jobs
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	jobs, err := h.scheduler.GetRecentJobs(c.Request.Context(), req.JobType, req.Limit)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	response := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		response[i] = dto.FromJob(&jobs[i])
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  response,
		"count": len(response),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.scheduler.GetJobStatus(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromJob(job))
}

// CleanupJobs handles POST /api/v1/jobs/cleanup
func (h *JobHandler) CleanupJobs(c *gin.Context) {
	olderThanDays := defaultCleanupDays
	if raw := c.Query("older_than_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "older_than_days must be a positive integer",
			})
			return
		}
		olderThanDays = parsed
	}

	deleted, err := h.scheduler.CleanupOldJobs(c.Request.Context(), olderThanDays)
	if err != nil {
		h.logger.Error("Failed to clean up old jobs", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to clean up old jobs",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted":         deleted,
		"older_than_days": olderThanDays,
	})
}

// WorkerStatus handles GET /api/v1/jobs/worker/status
func (h *JobHandler) WorkerStatus(c *gin.Context) {
	if h.workerRunner == nil {
		c.JSON(http.StatusOK, gin.H{
			"initialized": false,
			"message":     "No worker runner is started in this process",
		})
		return
	}

	status := h.workerRunner.Status()
	c.JSON(http.StatusOK, gin.H{
		"initialized":           true,
		"running":               status.Running,
		"active_jobs":           status.ActiveJobs,
		"max_concurrent_jobs":   status.MaxConcurrentJobs,
		"poll_interval_seconds": status.PollIntervalSeconds,
	})
}
