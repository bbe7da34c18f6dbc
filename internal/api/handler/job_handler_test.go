package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mangashelf/mangashelf/internal/catalog"
	"github.com/mangashelf/mangashelf/internal/jobs/domain"
	"github.com/mangashelf/mangashelf/internal/jobs/scheduler"
	"github.com/mangashelf/mangashelf/internal/jobs/store"
)

type fakeJobStore struct {
	jobs      map[string]*domain.Job
	createErr error
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*domain.Job)}
}

func (f *fakeJobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

func (f *fakeJobStore) ListRecentJobs(ctx context.Context, jobType string, limit int) ([]domain.Job, error) {
	var out []domain.Job
	for _, job := range f.jobs {
		if jobType != "" && job.JobType != jobType {
			continue
		}
		out = append(out, *job)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeJobStore) GetQueueStats(ctx context.Context) (*store.QueueStats, error) {
	stats := &store.QueueStats{
		ByStatus:     make(map[string]int),
		ByTypeStatus: make(map[string]int),
	}
	for _, job := range f.jobs {
		stats.ByStatus[job.Status]++
		stats.Total++
	}
	return stats, nil
}

func (f *fakeJobStore) HasActiveJob(ctx context.Context, jobType, payloadKey, targetID string) (bool, error) {
	return false, nil
}

func (f *fakeJobStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 3, nil
}

type fakeCatalogStore struct {
	paths []catalog.LibraryPath
}

func (f *fakeCatalogStore) ListEnabledPaths(ctx context.Context) ([]catalog.LibraryPath, error) {
	return f.paths, nil
}

func (f *fakeCatalogStore) GetPath(ctx context.Context, pathID string) (*catalog.LibraryPath, error) {
	for i := range f.paths {
		if f.paths[i].ID == pathID {
			return &f.paths[i], nil
		}
	}
	return nil, domain.ErrLibraryPathNotFound
}

func (f *fakeCatalogStore) ListWatchedSeries(ctx context.Context) ([]catalog.Series, error) {
	return nil, nil
}

func testRouter(t *testing.T, jobs *fakeJobStore) (*gin.Engine, *JobHandler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cat := &fakeCatalogStore{paths: []catalog.LibraryPath{
		{ID: "path-1", Path: "/library/one", Enabled: true, ScanIntervalHours: 24},
	}}

	h := NewJobHandler(&Dependencies{
		Logger:    logger,
		Scheduler: scheduler.NewScheduler(jobs, cat, logger),
	})

	r := gin.New()
	r.POST("/api/v1/jobs/schedule", h.ScheduleJob)
	r.GET("/api/v1/jobs/status", h.QueueStatus)
	r.GET("/api/v1/jobs/worker/status", h.WorkerStatus)
	r.POST("/api/v1/jobs/cleanup", h.CleanupJobs)
	r.GET("/api/v1/jobs", h.ListJobs)
	r.GET("/api/v1/jobs/:job_id", h.GetJob)

	return r, h
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJobHandler_ScheduleJob(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		check      func(t *testing.T, jobs *fakeJobStore, resp map[string]any)
	}{
		{
			name:       "manual library scan",
			body:       `{"job_type":"library_scan","library_path_id":"path-1","priority":8}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, jobs *fakeJobStore, resp map[string]any) {
				assert.Equal(t, "scheduled", resp["status"])
				assert.NotEmpty(t, resp["job_id"])
				assert.Len(t, jobs.jobs, 1)
			},
		},
		{
			name:       "download",
			body:       `{"job_type":"download","manga_id":"dx-1"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, jobs *fakeJobStore, resp map[string]any) {
				require.Len(t, jobs.jobs, 1)
				for _, job := range jobs.jobs {
					assert.Equal(t, domain.JobTypeDownload, job.JobType)
					// Omitted priority defaults to 5
					assert.Equal(t, 5, job.Priority)
				}
			},
		},
		{
			name:       "auto schedule pass",
			body:       `{"job_type":"auto_schedule"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, jobs *fakeJobStore, resp map[string]any) {
				assert.Equal(t, float64(1), resp["scheduled_count"])
			},
		},
		{
			name:       "unknown job type",
			body:       `{"job_type":"bogus"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown library path",
			body:       `{"job_type":"library_scan","library_path_id":"missing"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "download without manga id",
			body:       `{"job_type":"download"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "priority out of range",
			body:       `{"job_type":"download","manga_id":"dx-1","priority":11}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			body:       `{"job_type":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := newFakeJobStore()
			r, _ := testRouter(t, jobs)

			w := doRequest(r, http.MethodPost, "/api/v1/jobs/schedule", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.check != nil {
				var resp map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				tt.check(t, jobs, resp)
			}
		})
	}
}

func TestJobHandler_GetJob(t *testing.T) {
	jobs := newFakeJobStore()
	now := time.Now()
	jobs.jobs["job-1"] = &domain.Job{
		ID:          "job-1",
		JobType:     domain.JobTypeDownload,
		Status:      domain.JobStatusCompleted,
		Priority:    5,
		Payload:     domain.Payload{"manga_id": "dx-1"},
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r, _ := testRouter(t, jobs)

	t.Run("found", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/job-1", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "job-1", resp["id"])
		assert.Equal(t, domain.JobStatusCompleted, resp["status"])
	})

	t.Run("not found", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/api/v1/jobs/missing", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestJobHandler_ListJobs(t *testing.T) {
	jobs := newFakeJobStore()
	now := time.Now()
	for _, id := range []string{"job-1", "job-2"} {
		jobs.jobs[id] = &domain.Job{
			ID:          id,
			JobType:     domain.JobTypeLibraryScan,
			Status:      domain.JobStatusPending,
			ScheduledAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	r, _ := testRouter(t, jobs)

	w := doRequest(r, http.MethodGet, "/api/v1/jobs?job_type=library_scan", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["count"])
}

func TestJobHandler_QueueStatus(t *testing.T) {
	jobs := newFakeJobStore()
	jobs.jobs["job-1"] = &domain.Job{ID: "job-1", Status: domain.JobStatusPending}
	r, _ := testRouter(t, jobs)

	w := doRequest(r, http.MethodGet, "/api/v1/jobs/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "stats")
	assert.Contains(t, resp, "timestamp")
}

func TestJobHandler_CleanupJobs(t *testing.T) {
	t.Run("default retention", func(t *testing.T) {
		r, _ := testRouter(t, newFakeJobStore())

		w := doRequest(r, http.MethodPost, "/api/v1/jobs/cleanup", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, float64(3), resp["deleted"])
		assert.Equal(t, float64(30), resp["older_than_days"])
	})

	t.Run("explicit retention", func(t *testing.T) {
		r, _ := testRouter(t, newFakeJobStore())

		w := doRequest(r, http.MethodPost, "/api/v1/jobs/cleanup?older_than_days=7", "")
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid retention", func(t *testing.T) {
		r, _ := testRouter(t, newFakeJobStore())

		w := doRequest(r, http.MethodPost, "/api/v1/jobs/cleanup?older_than_days=0", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = doRequest(r, http.MethodPost, "/api/v1/jobs/cleanup?older_than_days=abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestJobHandler_WorkerStatus(t *testing.T) {
	r, _ := testRouter(t, newFakeJobStore())

	w := doRequest(r, http.MethodGet, "/api/v1/jobs/worker/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["initialized"])
}
