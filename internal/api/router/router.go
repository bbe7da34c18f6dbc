package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mangashelf/mangashelf/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint with a database ping
	r.GET("/health", func(c *gin.Context) {
		if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "mangashelf",
		})
	})

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs/schedule - Schedule a manual scan, download, or auto-schedule pass
			jobs.POST("/schedule", jobHandler.ScheduleJob)

			// GET /api/v1/jobs/status - Queue statistics
			jobs.GET("/status", jobHandler.QueueStatus)

			// GET /api/v1/jobs/worker/status - Worker runner snapshot
			jobs.GET("/worker/status", jobHandler.WorkerStatus)

			// POST /api/v1/jobs/cleanup - Delete old completed jobs
			jobs.POST("/cleanup", jobHandler.CleanupJobs)

			// GET /api/v1/jobs - List recent jobs
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)
		}
	}

	return r
}
