package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/omraval18/nclip/internal/api/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "nclip-api-service",
		})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	clipHandler := handler.NewClipHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/uploads - Create project + presigned upload URL
		v1.POST("/uploads", clipHandler.CreateUpload)

		// POST /api/v1/jobs - Submit a clip-extraction job
		v1.POST("/jobs", clipHandler.SubmitClipJob)

		// GET /api/v1/credits - Current credit balance
		v1.GET("/credits", clipHandler.GetCreditBalance)

		projects := v1.Group("/projects")
		{
			// GET /api/v1/projects/:project_id/file - Poll file status
			projects.GET("/:project_id/file", clipHandler.GetProjectFile)

			// POST /api/v1/projects/:project_id/revalidate - Re-derive file state from bucket
			projects.POST("/:project_id/revalidate", clipHandler.RevalidateFile)

			// GET /api/v1/projects/:project_id/clips - List clips with presigned URLs
			projects.GET("/:project_id/clips", clipHandler.ListClips)
		}
	}

	return r
}
