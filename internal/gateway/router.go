package gateway

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/auth"
	"github.com/bizmatters/agent-builder/pages-builder/internal/logging"
)

// ReadinessCheck reports whether backing services are reachable.
type ReadinessCheck func(ctx context.Context) error

// NewRouter wires the public task endpoint, the operator API and the
// health checks.
func NewRouter(h *Handler, stream *RunStream, ready ReadinessCheck, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.Middleware(logger))

	// Health checks MUST be at the root for the WebService standard
	router.GET("/health", health)
	router.GET("/ready", func(c *gin.Context) {
		if ready != nil {
			if err := ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "not ready",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.POST("/task", h.SubmitTask)

	api := router.Group("/api")
	api.GET("/health", health)
	api.POST("/auth/login", h.Login)

	// The stream authenticates itself so browsers can pass ?token=.
	api.GET("/ws/runs/:id", stream.StreamRun)

	if h.jwtManager != nil {
		protected := api.Group("")
		protected.Use(auth.RequireAuth(h.jwtManager, logger))
		protected.GET("/runs", h.ListRuns)
		protected.GET("/runs/:id", h.GetRun)
	}

	return router
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
