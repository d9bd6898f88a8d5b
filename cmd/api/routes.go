package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/middleware"
)

func setupRouter(api *API, limiter *middleware.RateLimiter, logger *logging.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	router.GET("/health", api.healthHandler)

	v1 := router.Group("/api/v1")
	{
		// Called by the dubbing service; authenticated by signature
		v1.POST("/dubbing/callback", api.dubbingCallbackHandler)

		sections := v1.Group("/sections")
		sections.Use(middleware.OptionalAuth(), middleware.RateLimit(limiter))
		{
			sections.POST("/:id/dubbing",
				middleware.JWTAuth(),
				middleware.RequireRole(middleware.RoleInstructor, middleware.RoleAdmin),
				api.submitDubbingHandler,
			)
			sections.GET("/:id/dubbing", api.dubbingStatusHandler)
			sections.GET("/:id/tracks", api.listTracksHandler)
			sections.POST("/:id/sessions", api.openSessionHandler)
		}

		v1.GET("/dubbing/jobs/:id", api.getDubJobHandler)

		sessions := v1.Group("/sessions")
		sessions.Use(middleware.OptionalAuth(), middleware.RateLimit(limiter))
		{
			sessions.GET("/:id", api.getSessionHandler)
			sessions.DELETE("/:id", api.closeSessionHandler)
			sessions.POST("/:id/language", api.switchLanguageHandler)
		}
	}

	return router
}

// healthHandler reports the status of every backing dependency
// GET /health
func (api *API) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(api.health))
	for name, check := range api.health {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}
