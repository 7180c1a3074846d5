package api

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/killallgit/echonote-api/api/health"
	"github.com/killallgit/echonote-api/api/transcripts"
	"github.com/killallgit/echonote-api/api/types"
	"github.com/killallgit/echonote-api/api/usage"
	"github.com/killallgit/echonote-api/api/version"
)

// defaultUploadLimit applies when no max upload size is configured
const defaultUploadLimit = 500 << 20

// RegisterRoutes registers all API routes
func RegisterRoutes(engine *gin.Engine, deps *types.Dependencies, info version.Info, rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once) error {
	if deps == nil || deps.JobService == nil || deps.Jobs == nil {
		return fmt.Errorf("job services are required")
	}

	// Register public routes (no rate limiting)
	health.RegisterRoutes(engine, deps)
	version.RegisterRoutes(engine, info)

	// Setup 404 handler
	engine.NoRoute(NotFoundHandler())

	rps, burst := 2, 20
	uploadLimit := int64(defaultUploadLimit)
	if cfg := deps.Config; cfg != nil {
		if cfg.RateLimiting.RequestsPerMinute > 0 {
			rps = max(1, cfg.RateLimiting.RequestsPerMinute/60)
		}
		if cfg.RateLimiting.Burst > 0 {
			burst = cfg.RateLimiting.Burst
		}
		if cfg.Server.MaxUploadSize > 0 {
			uploadLimit = cfg.Server.MaxUploadSize
		}
	}
	rateLimited := deps.Config == nil || deps.Config.RateLimiting.Enabled

	// API v1 routes, all scoped to the caller
	v1 := engine.Group("/api/v1")
	v1.Use(RequireUser())
	if rateLimited {
		v1.Use(PerClientRateLimit(rateLimiters, cleanupStop, cleanupInitialized, rps, burst))
	}

	// uploads get their own size limit
	audioGroup := v1.Group("/audio")
	audioGroup.Use(RequestSizeLimitWithSize(uploadLimit))
	transcripts.RegisterUploadRoutes(audioGroup, deps)

	transcriptGroup := v1.Group("/transcripts")
	transcriptGroup.Use(RequestSizeLimit())
	transcripts.RegisterRoutes(transcriptGroup, deps)

	if deps.Usage != nil {
		usage.RegisterRoutes(v1.Group("/usage"), deps)
	}

	return nil
}

// NotFoundHandler handles 404 errors
func NotFoundHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		types.SendNotFound(c, "The requested endpoint was not found: "+c.Request.URL.Path)
	}
}
