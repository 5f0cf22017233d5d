package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pricefeed/backend/config"
	"github.com/pricefeed/backend/internal/logger"
)

// SetupRouter creates and configures the Gin router. metrics may be nil.
func SetupRouter(cfg *config.Config, handler *Handler, metrics http.Handler, log logger.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if log == nil {
		log = logger.GetDefault()
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(log.With("component", "access")))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check and metrics stay outside the rate limit
	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		feeds := v1.Group("/feeds")
		{
			feeds.POST("/normalize", handler.DetectAndNormalizeFeed)
			feeds.POST("/:shop/normalize", handler.NormalizeFeed)
		}

		categories := v1.Group("/categories")
		{
			categories.POST("/map", handler.MapCategory)
			categories.GET("/taxonomy", handler.ListTaxonomy)
			categories.GET("/unmapped", handler.ListUnmapped)
			categories.POST("/unmapped/promote", handler.PromoteUnmapped)
			categories.GET("/rules", handler.ListRules)
			categories.POST("/rules", handler.UpsertRule)
			categories.PATCH("/rules/:id", handler.PatchRule)
		}

		v1.GET("/shops", handler.ListShops)
	}

	return router
}
