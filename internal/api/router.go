package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/liliang-cn/leadgen/internal/api/dashboard"
	"github.com/liliang-cn/leadgen/internal/api/history"
	"github.com/liliang-cn/leadgen/internal/api/middleware"
	"github.com/liliang-cn/leadgen/internal/service"
)

// HealthChecker reports the analysis backend's status
type HealthChecker interface {
	Health(ctx context.Context) (string, error)
}

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey        string
	AllowOrigins  []string
	MaxUploadSize int64
}

// SetupRouter sets up the Gin router
func SetupRouter(
	analysisService *service.AnalysisService,
	historyService *service.HistoryService,
	backendHealth HealthChecker,
	cfg RouterConfig,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS middleware
	r.Use(middleware.CORS(cfg.AllowOrigins))

	// Health check, including the analysis backend
	r.GET("/health", func(c *gin.Context) {
		status, err := backendHealth.Health(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": "unreachable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": status})
	})

	// Dashboard API (requires API key when configured)
	apiGroup := r.Group("/api")
	apiGroup.Use(middleware.Auth(cfg.APIKey))

	dashboardHandler := dashboard.NewHandler(analysisService, cfg.MaxUploadSize)
	dashboardHandler.RegisterRoutes(apiGroup)

	historyHandler := history.NewHandler(historyService)
	historyHandler.RegisterRoutes(apiGroup)

	return r
}
