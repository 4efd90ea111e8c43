package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = NotFoundJSON()

	// Apply global middleware
	e.Use(SetJSONContentType)
	e.Use(SetNoCacheHeaders)

	// Optional API key authentication
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	// API v1 routes
	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)                              // Health check endpoint
	v1.GET("/status", h.Status)                              // Pipeline cursor status
	v1.GET("/wallets/:address", h.Wallet)                    // Wallet aggregates
	v1.GET("/wallets/:address/timeline", h.Timeline)         // Per-wallet activity timeline
	v1.GET("/positions/:id", h.Position)                     // Position by token id
	v1.GET("/activity/recent", h.RecentActivity)             // Recent classified events

	// AI endpoints with rate limiting
	aigroup := v1.Group("/ai")
	aigroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(0.2), // 1 request every 5 seconds
		Burst:     2,
		ExpiresIn: 2 * time.Minute,
	})))
	aigroup.POST("/ask", h.AIAsk) // Natural language to SQL endpoint

	// Feature flags CRUD endpoints
	flagGroup := v1.Group("/flags")
	flagGroup.GET("", h.FlagsList)
	flagGroup.POST("", h.FlagsUpsert)
	flagGroup.GET("/:key", h.FlagsGet)
	flagGroup.PUT("/:key", h.FlagsUpdate)
	flagGroup.DELETE("/:key", h.FlagsDelete)

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
