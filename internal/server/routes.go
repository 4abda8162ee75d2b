package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/metrics"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	// Set custom error handler for consistent JSON responses
	e.HTTPErrorHandler = NotFoundJSON()

	// Apply global middleware
	e.Use(BlockSuspicious(h.Logger)) // 403 on injection and traversal attempts
	e.Use(SecurityHeaders())         // Browser hardening headers
	if h.Metrics != nil {
		e.Use(metrics.EchoMiddleware(h.Metrics))
	}

	// Prometheus exposition stays outside the API key and JSON middleware
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.Use(SetJSONContentType) // Ensure all responses are JSON
	api.Use(SetNoCacheHeaders)  // Prevent caching of API responses

	// Optional API key authentication
	if cfg.APIKey != "" {
		api.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key", // Look for API key in X-API-Key header
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/api/health" // Health checks stay public
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil // Simple string comparison
			},
		}))
	}

	// Per-IP limit across the whole API
	api.Use(perMinuteLimiter(constants.APIPerMinute, nil))

	api.GET("/health", h.Health)      // Health check endpoint
	api.GET("/health/db", h.HealthDB) // Swap log database health
	api.GET("/access", h.Access)      // Wallet access gate

	api.GET("/tokens", h.TokenList)          // Verified token list and ?search=
	api.GET("/tokens/search", h.TokenSearch) // Resolve a pasted mint address
	api.GET("/quote", h.Quote)               // Validated swap quote

	// Swap logging with a per-wallet limit on top of the per-IP one
	api.POST("/log-swap", h.LogSwap, perMinuteLimiter(constants.LogSwapPerMinute, walletIdentifier))

	api.GET("/stats", h.Stats)           // All-time stats or placeholder
	api.POST("/stats", h.StatsTimeframe) // Stats for a timeframe

	api.GET("/history/:wallet", h.HistoryList)
	api.POST("/history/:wallet", h.HistoryAdd)

	api.GET("/favorites/:wallet", h.FavoritesList)
	api.POST("/favorites/:wallet", h.FavoritesAdd)
	api.DELETE("/favorites/:wallet/:mint", h.FavoritesRemove)

	api.GET("/portfolio/:wallet", h.PortfolioGet)

	api.GET("/swaps/live", h.LiveSwaps) // Websocket feed of logged swaps

	// Catch-all route for 404 responses
	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
