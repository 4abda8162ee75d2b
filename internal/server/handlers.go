package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/metrics"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/portfolio"
	"github.com/bankii-labs/bankiiswap/internal/quote"
	"github.com/bankii-labs/bankiiswap/internal/resolver"
	"github.com/bankii-labs/bankiiswap/internal/storage"
)

// TokenResolver resolves a pasted mint address to token metadata
type TokenResolver interface {
	Resolve(ctx context.Context, query string) (resolver.Result, error)
}

// QuoteService prices a swap
type QuoteService interface {
	GetQuote(ctx context.Context, req quote.Request) (*jupiter.QuoteResponse, error)
}

// TokenCatalog is the remote token list provider
type TokenCatalog interface {
	SearchTokens(ctx context.Context, query string) ([]jupiter.TokenInfo, error)
	TokensByTag(ctx context.Context, tag string) ([]jupiter.TokenInfo, error)
}

// LocalTokens is the bundled token list used when the catalog is unreachable
type LocalTokens interface {
	Search(q string) []models.Token
}

// SwapLogger records swap audit entries
type SwapLogger interface {
	InsertSwapLog(ctx context.Context, l *models.SwapLog) error
}

// PortfolioBuilder values a wallet's traded tokens
type PortfolioBuilder interface {
	ForWallet(ctx context.Context, wallet string) (*portfolio.Portfolio, error)
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Resolver  TokenResolver               // Mint address resolution
	Quotes    QuoteService                // Validated, cached Jupiter quotes
	Catalog   TokenCatalog                // Jupiter token list
	Tokens    LocalTokens                 // Bundled token list fallback
	SwapLogs  SwapLogger                  // Swap log fan-out
	Store     storage.SwapLogStore        // Queryable swap log store (optional)
	History   storage.HistoryStore        // Per-wallet swap history
	Favorites storage.FavoritesStore      // Per-wallet favorite mints
	Portfolio PortfolioBuilder            // Portfolio valuation
	Live      storage.SwapEventSubscriber // Logged swap stream (optional)
	Metrics   *metrics.Metrics            // Prometheus metrics (optional)
	DevMode   bool                        // Enable detailed error responses in development
	Logger    *logrus.Logger              // Structured logger

	feeds context.Context // cancelled when the server shuts down
}

// feedContext is the parent context of websocket feeds.
func (h *Handlers) feedContext() context.Context {
	if h.feeds == nil {
		return context.Background()
	}
	return h.feeds
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health returns a simple health check endpoint
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

// HealthDB pings the swap log database when one is configured
func (h *Handlers) HealthDB(c echo.Context) error {
	if h.Store == nil {
		return c.JSON(http.StatusOK, DBHealthResponse{OK: true, Configured: false})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		h.Logger.WithError(err).Warn("swap log database ping failed")
		return c.JSON(http.StatusServiceUnavailable, DBHealthResponse{OK: false, Configured: true})
	}
	return c.JSON(http.StatusOK, DBHealthResponse{OK: true, Configured: true})
}

// Access grants every wallet access and remembers it in a cookie for a day
func (h *Handlers) Access(c echo.Context) error {
	wallet := strings.ToLower(strings.TrimSpace(c.QueryParam("wallet")))
	if wallet == "" {
		return h.err(c, http.StatusBadRequest, "wallet required", nil)
	}

	c.SetCookie(&http.Cookie{
		Name:     "access-ok",
		Value:    "1",
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, AccessResponse{Access: true, Reason: "open_access"})
}

var statsPlaceholder = StatsPlaceholderResponse{
	TotalVolume:   "Analytics",
	TotalSwaps:    "In",
	TotalEarnings: "Development",
	UniqueWallets: "Q1 2025",
	LastUpdated:   "Analytics system in development",
	Status:        "analytics_not_configured",
}

// timeframes maps POST /api/stats timeframes to their window. Zero means all time.
var timeframes = map[string]time.Duration{
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"all": 0,
}

// Stats returns all-time aggregates, or the placeholder without a store
func (h *Handlers) Stats(c echo.Context) error {
	if h.Store == nil {
		return c.JSON(http.StatusOK, statsPlaceholder)
	}
	return h.stats(c, "all")
}

// StatsTimeframe returns aggregates for the requested window
func (h *Handlers) StatsTimeframe(c echo.Context) error {
	if h.Store == nil {
		return h.err(c, http.StatusServiceUnavailable, "Analytics not configured yet", nil)
	}

	var req StatsRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	tf := strings.ToLower(strings.TrimSpace(req.Timeframe))
	if tf == "" {
		tf = "24h"
	}
	if _, ok := timeframes[tf]; !ok {
		return h.err(c, http.StatusBadRequest, "invalid timeframe", map[string]any{"timeframe": "one of 24h, 7d, 30d, all"})
	}
	return h.stats(c, tf)
}

func (h *Handlers) stats(c echo.Context, tf string) error {
	var since time.Time
	if d := timeframes[tf]; d > 0 {
		since = time.Now().UTC().Add(-d)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	st, err := h.Store.Stats(ctx, since)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to load stats", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, StatsResponse{SwapStats: st, Timeframe: tf, Status: "ok"})
}

// LogSwap validates and records a swap audit entry
func (h *Handlers) LogSwap(c echo.Context) error {
	var l models.SwapLog
	if err := c.Bind(&l); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.SwapLogs.InsertSwapLog(ctx, &l); err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			return h.err(c, http.StatusBadRequest, "invalid swap log", map[string]any{"err": err.Error()})
		}
		h.Logger.WithError(err).WithField("signature", l.Signature).Error("failed to log swap")
		return h.err(c, http.StatusInternalServerError, "Failed to log swap", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, LogSwapResponse{Success: true, Message: "Swap logged"})
}
