package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)union.*select`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:.*base64`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)expression\(`),
}

// isSuspicious checks the request URI both raw and percent-decoded.
func isSuspicious(uri string) bool {
	candidates := []string{uri}
	if dec, err := url.QueryUnescape(uri); err == nil && dec != uri {
		candidates = append(candidates, dec)
	}
	for _, s := range candidates {
		for _, p := range suspiciousPatterns {
			if p.MatchString(s) {
				return true
			}
		}
	}
	return false
}

// BlockSuspicious rejects path traversal, script injection and SQL injection attempts with 403
func BlockSuspicious(logger *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uri := c.Request().RequestURI
			if uri == "" {
				uri = c.Request().URL.String()
			}
			if isSuspicious(uri) {
				logger.WithFields(logrus.Fields{
					"uri": uri,
					"ip":  c.RealIP(),
				}).Warn("blocking suspicious request")
				return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
			}
			return next(c)
		}
	}
}

// SecurityHeaders sets the browser hardening headers every response carries
func SecurityHeaders() echo.MiddlewareFunc {
	secure := middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		HSTSPreloadEnabled:    true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return secure(func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), interest-cohort=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
			return next(c)
		})
	}
}

// perMinuteLimiter allows n requests per minute per identifier and answers 429 with Retry-After.
func perMinuteLimiter(n int, extract middleware.Extractor) echo.MiddlewareFunc {
	cfg := middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(float64(n) / 60), // refill rate per second
			Burst:     n,                           // a full minute's allowance up front
			ExpiresIn: 3 * time.Minute,             // forget idle identifiers
		}),
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			c.Response().Header().Set("Retry-After", "60")
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "Forbidden")
		},
	}
	if extract != nil {
		cfg.IdentifierExtractor = extract
	}
	return middleware.RateLimiterWithConfig(cfg)
}

// walletIdentifier keys the log-swap limiter by the walletAddress in the body,
// falling back to the client IP. The body is restored for the handler.
func walletIdentifier(c echo.Context) (string, error) {
	req := c.Request()
	if req.Body == nil {
		return c.RealIP(), nil
	}
	raw, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return c.RealIP(), nil
	}

	var body struct {
		WalletAddress string `json:"walletAddress"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if w := strings.TrimSpace(body.WalletAddress); w != "" {
			return "wallet:" + w, nil
		}
	}
	return c.RealIP(), nil
}
