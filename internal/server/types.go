package server

import "github.com/bankii-labs/bankiiswap/internal/models"

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string `json:"error"`             // Human-readable error message
	Code    int    `json:"code"`              // HTTP status code
	Kind    string `json:"kind,omitempty"`    // Error taxonomy kind
	Details any    `json:"details,omitempty"` // Additional error details (dev mode only)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	OK bool `json:"ok"` // Service health status
}

// DBHealthResponse reports whether the swap log database is configured and reachable
type DBHealthResponse struct {
	OK         bool `json:"ok"`
	Configured bool `json:"configured"`
}

// TokenListResponse is the verified token list
type TokenListResponse struct {
	Tokens            []models.Token `json:"tokens"`
	VerifiedAddresses []string       `json:"verifiedAddresses"`
	Error             string         `json:"error,omitempty"`
}

// TokenSearchResponse is the result of a free-text token search
type TokenSearchResponse struct {
	Query             string         `json:"query"`
	Results           []models.Token `json:"results"`
	VerifiedAddresses []string       `json:"verifiedAddresses"`
	Fallback          bool           `json:"fallback,omitempty"` // set when served from the local list
}

// TokenNotFoundResponse carries the placeholder token for an unknown mint
type TokenNotFoundResponse struct {
	Error    string        `json:"error"`
	Fallback *models.Token `json:"fallback"`
}

// LogSwapResponse acknowledges a logged swap
type LogSwapResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatsPlaceholderResponse is served when no analytics store is configured
type StatsPlaceholderResponse struct {
	TotalVolume   string `json:"totalVolume"`
	TotalSwaps    string `json:"totalSwaps"`
	TotalEarnings string `json:"totalEarnings"`
	UniqueWallets string `json:"uniqueWallets"`
	LastUpdated   string `json:"lastUpdated"`
	Status        string `json:"status"`
}

// StatsRequest selects the timeframe for POST /api/stats
type StatsRequest struct {
	Timeframe string `json:"timeframe"` // 24h, 7d, 30d or all
}

// StatsResponse wraps aggregate stats with the timeframe they cover
type StatsResponse struct {
	*models.SwapStats
	Timeframe string `json:"timeframe"`
	Status    string `json:"status"`
}

// AccessResponse is the wallet access decision
type AccessResponse struct {
	Access bool   `json:"access"`
	Reason string `json:"reason"`
}

// HistoryResponse lists a wallet's recent swaps, newest first
type HistoryResponse struct {
	Wallet  string                    `json:"wallet"`
	Entries []models.SwapHistoryEntry `json:"entries"`
}

// FavoritesResponse lists a wallet's favorite token mints
type FavoritesResponse struct {
	Wallet string   `json:"wallet"`
	Mints  []string `json:"mints"`
}

// FavoriteRequest adds a mint to a wallet's favorites
type FavoriteRequest struct {
	Mint string `json:"mint"`
}

// FavoriteToggleResponse reports the state of one favorite after a change
type FavoriteToggleResponse struct {
	Mint     string `json:"mint"`
	Favorite bool   `json:"favorite"`
}
