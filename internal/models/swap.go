package models

import "time"

type SwapStatus string

const (
	StatusSubmitted SwapStatus = "submitted"
	StatusConfirmed SwapStatus = "confirmed"
	StatusFailed    SwapStatus = "failed"
)

// SwapHistoryEntry is recorded right after broadcast, before confirmation.
type SwapHistoryEntry struct {
	TxID            string     `json:"txId"`
	FromTokenSymbol string     `json:"fromTokenSymbol"`
	FromMint        string     `json:"fromMint,omitempty"`
	FromAmount      float64    `json:"fromAmount"`
	ToTokenSymbol   string     `json:"toTokenSymbol"`
	ToMint          string     `json:"toMint,omitempty"`
	ToAmount        float64    `json:"toAmount"`
	Timestamp       time.Time  `json:"timestamp"`
	Status          SwapStatus `json:"status,omitempty"`
}

// SwapLog is the audit record submitted to /api/log-swap.
type SwapLog struct {
	ID             string  `json:"id,omitempty"`
	WalletAddress  string  `json:"walletAddress"`
	FromToken      string  `json:"fromToken"`
	ToToken        string  `json:"toToken"`
	FromAmount     float64 `json:"fromAmount"`
	ToAmount       float64 `json:"toAmount"`
	FromUSDValue   float64 `json:"fromUsdValue"`
	ToUSDValue     float64 `json:"toUsdValue"`
	FeesPaid       float64 `json:"feesPaid"`
	FeesUSDValue   float64 `json:"feesUsdValue"`
	Signature      string  `json:"signature"`
	BlockTime      int64   `json:"blockTime"`
	JupiterFee     float64 `json:"jupiterFee"`
	PlatformFee    float64 `json:"platformFee"`
	Slippage       float64 `json:"slippage"`
	RoutePlan      string  `json:"routePlan"`
	FeeTokenSymbol string  `json:"fee_token_symbol"`
	FeeTokenMint   string  `json:"fee_token_mint"`

	LoggedAt time.Time `json:"loggedAt,omitempty"`
}

// Pair returns the "FROM/TO" label used for channels and subjects.
func (l *SwapLog) Pair() string {
	return l.FromToken + "/" + l.ToToken
}

// SwapStats aggregates logged swaps.
type SwapStats struct {
	TotalVolumeUSD   float64   `json:"totalVolume"`
	TotalSwaps       int64     `json:"totalSwaps"`
	TotalEarningsUSD float64   `json:"totalEarnings"`
	UniqueWallets    int64     `json:"uniqueWallets"`
	Since            time.Time `json:"since,omitempty"`
	LastUpdated      time.Time `json:"lastUpdated"`
}
