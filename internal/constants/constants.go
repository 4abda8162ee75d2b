package constants

import "time"

// Well-known mints
const (
	MintSOL  = "So11111111111111111111111111111111111111112"
	MintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MintUSDT = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
	MintMSOL = "mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So"
	MintBONK = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	MintJUP  = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
	MintWIF  = "EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"
	MintBKP  = "C1MAQ3hbSVR6d5isBRRcBAJKnPrbVwfajDhiNLhJNrff"
)

// FeeSymbolByMint maps input mints to the symbol whose fee account collects the platform fee.
// The BNKY mint is configured at runtime.
var FeeSymbolByMint = map[string]string{
	MintUSDC: "USDC",
	MintUSDT: "USDT",
	MintWIF:  "WIF",
	MintJUP:  "JUP",
	MintBONK: "BONK",
	MintMSOL: "MSOL",
	MintSOL:  "WSOL",
}

// KnownVerifiedTokens is the hard-coded verified safety net for token listings.
var KnownVerifiedTokens = map[string]bool{
	MintSOL:  true,
	MintUSDC: true,
	MintUSDT: true,
	MintMSOL: true,
	"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn": true, // jitoSOL
	"bSo13r4TkiE4KumL71LsHTPpL2euBYLFx6h9HP3piy1":  true, // bSOL
	MintBONK: true,
}

// FallbackPricesUSD are used by the portfolio view when the price provider returns nothing.
var FallbackPricesUSD = map[string]float64{
	"USDC": 1.0,
	"USDT": 1.0,
	"SOL":  166,
}

// Storage keys
const (
	HistoryKeyPrefix   = "bankii-swap-history:"
	FavoritesKeyPrefix = "bankii-favorite-tokens:"
)

// Pub/Sub channels and stream subjects
const (
	PubSubChannelSwaps = "swaps:logged"
	NATSStreamName     = "BANKII_SWAPS"
	NATSSubjectPrefix  = "swaps."
)

// Limits
const (
	MaxHistoryEntries = 20
	LogSwapPerMinute  = 30
	APIPerMinute      = 100
)

// Fees. PlatformFeeRate is the application-level fee estimate applied to the
// input amount; PlatformFeeBps is the aggregator-level fee attached to quotes.
const (
	PlatformFeeRate = 0.003
	PlatformFeeBps  = 30
	MaxAmountBuffer = 0.9999
)

// Quote defaults
const (
	DefaultMaxAccounts  = 64
	TradableCheckAmount = "1000000"
	TradableCheckBps    = 500
	DefaultSlippagePct  = 0.5
	QuoteDebounce       = 200 * time.Millisecond
	PriorityMaxLamports = 1_000_000
	PriorityLevel       = "veryHigh"
)

// Provider timeouts
const (
	DexScreenerTimeout = 10 * time.Second
	JupiterTimeout     = 5 * time.Second
	HeliusTimeout      = 6 * time.Second

	// TokenSearchTimeout lets a lookup fall through every provider.
	TokenSearchTimeout = DexScreenerTimeout + JupiterTimeout + HeliusTimeout + 4*time.Second
)

// Presentation
const (
	FallbackLogoURI = "/token-fallback.png"
	ExplorerTxURL   = "https://solscan.io/tx/"
)
