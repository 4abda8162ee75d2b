package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bankii-labs/bankiiswap/internal/constants"
)

type Config struct {
	// API server settings
	APIAddr string
	APIKey  string
	DevMode bool

	ShutdownTimeout time.Duration

	// Logging
	LogLevel string

	// RPC settings
	RPCUrl       string
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// Jupiter settings
	JupiterBaseURL string
	JupiterAPIKey  string
	QuoteCacheTTL  time.Duration

	// Token metadata providers
	DexScreenerBaseURL string
	HeliusBaseURL      string
	HeliusAPIKey       string
	TokenSearchTTL     time.Duration

	// Platform fee accounts keyed by input mint symbol
	ReferralAccount string
	FeeAccounts     map[string]string
	BKPMint         string
	BNKYMint        string

	// Swap execution
	WalletPrivateKey   string
	SwapConfirmTimeout time.Duration

	// Redis settings
	RedisAddr string
	RedisDB   int

	// ClickHouse settings (optional swap log sink)
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Postgres settings (optional swap log store)
	DatabaseURL string

	// NATS settings (optional swap event stream)
	NATSURL string
}

// feeAccountEnv maps token symbols to the env var holding their fee account.
var feeAccountEnv = map[string]string{
	"USDC": "FEE_ACCOUNT_USDC",
	"USDT": "FEE_ACCOUNT_USDT",
	"WIF":  "FEE_ACCOUNT_WIF",
	"JUP":  "FEE_ACCOUNT_JUP",
	"BONK": "FEE_ACCOUNT_BONK",
	"MSOL": "FEE_ACCOUNT_MSOL",
	"WSOL": "FEE_ACCOUNT_WSOL",
	"BNKY": "FEE_ACCOUNT_BNKY",
}

func Load() *Config {
	feeAccounts := make(map[string]string, len(feeAccountEnv))
	for sym, key := range feeAccountEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			feeAccounts[sym] = v
		}
	}

	return &Config{
		// API
		APIAddr:  getEnv("API_ADDR", ":8090"),
		APIKey:   getEnv("API_KEY", ""),
		DevMode:  getBoolEnv("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),

		// RPC
		RPCUrl:       getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 3),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 500*time.Millisecond),

		// Jupiter
		JupiterBaseURL: getEnv("JUPITER_BASE_URL", "https://lite-api.jup.ag"),
		JupiterAPIKey:  getEnv("JUPITER_API_KEY", ""),
		QuoteCacheTTL:  getDurationEnv("QUOTE_CACHE_TTL", 10*time.Second),

		// Metadata providers
		DexScreenerBaseURL: getEnv("DEXSCREENER_BASE_URL", "https://api.dexscreener.com"),
		HeliusBaseURL:      getEnv("HELIUS_BASE_URL", "https://api.helius.xyz"),
		HeliusAPIKey:       getEnv("HELIUS_API_KEY", ""),
		TokenSearchTTL:     getDurationEnv("TOKEN_SEARCH_TTL", 5*time.Minute),

		// Fees
		ReferralAccount: getEnv("REFERRAL_ACCOUNT", ""),
		FeeAccounts:     feeAccounts,
		BKPMint:         getEnv("BKP_TOKEN_ADDRESS", constants.MintBKP),
		BNKYMint:        getEnv("BNKY_TOKEN_ADDRESS", ""),

		// Swap
		WalletPrivateKey:   getEnv("WALLET_PRIVATE_KEY", ""),
		SwapConfirmTimeout: getDurationEnv("SWAP_CONFIRM_TIMEOUT", 0),

		// Redis
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getIntEnv("REDIS_DB", 0),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "bankii"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// Postgres
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// NATS
		NATSURL: getEnv("NATS_URL", ""),
	}
}

// Validate checks required values and ranges. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.APIAddr) == "" {
		errs = append(errs, fmt.Errorf("API_ADDR is required"))
	}
	if strings.TrimSpace(c.RPCUrl) == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}
	if strings.TrimSpace(c.JupiterBaseURL) == "" {
		errs = append(errs, fmt.Errorf("JUPITER_BASE_URL is required"))
	}
	if strings.TrimSpace(c.RedisAddr) == "" {
		errs = append(errs, fmt.Errorf("REDIS_ADDR is required"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be >= 0"))
	}
	if c.QuoteCacheTTL < 0 {
		errs = append(errs, fmt.Errorf("QUOTE_CACHE_TTL must be >= 0"))
	}
	if c.TokenSearchTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_SEARCH_TTL must be > 0"))
	}
	if c.SwapConfirmTimeout < 0 {
		errs = append(errs, fmt.Errorf("SWAP_CONFIRM_TIMEOUT must be >= 0"))
	}

	return errors.Join(errs...)
}

// FeeAccountFor returns the fee account configured for a token symbol.
func (c *Config) FeeAccountFor(symbol string) (string, bool) {
	v, ok := c.FeeAccounts[strings.ToUpper(symbol)]
	return v, ok
}

// FeeAccountForMint returns the fee account that collects the platform fee for an input mint.
func (c *Config) FeeAccountForMint(mint string) (string, bool) {
	if c.BNKYMint != "" && mint == c.BNKYMint {
		return c.FeeAccountFor("BNKY")
	}
	sym, ok := constants.FeeSymbolByMint[mint]
	if !ok {
		return "", false
	}
	return c.FeeAccountFor(sym)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
