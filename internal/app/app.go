// Package app wires configuration into the services shared by the API server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/bankii-labs/bankiiswap/internal/cache"
	"github.com/bankii-labs/bankiiswap/internal/config"
	"github.com/bankii-labs/bankiiswap/internal/dexscreener"
	"github.com/bankii-labs/bankiiswap/internal/events"
	"github.com/bankii-labs/bankiiswap/internal/favorites"
	"github.com/bankii-labs/bankiiswap/internal/helius"
	"github.com/bankii-labs/bankiiswap/internal/history"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/metrics"
	"github.com/bankii-labs/bankiiswap/internal/portfolio"
	"github.com/bankii-labs/bankiiswap/internal/quote"
	"github.com/bankii-labs/bankiiswap/internal/resolver"
	"github.com/bankii-labs/bankiiswap/internal/rpc"
	"github.com/bankii-labs/bankiiswap/internal/storage"
	"github.com/bankii-labs/bankiiswap/internal/storage/postgres"
	"github.com/bankii-labs/bankiiswap/internal/swap"
	"github.com/bankii-labs/bankiiswap/internal/swaplog"
	"github.com/bankii-labs/bankiiswap/internal/tokens"
	"github.com/bankii-labs/bankiiswap/internal/wallet"
)

// App holds every long-lived component. Optional backends are nil when not configured.
type App struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Metrics *metrics.Metrics

	Redis     *redis.Client
	RPC       *rpc.Client
	Jupiter   *jupiter.Client
	Tokens    *tokens.Registry
	Resolver  *resolver.Resolver
	Quotes    *quote.Service
	History   storage.HistoryStore
	Favorites storage.FavoritesStore
	Recorder  *swaplog.Recorder
	Store     storage.SwapLogStore        // Postgres, optional
	Live      storage.SwapEventSubscriber // NATS when configured, Redis otherwise
	Portfolio *portfolio.Service

	closers []func()
}

// LoadEnv loads .env from the working directory, then from the module root.
func LoadEnv(logger *logrus.Logger) {
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env from working directory")
		return
	}

	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	envPath := filepath.Join(filepath.Dir(filename), "../..", ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Debugf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// NewLogger builds the logrus logger used across binaries.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// New connects to Redis and the optional backends and builds the services.
// m may be nil to run without metrics.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: m}

	a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		_ = a.Redis.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.onClose(func() { _ = a.Redis.Close() })

	var err error
	if a.History, err = history.NewRedisStore(a.Redis); err != nil {
		a.Close()
		return nil, err
	}
	if a.Favorites, err = favorites.NewStore(a.Redis); err != nil {
		a.Close()
		return nil, err
	}
	if a.Tokens, err = tokens.Default(cfg.BKPMint); err != nil {
		a.Close()
		return nil, fmt.Errorf("load token list: %w", err)
	}

	a.RPC = rpc.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.RPCUrl,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
		Metrics:      m,
	})
	a.Jupiter = jupiter.NewClient(cfg.JupiterBaseURL, cfg.JupiterAPIKey)

	providers := []resolver.Provider{
		resolver.NewDexScreenerProvider(dexscreener.NewClient(cfg.DexScreenerBaseURL)),
		resolver.NewJupiterProvider(a.Jupiter),
	}
	if cfg.HeliusAPIKey != "" {
		providers = append(providers, resolver.NewHeliusProvider(helius.NewClient(cfg.HeliusBaseURL, cfg.HeliusAPIKey)))
	}
	a.Resolver = resolver.New(resolver.Config{
		Providers: providers,
		TTL:       cfg.TokenSearchTTL,
		Logger:    logger,
		Metrics:   m,
	})

	a.Quotes = quote.NewService(quote.Config{
		Client:   a.Jupiter,
		CacheTTL: cfg.QuoteCacheTTL,
		HasFeeAccount: func(inputMint string) bool {
			_, ok := cfg.FeeAccountForMint(inputMint)
			return ok
		},
		Logger:  logger,
		Metrics: m,
	})

	a.Portfolio = portfolio.NewService(portfolio.Config{
		Balances: wallet.NewBalances(a.RPC),
		Prices:   a.Jupiter,
		Tokens:   a.Tokens,
		History:  a.History,
		Logger:   logger,
	})

	if err := a.connectSwapLog(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// connectSwapLog builds the swap log fan-out. Postgres is the queryable store,
// ClickHouse an append-only sink, Redis pub/sub and NATS JetStream the event streams.
func (a *App) connectSwapLog(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	if cfg.DatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.onClose(pool.Close)
		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
		a.Store = postgres.NewSwapLogStore(pool)
		logger.Info("swap log store: postgres")
	}

	var sinks []swaplog.NamedSink
	if cfg.ClickHouseAddr != "" {
		ch, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		if err != nil {
			// Analytics is best effort; the API still serves without it.
			logger.WithError(err).Warn("clickhouse unavailable, swap logs will not be mirrored")
		} else {
			a.onClose(func() { _ = ch.Close() })
			sinks = append(sinks, swaplog.NamedSink{Name: "clickhouse", Sink: ch})
		}
	}

	pubsub := cache.NewPubSubManager(a.Redis, logger)
	publishers := []swaplog.NamedPublisher{{Name: "redis", Publisher: pubsub}}
	a.Live = pubsub

	if cfg.NATSURL != "" {
		js, err := events.NewJetStreamPublisher(ctx, cfg.NATSURL, logger)
		if err != nil {
			logger.WithError(err).Warn("nats unavailable, live feed falls back to redis pub/sub")
		} else {
			publishers = append(publishers, swaplog.NamedPublisher{Name: "nats", Publisher: js})
			a.Live = js
		}
	}

	a.Recorder = swaplog.NewRecorder(swaplog.Config{
		Store:      a.Store,
		Sinks:      sinks,
		Publishers: publishers,
		Logger:     logger,
		Metrics:    a.Metrics,
	})
	a.onClose(func() { _ = a.Recorder.Close() })
	return nil
}

// Wallet loads the signing wallet from WALLET_PRIVATE_KEY.
func (a *App) Wallet() (*wallet.Wallet, error) {
	if a.Config.WalletPrivateKey == "" {
		return nil, errors.New("WALLET_PRIVATE_KEY is not set")
	}
	kp, err := wallet.NewKeypair(a.Config.WalletPrivateKey)
	if err != nil {
		return nil, err
	}
	return wallet.NewWallet(kp, a.RPC)
}

// Orchestrator builds a swap orchestrator around w. Swap logs go through the recorder.
func (a *App) Orchestrator(w swap.Wallet, bg *swap.Background) *swap.Orchestrator {
	return swap.NewOrchestrator(swap.Config{
		Jupiter:        a.Jupiter,
		Prices:         a.Jupiter,
		Wallet:         w,
		History:        a.History,
		LogSink:        a.Recorder,
		FeeAccountFor:  a.Config.FeeAccountForMint,
		Background:     bg,
		ConfirmTimeout: a.Config.SwapConfirmTimeout,
		Logger:         a.Logger,
		Metrics:        a.Metrics,
	})
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
