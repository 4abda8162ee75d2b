// Package portfolio values the tokens a wallet has traded at current prices.
package portfolio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/storage"
)

const fetchTimeout = 10 * time.Second

type BalanceSource interface {
	Balance(ctx context.Context, owner, mint string) (float64, error)
}

type PriceSource interface {
	Prices(ctx context.Context, mints ...string) (map[string]jupiter.PriceInfo, error)
}

type TokenList interface {
	BySymbol(symbol string) (models.Token, bool)
}

// Asset is one valued holding.
type Asset struct {
	Symbol   string  `json:"symbol"`
	Mint     string  `json:"mint"`
	Balance  float64 `json:"balance"`
	Price    float64 `json:"price"`
	ValueUSD float64 `json:"valueUSD"`
}

type Portfolio struct {
	Wallet    string    `json:"wallet"`
	Assets    []Asset   `json:"assets"`
	TotalUSD  float64   `json:"totalUSD"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Config struct {
	Balances BalanceSource
	Prices   PriceSource
	Tokens   TokenList
	History  storage.HistoryStore
	Logger   *logrus.Logger
}

type Service struct {
	balances BalanceSource
	prices   PriceSource
	tokens   TokenList
	history  storage.HistoryStore
	logger   *logrus.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Service{
		balances: cfg.Balances,
		prices:   cfg.Prices,
		tokens:   cfg.Tokens,
		history:  cfg.History,
		logger:   cfg.Logger,
	}
}

// ForWallet values every token that appears in the wallet's swap history.
func (s *Service) ForWallet(ctx context.Context, wallet string) (*Portfolio, error) {
	if s.history == nil {
		return nil, fmt.Errorf("portfolio: no history store configured")
	}
	entries, err := s.history.List(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return s.Build(ctx, wallet, TradedTokens(entries))
}

// Holding is a traded token. Mint is empty for entries recorded without one.
type Holding struct {
	Symbol string
	Mint   string
}

// TradedTokens returns each token once, keyed by symbol, in order of first
// appearance. A mint seen on any entry is kept.
func TradedTokens(entries []models.SwapHistoryEntry) []Holding {
	index := make(map[string]int)
	var out []Holding
	add := func(sym, mint string) {
		key := strings.ToUpper(strings.TrimSpace(sym))
		if key == "" {
			return
		}
		mint = strings.TrimSpace(mint)
		if i, ok := index[key]; ok {
			if out[i].Mint == "" {
				out[i].Mint = mint
			}
			return
		}
		index[key] = len(out)
		out = append(out, Holding{Symbol: sym, Mint: mint})
	}
	for _, e := range entries {
		add(e.FromTokenSymbol, e.FromMint)
		add(e.ToTokenSymbol, e.ToMint)
	}
	return out
}

// Build values the given holdings for wallet. A token whose balance or price
// cannot be fetched is valued at zero rather than failing the whole view.
func (s *Service) Build(ctx context.Context, wallet string, holdings []Holding) (*Portfolio, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	assets := make([]Asset, 0, len(holdings))
	for _, h := range holdings {
		mint, ok := s.mintFor(h)
		if !ok {
			s.logger.WithField("symbol", h.Symbol).Debug("portfolio: no mint for symbol")
			continue
		}
		assets = append(assets, Asset{Symbol: h.Symbol, Mint: mint})
	}

	var (
		mu     sync.Mutex
		prices map[string]jupiter.PriceInfo
	)
	g, gctx := errgroup.WithContext(ctx)

	for i := range assets {
		g.Go(func() error {
			bal, err := s.balances.Balance(gctx, wallet, assets[i].Mint)
			if err != nil {
				s.logger.WithFields(logrus.Fields{
					"wallet": wallet,
					"mint":   assets[i].Mint,
				}).WithError(err).Debug("portfolio: balance fetch failed")
				return nil
			}
			assets[i].Balance = bal
			return nil
		})
	}

	if s.prices != nil && len(assets) > 0 {
		mints := make([]string, len(assets))
		for i, a := range assets {
			mints[i] = a.Mint
		}
		g.Go(func() error {
			p, err := s.prices.Prices(gctx, mints...)
			if err != nil {
				s.logger.WithError(err).Debug("portfolio: price fetch failed")
				return nil
			}
			mu.Lock()
			prices = p
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := &Portfolio{Wallet: wallet, Assets: assets, UpdatedAt: time.Now().UTC()}
	for i := range out.Assets {
		a := &out.Assets[i]
		a.Price = prices[a.Mint].USDPrice
		if a.Price <= 0 {
			a.Price = constants.FallbackPricesUSD[strings.ToUpper(a.Symbol)]
		}
		a.ValueUSD = a.Balance * a.Price
		out.TotalUSD += a.ValueUSD
	}
	return out, nil
}

// mintFor prefers the mint recorded with the swap and falls back to the
// bundled token list for entries that only carry a symbol.
func (s *Service) mintFor(h Holding) (string, bool) {
	if h.Mint != "" {
		return h.Mint, true
	}
	if s.tokens != nil {
		if t, ok := s.tokens.BySymbol(h.Symbol); ok {
			return t.Address, true
		}
	}
	return "", false
}
