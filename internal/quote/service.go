// Package quote prices swaps through Jupiter after checking that both tokens
// exist and that a route between them is plausible.
package quote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bankii-labs/bankiiswap/internal/cache"
	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/errs"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/metrics"
)

const (
	validateTimeout = 5 * time.Second
	tradableTimeout = 5 * time.Second
	quoteTimeout    = 8 * time.Second
)

// Jupiter is the part of the Jupiter client the service needs.
type Jupiter interface {
	Quote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.QuoteResponse, error)
	Price(ctx context.Context, mint string) (float64, bool, error)
	SearchTokens(ctx context.Context, query string) ([]jupiter.TokenInfo, error)
}

type Request struct {
	InputMint       string
	OutputMint      string
	Amount          string // raw base units
	SlippagePercent float64
}

func (r Request) cacheKey() string {
	return fmt.Sprintf("%s|%s|%s|%g", r.InputMint, r.OutputMint, r.Amount, r.SlippagePercent)
}

type Config struct {
	Client   Jupiter
	CacheTTL time.Duration
	Clock    cache.Clock

	// HasFeeAccount reports whether a platform fee account exists for an input mint.
	// When it does, quotes carry platformFeeBps so the built swap can collect the fee.
	HasFeeAccount func(inputMint string) bool

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

type Service struct {
	client        Jupiter
	cache         *cache.TTL[*jupiter.QuoteResponse]
	hasFeeAccount func(string) bool
	logger        *logrus.Logger
	metrics       *metrics.Metrics
}

func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.HasFeeAccount == nil {
		cfg.HasFeeAccount = func(string) bool { return false }
	}
	return &Service{
		client:        cfg.Client,
		cache:         cache.NewTTL[*jupiter.QuoteResponse](cfg.CacheTTL, cfg.Clock),
		hasFeeAccount: cfg.HasFeeAccount,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// GetQuote returns a validated quote. Successful quotes are cached for the TTL;
// failures are not.
func (s *Service) GetQuote(ctx context.Context, req Request) (*jupiter.QuoteResponse, error) {
	req.InputMint = strings.TrimSpace(req.InputMint)
	req.OutputMint = strings.TrimSpace(req.OutputMint)
	req.Amount = strings.TrimSpace(req.Amount)

	if req.InputMint == "" || req.OutputMint == "" || req.Amount == "" {
		return nil, errs.New(errs.InvalidInput, "Missing required parameters for quote request")
	}
	if _, err := parseRawAmount(req.Amount); err != nil {
		return nil, errs.Wrap(errs.InvalidInput, "Amount must be greater than 0", err)
	}
	if req.SlippagePercent < 0 {
		return nil, errs.New(errs.InvalidInput, "Slippage must not be negative")
	}

	key := req.cacheKey()
	if q, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheLookup("quote", true)
		return q, nil
	}
	s.metrics.RecordCacheLookup("quote", false)

	start := time.Now()
	q, err := s.fetch(ctx, req)
	outcome := "ok"
	if err != nil {
		outcome = string(errs.KindOf(err))
	}
	s.metrics.RecordQuote(outcome, time.Since(start).Seconds())
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"input_mint":  req.InputMint,
			"output_mint": req.OutputMint,
			"amount":      req.Amount,
			"kind":        errs.KindOf(err),
		}).WithError(err).Warn("quote failed")
		return nil, err
	}

	s.cache.Set(key, q)
	return q, nil
}

func (s *Service) fetch(ctx context.Context, req Request) (*jupiter.QuoteResponse, error) {
	if err := s.validatePair(ctx, req.InputMint, req.OutputMint); err != nil {
		return nil, err
	}

	if !s.isTradable(ctx, req.InputMint, req.OutputMint) {
		return nil, errs.New(errs.NoRoute, MsgNoRouteForPair)
	}

	slippage := SlippageBps(req.SlippagePercent)
	maxAccounts := uint64(constants.DefaultMaxAccounts)
	restrict := true
	direct := false
	qr := jupiter.QuoteRequest{
		InputMint:                  req.InputMint,
		OutputMint:                 req.OutputMint,
		Amount:                     req.Amount,
		SlippageBps:                &slippage,
		SwapMode:                   "ExactIn",
		MaxAccounts:                &maxAccounts,
		RestrictIntermediateTokens: &restrict,
		OnlyDirectRoutes:           &direct,
	}
	if s.hasFeeAccount(req.InputMint) {
		bps := uint16(constants.PlatformFeeBps)
		qr.PlatformFeeBps = &bps
	}

	qctx, cancel := context.WithTimeout(ctx, quoteTimeout)
	defer cancel()

	q, err := s.client.Quote(qctx, qr)
	if err != nil {
		return nil, classify(err)
	}
	if err := Validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

// validatePair checks both mints concurrently.
func (s *Service) validatePair(ctx context.Context, inputMint, outputMint string) error {
	var inputOK, outputOK bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		inputOK = s.tokenExists(gctx, inputMint)
		return nil
	})
	g.Go(func() error {
		outputOK = s.tokenExists(gctx, outputMint)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.NetworkTimeout, MsgTimeout, err)
	}
	if !inputOK {
		return errs.New(errs.NotFound, "Input token not found in Jupiter ecosystem: "+inputMint)
	}
	if !outputOK {
		return errs.New(errs.NotFound, "Output token not found in Jupiter ecosystem: "+outputMint)
	}
	return nil
}

// tokenExists is true when Jupiter prices the mint or its token search returns anything.
func (s *Service) tokenExists(ctx context.Context, mint string) bool {
	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if _, ok, err := s.client.Price(ctx, mint); err == nil && ok {
		return true
	}

	list, err := s.client.SearchTokens(ctx, mint)
	if err != nil {
		s.logger.WithField("mint", mint).WithError(err).Debug("token existence check failed")
		return false
	}
	return len(list) > 0
}

// isTradable asks for a small quote. Only explicit "no route" answers mark the pair untradable;
// other failures (amount too small and the like) assume it is tradable.
func (s *Service) isTradable(ctx context.Context, inputMint, outputMint string) bool {
	ctx, cancel := context.WithTimeout(ctx, tradableTimeout)
	defer cancel()

	slippage := uint16(constants.TradableCheckBps)
	maxAccounts := uint64(constants.DefaultMaxAccounts)
	restrict := true
	direct := false

	q, err := s.client.Quote(ctx, jupiter.QuoteRequest{
		InputMint:                  inputMint,
		OutputMint:                 outputMint,
		Amount:                     constants.TradableCheckAmount,
		SlippageBps:                &slippage,
		SwapMode:                   "ExactIn",
		MaxAccounts:                &maxAccounts,
		RestrictIntermediateTokens: &restrict,
		OnlyDirectRoutes:           &direct,
	})
	if err != nil {
		return !isNoRouteAnswer(err)
	}
	return len(q.RoutePlan) > 0
}

// Validate rejects quotes missing a route plan or any of the core amount fields.
func Validate(q *jupiter.QuoteResponse) error {
	if q == nil {
		return errs.New(errs.NoRoute, "Empty quote response from Jupiter")
	}
	if len(q.RoutePlan) == 0 {
		return errs.New(errs.NoRoute, MsgInvalidQuote)
	}
	fields := []struct{ name, value string }{
		{"inputMint", q.InputMint},
		{"outputMint", q.OutputMint},
		{"inAmount", q.InAmount},
		{"outAmount", q.OutAmount},
	}
	for _, f := range fields {
		if f.value == "" {
			return errs.New(errs.NoRoute, "Missing required field in quote response: "+f.name)
		}
	}
	return nil
}
