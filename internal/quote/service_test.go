package quote

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/errs"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
)

type fakeJupiter struct {
	mu sync.Mutex

	prices   map[string]float64
	search   map[string][]jupiter.TokenInfo
	tradableErr error
	quote    *jupiter.QuoteResponse
	quoteErr error

	quoteCalls  int
	priceCalls  int
	searchCalls int
	lastQuote   jupiter.QuoteRequest
}

func (f *fakeJupiter) Quote(_ context.Context, req jupiter.QuoteRequest) (*jupiter.QuoteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++

	if req.Amount == constants.TradableCheckAmount && req.SlippageBps != nil && *req.SlippageBps == constants.TradableCheckBps {
		if f.tradableErr != nil {
			return nil, f.tradableErr
		}
		return &jupiter.QuoteResponse{RoutePlan: []jupiter.RoutePlanStep{{}}}, nil
	}

	f.lastQuote = req
	return f.quote, f.quoteErr
}

func (f *fakeJupiter) Price(_ context.Context, mint string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	p, ok := f.prices[mint]
	return p, ok, nil
}

func (f *fakeJupiter) SearchTokens(_ context.Context, q string) ([]jupiter.TokenInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	return f.search[q], nil
}

func (f *fakeJupiter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls + f.priceCalls + f.searchCalls
}

func goodQuote() *jupiter.QuoteResponse {
	return &jupiter.QuoteResponse{
		InputMint:  constants.MintUSDC,
		OutputMint: constants.MintBKP,
		InAmount:   "1000000",
		OutAmount:  "476190476190",
		RoutePlan:  []jupiter.RoutePlanStep{{SwapInfo: jupiter.SwapInfo{Label: "Raydium"}}},
	}
}

func newFake() *fakeJupiter {
	return &fakeJupiter{
		prices: map[string]float64{constants.MintUSDC: 1},
		search: map[string][]jupiter.TokenInfo{constants.MintBKP: {{ID: constants.MintBKP}}},
		quote:  goodQuote(),
	}
}

func usdcToBKP() Request {
	return Request{InputMint: constants.MintUSDC, OutputMint: constants.MintBKP, Amount: "1000000", SlippagePercent: 0.5}
}

func TestGetQuote_Success(t *testing.T) {
	fake := newFake()
	svc := NewService(Config{Client: fake, CacheTTL: time.Minute})

	q, err := svc.GetQuote(context.Background(), usdcToBKP())
	require.NoError(t, err)
	assert.Equal(t, "476190476190", q.OutAmount)

	require.NotNil(t, fake.lastQuote.SlippageBps)
	assert.Equal(t, uint16(50), *fake.lastQuote.SlippageBps)
	assert.Equal(t, uint64(64), *fake.lastQuote.MaxAccounts)
	assert.Equal(t, "ExactIn", fake.lastQuote.SwapMode)
	assert.True(t, *fake.lastQuote.RestrictIntermediateTokens)
	assert.False(t, *fake.lastQuote.OnlyDirectRoutes)
	assert.Nil(t, fake.lastQuote.PlatformFeeBps)
}

func TestGetQuote_CacheHitMakesNoNetworkCall(t *testing.T) {
	fake := newFake()
	svc := NewService(Config{Client: fake, CacheTTL: time.Minute})

	first, err := svc.GetQuote(context.Background(), usdcToBKP())
	require.NoError(t, err)
	before := fake.calls()

	second, err := svc.GetQuote(context.Background(), usdcToBKP())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, before, fake.calls())
}

func TestGetQuote_DifferentSlippageMisses(t *testing.T) {
	fake := newFake()
	svc := NewService(Config{Client: fake, CacheTTL: time.Minute})

	_, err := svc.GetQuote(context.Background(), usdcToBKP())
	require.NoError(t, err)
	before := fake.calls()

	req := usdcToBKP()
	req.SlippagePercent = 1
	_, err = svc.GetQuote(context.Background(), req)
	require.NoError(t, err)
	assert.Greater(t, fake.calls(), before)
}

func TestGetQuote_EmptyRoutePlanIsNoRoute(t *testing.T) {
	for name, plan := range map[string][]jupiter.RoutePlanStep{"missing": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			fake := newFake()
			fake.quote.RoutePlan = plan
			svc := NewService(Config{Client: fake, CacheTTL: time.Minute})

			_, err := svc.GetQuote(context.Background(), usdcToBKP())
			require.Error(t, err)
			assert.Equal(t, errs.NoRoute, errs.KindOf(err))

			before := fake.calls()
			_, err = svc.GetQuote(context.Background(), usdcToBKP())
			require.Error(t, err)
			assert.Greater(t, fake.calls(), before, "failures are not cached")
		})
	}
}

func TestGetQuote_InvalidInput(t *testing.T) {
	svc := NewService(Config{Client: newFake()})

	for _, amount := range []string{"", "abc", "0", "-5", "1.5"} {
		req := usdcToBKP()
		req.Amount = amount
		_, err := svc.GetQuote(context.Background(), req)
		require.Error(t, err, "amount %q", amount)
		assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
	}

	_, err := svc.GetQuote(context.Background(), Request{OutputMint: constants.MintBKP, Amount: "1"})
	assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
}

func TestGetQuote_UnknownToken(t *testing.T) {
	fake := newFake()
	delete(fake.search, constants.MintBKP)
	svc := NewService(Config{Client: fake})

	_, err := svc.GetQuote(context.Background(), usdcToBKP())
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.KindOf(err))
	assert.Equal(t, "Output token not found in Jupiter ecosystem: "+constants.MintBKP, errs.MessageOf(err))
}

func TestGetQuote_TradabilityOutcomes(t *testing.T) {
	fake := newFake()
	fake.tradableErr = &jupiter.HTTPError{StatusCode: http.StatusNotFound}
	svc := NewService(Config{Client: fake})

	_, err := svc.GetQuote(context.Background(), usdcToBKP())
	assert.Equal(t, errs.NoRoute, errs.KindOf(err))
	assert.Equal(t, MsgNoRouteForPair, errs.MessageOf(err))

	fake = newFake()
	fake.tradableErr = &jupiter.HTTPError{StatusCode: http.StatusBadRequest, Body: []byte(`{"error":"Token is NOT TRADABLE"}`)}
	svc = NewService(Config{Client: fake})
	_, err = svc.GetQuote(context.Background(), usdcToBKP())
	assert.Equal(t, errs.NoRoute, errs.KindOf(err))

	fake = newFake()
	fake.tradableErr = &jupiter.HTTPError{StatusCode: http.StatusBadRequest, Body: []byte(`{"error":"amount too small"}`)}
	svc = NewService(Config{Client: fake})
	_, err = svc.GetQuote(context.Background(), usdcToBKP())
	assert.NoError(t, err, "other tradability check errors assume the pair is tradable")
}

func TestGetQuote_PlatformFee(t *testing.T) {
	fake := newFake()
	svc := NewService(Config{
		Client:        fake,
		HasFeeAccount: func(mint string) bool { return mint == constants.MintUSDC },
	})

	_, err := svc.GetQuote(context.Background(), usdcToBKP())
	require.NoError(t, err)
	require.NotNil(t, fake.lastQuote.PlatformFeeBps)
	assert.Equal(t, uint16(30), *fake.lastQuote.PlatformFeeBps)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		kind errs.Kind
		msg  string
	}{
		{&jupiter.HTTPError{StatusCode: 400, Body: []byte(`{"error":"insufficient liquidity"}`)}, errs.NoRoute, MsgInsufficientLiquidity},
		{&jupiter.HTTPError{StatusCode: 400, Body: []byte(`{"message":"slippage tolerance exceeded"}`)}, errs.InvalidInput, MsgSlippageExceeded},
		{&jupiter.HTTPError{StatusCode: 400, Body: []byte(`{"error":"invalid mint"}`)}, errs.NotFound, MsgTokenNotSupported},
		{&jupiter.HTTPError{StatusCode: 400, Body: []byte(`{"error":"amount too small"}`)}, errs.InvalidInput, MsgAmountTooSmall},
		{&jupiter.HTTPError{StatusCode: 400, Body: []byte(`{"error":"amount too large"}`)}, errs.InvalidInput, MsgAmountTooLarge},
		{&jupiter.HTTPError{StatusCode: 400, Body: []byte(`{"error":"No route found"}`)}, errs.NoRoute, MsgNoRoute},
		{&jupiter.HTTPError{StatusCode: 400, Body: []byte(`{"error":"weird"}`)}, errs.InvalidInput, "Quote failed: weird"},
		{&jupiter.HTTPError{StatusCode: 400}, errs.InvalidInput, MsgInvalidParams},
		{&jupiter.HTTPError{StatusCode: 404}, errs.NoRoute, MsgRouteNotFound},
		{&jupiter.HTTPError{StatusCode: 429}, errs.RateLimited, MsgRateLimited},
		{&jupiter.HTTPError{StatusCode: 503}, errs.ProviderError, MsgProviderError},
		{context.DeadlineExceeded, errs.NetworkTimeout, MsgTimeout},
		{errors.New("dial tcp: refused"), errs.ProviderError, "Failed to get quote: dial tcp: refused"},
	}

	for _, tc := range cases {
		err := classify(tc.err)
		assert.Equal(t, tc.kind, errs.KindOf(err), "%v", tc.err)
		assert.Equal(t, tc.msg, errs.MessageOf(err), "%v", tc.err)
		assert.ErrorIs(t, err, tc.err)
	}
}

func TestAmounts(t *testing.T) {
	raw, err := ToRaw(decimal.RequireFromString("1.0"), 6)
	require.NoError(t, err)
	assert.Equal(t, "1000000", raw)

	raw, err = ToRaw(decimal.RequireFromString("0.1234567891"), 9)
	require.NoError(t, err)
	assert.Equal(t, "123456789", raw)

	_, err = ToRaw(decimal.Zero, 6)
	assert.Error(t, err)

	_, err = ToRaw(decimal.RequireFromString("0.0000001"), 6)
	assert.Error(t, err)

	ui, err := FromRaw("476190476190", 9)
	require.NoError(t, err)
	assert.Equal(t, "476.19047619", ui.String())

	assert.Equal(t, uint16(50), SlippageBps(0.5))
	assert.Equal(t, uint16(1), SlippageBps(0.005))
	assert.Equal(t, uint16(0), SlippageBps(-1))
	assert.Equal(t, uint16(10000), SlippageBps(250))
}
