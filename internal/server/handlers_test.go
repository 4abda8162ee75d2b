package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/errs"
	"github.com/bankii-labs/bankiiswap/internal/favorites"
	"github.com/bankii-labs/bankiiswap/internal/history"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/portfolio"
	"github.com/bankii-labs/bankiiswap/internal/quote"
	"github.com/bankii-labs/bankiiswap/internal/resolver"
	"github.com/bankii-labs/bankiiswap/internal/server"
	"github.com/bankii-labs/bankiiswap/internal/storage"
	"github.com/bankii-labs/bankiiswap/internal/swaplog"
	"github.com/bankii-labs/bankiiswap/internal/tokens"
)

const testWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"

type stubProvider struct {
	known map[string]*models.Token
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Lookup(_ context.Context, mint string) (*models.Token, error) {
	return p.known[mint], nil
}

type fakeQuotes struct {
	resp *jupiter.QuoteResponse
	err  error
	last quote.Request
}

func (f *fakeQuotes) GetQuote(_ context.Context, req quote.Request) (*jupiter.QuoteResponse, error) {
	f.last = req
	return f.resp, f.err
}

type fakeCatalog struct {
	verified  []jupiter.TokenInfo
	found     []jupiter.TokenInfo
	tagErr    error
	searchErr error
}

func (f *fakeCatalog) SearchTokens(context.Context, string) ([]jupiter.TokenInfo, error) {
	return f.found, f.searchErr
}

func (f *fakeCatalog) TokensByTag(context.Context, string) ([]jupiter.TokenInfo, error) {
	return f.verified, f.tagErr
}

type memStore struct {
	mu   sync.Mutex
	logs map[string]*models.SwapLog
	fail error
}

func newMemStore() *memStore { return &memStore{logs: map[string]*models.SwapLog{}} }

func (m *memStore) InsertSwapLog(_ context.Context, l *models.SwapLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	if _, ok := m.logs[l.Signature]; ok {
		return storage.ErrDuplicateKey
	}
	cp := *l
	m.logs[l.Signature] = &cp
	return nil
}

func (m *memStore) GetBySignature(_ context.Context, sig string) (*models.SwapLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[sig]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return l, nil
}

func (m *memStore) ListByWallet(_ context.Context, wallet string, limit int) ([]*models.SwapLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SwapLog
	for _, l := range m.logs {
		if l.WalletAddress == wallet && len(out) < limit {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) Stats(_ context.Context, since time.Time) (*models.SwapStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &models.SwapStats{Since: since, LastUpdated: time.Now().UTC()}
	wallets := map[string]bool{}
	for _, l := range m.logs {
		if l.LoggedAt.Before(since) {
			continue
		}
		st.TotalSwaps++
		st.TotalVolumeUSD += l.FromUSDValue
		st.TotalEarningsUSD += l.FeesUSDValue
		wallets[l.WalletAddress] = true
	}
	st.UniqueWallets = int64(len(wallets))
	return st, nil
}

func (m *memStore) Ping(context.Context) error { return m.fail }

type memFavorites struct {
	mu  sync.Mutex
	set map[string]map[string]bool
}

func newMemFavorites() *memFavorites { return &memFavorites{set: map[string]map[string]bool{}} }

func (f *memFavorites) check(wallet, mint string) error {
	if strings.TrimSpace(wallet) == "" {
		return favorites.ErrInvalidWallet
	}
	return favorites.ValidateMint(mint)
}

func (f *memFavorites) Add(_ context.Context, wallet, mint string) error {
	if err := f.check(wallet, mint); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set[wallet] == nil {
		f.set[wallet] = map[string]bool{}
	}
	f.set[wallet][mint] = true
	return nil
}

func (f *memFavorites) Remove(_ context.Context, wallet, mint string) error {
	if err := f.check(wallet, mint); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.set[wallet], mint)
	return nil
}

func (f *memFavorites) Toggle(ctx context.Context, wallet, mint string) (bool, error) {
	on, err := f.IsFavorite(ctx, wallet, mint)
	if err != nil {
		return false, err
	}
	if on {
		return false, f.Remove(ctx, wallet, mint)
	}
	return true, f.Add(ctx, wallet, mint)
}

func (f *memFavorites) List(_ context.Context, wallet string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for m := range f.set[wallet] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (f *memFavorites) IsFavorite(_ context.Context, wallet, mint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.set[wallet][mint], nil
}

type fakePortfolio struct{}

func (fakePortfolio) ForWallet(_ context.Context, wallet string) (*portfolio.Portfolio, error) {
	return &portfolio.Portfolio{
		Wallet:   wallet,
		Assets:   []portfolio.Asset{{Symbol: "USDC", Mint: constants.MintUSDC, Balance: 10, Price: 1, ValueUSD: 10}},
		TotalUSD: 10,
	}, nil
}

type fakeLive struct {
	ch chan *models.SwapLog
}

func (f *fakeLive) SubscribeSwaps(ctx context.Context) (<-chan *models.SwapLog, error) {
	out := make(chan *models.SwapLog)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case l := <-f.ch:
				select {
				case out <- l:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type harness struct {
	srv      *server.Server
	handlers *server.Handlers
	handler  http.Handler
	quotes   *fakeQuotes
	catalog  *fakeCatalog
	store    *memStore
	live     *fakeLive
}

func newHarness(t *testing.T, mutate ...func(*server.Handlers, *server.ServerConfig)) *harness {
	t.Helper()

	reg, err := tokens.Default("")
	require.NoError(t, err)

	h := &harness{
		quotes:  &fakeQuotes{},
		catalog: &fakeCatalog{},
		store:   newMemStore(),
		live:    &fakeLive{ch: make(chan *models.SwapLog, 4)},
	}

	bkp := &models.Token{Address: constants.MintBKP, Symbol: "BKP", Name: "Bankii Token", Decimals: 9, Source: "stub"}
	h.handlers = &server.Handlers{
		Resolver: resolver.New(resolver.Config{Providers: []resolver.Provider{
			&stubProvider{known: map[string]*models.Token{constants.MintBKP: bkp}},
		}}),
		Quotes:    h.quotes,
		Catalog:   h.catalog,
		Tokens:    reg,
		SwapLogs:  swaplog.NewRecorder(swaplog.Config{Store: h.store}),
		Store:     h.store,
		History:   history.NewMemoryStore(),
		Favorites: newMemFavorites(),
		Portfolio: fakePortfolio{},
		Live:      h.live,
	}
	cfg := server.ServerConfig{Addr: ":0"}
	for _, m := range mutate {
		m(h.handlers, &cfg)
	}

	srv, err := server.NewServer(server.ServerDeps{Handlers: h.handlers, Config: cfg})
	require.NoError(t, err)
	h.srv = srv
	h.handler = srv.Handler()
	return h
}

func (h *harness) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[server.HealthResponse](t, rec).OK)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestHealthDB(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/api/health/db", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, server.DBHealthResponse{OK: true, Configured: true}, decode[server.DBHealthResponse](t, rec))

	h.store.fail = errors.New("down")
	rec = h.do(t, http.MethodGet, "/api/health/db", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	bare := newHarness(t, func(hd *server.Handlers, _ *server.ServerConfig) { hd.Store = nil })
	rec = bare.do(t, http.MethodGet, "/api/health/db", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, server.DBHealthResponse{OK: true, Configured: false}, decode[server.DBHealthResponse](t, rec))
}

func intPtr(v int) *int { return &v }

func TestTokenList(t *testing.T) {
	h := newHarness(t)
	h.catalog.verified = []jupiter.TokenInfo{
		{ID: constants.MintUSDC, Symbol: "USDC", Name: "USD Coin", Decimals: intPtr(6), Icon: "ipfs://abc"},
		{ID: constants.MintSOL, Symbol: "SOL", Name: "Wrapped SOL", Decimals: intPtr(9)},
	}

	rec := h.do(t, http.MethodGet, "/api/tokens", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[server.TokenListResponse](t, rec)
	require.Len(t, out.Tokens, 2)
	assert.Equal(t, []string{constants.MintUSDC, constants.MintSOL}, out.VerifiedAddresses)
	assert.True(t, out.Tokens[0].Verified)
	assert.Equal(t, "https://ipfs.io/ipfs/abc", out.Tokens[0].LogoURI)
	assert.Equal(t, constants.FallbackLogoURI, out.Tokens[1].LogoURI)
}

func TestTokenList_ProviderFailure(t *testing.T) {
	h := newHarness(t)
	h.catalog.tagErr = errors.New("jupiter down")

	rec := h.do(t, http.MethodGet, "/api/tokens", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	out := decode[server.TokenListResponse](t, rec)
	assert.Equal(t, "Failed to fetch token list from provider", out.Error)
	assert.NotNil(t, out.Tokens)
	assert.Empty(t, out.Tokens)
	assert.Empty(t, out.VerifiedAddresses)
	assert.Contains(t, rec.Body.String(), `"tokens":[]`)
}

func TestTokenList_Search(t *testing.T) {
	h := newHarness(t)
	h.catalog.verified = []jupiter.TokenInfo{{ID: "VerifiedByTag1111111111111111111111111111111"}}
	h.catalog.found = []jupiter.TokenInfo{
		{ID: "VerifiedByTag1111111111111111111111111111111", Symbol: "TAG"},
		{ID: "SelfVerified11111111111111111111111111111111", Symbol: "SELF", IsVerified: true},
		{ID: constants.MintBONK, Symbol: "Bonk"},
		{ID: "Unverified111111111111111111111111111111111", Symbol: "NOPE"},
	}

	rec := h.do(t, http.MethodGet, "/api/tokens?search=bo", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[server.TokenSearchResponse](t, rec)
	assert.Equal(t, "bo", out.Query)
	assert.False(t, out.Fallback)
	require.Len(t, out.Results, 4)
	assert.True(t, out.Results[0].Verified, "in the verified tag list")
	assert.True(t, out.Results[1].Verified, "provider marks it verified")
	assert.True(t, out.Results[2].Verified, "hard-coded known token")
	assert.False(t, out.Results[3].Verified)
	assert.Equal(t, []string{"VerifiedByTag1111111111111111111111111111111"}, out.VerifiedAddresses)
}

func TestTokenList_SearchFallsBackToLocalList(t *testing.T) {
	h := newHarness(t)
	h.catalog.searchErr = errors.New("timeout")

	rec := h.do(t, http.MethodGet, "/api/tokens?search=USDC", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[server.TokenSearchResponse](t, rec)
	assert.True(t, out.Fallback)
	require.NotEmpty(t, out.Results)
	assert.Equal(t, constants.MintUSDC, out.Results[0].Address)
	assert.True(t, out.Results[0].Verified)
	assert.ElementsMatch(t, tokens.KnownVerifiedAddresses(), out.VerifiedAddresses)
}

func TestTokenSearch(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/tokens/search?q=mint:%20"+constants.MintBKP, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tok := decode[models.Token](t, rec)
	assert.Equal(t, "BKP", tok.Symbol)
	assert.Equal(t, constants.MintBKP, tok.Address)
}

func TestTokenSearch_Malformed(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/tokens/search?q=not-a-mint", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode[server.ErrorResponse](t, rec)
	assert.Equal(t, "Invalid or malformed token address", out.Error)
	assert.Equal(t, string(errs.InvalidInput), out.Kind)
}

func TestTokenSearch_NotFoundCarriesPlaceholder(t *testing.T) {
	h := newHarness(t)
	unknown := "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

	rec := h.do(t, http.MethodGet, "/api/tokens/search?q="+unknown, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	out := decode[server.TokenNotFoundResponse](t, rec)
	assert.Equal(t, "Token not found", out.Error)
	require.NotNil(t, out.Fallback)
	assert.Equal(t, "TOKEN_7GCihgDB", out.Fallback.Symbol)
	assert.Equal(t, []string{"unknown"}, out.Fallback.Tags)
}

type deadlineProvider struct {
	remaining time.Duration
}

func (p *deadlineProvider) Name() string { return "deadline" }

func (p *deadlineProvider) Lookup(ctx context.Context, _ string) (*models.Token, error) {
	if d, ok := ctx.Deadline(); ok {
		p.remaining = time.Until(d)
	}
	return nil, nil
}

func TestTokenSearch_BudgetCoversEveryProvider(t *testing.T) {
	dp := &deadlineProvider{}
	h := newHarness(t, func(hs *server.Handlers, _ *server.ServerConfig) {
		hs.Resolver = resolver.New(resolver.Config{Providers: []resolver.Provider{dp}})
	})

	rec := h.do(t, http.MethodGet, "/api/tokens/search?q="+constants.MintBKP, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	chain := constants.DexScreenerTimeout + constants.JupiterTimeout + constants.HeliusTimeout
	assert.Greater(t, dp.remaining, chain, "search deadline must outlast the provider chain")
}

func TestQuote(t *testing.T) {
	h := newHarness(t)
	h.quotes.resp = &jupiter.QuoteResponse{InputMint: constants.MintUSDC, OutputMint: constants.MintBKP, InAmount: "1000000", OutAmount: "476190476"}

	rec := h.do(t, http.MethodGet, "/api/quote?inputMint="+constants.MintUSDC+"&outputMint="+constants.MintBKP+"&amount=1000000&slippage=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "476190476", decode[jupiter.QuoteResponse](t, rec).OutAmount)
	assert.Equal(t, 1.0, h.quotes.last.SlippagePercent)
	assert.Equal(t, "1000000", h.quotes.last.Amount)

	rec = h.do(t, http.MethodGet, "/api/quote?inputMint="+constants.MintUSDC+"&outputMint="+constants.MintBKP+"&amount=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.DefaultSlippagePct, h.quotes.last.SlippagePercent)
}

func TestQuote_ErrorsFollowTaxonomy(t *testing.T) {
	tests := []struct {
		kind errs.Kind
		code int
	}{
		{errs.InvalidInput, http.StatusBadRequest},
		{errs.NotFound, http.StatusNotFound},
		{errs.NoRoute, http.StatusUnprocessableEntity},
		{errs.RateLimited, http.StatusTooManyRequests},
		{errs.NetworkTimeout, http.StatusGatewayTimeout},
		{errs.ProviderError, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			h := newHarness(t)
			h.quotes.err = errs.New(tt.kind, "message for "+string(tt.kind))

			rec := h.do(t, http.MethodGet, "/api/quote?inputMint=a&outputMint=b&amount=1", nil)
			require.Equal(t, tt.code, rec.Code)
			out := decode[server.ErrorResponse](t, rec)
			assert.Equal(t, "message for "+string(tt.kind), out.Error)
			assert.Equal(t, string(tt.kind), out.Kind)
		})
	}
}

func TestQuote_BadParams(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/quote?outputMint=b&amount=1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/quote?inputMint=a&outputMint=b&amount=1&slippage=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogSwap(t *testing.T) {
	h := newHarness(t)
	body := models.SwapLog{
		WalletAddress: testWallet,
		FromToken:     "USDC",
		ToToken:       "BKP",
		FromAmount:    100,
		ToAmount:      47619.05,
		FromUSDValue:  100,
		FeesUSDValue:  0.3,
		Signature:     "5sig",
	}

	rec := h.do(t, http.MethodPost, "/api/log-swap", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, server.LogSwapResponse{Success: true, Message: "Swap logged"}, decode[server.LogSwapResponse](t, rec))

	stored, err := h.store.GetBySignature(context.Background(), "5sig")
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)

	// Same signature again is accepted.
	rec = h.do(t, http.MethodPost, "/api/log-swap", body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogSwap_Invalid(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/log-swap", map[string]any{"walletAddress": testWallet})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogSwap_StoreFailure(t *testing.T) {
	h := newHarness(t)
	h.store.fail = errors.New("connection refused")

	rec := h.do(t, http.MethodPost, "/api/log-swap", models.SwapLog{WalletAddress: testWallet, FromToken: "A", ToToken: "B", Signature: "s"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to log swap", decode[server.ErrorResponse](t, rec).Error)
}

func TestLogSwap_PerWalletLimit(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < constants.LogSwapPerMinute; i++ {
		rec := h.do(t, http.MethodPost, "/api/log-swap", models.SwapLog{
			WalletAddress: testWallet, FromToken: "A", ToToken: "B", Signature: "sig-" + string(rune('a'+i)),
		})
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := h.do(t, http.MethodPost, "/api/log-swap", models.SwapLog{WalletAddress: testWallet, FromToken: "A", ToToken: "B", Signature: "one-more"})
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Another wallet has its own allowance.
	rec = h.do(t, http.MethodPost, "/api/log-swap", models.SwapLog{WalletAddress: "other", FromToken: "A", ToToken: "B", Signature: "other-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRateLimitPerIP(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < constants.APIPerMinute; i++ {
		rec := h.do(t, http.MethodGet, "/api/health", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	rec := h.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestStats(t *testing.T) {
	bare := newHarness(t, func(hd *server.Handlers, _ *server.ServerConfig) { hd.Store = nil })

	rec := bare.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ph := decode[server.StatsPlaceholderResponse](t, rec)
	assert.Equal(t, "analytics_not_configured", ph.Status)
	assert.Equal(t, "Analytics", ph.TotalVolume)

	rec = bare.do(t, http.MethodPost, "/api/stats", map[string]any{"timeframe": "7d"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Analytics not configured yet", decode[server.ErrorResponse](t, rec).Error)
}

func TestStats_WithStore(t *testing.T) {
	h := newHarness(t)
	for _, sig := range []string{"a", "b"} {
		rec := h.do(t, http.MethodPost, "/api/log-swap", models.SwapLog{
			WalletAddress: testWallet, FromToken: "USDC", ToToken: "BKP", Signature: sig, FromUSDValue: 50, FeesUSDValue: 0.15,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := h.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		TotalSwaps    int64   `json:"totalSwaps"`
		TotalVolume   float64 `json:"totalVolume"`
		UniqueWallets int64   `json:"uniqueWallets"`
		Timeframe     string  `json:"timeframe"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(2), out.TotalSwaps)
	assert.InDelta(t, 100, out.TotalVolume, 1e-9)
	assert.Equal(t, int64(1), out.UniqueWallets)
	assert.Equal(t, "all", out.Timeframe)

	rec = h.do(t, http.MethodPost, "/api/stats", map[string]any{"timeframe": "24h"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"timeframe":"24h"`)

	rec = h.do(t, http.MethodPost, "/api/stats", map[string]any{"timeframe": "1y"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccess(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/access", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "wallet required", decode[server.ErrorResponse](t, rec).Error)

	rec = h.do(t, http.MethodGet, "/api/access?wallet="+testWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, server.AccessResponse{Access: true, Reason: "open_access"}, decode[server.AccessResponse](t, rec))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "access-ok", cookies[0].Name)
	assert.Equal(t, "1", cookies[0].Value)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Equal(t, 86400, cookies[0].MaxAge)
}

func TestHistory(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/history/"+testWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[server.HistoryResponse](t, rec).Entries)

	for _, id := range []string{"tx1", "tx2"} {
		rec = h.do(t, http.MethodPost, "/api/history/"+testWallet, models.SwapHistoryEntry{
			TxID: id, FromTokenSymbol: "USDC", FromAmount: 100, ToTokenSymbol: "BKP", ToAmount: 47619.05,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/api/history/"+testWallet, nil)
	out := decode[server.HistoryResponse](t, rec)
	require.Len(t, out.Entries, 2)
	assert.Equal(t, "tx2", out.Entries[0].TxID)
	assert.Equal(t, models.StatusSubmitted, out.Entries[0].Status)
	assert.False(t, out.Entries[0].Timestamp.IsZero())

	rec = h.do(t, http.MethodPost, "/api/history/"+testWallet, models.SwapHistoryEntry{FromTokenSymbol: "USDC"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFavorites(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/favorites/"+testWallet, server.FavoriteRequest{Mint: constants.MintBONK})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[server.FavoriteToggleResponse](t, rec).Favorite)

	rec = h.do(t, http.MethodGet, "/api/favorites/"+testWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{constants.MintBONK}, decode[server.FavoritesResponse](t, rec).Mints)

	rec = h.do(t, http.MethodDelete, "/api/favorites/"+testWallet+"/"+constants.MintBONK, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[server.FavoriteToggleResponse](t, rec).Favorite)

	rec = h.do(t, http.MethodGet, "/api/favorites/"+testWallet, nil)
	assert.Empty(t, decode[server.FavoritesResponse](t, rec).Mints)

	rec = h.do(t, http.MethodPost, "/api/favorites/"+testWallet, server.FavoriteRequest{Mint: "garbage"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPortfolio(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/portfolio/"+testWallet, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[portfolio.Portfolio](t, rec)
	assert.Equal(t, testWallet, p.Wallet)
	assert.InDelta(t, 10, p.TotalUSD, 1e-9)
}

func TestSuspiciousRequestsAreBlocked(t *testing.T) {
	h := newHarness(t)

	for _, target := range []string{
		"/api/tokens?search=%3Cscript%3Ealert(1)",
		"/api/tokens?search=1%20UNION%20SELECT%20*",
		"/api/tokens?search=javascript:alert(1)",
		"/api/quote?inputMint=eval(x)",
	} {
		rec := h.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, target)
	}
}

func TestAPIKey(t *testing.T) {
	h := newHarness(t, func(_ *server.Handlers, cfg *server.ServerConfig) { cfg.APIKey = "secret" })

	rec := h.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")

	rec = h.do(t, http.MethodGet, "/api/stats", nil)
	assert.Contains(t, []int{http.StatusBadRequest, http.StatusUnauthorized}, rec.Code, "missing key")

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	out := httptest.NewRecorder()
	h.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code)
}

func TestNotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, decode[server.ErrorResponse](t, rec).Code)
}

func TestLiveSwaps(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/swaps/live?wallet=" + testWallet
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	h.live.ch <- &models.SwapLog{WalletAddress: "someone-else", Signature: "skip"}
	h.live.ch <- &models.SwapLog{WalletAddress: testWallet, Signature: "mine", FromToken: "USDC", ToToken: "BKP"}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got models.SwapLog
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "mine", got.Signature)
}

func TestServer_ShutdownClosesLiveFeeds(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/swaps/live"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The feed is subscribed once a swap makes it through.
	h.live.ch <- &models.SwapLog{WalletAddress: testWallet, Signature: "before"}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var got models.SwapLog
	require.NoError(t, conn.ReadJSON(&got))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Shutdown(ctx))

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), err.Error())

	require.NoError(t, h.srv.WaitClosed(ctx))
	assert.Error(t, h.srv.Shutdown(ctx), "second shutdown")
}

func TestNewServer_RequiresHandlers(t *testing.T) {
	_, err := server.NewServer(server.ServerDeps{})
	assert.Error(t, err)
}

func TestServer_BodyLimit(t *testing.T) {
	h := newHarness(t, func(_ *server.Handlers, cfg *server.ServerConfig) {
		cfg.BodyLimit = "1K"
	})

	body := map[string]string{"timeframe": strings.Repeat("x", 4096)}
	rec := h.do(t, http.MethodPost, "/api/stats", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
