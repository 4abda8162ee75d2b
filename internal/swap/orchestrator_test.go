package swap

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/errs"
	"github.com/bankii-labs/bankiiswap/internal/history"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/quote"
	"github.com/bankii-labs/bankiiswap/internal/rpc"
	"github.com/bankii-labs/bankiiswap/internal/wallet"
)

type fakeWallet struct {
	kp      *wallet.Keypair
	balance float64
	sendErr error
	signErr error

	signCalls int32
	sendCalls int32
}

func newFakeWallet(t *testing.T, balance float64) *fakeWallet {
	t.Helper()
	priv, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	kp, err := wallet.NewKeypair(priv.String())
	require.NoError(t, err)
	return &fakeWallet{kp: kp, balance: balance}
}

func (w *fakeWallet) Address() string { return w.kp.PublicKey().String() }

func (w *fakeWallet) Balance(context.Context, string) (float64, error) { return w.balance, nil }

func (w *fakeWallet) SignTx(ctx context.Context, tx *solana.Transaction) error {
	atomic.AddInt32(&w.signCalls, 1)
	if w.signErr != nil {
		return w.signErr
	}
	return w.kp.SignTransaction(ctx, tx)
}

func (w *fakeWallet) SendTx(_ context.Context, tx *solana.Transaction, _ *rpc.SendOptions) (string, error) {
	atomic.AddInt32(&w.sendCalls, 1)
	if w.sendErr != nil {
		return "", w.sendErr
	}
	if err := tx.VerifySignatures(); err != nil {
		return "", err
	}
	return tx.Signatures[0].String(), nil
}

type confirmingWallet struct {
	*fakeWallet
	confirmErr error
}

func (w *confirmingWallet) ConfirmTransaction(context.Context, string, string, time.Duration) error {
	return w.confirmErr
}

type fakeBuilder struct {
	mu    sync.Mutex
	payer solana.PublicKey
	err   error
	calls int
	last  jupiter.SwapRequest
}

func (b *fakeBuilder) Swap(_ context.Context, req jupiter.SwapRequest) (*jupiter.SwapResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.last = req
	if b.err != nil {
		return nil, b.err
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(1, b.payer, solana.NewWallet().PublicKey()).Build()},
		solana.Hash{},
		solana.TransactionPayer(b.payer),
	)
	if err != nil {
		return nil, err
	}
	tx.Signatures = make([]solana.Signature, 1)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return &jupiter.SwapResponse{SwapTransaction: base64.StdEncoding.EncodeToString(raw)}, nil
}

type fakePrices struct{}

func (fakePrices) Prices(context.Context, ...string) (map[string]jupiter.PriceInfo, error) {
	return map[string]jupiter.PriceInfo{
		constants.MintUSDC: {USDPrice: 1},
		constants.MintBKP:  {USDPrice: 0.0021},
	}, nil
}

type memSink struct {
	mu   sync.Mutex
	logs []*models.SwapLog
}

func (s *memSink) InsertSwapLog(_ context.Context, l *models.SwapLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, l)
	return nil
}

func usdcToBKPQuote() *jupiter.QuoteResponse {
	return &jupiter.QuoteResponse{
		InputMint:      constants.MintUSDC,
		OutputMint:     constants.MintBKP,
		InAmount:       "1000000",
		OutAmount:      "476190476190",
		PriceImpactPct: "0.001",
		RoutePlan:      []jupiter.RoutePlanStep{{SwapInfo: jupiter.SwapInfo{Label: "Raydium"}}},
	}
}

func usdcBKPRequest() Request {
	return Request{
		FromToken:  models.Token{Address: constants.MintUSDC, Symbol: "USDC", Decimals: 6},
		ToToken:    models.Token{Address: constants.MintBKP, Symbol: "BKP", Decimals: 9},
		FromAmount: decimal.RequireFromString("1.0"),
		ToAmount:   decimal.RequireFromString("476.19047619"),
		Slippage:   0.5,
	}
}

type harness struct {
	orch    *Orchestrator
	wallet  *fakeWallet
	builder *fakeBuilder
	history *history.MemoryStore
	sink    *memSink
	bg      *Background
}

func newHarness(t *testing.T, balance float64) *harness {
	t.Helper()
	w := newFakeWallet(t, balance)
	h := &harness{
		wallet:  w,
		builder: &fakeBuilder{payer: w.kp.PublicKey()},
		history: history.NewMemoryStore(),
		sink:    &memSink{},
		bg:      NewBackground(nil, time.Second),
	}
	h.orch = NewOrchestrator(Config{
		Jupiter:    h.builder,
		Prices:     fakePrices{},
		Wallet:     w,
		History:    h.history,
		LogSink:    h.sink,
		Background: h.bg,
	})
	return h
}

func TestConfirm_BalanceGateRunsBeforeSigner(t *testing.T) {
	h := newHarness(t, 1.0)
	require.NoError(t, h.orch.SetQuote(usdcToBKPQuote()))

	res, err := h.orch.Confirm(context.Background(), usdcBKPRequest())
	require.Error(t, err)
	assert.Equal(t, errs.InsufficientBalance, errs.KindOf(err))
	assert.Contains(t, errs.MessageOf(err), "need 1.003000")
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, StateFailed, h.orch.State())

	assert.Zero(t, atomic.LoadInt32(&h.wallet.signCalls))
	assert.Zero(t, h.builder.calls)
}

func TestConfirm_AmountMustMatchQuote(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"zero amount", func(r *Request) { r.FromAmount = decimal.Zero }},
		{"negative amount", func(r *Request) { r.FromAmount = decimal.NewFromInt(-1) }},
		{"understated amount", func(r *Request) { r.FromAmount = decimal.RequireFromString("0.000001") }},
		{"other input mint", func(r *Request) { r.FromToken.Address = constants.MintBKP }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0)
			require.NoError(t, h.orch.SetQuote(usdcToBKPQuote()))

			req := usdcBKPRequest()
			tt.mutate(&req)
			res, err := h.orch.Confirm(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
			assert.Equal(t, StateFailed, res.State)
			assert.Zero(t, atomic.LoadInt32(&h.wallet.signCalls))
			assert.Zero(t, atomic.LoadInt32(&h.wallet.sendCalls))
			assert.Zero(t, h.builder.calls)
		})
	}
}

func TestConfirm_ExactBalanceIsEnough(t *testing.T) {
	h := newHarness(t, 1.003)
	require.NoError(t, h.orch.SetQuote(usdcToBKPQuote()))

	_, err := h.orch.Confirm(context.Background(), usdcBKPRequest())
	require.NoError(t, err)
}

func TestConfirm_USDCToBKPScenario(t *testing.T) {
	h := newHarness(t, 10)

	source := &countingSource{q: usdcToBKPQuote()}
	updates := make(chan QuoteUpdate, 4)
	quoter := NewDebouncedQuoter(context.Background(), source, constants.QuoteDebounce, func(u QuoteUpdate) {
		updates <- u
	})
	defer quoter.Stop()

	req := quote.Request{InputMint: constants.MintUSDC, OutputMint: constants.MintBKP, SlippagePercent: 0.5}
	for _, amount := range []string{"1", "10", "100", "1000000"} {
		req.Amount = amount
		quoter.Request(req)
		time.Sleep(10 * time.Millisecond)
	}

	var u QuoteUpdate
	select {
	case u = <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("no quote update")
	}
	require.NoError(t, u.Err)
	assert.Equal(t, "1000000", u.Request.Amount)
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.calls), "one debounced fetch")

	out, err := quote.FromRaw(u.Quote.OutAmount, 9)
	require.NoError(t, err)
	assert.Equal(t, "476.190476", out.StringFixed(6))

	require.NoError(t, h.orch.SetQuote(u.Quote))
	assert.Equal(t, StateQuoteReady, h.orch.State())

	res, err := h.orch.Confirm(context.Background(), usdcBKPRequest())
	require.NoError(t, err)
	assert.Equal(t, StateSettled, res.State)
	assert.NotEmpty(t, res.Signature)
	assert.Equal(t, constants.ExplorerTxURL+res.Signature, res.ExplorerURL)

	// History is written before Confirm returns, not after confirmation.
	entries, err := h.history.List(context.Background(), h.wallet.Address())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.Signature, entries[0].TxID)
	assert.Equal(t, "USDC", entries[0].FromTokenSymbol)
	assert.Equal(t, constants.MintUSDC, entries[0].FromMint)
	assert.Equal(t, constants.MintBKP, entries[0].ToMint)
	assert.Equal(t, "BKP", entries[0].ToTokenSymbol)
	assert.Equal(t, models.StatusSubmitted, entries[0].Status)

	require.NoError(t, h.bg.Wait(context.Background()))
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	require.Len(t, h.sink.logs, 1)
	l := h.sink.logs[0]
	assert.Equal(t, res.Signature, l.Signature)
	assert.InDelta(t, 0.003, l.FeesPaid, 1e-12)
	assert.InDelta(t, 1.0, l.FromUSDValue, 1e-12)
	assert.InDelta(t, 0.005, l.Slippage, 1e-12)
	assert.Equal(t, "USDC", l.FeeTokenSymbol)
	assert.Equal(t, constants.MintUSDC, l.FeeTokenMint)
	assert.Contains(t, l.RoutePlan, "Raydium")
}

func TestConfirm_BuildRequestCarriesFeeAccount(t *testing.T) {
	h := newHarness(t, 10)
	h.orch.cfg.FeeAccountFor = func(mint string) (string, bool) {
		return "FeeUSDC", mint == constants.MintUSDC
	}
	require.NoError(t, h.orch.SetQuote(usdcToBKPQuote()))

	_, err := h.orch.Confirm(context.Background(), usdcBKPRequest())
	require.NoError(t, err)

	last := h.builder.last
	assert.Equal(t, "FeeUSDC", last.FeeAccount)
	require.NotNil(t, last.PlatformFeeBps)
	assert.Equal(t, uint16(30), *last.PlatformFeeBps)
	assert.True(t, last.WrapAndUnwrapSol)
	assert.True(t, last.DynamicComputeUnitLimit)
	assert.True(t, last.DynamicSlippage)
	require.NotNil(t, last.PrioritizationFeeLamports)
	assert.Equal(t, uint64(1_000_000), last.PrioritizationFeeLamports.PriorityLevelWithMaxLamports.MaxLamports)
	assert.Equal(t, "veryHigh", last.PrioritizationFeeLamports.PriorityLevelWithMaxLamports.PriorityLevel)
	assert.Equal(t, h.wallet.Address(), last.UserPublicKey)
}

func TestConfirm_SignerRejects(t *testing.T) {
	h := newHarness(t, 10)
	h.wallet.signErr = wallet.ErrRejected
	require.NoError(t, h.orch.SetQuote(usdcToBKPQuote()))

	res, err := h.orch.Confirm(context.Background(), usdcBKPRequest())
	require.Error(t, err)
	assert.Equal(t, errs.UserRejected, errs.KindOf(err))
	assert.Empty(t, res.ExplorerURL)
	assert.Zero(t, atomic.LoadInt32(&h.wallet.sendCalls))

	entries, err := h.history.List(context.Background(), h.wallet.Address())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConfirm_BroadcastRejected(t *testing.T) {
	h := newHarness(t, 10)
	h.wallet.sendErr = &rpc.RPCError{Code: -32002, Message: "Transaction simulation failed: Error processing Instruction 2: custom program error: 0x1771 slippage tolerance exceeded"}
	require.NoError(t, h.orch.SetQuote(usdcToBKPQuote()))

	res, err := h.orch.Confirm(context.Background(), usdcBKPRequest())
	require.Error(t, err)
	assert.Equal(t, errs.BroadcastFailed, errs.KindOf(err))
	assert.Equal(t, MsgExecPriceImpact, errs.MessageOf(err))
	assert.Equal(t, StateFailed, res.State)

	// A failed swap can be retried with a fresh quote.
	h.wallet.sendErr = nil
	require.NoError(t, h.orch.SetQuote(usdcToBKPQuote()))
	_, err = h.orch.Confirm(context.Background(), usdcBKPRequest())
	require.NoError(t, err)
}

func TestConfirm_BroadcastTimeoutKeepsSignature(t *testing.T) {
	h := newHarness(t, 10)
	h.wallet.sendErr = context.DeadlineExceeded
	require.NoError(t, h.orch.SetQuote(usdcToBKPQuote()))

	res, err := h.orch.Confirm(context.Background(), usdcBKPRequest())
	require.Error(t, err)
	assert.Equal(t, errs.NetworkTimeout, errs.KindOf(err))
	assert.NotEmpty(t, res.Signature)
	assert.Equal(t, constants.ExplorerTxURL+res.Signature, res.ExplorerURL)
}

func TestConfirm_BuildFailure(t *testing.T) {
	h := newHarness(t, 10)
	h.builder.err = &jupiter.HTTPError{StatusCode: 400, Body: []byte(`{"error":"Insufficient liquidity in pool"}`)}
	require.NoError(t, h.orch.SetQuote(usdcToBKPQuote()))

	_, err := h.orch.Confirm(context.Background(), usdcBKPRequest())
	require.Error(t, err)
	assert.Equal(t, MsgBuildLiquidity, errs.MessageOf(err))
	assert.Zero(t, atomic.LoadInt32(&h.wallet.signCalls))
}

func TestConfirm_Preconditions(t *testing.T) {
	h := newHarness(t, 10)

	_, err := h.orch.Confirm(context.Background(), usdcBKPRequest())
	assert.Equal(t, MsgNoQuote, errs.MessageOf(err))

	empty := usdcToBKPQuote()
	empty.RoutePlan = nil
	assert.Equal(t, errs.NoRoute, errs.KindOf(h.orch.SetQuote(empty)))

	noWallet := NewOrchestrator(Config{Jupiter: h.builder})
	require.NoError(t, noWallet.SetQuote(usdcToBKPQuote()))
	_, err = noWallet.Confirm(context.Background(), usdcBKPRequest())
	assert.Equal(t, MsgWalletNotConnected, errs.MessageOf(err))
}

func TestConfirm_ConfirmationPollerUpdatesHistory(t *testing.T) {
	for name, tc := range map[string]struct {
		confirmErr error
		want       models.SwapStatus
	}{
		"confirmed": {nil, models.StatusConfirmed},
		"reverted":  {wallet.ErrTransactionFailed, models.StatusFailed},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, 10)
			cw := &confirmingWallet{fakeWallet: h.wallet, confirmErr: tc.confirmErr}
			h.orch.cfg.Wallet = cw
			h.orch.cfg.ConfirmTimeout = time.Second
			require.NoError(t, h.orch.SetQuote(usdcToBKPQuote()))

			res, err := h.orch.Confirm(context.Background(), usdcBKPRequest())
			require.NoError(t, err)
			require.NoError(t, h.bg.Wait(context.Background()))

			entries, err := h.history.List(context.Background(), cw.Address())
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, res.Signature, entries[0].TxID)
			assert.Equal(t, tc.want, entries[0].Status)
		})
	}
}

type countingSource struct {
	calls int32
	q     *jupiter.QuoteResponse
}

func (s *countingSource) GetQuote(context.Context, quote.Request) (*jupiter.QuoteResponse, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.q, nil
}

type gatedSource struct {
	release chan struct{}
}

func (s *gatedSource) GetQuote(_ context.Context, req quote.Request) (*jupiter.QuoteResponse, error) {
	if req.Amount == "slow" {
		<-s.release
		return nil, errors.New("stale")
	}
	return usdcToBKPQuote(), nil
}

func TestDebouncedQuoter_DropsStaleResponses(t *testing.T) {
	src := &gatedSource{release: make(chan struct{})}
	updates := make(chan QuoteUpdate, 4)
	q := NewDebouncedQuoter(context.Background(), src, 20*time.Millisecond, func(u QuoteUpdate) { updates <- u })
	defer q.Stop()

	q.Request(quote.Request{Amount: "slow"})
	time.Sleep(100 * time.Millisecond) // slow fetch is now in flight
	q.Request(quote.Request{Amount: "fast"})

	select {
	case u := <-updates:
		assert.Equal(t, "fast", u.Request.Amount)
	case <-time.After(time.Second):
		t.Fatal("no update for the newest request")
	}

	close(src.release)
	select {
	case u := <-updates:
		t.Fatalf("stale update delivered: %+v", u)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSequencer(t *testing.T) {
	var s Sequencer
	a := s.Next()
	b := s.Next()
	assert.Less(t, a, b)
	assert.False(t, s.IsLatest(a))
	assert.True(t, s.IsLatest(b))
}

func TestDebouncer_FlushRunsPendingNow(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var ran int32
	d.Trigger(func() { atomic.AddInt32(&ran, 1) })
	d.Trigger(func() { atomic.AddInt32(&ran, 10) })

	d.Flush()
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran), "only the newest trigger runs")

	d.Flush()
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran), "nothing left to run")
}

func TestDebouncedQuoter_FlushWaitsForDelivery(t *testing.T) {
	var got []string
	q := NewDebouncedQuoter(context.Background(), &countingSource{q: usdcToBKPQuote()}, time.Hour, func(u QuoteUpdate) {
		got = append(got, u.Request.Amount)
	})
	defer q.Stop()

	q.Request(quote.Request{Amount: "1"})
	q.Request(quote.Request{Amount: "2"})
	q.Flush()

	assert.Equal(t, []string{"2"}, got)
}

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSink) deliver(QuoteUpdate) {
	close(b.entered)
	<-b.release
}

func TestDebouncedQuoter_InvalidateWaitsForDeliveryInProgress(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	q := NewDebouncedQuoter(context.Background(), &countingSource{q: usdcToBKPQuote()}, 10*time.Millisecond, sink.deliver)
	defer q.Stop()

	q.Request(quote.Request{Amount: "1"})
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("update never delivered")
	}

	invalidated := make(chan struct{})
	go func() {
		q.Invalidate()
		close(invalidated)
	}()

	select {
	case <-invalidated:
		t.Fatal("Invalidate returned while an update was being delivered")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	select {
	case <-invalidated:
	case <-time.After(2 * time.Second):
		t.Fatal("Invalidate never returned")
	}
}
