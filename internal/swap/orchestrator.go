// Package swap turns an accepted quote into a signed, broadcast transaction and
// records it optimistically, without waiting for confirmation.
package swap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/errs"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/metrics"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/quote"
	"github.com/bankii-labs/bankiiswap/internal/rpc"
	"github.com/bankii-labs/bankiiswap/internal/storage"
	"github.com/bankii-labs/bankiiswap/internal/wallet"
)

type State string

const (
	StateIdle       State = "idle"
	StateQuoteReady State = "quote_ready"
	StateConfirming State = "confirming"
	StateSubmitted  State = "submitted"
	StateSettled    State = "settled"
	StateFailed     State = "failed"
)

const buildTimeout = 15 * time.Second

// SwapBuilder builds the unsigned swap transaction for a quote.
type SwapBuilder interface {
	Swap(ctx context.Context, req jupiter.SwapRequest) (*jupiter.SwapResponse, error)
}

// PriceSource returns USD prices keyed by mint.
type PriceSource interface {
	Prices(ctx context.Context, mints ...string) (map[string]jupiter.PriceInfo, error)
}

// Wallet is the connected signer plus the RPC calls made on its behalf.
type Wallet interface {
	Address() string
	Balance(ctx context.Context, mint string) (float64, error)
	SignTx(ctx context.Context, tx *solana.Transaction) error
	SendTx(ctx context.Context, tx *solana.Transaction, opts *rpc.SendOptions) (string, error)
}

// Confirmer is implemented by wallets that can poll for confirmation.
type Confirmer interface {
	ConfirmTransaction(ctx context.Context, signature, commitment string, timeout time.Duration) error
}

type Config struct {
	Jupiter SwapBuilder
	Prices  PriceSource
	Wallet  Wallet

	History storage.HistoryStore
	LogSink storage.SwapLogSink

	// FeeAccountFor returns the platform fee account for an input mint.
	FeeAccountFor func(inputMint string) (string, bool)

	Background *Background

	// ConfirmTimeout > 0 starts a background poller that updates the history entry status.
	ConfirmTimeout time.Duration

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Request describes the swap the user confirmed. Amounts are in UI units.
type Request struct {
	Quote      *jupiter.QuoteResponse // nil uses the quote set with SetQuote
	FromToken  models.Token
	ToToken    models.Token
	FromAmount decimal.Decimal
	ToAmount   decimal.Decimal
	Slippage   float64 // percent
}

// Result is returned for both successful and failed confirmations.
type Result struct {
	State       State                    `json:"state"`
	Signature   string                   `json:"signature,omitempty"`
	ExplorerURL string                   `json:"explorerUrl,omitempty"`
	Entry       *models.SwapHistoryEntry `json:"entry,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

type Orchestrator struct {
	cfg Config

	mu    sync.Mutex
	state State
	quote *jupiter.QuoteResponse
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Background == nil {
		cfg.Background = NewBackground(cfg.Logger, 0)
	}
	if cfg.FeeAccountFor == nil {
		cfg.FeeAccountFor = func(string) (string, bool) { return "", false }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{cfg: cfg, state: StateIdle}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Quote returns the quote awaiting confirmation, if any.
func (o *Orchestrator) Quote() *jupiter.QuoteResponse {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.quote
}

// SetQuote makes q the quote awaiting confirmation. It is refused while a swap is in flight.
func (o *Orchestrator) SetQuote(q *jupiter.QuoteResponse) error {
	if err := quote.Validate(q); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.state {
	case StateConfirming, StateSubmitted:
		return errs.New(errs.InvalidInput, MsgBusy)
	}
	o.quote = q
	o.state = StateQuoteReady
	return nil
}

// Confirm runs the swap. The returned error is an *errs.Error; the Result is
// always non-nil and carries the final state.
func (o *Orchestrator) Confirm(ctx context.Context, req Request) (*Result, error) {
	q, err := o.begin(req.Quote)
	if err != nil {
		return &Result{State: o.State(), Error: errs.MessageOf(err)}, err
	}

	res, err := o.execute(ctx, q, req)
	if err != nil {
		o.setState(StateFailed)
		res.State = StateFailed
		res.Error = errs.MessageOf(err)
		if res.Signature != "" {
			res.ExplorerURL = constants.ExplorerTxURL + res.Signature
		}
		o.cfg.Metrics.RecordSwap(string(StateFailed), string(errs.KindOf(err)))
		o.cfg.Logger.WithFields(logrus.Fields{
			"input_mint":  q.InputMint,
			"output_mint": q.OutputMint,
			"kind":        errs.KindOf(err),
			"signature":   res.Signature,
		}).WithError(err).Warn("swap failed")
		return res, err
	}

	o.setState(StateSettled)
	res.State = StateSettled
	o.cfg.Metrics.RecordSwap(string(StateSettled), "")
	return res, nil
}

func (o *Orchestrator) begin(override *jupiter.QuoteResponse) (*jupiter.QuoteResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateConfirming, StateSubmitted:
		return nil, errs.New(errs.InvalidInput, MsgBusy)
	}

	q := override
	if q == nil {
		q = o.quote
	}
	if q == nil {
		return nil, errs.New(errs.InvalidInput, MsgNoQuote)
	}
	if err := quote.Validate(q); err != nil {
		return nil, err
	}
	if o.cfg.Wallet == nil {
		return nil, errs.New(errs.InvalidInput, MsgWalletNotConnected)
	}

	o.quote = q
	o.state = StateConfirming
	return q, nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) execute(ctx context.Context, q *jupiter.QuoteResponse, req Request) (*Result, error) {
	res := &Result{State: StateConfirming}
	w := o.cfg.Wallet

	amount, err := quotedAmount(q, req)
	if err != nil {
		return res, err
	}

	// Balance gate runs before any build or signer call.
	bal, err := w.Balance(ctx, q.InputMint)
	if err != nil {
		return res, errs.Wrap(errs.ProviderError, MsgBalanceUnavailable, err)
	}
	balance := decimal.NewFromFloat(bal)
	if !HasSufficientBalance(amount, balance) {
		return res, errs.New(errs.InsufficientBalance, fmt.Sprintf(
			"Insufficient %s balance. You have %s %s but need %s (including 0.3%% fees)",
			req.FromToken.Symbol, balance.StringFixed(6), req.FromToken.Symbol,
			RequiredAmount(amount).StringFixed(6),
		))
	}

	tx, err := o.build(ctx, q, w.Address())
	if err != nil {
		return res, err
	}

	if err := w.SignTx(ctx, tx); err != nil {
		return res, errs.Wrap(errs.UserRejected, MsgUserRejected, err)
	}

	sig, err := w.SendTx(ctx, tx, nil)
	if err != nil {
		// The node may still land a transaction whose send timed out.
		if isTimeout(err) && len(tx.Signatures) > 0 {
			res.Signature = tx.Signatures[0].String()
		}
		return res, classifyBroadcastError(err)
	}

	res.Signature = sig
	res.ExplorerURL = constants.ExplorerTxURL + sig
	o.setState(StateSubmitted)
	o.cfg.Metrics.RecordSwap(string(StateSubmitted), "")

	entry := models.SwapHistoryEntry{
		TxID:            sig,
		FromTokenSymbol: req.FromToken.Symbol,
		FromMint:        q.InputMint,
		FromAmount:      req.FromAmount.InexactFloat64(),
		ToTokenSymbol:   req.ToToken.Symbol,
		ToMint:          q.OutputMint,
		ToAmount:        req.ToAmount.InexactFloat64(),
		Timestamp:       o.cfg.Now().UTC(),
		Status:          models.StatusSubmitted,
	}
	res.Entry = &entry

	if o.cfg.History != nil {
		if err := o.cfg.History.Add(ctx, w.Address(), entry); err != nil {
			o.cfg.Logger.WithField("signature", sig).WithError(err).Warn("failed to record swap history")
		}
	}

	o.logSwap(w.Address(), sig, q, req)
	o.pollConfirmation(w, sig)

	return res, nil
}

// quotedAmount returns the input amount the quote will actually spend, in UI
// units. The request must agree with the quote on both the mint and the amount.
func quotedAmount(q *jupiter.QuoteResponse, req Request) (decimal.Decimal, error) {
	if req.FromToken.Address != "" && req.FromToken.Address != q.InputMint {
		return decimal.Zero, errs.New(errs.InvalidInput, MsgQuoteMismatch)
	}
	amount, err := quote.FromRaw(q.InAmount, req.FromToken.Decimals)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, errs.New(errs.InvalidInput, MsgQuoteMismatch)
	}
	if !req.FromAmount.IsPositive() {
		return decimal.Zero, errs.New(errs.InvalidInput, MsgAmountNotPositive)
	}
	if !req.FromAmount.Equal(amount) {
		return decimal.Zero, errs.New(errs.InvalidInput, MsgQuoteMismatch)
	}
	return amount, nil
}

func (o *Orchestrator) build(ctx context.Context, q *jupiter.QuoteResponse, user string) (*solana.Transaction, error) {
	swapReq := jupiter.SwapRequest{
		QuoteResponse:           q,
		UserPublicKey:           user,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
		DynamicSlippage:         true,
		PrioritizationFeeLamports: &jupiter.PrioritizationFee{
			PriorityLevelWithMaxLamports: &jupiter.PriorityLevelWithMaxLamports{
				MaxLamports:   constants.PriorityMaxLamports,
				PriorityLevel: constants.PriorityLevel,
			},
		},
	}
	if acct, ok := o.cfg.FeeAccountFor(q.InputMint); ok {
		bps := uint16(constants.PlatformFeeBps)
		swapReq.FeeAccount = acct
		swapReq.PlatformFeeBps = &bps
	}

	bctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()

	resp, err := o.cfg.Jupiter.Swap(bctx, swapReq)
	if err != nil {
		return nil, classifyBuildError(err)
	}

	tx, err := DecodeTransaction(resp.SwapTransaction)
	if err != nil {
		return nil, errs.Wrap(errs.ProviderError, MsgDecodeFailed, err)
	}
	return tx, nil
}

// DecodeTransaction parses a base64 wire-format transaction.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// logSwap prices both sides and submits the audit record in the background.
func (o *Orchestrator) logSwap(walletAddr, sig string, q *jupiter.QuoteResponse, req Request) {
	if o.cfg.LogSink == nil {
		return
	}
	blockTime := o.cfg.Now().Unix()

	o.cfg.Background.Go("log-swap", func(ctx context.Context) error {
		var fromPrice, toPrice float64
		if o.cfg.Prices != nil {
			prices, err := o.cfg.Prices.Prices(ctx, q.InputMint, q.OutputMint)
			if err != nil {
				o.cfg.Logger.WithError(err).Debug("swap log pricing failed")
			}
			fromPrice = prices[q.InputMint].USDPrice
			toPrice = prices[q.OutputMint].USDPrice
		}

		fromAmount := req.FromAmount.InexactFloat64()
		toAmount := req.ToAmount.InexactFloat64()
		fee := PlatformFee(req.FromAmount).InexactFloat64()

		routePlan, err := json.Marshal(q.RoutePlan)
		if err != nil {
			return fmt.Errorf("marshal route plan: %w", err)
		}

		return o.cfg.LogSink.InsertSwapLog(ctx, &models.SwapLog{
			WalletAddress:  walletAddr,
			FromToken:      req.FromToken.Symbol,
			ToToken:        req.ToToken.Symbol,
			FromAmount:     fromAmount,
			ToAmount:       toAmount,
			FromUSDValue:   fromAmount * fromPrice,
			ToUSDValue:     toAmount * toPrice,
			FeesPaid:       fee,
			FeesUSDValue:   fee * fromPrice,
			Signature:      sig,
			BlockTime:      blockTime,
			JupiterFee:     0,
			PlatformFee:    fee,
			Slippage:       req.Slippage / 100,
			RoutePlan:      string(routePlan),
			FeeTokenSymbol: req.FromToken.Symbol,
			FeeTokenMint:   q.InputMint,
		})
	})
}

// pollConfirmation updates the history entry once the cluster confirms or rejects the transaction.
func (o *Orchestrator) pollConfirmation(w Wallet, sig string) {
	confirmer, ok := w.(Confirmer)
	if !ok || o.cfg.ConfirmTimeout <= 0 || o.cfg.History == nil {
		return
	}
	owner := w.Address()

	o.cfg.Background.GoWithTimeout("confirm", o.cfg.ConfirmTimeout+5*time.Second, func(ctx context.Context) error {
		err := confirmer.ConfirmTransaction(ctx, sig, "confirmed", o.cfg.ConfirmTimeout)
		switch {
		case err == nil:
			return o.cfg.History.UpdateStatus(ctx, owner, sig, models.StatusConfirmed)
		case errors.Is(err, wallet.ErrTransactionFailed):
			o.cfg.Metrics.RecordSwap("reverted", "")
			return o.cfg.History.UpdateStatus(ctx, owner, sig, models.StatusFailed)
		default:
			return err
		}
	})
}
