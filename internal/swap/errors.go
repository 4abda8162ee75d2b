package swap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/bankii-labs/bankiiswap/internal/errs"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/rpc"
)

const (
	MsgWalletNotConnected = "Wallet not connected"
	MsgNoQuote            = "No quote available. Fetch a quote before confirming."
	MsgBusy               = "A swap is already in progress"
	MsgUserRejected       = "Transaction was rejected by the wallet"
	MsgDecodeFailed       = "Failed to decode swap transaction"
	MsgBalanceUnavailable = "Unable to fetch wallet balance. Please try again."
	MsgAmountNotPositive  = "Amount must be greater than 0"
	MsgQuoteMismatch      = "Quote does not match the requested swap. Refresh the quote and try again."

	MsgBuildLiquidity    = "Insufficient liquidity available. Try a smaller amount or different token pair."
	MsgBuildSlippage     = "Transaction would exceed slippage tolerance. Increase slippage or try again."
	MsgBuildPriceImpact  = "Price impact too high for this trade size. Consider reducing the amount."
	MsgBuildMarketHalted = "Trading temporarily unavailable for this token pair."
	MsgBuildBalance      = "Insufficient token balance for this swap."
	MsgBuildServer       = "Jupiter API server error. Please try again later."
	MsgBuildTimeout      = "Swap transaction build timed out. Please try again."

	MsgExecRouteCalc    = "Jupiter route calculation error. Try a different amount or token pair."
	MsgExecBalance      = "Insufficient balance for this swap."
	MsgExecPriceImpact  = "Price impact too high. Try increasing slippage tolerance."
	MsgExecNoRoute      = "No trading route available for this token pair."
	MsgExecTimeout      = "Request timed out. Please try again."
	MsgExecNetwork      = "Network error. Please check your connection and try again."
	MsgExecGeneric      = "Swap execution failed"
)

// classifyBuildError maps a POST /swap/v1/swap failure to a taxonomy error.
func classifyBuildError(err error) error {
	if isTimeout(err) {
		return errs.Wrap(errs.NetworkTimeout, MsgBuildTimeout, err)
	}

	msg := err.Error()
	var httpErr *jupiter.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= http.StatusInternalServerError {
			return errs.Wrap(errs.ProviderError, MsgBuildServer, err)
		}
		if httpErr.StatusCode == http.StatusTooManyRequests {
			return errs.Wrap(errs.RateLimited, "Rate limit exceeded. Please wait a moment and try again.", err)
		}
		if m := httpErr.Message(); m != "" {
			msg = m
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "insufficient liquidity"):
		return errs.Wrap(errs.NoRoute, MsgBuildLiquidity, err)
	case strings.Contains(lower, "slippage"):
		return errs.Wrap(errs.InvalidInput, MsgBuildSlippage, err)
	case strings.Contains(lower, "price impact"):
		return errs.Wrap(errs.InvalidInput, MsgBuildPriceImpact, err)
	case strings.Contains(lower, "market") && (strings.Contains(lower, "closed") || strings.Contains(lower, "halted")):
		return errs.Wrap(errs.NoRoute, MsgBuildMarketHalted, err)
	case strings.Contains(lower, "insufficient balance"), strings.Contains(lower, "insufficient funds"):
		return errs.Wrap(errs.InsufficientBalance, MsgBuildBalance, err)
	default:
		return errs.Wrap(errs.ProviderError, "Swap transaction build failed: "+msg, err)
	}
}

// classifyBroadcastError maps a sendTransaction failure to a user-facing message.
// Node rejections are BroadcastFailed; transport timeouts are NetworkTimeout.
func classifyBroadcastError(err error) error {
	msg := err.Error()
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		msg = rpcErr.Message
	}
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "slice") && strings.Contains(lower, "out of range"):
		return errs.Wrap(errs.BroadcastFailed, MsgExecRouteCalc, err)
	case strings.Contains(lower, "insufficient funds"), strings.Contains(lower, "insufficient balance"):
		return errs.Wrap(errs.BroadcastFailed, MsgExecBalance, err)
	case strings.Contains(lower, "slippage"), strings.Contains(lower, "price impact"):
		return errs.Wrap(errs.BroadcastFailed, MsgExecPriceImpact, err)
	case strings.Contains(lower, "no route found"):
		return errs.Wrap(errs.BroadcastFailed, MsgExecNoRoute, err)
	case isTimeout(err), strings.Contains(lower, "timeout"):
		return errs.Wrap(errs.NetworkTimeout, MsgExecTimeout, err)
	case strings.Contains(lower, "network"), strings.Contains(lower, "connection"):
		return errs.Wrap(errs.BroadcastFailed, MsgExecNetwork, err)
	case msg != "":
		return errs.Wrap(errs.BroadcastFailed, msg, err)
	default:
		return errs.Wrap(errs.BroadcastFailed, MsgExecGeneric, err)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
