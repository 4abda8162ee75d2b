package quote

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/bankii-labs/bankiiswap/internal/errs"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
)

const (
	MsgInsufficientLiquidity = "Insufficient liquidity for this token pair. Try a smaller amount."
	MsgSlippageExceeded      = "Price impact too high. Increase slippage tolerance or reduce amount."
	MsgTokenNotSupported     = "Token not supported by Jupiter. This token may be restricted or have limited liquidity."
	MsgAmountTooSmall        = "Amount too small for swap. Minimum amount required."
	MsgAmountTooLarge        = "Amount too large. Try reducing the swap amount."
	MsgNoRoute               = "No trading route available for this token pair. This token may lack liquidity or be newly launched."
	MsgNoRouteForPair        = "No trading route available for this token pair. Tokens may lack sufficient liquidity or be restricted."
	MsgRouteNotFound         = "No route found for this token pair. This may be a new or illiquid token."
	MsgInvalidParams         = "Invalid quote parameters. Please check token addresses and amount."
	MsgRateLimited           = "Rate limit exceeded. Please wait a moment and try again."
	MsgTimeout               = "Quote request timed out. Please try again."
	MsgProviderError         = "Jupiter API server error. Please try again later."
	MsgInvalidQuote          = "No valid route plan found in quote response"
)

// classify maps a Jupiter quote failure to a taxonomy error with a user-facing message.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var httpErr *jupiter.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusBadRequest:
			return classifyBadRequest(httpErr)
		case httpErr.StatusCode == http.StatusNotFound:
			return errs.Wrap(errs.NoRoute, MsgRouteNotFound, err)
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return errs.Wrap(errs.RateLimited, MsgRateLimited, err)
		case httpErr.StatusCode >= 500:
			return errs.Wrap(errs.ProviderError, MsgProviderError, err)
		default:
			return errs.Wrap(errs.ProviderError, "Failed to get quote: "+httpErr.Message(), err)
		}
	}

	if isTimeout(err) {
		return errs.Wrap(errs.NetworkTimeout, MsgTimeout, err)
	}
	return errs.Wrap(errs.ProviderError, "Failed to get quote: "+err.Error(), err)
}

func classifyBadRequest(httpErr *jupiter.HTTPError) error {
	msg := httpErr.Message()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "insufficient liquidity"):
		return errs.Wrap(errs.NoRoute, MsgInsufficientLiquidity, httpErr)
	case strings.Contains(lower, "slippage tolerance exceeded"):
		return errs.Wrap(errs.InvalidInput, MsgSlippageExceeded, httpErr)
	case strings.Contains(lower, "token not supported"), strings.Contains(lower, "invalid mint"):
		return errs.Wrap(errs.NotFound, MsgTokenNotSupported, httpErr)
	case strings.Contains(lower, "amount too small"):
		return errs.Wrap(errs.InvalidInput, MsgAmountTooSmall, httpErr)
	case strings.Contains(lower, "amount too large"):
		return errs.Wrap(errs.InvalidInput, MsgAmountTooLarge, httpErr)
	case strings.Contains(lower, "no route found"), strings.Contains(lower, "could not find any route"):
		return errs.Wrap(errs.NoRoute, MsgNoRoute, httpErr)
	case msg != "":
		return errs.Wrap(errs.InvalidInput, "Quote failed: "+msg, httpErr)
	default:
		return errs.Wrap(errs.InvalidInput, MsgInvalidParams, httpErr)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isNoRouteAnswer reports whether a failed tradability check means the pair cannot be traded.
func isNoRouteAnswer(err error) bool {
	var httpErr *jupiter.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	if httpErr.StatusCode == http.StatusNotFound {
		return true
	}
	lower := strings.ToLower(httpErr.Message())
	return strings.Contains(lower, "not tradable") || strings.Contains(lower, "no route found")
}
