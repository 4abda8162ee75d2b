package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/quote"
)

// Quote prices inputMint -> outputMint for a raw amount. slippage is a percentage.
func (h *Handlers) Quote(c echo.Context) error {
	inputMint := strings.TrimSpace(c.QueryParam("inputMint"))
	outputMint := strings.TrimSpace(c.QueryParam("outputMint"))
	amountStr := strings.TrimSpace(c.QueryParam("amount"))

	if inputMint == "" {
		return h.err(c, http.StatusBadRequest, "invalid inputMint", map[string]any{"inputMint": "required"})
	}
	if outputMint == "" {
		return h.err(c, http.StatusBadRequest, "invalid outputMint", map[string]any{"outputMint": "required"})
	}
	if amountStr == "" {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "required"})
	}

	slippage := constants.DefaultSlippagePct
	if v := strings.TrimSpace(c.QueryParam("slippage")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 100 {
			return h.err(c, http.StatusBadRequest, "invalid slippage", map[string]any{"slippage": "percentage between 0 and 100"})
		}
		slippage = f
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 20*time.Second)
	defer cancel()

	out, err := h.Quotes.GetQuote(ctx, quote.Request{
		InputMint:       inputMint,
		OutputMint:      outputMint,
		Amount:          amountStr,
		SlippagePercent: slippage,
	})
	if err != nil {
		return h.fail(c, err, "quote failed")
	}
	return c.JSON(http.StatusOK, out)
}
