package quote

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ToRaw converts a UI amount to the integer base-unit string Jupiter expects,
// truncating digits beyond the token's precision.
func ToRaw(ui decimal.Decimal, decimals int) (string, error) {
	if !ui.IsPositive() {
		return "", fmt.Errorf("amount must be greater than 0")
	}
	raw := ui.Shift(int32(decimals)).Truncate(0)
	if !raw.IsPositive() {
		return "", fmt.Errorf("amount below token precision")
	}
	return raw.String(), nil
}

// FromRaw converts a base-unit integer string back to UI units.
func FromRaw(raw string, decimals int) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse raw amount %q: %w", raw, err)
	}
	return d.Shift(-int32(decimals)), nil
}

// SlippageBps converts a slippage percentage to basis points, rounding half away from zero.
func SlippageBps(percent float64) uint16 {
	bps := decimal.NewFromFloat(percent).Mul(decimal.NewFromInt(100)).Round(0)
	if bps.IsNegative() {
		return 0
	}
	if bps.GreaterThan(decimal.NewFromInt(10000)) {
		return 10000
	}
	return uint16(bps.IntPart())
}

// parseRawAmount checks that amount is a positive integer.
func parseRawAmount(amount string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil || !d.IsInteger() || !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be a positive integer")
	}
	return d, nil
}
