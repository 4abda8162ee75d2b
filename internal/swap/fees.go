package swap

import (
	"github.com/shopspring/decimal"

	"github.com/bankii-labs/bankiiswap/internal/constants"
)

var (
	feeRate       = decimal.NewFromFloat(constants.PlatformFeeRate)
	feeMultiplier = decimal.NewFromInt(1).Add(feeRate)
	maxBuffer     = decimal.NewFromFloat(constants.MaxAmountBuffer)
)

// PlatformFee is the 0.3% fee charged on the input amount.
func PlatformFee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(feeRate)
}

// RequiredAmount is the input amount plus the platform fee.
func RequiredAmount(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(feeMultiplier)
}

// HasSufficientBalance reports whether amount*1.003 fits in balance.
func HasSufficientBalance(amount, balance decimal.Decimal) bool {
	return RequiredAmount(amount).LessThanOrEqual(balance)
}

// MaxAmount is the largest input that still leaves room for the fee, less a small buffer.
func MaxAmount(balance decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() {
		return decimal.Zero
	}
	return balance.DivRound(feeMultiplier, 18).Mul(maxBuffer)
}

// PercentOf returns balance*fraction for the 25/50/75% presets. A fraction of 1 means MAX.
func PercentOf(balance decimal.Decimal, fraction float64) decimal.Decimal {
	if fraction >= 1 {
		return MaxAmount(balance)
	}
	if fraction <= 0 || !balance.IsPositive() {
		return decimal.Zero
	}
	return balance.Mul(decimal.NewFromFloat(fraction))
}
