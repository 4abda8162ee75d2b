// Package history keeps each wallet's most recent swaps, newest first.
package history

import (
	"errors"
	"strings"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/models"
)

// Capacity is the number of entries retained per wallet.
const Capacity = constants.MaxHistoryEntries

var ErrInvalidWallet = errors.New("invalid wallet")

func validate(wallet string, entry *models.SwapHistoryEntry) error {
	if strings.TrimSpace(wallet) == "" {
		return ErrInvalidWallet
	}
	if entry != nil && entry.Status == "" {
		entry.Status = models.StatusSubmitted
	}
	return nil
}
