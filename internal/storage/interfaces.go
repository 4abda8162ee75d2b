package storage

import (
	"context"
	"io"
	"time"

	"github.com/bankii-labs/bankiiswap/internal/models"
)

// HistoryStore keeps the capped, newest-first swap history per wallet
type HistoryStore interface {
	// Add prepends an entry and evicts the oldest past capacity
	Add(ctx context.Context, wallet string, entry models.SwapHistoryEntry) error

	// List returns entries newest first
	List(ctx context.Context, wallet string) ([]models.SwapHistoryEntry, error)

	// UpdateStatus sets the status of the entry with the given tx id
	UpdateStatus(ctx context.Context, wallet, txID string, status models.SwapStatus) error
}

// FavoritesStore keeps the set of favorite token mints per wallet
type FavoritesStore interface {
	Add(ctx context.Context, wallet, mint string) error
	Remove(ctx context.Context, wallet, mint string) error
	Toggle(ctx context.Context, wallet, mint string) (bool, error)
	List(ctx context.Context, wallet string) ([]string, error)
	IsFavorite(ctx context.Context, wallet, mint string) (bool, error)
}

// SwapLogSink accepts swap audit records
type SwapLogSink interface {
	// InsertSwapLog stores a swap log entry
	InsertSwapLog(ctx context.Context, log *models.SwapLog) error
}

// SwapLogStore is a queryable SwapLogSink
type SwapLogStore interface {
	SwapLogSink

	// GetBySignature returns ErrNotFound when no entry exists
	GetBySignature(ctx context.Context, signature string) (*models.SwapLog, error)

	// ListByWallet returns the most recent entries for a wallet
	ListByWallet(ctx context.Context, wallet string, limit int) ([]*models.SwapLog, error)

	// Stats aggregates entries logged at or after since
	Stats(ctx context.Context, since time.Time) (*models.SwapStats, error)

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error
}

// SwapEventPublisher fans logged swaps out to subscribers
type SwapEventPublisher interface {
	PublishSwap(ctx context.Context, log *models.SwapLog) error

	io.Closer
}

// SwapEventSubscriber streams logged swaps
type SwapEventSubscriber interface {
	SubscribeSwaps(ctx context.Context) (<-chan *models.SwapLog, error)
}
