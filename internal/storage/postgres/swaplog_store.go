package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/storage"
)

// SwapLogStore implements storage.SwapLogStore using PostgreSQL.
type SwapLogStore struct {
	pool *Pool
}

func NewSwapLogStore(pool *Pool) *SwapLogStore {
	return &SwapLogStore{pool: pool}
}

var _ storage.SwapLogStore = (*SwapLogStore)(nil)

const swapLogColumns = `
	id::text, wallet_address, from_token, to_token, from_amount, to_amount,
	from_usd_value, to_usd_value, fees_paid, fees_usd_value, signature, block_time,
	jupiter_fee, platform_fee, slippage, route_plan, fee_token_symbol, fee_token_mint, logged_at
`

// InsertSwapLog adds a log entry. Returns ErrDuplicateKey if the signature was already logged.
func (s *SwapLogStore) InsertSwapLog(ctx context.Context, l *models.SwapLog) error {
	if l == nil || l.ID == "" || l.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO swap_logs (
			id, wallet_address, from_token, to_token, from_amount, to_amount,
			from_usd_value, to_usd_value, fees_paid, fees_usd_value, signature, block_time,
			jupiter_fee, platform_fee, slippage, route_plan, fee_token_symbol, fee_token_mint, logged_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	loggedAt := l.LoggedAt
	if loggedAt.IsZero() {
		loggedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		l.ID,
		l.WalletAddress,
		l.FromToken,
		l.ToToken,
		l.FromAmount,
		l.ToAmount,
		l.FromUSDValue,
		l.ToUSDValue,
		l.FeesPaid,
		l.FeesUSDValue,
		l.Signature,
		l.BlockTime,
		l.JupiterFee,
		l.PlatformFee,
		l.Slippage,
		l.RoutePlan,
		l.FeeTokenSymbol,
		l.FeeTokenMint,
		loggedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap log: %w", err)
	}
	return nil
}

// GetBySignature retrieves a log entry by transaction signature.
func (s *SwapLogStore) GetBySignature(ctx context.Context, signature string) (*models.SwapLog, error) {
	query := `SELECT ` + swapLogColumns + ` FROM swap_logs WHERE signature = $1`

	l, err := scanSwapLog(s.pool.QueryRow(ctx, query, signature))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get swap log: %w", err)
	}
	return l, nil
}

// ListByWallet returns the most recent entries for a wallet, newest first.
func (s *SwapLogStore) ListByWallet(ctx context.Context, wallet string, limit int) ([]*models.SwapLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + swapLogColumns + `
		FROM swap_logs
		WHERE wallet_address = $1
		ORDER BY logged_at DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("query swap logs: %w", err)
	}
	defer rows.Close()

	var out []*models.SwapLog
	for rows.Next() {
		l, err := scanSwapLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap log: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap logs: %w", err)
	}
	return out, nil
}

// Stats aggregates volume, fees and unique wallets for entries logged at or after since.
func (s *SwapLogStore) Stats(ctx context.Context, since time.Time) (*models.SwapStats, error) {
	query := `
		SELECT
			COALESCE(SUM(from_usd_value), 0),
			COUNT(*),
			COALESCE(SUM(fees_usd_value), 0),
			COUNT(DISTINCT wallet_address)
		FROM swap_logs
		WHERE logged_at >= $1
	`

	stats := &models.SwapStats{Since: since, LastUpdated: time.Now().UTC()}
	err := s.pool.QueryRow(ctx, query, since).Scan(
		&stats.TotalVolumeUSD,
		&stats.TotalSwaps,
		&stats.TotalEarningsUSD,
		&stats.UniqueWallets,
	)
	if err != nil {
		return nil, fmt.Errorf("swap log stats: %w", err)
	}
	return stats, nil
}

func (s *SwapLogStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanSwapLog(row pgx.Row) (*models.SwapLog, error) {
	var l models.SwapLog
	err := row.Scan(
		&l.ID,
		&l.WalletAddress,
		&l.FromToken,
		&l.ToToken,
		&l.FromAmount,
		&l.ToAmount,
		&l.FromUSDValue,
		&l.ToUSDValue,
		&l.FeesPaid,
		&l.FeesUSDValue,
		&l.Signature,
		&l.BlockTime,
		&l.JupiterFee,
		&l.PlatformFee,
		&l.Slippage,
		&l.RoutePlan,
		&l.FeeTokenSymbol,
		&l.FeeTokenMint,
		&l.LoggedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
