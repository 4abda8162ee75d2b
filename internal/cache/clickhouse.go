package cache

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/storage"
)

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

// ClickHouseStore writes swap logs to an append-only analytics table.
type ClickHouseStore struct {
	conn   driver.Conn
	logger *logrus.Logger
}

var _ storage.SwapLogSink = (*ClickHouseStore)(nil)

const createSwapLogsTable = `
	CREATE TABLE IF NOT EXISTS swap_logs (
		id String,
		logged_at DateTime64(3, 'UTC'),
		wallet_address String,
		pair LowCardinality(String),
		from_token LowCardinality(String),
		to_token LowCardinality(String),
		from_amount Float64,
		to_amount Float64,
		from_usd_value Float64,
		to_usd_value Float64,
		fees_usd_value Float64,
		platform_fee Float64,
		slippage Float64,
		signature String,
		fee_token_symbol LowCardinality(String)
	) ENGINE = MergeTree()
	ORDER BY (logged_at, signature)
`

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if err := conn.Exec(ctx, createSwapLogsTable); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create swap_logs table: %w", err)
	}

	logger.WithFields(logrus.Fields{"addr": cfg.Addr, "database": cfg.Database}).Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn, logger: logger}, nil
}

func (c *ClickHouseStore) InsertSwapLog(ctx context.Context, l *models.SwapLog) error {
	query := `
		INSERT INTO swap_logs (
			id, logged_at, wallet_address, pair, from_token, to_token,
			from_amount, to_amount, from_usd_value, to_usd_value, fees_usd_value,
			platform_fee, slippage, signature, fee_token_symbol
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := c.conn.Exec(ctx, query,
		l.ID,
		l.LoggedAt,
		l.WalletAddress,
		l.Pair(),
		l.FromToken,
		l.ToToken,
		l.FromAmount,
		l.ToAmount,
		l.FromUSDValue,
		l.ToUSDValue,
		l.FeesUSDValue,
		l.PlatformFee,
		l.Slippage,
		l.Signature,
		l.FeeTokenSymbol,
	)
	if err != nil {
		return fmt.Errorf("failed to insert swap log: %w", err)
	}

	return nil
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
