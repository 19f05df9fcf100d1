package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the trading logic from the concrete SQLite
// store. Each trade row is committed in its own transaction so the
// reconciler and request-triggered execution never tear each other's
// updates.

// TradeStore persists trade lifecycles.
type TradeStore interface {
	// CreateTrade inserts a new trade and fills in its ID.
	CreateTrade(ctx context.Context, t *Trade) error

	// GetTrade loads one trade by ID.
	GetTrade(ctx context.Context, id int64) (*Trade, error)

	// UpdateTrade writes back all mutable fields of a trade atomically.
	UpdateTrade(ctx context.Context, t *Trade) error

	// ListActiveTrades returns trades in a non-terminal status.
	ListActiveTrades(ctx context.Context) ([]*Trade, error)

	// CountTradesOn returns the number of trades created on the given
	// calendar day (local to the day's location).
	CountTradesOn(ctx context.Context, day time.Time) (int, error)

	// Stats aggregates lifecycle counts over all trades.
	Stats(ctx context.Context) (TradeStats, error)

	Close() error
}

// SettingsStore persists the single AppSettings row.
type SettingsStore interface {
	GetSettings(ctx context.Context) (AppSettings, error)
	SaveSettings(ctx context.Context, s AppSettings) error
}

// BrokerConfigStore persists broker credential bundles. Implementations
// encrypt secret fields at rest and hand back plaintext.
type BrokerConfigStore interface {
	GetBrokerConfig(ctx context.Context, broker string) (*BrokerConfig, error)
	SaveBrokerConfig(ctx context.Context, cfg *BrokerConfig) error
	ListBrokerConfigs(ctx context.Context) ([]*BrokerConfig, error)

	// DeactivateBrokerConfig marks a config inactive so later calls
	// fail fast instead of retrying bad credentials.
	DeactivateBrokerConfig(ctx context.Context, broker string) error
}

// PaperTradeStore records simulated fills.
type PaperTradeStore interface {
	CreatePaperTrade(ctx context.Context, pt *PaperTrade) error
	ListPaperTrades(ctx context.Context, limit int) ([]*PaperTrade, error)
}
