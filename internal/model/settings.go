package model

import "time"

// AppSettings are the runtime controls for automatic execution.
type AppSettings struct {
	AutoTradeEnabled      bool    `json:"auto_trade_enabled"`
	RequireManualApproval bool    `json:"require_manual_approval"`
	PaperTradingEnabled   bool    `json:"paper_trading_enabled"`
	MaxTradesPerDay       int     `json:"max_trades_per_day"`
	PriceTolerancePct     float64 `json:"price_tolerance_pct"`
	ActiveBroker          string  `json:"active_broker"`
	EnforceMarketHours    bool    `json:"enforce_market_hours"`
	DefaultQuantity       int64   `json:"default_quantity"`
	DefaultProductType    string  `json:"default_product_type"`
}

// DefaultSettings returns the conservative out-of-box configuration.
// Auto trading starts disabled so nothing fires before an operator
// has reviewed the setup.
func DefaultSettings() AppSettings {
	return AppSettings{
		AutoTradeEnabled:      false,
		RequireManualApproval: true,
		PaperTradingEnabled:   true,
		MaxTradesPerDay:       10,
		PriceTolerancePct:     1.0,
		EnforceMarketHours:    false,
		DefaultQuantity:       1,
		DefaultProductType:    "INTRADAY",
	}
}

// BrokerConfig is one broker's credential bundle. Secret fields are
// stored encrypted and decrypted by the store on read; by the time a
// BrokerConfig reaches a backend the values are plaintext.
type BrokerConfig struct {
	ID         int64  `json:"id"`
	Broker     string `json:"broker"` // angelone, zerodha, shoonya
	ClientID   string `json:"client_id"`
	APIKey     string `json:"api_key"`
	APISecret  string `json:"-"`
	Password   string `json:"-"`
	TOTPSecret string `json:"-"`

	// Persisted session tokens for silent restore.
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	FeedToken    string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry,omitempty"`

	// Zerodha login hands back a request token out of band.
	RequestToken string `json:"-"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
