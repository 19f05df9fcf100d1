// Package broker defines the capability contract every brokerage
// backend implements, plus the registry that constructs and caches
// backend singletons.
package broker

import (
	"context"
	"errors"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

var (
	// ErrNotLoggedIn is returned by any call on a backend without a
	// live session. No network call is attempted.
	ErrNotLoggedIn = errors.New("broker: not logged in")

	// ErrUnknownBroker is returned by the registry for an identifier
	// that was never registered.
	ErrUnknownBroker = errors.New("broker: unknown broker")

	// ErrUnsupported is returned when a vendor lacks a capability,
	// e.g. bracket orders on Zerodha. Backends must return this
	// explicitly rather than degrading to a plain order.
	ErrUnsupported = errors.New("broker: operation not supported")

	// ErrInstrumentNotFound is returned when a symbol cannot be
	// mapped to a vendor instrument token.
	ErrInstrumentNotFound = errors.New("broker: instrument not found")
)

// Broker is the uniform contract over heterogeneous brokerage
// backends. Implementations translate their vendor's authentication
// flow, order API and status vocabulary into this surface. Every
// method except IsLoggedIn and ClientID must fail fast with
// ErrNotLoggedIn when no session is live.
type Broker interface {
	IsLoggedIn() bool
	ClientID() string

	Login(ctx context.Context, cfg *model.BrokerConfig) error
	Logout(ctx context.Context) error

	PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	ModifyOrder(ctx context.Context, orderID string, req model.OrderRequest) error

	OrderStatus(ctx context.Context, orderID string) (model.BrokerOrder, error)
	AllOrderStatuses(ctx context.Context) ([]model.BrokerOrder, error)

	Positions(ctx context.Context) ([]map[string]any, error)
	Holdings(ctx context.Context) ([]map[string]any, error)
	OrderBook(ctx context.Context) ([]map[string]any, error)
	Funds(ctx context.Context) (map[string]any, error)

	LTP(ctx context.Context, symbol, exchange string) (float64, error)
	SearchSymbols(ctx context.Context, query, exchange string) ([]model.Instrument, error)
	RefreshInstruments(ctx context.Context) error

	PlaceBracketOrder(ctx context.Context, req model.BracketOrderRequest) (model.OrderResult, error)
	PlaceGTTOrder(ctx context.Context, req model.GTTOrderRequest) (model.OrderResult, error)
}
