// Package trading holds the trade lifecycle orchestrator, the
// auto-trade decision gate and the background reconciler.
package trading

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khannoor710/TelegramSignalTrader/internal/broker"
	"github.com/khannoor710/TelegramSignalTrader/internal/markethours"
	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

var (
	// ErrDailyLimitReached blocks execution once the day's trade count
	// hits the configured ceiling.
	ErrDailyLimitReached = errors.New("trading: daily trade limit reached")

	// ErrPriceDeviation blocks execution when a signal's entry price
	// has drifted too far from the live market.
	ErrPriceDeviation = errors.New("trading: price deviation exceeds tolerance")
)

// Reason text for a disabled auto-trade switch. Callers match on this
// string, keep it stable.
const reasonAutoTradeDisabled = "Auto-trade is disabled"

// marketOrderDeviationPct is the deviation below which a market order
// is safe; above it the order is pinned to the signal's price.
var marketOrderDeviationPct = decimal.NewFromFloat(0.5)

// Decision is the gate's verdict on one signal.
type Decision struct {
	Allowed   bool    `json:"allowed"`
	Reason    string  `json:"reason,omitempty"`
	Err       error   `json:"-"`
	OrderType string  `json:"order_type,omitempty"` // MARKET or LIMIT when allowed
	LTP       float64 `json:"ltp,omitempty"`
}

// TradeCounter supplies the per-day trade count for the daily ceiling.
type TradeCounter interface {
	CountTradesOn(ctx context.Context, day time.Time) (int, error)
}

// Gate decides whether a signal may execute without human approval.
// All checks fail closed: the first failing check produces the refusal
// and later checks never run.
type Gate struct {
	trades TradeCounter
	now    func() time.Time
}

// NewGate creates a gate backed by the given trade counter.
func NewGate(trades TradeCounter) *Gate {
	return &Gate{trades: trades, now: time.Now}
}

// SetClock overrides the gate clock for tests.
func (g *Gate) SetClock(now func() time.Time) { g.now = now }

// Evaluate runs the ordered fail-closed checks. b is the active broker
// backend and may be nil when none is configured.
func (g *Gate) Evaluate(ctx context.Context, sig model.Signal, settings model.AppSettings, b broker.Broker) Decision {
	if !settings.AutoTradeEnabled {
		return Decision{Reason: reasonAutoTradeDisabled}
	}
	if settings.RequireManualApproval {
		return Decision{Reason: "Manual approval is required"}
	}

	if settings.MaxTradesPerDay > 0 {
		count, err := g.trades.CountTradesOn(ctx, g.now())
		if err != nil {
			return Decision{Reason: fmt.Sprintf("Could not check daily trade count: %v", err)}
		}
		if count >= settings.MaxTradesPerDay {
			return Decision{
				Reason: fmt.Sprintf("Daily trade limit reached (%d)", settings.MaxTradesPerDay),
				Err:    ErrDailyLimitReached,
			}
		}
	}

	if b == nil {
		return Decision{Reason: "No active broker"}
	}
	loggedIn := b.IsLoggedIn()
	if !loggedIn && !settings.PaperTradingEnabled {
		return Decision{Reason: "Broker not logged in and paper trading is disabled"}
	}

	if sig.Symbol == "" {
		return Decision{Reason: "Signal has no symbol"}
	}
	if sig.Action == "" {
		return Decision{Reason: "Signal has no action"}
	}

	if settings.EnforceMarketHours && !markethours.IsMarketOpen(g.now()) {
		return Decision{Reason: markethours.StatusString(g.now())}
	}

	// Without a live session the remaining checks need market data we
	// cannot fetch; paper fills use the signal's stated price.
	if !loggedIn {
		return Decision{Allowed: true, OrderType: "MARKET"}
	}

	exchange := sig.Exchange
	if exchange == "" {
		exchange = "NSE"
	}
	if !g.verifyInstrument(ctx, b, sig.Symbol, exchange) {
		return Decision{Reason: fmt.Sprintf("Could not verify instrument %s", sig.Symbol)}
	}

	ltp, err := b.LTP(ctx, sig.Symbol, exchange)
	if err != nil || ltp <= 0 {
		return Decision{Reason: fmt.Sprintf("Could not fetch live price for %s", sig.Symbol)}
	}

	orderType := "MARKET"
	if sig.EntryPrice > 0 {
		deviation := deviationPct(sig.EntryPrice, ltp)
		tolerance := decimal.NewFromFloat(settings.PriceTolerancePct)
		if deviation.GreaterThan(tolerance) {
			return Decision{
				Reason: fmt.Sprintf("Price deviation %s%% exceeds tolerance %s%%",
					deviation.StringFixed(2), tolerance.StringFixed(2)),
				Err: ErrPriceDeviation,
				LTP: ltp,
			}
		}
		if deviation.GreaterThan(marketOrderDeviationPct) {
			orderType = "LIMIT"
		}
	}

	return Decision{Allowed: true, OrderType: orderType, LTP: ltp}
}

// verifyInstrument checks the symbol exists on the primary exchange,
// falling back to BSE for NSE equities listed on both.
func (g *Gate) verifyInstrument(ctx context.Context, b broker.Broker, symbol, exchange string) bool {
	hits, err := b.SearchSymbols(ctx, symbol, exchange)
	if err == nil && len(hits) > 0 {
		return true
	}
	if exchange == "NSE" {
		hits, err = b.SearchSymbols(ctx, symbol, "BSE")
		if err == nil && len(hits) > 0 {
			return true
		}
	}
	return false
}

// deviationPct returns |entry-ltp|/ltp*100.
func deviationPct(entry, ltp float64) decimal.Decimal {
	e := decimal.NewFromFloat(entry)
	l := decimal.NewFromFloat(ltp)
	return e.Sub(l).Abs().Div(l).Mul(decimal.NewFromInt(100))
}
