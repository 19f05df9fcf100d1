// Package execution simulates order fills for paper trading. Orders
// never reach a broker; fills are recorded locally at the last traded
// price adjusted for configurable slippage.
package execution

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// Engine fills paper orders instantly and persists each fill.
type Engine struct {
	store       model.PaperTradeStore
	slippageBps int64
	now         func() time.Time
}

// New creates a paper engine. slippageBps controls simulated slippage
// in basis points (5 = 0.05%).
func New(store model.PaperTradeStore, slippageBps int64) *Engine {
	return &Engine{
		store:       store,
		slippageBps: slippageBps,
		now:         time.Now,
	}
}

// SetClock overrides the engine clock for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// PlaceOrder simulates an immediate fill. ltp is the reference price;
// when zero the request's limit price is used instead. Buys fill above
// the reference, sells below, by slippageBps.
func (e *Engine) PlaceOrder(ctx context.Context, req model.OrderRequest, ltp float64) (*model.PaperTrade, error) {
	ref := ltp
	if ref <= 0 {
		ref = req.Price
	}
	if ref <= 0 {
		return nil, fmt.Errorf("paper order for %s has no reference price", req.Symbol)
	}

	fillPrice := e.fillPrice(ref, req.TransactionType)

	pt := &model.PaperTrade{
		OrderID:    "PAPER-" + uuid.NewString(),
		Symbol:     req.Symbol,
		Exchange:   req.Exchange,
		Action:     req.TransactionType,
		Quantity:   req.Quantity,
		FillPrice:  fillPrice,
		ExecutedAt: e.now().UTC(),
	}
	if err := e.store.CreatePaperTrade(ctx, pt); err != nil {
		return nil, fmt.Errorf("record paper trade: %w", err)
	}

	log.Printf("[paper] %s %d x %s @ %.2f (ref %.2f) order=%s",
		pt.Action, pt.Quantity, pt.Symbol, pt.FillPrice, ref, pt.OrderID)
	return pt, nil
}

// fillPrice applies slippage to the reference price using decimal
// arithmetic so repeated simulations stay penny-exact.
func (e *Engine) fillPrice(ref float64, action string) float64 {
	price := decimal.NewFromFloat(ref)
	if e.slippageBps <= 0 {
		f, _ := price.Round(2).Float64()
		return f
	}
	slip := price.Mul(decimal.NewFromInt(e.slippageBps)).Div(decimal.NewFromInt(10000))
	if action == "SELL" {
		price = price.Sub(slip)
	} else {
		price = price.Add(slip)
	}
	f, _ := price.Round(2).Float64()
	return f
}
