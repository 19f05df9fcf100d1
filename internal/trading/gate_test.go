package trading

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

func gateSettings() model.AppSettings {
	return model.AppSettings{
		AutoTradeEnabled:      true,
		RequireManualApproval: false,
		PaperTradingEnabled:   false,
		MaxTradesPerDay:       10,
		PriceTolerancePct:     1.0,
	}
}

func verifiableBroker() *stubBroker {
	return &stubBroker{
		loggedIn: true,
		ltp:      1000.00,
		searchHits: map[string][]model.Instrument{
			"NSE": {{TradingSymbol: "RELIANCE-EQ", Exchange: "NSE", Token: "2885"}},
		},
	}
}

func signal() model.Signal {
	return model.Signal{Symbol: "RELIANCE", Action: "BUY", EntryPrice: 1000.00, Exchange: "NSE"}
}

func TestGateAutoTradeDisabled(t *testing.T) {
	g := NewGate(newMemTrades())
	s := gateSettings()
	s.AutoTradeEnabled = false

	// Refusal reason is exact regardless of every other input.
	d := g.Evaluate(context.Background(), model.Signal{}, s, nil)
	if d.Allowed {
		t.Fatal("gate allowed with auto-trade disabled")
	}
	if d.Reason != "Auto-trade is disabled" {
		t.Fatalf("reason = %q, want %q", d.Reason, "Auto-trade is disabled")
	}

	d = g.Evaluate(context.Background(), signal(), s, verifiableBroker())
	if d.Reason != "Auto-trade is disabled" {
		t.Fatalf("reason with valid signal = %q", d.Reason)
	}
}

func TestGateManualApproval(t *testing.T) {
	g := NewGate(newMemTrades())
	s := gateSettings()
	s.RequireManualApproval = true

	d := g.Evaluate(context.Background(), signal(), s, verifiableBroker())
	if d.Allowed || !strings.Contains(d.Reason, "approval") {
		t.Fatalf("decision = %+v", d)
	}
}

func TestGateDailyLimit(t *testing.T) {
	trades := newMemTrades()
	trades.countOn = 10
	g := NewGate(trades)

	d := g.Evaluate(context.Background(), signal(), gateSettings(), verifiableBroker())
	if d.Allowed {
		t.Fatal("gate allowed at daily limit")
	}
	if !errors.Is(d.Err, ErrDailyLimitReached) {
		t.Errorf("err = %v, want ErrDailyLimitReached", d.Err)
	}

	trades.countOn = 9
	d = g.Evaluate(context.Background(), signal(), gateSettings(), verifiableBroker())
	if !d.Allowed {
		t.Errorf("gate blocked below limit: %q", d.Reason)
	}
}

func TestGateNoActiveBroker(t *testing.T) {
	g := NewGate(newMemTrades())
	d := g.Evaluate(context.Background(), signal(), gateSettings(), nil)
	if d.Allowed || d.Reason != "No active broker" {
		t.Fatalf("decision = %+v", d)
	}
}

func TestGateLoggedOutBroker(t *testing.T) {
	g := NewGate(newMemTrades())
	b := &stubBroker{loggedIn: false}

	d := g.Evaluate(context.Background(), signal(), gateSettings(), b)
	if d.Allowed {
		t.Fatal("gate allowed with logged-out broker and paper disabled")
	}

	// Paper trading keeps the signal executable without a session.
	s := gateSettings()
	s.PaperTradingEnabled = true
	d = g.Evaluate(context.Background(), signal(), s, b)
	if !d.Allowed {
		t.Fatalf("paper mode blocked: %q", d.Reason)
	}
	if d.OrderType != "MARKET" {
		t.Errorf("paper order type = %q, want MARKET", d.OrderType)
	}
}

func TestGateIncompleteSignal(t *testing.T) {
	g := NewGate(newMemTrades())
	b := verifiableBroker()

	d := g.Evaluate(context.Background(), model.Signal{Action: "BUY"}, gateSettings(), b)
	if d.Allowed || !strings.Contains(d.Reason, "symbol") {
		t.Errorf("no-symbol decision = %+v", d)
	}

	d = g.Evaluate(context.Background(), model.Signal{Symbol: "RELIANCE"}, gateSettings(), b)
	if d.Allowed || !strings.Contains(d.Reason, "action") {
		t.Errorf("no-action decision = %+v", d)
	}
}

func TestGateInstrumentVerification(t *testing.T) {
	g := NewGate(newMemTrades())

	// Nothing on either exchange.
	b := &stubBroker{loggedIn: true, ltp: 1000, searchHits: map[string][]model.Instrument{}}
	d := g.Evaluate(context.Background(), signal(), gateSettings(), b)
	if d.Allowed || !strings.Contains(d.Reason, "verify") {
		t.Errorf("unverifiable decision = %+v", d)
	}

	// Primary NSE empty, BSE fallback hits.
	b.searchHits["BSE"] = []model.Instrument{{TradingSymbol: "RELIANCE", Exchange: "BSE"}}
	d = g.Evaluate(context.Background(), signal(), gateSettings(), b)
	if !d.Allowed {
		t.Errorf("BSE fallback blocked: %q", d.Reason)
	}
}

func TestGateLTPFailure(t *testing.T) {
	g := NewGate(newMemTrades())
	b := verifiableBroker()
	b.ltpErr = errors.New("quote api down")

	d := g.Evaluate(context.Background(), signal(), gateSettings(), b)
	if d.Allowed || !strings.Contains(d.Reason, "live price") {
		t.Errorf("decision = %+v", d)
	}
}

func TestGatePriceDeviation(t *testing.T) {
	g := NewGate(newMemTrades())
	b := verifiableBroker() // LTP 1000

	// Entry 2% above LTP, tolerance 1%: refuse.
	sig := signal()
	sig.EntryPrice = 1020.00
	d := g.Evaluate(context.Background(), sig, gateSettings(), b)
	if d.Allowed {
		t.Fatal("gate allowed 2% deviation with 1% tolerance")
	}
	if !errors.Is(d.Err, ErrPriceDeviation) {
		t.Errorf("err = %v, want ErrPriceDeviation", d.Err)
	}

	// Same signal, tolerance 5%: pass, pinned to a limit order.
	s := gateSettings()
	s.PriceTolerancePct = 5.0
	d = g.Evaluate(context.Background(), sig, s, b)
	if !d.Allowed {
		t.Fatalf("gate blocked within 5%% tolerance: %q", d.Reason)
	}
	if d.OrderType != "LIMIT" {
		t.Errorf("order type = %q, want LIMIT for 2%% deviation", d.OrderType)
	}
}

func TestGateMarketOrderOnSmallDeviation(t *testing.T) {
	g := NewGate(newMemTrades())
	b := verifiableBroker() // LTP 1000

	sig := signal()
	sig.EntryPrice = 1002.00 // 0.2% off
	d := g.Evaluate(context.Background(), sig, gateSettings(), b)
	if !d.Allowed {
		t.Fatalf("blocked: %q", d.Reason)
	}
	if d.OrderType != "MARKET" {
		t.Errorf("order type = %q, want MARKET for 0.2%% deviation", d.OrderType)
	}
	if d.LTP != 1000.00 {
		t.Errorf("decision LTP = %v", d.LTP)
	}
}

func TestGateMarketHours(t *testing.T) {
	g := NewGate(newMemTrades())
	// Sunday noon IST.
	g.SetClock(func() time.Time { return time.Date(2026, 8, 30, 6, 30, 0, 0, time.UTC) })

	s := gateSettings()
	s.EnforceMarketHours = true
	d := g.Evaluate(context.Background(), signal(), s, verifiableBroker())
	if d.Allowed {
		t.Fatal("gate allowed on a Sunday with market hours enforced")
	}

	s.EnforceMarketHours = false
	d = g.Evaluate(context.Background(), signal(), s, verifiableBroker())
	if !d.Allowed {
		t.Errorf("blocked with enforcement off: %q", d.Reason)
	}
}
