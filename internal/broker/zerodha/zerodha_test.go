package zerodha

import (
	"context"
	"errors"
	"testing"

	"github.com/khannoor710/TelegramSignalTrader/internal/broker"
	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		vendor string
		want   model.OrderState
	}{
		{"COMPLETE", model.OrderExecuted},
		{"complete", model.OrderExecuted},
		{"REJECTED", model.OrderRejected},
		{"CANCELLED", model.OrderCancelled},
		{"OPEN", model.OrderOpen},
		{"TRIGGER PENDING", model.OrderOpen},
		{"VALIDATION PENDING", model.OrderPending},
		{"", model.OrderPending},
	}
	for _, tc := range cases {
		if got := MapStatus(tc.vendor); got != tc.want {
			t.Errorf("MapStatus(%q) = %v, want %v", tc.vendor, got, tc.want)
		}
	}
}

func TestBracketOrdersUnsupported(t *testing.T) {
	b := New(nil, nil)
	b.loggedIn = true // bypass the session guard; the call must still refuse

	_, err := b.PlaceBracketOrder(context.Background(), model.BracketOrderRequest{})
	if !errors.Is(err, broker.ErrUnsupported) {
		t.Errorf("PlaceBracketOrder = %v, want ErrUnsupported", err)
	}
}

func TestLoggedOutFailsFast(t *testing.T) {
	b := New(nil, nil)
	ctx := context.Background()

	if _, err := b.PlaceOrder(ctx, model.OrderRequest{}); !errors.Is(err, broker.ErrNotLoggedIn) {
		t.Errorf("PlaceOrder = %v, want ErrNotLoggedIn", err)
	}
	if _, err := b.SearchSymbols(ctx, "RELIANCE", "NSE"); !errors.Is(err, broker.ErrNotLoggedIn) {
		t.Errorf("SearchSymbols = %v, want ErrNotLoggedIn", err)
	}
}

func TestKiteSymbol(t *testing.T) {
	if got := kiteSymbol("RELIANCE-EQ"); got != "RELIANCE" {
		t.Errorf("kiteSymbol(RELIANCE-EQ) = %q", got)
	}
	if got := kiteSymbol("NIFTY28AUG2525000CE"); got != "NIFTY28AUG2525000CE" {
		t.Errorf("kiteSymbol(option) = %q", got)
	}
}

func TestProductMapping(t *testing.T) {
	cases := map[string]string{
		"INTRADAY":     "MIS",
		"MIS":          "MIS",
		"DELIVERY":     "CNC",
		"CNC":          "CNC",
		"CARRYFORWARD": "NRML",
		"NRML":         "NRML",
		"":             "MIS",
	}
	for in, want := range cases {
		if got := product(in); got != want {
			t.Errorf("product(%q) = %q, want %q", in, got, want)
		}
	}
}
