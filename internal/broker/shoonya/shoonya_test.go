package shoonya

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
		{"FILL", model.OrderExecuted},
		{"REJECTED", model.OrderRejected},
		{"CANCELLED", model.OrderCancelled},
		{"CANCEL", model.OrderCancelled},
		{"OPEN", model.OrderOpen},
		{"PENDING", model.OrderOpen},
		{"TRIGGER_PENDING", model.OrderOpen},
		{"INVALID", model.OrderPending},
		{"", model.OrderPending},
	}
	for _, tc := range cases {
		if got := MapStatus(tc.vendor); got != tc.want {
			t.Errorf("MapStatus(%q) = %v, want %v", tc.vendor, got, tc.want)
		}
	}
}

func TestGTTUnsupported(t *testing.T) {
	b := New(nil)
	b.loggedIn = true

	_, err := b.PlaceGTTOrder(context.Background(), model.GTTOrderRequest{})
	if !errors.Is(err, broker.ErrUnsupported) {
		t.Errorf("PlaceGTTOrder = %v, want ErrUnsupported", err)
	}
}

func TestLoggedOutFailsFast(t *testing.T) {
	b := New(nil)
	ctx := context.Background()

	if _, err := b.PlaceOrder(ctx, model.OrderRequest{}); !errors.Is(err, broker.ErrNotLoggedIn) {
		t.Errorf("PlaceOrder = %v, want ErrNotLoggedIn", err)
	}
	if _, err := b.Funds(ctx); !errors.Is(err, broker.ErrNotLoggedIn) {
		t.Errorf("Funds = %v, want ErrNotLoggedIn", err)
	}
}

func TestNorenSymbol(t *testing.T) {
	cases := map[string]string{
		"RELIANCE":            "RELIANCE-EQ",
		"RELIANCE-EQ":         "RELIANCE-EQ",
		"NIFTY28AUG2525000CE": "NIFTY28AUG2525000CE",
		"M&M":                 "M&M-EQ",
	}
	for in, want := range cases {
		if got := norenSymbol(in); got != want {
			t.Errorf("norenSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPriceTypeMapping(t *testing.T) {
	cases := map[string]string{
		"MARKET": "MKT",
		"LIMIT":  "LMT",
		"SL":     "SL-LMT",
		"SL-M":   "SL-MKT",
		"":       "MKT",
	}
	for in, want := range cases {
		if got := priceType(in); got != want {
			t.Errorf("priceType(%q) = %q, want %q", in, got, want)
		}
	}
}
