package angelone

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
		{"complete", model.OrderExecuted},
		{"Complete", model.OrderExecuted},
		{"rejected", model.OrderRejected},
		{"cancelled", model.OrderCancelled},
		{"open", model.OrderOpen},
		{"pending", model.OrderOpen},
		{"trigger pending", model.OrderOpen},
		{"after market order req received", model.OrderOpen},
		{"modified", model.OrderPending},
		{"", model.OrderPending},
	}
	for _, tc := range cases {
		if got := MapStatus(tc.vendor); got != tc.want {
			t.Errorf("MapStatus(%q) = %v, want %v", tc.vendor, got, tc.want)
		}
	}
}

func TestLoggedOutFailsFast(t *testing.T) {
	b := New(nil, nil)
	ctx := context.Background()

	if _, err := b.PlaceOrder(ctx, model.OrderRequest{}); !errors.Is(err, broker.ErrNotLoggedIn) {
		t.Errorf("PlaceOrder = %v, want ErrNotLoggedIn", err)
	}
	if _, err := b.AllOrderStatuses(ctx); !errors.Is(err, broker.ErrNotLoggedIn) {
		t.Errorf("AllOrderStatuses = %v, want ErrNotLoggedIn", err)
	}
	if _, err := b.LTP(ctx, "RELIANCE-EQ", "NSE"); !errors.Is(err, broker.ErrNotLoggedIn) {
		t.Errorf("LTP = %v, want ErrNotLoggedIn", err)
	}
	if err := b.Logout(ctx); !errors.Is(err, broker.ErrNotLoggedIn) {
		t.Errorf("Logout = %v, want ErrNotLoggedIn", err)
	}
}

func TestOrderParams(t *testing.T) {
	req := model.OrderRequest{
		Symbol:          "RELIANCE-EQ",
		Exchange:        "NSE",
		TransactionType: "BUY",
		OrderType:       "LIMIT",
		ProductType:     "INTRADAY",
		Quantity:        10,
		Price:           2885.50,
	}
	params := orderParams(req, "2885")

	if params["variety"] != "NORMAL" {
		t.Errorf("variety = %v, want NORMAL", params["variety"])
	}
	if params["symboltoken"] != "2885" {
		t.Errorf("symboltoken = %v", params["symboltoken"])
	}
	if params["quantity"] != "10" {
		t.Errorf("quantity = %v", params["quantity"])
	}
	if params["price"] != "2885.50" {
		t.Errorf("price = %v", params["price"])
	}

	sl := model.OrderRequest{OrderType: "SL", TriggerPrice: 100, Quantity: 1}
	params = orderParams(sl, "1")
	if params["variety"] != "STOPLOSS" {
		t.Errorf("SL variety = %v, want STOPLOSS", params["variety"])
	}
	if params["triggerprice"] != "100.00" {
		t.Errorf("triggerprice = %v", params["triggerprice"])
	}
}
