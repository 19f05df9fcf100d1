package execution

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

type fakePaperStore struct {
	fills []*model.PaperTrade
}

func (f *fakePaperStore) CreatePaperTrade(ctx context.Context, pt *model.PaperTrade) error {
	pt.ID = int64(len(f.fills) + 1)
	f.fills = append(f.fills, pt)
	return nil
}

func (f *fakePaperStore) ListPaperTrades(ctx context.Context, limit int) ([]*model.PaperTrade, error) {
	return f.fills, nil
}

func TestPaperFillWithSlippage(t *testing.T) {
	store := &fakePaperStore{}
	e := New(store, 5) // 0.05%
	e.SetClock(func() time.Time { return time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC) })

	req := model.OrderRequest{
		Symbol:          "RELIANCE-EQ",
		Exchange:        "NSE",
		TransactionType: "BUY",
		Quantity:        10,
	}
	pt, err := e.PlaceOrder(context.Background(), req, 1000.00)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if pt.FillPrice != 1000.50 {
		t.Errorf("buy fill = %.2f, want 1000.50", pt.FillPrice)
	}
	if !strings.HasPrefix(pt.OrderID, "PAPER-") {
		t.Errorf("order id %q missing PAPER- prefix", pt.OrderID)
	}
	if len(store.fills) != 1 {
		t.Fatalf("fill not persisted")
	}

	req.TransactionType = "SELL"
	pt, err = e.PlaceOrder(context.Background(), req, 1000.00)
	if err != nil {
		t.Fatalf("PlaceOrder sell: %v", err)
	}
	if pt.FillPrice != 999.50 {
		t.Errorf("sell fill = %.2f, want 999.50", pt.FillPrice)
	}
}

func TestPaperFillFallsBackToLimitPrice(t *testing.T) {
	e := New(&fakePaperStore{}, 0)

	req := model.OrderRequest{
		Symbol:          "TCS-EQ",
		TransactionType: "BUY",
		Quantity:        1,
		Price:           3500.25,
	}
	pt, err := e.PlaceOrder(context.Background(), req, 0)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if pt.FillPrice != 3500.25 {
		t.Errorf("fill = %.2f, want limit price 3500.25", pt.FillPrice)
	}
}

func TestPaperFillNoReferencePrice(t *testing.T) {
	e := New(&fakePaperStore{}, 5)
	_, err := e.PlaceOrder(context.Background(), model.OrderRequest{Symbol: "X", TransactionType: "BUY"}, 0)
	if err == nil {
		t.Fatal("expected error without a reference price")
	}
}

func TestPaperOrderIDsUnique(t *testing.T) {
	e := New(&fakePaperStore{}, 0)
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		pt, err := e.PlaceOrder(context.Background(), model.OrderRequest{Symbol: "X", TransactionType: "BUY", Quantity: 1, Price: 100}, 0)
		if err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
		if seen[pt.OrderID] {
			t.Fatalf("duplicate order id %s", pt.OrderID)
		}
		seen[pt.OrderID] = true
	}
}
