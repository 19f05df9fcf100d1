package events

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

type captureNotifier struct {
	got []Event
	err error
}

func (c *captureNotifier) Send(ctx context.Context, ev Event) error {
	c.got = append(c.got, ev)
	return c.err
}

func TestBusFanOut(t *testing.T) {
	a := &captureNotifier{}
	b := &captureNotifier{}
	bus := NewBus(a)
	bus.Attach(b)

	bus.Publish(context.Background(), Event{Type: TypeSyncSummary, Title: "x"})

	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("fan-out: a=%d b=%d, want 1 each", len(a.got), len(b.got))
	}
}

func TestBusSinkErrorIsolated(t *testing.T) {
	bad := &captureNotifier{err: errors.New("boom")}
	good := &captureNotifier{}
	bus := NewBus(bad, good)

	bus.Publish(context.Background(), Event{Title: "x"})

	if len(good.got) != 1 {
		t.Fatal("failing sink blocked delivery to the next sink")
	}
}

func TestStatusChangedLevels(t *testing.T) {
	rejected := &model.Trade{
		ID: 7, Symbol: "RELIANCE-EQ", Broker: "angelone",
		Status:                model.StatusRejected,
		BrokerRejectionReason: "Insufficient funds",
	}
	ev := StatusChanged(rejected, model.StatusSubmitted)
	if ev.Type != TypeTradeRejected || ev.Level != LevelWarning {
		t.Errorf("rejected event: type=%v level=%v", ev.Type, ev.Level)
	}
	if !strings.Contains(ev.Message, "Insufficient funds") {
		t.Errorf("rejection reason missing from %q", ev.Message)
	}

	failed := &model.Trade{ID: 8, Symbol: "X", Status: model.StatusFailed, ErrorMessage: "timeout"}
	ev = StatusChanged(failed, model.StatusPending)
	if ev.Level != LevelCritical {
		t.Errorf("failed event level = %v, want CRITICAL", ev.Level)
	}

	executed := &model.Trade{ID: 9, Symbol: "X", Status: model.StatusExecuted}
	ev = StatusChanged(executed, model.StatusOpen)
	if ev.Type != TypeStatusChanged || ev.Level != LevelInfo {
		t.Errorf("executed event: type=%v level=%v", ev.Type, ev.Level)
	}
}

func TestHubSequencesEvents(t *testing.T) {
	h := NewHub(16)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := h.Send(ctx, Event{Title: "x"}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if h.Seq() != 3 {
		t.Errorf("seq = %d, want 3", h.Seq())
	}

	missed := h.replay.Since(1)
	if len(missed) != 2 {
		t.Errorf("replay since seq 1: got %d envelopes, want 2", len(missed))
	}
}
