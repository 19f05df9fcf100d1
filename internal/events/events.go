// Package events delivers trade lifecycle events to external channels
// (Telegram, webhooks, Redis streams, WebSocket dashboards).
package events

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// Level represents the severity of an event.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Type classifies a lifecycle event.
type Type string

const (
	TypeTradeCreated  Type = "trade_created"
	TypeStatusChanged Type = "trade_status"
	TypeTradeRejected Type = "trade_rejected"
	TypeSyncSummary   Type = "sync_summary"
)

// Event is one trade lifecycle notification.
type Event struct {
	Type    Type      `json:"type"`
	Level   Level     `json:"level"`
	TradeID int64     `json:"trade_id,omitempty"`
	Broker  string    `json:"broker,omitempty"`
	Symbol  string    `json:"symbol,omitempty"`
	Status  string    `json:"status,omitempty"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	TS      time.Time `json:"ts"`
}

// TradeCreated builds the event for a freshly recorded trade.
func TradeCreated(t *model.Trade) Event {
	return Event{
		Type:    TypeTradeCreated,
		Level:   LevelInfo,
		TradeID: t.ID,
		Broker:  t.Broker,
		Symbol:  t.Symbol,
		Status:  string(t.Status),
		Title:   "Trade created",
		Message: fmt.Sprintf("%s %d x %s on %s", t.Action, t.Quantity, t.Symbol, t.Broker),
		TS:      time.Now().UTC(),
	}
}

// StatusChanged builds the event for a lifecycle transition.
func StatusChanged(t *model.Trade, from model.TradeStatus) Event {
	ev := Event{
		Type:    TypeStatusChanged,
		Level:   LevelInfo,
		TradeID: t.ID,
		Broker:  t.Broker,
		Symbol:  t.Symbol,
		Status:  string(t.Status),
		Title:   fmt.Sprintf("Trade %s", t.Status),
		Message: fmt.Sprintf("trade %d (%s) moved %s -> %s", t.ID, t.Symbol, from, t.Status),
		TS:      time.Now().UTC(),
	}
	switch t.Status {
	case model.StatusRejected:
		ev.Type = TypeTradeRejected
		ev.Level = LevelWarning
		if t.BrokerRejectionReason != "" {
			ev.Message += ": " + t.BrokerRejectionReason
		}
	case model.StatusFailed:
		ev.Level = LevelCritical
		if t.ErrorMessage != "" {
			ev.Message += ": " + t.ErrorMessage
		}
	}
	return ev
}

// SyncSummary builds the event for one reconciliation sweep.
func SyncSummary(checked, updated, failed int) Event {
	return Event{
		Type:    TypeSyncSummary,
		Level:   LevelInfo,
		Title:   "Order sync",
		Message: fmt.Sprintf("checked %d trades, updated %d, %d errors", checked, updated, failed),
		TS:      time.Now().UTC(),
	}
}

// Notifier is the interface for all delivery backends.
type Notifier interface {
	// Send delivers an event. Returns error if delivery fails.
	Send(ctx context.Context, ev Event) error
}

// LogNotifier logs events (useful for development).
type LogNotifier struct{}

func (n *LogNotifier) Send(ctx context.Context, ev Event) error {
	log.Printf("[events] [%s] %s: %s", ev.Level, ev.Title, ev.Message)
	return nil
}

// Bus fans events out to every attached notifier. Delivery is best
// effort: a failing sink is logged and never propagates back into the
// trade path.
type Bus struct {
	mu    sync.RWMutex
	sinks []Notifier
}

// NewBus creates a bus with the given sinks.
func NewBus(sinks ...Notifier) *Bus {
	return &Bus{sinks: sinks}
}

// Attach adds a notifier to the fan-out set.
func (b *Bus) Attach(n Notifier) {
	b.mu.Lock()
	b.sinks = append(b.sinks, n)
	b.mu.Unlock()
}

// Publish delivers ev to every sink.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	sinks := make([]Notifier, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, sink := range sinks {
		if err := sink.Send(ctx, ev); err != nil {
			log.Printf("[events] sink %T error: %v", sink, err)
		}
	}
}
