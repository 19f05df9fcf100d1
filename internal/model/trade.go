package model

import "time"

// TradeStatus is the lifecycle status of a trade.
type TradeStatus string

const (
	StatusPending   TradeStatus = "PENDING"
	StatusSubmitted TradeStatus = "SUBMITTED"
	StatusOpen      TradeStatus = "OPEN"
	StatusExecuted  TradeStatus = "EXECUTED"
	StatusRejected  TradeStatus = "REJECTED"
	StatusCancelled TradeStatus = "CANCELLED"
	StatusFailed    TradeStatus = "FAILED"
)

// statusRank orders statuses along the lifecycle. Transitions only move
// to a strictly higher rank; terminal statuses share the top rank so no
// transition out of them is possible.
var statusRank = map[TradeStatus]int{
	StatusPending:   0,
	StatusSubmitted: 1,
	StatusOpen:      2,
	StatusExecuted:  3,
	StatusRejected:  3,
	StatusCancelled: 3,
	StatusFailed:    3,
}

// IsTerminal reports whether s admits no further transitions.
func (s TradeStatus) IsTerminal() bool {
	switch s {
	case StatusExecuted, StatusRejected, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a trade may move from one status to
// another. FAILED is reachable from any non-terminal status; otherwise
// the move must be strictly forward along the lifecycle.
func CanTransition(from, to TradeStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusFailed {
		return true
	}
	fr, ok := statusRank[from]
	if !ok {
		return false
	}
	tr, ok := statusRank[to]
	if !ok {
		return false
	}
	return tr > fr
}

// Trade is one order lifecycle tracked by the orchestrator.
type Trade struct {
	ID       int64  `json:"id"`
	Broker   string `json:"broker"`
	Paper    bool   `json:"paper"`

	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"` // BUY, SELL
	Quantity    int64   `json:"quantity"`
	EntryPrice  float64 `json:"entry_price,omitempty"`
	TargetPrice float64 `json:"target_price,omitempty"`
	StopLoss    float64 `json:"stop_loss,omitempty"`
	OrderType   string  `json:"order_type"`   // MARKET, LIMIT, SL, SL-M
	Exchange    string  `json:"exchange"`     // NSE, BSE, NFO, BFO
	ProductType string  `json:"product_type"` // INTRADAY, DELIVERY, CARRYFORWARD

	OrderID               string      `json:"order_id,omitempty"`
	Status                TradeStatus `json:"status"`
	BrokerStatus          string      `json:"broker_status,omitempty"`
	BrokerRejectionReason string      `json:"broker_rejection_reason,omitempty"`
	AveragePrice          float64     `json:"average_price,omitempty"`
	FilledQuantity        int64       `json:"filled_quantity,omitempty"`
	ExecutionPrice        float64     `json:"execution_price,omitempty"`
	ExecutionTime         time.Time   `json:"execution_time,omitempty"`
	LastStatusCheck       time.Time   `json:"last_status_check,omitempty"`

	Notes        string `json:"notes,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	OrderVariety string `json:"order_variety,omitempty"` // NORMAL, STOPLOSS, AMO

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetStatus applies a lifecycle transition. Returns false and leaves the
// trade untouched when the transition would move backward or out of a
// terminal status.
func (t *Trade) SetStatus(to TradeStatus, now time.Time) bool {
	if !CanTransition(t.Status, to) {
		return false
	}
	t.Status = to
	t.UpdatedAt = now
	return true
}

// TradeStats is an aggregate summary over all recorded trades.
type TradeStats struct {
	Total     int `json:"total"`
	Executed  int `json:"executed"`
	Rejected  int `json:"rejected"`
	Cancelled int `json:"cancelled"`
	Failed    int `json:"failed"`
	Active    int `json:"active"` // PENDING, SUBMITTED or OPEN
}

// PaperTrade is one simulated fill recorded by the paper trading engine.
type PaperTrade struct {
	ID         int64     `json:"id"`
	OrderID    string    `json:"order_id"` // PAPER-<uuid>
	Symbol     string    `json:"symbol"`
	Exchange   string    `json:"exchange"`
	Action     string    `json:"action"`
	Quantity   int64     `json:"quantity"`
	FillPrice  float64   `json:"fill_price"`
	ExecutedAt time.Time `json:"executed_at"`
}
