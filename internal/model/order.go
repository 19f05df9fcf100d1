package model

import "time"

// OrderState is the vendor-independent view of a broker order status.
// Every backend maps its own status vocabulary into exactly these
// values; anything unrecognized is Pending.
type OrderState string

const (
	OrderExecuted  OrderState = "EXECUTED"
	OrderRejected  OrderState = "REJECTED"
	OrderCancelled OrderState = "CANCELLED"
	OrderOpen      OrderState = "OPEN"
	OrderPending   OrderState = "PENDING"
)

// TradeStatusFor converts an order state into the matching trade
// lifecycle status. Pending maps to SUBMITTED because the broker has
// already accepted the order for routing by the time we poll it.
func (s OrderState) TradeStatusFor() TradeStatus {
	switch s {
	case OrderExecuted:
		return StatusExecuted
	case OrderRejected:
		return StatusRejected
	case OrderCancelled:
		return StatusCancelled
	case OrderOpen:
		return StatusOpen
	default:
		return StatusSubmitted
	}
}

// OrderRequest is the vendor-independent order placement spec.
type OrderRequest struct {
	Symbol          string  `json:"symbol"`
	Token           string  `json:"token,omitempty"`
	Exchange        string  `json:"exchange"`
	TransactionType string  `json:"transaction_type"` // BUY, SELL
	OrderType       string  `json:"order_type"`       // MARKET, LIMIT, SL, SL-M
	ProductType     string  `json:"product_type"`     // INTRADAY, DELIVERY, CARRYFORWARD
	Variety         string  `json:"variety,omitempty"`
	Quantity        int64   `json:"quantity"`
	Price           float64 `json:"price,omitempty"`
	TriggerPrice    float64 `json:"trigger_price,omitempty"`
	Tag             string  `json:"tag,omitempty"`
}

// BracketOrderRequest carries an entry order with linked target and
// stop-loss legs. All three prices must be present.
type BracketOrderRequest struct {
	OrderRequest
	TargetPrice   float64 `json:"target_price"`
	StopLossPrice float64 `json:"stop_loss_price"`
}

// GTTOrderRequest is a good-till-triggered conditional order.
type GTTOrderRequest struct {
	OrderRequest
	TriggerAbove bool    `json:"trigger_above"`
	LimitPrice   float64 `json:"limit_price,omitempty"`
	LastPrice    float64 `json:"last_price,omitempty"`
}

// OrderResult is the outcome of an order placement call.
type OrderResult struct {
	Status  string `json:"status"` // success, error
	OrderID string `json:"order_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK reports whether the placement was accepted by the vendor.
func (r OrderResult) OK() bool { return r.Status == "success" }

// BrokerOrder is one normalized entry from a broker's order book.
// VendorStatus keeps the raw string for diagnostics; State is the
// mapped vendor-independent view.
type BrokerOrder struct {
	OrderID         string     `json:"order_id"`
	VendorStatus    string     `json:"vendor_status"`
	State           OrderState `json:"state"`
	Symbol          string     `json:"symbol,omitempty"`
	Exchange        string     `json:"exchange,omitempty"`
	TransactionType string     `json:"transaction_type,omitempty"`
	Quantity        int64      `json:"quantity,omitempty"`
	FilledQuantity  int64      `json:"filled_quantity,omitempty"`
	AveragePrice    float64    `json:"average_price,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at,omitempty"`
}
