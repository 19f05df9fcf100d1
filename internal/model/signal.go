package model

// Signal is the structured output of the upstream message parser.
// The core never sees raw chat text, only this shape.
type Signal struct {
	Symbol      string  `json:"symbol"`
	Action      string  `json:"action"` // BUY, SELL
	EntryPrice  float64 `json:"entry_price,omitempty"`
	TargetPrice float64 `json:"target_price,omitempty"`
	StopLoss    float64 `json:"stop_loss,omitempty"`
	Quantity    int64   `json:"quantity,omitempty"`
	Exchange    string  `json:"exchange,omitempty"`
	ProductType string  `json:"product_type,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Reasoning   string  `json:"reasoning,omitempty"`
}
