package model

// Instrument represents one tradeable instrument from the scrip master.
type Instrument struct {
	Token          string `json:"token"`
	Exchange       string `json:"exchange"`
	TradingSymbol  string `json:"trading_symbol"`
	Name           string `json:"name"`
	InstrumentType string `json:"instrument_type"` // EQ, FUTIDX, FUTSTK, OPTIDX, OPTSTK
	Expiry         string `json:"expiry,omitempty"`
	Strike         string `json:"strike,omitempty"`
	LotSize        int    `json:"lot_size"`
}

// Key returns a unique key for this instrument: "exchange:token".
func (i *Instrument) Key() string {
	return i.Exchange + ":" + i.Token
}

// ResolvedSymbol is the resolver's answer for one raw signal symbol.
// When Success is true, ResolvedSymbol and Exchange are non-empty.
// Token may still be empty for a constructed derivative ticker that
// could not be confirmed against the instrument index.
type ResolvedSymbol struct {
	Original       string `json:"original"`
	ResolvedSymbol string `json:"resolved_symbol"`
	Token          string `json:"token"`
	Exchange       string `json:"exchange"`
	InstrumentType string `json:"instrument_type"` // EQUITY, OPTION, FUTURE
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
}

// Confirmed reports whether the resolution carries an authoritative token.
func (r *ResolvedSymbol) Confirmed() bool {
	return r.Success && r.Token != ""
}
