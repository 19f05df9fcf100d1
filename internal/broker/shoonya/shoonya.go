// Package shoonya implements the broker contract on top of the Noren
// API used by Shoonya (Finvasia).
package shoonya

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/khannoor710/TelegramSignalTrader/internal/broker"
	"github.com/khannoor710/TelegramSignalTrader/internal/model"
	"github.com/khannoor710/TelegramSignalTrader/pkg/norenapi"
)

// ID is the registry identifier for this backend.
const ID = "shoonya"

// Backend is the Shoonya implementation of broker.Broker.
type Backend struct {
	log *slog.Logger

	// OnSessionExpired fires when a call reports an invalid session.
	OnSessionExpired func()

	mu       sync.Mutex
	client   *norenapi.Client
	clientID string
	loggedIn bool
}

// New builds a logged-out backend.
func New(log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{log: log}
}

func (b *Backend) IsLoggedIn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loggedIn && b.client != nil
}

func (b *Backend) ClientID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clientID
}

// Login establishes a session. A persisted session token is tried
// first and validated with a live user-details call; on failure the
// full login runs with a sha256 password hash and a fresh TOTP. The
// vendor code travels in cfg.APIKey.
func (b *Backend) Login(ctx context.Context, cfg *model.BrokerConfig) error {
	client := norenapi.New(norenapi.Config{})

	if cfg.AccessToken != "" {
		client.SetSession(cfg.ClientID, cfg.AccessToken)
		if _, err := client.UserDetails(ctx); err == nil {
			b.setSession(client, cfg.ClientID)
			b.log.Info("shoonya session restored", "client", cfg.ClientID)
			return nil
		}
		b.log.Warn("shoonya stored session invalid, logging in fresh")
		client.SetSession("", "")
	}

	code, err := broker.TOTPCode(cfg.TOTPSecret)
	if err != nil {
		return err
	}
	apiSecret := cfg.APISecret
	if apiSecret == "" {
		// The vendor defaults the app key secret to the user id.
		apiSecret = cfg.ClientID
	}
	if _, err := client.Login(ctx, cfg.ClientID, norenapi.Hash(cfg.Password), code, cfg.APIKey, apiSecret, ""); err != nil {
		return fmt.Errorf("shoonya: login: %w", err)
	}

	cfg.AccessToken = client.SessionToken()
	b.setSession(client, cfg.ClientID)
	b.log.Info("shoonya login ok", "client", cfg.ClientID)
	return nil
}

func (b *Backend) setSession(client *norenapi.Client, clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.client = client
	b.clientID = clientID
	b.loggedIn = true
}

func (b *Backend) api() (*norenapi.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loggedIn || b.client == nil {
		return nil, broker.ErrNotLoggedIn
	}
	return b.client, nil
}

func (b *Backend) Logout(ctx context.Context) error {
	api, err := b.api()
	if err != nil {
		return err
	}
	err = api.Logout(ctx)
	b.mu.Lock()
	b.loggedIn = false
	b.client = nil
	b.mu.Unlock()
	return err
}

// MapStatus converts a Noren order status into the vendor-independent
// order state.
func MapStatus(vendorStatus string) model.OrderState {
	switch strings.ToLower(strings.TrimSpace(vendorStatus)) {
	case "complete", "fill":
		return model.OrderExecuted
	case "rejected":
		return model.OrderRejected
	case "cancelled", "cancel":
		return model.OrderCancelled
	case "open", "pending", "trigger_pending":
		return model.OrderOpen
	default:
		return model.OrderPending
	}
}

// norenSymbol defaults bare equity symbols to the "-EQ" series the
// vendor expects.
func norenSymbol(symbol string) string {
	if !strings.Contains(symbol, "-") && !strings.ContainsAny(symbol, "0123456789") {
		return symbol + "-EQ"
	}
	return symbol
}

func priceType(orderType string) string {
	switch strings.ToUpper(orderType) {
	case "LIMIT":
		return "LMT"
	case "SL":
		return "SL-LMT"
	case "SL-M":
		return "SL-MKT"
	default:
		return "MKT"
	}
}

func product(p string) string {
	switch strings.ToUpper(p) {
	case "DELIVERY", "CNC":
		return "C"
	case "MARGIN", "NRML", "CARRYFORWARD":
		return "M"
	default:
		return "I"
	}
}

func tranType(action string) string {
	if strings.EqualFold(action, "SELL") {
		return "S"
	}
	return "B"
}

func (b *Backend) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	api, err := b.api()
	if err != nil {
		return model.OrderResult{}, err
	}
	params := map[string]any{
		"trantype":    tranType(req.TransactionType),
		"prd":         product(req.ProductType),
		"exch":        req.Exchange,
		"tsym":        norenSymbol(req.Symbol),
		"qty":         strconv.FormatInt(req.Quantity, 10),
		"dscqty":      "0",
		"prctyp":      priceType(req.OrderType),
		"prc":         strconv.FormatFloat(req.Price, 'f', 2, 64),
		"ret":         "DAY",
		"remarks":     "API Order",
	}
	if req.TriggerPrice > 0 {
		params["trgprc"] = strconv.FormatFloat(req.TriggerPrice, 'f', 2, 64)
	}
	res, err := api.PlaceOrder(ctx, params)
	if err != nil {
		return model.OrderResult{Status: "error", Message: err.Error()}, err
	}
	orderID := str(res["norenordno"])
	b.log.Info("shoonya order placed", "order_id", orderID, "symbol", req.Symbol)
	return model.OrderResult{
		Status:  "success",
		OrderID: orderID,
		Message: fmt.Sprintf("Order placed successfully: %s", orderID),
	}, nil
}

func (b *Backend) CancelOrder(ctx context.Context, orderID string) error {
	api, err := b.api()
	if err != nil {
		return err
	}
	_, err = api.CancelOrder(ctx, orderID)
	return err
}

func (b *Backend) ModifyOrder(ctx context.Context, orderID string, req model.OrderRequest) error {
	api, err := b.api()
	if err != nil {
		return err
	}
	params := map[string]any{"norenordno": orderID, "exch": req.Exchange, "tsym": norenSymbol(req.Symbol)}
	if req.Quantity > 0 {
		params["qty"] = strconv.FormatInt(req.Quantity, 10)
	}
	if req.Price > 0 {
		params["prc"] = strconv.FormatFloat(req.Price, 'f', 2, 64)
	}
	if req.OrderType != "" {
		params["prctyp"] = priceType(req.OrderType)
	}
	_, err = api.ModifyOrder(ctx, params)
	return err
}

func (b *Backend) OrderStatus(ctx context.Context, orderID string) (model.BrokerOrder, error) {
	api, err := b.api()
	if err != nil {
		return model.BrokerOrder{}, err
	}
	history, err := api.SingleOrderHistory(ctx, orderID)
	if err != nil {
		return model.BrokerOrder{}, err
	}
	if len(history) == 0 {
		return model.BrokerOrder{}, fmt.Errorf("shoonya: order %s not found", orderID)
	}
	// History arrives newest first.
	return toBrokerOrder(history[0]), nil
}

func (b *Backend) AllOrderStatuses(ctx context.Context) ([]model.BrokerOrder, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	list, err := api.OrderBook(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.BrokerOrder, 0, len(list))
	for _, o := range list {
		out = append(out, toBrokerOrder(o))
	}
	return out, nil
}

func toBrokerOrder(o map[string]any) model.BrokerOrder {
	vendorStatus := str(o["status"])
	bo := model.BrokerOrder{
		OrderID:         str(o["norenordno"]),
		VendorStatus:    strings.ToLower(vendorStatus),
		State:           MapStatus(vendorStatus),
		Symbol:          str(o["tsym"]),
		Exchange:        str(o["exch"]),
		TransactionType: str(o["trantype"]),
		Quantity:        num(o["qty"]),
		FilledQuantity:  num(o["fillshares"]),
		AveragePrice:    f64(o["avgprc"]),
	}
	if bo.State == model.OrderRejected {
		bo.RejectionReason = str(o["rejreason"])
	}
	return bo
}

func (b *Backend) Positions(ctx context.Context) ([]map[string]any, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	return api.Positions(ctx)
}

func (b *Backend) Holdings(ctx context.Context) ([]map[string]any, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	return api.Holdings(ctx)
}

func (b *Backend) OrderBook(ctx context.Context) ([]map[string]any, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	return api.OrderBook(ctx)
}

func (b *Backend) Funds(ctx context.Context) (map[string]any, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	res, err := api.Limits(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"available_cash":   f64(res["cash"]),
		"used_margin":      f64(res["marginused"]),
		"payin":            f64(res["payin"]),
	}, nil
}

// LTP resolves the instrument token via vendor-side search, then
// quotes it.
func (b *Backend) LTP(ctx context.Context, symbol, exchange string) (float64, error) {
	api, err := b.api()
	if err != nil {
		return 0, err
	}
	if exchange == "" {
		exchange = "NSE"
	}
	token, err := b.findToken(ctx, norenSymbol(symbol), exchange)
	if err != nil {
		return 0, err
	}
	res, err := api.GetQuotes(ctx, exchange, token)
	if err != nil {
		return 0, err
	}
	ltp := f64(res["lp"])
	if ltp == 0 {
		return 0, fmt.Errorf("shoonya: no ltp for %s", symbol)
	}
	return ltp, nil
}

func (b *Backend) findToken(ctx context.Context, symbol, exchange string) (string, error) {
	matches, err := b.SearchSymbols(ctx, symbol, exchange)
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if strings.EqualFold(m.TradingSymbol, symbol) {
			return m.Token, nil
		}
	}
	if len(matches) > 0 {
		return matches[0].Token, nil
	}
	return "", fmt.Errorf("%w: %s on %s", broker.ErrInstrumentNotFound, symbol, exchange)
}

func (b *Backend) SearchSymbols(ctx context.Context, query, exchange string) ([]model.Instrument, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		exchange = "NSE"
	}
	res, err := api.SearchScrip(ctx, exchange, query)
	if err != nil {
		return nil, err
	}
	values, _ := res["values"].([]any)
	out := make([]model.Instrument, 0, len(values))
	for i, v := range values {
		if i >= 20 {
			break
		}
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.Instrument{
			Token:          str(m["token"]),
			Exchange:       str(m["exch"]),
			TradingSymbol:  str(m["tsym"]),
			Name:           str(m["cname"]),
			InstrumentType: str(m["instname"]),
		})
	}
	return out, nil
}

// RefreshInstruments is a no-op: Noren resolves instruments on demand
// through search, there is no bulk master to reload.
func (b *Backend) RefreshInstruments(ctx context.Context) error {
	if !b.IsLoggedIn() {
		return broker.ErrNotLoggedIn
	}
	return nil
}

// PlaceBracketOrder places a product-B order with linked book-profit
// and book-loss legs.
func (b *Backend) PlaceBracketOrder(ctx context.Context, req model.BracketOrderRequest) (model.OrderResult, error) {
	api, err := b.api()
	if err != nil {
		return model.OrderResult{}, err
	}
	params := map[string]any{
		"trantype":         tranType(req.TransactionType),
		"prd":              "B",
		"exch":             req.Exchange,
		"tsym":             norenSymbol(req.Symbol),
		"qty":              strconv.FormatInt(req.Quantity, 10),
		"dscqty":           "0",
		"prctyp":           "LMT",
		"prc":              strconv.FormatFloat(req.Price, 'f', 2, 64),
		"ret":              "DAY",
		"bpprc":            strconv.FormatFloat(req.TargetPrice, 'f', 2, 64),
		"blprc":            strconv.FormatFloat(req.StopLossPrice, 'f', 2, 64),
	}
	res, err := api.PlaceOrder(ctx, params)
	if err != nil {
		return model.OrderResult{Status: "error", Message: err.Error()}, err
	}
	orderID := str(res["norenordno"])
	return model.OrderResult{
		Status:  "success",
		OrderID: orderID,
		Message: "Bracket order placed successfully",
	}, nil
}

// PlaceGTTOrder always fails: the vendor has no GTT primitive.
func (b *Backend) PlaceGTTOrder(ctx context.Context, req model.GTTOrderRequest) (model.OrderResult, error) {
	return model.OrderResult{}, fmt.Errorf(
		"%w: GTT orders are not supported on shoonya, use bracket orders instead",
		broker.ErrUnsupported)
}

// ---- payload coercion helpers ----

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

func f64(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	}
	return 0
}
