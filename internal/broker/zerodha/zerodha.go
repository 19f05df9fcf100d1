// Package zerodha implements the broker contract on top of the Kite
// Connect v3 API.
package zerodha

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/broker"
	"github.com/khannoor710/TelegramSignalTrader/internal/model"
	"github.com/khannoor710/TelegramSignalTrader/pkg/kiteconnect"
)

// ID is the registry identifier for this backend.
const ID = "zerodha"

// InstrumentSearcher backs SearchSymbols; Kite has no server-side
// search endpoint so lookups run against the local instrument index.
type InstrumentSearcher interface {
	Search(ctx context.Context, query, exchange string, limit int) []model.Instrument
	Load(ctx context.Context, force bool) bool
}

// Backend is the Zerodha implementation of broker.Broker.
type Backend struct {
	index InstrumentSearcher
	log   *slog.Logger

	// OnSessionExpired fires when the vendor invalidates the session
	// mid-flight.
	OnSessionExpired func()

	mu       sync.Mutex
	client   *kiteconnect.Client
	clientID string
	loggedIn bool
}

// New builds a logged-out backend.
func New(index InstrumentSearcher, log *slog.Logger) *Backend {
	if log == nil {
		log = slog.Default()
	}
	return &Backend{index: index, log: log}
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

// Login establishes a session. A persisted access token is tried first
// and validated with a live profile call; failing that, a request
// token from the OAuth redirect is exchanged. Kite has no headless
// credential login, so with neither token present the caller gets an
// error naming the login URL to visit.
func (b *Backend) Login(ctx context.Context, cfg *model.BrokerConfig) error {
	client := kiteconnect.New(kiteconnect.Config{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
	})
	client.SessionExpiryHook = b.sessionExpired

	if cfg.AccessToken != "" {
		client.SetAccessToken(cfg.AccessToken)
		if _, err := client.Profile(ctx); err == nil {
			b.setSession(client, cfg.ClientID)
			b.log.Info("zerodha session restored", "client", cfg.ClientID)
			return nil
		}
		b.log.Warn("zerodha stored session invalid")
		client.SetAccessToken("")
	}

	if cfg.RequestToken == "" {
		return fmt.Errorf("zerodha: no session; complete browser login at https://kite.trade/connect/login?v=3&api_key=%s", cfg.APIKey)
	}
	if _, err := client.GenerateSession(ctx, cfg.RequestToken); err != nil {
		return fmt.Errorf("zerodha: login: %w", err)
	}

	cfg.AccessToken = client.AccessToken()
	cfg.RequestToken = "" // single use
	cfg.TokenExpiry = endOfTradingDay(time.Now())

	b.setSession(client, cfg.ClientID)
	b.log.Info("zerodha login ok", "client", cfg.ClientID)
	return nil
}

// Kite access tokens die at 6 AM the next day; expire them a little
// earlier.
func endOfTradingDay(now time.Time) time.Time {
	next := now.AddDate(0, 0, 1)
	return time.Date(next.Year(), next.Month(), next.Day(), 5, 0, 0, 0, now.Location())
}

func (b *Backend) setSession(client *kiteconnect.Client, clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.client = client
	b.clientID = clientID
	b.loggedIn = true
}

func (b *Backend) sessionExpired() {
	b.mu.Lock()
	b.loggedIn = false
	b.mu.Unlock()
	b.log.Warn("zerodha session expired")
	if b.OnSessionExpired != nil {
		b.OnSessionExpired()
	}
}

func (b *Backend) api() (*kiteconnect.Client, error) {
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
	err = api.InvalidateSession(ctx)
	b.mu.Lock()
	b.loggedIn = false
	b.client = nil
	b.mu.Unlock()
	return err
}

// MapStatus converts a Kite order status into the vendor-independent
// order state.
func MapStatus(vendorStatus string) model.OrderState {
	switch strings.ToLower(strings.TrimSpace(vendorStatus)) {
	case "complete":
		return model.OrderExecuted
	case "rejected":
		return model.OrderRejected
	case "cancelled":
		return model.OrderCancelled
	case "open", "pending", "trigger pending":
		return model.OrderOpen
	default:
		return model.OrderPending
	}
}

// kiteSymbol strips the Angel-style "-EQ" suffix; Kite equity symbols
// are bare.
func kiteSymbol(symbol string) string {
	return strings.TrimSuffix(symbol, "-EQ")
}

func product(p string) string {
	switch strings.ToUpper(p) {
	case "DELIVERY", "CNC":
		return "CNC"
	case "CARRYFORWARD", "NRML", "MARGIN":
		return "NRML"
	default:
		return "MIS"
	}
}

func orderParams(req model.OrderRequest) url.Values {
	params := url.Values{}
	params.Set("tradingsymbol", kiteSymbol(req.Symbol))
	params.Set("exchange", req.Exchange)
	params.Set("transaction_type", req.TransactionType)
	params.Set("order_type", req.OrderType)
	params.Set("quantity", strconv.FormatInt(req.Quantity, 10))
	params.Set("product", product(req.ProductType))
	params.Set("validity", "DAY")
	if req.Price > 0 {
		params.Set("price", strconv.FormatFloat(req.Price, 'f', 2, 64))
	}
	if req.TriggerPrice > 0 {
		params.Set("trigger_price", strconv.FormatFloat(req.TriggerPrice, 'f', 2, 64))
	}
	if req.Tag != "" {
		params.Set("tag", req.Tag)
	}
	return params
}

func (b *Backend) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	api, err := b.api()
	if err != nil {
		return model.OrderResult{}, err
	}
	orderID, err := api.PlaceOrder(ctx, kiteconnect.VarietyRegular, orderParams(req))
	if err != nil {
		return model.OrderResult{Status: "error", Message: err.Error()}, err
	}
	b.log.Info("zerodha order placed", "order_id", orderID, "symbol", req.Symbol)
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
	return api.CancelOrder(ctx, kiteconnect.VarietyRegular, orderID)
}

func (b *Backend) ModifyOrder(ctx context.Context, orderID string, req model.OrderRequest) error {
	api, err := b.api()
	if err != nil {
		return err
	}
	params := url.Values{}
	if req.Quantity > 0 {
		params.Set("quantity", strconv.FormatInt(req.Quantity, 10))
	}
	if req.Price > 0 {
		params.Set("price", strconv.FormatFloat(req.Price, 'f', 2, 64))
	}
	if req.OrderType != "" {
		params.Set("order_type", req.OrderType)
	}
	return api.ModifyOrder(ctx, kiteconnect.VarietyRegular, orderID, params)
}

func (b *Backend) OrderStatus(ctx context.Context, orderID string) (model.BrokerOrder, error) {
	api, err := b.api()
	if err != nil {
		return model.BrokerOrder{}, err
	}
	res, err := api.OrderHistory(ctx, orderID)
	if err != nil {
		return model.BrokerOrder{}, err
	}
	history := rows(res["data"])
	if len(history) == 0 {
		return model.BrokerOrder{}, fmt.Errorf("zerodha: order %s not found", orderID)
	}
	return toBrokerOrder(history[len(history)-1]), nil
}

func (b *Backend) AllOrderStatuses(ctx context.Context) ([]model.BrokerOrder, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	res, err := api.Orders(ctx)
	if err != nil {
		return nil, err
	}
	list := rows(res["data"])
	out := make([]model.BrokerOrder, 0, len(list))
	for _, o := range list {
		out = append(out, toBrokerOrder(o))
	}
	return out, nil
}

func toBrokerOrder(o map[string]any) model.BrokerOrder {
	vendorStatus := str(o["status"])
	bo := model.BrokerOrder{
		OrderID:         str(o["order_id"]),
		VendorStatus:    strings.ToLower(vendorStatus),
		State:           MapStatus(vendorStatus),
		Symbol:          str(o["tradingsymbol"]),
		Exchange:        str(o["exchange"]),
		TransactionType: str(o["transaction_type"]),
		Quantity:        num(o["quantity"]),
		FilledQuantity:  num(o["filled_quantity"]),
		AveragePrice:    f64(o["average_price"]),
	}
	if bo.State == model.OrderRejected {
		bo.RejectionReason = str(o["status_message"])
	}
	return bo
}

func (b *Backend) Positions(ctx context.Context) ([]map[string]any, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	res, err := api.Positions(ctx)
	if err != nil {
		return nil, err
	}
	data, _ := res["data"].(map[string]any)
	return rows(data["net"]), nil
}

func (b *Backend) Holdings(ctx context.Context) ([]map[string]any, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	res, err := api.Holdings(ctx)
	if err != nil {
		return nil, err
	}
	return rows(res["data"]), nil
}

func (b *Backend) OrderBook(ctx context.Context) ([]map[string]any, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	res, err := api.Orders(ctx)
	if err != nil {
		return nil, err
	}
	return rows(res["data"]), nil
}

func (b *Backend) Funds(ctx context.Context) (map[string]any, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	res, err := api.Margins(ctx)
	if err != nil {
		return nil, err
	}
	data, _ := res["data"].(map[string]any)
	return data, nil
}

func (b *Backend) LTP(ctx context.Context, symbol, exchange string) (float64, error) {
	api, err := b.api()
	if err != nil {
		return 0, err
	}
	key := exchange + ":" + kiteSymbol(symbol)
	res, err := api.LTP(ctx, key)
	if err != nil {
		return 0, err
	}
	data, _ := res["data"].(map[string]any)
	quote, _ := data[key].(map[string]any)
	ltp := f64(quote["last_price"])
	if ltp == 0 {
		return 0, fmt.Errorf("zerodha: no ltp for %s", key)
	}
	return ltp, nil
}

// SearchSymbols runs against the local instrument index; Kite has no
// search endpoint.
func (b *Backend) SearchSymbols(ctx context.Context, query, exchange string) ([]model.Instrument, error) {
	if !b.IsLoggedIn() {
		return nil, broker.ErrNotLoggedIn
	}
	if b.index == nil {
		return nil, nil
	}
	return b.index.Search(ctx, query, exchange, 20), nil
}

func (b *Backend) RefreshInstruments(ctx context.Context) error {
	if !b.IsLoggedIn() {
		return broker.ErrNotLoggedIn
	}
	if b.index == nil {
		return nil
	}
	if !b.index.Load(ctx, true) {
		return fmt.Errorf("zerodha: instrument refresh did not run")
	}
	return nil
}

// PlaceBracketOrder always fails: the vendor discontinued bracket
// orders in 2020. GTT triggers are the supported replacement.
func (b *Backend) PlaceBracketOrder(ctx context.Context, req model.BracketOrderRequest) (model.OrderResult, error) {
	return model.OrderResult{}, fmt.Errorf(
		"%w: zerodha discontinued bracket orders, use GTT orders for target/stoploss triggers",
		broker.ErrUnsupported)
}

func (b *Backend) PlaceGTTOrder(ctx context.Context, req model.GTTOrderRequest) (model.OrderResult, error) {
	api, err := b.api()
	if err != nil {
		return model.OrderResult{}, err
	}
	sym := kiteSymbol(req.Symbol)
	lastPrice := req.LastPrice
	if lastPrice == 0 {
		lastPrice = req.TriggerPrice
	}
	condition := map[string]any{
		"exchange":       req.Exchange,
		"tradingsymbol":  sym,
		"trigger_values": []float64{req.TriggerPrice},
		"last_price":     lastPrice,
	}
	order := map[string]any{
		"exchange":         req.Exchange,
		"tradingsymbol":    sym,
		"transaction_type": req.TransactionType,
		"quantity":         req.Quantity,
		"order_type":       req.OrderType,
		"product":          product(req.ProductType),
		"price":            req.LimitPrice,
	}
	res, err := api.PlaceGTT(ctx, condition, order)
	if err != nil {
		return model.OrderResult{Status: "error", Message: err.Error()}, err
	}
	data, _ := res["data"].(map[string]any)
	triggerID := ""
	if id, ok := data["trigger_id"].(float64); ok {
		triggerID = strconv.FormatInt(int64(id), 10)
	}
	return model.OrderResult{
		Status:  "success",
		OrderID: triggerID,
		Message: fmt.Sprintf("GTT trigger created: %s", triggerID),
	}, nil
}

// ---- payload coercion helpers ----

func rows(v any) []map[string]any {
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

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
