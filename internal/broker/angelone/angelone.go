// Package angelone implements the broker contract on top of the Angel
// One SmartAPI.
package angelone

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/broker"
	"github.com/khannoor710/TelegramSignalTrader/internal/model"
	"github.com/khannoor710/TelegramSignalTrader/pkg/smartconnect"
)

// ID is the registry identifier for this backend.
const ID = "angelone"

// InstrumentIndex supplies token lookups and forced refreshes.
// Satisfied by *instruments.Index.
type InstrumentIndex interface {
	Token(symbol, exchange string) (string, bool)
	Load(ctx context.Context, force bool) bool
}

// Backend is the Angel One implementation of broker.Broker.
type Backend struct {
	index InstrumentIndex
	log   *slog.Logger

	// OnSessionExpired fires when the vendor invalidates the session
	// mid-flight, so the owner can deactivate stored credentials.
	OnSessionExpired func()

	mu       sync.Mutex
	client   *smartconnect.Client
	clientID string
	loggedIn bool
}

// New builds a logged-out backend.
func New(index InstrumentIndex, log *slog.Logger) *Backend {
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

// Login establishes a session. Persisted tokens are tried first and
// validated with a live profile call; on failure a fresh TOTP login
// runs. Fresh tokens are written back into cfg for the caller to
// persist.
func (b *Backend) Login(ctx context.Context, cfg *model.BrokerConfig) error {
	client := smartconnect.New(smartconnect.Config{
		APIKey:       cfg.APIKey,
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
		FeedToken:    cfg.FeedToken,
		UserID:       cfg.ClientID,
	})
	client.SessionExpiryHook = b.sessionExpired

	// Silent restore from persisted tokens.
	if cfg.AccessToken != "" && time.Now().Before(cfg.TokenExpiry) {
		if _, err := client.GetProfile(ctx); err == nil {
			b.setSession(client, cfg.ClientID)
			b.log.Info("angel one session restored", "client", cfg.ClientID)
			return nil
		}
		b.log.Warn("angel one stored session invalid, logging in fresh")
		client.SetAccessToken("")
	}

	code, err := broker.TOTPCode(cfg.TOTPSecret)
	if err != nil {
		return err
	}
	if _, err := client.GenerateSession(ctx, cfg.ClientID, cfg.Password, code); err != nil {
		return fmt.Errorf("angelone: login: %w", err)
	}

	cfg.AccessToken = client.AccessToken()
	cfg.RefreshToken = client.RefreshToken()
	cfg.FeedToken = client.FeedToken()
	cfg.TokenExpiry = time.Now().Add(20 * time.Hour)

	b.setSession(client, client.UserID())
	b.log.Info("angel one login ok", "client", client.UserID())
	return nil
}

func (b *Backend) setSession(client *smartconnect.Client, clientID string) {
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
	b.log.Warn("angel one session expired")
	if b.OnSessionExpired != nil {
		b.OnSessionExpired()
	}
}

func (b *Backend) api() (*smartconnect.Client, error) {
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
	_, err = api.TerminateSession(ctx, b.clientID)
	b.mu.Lock()
	b.loggedIn = false
	b.client = nil
	b.mu.Unlock()
	return err
}

// MapStatus converts an Angel One order status into the
// vendor-independent order state.
func MapStatus(vendorStatus string) model.OrderState {
	switch strings.ToLower(strings.TrimSpace(vendorStatus)) {
	case "complete":
		return model.OrderExecuted
	case "rejected":
		return model.OrderRejected
	case "cancelled":
		return model.OrderCancelled
	case "open", "pending", "trigger pending", "after market order req received":
		return model.OrderOpen
	default:
		return model.OrderPending
	}
}

// token resolves the instrument token for an order, preferring the
// request's own token over an index lookup.
func (b *Backend) token(req model.OrderRequest) string {
	if req.Token != "" {
		return req.Token
	}
	if b.index != nil {
		if tok, ok := b.index.Token(req.Symbol, req.Exchange); ok {
			return tok
		}
	}
	return ""
}

func orderParams(req model.OrderRequest, token string) map[string]any {
	variety := req.Variety
	if variety == "" {
		variety = "NORMAL"
		if req.OrderType == "SL" || req.OrderType == "SL-M" {
			variety = "STOPLOSS"
		}
	}
	params := map[string]any{
		"variety":         variety,
		"tradingsymbol":   req.Symbol,
		"symboltoken":     token,
		"transactiontype": req.TransactionType,
		"exchange":        req.Exchange,
		"ordertype":       req.OrderType,
		"producttype":     productType(req.ProductType),
		"duration":        "DAY",
		"quantity":        strconv.FormatInt(req.Quantity, 10),
	}
	if req.Price > 0 {
		params["price"] = strconv.FormatFloat(req.Price, 'f', 2, 64)
	}
	if req.TriggerPrice > 0 && (req.OrderType == "SL" || req.OrderType == "SL-M") {
		params["triggerprice"] = strconv.FormatFloat(req.TriggerPrice, 'f', 2, 64)
	}
	if req.Tag != "" {
		params["ordertag"] = req.Tag
	}
	return params
}

func productType(p string) string {
	switch strings.ToUpper(p) {
	case "DELIVERY", "CNC":
		return "DELIVERY"
	case "CARRYFORWARD", "NRML":
		return "CARRYFORWARD"
	default:
		return "INTRADAY"
	}
}

func (b *Backend) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	api, err := b.api()
	if err != nil {
		return model.OrderResult{}, err
	}
	token := b.token(req)
	if token == "" {
		return model.OrderResult{}, fmt.Errorf("%w: %s on %s",
			broker.ErrInstrumentNotFound, req.Symbol, req.Exchange)
	}
	orderID, err := api.PlaceOrder(ctx, orderParams(req, token))
	if err != nil {
		return model.OrderResult{Status: "error", Message: err.Error()}, err
	}
	b.log.Info("angel one order placed", "order_id", orderID, "symbol", req.Symbol)
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
	_, err = api.CancelOrder(ctx, orderID, "NORMAL")
	return err
}

func (b *Backend) ModifyOrder(ctx context.Context, orderID string, req model.OrderRequest) error {
	api, err := b.api()
	if err != nil {
		return err
	}
	params := orderParams(req, b.token(req))
	params["orderid"] = orderID
	_, err = api.ModifyOrder(ctx, params)
	return err
}

func (b *Backend) OrderStatus(ctx context.Context, orderID string) (model.BrokerOrder, error) {
	orders, err := b.AllOrderStatuses(ctx)
	if err != nil {
		return model.BrokerOrder{}, err
	}
	for _, o := range orders {
		if o.OrderID == orderID {
			return o, nil
		}
	}
	return model.BrokerOrder{}, fmt.Errorf("angelone: order %s not in order book", orderID)
}

func (b *Backend) AllOrderStatuses(ctx context.Context) ([]model.BrokerOrder, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	res, err := api.OrderBook(ctx)
	if err != nil {
		return nil, err
	}
	rows, _ := res["data"].([]any)
	out := make([]model.BrokerOrder, 0, len(rows))
	for _, row := range rows {
		o, ok := row.(map[string]any)
		if !ok {
			continue
		}
		vendorStatus, _ := o["orderstatus"].(string)
		bo := model.BrokerOrder{
			OrderID:         str(o["orderid"]),
			VendorStatus:    strings.ToLower(vendorStatus),
			State:           MapStatus(vendorStatus),
			Symbol:          str(o["tradingsymbol"]),
			Exchange:        str(o["exchange"]),
			TransactionType: str(o["transactiontype"]),
			Quantity:        num(o["quantity"]),
			FilledQuantity:  num(o["filledshares"]),
			AveragePrice:    f64(o["averageprice"]),
		}
		if bo.State == model.OrderRejected {
			bo.RejectionReason = str(o["text"])
		}
		out = append(out, bo)
	}
	return out, nil
}

func (b *Backend) Positions(ctx context.Context) ([]map[string]any, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	res, err := api.Position(ctx)
	if err != nil {
		return nil, err
	}
	return rows(res["data"]), nil
}

func (b *Backend) Holdings(ctx context.Context) ([]map[string]any, error) {
	api, err := b.api()
	if err != nil {
		return nil, err
	}
	res, err := api.Holding(ctx)
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
	res, err := api.OrderBook(ctx)
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
	res, err := api.RMSLimit(ctx)
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
	token := b.token(model.OrderRequest{Symbol: symbol, Exchange: exchange})
	if token == "" {
		return 0, fmt.Errorf("%w: %s on %s", broker.ErrInstrumentNotFound, symbol, exchange)
	}
	res, err := api.LTPData(ctx, exchange, symbol, token)
	if err != nil {
		return 0, err
	}
	data, _ := res["data"].(map[string]any)
	ltp := f64(data["ltp"])
	if ltp == 0 {
		return 0, fmt.Errorf("angelone: no ltp for %s", symbol)
	}
	return ltp, nil
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
	var out []model.Instrument
	for _, row := range rows(res["data"]) {
		out = append(out, model.Instrument{
			Token:         str(row["symboltoken"]),
			Exchange:      str(row["exchange"]),
			TradingSymbol: str(row["tradingsymbol"]),
		})
	}
	return out, nil
}

// RefreshInstruments forces a scrip master reload.
func (b *Backend) RefreshInstruments(ctx context.Context) error {
	if b.index == nil {
		return nil
	}
	if !b.index.Load(ctx, true) {
		return fmt.Errorf("angelone: instrument refresh did not run")
	}
	return nil
}

// PlaceBracketOrder uses the ROBO variety with square-off and
// stop-loss offsets relative to the entry price.
func (b *Backend) PlaceBracketOrder(ctx context.Context, req model.BracketOrderRequest) (model.OrderResult, error) {
	api, err := b.api()
	if err != nil {
		return model.OrderResult{}, err
	}
	token := b.token(req.OrderRequest)
	if token == "" {
		return model.OrderResult{}, fmt.Errorf("%w: %s on %s",
			broker.ErrInstrumentNotFound, req.Symbol, req.Exchange)
	}
	params := orderParams(req.OrderRequest, token)
	params["variety"] = "ROBO"
	params["ordertype"] = "LIMIT"
	params["price"] = strconv.FormatFloat(req.Price, 'f', 2, 64)
	params["squareoff"] = strconv.FormatFloat(abs(req.TargetPrice-req.Price), 'f', 2, 64)
	params["stoploss"] = strconv.FormatFloat(abs(req.Price-req.StopLossPrice), 'f', 2, 64)

	orderID, err := api.PlaceOrder(ctx, params)
	if err != nil {
		return model.OrderResult{Status: "error", Message: err.Error()}, err
	}
	return model.OrderResult{
		Status:  "success",
		OrderID: orderID,
		Message: "Bracket order placed successfully",
	}, nil
}

func (b *Backend) PlaceGTTOrder(ctx context.Context, req model.GTTOrderRequest) (model.OrderResult, error) {
	api, err := b.api()
	if err != nil {
		return model.OrderResult{}, err
	}
	token := b.token(req.OrderRequest)
	if token == "" {
		return model.OrderResult{}, fmt.Errorf("%w: %s on %s",
			broker.ErrInstrumentNotFound, req.Symbol, req.Exchange)
	}
	ruleID, err := api.GTTCreateRule(ctx, map[string]any{
		"tradingsymbol":   req.Symbol,
		"symboltoken":     token,
		"exchange":        req.Exchange,
		"transactiontype": req.TransactionType,
		"producttype":     productType(req.ProductType),
		"price":           strconv.FormatFloat(req.LimitPrice, 'f', 2, 64),
		"triggerprice":    strconv.FormatFloat(req.TriggerPrice, 'f', 2, 64),
		"qty":             strconv.FormatInt(req.Quantity, 10),
		"timeperiod":      "365",
	})
	if err != nil {
		return model.OrderResult{Status: "error", Message: err.Error()}, err
	}
	return model.OrderResult{
		Status:  "success",
		OrderID: ruleID,
		Message: fmt.Sprintf("GTT rule created: %s", ruleID),
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

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
