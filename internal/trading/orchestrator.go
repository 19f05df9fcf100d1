package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/broker"
	"github.com/khannoor710/TelegramSignalTrader/internal/events"
	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// defaultStatusDelay is the pause between order submission and the
// first status poll, giving the vendor time to route the order.
const defaultStatusDelay = 2 * time.Second

// SymbolResolver turns a raw signal symbol into a tradable ticker.
type SymbolResolver interface {
	Resolve(ctx context.Context, rawSymbol, exchange string) model.ResolvedSymbol
}

// PaperPlacer simulates fills when paper trading is enabled.
type PaperPlacer interface {
	PlaceOrder(ctx context.Context, req model.OrderRequest, ltp float64) (*model.PaperTrade, error)
}

// Orchestrator drives one trade through its lifecycle: resolve the
// symbol, place the order, record the transitions, poll the status.
// Resolution failures never abort a trade; the constructed symbol is
// used best-effort and the warning lands in the trade's notes.
type Orchestrator struct {
	trades   model.TradeStore
	settings model.SettingsStore
	registry *broker.Registry
	resolver SymbolResolver
	paper    PaperPlacer
	bus      *events.Bus
	log      *slog.Logger

	statusDelay time.Duration
	now         func() time.Time
}

// New creates an orchestrator. bus may be nil to disable events.
func New(trades model.TradeStore, settings model.SettingsStore, registry *broker.Registry, res SymbolResolver, paper PaperPlacer, bus *events.Bus, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		trades:      trades,
		settings:    settings,
		registry:    registry,
		resolver:    res,
		paper:       paper,
		bus:         bus,
		log:         log,
		statusDelay: defaultStatusDelay,
		now:         time.Now,
	}
}

// SetStatusDelay overrides the post-submission poll delay for tests.
func (o *Orchestrator) SetStatusDelay(d time.Duration) { o.statusDelay = d }

// SetClock overrides the orchestrator clock for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Execute runs one signal through the full lifecycle. orderType is the
// gate's decision (MARKET or LIMIT); empty defaults to MARKET.
func (o *Orchestrator) Execute(ctx context.Context, sig model.Signal, orderType string) (*model.Trade, error) {
	settings, err := o.settings.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: read settings: %w", err)
	}

	t, res := o.newTrade(ctx, sig, settings, orderType)
	if err := o.trades.CreateTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("orchestrator: create trade: %w", err)
	}
	o.publish(ctx, events.TradeCreated(t))

	b, _ := o.registry.GetActive(ctx, o.settings)

	if settings.PaperTradingEnabled {
		return t, o.executePaper(ctx, t, b, res)
	}
	return t, o.executeReal(ctx, t, b, func(b broker.Broker) (model.OrderResult, error) {
		return b.PlaceOrder(ctx, o.orderRequest(t, res))
	})
}

// ExecuteBracket places an entry order with linked target and stop-loss
// legs. All three prices must be present.
func (o *Orchestrator) ExecuteBracket(ctx context.Context, sig model.Signal) (*model.Trade, error) {
	if sig.EntryPrice <= 0 || sig.TargetPrice <= 0 || sig.StopLoss <= 0 {
		return nil, fmt.Errorf("orchestrator: bracket order requires entry, target and stop-loss prices")
	}

	settings, err := o.settings.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: read settings: %w", err)
	}

	t, res := o.newTrade(ctx, sig, settings, "LIMIT")
	t.OrderVariety = "BRACKET"
	if err := o.trades.CreateTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("orchestrator: create trade: %w", err)
	}
	o.publish(ctx, events.TradeCreated(t))

	b, _ := o.registry.GetActive(ctx, o.settings)

	if settings.PaperTradingEnabled {
		return t, o.executePaper(ctx, t, b, res)
	}
	return t, o.executeReal(ctx, t, b, func(b broker.Broker) (model.OrderResult, error) {
		return b.PlaceBracketOrder(ctx, model.BracketOrderRequest{
			OrderRequest:  o.orderRequest(t, res),
			TargetPrice:   sig.TargetPrice,
			StopLossPrice: sig.StopLoss,
		})
	})
}

// newTrade builds the PENDING trade row from a signal, applying
// settings defaults and best-effort symbol resolution.
func (o *Orchestrator) newTrade(ctx context.Context, sig model.Signal, settings model.AppSettings, orderType string) (*model.Trade, model.ResolvedSymbol) {
	exchange := sig.Exchange
	if exchange == "" {
		exchange = "NSE"
	}
	qty := sig.Quantity
	if qty <= 0 {
		qty = settings.DefaultQuantity
	}
	if qty <= 0 {
		qty = 1
	}
	product := sig.ProductType
	if product == "" {
		product = settings.DefaultProductType
	}
	if product == "" {
		product = "INTRADAY"
	}
	if orderType == "" {
		orderType = "MARKET"
	}

	brokerID := settings.ActiveBroker
	if brokerID == "" {
		brokerID = o.registry.DefaultID()
	}

	t := &model.Trade{
		Broker:      brokerID,
		Paper:       settings.PaperTradingEnabled,
		Symbol:      sig.Symbol,
		Action:      sig.Action,
		Quantity:    qty,
		EntryPrice:  sig.EntryPrice,
		TargetPrice: sig.TargetPrice,
		StopLoss:    sig.StopLoss,
		OrderType:   orderType,
		Exchange:    exchange,
		ProductType: product,
		Status:      model.StatusPending,
	}

	res := o.resolver.Resolve(ctx, sig.Symbol, exchange)
	if res.ResolvedSymbol != "" {
		t.Symbol = res.ResolvedSymbol
	}
	if res.Exchange != "" {
		t.Exchange = res.Exchange
	}
	if !res.Success {
		t.Notes = "Symbol resolution failed: " + res.Message
		o.log.Warn("symbol resolution failed, proceeding best-effort",
			"symbol", sig.Symbol, "message", res.Message)
	} else if !res.Confirmed() {
		t.Notes = res.Message
		o.log.Warn("symbol unconfirmed, proceeding best-effort",
			"symbol", sig.Symbol, "resolved", res.ResolvedSymbol)
	}
	return t, res
}

func (o *Orchestrator) orderRequest(t *model.Trade, res model.ResolvedSymbol) model.OrderRequest {
	price := 0.0
	if t.OrderType == "LIMIT" {
		price = t.EntryPrice
	}
	return model.OrderRequest{
		Symbol:          t.Symbol,
		Token:           res.Token,
		Exchange:        t.Exchange,
		TransactionType: t.Action,
		OrderType:       t.OrderType,
		ProductType:     t.ProductType,
		Quantity:        t.Quantity,
		Price:           price,
	}
}

// executePaper fills the trade instantly through the simulator. The
// broker, when logged in, only supplies a reference price.
func (o *Orchestrator) executePaper(ctx context.Context, t *model.Trade, b broker.Broker, res model.ResolvedSymbol) error {
	ltp := 0.0
	if b != nil && b.IsLoggedIn() {
		if v, err := b.LTP(ctx, t.Symbol, t.Exchange); err == nil {
			ltp = v
		}
	}

	req := o.orderRequest(t, res)
	req.Price = t.EntryPrice
	pt, err := o.paper.PlaceOrder(ctx, req, ltp)
	if err != nil {
		return o.fail(ctx, t, err.Error())
	}

	now := o.now().UTC()
	t.OrderID = pt.OrderID
	t.SetStatus(model.StatusSubmitted, now)
	if err := o.trades.UpdateTrade(ctx, t); err != nil {
		return fmt.Errorf("orchestrator: update trade %d: %w", t.ID, err)
	}
	o.publish(ctx, events.StatusChanged(t, model.StatusPending))

	t.SetStatus(model.StatusExecuted, now)
	t.ExecutionPrice = pt.FillPrice
	t.AveragePrice = pt.FillPrice
	t.FilledQuantity = t.Quantity
	t.ExecutionTime = pt.ExecutedAt
	if err := o.trades.UpdateTrade(ctx, t); err != nil {
		return fmt.Errorf("orchestrator: update trade %d: %w", t.ID, err)
	}
	o.publish(ctx, events.StatusChanged(t, model.StatusSubmitted))
	return nil
}

// executeReal submits through the live broker and polls once after a
// short delay.
func (o *Orchestrator) executeReal(ctx context.Context, t *model.Trade, b broker.Broker, place func(broker.Broker) (model.OrderResult, error)) error {
	if b == nil || !b.IsLoggedIn() {
		return o.fail(ctx, t, "broker not logged in")
	}

	result, err := place(b)
	if err != nil {
		return o.fail(ctx, t, err.Error())
	}
	if !result.OK() {
		return o.fail(ctx, t, result.Message)
	}

	t.OrderID = result.OrderID
	t.SetStatus(model.StatusSubmitted, o.now().UTC())
	if err := o.trades.UpdateTrade(ctx, t); err != nil {
		return fmt.Errorf("orchestrator: update trade %d: %w", t.ID, err)
	}
	o.publish(ctx, events.StatusChanged(t, model.StatusPending))
	o.log.Info("order submitted", "trade", t.ID, "order_id", t.OrderID, "symbol", t.Symbol)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(o.statusDelay):
	}

	bo, err := b.OrderStatus(ctx, t.OrderID)
	if err != nil {
		o.log.Warn("post-submission status check failed", "trade", t.ID, "error", err)
		return nil
	}
	from := t.Status
	if o.applyBrokerOrder(t, bo) {
		if err := o.trades.UpdateTrade(ctx, t); err != nil {
			return fmt.Errorf("orchestrator: update trade %d: %w", t.ID, err)
		}
		o.publish(ctx, events.StatusChanged(t, from))
	} else {
		// LastStatusCheck moved even when the status did not.
		if err := o.trades.UpdateTrade(ctx, t); err != nil {
			return fmt.Errorf("orchestrator: update trade %d: %w", t.ID, err)
		}
	}
	return nil
}

// fail moves the trade to FAILED, concatenating the failure with any
// earlier resolution warning in the notes.
func (o *Orchestrator) fail(ctx context.Context, t *model.Trade, msg string) error {
	from := t.Status
	t.ErrorMessage = msg
	if t.Notes != "" {
		t.Notes = t.Notes + "; " + msg
	} else {
		t.Notes = msg
	}
	t.SetStatus(model.StatusFailed, o.now().UTC())
	if err := o.trades.UpdateTrade(ctx, t); err != nil {
		return fmt.Errorf("orchestrator: update trade %d: %w", t.ID, err)
	}
	o.publish(ctx, events.StatusChanged(t, from))
	o.log.Error("trade failed", "trade", t.ID, "symbol", t.Symbol, "error", msg)
	return nil
}

// applyBrokerOrder folds one broker order-book entry into the trade.
// Returns true when the lifecycle status moved.
func (o *Orchestrator) applyBrokerOrder(t *model.Trade, bo model.BrokerOrder) bool {
	now := o.now().UTC()
	t.LastStatusCheck = now
	t.BrokerStatus = bo.VendorStatus
	if bo.RejectionReason != "" {
		t.BrokerRejectionReason = bo.RejectionReason
	}
	if bo.AveragePrice > 0 {
		t.AveragePrice = bo.AveragePrice
	}
	if bo.FilledQuantity > 0 {
		t.FilledQuantity = bo.FilledQuantity
	}

	to := bo.State.TradeStatusFor()
	if to == t.Status || !t.SetStatus(to, now) {
		return false
	}
	if to == model.StatusExecuted {
		t.ExecutionTime = now
		if t.ExecutionPrice == 0 {
			t.ExecutionPrice = bo.AveragePrice
		}
	}
	return true
}

// SyncResult summarizes one reconciliation sweep.
type SyncResult struct {
	Active  int `json:"active"` // non-terminal trades at sweep start
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// Sync reconciles all non-terminal trades against the active broker's
// order book in a single batch fetch. Trades absent from the order book
// are left unchanged; per-trade errors never abort the sweep.
func (o *Orchestrator) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	active, err := o.trades.ListActiveTrades(ctx)
	if err != nil {
		return res, fmt.Errorf("orchestrator: list active trades: %w", err)
	}
	res.Active = len(active)
	if len(active) == 0 {
		return res, nil
	}

	b, err := o.registry.GetActive(ctx, o.settings)
	if err != nil {
		return res, fmt.Errorf("orchestrator: active broker: %w", err)
	}
	if !b.IsLoggedIn() {
		return res, broker.ErrNotLoggedIn
	}

	orders, err := b.AllOrderStatuses(ctx)
	if err != nil {
		return res, fmt.Errorf("orchestrator: fetch order book: %w", err)
	}
	byID := make(map[string]model.BrokerOrder, len(orders))
	for _, bo := range orders {
		byID[bo.OrderID] = bo
	}

	for _, t := range active {
		if t.Paper || t.OrderID == "" {
			continue
		}
		res.Checked++

		bo, present := byID[t.OrderID]
		if !present {
			// Absence may be a transient API gap, not genuine loss.
			continue
		}

		from := t.Status
		changed := o.applyBrokerOrder(t, bo)
		if err := o.trades.UpdateTrade(ctx, t); err != nil {
			res.Errors++
			o.log.Error("sync: update failed", "trade", t.ID, "error", err)
			continue
		}
		if changed {
			res.Updated++
			o.publish(ctx, events.StatusChanged(t, from))
		}
	}

	o.publish(ctx, events.SyncSummary(res.Checked, res.Updated, res.Errors))
	return res, nil
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if o.bus != nil {
		o.bus.Publish(ctx, ev)
	}
}
