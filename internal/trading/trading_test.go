package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// ── shared fakes ──

type memTrades struct {
	mu       sync.Mutex
	seq      int64
	trades   map[int64]*model.Trade
	history  map[int64][]model.TradeStatus
	countOn  int
	countErr error
}

func newMemTrades() *memTrades {
	return &memTrades{
		trades:  make(map[int64]*model.Trade),
		history: make(map[int64][]model.TradeStatus),
	}
}

func (m *memTrades) CreateTrade(ctx context.Context, t *model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t.ID = m.seq
	cp := *t
	m.trades[t.ID] = &cp
	m.history[t.ID] = append(m.history[t.ID], t.Status)
	return nil
}

func (m *memTrades) GetTrade(ctx context.Context, id int64) (*model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %d not found", id)
	}
	cp := *t
	return &cp, nil
}

func (m *memTrades) UpdateTrade(ctx context.Context, t *model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.trades[t.ID] = &cp
	hist := m.history[t.ID]
	if len(hist) == 0 || hist[len(hist)-1] != t.Status {
		m.history[t.ID] = append(hist, t.Status)
	}
	return nil
}

func (m *memTrades) ListActiveTrades(ctx context.Context) ([]*model.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Trade
	for _, t := range m.trades {
		if !t.Status.IsTerminal() {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memTrades) CountTradesOn(ctx context.Context, day time.Time) (int, error) {
	return m.countOn, m.countErr
}

func (m *memTrades) Stats(ctx context.Context) (model.TradeStats, error) {
	return model.TradeStats{}, nil
}

func (m *memTrades) Close() error { return nil }

type memSettings struct {
	s model.AppSettings
}

func (m *memSettings) GetSettings(ctx context.Context) (model.AppSettings, error) { return m.s, nil }
func (m *memSettings) SaveSettings(ctx context.Context, s model.AppSettings) error {
	m.s = s
	return nil
}

// stubBroker satisfies broker.Broker with canned responses.
type stubBroker struct {
	loggedIn bool
	ltp      float64
	ltpErr   error

	searchHits map[string][]model.Instrument // keyed by exchange
	searchErr  error

	placeResult   model.OrderResult
	placeErr      error
	bracketResult model.OrderResult
	bracketErr    error

	status    model.BrokerOrder
	statusErr error
	book      []model.BrokerOrder
	bookErr   error
}

func (s *stubBroker) IsLoggedIn() bool { return s.loggedIn }
func (s *stubBroker) ClientID() string { return "STUB" }
func (s *stubBroker) Login(ctx context.Context, cfg *model.BrokerConfig) error {
	s.loggedIn = true
	return nil
}
func (s *stubBroker) Logout(ctx context.Context) error { s.loggedIn = false; return nil }
func (s *stubBroker) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResult, error) {
	return s.placeResult, s.placeErr
}
func (s *stubBroker) CancelOrder(ctx context.Context, orderID string) error { return nil }
func (s *stubBroker) ModifyOrder(ctx context.Context, orderID string, req model.OrderRequest) error {
	return nil
}
func (s *stubBroker) OrderStatus(ctx context.Context, orderID string) (model.BrokerOrder, error) {
	return s.status, s.statusErr
}
func (s *stubBroker) AllOrderStatuses(ctx context.Context) ([]model.BrokerOrder, error) {
	return s.book, s.bookErr
}
func (s *stubBroker) Positions(ctx context.Context) ([]map[string]any, error) { return nil, nil }
func (s *stubBroker) Holdings(ctx context.Context) ([]map[string]any, error)  { return nil, nil }
func (s *stubBroker) OrderBook(ctx context.Context) ([]map[string]any, error) { return nil, nil }
func (s *stubBroker) Funds(ctx context.Context) (map[string]any, error)       { return nil, nil }
func (s *stubBroker) LTP(ctx context.Context, symbol, exchange string) (float64, error) {
	return s.ltp, s.ltpErr
}
func (s *stubBroker) SearchSymbols(ctx context.Context, query, exchange string) ([]model.Instrument, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.searchHits[exchange], nil
}
func (s *stubBroker) RefreshInstruments(ctx context.Context) error { return nil }
func (s *stubBroker) PlaceBracketOrder(ctx context.Context, req model.BracketOrderRequest) (model.OrderResult, error) {
	return s.bracketResult, s.bracketErr
}
func (s *stubBroker) PlaceGTTOrder(ctx context.Context, req model.GTTOrderRequest) (model.OrderResult, error) {
	return model.OrderResult{}, errors.New("not implemented")
}

// fakeResolver returns a canned resolution.
type fakeResolver struct {
	res model.ResolvedSymbol
}

func (f *fakeResolver) Resolve(ctx context.Context, rawSymbol, exchange string) model.ResolvedSymbol {
	r := f.res
	if r.Original == "" {
		r.Original = rawSymbol
	}
	return r
}

// fakePaper fills at a fixed price.
type fakePaper struct {
	fillPrice float64
	err       error
	lastReq   model.OrderRequest
	lastLTP   float64
}

func (f *fakePaper) PlaceOrder(ctx context.Context, req model.OrderRequest, ltp float64) (*model.PaperTrade, error) {
	f.lastReq = req
	f.lastLTP = ltp
	if f.err != nil {
		return nil, f.err
	}
	return &model.PaperTrade{
		OrderID:    "PAPER-test-1",
		Symbol:     req.Symbol,
		Exchange:   req.Exchange,
		Action:     req.TransactionType,
		Quantity:   req.Quantity,
		FillPrice:  f.fillPrice,
		ExecutedAt: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
	}, nil
}
