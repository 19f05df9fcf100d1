package instruments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

type fakeFetcher struct {
	mu      sync.Mutex
	data    []model.Instrument
	calls   int
	block   chan struct{} // when set, Fetch waits until closed
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]model.Instrument, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.data, nil
}

func testData() []model.Instrument {
	return []model.Instrument{
		{Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ", Name: "RELIANCE INDUSTRIES", InstrumentType: "EQ", LotSize: 1},
		{Token: "11536", Exchange: "NSE", TradingSymbol: "TCS-EQ", Name: "TATA CONSULTANCY SERV", InstrumentType: "EQ", LotSize: 1},
		{Token: "43125", Exchange: "NFO", TradingSymbol: "NIFTY28AUG2525000CE", Name: "NIFTY", InstrumentType: "OPTIDX", LotSize: 75},
		{Token: "43126", Exchange: "NFO", TradingSymbol: "NIFTY28AUG2525000PE", Name: "NIFTY", InstrumentType: "OPTIDX", LotSize: 75},
		{Token: "812345", Exchange: "BFO", TradingSymbol: "SENSEX25SEP81000CE", Name: "SENSEX", InstrumentType: "OPTIDX", LotSize: 20},
	}
}

func newTestIndex(t *testing.T, f Fetcher) *Index {
	t.Helper()
	ix := New(f, "", 0, nil)
	if !ix.Load(context.Background(), true) {
		t.Fatal("initial load failed")
	}
	return ix
}

func TestTokenLookupOrder(t *testing.T) {
	ix := newTestIndex(t, &fakeFetcher{data: testData()})

	cases := []struct {
		symbol, exchange string
		wantToken        string
		wantOK           bool
	}{
		{"RELIANCE-EQ", "NSE", "2885", true},         // exact
		{"RELIANCE", "NSE", "2885", true},            // -EQ retry
		{"RELIANCE INDUSTRIES", "NSE", "2885", true}, // name scan (also exact name key)
		{"tata consultancy serv", "NSE", "11536", true},
		{"NIFTY28AUG2525000CE", "NFO", "43125", true},
		{"NOSUCH", "NSE", "", false},
		{"RELIANCE", "BSE", "", false},
	}
	for _, tc := range cases {
		got, ok := ix.Token(tc.symbol, tc.exchange)
		if ok != tc.wantOK || got != tc.wantToken {
			t.Errorf("Token(%q, %q) = %q, %v; want %q, %v",
				tc.symbol, tc.exchange, got, ok, tc.wantToken, tc.wantOK)
		}
	}
}

func TestLoadIdempotent(t *testing.T) {
	f := &fakeFetcher{data: testData()}
	ix := newTestIndex(t, f)

	before := make(map[string]string)
	for _, in := range testData() {
		tok, ok := ix.Token(in.TradingSymbol, in.Exchange)
		if !ok {
			t.Fatalf("Token(%q) missing before reload", in.TradingSymbol)
		}
		before[in.Key()] = tok
	}

	if !ix.Load(context.Background(), true) {
		t.Fatal("reload failed")
	}
	for _, in := range testData() {
		tok, ok := ix.Token(in.TradingSymbol, in.Exchange)
		if !ok || tok != before[in.Key()] {
			t.Errorf("Token(%q) changed across identical reloads: %q -> %q",
				in.TradingSymbol, before[in.Key()], tok)
		}
	}
	if f.calls != 2 {
		t.Errorf("fetch calls = %d, want 2", f.calls)
	}
}

func TestConcurrentLoadRejected(t *testing.T) {
	block := make(chan struct{})
	f := &fakeFetcher{data: testData(), block: block}
	ix := New(f, "", 0, nil)

	done := make(chan bool)
	go func() { done <- ix.Load(context.Background(), true) }()

	// Wait for the first load to be in flight, then race a second one.
	deadline := time.After(2 * time.Second)
	for !ix.loading.Load() {
		select {
		case <-deadline:
			t.Fatal("first load never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if ix.Load(context.Background(), true) {
		t.Error("concurrent load returned true, want false")
	}

	close(block)
	if !<-done {
		t.Error("first load failed")
	}
}

func TestSearch(t *testing.T) {
	ix := newTestIndex(t, &fakeFetcher{data: testData()})
	ctx := context.Background()

	got := ix.Search(ctx, "NIFTY25000", "NFO", 10)
	if len(got) != 0 {
		t.Errorf("Search(NIFTY25000) = %d hits, want 0", len(got))
	}

	got = ix.Search(ctx, "25000CE", "NFO", 10)
	if len(got) != 1 || got[0].Token != "43125" {
		t.Errorf("Search(25000CE) = %v, want single token 43125", got)
	}

	got = ix.Search(ctx, "NIFTY", "NFO", 1)
	if len(got) != 1 {
		t.Errorf("Search limit: got %d hits, want 1", len(got))
	}

	got = ix.Search(ctx, "reliance", "", 10)
	if len(got) != 1 || got[0].Exchange != "NSE" {
		t.Errorf("Search(reliance) = %v, want NSE hit", got)
	}
}

func TestSearchTriggersLoad(t *testing.T) {
	f := &fakeFetcher{data: testData()}
	ix := New(f, "", 0, nil)

	got := ix.Search(context.Background(), "RELIANCE", "NSE", 5)
	if len(got) == 0 {
		t.Fatal("Search on unloaded index returned nothing after implicit load")
	}
	if f.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls)
	}
}

func TestFileCache(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/scrip.json"
	f := &fakeFetcher{data: testData()}

	ix := New(f, path, time.Hour, nil)
	if !ix.Load(context.Background(), false) {
		t.Fatal("load failed")
	}
	if f.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", f.calls)
	}

	// A second index over the same fresh cache must not refetch.
	ix2 := New(f, path, time.Hour, nil)
	if !ix2.Load(context.Background(), false) {
		t.Fatal("cached load failed")
	}
	if f.calls != 1 {
		t.Errorf("fetch calls after cached load = %d, want 1", f.calls)
	}
	if tok, ok := ix2.Token("RELIANCE", "NSE"); !ok || tok != "2885" {
		t.Errorf("Token from cached index = %q, %v", tok, ok)
	}

	// force bypasses the cache.
	if !ix2.Load(context.Background(), true) {
		t.Fatal("forced load failed")
	}
	if f.calls != 2 {
		t.Errorf("fetch calls after forced load = %d, want 2", f.calls)
	}
}
