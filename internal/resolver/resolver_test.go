package resolver

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// fakeIndex is a minimal in-memory InstrumentIndex.
type fakeIndex struct {
	data []model.Instrument
}

func (f *fakeIndex) Token(symbol, exchange string) (string, bool) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	for _, in := range f.data {
		if in.Exchange == exchange && strings.ToUpper(in.TradingSymbol) == sym {
			return in.Token, true
		}
	}
	if exchange == "NSE" && !strings.HasSuffix(sym, "-EQ") {
		return f.Token(sym+"-EQ", exchange)
	}
	return "", false
}

func (f *fakeIndex) Search(ctx context.Context, query, exchange string, limit int) []model.Instrument {
	q := strings.ToUpper(query)
	var out []model.Instrument
	for _, in := range f.data {
		if exchange != "" && in.Exchange != exchange {
			continue
		}
		if strings.Contains(strings.ToUpper(in.TradingSymbol), q) ||
			strings.Contains(strings.ToUpper(in.Name), q) {
			out = append(out, in)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Monday 2025-08-25, well before any expiry cutoff.
var testClock = func() time.Time {
	return time.Date(2025, time.August, 25, 10, 0, 0, 0, time.UTC)
}

func newResolver(data []model.Instrument) *Resolver {
	r := New(&fakeIndex{data: data}, Overrides{}, nil)
	r.SetClock(testClock)
	return r
}

func TestResolveObserverSeesOutcome(t *testing.T) {
	r := newResolver([]model.Instrument{
		{Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ", Name: "RELIANCE INDUSTRIES"},
	})
	var seen []model.ResolvedSymbol
	r.OnResolve = func(res model.ResolvedSymbol) { seen = append(seen, res) }

	r.Resolve(context.Background(), "RELIANCE", "NSE")
	r.Resolve(context.Background(), "NIFTY 25000 CE", "")

	if len(seen) != 2 {
		t.Fatalf("observer saw %d outcomes, want 2", len(seen))
	}
	if !seen[0].Confirmed() {
		t.Errorf("first outcome unconfirmed: %+v", seen[0])
	}
	if seen[1].Confirmed() {
		t.Errorf("constructed option reported as confirmed: %+v", seen[1])
	}
}

func TestResolveEquityExact(t *testing.T) {
	r := newResolver([]model.Instrument{
		{Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ", Name: "RELIANCE INDUSTRIES"},
	})

	got := r.Resolve(context.Background(), "RELIANCE", "NSE")
	if !got.Success || got.ResolvedSymbol != "RELIANCE-EQ" || got.Token != "2885" {
		t.Errorf("Resolve(RELIANCE) = %+v", got)
	}
	if got.InstrumentType != "EQUITY" {
		t.Errorf("instrument type = %q, want EQUITY", got.InstrumentType)
	}
}

func TestResolveEquityAliases(t *testing.T) {
	r := newResolver([]model.Instrument{
		{Token: "1333", Exchange: "NSE", TradingSymbol: "HDFCBANK-EQ", Name: "HDFC BANK"},
		{Token: "3045", Exchange: "NSE", TradingSymbol: "SBIN-EQ", Name: "STATE BANK OF INDIA"},
	})

	cases := []struct {
		raw, wantSymbol, wantToken string
	}{
		{"HDFC", "HDFCBANK-EQ", "1333"},
		{"HDFC BANK", "HDFCBANK-EQ", "1333"},
		{"SBI", "SBIN-EQ", "3045"},
		{"STATE BANK OF INDIA", "SBIN-EQ", "3045"},
	}
	for _, tc := range cases {
		got := r.Resolve(context.Background(), tc.raw, "NSE")
		if !got.Success || got.ResolvedSymbol != tc.wantSymbol || got.Token != tc.wantToken {
			t.Errorf("Resolve(%q) = %+v, want %s/%s", tc.raw, got, tc.wantSymbol, tc.wantToken)
		}
	}
}

func TestResolveEquityUnknown(t *testing.T) {
	r := newResolver(nil)

	got := r.Resolve(context.Background(), "NOSUCHSTOCK", "NSE")
	if got.Success {
		t.Errorf("unknown equity resolved: %+v", got)
	}
	if got.ResolvedSymbol != "NOSUCHSTOCK-EQ" {
		t.Errorf("resolved = %q, want NOSUCHSTOCK-EQ fallback", got.ResolvedSymbol)
	}
	if got.Token != "" {
		t.Errorf("token = %q, want empty", got.Token)
	}
}

func TestResolveOptionUnconfirmed(t *testing.T) {
	r := newResolver(nil)

	got := r.Resolve(context.Background(), "NIFTY 25000 CE", "NSE")
	if !got.Success {
		t.Fatalf("unconfirmed option must still succeed: %+v", got)
	}
	if got.Token != "" {
		t.Errorf("token = %q, want empty for unconfirmed", got.Token)
	}
	pattern := regexp.MustCompile(`^NIFTY\d{2}[A-Z]{3}\d{2}25000CE$`)
	if !pattern.MatchString(got.ResolvedSymbol) {
		t.Errorf("resolved = %q, want match for %s", got.ResolvedSymbol, pattern)
	}
	if !strings.Contains(got.Message, "unvalidated") {
		t.Errorf("message = %q, want unvalidated warning", got.Message)
	}
	if got.Exchange != "NFO" {
		t.Errorf("exchange = %q, want NFO", got.Exchange)
	}
}

func TestResolveOptionConfirmed(t *testing.T) {
	r := newResolver([]model.Instrument{
		{Token: "43126", Exchange: "NFO", TradingSymbol: "NIFTY04SEP2525000CE", Name: "NIFTY"},
		{Token: "43125", Exchange: "NFO", TradingSymbol: "NIFTY28AUG2525000CE", Name: "NIFTY"},
		{Token: "43200", Exchange: "NFO", TradingSymbol: "NIFTY28AUG2525000PE", Name: "NIFTY"},
	})

	got := r.Resolve(context.Background(), "NIFTY 25000 CE", "NSE")
	if !got.Success || got.Token == "" {
		t.Fatalf("Resolve = %+v, want confirmed match", got)
	}
	// Lexicographically earliest CE symbol wins: "NIFTY04..." < "NIFTY28...".
	if got.ResolvedSymbol != "NIFTY04SEP2525000CE" || got.Token != "43126" {
		t.Errorf("resolved = %q token %q, want NIFTY04SEP2525000CE/43126 (lexicographic pick)",
			got.ResolvedSymbol, got.Token)
	}
}

func TestResolveOptionExpiryHintFilter(t *testing.T) {
	r := newResolver([]model.Instrument{
		{Token: "1", Exchange: "NFO", TradingSymbol: "NIFTY04SEP2525000CE", Name: "NIFTY"},
		{Token: "2", Exchange: "NFO", TradingSymbol: "NIFTY28AUG2525000CE", Name: "NIFTY"},
	})

	got := r.Resolve(context.Background(), "NIFTY 25000 CE AUG", "NSE")
	if got.Token != "2" || got.ResolvedSymbol != "NIFTY28AUG2525000CE" {
		t.Errorf("hinted resolve = %+v, want AUG contract token 2", got)
	}
}

func TestResolveOptionNormalizesCallPut(t *testing.T) {
	r := newResolver(nil)

	got := r.Resolve(context.Background(), "BANKNIFTY 52000 PUT", "NSE")
	if !strings.HasSuffix(got.ResolvedSymbol, "52000PE") {
		t.Errorf("PUT not normalized to PE: %q", got.ResolvedSymbol)
	}
	got = r.Resolve(context.Background(), "BANKNIFTY 52000 CALL", "NSE")
	if !strings.HasSuffix(got.ResolvedSymbol, "52000CE") {
		t.Errorf("CALL not normalized to CE: %q", got.ResolvedSymbol)
	}
}

func TestResolveSensexRoutesToBFO(t *testing.T) {
	r := newResolver(nil)

	got := r.Resolve(context.Background(), "SENSEX 81000 CE", "NSE")
	if got.Exchange != "BFO" {
		t.Errorf("SENSEX option exchange = %q, want BFO", got.Exchange)
	}
	got = r.Resolve(context.Background(), "BANKEX 62000 PE", "NSE")
	if got.Exchange != "BFO" {
		t.Errorf("BANKEX option exchange = %q, want BFO", got.Exchange)
	}
	got = r.Resolve(context.Background(), "FINNIFTY 24000 CE", "NSE")
	if got.Exchange != "NFO" {
		t.Errorf("FINNIFTY option exchange = %q, want NFO", got.Exchange)
	}
}

func TestResolveFuture(t *testing.T) {
	r := newResolver([]model.Instrument{
		{Token: "56789", Exchange: "NFO", TradingSymbol: "TCS25AUGFUT", Name: "TCS"},
	})

	got := r.Resolve(context.Background(), "TCS FUT", "NSE")
	if !got.Success || got.Token != "56789" || got.ResolvedSymbol != "TCS25AUGFUT" {
		t.Errorf("Resolve(TCS FUT) = %+v", got)
	}
	if got.InstrumentType != "FUTURE" {
		t.Errorf("instrument type = %q, want FUTURE", got.InstrumentType)
	}

	got = r.Resolve(context.Background(), "INFY FUTURE", "NSE")
	if !got.Success || got.Token != "" || got.ResolvedSymbol != "INFY25AUGFUT" {
		t.Errorf("Resolve(INFY FUTURE) = %+v, want unconfirmed INFY25AUGFUT", got)
	}
}

func TestResolveDeterminism(t *testing.T) {
	r := newResolver([]model.Instrument{
		{Token: "43125", Exchange: "NFO", TradingSymbol: "NIFTY28AUG2525000CE", Name: "NIFTY"},
		{Token: "2885", Exchange: "NSE", TradingSymbol: "RELIANCE-EQ", Name: "RELIANCE INDUSTRIES"},
	})
	for _, raw := range []string{"RELIANCE", "NIFTY 25000 CE", "TCS FUT", "UNKNOWN"} {
		a := r.Resolve(context.Background(), raw, "NSE")
		b := r.Resolve(context.Background(), raw, "NSE")
		if a != b {
			t.Errorf("Resolve(%q) not deterministic: %+v vs %+v", raw, a, b)
		}
	}
}

func TestWeeklyExpiry(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		hint string
		want string
	}{
		{"monday", time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC), "", "28AUG25"},
		{"thursday before cutoff", time.Date(2025, 8, 28, 14, 59, 0, 0, time.UTC), "", "28AUG25"},
		{"thursday at cutoff", time.Date(2025, 8, 28, 15, 0, 0, 0, time.UTC), "", "04SEP25"},
		{"friday", time.Date(2025, 8, 29, 9, 0, 0, 0, time.UTC), "", "04SEP25"},
		{"month hint ahead", time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC), "DEC", "02DEC25"},
		{"month hint rollover", time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC), "JAN", "02JAN26"},
		{"month hint current", time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC), "AUG", "02AUG25"},
		{"year boundary", time.Date(2025, 12, 29, 10, 0, 0, 0, time.UTC), "", "01JAN26"},
	}
	for _, tc := range cases {
		if got := weeklyExpiry(tc.now, tc.hint); got != tc.want {
			t.Errorf("%s: weeklyExpiry = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestMonthlyExpiry(t *testing.T) {
	now := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		hint, want string
	}{
		{"", "25AUG"},
		{"SEP", "25SEP"},
		{"JAN", "26JAN"},
		{"AUG", "25AUG"},
	}
	for _, tc := range cases {
		if got := monthlyExpiry(now, tc.hint); got != tc.want {
			t.Errorf("monthlyExpiry(hint=%q) = %q, want %q", tc.hint, got, tc.want)
		}
	}
}

func TestOverridesMerge(t *testing.T) {
	ov := Overrides{
		Aliases: map[string][]string{"ETERNAL": {"ZOMATO"}},
		Routing: map[string]string{"NIFTYNXT50": "NFO"},
	}
	r := New(&fakeIndex{data: []model.Instrument{
		{Token: "5097", Exchange: "NSE", TradingSymbol: "ETERNAL-EQ", Name: "ETERNAL"},
	}}, ov, nil)
	r.SetClock(testClock)

	got := r.Resolve(context.Background(), "ZOMATO", "NSE")
	if !got.Success || got.ResolvedSymbol != "ETERNAL-EQ" {
		t.Errorf("override alias resolve = %+v", got)
	}
}
