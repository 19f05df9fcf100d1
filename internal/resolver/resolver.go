// Package resolver translates loosely written signal symbols into
// broker-tradeable tickers. "RELIANCE" becomes "RELIANCE-EQ",
// "NIFTY 25000 CE" becomes a weekly-expiry option ticker confirmed
// against the instrument index whenever possible.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// InstrumentIndex is the lookup surface the resolver needs. Satisfied
// by *instruments.Index.
type InstrumentIndex interface {
	Token(symbol, exchange string) (string, bool)
	Search(ctx context.Context, query, exchange string, limit int) []model.Instrument
}

var (
	optionRe = regexp.MustCompile(`(?i)^(\w+)\s*(\d+(?:\.\d+)?)\s*(CE|PE|CALL|PUT)(?:\s+(\w+))?$`)
	futureRe = regexp.MustCompile(`(?i)^(\w+)\s+FUT(?:URE)?(?:\s+(\w+))?$`)
)

// Resolver resolves raw signal symbols against an instrument index.
type Resolver struct {
	index   InstrumentIndex
	aliases map[string]string // alias -> canonical ticker root
	routing map[string]string // index underlying -> derivatives segment
	now     func() time.Time
	log     *slog.Logger

	// OnResolve, when set, observes every resolution outcome. Set it
	// before the resolver is shared across goroutines.
	OnResolve func(res model.ResolvedSymbol)
}

// New builds a resolver with the built-in alias and routing tables
// merged with any operator overrides.
func New(index InstrumentIndex, ov Overrides, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	aliases := make(map[string]string)
	for canonical, list := range stockAliases {
		for _, a := range list {
			aliases[strings.ToUpper(a)] = canonical
		}
	}
	for canonical, list := range ov.Aliases {
		for _, a := range list {
			aliases[strings.ToUpper(a)] = strings.ToUpper(canonical)
		}
	}
	routing := make(map[string]string, len(indexRouting)+len(ov.Routing))
	for k, v := range indexRouting {
		routing[k] = v
	}
	for k, v := range ov.Routing {
		routing[strings.ToUpper(k)] = strings.ToUpper(v)
	}
	return &Resolver{
		index:   index,
		aliases: aliases,
		routing: routing,
		now:     time.Now,
		log:     log,
	}
}

// SetClock overrides the resolver clock. Tests only.
func (r *Resolver) SetClock(now func() time.Time) { r.now = now }

// derivative holds the parsed components of an option or future
// shorthand.
type derivative struct {
	symbol     string
	strike     string // formatted, decimal stripped when whole
	optionType string // CE or PE, empty for futures
	expiryHint string
	isOption   bool
	exchange   string
}

// Resolve turns a raw signal symbol into a tradeable ticker plus
// token. Resolution never errors: an unconfirmable derivative comes
// back with Success=true and an empty token, an unknown equity with
// Success=false. The result is deterministic for a fixed index
// snapshot and clock.
func (r *Resolver) Resolve(ctx context.Context, rawSymbol, exchange string) model.ResolvedSymbol {
	raw := strings.ToUpper(strings.TrimSpace(rawSymbol))
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	if exchange == "" {
		exchange = "NSE"
	}
	r.log.Info("resolving symbol", "raw", raw, "exchange", exchange)

	var out model.ResolvedSymbol
	if d, ok := r.parseDerivative(raw); ok {
		out = r.resolveDerivative(ctx, d, raw)
	} else {
		out = r.resolveEquity(ctx, raw, exchange)
	}
	if r.OnResolve != nil {
		r.OnResolve(out)
	}
	return out
}

func (r *Resolver) parseDerivative(raw string) (derivative, bool) {
	if m := optionRe.FindStringSubmatch(raw); m != nil {
		sym := strings.ToUpper(m[1])
		optType := strings.ToUpper(m[3])
		switch optType {
		case "CALL":
			optType = "CE"
		case "PUT":
			optType = "PE"
		}
		return derivative{
			symbol:     sym,
			strike:     formatStrike(m[2]),
			optionType: optType,
			expiryHint: strings.ToUpper(m[4]),
			isOption:   true,
			exchange:   r.segmentFor(sym),
		}, true
	}
	if m := futureRe.FindStringSubmatch(raw); m != nil {
		sym := strings.ToUpper(m[1])
		return derivative{
			symbol:     sym,
			expiryHint: strings.ToUpper(m[2]),
			exchange:   r.segmentFor(sym),
		}, true
	}
	return derivative{}, false
}

// segmentFor routes an underlying to its derivatives segment. BSE
// indices go to BFO, everything else to NFO.
func (r *Resolver) segmentFor(symbol string) string {
	if seg, ok := r.routing[symbol]; ok {
		return seg
	}
	return "NFO"
}

func formatStrike(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (r *Resolver) resolveDerivative(ctx context.Context, d derivative, original string) model.ResolvedSymbol {
	if d.isOption {
		if best, ok := r.searchOption(ctx, d); ok {
			r.log.Info("derivative confirmed",
				"original", original, "symbol", best.TradingSymbol, "token", best.Token)
			return model.ResolvedSymbol{
				Original:       original,
				ResolvedSymbol: best.TradingSymbol,
				Token:          best.Token,
				Exchange:       best.Exchange,
				InstrumentType: "OPTION",
				Success:        true,
				Message:        fmt.Sprintf("Found match: %s", best.TradingSymbol),
			}
		}
		constructed := d.symbol + weeklyExpiry(r.now(), d.expiryHint) + d.strike + d.optionType
		return r.unconfirmed(original, constructed, d.exchange, "OPTION")
	}

	constructed := d.symbol + monthlyExpiry(r.now(), d.expiryHint) + "FUT"
	if token, ok := r.index.Token(constructed, d.exchange); ok {
		r.log.Info("future confirmed", "original", original, "symbol", constructed, "token", token)
		return model.ResolvedSymbol{
			Original:       original,
			ResolvedSymbol: constructed,
			Token:          token,
			Exchange:       d.exchange,
			InstrumentType: "FUTURE",
			Success:        true,
			Message:        fmt.Sprintf("Resolved to %s", constructed),
		}
	}
	return r.unconfirmed(original, constructed, d.exchange, "FUTURE")
}

func (r *Resolver) unconfirmed(original, constructed, exchange, instType string) model.ResolvedSymbol {
	r.log.Warn("derivative not validated", "symbol", constructed)
	return model.ResolvedSymbol{
		Original:       original,
		ResolvedSymbol: constructed,
		Token:          "",
		Exchange:       exchange,
		InstrumentType: instType,
		Success:        true,
		Message:        fmt.Sprintf("Constructed symbol (unvalidated): %s", constructed),
	}
}

// searchOption confirms an option shorthand against the index. First a
// combined SYMBOL+STRIKE+TYPE substring search; on a miss, search the
// underlying alone and filter hits requiring both strike and type. Of
// the survivors the lexicographically earliest symbol wins, which for
// vendor tickers approximates the nearest expiry. A month hint narrows
// the candidate set when it matches anything.
func (r *Resolver) searchOption(ctx context.Context, d derivative) (model.Instrument, bool) {
	results := r.index.Search(ctx, d.symbol+d.strike+d.optionType, d.exchange, 20)
	if len(results) == 0 {
		results = r.index.Search(ctx, d.symbol, d.exchange, 50)
	}

	var matching []model.Instrument
	for _, in := range results {
		sym := strings.ToUpper(in.TradingSymbol)
		if strings.Contains(sym, d.strike) &&
			strings.Contains(sym, d.optionType) &&
			strings.Contains(sym, d.symbol) {
			matching = append(matching, in)
		}
	}
	sort.Slice(matching, func(i, j int) bool {
		return matching[i].TradingSymbol < matching[j].TradingSymbol
	})

	if d.expiryHint != "" {
		var filtered []model.Instrument
		for _, in := range matching {
			if strings.Contains(strings.ToUpper(in.TradingSymbol), d.expiryHint) {
				filtered = append(filtered, in)
			}
		}
		if len(filtered) > 0 {
			matching = filtered
		}
	}

	if len(matching) == 0 {
		return model.Instrument{}, false
	}
	return matching[0], true
}

func (r *Resolver) resolveEquity(ctx context.Context, raw, exchange string) model.ResolvedSymbol {
	canonical := raw
	if c, ok := r.aliases[raw]; ok {
		canonical = c
	}

	var candidates []string
	if exchange == "NSE" {
		candidates = []string{canonical + "-EQ", canonical, raw + "-EQ", raw}
	} else {
		candidates = []string{canonical, raw}
	}
	for _, cand := range candidates {
		if token, ok := r.index.Token(cand, exchange); ok {
			r.log.Info("equity resolved", "original", raw, "symbol", cand, "token", token)
			return model.ResolvedSymbol{
				Original:       raw,
				ResolvedSymbol: cand,
				Token:          token,
				Exchange:       exchange,
				InstrumentType: "EQUITY",
				Success:        true,
				Message:        fmt.Sprintf("Resolved to %s", cand),
			}
		}
	}

	if results := r.index.Search(ctx, canonical, exchange, 10); len(results) > 0 {
		for _, in := range results {
			if strings.EqualFold(in.Name, canonical) ||
				strings.EqualFold(in.TradingSymbol, canonical+"-EQ") {
				return model.ResolvedSymbol{
					Original:       raw,
					ResolvedSymbol: in.TradingSymbol,
					Token:          in.Token,
					Exchange:       in.Exchange,
					InstrumentType: "EQUITY",
					Success:        true,
					Message:        fmt.Sprintf("Found match: %s", in.TradingSymbol),
				}
			}
		}
		best := results[0]
		return model.ResolvedSymbol{
			Original:       raw,
			ResolvedSymbol: best.TradingSymbol,
			Token:          best.Token,
			Exchange:       best.Exchange,
			InstrumentType: "EQUITY",
			Success:        true,
			Message:        fmt.Sprintf("Best match: %s", best.TradingSymbol),
		}
	}

	resolved := canonical
	if exchange == "NSE" {
		resolved = canonical + "-EQ"
	}
	r.log.Warn("equity not validated", "symbol", resolved)
	return model.ResolvedSymbol{
		Original:       raw,
		ResolvedSymbol: resolved,
		Token:          "",
		Exchange:       exchange,
		InstrumentType: "EQUITY",
		Success:        false,
		Message:        fmt.Sprintf("Could not validate symbol: %s", resolved),
	}
}
