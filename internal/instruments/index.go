// Package instruments maintains the in-memory instrument index built
// from the vendor scrip master. Lookups run against an immutable
// snapshot that is swapped atomically on refresh, so readers never see
// a partially built index.
package instruments

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// snapshot is one fully built, immutable index generation.
type snapshot struct {
	exact    map[string]model.Instrument // "EXCH:SYMBOL" and "EXCH:NAME"
	all      []model.Instrument
	loadedAt time.Time
}

// Index is the process-wide instrument lookup structure.
type Index struct {
	fetcher   Fetcher
	cachePath string
	cacheTTL  time.Duration
	now       func() time.Time
	log       *slog.Logger

	loading atomic.Bool
	snap    atomic.Pointer[snapshot]
}

// New builds an index backed by the given fetcher and file cache. The
// cache avoids re-downloading the full scrip master on every restart;
// pass cachePath "" to disable it.
func New(fetcher Fetcher, cachePath string, cacheTTL time.Duration, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	return &Index{
		fetcher:   fetcher,
		cachePath: cachePath,
		cacheTTL:  cacheTTL,
		now:       time.Now,
		log:       log,
	}
}

// Loaded reports whether at least one snapshot has been built.
func (ix *Index) Loaded() bool {
	return ix.snap.Load() != nil
}

// Count returns the number of instruments in the current snapshot.
func (ix *Index) Count() int {
	if s := ix.snap.Load(); s != nil {
		return len(s.all)
	}
	return 0
}

// Load refreshes the index. A fresh file cache is used unless force is
// set; otherwise the dataset is fetched and the cache rewritten. Only
// one load runs at a time: concurrent callers get false immediately
// instead of blocking, and keep reading the previous snapshot.
func (ix *Index) Load(ctx context.Context, force bool) bool {
	if !ix.loading.CompareAndSwap(false, true) {
		ix.log.Warn("instrument load already in progress, skipping")
		return false
	}
	defer ix.loading.Store(false)

	var data []model.Instrument
	if !force {
		data = ix.readCache()
	}
	if data == nil {
		fetched, err := ix.fetcher.Fetch(ctx)
		if err != nil {
			ix.log.Error("instrument fetch failed", "error", err)
			return false
		}
		data = fetched
		ix.writeCache(data)
	}
	if len(data) == 0 {
		ix.log.Error("instrument dataset empty, keeping previous snapshot")
		return false
	}

	ix.snap.Store(buildSnapshot(data, ix.now()))
	ix.log.Info("instrument index loaded", "instruments", len(data))
	return true
}

func buildSnapshot(data []model.Instrument, at time.Time) *snapshot {
	s := &snapshot{
		exact:    make(map[string]model.Instrument, len(data)*2),
		all:      data,
		loadedAt: at,
	}
	for _, in := range data {
		s.exact[in.Exchange+":"+strings.ToUpper(in.TradingSymbol)] = in
		if in.Name != "" {
			key := in.Exchange + ":" + strings.ToUpper(in.Name)
			if _, dup := s.exact[key]; !dup {
				s.exact[key] = in
			}
		}
	}
	return s
}

// Token resolves (symbol, exchange) to an instrument token. Lookup
// order: exact symbol, NSE "-EQ" retry for equities, then a
// case-insensitive scan over display names. Returns false when the
// index is unloaded or nothing matches.
func (ix *Index) Token(symbol, exchange string) (string, bool) {
	s := ix.snap.Load()
	if s == nil {
		return "", false
	}
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	exch := strings.ToUpper(strings.TrimSpace(exchange))

	if in, ok := s.exact[exch+":"+sym]; ok {
		return in.Token, true
	}
	if exch == "NSE" && !strings.HasSuffix(sym, "-EQ") {
		if in, ok := s.exact[exch+":"+sym+"-EQ"]; ok {
			return in.Token, true
		}
	}
	for _, in := range s.all {
		if in.Exchange == exch && strings.EqualFold(in.Name, sym) {
			return in.Token, true
		}
	}
	return "", false
}

// Get returns the full instrument record for an exact symbol match.
func (ix *Index) Get(symbol, exchange string) (model.Instrument, bool) {
	s := ix.snap.Load()
	if s == nil {
		return model.Instrument{}, false
	}
	in, ok := s.exact[strings.ToUpper(exchange)+":"+strings.ToUpper(strings.TrimSpace(symbol))]
	return in, ok
}

// Search returns up to limit instruments whose symbol or name contains
// the query, case-insensitive, deduplicated by (token, exchange). An
// unloaded index triggers a load first rather than erroring.
func (ix *Index) Search(ctx context.Context, query, exchange string, limit int) []model.Instrument {
	if !ix.Loaded() {
		ix.Load(ctx, false)
	}
	s := ix.snap.Load()
	if s == nil {
		return nil
	}
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	exch := strings.ToUpper(strings.TrimSpace(exchange))
	if limit <= 0 {
		limit = 20
	}

	seen := make(map[string]struct{}, limit)
	var out []model.Instrument
	for _, in := range s.all {
		if exch != "" && in.Exchange != exch {
			continue
		}
		if !strings.Contains(strings.ToUpper(in.TradingSymbol), q) &&
			!strings.Contains(strings.ToUpper(in.Name), q) {
			continue
		}
		key := in.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, in)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// readCache returns the cached dataset when it is fresher than the TTL,
// nil otherwise.
func (ix *Index) readCache() []model.Instrument {
	if ix.cachePath == "" || ix.cacheTTL <= 0 {
		return nil
	}
	fi, err := os.Stat(ix.cachePath)
	if err != nil || ix.now().Sub(fi.ModTime()) > ix.cacheTTL {
		return nil
	}
	raw, err := os.ReadFile(ix.cachePath)
	if err != nil {
		return nil
	}
	var data []model.Instrument
	if err := json.Unmarshal(raw, &data); err != nil {
		ix.log.Warn("instrument cache corrupt, refetching", "error", err)
		return nil
	}
	return data
}

func (ix *Index) writeCache(data []model.Instrument) {
	if ix.cachePath == "" {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(ix.cachePath), 0o755); err != nil {
		ix.log.Warn("instrument cache dir", "error", err)
		return
	}
	tmp := ix.cachePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		ix.log.Warn("instrument cache write", "error", err)
		return
	}
	if err := os.Rename(tmp, ix.cachePath); err != nil {
		ix.log.Warn("instrument cache rename", "error", err)
	}
}

// SetClock overrides the index clock. Tests only.
func (ix *Index) SetClock(now func() time.Time) { ix.now = now }

var _ fmt.Stringer = (*Index)(nil)

// String describes the current snapshot for diagnostics.
func (ix *Index) String() string {
	s := ix.snap.Load()
	if s == nil {
		return "instruments.Index(unloaded)"
	}
	return fmt.Sprintf("instruments.Index(%d instruments, loaded %s)",
		len(s.all), s.loadedAt.Format(time.RFC3339))
}
