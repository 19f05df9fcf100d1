package instruments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/khannoor710/TelegramSignalTrader/internal/model"
)

// ScripMasterURL is the Angel One OpenAPI bulk instrument dump. One
// JSON array covering every segment, refreshed by the vendor daily.
const ScripMasterURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"

// Fetcher supplies the full instrument master dataset. The HTTP
// implementation talks to the vendor; tests feed canned slices.
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.Instrument, error)
}

// scripRecord matches the vendor's wire format. All fields arrive as
// strings, including numeric ones.
type scripRecord struct {
	Token      string `json:"token"`
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Expiry     string `json:"expiry"`
	Strike     string `json:"strike"`
	LotSize    string `json:"lotsize"`
	InstType   string `json:"instrumenttype"`
	ExchSeg    string `json:"exch_seg"`
}

// HTTPFetcher downloads the scrip master over HTTP.
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher for the default scrip master URL.
// The download is ~100MB of JSON so the timeout is generous.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		URL:    ScripMasterURL,
		Client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Fetch downloads and decodes the full dataset.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]model.Instrument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("instruments: build request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("instruments: fetch scrip master: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("instruments: scrip master HTTP %d", resp.StatusCode)
	}

	var records []scripRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("instruments: decode scrip master: %w", err)
	}
	return toInstruments(records), nil
}

func toInstruments(records []scripRecord) []model.Instrument {
	out := make([]model.Instrument, 0, len(records))
	for _, r := range records {
		if r.Token == "" || r.Symbol == "" || r.ExchSeg == "" {
			continue
		}
		out = append(out, model.Instrument{
			Token:          r.Token,
			Exchange:       r.ExchSeg,
			TradingSymbol:  r.Symbol,
			Name:           r.Name,
			InstrumentType: r.InstType,
			Expiry:         r.Expiry,
			Strike:         r.Strike,
			LotSize:        atoiSafe(r.LotSize),
		})
	}
	return out
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
