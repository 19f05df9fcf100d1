// Package kiteconnect is a REST client for the Zerodha Kite Connect v3
// API. Requests are form-encoded per the vendor contract; responses
// come back as map[string]any and are translated by the zerodha
// backend.
package kiteconnect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRoot = "https://api.kite.trade"
	kiteVersion = "3"
)

// Varieties accepted by the order endpoints.
const (
	VarietyRegular = "regular"
	VarietyAMO     = "amo"
	VarietyIceberg = "iceberg"
)

type Config struct {
	APIKey      string
	APISecret   string
	AccessToken string

	RootURL   string        // default: https://api.kite.trade
	Timeout   time.Duration // default: 7s
	RateLimit rate.Limit    // default: 5 rps
}

// Client talks to Kite Connect on behalf of one session.
type Client struct {
	apiKey      string
	apiSecret   string
	accessToken string

	rootURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	// SessionExpiryHook fires when the vendor reports a TokenException
	// so the owner can invalidate persisted tokens.
	SessionExpiryHook func()
}

// New builds a Kite Connect client.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	return &Client{
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		accessToken: cfg.AccessToken,
		rootURL:     strings.TrimRight(cfg.RootURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     rate.NewLimiter(cfg.RateLimit, int(cfg.RateLimit)),
	}
}

func (c *Client) SetAccessToken(t string) { c.accessToken = t }
func (c *Client) AccessToken() string     { return c.accessToken }

func (c *Client) do(ctx context.Context, method, path string, params url.Values) (map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("kiteconnect: rate limiter: %w", err)
	}

	reqURL := c.rootURL + path
	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			reqURL += "?" + params.Encode()
		}
	} else if params != nil {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Kite-Version", kiteVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "token "+c.apiKey+":"+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kiteconnect: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kiteconnect: read response: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("kiteconnect: parse response (%d): %w", resp.StatusCode, err)
	}
	if status, _ := out["status"].(string); status == "error" {
		et, _ := out["error_type"].(string)
		msg, _ := out["message"].(string)
		if et == "TokenException" && c.SessionExpiryHook != nil {
			c.SessionExpiryHook()
		}
		return out, fmt.Errorf("kiteconnect: %s: %s", et, msg)
	}
	return out, nil
}

// ---- sessions ----

// GenerateSession exchanges a request token for an access token. The
// checksum is sha256(api_key + request_token + api_secret) per the
// vendor contract.
func (c *Client) GenerateSession(ctx context.Context, requestToken string) (map[string]any, error) {
	sum := sha256.Sum256([]byte(c.apiKey + requestToken + c.apiSecret))
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("request_token", requestToken)
	params.Set("checksum", hex.EncodeToString(sum[:]))

	res, err := c.do(ctx, http.MethodPost, "/session/token", params)
	if err != nil {
		return res, err
	}
	if data, ok := res["data"].(map[string]any); ok {
		if at, _ := data["access_token"].(string); at != "" {
			c.SetAccessToken(at)
		}
	}
	return res, nil
}

// InvalidateSession logs the access token out.
func (c *Client) InvalidateSession(ctx context.Context) error {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("access_token", c.accessToken)
	_, err := c.do(ctx, http.MethodDelete, "/session/token", params)
	return err
}

// Profile validates the session with a live call.
func (c *Client) Profile(ctx context.Context) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/user/profile", nil)
}

// ---- orders ----

// PlaceOrder submits an order and returns the vendor order id.
func (c *Client) PlaceOrder(ctx context.Context, variety string, params url.Values) (string, error) {
	res, err := c.do(ctx, http.MethodPost, "/orders/"+variety, params)
	if err != nil {
		return "", err
	}
	if data, ok := res["data"].(map[string]any); ok {
		if oid, _ := data["order_id"].(string); oid != "" {
			return oid, nil
		}
	}
	return "", fmt.Errorf("kiteconnect: place order: no order_id in response")
}

func (c *Client) ModifyOrder(ctx context.Context, variety, orderID string, params url.Values) error {
	_, err := c.do(ctx, http.MethodPut, "/orders/"+variety+"/"+orderID, params)
	return err
}

func (c *Client) CancelOrder(ctx context.Context, variety, orderID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/orders/"+variety+"/"+orderID, nil)
	return err
}

// Orders returns every order for the day.
func (c *Client) Orders(ctx context.Context) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/orders", nil)
}

// OrderHistory returns the state transitions of one order; the last
// entry is the current state.
func (c *Client) OrderHistory(ctx context.Context, orderID string) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/orders/"+orderID, nil)
}

// ---- portfolio & market data ----

func (c *Client) Positions(ctx context.Context) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/portfolio/positions", nil)
}

func (c *Client) Holdings(ctx context.Context) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/portfolio/holdings", nil)
}

func (c *Client) Margins(ctx context.Context) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, "/user/margins", nil)
}

// LTP fetches last traded prices for instruments given as
// "EXCHANGE:SYMBOL" keys.
func (c *Client) LTP(ctx context.Context, instruments ...string) (map[string]any, error) {
	params := url.Values{}
	for _, in := range instruments {
		params.Add("i", in)
	}
	return c.do(ctx, http.MethodGet, "/quote/ltp", params)
}

// ---- GTT ----

// PlaceGTT creates a single-leg GTT trigger.
func (c *Client) PlaceGTT(ctx context.Context, condition, orders map[string]any) (map[string]any, error) {
	cb, err := json.Marshal(condition)
	if err != nil {
		return nil, fmt.Errorf("kiteconnect: encode gtt condition: %w", err)
	}
	ob, err := json.Marshal([]map[string]any{orders})
	if err != nil {
		return nil, fmt.Errorf("kiteconnect: encode gtt orders: %w", err)
	}
	params := url.Values{}
	params.Set("type", "single")
	params.Set("condition", string(cb))
	params.Set("orders", string(ob))
	return c.do(ctx, http.MethodPost, "/gtt/triggers", params)
}

func (c *Client) DeleteGTT(ctx context.Context, triggerID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/gtt/triggers/"+triggerID, nil)
	return err
}
