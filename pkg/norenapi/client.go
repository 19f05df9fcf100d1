// Package norenapi is a REST client for the Noren trading API used by
// Shoonya (Finvasia). Every call is a POST of "jData=<json>&jKey=<token>"
// form data; list endpoints answer with a bare JSON array, everything
// else with an object carrying "stat":"Ok" or "Not_Ok".
package norenapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultHost = "https://api.shoonya.com/NorenWClientTP/"

// ErrNotOk is wrapped into errors produced by "stat":"Not_Ok" replies.
var ErrNotOk = errors.New("norenapi: request rejected")

type Config struct {
	Host      string        // default: Shoonya production host
	Timeout   time.Duration // default: 7s
	RateLimit rate.Limit    // default: 5 rps
}

// Client talks to one Noren session.
type Client struct {
	host       string
	httpClient *http.Client
	limiter    *rate.Limiter

	userID       string
	sessionToken string // susertoken, sent as jKey
}

func New(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5
	}
	return &Client{
		host:       strings.TrimRight(cfg.Host, "/") + "/",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(cfg.RateLimit, int(cfg.RateLimit)),
	}
}

func (c *Client) UserID() string       { return c.userID }
func (c *Client) SessionToken() string { return c.sessionToken }

// SetSession restores a persisted session without a fresh login.
func (c *Client) SetSession(userID, sessionToken string) {
	c.userID = userID
	c.sessionToken = sessionToken
}

// Hash returns the hex sha256 the API expects for passwords and app keys.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (c *Client) post(ctx context.Context, endpoint string, jData map[string]any, withKey bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("norenapi: rate limiter: %w", err)
	}
	payload, err := json.Marshal(jData)
	if err != nil {
		return nil, fmt.Errorf("norenapi: encode jData: %w", err)
	}
	body := "jData=" + string(payload)
	if withKey {
		body += "&jKey=" + c.sessionToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+endpoint, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("norenapi: %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("norenapi: read response: %w", err)
	}
	return raw, nil
}

// postObject calls an endpoint that answers with a single JSON object.
func (c *Client) postObject(ctx context.Context, endpoint string, jData map[string]any, withKey bool) (map[string]any, error) {
	raw, err := c.post(ctx, endpoint, jData, withKey)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("norenapi: parse %s response: %w", endpoint, err)
	}
	if stat, _ := out["stat"].(string); stat != "Ok" {
		emsg, _ := out["emsg"].(string)
		return out, fmt.Errorf("%w: %s: %s", ErrNotOk, endpoint, emsg)
	}
	return out, nil
}

// postList calls an endpoint that answers with a JSON array on success
// and an error object otherwise.
func (c *Client) postList(ctx context.Context, endpoint string, jData map[string]any) ([]map[string]any, error) {
	raw, err := c.post(ctx, endpoint, jData, true)
	if err != nil {
		return nil, err
	}
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("norenapi: parse %s response: %w", endpoint, err)
	}
	emsg, _ := obj["emsg"].(string)
	return nil, fmt.Errorf("%w: %s: %s", ErrNotOk, endpoint, emsg)
}

// ---- sessions ----

// Login authenticates with a pre-hashed password and a fresh OTP. The
// app key is sha256("<uid>|<apiKey>") per the vendor contract.
func (c *Client) Login(ctx context.Context, userID, passwordHash, otp, vendorCode, apiKey, imei string) (map[string]any, error) {
	if imei == "" {
		imei = "abc1234"
	}
	res, err := c.postObject(ctx, "QuickAuth", map[string]any{
		"uid":        userID,
		"pwd":        passwordHash,
		"factor2":    otp,
		"vc":         vendorCode,
		"appkey":     Hash(userID + "|" + apiKey),
		"imei":       imei,
		"apkversion": "1.0.0",
		"source":     "API",
	}, false)
	if err != nil {
		return res, err
	}
	c.userID = userID
	if tok, _ := res["susertoken"].(string); tok != "" {
		c.sessionToken = tok
	}
	return res, nil
}

// Logout invalidates the session token.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.postObject(ctx, "Logout", map[string]any{"uid": c.userID}, true)
	if err == nil {
		c.sessionToken = ""
	}
	return err
}

// UserDetails validates the session with a live call.
func (c *Client) UserDetails(ctx context.Context) (map[string]any, error) {
	return c.postObject(ctx, "UserDetails", map[string]any{"uid": c.userID}, true)
}

// ---- orders ----

// PlaceOrder submits an order; the vendor order number comes back as
// "norenordno".
func (c *Client) PlaceOrder(ctx context.Context, params map[string]any) (map[string]any, error) {
	params["uid"] = c.userID
	params["actid"] = c.userID
	return c.postObject(ctx, "PlaceOrder", params, true)
}

func (c *Client) ModifyOrder(ctx context.Context, params map[string]any) (map[string]any, error) {
	params["uid"] = c.userID
	return c.postObject(ctx, "ModifyOrder", params, true)
}

func (c *Client) CancelOrder(ctx context.Context, orderNo string) (map[string]any, error) {
	return c.postObject(ctx, "CancelOrder", map[string]any{
		"uid": c.userID, "norenordno": orderNo,
	}, true)
}

// OrderBook returns every order for the day.
func (c *Client) OrderBook(ctx context.Context) ([]map[string]any, error) {
	return c.postList(ctx, "OrderBook", map[string]any{"uid": c.userID})
}

// SingleOrderHistory returns the state transitions of one order,
// newest first.
func (c *Client) SingleOrderHistory(ctx context.Context, orderNo string) ([]map[string]any, error) {
	return c.postList(ctx, "SingleOrdHist", map[string]any{
		"uid": c.userID, "norenordno": orderNo,
	})
}

// ---- portfolio & market data ----

func (c *Client) Positions(ctx context.Context) ([]map[string]any, error) {
	return c.postList(ctx, "PositionBook", map[string]any{
		"uid": c.userID, "actid": c.userID,
	})
}

func (c *Client) Holdings(ctx context.Context) ([]map[string]any, error) {
	return c.postList(ctx, "Holdings", map[string]any{
		"uid": c.userID, "actid": c.userID, "prd": "C",
	})
}

// Limits returns funds and margin usage.
func (c *Client) Limits(ctx context.Context) (map[string]any, error) {
	return c.postObject(ctx, "Limits", map[string]any{
		"uid": c.userID, "actid": c.userID,
	}, true)
}

// GetQuotes fetches a quote by exchange and instrument token or
// trading symbol; "lp" holds the last traded price.
func (c *Client) GetQuotes(ctx context.Context, exchange, token string) (map[string]any, error) {
	return c.postObject(ctx, "GetQuotes", map[string]any{
		"uid": c.userID, "exch": exchange, "token": token,
	}, true)
}

// SearchScrip runs the vendor-side symbol search; matches arrive under
// "values".
func (c *Client) SearchScrip(ctx context.Context, exchange, text string) (map[string]any, error) {
	return c.postObject(ctx, "SearchScrip", map[string]any{
		"uid": c.userID, "exch": exchange, "stext": text,
	}, true)
}
