// Package smartconnect is a REST client for the Angel One SmartAPI.
// It covers session management, order entry, order book, LTP, scrip
// search and GTT rules. Payloads follow the vendor's JSON shapes as
// map[string]any; typed translation happens one layer up in the
// angelone backend.
package smartconnect

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	APIKey       string
	AccessToken  string
	RefreshToken string
	FeedToken    string
	UserID       string

	RootURL  string        // default: https://apiconnect.angelone.in
	Timeout  time.Duration // default: 7s
	ProxyURL string        // optional HTTP proxy URL

	ClientPublicIP string
	ClientLocalIP  string
	ClientMAC      string

	// RateLimit caps outbound requests per second. Angel One allows
	// 10 rps on the order APIs; default 8 leaves headroom.
	RateLimit rate.Limit
}

// Client talks to the SmartAPI endpoints on behalf of one session.
type Client struct {
	apiKey       string
	accessToken  string
	refreshToken string
	feedToken    string
	userID       string

	rootURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	// SessionExpiryHook fires on a 403 TokenException so the owner
	// can invalidate persisted tokens.
	SessionExpiryHook func()
}

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",

	"api.order.place":  "/rest/secure/angelbroking/order/v1/placeOrder",
	"api.order.modify": "/rest/secure/angelbroking/order/v1/modifyOrder",
	"api.order.cancel": "/rest/secure/angelbroking/order/v1/cancelOrder",
	"api.order.book":   "/rest/secure/angelbroking/order/v1/getOrderBook",

	"api.ltp.data": "/rest/secure/angelbroking/order/v1/getLtpData",
	"api.rms.limit": "/rest/secure/angelbroking/user/v1/getRMS",
	"api.holding":  "/rest/secure/angelbroking/portfolio/v1/getHolding",
	"api.position": "/rest/secure/angelbroking/order/v1/getPosition",

	"api.search.scrip": "/rest/secure/angelbroking/order/v1/searchScrip",

	"api.gtt.create": "/gtt-service/rest/secure/angelbroking/gtt/v1/createRule",
	"api.gtt.cancel": "/gtt-service/rest/secure/angelbroking/gtt/v1/cancelRule",
	"api.gtt.list":   "/rest/secure/angelbroking/gtt/v1/ruleList",
}

// New builds a SmartAPI client. Network identity headers default to
// best-effort local values; the vendor rejects requests without them.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 8
	}
	if cfg.ClientLocalIP == "" {
		cfg.ClientLocalIP = localIP()
	}
	if cfg.ClientPublicIP == "" {
		cfg.ClientPublicIP = cfg.ClientLocalIP
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = localMAC()
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if cfg.ProxyURL != "" {
		if purl, err := url.Parse(cfg.ProxyURL); err == nil {
			tr.Proxy = http.ProxyURL(purl)
		}
	}

	return &Client{
		apiKey:         cfg.APIKey,
		accessToken:    cfg.AccessToken,
		refreshToken:   cfg.RefreshToken,
		feedToken:      cfg.FeedToken,
		userID:         cfg.UserID,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		httpClient:     &http.Client{Transport: tr, Timeout: cfg.Timeout},
		limiter:        rate.NewLimiter(cfg.RateLimit, int(cfg.RateLimit)),
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, address := range addrs {
			if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
				return ipNet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}

func localMAC() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// ---- token accessors ----

func (c *Client) SetUserID(id string)      { c.userID = id }
func (c *Client) UserID() string           { return c.userID }
func (c *Client) SetAccessToken(t string)  { c.accessToken = t }
func (c *Client) AccessToken() string      { return c.accessToken }
func (c *Client) SetRefreshToken(t string) { c.refreshToken = t }
func (c *Client) RefreshToken() string     { return c.refreshToken }
func (c *Client) SetFeedToken(t string)    { c.feedToken = t }
func (c *Client) FeedToken() string        { return c.feedToken }

// ---- transport ----

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", c.clientLocalIP)
	h.Set("X-ClientPublicIP", c.clientPublicIP)
	h.Set("X-MACAddress", c.clientMAC)
	h.Set("X-PrivateKey", c.apiKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if c.accessToken != "" {
		h.Set("Authorization", "Bearer "+c.accessToken)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, route string, params map[string]any) (map[string]any, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("smartconnect: unknown route %q", route)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("smartconnect: rate limiter: %w", err)
	}

	reqURL := c.rootURL + uri
	var body io.Reader
	if method == http.MethodGet {
		if len(params) > 0 {
			q := url.Values{}
			for k, v := range params {
				q.Set(k, fmt.Sprint(v))
			}
			reqURL += "?" + q.Encode()
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("smartconnect: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	req.Header = c.headers()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("smartconnect: %s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("smartconnect: read response: %w", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("smartconnect: parse response (%d): %w", resp.StatusCode, err)
	}
	if et, ok := out["error_type"].(string); ok && et != "" {
		if c.SessionExpiryHook != nil && resp.StatusCode == http.StatusForbidden && et == "TokenException" {
			c.SessionExpiryHook()
		}
		msg, _ := out["message"].(string)
		return out, fmt.Errorf("smartconnect: %s: %s", et, msg)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, route string, params map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, route, params)
}

func (c *Client) post(ctx context.Context, route string, params map[string]any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, route, params)
}

// ---- sessions ----

// GenerateSession logs in with client code, password and a fresh TOTP,
// storing the jwt/refresh/feed token set on success.
func (c *Client) GenerateSession(ctx context.Context, clientCode, password, totp string) (map[string]any, error) {
	res, err := c.post(ctx, "api.login", map[string]any{
		"clientcode": clientCode, "password": password, "totp": totp,
	})
	if err != nil {
		return res, err
	}
	if st, _ := res["status"].(bool); !st {
		msg, _ := res["message"].(string)
		return res, fmt.Errorf("smartconnect: login failed: %s", msg)
	}
	data, ok := res["data"].(map[string]any)
	if !ok {
		return res, errors.New("smartconnect: unexpected login response format")
	}

	jwtToken, _ := data["jwtToken"].(string)
	refreshToken, _ := data["refreshToken"].(string)
	feedToken, _ := data["feedToken"].(string)
	c.SetAccessToken(jwtToken)
	c.SetRefreshToken(refreshToken)
	c.SetFeedToken(feedToken)

	profile, err := c.GetProfile(ctx)
	if err != nil {
		return profile, err
	}
	if pdata, ok := profile["data"].(map[string]any); ok {
		if cc, _ := pdata["clientcode"].(string); cc != "" {
			c.SetUserID(cc)
		}
	}
	return profile, nil
}

// TerminateSession logs the client code out.
func (c *Client) TerminateSession(ctx context.Context, clientCode string) (map[string]any, error) {
	return c.post(ctx, "api.logout", map[string]any{"clientcode": clientCode})
}

// GenerateToken mints a fresh jwt from a persisted refresh token.
func (c *Client) GenerateToken(ctx context.Context, refreshToken string) (map[string]any, error) {
	res, err := c.post(ctx, "api.token", map[string]any{"refreshToken": refreshToken})
	if err != nil {
		return res, err
	}
	if data, ok := res["data"].(map[string]any); ok {
		if jwt, _ := data["jwtToken"].(string); jwt != "" {
			c.SetAccessToken(jwt)
		}
		if ft, _ := data["feedToken"].(string); ft != "" {
			c.SetFeedToken(ft)
		}
	}
	return res, nil
}

// GetProfile validates the current session with a live call.
func (c *Client) GetProfile(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "api.user.profile", map[string]any{"refreshToken": c.refreshToken})
}

// ---- orders ----

// PlaceOrder submits an order and returns the vendor order id.
func (c *Client) PlaceOrder(ctx context.Context, params map[string]any) (string, error) {
	cleanNil(params)
	res, err := c.post(ctx, "api.order.place", params)
	if err != nil {
		return "", err
	}
	if st, _ := res["status"].(bool); !st {
		msg, _ := res["message"].(string)
		return "", fmt.Errorf("smartconnect: place order failed: %s", msg)
	}
	if data, ok := res["data"].(map[string]any); ok {
		if oid, _ := data["orderid"].(string); oid != "" {
			return oid, nil
		}
	}
	return "", fmt.Errorf("smartconnect: place order: no orderid in response")
}

func (c *Client) ModifyOrder(ctx context.Context, params map[string]any) (map[string]any, error) {
	cleanNil(params)
	return c.post(ctx, "api.order.modify", params)
}

func (c *Client) CancelOrder(ctx context.Context, orderID, variety string) (map[string]any, error) {
	return c.post(ctx, "api.order.cancel", map[string]any{"variety": variety, "orderid": orderID})
}

// OrderBook returns every order for the day.
func (c *Client) OrderBook(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "api.order.book", nil)
}

// ---- portfolio & market data ----

func (c *Client) RMSLimit(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "api.rms.limit", nil)
}

func (c *Client) Position(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "api.position", nil)
}

func (c *Client) Holding(ctx context.Context) (map[string]any, error) {
	return c.get(ctx, "api.holding", nil)
}

// LTPData fetches the last traded price for one instrument.
func (c *Client) LTPData(ctx context.Context, exchange, tradingSymbol, symbolToken string) (map[string]any, error) {
	return c.post(ctx, "api.ltp.data", map[string]any{
		"exchange":      exchange,
		"tradingsymbol": tradingSymbol,
		"symboltoken":   symbolToken,
	})
}

// SearchScrip runs the vendor-side symbol search.
func (c *Client) SearchScrip(ctx context.Context, exchange, query string) (map[string]any, error) {
	return c.post(ctx, "api.search.scrip", map[string]any{
		"exchange": exchange, "searchscrip": query,
	})
}

// ---- GTT ----

func (c *Client) GTTCreateRule(ctx context.Context, params map[string]any) (string, error) {
	cleanNil(params)
	res, err := c.post(ctx, "api.gtt.create", params)
	if err != nil {
		return "", err
	}
	if data, ok := res["data"].(map[string]any); ok {
		if id, _ := data["id"].(string); id != "" {
			return id, nil
		}
		// Some responses carry a numeric rule id.
		if id, ok := data["id"].(float64); ok {
			return fmt.Sprintf("%.0f", id), nil
		}
	}
	return "", fmt.Errorf("smartconnect: gtt create: unexpected response")
}

func (c *Client) GTTCancelRule(ctx context.Context, params map[string]any) (map[string]any, error) {
	cleanNil(params)
	return c.post(ctx, "api.gtt.cancel", params)
}

func (c *Client) GTTList(ctx context.Context, status []string, page, count int) (map[string]any, error) {
	return c.post(ctx, "api.gtt.list", map[string]any{
		"status": status, "page": page, "count": count,
	})
}

// ---- utils ----

func cleanNil(m map[string]any) {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
}
