package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-console/internal/config"
	"futures-console/internal/core"
)

type AuthType int

const (
	AuthNone AuthType = iota
	AuthSigned
)

// Client is a signed REST client for the Binance USDⓈ-M futures API. Per-symbol
// exchange info is cached on first use and never refreshed for the lifetime of
// the client.
type Client struct {
	apiKey            string
	apiSecret         string
	baseURL           string
	wsBaseURL         string
	clientOrderPrefix string
	recvWindow        time.Duration
	httpClient        *http.Client
	log               *zap.Logger

	mu          sync.Mutex
	symbolCache map[string]symbolInfo
}

type Options struct {
	APIKey            string
	APISecret         string
	RestBaseURL       string
	WSBaseURL         string
	ClientOrderPrefix string
	RecvWindowMs      int64
	HTTPTimeoutSec    int64
	Logger            *zap.Logger
}

func NewClient(cfg config.ExchangeConfig, instanceID string, log *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("api_key/api_secret required")
	}
	return NewClientWithOptions(Options{
		APIKey:            cfg.APIKey,
		APISecret:         cfg.APISecret,
		RestBaseURL:       cfg.RestBaseURL,
		WSBaseURL:         cfg.WSBaseURL,
		ClientOrderPrefix: instanceID,
		RecvWindowMs:      cfg.RecvWindowMs,
		HTTPTimeoutSec:    cfg.HTTPTimeoutSec,
		Logger:            log,
	}), nil
}

func NewClientWithOptions(opts Options) *Client {
	timeout := 15 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		apiKey:            opts.APIKey,
		apiSecret:         opts.APISecret,
		baseURL:           strings.TrimRight(opts.RestBaseURL, "/"),
		wsBaseURL:         strings.TrimRight(opts.WSBaseURL, "/"),
		clientOrderPrefix: normalizeClientOrderPrefix(opts.ClientOrderPrefix),
		recvWindow:        time.Duration(opts.RecvWindowMs) * time.Millisecond,
		httpClient:        &http.Client{Timeout: timeout},
		log:               log,
		symbolCache:       make(map[string]symbolInfo),
	}
}

func (c *Client) Name() string { return "binance-futures" }

// ServerTime fetches the exchange clock; used as the startup connectivity check.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/time", url.Values{}, AuthNone)
	if err != nil {
		return time.Time{}, err
	}
	var resp serverTimeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(resp.ServerTime), nil
}

func (c *Client) Account(ctx context.Context) (core.Account, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/account", url.Values{}, AuthSigned)
	if err != nil {
		return core.Account{}, err
	}
	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Account{}, err
	}
	acct := core.Account{CanTrade: resp.CanTrade}
	acct.TotalWallet, _ = decimal.NewFromString(resp.TotalWalletBalance)
	for _, a := range resp.Assets {
		wallet, _ := decimal.NewFromString(a.WalletBalance)
		available, _ := decimal.NewFromString(a.AvailableBalance)
		acct.Balances = append(acct.Balances, core.Balance{
			Asset:     a.Asset,
			Wallet:    wallet,
			Available: available,
		})
	}
	return acct, nil
}

func (c *Client) GetRules(ctx context.Context, symbol string) (core.Rules, error) {
	info, err := c.getSymbolInfo(ctx, symbol)
	if err != nil {
		return core.Rules{}, err
	}
	return info.rules, nil
}

// EnsureTradable fails when the symbol is unknown or not in TRADING status.
func (c *Client) EnsureTradable(ctx context.Context, symbol string) error {
	info, err := c.getSymbolInfo(ctx, symbol)
	if err != nil {
		return err
	}
	if info.status != "TRADING" {
		return fmt.Errorf("%w: %s status %s", core.ErrSymbolNotTrading, symbol, info.status)
	}
	return nil
}

func (c *Client) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, AuthNone)
	if err != nil {
		return decimal.Zero, err
	}
	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(resp.Price)
}

func (c *Client) PlaceOrder(ctx context.Context, order core.Order) (core.Order, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", string(order.Side))
	params.Set("type", string(order.Type))
	params.Set("quantity", order.Qty.String())
	if order.Type == core.Limit {
		tif := order.TimeInForce
		if tif == "" {
			tif = core.GTC
		}
		params.Set("timeInForce", string(tif))
		params.Set("price", order.Price.String())
	}
	clientID := order.ClientID
	if clientID == "" {
		clientID = c.newClientOrderID()
	}
	params.Set("newClientOrderId", clientID)

	body, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, AuthSigned)
	if err != nil {
		return core.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Order{}, err
	}
	placed := resp.toOrder()
	c.log.Info("order placed",
		zap.String("symbol", placed.Symbol),
		zap.String("side", string(placed.Side)),
		zap.String("type", string(placed.Type)),
		zap.String("qty", placed.Qty.String()),
		zap.String("order_id", placed.ID),
	)
	return placed, nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)
	_, err := c.doRequest(ctx, http.MethodDelete, "/fapi/v1/order", params, AuthSigned)
	if err != nil {
		return err
	}
	c.log.Info("order canceled", zap.String("symbol", symbol), zap.String("order_id", orderID))
	return nil
}

func (c *Client) QueryOrder(ctx context.Context, symbol, orderID, clientID string) (core.Order, error) {
	if symbol == "" {
		return core.Order{}, errors.New("symbol required")
	}
	if orderID == "" && clientID == "" {
		return core.Order{}, errors.New("orderID or clientID required")
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	if orderID != "" {
		params.Set("orderId", orderID)
	} else {
		params.Set("origClientOrderId", clientID)
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/order", params, AuthSigned)
	if err != nil {
		return core.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Order{}, err
	}
	return resp.toOrder(), nil
}

// OpenOrders lists open orders; an empty symbol queries across all symbols.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/openOrders", params, AuthSigned)
	if err != nil {
		return nil, err
	}
	var resp []orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	orders := make([]core.Order, 0, len(resp))
	for _, ord := range resp {
		orders = append(orders, ord.toOrder())
	}
	return orders, nil
}

func (c *Client) newClientOrderID() string {
	return fmt.Sprintf("%s-%d", c.clientOrderPrefix, time.Now().UnixNano())
}

func normalizeClientOrderPrefix(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	b := strings.Builder{}
	for _, r := range v {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		return "fc"
	}
	if len(out) > 16 {
		out = out[:16]
	}
	return out
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, auth AuthType) ([]byte, error) {
	if auth == AuthSigned {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		if c.recvWindow > 0 {
			params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
		}
		params.Set("signature", sign(c.apiSecret, params.Encode()))
	}
	var (
		req *http.Request
		err error
	)
	urlStr := c.baseURL + path
	if method == http.MethodGet || method == http.MethodDelete {
		if encoded := params.Encode(); encoded != "" {
			urlStr += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, urlStr, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, urlStr, strings.NewReader(params.Encode()))
	}
	if err != nil {
		return nil, err
	}
	if method != http.MethodGet && method != http.MethodDelete {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if auth == AuthSigned {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		apiErr := parseAPIError(resp.StatusCode, body)
		c.log.Warn("api request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Error(apiErr),
		)
		return nil, apiErr
	}
	return body, nil
}

func parseAPIError(status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Msg != "" {
		return wrapAPIError(apiErr.Code, apiErr.Msg)
	}
	return fmt.Errorf("binance http error %d: %s", status, strings.TrimSpace(string(body)))
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) getSymbolInfo(ctx context.Context, symbol string) (symbolInfo, error) {
	if symbol == "" {
		return symbolInfo{}, errors.New("symbol is required")
	}
	c.mu.Lock()
	if info, ok := c.symbolCache[symbol]; ok {
		c.mu.Unlock()
		return info, nil
	}
	c.mu.Unlock()

	params := url.Values{}
	params.Set("symbol", symbol)
	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", params, AuthNone)
	if err != nil {
		return symbolInfo{}, err
	}
	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return symbolInfo{}, err
	}
	if len(resp.Symbols) == 0 {
		return symbolInfo{}, fmt.Errorf("%w: %s", core.ErrInvalidSymbol, symbol)
	}
	info := parseSymbolInfo(resp.Symbols[0])
	c.mu.Lock()
	c.symbolCache[symbol] = info
	c.mu.Unlock()
	return info, nil
}
