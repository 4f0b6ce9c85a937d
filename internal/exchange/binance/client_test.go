package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"futures-console/internal/core"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClientWithOptions(Options{
		APIKey:            "test-key",
		APISecret:         "test-secret",
		RestBaseURL:       srv.URL,
		ClientOrderPrefix: "fc-test",
		RecvWindowMs:      5000,
	})
	return client, srv
}

func TestNormalizeClientOrderPrefix(t *testing.T) {
	if got := normalizeClientOrderPrefix(" Console_A1 "); got != "console_a1" {
		t.Fatalf("normalizeClientOrderPrefix() = %q, want %q", got, "console_a1")
	}
	if got := normalizeClientOrderPrefix("!!!"); got != "fc" {
		t.Fatalf("normalizeClientOrderPrefix() = %q, want %q", got, "fc")
	}
	long := strings.Repeat("x", 30)
	if got := normalizeClientOrderPrefix(long); len(got) != 16 {
		t.Fatalf("normalizeClientOrderPrefix(long) len = %d, want 16", len(got))
	}
}

func TestServerTime(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/time" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"serverTime":1736000000000}`)
	}))
	ts, err := client.ServerTime(context.Background())
	if err != nil {
		t.Fatalf("ServerTime() error = %v", err)
	}
	if ts.UnixMilli() != 1736000000000 {
		t.Fatalf("ServerTime() = %d, want 1736000000000", ts.UnixMilli())
	}
}

func TestPlaceOrderSignsAndParses(t *testing.T) {
	var gotQuery url.Values
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/fapi/v1/order" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-MBX-APIKEY") != "test-key" {
			t.Fatalf("missing api key header")
		}
		body, _ := io.ReadAll(r.Body)
		var err error
		gotQuery, err = url.ParseQuery(string(body))
		if err != nil {
			t.Fatalf("parse body: %v", err)
		}
		io.WriteString(w, `{
			"symbol":"BTCUSDT","orderId":12345,"clientOrderId":"fc-test-1",
			"price":"50000.00","avgPrice":"0","origQty":"0.010","executedQty":"0",
			"status":"NEW","timeInForce":"GTC","side":"BUY","type":"LIMIT",
			"updateTime":1736000000123
		}`)
	}))

	order := core.Order{
		Symbol:      "BTCUSDT",
		Side:        core.Buy,
		Type:        core.Limit,
		Price:       decimal.RequireFromString("50000.00"),
		Qty:         decimal.RequireFromString("0.010"),
		TimeInForce: core.GTC,
	}
	placed, err := client.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if placed.ID != "12345" || placed.Status != core.OrderNew {
		t.Fatalf("placed = %+v", placed)
	}
	if !placed.Price.Equal(decimal.RequireFromString("50000.00")) {
		t.Fatalf("placed.Price = %s", placed.Price)
	}

	if gotQuery.Get("symbol") != "BTCUSDT" || gotQuery.Get("side") != "BUY" {
		t.Fatalf("query = %v", gotQuery)
	}
	if gotQuery.Get("type") != "LIMIT" || gotQuery.Get("timeInForce") != "GTC" {
		t.Fatalf("query = %v", gotQuery)
	}
	if gotQuery.Get("quantity") != "0.01" || gotQuery.Get("price") != "50000" {
		t.Fatalf("qty/price = %s/%s", gotQuery.Get("quantity"), gotQuery.Get("price"))
	}
	if !strings.HasPrefix(gotQuery.Get("newClientOrderId"), "fc-test-") {
		t.Fatalf("newClientOrderId = %q", gotQuery.Get("newClientOrderId"))
	}

	// Signature must cover every other parameter.
	sig := gotQuery.Get("signature")
	if sig == "" {
		t.Fatalf("missing signature")
	}
	unsigned := url.Values{}
	for k, vs := range gotQuery {
		if k == "signature" {
			continue
		}
		unsigned[k] = vs
	}
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(unsigned.Encode()))
	if want := hex.EncodeToString(mac.Sum(nil)); sig != want {
		t.Fatalf("signature = %s, want %s", sig, want)
	}
}

func TestMarketOrderOmitsPriceAndTIF(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		q, _ := url.ParseQuery(string(body))
		if q.Get("price") != "" || q.Get("timeInForce") != "" {
			t.Fatalf("market order carried price/tif: %v", q)
		}
		io.WriteString(w, `{"symbol":"BTCUSDT","orderId":7,"status":"FILLED","side":"SELL","type":"MARKET","origQty":"0.01","executedQty":"0.01","avgPrice":"49000.1"}`)
	}))
	placed, err := client.PlaceOrder(context.Background(), core.Order{
		Symbol: "BTCUSDT",
		Side:   core.Sell,
		Type:   core.Market,
		Qty:    decimal.RequireFromString("0.01"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if placed.Status != core.OrderFilled {
		t.Fatalf("Status = %s, want FILLED", placed.Status)
	}
	if !placed.AvgPrice.Equal(decimal.RequireFromString("49000.1")) {
		t.Fatalf("AvgPrice = %s", placed.AvgPrice)
	}
}

func TestQueryOrderRequiresIdentifiers(t *testing.T) {
	client := NewClientWithOptions(Options{APIKey: "k", APISecret: "s"})
	if _, err := client.QueryOrder(context.Background(), "", "1", ""); err == nil {
		t.Fatalf("QueryOrder(no symbol) = nil, want error")
	}
	if _, err := client.QueryOrder(context.Background(), "BTCUSDT", "", ""); err == nil {
		t.Fatalf("QueryOrder(no ids) = nil, want error")
	}
}

func TestCancelOrderMapsNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":-2011,"msg":"Unknown order sent."}`)
	}))
	err := client.CancelOrder(context.Background(), "BTCUSDT", "99")
	if !errors.Is(err, core.ErrOrderNotFound) {
		t.Fatalf("CancelOrder() = %v, want ErrOrderNotFound", err)
	}
	apiErr, ok := AsAPIError(err)
	if !ok || apiErr.Code != -2011 {
		t.Fatalf("AsAPIError() = %+v ok=%t", apiErr, ok)
	}
}

func TestOpenOrdersOptionalSymbol(t *testing.T) {
	var sawSymbol atomic.Value
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawSymbol.Store(r.URL.Query().Get("symbol"))
		io.WriteString(w, `[{"symbol":"BTCUSDT","orderId":1,"side":"BUY","type":"LIMIT","origQty":"0.01","price":"40000","status":"NEW"}]`)
	}))

	orders, err := client.OpenOrders(context.Background(), "")
	if err != nil {
		t.Fatalf("OpenOrders() error = %v", err)
	}
	if got := sawSymbol.Load().(string); got != "" {
		t.Fatalf("symbol param = %q, want empty", got)
	}
	if len(orders) != 1 || orders[0].ID != "1" {
		t.Fatalf("orders = %+v", orders)
	}

	if _, err := client.OpenOrders(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("OpenOrders(symbol) error = %v", err)
	}
	if got := sawSymbol.Load().(string); got != "BTCUSDT" {
		t.Fatalf("symbol param = %q, want BTCUSDT", got)
	}
}

func TestAccountParsesAssets(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v2/account" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"canTrade":true,"totalWalletBalance":"15000.00","assets":[
			{"asset":"USDT","walletBalance":"15000.00","availableBalance":"12000.00"},
			{"asset":"BNB","walletBalance":"0.00","availableBalance":"0.00"}
		]}`)
	}))
	acct, err := client.Account(context.Background())
	if err != nil {
		t.Fatalf("Account() error = %v", err)
	}
	if !acct.CanTrade {
		t.Fatalf("CanTrade = false")
	}
	bal, ok := acct.Balance("USDT")
	if !ok || !bal.Available.Equal(decimal.RequireFromString("12000.00")) {
		t.Fatalf("Balance(USDT) = %+v ok=%t", bal, ok)
	}
}

func TestGetRulesCachesExchangeInfo(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Fatalf("symbol = %q", got)
		}
		io.WriteString(w, `{"symbols":[{"symbol":"BTCUSDT","status":"TRADING","baseAsset":"BTC","quoteAsset":"USDT","filters":[
			{"filterType":"LOT_SIZE","minQty":"0.001","maxQty":"1000","stepSize":"0.001"},
			{"filterType":"MARKET_LOT_SIZE","minQty":"0.002","maxQty":"120"},
			{"filterType":"PRICE_FILTER","minPrice":"556.80","maxPrice":"4529764","tickSize":"0.10"},
			{"filterType":"MIN_NOTIONAL","notional":"100"}
		]}]}`)
	}))

	rules, err := client.GetRules(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("GetRules() error = %v", err)
	}
	if !rules.MinQty.Equal(decimal.RequireFromString("0.002")) {
		t.Fatalf("MinQty = %s, want stricter MARKET_LOT_SIZE min", rules.MinQty)
	}
	if !rules.PriceTick.Equal(decimal.RequireFromString("0.10")) {
		t.Fatalf("PriceTick = %s", rules.PriceTick)
	}
	if !rules.MinNotional.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("MinNotional = %s", rules.MinNotional)
	}

	if err := client.EnsureTradable(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("EnsureTradable() error = %v", err)
	}
	if _, err := client.GetRules(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("GetRules() second call error = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("exchangeInfo calls = %d, want 1 (cached)", calls.Load())
	}
}

func TestEnsureTradableRejectsHaltedSymbol(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"symbols":[{"symbol":"OLDUSDT","status":"SETTLING","filters":[]}]}`)
	}))
	err := client.EnsureTradable(context.Background(), "OLDUSDT")
	if !errors.Is(err, core.ErrSymbolNotTrading) {
		t.Fatalf("EnsureTradable() = %v, want ErrSymbolNotTrading", err)
	}
}

func TestGetRulesUnknownSymbol(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"symbols":[]}`)
	}))
	_, err := client.GetRules(context.Background(), "NOPEUSDT")
	if !errors.Is(err, core.ErrInvalidSymbol) {
		t.Fatalf("GetRules() = %v, want ErrInvalidSymbol", err)
	}
}

func TestParseAPIError(t *testing.T) {
	err := parseAPIError(http.StatusBadRequest, []byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	if !errors.Is(err, core.ErrInsufficientMargin) {
		t.Fatalf("parseAPIError() = %v, want ErrInsufficientMargin", err)
	}

	err = parseAPIError(http.StatusBadGateway, []byte("bad gateway"))
	if !strings.Contains(err.Error(), "http error 502") {
		t.Fatalf("parseAPIError(non-json) = %v, want http error", err)
	}
}

func TestTickerPrice(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/ticker/price" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"symbol":"BTCUSDT","price":"64250.10"}`)
	}))
	price, err := client.TickerPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("TickerPrice() error = %v", err)
	}
	if !price.Equal(decimal.RequireFromString("64250.10")) {
		t.Fatalf("price = %s", price)
	}
}
