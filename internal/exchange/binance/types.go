package binance

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"futures-console/internal/core"
)

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type APIError struct {
	Code int
	Msg  string
}

func (e APIError) Error() string {
	return "binance api error " + strconv.Itoa(e.Code) + ": " + e.Msg
}

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type orderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Price         string `json:"price"`
	AvgPrice      string `json:"avgPrice"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	Status        string `json:"status"`
	TimeInForce   string `json:"timeInForce"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Time          int64  `json:"time"`
	UpdateTime    int64  `json:"updateTime"`
}

func (r orderResponse) toOrder() core.Order {
	price, _ := decimal.NewFromString(r.Price)
	avgPrice, _ := decimal.NewFromString(r.AvgPrice)
	qty, _ := decimal.NewFromString(r.OrigQty)
	executedQty, _ := decimal.NewFromString(r.ExecutedQty)
	order := core.Order{
		ID:          strconv.FormatInt(r.OrderID, 10),
		ClientID:    r.ClientOrderID,
		Symbol:      r.Symbol,
		Side:        core.Side(r.Side),
		Type:        core.OrderType(r.Type),
		TimeInForce: core.TimeInForce(r.TimeInForce),
		Price:       price,
		AvgPrice:    avgPrice,
		Qty:         qty,
		ExecutedQty: executedQty,
		Status:      core.OrderStatus(r.Status),
	}
	if r.Time > 0 {
		order.CreatedAt = time.UnixMilli(r.Time)
	}
	if r.UpdateTime > 0 {
		order.UpdatedAt = time.UnixMilli(r.UpdateTime)
	}
	return order
}

type accountResponse struct {
	CanTrade           bool   `json:"canTrade"`
	TotalWalletBalance string `json:"totalWalletBalance"`
	Assets             []struct {
		Asset            string `json:"asset"`
		WalletBalance    string `json:"walletBalance"`
		AvailableBalance string `json:"availableBalance"`
	} `json:"assets"`
}

type exchangeInfoResponse struct {
	Symbols []symbolInfoResponse `json:"symbols"`
}

type symbolFilter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty"`
	MaxQty      string `json:"maxQty"`
	StepSize    string `json:"stepSize"`
	MinPrice    string `json:"minPrice"`
	MaxPrice    string `json:"maxPrice"`
	TickSize    string `json:"tickSize"`
	MinNotional string `json:"notional"`
}

type symbolInfoResponse struct {
	Symbol     string         `json:"symbol"`
	Status     string         `json:"status"`
	BaseAsset  string         `json:"baseAsset"`
	QuoteAsset string         `json:"quoteAsset"`
	Filters    []symbolFilter `json:"filters"`
}

type symbolInfo struct {
	status     string
	baseAsset  string
	quoteAsset string
	rules      core.Rules
}

func parseSymbolInfo(src symbolInfoResponse) symbolInfo {
	info := symbolInfo{
		status:     src.Status,
		baseAsset:  src.BaseAsset,
		quoteAsset: src.QuoteAsset,
	}
	setDec := func(dst *decimal.Decimal, raw string) {
		if raw == "" {
			return
		}
		if v, err := decimal.NewFromString(raw); err == nil {
			*dst = v
		}
	}
	for _, f := range src.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			setDec(&info.rules.MinQty, f.MinQty)
			setDec(&info.rules.MaxQty, f.MaxQty)
			setDec(&info.rules.QtyStep, f.StepSize)
		case "MARKET_LOT_SIZE":
			// Market lot bounds are usually tighter than LOT_SIZE; keep the
			// stricter minimum so validation covers both order types.
			if f.MinQty != "" {
				if v, err := decimal.NewFromString(f.MinQty); err == nil && v.Cmp(info.rules.MinQty) > 0 {
					info.rules.MinQty = v
				}
			}
		case "PRICE_FILTER":
			setDec(&info.rules.MinPrice, f.MinPrice)
			setDec(&info.rules.MaxPrice, f.MaxPrice)
			setDec(&info.rules.PriceTick, f.TickSize)
		case "MIN_NOTIONAL":
			setDec(&info.rules.MinNotional, f.MinNotional)
		}
	}
	return info
}
