package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type OrderType string

type OrderStatus string

type TimeInForce string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

const (
	OrderNew             OrderStatus = "NEW"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCanceled        OrderStatus = "CANCELED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
	GTX TimeInForce = "GTX"
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

func (t OrderType) Valid() bool {
	return t == Market || t == Limit
}

type Order struct {
	ID          string
	ClientID    string
	Symbol      string
	Side        Side
	Type        OrderType
	TimeInForce TimeInForce
	Price       decimal.Decimal
	Qty         decimal.Decimal
	ExecutedQty decimal.Decimal
	AvgPrice    decimal.Decimal
	Status      OrderStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Rules carries the exchange-published trading filters for one symbol.
// A zero value in any field means the exchange did not publish that bound.
type Rules struct {
	MinQty      decimal.Decimal
	MaxQty      decimal.Decimal
	QtyStep     decimal.Decimal
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	PriceTick   decimal.Decimal
	MinNotional decimal.Decimal
}

// PriceTick is one update from a market price stream.
type PriceTick struct {
	Symbol string
	Price  decimal.Decimal
	Time   time.Time
}

type Balance struct {
	Asset     string
	Wallet    decimal.Decimal
	Available decimal.Decimal
}

type Account struct {
	CanTrade    bool
	TotalWallet decimal.Decimal
	Balances    []Balance
}

func (a Account) Balance(asset string) (Balance, bool) {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b, true
		}
	}
	return Balance{}, false
}
