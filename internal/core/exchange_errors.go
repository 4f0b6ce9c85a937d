package core

import "errors"

var (
	// ErrInsufficientMargin indicates the exchange rejected the action for lack of margin.
	ErrInsufficientMargin = errors.New("insufficient margin")
	// ErrDuplicateOrder indicates the client order id has already been accepted before.
	ErrDuplicateOrder = errors.New("duplicate order")
	// ErrOrderNotFound indicates the order does not exist on exchange.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderRejected indicates the order was rejected by exchange.
	ErrOrderRejected = errors.New("order rejected")
	// ErrInvalidSymbol indicates the exchange does not list the symbol.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrSymbolNotTrading indicates the symbol is listed but not currently tradable.
	ErrSymbolNotTrading = errors.New("symbol not trading")
)
