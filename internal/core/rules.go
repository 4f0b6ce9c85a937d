package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrBelowMinQty      = errors.New("qty below min")
	ErrAboveMaxQty      = errors.New("qty above max")
	ErrBelowMinPrice    = errors.New("price below min")
	ErrAboveMaxPrice    = errors.New("price above max")
	ErrBelowMinNotional = errors.New("notional below min")
)

// ValidateOrder checks an order against the symbol's published filters without
// mutating it. Zero-valued rule fields are skipped.
func ValidateOrder(order Order, rules Rules) error {
	if !order.Side.Valid() {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}
	if !order.Type.Valid() {
		return fmt.Errorf("%w: type must be MARKET or LIMIT", ErrInvalidOrder)
	}
	if order.Qty.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("%w: qty must be > 0", ErrInvalidOrder)
	}
	if rules.MinQty.Cmp(decimal.Zero) > 0 && order.Qty.Cmp(rules.MinQty) < 0 {
		return fmt.Errorf("%w: qty %s < min %s", ErrBelowMinQty, order.Qty, rules.MinQty)
	}
	if rules.MaxQty.Cmp(decimal.Zero) > 0 && order.Qty.Cmp(rules.MaxQty) > 0 {
		return fmt.Errorf("%w: qty %s > max %s", ErrAboveMaxQty, order.Qty, rules.MaxQty)
	}
	if order.Type == Market {
		// Market orders carry no price; notional is only checkable when the
		// caller filled in a reference price.
		if order.Price.Cmp(decimal.Zero) <= 0 {
			return nil
		}
		return checkNotional(order, rules)
	}
	if order.Price.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("%w: limit price must be > 0", ErrInvalidOrder)
	}
	if rules.MinPrice.Cmp(decimal.Zero) > 0 && order.Price.Cmp(rules.MinPrice) < 0 {
		return fmt.Errorf("%w: price %s < min %s", ErrBelowMinPrice, order.Price, rules.MinPrice)
	}
	if rules.MaxPrice.Cmp(decimal.Zero) > 0 && order.Price.Cmp(rules.MaxPrice) > 0 {
		return fmt.Errorf("%w: price %s > max %s", ErrAboveMaxPrice, order.Price, rules.MaxPrice)
	}
	return checkNotional(order, rules)
}

func checkNotional(order Order, rules Rules) error {
	if rules.MinNotional.Cmp(decimal.Zero) <= 0 {
		return nil
	}
	notional := order.Price.Mul(order.Qty)
	if notional.Cmp(rules.MinNotional) < 0 {
		return fmt.Errorf("%w: notional %s < min %s", ErrBelowMinNotional, notional, rules.MinNotional)
	}
	return nil
}

// NormalizeOrder rounds qty down to the lot step and the limit price down to the
// price tick, then validates the result. The returned flag reports whether
// rounding changed the quantity, so callers can surface the adjustment.
func NormalizeOrder(order Order, rules Rules) (Order, bool, error) {
	if order.Qty.Cmp(decimal.Zero) <= 0 {
		return order, false, fmt.Errorf("%w: qty must be > 0", ErrInvalidOrder)
	}
	adjusted := false
	if rules.QtyStep.Cmp(decimal.Zero) > 0 {
		rounded := RoundDown(order.Qty, rules.QtyStep)
		if !rounded.Equal(order.Qty) {
			adjusted = true
		}
		order.Qty = rounded
	}
	if order.Type == Limit && rules.PriceTick.Cmp(decimal.Zero) > 0 {
		order.Price = RoundDown(order.Price, rules.PriceTick)
	}
	if err := ValidateOrder(order, rules); err != nil {
		return order, adjusted, err
	}
	return order, adjusted, nil
}

func RoundDown(value, step decimal.Decimal) decimal.Decimal {
	if step.Cmp(decimal.Zero) <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}
