package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-console/internal/core"
	"futures-console/internal/journal"
)

// Exchange is the slice of the futures client the menu needs; tests script a
// fake against it.
type Exchange interface {
	Account(ctx context.Context) (core.Account, error)
	GetRules(ctx context.Context, symbol string) (core.Rules, error)
	EnsureTradable(ctx context.Context, symbol string) error
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, order core.Order) (core.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	QueryOrder(ctx context.Context, symbol, orderID, clientID string) (core.Order, error)
	OpenOrders(ctx context.Context, symbol string) ([]core.Order, error)
	WatchTicker(ctx context.Context, symbol string) (<-chan core.PriceTick, error)
}

// Recorder is the journal surface the console writes through.
type Recorder interface {
	Record(action journal.Action, order core.Order) error
	Replay() ([]journal.Entry, error)
}

// Alerter pushes order notifications; a nil *alert.Manager satisfies it.
type Alerter interface {
	Notify(event string, fields map[string]string)
}

type Options struct {
	Input    io.Reader
	Output   io.Writer
	Exchange Exchange
	Journal  Recorder
	Alerter  Alerter
	Logger   *zap.Logger
	Mode     string
}

// Console drives the interactive menu session. All handler failures print and
// return to the menu; only a closed input ends the session.
type Console struct {
	prompt  *prompter
	out     io.Writer
	ex      Exchange
	journal Recorder
	alerter Alerter
	log     *zap.Logger
	mode    string
}

func New(opts Options) *Console {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Console{
		prompt:  &prompter{in: bufio.NewReader(opts.Input), out: opts.Output},
		out:     opts.Output,
		ex:      opts.Exchange,
		journal: opts.Journal,
		alerter: opts.Alerter,
		log:     log,
		mode:    opts.Mode,
	}
}

const menu = `
Available commands:
  1. Check account balance
  2. Get current price
  3. Place market order
  4. Place limit order
  5. Check order status
  6. View open orders
  7. Cancel order
  8. Watch live price
  9. Session history
  0. Exit
`

func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintf(c.out, "Binance futures trading console (%s)\n", c.mode)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(c.out, menu)
		choice, err := c.prompt.line("Enter your choice: ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(c.out, "bye")
				return nil
			}
			return err
		}

		var handlerErr error
		switch choice {
		case "1":
			handlerErr = c.handleBalance(ctx)
		case "2":
			handlerErr = c.handlePrice(ctx)
		case "3":
			handlerErr = c.handleOrder(ctx, core.Market)
		case "4":
			handlerErr = c.handleOrder(ctx, core.Limit)
		case "5":
			handlerErr = c.handleStatus(ctx)
		case "6":
			handlerErr = c.handleOpenOrders(ctx)
		case "7":
			handlerErr = c.handleCancel(ctx)
		case "8":
			handlerErr = c.handleWatch(ctx)
		case "9":
			handlerErr = c.handleHistory()
		case "0", "q", "exit":
			fmt.Fprintln(c.out, "bye")
			return nil
		default:
			fmt.Fprintln(c.out, "invalid choice, try again")
			continue
		}
		if handlerErr != nil {
			if errors.Is(handlerErr, io.EOF) {
				fmt.Fprintln(c.out, "bye")
				return nil
			}
			fmt.Fprintf(c.out, "Error: %v\n", handlerErr)
			c.log.Warn("command failed", zap.String("choice", choice), zap.Error(handlerErr))
		}
	}
}

func (c *Console) handleBalance(ctx context.Context) error {
	asset, err := c.prompt.withDefault("Asset [USDT]: ", "USDT")
	if err != nil {
		return err
	}
	asset = strings.ToUpper(asset)
	acct, err := c.ex.Account(ctx)
	if err != nil {
		return err
	}
	bal, ok := acct.Balance(asset)
	if !ok {
		fmt.Fprintf(c.out, "No %s balance on this account\n", asset)
		return nil
	}
	fmt.Fprintf(c.out, "%s balance: wallet=%s available=%s\n", asset, bal.Wallet, bal.Available)
	if !acct.CanTrade {
		fmt.Fprintln(c.out, "warning: account trading is disabled")
	}
	return nil
}

func (c *Console) handlePrice(ctx context.Context) error {
	symbol, err := c.prompt.symbol("Symbol (e.g. BTCUSDT): ")
	if err != nil {
		return err
	}
	price, err := c.ex.TickerPrice(ctx, symbol)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Current price of %s: %s\n", symbol, price)
	return nil
}

func (c *Console) handleOrder(ctx context.Context, orderType core.OrderType) error {
	symbol, err := c.prompt.symbol("Symbol (e.g. BTCUSDT): ")
	if err != nil {
		return err
	}
	side, err := c.prompt.side("Side (BUY/SELL): ")
	if err != nil {
		return err
	}
	qty, err := c.prompt.decimal("Quantity: ")
	if err != nil {
		return err
	}
	order := core.Order{
		Symbol: symbol,
		Side:   side,
		Type:   orderType,
		Qty:    qty,
	}
	if orderType == core.Limit {
		price, err := c.prompt.decimal("Price: ")
		if err != nil {
			return err
		}
		order.Price = price
		order.TimeInForce = core.GTC
	}

	if err := c.ex.EnsureTradable(ctx, symbol); err != nil {
		return err
	}
	rules, err := c.ex.GetRules(ctx, symbol)
	if err != nil {
		return err
	}
	marketPrice, err := c.ex.TickerPrice(ctx, symbol)
	if err != nil {
		return err
	}
	if orderType == core.Market {
		// Use the ticker as reference price so the notional filter is
		// enforced before the exchange sees the order.
		order.Price = marketPrice
	}
	normalized, adjusted, err := core.NormalizeOrder(order, rules)
	if err != nil {
		return fmt.Errorf("order validation failed: %w", err)
	}
	if adjusted {
		fmt.Fprintf(c.out, "note: quantity adjusted from %s to %s to match lot step %s\n",
			order.Qty, normalized.Qty, rules.QtyStep)
	}
	order = normalized

	fmt.Fprintln(c.out, "\nOrder summary:")
	fmt.Fprintf(c.out, "  Symbol:   %s\n", order.Symbol)
	fmt.Fprintf(c.out, "  Side:     %s\n", order.Side)
	fmt.Fprintf(c.out, "  Type:     %s\n", order.Type)
	fmt.Fprintf(c.out, "  Quantity: %s\n", order.Qty)
	if order.Type == core.Limit {
		fmt.Fprintf(c.out, "  Price:    %s (market %s)\n", order.Price, marketPrice)
	} else {
		fmt.Fprintf(c.out, "  Est. price: %s\n", marketPrice)
	}

	ok, err := c.prompt.confirm("Confirm order? (y/N): ")
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "order not sent")
		return nil
	}

	if order.Type == core.Market {
		// Price was only a validation reference; market orders carry none.
		order.Price = decimal.Zero
	}
	placed, err := c.ex.PlaceOrder(ctx, order)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Order placed: id=%s status=%s\n", placed.ID, placed.Status)
	c.recordOrder(journal.ActionPlaced, placed)
	c.notify("order_placed", map[string]string{
		"symbol":   placed.Symbol,
		"side":     string(placed.Side),
		"type":     string(placed.Type),
		"qty":      placed.Qty.String(),
		"order_id": placed.ID,
	})
	return nil
}

func (c *Console) handleStatus(ctx context.Context) error {
	symbol, err := c.prompt.symbol("Symbol: ")
	if err != nil {
		return err
	}
	orderID, err := c.prompt.line("Order ID: ")
	if err != nil {
		return err
	}
	if _, convErr := strconv.ParseInt(orderID, 10, 64); convErr != nil {
		return fmt.Errorf("order id must be numeric")
	}
	order, err := c.ex.QueryOrder(ctx, symbol, orderID, "")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Order status:")
	fmt.Fprintf(c.out, "  ID:       %s\n", order.ID)
	fmt.Fprintf(c.out, "  Symbol:   %s\n", order.Symbol)
	fmt.Fprintf(c.out, "  Status:   %s\n", order.Status)
	fmt.Fprintf(c.out, "  Side:     %s\n", order.Side)
	fmt.Fprintf(c.out, "  Type:     %s\n", order.Type)
	fmt.Fprintf(c.out, "  Quantity: %s\n", order.Qty)
	fmt.Fprintf(c.out, "  Filled:   %s\n", order.ExecutedQty)
	if order.Type == core.Limit {
		fmt.Fprintf(c.out, "  Price:    %s\n", order.Price)
	}
	return nil
}

func (c *Console) handleOpenOrders(ctx context.Context) error {
	symbol, err := c.prompt.optionalSymbol("Symbol (empty for all): ")
	if err != nil {
		return err
	}
	orders, err := c.ex.OpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "no open orders")
		return nil
	}
	fmt.Fprintln(c.out, "Open orders:")
	for _, order := range orders {
		fmt.Fprintf(c.out, "  id=%s %s %s %s qty=%s price=%s status=%s\n",
			order.ID, order.Symbol, order.Side, order.Type, order.Qty, order.Price, order.Status)
	}
	return nil
}

func (c *Console) handleCancel(ctx context.Context) error {
	symbol, err := c.prompt.symbol("Symbol: ")
	if err != nil {
		return err
	}
	orderID, err := c.prompt.line("Order ID to cancel: ")
	if err != nil {
		return err
	}
	if orderID == "" {
		return fmt.Errorf("order id cannot be empty")
	}
	ok, err := c.prompt.confirm(fmt.Sprintf("Cancel order %s on %s? (y/N): ", orderID, symbol))
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(c.out, "cancellation aborted")
		return nil
	}
	if err := c.ex.CancelOrder(ctx, symbol, orderID); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "order canceled")
	c.recordOrder(journal.ActionCanceled, core.Order{ID: orderID, Symbol: symbol, Status: core.OrderCanceled})
	c.notify("order_canceled", map[string]string{
		"symbol":   symbol,
		"order_id": orderID,
	})
	return nil
}

func (c *Console) handleWatch(ctx context.Context) error {
	symbol, err := c.prompt.symbol("Symbol: ")
	if err != nil {
		return err
	}
	rawSecs, err := c.prompt.withDefault("Watch seconds [10]: ", "10")
	if err != nil {
		return err
	}
	secs, err := strconv.Atoi(rawSecs)
	if err != nil || secs < 1 || secs > 300 {
		return fmt.Errorf("watch seconds must be 1..300")
	}

	watchCtx, cancel := context.WithTimeout(ctx, time.Duration(secs)*time.Second)
	defer cancel()
	ticks, err := c.ex.WatchTicker(watchCtx, symbol)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "watching %s for %ds...\n", symbol, secs)
	count := 0
	for tick := range ticks {
		fmt.Fprintf(c.out, "  %s %s %s\n", tick.Time.Format("15:04:05"), tick.Symbol, tick.Price)
		count++
	}
	fmt.Fprintf(c.out, "watch finished, %d updates\n", count)
	return nil
}

func (c *Console) handleHistory() error {
	if c.journal == nil {
		fmt.Fprintln(c.out, "journal disabled")
		return nil
	}
	entries, err := c.journal.Replay()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "no recorded orders")
		return nil
	}
	fmt.Fprintln(c.out, "Session history:")
	for _, entry := range entries {
		fmt.Fprintf(c.out, "  %s %-8s id=%s %s %s %s qty=%s price=%s\n",
			entry.At.Format(time.RFC3339), entry.Action, entry.OrderID,
			entry.Symbol, entry.Side, entry.Type, entry.Qty, entry.Price)
	}
	return nil
}

func (c *Console) notify(event string, fields map[string]string) {
	if c.alerter == nil {
		return
	}
	c.alerter.Notify(event, fields)
}

func (c *Console) recordOrder(action journal.Action, order core.Order) {
	if c.journal == nil {
		return
	}
	if err := c.journal.Record(action, order); err != nil {
		c.log.Warn("journal write failed", zap.Error(err))
	}
}
