package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"futures-console/internal/config"
	"futures-console/internal/core"
	"futures-console/internal/exchange/binance"
	"futures-console/internal/logger"
)

type checkStatus string

const (
	statusPass checkStatus = "PASS"
	statusFail checkStatus = "FAIL"
)

type checkResult struct {
	Name       string      `json:"name"`
	Status     checkStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Detail     string      `json:"detail,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type report struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Mode       config.Mode   `json:"mode"`
	Symbol     string        `json:"symbol"`
	Checks     []checkResult `json:"checks"`
}

type selectedChecks struct {
	preflight bool
	filters   bool
	lifecycle bool
}

func main() {
	var (
		configPath   string
		timeoutSec   int
		outJSONPath  string
		allowLiveRun bool
		checkFlag    string
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.IntVar(&timeoutSec, "timeout-sec", 120, "total timeout seconds")
	flag.StringVar(&outJSONPath, "out-json", "", "optional output report path")
	flag.BoolVar(&allowLiveRun, "allow-live", false, "allow running checks when mode=live")
	flag.StringVar(&checkFlag, "check", "default", "checks to run: default | all | comma list (preflight,filters,lifecycle)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	if cfg.Symbol == "" {
		fatal("testnetcheck requires a configured symbol")
	}
	if !cfg.HasCredentials() {
		fatal("testnetcheck requires api credentials (config or BINANCE_API_KEY/BINANCE_API_SECRET)")
	}
	if cfg.Mode == config.ModeLive && !allowLiveRun {
		fatal("mode=live blocked by default; set -allow-live=true to continue")
	}
	checks, err := parseCheckFlag(checkFlag)
	if err != nil {
		fatal(err.Error())
	}
	if timeoutSec < 30 {
		timeoutSec = 30
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fatal(err.Error())
	}
	defer log.Sync()

	client, err := binance.NewClient(cfg.Exchange, cfg.InstanceID, log)
	if err != nil {
		fatal(err.Error())
	}

	r := report{
		StartedAt: time.Now().UTC(),
		Mode:      cfg.Mode,
		Symbol:    cfg.Symbol,
	}

	var (
		marketLoaded bool
		rules        core.Rules
		lastPrice    decimal.Decimal
		quoteFree    decimal.Decimal
		placedID     string
	)

	loadMarketContext := func() error {
		if marketLoaded {
			return nil
		}
		var err error
		rules, err = client.GetRules(ctx, cfg.Symbol)
		if err != nil {
			return err
		}
		lastPrice, err = client.TickerPrice(ctx, cfg.Symbol)
		if err != nil {
			return err
		}
		acct, err := client.Account(ctx)
		if err != nil {
			return err
		}
		if !acct.CanTrade {
			return errors.New("account trading disabled")
		}
		if bal, ok := acct.Balance("USDT"); ok {
			quoteFree = bal.Available
		}
		marketLoaded = true
		return nil
	}

	run := func(name string, fn func() (string, error)) {
		start := time.Now()
		detail, err := fn()
		cr := checkResult{
			Name:       name,
			DurationMs: time.Since(start).Milliseconds(),
			Detail:     detail,
		}
		if err != nil {
			cr.Status = statusFail
			cr.Error = err.Error()
		} else {
			cr.Status = statusPass
		}
		r.Checks = append(r.Checks, cr)
		if cr.Status == statusPass {
			fmt.Printf("[PASS] %s (%dms)", name, cr.DurationMs)
			if cr.Detail != "" {
				fmt.Printf(" - %s", cr.Detail)
			}
			fmt.Println()
		} else {
			fmt.Printf("[FAIL] %s (%dms) - %s\n", name, cr.DurationMs, cr.Error)
		}
	}

	if checks.preflight {
		run("exchange_preflight", func() (string, error) {
			serverTime, err := client.ServerTime(ctx)
			if err != nil {
				return "", err
			}
			skew := time.Since(serverTime)
			if skew < 0 {
				skew = -skew
			}
			if err := client.EnsureTradable(ctx, cfg.Symbol); err != nil {
				return "", err
			}
			if err := loadMarketContext(); err != nil {
				return "", err
			}
			return fmt.Sprintf("price=%s quoteAvailable=%s clockSkew=%s",
				lastPrice, quoteFree, skew.Round(time.Millisecond)), nil
		})
	}

	if checks.filters {
		run("symbol_filters", func() (string, error) {
			if err := loadMarketContext(); err != nil {
				return "", err
			}
			if rules.QtyStep.Cmp(decimal.Zero) <= 0 {
				return "", errors.New("missing LOT_SIZE step")
			}
			if rules.PriceTick.Cmp(decimal.Zero) <= 0 {
				return "", errors.New("missing PRICE_FILTER tick")
			}
			if rules.MinQty.Cmp(decimal.Zero) <= 0 {
				return "", errors.New("missing LOT_SIZE min qty")
			}
			if rules.MaxQty.Cmp(decimal.Zero) > 0 && rules.MaxQty.Cmp(rules.MinQty) < 0 {
				return "", errors.New("max qty below min qty")
			}
			return fmt.Sprintf("minQty=%s maxQty=%s step=%s tick=%s minNotional=%s",
				rules.MinQty, rules.MaxQty, rules.QtyStep, rules.PriceTick, rules.MinNotional), nil
		})
	}

	if checks.lifecycle {
		run("order_lifecycle_place_query_cancel", func() (string, error) {
			if err := loadMarketContext(); err != nil {
				return "", err
			}
			if lastPrice.Cmp(decimal.Zero) <= 0 {
				return "", errors.New("missing ticker price")
			}
			// Far below market so the probe rests instead of filling.
			price := core.RoundDown(lastPrice.Mul(decimal.RequireFromString("0.5")), rules.PriceTick)
			if rules.MinPrice.Cmp(decimal.Zero) > 0 && price.Cmp(rules.MinPrice) < 0 {
				price = rules.MinPrice
			}
			if price.Cmp(decimal.Zero) <= 0 {
				return "", errors.New("calculated probe price <= 0")
			}
			qty, err := buildProbeQty(rules, price)
			if err != nil {
				return "", err
			}
			notional := price.Mul(qty)
			if quoteFree.Cmp(notional) < 0 {
				return "", fmt.Errorf("insufficient quote for probe order: need=%s have=%s", notional, quoteFree)
			}

			placed, err := client.PlaceOrder(ctx, core.Order{
				Symbol:      cfg.Symbol,
				Side:        core.Buy,
				Type:        core.Limit,
				TimeInForce: core.GTC,
				Price:       price,
				Qty:         qty,
			})
			if err != nil {
				return "", err
			}
			if placed.ID == "" {
				return "", errors.New("empty order id")
			}
			placedID = placed.ID

			query, err := client.QueryOrder(ctx, cfg.Symbol, placed.ID, "")
			if err != nil {
				return "", err
			}

			open, err := client.OpenOrders(ctx, cfg.Symbol)
			if err != nil {
				return "", err
			}
			foundInOpen := false
			for _, ord := range open {
				if ord.ID == placed.ID {
					foundInOpen = true
					break
				}
			}

			status := string(query.Status)
			switch query.Status {
			case core.OrderNew, core.OrderPartiallyFilled:
				if err := client.CancelOrder(ctx, cfg.Symbol, placed.ID); err != nil {
					return "", fmt.Errorf("cancel order failed: %w", err)
				}
				time.Sleep(400 * time.Millisecond)
				after, err := client.QueryOrder(ctx, cfg.Symbol, placed.ID, "")
				if err == nil {
					status = string(after.Status)
				}
			case core.OrderFilled:
				// Unexpected for a far-below-market probe but acceptable.
			default:
			}

			return fmt.Sprintf("id=%s qty=%s price=%s status=%s foundInOpen=%t",
				placedID, qty, price, status, foundInOpen), nil
		})
	}

	// cleanup: if the probe order still exists, best-effort cancel
	if placedID != "" {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 20*time.Second)
		_ = client.CancelOrder(cleanupCtx, cfg.Symbol, placedID)
		cleanupCancel()
	}

	r.FinishedAt = time.Now().UTC()
	printSummary(r)

	if outJSONPath != "" {
		if err := writeReport(outJSONPath, r); err != nil {
			fatal(err.Error())
		}
		fmt.Printf("report written: %s\n", outJSONPath)
	}

	for _, c := range r.Checks {
		if c.Status == statusFail {
			os.Exit(1)
		}
	}
}

func parseCheckFlag(raw string) (selectedChecks, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "default" || raw == "all" {
		return selectedChecks{preflight: true, filters: true, lifecycle: true}, nil
	}

	var out selectedChecks
	for _, p := range strings.Split(raw, ",") {
		switch name := strings.TrimSpace(p); name {
		case "":
			continue
		case "preflight", "exchange_preflight":
			out.preflight = true
		case "filters", "symbol_filters":
			out.filters = true
		case "lifecycle", "order_lifecycle", "order_lifecycle_place_query_cancel":
			out.lifecycle = true
		default:
			return selectedChecks{}, fmt.Errorf("unknown check: %s", name)
		}
	}
	if !out.preflight && !out.filters && !out.lifecycle {
		return selectedChecks{}, errors.New("no checks selected")
	}
	return out, nil
}

// buildProbeQty returns the smallest quantity the filters accept at the probe
// price.
func buildProbeQty(rules core.Rules, price decimal.Decimal) (decimal.Decimal, error) {
	if price.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, errors.New("invalid price")
	}
	qty := rules.MinQty
	if qty.Cmp(decimal.Zero) <= 0 {
		qty = rules.QtyStep
	}
	if rules.MinNotional.Cmp(decimal.Zero) > 0 {
		byNotional := roundQtyUp(rules.MinNotional.Div(price), rules.QtyStep)
		if byNotional.Cmp(qty) > 0 {
			qty = byNotional
		}
	}
	if qty.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero, errors.New("calculated qty <= 0")
	}
	norm, _, err := core.NormalizeOrder(core.Order{
		Side:   core.Buy,
		Type:   core.Limit,
		Price:  price,
		Qty:    qty,
	}, rules)
	if err != nil {
		return decimal.Zero, err
	}
	return norm.Qty, nil
}

func roundQtyUp(qty, step decimal.Decimal) decimal.Decimal {
	if qty.Cmp(decimal.Zero) <= 0 {
		return decimal.Zero
	}
	if step.Cmp(decimal.Zero) <= 0 {
		return qty
	}
	return qty.Div(step).Ceil().Mul(step)
}

func printSummary(r report) {
	pass := 0
	fail := 0
	for _, c := range r.Checks {
		if c.Status == statusPass {
			pass++
		} else {
			fail++
		}
	}
	fmt.Printf("\nsummary mode=%s symbol=%s pass=%d fail=%d duration=%s\n",
		r.Mode,
		r.Symbol,
		pass,
		fail,
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
	)
}

func writeReport(path string, r report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(msg))
	os.Exit(1)
}
