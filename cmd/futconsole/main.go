package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"futures-console/internal/alert"
	"futures-console/internal/config"
	"futures-console/internal/console"
	"futures-console/internal/exchange/binance"
	"futures-console/internal/journal"
	"futures-console/internal/logger"
)

func main() {
	var (
		configPath   string
		allowLiveRun bool
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "config yaml path")
	flag.BoolVar(&allowLiveRun, "allow-live", false, "allow running against mode=live")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}
	if cfg.Mode == config.ModeLive && !allowLiveRun {
		fatal("mode=live blocked by default; set -allow-live=true to continue")
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fatal(err.Error())
	}
	defer log.Sync()

	if !cfg.HasCredentials() {
		if err := promptCredentials(&cfg); err != nil {
			fatal(err.Error())
		}
	}

	client, err := binance.NewClient(cfg.Exchange, cfg.InstanceID, log)
	if err != nil {
		fatal(err.Error())
	}

	// Connectivity check before entering the menu, as a fast-fail on bad
	// base URLs or clock skew.
	checkCtx, checkCancel := context.WithTimeout(context.Background(), 15*time.Second)
	serverTime, err := client.ServerTime(checkCtx)
	checkCancel()
	if err != nil {
		fatal(fmt.Sprintf("exchange unreachable: %v", err))
	}
	log.Info("connected",
		zap.String("mode", string(cfg.Mode)),
		zap.String("rest_base_url", cfg.Exchange.RestBaseURL),
		zap.Time("server_time", serverTime),
	)

	jnl, err := journal.New(cfg.State.Dir)
	if err != nil {
		fatal(err.Error())
	}

	var alerts *alert.Manager
	if notifier := alert.NewTelegramNotifier(cfg.Observability.Telegram); notifier != nil {
		alerts = alert.NewManager(string(cfg.Mode), notifier, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := console.New(console.Options{
		Input:    os.Stdin,
		Output:   os.Stdout,
		Exchange: client,
		Journal:  jnl,
		Alerter:  alerts,
		Logger:   log,
		Mode:     string(cfg.Mode),
	})
	runErr := c.Run(ctx)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	if err := alerts.Close(closeCtx); err != nil {
		log.Warn("alert shutdown incomplete", zap.Error(err))
	}
	if runErr != nil && runErr != context.Canceled {
		fatal(runErr.Error())
	}
}

func promptCredentials(cfg *config.Config) error {
	fmt.Println("API credentials not configured.")
	fmt.Println("Get testnet credentials from https://testnet.binancefuture.com")
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Enter API key: ")
	key, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	fmt.Print("Enter API secret: ")
	secret, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	cfg.Exchange.APIKey = strings.TrimSpace(key)
	cfg.Exchange.APISecret = strings.TrimSpace(secret)
	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		return fmt.Errorf("api credentials cannot be empty")
	}
	return nil
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, strings.TrimSpace(msg))
	os.Exit(1)
}
