package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "")
	t.Setenv("BINANCE_API_SECRET", "")
	path := writeConfig(t, `
mode: testnet
symbol: btcusdt
exchange:
  api_key: k
  api_secret: s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Symbol != "BTCUSDT" {
		t.Fatalf("Symbol = %q, want BTCUSDT", cfg.Symbol)
	}
	if cfg.Exchange.RestBaseURL != "https://testnet.binancefuture.com" {
		t.Fatalf("RestBaseURL = %q, want testnet default", cfg.Exchange.RestBaseURL)
	}
	if cfg.Exchange.WSBaseURL != "wss://stream.binancefuture.com" {
		t.Fatalf("WSBaseURL = %q, want testnet default", cfg.Exchange.WSBaseURL)
	}
	if cfg.Exchange.RecvWindowMs != 5000 || cfg.Exchange.HTTPTimeoutSec != 15 {
		t.Fatalf("exchange defaults = %+v", cfg.Exchange)
	}
	if cfg.InstanceID != "console" || cfg.State.Dir != "state" {
		t.Fatalf("defaults = instance %q state %q", cfg.InstanceID, cfg.State.Dir)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.File != "trading_console.log" {
		t.Fatalf("logging defaults = %+v", cfg.Logging)
	}
	if !cfg.HasCredentials() {
		t.Fatalf("HasCredentials() = false, want true")
	}
}

func TestLoadLiveBaseURLs(t *testing.T) {
	path := writeConfig(t, `
mode: live
symbol: ETHUSDT
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Exchange.RestBaseURL != "https://fapi.binance.com" {
		t.Fatalf("RestBaseURL = %q, want live default", cfg.Exchange.RestBaseURL)
	}
	if cfg.Exchange.WSBaseURL != "wss://fstream.binance.com" {
		t.Fatalf("WSBaseURL = %q, want live default", cfg.Exchange.WSBaseURL)
	}
}

func TestLoadEnvOverridesCredentials(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "env-key")
	t.Setenv("BINANCE_API_SECRET", "env-secret")
	path := writeConfig(t, `
mode: testnet
exchange:
  api_key: yaml-key
  api_secret: yaml-secret
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Exchange.APIKey != "env-key" || cfg.Exchange.APISecret != "env-secret" {
		t.Fatalf("credentials = %q/%q, want env overrides", cfg.Exchange.APIKey, cfg.Exchange.APISecret)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
mode: testnet
grid:
  levels: 5
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("Load() error = nil, want unknown field error")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"valid", func(c *Config) {}, true},
		{"empty symbol allowed", func(c *Config) { c.Symbol = "" }, true},
		{"bad mode", func(c *Config) { c.Mode = "backtest" }, false},
		{"bad symbol", func(c *Config) { c.Symbol = "btc" }, false},
		{"bad instance", func(c *Config) { c.InstanceID = "UPPER" }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, false},
		{"telegram missing token", func(c *Config) { c.Observability.Telegram.Enabled = true }, false},
	}
	for _, tc := range cases {
		cfg := Config{Mode: ModeTestnet, Symbol: "BTCUSDT", InstanceID: "console"}
		cfg.Exchange.HTTPTimeoutSec = 15
		cfg.Logging.Level = "info"
		tc.mutate(&cfg)
		err := cfg.Validate()
		if tc.wantOK && err != nil {
			t.Fatalf("%s: Validate() = %v, want nil", tc.name, err)
		}
		if !tc.wantOK && err == nil {
			t.Fatalf("%s: Validate() = nil, want error", tc.name)
		}
	}
}
