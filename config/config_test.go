package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.StoreDriver != DriverBolt {
		t.Errorf("expected bolt store by default, got %s", cfg.StoreDriver)
	}
	if cfg.NavigationTimeout != 20*time.Second || cfg.SettleDelay != 5*time.Second {
		t.Errorf("unexpected page timings %v / %v", cfg.NavigationTimeout, cfg.SettleDelay)
	}
	if cfg.RefreshInterval != 6*time.Hour || cfg.CycleBudget != 25*time.Minute {
		t.Errorf("unexpected refresh timings %v / %v", cfg.RefreshInterval, cfg.CycleBudget)
	}
	if cfg.HomeCurrency != "BRL" || len(cfg.CurrencySymbols) != 1 || cfg.CurrencySymbols[0] != "R$" {
		t.Errorf("unexpected currency settings %s %v", cfg.HomeCurrency, cfg.CurrencySymbols)
	}
	if cfg.MaxManualTasks != 1 {
		t.Errorf("expected one manual task slot by default, got %d", cfg.MaxManualTasks)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("unexpected addr %s", cfg.Addr())
	}
	if cfg.PushEnabled() {
		t.Error("push should be disabled without keys")
	}
}

func TestParseEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/pricewatch")
	t.Setenv("REFRESH_INTERVAL", "12h")
	t.Setenv("CURRENCY_SYMBOLS", "R$,US$")
	t.Setenv("PRICE_SELECTORS", ".price-tag, .amount;#price")

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StoreDriver != DriverPostgres || cfg.RefreshInterval != 12*time.Hour {
		t.Errorf("environment not applied: %+v", cfg)
	}
	if strings.Join(cfg.CurrencySymbols, "|") != "R$|US$" {
		t.Errorf("unexpected symbols %v", cfg.CurrencySymbols)
	}
	if len(cfg.PriceSelectors) != 2 || cfg.PriceSelectors[0] != ".price-tag, .amount" {
		t.Errorf("selectors should split on ';' only, got %q", cfg.PriceSelectors)
	}
}

func TestParseFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	cfg, err := Parse([]string{"--port", "9100", "--max-manual-tasks", "4"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9100" || cfg.MaxManualTasks != 4 {
		t.Errorf("flags not applied: port=%s tasks=%d", cfg.Port, cfg.MaxManualTasks)
	}
}

func TestParseRejectsUnknownDriver(t *testing.T) {
	if _, err := Parse([]string{"--store-driver", "mongo"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			StoreDriver:       DriverBolt,
			BoltPath:          "x.db",
			NavigationTimeout: time.Second,
			RefreshInterval:   time.Hour,
			CycleBudget:       time.Minute,
			MaxManualTasks:    1,
			RateLimit:         1,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"postgres without url", func(c *Config) { c.StoreDriver = DriverPostgres }, "DATABASE_URL"},
		{"zero interval", func(c *Config) { c.RefreshInterval = 0 }, "REFRESH_INTERVAL"},
		{"budget over interval", func(c *Config) { c.CycleBudget = 2 * time.Hour }, "CYCLE_BUDGET"},
		{"negative settle", func(c *Config) { c.SettleDelay = -time.Second }, "SETTLE_DELAY"},
		{"no task slots", func(c *Config) { c.MaxManualTasks = 0 }, "MAX_MANUAL_TASKS"},
		{"half vapid", func(c *Config) { c.VAPIDPublicKey = "pub" }, "VAPID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
