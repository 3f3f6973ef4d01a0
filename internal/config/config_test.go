package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.PriceTickInterval != 60*time.Second {
		t.Errorf("expected default price tick interval 60s, got %v", cfg.PriceTickInterval)
	}
	if cfg.SettlementInterval != 30*time.Second {
		t.Errorf("expected default settlement interval 30s, got %v", cfg.SettlementInterval)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PRICE_TICK_INTERVAL", "5s")
	t.Setenv("SETTLEMENT_INTERVAL", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.LogLevel)
	}
	if cfg.PriceTickInterval != 5*time.Second {
		t.Errorf("expected price tick interval 5s, got %v", cfg.PriceTickInterval)
	}
	if cfg.SettlementInterval != time.Minute {
		t.Errorf("expected settlement interval 1m, got %v", cfg.SettlementInterval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"BadPort", "PORT", "not-a-number"},
		{"BadLogLevel", "LOG_LEVEL", "verbose"},
		{"BadTickInterval", "PRICE_TICK_INTERVAL", "sixty seconds"},
		{"BadSettlementInterval", "SETTLEMENT_INTERVAL", "1x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s, got nil", tt.key, tt.value)
			}
		})
	}
}
