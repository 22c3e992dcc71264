package infra

import (
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"cryptoverse/internal/domain"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("app:\n  name: TestVerse\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.App.Name != "TestVerse" {
		t.Errorf("Expected app name TestVerse, got %s", cfg.App.Name)
	}
	if cfg.API.Market.PerPage != 20 || cfg.API.Market.Page != 1 {
		t.Errorf("Expected per_page=20 page=1, got %d/%d", cfg.API.Market.PerPage, cfg.API.Market.Page)
	}
	if cfg.MarketRefreshInterval().Seconds() != 60 {
		t.Errorf("Expected 60s market refresh, got %v", cfg.MarketRefreshInterval())
	}
	if cfg.HistoryRefreshInterval().Minutes() != 5 {
		t.Errorf("Expected 5m history refresh, got %v", cfg.HistoryRefreshInterval())
	}
	if cfg.API.History.AssetID != "bitcoin" {
		t.Errorf("Expected bitcoin, got %s", cfg.API.History.AssetID)
	}
}

func TestParseConfig_EnvOverride(t *testing.T) {
	t.Setenv("CRYPTO_COINGECKO_KEY", "demo-key")
	t.Setenv("CRYPTO_SERVER_ADDR", ":9999")

	cfg, err := ParseConfig([]byte("{}"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.API.CoinGecko.APIKey != "demo-key" {
		t.Errorf("Expected env api key, got %q", cfg.API.CoinGecko.APIKey)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Expected env addr, got %q", cfg.Server.Addr)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"bad window", "api:\n  history:\n    default_window: 14\n", "api.history.default_window"},
		{"bad per page", "api:\n  market:\n    per_page: 1000\n", "api.market.per_page"},
		{"bad base url", "api:\n  coingecko:\n    base_url: \"ftp://example\"\n", "api.coingecko.base_url"},
		{"negative interval", "api:\n  market:\n    refresh_interval_sec: -5\n", "refresh_interval_sec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("Expected ConfigError, got %T: %v", err, err)
			}
			if ce.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, ce.Field)
			}
		})
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}
