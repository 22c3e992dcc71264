package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"time"

	"cryptoverse/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultConfigPath is used when CONFIG_PATH is not set
	DefaultConfigPath = "configs/config.yaml"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	API struct {
		CoinGecko struct {
			BaseURL    string `yaml:"base_url"`
			APIKey     string `yaml:"api_key"`
			TimeoutSec int    `yaml:"timeout_sec"`
		} `yaml:"coingecko"`
		Market struct {
			VsCurrency         string `yaml:"vs_currency"`
			PerPage            int    `yaml:"per_page"`
			Page               int    `yaml:"page"`
			RefreshIntervalSec int    `yaml:"refresh_interval_sec"`
		} `yaml:"market"`
		History struct {
			AssetID            string `yaml:"asset_id"`
			DefaultWindow      int    `yaml:"default_window"`
			RefreshIntervalSec int    `yaml:"refresh_interval_sec"`
		} `yaml:"history"`
	} `yaml:"api"`

	Server struct {
		Addr      string `yaml:"addr"`
		PprofAddr string `yaml:"pprof_addr"`
	} `yaml:"server"`

	UI struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"ui"`

	Icons struct {
		Size        int `yaml:"size"`
		Concurrency int `yaml:"concurrency"`
	} `yaml:"icons"`

	Account struct {
		SimulatedLatencyMS int `yaml:"simulated_latency_ms"`
	} `yaml:"account"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML bytes, applies defaults and env overrides, then validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	// 보안 우선 - .env 및 환경 변수 오버라이드 지원
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", slog.Any("error", err))
	}
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "CryptoVerse"
	}
	if c.API.CoinGecko.BaseURL == "" {
		c.API.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.API.CoinGecko.TimeoutSec == 0 {
		c.API.CoinGecko.TimeoutSec = 10
	}
	if c.API.Market.VsCurrency == "" {
		c.API.Market.VsCurrency = "usd"
	}
	if c.API.Market.PerPage == 0 {
		c.API.Market.PerPage = 20
	}
	if c.API.Market.Page == 0 {
		c.API.Market.Page = 1
	}
	if c.API.Market.RefreshIntervalSec == 0 {
		c.API.Market.RefreshIntervalSec = 60
	}
	if c.API.History.AssetID == "" {
		c.API.History.AssetID = "bitcoin"
	}
	if c.API.History.DefaultWindow == 0 {
		c.API.History.DefaultWindow = 1
	}
	if c.API.History.RefreshIntervalSec == 0 {
		c.API.History.RefreshIntervalSec = 300
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Icons.Size == 0 {
		c.Icons.Size = 32
	}
	if c.Icons.Concurrency == 0 {
		c.Icons.Concurrency = 5
	}
	if c.Account.SimulatedLatencyMS == 0 {
		c.Account.SimulatedLatencyMS = 1500
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Logging.File == "" {
		c.Logging.File = "app.log"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.CoinGecko.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &domain.ConfigError{Field: "api.coingecko.base_url", Err: fmt.Errorf("invalid URL %q", c.API.CoinGecko.BaseURL)}
	}
	if c.API.Market.PerPage < 1 || c.API.Market.PerPage > 250 {
		return &domain.ConfigError{Field: "api.market.per_page", Err: fmt.Errorf("must be between 1 and 250, got %d", c.API.Market.PerPage)}
	}
	if c.API.Market.RefreshIntervalSec < 1 || c.API.History.RefreshIntervalSec < 1 {
		return &domain.ConfigError{Field: "refresh_interval_sec", Err: errors.New("refresh interval must be positive")}
	}
	if _, err := domain.ParseWindow(c.API.History.DefaultWindow); err != nil {
		return &domain.ConfigError{Field: "api.history.default_window", Err: err}
	}
	if c.UI.Timezone != "" {
		if _, err := time.LoadLocation(c.UI.Timezone); err != nil {
			return &domain.ConfigError{Field: "ui.timezone", Err: err}
		}
	}
	if c.Icons.Size < 8 || c.Icons.Size > 256 {
		return &domain.ConfigError{Field: "icons.size", Err: fmt.Errorf("must be between 8 and 256, got %d", c.Icons.Size)}
	}

	return nil
}

// Location resolves the display timezone, falling back to local time.
func (c *Config) Location() *time.Location {
	if c.UI.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.UI.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// MarketRefreshInterval returns the snapshot refresh period
func (c *Config) MarketRefreshInterval() time.Duration {
	return time.Duration(c.API.Market.RefreshIntervalSec) * time.Second
}

// HistoryRefreshInterval returns the price history refresh period
func (c *Config) HistoryRefreshInterval() time.Duration {
	return time.Duration(c.API.History.RefreshIntervalSec) * time.Second
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("CRYPTO_COINGECKO_KEY"); key != "" {
		cfg.API.CoinGecko.APIKey = key
	}
	if addr := os.Getenv("CRYPTO_SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("CRYPTO_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
