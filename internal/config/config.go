package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const EnvConfigPath = "DESK_CONFIG"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Backend  BackendConfig  `yaml:"backend"`
	Market   MarketConfig   `yaml:"market"`
	Store    StoreConfig    `yaml:"store"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type BackendConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIPrefix string `yaml:"api_prefix"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

type MarketConfig struct {
	PollIntervalSec  int                `yaml:"poll_interval_sec"`
	SearchDebounceMs int                `yaml:"search_debounce_ms"`
	VisibleLimit     int                `yaml:"visible_limit"`
	DefaultSymbol    string             `yaml:"default_symbol"`
	DefaultTimeframe string             `yaml:"default_timeframe"`
	FallbackSymbols  []string           `yaml:"fallback_symbols"`
	ReferencePrices  map[string]float64 `yaml:"reference_prices"`
	SyntheticLength  int                `yaml:"synthetic_length"`
}

type StoreConfig struct {
	Sqlite SqliteConfig `yaml:"sqlite"`
}

type SqliteConfig struct {
	Path string `yaml:"path"`
}

type AnalysisConfig struct {
	Narrator NarratorConfig `yaml:"narrator"`
}

type NarratorConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

// Default returns the configuration used when no file overrides a key.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8090},
		Log:    LogConfig{Level: "info"},
		Backend: BackendConfig{
			BaseURL:   "http://localhost:8080",
			APIPrefix: "/api/v1",
			TimeoutMs: 10000,
		},
		Market: MarketConfig{
			PollIntervalSec:  30,
			SearchDebounceMs: 300,
			VisibleLimit:     20,
			DefaultSymbol:    "BTC",
			DefaultTimeframe: "1D",
			FallbackSymbols:  []string{"BTC", "ETH", "BNB"},
			ReferencePrices: map[string]float64{
				"BTC": 45000,
				"ETH": 2800,
				"BNB": 320,
			},
			SyntheticLength: 50,
		},
		Store: StoreConfig{
			Sqlite: SqliteConfig{Path: "data/desk.db"},
		},
		Analysis: AnalysisConfig{
			Narrator: NarratorConfig{
				Enabled:   false,
				Model:     "gpt-4.1-mini",
				TimeoutMs: 10000,
			},
		},
	}
}

// Path resolves the config file location, honouring DESK_CONFIG.
func Path(fallback string) string {
	if v := strings.TrimSpace(os.Getenv(EnvConfigPath)); v != "" {
		return v
	}
	return fallback
}

// Load reads path on top of Default. A missing file is not an error: the
// desk runs against defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("CRYPTORATE_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v, ok := os.LookupEnv("SQLITE_PATH"); ok {
		cfg.Store.Sqlite.Path = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Analysis.Narrator.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.Analysis.Narrator.Model = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Analysis.Narrator.BaseURL = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Backend.TimeoutMs <= 0 {
		return fmt.Errorf("backend.timeout_ms must be positive")
	}
	if c.Market.PollIntervalSec <= 0 {
		return fmt.Errorf("market.poll_interval_sec must be positive")
	}
	if c.Market.SearchDebounceMs < 0 {
		return fmt.Errorf("market.search_debounce_ms must not be negative")
	}
	if c.Market.VisibleLimit <= 0 {
		return fmt.Errorf("market.visible_limit must be positive")
	}
	if len(c.Market.FallbackSymbols) == 0 {
		return fmt.Errorf("market.fallback_symbols must not be empty")
	}
	if strings.TrimSpace(c.Market.DefaultSymbol) == "" {
		return fmt.Errorf("market.default_symbol is required")
	}
	for sym, p := range c.Market.ReferencePrices {
		if p <= 0 {
			return fmt.Errorf("market.reference_prices[%s] must be positive", sym)
		}
	}
	return nil
}
