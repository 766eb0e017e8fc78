package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "desk.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8090 || cfg.Market.PollIntervalSec != 30 || cfg.Market.SearchDebounceMs != 300 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Market.ReferencePrices["BTC"] != 45000 {
		t.Fatalf("BTC reference = %v", cfg.Market.ReferencePrices["BTC"])
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	p := writeFile(t, `
server:
  port: 9000
backend:
  base_url: http://rates.internal:8080
market:
  fallback_symbols: [BTC, SOL]
  reference_prices:
    SOL: 150
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Backend.BaseURL != "http://rates.internal:8080" {
		t.Errorf("base url = %s", cfg.Backend.BaseURL)
	}
	if len(cfg.Market.FallbackSymbols) != 2 || cfg.Market.FallbackSymbols[1] != "SOL" {
		t.Errorf("fallback = %v", cfg.Market.FallbackSymbols)
	}
	if cfg.Market.ReferencePrices["SOL"] != 150 {
		t.Errorf("SOL reference = %v", cfg.Market.ReferencePrices["SOL"])
	}
	if cfg.Backend.APIPrefix != "/api/v1" {
		t.Errorf("untouched key lost its default: %q", cfg.Backend.APIPrefix)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7001")
	t.Setenv("CRYPTORATE_BASE_URL", "http://env:1")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7001 || cfg.Backend.BaseURL != "http://env:1" {
		t.Fatalf("env not applied: %+v", cfg.Server)
	}
	if cfg.Store.Sqlite.Path != "" {
		t.Fatalf("empty SQLITE_PATH should disable persistence, got %q", cfg.Store.Sqlite.Path)
	}
	if cfg.Analysis.Narrator.APIKey != "sk-test" {
		t.Fatal("narrator key not applied")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  string
	}{
		{name: "bad yaml", yaml: "server: [\n"},
		{name: "bad port env", env: "abc"},
		{name: "zero poll", yaml: "market:\n  poll_interval_sec: 0\n"},
		{name: "negative reference", yaml: "market:\n  reference_prices:\n    BTC: -1\n"},
		{name: "empty fallback", yaml: "market:\n  fallback_symbols: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv("PORT", tt.env)
			}
			p := writeFile(t, tt.yaml)
			if _, err := Load(p); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	if got := Path("configs/desk.yaml"); got != "configs/desk.yaml" {
		t.Fatalf("got %s", got)
	}
	t.Setenv(EnvConfigPath, "/etc/desk.yaml")
	if got := Path("configs/desk.yaml"); got != "/etc/desk.yaml" {
		t.Fatalf("got %s", got)
	}
}
