package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "livequant-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.App.MetricsAddr != ":9100" {
		t.Fatalf("unexpected App.MetricsAddr: %s", cfg.App.MetricsAddr)
	}
	if cfg.App.APIAddr != ":8080" {
		t.Fatalf("unexpected App.APIAddr: %s", cfg.App.APIAddr)
	}
	if cfg.Feed.Provider != "binance" {
		t.Fatalf("unexpected Feed.Provider: %s", cfg.Feed.Provider)
	}
	if len(cfg.Feed.Symbols) != 2 || cfg.Feed.Symbols[0] != "BTCUSDT" || cfg.Feed.Symbols[1] != "ETHUSDT" {
		t.Fatalf("unexpected symbols: %+v", cfg.Feed.Symbols)
	}
	if cfg.Buffer.CapacityPerSymbol != 5000 {
		t.Fatalf("unexpected buffer capacity: %d", cfg.Buffer.CapacityPerSymbol)
	}
	if cfg.Store.Path != "data/ticks.db" {
		t.Fatalf("unexpected store path: %s", cfg.Store.Path)
	}
	if cfg.Analytics.Granularity != "1m" {
		t.Fatalf("unexpected granularity: %s", cfg.Analytics.Granularity)
	}
	if cfg.Analytics.RollingWindow != 20 {
		t.Fatalf("unexpected rolling window: %d", cfg.Analytics.RollingWindow)
	}
	if cfg.RefreshInterval() != 2*time.Second {
		t.Fatalf("unexpected refresh interval: %s", cfg.RefreshInterval())
	}
	if cfg.Alerts.EventsPath != "data/alerts.jsonl" {
		t.Fatalf("unexpected alerts events path: %s", cfg.Alerts.EventsPath)
	}
}

func TestLoadClampsRollingWindow(t *testing.T) {
	path := filepath.Join("testdata", "config_out_of_range.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Analytics.RollingWindow != 100 {
		t.Fatalf("expected rolling window clamped to 100, got %d", cfg.Analytics.RollingWindow)
	}
	if cfg.Buffer.CapacityPerSymbol != 10000 {
		t.Fatalf("expected default buffer capacity, got %d", cfg.Buffer.CapacityPerSymbol)
	}
	if cfg.Feed.Provider != "stub" {
		t.Fatalf("expected stub provider default, got %s", cfg.Feed.Provider)
	}
}

func TestLoadRejectsBadGranularity(t *testing.T) {
	path := filepath.Join("testdata", "config_bad_granularity.yaml")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid granularity")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseGranularity(t *testing.T) {
	cases := map[string]time.Duration{
		"1s": time.Second,
		"1m": time.Minute,
		"5m": 5 * time.Minute,
	}
	for label, want := range cases {
		got, err := ParseGranularity(label)
		if err != nil {
			t.Fatalf("ParseGranularity(%s) returned error: %v", label, err)
		}
		if got != want {
			t.Fatalf("ParseGranularity(%s) = %s, want %s", label, got, want)
		}
	}
	if _, err := ParseGranularity("1h"); err == nil {
		t.Fatalf("expected error for unsupported granularity")
	}
}
