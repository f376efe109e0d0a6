package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "warriorbot-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.Bridge.Transport != TransportUnix {
		t.Fatalf("unexpected bridge transport: %s", cfg.Bridge.Transport)
	}
	if cfg.Bridge.Addr != "/tmp/warriorbot-test.sock" {
		t.Fatalf("unexpected bridge addr: %s", cfg.Bridge.Addr)
	}
	if cfg.Bridge.DialAttempts != 2 || cfg.Bridge.QueueSize != 16 {
		t.Fatalf("unexpected bridge tuning: %+v", cfg.Bridge)
	}
	if cfg.Bridge.WriteTimeoutMs != DefaultWriteTimeoutMs {
		t.Fatalf("expected default write timeout, got %d", cfg.Bridge.WriteTimeoutMs)
	}
	if cfg.Scanner.MinPrice != 2 || cfg.Scanner.MaxPrice != 20 {
		t.Fatalf("unexpected scanner price band: %+v", cfg.Scanner)
	}
	if !cfg.Scanner.RequireNews {
		t.Fatalf("expected require_news")
	}
	if len(cfg.Scanner.Watchlist) != 2 || cfg.Scanner.Watchlist[0] != "ABCD" {
		t.Fatalf("unexpected watchlist: %+v", cfg.Scanner.Watchlist)
	}
	if cfg.Risk.RiskPerTrade != 0.02 {
		t.Fatalf("unexpected risk per trade: %.4f", cfg.Risk.RiskPerTrade)
	}
	if cfg.Risk.MaxConsecutiveLosses != DefaultMaxConsecLosses {
		t.Fatalf("expected default consecutive losses, got %d", cfg.Risk.MaxConsecutiveLosses)
	}
	if len(cfg.Strategy.Modes) != 1 || cfg.Strategy.Modes[0] != "micro_pullback" {
		t.Fatalf("unexpected modes: %+v", cfg.Strategy.Modes)
	}
	if cfg.Strategy.Params.MinGapPercent != 10 {
		t.Fatalf("unexpected min gap: %.2f", cfg.Strategy.Params.MinGapPercent)
	}
	if cfg.Strategy.Params.MACDSlow != DefaultMACDSlow {
		t.Fatalf("expected default macd slow, got %d", cfg.Strategy.Params.MACDSlow)
	}
	if cfg.Paper.StartingCash != 10000 {
		t.Fatalf("expected starting cash 10000, got %.2f", cfg.Paper.StartingCash)
	}
	if cfg.Paper.CommissionPerShare != 0.005 || cfg.Paper.MinCommission != 1 {
		t.Fatalf("unexpected commissions: %+v", cfg.Paper)
	}
	if cfg.Journal.Path != "data/journal.db" {
		t.Fatalf("unexpected journal path: %s", cfg.Journal.Path)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.App.Name = "saved"
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.App.Name != "saved" || loaded.Bridge.Addr != DefaultBridgeAddr {
		t.Fatalf("unexpected reloaded config: %+v", loaded.App)
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Bridge.Transport = "carrier-pigeon"
	cfg.Scanner.MinPrice = 50
	cfg.Risk.RiskPerTrade = 2
	cfg.Paper.MinCommission = -1
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"carrier-pigeon", "min_price", "risk_per_trade", "commissions"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvBridgeAddr, "10.0.0.5:9000")
	t.Setenv(EnvBridgeTransport, "WS")
	t.Setenv(EnvLogLevel, "warn")

	cfg := Default()
	ApplyEnv(cfg, filepath.Join(t.TempDir(), "absent.env"))
	if cfg.Bridge.Addr != "10.0.0.5:9000" {
		t.Fatalf("expected env addr, got %s", cfg.Bridge.Addr)
	}
	if cfg.Bridge.Transport != TransportWebSocket {
		t.Fatalf("expected ws transport, got %s", cfg.Bridge.Transport)
	}
	if cfg.App.LogLevel != "warn" {
		t.Fatalf("expected warn level, got %s", cfg.App.LogLevel)
	}
}
