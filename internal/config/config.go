// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Session bounds the window in which the controller may open positions.
type Session struct {
	Timezone     string `yaml:"timezone"`
	StartHour    int    `yaml:"start_hour"`
	EndHour      int    `yaml:"end_hour"`
	IgnoreWindow bool   `yaml:"ignore_window"`
}

// Scanner holds watchlist filters for momentum candidates.
type Scanner struct {
	MinPrice          float64  `yaml:"min_price"`
	MaxPrice          float64  `yaml:"max_price"`
	MaxFloat          float64  `yaml:"max_float"`
	MinRelativeVolume float64  `yaml:"min_relative_volume"`
	RequireNews       bool     `yaml:"require_news"`
	Watchlist         []string `yaml:"watchlist"`
	QuotesPath        string   `yaml:"quotes_path"` // optional premarket quotes CSV
}

// Risk encodes guard-rails for how much size the controller may take on.
type Risk struct {
	MaxNotionalPerTrade  float64 `yaml:"max_notional_per_trade"`
	RiskPerTrade         float64 `yaml:"risk_per_trade"`
	DailyMaxLoss         float64 `yaml:"daily_max_loss"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
}

// StrategyParams groups tunable knobs for the strategy implementations.
type StrategyParams struct {
	MinGapPercent     float64 `yaml:"min_gap_percent"`
	OpeningRangeBars  int     `yaml:"opening_range_bars"`
	RewardRisk        float64 `yaml:"reward_risk"`
	EMAPeriod         int     `yaml:"ema_period"`
	MaxPullbackBars   int     `yaml:"max_pullback_bars"`
	MACDFast          int     `yaml:"macd_fast"`
	MACDSlow          int     `yaml:"macd_slow"`
	MACDSignal        int     `yaml:"macd_signal"`
	HistoryBars       int     `yaml:"history_bars"`
	AverageVolumeBars int     `yaml:"average_volume_bars"`
}

// Strategy specifies which strategies are active along with the parameter bundle.
type Strategy struct {
	Modes  []string       `yaml:"modes"`
	Params StrategyParams `yaml:"params"`
}

// Paper captures replay-host account settings.
type Paper struct {
	StartingCash         float64 `yaml:"starting_cash"`
	MaxPositionPerSymbol float64 `yaml:"max_position_per_symbol"`
	FillsPath            string  `yaml:"fills_path"`
	CommissionPerShare   float64 `yaml:"commission_per_share"`
	MinCommission        float64 `yaml:"min_commission"`
}

// Journal points at the controller's SQLite journal.
type Journal struct {
	Path string `yaml:"path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Bridge   Bridge   `yaml:"bridge"`
	Session  Session  `yaml:"session"`
	Scanner  Scanner  `yaml:"scanner"`
	Risk     Risk     `yaml:"risk"`
	Strategy Strategy `yaml:"strategy"`
	Paper    Paper    `yaml:"paper"`
	Journal  Journal  `yaml:"journal"`
}

// Load reads a YAML file from disk, hydrates a Config struct and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	ApplyDefaults(&config)
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate reports every inconsistent setting at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	var errs []error
	switch cfg.Bridge.Transport {
	case TransportTCP, TransportUnix, TransportWebSocket:
	default:
		errs = append(errs, fmt.Errorf("bridge.transport %q not supported", cfg.Bridge.Transport))
	}
	if cfg.Bridge.Addr == "" {
		errs = append(errs, errors.New("bridge.addr is required"))
	}
	if cfg.Scanner.MinPrice > cfg.Scanner.MaxPrice {
		errs = append(errs, fmt.Errorf("scanner.min_price %.2f above max_price %.2f", cfg.Scanner.MinPrice, cfg.Scanner.MaxPrice))
	}
	if cfg.Risk.RiskPerTrade <= 0 || cfg.Risk.RiskPerTrade > 1 {
		errs = append(errs, fmt.Errorf("risk.risk_per_trade must be in (0,1], got %.4f", cfg.Risk.RiskPerTrade))
	}
	if cfg.Risk.DailyMaxLoss <= 0 || cfg.Risk.DailyMaxLoss > 1 {
		errs = append(errs, fmt.Errorf("risk.daily_max_loss must be in (0,1], got %.4f", cfg.Risk.DailyMaxLoss))
	}
	if cfg.Session.StartHour < 0 || cfg.Session.EndHour > 24 || cfg.Session.StartHour >= cfg.Session.EndHour {
		errs = append(errs, fmt.Errorf("session window %d-%d invalid", cfg.Session.StartHour, cfg.Session.EndHour))
	}
	if cfg.Paper.CommissionPerShare < 0 || cfg.Paper.MinCommission < 0 {
		errs = append(errs, errors.New("paper commissions must not be negative"))
	}
	p := cfg.Strategy.Params
	if p.MACDFast >= p.MACDSlow {
		errs = append(errs, fmt.Errorf("strategy.params.macd_fast %d must be below macd_slow %d", p.MACDFast, p.MACDSlow))
	}
	return errors.Join(errs...)
}
