package config

import "strings"

// Default values for optional configuration fields.
const (
	DefaultLogLevel         = "info"
	DefaultMetricsAddr      = ":9108"
	DefaultBridgeTransport  = TransportTCP
	DefaultBridgeAddr       = "127.0.0.1:7788"
	DefaultDialTimeoutMs    = 5000
	DefaultWriteTimeoutMs   = 2000
	DefaultDialAttempts     = 5
	DefaultQueueSize        = 256
	DefaultTimezone         = "America/New_York"
	DefaultStartHour        = 7
	DefaultEndHour          = 11
	DefaultMinPrice         = 1.0
	DefaultMaxPrice         = 10.0
	DefaultMaxFloat         = 20_000_000
	DefaultMinRelVolume     = 5.0
	DefaultRiskPerTrade     = 0.05
	DefaultDailyMaxLoss     = 0.10
	DefaultMaxConsecLosses  = 3
	DefaultMinGapPercent    = 4.0
	DefaultOpeningRangeBars = 5
	DefaultRewardRisk       = 2.0
	DefaultEMAPeriod        = 9
	DefaultMaxPullbackBars  = 3
	DefaultMACDFast         = 12
	DefaultMACDSlow         = 26
	DefaultMACDSignal       = 9
	DefaultHistoryBars      = 390
	DefaultAvgVolumeBars    = 20
	DefaultStartingCash     = 25_000
)

// DefaultModes lists the strategies enabled when none are configured.
var DefaultModes = []string{"gap_and_go", "micro_pullback"}

// Default returns a fully populated configuration.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// ApplyDefaults fills zero-valued optional fields in place.
func ApplyDefaults(c *Config) {
	if c.App.LogLevel == "" {
		c.App.LogLevel = DefaultLogLevel
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = DefaultMetricsAddr
	}

	c.Bridge.Transport = strings.ToLower(strings.TrimSpace(c.Bridge.Transport))
	if c.Bridge.Transport == "" {
		c.Bridge.Transport = DefaultBridgeTransport
	}
	if c.Bridge.Addr == "" {
		c.Bridge.Addr = DefaultBridgeAddr
	}
	if c.Bridge.DialTimeoutMs == 0 {
		c.Bridge.DialTimeoutMs = DefaultDialTimeoutMs
	}
	if c.Bridge.WriteTimeoutMs == 0 {
		c.Bridge.WriteTimeoutMs = DefaultWriteTimeoutMs
	}
	if c.Bridge.DialAttempts == 0 {
		c.Bridge.DialAttempts = DefaultDialAttempts
	}
	if c.Bridge.QueueSize == 0 {
		c.Bridge.QueueSize = DefaultQueueSize
	}

	if c.Session.Timezone == "" {
		c.Session.Timezone = DefaultTimezone
	}
	if c.Session.StartHour == 0 && c.Session.EndHour == 0 {
		c.Session.StartHour = DefaultStartHour
		c.Session.EndHour = DefaultEndHour
	}

	if c.Scanner.MinPrice == 0 {
		c.Scanner.MinPrice = DefaultMinPrice
	}
	if c.Scanner.MaxPrice == 0 {
		c.Scanner.MaxPrice = DefaultMaxPrice
	}
	if c.Scanner.MaxFloat == 0 {
		c.Scanner.MaxFloat = DefaultMaxFloat
	}
	if c.Scanner.MinRelativeVolume == 0 {
		c.Scanner.MinRelativeVolume = DefaultMinRelVolume
	}

	if c.Risk.RiskPerTrade == 0 {
		c.Risk.RiskPerTrade = DefaultRiskPerTrade
	}
	if c.Risk.DailyMaxLoss == 0 {
		c.Risk.DailyMaxLoss = DefaultDailyMaxLoss
	}
	if c.Risk.MaxConsecutiveLosses == 0 {
		c.Risk.MaxConsecutiveLosses = DefaultMaxConsecLosses
	}

	if len(c.Strategy.Modes) == 0 {
		c.Strategy.Modes = append([]string(nil), DefaultModes...)
	}
	p := &c.Strategy.Params
	if p.MinGapPercent == 0 {
		p.MinGapPercent = DefaultMinGapPercent
	}
	if p.OpeningRangeBars == 0 {
		p.OpeningRangeBars = DefaultOpeningRangeBars
	}
	if p.RewardRisk == 0 {
		p.RewardRisk = DefaultRewardRisk
	}
	if p.EMAPeriod == 0 {
		p.EMAPeriod = DefaultEMAPeriod
	}
	if p.MaxPullbackBars == 0 {
		p.MaxPullbackBars = DefaultMaxPullbackBars
	}
	if p.MACDFast == 0 {
		p.MACDFast = DefaultMACDFast
	}
	if p.MACDSlow == 0 {
		p.MACDSlow = DefaultMACDSlow
	}
	if p.MACDSignal == 0 {
		p.MACDSignal = DefaultMACDSignal
	}
	if p.HistoryBars == 0 {
		p.HistoryBars = DefaultHistoryBars
	}
	if p.AverageVolumeBars == 0 {
		p.AverageVolumeBars = DefaultAvgVolumeBars
	}

	if c.Paper.StartingCash == 0 {
		c.Paper.StartingCash = DefaultStartingCash
	}
}
