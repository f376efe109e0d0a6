// Package strategy contains the momentum entry and exit rules evaluated on every bar.
package strategy

import (
	"fmt"
	"strings"

	"warriorbot-go/internal/config"
	"warriorbot-go/internal/signal"
)

// Strategy defines behaviour shared by strategy implementations used by the controller.
type Strategy interface {
	Name() string
	OnBar(bar signal.Bar) *signal.Signal
	CheckExit(pos Position, bar signal.Bar) (bool, string)
}

// Primer is implemented by strategies that need premarket reference data.
type Primer interface {
	Prime(symbol string, ref signal.Reference)
}

// Position is an open trade as the controller tracks it.
type Position struct {
	Symbol   string
	Strategy string
	Qty      float64
	Entry    float64
	Stop     float64
	Target   float64
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	MinGapPercent     float64
	OpeningRangeBars  int
	RewardRisk        float64
	EMAPeriod         int
	MaxPullbackBars   int
	MACDFast          int
	MACDSlow          int
	MACDSignal        int
	HistoryBars       int
	MinPrice          float64
	MaxPrice          float64
	MinRelativeVolume float64
}

// ParamsFromConfig merges strategy and scanner settings.
func ParamsFromConfig(cfg *config.Config) Params {
	p := cfg.Strategy.Params
	return Params{
		MinGapPercent:     p.MinGapPercent,
		OpeningRangeBars:  p.OpeningRangeBars,
		RewardRisk:        p.RewardRisk,
		EMAPeriod:         p.EMAPeriod,
		MaxPullbackBars:   p.MaxPullbackBars,
		MACDFast:          p.MACDFast,
		MACDSlow:          p.MACDSlow,
		MACDSignal:        p.MACDSignal,
		HistoryBars:       p.HistoryBars,
		MinPrice:          cfg.Scanner.MinPrice,
		MaxPrice:          cfg.Scanner.MaxPrice,
		MinRelativeVolume: cfg.Scanner.MinRelativeVolume,
	}
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "gap_and_go", "gapandgo", "gap":
		return NewGapAndGo(params), nil
	case "micro_pullback", "micropullback", "pullback":
		return NewMicroPullback(params), nil
	default:
		return nil, fmt.Errorf("unknown strategy mode %q", mode)
	}
}

// BuildAll builds every configured mode, failing on the first unknown one.
func BuildAll(modes []string, params Params) ([]Strategy, error) {
	out := make([]Strategy, 0, len(modes))
	for _, mode := range modes {
		s, err := Build(mode, params)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// exitOnLevels closes a position on its stop or target.
func exitOnLevels(pos Position, bar signal.Bar) (bool, string) {
	if pos.Stop > 0 && bar.Low <= pos.Stop {
		return true, fmt.Sprintf("stop %.2f hit", pos.Stop)
	}
	if pos.Target > 0 && bar.High >= pos.Target {
		return true, fmt.Sprintf("target %.2f hit", pos.Target)
	}
	return false, ""
}

func targetFor(entry, stop, rewardRisk float64) float64 {
	return entry + rewardRisk*(entry-stop)
}

type barSeries struct {
	bars []signal.Bar
	y    int
	m    int
	d    int
}

// append adds a bar, starting over on a new trading day and capping history.
func (s *barSeries) append(bar signal.Bar, capacity int) {
	y, m, d := bar.Ts.Date()
	if len(s.bars) > 0 && (y != s.y || int(m) != s.m || d != s.d) {
		s.bars = s.bars[:0]
	}
	s.y, s.m, s.d = y, int(m), d
	s.bars = append(s.bars, bar)
	if capacity > 0 && len(s.bars) > capacity {
		s.bars = s.bars[len(s.bars)-capacity:]
	}
}

func (s *barSeries) newSession() bool { return len(s.bars) == 1 }

func (s *barSeries) closes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Close
	}
	return out
}

func (s *barSeries) volumes() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = b.Volume
	}
	return out
}

func (s *barSeries) typicals() []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = (b.High + b.Low + b.Close) / 3
	}
	return out
}
