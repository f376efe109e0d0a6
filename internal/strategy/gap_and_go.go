package strategy

import (
	"fmt"
	"math"
	"sync"

	"warriorbot-go/internal/pattern"
	"warriorbot-go/internal/signal"
)

// GapAndGo buys the first opening-range breakout of a stock that gapped up on volume.
type GapAndGo struct {
	params Params
	mu     sync.Mutex
	refs   map[string]signal.Reference
	series map[string]*gapState
}

// gapState keeps the session open and opening range apart from the capped
// history, which slides forward on long sessions.
type gapState struct {
	barSeries
	fired       bool
	sessionBars int
	sessionOpen float64
	orHigh      float64
}

func (st *gapState) track(bar signal.Bar, orBars int) {
	if st.newSession() {
		st.fired, st.sessionBars, st.sessionOpen, st.orHigh = false, 0, bar.Open, 0
	}
	st.sessionBars++
	if st.sessionBars <= orBars {
		st.orHigh = math.Max(st.orHigh, bar.High)
	}
}

// NewGapAndGo builds the strategy, filling unset knobs with conservative defaults.
func NewGapAndGo(params Params) *GapAndGo {
	if params.OpeningRangeBars <= 0 {
		params.OpeningRangeBars = 5
	}
	if params.RewardRisk <= 0 {
		params.RewardRisk = 2
	}
	if params.MinGapPercent <= 0 {
		params.MinGapPercent = 4
	}
	return &GapAndGo{
		params: params,
		refs:   make(map[string]signal.Reference),
		series: make(map[string]*gapState),
	}
}

// Name returns the identifier for the strategy implementation.
func (g *GapAndGo) Name() string { return "GapAndGo" }

// Prime records the prior close and premarket relative volume for a symbol.
func (g *GapAndGo) Prime(symbol string, ref signal.Reference) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refs[symbol] = ref
}

// OnBar fires once per session when price closes above the opening-range high.
func (g *GapAndGo) OnBar(bar signal.Bar) *signal.Signal {
	if bar.Symbol == "" || bar.Close <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.series[bar.Symbol]
	if st == nil {
		st = &gapState{}
		g.series[bar.Symbol] = st
	}
	orBars := g.params.OpeningRangeBars
	st.append(bar, g.params.HistoryBars)
	st.track(bar, orBars)

	ref, ok := g.refs[bar.Symbol]
	if !ok || ref.PrevClose <= 0 || st.fired {
		return nil
	}
	if bar.Close < g.params.MinPrice || (g.params.MaxPrice > 0 && bar.Close > g.params.MaxPrice) {
		return nil
	}
	if ref.RelativeVolume < g.params.MinRelativeVolume {
		return nil
	}

	bars := st.bars
	if st.sessionBars <= orBars || len(bars) < 2 {
		return nil
	}
	gap := (st.sessionOpen - ref.PrevClose) / ref.PrevClose * 100
	if gap < g.params.MinGapPercent {
		return nil
	}

	orHigh := st.orHigh
	prev := bars[len(bars)-2]
	if bar.Close <= orHigh || prev.Close > orHigh {
		return nil
	}

	stop := bar.Low
	if stop >= bar.Close {
		return nil
	}
	st.fired = true
	reason := fmt.Sprintf("gap=%.1f%% rvol=%.1f orh=%.2f", gap, ref.RelativeVolume, orHigh)
	if pattern.DetectFlatTopBreakout(bars, pattern.DefaultFlatTopTolerance) {
		reason += " flat_top"
	}
	return &signal.Signal{
		Symbol: bar.Symbol,
		Score:  gap / 100,
		Reason: reason,
		Stop:   stop,
		Target: targetFor(bar.Close, stop, g.params.RewardRisk),
		Ts:     bar.Ts,
	}
}

// CheckExit closes on stop, target, or a doji/red reversal below the prior bar's low.
func (g *GapAndGo) CheckExit(pos Position, bar signal.Bar) (bool, string) {
	if hit, reason := exitOnLevels(pos, bar); hit {
		return hit, reason
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.series[pos.Symbol]
	if st == nil || len(st.bars) < 2 {
		return false, ""
	}
	prev := st.bars[len(st.bars)-2]
	if !bar.Green() && bar.Close < prev.Low {
		return true, "reversal below prior low"
	}
	if pattern.IsDoji(bar, pattern.DefaultDojiThreshold) && bar.Close < pos.Entry {
		return true, "doji under entry"
	}
	return false, ""
}
