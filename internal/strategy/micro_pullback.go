package strategy

import (
	"fmt"
	"math"
	"sync"

	"warriorbot-go/internal/indicator"
	"warriorbot-go/internal/pattern"
	"warriorbot-go/internal/signal"
)

// MicroPullback buys the first candle to make a new high after a shallow,
// light-volume pullback inside a strong move.
type MicroPullback struct {
	params Params
	mu     sync.Mutex
	series map[string]*pullbackState
}

type pullbackState struct {
	barSeries
	ema float64
}

// NewMicroPullback builds the strategy, filling unset knobs with defaults.
func NewMicroPullback(params Params) *MicroPullback {
	if params.EMAPeriod <= 0 {
		params.EMAPeriod = 9
	}
	if params.MaxPullbackBars <= 0 {
		params.MaxPullbackBars = 3
	}
	if params.RewardRisk <= 0 {
		params.RewardRisk = 2
	}
	if params.MACDFast <= 0 || params.MACDSlow <= params.MACDFast {
		params.MACDFast, params.MACDSlow = 12, 26
	}
	if params.MACDSignal <= 0 {
		params.MACDSignal = 9
	}
	return &MicroPullback{params: params, series: make(map[string]*pullbackState)}
}

// Name returns the identifier for the strategy implementation.
func (m *MicroPullback) Name() string { return "MicroPullback" }

// OnBar checks trend filters (EMA, VWAP, MACD histogram) and the pullback shape.
func (m *MicroPullback) OnBar(bar signal.Bar) *signal.Signal {
	if bar.Symbol == "" || bar.Close <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.series[bar.Symbol]
	if st == nil {
		st = &pullbackState{}
		m.series[bar.Symbol] = st
	}
	st.append(bar, m.params.HistoryBars)

	closes := st.closes()
	st.ema = indicator.Last(indicator.EMA(closes, m.params.EMAPeriod))

	if len(st.bars) < m.params.EMAPeriod+m.params.MaxPullbackBars+1 {
		return nil
	}
	if bar.Close < m.params.MinPrice || (m.params.MaxPrice > 0 && bar.Close > m.params.MaxPrice) {
		return nil
	}

	pullbackLow, ok := m.pullback(st.bars)
	if !ok {
		return nil
	}
	if bar.Close <= st.ema {
		return nil
	}
	vwap, err := indicator.VWAP(st.typicals(), st.volumes())
	if err != nil || bar.Close <= indicator.Last(vwap) {
		return nil
	}
	macd, err := indicator.MACD(closes, m.params.MACDFast, m.params.MACDSlow, m.params.MACDSignal)
	if err != nil {
		return nil
	}
	hist := indicator.Last(macd.Histogram)
	if hist <= 0 {
		return nil
	}

	if pullbackLow >= bar.Close {
		return nil
	}
	score := math.Min(1, hist/bar.Close*100)
	reason := fmt.Sprintf("ema=%.2f vwap=%.2f hist=%.4f", st.ema, indicator.Last(vwap), hist)
	if pattern.DetectBullFlag(st.bars) {
		score = math.Min(1, score+0.25)
		reason += " bull_flag"
	}
	return &signal.Signal{
		Symbol: bar.Symbol,
		Score:  score,
		Reason: reason,
		Stop:   pullbackLow,
		Target: targetFor(bar.Close, pullbackLow, m.params.RewardRisk),
		Ts:     bar.Ts,
	}
}

// pullback inspects the bars before the latest one. It wants 1..MaxPullbackBars
// red candles on lighter volume than the green impulse candle before them, and
// a latest candle that clears the previous high. It returns the pullback low.
func (m *MicroPullback) pullback(bars []signal.Bar) (float64, bool) {
	n := len(bars)
	last := bars[n-1]
	prev := bars[n-2]
	if !last.Green() || last.High <= prev.High {
		return 0, false
	}

	i := n - 2
	count := 0
	low := math.Inf(1)
	var vol float64
	for i >= 0 && !bars[i].Green() {
		count++
		low = math.Min(low, bars[i].Low)
		vol += bars[i].Volume
		i--
	}
	if count == 0 || count > m.params.MaxPullbackBars || i < 0 {
		return 0, false
	}
	impulse := bars[i]
	if vol/float64(count) >= impulse.Volume {
		return 0, false
	}
	return low, true
}

// CheckExit closes on stop, target, or a close back under the EMA.
func (m *MicroPullback) CheckExit(pos Position, bar signal.Bar) (bool, string) {
	if hit, reason := exitOnLevels(pos, bar); hit {
		return hit, reason
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.series[pos.Symbol]
	if st == nil || st.ema == 0 {
		return false, ""
	}
	if bar.Close < st.ema {
		return true, fmt.Sprintf("close %.2f under ema %.2f", bar.Close, st.ema)
	}
	return false, ""
}
