// Package evaluator summarises closed-trade results from a replay session.
package evaluator

import (
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// Report is the session summary.
type Report struct {
	TotalTrades  int     `json:"total_trades" yaml:"total_trades"`
	WinRate      float64 `json:"win_rate" yaml:"win_rate"`
	ProfitFactor float64 `json:"profit_factor" yaml:"profit_factor"`
	MaxDrawdown  float64 `json:"max_drawdown" yaml:"max_drawdown"`
	NetPnL       float64 `json:"net_pnl" yaml:"net_pnl"`
}

// MarshalZerologObject lets a Report be logged with Object.
func (r Report) MarshalZerologObject(e *zerolog.Event) {
	e.Int("trades", r.TotalTrades).
		Float64("win_rate", r.WinRate).
		Float64("max_drawdown", r.MaxDrawdown).
		Float64("net_pnl", r.NetPnL)
	if math.IsInf(r.ProfitFactor, 1) {
		e.Str("profit_factor", "inf")
	} else {
		e.Float64("profit_factor", r.ProfitFactor)
	}
}

// Evaluator accumulates trade PnL in the order trades close.
type Evaluator struct {
	mu     sync.Mutex
	trades []float64
}

// New returns an empty evaluator.
func New() *Evaluator { return &Evaluator{} }

// RecordTrade appends a completed trade result.
func (e *Evaluator) RecordTrade(pnl float64) {
	e.mu.Lock()
	e.trades = append(e.trades, pnl)
	e.mu.Unlock()
}

// Trades returns a copy of the recorded results.
func (e *Evaluator) Trades() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.trades...)
}

// WinRate is the fraction of trades with positive PnL, 0 with no trades.
func (e *Evaluator) WinRate() float64 { return winRate(e.Trades()) }

// ProfitFactor is gross profit over gross loss. With no losses it is +Inf
// when there was any profit and 0 otherwise.
func (e *Evaluator) ProfitFactor() float64 { return profitFactor(e.Trades()) }

// MaxDrawdown is the largest fall of cumulative PnL from its running peak,
// where the peak starts at zero.
func (e *Evaluator) MaxDrawdown() float64 { return maxDrawdown(e.Trades()) }

// Report computes every statistic from one consistent view of the trades.
func (e *Evaluator) Report() Report {
	trades := e.Trades()
	net := 0.0
	for _, t := range trades {
		net += t
	}
	return Report{
		TotalTrades:  len(trades),
		WinRate:      winRate(trades),
		ProfitFactor: profitFactor(trades),
		MaxDrawdown:  maxDrawdown(trades),
		NetPnL:       net,
	}
}

func winRate(trades []float64) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

func profitFactor(trades []float64) float64 {
	var profit, loss float64
	for _, t := range trades {
		if t > 0 {
			profit += t
		} else if t < 0 {
			loss -= t
		}
	}
	if loss == 0 {
		if profit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return profit / loss
}

func maxDrawdown(trades []float64) float64 {
	var peak, cum, dd float64
	for _, t := range trades {
		cum += t
		peak = math.Max(peak, cum)
		dd = math.Max(dd, peak-cum)
	}
	return dd
}
