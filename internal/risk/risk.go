// Package risk sizes entries and decides when the controller must stop trading.
package risk

import (
	"math"
	"sync"

	"warriorbot-go/internal/config"
)

// Limits caps the notional value of any single order. A zero cap allows everything.
type Limits struct {
	MaxNotionalPerTrade float64
}

func (l Limits) Allow(notional float64) bool {
	if l.MaxNotionalPerTrade <= 0 {
		return true
	}
	return notional <= l.MaxNotionalPerTrade
}

// Manager tracks closed-trade results for the current session.
type Manager struct {
	limits         Limits
	riskPerTrade   float64
	dailyMaxLoss   float64
	maxConsecutive int

	mu                sync.Mutex
	startEquity       float64
	dailyLoss         float64
	realized          float64
	consecutiveLosses int
	trades            int
}

// NewManager builds a manager for a session that starts with the given equity.
func NewManager(cfg config.Risk, equity float64) *Manager {
	maxConsecutive := cfg.MaxConsecutiveLosses
	if maxConsecutive <= 0 {
		maxConsecutive = config.DefaultMaxConsecLosses
	}
	return &Manager{
		limits:         Limits{MaxNotionalPerTrade: cfg.MaxNotionalPerTrade},
		riskPerTrade:   cfg.RiskPerTrade,
		dailyMaxLoss:   cfg.DailyMaxLoss,
		maxConsecutive: maxConsecutive,
		startEquity:    equity,
	}
}

// RegisterTrade records a closed trade. Any non-negative result ends a losing streak.
func (m *Manager) RegisterTrade(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades++
	m.realized += pnl
	if pnl < 0 {
		m.dailyLoss += -pnl
		m.consecutiveLosses++
		return
	}
	m.consecutiveLosses = 0
}

// ShouldHalt reports whether the daily loss budget or the losing-streak limit is exhausted.
func (m *Manager) ShouldHalt() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dailyMaxLoss > 0 && m.startEquity > 0 && m.dailyLoss >= m.dailyMaxLoss*m.startEquity {
		return true
	}
	return m.consecutiveLosses >= m.maxConsecutive
}

// PositionSize returns whole shares so that a stop-out loses at most
// RiskPerTrade of equity, trimmed to the per-trade notional cap.
func (m *Manager) PositionSize(equity, entry, stop float64) float64 {
	perShare := entry - stop
	if equity <= 0 || entry <= 0 || perShare <= 0 || m.riskPerTrade <= 0 {
		return 0
	}
	qty := math.Floor(equity * m.riskPerTrade / perShare)
	if !m.limits.Allow(qty * entry) {
		qty = math.Floor(m.limits.MaxNotionalPerTrade / entry)
	}
	if qty < 0 {
		return 0
	}
	return qty
}

// Equity returns the session's starting equity plus realized results.
func (m *Manager) Equity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startEquity + m.realized
}

// Stats exposes the counters behind ShouldHalt.
func (m *Manager) Stats() (dailyLoss float64, consecutiveLosses, trades int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyLoss, m.consecutiveLosses, m.trades
}

// Reset starts a new session at the given equity.
func (m *Manager) Reset(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startEquity = equity
	m.dailyLoss = 0
	m.realized = 0
	m.consecutiveLosses = 0
	m.trades = 0
}
