package paper

import (
	"sort"
	"sync"

	"warriorbot-go/internal/execution"
)

// SymbolSummary aggregates the fills of one symbol over a session.
type SymbolSummary struct {
	Symbol      string
	Buys        int
	Sells       int
	SharesOut   float64
	SharesIn    float64
	RealizedPnL float64
}

// Open reports whether shares are still held.
func (s SymbolSummary) Open() bool { return s.SharesIn > s.SharesOut }

// Ledger is the session blotter: every paper fill in arrival order.
type Ledger struct {
	mu    sync.Mutex
	fills []execution.Fill
}

func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{fills: make([]execution.Fill, 0, capacity)}
}

// Record implements FillRecorder.
func (l *Ledger) Record(fill execution.Fill) {
	l.mu.Lock()
	l.fills = append(l.fills, fill)
	l.mu.Unlock()
}

// Fills returns a copy of the blotter.
func (l *Ledger) Fills() []execution.Fill {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]execution.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Len is the number of fills recorded.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fills)
}

// Summaries groups the blotter by symbol, sorted by symbol.
func (l *Ledger) Summaries() []SymbolSummary {
	l.mu.Lock()
	bySym := make(map[string]*SymbolSummary)
	for _, f := range l.fills {
		s, ok := bySym[f.Symbol]
		if !ok {
			s = &SymbolSummary{Symbol: f.Symbol}
			bySym[f.Symbol] = s
		}
		switch f.Side {
		case execution.Buy:
			s.Buys++
			s.SharesIn += f.Qty
		case execution.Sell:
			s.Sells++
			s.SharesOut += f.Qty
			s.RealizedPnL += f.PnL
		}
	}
	l.mu.Unlock()

	out := make([]SymbolSummary, 0, len(bySym))
	for _, s := range bySym {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Reset clears the blotter for a new session.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.fills = l.fills[:0]
	l.mu.Unlock()
}
