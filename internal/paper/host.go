package paper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"warriorbot-go/internal/bridge"
	"warriorbot-go/internal/execution"
	"warriorbot-go/internal/signal"
)

// ErrHalted is returned for entries received after a HALT instruction.
var ErrHalted = errors.New("paper host halted")

// TradeRecorder receives the PnL of every closing fill.
type TradeRecorder interface {
	RecordTrade(pnl float64)
}

// Host plays the host platform during replay: it fills instructions
// immediately at the current bar close.
type Host struct {
	account   *Account
	log       zerolog.Logger
	recorders []FillRecorder
	trades    TradeRecorder

	mu     sync.Mutex
	marks  map[string]signal.Bar
	halted bool
	fills  int
}

// HostOption customizes a Host.
type HostOption func(*Host)

// WithFillRecorder adds a destination for fills. It may be given more than once.
func WithFillRecorder(r FillRecorder) HostOption {
	return func(h *Host) { h.recorders = append(h.recorders, r) }
}

// WithTradeRecorder reports closed-trade PnL to r.
func WithTradeRecorder(r TradeRecorder) HostOption {
	return func(h *Host) { h.trades = r }
}

// NewHost wraps an account.
func NewHost(account *Account, log zerolog.Logger, opts ...HostOption) *Host {
	h := &Host{account: account, log: log, marks: make(map[string]signal.Bar)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mark sets the bar whose close prices subsequent fills in bar.Symbol.
func (h *Host) Mark(bar signal.Bar) {
	h.mu.Lock()
	h.marks[bar.Symbol] = bar
	h.mu.Unlock()
}

// PositionView reports the account state for symbol in wire form.
func (h *Host) PositionView(symbol string) *bridge.PositionView {
	qty, avg := h.account.Holding(symbol)
	return &bridge.PositionView{
		Qty:     decimal.NewFromFloat(qty),
		AvgCost: decimal.NewFromFloat(avg).Round(4),
		Cash:    decimal.NewFromFloat(h.account.AvailableCash()).Round(2),
	}
}

// Halted reports whether a HALT instruction has been applied.
func (h *Host) Halted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.halted
}

// Fills returns how many fills the host has booked.
func (h *Host) Fills() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fills
}

// Execute implements bridge.Executor.
func (h *Host) Execute(_ context.Context, inst bridge.Instruction) error {
	if err := inst.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch inst.Action {
	case bridge.ActionHalt:
		h.halted = true
		h.log.Warn().Str("reason", inst.Reason).Msg("halt received")
		return nil
	case bridge.ActionBuy:
		if h.halted {
			return ErrHalted
		}
		return h.fillLocked(inst, execution.Buy, inst.Quantity.InexactFloat64())
	case bridge.ActionSell:
		held, _ := h.account.Holding(inst.Symbol)
		qty := inst.Quantity.InexactFloat64()
		if qty > held {
			qty = held
		}
		return h.fillLocked(inst, execution.Sell, qty)
	case bridge.ActionFlatten:
		held, _ := h.account.Holding(inst.Symbol)
		if held <= 0 {
			return nil
		}
		return h.fillLocked(inst, execution.Sell, held)
	}
	return fmt.Errorf("unsupported action %q", inst.Action)
}

// FlattenAll closes every open position at its last mark.
func (h *Host) FlattenAll(reason string) error {
	symbols := h.account.Symbols()
	sort.Strings(symbols)

	h.mu.Lock()
	defer h.mu.Unlock()
	var errs []error
	for _, sym := range symbols {
		held, _ := h.account.Holding(sym)
		inst := bridge.NewInstruction(sym, bridge.ActionFlatten, decimal.Zero, reason)
		if err := h.fillLocked(inst, execution.Sell, held); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Host) fillLocked(inst bridge.Instruction, side execution.Side, qty float64) error {
	bar, ok := h.marks[inst.Symbol]
	if !ok {
		return fmt.Errorf("no price for %s", inst.Symbol)
	}
	if qty <= 0 {
		return fmt.Errorf("nothing to %s in %s", side, inst.Symbol)
	}
	price := bar.Close
	// A buy limit under the bar low never traded.
	if inst.LimitPrice.Valid && side == execution.Buy && inst.LimitPrice.Decimal.InexactFloat64() < bar.Low {
		return fmt.Errorf("limit %s below bar low %.4f", inst.LimitPrice.Decimal, bar.Low)
	}

	pnl, err := h.account.MarketFill(inst.Symbol, side, qty, price)
	if err != nil {
		return err
	}
	h.fills++
	fill := execution.Fill{
		ID:     inst.ID.String(),
		Symbol: inst.Symbol,
		Side:   side,
		Qty:    qty,
		Price:  price,
		PnL:    pnl,
		Reason: inst.Reason,
		Ts:     barTime(bar),
	}
	for _, r := range h.recorders {
		r.Record(fill)
	}
	if side == execution.Sell && h.trades != nil {
		h.trades.RecordTrade(pnl)
	}
	h.log.Info().
		Str("sym", fill.Symbol).
		Str("side", string(side)).
		Float64("qty", qty).
		Float64("px", price).
		Float64("pnl", pnl).
		Msg("paper fill")
	return nil
}

func barTime(bar signal.Bar) time.Time {
	if bar.Ts.IsZero() {
		return time.Now().UTC()
	}
	return bar.Ts
}
