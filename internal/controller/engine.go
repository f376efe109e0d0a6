// Package controller turns bar snapshots from the host into trade instructions.
package controller

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"warriorbot-go/internal/bridge"
	"warriorbot-go/internal/config"
	"warriorbot-go/internal/execution"
	"warriorbot-go/internal/metrics"
	"warriorbot-go/internal/risk"
	"warriorbot-go/internal/scanner"
	"warriorbot-go/internal/signal"
	"warriorbot-go/internal/strategy"
)

// Journal records bridge traffic. *store.Journal satisfies it.
type Journal interface {
	AppendSnapshot(ctx context.Context, session string, snap bridge.Snapshot) error
	AppendInstruction(ctx context.Context, inst bridge.Instruction) error
}

// Option customizes an Engine.
type Option func(*Engine)

// WithJournal records every snapshot and instruction.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithStrategies replaces the strategies built from config.
func WithStrategies(strats ...strategy.Strategy) Option {
	return func(e *Engine) { e.strategies = strats }
}

// WithRiskManager replaces the manager built from config.
func WithRiskManager(m *risk.Manager) Option {
	return func(e *Engine) { e.risk = m }
}

type openPosition struct {
	strategy.Position
	openedSeq uint64
}

type symbolState struct {
	day       int
	highOfDay float64
	volumes   []float64
	closedSeq uint64

	// last positive signal, used when adopting a host position
	lastStrategy string
	lastStop     float64
	lastTarget   float64
}

// Engine implements bridge.Handler. It is safe for concurrent sessions.
type Engine struct {
	log        zerolog.Logger
	session    config.Session
	loc        *time.Location
	avgVolBars int
	riskFrac   float64
	scanner    *scanner.Scanner
	strategies []strategy.Strategy
	risk       *risk.Manager
	journal    Journal

	mu        sync.Mutex
	watch     map[string]bool
	active    map[string]bool
	positions map[string]*openPosition
	symbols   map[string]*symbolState
	day       int
	halted    bool
	haltSent  bool
}

// NewEngine builds the scanner, strategies and risk manager described by cfg.
func NewEngine(cfg *config.Config, log zerolog.Logger, opts ...Option) (*Engine, error) {
	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		return nil, fmt.Errorf("session timezone: %w", err)
	}
	e := &Engine{
		log:        log,
		session:    cfg.Session,
		loc:        loc,
		avgVolBars: cfg.Strategy.Params.AverageVolumeBars,
		riskFrac:   cfg.Risk.RiskPerTrade,
		scanner:    scanner.New(scanner.CriteriaFromConfig(cfg.Scanner)),
		watch:      make(map[string]bool),
		active:     make(map[string]bool),
		positions:  make(map[string]*openPosition),
		symbols:    make(map[string]*symbolState),
	}
	for _, sym := range cfg.Scanner.Watchlist {
		e.watch[sym] = true
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.strategies == nil {
		strats, err := strategy.BuildAll(cfg.Strategy.Modes, strategy.ParamsFromConfig(cfg))
		if err != nil {
			return nil, err
		}
		e.strategies = strats
	}
	if e.risk == nil {
		e.risk = risk.NewManager(cfg.Risk, cfg.Paper.StartingCash)
	}
	if e.avgVolBars <= 0 {
		e.avgVolBars = config.DefaultAvgVolumeBars
	}
	return e, nil
}

// LoadPremarket runs the premarket scan, adds the hits to the watchlist and
// primes strategies that need reference data. It returns the hits, best first.
func (e *Engine) LoadPremarket(quotes []scanner.Quote) []string {
	hits := e.scanner.ScanPremarket(quotes)
	bySymbol := make(map[string]scanner.Quote, len(quotes))
	for _, q := range quotes {
		bySymbol[q.Symbol] = q
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sym := range hits {
		e.watch[sym] = true
		q := bySymbol[sym]
		ref := signal.Reference{PrevClose: q.PrevClose, RelativeVolume: q.RelativeVolume(), Float: q.Float, HasNews: q.HasNews}
		for _, s := range e.strategies {
			if p, ok := s.(strategy.Primer); ok {
				p.Prime(sym, ref)
			}
		}
	}
	e.log.Info().Strs("watchlist", hits).Int("quotes", len(quotes)).Msg("premarket scan")
	return hits
}

// Watchlist returns the symbols currently eligible for entries, sorted.
func (e *Engine) Watchlist() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.watch)+len(e.active))
	for sym := range e.watch {
		out = append(out, sym)
	}
	for sym := range e.active {
		if !e.watch[sym] {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// Halted reports whether risk limits have stopped new entries.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// Position returns the tracked position for symbol.
func (e *Engine) Position(symbol string) (strategy.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.positions[symbol]
	if !ok {
		return strategy.Position{}, false
	}
	return pos.Position, true
}

// HandleSnapshot implements bridge.Handler.
func (e *Engine) HandleSnapshot(ctx context.Context, snap bridge.Snapshot) ([]bridge.Instruction, error) {
	bar := snap.Bar()
	log := e.log.With().Str("sym", bar.Symbol).Uint64("seq", snap.Seq).Logger()

	if e.journal != nil {
		if err := e.journal.AppendSnapshot(ctx, bridge.ClientFromContext(ctx), snap); err != nil {
			log.Warn().Err(err).Msg("journal snapshot failed")
		}
	}

	batch := &execution.Batch{}
	exec := execution.NewExecutor(log, batch)

	e.mu.Lock()
	err := e.evaluate(ctx, exec, snap, bar, log)
	e.mu.Unlock()

	out := batch.Instructions()
	if e.journal != nil {
		for _, inst := range out {
			if jerr := e.journal.AppendInstruction(ctx, inst); jerr != nil {
				log.Warn().Err(jerr).Str("id", inst.ID.String()).Msg("journal instruction failed")
			}
		}
	}
	return out, err
}

func (e *Engine) evaluate(ctx context.Context, exec *execution.Executor, snap bridge.Snapshot, bar signal.Bar, log zerolog.Logger) error {
	local := bar.Ts.In(e.loc)
	e.rollDay(local, log)
	st := e.trackSymbol(bar, local, log)

	// Every strategy sees every bar so its history stays complete.
	var best *signal.Signal
	var bestName string
	for _, s := range e.strategies {
		sig := s.OnBar(bar)
		if sig != nil && sig.Score > 0 && (best == nil || sig.Score > best.Score) {
			best, bestName = sig, s.Name()
		}
	}

	if best != nil {
		st.lastStrategy, st.lastStop, st.lastTarget = bestName, best.Stop, best.Target
	}
	e.reconcile(snap, bar, st, log)

	if pos, ok := e.positions[bar.Symbol]; ok {
		return e.manageExit(ctx, exec, snap, bar, pos, st, log)
	}

	if e.halted || best == nil {
		return nil
	}
	if !e.inWindow(local) {
		log.Debug().Str("signal", bestName).Msg("signal outside trading window")
		return nil
	}
	if !e.eligible(bar.Symbol) {
		log.Debug().Str("signal", bestName).Msg("signal for symbol off watchlist")
		return nil
	}
	return e.enter(ctx, exec, snap, bar, best, bestName, log)
}

func (e *Engine) manageExit(ctx context.Context, exec *execution.Executor, snap bridge.Snapshot, bar signal.Bar, pos *openPosition, st *symbolState, log zerolog.Logger) error {
	exit, reason := false, ""
	if e.halted {
		exit, reason = true, "trading halted"
	} else if owner := e.strategyNamed(pos.Strategy); owner != nil {
		exit, reason = owner.CheckExit(pos.Position, bar)
	} else {
		// Adopted positions have no owner; any strategy may close them.
		for _, s := range e.strategies {
			if exit, reason = s.CheckExit(pos.Position, bar); exit {
				break
			}
		}
	}
	if !exit && pos.Stop > 0 && bar.Low <= pos.Stop {
		exit, reason = true, fmt.Sprintf("stop %.4f hit", pos.Stop)
	}
	if !exit {
		return nil
	}

	if _, err := exec.Flatten(ctx, bar.Symbol, reason, snap.Seq); err != nil {
		return err
	}
	pnl := (bar.Close - pos.Entry) * pos.Qty
	delete(e.positions, bar.Symbol)
	st.closedSeq = snap.Seq
	e.risk.RegisterTrade(pnl)
	log.Info().Str("reason", reason).Float64("pnl", pnl).Float64("equity", e.risk.Equity()).Msg("exit")
	return e.checkHalt(ctx, exec, snap, log)
}

func (e *Engine) strategyNamed(name string) strategy.Strategy {
	if name == "" {
		return nil
	}
	for _, s := range e.strategies {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func (e *Engine) enter(ctx context.Context, exec *execution.Executor, snap bridge.Snapshot, bar signal.Bar, sig *signal.Signal, name string, log zerolog.Logger) error {
	qty := e.risk.PositionSize(e.risk.Equity(), bar.Close, sig.Stop)
	if qty < 1 {
		log.Debug().Str("signal", name).Float64("stop", sig.Stop).Msg("signal sized to zero")
		return nil
	}
	_, err := exec.Submit(ctx, execution.Order{
		Symbol:    bar.Symbol,
		Side:      execution.Buy,
		Qty:       qty,
		Price:     bar.Close,
		Stop:      sig.Stop,
		Reason:    fmt.Sprintf("%s: %s", name, sig.Reason),
		InReplyTo: snap.Seq,
	})
	if err != nil {
		return err
	}
	e.positions[bar.Symbol] = &openPosition{
		Position: strategy.Position{
			Symbol:   bar.Symbol,
			Strategy: name,
			Qty:      qty,
			Entry:    bar.Close,
			Stop:     sig.Stop,
			Target:   sig.Target,
		},
		openedSeq: snap.Seq,
	}
	log.Info().Str("strategy", name).Float64("qty", qty).Float64("entry", bar.Close).Float64("stop", sig.Stop).Float64("target", sig.Target).Msg("entry")
	return nil
}

// checkHalt emits HALT the first time risk limits trip.
func (e *Engine) checkHalt(ctx context.Context, exec *execution.Executor, snap bridge.Snapshot, log zerolog.Logger) error {
	if !e.risk.ShouldHalt() {
		return nil
	}
	e.halted = true
	metrics.TradingHalted.Set(1)
	if e.haltSent {
		return nil
	}
	loss, streak, trades := e.risk.Stats()
	reason := fmt.Sprintf("risk limit: daily loss %.2f, %d consecutive losses", loss, streak)
	if _, err := exec.Halt(ctx, reason, snap.Seq); err != nil {
		return err
	}
	e.haltSent = true
	log.Warn().Float64("daily_loss", loss).Int("streak", streak).Int("trades", trades).Msg("trading halted")
	return nil
}

// reconcile trusts the host's position view once an instruction has had a bar to land.
func (e *Engine) reconcile(snap bridge.Snapshot, bar signal.Bar, st *symbolState, log zerolog.Logger) {
	if snap.Position == nil {
		return
	}
	held := snap.Position.Qty.InexactFloat64()
	pos, tracked := e.positions[snap.Symbol]
	switch {
	case tracked && held <= 0 && snap.Seq > pos.openedSeq+1:
		log.Warn().Float64("qty", pos.Qty).Msg("host reports flat, dropping tracked position")
		delete(e.positions, snap.Symbol)
		st.closedSeq = snap.Seq
	case !tracked && held > 0 && snap.Seq > st.closedSeq+1:
		avg := snap.Position.AvgCost.InexactFloat64()
		if avg <= 0 {
			avg = bar.Close
		}
		pos := strategy.Position{Symbol: snap.Symbol, Strategy: st.lastStrategy, Qty: held, Entry: avg, Stop: st.lastStop, Target: st.lastTarget}
		if pos.Stop <= 0 || pos.Stop >= avg {
			pos.Stop = adoptedStop(avg, e.riskFrac)
		}
		log.Warn().Float64("qty", held).Float64("avg", avg).Str("strategy", pos.Strategy).Float64("stop", pos.Stop).Msg("adopting host position")
		e.positions[snap.Symbol] = &openPosition{Position: pos, openedSeq: snap.Seq}
	case tracked && held > 0 && math.Abs(held-pos.Qty) > 1e-9 && snap.Seq > pos.openedSeq+1:
		pos.Qty = held
	}
}

// rollDay resets session state when the first bar of a new trading day arrives.
func (e *Engine) rollDay(local time.Time, log zerolog.Logger) {
	day := dayKey(local)
	if day <= e.day {
		return
	}
	if e.day != 0 {
		equity := e.risk.Equity()
		e.risk.Reset(equity)
		e.halted, e.haltSent = false, false
		metrics.TradingHalted.Set(0)
		e.active = make(map[string]bool)
		log.Info().Int("day", day).Float64("equity", equity).Msg("new trading day")
	}
	e.day = day
}

// trackSymbol updates intraday highs and volumes and runs the realtime scan.
func (e *Engine) trackSymbol(bar signal.Bar, local time.Time, log zerolog.Logger) *symbolState {
	st := e.symbols[bar.Symbol]
	if st == nil {
		st = &symbolState{}
		e.symbols[bar.Symbol] = st
	}
	day := dayKey(local)
	if st.day != day {
		st.day, st.highOfDay, st.volumes = day, 0, st.volumes[:0]
	}

	quote := scanner.Quote{
		Symbol:        bar.Symbol,
		Price:         bar.Close,
		HighOfDay:     st.highOfDay,
		LastBarVolume: bar.Volume,
		AvgBarVolume:  mean(st.volumes),
	}
	if len(st.volumes) >= e.avgVolBars/2 && !e.watch[bar.Symbol] && !e.active[bar.Symbol] {
		if hits := e.scanner.ScanRealtime([]scanner.Quote{quote}, nil); len(hits) > 0 {
			e.active[bar.Symbol] = true
			log.Info().Float64("hod", st.highOfDay).Float64("vol", bar.Volume).Msg("realtime scanner flagged symbol")
		}
	}

	st.highOfDay = math.Max(st.highOfDay, bar.High)
	st.volumes = append(st.volumes, bar.Volume)
	if len(st.volumes) > e.avgVolBars {
		st.volumes = st.volumes[len(st.volumes)-e.avgVolBars:]
	}
	return st
}

func (e *Engine) inWindow(local time.Time) bool {
	if e.session.IgnoreWindow {
		return true
	}
	h := local.Hour()
	return h >= e.session.StartHour && h < e.session.EndHour
}

// eligible allows every symbol when no watchlist was configured or scanned.
func (e *Engine) eligible(symbol string) bool {
	if len(e.watch) == 0 {
		return true
	}
	return e.watch[symbol] || e.active[symbol]
}

// adoptedStop risks the per-trade fraction below the host's average cost.
func adoptedStop(entry, riskFrac float64) float64 {
	if riskFrac <= 0 || riskFrac >= 1 {
		riskFrac = config.DefaultRiskPerTrade
	}
	return entry * (1 - riskFrac)
}

func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
