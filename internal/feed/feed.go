// Package feed produces bar streams for the replay host.
package feed

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"warriorbot-go/internal/metrics"
	"warriorbot-go/internal/signal"
)

const (
	// ProviderRecorded plays back bars loaded from disk in time order.
	ProviderRecorded = "recorded"
	// ProviderStub emits deterministic synthetic bars (useful for tests/offline work).
	ProviderStub = "stub"
)

// Feed represents a pluggable bar source.
type Feed struct {
	provider string
	symbols  []string
	bars     []signal.Bar
	interval time.Duration
	limit    int
	log      zerolog.Logger
	mu       sync.RWMutex
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const defaultStubInterval = 500 * time.Millisecond

// WithBars supplies the recorded bars to play back.
func WithBars(bars []signal.Bar) Option {
	return func(f *Feed) { f.bars = bars }
}

// WithInterval paces emission. Zero plays recorded bars as fast as they are consumed.
func WithInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d >= 0 {
			f.interval = d
		}
	}
}

// WithLimit stops the stub provider after n bars per symbol.
func WithLimit(n int) Option {
	return func(f *Feed) { f.limit = n }
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderRecorded
	}
	f := &Feed{provider: strings.ToLower(provider), log: log}
	if f.provider == ProviderStub {
		f.interval = defaultStubInterval
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetSymbols replaces the tracked symbol list (deduplicated, sorted for determinism).
// An empty list lets every recorded symbol through.
func (f *Feed) SetSymbols(symbols []string) {
	f.setSymbols(symbols)
}

func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Run pushes bars onto out until the source is exhausted or ctx is canceled,
// then closes out.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Bar) error {
	defer close(out)
	switch f.provider {
	case ProviderStub:
		return f.runStub(ctx, out)
	default:
		return f.runRecorded(ctx, out)
	}
}

func (f *Feed) runRecorded(ctx context.Context, out chan<- signal.Bar) error {
	allowed := make(map[string]bool)
	for _, s := range f.snapshotSymbols() {
		allowed[s] = true
	}
	var ticker *time.Ticker
	if f.interval > 0 {
		ticker = time.NewTicker(f.interval)
		defer ticker.Stop()
	}

	sent := 0
	for _, bar := range f.bars {
		if len(allowed) > 0 && !allowed[bar.Symbol] {
			continue
		}
		if ticker != nil && sent > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		if err := f.emit(ctx, out, bar); err != nil {
			return err
		}
		sent++
	}
	f.log.Debug().Int("bars", sent).Msg("recorded feed exhausted")
	return nil
}

func (f *Feed) runStub(ctx context.Context, out chan<- signal.Bar) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	var px = 5.0
	for n := 0; f.limit <= 0 || n < f.limit; n++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			open := px
			px += 0.01
			for _, s := range f.snapshotSymbols() {
				bar := signal.Bar{Symbol: s, Open: open, High: px + 0.01, Low: open - 0.01, Close: px, Volume: 1000, Ts: ts}
				if err := f.emit(ctx, out, bar); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (f *Feed) emit(ctx context.Context, out chan<- signal.Bar, bar signal.Bar) error {
	select {
	case out <- bar:
		metrics.BarsTotal.WithLabelValues(f.provider, bar.Symbol).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
