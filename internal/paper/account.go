package paper

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"warriorbot-go/internal/execution"
)

// FillRecorder captures paper fills for later inspection.
type FillRecorder interface {
	Record(execution.Fill)
}

var (
	ErrBadOrder          = errors.New("paper: order needs whole positive shares and a positive price")
	ErrInsufficientCash  = errors.New("paper: insufficient buying power")
	ErrPositionLimit     = errors.New("paper: position limit exceeded")
	ErrInsufficientShare = errors.New("paper: not enough shares to sell")
)

const epsilon = 1e-9

type holding struct {
	shares  float64
	avgCost float64
}

// Account is a cash equity account for the replay host: long only, whole
// shares, average-cost basis and an optional per-share commission.
type Account struct {
	mu            sync.Mutex
	startingCash  float64
	cash          float64
	realizedPnL   float64
	commissions   float64
	perShare      float64
	minCommission float64
	maxShares     float64
	roundTrips    int
	holdings      map[string]holding
}

// AccountOption configures an Account.
type AccountOption func(*Account)

// WithCommission charges perShare on every fill, at least minimum per fill.
func WithCommission(perShare, minimum float64) AccountOption {
	return func(a *Account) {
		a.perShare = math.Max(perShare, 0)
		a.minCommission = math.Max(minimum, 0)
	}
}

// PositionSnapshot is one holding marked to a price.
type PositionSnapshot struct {
	Qty         float64
	AvgCost     float64
	MarketValue float64
	Unrealized  float64
}

// Snapshot is a copy of the account marked to the given prices.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	Commissions float64
	Equity      float64
	RoundTrips  int
	Positions   map[string]PositionSnapshot
}

// NewAccount starts an account with startingCash. maxSharesPerSymbol caps any
// single holding; zero means no cap.
func NewAccount(startingCash, maxSharesPerSymbol float64, opts ...AccountOption) *Account {
	a := &Account{
		startingCash: startingCash,
		cash:         startingCash,
		maxShares:    maxSharesPerSymbol,
		holdings:     make(map[string]holding),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Account) StartingCash() float64 { return a.startingCash }

func (a *Account) commission(shares float64) float64 {
	if a.perShare == 0 && a.minCommission == 0 {
		return 0
	}
	return math.Max(shares*a.perShare, a.minCommission)
}

// MarketFill books a fill at price. It returns the PnL realized by a sell net
// of commission; a buy returns zero and folds its commission into the cost basis.
func (a *Account) MarketFill(symbol string, side execution.Side, shares, price float64) (float64, error) {
	if shares <= 0 || price <= 0 || shares != math.Trunc(shares) {
		return 0, fmt.Errorf("%w: %s %v @ %v", ErrBadOrder, symbol, shares, price)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	h := a.holdings[symbol]
	notional := shares * price
	fee := a.commission(shares)

	switch side {
	case execution.Buy:
		if notional+fee > a.cash+epsilon {
			return 0, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, notional+fee, a.cash)
		}
		total := h.shares + shares
		if a.maxShares > 0 && total > a.maxShares+epsilon {
			return 0, fmt.Errorf("%w: %s would hold %.0f", ErrPositionLimit, symbol, total)
		}
		a.cash -= notional + fee
		a.commissions += fee
		a.holdings[symbol] = holding{
			shares:  total,
			avgCost: (h.avgCost*h.shares + notional + fee) / total,
		}
		return 0, nil

	case execution.Sell:
		if h.shares+epsilon < shares {
			return 0, fmt.Errorf("%w: %s holds %.0f, sell %.0f", ErrInsufficientShare, symbol, h.shares, shares)
		}
		realized := (price-h.avgCost)*shares - fee
		a.realizedPnL += realized
		a.commissions += fee
		a.cash += notional - fee
		if left := h.shares - shares; left <= epsilon {
			delete(a.holdings, symbol)
			a.roundTrips++
		} else {
			a.holdings[symbol] = holding{shares: left, avgCost: h.avgCost}
		}
		return realized, nil
	}
	return 0, fmt.Errorf("%w: side %q", ErrBadOrder, side)
}

// Snapshot copies balances; holdings without a price in marks are valued at zero.
func (a *Account) Snapshot(marks map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Commissions: a.commissions,
		Equity:      a.cash,
		RoundTrips:  a.roundTrips,
		Positions:   make(map[string]PositionSnapshot, len(a.holdings)),
	}
	for sym, h := range a.holdings {
		pos := PositionSnapshot{Qty: h.shares, AvgCost: h.avgCost}
		if mark := marks[sym]; mark > 0 {
			pos.MarketValue = h.shares * mark
			pos.Unrealized = (mark - h.avgCost) * h.shares
		}
		out.Positions[sym] = pos
		out.Equity += pos.MarketValue
	}
	return out
}

func (a *Account) AvailableCash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

// Holding returns shares held and average cost for symbol.
func (a *Account) Holding(symbol string) (qty, avgCost float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := a.holdings[symbol]
	return h.shares, h.avgCost
}

// Symbols lists every symbol with shares held.
func (a *Account) Symbols() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.holdings))
	for sym := range a.holdings {
		out = append(out, sym)
	}
	return out
}
