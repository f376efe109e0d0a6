// Package scanner builds the momentum watchlist from premarket and intraday quotes.
package scanner

import (
	"sort"
	"strings"

	"warriorbot-go/internal/config"
)

// DefaultSpikeMultiple is how many times the average bar volume counts as a spike.
const DefaultSpikeMultiple = 3.0

// Quote is the per-symbol view the scanner filters on.
type Quote struct {
	Symbol        string
	Price         float64
	PrevClose     float64
	Float         float64
	Volume        float64
	AvgVolume     float64
	HasNews       bool
	HighOfDay     float64 // high before the latest bar
	LastBarVolume float64
	AvgBarVolume  float64
}

// GapPercent is the move from the prior close, in percent.
func (q Quote) GapPercent() float64 {
	if q.PrevClose <= 0 {
		return 0
	}
	return (q.Price - q.PrevClose) / q.PrevClose * 100
}

// RelativeVolume compares today's volume with the average.
func (q Quote) RelativeVolume() float64 {
	if q.AvgVolume <= 0 {
		return 0
	}
	return q.Volume / q.AvgVolume
}

// Criteria are the watchlist filters.
type Criteria struct {
	MinPrice          float64
	MaxPrice          float64
	MaxFloat          float64
	MinRelativeVolume float64
	RequireNews       bool
	SpikeMultiple     float64
}

// CriteriaFromConfig maps scanner settings onto Criteria.
func CriteriaFromConfig(cfg config.Scanner) Criteria {
	return Criteria{
		MinPrice:          cfg.MinPrice,
		MaxPrice:          cfg.MaxPrice,
		MaxFloat:          cfg.MaxFloat,
		MinRelativeVolume: cfg.MinRelativeVolume,
		RequireNews:       cfg.RequireNews,
		SpikeMultiple:     DefaultSpikeMultiple,
	}
}

// Scanner applies Criteria to quote batches.
type Scanner struct {
	criteria Criteria
}

// New returns a scanner for the given criteria.
func New(c Criteria) *Scanner {
	if c.SpikeMultiple <= 0 {
		c.SpikeMultiple = DefaultSpikeMultiple
	}
	return &Scanner{criteria: c}
}

// Qualifies reports whether a quote passes price, float, volume and news filters.
func (s *Scanner) Qualifies(q Quote) bool {
	c := s.criteria
	if strings.TrimSpace(q.Symbol) == "" {
		return false
	}
	if q.Price < c.MinPrice || (c.MaxPrice > 0 && q.Price > c.MaxPrice) {
		return false
	}
	if c.MaxFloat > 0 && (q.Float <= 0 || q.Float > c.MaxFloat) {
		return false
	}
	if q.RelativeVolume() < c.MinRelativeVolume {
		return false
	}
	if c.RequireNews && !q.HasNews {
		return false
	}
	return true
}

// ScanPremarket returns qualifying gappers, biggest gap first.
func (s *Scanner) ScanPremarket(quotes []Quote) []string {
	var hits []Quote
	for _, q := range quotes {
		if q.GapPercent() > 0 && s.Qualifies(q) {
			hits = append(hits, q)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].GapPercent() != hits[j].GapPercent() {
			return hits[i].GapPercent() > hits[j].GapPercent()
		}
		return hits[i].Symbol < hits[j].Symbol
	})
	out := make([]string, 0, len(hits))
	for _, q := range hits {
		out = append(out, q.Symbol)
	}
	return out
}

// ScanRealtime returns symbols breaking the high of day or printing a volume
// spike. Watchlist members come first, each group ordered by relative volume.
func (s *Scanner) ScanRealtime(quotes []Quote, watchlist []string) []string {
	onList := make(map[string]bool, len(watchlist))
	for _, sym := range watchlist {
		onList[sym] = true
	}

	var hits []Quote
	for _, q := range quotes {
		if q.Symbol == "" {
			continue
		}
		hodBreak := q.HighOfDay > 0 && q.Price > q.HighOfDay
		spike := q.AvgBarVolume > 0 && q.LastBarVolume >= s.criteria.SpikeMultiple*q.AvgBarVolume
		if hodBreak || spike {
			hits = append(hits, q)
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if onList[hits[i].Symbol] != onList[hits[j].Symbol] {
			return onList[hits[i].Symbol]
		}
		return hits[i].RelativeVolume() > hits[j].RelativeVolume()
	})
	out := make([]string, 0, len(hits))
	for _, q := range hits {
		out = append(out, q.Symbol)
	}
	return out
}
