// Package pattern recognizes candlestick and chart setups on bar series.
package pattern

import (
	"math"

	"warriorbot-go/internal/signal"
)

// DefaultDojiThreshold is the body-to-range ratio under which a candle is a doji.
const DefaultDojiThreshold = 0.02

// IsDoji reports an indecision candle whose body is at most threshold of the range.
// A zero range counts as a unit range.
func IsDoji(c signal.Bar, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultDojiThreshold
	}
	rng := c.Range()
	if rng == 0 {
		rng = 1
	}
	return c.Body() <= threshold*rng
}

// IsBullishEngulfing reports a candle that opens below the previous close and closes above the previous open.
func IsBullishEngulfing(prev, cur signal.Bar) bool {
	return cur.Open < prev.Close && cur.Close > prev.Open
}

// IsHammer reports a small body near the top of the range with a long lower wick.
func IsHammer(c signal.Bar) bool {
	body := c.Body()
	lowerWick := math.Min(c.Open, c.Close) - c.Low
	upperWick := c.High - math.Max(c.Open, c.Close)
	return lowerWick > 2*body && upperWick < body
}
