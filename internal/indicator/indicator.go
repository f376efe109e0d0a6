// Package indicator computes the moving-average family used by the momentum strategies.
package indicator

import "fmt"

// SMA returns the simple moving average aligned to prices. Entries before the
// first full window hold the average of what is available so far.
func SMA(prices []float64, period int) []float64 {
	if len(prices) == 0 || period <= 0 {
		return nil
	}
	out := make([]float64, len(prices))
	var sum float64
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		n := i + 1
		if n > period {
			n = period
		}
		out[i] = sum / float64(n)
	}
	return out
}

// EMA returns the exponential moving average aligned to prices. The first
// period entries are the running SMA, which also seeds the smoothing.
func EMA(prices []float64, period int) []float64 {
	if len(prices) == 0 || period <= 0 {
		return nil
	}
	out := SMA(prices, period)
	if len(prices) <= period {
		return out
	}
	k := 2.0 / float64(period+1)
	for i := period; i < len(prices); i++ {
		out[i] = prices[i]*k + out[i-1]*(1-k)
	}
	return out
}

// MACDResult holds the three aligned MACD series.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes fast EMA minus slow EMA, its signal EMA and the histogram.
func MACD(prices []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACDResult{}, fmt.Errorf("macd periods must be positive: %d/%d/%d", fast, slow, signal)
	}
	if fast >= slow {
		return MACDResult{}, fmt.Errorf("macd fast period %d must be below slow period %d", fast, slow)
	}
	if len(prices) == 0 {
		return MACDResult{}, nil
	}
	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)
	line := make([]float64, len(prices))
	for i := range prices {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := EMA(line, signal)
	hist := make([]float64, len(prices))
	for i := range prices {
		hist[i] = line[i] - sig[i]
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}, nil
}

// VWAP returns the cumulative session volume-weighted average price. While no
// volume has traded the series carries the price itself.
func VWAP(prices, volumes []float64) ([]float64, error) {
	if len(prices) != len(volumes) {
		return nil, fmt.Errorf("vwap: %d prices but %d volumes", len(prices), len(volumes))
	}
	if len(prices) == 0 {
		return nil, nil
	}
	out := make([]float64, len(prices))
	var pv, vol float64
	for i := range prices {
		if volumes[i] > 0 {
			pv += prices[i] * volumes[i]
			vol += volumes[i]
		}
		if vol == 0 {
			out[i] = prices[i]
			continue
		}
		out[i] = pv / vol
	}
	return out, nil
}

// Last returns the final element, or 0 for an empty series.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
