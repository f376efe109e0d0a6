package pattern

import (
	"math"

	"warriorbot-go/internal/signal"
)

const (
	minPoleGain        = 0.04
	maxFlagRetracement = 0.5
	minFlagBars        = 2
	minFlatTopTouches  = 3

	// DefaultFlatTopTolerance is the relative band around resistance that counts as a touch.
	DefaultFlatTopTolerance = 0.005
)

// DetectBullFlag looks for an impulsive pole, a pullback of lower highs that
// gives back at most half of it, and a final bar closing above the flag on at
// least the flag's average volume.
func DetectBullFlag(bars []signal.Bar) bool {
	n := len(bars)
	if n < minFlagBars+3 {
		return false
	}
	last := bars[n-1]

	top := n - 2
	for top > 0 && bars[top].High < bars[top-1].High {
		top--
	}
	flag := bars[top+1 : n-1]
	if len(flag) < minFlagBars || top == 0 {
		return false
	}

	poleHigh := bars[top].High
	poleBase := math.Inf(1)
	for _, b := range bars[:top+1] {
		poleBase = math.Min(poleBase, b.Low)
	}
	if poleBase <= 0 || (poleHigh-poleBase)/poleBase < minPoleGain {
		return false
	}

	flagHigh, flagLow, flagVol := flag[0].High, math.Inf(1), 0.0
	for _, b := range flag {
		flagLow = math.Min(flagLow, b.Low)
		flagVol += b.Volume
	}
	if poleHigh-flagLow > maxFlagRetracement*(poleHigh-poleBase) {
		return false
	}
	avgVol := flagVol / float64(len(flag))
	return last.Close > flagHigh && last.Volume >= avgVol
}

// DetectFlatTopBreakout reports at least three prior highs clustered within
// tolerance of resistance followed by a close above it.
func DetectFlatTopBreakout(bars []signal.Bar, tolerance float64) bool {
	if len(bars) < minFlatTopTouches+1 {
		return false
	}
	if tolerance <= 0 {
		tolerance = DefaultFlatTopTolerance
	}
	prior, last := bars[:len(bars)-1], bars[len(bars)-1]

	resistance := 0.0
	for _, b := range prior {
		resistance = math.Max(resistance, b.High)
	}
	if resistance <= 0 {
		return false
	}
	touches := 0
	for _, b := range prior {
		if resistance-b.High <= tolerance*resistance {
			touches++
		}
	}
	return touches >= minFlatTopTouches && last.Close > resistance
}
