package pattern

import (
	"testing"

	"warriorbot-go/internal/signal"
)

func bar(o, h, l, c, v float64) signal.Bar {
	return signal.Bar{Symbol: "ABCD", Open: o, High: h, Low: l, Close: c, Volume: v}
}

func TestIsDojiDetectsSmallBody(t *testing.T) {
	if !IsDoji(bar(1.0, 1.05, 0.95, 1.001, 0), DefaultDojiThreshold) {
		t.Fatalf("nearly equal open and close should be a doji")
	}
	if IsDoji(bar(1.0, 1.1, 0.95, 1.08, 0), DefaultDojiThreshold) {
		t.Fatalf("large body should not be a doji")
	}
	if !IsDoji(bar(2, 2, 2, 2, 0), 0) {
		t.Fatalf("flat candle should be a doji")
	}
}

func TestIsBullishEngulfing(t *testing.T) {
	prev := bar(1.0, 1.02, 0.88, 0.9, 0)
	cur := bar(0.85, 1.06, 0.84, 1.05, 0)
	if !IsBullishEngulfing(prev, cur) {
		t.Fatalf("basic engulfing structure should match")
	}
	if IsBullishEngulfing(prev, bar(0.95, 1.0, 0.9, 0.98, 0)) {
		t.Fatalf("inside candle should not engulf")
	}
}

func TestIsHammer(t *testing.T) {
	if !IsHammer(bar(10.0, 10.25, 9.0, 10.2, 0)) {
		t.Fatalf("long lower wick with small body should be a hammer")
	}
	if IsHammer(bar(10.0, 11.0, 9.9, 10.1, 0)) {
		t.Fatalf("long upper wick is not a hammer")
	}
}

func flagSeries() []signal.Bar {
	return []signal.Bar{
		bar(5.00, 5.05, 4.95, 5.04, 1000),
		bar(5.04, 5.30, 5.02, 5.28, 5000),
		bar(5.28, 5.60, 5.25, 5.55, 8000),
		bar(5.55, 5.50, 5.40, 5.45, 2000),
		bar(5.45, 5.46, 5.35, 5.40, 1500),
		bar(5.40, 5.70, 5.39, 5.65, 4000),
	}
}

func TestDetectBullFlag(t *testing.T) {
	if !DetectBullFlag(flagSeries()) {
		t.Fatalf("expected bull flag")
	}
}

func TestDetectBullFlagRejects(t *testing.T) {
	noBreak := flagSeries()
	noBreak[5].Close = 5.45
	if DetectBullFlag(noBreak) {
		t.Fatalf("no close above flag high should not match")
	}

	lightVol := flagSeries()
	lightVol[5].Volume = 100
	if DetectBullFlag(lightVol) {
		t.Fatalf("breakout on light volume should not match")
	}

	deep := flagSeries()
	deep[4].Low = 5.0
	if DetectBullFlag(deep) {
		t.Fatalf("retracement beyond half the pole should not match")
	}

	flat := flagSeries()
	for i := range flat[:3] {
		flat[i].Low = 5.5
	}
	if DetectBullFlag(flat) {
		t.Fatalf("weak pole should not match")
	}

	if DetectBullFlag(flagSeries()[:3]) {
		t.Fatalf("too few bars should not match")
	}
}

func TestDetectFlatTopBreakout(t *testing.T) {
	bars := []signal.Bar{
		bar(3.80, 4.00, 3.75, 3.95, 100),
		bar(3.95, 3.99, 3.85, 3.90, 100),
		bar(3.90, 4.00, 3.88, 3.97, 100),
		bar(3.97, 4.20, 3.96, 4.15, 300),
	}
	if !DetectFlatTopBreakout(bars, 0) {
		t.Fatalf("expected flat top breakout")
	}
	bars[1].High = 3.80
	if DetectFlatTopBreakout(bars, 0) {
		t.Fatalf("two touches should not be enough")
	}
	if !DetectFlatTopBreakout(bars, 0.06) {
		t.Fatalf("wider tolerance should count the lower high")
	}
}
