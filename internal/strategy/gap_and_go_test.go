package strategy

import (
	"strings"
	"testing"
	"time"

	"warriorbot-go/internal/signal"
)

func gapSession(symbol string, start time.Time) []signal.Bar {
	// Five opening-range bars topping at 4.60, then the breakout and a follow-through bar.
	raw := [][4]float64{
		{4.40, 4.55, 4.35, 4.50},
		{4.50, 4.60, 4.45, 4.48},
		{4.48, 4.52, 4.40, 4.45},
		{4.45, 4.58, 4.44, 4.56},
		{4.56, 4.59, 4.50, 4.55},
		{4.55, 4.72, 4.55, 4.70},
		{4.70, 4.85, 4.68, 4.80},
	}
	bars := make([]signal.Bar, len(raw))
	for i, r := range raw {
		bars[i] = signal.Bar{
			Symbol: symbol,
			Open:   r[0],
			High:   r[1],
			Low:    r[2],
			Close:  r[3],
			Volume: 50000,
			Ts:     start.Add(time.Duration(i) * time.Minute),
		}
	}
	return bars
}

func feed(s Strategy, bars []signal.Bar) []*signal.Signal {
	var out []*signal.Signal
	for _, b := range bars {
		if sig := s.OnBar(b); sig != nil {
			out = append(out, sig)
		}
	}
	return out
}

func TestGapAndGoOpeningRangeBreakout(t *testing.T) {
	strat := NewGapAndGo(Params{MinRelativeVolume: 5})
	strat.Prime("ABCD", signal.Reference{PrevClose: 4.00, RelativeVolume: 6})

	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	sigs := feed(strat, gapSession("ABCD", start))
	if len(sigs) != 1 {
		t.Fatalf("expected exactly one signal, got %d", len(sigs))
	}
	sig := sigs[0]
	if !sig.Ts.Equal(start.Add(5 * time.Minute)) {
		t.Fatalf("expected breakout bar to fire, got %s", sig.Ts)
	}
	if sig.Stop != 4.55 {
		t.Fatalf("expected stop at breakout low, got %.2f", sig.Stop)
	}
	if want := 4.70 + 2*(4.70-4.55); abs(sig.Target-want) > 1e-9 {
		t.Fatalf("expected target %.4f, got %.4f", want, sig.Target)
	}
	if sig.Score <= 0 {
		t.Fatalf("expected positive score, got %.4f", sig.Score)
	}
}

func TestGapAndGoNeedsReference(t *testing.T) {
	strat := NewGapAndGo(Params{})
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	if sigs := feed(strat, gapSession("NOREF", start)); len(sigs) != 0 {
		t.Fatalf("expected no signal without a prior close, got %d", len(sigs))
	}
}

func TestGapAndGoRespectsRelativeVolume(t *testing.T) {
	strat := NewGapAndGo(Params{MinRelativeVolume: 5})
	strat.Prime("THIN", signal.Reference{PrevClose: 4.00, RelativeVolume: 1.2})
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	if sigs := feed(strat, gapSession("THIN", start)); len(sigs) != 0 {
		t.Fatalf("expected nil signal due to low relative volume")
	}
}

func TestGapAndGoRequiresGap(t *testing.T) {
	strat := NewGapAndGo(Params{MinGapPercent: 15})
	strat.Prime("FLAT", signal.Reference{PrevClose: 4.00, RelativeVolume: 6})
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	if sigs := feed(strat, gapSession("FLAT", start)); len(sigs) != 0 {
		t.Fatalf("expected nil signal for a 10%% gap under a 15%% threshold")
	}
}

func TestGapAndGoRearmsNextSession(t *testing.T) {
	strat := NewGapAndGo(Params{})
	strat.Prime("ABCD", signal.Reference{PrevClose: 4.00, RelativeVolume: 6})

	day1 := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)
	if n := len(feed(strat, gapSession("ABCD", day1))); n != 1 {
		t.Fatalf("day one: expected one signal, got %d", n)
	}
	if n := len(feed(strat, gapSession("ABCD", day2))); n != 1 {
		t.Fatalf("day two: expected one signal, got %d", n)
	}
}

func TestGapAndGoCheckExit(t *testing.T) {
	strat := NewGapAndGo(Params{})
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	bars := gapSession("ABCD", start)
	feed(strat, bars[:6])
	pos := Position{Symbol: "ABCD", Qty: 100, Entry: 4.70, Stop: 4.55, Target: 5.00}

	if exit, _ := strat.CheckExit(pos, bars[6]); exit {
		t.Fatalf("expected to hold through a higher bar")
	}

	stopBar := signal.Bar{Symbol: "ABCD", Open: 4.60, High: 4.62, Low: 4.50, Close: 4.58, Volume: 1000, Ts: start.Add(7 * time.Minute)}
	if exit, reason := strat.CheckExit(pos, stopBar); !exit || reason == "" {
		t.Fatalf("expected stop exit, got %v %q", exit, reason)
	}

	targetBar := signal.Bar{Symbol: "ABCD", Open: 4.90, High: 5.05, Low: 4.88, Close: 5.01, Volume: 1000, Ts: start.Add(7 * time.Minute)}
	if exit, _ := strat.CheckExit(pos, targetBar); !exit {
		t.Fatalf("expected target exit")
	}
}

func TestGapAndGoReversalExit(t *testing.T) {
	strat := NewGapAndGo(Params{})
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	bars := gapSession("ABCD", start)
	feed(strat, bars)

	// Red bar closing under the 4.68 low of the last bar, above the stop.
	red := signal.Bar{Symbol: "ABCD", Open: 4.78, High: 4.79, Low: 4.60, Close: 4.62, Volume: 1000, Ts: start.Add(7 * time.Minute)}
	strat.OnBar(red)
	pos := Position{Symbol: "ABCD", Qty: 100, Entry: 4.70, Stop: 4.50}
	exit, reason := strat.CheckExit(pos, red)
	if !exit {
		t.Fatalf("expected reversal exit")
	}
	if reason != "reversal below prior low" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestGapAndGoOpeningRangeSurvivesHistoryCap(t *testing.T) {
	// History shorter than the opening range, as on a long premarket session.
	strat := NewGapAndGo(Params{HistoryBars: 3})
	strat.Prime("ABCD", signal.Reference{PrevClose: 4.00, RelativeVolume: 6})

	sigs := feed(strat, gapSession("ABCD", time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)))
	if len(sigs) != 1 {
		t.Fatalf("expected one signal, got %d", len(sigs))
	}
	sig := sigs[0]
	// Gap from the session open 4.40, range high 4.60 from the first five bars.
	if abs(sig.Score-0.10) > 1e-9 {
		t.Fatalf("gap measured from the wrong bar, score %.4f", sig.Score)
	}
	if !strings.Contains(sig.Reason, "orh=4.60") {
		t.Fatalf("unexpected opening range in %q", sig.Reason)
	}
}
