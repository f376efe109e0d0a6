// Package signal standardizes payloads shared between data ingestion and strategy layers.
package signal

import "time"

// Bar is one OHLCV candle as delivered by the host platform.
type Bar struct {
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Ts     time.Time
}

// Range returns high minus low.
func (b Bar) Range() float64 { return b.High - b.Low }

// Body returns the absolute distance between open and close.
func (b Bar) Body() float64 {
	if b.Close >= b.Open {
		return b.Close - b.Open
	}
	return b.Open - b.Close
}

// Green reports whether the bar closed at or above its open.
func (b Bar) Green() bool { return b.Close >= b.Open }

// Signal expresses a trading bias produced by a strategy implementation.
type Signal struct {
	Symbol string
	Score  float64 // positive long bias, negative short bias
	Reason string
	Stop   float64 // suggested protective stop, 0 when the strategy has none
	Target float64 // profit objective, 0 when the strategy has none
	Ts     time.Time
}

// Reference carries premarket context that bars alone do not provide.
type Reference struct {
	PrevClose      float64
	RelativeVolume float64
	Float          float64
	HasNews        bool
}
