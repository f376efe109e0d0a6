package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"warriorbot-go/internal/signal"
)

var (
	ErrNotConnected     = errors.New("bridge: not connected")
	ErrClosed           = errors.New("bridge: closed")
	ErrFrameTooLarge    = errors.New("bridge: frame exceeds size limit")
	ErrUnknownTransport = errors.New("bridge: unknown transport")
	ErrUnauthorized     = errors.New("bridge: unauthorized")
)

// MaxFrameSize bounds a single encoded frame.
const MaxFrameSize = 1 << 20

// ProtocolVersion is announced in the hello frame.
const ProtocolVersion = 1

// FrameType tags an Envelope payload.
type FrameType string

const (
	FrameHello       FrameType = "hello"
	FrameSnapshot    FrameType = "snapshot"
	FrameInstruction FrameType = "instruction"
	FrameAck         FrameType = "ack"
	FrameBye         FrameType = "bye"
)

// Envelope is the unit written on the wire.
type Envelope struct {
	Type    FrameType       `json:"type"`
	Seq     uint64          `json:"seq,omitempty"`
	Ts      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hello opens every session.
type Hello struct {
	Client  string `json:"client"`
	Token   string `json:"token,omitempty"`
	Version int    `json:"version"`
}

// Ack closes the controller's answer to one snapshot.
type Ack struct {
	Seq          uint64 `json:"seq"`
	Instructions int    `json:"instructions"`
	Error        string `json:"error,omitempty"`
}

// Bye announces an orderly shutdown, optionally with the reason.
type Bye struct {
	Reason string `json:"reason,omitempty"`
}

// PositionView is the host's account state for the snapshot symbol.
type PositionView struct {
	Qty     decimal.Decimal `json:"qty"`
	AvgCost decimal.Decimal `json:"avg_cost"`
	Cash    decimal.Decimal `json:"cash"`
}

// Snapshot is the market state the host publishes once per bar.
type Snapshot struct {
	Seq      uint64          `json:"seq"`
	Symbol   string          `json:"symbol"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
	BarTime  time.Time       `json:"bar_time"`
	Position *PositionView   `json:"position,omitempty"`
}

// SnapshotFromBar converts a bar into its wire form. Seq is assigned on publish.
func SnapshotFromBar(bar signal.Bar) Snapshot {
	return Snapshot{
		Symbol:  bar.Symbol,
		Open:    decimal.NewFromFloat(bar.Open),
		High:    decimal.NewFromFloat(bar.High),
		Low:     decimal.NewFromFloat(bar.Low),
		Close:   decimal.NewFromFloat(bar.Close),
		Volume:  decimal.NewFromFloat(bar.Volume),
		BarTime: bar.Ts,
	}
}

// Bar converts the snapshot back into the float form strategies consume.
func (s Snapshot) Bar() signal.Bar {
	return signal.Bar{
		Symbol: s.Symbol,
		Open:   s.Open.InexactFloat64(),
		High:   s.High.InexactFloat64(),
		Low:    s.Low.InexactFloat64(),
		Close:  s.Close.InexactFloat64(),
		Volume: s.Volume.InexactFloat64(),
		Ts:     s.BarTime,
	}
}

// Validate rejects snapshots the controller cannot reason about.
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.Symbol) == "" {
		return errors.New("snapshot: missing symbol")
	}
	if !s.Close.IsPositive() {
		return fmt.Errorf("snapshot %s: close must be positive", s.Symbol)
	}
	if s.High.LessThan(s.Low) {
		return fmt.Errorf("snapshot %s: high %s below low %s", s.Symbol, s.High, s.Low)
	}
	if s.Volume.IsNegative() {
		return fmt.Errorf("snapshot %s: negative volume", s.Symbol)
	}
	return nil
}

// Action is the verb of an Instruction.
type Action string

const (
	ActionBuy     Action = "BUY"
	ActionSell    Action = "SELL"
	ActionFlatten Action = "FLATTEN"
	ActionHalt    Action = "HALT"
)

// Instruction is a trade request sent from the controller to the host.
type Instruction struct {
	ID         uuid.UUID           `json:"id"`
	Symbol     string              `json:"symbol,omitempty"`
	Action     Action              `json:"action"`
	Quantity   decimal.Decimal     `json:"quantity"`
	LimitPrice decimal.NullDecimal `json:"limit_price"`
	StopPrice  decimal.NullDecimal `json:"stop_price"`
	Reason     string              `json:"reason,omitempty"`
	InReplyTo  uint64              `json:"in_reply_to,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// NewInstruction stamps a fresh id and creation time.
func NewInstruction(symbol string, action Action, qty decimal.Decimal, reason string) Instruction {
	return Instruction{
		ID:        uuid.New(),
		Symbol:    symbol,
		Action:    action,
		Quantity:  qty,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// WithLimit attaches a limit price.
func (i Instruction) WithLimit(px decimal.Decimal) Instruction {
	i.LimitPrice = decimal.NewNullDecimal(px)
	return i
}

// WithStop attaches a protective stop price.
func (i Instruction) WithStop(px decimal.Decimal) Instruction {
	i.StopPrice = decimal.NewNullDecimal(px)
	return i
}

// Validate checks the fields required by the action.
func (i Instruction) Validate() error {
	if i.ID == uuid.Nil {
		return errors.New("instruction: missing id")
	}
	switch i.Action {
	case ActionBuy, ActionSell:
		if i.Symbol == "" {
			return fmt.Errorf("instruction %s: missing symbol", i.ID)
		}
		if !i.Quantity.IsPositive() {
			return fmt.Errorf("instruction %s: quantity must be positive", i.ID)
		}
		if i.LimitPrice.Valid && !i.LimitPrice.Decimal.IsPositive() {
			return fmt.Errorf("instruction %s: limit price must be positive", i.ID)
		}
	case ActionFlatten:
		if i.Symbol == "" {
			return fmt.Errorf("instruction %s: missing symbol", i.ID)
		}
	case ActionHalt:
	default:
		return fmt.Errorf("instruction %s: unknown action %q", i.ID, i.Action)
	}
	if i.StopPrice.Valid && !i.StopPrice.Decimal.IsPositive() {
		return fmt.Errorf("instruction %s: stop price must be positive", i.ID)
	}
	return nil
}
