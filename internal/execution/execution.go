// Package execution turns controller orders into bridge instructions.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"warriorbot-go/internal/bridge"
	"warriorbot-go/internal/metrics"
)

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy indicates a long order.
	Buy Side = "BUY"
	// Sell indicates a closing sell.
	Sell Side = "SELL"
)

// Order represents a placement request the executor can process.
type Order struct {
	Symbol    string
	Side      Side
	Qty       float64
	Price     float64 // limit, 0 for market at the bar close
	Stop      float64 // protective stop, 0 for none
	Reason    string
	InReplyTo uint64
}

// Fill is an executed order as the replay host books it.
type Fill struct {
	ID     string    `json:"id"`
	Symbol string    `json:"symbol"`
	Side   Side      `json:"side"`
	Qty    float64   `json:"qty"`
	Price  float64   `json:"price"`
	PnL    float64   `json:"pnl,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Ts     time.Time `json:"ts"`
}

// InstructionSink receives instructions bound for the host.
type InstructionSink interface {
	Send(ctx context.Context, inst bridge.Instruction) error
}

// Batch collects instructions for a single snapshot reply.
type Batch struct {
	mu    sync.Mutex
	insts []bridge.Instruction
}

// Send appends inst to the batch.
func (b *Batch) Send(_ context.Context, inst bridge.Instruction) error {
	b.mu.Lock()
	b.insts = append(b.insts, inst)
	b.mu.Unlock()
	return nil
}

// Instructions returns the collected instructions in submission order.
func (b *Batch) Instructions() []bridge.Instruction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]bridge.Instruction, len(b.insts))
	copy(out, b.insts)
	return out
}

// Executor validates orders and forwards them to a sink.
type Executor struct {
	log  zerolog.Logger
	sink InstructionSink
}

// NewExecutor wraps a sink with logging and order metrics.
func NewExecutor(log zerolog.Logger, sink InstructionSink) *Executor {
	return &Executor{log: log, sink: sink}
}

// Instruction converts an order into its wire form.
func (o Order) Instruction() (bridge.Instruction, error) {
	var action bridge.Action
	switch o.Side {
	case Buy:
		action = bridge.ActionBuy
	case Sell:
		action = bridge.ActionSell
	default:
		return bridge.Instruction{}, fmt.Errorf("unknown order side %q", o.Side)
	}
	inst := bridge.NewInstruction(o.Symbol, action, decimal.NewFromFloat(o.Qty), o.Reason)
	inst.InReplyTo = o.InReplyTo
	if o.Price > 0 {
		inst = inst.WithLimit(decimal.NewFromFloat(o.Price).Round(4))
	}
	if o.Stop > 0 {
		inst = inst.WithStop(decimal.NewFromFloat(o.Stop).Round(4))
	}
	return inst, inst.Validate()
}

// Submit converts the order and hands it to the sink.
func (executor *Executor) Submit(ctx context.Context, order Order) (bridge.Instruction, error) {
	inst, err := order.Instruction()
	if err != nil {
		return bridge.Instruction{}, err
	}
	if err := executor.send(ctx, inst); err != nil {
		return bridge.Instruction{}, err
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	executor.log.Info().
		Str("sym", order.Symbol).
		Str("side", string(order.Side)).
		Float64("qty", order.Qty).
		Float64("px", order.Price).
		Float64("stop", order.Stop).
		Str("id", inst.ID.String()).
		Msg("submit order")
	return inst, nil
}

// Flatten asks the host to close whatever it holds in symbol.
func (executor *Executor) Flatten(ctx context.Context, symbol, reason string, inReplyTo uint64) (bridge.Instruction, error) {
	if symbol == "" {
		return bridge.Instruction{}, errors.New("flatten: missing symbol")
	}
	inst := bridge.NewInstruction(symbol, bridge.ActionFlatten, decimal.Zero, reason)
	inst.InReplyTo = inReplyTo
	if err := executor.send(ctx, inst); err != nil {
		return bridge.Instruction{}, err
	}
	executor.log.Info().Str("sym", symbol).Str("reason", reason).Msg("flatten")
	return inst, nil
}

// Halt tells the host to stop acting on further entries.
func (executor *Executor) Halt(ctx context.Context, reason string, inReplyTo uint64) (bridge.Instruction, error) {
	inst := bridge.NewInstruction("", bridge.ActionHalt, decimal.Zero, reason)
	inst.InReplyTo = inReplyTo
	if err := executor.send(ctx, inst); err != nil {
		return bridge.Instruction{}, err
	}
	executor.log.Warn().Str("reason", reason).Msg("halt")
	return inst, nil
}

func (executor *Executor) send(ctx context.Context, inst bridge.Instruction) error {
	if executor.sink == nil {
		return errors.New("execution: no instruction sink")
	}
	if err := executor.sink.Send(ctx, inst); err != nil {
		return fmt.Errorf("send %s %s: %w", inst.Action, inst.Symbol, err)
	}
	return nil
}
