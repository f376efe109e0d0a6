package paper

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"warriorbot-go/internal/bridge"
	"warriorbot-go/internal/signal"
)

type tradeLog struct{ pnls []float64 }

func (t *tradeLog) RecordTrade(pnl float64) { t.pnls = append(t.pnls, pnl) }

func bar(symbol string, close float64) signal.Bar {
	return signal.Bar{
		Symbol: symbol, Open: close, High: close + 0.05, Low: close - 0.05, Close: close,
		Volume: 1000, Ts: time.Date(2024, 3, 4, 9, 45, 0, 0, time.UTC),
	}
}

func TestHostBuyThenFlatten(t *testing.T) {
	ledger := NewLedger(4)
	trades := &tradeLog{}
	host := NewHost(NewAccount(10_000, 0), zerolog.Nop(), WithFillRecorder(ledger), WithTradeRecorder(trades))
	ctx := context.Background()

	host.Mark(bar("ABCD", 5.00))
	buy := bridge.NewInstruction("ABCD", bridge.ActionBuy, decimal.NewFromInt(200), "entry")
	if err := host.Execute(ctx, buy); err != nil {
		t.Fatalf("buy: %v", err)
	}
	view := host.PositionView("ABCD")
	if !view.Qty.Equal(decimal.NewFromInt(200)) || !view.Cash.Equal(decimal.NewFromInt(9_000)) {
		t.Fatalf("unexpected position view %+v", view)
	}

	host.Mark(bar("ABCD", 5.50))
	if err := host.Execute(ctx, bridge.NewInstruction("ABCD", bridge.ActionFlatten, decimal.Zero, "target")); err != nil {
		t.Fatalf("flatten: %v", err)
	}
	if len(trades.pnls) != 1 || math.Abs(trades.pnls[0]-100) > 1e-6 {
		t.Fatalf("expected one +100 trade, got %v", trades.pnls)
	}
	fills := ledger.Fills()
	if len(fills) != 2 || fills[1].PnL == 0 {
		t.Fatalf("expected two fills with pnl on the exit, got %+v", fills)
	}
	if host.Fills() != 2 {
		t.Fatalf("expected fill count 2, got %d", host.Fills())
	}

	// Nothing held: flatten is a no-op.
	if err := host.Execute(ctx, bridge.NewInstruction("ABCD", bridge.ActionFlatten, decimal.Zero, "again")); err != nil {
		t.Fatalf("flatten when flat: %v", err)
	}
}

func TestHostSellIsClampedToHolding(t *testing.T) {
	host := NewHost(NewAccount(10_000, 0), zerolog.Nop())
	ctx := context.Background()
	host.Mark(bar("ABCD", 4.00))
	if err := host.Execute(ctx, bridge.NewInstruction("ABCD", bridge.ActionBuy, decimal.NewFromInt(100), "")); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := host.Execute(ctx, bridge.NewInstruction("ABCD", bridge.ActionSell, decimal.NewFromInt(500), "")); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if qty, _ := host.account.Holding("ABCD"); qty != 0 {
		t.Fatalf("expected flat, holding %.0f", qty)
	}
}

func TestHostHaltBlocksEntries(t *testing.T) {
	host := NewHost(NewAccount(10_000, 0), zerolog.Nop())
	ctx := context.Background()
	host.Mark(bar("ABCD", 4.00))
	if err := host.Execute(ctx, bridge.NewInstruction("", bridge.ActionHalt, decimal.Zero, "daily loss")); err != nil {
		t.Fatalf("halt: %v", err)
	}
	if !host.Halted() {
		t.Fatalf("expected host halted")
	}
	err := host.Execute(ctx, bridge.NewInstruction("ABCD", bridge.ActionBuy, decimal.NewFromInt(10), ""))
	if !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted, got %v", err)
	}
}

func TestHostNeedsMark(t *testing.T) {
	host := NewHost(NewAccount(10_000, 0), zerolog.Nop())
	if err := host.Execute(context.Background(), bridge.NewInstruction("ZZZZ", bridge.ActionBuy, decimal.NewFromInt(10), "")); err == nil {
		t.Fatalf("expected error without a price")
	}
}

func TestHostFlattenAll(t *testing.T) {
	trades := &tradeLog{}
	host := NewHost(NewAccount(10_000, 0), zerolog.Nop(), WithTradeRecorder(trades))
	ctx := context.Background()
	for _, sym := range []string{"AAA", "BBB"} {
		host.Mark(bar(sym, 2.00))
		if err := host.Execute(ctx, bridge.NewInstruction(sym, bridge.ActionBuy, decimal.NewFromInt(100), "")); err != nil {
			t.Fatalf("buy %s: %v", sym, err)
		}
	}
	host.Mark(bar("AAA", 1.90))
	if err := host.FlattenAll("session end"); err != nil {
		t.Fatalf("flatten all: %v", err)
	}
	if len(trades.pnls) != 2 {
		t.Fatalf("expected two closed trades, got %v", trades.pnls)
	}
	if len(host.account.Symbols()) != 0 {
		t.Fatalf("expected no open positions")
	}
}
