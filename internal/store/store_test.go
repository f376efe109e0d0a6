package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"warriorbot-go/internal/bridge"
	"warriorbot-go/internal/signal"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal", "test.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalInstructions(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Second)

	buy := bridge.NewInstruction("ABCD", bridge.ActionBuy, decimal.NewFromInt(100), "gap").WithLimit(decimal.RequireFromString("4.70"))
	buy.InReplyTo = 12
	halt := bridge.NewInstruction("", bridge.ActionHalt, decimal.Zero, "daily loss")
	for _, inst := range []bridge.Instruction{buy, halt} {
		if err := j.AppendInstruction(ctx, inst); err != nil {
			t.Fatalf("append %s: %v", inst.Action, err)
		}
	}

	got, err := j.Instructions(ctx, start)
	if err != nil {
		t.Fatalf("instructions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	first := got[0].Instruction
	if first.ID != buy.ID || first.InReplyTo != 12 || !first.LimitPrice.Decimal.Equal(decimal.RequireFromString("4.7")) {
		t.Fatalf("unexpected first entry %+v", first)
	}
	if got[1].Instruction.Action != bridge.ActionHalt {
		t.Fatalf("expected halt second, got %s", got[1].Instruction.Action)
	}

	later, err := j.Instructions(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("instructions since future: %v", err)
	}
	if len(later) != 0 {
		t.Fatalf("expected nothing after the future cutoff, got %d", len(later))
	}
}

func TestJournalRejectsDuplicateInstruction(t *testing.T) {
	j := openTemp(t)
	inst := bridge.NewInstruction("ABCD", bridge.ActionFlatten, decimal.Zero, "exit")
	if err := j.AppendInstruction(context.Background(), inst); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.AppendInstruction(context.Background(), inst); err == nil {
		t.Fatalf("expected unique id violation")
	}
}

func TestJournalSnapshots(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	for i := 2; i >= 0; i-- {
		snap := bridge.SnapshotFromBar(signal.Bar{
			Symbol: "ABCD", Open: 4, High: 4.2, Low: 3.9, Close: 4.1, Volume: 1000,
			Ts: base.Add(time.Duration(i) * time.Minute),
		})
		snap.Seq = uint64(3 - i)
		if err := j.AppendSnapshot(ctx, "host-1", snap); err != nil {
			t.Fatalf("append snapshot: %v", err)
		}
	}
	snaps, err := j.Snapshots(ctx, "ABCD")
	if err != nil {
		t.Fatalf("snapshots: %v", err)
	}
	if len(snaps) != 3 || !snaps[0].BarTime.Equal(base) || snaps[0].Seq != 3 {
		t.Fatalf("expected bar-time order, got %+v", snaps)
	}
	if !snaps[0].Close.Equal(decimal.RequireFromString("4.1")) {
		t.Fatalf("unexpected close %s", snaps[0].Close)
	}
}
