package paper

import (
	"testing"

	"warriorbot-go/internal/execution"
)

func TestLedgerSummaries(t *testing.T) {
	ledger := NewLedger(4)
	ledger.Record(execution.Fill{Symbol: "ABCD", Side: execution.Buy, Qty: 100, Price: 4})
	ledger.Record(execution.Fill{Symbol: "WXYZ", Side: execution.Buy, Qty: 50, Price: 10})
	ledger.Record(execution.Fill{Symbol: "ABCD", Side: execution.Sell, Qty: 100, Price: 4.5, PnL: 50})

	if ledger.Len() != 3 || len(ledger.Fills()) != 3 {
		t.Fatalf("expected 3 fills, got %d", ledger.Len())
	}
	sums := ledger.Summaries()
	if len(sums) != 2 || sums[0].Symbol != "ABCD" || sums[1].Symbol != "WXYZ" {
		t.Fatalf("unexpected summaries %+v", sums)
	}
	abcd := sums[0]
	if abcd.Buys != 1 || abcd.Sells != 1 || abcd.RealizedPnL != 50 || abcd.Open() {
		t.Fatalf("unexpected ABCD summary %+v", abcd)
	}
	if !sums[1].Open() {
		t.Fatalf("WXYZ should still be open")
	}

	ledger.Reset()
	if ledger.Len() != 0 || len(ledger.Summaries()) != 0 {
		t.Fatalf("expected ledger reset")
	}
}

func TestLedgerFillsIsCopy(t *testing.T) {
	ledger := NewLedger(0)
	ledger.Record(execution.Fill{Symbol: "ABCD"})
	fills := ledger.Fills()
	fills[0].Symbol = "MUT"
	if ledger.Fills()[0].Symbol != "ABCD" {
		t.Fatalf("Fills must not expose internal storage")
	}
}
