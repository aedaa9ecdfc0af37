package custody_test

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/custodia-chain/custodia/internal/custody"
)

func TestListAll_ledgerOrderAndNumbering(t *testing.T) {
	fake := newFakeLedger()
	registrar := custody.NewRegistrar(fake, 0, zap.NewNop())
	for _, id := range []string{"EV-1", "EV-2", "EV-3"} {
		if _, err := registrar.Register(ctx, "CASE-1", id, writeEvidence(t, "footage "+id)); err != nil {
			t.Fatal(err)
		}
	}

	records, err := custody.NewReader(fake, zap.NewNop()).ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	for i, rec := range records {
		if rec.Number != i+1 {
			t.Errorf("record %d numbered %d", i, rec.Number)
		}
		if rec.CaseID != "CASE-1" {
			t.Errorf("record %d case id %q", i, rec.CaseID)
		}
		if rec.Datetime == "" || rec.Timestamp == 0 {
			t.Errorf("record %d missing timestamps: %+v", i, rec)
		}
		if i > 0 && rec.BlockNumber < records[i-1].BlockNumber {
			t.Errorf("records out of ledger order at %d", i)
		}
	}
	if records[0].EvidenceID != "EV-1" || records[2].EvidenceID != "EV-3" {
		t.Errorf("insertion order lost: %+v", records)
	}
}

func TestListAll_emptyLedger(t *testing.T) {
	records, err := custody.NewReader(newFakeLedger(), zap.NewNop()).ListAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("want empty non-nil slice, got %#v", records)
	}
}

func TestListAll_rpcFailureIsAnError(t *testing.T) {
	fake := newFakeLedger()
	fake.recordsErr = errors.New("filter logs: connection reset")

	records, err := custody.NewReader(fake, zap.NewNop()).ListAll(ctx)
	if err == nil {
		t.Fatal("RPC failure must surface as an error, not an empty listing")
	}
	if records != nil {
		t.Errorf("expected nil records on failure, got %v", records)
	}
}
