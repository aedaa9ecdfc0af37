package custody_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/custodia-chain/custodia/internal/custody"
	"github.com/custodia-chain/custodia/internal/ledger"
)

var ctx = context.Background()

func writeEvidence(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRegister_recorded(t *testing.T) {
	fake := newFakeLedger()
	registrar := custody.NewRegistrar(fake, 0, zap.NewNop())

	result, err := registrar.Register(ctx, "CASE-1", "EV-1", writeEvidence(t, "original footage"))
	if err != nil {
		t.Fatal(err)
	}

	if result.Outcome != custody.OutcomeRecorded {
		t.Errorf("outcome: got %s, want RECORDED", result.Outcome)
	}
	if result.BlockNumber == 0 || result.TransactionID == "" || result.GasUsed == 0 {
		t.Errorf("receipt fields missing: %+v", result)
	}
	if len(result.ContentHash) != 64 {
		t.Errorf("content hash not a 64-char digest: %q", result.ContentHash)
	}
}

func TestRegister_secondAttemptIsDuplicate(t *testing.T) {
	fake := newFakeLedger()
	registrar := custody.NewRegistrar(fake, 0, zap.NewNop())
	path := writeEvidence(t, "original footage")

	first, err := registrar.Register(ctx, "CASE-1", "EV-1", path)
	if err != nil {
		t.Fatal(err)
	}

	// Same id, even with a different file: the ledger must reject it and
	// the first record must survive untouched.
	second, err := registrar.Register(ctx, "CASE-1", "EV-1", writeEvidence(t, "different footage"))
	if err != nil {
		t.Fatalf("duplicate must not be an error: %v", err)
	}

	if first.Outcome != custody.OutcomeRecorded || second.Outcome != custody.OutcomeDuplicate {
		t.Errorf("outcomes: got %s then %s, want RECORDED then DUPLICATE", first.Outcome, second.Outcome)
	}
	if fake.writeCount() != 1 {
		t.Errorf("ledger writes: got %d, want exactly 1", fake.writeCount())
	}
}

func TestRegister_duplicateDetectedAtMiningTime(t *testing.T) {
	fake := newFakeLedger()
	registrar := custody.NewRegistrar(fake, 0, zap.NewNop())
	path := writeEvidence(t, "footage")

	// Two submissions both broadcast before either is mined; the second
	// one reverts when the chain arbitrates uniqueness.
	txA, err := fake.SubmitRecord(ctx, "CASE-1", "EV-9", "aaaa")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fake.WaitMined(ctx, txA, 0); err != nil {
		t.Fatal(err)
	}

	result, err := registrar.Register(ctx, "CASE-1", "EV-9", path)
	if err != nil {
		t.Fatalf("mining-time duplicate must not be an error: %v", err)
	}
	if result.Outcome != custody.OutcomeDuplicate {
		t.Errorf("outcome: got %s, want DUPLICATE", result.Outcome)
	}
}

func TestRegister_unreadableFile(t *testing.T) {
	registrar := custody.NewRegistrar(newFakeLedger(), 0, zap.NewNop())

	_, err := registrar.Register(ctx, "CASE-1", "EV-1", filepath.Join(t.TempDir(), "missing.mp4"))
	if err == nil {
		t.Fatal("expected error for unreadable file")
	}
}

func TestRegister_connectivityFailure(t *testing.T) {
	fake := newFakeLedger()
	fake.unreachable = true
	registrar := custody.NewRegistrar(fake, 0, zap.NewNop())

	_, err := registrar.Register(ctx, "CASE-1", "EV-1", writeEvidence(t, "footage"))
	if !errors.Is(err, ledger.ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
	if custody.OutcomeForError(err) != custody.OutcomeConnectivityError {
		t.Errorf("outcome mapping: got %s", custody.OutcomeForError(err))
	}
}

func TestRegister_confirmationTimeoutPreservesTx(t *testing.T) {
	fake := newFakeLedger()
	fake.neverMined = true
	registrar := custody.NewRegistrar(fake, 0, zap.NewNop())

	_, err := registrar.Register(ctx, "CASE-1", "EV-1", writeEvidence(t, "footage"))

	var pending *ledger.PendingError
	if !errors.As(err, &pending) {
		t.Fatalf("expected *PendingError, got %v", err)
	}
	if pending.Tx == (common.Hash{}) {
		t.Error("pending error lost the transaction hash")
	}
}

func TestRegister_concurrentDistinctIDsAllLand(t *testing.T) {
	fake := newFakeLedger()
	registrar := custody.NewRegistrar(fake, 0, zap.NewNop())

	const k = 16
	paths := make([]string, k)
	for i := range paths {
		paths[i] = writeEvidence(t, "footage-"+string(rune('a'+i)))
	}

	var wg sync.WaitGroup
	outcomes := make([]custody.Outcome, k)
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			result, err := registrar.Register(ctx, "CASE-7", evidenceID(n), paths[n])
			if err != nil {
				t.Error(err)
				return
			}
			outcomes[n] = result.Outcome
		}(i)
	}
	wg.Wait()

	for i, outcome := range outcomes {
		if outcome != custody.OutcomeRecorded {
			t.Errorf("registration %d: got %s, want RECORDED", i, outcome)
		}
	}
	if fake.writeCount() != k {
		t.Errorf("ledger writes: got %d, want %d", fake.writeCount(), k)
	}
}

func evidenceID(n int) string {
	return "EV-CONC-" + string(rune('A'+n))
}
