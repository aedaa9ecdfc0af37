package custody_test

import (
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/custodia-chain/custodia/internal/custody"
	"github.com/custodia-chain/custodia/internal/ledger"
)

// registerFixture records one evidence file and returns the fake ledger,
// the registered file path, and the recorded content hash.
func registerFixture(t *testing.T) (*fakeLedger, string, string) {
	t.Helper()
	fake := newFakeLedger()
	registrar := custody.NewRegistrar(fake, 0, zap.NewNop())
	path := writeEvidence(t, "body-cam footage, camera 3")

	result, err := registrar.Register(ctx, "CASE-1", "EV-1", path)
	if err != nil {
		t.Fatal(err)
	}
	return fake, path, result.ContentHash
}

func TestVerify_authentic(t *testing.T) {
	fake, path, recordedHash := registerFixture(t)
	verifier := custody.NewVerifier(fake, zap.NewNop())

	result, err := verifier.Verify(ctx, "EV-1", path)
	if err != nil {
		t.Fatal(err)
	}

	if result.Verdict != custody.VerdictAuthentic {
		t.Errorf("verdict: got %s, want AUTHENTIC", result.Verdict)
	}
	if result.ComputedHash != recordedHash {
		t.Errorf("computed hash %q != recorded hash %q", result.ComputedHash, recordedHash)
	}
	if result.StoredHash != recordedHash {
		t.Errorf("stored hash %q != recorded hash %q", result.StoredHash, recordedHash)
	}
}

func TestVerify_tamperedByOneByte(t *testing.T) {
	fake, path, _ := registerFixture(t)
	verifier := custody.NewVerifier(fake, zap.NewNop())

	// Flip a single byte of the registered file.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[0] ^= 0x01
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := verifier.Verify(ctx, "EV-1", path)
	if err != nil {
		t.Fatal(err)
	}
	if result.Verdict != custody.VerdictTampered {
		t.Errorf("verdict: got %s, want TAMPERED", result.Verdict)
	}
	if result.StoredHash == result.ComputedHash {
		t.Error("hashes equal for tampered file")
	}
}

func TestVerify_notFound(t *testing.T) {
	fake, path, _ := registerFixture(t)
	verifier := custody.NewVerifier(fake, zap.NewNop())

	result, err := verifier.Verify(ctx, "EV-UNREGISTERED", path)
	if err != nil {
		t.Fatal(err)
	}
	if result.Verdict != custody.VerdictNotFound {
		t.Errorf("verdict: got %s, want NOT_FOUND", result.Verdict)
	}
	if result.StoredHash != "" {
		t.Errorf("stored hash should be empty for missing record, got %q", result.StoredHash)
	}
}

func TestVerify_pureReadRepeatable(t *testing.T) {
	fake, path, _ := registerFixture(t)
	verifier := custody.NewVerifier(fake, zap.NewNop())
	writesBefore := fake.writeCount()

	var verdicts [5]custody.Verdict
	for i := range verdicts {
		result, err := verifier.Verify(ctx, "EV-1", path)
		if err != nil {
			t.Fatal(err)
		}
		verdicts[i] = result.Verdict
	}

	for _, v := range verdicts {
		if v != verdicts[0] {
			t.Fatalf("verdicts drifted across repeats: %v", verdicts)
		}
	}
	if fake.writeCount() != writesBefore {
		t.Error("verification performed a ledger write")
	}
}

func TestVerify_ledgerUnreachable(t *testing.T) {
	fake, path, _ := registerFixture(t)
	fake.unreachable = true
	verifier := custody.NewVerifier(fake, zap.NewNop())

	_, err := verifier.Verify(ctx, "EV-1", path)
	if !errors.Is(err, ledger.ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}
