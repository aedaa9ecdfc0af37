package custody

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-chain/custodia/internal/hasher"
	"github.com/custodia-chain/custodia/internal/ledger"
)

// Verifier re-checks evidence authenticity against the ledger. Verification
// is a pure read: no transaction, no state change, safe to repeat and to
// run with arbitrary concurrency.
type Verifier struct {
	ledger Ledger
	logger *zap.Logger
}

// NewVerifier creates a Verifier sharing the given ledger client.
func NewVerifier(l Ledger, logger *zap.Logger) *Verifier {
	return &Verifier{ledger: l, logger: logger}
}

// Verify recomputes the hash of the file at path and compares it to the
// hash the ledger stored for evidenceID. The comparison is exact,
// case-sensitive hex equality.
//
// The three verdicts — AUTHENTIC, TAMPERED, NOT_FOUND — all return a
// result with nil error; errors are reserved for an unreadable file or an
// unreachable ledger.
func (v *Verifier) Verify(ctx context.Context, evidenceID, path string) (*VerificationResult, error) {
	computed, err := hasher.SumFile(path)
	if err != nil {
		return nil, fmt.Errorf("hash evidence: %w", err)
	}

	result := &VerificationResult{
		EvidenceID:   evidenceID,
		ComputedHash: computed,
		CheckedAt:    time.Now().UTC(),
	}

	stored, err := v.ledger.EvidenceHash(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			result.Verdict = VerdictNotFound
			v.logVerdict(result)
			return result, nil
		}
		return nil, fmt.Errorf("fetch stored hash: %w", err)
	}

	result.StoredHash = stored
	if stored == computed {
		result.Verdict = VerdictAuthentic
	} else {
		result.Verdict = VerdictTampered
	}
	v.logVerdict(result)
	return result, nil
}

func (v *Verifier) logVerdict(result *VerificationResult) {
	v.logger.Info("evidence verified",
		zap.String("evidence_id", result.EvidenceID),
		zap.String("verdict", string(result.Verdict)),
		zap.String("computed_hash", result.ComputedHash),
		zap.String("stored_hash", result.StoredHash),
	)
}
