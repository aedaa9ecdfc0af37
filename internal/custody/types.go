// Package custody orchestrates the evidence chain-of-custody flows: hash a
// file, bind the hash to the ledger, and later re-verify authenticity by
// recomputing and comparing. It owns the structured results returned to
// callers; the ledger client does the network work.
package custody

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/custodia-chain/custodia/internal/ledger"
)

// Outcome classifies how a registration attempt ended.
type Outcome string

const (
	// OutcomeRecorded means the evidence hash now lives in a mined block.
	OutcomeRecorded Outcome = "RECORDED"
	// OutcomeDuplicate means the ledger already holds a record for the
	// evidence id. The stored hash is untouched; nothing was overwritten.
	OutcomeDuplicate Outcome = "DUPLICATE"
	// OutcomeConnectivityError means the ledger endpoint was unreachable.
	OutcomeConnectivityError Outcome = "CONNECTIVITY_ERROR"
	// OutcomeChainError means the ledger rejected the transaction for a
	// reason other than duplication.
	OutcomeChainError Outcome = "CHAIN_ERROR"
)

// Verdict is the authenticity result of a verification.
type Verdict string

const (
	VerdictAuthentic Verdict = "AUTHENTIC"
	VerdictTampered  Verdict = "TAMPERED"
	VerdictNotFound  Verdict = "NOT_FOUND"
)

// IngestionResult reports a completed registration.
type IngestionResult struct {
	CaseID        string    `json:"case_id"`
	EvidenceID    string    `json:"evidence_id"`
	ContentHash   string    `json:"content_hash"`
	BlockNumber   uint64    `json:"block_number,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	GasUsed       uint64    `json:"gas_used,omitempty"`
	BlockTime     time.Time `json:"block_time,omitempty"`
	Outcome       Outcome   `json:"outcome"`
}

// VerificationResult reports an authenticity check. StoredHash is empty
// when the ledger holds no record.
type VerificationResult struct {
	EvidenceID   string    `json:"evidence_id"`
	ComputedHash string    `json:"computed_hash"`
	StoredHash   string    `json:"stored_hash,omitempty"`
	Verdict      Verdict   `json:"verdict"`
	CheckedAt    time.Time `json:"checked_at"`
}

// EvidenceRecord is one entry in the chronological audit listing replayed
// from ledger events. Number is the 1-based position in ledger order.
type EvidenceRecord struct {
	Number      int    `json:"number"`
	CaseID      string `json:"case_id"`
	EvidenceID  string `json:"evidence_id"`
	Hash        string `json:"hash"`
	Timestamp   int64  `json:"timestamp"`
	Datetime    string `json:"datetime"`
	BlockNumber uint64 `json:"block_number"`
	Transaction string `json:"transaction"`
}

// Ledger is the slice of the ledger client the custody flows depend on.
// *ledger.Client satisfies it; tests substitute an in-memory fake.
type Ledger interface {
	SubmitRecord(ctx context.Context, caseID, evidenceID, contentHash string) (common.Hash, error)
	WaitMined(ctx context.Context, tx common.Hash, timeout time.Duration) (*ledger.Receipt, error)
	EvidenceHash(ctx context.Context, evidenceID string) (string, error)
	Records(ctx context.Context) ([]ledger.Event, error)
}

// OutcomeForError maps a registration error onto the outcome taxonomy, for
// callers that report failed attempts in structured form.
func OutcomeForError(err error) Outcome {
	switch {
	case errors.Is(err, ledger.ErrDuplicateEntry):
		return OutcomeDuplicate
	case errors.Is(err, ledger.ErrUnreachable):
		return OutcomeConnectivityError
	default:
		return OutcomeChainError
	}
}
