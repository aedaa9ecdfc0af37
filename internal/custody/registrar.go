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

// defaultConfirmTimeout bounds how long a registration waits for its
// transaction to be mined before reporting it pending.
const defaultConfirmTimeout = 2 * time.Minute

// Registrar binds evidence content hashes to the ledger.
type Registrar struct {
	ledger         Ledger
	confirmTimeout time.Duration
	logger         *zap.Logger
}

// NewRegistrar creates a Registrar sharing the given ledger client.
// confirmTimeout of 0 selects the default.
func NewRegistrar(l Ledger, confirmTimeout time.Duration, logger *zap.Logger) *Registrar {
	if confirmTimeout == 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	return &Registrar{ledger: l, confirmTimeout: confirmTimeout, logger: logger}
}

// Register hashes the file at path and records (caseID, evidenceID, hash)
// on the ledger.
//
// RECORDED and DUPLICATE both return a result with nil error: either the
// hash was just recorded, or an earlier record already protects this
// evidence id — no data was lost or overwritten in either case. All other
// endings return an error: unreadable file, ledger.ErrUnreachable,
// *ledger.RevertError, or *ledger.PendingError carrying the transaction
// hash so a timed-out confirmation can be resumed rather than resubmitted.
func (r *Registrar) Register(ctx context.Context, caseID, evidenceID, path string) (*IngestionResult, error) {
	contentHash, err := hasher.SumFile(path)
	if err != nil {
		return nil, fmt.Errorf("hash evidence: %w", err)
	}

	r.logger.Info("evidence hashed",
		zap.String("case_id", caseID),
		zap.String("evidence_id", evidenceID),
		zap.String("content_hash", contentHash),
	)

	tx, err := r.ledger.SubmitRecord(ctx, caseID, evidenceID, contentHash)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			return r.duplicate(caseID, evidenceID, contentHash), nil
		}
		return nil, fmt.Errorf("submit record: %w", err)
	}

	receipt, err := r.ledger.WaitMined(ctx, tx, r.confirmTimeout)
	if err != nil {
		// The duplicate can surface here instead: a concurrent
		// registration's transaction may land first and revert ours.
		if errors.Is(err, ledger.ErrDuplicateEntry) {
			return r.duplicate(caseID, evidenceID, contentHash), nil
		}
		return nil, fmt.Errorf("confirm record: %w", err)
	}

	r.logger.Info("evidence recorded",
		zap.String("evidence_id", evidenceID),
		zap.Uint64("block", receipt.BlockNumber),
		zap.String("tx", receipt.Tx.Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return &IngestionResult{
		CaseID:        caseID,
		EvidenceID:    evidenceID,
		ContentHash:   contentHash,
		BlockNumber:   receipt.BlockNumber,
		TransactionID: receipt.Tx.Hex(),
		GasUsed:       receipt.GasUsed,
		BlockTime:     receipt.BlockTime,
		Outcome:       OutcomeRecorded,
	}, nil
}

func (r *Registrar) duplicate(caseID, evidenceID, contentHash string) *IngestionResult {
	r.logger.Info("evidence already recorded",
		zap.String("case_id", caseID),
		zap.String("evidence_id", evidenceID),
	)
	return &IngestionResult{
		CaseID:      caseID,
		EvidenceID:  evidenceID,
		ContentHash: contentHash,
		Outcome:     OutcomeDuplicate,
	}
}
