// Package metadata persists per-evidence results — ledger ingestion
// receipts, verification verdicts, deepfake predictions — in PostgreSQL,
// keyed by (case_id, evidence_id). The ledger stays the source of truth for
// hashes; this store only mirrors outcomes for the case file.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no results row exists for an evidence id.
var ErrNotFound = errors.New("evidence results not found")

// Results is the accumulated per-evidence row. Fields are filled in as the
// corresponding attach operations run; zero values mean "not yet".
type Results struct {
	CaseID        string    `json:"case_id"`
	EvidenceID    string    `json:"evidence_id"`
	ContentHash   string    `json:"content_hash,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	BlockNumber   uint64    `json:"block_number,omitempty"`
	StorageCID    string    `json:"storage_cid,omitempty"`
	Verdict       string    `json:"verdict,omitempty"`
	StoredHash    string    `json:"stored_hash,omitempty"`
	VerifiedAt    time.Time `json:"verified_at,omitempty"`
	DeepfakeScore float64   `json:"deepfake_score,omitempty"`
	FramesScored  int       `json:"frames_scored,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store provides the attach/get operations against PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// New creates a Store backed by the given connection pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// AttachIngestion upserts the ledger receipt for a recorded evidence item.
func (s *Store) AttachIngestion(ctx context.Context, caseID, evidenceID, contentHash, transactionID string, blockNumber uint64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO evidence_results (case_id, evidence_id, content_hash, transaction_id, block_number, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (case_id, evidence_id) DO UPDATE
		SET content_hash = EXCLUDED.content_hash,
		    transaction_id = EXCLUDED.transaction_id,
		    block_number = EXCLUDED.block_number,
		    updated_at = now()`,
		caseID, evidenceID, contentHash, transactionID, blockNumber,
	)
	if err != nil {
		return fmt.Errorf("attach ingestion result: %w", err)
	}
	return nil
}

// AttachVerification upserts the latest verification verdict.
func (s *Store) AttachVerification(ctx context.Context, caseID, evidenceID, computedHash, storedHash, verdict string, checkedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO evidence_results (case_id, evidence_id, content_hash, stored_hash, verdict, verified_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (case_id, evidence_id) DO UPDATE
		SET stored_hash = EXCLUDED.stored_hash,
		    verdict = EXCLUDED.verdict,
		    verified_at = EXCLUDED.verified_at,
		    updated_at = now()`,
		caseID, evidenceID, computedHash, storedHash, verdict, checkedAt,
	)
	if err != nil {
		return fmt.Errorf("attach verification result: %w", err)
	}
	return nil
}

// AttachPrediction upserts the deepfake probability score and the number of
// frames the classifier sampled.
func (s *Store) AttachPrediction(ctx context.Context, caseID, evidenceID string, score float64, frames int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO evidence_results (case_id, evidence_id, deepfake_score, frames_scored, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (case_id, evidence_id) DO UPDATE
		SET deepfake_score = EXCLUDED.deepfake_score,
		    frames_scored = EXCLUDED.frames_scored,
		    updated_at = now()`,
		caseID, evidenceID, score, frames,
	)
	if err != nil {
		return fmt.Errorf("attach prediction result: %w", err)
	}
	return nil
}

// AttachStorage upserts the content identifier the blob store returned for
// the encrypted payload.
func (s *Store) AttachStorage(ctx context.Context, caseID, evidenceID, cid string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO evidence_results (case_id, evidence_id, storage_cid, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (case_id, evidence_id) DO UPDATE
		SET storage_cid = EXCLUDED.storage_cid,
		    updated_at = now()`,
		caseID, evidenceID, cid,
	)
	if err != nil {
		return fmt.Errorf("attach storage cid: %w", err)
	}
	return nil
}

// GetResults returns the accumulated results row for an evidence id.
func (s *Store) GetResults(ctx context.Context, evidenceID string) (*Results, error) {
	row := s.db.QueryRow(ctx, `
		SELECT case_id, evidence_id,
		       COALESCE(content_hash, ''), COALESCE(transaction_id, ''),
		       COALESCE(block_number, 0), COALESCE(storage_cid, ''),
		       COALESCE(verdict, ''), COALESCE(stored_hash, ''),
		       COALESCE(verified_at, 'epoch'::timestamptz),
		       COALESCE(deepfake_score, 0), COALESCE(frames_scored, 0),
		       updated_at
		FROM evidence_results WHERE evidence_id = $1`,
		evidenceID,
	)

	r := &Results{}
	err := row.Scan(
		&r.CaseID, &r.EvidenceID,
		&r.ContentHash, &r.TransactionID,
		&r.BlockNumber, &r.StorageCID,
		&r.Verdict, &r.StoredHash,
		&r.VerifiedAt,
		&r.DeepfakeScore, &r.FramesScored,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get evidence results: %w", err)
	}
	return r, nil
}
