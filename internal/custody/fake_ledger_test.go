package custody_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/custodia-chain/custodia/internal/ledger"
)

// fakeLedger emulates the evidence contract in memory: at most one record
// per evidence id, enforced atomically at mining time, exactly like the
// chain enforces it. It satisfies custody.Ledger.
type fakeLedger struct {
	mu       sync.Mutex
	records  map[string]string // evidence id -> content hash
	pending  map[common.Hash]submission
	events   []ledger.Event
	txSeq    uint64
	block    uint64
	writes   int

	unreachable bool  // every call fails with ErrUnreachable
	neverMined  bool  // WaitMined always times out
	recordsErr  error // Records failure injection
}

type submission struct {
	caseID, evidenceID, hash string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		records: make(map[string]string),
		pending: make(map[common.Hash]submission),
		block:   10,
	}
}

func (f *fakeLedger) SubmitRecord(_ context.Context, caseID, evidenceID, contentHash string) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable {
		return common.Hash{}, fmt.Errorf("%w: dial: connection refused", ledger.ErrUnreachable)
	}
	if _, exists := f.records[evidenceID]; exists {
		return common.Hash{}, fmt.Errorf("revert Evidence already exists: %w", ledger.ErrDuplicateEntry)
	}

	f.txSeq++
	txHash := common.HexToHash(fmt.Sprintf("0x%064x", f.txSeq))
	f.pending[txHash] = submission{caseID: caseID, evidenceID: evidenceID, hash: contentHash}
	return txHash, nil
}

func (f *fakeLedger) WaitMined(_ context.Context, tx common.Hash, _ time.Duration) (*ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable {
		return nil, fmt.Errorf("%w: query receipt", ledger.ErrUnreachable)
	}
	if f.neverMined {
		return nil, &ledger.PendingError{Tx: tx}
	}

	sub, ok := f.pending[tx]
	if !ok {
		return nil, &ledger.PendingError{Tx: tx}
	}
	delete(f.pending, tx)

	// Mining is where uniqueness is finally arbitrated: a racing
	// submission that lands second reverts here.
	if _, exists := f.records[sub.evidenceID]; exists {
		return nil, fmt.Errorf("revert Evidence already exists: %w", ledger.ErrDuplicateEntry)
	}

	f.block++
	f.writes++
	f.records[sub.evidenceID] = sub.hash
	f.events = append(f.events, ledger.Event{
		CaseID:      sub.caseID,
		EvidenceID:  sub.evidenceID,
		Hash:        sub.hash,
		Timestamp:   time.Unix(1750000000+int64(f.block), 0).UTC(),
		BlockNumber: f.block,
		TxHash:      tx,
	})
	return &ledger.Receipt{
		Tx:          tx,
		BlockNumber: f.block,
		GasUsed:     87_654,
		BlockTime:   time.Unix(1750000000+int64(f.block), 0).UTC(),
	}, nil
}

func (f *fakeLedger) EvidenceHash(_ context.Context, evidenceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable {
		return "", fmt.Errorf("%w: call", ledger.ErrUnreachable)
	}
	hash, ok := f.records[evidenceID]
	if !ok {
		return "", fmt.Errorf("%s: %w", evidenceID, ledger.ErrNotFound)
	}
	return hash, nil
}

func (f *fakeLedger) Records(_ context.Context) ([]ledger.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordsErr != nil {
		return nil, f.recordsErr
	}
	out := make([]ledger.Event, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeLedger) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}
