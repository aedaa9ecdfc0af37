package custody

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Reader reconstructs the chronological audit listing from the ledger's
// historical record events.
type Reader struct {
	ledger Ledger
	logger *zap.Logger
}

// NewReader creates a Reader sharing the given ledger client.
func NewReader(l Ledger, logger *zap.Logger) *Reader {
	return &Reader{ledger: l, logger: logger}
}

// ListAll replays every recorded-evidence event from genesis and returns
// the records in ledger insertion order, numbered from 1. RPC failures are
// returned as errors so callers can tell "no evidence yet" from "network
// down"; an intact but empty ledger yields an empty, non-nil slice.
func (r *Reader) ListAll(ctx context.Context) ([]EvidenceRecord, error) {
	events, err := r.ledger.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay record events: %w", err)
	}

	records := make([]EvidenceRecord, 0, len(events))
	for i, ev := range events {
		records = append(records, EvidenceRecord{
			Number:      i + 1,
			CaseID:      ev.CaseID,
			EvidenceID:  ev.EvidenceID,
			Hash:        ev.Hash,
			Timestamp:   ev.Timestamp.Unix(),
			Datetime:    ev.Timestamp.UTC().Format(time.RFC3339),
			BlockNumber: ev.BlockNumber,
			Transaction: ev.TxHash.Hex(),
		})
	}

	r.logger.Debug("audit listing replayed", zap.Int("records", len(records)))
	return records, nil
}
