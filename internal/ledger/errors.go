package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnreachable is returned when the RPC endpoint cannot be reached or a
// network round-trip fails. The caller may retry the whole operation after
// backoff; the client never retries internally.
var ErrUnreachable = errors.New("ledger endpoint unreachable")

// ErrBadDescriptor is returned when the contract interface descriptor is
// missing, malformed, or lacks the evidence methods.
var ErrBadDescriptor = errors.New("contract interface descriptor malformed")

// ErrDuplicateEntry is returned when the contract rejects a submission
// because a record for the evidence id already exists. This is an expected
// business outcome, not a failure: the ledger is the sole arbiter of
// evidence-id uniqueness and the first recorded hash is intact.
var ErrDuplicateEntry = errors.New("evidence already recorded on ledger")

// ErrNotFound is returned by read-only lookups when the ledger holds no
// record for the requested evidence id.
var ErrNotFound = errors.New("no ledger record for evidence id")

// RevertError is a contract-level rejection for any reason other than a
// duplicate entry. Reason carries the node's revert message verbatim.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("transaction reverted: %s", e.Reason)
}

// PendingError is returned when a confirmation wait times out or is
// cancelled before the transaction is mined. The transaction remains
// broadcast and may still land; Tx lets the caller resume by re-querying
// its status instead of resubmitting.
type PendingError struct {
	Tx common.Hash
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("transaction %s not yet mined", e.Tx.Hex())
}
