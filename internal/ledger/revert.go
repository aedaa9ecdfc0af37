package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// duplicateRevertReason is the revert message the evidence contract emits
// when an entry for the evidence id already exists. Structured revert data
// is preferred when the node supplies it; this substring is the fallback
// for nodes that only surface text.
const duplicateRevertReason = "Evidence already exists"

// revertReason extracts a contract revert message from an RPC error.
// It first tries the structured revert payload (rpc.DataError carrying
// ABI-encoded Error(string) data), then falls back to scanning the error
// text. ok is false when err does not look like a revert at all.
func revertReason(err error) (reason string, ok bool) {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, isString := dataErr.ErrorData().(string); isString {
			if decoded, uerr := abi.UnpackRevert(common.FromHex(hexData)); uerr == nil {
				return decoded, true
			}
		}
	}

	msg := err.Error()
	if idx := strings.Index(msg, "revert"); idx >= 0 {
		reason = msg[idx:]
		reason = strings.TrimPrefix(reason, "reverted with reason string")
		reason = strings.TrimPrefix(reason, "reverted:")
		reason = strings.TrimPrefix(reason, "revert:")
		reason = strings.TrimPrefix(reason, "revert")
		return strings.Trim(reason, " '\""), true
	}
	return "", false
}

// classifyRejection maps a submission error onto the client's error
// taxonomy: duplicate entry, contract revert, node-level rejection, or
// unreachable endpoint.
func classifyRejection(err error) error {
	if reason, ok := revertReason(err); ok {
		if strings.Contains(reason, duplicateRevertReason) {
			return fmt.Errorf("%s: %w", reason, ErrDuplicateEntry)
		}
		return &RevertError{Reason: reason}
	}

	// Some nodes surface the reason without any revert marker.
	if strings.Contains(err.Error(), duplicateRevertReason) {
		return fmt.Errorf("%s: %w", err.Error(), ErrDuplicateEntry)
	}

	// A JSON-RPC error means the node answered but rejected the
	// transaction (bad nonce, underpriced, unknown account, ...).
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &RevertError{Reason: rpcErr.Error()}
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
