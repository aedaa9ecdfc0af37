package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Event is one historical EvidenceAdded record replayed from the chain.
type Event struct {
	CaseID      string
	EvidenceID  string
	Hash        string
	Timestamp   time.Time
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
}

// Records replays every EvidenceAdded event the contract has ever emitted,
// from genesis, ordered by block number then intra-block log index. RPC
// failures are returned to the caller rather than flattened into an empty
// slice, so "no evidence yet" and "network down" stay distinguishable.
func (c *Client) Records(ctx context.Context) ([]Event, error) {
	eventDef, ok := c.abi.Events[eventEvidenceAdded]
	if !ok {
		return nil, fmt.Errorf("%w: descriptor lacks event %q", ErrBadDescriptor, eventEvidenceAdded)
	}

	logs, err := c.eth.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{c.contract},
		Topics:    [][]common.Hash{{eventDef.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: filter %s logs: %v", ErrUnreachable, eventEvidenceAdded, err)
	}

	return parseRecords(c.abi, logs)
}

// parseRecords decodes and orders raw event logs.
func parseRecords(contractABI abi.ABI, logs []types.Log) ([]Event, error) {
	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		ev, err := decodeEvent(contractABI, lg)
		if err != nil {
			return nil, fmt.Errorf("decode log in block %d: %w", lg.BlockNumber, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// decodeEvent unpacks a single EvidenceAdded log. Indexed string arguments
// arrive as keccak topic hashes and are rendered as 0x-hex, matching how
// the records have historically been listed.
func decodeEvent(contractABI abi.ABI, lg types.Log) (Event, error) {
	eventDef := contractABI.Events[eventEvidenceAdded]

	fields := map[string]interface{}{}
	if len(lg.Data) > 0 {
		if err := contractABI.UnpackIntoMap(fields, eventEvidenceAdded, lg.Data); err != nil {
			return Event{}, fmt.Errorf("unpack event data: %w", err)
		}
	}

	var indexed abi.Arguments
	for _, input := range eventDef.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 && len(lg.Topics) > 1 {
		if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
			return Event{}, fmt.Errorf("unpack event topics: %w", err)
		}
	}

	ev := Event{
		CaseID:      stringField(fields, "caseId"),
		EvidenceID:  stringField(fields, "evidenceId"),
		Hash:        stringField(fields, "hash"),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash,
		LogIndex:    lg.Index,
	}
	if ts, ok := fields["timestamp"].(*big.Int); ok {
		ev.Timestamp = time.Unix(ts.Int64(), 0).UTC()
	}
	return ev, nil
}

func stringField(fields map[string]interface{}, name string) string {
	switch v := fields[name].(type) {
	case string:
		return v
	case common.Hash:
		return v.Hex()
	case [32]byte:
		return common.BytesToHash(v[:]).Hex()
	default:
		return ""
	}
}
