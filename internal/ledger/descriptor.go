package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract method and event names the client depends on.
const (
	methodAddEvidence     = "addEvidence"
	methodGetEvidenceHash = "getEvidenceHash"
	eventEvidenceAdded    = "EvidenceAdded"
)

// LoadDescriptor reads a contract interface descriptor from path and parses
// it into an ABI. Three descriptor shapes are accepted: a bare JSON array of
// entries, a compiler output object with a top-level "abi" key, and the
// hardhat build layout nesting the ABI under "contracts".
//
// The descriptor must declare addEvidence and getEvidenceHash; anything else
// fails with ErrBadDescriptor.
func LoadDescriptor(path string) (abi.ABI, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%w: read %s: %v", ErrBadDescriptor, path, err)
	}

	entries, err := extractEntries(raw)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%w: %s: %v", ErrBadDescriptor, path, err)
	}

	parsed, err := abi.JSON(bytes.NewReader(entries))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%w: parse %s: %v", ErrBadDescriptor, path, err)
	}

	for _, method := range []string{methodAddEvidence, methodGetEvidenceHash} {
		if _, ok := parsed.Methods[method]; !ok {
			return abi.ABI{}, fmt.Errorf("%w: descriptor lacks method %q", ErrBadDescriptor, method)
		}
	}
	return parsed, nil
}

// extractEntries locates the ABI entry array inside a descriptor document.
func extractEntries(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty descriptor")
	}

	// Bare entry array.
	if trimmed[0] == '[' {
		return raw, nil
	}

	var doc struct {
		ABI       json.RawMessage                                  `json:"abi"`
		Contracts map[string]map[string]struct{ ABI json.RawMessage `json:"abi"` } `json:"contracts"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("not valid JSON: %v", err)
	}

	if len(doc.ABI) > 0 {
		return doc.ABI, nil
	}

	// Hardhat compile output: contracts -> source file -> contract name -> abi.
	for _, file := range doc.Contracts {
		for _, contract := range file {
			if len(contract.ABI) > 0 {
				return contract.ABI, nil
			}
		}
	}
	return nil, fmt.Errorf("no interface section found")
}
