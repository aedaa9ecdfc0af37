package ledger_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/custodia-chain/custodia/internal/ledger"
)

const abiEntries = `[
  {"type":"function","name":"addEvidence","inputs":[
    {"name":"caseId","type":"string"},
    {"name":"evidenceId","type":"string"},
    {"name":"hash","type":"string"}],"outputs":[]},
  {"type":"function","name":"getEvidenceHash","stateMutability":"view","inputs":[
    {"name":"evidenceId","type":"string"}],
    "outputs":[{"name":"","type":"string"}]},
  {"type":"event","name":"EvidenceAdded","anonymous":false,"inputs":[
    {"name":"caseId","type":"string","indexed":false},
    {"name":"evidenceId","type":"string","indexed":false},
    {"name":"hash","type":"string","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false}]}
]`

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compiled_code.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDescriptor_bareArray(t *testing.T) {
	parsed, err := ledger.LoadDescriptor(writeDescriptor(t, abiEntries))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := parsed.Methods["addEvidence"]; !ok {
		t.Error("addEvidence missing from parsed interface")
	}
	if _, ok := parsed.Methods["getEvidenceHash"]; !ok {
		t.Error("getEvidenceHash missing from parsed interface")
	}
	if _, ok := parsed.Events["EvidenceAdded"]; !ok {
		t.Error("EvidenceAdded missing from parsed interface")
	}
}

func TestLoadDescriptor_abiKey(t *testing.T) {
	doc := `{"contractName":"EvidenceChain","abi":` + abiEntries + `}`
	if _, err := ledger.LoadDescriptor(writeDescriptor(t, doc)); err != nil {
		t.Fatalf("compiler-output descriptor rejected: %v", err)
	}
}

func TestLoadDescriptor_hardhatNesting(t *testing.T) {
	doc := `{"contracts":{"EvidenceChain.sol":{"EvidenceChain":{"abi":` + abiEntries + `}}}}`
	if _, err := ledger.LoadDescriptor(writeDescriptor(t, doc)); err != nil {
		t.Fatalf("hardhat descriptor rejected: %v", err)
	}
}

func TestLoadDescriptor_missingFile(t *testing.T) {
	_, err := ledger.LoadDescriptor(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, ledger.ErrBadDescriptor) {
		t.Errorf("expected ErrBadDescriptor, got %v", err)
	}
}

func TestLoadDescriptor_notJSON(t *testing.T) {
	_, err := ledger.LoadDescriptor(writeDescriptor(t, "pragma solidity ^0.8.0;"))
	if !errors.Is(err, ledger.ErrBadDescriptor) {
		t.Errorf("expected ErrBadDescriptor, got %v", err)
	}
}

func TestLoadDescriptor_noInterfaceSection(t *testing.T) {
	_, err := ledger.LoadDescriptor(writeDescriptor(t, `{"bytecode":"0x00"}`))
	if !errors.Is(err, ledger.ErrBadDescriptor) {
		t.Errorf("expected ErrBadDescriptor, got %v", err)
	}
}

func TestLoadDescriptor_missingEvidenceMethods(t *testing.T) {
	doc := `[{"type":"function","name":"storeHash","inputs":[{"name":"h","type":"string"}],"outputs":[]}]`
	_, err := ledger.LoadDescriptor(writeDescriptor(t, doc))
	if !errors.Is(err, ledger.ErrBadDescriptor) {
		t.Errorf("expected ErrBadDescriptor for wrong contract, got %v", err)
	}
}
