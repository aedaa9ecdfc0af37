// Package ledger wraps the JSON-RPC connection to an Ethereum-compatible
// ledger network behind the handful of operations the custody engine needs:
// submitting an evidence record, awaiting its confirmation, reading a stored
// hash, and replaying historical record events.
//
// A Client owns the RPC connection and the signing key for its lifetime.
// Nonce assignment is serialised internally, so any number of goroutines may
// submit through one shared Client. Read-only calls need no serialisation.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const (
	// probeTimeout bounds the liveness check performed at dial time.
	probeTimeout = 10 * time.Second

	// submitGasLimit is the fixed gas allowance for addEvidence. The
	// method writes two short strings and one 64-char hash; 300k leaves
	// ample headroom on every target network.
	submitGasLimit = 300_000

	// receiptPollInterval is how often WaitMined re-queries the node.
	receiptPollInterval = 500 * time.Millisecond
)

// Config holds the connection, contract, and signing parameters.
type Config struct {
	Endpoint        string // JSON-RPC URL
	ChainID         int64  // numeric chain identifier, checked at dial time
	ContractAddress string // deployed evidence contract, 0x-prefixed
	DescriptorPath  string // contract interface descriptor (ABI JSON)
	PrivateKey      string // hex signing key, supplied out-of-band
}

// Receipt is the confirmation record for a mined, successful transaction.
type Receipt struct {
	Tx          common.Hash
	BlockNumber uint64
	GasUsed     uint64
	BlockTime   time.Time
}

// TxState describes a previously broadcast transaction when its status is
// re-queried after a timed-out confirmation wait.
type TxState string

const (
	TxPending  TxState = "pending"
	TxMined    TxState = "mined"
	TxReverted TxState = "reverted"
	TxUnknown  TxState = "unknown"
)

// Client talks to the evidence contract on an Ethereum-compatible network.
type Client struct {
	eth      *ethclient.Client
	abi      abi.ABI
	contract common.Address
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	account  common.Address
	nonces   nonceSource
	submitMu sync.Mutex
	logger   *zap.Logger
}

// Dial connects to the configured endpoint, probes it for liveness, loads
// the contract descriptor, and prepares the signing account. The endpoint
// not answering within the probe timeout is ErrUnreachable; a bad
// descriptor or key is ErrBadDescriptor / a config error surfaced
// immediately.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	contractABI, err := LoadDescriptor(cfg.DescriptorPath)
	if err != nil {
		return nil, err
	}

	// The key is optional: read-only flows (verification, listing) never
	// sign anything.
	var key *ecdsa.PrivateKey
	var account common.Address
	if cfg.PrivateKey != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse signing key: %w", err)
		}
		account = crypto.PubkeyToAddress(key.PublicKey)
	}

	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("contract address %q is not a hex address", cfg.ContractAddress)
	}

	eth, err := ethclient.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnreachable, cfg.Endpoint, err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	chainID, err := eth.ChainID(probeCtx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("%w: liveness probe %s: %v", ErrUnreachable, cfg.Endpoint, err)
	}
	if cfg.ChainID != 0 && chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("endpoint reports chain id %d, configured %d", chainID.Int64(), cfg.ChainID)
	}

	c := &Client{
		eth:      eth,
		abi:      contractABI,
		contract: common.HexToAddress(cfg.ContractAddress),
		chainID:  chainID,
		key:      key,
		account:  account,
		logger:   logger,
	}

	logger.Info("ledger connected",
		zap.String("endpoint", cfg.Endpoint),
		zap.Int64("chain_id", chainID.Int64()),
		zap.String("contract", c.contract.Hex()),
		zap.String("account", c.account.Hex()),
	)
	return c, nil
}

// Account returns the sending account address.
func (c *Client) Account() common.Address {
	return c.account
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Ping checks endpoint liveness with a block number query.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.eth.BlockNumber(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return nil
}

// SubmitRecord signs and broadcasts an addEvidence transaction binding the
// content hash to (caseID, evidenceID). It returns the transaction hash;
// confirmation is the caller's concern via WaitMined.
//
// A contract rejection for an existing evidence id maps to
// ErrDuplicateEntry; other rejections to *RevertError; transport failures
// to ErrUnreachable. Nonce assignment and broadcast are serialised per
// account, so concurrent submissions never collide.
func (c *Client) SubmitRecord(ctx context.Context, caseID, evidenceID, contentHash string) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, errors.New("no signing key configured")
	}

	data, err := c.abi.Pack(methodAddEvidence, caseID, evidenceID, contentHash)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode %s call: %w", methodAddEvidence, err)
	}

	// One in-flight submission per account: nonce reservation and
	// broadcast stay inside the same critical section.
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	nonce, err := c.nonces.reserve(ctx, func(ctx context.Context) (uint64, error) {
		pending, err := c.eth.PendingNonceAt(ctx, c.account)
		if err != nil {
			return 0, fmt.Errorf("%w: fetch account nonce: %v", ErrUnreachable, err)
		}
		return pending, nil
	})
	if err != nil {
		return common.Hash{}, err
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		c.nonces.invalidate()
		return common.Hash{}, fmt.Errorf("%w: fetch gas price: %v", ErrUnreachable, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Gas:      submitGasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.key)
	if err != nil {
		c.nonces.invalidate()
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		// The chain may or may not have consumed this nonce; resync
		// before the next submission.
		c.nonces.invalidate()
		return common.Hash{}, classifyRejection(err)
	}

	c.logger.Info("evidence record submitted",
		zap.String("case_id", caseID),
		zap.String("evidence_id", evidenceID),
		zap.Uint64("nonce", nonce),
		zap.String("tx", signed.Hash().Hex()),
	)
	return signed.Hash(), nil
}

// WaitMined blocks until tx is mined or timeout elapses. On timeout (or
// caller cancellation) it returns *PendingError carrying the transaction
// hash — the broadcast itself is not cancelled, and the wait can be resumed
// later with TransactionStatus.
func (c *Client) WaitMined(ctx context.Context, tx common.Hash, timeout time.Duration) (*Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(waitCtx, tx)
		switch {
		case err == nil:
			return c.confirm(ctx, receipt)
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet; keep polling.
		case waitCtx.Err() != nil:
			return nil, &PendingError{Tx: tx}
		default:
			return nil, fmt.Errorf("%w: query receipt: %v", ErrUnreachable, err)
		}

		select {
		case <-waitCtx.Done():
			return nil, &PendingError{Tx: tx}
		case <-ticker.C:
		}
	}
}

// confirm turns a mined receipt into a Receipt, or classifies the failure
// when the transaction reverted on chain.
func (c *Client) confirm(ctx context.Context, receipt *types.Receipt) (*Receipt, error) {
	if receipt.Status == types.ReceiptStatusFailed {
		reason := c.replayForReason(ctx, receipt)
		if strings.Contains(reason, duplicateRevertReason) {
			return nil, fmt.Errorf("%s: %w", reason, ErrDuplicateEntry)
		}
		return nil, &RevertError{Reason: reason}
	}

	confirmed := &Receipt{
		Tx:          receipt.TxHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}
	if header, err := c.eth.HeaderByNumber(ctx, receipt.BlockNumber); err == nil {
		confirmed.BlockTime = time.Unix(int64(header.Time), 0).UTC()
	} else {
		c.logger.Warn("block header lookup failed, receipt returned without block time",
			zap.Uint64("block", confirmed.BlockNumber), zap.Error(err))
	}
	return confirmed, nil
}

// replayForReason re-executes a failed transaction as a read-only call at
// its block to recover the revert reason. Best effort: nodes that prune
// state simply yield the generic reason.
func (c *Client) replayForReason(ctx context.Context, receipt *types.Receipt) string {
	tx, _, err := c.eth.TransactionByHash(ctx, receipt.TxHash)
	if err != nil {
		return "execution reverted"
	}

	msg := ethereum.CallMsg{
		From:     c.account,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	if _, err := c.eth.CallContract(ctx, msg, receipt.BlockNumber); err != nil {
		if reason, ok := revertReason(err); ok {
			return reason
		}
	}
	return "execution reverted"
}

// EvidenceHash fetches the stored content hash for evidenceID via a
// read-only getEvidenceHash call. No transaction, no gas. A missing record
// is ErrNotFound, whether the contract reverts or returns an empty string.
func (c *Client) EvidenceHash(ctx context.Context, evidenceID string) (string, error) {
	data, err := c.abi.Pack(methodGetEvidenceHash, evidenceID)
	if err != nil {
		return "", fmt.Errorf("encode %s call: %w", methodGetEvidenceHash, err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		if _, ok := revertReason(err); ok {
			return "", fmt.Errorf("%s: %w", evidenceID, ErrNotFound)
		}
		return "", fmt.Errorf("%w: call %s: %v", ErrUnreachable, methodGetEvidenceHash, err)
	}

	results, err := c.abi.Unpack(methodGetEvidenceHash, out)
	if err != nil {
		return "", fmt.Errorf("decode %s result: %w", methodGetEvidenceHash, err)
	}
	stored, ok := results[0].(string)
	if !ok {
		return "", fmt.Errorf("%s returned %T, want string", methodGetEvidenceHash, results[0])
	}
	if stored == "" {
		return "", fmt.Errorf("%s: %w", evidenceID, ErrNotFound)
	}
	return stored, nil
}

// TransactionStatus re-queries a previously broadcast transaction. It backs
// the resumable side of a timed-out WaitMined: mined transactions come back
// with their full receipt, pending ones report TxPending, and transactions
// the node has never seen report TxUnknown.
func (c *Client) TransactionStatus(ctx context.Context, tx common.Hash) (TxState, *Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, tx)
	if err == nil {
		confirmed, cerr := c.confirm(ctx, receipt)
		if cerr != nil {
			return TxReverted, nil, cerr
		}
		return TxMined, confirmed, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return TxUnknown, nil, fmt.Errorf("%w: query receipt: %v", ErrUnreachable, err)
	}

	_, pending, err := c.eth.TransactionByHash(ctx, tx)
	switch {
	case err == nil && pending:
		return TxPending, nil, nil
	case err == nil:
		// Known but no receipt yet; treat as still pending.
		return TxPending, nil, nil
	case errors.Is(err, ethereum.NotFound):
		return TxUnknown, nil, nil
	default:
		return TxUnknown, nil, fmt.Errorf("%w: query transaction: %v", ErrUnreachable, err)
	}
}
