package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/custodia-chain/custodia/internal/custody"
	"github.com/custodia-chain/custodia/internal/hasher"
	"github.com/custodia-chain/custodia/internal/ledger"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

// Exit codes for the register command. Callers script against these: a
// duplicate is an expected, distinguishable outcome, not a generic failure.
const (
	exitOK        = 0
	exitFailure   = 1
	exitDuplicate = 2
)

// exitError carries a specific process exit code out of a RunE.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

var (
	cfgFile        string
	endpointFlag   string
	contractFlag   string
	descriptorFlag string
	outputFormat   string
	verbose        bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			if ee.msg != "" {
				fmt.Fprintln(os.Stderr, "Error:", ee.msg)
			}
			os.Exit(ee.code)
		}
		os.Exit(exitFailure)
	}
}

var rootCmd = &cobra.Command{
	Use:   "custodia",
	Short: "Evidence chain-of-custody CLI",
	Long: `custodia registers digital evidence on an Ethereum-compatible ledger
and verifies it later by recomputing and comparing content hashes.

Connection settings come from flags, a config file, or CUSTODIA_* environment
variables. The signing key is read from CUSTODIA_PRIVATE_KEY only.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.custodia")
			viper.AddConfigPath(".")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("CUSTODIA")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		viper.SetDefault("endpoint", "http://127.0.0.1:8545")
		viper.SetDefault("chain_id", 0)
		viper.SetDefault("descriptor", "contract/EvidenceChain.json")

		if endpointFlag != "" {
			viper.Set("endpoint", endpointFlag)
		}
		if contractFlag != "" {
			viper.Set("contract", contractFlag)
		}
		if descriptorFlag != "" {
			viper.Set("descriptor", descriptorFlag)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.custodia/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "ledger JSON-RPC endpoint (default http://127.0.0.1:8545)")
	rootCmd.PersistentFlags().StringVar(&contractFlag, "contract", "", "evidence contract address (0x...)")
	rootCmd.PersistentFlags().StringVar(&descriptorFlag, "descriptor", "", "contract interface descriptor path")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging to stderr")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// dialLedger connects using the resolved configuration. The signing key is
// read from the environment only when signing is required.
func dialLedger(ctx context.Context, logger *zap.Logger, signing bool) (*ledger.Client, error) {
	key := ""
	if signing {
		key = os.Getenv("CUSTODIA_PRIVATE_KEY")
		if key == "" {
			return nil, errors.New("CUSTODIA_PRIVATE_KEY is required for this command")
		}
	}

	contract := viper.GetString("contract")
	if contract == "" {
		return nil, errors.New("contract address is required (--contract, config, or CUSTODIA_CONTRACT)")
	}

	return ledger.Dial(ctx, ledger.Config{
		Endpoint:        viper.GetString("endpoint"),
		ChainID:         viper.GetInt64("chain_id"),
		ContractAddress: contract,
		DescriptorPath:  viper.GetString("descriptor"),
		PrivateKey:      key,
	}, logger)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(v)
}

// ── register ─────────────────────────────────────────────────────────────────

var registerTimeout time.Duration

var registerCmd = &cobra.Command{
	Use:   "register <case_id> <evidence_id> <file>",
	Short: "Hash a file and record it on the ledger",
	Long: `Register computes the SHA-256 hash of a file and submits it to the
evidence contract bound to (case_id, evidence_id), then waits for the
transaction to be mined.

Exit codes: 0 recorded, 2 evidence id already registered, 1 any other failure.
A confirmation that outlives --timeout exits 1 and prints the transaction
hash; resume the wait with "custodia status <tx>".`,
	Args: cobra.ExactArgs(3),
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().DurationVar(&registerTimeout, "timeout", 2*time.Minute, "How long to wait for the transaction to be mined")
}

func runRegister(cmd *cobra.Command, args []string) error {
	caseID, evidenceID, path := args[0], args[1], args[2]
	logger := newLogger()

	ctx := context.Background()
	client, err := dialLedger(ctx, logger, true)
	if err != nil {
		return err
	}
	defer client.Close()

	registrar := custody.NewRegistrar(client, registerTimeout, logger)
	result, err := registrar.Register(ctx, caseID, evidenceID, path)
	if err != nil {
		var pending *ledger.PendingError
		if errors.As(err, &pending) {
			fmt.Fprintf(os.Stderr, "Transaction %s broadcast but not confirmed within %s.\n", pending.Tx.Hex(), registerTimeout)
			fmt.Fprintf(os.Stderr, "Resume with: custodia status %s\n", pending.Tx.Hex())
		}
		return &exitError{code: exitFailure, msg: err.Error()}
	}

	if outputFormat == "json" {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		printRegisterText(result)
	}

	if result.Outcome == custody.OutcomeDuplicate {
		return &exitError{code: exitDuplicate}
	}
	return nil
}

func printRegisterText(r *custody.IngestionResult) {
	switch r.Outcome {
	case custody.OutcomeRecorded:
		fmt.Printf("Recorded %s / %s\n", r.CaseID, r.EvidenceID)
		fmt.Printf("  hash:        %s\n", r.ContentHash)
		fmt.Printf("  transaction: %s\n", r.TransactionID)
		fmt.Printf("  block:       %d\n", r.BlockNumber)
		fmt.Printf("  gas used:    %d\n", r.GasUsed)
		if !r.BlockTime.IsZero() {
			fmt.Printf("  mined at:    %s\n", r.BlockTime.Format(time.RFC3339))
		}
	case custody.OutcomeDuplicate:
		fmt.Printf("Evidence %s already has a ledger record; nothing was written.\n", r.EvidenceID)
		fmt.Printf("  computed hash: %s\n", r.ContentHash)
	}
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <evidence_id> <file>",
	Short: "Check a file against its ledger record",
	Long: `Verify recomputes the file's SHA-256 hash and compares it with the hash
stored on the ledger for evidence_id. Read-only: no transaction, no signing key.

Exit codes: 0 authentic, 1 tampered, missing record, or any failure.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	evidenceID, path := args[0], args[1]
	logger := newLogger()

	ctx := context.Background()
	client, err := dialLedger(ctx, logger, false)
	if err != nil {
		return err
	}
	defer client.Close()

	verifier := custody.NewVerifier(client, logger)
	result, err := verifier.Verify(ctx, evidenceID, path)
	if err != nil {
		return &exitError{code: exitFailure, msg: err.Error()}
	}

	if outputFormat == "json" {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		printVerifyText(result)
	}

	if result.Verdict != custody.VerdictAuthentic {
		return &exitError{code: exitFailure}
	}
	return nil
}

func printVerifyText(r *custody.VerificationResult) {
	switch r.Verdict {
	case custody.VerdictAuthentic:
		fmt.Printf("AUTHENTIC: %s matches its ledger record.\n", r.EvidenceID)
		fmt.Printf("  hash: %s\n", r.ComputedHash)
	case custody.VerdictTampered:
		fmt.Printf("TAMPERED: %s does not match its ledger record.\n", r.EvidenceID)
		fmt.Printf("  computed: %s\n", r.ComputedHash)
		fmt.Printf("  stored:   %s\n", r.StoredHash)
	case custody.VerdictNotFound:
		fmt.Printf("NOT FOUND: the ledger holds no record for %s.\n", r.EvidenceID)
	}
}

// ── list ─────────────────────────────────────────────────────────────────────

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the full audit listing replayed from ledger events",
	Long: `List replays every evidence record event from the contract's history and
prints them in ledger order as a JSON array. An empty ledger prints [].`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	ctx := context.Background()
	client, err := dialLedger(ctx, logger, false)
	if err != nil {
		return err
	}
	defer client.Close()

	reader := custody.NewReader(client, logger)
	records, err := reader.ListAll(ctx)
	if err != nil {
		return &exitError{code: exitFailure, msg: err.Error()}
	}

	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// ── hash ─────────────────────────────────────────────────────────────────────

var hashCmd = &cobra.Command{
	Use:   "hash <file>",
	Short: "Print the SHA-256 content hash of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		digest, err := hasher.SumFile(args[0])
		if err != nil {
			return &exitError{code: exitFailure, msg: err.Error()}
		}
		fmt.Println(digest)
		return nil
	},
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status <tx_hash>",
	Short: "Check a previously broadcast registration transaction",
	Long: `Status re-queries a transaction whose confirmation wait timed out.
Mined transactions print their receipt; pending ones report pending.

Exit codes: 0 mined, 1 pending, reverted, or unknown.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args[0]) != 66 || !strings.HasPrefix(args[0], "0x") {
		return fmt.Errorf("%q is not a transaction hash", args[0])
	}
	tx := common.HexToHash(args[0])
	logger := newLogger()

	ctx := context.Background()
	client, err := dialLedger(ctx, logger, false)
	if err != nil {
		return err
	}
	defer client.Close()

	state, receipt, err := client.TransactionStatus(ctx, tx)
	if err != nil {
		return &exitError{code: exitFailure, msg: err.Error()}
	}

	if outputFormat == "json" {
		out := map[string]any{"transaction": tx.Hex(), "state": state}
		if receipt != nil {
			out["block_number"] = receipt.BlockNumber
			out["gas_used"] = receipt.GasUsed
			if !receipt.BlockTime.IsZero() {
				out["block_time"] = receipt.BlockTime.Format(time.RFC3339)
			}
		}
		if err := printJSON(out); err != nil {
			return err
		}
	} else {
		switch state {
		case ledger.TxMined:
			fmt.Printf("Mined in block %d (gas used %d)\n", receipt.BlockNumber, receipt.GasUsed)
		case ledger.TxPending:
			fmt.Println("Still pending; try again later.")
		case ledger.TxUnknown:
			fmt.Println("The node does not know this transaction.")
		}
	}

	if state != ledger.TxMined {
		return &exitError{code: exitFailure}
	}
	return nil
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the custodia version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("custodia", version)
	},
}
