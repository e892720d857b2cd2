package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"trade-reconciliation-engine/cmd/reconengine/config"
	"trade-reconciliation-engine/internal/engine"
	"trade-reconciliation-engine/internal/ledger"
	"trade-reconciliation-engine/internal/loader"
	"trade-reconciliation-engine/internal/notify"
	"trade-reconciliation-engine/internal/reporter"
	"trade-reconciliation-engine/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	tradesFile        string
	confirmationFile  string
	counterpartiesFile string
	outputFormat      string
	outputFile        string
	logFormat         string
	matchThreshold    int
	confirmThreshold  int
	amountTolerance   float64
	showSummary       bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile one incoming confirmation against the trade ledger",
	Long: `Reconcile loads the client's trades, the counterparty alias book, and
the extracted content of one incoming confirmation, then runs the
reconciliation pipeline: counterparty identification, candidate scoring,
match selection, discrepancy detection, and status commit.

This command requires:
- A trade file (JSON array of trade records)
- A confirmation file (JSON extraction result)
- A counterparty file (JSON alias book)

Examples:
  # Basic reconciliation
  reconengine reconcile --trades trades.json --confirmation extraction.json \
    --counterparties book.json

  # Custom thresholds and JSON output
  reconengine reconcile --trades trades.json --confirmation extraction.json \
    --counterparties book.json --match-threshold 55 --confirm-threshold 75 \
    --output-format json --output-file report.json

  # Include a ledger status summary after the batch
  reconengine reconcile --trades trades.json --confirmation extraction.json \
    --counterparties book.json --summary`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringVarP(&tradesFile, "trades", "t", "", "path to trade ledger JSON file (required)")
	reconcileCmd.Flags().StringVarP(&confirmationFile, "confirmation", "c", "", "path to extraction result JSON file (required)")
	reconcileCmd.Flags().StringVarP(&counterpartiesFile, "counterparties", "p", "", "path to counterparty alias book JSON file (required)")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().StringVar(&logFormat, "log-format", "text", "log format: text, json")

	// Matching configuration flags
	reconcileCmd.Flags().IntVar(&matchThreshold, "match-threshold", 0, "minimum score to match at all (default from config)")
	reconcileCmd.Flags().IntVar(&confirmThreshold, "confirm-threshold", 0, "minimum score to auto-confirm (default from config)")
	reconcileCmd.Flags().Float64VarP(&amountTolerance, "amount-tolerance", "a", 0.0, "close-amount tolerance percentage")

	reconcileCmd.Flags().BoolVar(&showSummary, "summary", false, "print a ledger status summary after the batch")

	reconcileCmd.MarkFlagRequired("trades")
	reconcileCmd.MarkFlagRequired("confirmation")
	reconcileCmd.MarkFlagRequired("counterparties")

	// Bind flags to viper
	viper.BindPFlag("trades", reconcileCmd.Flags().Lookup("trades"))
	viper.BindPFlag("confirmation", reconcileCmd.Flags().Lookup("confirmation"))
	viper.BindPFlag("counterparties", reconcileCmd.Flags().Lookup("counterparties"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("log-format", reconcileCmd.Flags().Lookup("log-format"))
	viper.BindPFlag("match-threshold", reconcileCmd.Flags().Lookup("match-threshold"))
	viper.BindPFlag("confirm-threshold", reconcileCmd.Flags().Lookup("confirm-threshold"))
	viper.BindPFlag("amount-tolerance", reconcileCmd.Flags().Lookup("amount-tolerance"))
	viper.BindPFlag("summary", reconcileCmd.Flags().Lookup("summary"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	tradesFile = viper.GetString("trades")
	confirmationFile = viper.GetString("confirmation")
	counterpartiesFile = viper.GetString("counterparties")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	logFormat = viper.GetString("log-format")
	matchThreshold = viper.GetInt("match-threshold")
	confirmThreshold = viper.GetInt("confirm-threshold")
	amountTolerance = viper.GetFloat64("amount-tolerance")
	showSummary = viper.GetBool("summary")

	if tradesFile == "" {
		return fmt.Errorf("trades file is required")
	}
	if confirmationFile == "" {
		return fmt.Errorf("confirmation file is required")
	}
	if counterpartiesFile == "" {
		return fmt.Errorf("counterparties file is required")
	}

	for _, input := range []struct{ path, label string }{
		{tradesFile, "trade file"},
		{confirmationFile, "confirmation file"},
		{counterpartiesFile, "counterparty file"},
	} {
		if err := validateFileExists(input.path, input.label); err != nil {
			return err
		}
	}

	if _, err := reporter.ParseFormat(outputFormat); err != nil {
		return err
	}

	if amountTolerance < 0.0 || amountTolerance > 100.0 {
		return fmt.Errorf("amount tolerance must be between 0.0 and 100.0")
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("output directory does not exist: %s", dir)
		}
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	log, err := logger.New(config.CreateLoggerConfig(viper.GetBool("verbose"), logFormat))
	if err != nil {
		return err
	}
	logger.SetGlobal(log)

	exitCode := handler.HandleError(executeReconcile(cmd.Context(), log))
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	return nil
}

func executeReconcile(ctx context.Context, log logger.Logger) error {
	trades, err := loader.LoadTrades(tradesFile)
	if err != nil {
		return err
	}
	extraction, err := loader.LoadExtraction(confirmationFile)
	if err != nil {
		return err
	}
	book, err := loader.LoadAliasBook(counterpartiesFile)
	if err != nil {
		return err
	}

	tradeLedger := ledger.NewMemoryLedger()
	for _, trade := range trades {
		if err := tradeLedger.AddTrade(trade); err != nil {
			return err
		}
	}

	matcherConfig := config.CreateMatcherConfig(matchThreshold, confirmThreshold, amountTolerance)
	eng, err := engine.New(matcherConfig, book, tradeLedger, notify.NewLogScheduler(log), log)
	if err != nil {
		return err
	}

	result, err := eng.ProcessConfirmation(ctx, extraction)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(outputFile)
	if err != nil {
		return err
	}
	defer closeOut()

	format, _ := reporter.ParseFormat(outputFormat)
	rep := reporter.New(out)
	if err := rep.WriteBatch(result, format); err != nil {
		return err
	}
	if showSummary {
		if err := rep.WriteLedgerSummary(tradeLedger.Trades(), format); err != nil {
			return err
		}
	}
	return nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func validateFileExists(path, label string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", label, path)
	}
	if err != nil {
		return fmt.Errorf("cannot access %s %s: %w", label, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", label, path)
	}
	return nil
}
