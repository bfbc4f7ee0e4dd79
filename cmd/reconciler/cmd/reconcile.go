package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"invoice-reconciliation-service/cmd/reconciler/config"
	"invoice-reconciliation-service/internal/engine"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/parsers"
	"invoice-reconciliation-service/internal/reporter"
	"invoice-reconciliation-service/internal/store"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the reconcile command
var (
	invoiceFile      string
	poFile           string
	dbPath           string
	outputFormat     string
	outputFile       string
	scoreFloor       float64
	partialThreshold float64
	matchThreshold   float64
	amountTolerance  int64
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a vendor invoice against purchase order line items",
	Long: `Reconcile loads an OCR-export invoice document and the purchase order
line items it should be billed against, runs one reconciliation pass, and
reports the match outcome per line item.

This command requires:
- An invoice fixture file (OCR-export JSON)
- A purchase order line item file (CSV)

Examples:
  # One-off reconciliation against an in-memory database
  reconciler reconcile --invoice-file invoice.json --po-file po_lines.csv

  # Persist invoices, line items and the matching ledger across runs
  reconciler reconcile --invoice-file invoice.json --po-file po_lines.csv \
    --db reconciler.db

  # JSON output to a file, with stricter acceptance thresholds
  reconciler reconcile --invoice-file invoice.json --po-file po_lines.csv \
    --output-format json --output-file result.json \
    --match-threshold 0.95 --score-floor 0.5`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringVarP(&invoiceFile, "invoice-file", "i", "", "path to OCR-export invoice JSON file (required)")
	reconcileCmd.Flags().StringVarP(&poFile, "po-file", "p", "", "path to purchase order line item CSV file (required)")

	// Storage flags
	reconcileCmd.Flags().StringVar(&dbPath, "db", ":memory:", "sqlite database path (default: in-memory)")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")

	// Matching configuration flags
	reconcileCmd.Flags().Float64Var(&scoreFloor, "score-floor", 0.35, "absolute minimum candidate score")
	reconcileCmd.Flags().Float64Var(&partialThreshold, "partial-threshold", 0.50, "minimum score for a partial match")
	reconcileCmd.Flags().Float64Var(&matchThreshold, "match-threshold", 0.85, "minimum score for a full match")
	reconcileCmd.Flags().Int64Var(&amountTolerance, "amount-tolerance", 1, "minor units treated as an exact amount match")

	reconcileCmd.MarkFlagRequired("invoice-file")
	reconcileCmd.MarkFlagRequired("po-file")

	// Bind flags to viper
	viper.BindPFlag("invoice-file", reconcileCmd.Flags().Lookup("invoice-file"))
	viper.BindPFlag("po-file", reconcileCmd.Flags().Lookup("po-file"))
	viper.BindPFlag("db", reconcileCmd.Flags().Lookup("db"))
	viper.BindPFlag("output-format", reconcileCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", reconcileCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("score-floor", reconcileCmd.Flags().Lookup("score-floor"))
	viper.BindPFlag("partial-threshold", reconcileCmd.Flags().Lookup("partial-threshold"))
	viper.BindPFlag("match-threshold", reconcileCmd.Flags().Lookup("match-threshold"))
	viper.BindPFlag("amount-tolerance", reconcileCmd.Flags().Lookup("amount-tolerance"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Viper values win so a config file can override defaults
	invoiceFile = viper.GetString("invoice-file")
	poFile = viper.GetString("po-file")
	dbPath = viper.GetString("db")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	scoreFloor = viper.GetFloat64("score-floor")
	partialThreshold = viper.GetFloat64("partial-threshold")
	matchThreshold = viper.GetFloat64("match-threshold")
	amountTolerance = viper.GetInt64("amount-tolerance")

	if invoiceFile == "" {
		return fmt.Errorf("invoice-file is required")
	}
	if poFile == "" {
		return fmt.Errorf("po-file is required")
	}

	for name, path := range map[string]string{
		"invoice file": invoiceFile,
		"PO file":      poFile,
	} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("%s not accessible: %s", name, path)
		}
	}

	if !reporter.OutputFormat(outputFormat).IsValid() {
		return fmt.Errorf("invalid output format '%s': must be console, json, or csv", outputFormat)
	}

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	if err := executeReconcile(cmd.Context()); err != nil {
		os.Exit(handler.HandleError(err))
	}

	return nil
}

func executeReconcile(ctx context.Context) error {
	invoice, invoiceStats, err := parsers.LoadInvoiceFixture(invoiceFile)
	if err != nil {
		return err
	}
	reportParseStats("invoice", invoiceStats)

	poItems, poStats, err := parsers.LoadPOLineItemsFile(poFile)
	if err != nil {
		return err
	}
	reportParseStats("purchase order", poStats)

	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}

	clientID := uint(0)
	if invoice.ClientID != nil {
		clientID = *invoice.ClientID
	}
	po := &models.PurchaseOrder{
		VendorID:  invoice.VendorID,
		ClientID:  clientID,
		LineItems: poItems,
	}
	if err := st.CreatePurchaseOrder(ctx, po); err != nil {
		return err
	}

	// IDs assigned by the parser are positional; reset so the store owns them
	for _, li := range invoice.LineItems {
		li.ID = 0
	}
	if err := st.CreateInvoice(ctx, invoice); err != nil {
		return err
	}

	engineConfig := engine.DefaultConfig()
	engineConfig.Matching = config.BuildMatcherConfig(scoreFloor, partialThreshold, matchThreshold, amountTolerance)

	eng, err := engine.New(engineConfig, st, st, st, st)
	if err != nil {
		return err
	}

	result, err := eng.ReconcileInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}

	reconciled, err := st.GetInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}

	return writeReport(&reporter.Report{Invoice: reconciled, Result: result})
}

func reportParseStats(name string, stats *parsers.ParseStats) {
	if stats == nil || len(stats.Diagnostics) == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "%s file: %d parsed, %d skipped\n", name, stats.RowsParsed, stats.RowsSkipped)
	if verbose {
		for _, d := range stats.Diagnostics {
			fmt.Fprintf(os.Stderr, "  %s\n", d)
		}
	}
}

func writeReport(report *reporter.Report) error {
	var out io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return reporter.NewReporter().Write(out, report, reporter.OutputFormat(outputFormat))
}
