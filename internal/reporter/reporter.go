// Package reporter renders reconciliation results for operators.
//
// Supported output formats:
//   - Console: human-readable tabular output for terminal display
//   - JSON: structured output for programmatic consumption
//   - CSV: per-line-item rows for spreadsheet review
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"invoice-reconciliation-service/internal/engine"
	"invoice-reconciliation-service/internal/models"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// Report bundles a run result with the invoice it reconciled
type Report struct {
	Invoice *models.VendorInvoice        `json:"invoice"`
	Result  *engine.ReconciliationResult `json:"result"`
}

// Reporter writes reconciliation reports
type Reporter struct{}

// NewReporter creates a Reporter
func NewReporter() *Reporter {
	return &Reporter{}
}

// Write renders the report in the requested format
func (r *Reporter) Write(w io.Writer, report *Report, format OutputFormat) error {
	switch format {
	case FormatConsole:
		return r.writeConsole(w, report)
	case FormatJSON:
		return r.writeJSON(w, report)
	case FormatCSV:
		return r.writeCSV(w, report)
	default:
		return fmt.Errorf("unsupported output format '%s'", format)
	}
}

func (r *Reporter) writeConsole(w io.Writer, report *Report) error {
	result := report.Result
	invoice := report.Invoice

	fmt.Fprintf(w, "Reconciliation run %s\n", result.RunID)
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("=", 60))
	fmt.Fprintf(w, "Invoice:          %d (vendor %d)\n", result.InvoiceID, invoice.VendorID)
	fmt.Fprintf(w, "Status:           %s", result.NewStatus)
	if result.AutoAdvanced {
		fmt.Fprintf(w, " (%s)", invoice.StatusNote)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Final confidence: %.1f\n", result.FinalConfidence)
	fmt.Fprintf(w, "Ledger records:   %d appended\n\n", len(result.MatchingRecordIDs))

	fmt.Fprintf(w, "%-6s %-30s %-12s %-8s %-10s\n", "LINE", "DESCRIPTION", "OUTCOME", "SCORE", "PO LINE")
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 70))

	descriptions := lineDescriptions(invoice)
	reviewCount := 0
	for _, outcome := range result.LineItemOutcomes {
		poRef := "-"
		if outcome.POLineItemID != nil {
			poRef = strconv.FormatUint(uint64(*outcome.POLineItemID), 10)
		}
		if outcome.MatchStatus().RequiresReview() {
			reviewCount++
		}
		fmt.Fprintf(w, "%-6d %-30s %-12s %-8.3f %-10s\n",
			outcome.InvoiceLineItemID,
			truncate(descriptions[outcome.InvoiceLineItemID], 30),
			outcome.Kind.String(),
			outcome.Score,
			poRef)
	}

	if reviewCount > 0 {
		fmt.Fprintf(w, "\n%d line item(s) require review\n", reviewCount)
	}

	return nil
}

func (r *Reporter) writeJSON(w io.Writer, report *Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func (r *Reporter) writeCSV(w io.Writer, report *Report) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{
		"invoice_line_item_id", "description", "outcome", "score", "po_line_item_id",
	}); err != nil {
		return err
	}

	descriptions := lineDescriptions(report.Invoice)
	for _, outcome := range report.Result.LineItemOutcomes {
		poRef := ""
		if outcome.POLineItemID != nil {
			poRef = strconv.FormatUint(uint64(*outcome.POLineItemID), 10)
		}
		if err := writer.Write([]string{
			strconv.FormatUint(uint64(outcome.InvoiceLineItemID), 10),
			descriptions[outcome.InvoiceLineItemID],
			outcome.Kind.String(),
			strconv.FormatFloat(outcome.Score, 'f', 3, 64),
			poRef,
		}); err != nil {
			return err
		}
	}

	return writer.Error()
}

func lineDescriptions(invoice *models.VendorInvoice) map[uint]string {
	m := make(map[uint]string, len(invoice.LineItems))
	for _, li := range invoice.LineItems {
		m[li.ID] = li.Description
	}
	return m
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
