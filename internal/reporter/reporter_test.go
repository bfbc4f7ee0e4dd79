package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"invoice-reconciliation-service/internal/engine"
	"invoice-reconciliation-service/internal/models"
)

func sampleReport() *Report {
	poID := uint(10)
	return &Report{
		Invoice: &models.VendorInvoice{
			ID:         1,
			VendorID:   7,
			Status:     models.StatusUnderReview,
			StatusNote: "auto-queued for review",
			LineItems: []*models.InvoiceLineItem{
				{ID: 1, Description: "Dumpster rental 30yd"},
				{ID: 2, Description: "Compactor haul fee"},
			},
		},
		Result: &engine.ReconciliationResult{
			InvoiceID:       1,
			RunID:           "run-1-1700000000-1",
			FinalConfidence: 88.5,
			NewStatus:       models.StatusUnderReview,
			AutoAdvanced:    true,
			LineItemOutcomes: []models.LineOutcome{
				{InvoiceLineItemID: 1, Kind: models.OutcomeMatched, POLineItemID: &poID, Score: 0.92},
				{InvoiceLineItemID: 2, Kind: models.OutcomeUnmatched, Score: 0.4},
			},
			MatchingRecordIDs: []uint{1, 2},
		},
	}
}

func TestOutputFormatIsValid(t *testing.T) {
	for _, format := range []OutputFormat{FormatConsole, FormatJSON, FormatCSV} {
		if !format.IsValid() {
			t.Errorf("Expected %s to be valid", format)
		}
	}
	if OutputFormat("xml").IsValid() {
		t.Error("Expected unknown format to be invalid")
	}
}

func TestWriteConsole(t *testing.T) {
	var buf bytes.Buffer
	if err := NewReporter().Write(&buf, sampleReport(), FormatConsole); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"run-1-1700000000-1",
		"under_review",
		"auto-queued for review",
		"88.5",
		"Dumpster rental 30yd",
		"matched",
		"unmatched",
		"1 line item(s) require review",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Console output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewReporter().Write(&buf, sampleReport(), FormatJSON); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	result, ok := decoded["result"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing result object")
	}
	if result["run_id"] != "run-1-1700000000-1" {
		t.Errorf("run_id = %v, want run-1-1700000000-1", result["run_id"])
	}

	outcomes, ok := result["line_item_outcomes"].([]interface{})
	if !ok || len(outcomes) != 2 {
		t.Fatalf("Expected 2 outcomes, got %v", result["line_item_outcomes"])
	}
	first, _ := outcomes[0].(map[string]interface{})
	if first["kind"] != "matched" {
		t.Errorf("Outcome kind should serialize as a string tag, got %v", first["kind"])
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := NewReporter().Write(&buf, sampleReport(), FormatCSV); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Output is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header plus 2 rows, got %d", len(rows))
	}

	if rows[0][0] != "invoice_line_item_id" {
		t.Errorf("Unexpected header: %v", rows[0])
	}
	if rows[1][2] != "matched" || rows[1][4] != "10" {
		t.Errorf("Unexpected matched row: %v", rows[1])
	}
	if rows[2][2] != "unmatched" || rows[2][4] != "" {
		t.Errorf("Unexpected unmatched row: %v", rows[2])
	}
}

func TestWriteUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := NewReporter().Write(&buf, sampleReport(), OutputFormat("xml")); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 30); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("a very long description that overflows", 10); got != "a very ..." {
		t.Errorf("truncate() = %q, want %q", got, "a very ...")
	}
}
