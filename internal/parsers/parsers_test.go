package parsers

import (
	"strings"
	"testing"

	"invoice-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

const sampleInvoiceJSON = `{
	"vendor_id": 7,
	"client_id": 3,
	"invoice_date": "2026-08-01",
	"due_date": "09/01/2026",
	"subtotal": "$700.00",
	"tax": "49.00",
	"fees": "25.00",
	"total": "774.00",
	"ocr": {
		"confidence": 92,
		"line_items": [
			{"description": "Dumpster rental 30yd", "quantity": "1", "unit_price": "450.00", "amount": "450.00"},
			{"description": "Compactor haul fee", "quantity": "2", "unit_price": "125.00", "amount": "250.00"}
		]
	}
}`

func TestParseInvoiceFixture(t *testing.T) {
	invoice, stats, err := ParseInvoiceFixture([]byte(sampleInvoiceJSON))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if invoice.VendorID != 7 {
		t.Errorf("VendorID = %d, want 7", invoice.VendorID)
	}
	if invoice.ClientID == nil || *invoice.ClientID != 3 {
		t.Error("Expected client_id 3")
	}
	if invoice.Status != models.StatusPending {
		t.Errorf("Status = %s, want pending", invoice.Status)
	}
	if invoice.SubtotalMinor != 70000 || invoice.TotalMinor != 77400 {
		t.Errorf("Unexpected money fields: subtotal=%d total=%d", invoice.SubtotalMinor, invoice.TotalMinor)
	}
	if invoice.InvoiceDate.IsZero() || invoice.DueDate.IsZero() {
		t.Error("Expected both date formats to parse")
	}
	if invoice.OCR.Confidence != 92 {
		t.Errorf("OCR confidence = %f, want 92", invoice.OCR.Confidence)
	}

	if len(invoice.LineItems) != 2 {
		t.Fatalf("Expected 2 line items, got %d", len(invoice.LineItems))
	}
	if stats.RowsParsed != 2 {
		t.Errorf("RowsParsed = %d, want 2", stats.RowsParsed)
	}

	first := invoice.LineItems[0]
	if first.ID != 1 || first.Description != "Dumpster rental 30yd" {
		t.Errorf("Unexpected first line item: %+v", first)
	}
	if first.UnitPriceMinor != 45000 || first.AmountMinor != 45000 {
		t.Errorf("Unexpected first line amounts: price=%d amount=%d", first.UnitPriceMinor, first.AmountMinor)
	}
	if !first.Quantity.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Quantity = %s, want 1", first.Quantity)
	}
	if first.MatchStatus != models.MatchStatusUnmatched {
		t.Errorf("MatchStatus = %s, want unmatched", first.MatchStatus)
	}
}

func TestParseInvoiceFixtureLeavesGarbageFieldsZero(t *testing.T) {
	// Fields the strict parse cannot read stay zero; the normalizer's
	// lenient pass deals with them at reconciliation time
	data := `{
		"vendor_id": 7,
		"ocr": {
			"confidence": 60,
			"line_items": [
				{"description": "Mystery charge", "quantity": "l", "unit_price": "45O.00", "amount": ""}
			]
		}
	}`

	invoice, stats, err := ParseInvoiceFixture([]byte(data))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if stats.RowsParsed != 1 {
		t.Errorf("RowsParsed = %d, want 1", stats.RowsParsed)
	}

	li := invoice.LineItems[0]
	if li.UnitPriceMinor != 0 || li.AmountMinor != 0 || !li.Quantity.IsZero() {
		t.Errorf("Expected unreadable fields left zero, got %+v", li)
	}
}

func TestParseInvoiceFixtureErrors(t *testing.T) {
	if _, _, err := ParseInvoiceFixture([]byte("{not json")); err == nil {
		t.Error("Expected error for malformed JSON")
	}
	if _, _, err := ParseInvoiceFixture([]byte(`{"total": "100.00"}`)); err == nil {
		t.Error("Expected error for missing vendor_id")
	}
}

func TestParseInvoiceFixtureDiagnosesBadHeaderFields(t *testing.T) {
	data := `{
		"vendor_id": 7,
		"invoice_date": "sometime in August",
		"total": "lots",
		"ocr": {"confidence": 80}
	}`

	_, stats, err := ParseInvoiceFixture([]byte(data))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(stats.Diagnostics) != 2 {
		t.Errorf("Expected diagnostics for date and total, got %v", stats.Diagnostics)
	}
}

func TestParsePOLineItemsCSV(t *testing.T) {
	csv := strings.Join([]string{
		"id,description,qty,vendor_unit_price,client_price,type,notes",
		"10,Dumpster rental 30yd,1,450.00,520.00,rolloff,monthly",
		"11,Compactor haul fee,2,125.00,150.00,compactor,",
	}, "\n")

	items, stats, err := ParsePOLineItemsCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if stats.RowsParsed != 2 || stats.RowsSkipped != 0 {
		t.Errorf("Stats = %+v, want 2 parsed 0 skipped", stats)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	first := items[0]
	if first.ID != 10 || first.Description != "Dumpster rental 30yd" {
		t.Errorf("Unexpected first item: %+v", first)
	}
	if first.VendorUnitPriceMinor != 45000 || first.ClientUnitPriceMinor != 52000 {
		t.Errorf("Unexpected prices: vendor=%d client=%d", first.VendorUnitPriceMinor, first.ClientUnitPriceMinor)
	}
	if first.ServiceType != "rolloff" || first.Notes != "monthly" {
		t.Errorf("Aliased columns not mapped: %+v", first)
	}
}

func TestParsePOLineItemsCSVFailsSoft(t *testing.T) {
	csv := strings.Join([]string{
		"description,quantity,vendor_unit_price",
		"Dumpster rental 30yd,1,450.00",
		",1,100.00",
		"Compactor haul,abc,125.00",
		"Portable toilet,4,not-a-price",
		"Weekly pickup,4,25.00",
	}, "\n")

	items, stats, err := ParsePOLineItemsCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Malformed rows must not be fatal: %v", err)
	}

	if len(items) != 2 {
		t.Errorf("Expected 2 good rows, got %d", len(items))
	}
	if stats.RowsSkipped != 3 {
		t.Errorf("RowsSkipped = %d, want 3", stats.RowsSkipped)
	}
	if len(stats.Diagnostics) != 3 {
		t.Errorf("Expected one diagnostic per skipped row, got %v", stats.Diagnostics)
	}
}

func TestParsePOLineItemsCSVAssignsFallbackIDs(t *testing.T) {
	csv := strings.Join([]string{
		"description,quantity,vendor_unit_price",
		"Dumpster rental 30yd,1,450.00",
		"Compactor haul,2,125.00",
	}, "\n")

	items, _, err := ParsePOLineItemsCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if items[0].ID != 1 || items[1].ID != 2 {
		t.Errorf("Expected sequential fallback IDs, got %d and %d", items[0].ID, items[1].ID)
	}
}

func TestParsePOLineItemsCSVMissingRequiredColumn(t *testing.T) {
	csv := "description,quantity\nDumpster rental,1"

	_, _, err := ParsePOLineItemsCSV(strings.NewReader(csv))
	if err == nil {
		t.Fatal("Expected error for missing vendor_unit_price column")
	}
	if !strings.Contains(err.Error(), "vendor_unit_price") {
		t.Errorf("Error should name the missing column: %v", err)
	}
}
