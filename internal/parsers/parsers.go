// Package parsers ingests reconciliation fixtures for file-driven runs:
// OCR-export invoice documents (JSON) and purchase order line items (CSV).
//
// Parsing fails soft row by row: a malformed PO row or an unparseable OCR
// field is recorded in ParseStats and skipped (or zeroed), never fatal to
// the file. Column headers are matched case-insensitively through an alias
// table because exports from different systems rarely agree on names.
package parsers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"invoice-reconciliation-service/internal/models"
)

// ParseStats summarizes one file's ingestion
type ParseStats struct {
	RowsParsed  int      `json:"rows_parsed"`
	RowsSkipped int      `json:"rows_skipped"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

func (s *ParseStats) addDiagnostic(format string, args ...interface{}) {
	s.Diagnostics = append(s.Diagnostics, fmt.Sprintf(format, args...))
}

// invoiceFixture is the on-disk shape of an OCR-export invoice document
type invoiceFixture struct {
	ID          uint              `json:"id"`
	VendorID    uint              `json:"vendor_id"`
	ClientID    *uint             `json:"client_id,omitempty"`
	InvoiceDate string            `json:"invoice_date"`
	DueDate     string            `json:"due_date"`
	Subtotal    string            `json:"subtotal"`
	Tax         string            `json:"tax"`
	Fees        string            `json:"fees"`
	Total       string            `json:"total"`
	OCR         models.OCRPayload `json:"ocr"`
}

// dateFormats accepted on invoice fixture date fields
var dateFormats = []string{
	"2006-01-02",
	"01/02/2006",
	time.RFC3339,
}

// LoadInvoiceFixture reads an OCR-export invoice JSON file and builds a
// VendorInvoice in the pending state. Each OCR line item produces one
// invoice line item; fields the strict parse cannot interpret stay zero and
// are left for the normalizer's lenient pass at reconciliation time.
func LoadInvoiceFixture(path string) (*models.VendorInvoice, *ParseStats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading invoice fixture %s: %w", path, err)
	}

	return ParseInvoiceFixture(data)
}

// ParseInvoiceFixture parses an OCR-export invoice document
func ParseInvoiceFixture(data []byte) (*models.VendorInvoice, *ParseStats, error) {
	var fixture invoiceFixture
	if err := json.Unmarshal(data, &fixture); err != nil {
		return nil, nil, fmt.Errorf("invalid invoice fixture: %w", err)
	}

	if fixture.VendorID == 0 {
		return nil, nil, fmt.Errorf("invoice fixture is missing vendor_id")
	}

	stats := &ParseStats{}
	invoice := &models.VendorInvoice{
		ID:       fixture.ID,
		VendorID: fixture.VendorID,
		ClientID: fixture.ClientID,
		Status:   models.StatusPending,
		OCR:      fixture.OCR,
	}

	invoice.InvoiceDate = parseFixtureDate(fixture.InvoiceDate, "invoice_date", stats)
	invoice.DueDate = parseFixtureDate(fixture.DueDate, "due_date", stats)
	invoice.SubtotalMinor = parseFixtureMoney(fixture.Subtotal, "subtotal", stats)
	invoice.TaxMinor = parseFixtureMoney(fixture.Tax, "tax", stats)
	invoice.FeesMinor = parseFixtureMoney(fixture.Fees, "fees", stats)
	invoice.TotalMinor = parseFixtureMoney(fixture.Total, "total", stats)

	for i, raw := range fixture.OCR.LineItems {
		li := &models.InvoiceLineItem{
			ID:          uint(i + 1),
			Description: strings.TrimSpace(raw.Description),
			MatchStatus: models.MatchStatusUnmatched,
		}

		if qty, err := models.ParseQuantity(raw.Quantity); err == nil {
			li.Quantity = qty
		}
		if price, err := models.ParseMoneyMinor(raw.UnitPrice); err == nil {
			li.UnitPriceMinor = price
		}
		if amount, err := models.ParseMoneyMinor(raw.Amount); err == nil {
			li.AmountMinor = amount
		}

		invoice.LineItems = append(invoice.LineItems, li)
		stats.RowsParsed++
	}

	return invoice, stats, nil
}

func parseFixtureDate(value, field string, stats *ParseStats) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}

	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t
		}
	}

	stats.addDiagnostic("unrecognized %s '%s'", field, value)
	return time.Time{}
}

func parseFixtureMoney(value, field string, stats *ParseStats) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	minor, err := models.ParseMoneyMinor(value)
	if err != nil {
		stats.addDiagnostic("unparseable %s '%s'", field, value)
		return 0
	}
	return minor
}

// poColumnAliases maps common export header spellings onto canonical names
var poColumnAliases = map[string]string{
	"id":                "id",
	"line_item_id":      "id",
	"po_id":             "po_id",
	"purchase_order_id": "po_id",
	"description":       "description",
	"desc":              "description",
	"item":              "description",
	"service":           "description",
	"quantity":          "quantity",
	"qty":               "quantity",
	"vendor_unit_price": "vendor_unit_price",
	"vendor_price":      "vendor_unit_price",
	"unit_price":        "vendor_unit_price",
	"cost":              "vendor_unit_price",
	"client_unit_price": "client_unit_price",
	"client_price":      "client_unit_price",
	"service_type":      "service_type",
	"type":              "service_type",
	"category":          "service_type",
	"notes":             "notes",
	"note":              "notes",
	"comment":           "notes",
}

// ParsePOLineItemsCSV reads purchase order line items from CSV. Required
// columns: description, quantity, vendor_unit_price. Rows missing them are
// skipped with a diagnostic.
func ParsePOLineItemsCSV(r io.Reader) ([]*models.POLineItem, *ParseStats, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("reading CSV header: %w", err)
	}

	columns := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if canonical, ok := poColumnAliases[key]; ok {
			columns[canonical] = i
		}
	}

	for _, required := range []string{"description", "quantity", "vendor_unit_price"} {
		if _, ok := columns[required]; !ok {
			return nil, nil, fmt.Errorf("missing required column '%s'", required)
		}
	}

	stats := &ParseStats{}
	var items []*models.POLineItem
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			stats.RowsSkipped++
			stats.addDiagnostic("line %d: %v", line, err)
			continue
		}

		item, rowErr := poRowFromRecord(record, columns, uint(len(items)+1))
		if rowErr != nil {
			stats.RowsSkipped++
			stats.addDiagnostic("line %d: %v", line, rowErr)
			continue
		}

		items = append(items, item)
		stats.RowsParsed++
	}

	return items, stats, nil
}

// LoadPOLineItemsFile opens and parses a PO line item CSV file
func LoadPOLineItemsFile(path string) ([]*models.POLineItem, *ParseStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening PO file %s: %w", path, err)
	}
	defer f.Close()

	return ParsePOLineItemsCSV(f)
}

func poRowFromRecord(record []string, columns map[string]int, fallbackID uint) (*models.POLineItem, error) {
	field := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	item := &models.POLineItem{
		ID:          fallbackID,
		Description: field("description"),
		ServiceType: field("service_type"),
		Notes:       field("notes"),
	}

	if item.Description == "" {
		return nil, fmt.Errorf("empty description")
	}

	if raw := field("id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid id '%s'", raw)
		}
		item.ID = uint(id)
	}

	if raw := field("po_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid po_id '%s'", raw)
		}
		item.PurchaseOrderID = uint(id)
	}

	qty, err := models.ParseQuantity(field("quantity"))
	if err != nil {
		return nil, fmt.Errorf("invalid quantity: %w", err)
	}
	item.Quantity = qty

	vendorPrice, err := models.ParseMoneyMinor(field("vendor_unit_price"))
	if err != nil {
		return nil, fmt.Errorf("invalid vendor unit price: %w", err)
	}
	item.VendorUnitPriceMinor = vendorPrice

	if raw := field("client_unit_price"); raw != "" {
		clientPrice, err := models.ParseMoneyMinor(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid client unit price: %w", err)
		}
		item.ClientUnitPriceMinor = clientPrice
	}

	return item, nil
}
