// Package models defines the domain types shared across the reconciliation
// engine: vendor invoices and their line items, purchase orders, the
// append-only matching ledger, and the tagged line outcome produced by the
// resolver.
//
// Currency amounts are held as integer minor units (cents) everywhere inside
// the engine; decimal strings appear only at the boundary, parsed through
// shopspring/decimal so no float ever touches money.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of a vendor invoice
type InvoiceStatus string

const (
	StatusPending     InvoiceStatus = "pending"
	StatusUnderReview InvoiceStatus = "under_review"
	StatusApproved    InvoiceStatus = "approved"
	StatusDisputed    InvoiceStatus = "disputed"
	StatusPaid        InvoiceStatus = "paid"
	StatusRejected    InvoiceStatus = "rejected"
)

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsValid checks if the invoice status is one of the known states
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusDisputed, StatusPaid, StatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is permitted from s.
// Paid and rejected invoices are retained for audit and never change again.
func (s InvoiceStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusRejected
}

// MatchStatus represents the reconciliation state of one invoice line item
type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "unmatched"
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusPartial   MatchStatus = "partial"
	MatchStatusDisputed  MatchStatus = "disputed"
	MatchStatusManual    MatchStatus = "manual"
)

// String returns the string representation of MatchStatus
func (m MatchStatus) String() string {
	return string(m)
}

// IsValid checks if the match status is one of the known states
func (m MatchStatus) IsValid() bool {
	switch m {
	case MatchStatusUnmatched, MatchStatusMatched, MatchStatusPartial, MatchStatusDisputed, MatchStatusManual:
		return true
	default:
		return false
	}
}

// RequiresReview reports whether the line item must be surfaced to a human
func (m MatchStatus) RequiresReview() bool {
	return m == MatchStatusUnmatched || m == MatchStatusManual || m == MatchStatusDisputed
}

// OCRLineItem is one raw line item as extracted by the OCR service.
// All fields are unparsed strings; the normalizer owns interpretation.
type OCRLineItem struct {
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
}

// OCRPayload is the structured output of the external OCR service attached
// to an invoice on upload. Confidence is the document-level extraction
// confidence in [0,100]; it says nothing about matching correctness.
type OCRPayload struct {
	RawText    string        `json:"raw_text"`
	Confidence float64       `json:"confidence"`
	LineItems  []OCRLineItem `json:"line_items"`
}

// VendorInvoice is one uploaded invoice document. It exclusively owns its
// line items; corrections cascade to them, deletion never does (invoices are
// retained for audit once paid).
type VendorInvoice struct {
	ID       uint  `json:"id"`
	VendorID uint  `json:"vendor_id"`
	ClientID *uint `json:"client_id,omitempty"`

	InvoiceDate time.Time `json:"invoice_date"`
	DueDate     time.Time `json:"due_date"`

	SubtotalMinor int64 `json:"subtotal_minor"`
	TaxMinor      int64 `json:"tax_minor"`
	FeesMinor     int64 `json:"fees_minor"`
	TotalMinor    int64 `json:"total_minor"`

	Status          InvoiceStatus `json:"status"`
	FinalConfidence float64       `json:"final_confidence"`
	StatusNote      string        `json:"status_note,omitempty"`

	OCR       OCRPayload         `json:"ocr"`
	LineItems []*InvoiceLineItem `json:"line_items"`
}

// Validate performs basic validation on the VendorInvoice
func (vi *VendorInvoice) Validate() error {
	if vi.VendorID == 0 {
		return fmt.Errorf("invoice vendor reference cannot be empty")
	}

	if !vi.Status.IsValid() {
		return fmt.Errorf("invalid invoice status: %s", vi.Status)
	}

	if vi.OCR.Confidence < 0 || vi.OCR.Confidence > 100 {
		return fmt.Errorf("OCR confidence must be between 0 and 100: %f", vi.OCR.Confidence)
	}

	for i, li := range vi.LineItems {
		if err := li.Validate(); err != nil {
			return fmt.Errorf("line item %d: %w", i, err)
		}
	}

	return nil
}

// String returns a string representation of the VendorInvoice
func (vi *VendorInvoice) String() string {
	return fmt.Sprintf("VendorInvoice{ID: %d, Vendor: %d, Status: %s, Total: %s, Items: %d}",
		vi.ID, vi.VendorID, vi.Status, FormatMinor(vi.TotalMinor), len(vi.LineItems))
}

// InvoiceLineItem belongs to exactly one VendorInvoice. It references at
// most one PO line item at any time; the matching history lives in the
// ledger, not here.
type InvoiceLineItem struct {
	ID        uint `json:"id"`
	InvoiceID uint `json:"invoice_id"`

	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPriceMinor int64           `json:"unit_price_minor"`
	AmountMinor    int64           `json:"amount_minor"`

	MatchStatus       MatchStatus `json:"match_status"`
	MatchedPOLineItem *uint       `json:"matched_po_line_item_id,omitempty"`
	MatchScore        float64     `json:"match_score"`
}

// Validate performs basic validation on the InvoiceLineItem
func (li *InvoiceLineItem) Validate() error {
	if strings.TrimSpace(li.Description) == "" {
		return fmt.Errorf("line item description cannot be empty")
	}

	if li.MatchStatus != "" && !li.MatchStatus.IsValid() {
		return fmt.Errorf("invalid match status: %s", li.MatchStatus)
	}

	return nil
}

// AmountConsistent reports whether amount ≈ quantity × unit price within the
// given minor-unit tolerance. OCR rounding commonly drifts by one cent.
func (li *InvoiceLineItem) AmountConsistent(toleranceMinor int64) bool {
	expected := li.Quantity.Mul(decimal.New(li.UnitPriceMinor, 0)).Round(0)
	diff := decimal.New(li.AmountMinor, 0).Sub(expected).Abs()
	return diff.LessThanOrEqual(decimal.New(toleranceMinor, 0))
}

// String returns a string representation of the InvoiceLineItem
func (li *InvoiceLineItem) String() string {
	return fmt.Sprintf("InvoiceLineItem{ID: %d, Desc: %q, Qty: %s, Amount: %s, Status: %s}",
		li.ID, li.Description, li.Quantity.String(), FormatMinor(li.AmountMinor), li.MatchStatus)
}

// PurchaseOrder belongs to a client+vendor pair. The reconciliation engine
// reads it and its line items but never writes them.
type PurchaseOrder struct {
	ID        uint          `json:"id"`
	VendorID  uint          `json:"vendor_id"`
	ClientID  uint          `json:"client_id"`
	LineItems []*POLineItem `json:"line_items"`
}

// POLineItem mirrors an invoice line item on the purchase side. A PO line
// item may be matched by invoice line items across distinct invoices
// (partial delivery) but at most once within a single resolution run.
type POLineItem struct {
	ID              uint `json:"id"`
	PurchaseOrderID uint `json:"purchase_order_id"`

	Description          string          `json:"description"`
	Quantity             decimal.Decimal `json:"quantity"`
	VendorUnitPriceMinor int64           `json:"vendor_unit_price_minor"`
	ClientUnitPriceMinor int64           `json:"client_unit_price_minor"`
	ServiceType          string          `json:"service_type"`
	Notes                string          `json:"notes,omitempty"`
}

// VendorAmountMinor returns quantity × vendor unit price in minor units
func (po *POLineItem) VendorAmountMinor() int64 {
	return po.Quantity.Mul(decimal.New(po.VendorUnitPriceMinor, 0)).Round(0).IntPart()
}

// ClientAmountMinor returns quantity × client unit price in minor units
func (po *POLineItem) ClientAmountMinor() int64 {
	return po.Quantity.Mul(decimal.New(po.ClientUnitPriceMinor, 0)).Round(0).IntPart()
}

// Validate performs basic validation on the POLineItem
func (po *POLineItem) Validate() error {
	if strings.TrimSpace(po.Description) == "" {
		return fmt.Errorf("PO line item description cannot be empty")
	}

	if po.Quantity.IsNegative() {
		return fmt.Errorf("PO line item quantity cannot be negative")
	}

	return nil
}

// MatchDecision records how a matching ledger entry stands today
type MatchDecision string

const (
	DecisionAccepted   MatchDecision = "accepted"
	DecisionRejected   MatchDecision = "rejected"
	DecisionSuperseded MatchDecision = "superseded"
)

// IsValid checks if the decision is one of the known values
func (d MatchDecision) IsValid() bool {
	return d == DecisionAccepted || d == DecisionRejected || d == DecisionSuperseded
}

// MatchingRecord is one append-only audit entry in the matching ledger.
// Many records accumulate per invoice line item over time; only the most
// recent non-superseded record reflects the current match_status.
type MatchingRecord struct {
	ID                uint          `json:"id"`
	RunID             string        `json:"run_id"`
	InvoiceID         uint          `json:"invoice_id"`
	InvoiceLineItemID uint          `json:"invoice_line_item_id"`
	POLineItemID      *uint         `json:"po_line_item_id,omitempty"`
	Score             float64       `json:"score"`
	Decision          MatchDecision `json:"decision"`
	CreatedAt         time.Time     `json:"created_at"`
}

// String returns a string representation of the MatchingRecord
func (mr *MatchingRecord) String() string {
	po := "none"
	if mr.POLineItemID != nil {
		po = fmt.Sprintf("%d", *mr.POLineItemID)
	}
	return fmt.Sprintf("MatchingRecord{Run: %s, Line: %d, PO: %s, Score: %.3f, Decision: %s}",
		mr.RunID, mr.InvoiceLineItemID, po, mr.Score, mr.Decision)
}

// OutcomeKind tags the resolver's classification of one invoice line item
type OutcomeKind int

const (
	// OutcomeUnparseable marks items the normalizer could not interpret.
	// They are excluded from the assignment pool entirely.
	OutcomeUnparseable OutcomeKind = iota
	// OutcomeUnmatched marks items with no assignment above the floor
	OutcomeUnmatched
	// OutcomePartial marks accepted assignments flagged for human review
	OutcomePartial
	// OutcomeMatched marks high-confidence accepted assignments
	OutcomeMatched
	// OutcomeManual marks items routed to a human regardless of score
	OutcomeManual
)

// String returns the string representation of OutcomeKind
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUnparseable:
		return "unparseable"
	case OutcomeUnmatched:
		return "unmatched"
	case OutcomePartial:
		return "partial"
	case OutcomeMatched:
		return "matched"
	case OutcomeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// LineOutcome is the tagged per-line-item result of a resolver run
type LineOutcome struct {
	InvoiceLineItemID uint        `json:"invoice_line_item_id"`
	Kind              OutcomeKind `json:"kind"`
	POLineItemID      *uint       `json:"po_line_item_id,omitempty"`
	Score             float64     `json:"score"`
	Diagnostics       []string    `json:"diagnostics,omitempty"`
}

// MatchStatus projects the outcome onto the line item's persisted status
func (o LineOutcome) MatchStatus() MatchStatus {
	switch o.Kind {
	case OutcomeMatched:
		return MatchStatusMatched
	case OutcomePartial:
		return MatchStatusPartial
	case OutcomeUnparseable, OutcomeManual:
		return MatchStatusManual
	case OutcomeUnmatched:
		return MatchStatusUnmatched
	default:
		return MatchStatusUnmatched
	}
}

// Assigned reports whether the outcome carries an accepted PO assignment
func (o LineOutcome) Assigned() bool {
	return o.POLineItemID != nil && (o.Kind == OutcomeMatched || o.Kind == OutcomePartial)
}

// MarshalJSON renders the outcome kind as its string tag
func (o LineOutcome) MarshalJSON() ([]byte, error) {
	type Alias LineOutcome
	return json.Marshal(&struct {
		Kind string `json:"kind"`
		Alias
	}{
		Kind:  o.Kind.String(),
		Alias: (Alias)(o),
	})
}

// Boundary parsing helpers

// ParseMoneyMinor parses a decimal money string into integer minor units.
// Common currency artifacts ($, commas, whitespace) are scrubbed before
// parsing; two decimal places are assumed for the minor unit.
func ParseMoneyMinor(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d.Shift(2).Round(0).IntPart(), nil
}

// ParseQuantity parses a quantity string into a decimal
func ParseQuantity(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("quantity string cannot be empty")
	}

	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid quantity format '%s': %w", s, err)
	}

	return d, nil
}

// FormatMinor renders minor units as a decimal string (e.g. 45000 -> "450.00")
func FormatMinor(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// MinorToDecimal converts minor units to a decimal major-unit value
func MinorToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
