package models

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestInvoiceStatusIsValid(t *testing.T) {
	valid := []InvoiceStatus{
		StatusPending, StatusUnderReview, StatusApproved,
		StatusDisputed, StatusPaid, StatusRejected,
	}
	for _, status := range valid {
		if !status.IsValid() {
			t.Errorf("Expected %s to be valid", status)
		}
	}

	if InvoiceStatus("archived").IsValid() {
		t.Error("Expected unknown status to be invalid")
	}
}

func TestInvoiceStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status   InvoiceStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusUnderReview, false},
		{StatusApproved, false},
		{StatusDisputed, false},
		{StatusPaid, true},
		{StatusRejected, true},
	}

	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.terminal {
			t.Errorf("%s.IsTerminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestMatchStatusRequiresReview(t *testing.T) {
	tests := []struct {
		status MatchStatus
		review bool
	}{
		{MatchStatusMatched, false},
		{MatchStatusPartial, false},
		{MatchStatusUnmatched, true},
		{MatchStatusManual, true},
		{MatchStatusDisputed, true},
	}

	for _, tt := range tests {
		if got := tt.status.RequiresReview(); got != tt.review {
			t.Errorf("%s.RequiresReview() = %v, want %v", tt.status, got, tt.review)
		}
	}
}

func TestParseMoneyMinor(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"450.00", 45000, false},
		{"$450.00", 45000, false},
		{"1,234.56", 123456, false},
		{" $1,234.56 ", 123456, false},
		{"0.01", 1, false},
		{"-75.25", -7525, false},
		{"450", 45000, false},
		{"", 0, true},
		{"abc", 0, true},
		{"$", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseMoneyMinor(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMoneyMinor(%q) expected error, got %d", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMoneyMinor(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMoneyMinor(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	got, err := ParseQuantity("2.5")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("ParseQuantity(\"2.5\") = %s, want 2.5", got)
	}

	if _, err := ParseQuantity(""); err == nil {
		t.Error("Expected error for empty quantity")
	}
}

func TestFormatMinor(t *testing.T) {
	if got := FormatMinor(45000); got != "450.00" {
		t.Errorf("FormatMinor(45000) = %s, want 450.00", got)
	}
	if got := FormatMinor(1); got != "0.01" {
		t.Errorf("FormatMinor(1) = %s, want 0.01", got)
	}
}

func TestAmountConsistent(t *testing.T) {
	li := &InvoiceLineItem{
		Quantity:       decimal.NewFromInt(3),
		UnitPriceMinor: 1000,
		AmountMinor:    3000,
	}
	if !li.AmountConsistent(1) {
		t.Error("Expected exact amount to be consistent")
	}

	li.AmountMinor = 3001 // one minor unit of rounding drift
	if !li.AmountConsistent(1) {
		t.Error("Expected one-cent drift within tolerance")
	}

	li.AmountMinor = 3005
	if li.AmountConsistent(1) {
		t.Error("Expected five-cent drift to be inconsistent")
	}
}

func TestPOLineItemAmounts(t *testing.T) {
	po := &POLineItem{
		Quantity:             decimal.NewFromFloat(2.5),
		VendorUnitPriceMinor: 1000,
		ClientUnitPriceMinor: 1200,
	}

	if got := po.VendorAmountMinor(); got != 2500 {
		t.Errorf("VendorAmountMinor() = %d, want 2500", got)
	}
	if got := po.ClientAmountMinor(); got != 3000 {
		t.Errorf("ClientAmountMinor() = %d, want 3000", got)
	}
}

func TestLineOutcomeMatchStatusProjection(t *testing.T) {
	poID := uint(7)
	tests := []struct {
		outcome LineOutcome
		want    MatchStatus
	}{
		{LineOutcome{Kind: OutcomeMatched, POLineItemID: &poID, Score: 0.9}, MatchStatusMatched},
		{LineOutcome{Kind: OutcomePartial, POLineItemID: &poID, Score: 0.6}, MatchStatusPartial},
		{LineOutcome{Kind: OutcomeUnmatched}, MatchStatusUnmatched},
		{LineOutcome{Kind: OutcomeManual}, MatchStatusManual},
		{LineOutcome{Kind: OutcomeUnparseable}, MatchStatusManual},
	}

	for _, tt := range tests {
		if got := tt.outcome.MatchStatus(); got != tt.want {
			t.Errorf("%s outcome projects to %s, want %s", tt.outcome.Kind, got, tt.want)
		}
	}
}

func TestLineOutcomeAssigned(t *testing.T) {
	poID := uint(3)

	assigned := LineOutcome{Kind: OutcomeMatched, POLineItemID: &poID, Score: 0.9}
	if !assigned.Assigned() {
		t.Error("Expected matched outcome with PO reference to be assigned")
	}

	unassigned := LineOutcome{Kind: OutcomeUnmatched, Score: 0.4}
	if unassigned.Assigned() {
		t.Error("Expected unmatched outcome to not be assigned")
	}

	// A manual outcome never counts as assigned even with a stale reference
	manual := LineOutcome{Kind: OutcomeManual, POLineItemID: &poID}
	if manual.Assigned() {
		t.Error("Expected manual outcome to not be assigned")
	}
}

func TestVendorInvoiceValidate(t *testing.T) {
	invoice := &VendorInvoice{
		VendorID: 1,
		Status:   StatusPending,
		OCR:      OCRPayload{Confidence: 85},
		LineItems: []*InvoiceLineItem{
			{Description: "Dumpster rental", MatchStatus: MatchStatusUnmatched},
		},
	}

	if err := invoice.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}

	invoice.OCR.Confidence = 120
	if err := invoice.Validate(); err == nil {
		t.Error("Expected error for out-of-range OCR confidence")
	}

	invoice.OCR.Confidence = 85
	invoice.VendorID = 0
	if err := invoice.Validate(); err == nil || !strings.Contains(err.Error(), "vendor") {
		t.Errorf("Expected vendor reference error, got %v", err)
	}
}

func TestMatchDecisionIsValid(t *testing.T) {
	for _, d := range []MatchDecision{DecisionAccepted, DecisionRejected, DecisionSuperseded} {
		if !d.IsValid() {
			t.Errorf("Expected %s to be valid", d)
		}
	}
	if MatchDecision("pending").IsValid() {
		t.Error("Expected unknown decision to be invalid")
	}
}
