// Package ledger defines the append-only matching ledger: the durable audit
// of every match decision the resolver has ever made.
//
// Records are never updated in place except to flip accepted/rejected to
// superseded when a later run changes an item's pairing. The current match
// state of an invoice is not stored anywhere; it is the CurrentView
// projection over the ledger, which removes the lost-update races a mutable
// "current match" column would invite.
package ledger

import (
	"context"

	"invoice-reconciliation-service/internal/models"
)

// Store is the persistence port for matching records
type Store interface {
	// Append durably adds a new record and assigns its ID
	Append(ctx context.Context, record *models.MatchingRecord) error

	// MarkSuperseded flips an existing record's decision to superseded
	MarkSuperseded(ctx context.Context, recordID uint) error

	// RecordsForInvoice returns every record for the invoice, oldest first
	RecordsForInvoice(ctx context.Context, invoiceID uint) ([]*models.MatchingRecord, error)
}

// CurrentView projects the ledger onto its current state: the latest
// non-superseded record per invoice line item. Records must be ordered
// oldest first, as Store.RecordsForInvoice guarantees.
func CurrentView(records []*models.MatchingRecord) map[uint]*models.MatchingRecord {
	view := make(map[uint]*models.MatchingRecord)
	for _, record := range records {
		if record.Decision == models.DecisionSuperseded {
			continue
		}
		view[record.InvoiceLineItemID] = record
	}
	return view
}

// RecordsSince returns records appended by runs after the given record ID.
// Used to verify a disputed invoice was actually re-resolved before reopening.
func RecordsSince(records []*models.MatchingRecord, afterID uint) []*models.MatchingRecord {
	var newer []*models.MatchingRecord
	for _, record := range records {
		if record.ID > afterID {
			newer = append(newer, record)
		}
	}
	return newer
}
