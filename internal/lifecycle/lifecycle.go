// Package lifecycle governs vendor invoice status transitions.
//
// The machine is an explicit transition table: every move not listed is
// rejected with a typed InvalidTransition error and leaves the invoice
// untouched. Each operation validates all of its guards before mutating
// anything, so a failed call never produces a partial write.
//
//	pending -> under_review -> {approved, disputed, rejected}
//	approved -> paid
//	disputed -> under_review (after re-resolution)
//
// paid and rejected are terminal.
package lifecycle

import (
	"strings"

	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
)

// AutoQueueNote is the system note recorded when an invoice auto-advances
// into review after a high-confidence reconciliation run
const AutoQueueNote = "auto-queued for review"

// transitions is the complete set of legal status moves
var transitions = map[models.InvoiceStatus]map[models.InvoiceStatus]bool{
	models.StatusPending: {
		models.StatusUnderReview: true,
	},
	models.StatusUnderReview: {
		models.StatusApproved: true,
		models.StatusDisputed: true,
		models.StatusRejected: true,
	},
	models.StatusDisputed: {
		models.StatusUnderReview: true,
	},
	models.StatusApproved: {
		models.StatusPaid: true,
	},
	// paid and rejected admit nothing
}

// Machine applies lifecycle transitions to vendor invoices
type Machine struct{}

// NewMachine creates a lifecycle Machine
func NewMachine() *Machine {
	return &Machine{}
}

// CanTransition reports whether from -> to is a legal move
func (m *Machine) CanTransition(from, to models.InvoiceStatus) bool {
	return transitions[from][to]
}

// transition performs the table check shared by every operation
func (m *Machine) transition(invoice *models.VendorInvoice, to models.InvoiceStatus) error {
	if !m.CanTransition(invoice.Status, to) {
		return errors.InvalidTransition(invoice.Status.String(), to.String())
	}
	return nil
}

// AutoAdvance moves a pending invoice into review when the confidence gate
// passed. It returns true when the invoice advanced. A failed gate is not an
// error: the invoice simply stays pending for a human to move forward — the
// engine never guesses past insufficient confidence.
func (m *Machine) AutoAdvance(invoice *models.VendorInvoice, gatePassed bool) (bool, error) {
	if invoice.Status != models.StatusPending {
		return false, nil
	}

	if !gatePassed {
		return false, nil
	}

	if err := m.transition(invoice, models.StatusUnderReview); err != nil {
		return false, err
	}

	invoice.Status = models.StatusUnderReview
	invoice.StatusNote = AutoQueueNote
	return true, nil
}

// Advance is the explicit human action moving a pending invoice into review
func (m *Machine) Advance(invoice *models.VendorInvoice) error {
	if err := m.transition(invoice, models.StatusUnderReview); err != nil {
		return err
	}

	invoice.Status = models.StatusUnderReview
	invoice.StatusNote = ""
	return nil
}

// Approve moves an invoice under review to approved. Every line item must be
// matched, or partial with the reviewer's acknowledgement (acknowledgement is
// an external input, keyed by line item ID). Anything else fails with
// IncompleteReconciliation and no state change.
func (m *Machine) Approve(invoice *models.VendorInvoice, acknowledged map[uint]bool) error {
	if err := m.transition(invoice, models.StatusApproved); err != nil {
		return err
	}

	blocking := 0
	for _, li := range invoice.LineItems {
		switch li.MatchStatus {
		case models.MatchStatusMatched:
		case models.MatchStatusPartial:
			if !acknowledged[li.ID] {
				blocking++
			}
		default:
			blocking++
		}
	}

	if blocking > 0 {
		return errors.IncompleteReconciliation(blocking)
	}

	invoice.Status = models.StatusApproved
	invoice.StatusNote = ""
	return nil
}

// Dispute moves an invoice under review to disputed. A reason is required.
func (m *Machine) Dispute(invoice *models.VendorInvoice, reason string) error {
	if err := m.transition(invoice, models.StatusDisputed); err != nil {
		return err
	}

	if strings.TrimSpace(reason) == "" {
		return errors.New(errors.CategoryLifecycle, errors.CodeMissingDisputeReason,
			"a dispute requires a reason")
	}

	invoice.Status = models.StatusDisputed
	invoice.StatusNote = reason
	return nil
}

// ReopenFromDispute returns a disputed invoice to review. At least one line
// item must have been re-resolved since the dispute (a new matching record),
// which the caller asserts via reResolved.
func (m *Machine) ReopenFromDispute(invoice *models.VendorInvoice, reResolved bool) error {
	if err := m.transition(invoice, models.StatusUnderReview); err != nil {
		return err
	}

	if !reResolved {
		return errors.InvalidTransition(invoice.Status.String(), models.StatusUnderReview.String()).
			WithSuggestion("re-run reconciliation on the corrected line items before reopening")
	}

	invoice.Status = models.StatusUnderReview
	invoice.StatusNote = ""
	return nil
}

// Reject moves an invoice under review to rejected (terminal)
func (m *Machine) Reject(invoice *models.VendorInvoice, reason string) error {
	if err := m.transition(invoice, models.StatusRejected); err != nil {
		return err
	}

	invoice.Status = models.StatusRejected
	invoice.StatusNote = reason
	return nil
}

// MarkPaid records the external payment confirmation. Only an approved
// invoice may reach paid; the engine does not initiate payment.
func (m *Machine) MarkPaid(invoice *models.VendorInvoice) error {
	if err := m.transition(invoice, models.StatusPaid); err != nil {
		return err
	}

	invoice.Status = models.StatusPaid
	return nil
}
