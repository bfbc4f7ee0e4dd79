// Package resolver converts ranked candidate lists into a final one-to-one
// assignment between invoice line items and PO line items, classifies every
// invoice line item, and computes the ledger delta for the run.
//
// The assignment is greedy by descending score: process all
// (invoice line, PO line, score) triples best-first and accept a pairing only
// while both sides are still free. This approximates optimal bipartite
// assignment, is deterministic and idempotent, and per-invoice item counts
// (typically under 50) keep the approximation error negligible. An exact
// min-cost matching (Hungarian) would be a drop-in replacement behind the
// same interface if disputes ever reveal systematic misassignment.
package resolver

import (
	"math"
	"sort"

	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/normalizer"
)

// scoreEpsilon bounds float drift when comparing a run's score against the
// score persisted by a previous run
const scoreEpsilon = 1e-9

// Resolver assigns candidates and classifies line items
type Resolver struct {
	config *matcher.Config
}

// New creates a Resolver, falling back to the default matcher configuration
// when config is nil
func New(config *matcher.Config) *Resolver {
	if config == nil {
		config = matcher.DefaultConfig()
	}
	return &Resolver{config: config}
}

// Resolve produces one LineOutcome per invoice line item. Each PO line item
// is used at most once across the whole invoice. Classification:
//
//	score >= matched threshold            -> matched
//	partial threshold <= score < matched  -> partial
//	assigned below partial, or no candidate -> unmatched
//	flagged unparseable by the normalizer -> manual, never enters the pool
func (r *Resolver) Resolve(lines []*normalizer.CanonicalLine, candidates map[uint][]matcher.Candidate) []models.LineOutcome {
	assignments := r.assign(lines, candidates)

	outcomes := make([]models.LineOutcome, 0, len(lines))
	for _, line := range lines {
		outcomes = append(outcomes, r.classify(line, assignments[line.SourceID], candidates[line.SourceID]))
	}

	return outcomes
}

// assign runs the greedy best-first pass over all candidate triples.
// Ordering is total (score desc, invoice line asc, PO line asc) so the
// assignment is reproducible for identical inputs.
func (r *Resolver) assign(lines []*normalizer.CanonicalLine, candidates map[uint][]matcher.Candidate) map[uint]*matcher.Candidate {
	var triples []matcher.Candidate
	for _, line := range lines {
		triples = append(triples, candidates[line.SourceID]...)
	}

	sort.Slice(triples, func(i, j int) bool {
		if triples[i].Score != triples[j].Score {
			return triples[i].Score > triples[j].Score
		}
		if triples[i].InvoiceLineItemID != triples[j].InvoiceLineItemID {
			return triples[i].InvoiceLineItemID < triples[j].InvoiceLineItemID
		}
		return triples[i].POLineItemID < triples[j].POLineItemID
	})

	assignedLines := make(map[uint]*matcher.Candidate)
	assignedPOLines := make(map[uint]bool)

	for i := range triples {
		c := triples[i]
		if _, taken := assignedLines[c.InvoiceLineItemID]; taken {
			continue
		}
		if assignedPOLines[c.POLineItemID] {
			continue
		}
		assignedLines[c.InvoiceLineItemID] = &triples[i]
		assignedPOLines[c.POLineItemID] = true
	}

	return assignedLines
}

// classify maps one line item's assignment (or absence of one) to an outcome
func (r *Resolver) classify(line *normalizer.CanonicalLine, assigned *matcher.Candidate, ranked []matcher.Candidate) models.LineOutcome {
	outcome := models.LineOutcome{
		InvoiceLineItemID: line.SourceID,
		Diagnostics:       line.Diagnostics,
	}

	if line.Unparseable {
		outcome.Kind = models.OutcomeUnparseable
		return outcome
	}

	if assigned == nil {
		outcome.Kind = models.OutcomeUnmatched
		if len(ranked) > 0 {
			// Best discarded candidate, kept for dispute investigation
			outcome.Score = ranked[0].Score
		}
		return outcome
	}

	outcome.Score = assigned.Score

	switch {
	case assigned.Score >= r.config.MatchedThreshold:
		outcome.Kind = models.OutcomeMatched
		poID := assigned.POLineItemID
		outcome.POLineItemID = &poID
	case assigned.Score >= r.config.PartialThreshold:
		outcome.Kind = models.OutcomePartial
		poID := assigned.POLineItemID
		outcome.POLineItemID = &poID
	default:
		// Assigned in the greedy pass but below the acceptance band;
		// the pairing is dropped rather than recorded
		outcome.Kind = models.OutcomeUnmatched
	}

	return outcome
}

// LedgerDelta is the set of ledger mutations a run produces. An unchanged
// pairing produces nothing, preserving audit continuity for items a re-run
// did not affect.
type LedgerDelta struct {
	SupersedeIDs []uint
	Appends      []*models.MatchingRecord
}

// Empty reports whether the run changed nothing in the ledger
func (d *LedgerDelta) Empty() bool {
	return len(d.SupersedeIDs) == 0 && len(d.Appends) == 0
}

// Diff compares a run's outcomes against the current ledger view (latest
// non-superseded record per line item) and emits the minimal delta: items
// whose pairing is unchanged are skipped; changed items supersede their
// prior record and append a new one tagged with runID.
func Diff(runID string, invoiceID uint, outcomes []models.LineOutcome, prior map[uint]*models.MatchingRecord) *LedgerDelta {
	delta := &LedgerDelta{}

	for _, outcome := range outcomes {
		record := recordFor(runID, invoiceID, outcome)
		previous := prior[outcome.InvoiceLineItemID]

		if previous != nil && sameDecision(previous, record) {
			continue
		}

		if previous != nil {
			delta.SupersedeIDs = append(delta.SupersedeIDs, previous.ID)
		}
		delta.Appends = append(delta.Appends, record)
	}

	return delta
}

// recordFor builds the ledger record reflecting one outcome
func recordFor(runID string, invoiceID uint, outcome models.LineOutcome) *models.MatchingRecord {
	record := &models.MatchingRecord{
		RunID:             runID,
		InvoiceID:         invoiceID,
		InvoiceLineItemID: outcome.InvoiceLineItemID,
		Score:             outcome.Score,
	}

	if outcome.Assigned() {
		record.Decision = models.DecisionAccepted
		record.POLineItemID = outcome.POLineItemID
	} else {
		record.Decision = models.DecisionRejected
	}

	return record
}

// sameDecision reports whether two records describe the same pairing
func sameDecision(a, b *models.MatchingRecord) bool {
	if a.Decision != b.Decision {
		return false
	}

	if (a.POLineItemID == nil) != (b.POLineItemID == nil) {
		return false
	}
	if a.POLineItemID != nil && *a.POLineItemID != *b.POLineItemID {
		return false
	}

	return math.Abs(a.Score-b.Score) < scoreEpsilon
}
