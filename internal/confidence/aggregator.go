// Package confidence blends the OCR document confidence with the resolver's
// match quality into the single document-level score that gates the invoice
// lifecycle's auto-advance.
package confidence

import (
	"fmt"

	"invoice-reconciliation-service/internal/models"
)

// ReviewGateThreshold is the minimum final confidence for an invoice to
// auto-queue for review. Below it a human must move the invoice forward.
const ReviewGateThreshold = 70.0

// Aggregator combines OCR and match confidence with fixed blend weights
type Aggregator struct {
	ocrWeight   float64
	matchWeight float64
}

// NewAggregator creates an Aggregator with the standard equal blend
func NewAggregator() *Aggregator {
	return &Aggregator{ocrWeight: 0.5, matchWeight: 0.5}
}

// NewWeightedAggregator creates an Aggregator with custom blend weights
func NewWeightedAggregator(ocrWeight, matchWeight float64) (*Aggregator, error) {
	total := ocrWeight + matchWeight
	if total < 0.99 || total > 1.01 {
		return nil, fmt.Errorf("blend weights should sum to 1.0, got %f", total)
	}
	return &Aggregator{ocrWeight: ocrWeight, matchWeight: matchWeight}, nil
}

// MatchConfidence is the resolver's document-level match quality in [0,100]:
// the mean assigned score across line items, scaled. Unmatched, manual and
// unparseable items contribute zero, so a single unresolved line item on a
// small invoice drags the document below the review gate.
func (a *Aggregator) MatchConfidence(outcomes []models.LineOutcome) float64 {
	if len(outcomes) == 0 {
		return 0.0
	}

	var total float64
	for _, outcome := range outcomes {
		switch outcome.Kind {
		case models.OutcomeMatched, models.OutcomePartial:
			total += outcome.Score
		case models.OutcomeUnmatched, models.OutcomeManual, models.OutcomeUnparseable:
			// contributes 0
		}
	}

	return 100.0 * total / float64(len(outcomes))
}

// FinalConfidence blends OCR confidence (0-100) with match confidence (0-100)
func (a *Aggregator) FinalConfidence(ocrConfidence float64, outcomes []models.LineOutcome) float64 {
	return a.ocrWeight*clamp(ocrConfidence) + a.matchWeight*a.MatchConfidence(outcomes)
}

// PassesReviewGate applies the auto-advance rule: final confidence at or
// above the threshold and no line item requiring human attention
func (a *Aggregator) PassesReviewGate(finalConfidence float64, outcomes []models.LineOutcome) bool {
	if finalConfidence < ReviewGateThreshold {
		return false
	}

	for _, outcome := range outcomes {
		switch outcome.Kind {
		case models.OutcomeUnmatched, models.OutcomeManual, models.OutcomeUnparseable:
			return false
		}
	}

	return true
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
