package matcher

import (
	"sort"

	"invoice-reconciliation-service/internal/normalizer"

	"github.com/shopspring/decimal"
)

// Candidate is one scored (invoice line item, PO line item) pairing
type Candidate struct {
	InvoiceLineItemID uint    `json:"invoice_line_item_id"`
	POLineItemID      uint    `json:"po_line_item_id"`
	Score             float64 `json:"score"`

	// Signal breakdown, kept for audit and dispute investigation
	DescriptionScore float64 `json:"description_score"`
	ServiceTypeScore float64 `json:"service_type_score"`
	AmountScore      float64 `json:"amount_score"`
	QuantityScore    float64 `json:"quantity_score"`
}

// Engine scores invoice line items against the PO line items of the
// purchase orders linked to the invoice
type Engine struct {
	config *Config
}

// NewEngine creates a matching engine with the given configuration,
// falling back to defaults when config is nil
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// Config returns a copy of the engine's configuration
func (e *Engine) Config() *Config {
	return e.config.Clone()
}

// Candidates returns the ranked candidate list for one normalized invoice
// line item against the full normalized PO line item set. Unparseable lines
// produce no candidates; they are routed to manual review upstream.
// Ordering is descending score, then ascending PO line item ID.
func (e *Engine) Candidates(line *normalizer.CanonicalLine, poLines []*normalizer.CanonicalLine) []Candidate {
	if line.Unparseable {
		return nil
	}

	var candidates []Candidate
	for _, poLine := range poLines {
		c := e.score(line, poLine)
		if c.Score >= e.config.ScoreFloor {
			candidates = append(candidates, c)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].POLineItemID < candidates[j].POLineItemID
	})

	if len(candidates) > e.config.MaxCandidatesPerLineItem {
		candidates = candidates[:e.config.MaxCandidatesPerLineItem]
	}

	return candidates
}

// CandidateSets builds the candidate lists for every invoice line item.
// The returned map is keyed by invoice line item ID.
func (e *Engine) CandidateSets(lines []*normalizer.CanonicalLine, poLines []*normalizer.CanonicalLine) map[uint][]Candidate {
	sets := make(map[uint][]Candidate, len(lines))
	for _, line := range lines {
		sets[line.SourceID] = e.Candidates(line, poLines)
	}
	return sets
}

// score computes the weighted similarity between an invoice line and a PO line
func (e *Engine) score(line, poLine *normalizer.CanonicalLine) Candidate {
	c := Candidate{
		InvoiceLineItemID: line.SourceID,
		POLineItemID:      poLine.SourceID,
	}

	c.DescriptionScore = jaccard(line.TokenSet(), poLine.TokenSet())
	c.ServiceTypeScore = e.serviceTypeScore(line, poLine)
	c.AmountScore = e.amountScore(line.AmountMinor, poLine.AmountMinor)
	c.QuantityScore = quantityCloseness(line.Quantity, poLine.Quantity)

	w := e.config.Weights
	c.Score = c.DescriptionScore*w.Description +
		c.ServiceTypeScore*w.ServiceType +
		c.AmountScore*w.Amount +
		c.QuantityScore*w.Quantity

	return c
}

// jaccard computes |a ∩ b| / |a ∪ b| over token sets
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}

	return float64(intersection) / float64(union)
}

// serviceTypeScore is the binary service-type agreement bonus. Invoice lines
// rarely carry an explicit tag, so a PO tag appearing verbatim among the
// invoice line's description tokens also counts as agreement.
func (e *Engine) serviceTypeScore(line, poLine *normalizer.CanonicalLine) float64 {
	if poLine.ServiceType == "" {
		return 0.0
	}

	if line.ServiceType == poLine.ServiceType {
		return 1.0
	}

	tokens := line.TokenSet()
	if _, ok := tokens[poLine.ServiceType]; ok {
		return 1.0
	}

	return 0.0
}

// amountScore is 1 - min(1, |a-b| / max(a, b, 1)), with differences within
// the configured minor-unit tolerance treated as exact so a one-cent OCR
// rounding drift does not depress an otherwise perfect pairing.
func (e *Engine) amountScore(a, b int64) float64 {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}

	if diff <= e.config.AmountToleranceMinor {
		return 1.0
	}

	max := a
	if b > max {
		max = b
	}
	if max < 1 {
		max = 1
	}

	ratio := float64(diff) / float64(max)
	if ratio > 1.0 {
		ratio = 1.0
	}

	return 1.0 - ratio
}

// quantityCloseness applies the same closeness formula to quantities
func quantityCloseness(a, b decimal.Decimal) float64 {
	diff := a.Sub(b).Abs()
	if diff.IsZero() {
		return 1.0
	}

	max := decimal.Max(a.Abs(), b.Abs(), decimal.NewFromInt(1))
	ratio, _ := diff.Div(max).Float64()
	if ratio > 1.0 {
		ratio = 1.0
	}

	return 1.0 - ratio
}
