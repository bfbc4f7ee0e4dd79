// Package matcher generates ranked purchase-order candidates for invoice
// line items under noisy OCR input.
//
// Scoring is a weighted sum of four signals:
//   - Description similarity (Jaccard over token sets)
//   - Service-type agreement (binary bonus)
//   - Amount closeness
//   - Quantity closeness
//
// Candidates below an absolute floor are discarded, and ranking is fully
// deterministic: descending score, ties broken by ascending PO line item ID,
// so repeated runs over the same inputs reproduce the same candidate lists.
package matcher

import (
	"fmt"
)

// Weights defines the relative importance of the matching signals.
// They are tunable per deployment but fixed for the lifetime of an engine.
type Weights struct {
	Description float64 `json:"description_weight"`
	ServiceType float64 `json:"service_type_weight"`
	Amount      float64 `json:"amount_weight"`
	Quantity    float64 `json:"quantity_weight"`
}

// Validate checks that each weight is in [0,1] and the sum is approximately 1
func (w *Weights) Validate() error {
	for name, v := range map[string]float64{
		"description":  w.Description,
		"service_type": w.ServiceType,
		"amount":       w.Amount,
		"quantity":     w.Quantity,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", name, v)
		}
	}

	total := w.Description + w.ServiceType + w.Amount + w.Quantity
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("weights should sum to 1.0, got %f", total)
	}

	return nil
}

// Config holds the tunables for candidate generation and classification
type Config struct {
	// Weights for the scoring signals
	Weights Weights `json:"weights"`

	// ScoreFloor is the absolute minimum score for a candidate to survive
	ScoreFloor float64 `json:"score_floor"`

	// MatchedThreshold classifies an assignment as matched
	MatchedThreshold float64 `json:"matched_threshold"`

	// PartialThreshold classifies an assignment as partial (review-flagged)
	PartialThreshold float64 `json:"partial_threshold"`

	// AmountToleranceMinor treats amount differences within this many minor
	// units as exact. One covers the usual OCR/rounding cent drift.
	AmountToleranceMinor int64 `json:"amount_tolerance_minor"`

	// MaxCandidatesPerLineItem caps each line item's candidate list
	MaxCandidatesPerLineItem int `json:"max_candidates_per_line_item"`
}

// DefaultConfig returns the production configuration
func DefaultConfig() *Config {
	return &Config{
		Weights: Weights{
			Description: 0.45,
			ServiceType: 0.15,
			Amount:      0.25,
			Quantity:    0.15,
		},
		ScoreFloor:               0.35,
		MatchedThreshold:         0.85,
		PartialThreshold:         0.50,
		AmountToleranceMinor:     1,
		MaxCandidatesPerLineItem: 20,
	}
}

// StrictConfig returns a configuration that only auto-accepts near-identical
// line items; everything else lands in review.
func StrictConfig() *Config {
	cfg := DefaultConfig()
	cfg.ScoreFloor = 0.50
	cfg.MatchedThreshold = 0.95
	cfg.PartialThreshold = 0.70
	cfg.AmountToleranceMinor = 0
	return cfg
}

// RelaxedConfig returns a configuration for exploratory matching against
// poor OCR extractions.
func RelaxedConfig() *Config {
	cfg := DefaultConfig()
	cfg.ScoreFloor = 0.25
	cfg.MatchedThreshold = 0.80
	cfg.PartialThreshold = 0.40
	cfg.AmountToleranceMinor = 5
	return cfg
}

// Validate checks if the matching configuration is valid
func (c *Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	for name, v := range map[string]float64{
		"score floor":       c.ScoreFloor,
		"matched threshold": c.MatchedThreshold,
		"partial threshold": c.PartialThreshold,
	} {
		if v < 0.0 || v > 1.0 {
			return fmt.Errorf("%s must be between 0.0 and 1.0: %f", name, v)
		}
	}

	if c.PartialThreshold >= c.MatchedThreshold {
		return fmt.Errorf("partial threshold (%f) must be below matched threshold (%f)",
			c.PartialThreshold, c.MatchedThreshold)
	}

	if c.AmountToleranceMinor < 0 {
		return fmt.Errorf("amount tolerance cannot be negative: %d", c.AmountToleranceMinor)
	}

	if c.MaxCandidatesPerLineItem <= 0 {
		return fmt.Errorf("max candidates per line item must be positive: %d", c.MaxCandidatesPerLineItem)
	}

	return nil
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
