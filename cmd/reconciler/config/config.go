// Package config assembles engine and matcher configurations from CLI
// flags, environment variables and optional config files.
package config

import (
	"time"

	"invoice-reconciliation-service/internal/engine"
	"invoice-reconciliation-service/internal/matcher"
)

// BuildMatcherConfig applies CLI overrides on top of the default matching
// configuration. Weights are deployment-fixed and not exposed as flags.
func BuildMatcherConfig(scoreFloor, partialThreshold, matchThreshold float64, amountToleranceMinor int64) *matcher.Config {
	cfg := matcher.DefaultConfig()
	cfg.ScoreFloor = scoreFloor
	cfg.PartialThreshold = partialThreshold
	cfg.MatchedThreshold = matchThreshold
	cfg.AmountToleranceMinor = amountToleranceMinor
	return cfg
}

// BuildEngineConfig creates an engine configuration with the given upstream
// timeout and matcher settings
func BuildEngineConfig(upstreamTimeout time.Duration, matching *matcher.Config) *engine.Config {
	cfg := engine.DefaultConfig()
	if upstreamTimeout > 0 {
		cfg.UpstreamTimeout = upstreamTimeout
	}
	if matching != nil {
		cfg.Matching = matching
	}
	return cfg
}
