package diagnose

import "time"

// Budget bounds a multi-round diagnose loop.
type Budget struct {
	MaxRounds            int
	MaxCmdsPerRound      int
	MaxTotalCmds         int
	TimeBudget           time.Duration
	ConfidenceThreshold  float64
}

// DefaultBudget matches the original implementation's defaults: 3 rounds,
// 3 commands per round, 12 commands total, a 120 second wall-clock budget,
// and an 0.85 confidence early-stop threshold.
var DefaultBudget = Budget{
	MaxRounds:           3,
	MaxCmdsPerRound:     3,
	MaxTotalCmds:        12,
	TimeBudget:          120 * time.Second,
	ConfidenceThreshold: 0.85,
}
