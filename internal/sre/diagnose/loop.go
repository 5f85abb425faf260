package diagnose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"srediag/internal/sre/classify"
	"srediag/internal/sre/orchestrator"
	"srediag/internal/sre/planner"
	"srediag/internal/sre/registry"
)

// RoundTrace records one round of the loop for index persistence.
type RoundTrace struct {
	Round      int                   `json:"round"`
	Primary    string                `json:"primary"`
	Proposed   []ProposedCmd         `json:"proposed"`
	Accepted   []ProposedCmd         `json:"accepted"`
	Dropped    []FilteredCmd         `json:"dropped"`
	Hypotheses []classify.Hypothesis `json:"hypotheses"`
	Confidence float64               `json:"confidence"`
}

// Result is the outcome of a full multi-round diagnose loop.
type Result struct {
	Pack       *orchestrator.EvidencePack
	Rounds     []RoundTrace
	StopReason StopReason
}

// PromptBuilder builds the planner prompt text for one round, given the
// current evidence pack, the remaining command pool, the commands already
// executed, and the active budget.
type PromptBuilder func(pack *orchestrator.EvidencePack, allowedPool []string, executed []string, budget Budget) string

// Run drives the multi-round loop: checks budgets, computes the
// category-scoped allowed pool from the routing table, builds a prompt,
// calls the planner, filters the proposed commands against that pool,
// executes them via orch, reclassifies, and persists each round's trace.
// It mirrors the original orchestrator's multi_round_diagnose control
// flow exactly, including stop-reason precedence: time budget, then total
// command budget, then pool exhaustion, then the planner's own decision,
// then confidence threshold, falling through to max_rounds_reached.
func Run(ctx context.Context, orch *orchestrator.Orchestrator, reg *registry.Registry, pack *orchestrator.EvidencePack, p planner.Planner, buildPrompt PromptBuilder, budget Budget, cmdTimeout time.Duration) (*Result, error) {
	deadline := time.Now().Add(budget.TimeBudget)
	result := &Result{Pack: pack, StopReason: StopMaxRoundsReached}

	knownCmdIDs := map[string]bool{}
	for _, c := range reg.All() {
		knownCmdIDs[c.CmdID] = true
	}

	executed := map[string]bool{}
	for _, s := range pack.Snapshots {
		executed[s.CmdID] = true
	}
	for _, nc := range pack.NextChecks {
		executed[nc.CmdID] = true
	}
	totalExecuted := len(executed)

	signalRefs := map[string]string{}
	for _, s := range pack.Snapshots {
		signalRefs[s.Signal] = s.AuditRef
	}

	for round := 1; round <= budget.MaxRounds; round++ {
		if time.Now().After(deadline) {
			result.StopReason = StopTimeBudgetExceeded
			break
		}
		if totalExecuted >= budget.MaxTotalCmds {
			result.StopReason = StopTotalCmdsExhausted
			break
		}

		primary := ""
		if len(pack.Hypotheses) > 0 {
			primary = pack.Hypotheses[0].Category
		}

		var remainingPool []string
		for _, cmdID := range orch.Routing[primary] {
			if !executed[cmdID] {
				remainingPool = append(remainingPool, cmdID)
			}
		}
		if len(remainingPool) == 0 {
			result.StopReason = StopPoolExhausted
			break
		}

		var executedList []string
		for cmdID := range executed {
			executedList = append(executedList, cmdID)
		}
		prompt := buildPrompt(pack, remainingPool, executedList, budget)

		raw, err := p.GenerateJSON(ctx, prompt, 0.0)
		if err != nil {
			return nil, fmt.Errorf("diagnose: round %d planner call: %w", round, err)
		}

		plan, err := decodePlan(raw)
		if err != nil {
			return nil, fmt.Errorf("diagnose: round %d decode plan: %w", round, err)
		}

		if plan.Decision == DecisionStop {
			result.StopReason = StopPlannerDecision
			if plan.StopReason != "" {
				result.StopReason = StopReason(plan.StopReason)
			}
			break
		}

		remainingSet := map[string]bool{}
		for _, cmdID := range remainingPool {
			remainingSet[cmdID] = true
		}
		accepted, dropped := FilterPlanCmds(plan.NextCmds, remainingSet, knownCmdIDs, executed, budget.MaxCmdsPerRound)

		for _, cmd := range accepted {
			timeout := cmdTimeout
			if cmd.TimeoutSec > 0 {
				timeout = time.Duration(cmd.TimeoutSec) * time.Second
			}
			res, err := orch.ExecCmd(ctx, cmd.CmdID, timeout)
			if err != nil {
				slog.Warn("diagnose round exec failed", "round", round, "cmd_id", cmd.CmdID, "err", err)
				continue
			}
			executed[cmd.CmdID] = true
			totalExecuted++

			switch {
			case res.Blocked:
				pack.NextChecks = append(pack.NextChecks, orchestrator.NextCheck{CmdID: cmd.CmdID, Purpose: orchestrator.NextCheckBlockedOrFailed})
			case res.Skipped:
				pack.NextChecks = append(pack.NextChecks, orchestrator.NextCheck{CmdID: cmd.CmdID, Purpose: orchestrator.NextCheckPlatformMismatch})
				pack.Metrics.Skipped++
			default:
				pack.Snapshots = append(pack.Snapshots, orchestrator.Snapshot{
					CmdID:    cmd.CmdID,
					Signal:   res.Summary,
					Summary:  res.Summary,
					AuditRef: res.AuditRef,
				})
				if res.TimedOut {
					pack.Metrics.Timeouts++
				}
				if res.Empty {
					pack.Metrics.EmptyOutputs++
				}
				for k, v := range res.Signals {
					pack.Signals[k] = v
					signalRefs[k] = res.AuditRef
				}
			}
		}

		pack.Hypotheses = orch.Rules.ClassifyWithEvidence(pack.Signals, signalRefs)

		trace := RoundTrace{
			Round:      round,
			Primary:    primary,
			Proposed:   plan.NextCmds,
			Accepted:   accepted,
			Dropped:    dropped,
			Hypotheses: pack.Hypotheses,
			Confidence: topConfidence(pack.Hypotheses),
		}
		result.Rounds = append(result.Rounds, trace)
		if _, err := orch.Evidence.WriteIndex(fmt.Sprintf("llm_round_%03d", round), trace); err != nil {
			slog.Warn("failed to persist round trace", "round", round, "err", err)
		}

		if trace.Confidence >= budget.ConfidenceThreshold {
			result.StopReason = StopConfidenceThreshold
			break
		}
	}

	if _, err := orch.Evidence.WriteIndex("diagnosis_trace", result.Rounds); err != nil {
		slog.Warn("failed to persist diagnosis trace", "err", err)
	}
	if _, err := orch.Evidence.WriteIndex("evidence_pack", pack); err != nil {
		slog.Warn("failed to persist final evidence pack", "err", err)
	}

	return result, nil
}

func decodePlan(raw map[string]any) (Plan, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return Plan{}, err
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func topConfidence(hyps []classify.Hypothesis) float64 {
	if len(hyps) == 0 {
		return 0
	}
	return hyps[0].Confidence
}
