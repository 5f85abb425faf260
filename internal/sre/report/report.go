// Package report builds the final diagnosis report: it prompts the
// planner with the complete evidence pack, filters the proposed
// next_actions through the policy guard, and validates the result against
// the report schema before returning it.
package report

import (
	"context"
	"encoding/json"
	"fmt"

	"srediag/internal/sre/guard"
	"srediag/internal/sre/orchestrator"
	"srediag/internal/sre/planner"
	"srediag/internal/sre/schema"
)

// Action is one proposed next step in a diagnosis report.
type Action struct {
	Action         string              `json:"action"`
	Risk           string              `json:"risk"`
	ExpectedEffect string              `json:"expected_effect,omitempty"`
	BlockedReason  guard.BlockedReason `json:"blocked_reason,omitempty"`
}

// RootCause is the planner's best single explanation for the collected
// evidence.
type RootCause struct {
	Category   string  `json:"category"`
	Summary    string  `json:"summary"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details,omitempty"`
}

// Report is the final diagnosis report emitted to the operator.
type Report struct {
	Meta            orchestrator.EvidencePackMeta `json:"meta"`
	RootCause       RootCause                     `json:"root_cause"`
	EvidenceSummary []string                      `json:"evidence_summary,omitempty"`
	NextActions     []Action                      `json:"next_actions,omitempty"`
	Audit           ReportAudit                   `json:"audit"`
}

// ReportAudit records which proposed actions the guard blocked, and why.
type ReportAudit struct {
	BlockedActions []Action `json:"blocked_actions"`
}

// Policy carries the allowed-risk / deny-keyword lists the guard filters
// next_actions through. It defaults to read-only/low risk commands only,
// matching the original implementation's fallback when the evidence pack
// carries no explicit policy.
type Policy struct {
	AllowedRisks []string
	DenyKeywords []string
}

// DefaultPolicy restricts next_actions to read-only or low risk commands.
var DefaultPolicy = Policy{AllowedRisks: []string{"READ_ONLY", "LOW"}}

// PromptBuilder builds the report-generation prompt from the final
// evidence pack.
type PromptBuilder func(pack *orchestrator.EvidencePack) string

// Build prompts the planner for a diagnosis report, filters its proposed
// next_actions through the guard, and validates the result against the
// report schema.
func Build(ctx context.Context, pack *orchestrator.EvidencePack, p planner.Planner, buildPrompt PromptBuilder, policy Policy, validator *schema.Validator) (*Report, error) {
	prompt := buildPrompt(pack)

	raw, err := p.GenerateJSON(ctx, prompt, 0.0)
	if err != nil {
		return nil, fmt.Errorf("report: planner call: %w", err)
	}

	rpt, err := decodeReport(raw)
	if err != nil {
		return nil, fmt.Errorf("report: decode: %w", err)
	}
	rpt.Meta = pack.Meta

	allowedRisks, denyKeywords := policy.AllowedRisks, policy.DenyKeywords
	if len(allowedRisks) == 0 {
		allowedRisks = pack.Policy.AllowedRisks
	}
	if len(denyKeywords) == 0 {
		denyKeywords = pack.Policy.DenyKeywords
	}
	if len(allowedRisks) == 0 {
		allowedRisks = DefaultPolicy.AllowedRisks
	}

	guardActions := make([]guard.Action, len(rpt.NextActions))
	for i, a := range rpt.NextActions {
		guardActions[i] = guard.Action{Command: a.Action, Risk: a.Risk, ExpectedEffect: a.ExpectedEffect}
	}
	allowed, blocked := guard.FilterActions(guardActions, allowedRisks, denyKeywords)

	rpt.NextActions = rpt.NextActions[:0]
	for _, a := range allowed {
		rpt.NextActions = append(rpt.NextActions, Action{Action: a.Command, Risk: a.Risk, ExpectedEffect: a.ExpectedEffect})
	}
	for _, a := range blocked {
		rpt.Audit.BlockedActions = append(rpt.Audit.BlockedActions, Action{
			Action: a.Command, Risk: a.Risk, ExpectedEffect: a.ExpectedEffect, BlockedReason: a.BlockedReason,
		})
	}

	if validator != nil {
		payload, err := toMap(rpt)
		if err != nil {
			return nil, fmt.Errorf("report: marshal for validation: %w", err)
		}
		if err := validator.Validate(ctx, payload); err != nil {
			return nil, fmt.Errorf("report: schema validation: %w", err)
		}
	}

	return rpt, nil
}

func decodeReport(raw map[string]any) (*Report, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var rpt Report
	if err := json.Unmarshal(data, &rpt); err != nil {
		return nil, err
	}
	return &rpt, nil
}

func toMap(rpt *Report) (map[string]any, error) {
	data, err := json.Marshal(rpt)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
