// Package guard implements the policy gate every command and every
// proposed remediation action passes through before it is allowed to run
// or to appear in a diagnosis report.
package guard

import (
	"strings"

	"srediag/internal/sre/registry"
)

// IsCommandAllowed reports whether meta's risk class is in allowedRisks and
// its command template (meta.Cmd, before parameter rendering) contains none
// of denyKeywords, case-insensitively.
// A command is denied if either check fails.
func IsCommandAllowed(meta registry.CommandMeta, allowedRisks, denyKeywords []string) bool {
	if !riskAllowed(string(meta.Risk), allowedRisks) {
		return false
	}
	return !containsDenyKeyword(meta.Cmd, denyKeywords)
}

func riskAllowed(risk string, allowedRisks []string) bool {
	risk = strings.ToUpper(risk)
	for _, r := range allowedRisks {
		if strings.ToUpper(r) == risk {
			return true
		}
	}
	return false
}

func containsDenyKeyword(cmd string, denyKeywords []string) bool {
	lower := strings.ToLower(cmd)
	for _, kw := range denyKeywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// BlockedReason names why an action was filtered out of a report's
// next_actions list.
type BlockedReason string

const (
	BlockedRiskNotAllowed BlockedReason = "risk_not_allowed"
	BlockedDenyKeyword    BlockedReason = "deny_keyword"
)

// Action is the minimal shape the guard needs to evaluate a proposed
// remediation step; report.Action carries the same four fields under its
// report-facing JSON names, and ExpectedEffect passes through untouched.
type Action struct {
	Command        string
	Risk           string
	ExpectedEffect string
	BlockedReason  BlockedReason
}

// FilterActions splits actions into those whose risk class is allowed and
// has no deny keyword, and those that were blocked — annotated with why.
func FilterActions(actions []Action, allowedRisks, denyKeywords []string) (allowed, blocked []Action) {
	for _, a := range actions {
		if !riskAllowed(a.Risk, allowedRisks) {
			a.BlockedReason = BlockedRiskNotAllowed
			blocked = append(blocked, a)
			continue
		}
		if containsDenyKeyword(a.Command, denyKeywords) {
			a.BlockedReason = BlockedDenyKeyword
			blocked = append(blocked, a)
			continue
		}
		allowed = append(allowed, a)
	}
	return allowed, blocked
}
