// Package classify implements the deterministic rule engine that turns
// collected signals into ranked diagnostic hypotheses.
package classify

import (
	"fmt"
	"sort"
)

// Op is a comparison operator a Rule applies to a signal value.
type Op string

const (
	OpGTE Op = ">="
	OpLTE Op = "<="
	OpGT  Op = ">"
	OpLT  Op = "<"
)

// Rule is one category-signal-threshold classification rule.
type Rule struct {
	Category   string  `yaml:"category" json:"category"`
	Signal     string  `yaml:"signal" json:"signal"`
	Op         Op      `yaml:"op" json:"op"`
	Threshold  float64 `yaml:"threshold" json:"threshold"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
	Why        string  `yaml:"why" json:"why"`
}

// Match reports whether signals satisfies the rule's comparison.
func (r Rule) Match(signals map[string]float64) bool {
	v, ok := signals[r.Signal]
	if !ok {
		return false
	}
	switch r.Op {
	case OpGTE:
		return v >= r.Threshold
	case OpLTE:
		return v <= r.Threshold
	case OpGT:
		return v > r.Threshold
	case OpLT:
		return v < r.Threshold
	default:
		return false
	}
}

// DefaultRules are the three built-in rules used when no rule
// configuration layer is supplied.
var DefaultRules = []Rule{
	{Category: "IO_WAIT", Signal: "iowait_pct", Op: OpGTE, Threshold: 20, Confidence: 0.8, Why: "iowait_pct high"},
	{Category: "MEMORY", Signal: "mem_available_mb", Op: OpLTE, Threshold: 200, Confidence: 0.7, Why: "mem_available_mb low"},
	{Category: "CPU", Signal: "loadavg_1m", Op: OpGTE, Threshold: 5, Confidence: 0.6, Why: "loadavg_1m high"},
}

// Hypothesis is one ranked diagnostic candidate.
type Hypothesis struct {
	Category        string   `json:"category"`
	Confidence      float64  `json:"confidence"`
	Why             string   `json:"why"`
	EvidenceRefs    []string `json:"evidence_refs"`
	CounterEvidence []string `json:"counter_evidence"`
}

// Engine classifies signals against a rule set.
type Engine struct {
	rules []Rule
}

// NewEngine builds an Engine from rules, falling back to DefaultRules when
// rules is empty.
func NewEngine(rules []Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Engine{rules: rules}
}

// Classify returns up to three hypotheses sorted by descending confidence,
// each annotated with counter-evidence. A signal set matching nothing
// returns a single UNKNOWN hypothesis at confidence 0.2.
func (e *Engine) Classify(signals map[string]float64) []Hypothesis {
	return e.classify(signals, nil)
}

// ClassifyWithEvidence is Classify plus evidence_refs: signalRefs maps a
// signal name to the audit ref of the command that produced it, so each
// hypothesis can cite the snapshot it was derived from.
func (e *Engine) ClassifyWithEvidence(signals map[string]float64, signalRefs map[string]string) []Hypothesis {
	return e.classify(signals, signalRefs)
}

func (e *Engine) classify(signals map[string]float64, signalRefs map[string]string) []Hypothesis {
	var matched []Rule
	for _, r := range e.rules {
		if r.Match(signals) {
			matched = append(matched, r)
		}
	}
	if len(matched) == 0 {
		return []Hypothesis{{
			Category:        "UNKNOWN",
			Confidence:      0.2,
			Why:             "no rule matched collected signals",
			EvidenceRefs:    []string{},
			CounterEvidence: []string{},
		}}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Confidence > matched[j].Confidence
	})
	if len(matched) > 3 {
		matched = matched[:3]
	}

	hypotheses := make([]Hypothesis, 0, len(matched))
	for _, r := range matched {
		refs := []string{}
		if ref, ok := signalRefs[r.Signal]; ok && ref != "" {
			refs = append(refs, ref)
		}
		hypotheses = append(hypotheses, Hypothesis{
			Category:        r.Category,
			Confidence:      r.Confidence,
			Why:             fmt.Sprintf("%s (%.1f) %s", r.Signal, signals[r.Signal], r.Why),
			EvidenceRefs:    refs,
			CounterEvidence: counterEvidence(r.Category, signals),
		})
	}
	return hypotheses
}

// counterEvidence checks other categories' signals directly against their
// own thresholds, even when that category's rule did not match — e.g. a
// CPU hypothesis accompanied by a high iowait_pct notes that IO_WAIT is the
// more likely root cause, and a low loadavg_1m undercuts CPU itself.
// Ported from the original rule engine's _counter_evidence.
func counterEvidence(category string, signals map[string]float64) []string {
	notes := []string{}
	switch category {
	case "IO_WAIT":
		if v, ok := signals["iowait_pct"]; ok && v < 5.0 {
			notes = append(notes, fmt.Sprintf("iowait_pct low (%.1f)", v))
		}
	case "CPU":
		if v, ok := signals["loadavg_1m"]; ok && v < 1.0 {
			notes = append(notes, fmt.Sprintf("loadavg_1m low (%.1f)", v))
		}
		if iw, ok := signals["iowait_pct"]; ok && iw >= 20.0 {
			notes = append(notes, fmt.Sprintf("iowait_pct high (%.1f) suggests IO_WAIT", iw))
		}
	case "MEMORY":
		if v, ok := signals["mem_available_mb"]; ok && v > 500.0 {
			notes = append(notes, fmt.Sprintf("mem_available_mb high (%.1f)", v))
		}
	}
	return notes
}
