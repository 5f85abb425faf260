// Package replay runs the deterministic rule engine offline against stored
// or synthetic signal sets, to check classification accuracy and evidence
// pack schema validity without re-collecting evidence from a live host.
// Grounded on the original evaluation harness's replay_one/compute_metrics
// split: one function scores a single case, a second aggregates a batch.
package replay

import (
	"context"
	"encoding/json"
	"time"

	"srediag/internal/sre/classify"
	"srediag/internal/sre/orchestrator"
	"srediag/internal/sre/schema"
)

// Case is one labeled replay input: a raw signal set and the category a
// correct classification should produce.
type Case struct {
	ID               string             `json:"id"`
	Signals          map[string]float64 `json:"signals"`
	ExpectedCategory string             `json:"expected_category"`
}

// Result is the outcome of replaying one Case against the rule engine.
type Result struct {
	ID        string `json:"id"`
	Predicted string `json:"predicted"`
	Expected  string `json:"expected"`
	Correct   bool   `json:"correct"`
	SchemaOK  bool   `json:"schema_ok"`
}

// Metrics aggregates a batch of Results.
type Metrics struct {
	Total    int `json:"total"`
	Correct  int `json:"correct"`
	SchemaOK int `json:"schema_ok"`
}

// Accuracy is the fraction of cases whose top hypothesis matched the
// expected category; 0 when Total is 0.
func (m Metrics) Accuracy() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.Correct) / float64(m.Total)
}

// SchemaPassRate is the fraction of cases whose synthesized evidence pack
// validated against evidence_pack.schema.json; 0 when Total is 0.
func (m Metrics) SchemaPassRate() float64 {
	if m.Total == 0 {
		return 0
	}
	return float64(m.SchemaOK) / float64(m.Total)
}

// One replays a single case: it classifies the case's signals with rules,
// synthesizes the minimal evidence pack the classification would have
// produced, and validates that pack against validator.
func One(ctx context.Context, rules *classify.Engine, validator *schema.Validator, c Case) (Result, error) {
	signals := c.Signals
	if signals == nil {
		signals = map[string]float64{}
	}
	hypotheses := rules.ClassifyWithEvidence(signals, nil)

	predicted := "UNKNOWN"
	if len(hypotheses) > 0 {
		predicted = hypotheses[0].Category
	}

	pack := orchestrator.EvidencePack{
		Meta: orchestrator.EvidencePackMeta{
			Host:      "replay",
			Service:   "replay",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Snapshots:  []orchestrator.Snapshot{},
		Hypotheses: hypotheses,
		NextChecks: []orchestrator.NextCheck{},
		Signals:    signals,
		Policy: orchestrator.PolicyInfo{
			AllowedRisks: []string{},
			DenyKeywords: []string{},
		},
	}

	payload, err := toPayload(pack)
	if err != nil {
		return Result{}, err
	}

	schemaOK := validator.Validate(ctx, payload) == nil

	return Result{
		ID:        c.ID,
		Predicted: predicted,
		Expected:  c.ExpectedCategory,
		Correct:   predicted == c.ExpectedCategory,
		SchemaOK:  schemaOK,
	}, nil
}

// Batch replays every case in cases and returns the aggregate Metrics
// alongside the per-case Results.
func Batch(ctx context.Context, rules *classify.Engine, validator *schema.Validator, cases []Case) ([]Result, Metrics, error) {
	results := make([]Result, 0, len(cases))
	var m Metrics
	for _, c := range cases {
		r, err := One(ctx, rules, validator, c)
		if err != nil {
			return nil, Metrics{}, err
		}
		results = append(results, r)
		m.Total++
		if r.Correct {
			m.Correct++
		}
		if r.SchemaOK {
			m.SchemaOK++
		}
	}
	return results, m, nil
}

// toPayload round-trips pack through JSON into a map[string]any, the shape
// schema.Validator.Validate requires.
func toPayload(pack orchestrator.EvidencePack) (map[string]any, error) {
	data, err := json.Marshal(pack)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
