// Package prompts embeds the planner instruction templates and builds the
// exact prompt text sent to the LLM for each round of the diagnose loop
// and for the final report.
package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"srediag/internal/sre/diagnose"
	"srediag/internal/sre/orchestrator"
)

//go:embed plan_preamble.txt
var PlanPreamble string

//go:embed report_preamble.txt
var ReportPreamble string

// BuildPlanPrompt renders the hard-constraint preamble followed by the
// current state, the allowed command pool, already-executed commands, and
// the active budget. The reply shape is given only by the example object in
// PlanPreamble; the plan.schema.json document is not included.
func BuildPlanPrompt(pack *orchestrator.EvidencePack, allowedPool []string, executed []string, budget diagnose.Budget) string {
	primary := ""
	if len(pack.Hypotheses) > 0 {
		primary = pack.Hypotheses[0].Category
	}
	snapshots := pack.Snapshots
	if len(snapshots) > 20 {
		snapshots = snapshots[len(snapshots)-20:]
	}
	state, _ := json.Marshal(map[string]any{
		"meta":             pack.Meta,
		"primary_category": primary,
		"hypotheses":       pack.Hypotheses,
		"signals":          pack.Signals,
		"snapshots":        snapshots,
	})
	budgetJSON, _ := json.Marshal(map[string]any{
		"max_rounds":           budget.MaxRounds,
		"max_cmds_per_round":   budget.MaxCmdsPerRound,
		"max_total_cmds":       budget.MaxTotalCmds,
		"confidence_threshold": budget.ConfidenceThreshold,
	})
	allowedJSON, _ := json.Marshal(allowedPool)
	executedJSON, _ := json.Marshal(executed)

	return fmt.Sprintf(
		"%s\nstate=%s\nallowed_cmd_pool=%s\nalready_executed_cmd_ids=%s\nbudget=%s\n",
		PlanPreamble, state, allowedJSON, executedJSON, budgetJSON,
	)
}

// BuildReportPrompt renders the report preamble followed by the final
// evidence pack the LLM must summarize into a DiagnosisReport.
func BuildReportPrompt(pack *orchestrator.EvidencePack) string {
	evidenceJSON, _ := json.Marshal(pack)
	return fmt.Sprintf("%s\nevidence_pack=%s\n", ReportPreamble, evidenceJSON)
}
