package diagnose

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"srediag/internal/sre/audit"
	"srediag/internal/sre/classify"
	"srediag/internal/sre/evidence"
	"srediag/internal/sre/orchestrator"
	"srediag/internal/sre/registry"
	"srediag/internal/sre/session"
)

type fakeExecutor struct {
	outputs map[string]string
}

func (f fakeExecutor) Run(ctx context.Context, host, command string, timeout time.Duration) string {
	if out, ok := f.outputs[command]; ok {
		return out
	}
	return ""
}

type scriptedPlanner struct {
	replies []map[string]any
	calls   int
}

func (p *scriptedPlanner) GenerateJSON(ctx context.Context, prompt string, temperature float64) (map[string]any, error) {
	i := p.calls
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	p.calls++
	return p.replies[i], nil
}

func newTestOrchestrator(t *testing.T, outputs map[string]string) (*orchestrator.Orchestrator, *registry.Registry) {
	t.Helper()
	dir := t.TempDir()

	reg, err := registry.New([]registry.CommandMeta{
		{CmdID: "uname", Cmd: "uname -a", Risk: registry.RiskReadOnly, Platform: []string{"any"}},
		{CmdID: "uptime", Cmd: "uptime", Risk: registry.RiskReadOnly, Platform: []string{"any"}},
		{CmdID: "df", Cmd: "df -h", Risk: registry.RiskReadOnly, Platform: []string{"any"}},
		{CmdID: "iostat", Cmd: "iostat -x 1 2", Risk: registry.RiskReadOnly, Platform: []string{"any"}},
	})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	sess := session.Session{SessionID: "sess_diag", Host: "localhost", Platform: session.PlatformLinux}
	ev, err := evidence.New(dir, sess.SessionID)
	if err != nil {
		t.Fatalf("evidence.New: %v", err)
	}
	auditLog, err := audit.Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}

	orch := &orchestrator.Orchestrator{
		Registry: reg,
		Executor: fakeExecutor{outputs: outputs},
		Evidence: ev,
		Audit:    auditLog,
		Rules:    classify.NewEngine(nil),
		Policy:   orchestrator.Policy{AllowedRisks: []string{"READ_ONLY", "LOW"}},
		Baseline: []string{"uname", "uptime", "df"},
		Session:  sess,
	}
	return orch, reg
}

// loopRouting is installed only after orch.Run: Run itself executes the
// routed commands of the primary category, which would leave nothing in the
// loop's allowed pool.
var loopRouting = orchestrator.RoutingTable{"UNKNOWN": {"iostat"}, "IO_WAIT": {"iostat"}}

func noopPrompt(pack *orchestrator.EvidencePack, allowedPool []string, executed []string, budget Budget) string {
	return "prompt"
}

func TestRunStopsOnPlannerDecision(t *testing.T) {
	orch, reg := newTestOrchestrator(t, map[string]string{
		"uname -a": "Linux", "uptime": "load average: 1.0, 1.0, 1.0", "df -h": "Filesystem",
	})
	pack, err := orch.Run(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	orch.Routing = loopRouting

	planner := &scriptedPlanner{replies: []map[string]any{
		{"decision": "STOP"},
	}}

	result, err := Run(context.Background(), orch, reg, pack, planner, noopPrompt, DefaultBudget, time.Second)
	if err != nil {
		t.Fatalf("diagnose Run: %v", err)
	}
	if result.StopReason != StopPlannerDecision {
		t.Errorf("expected llm_stop, got %s", result.StopReason)
	}
	if len(result.Rounds) != 0 {
		t.Errorf("expected no rounds recorded when the planner stops immediately, got %+v", result.Rounds)
	}
}

func TestRunStopsOnConfidenceThreshold(t *testing.T) {
	orch, reg := newTestOrchestrator(t, map[string]string{
		"uname -a":     "Linux",
		"uptime":       "load average: 1.0, 1.0, 1.0",
		"df -h":        "Filesystem",
		"iostat -x 1 2": "avg-cpu:  %user   %nice %system %iowait   %steal   %idle\n   2.00    0.00    1.00   42.00     0.00   55.00",
	})
	pack, err := orch.Run(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	orch.Routing = loopRouting

	planner := &scriptedPlanner{replies: []map[string]any{
		{"decision": "CONTINUE", "next_cmds": []any{map[string]any{"cmd_id": "iostat", "rationale": "check disk io"}}},
	}}

	budget := DefaultBudget
	budget.ConfidenceThreshold = 0.75

	result, err := Run(context.Background(), orch, reg, pack, planner, noopPrompt, budget, time.Second)
	if err != nil {
		t.Fatalf("diagnose Run: %v", err)
	}
	if result.StopReason != StopConfidenceThreshold {
		t.Errorf("expected confidence_threshold_reached, got %s", result.StopReason)
	}
	if len(result.Rounds) != 1 {
		t.Fatalf("expected exactly one round, got %+v", result.Rounds)
	}
	if len(result.Rounds[0].Accepted) != 1 || result.Rounds[0].Accepted[0].CmdID != "iostat" {
		t.Errorf("expected iostat to be accepted, got %+v", result.Rounds[0])
	}
}

func TestRunStopsOnMaxRoundsReached(t *testing.T) {
	orch, reg := newTestOrchestrator(t, map[string]string{
		"uname -a": "Linux", "uptime": "load average: 1.0, 1.0, 1.0", "df -h": "Filesystem",
	})
	pack, err := orch.Run(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	orch.Routing = loopRouting

	planner := &scriptedPlanner{replies: []map[string]any{
		{"decision": "CONTINUE", "next_cmds": []any{}},
	}}

	result, err := Run(context.Background(), orch, reg, pack, planner, noopPrompt, DefaultBudget, time.Second)
	if err != nil {
		t.Fatalf("diagnose Run: %v", err)
	}
	if result.StopReason != StopMaxRoundsReached {
		t.Errorf("expected max_rounds_reached, got %s", result.StopReason)
	}
	if len(result.Rounds) != DefaultBudget.MaxRounds {
		t.Errorf("expected %d rounds recorded, got %d", DefaultBudget.MaxRounds, len(result.Rounds))
	}
}

func TestRunStopsOnTotalCmdsExhausted(t *testing.T) {
	orch, reg := newTestOrchestrator(t, map[string]string{
		"uname -a": "Linux", "uptime": "load average: 1.0, 1.0, 1.0", "df -h": "Filesystem",
	})
	pack, err := orch.Run(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	planner := &scriptedPlanner{replies: []map[string]any{
		{"decision": "CONTINUE", "next_cmds": []any{}},
	}}

	budget := DefaultBudget
	budget.MaxTotalCmds = len(pack.Snapshots) + len(pack.NextChecks)

	result, err := Run(context.Background(), orch, reg, pack, planner, noopPrompt, budget, time.Second)
	if err != nil {
		t.Fatalf("diagnose Run: %v", err)
	}
	if result.StopReason != StopTotalCmdsExhausted {
		t.Errorf("expected max_total_cmds_exceeded, got %s", result.StopReason)
	}
	if len(result.Rounds) != 0 {
		t.Errorf("expected no rounds once the total command budget is already spent, got %+v", result.Rounds)
	}
}
