package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"srediag/internal/sre/audit"
	"srediag/internal/sre/classify"
	"srediag/internal/sre/evidence"
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

func newTestOrchestrator(t *testing.T, outputs map[string]string) *Orchestrator {
	t.Helper()
	dir := t.TempDir()

	reg, err := registry.New([]registry.CommandMeta{
		{CmdID: "uname", Cmd: "uname -a", Risk: registry.RiskReadOnly, Platform: []string{"any"}},
		{CmdID: "uptime", Cmd: "uptime", Risk: registry.RiskReadOnly, Platform: []string{"any"}},
		{CmdID: "df", Cmd: "df -h", Risk: registry.RiskReadOnly, Platform: []string{"any"}},
		{CmdID: "kill9", Cmd: "kill -9 {pid}", Risk: registry.RiskHigh, Platform: []string{"any"}},
	})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	sess := session.Session{SessionID: "sess_test", Host: "localhost", Platform: session.PlatformLinux}
	ev, err := evidence.New(dir, sess.SessionID)
	if err != nil {
		t.Fatalf("evidence.New: %v", err)
	}
	auditLog, err := audit.Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}

	return &Orchestrator{
		Registry: reg,
		Executor: fakeExecutor{outputs: outputs},
		Evidence: ev,
		Audit:    auditLog,
		Rules:    classify.NewEngine(nil),
		Policy:   Policy{AllowedRisks: []string{"READ_ONLY", "LOW"}, DenyKeywords: []string{"kill -9"}},
		Baseline: []string{"uname", "uptime", "df"},
		Session:  sess,
	}
}

func TestExecCmdBlocksDeniedCommand(t *testing.T) {
	orch := newTestOrchestrator(t, nil)
	result, err := orch.ExecCmd(context.Background(), "kill9", time.Second)
	if err != nil {
		t.Fatalf("ExecCmd: %v", err)
	}
	if !result.Blocked {
		t.Fatal("expected kill9 to be blocked by policy")
	}

	entries, err := orch.Audit.ReadSession("sess_test")
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	if len(entries) != 1 || entries[0].Decision != "blocked_by_policy" {
		t.Errorf("expected one blocked_by_policy audit entry, got %+v", entries)
	}
}

func TestExecCmdPersistsThreeLayers(t *testing.T) {
	orch := newTestOrchestrator(t, map[string]string{"uptime": "load average: 1.0, 2.0, 3.0"})
	result, err := orch.ExecCmd(context.Background(), "uptime", time.Second)
	if err != nil {
		t.Fatalf("ExecCmd: %v", err)
	}
	if result.Blocked || result.Skipped {
		t.Fatalf("expected uptime to execute, got %+v", result)
	}
	if result.OutputHash == "" {
		t.Error("expected a non-empty output hash")
	}
	if result.Signals["loadavg_1m"] != 1.0 {
		t.Errorf("expected loadavg_1m signal, got %+v", result.Signals)
	}
}

func TestRunBaselineAndClassifyCPU(t *testing.T) {
	orch := newTestOrchestrator(t, map[string]string{
		"uname -a": "Linux",
		"uptime":   "load average: 6.0, 5.5, 5.0",
		"df -h":    "Filesystem Size Used Avail",
	})
	pack, err := orch.Run(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pack.Hypotheses) == 0 || pack.Hypotheses[0].Category != "CPU" {
		t.Errorf("expected CPU hypothesis from high loadavg, got %+v", pack.Hypotheses)
	}
}
