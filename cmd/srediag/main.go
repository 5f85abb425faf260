// Command srediag is the CLI entrypoint for the SRE diagnostic agent: it
// wires the registry, guard, executor, evidence store, audit log,
// classifier, planner, and orchestrator together and exposes four
// subcommands (exec, baseline, diagnose, replay) over them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"

	"srediag/internal/sre/audit"
	"srediag/internal/sre/classify"
	"srediag/internal/sre/diagnose"
	"srediag/internal/sre/evidence"
	sreexec "srediag/internal/sre/exec"
	"srediag/internal/sre/orchestrator"
	"srediag/internal/sre/planner"
	"srediag/internal/sre/prompts"
	"srediag/internal/sre/registry"
	"srediag/internal/sre/replay"
	"srediag/internal/sre/report"
	"srediag/internal/sre/schema"
	"srediag/internal/sre/session"
	"srediag/internal/sreconfig"
)

// Exit codes, one per error category; see the error handling design.
const (
	exitOK               = 0
	exitFatal            = 1
	exitConfigError      = 2
	exitPolicyBlocked    = 3
	exitInvalidInput     = 4
	exitRenderFailure    = 5
	exitInvalidExecMode  = 6
)

func main() {
	initLogging()
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: srediag <exec|baseline|diagnose|replay> [flags]")
		return exitConfigError
	}

	switch args[0] {
	case "exec":
		return runExec(args[1:])
	case "baseline":
		return runBaseline(args[1:])
	case "diagnose":
		return runDiagnose(args[1:])
	case "replay":
		return runReplay(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return exitConfigError
	}
}

// commonFlags holds the flags shared by every subcommand.
type commonFlags struct {
	host        string
	service     string
	pid         string
	execMode    string
	windowMin   int
	configDir   string
	auditPath   string
	baseDir     string
}

func bindCommon(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.host, "host", "", "target host")
	fs.StringVar(&c.service, "service", "", "target service name")
	fs.StringVar(&c.pid, "pid", "", "target process id")
	fs.StringVar(&c.execMode, "exec-mode", "auto", "local|ssh|k8s|auto")
	fs.IntVar(&c.windowMin, "window-minutes", 30, "collection window in minutes")
	fs.StringVar(&c.configDir, "config-dir", "config", "directory containing commands.yaml, routing.yaml, rules.yaml, policy.yaml")
	fs.StringVar(&c.auditPath, "audit-log", os.Getenv("OPS_AGENT_AUDIT_LOG"), "audit JSONL path")
	fs.StringVar(&c.baseDir, "base-dir", "evidence", "evidence store base directory")
	return c
}

func loadRuntime(c *commonFlags) (*sreconfig.Config, *orchestrator.Orchestrator, session.Session, int) {
	cfg, err := sreconfig.LoadFiles([]string{
		c.configDir + "/commands.yaml",
		c.configDir + "/routing.yaml",
		c.configDir + "/rules.yaml",
		c.configDir + "/policy.yaml",
	})
	if err != nil {
		slog.Error("config load failed", "err", err)
		return nil, nil, session.Session{}, exitConfigError
	}

	reg, err := cfg.BuildRegistry()
	if err != nil {
		slog.Error("registry build failed", "err", err)
		return nil, nil, session.Session{}, exitConfigError
	}

	if c.host == "" {
		slog.Error("missing required flag -host")
		return nil, nil, session.Session{}, exitInvalidInput
	}

	execMode := session.ExecMode(c.execMode)
	platform := session.ResolvePlatform(execMode, osGOOS())
	sess := session.Session{
		SessionID:     "sess_" + uuid.New().String()[:8],
		Host:          c.host,
		Service:       c.service,
		PID:           c.pid,
		WindowMinutes: c.windowMin,
		ExecMode:      execMode,
		Platform:      platform,
	}
	if err := sess.Validate(); err != nil {
		slog.Error("invalid session parameters", "err", err)
		return nil, nil, session.Session{}, exitInvalidInput
	}

	var executor sreexec.Executor
	switch execMode {
	case session.ExecModeLocal, session.ExecModeAuto:
		executor = sreexec.Local{}
	case session.ExecModeSSH:
		executor = sreexec.SSH{Config: sreexec.SSHConfig{
			User:     os.Getenv("SRE_SSH_USER"),
			Password: os.Getenv("SRE_SSH_PASSWORD"),
			Port:     sshPort(),
		}}
	case session.ExecModeK8s:
		executor = &sreexec.Kubernetes{Target: sreexec.K8sTarget{
			Namespace: os.Getenv("SRE_K8S_NAMESPACE"),
			Pod:       os.Getenv("SRE_K8S_POD"),
			Container: os.Getenv("SRE_K8S_CONTAINER"),
		}}
	default:
		slog.Error("invalid exec-mode", "exec_mode", c.execMode)
		return nil, nil, session.Session{}, exitInvalidExecMode
	}

	evStore, err := evidence.New(c.baseDir, sess.SessionID)
	if err != nil {
		slog.Error("evidence store init failed", "err", err)
		return nil, nil, session.Session{}, exitConfigError
	}

	auditPath := c.auditPath
	if auditPath == "" {
		auditPath = c.baseDir + "/audit.jsonl"
	}
	auditLog, err := audit.Open(auditPath)
	if err != nil {
		slog.Error("audit log open failed", "err", err)
		return nil, nil, session.Session{}, exitConfigError
	}

	orch := &orchestrator.Orchestrator{
		Registry: reg,
		Executor: executor,
		Evidence: evStore,
		Audit:    auditLog,
		Rules:    cfg.RuleEngine(),
		Policy: orchestrator.Policy{
			AllowedRisks: cfg.Policy.AllowedRisks,
			DenyKeywords: cfg.Policy.DenyKeywords,
		},
		Routing:  cfg.Routing,
		Baseline: cfg.Baseline.Resolve(string(platform)),
		Session:  sess,
	}

	return cfg, orch, sess, exitOK
}

func runExec(args []string) int {
	fs := flag.NewFlagSet("exec", flag.ContinueOnError)
	c := bindCommon(fs)
	cmdID := fs.String("cmd-id", "", "command id from the registry")
	timeoutSec := fs.Int("timeout", 30, "command timeout in seconds")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if *cmdID == "" {
		fmt.Fprintln(os.Stderr, "exec: -cmd-id is required")
		return exitConfigError
	}

	_, orch, _, code := loadRuntime(c)
	if code != exitOK {
		return code
	}

	ctx := context.Background()
	result, err := orch.ExecCmd(ctx, *cmdID, time.Duration(*timeoutSec)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "exec: %v\n", err)
		var missing *registry.ErrMissingParameter
		if errors.As(err, &missing) {
			return exitRenderFailure
		}
		return exitConfigError
	}
	if result.Blocked {
		fmt.Println("blocked_by_policy")
		return exitPolicyBlocked
	}
	fmt.Println(result.Redacted)
	return exitOK
}

func runBaseline(args []string) int {
	fs := flag.NewFlagSet("baseline", flag.ContinueOnError)
	c := bindCommon(fs)
	timeoutSec := fs.Int("timeout", 30, "per-command timeout in seconds")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	_, orch, _, code := loadRuntime(c)
	if code != exitOK {
		return code
	}

	ctx := context.Background()
	pack, err := orch.Run(ctx, time.Duration(*timeoutSec)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "baseline: %v\n", err)
		return exitConfigError
	}
	printJSON(pack)
	return exitOK
}

func runDiagnose(args []string) int {
	fs := flag.NewFlagSet("diagnose", flag.ContinueOnError)
	c := bindCommon(fs)
	timeoutSec := fs.Int("timeout", 30, "per-command timeout in seconds")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	_, orch, _, code := loadRuntime(c)
	if code != exitOK {
		return code
	}

	ctx := context.Background()
	cmdTimeout := time.Duration(*timeoutSec) * time.Second

	pack, err := orch.Run(ctx, cmdTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diagnose: baseline: %v\n", err)
		return exitConfigError
	}

	plannerClient, code2 := buildPlanner()
	if code2 != exitOK {
		return code2
	}

	result, err := diagnose.Run(ctx, orch, orch.Registry, pack, plannerClient, prompts.BuildPlanPrompt, diagnose.DefaultBudget, cmdTimeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diagnose: %v\n", err)
		return exitConfigError
	}
	slog.Info("diagnose loop finished", "stop_reason", result.StopReason, "rounds", len(result.Rounds))

	reportSchema, err := schema.Load("report.schema.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "diagnose: load report schema: %v\n", err)
		return exitRenderFailure
	}

	rpt, err := report.Build(ctx, pack, plannerClient, prompts.BuildReportPrompt, report.Policy{}, reportSchema)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diagnose: build report: %v\n", err)
		return exitRenderFailure
	}

	printJSON(rpt)
	return exitOK
}

// runReplay is the offline evaluation harness: it replays a batch of
// labeled signal sets through the rule engine and reports classification
// accuracy and evidence-pack schema pass rate, with no live host/LLM
// access required.
func runReplay(args []string) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	casesPath := fs.String("cases", "", "path to a JSON array of replay cases ({id, signals, expected_category})")
	rulesPath := fs.String("rules", "", "optional rules.yaml overriding classify.DefaultRules")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if *casesPath == "" {
		fmt.Fprintln(os.Stderr, "replay: -cases is required")
		return exitConfigError
	}

	rules := classify.NewEngine(nil)
	if *rulesPath != "" {
		cfg, err := sreconfig.LoadFiles([]string{*rulesPath})
		if err != nil {
			slog.Error("replay: rules load failed", "err", err)
			return exitConfigError
		}
		rules = cfg.RuleEngine()
	}

	data, err := os.ReadFile(*casesPath)
	if err != nil {
		slog.Error("replay: read cases failed", "err", err)
		return exitConfigError
	}
	var cases []replay.Case
	if err := json.Unmarshal(data, &cases); err != nil {
		slog.Error("replay: parse cases failed", "err", err)
		return exitInvalidInput
	}

	validator, err := schema.Load("evidence_pack.schema.json")
	if err != nil {
		slog.Error("replay: load evidence_pack schema failed", "err", err)
		return exitRenderFailure
	}

	results, metrics, err := replay.Batch(context.Background(), rules, validator, cases)
	if err != nil {
		slog.Error("replay: batch failed", "err", err)
		return exitFatal
	}

	printJSON(struct {
		Metrics replay.Metrics  `json:"metrics"`
		Results []replay.Result `json:"results"`
	}{Metrics: metrics, Results: results})
	return exitOK
}

func buildPlanner() (planner.Planner, int) {
	apiKey := os.Getenv("SRE_LLM_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "diagnose: SRE_LLM_API_KEY is required")
		return nil, exitConfigError
	}
	model := os.Getenv("SRE_LLM_MODEL")
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return planner.NewAnthropicClient(apiKey, anthropic.Model(model), 4096), exitOK
}

func printJSON(v any) {
	printJSONTo(os.Stdout, v)
}

func printJSONTo(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("encode output failed", "err", err)
	}
}

func osGOOS() string {
	return runtime.GOOS
}

func sshPort() int {
	raw := os.Getenv("SRE_SSH_PORT")
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return port
}
