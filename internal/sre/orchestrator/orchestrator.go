// Package orchestrator implements the deterministic baseline→classify→
// targeted→reclassify flow, and exec_cmd, the single mediated path every
// command — baseline, targeted, or LLM-proposed — is executed through.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"srediag/internal/sre/audit"
	"srediag/internal/sre/classify"
	"srediag/internal/sre/evidence"
	"srediag/internal/sre/exec"
	"srediag/internal/sre/guard"
	"srediag/internal/sre/parse"
	"srediag/internal/sre/redact"
	"srediag/internal/sre/registry"
	"srediag/internal/sre/session"
)

// Policy bundles the allowed-risk and deny-keyword lists the guard
// evaluates every command against.
type Policy struct {
	AllowedRisks []string
	DenyKeywords []string
}

// RoutingTable maps a classified category to the targeted commands run
// after baseline collection and classification.
type RoutingTable map[string][]string

// Orchestrator wires the registry, guard, executor, redactor, evidence
// store, audit log, parsers, and rule engine into one mediated execution
// path.
type Orchestrator struct {
	Registry  *registry.Registry
	Executor  exec.Executor
	Evidence  *evidence.Store
	Audit     *audit.Log
	Rules     *classify.Engine
	Policy    Policy
	Routing   RoutingTable
	Baseline  []string

	Session session.Session
}

// CommandResult is what exec_cmd returns for one mediated execution.
type CommandResult struct {
	CmdID      string
	Redacted   string
	AuditRef   string
	OutputHash string
	Summary    string
	Signals    map[string]float64
	Blocked    bool
	Skipped    bool
	TimedOut   bool
	Empty      bool
}

// ExecCmd is the single mediated execution path: policy check, platform
// filter, parameter validation, rendering, timed execution, redaction,
// hashing, three-layer persistence, parsing, signal extraction, and audit.
func (o *Orchestrator) ExecCmd(ctx context.Context, cmdID string, timeout time.Duration) (CommandResult, error) {
	meta, err := o.Registry.Get(cmdID)
	if err != nil {
		return CommandResult{}, err
	}

	if !guard.IsCommandAllowed(meta, o.Policy.AllowedRisks, o.Policy.DenyKeywords) {
		o.auditEntry(audit.Entry{
			SessionID: o.Session.SessionID,
			CmdID:     cmdID,
			Host:      o.Session.Host,
			Decision:  "blocked_by_policy",
			Reason:    "risk_not_allowed_or_deny_keyword",
		})
		slog.Warn("command blocked by policy", "cmd_id", cmdID, "session_id", o.Session.SessionID)
		return CommandResult{CmdID: cmdID, Blocked: true}, nil
	}

	if !meta.SupportsPlatform(string(o.Session.Platform)) {
		slog.Debug("command skipped: platform mismatch", "cmd_id", cmdID, "platform", o.Session.Platform)
		return CommandResult{CmdID: cmdID, Skipped: true}, nil
	}

	rendered, err := registry.Render(meta, o.Session.Service, o.Session.PID)
	if err != nil {
		return CommandResult{}, err
	}

	start := time.Now()
	rawOutput := o.Executor.Run(ctx, o.Session.Host, rendered, timeout)
	duration := time.Since(start)

	redacted, _, _ := redact.Redact(rawOutput)
	outputHash := redact.HashText(redacted)

	rawRef, err := o.Evidence.PutRaw(cmdID, rawOutput)
	if err != nil {
		return CommandResult{}, fmt.Errorf("orchestrator: persist raw: %w", err)
	}
	redactedRef, err := o.Evidence.PutRedacted(cmdID, redacted)
	if err != nil {
		return CommandResult{}, fmt.Errorf("orchestrator: persist redacted: %w", err)
	}

	parsed := parse.Parse(cmdID, redacted)
	parsedRef, err := o.Evidence.PutParsed(cmdID, parsed)
	if err != nil {
		return CommandResult{}, fmt.Errorf("orchestrator: persist parsed: %w", err)
	}

	signals := parse.ExtractSignals(cmdID, parsed)

	o.auditEntry(audit.Entry{
		SessionID:   o.Session.SessionID,
		CmdID:       cmdID,
		Command:     rendered,
		Host:        o.Session.Host,
		Decision:    "executed",
		OutputHash:  outputHash,
		DurationMS:  duration.Milliseconds(),
		RawRef:      rawRef,
		RedactedRef: redactedRef,
		ParsedRef:   parsedRef,
	})

	if _, err := o.Evidence.WriteIndex(fmt.Sprintf("cmd_%s", cmdID), map[string]any{
		"cmd_id":      cmdID,
		"output_hash": outputHash,
		"redacted_ref": redactedRef,
		"signals":     signals,
	}); err != nil {
		slog.Warn("failed to write per-command index", "cmd_id", cmdID, "err", err)
	}

	return CommandResult{
		CmdID:      cmdID,
		Redacted:   redacted,
		AuditRef:   redactedRef,
		OutputHash: outputHash,
		Summary:    firstLine(redacted),
		Signals:    signals,
		TimedOut:   strings.HasPrefix(rawOutput, "command timeout after"),
		Empty:      strings.TrimSpace(redacted) == "",
	}, nil
}

// firstLine returns the first non-empty line of text, truncated to a
// snapshot-friendly length — it is never the full output, which lives in
// the evidence store and is referenced by audit_ref.
func firstLine(text string) string {
	const maxLen = 200
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if len(trimmed) > maxLen {
			trimmed = trimmed[:maxLen]
		}
		return trimmed
	}
	return ""
}

func (o *Orchestrator) auditEntry(e audit.Entry) {
	e.Timestamp = time.Now()
	if o.Audit == nil {
		return
	}
	if err := o.Audit.Write(e); err != nil {
		slog.Error("audit write failed", "err", err)
	}
}

// NextCheck is an item that could not be satisfied this round and is
// surfaced for a human or a later round to follow up on.
type NextCheck struct {
	CmdID   string `json:"cmd_id"`
	Purpose string `json:"purpose"`
}

// Well-known NextCheck purposes; see §7 Error Handling.
const (
	NextCheckBlockedOrFailed  = "blocked_or_failed"
	NextCheckPlatformMismatch = "platform_mismatch"
)

// Metrics counts the non-fatal execution outcomes collected during a run:
// commands that timed out, returned empty output, or were platform-skipped.
type Metrics struct {
	Timeouts     int `json:"timeouts"`
	EmptyOutputs int `json:"empty_outputs"`
	Skipped      int `json:"skipped"`
}

// PolicyInfo is the policy snapshot embedded in an EvidencePack so that
// downstream consumers (the Report Builder) can re-apply it without a
// side-channel back to the running Orchestrator.
type PolicyInfo struct {
	AllowedRisks []string `json:"allowed_risks"`
	DenyKeywords []string `json:"deny_keywords"`
}

// Snapshot is the evidence-pack-visible record of one executed command,
// omitting raw/redacted text (that lives under the evidence store's own
// directory tree, referenced by AuditRef).
type Snapshot struct {
	CmdID    string `json:"cmd_id"`
	Signal   string `json:"signal,omitempty"`
	Summary  string `json:"summary,omitempty"`
	AuditRef string `json:"audit_ref,omitempty"`
}

// EvidencePack is the full baseline→classify→targeted→reclassify output,
// matching the on-disk evidence pack JSON shape (spec §6.3).
type EvidencePack struct {
	Meta       EvidencePackMeta       `json:"meta"`
	Snapshots  []Snapshot             `json:"snapshots"`
	Hypotheses []classify.Hypothesis  `json:"hypothesis"`
	NextChecks []NextCheck            `json:"next_checks"`
	Signals    map[string]float64     `json:"signals"`
	Policy     PolicyInfo             `json:"policy"`
	Metrics    Metrics                `json:"metrics"`
}

// EvidencePackMeta carries collection metadata alongside the evidence.
type EvidencePackMeta struct {
	Host                    string `json:"host"`
	Service                 string `json:"service,omitempty"`
	Env                     string `json:"env,omitempty"`
	SessionID               string `json:"session_id"`
	Platform                string `json:"platform"`
	Timestamp               string `json:"timestamp"`
	CollectionWindowMinutes int    `json:"collection_window_minutes,omitempty"`
	AgentVersion            string `json:"agent_version,omitempty"`
}

// AgentVersion is stamped into every evidence pack's meta.
const AgentVersion = "srediag/1"

// Run executes the full baseline→classify→targeted→reclassify flow and
// returns the resulting evidence pack.
func (o *Orchestrator) Run(ctx context.Context, timeout time.Duration) (*EvidencePack, error) {
	if err := o.Session.Validate(); err != nil {
		return nil, err
	}

	pack := &EvidencePack{
		Meta: EvidencePackMeta{
			Host:                    o.Session.Host,
			Service:                 o.Session.Service,
			Env:                     os.Getenv("SRE_ENV"),
			SessionID:               o.Session.SessionID,
			Platform:                string(o.Session.Platform),
			Timestamp:               time.Now().UTC().Format(time.RFC3339),
			CollectionWindowMinutes: o.Session.WindowMinutes,
			AgentVersion:            AgentVersion,
		},
		Signals: map[string]float64{},
		Policy: PolicyInfo{
			AllowedRisks: o.Policy.AllowedRisks,
			DenyKeywords: o.Policy.DenyKeywords,
		},
	}

	baseline := o.Baseline
	if len(baseline) == 0 {
		baseline = []string{"uname", "uptime", "df"}
	}

	executed := map[string]bool{}
	signalRefs := map[string]string{}
	for _, cmdID := range baseline {
		if err := o.execAndMerge(ctx, cmdID, timeout, pack, executed, signalRefs); err != nil {
			return nil, err
		}
	}

	pack.Hypotheses = o.Rules.ClassifyWithEvidence(pack.Signals, signalRefs)

	if len(pack.Hypotheses) > 0 {
		primary := pack.Hypotheses[0].Category
		for _, cmdID := range o.Routing[primary] {
			if executed[cmdID] {
				continue
			}
			if err := o.execAndMerge(ctx, cmdID, timeout, pack, executed, signalRefs); err != nil {
				return nil, err
			}
		}
		pack.Hypotheses = o.Rules.ClassifyWithEvidence(pack.Signals, signalRefs)
	}

	if _, err := o.Evidence.WriteIndex("evidence_pack", pack); err != nil {
		slog.Warn("failed to write evidence pack index", "err", err)
	}

	return pack, nil
}

// execAndMerge runs one command through ExecCmd and folds its outcome into
// pack: a real execution becomes a Snapshot and merges its signals; a
// policy block or platform mismatch instead becomes a NextCheck, per §7.
func (o *Orchestrator) execAndMerge(ctx context.Context, cmdID string, timeout time.Duration, pack *EvidencePack, executed map[string]bool, signalRefs map[string]string) error {
	result, err := o.ExecCmd(ctx, cmdID, timeout)
	if err != nil {
		return err
	}
	executed[cmdID] = true

	switch {
	case result.Blocked:
		pack.NextChecks = append(pack.NextChecks, NextCheck{CmdID: cmdID, Purpose: NextCheckBlockedOrFailed})
	case result.Skipped:
		pack.NextChecks = append(pack.NextChecks, NextCheck{CmdID: cmdID, Purpose: NextCheckPlatformMismatch})
		pack.Metrics.Skipped++
	default:
		pack.Snapshots = append(pack.Snapshots, Snapshot{
			CmdID:    cmdID,
			Signal:   primarySignal(result.Signals),
			Summary:  result.Summary,
			AuditRef: result.AuditRef,
		})
		if result.TimedOut {
			pack.Metrics.Timeouts++
		}
		if result.Empty {
			pack.Metrics.EmptyOutputs++
		}
		for k, v := range result.Signals {
			pack.Signals[k] = v
			signalRefs[k] = result.AuditRef
		}
	}
	return nil
}

// primarySignal picks a deterministic, human-readable representative from
// a command's extracted signals for the Snapshot's "signal" field.
func primarySignal(signals map[string]float64) string {
	if len(signals) == 0 {
		return ""
	}
	keys := make([]string, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s=%.2f", keys[0], signals[keys[0]])
}
