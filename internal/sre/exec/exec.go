// Package exec implements the three Executor backends the orchestrator can
// mediate commands through: local, SSH, and in-pod Kubernetes exec. An
// Executor never returns an error for a command that ran but failed or
// timed out — it returns a textual marker instead, so the orchestrator's
// evidence pipeline always has something to redact, hash, and persist.
package exec

import (
	"context"
	"fmt"
	"time"
)

// Executor runs a single shell command against host and returns its
// combined stdout+stderr, or a timeout marker in place of the output when
// the command runs past timeout.
type Executor interface {
	Run(ctx context.Context, host, command string, timeout time.Duration) string
}

func timeoutMarker(timeout time.Duration) string {
	return fmt.Sprintf("command timeout after %ds", int(timeout.Seconds()))
}

func errorMarker(err error) string {
	return "command error: " + err.Error()
}
