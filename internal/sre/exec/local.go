package exec

import (
	"bytes"
	"context"
	osexec "os/exec"
	"time"
)

// Local runs commands on the current host via a shell subprocess. host is
// accepted for interface symmetry with SSH/Kubernetes but ignored.
type Local struct{}

// Run executes command through "bash -c" with a bounded timeout.
func (Local) Run(ctx context.Context, host, command string, timeout time.Duration) string {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := osexec.CommandContext(runCtx, "bash", "-c", command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return timeoutMarker(timeout)
	}
	if err != nil {
		if out.Len() > 0 {
			return out.String()
		}
		return errorMarker(err)
	}
	return out.String()
}
