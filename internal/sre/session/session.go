// Package session holds the value types shared across the diagnostic
// pipeline: the session identity an operator starts, and the platform it
// targets.
package session

import (
	"fmt"
	"regexp"
)

var serviceRE = regexp.MustCompile(`^[A-Za-z0-9_.@-]+$`)

// Platform identifies where commands in a Session execute.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformDarwin  Platform = "darwin"
	PlatformK8s     Platform = "k8s"
	PlatformUnknown Platform = "unknown"
)

// ExecMode selects which Executor backs a Session.
type ExecMode string

const (
	ExecModeLocal ExecMode = "local"
	ExecModeSSH   ExecMode = "ssh"
	ExecModeK8s   ExecMode = "k8s"
	ExecModeAuto  ExecMode = "auto"
)

// Session identifies one diagnostic run: a host/service pair under
// investigation, the window of interest, and the execution context that
// every command in the run is mediated through.
type Session struct {
	SessionID      string   `json:"session_id"`
	Host           string   `json:"host"`
	Service        string   `json:"service,omitempty"`
	PID            string   `json:"pid,omitempty"`
	WindowMinutes  int      `json:"window_minutes"`
	ExecMode       ExecMode `json:"exec_mode"`
	Platform       Platform `json:"platform"`
	KubeContext    string   `json:"kube_context,omitempty"`
	KubeNamespace  string   `json:"kube_namespace,omitempty"`
	KubePod        string   `json:"kube_pod,omitempty"`
	KubeContainer  string   `json:"kube_container,omitempty"`
}

// Validate checks the structural invariants a Session must satisfy before
// any command executes against it: a non-empty session and host ID, and a
// service name / pid that, if present, match the conservative charsets the
// command templates are allowed to interpolate.
func (s Session) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session_id must not be empty")
	}
	if s.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if s.Service != "" && !serviceRE.MatchString(s.Service) {
		return fmt.Errorf("invalid service name %q", s.Service)
	}
	if s.PID != "" && !isDigits(s.PID) {
		return fmt.Errorf("invalid pid %q", s.PID)
	}
	return nil
}

// ResolvePlatform implements the exec-mode-driven platform auto-detection:
// k8s execution resolves to k8s; local execution (and auto, which runs
// through the local executor) on a darwin host resolves to darwin;
// everything else (ssh, or local/auto on non-darwin) resolves to linux.
func ResolvePlatform(mode ExecMode, goos string) Platform {
	switch mode {
	case ExecModeK8s:
		return PlatformK8s
	case ExecModeLocal, ExecModeAuto:
		if goos == "darwin" {
			return PlatformDarwin
		}
		return PlatformLinux
	default:
		return PlatformLinux
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
