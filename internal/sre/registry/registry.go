// Package registry holds the whitelist of commands the diagnostic agent is
// permitted to run, along with the templating and parameter-validation
// rules applied before any command reaches an Executor.
package registry

import (
	"fmt"
	"strings"
)

// Risk is the declared risk class of a command, matched against a policy's
// allowed-risk list before execution.
type Risk string

const (
	RiskReadOnly Risk = "READ_ONLY"
	RiskLow      Risk = "LOW"
	RiskMedium   Risk = "MEDIUM"
	RiskHigh     Risk = "HIGH"
)

// CommandMeta describes one whitelisted command: its template, declared
// risk, and the platforms it is valid on.
type CommandMeta struct {
	CmdID    string   `yaml:"cmd_id" json:"cmd_id"`
	Cmd      string   `yaml:"cmd" json:"cmd"`
	Risk     Risk     `yaml:"risk" json:"risk"`
	Platform []string `yaml:"platform" json:"platform"`
}

// RequiresService reports whether the command template interpolates a
// {service} placeholder.
func (m CommandMeta) RequiresService() bool {
	return strings.Contains(m.Cmd, "{service}")
}

// RequiresPID reports whether the command template interpolates a {pid}
// placeholder.
func (m CommandMeta) RequiresPID() bool {
	return strings.Contains(m.Cmd, "{pid}")
}

// SupportsPlatform reports whether the command is whitelisted for the given
// platform, or for "any".
func (m CommandMeta) SupportsPlatform(platform string) bool {
	for _, p := range m.Platform {
		if p == "any" || p == platform {
			return true
		}
	}
	return false
}

// Registry is the immutable set of commands loaded from configuration.
type Registry struct {
	commands map[string]CommandMeta
}

// New builds a Registry from a slice of command definitions, typically
// unmarshaled from the commands.yaml configuration layer.
func New(commands []CommandMeta) (*Registry, error) {
	byID := make(map[string]CommandMeta, len(commands))
	for _, c := range commands {
		if c.CmdID == "" {
			return nil, fmt.Errorf("registry: command missing cmd_id")
		}
		if c.Cmd == "" {
			return nil, fmt.Errorf("registry: command %q missing cmd template", c.CmdID)
		}
		byID[c.CmdID] = c
	}
	return &Registry{commands: byID}, nil
}

// ErrUnknownCommand is returned by Get when cmd_id is not in the registry.
type ErrUnknownCommand struct {
	CmdID string
}

func (e *ErrUnknownCommand) Error() string {
	return fmt.Sprintf("registry: unknown command %q", e.CmdID)
}

// Get returns the CommandMeta for cmd_id, or *ErrUnknownCommand.
func (r *Registry) Get(cmdID string) (CommandMeta, error) {
	meta, ok := r.commands[cmdID]
	if !ok {
		return CommandMeta{}, &ErrUnknownCommand{CmdID: cmdID}
	}
	return meta, nil
}

// All returns every registered command, in no particular order.
func (r *Registry) All() []CommandMeta {
	out := make([]CommandMeta, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	return out
}

// ErrMissingParameter is returned by Render when a required {service} or
// {pid} placeholder has no corresponding argument.
type ErrMissingParameter struct {
	CmdID string
	Param string
}

func (e *ErrMissingParameter) Error() string {
	return fmt.Sprintf("registry: command %q requires %s but none was supplied", e.CmdID, e.Param)
}

// Render interpolates {service} and {pid} placeholders in meta.Cmd,
// returning *ErrMissingParameter if a placeholder is present but its
// argument is empty.
func Render(meta CommandMeta, service, pid string) (string, error) {
	cmd := meta.Cmd
	if meta.RequiresService() {
		if service == "" {
			return "", &ErrMissingParameter{CmdID: meta.CmdID, Param: "service"}
		}
		cmd = strings.ReplaceAll(cmd, "{service}", service)
	}
	if meta.RequiresPID() {
		if pid == "" {
			return "", &ErrMissingParameter{CmdID: meta.CmdID, Param: "pid"}
		}
		cmd = strings.ReplaceAll(cmd, "{pid}", pid)
	}
	return cmd, nil
}
