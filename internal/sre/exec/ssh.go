package exec

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConfig carries the credentials and connection parameters for SSH.
type SSHConfig struct {
	User           string
	Port           int
	Password       string // empty to prefer Signer
	Signer         ssh.Signer
	ConnectTimeout time.Duration
}

// SSH runs commands over an SSH session, wrapped in "bash -l -c" so remote
// login shell profiles (JAVA_HOME, PATH) are sourced the same way an
// interactive session would see them. A new connection is dialed per
// command: the orchestrator's budget model bounds the number of commands
// per session tightly enough that connection reuse is not worth the extra
// state.
type SSH struct {
	Config SSHConfig
}

// Run dials host, executes command, and returns its combined output. Any
// connection or session failure is folded into the returned text rather
// than an error, matching every Executor's no-error-for-command-failure
// contract.
func (s SSH) Run(ctx context.Context, host, command string, timeout time.Duration) string {
	connectTimeout := s.Config.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 10 * time.Second
	}

	auth := []ssh.AuthMethod{}
	if s.Config.Signer != nil {
		auth = append(auth, ssh.PublicKeys(s.Config.Signer))
	}
	if s.Config.Password != "" {
		auth = append(auth, ssh.Password(s.Config.Password))
	}
	if len(auth) == 0 {
		return "command error: no SSH authentication method configured"
	}

	port := s.Config.Port
	if port == 0 {
		port = 22
	}

	clientConfig := &ssh.ClientConfig{
		User:            s.Config.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // diagnostic hosts are pre-vetted by operator config, not discovered
		Timeout:         connectTimeout,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	client, err := ssh.Dial("tcp", addr, clientConfig)
	if err != nil {
		return fmt.Sprintf("command error: ssh dial %s: %v", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Sprintf("command error: ssh session: %v", err)
	}
	defer session.Close()

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	// When jps is not on the login PATH, derive JAVA_HOME from the resolved
	// java binary so the JVM tools are found; the bootstrap is silenced and
	// never fails the command.
	const javaHomeBootstrap = `if ! command -v jps >/dev/null 2>&1; then ` +
		`JAVA_BIN="$(readlink -f "$(command -v java)")" && ` +
		`JAVA_HOME="$(dirname "$(dirname "$JAVA_BIN")")" && ` +
		`export JAVA_HOME PATH="$JAVA_HOME/bin:$PATH"; fi >/dev/null 2>&1 || true; `
	wrapped := "bash -l -c " + shellQuote(javaHomeBootstrap+command)

	done := make(chan error, 1)
	go func() { done <- session.Run(wrapped) }()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return "command error: context canceled"
	case <-time.After(timeout):
		session.Signal(ssh.SIGKILL)
		return timeoutMarker(timeout)
	case err := <-done:
		if err != nil && out.Len() == 0 {
			return errorMarker(err)
		}
		return out.String()
	}
}

// shellQuote wraps s in single quotes, escaping embedded single quotes the
// same way POSIX shells require: close the quote, emit an escaped quote,
// reopen the quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
