// Package evidence persists the raw, redacted, and parsed form of every
// command's output under a per-session directory tree, plus named JSON
// index artifacts (round traces, the final evidence pack, the diagnosis
// report).
package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store writes artifacts beneath BaseDir/<session_id>/{raw,redacted,parsed,index}.
type Store struct {
	baseDir   string
	sessionID string
}

// New ensures the directory tree for sessionID exists under baseDir and
// returns a Store scoped to it.
func New(baseDir, sessionID string) (*Store, error) {
	s := &Store{baseDir: baseDir, sessionID: sessionID}
	for _, sub := range []string{"raw", "redacted", "parsed", "index"} {
		if err := os.MkdirAll(s.dir(sub), 0o755); err != nil {
			return nil, fmt.Errorf("evidence: create %s: %w", sub, err)
		}
	}
	return s, nil
}

func (s *Store) dir(sub string) string {
	return filepath.Join(s.baseDir, s.sessionID, sub)
}

func (s *Store) relRef(path string) string {
	rel, err := filepath.Rel(s.baseDir, path)
	if err != nil {
		return path
	}
	return rel
}

func (s *Store) writeText(sub, cmdID, text string) (string, error) {
	name := fmt.Sprintf("%s-%s.txt", cmdID, uuid.New().String())
	path := filepath.Join(s.dir(sub), name)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("evidence: write %s: %w", sub, err)
	}
	return s.relRef(path), nil
}

// PutRaw writes the unredacted command output and returns its workspace
// relative path.
func (s *Store) PutRaw(cmdID, text string) (string, error) {
	return s.writeText("raw", cmdID, text)
}

// PutRedacted writes the redacted command output and returns its workspace
// relative path.
func (s *Store) PutRedacted(cmdID, text string) (string, error) {
	return s.writeText("redacted", cmdID, text)
}

// PutParsed writes parsed as pretty-printed JSON and returns its workspace
// relative path.
func (s *Store) PutParsed(cmdID string, parsed any) (string, error) {
	data, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return "", fmt.Errorf("evidence: marshal parsed: %w", err)
	}
	name := fmt.Sprintf("%s-%s.json", cmdID, uuid.New().String())
	path := filepath.Join(s.dir("parsed"), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("evidence: write parsed: %w", err)
	}
	return s.relRef(path), nil
}

// WriteIndex writes payload as pretty-printed JSON under index/<name>.json.
func (s *Store) WriteIndex(name string, payload any) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("evidence: marshal index %s: %w", name, err)
	}
	path := filepath.Join(s.dir("index"), name+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("evidence: write index %s: %w", name, err)
	}
	return s.relRef(path), nil
}

// ReadIndex loads and unmarshals a previously written index artifact into v.
func (s *Store) ReadIndex(name string, v any) error {
	path := filepath.Join(s.dir("index"), name+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("evidence: read index %s: %w", name, err)
	}
	return json.Unmarshal(data, v)
}

// SessionID returns the session this store is scoped to.
func (s *Store) SessionID() string { return s.sessionID }
