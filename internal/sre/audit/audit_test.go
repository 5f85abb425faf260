package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndReadSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	entries := []Entry{
		{Timestamp: time.Now(), SessionID: "s1", CmdID: "uptime", Decision: "executed"},
		{Timestamp: time.Now(), SessionID: "s2", CmdID: "df", Decision: "executed"},
		{Timestamp: time.Now(), SessionID: "s1", CmdID: "kill9", Decision: "blocked_by_policy"},
	}
	for _, e := range entries {
		if err := log.Write(e); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	got, err := log.ReadSession("s1")
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for session s1, got %d", len(got))
	}
}

func TestReadAllToleratesMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Write(Entry{SessionID: "s1", Decision: "executed"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("{not valid json\n"); err != nil {
		t.Fatalf("write malformed line: %v", err)
	}
	f.Close()

	if err := log.Write(Entry{SessionID: "s1", Decision: "executed"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := log.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected malformed line to be skipped, got %d entries", len(entries))
	}
}
