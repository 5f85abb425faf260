package redact

import "testing"

func TestRedactTagsAndOrder(t *testing.T) {
	input := "connect to 10.0.0.5 as user=alice password=hunter2 from /home/alice, contact alice@example.com"
	redacted, tags, count := Redact(input)

	if count == 0 {
		t.Fatalf("expected at least one replacement, got 0")
	}
	wantTags := map[string]bool{"IP": false, "EMAIL": false, "SECRET": false, "PATH": false, "USER": false}
	for _, tag := range tags {
		if _, ok := wantTags[tag]; !ok {
			t.Errorf("unexpected tag %q", tag)
		}
		wantTags[tag] = true
	}
	for tag, seen := range wantTags {
		if !seen {
			t.Errorf("expected tag %q to be applied, input was %q, got %q", tag, input, redacted)
		}
	}

	for _, forbidden := range []string{"10.0.0.5", "hunter2", "alice@example.com"} {
		if contains(redacted, forbidden) {
			t.Errorf("redacted text still contains %q: %q", forbidden, redacted)
		}
	}
}

func TestRedactIdempotent(t *testing.T) {
	input := "password=secret123 at 192.168.1.1"
	once, _, _ := Redact(input)
	twice, _, _ := Redact(once)
	if once != twice {
		t.Errorf("redaction not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestHashTextStable(t *testing.T) {
	a := HashText("same input")
	b := HashText("same input")
	if a != b {
		t.Errorf("expected stable hash, got %q and %q", a, b)
	}
	if a == HashText("different input") {
		t.Errorf("expected different inputs to hash differently")
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
