package ids

import (
	"strings"
	"testing"
)

func TestNewRandom_PrefixAndLength(t *testing.T) {
	id, err := NewRandom("task")
	if err != nil {
		t.Fatalf("NewRandom: %v", err)
	}
	if !strings.HasPrefix(id, "task-") {
		t.Fatalf("expected task prefix, got %q", id)
	}
	suffix := strings.TrimPrefix(id, "task-")
	if got, want := len(suffix), 8; got != want {
		t.Fatalf("expected suffix len %d, got %d (%q)", want, got, suffix)
	}
}

func TestLocalIDsNeverLookLikeTaskIDs(t *testing.T) {
	for i := 0; i < 64; i++ {
		local, err := NewLocal()
		if err != nil {
			t.Fatalf("NewLocal: %v", err)
		}
		if !IsLocal(local) {
			t.Fatalf("IsLocal(%q) = false", local)
		}
		task, err := NewTask()
		if err != nil {
			t.Fatalf("NewTask: %v", err)
		}
		if IsLocal(task) {
			t.Fatalf("IsLocal(%q) = true for a server id", task)
		}
	}
}

func TestNewRequestToken_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 256; i++ {
		tok := NewRequestToken()
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}
