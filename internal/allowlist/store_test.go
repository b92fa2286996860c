package allowlist

import (
	"testing"
	"time"
)

func TestStore_AddAndAllowed(t *testing.T) {
	s := NewStore(t.TempDir())
	fixedNow := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixedNow }

	ok, err := s.Allowed("Bash", "proj-1")
	if err != nil {
		t.Fatalf("Allowed error: %v", err)
	}
	if ok {
		t.Fatal("expected no rule before Add")
	}

	if err := s.Add("Bash", "proj-1"); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	ok, err = s.Allowed("bash", "proj-1")
	if err != nil {
		t.Fatalf("Allowed error: %v", err)
	}
	if !ok {
		t.Fatal("expected rule match with case-insensitive tool name")
	}

	ok, _ = s.Allowed("Bash", "proj-2")
	if ok {
		t.Fatal("rule must be project-scoped")
	}
}

func TestStore_AddIsIdempotent(t *testing.T) {
	workspace := t.TempDir()
	s := NewStore(workspace)

	if err := s.Add("Read", "proj-1"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := s.Add("read", "proj-1"); err != nil {
		t.Fatalf("second Add error: %v", err)
	}

	entries, err := s.List("proj-1")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestStore_RemoveAndPersistence(t *testing.T) {
	workspace := t.TempDir()
	s := NewStore(workspace)

	if err := s.Add("Bash", "proj-1"); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	if err := s.Add("Write", "proj-1"); err != nil {
		t.Fatalf("Add error: %v", err)
	}

	reloaded := NewStore(workspace)
	removed, err := reloaded.Remove("Bash", "proj-1")
	if err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if !removed {
		t.Fatal("expected rule to be removed")
	}

	removed, err = reloaded.Remove("Bash", "proj-1")
	if err != nil {
		t.Fatalf("second Remove error: %v", err)
	}
	if removed {
		t.Fatal("expected second remove to report missing rule")
	}

	entries, err := reloaded.List("")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(entries) != 1 || entries[0].Tool != "write" {
		t.Fatalf("unexpected entries after remove: %+v", entries)
	}
}

func TestStore_AddRejectsEmptyTool(t *testing.T) {
	s := NewStore(t.TempDir())
	if err := s.Add("   ", "proj-1"); err == nil {
		t.Fatal("expected error for empty tool name")
	}
}
