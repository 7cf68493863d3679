package fencerun

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestAccessModeString(t *testing.T) {
	tests := []struct {
		mode AccessMode
		want string
	}{
		{ReadWrite, "read-write"},
		{ReadOnly, "read-only"},
		{Deny, "deny"},
		{AccessMode(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.mode.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddClassifiesByMode(t *testing.T) {
	dir := t.TempDir()
	rw := filepath.Join(dir, "rw")
	ro := filepath.Join(dir, "ro")
	deny := filepath.Join(dir, "deny")
	for _, d := range []string{ro, deny} {
		if err := os.Mkdir(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	rs := NewRuleSet(nil)
	// rw does not exist yet; read-write intake creates it.
	if err := rs.Add(rw, ReadWrite); err != nil {
		t.Fatalf("Add(rw) error: %v", err)
	}
	if err := rs.Add(ro, ReadOnly); err != nil {
		t.Fatalf("Add(ro) error: %v", err)
	}
	if err := rs.Add(deny, Deny); err != nil {
		t.Fatalf("Add(deny) error: %v", err)
	}

	if got := rs.ReadWritePaths(); len(got) != 1 {
		t.Errorf("ReadWritePaths() = %v, want one entry", got)
	}
	if got := rs.ReadOnlyPaths(); len(got) != 1 {
		t.Errorf("ReadOnlyPaths() = %v, want one entry", got)
	}
	if got := rs.DenyPaths(); len(got) != 1 {
		t.Errorf("DenyPaths() = %v, want one entry", got)
	}
	if _, err := os.Stat(rw); err != nil {
		t.Errorf("read-write path should have been created: %v", err)
	}
}

func TestAddMissingReadOnlyFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	rs := NewRuleSet(nil)
	err := rs.Add(missing, ReadOnly)
	if err == nil {
		t.Fatal("Add should fail for a missing read-only path")
	}
	if !errors.Is(err, ErrPathResolution) {
		t.Errorf("error should wrap ErrPathResolution, got: %v", err)
	}

	var pre *PathResolutionError
	if !errors.As(err, &pre) {
		t.Fatalf("error should be a *PathResolutionError, got %T", err)
	}
	if pre.Path != missing {
		t.Errorf("PathResolutionError.Path = %q, want %q", pre.Path, missing)
	}
}

func TestAddMissingDenyFails(t *testing.T) {
	rs := NewRuleSet(nil)
	if err := rs.Add(filepath.Join(t.TempDir(), "gone"), Deny); err == nil {
		t.Fatal("Add should fail for a missing deny path")
	}
}

func TestClassifyMutualExclusion(t *testing.T) {
	rs := NewRuleSet(nil)

	rs.Classify("/data/secrets", Deny)
	rs.Classify("/data/secrets", ReadOnly)

	if got := rs.DenyPaths(); len(got) != 0 {
		t.Errorf("deny category should be empty after reclassification, got %v", got)
	}
	got := rs.ReadOnlyPaths()
	if len(got) != 1 || got[0] != "/data/secrets" {
		t.Errorf("ReadOnlyPaths() = %v, want [/data/secrets]", got)
	}
}

func TestClassifyLastActionWins(t *testing.T) {
	rs := NewRuleSet(nil)

	rs.Classify("/p", ReadWrite)
	rs.Classify("/p", ReadOnly)
	rs.Classify("/p", Deny)

	if got := rs.ReadWritePaths(); len(got) != 0 {
		t.Errorf("ReadWritePaths() = %v, want empty", got)
	}
	if got := rs.ReadOnlyPaths(); len(got) != 0 {
		t.Errorf("ReadOnlyPaths() = %v, want empty", got)
	}
	got := rs.DenyPaths()
	if len(got) != 1 || got[0] != "/p" {
		t.Errorf("DenyPaths() = %v, want [/p]", got)
	}
}

func TestClassifySameModeIsNoOp(t *testing.T) {
	rs := NewRuleSet(nil)

	rs.Classify("/p", ReadOnly)
	rs.Classify("/p", ReadOnly)

	if got := rs.ReadOnlyPaths(); len(got) != 1 {
		t.Errorf("duplicate classification should not duplicate the entry, got %v", got)
	}
}

func TestClassifyExactPathOnly(t *testing.T) {
	rs := NewRuleSet(nil)

	// Prefix-sharing paths must survive each other's reclassification.
	rs.Classify("/data", Deny)
	rs.Classify("/database", Deny)
	rs.Classify("/data", ReadOnly)

	got := rs.DenyPaths()
	if len(got) != 1 || got[0] != "/database" {
		t.Errorf("DenyPaths() = %v, want [/database]", got)
	}
}

func TestClassifyPreservesSpaces(t *testing.T) {
	rs := NewRuleSet(nil)
	p := "/home/u/My Documents"

	rs.Classify(p, ReadWrite)

	got := rs.ReadWritePaths()
	if len(got) != 1 || got[0] != p {
		t.Errorf("ReadWritePaths() = %v, want [%q]", got, p)
	}
}

func TestExceptionsFor(t *testing.T) {
	rs := NewRuleSet(nil)
	rs.Classify("/home/u/.ssh", Deny)
	rs.Classify("/home/u/.ssh/known_hosts", ReadOnly)
	rs.Classify("/home/u/.ssh/work", ReadWrite)
	rs.Classify("/home/u/other", ReadWrite)

	got := rs.ExceptionsFor("/home/u/.ssh")
	if len(got) != 2 {
		t.Fatalf("ExceptionsFor() = %v, want 2 entries", got)
	}
	byPath := make(map[string]AccessMode)
	for _, r := range got {
		byPath[r.Path] = r.Mode
	}
	if byPath["/home/u/.ssh/known_hosts"] != ReadOnly {
		t.Error("known_hosts should be a read-only exception")
	}
	if byPath["/home/u/.ssh/work"] != ReadWrite {
		t.Error("work should be a read-write exception")
	}
}

func TestExceptionsForSiblingExcluded(t *testing.T) {
	rs := NewRuleSet(nil)
	rs.Classify("/a/deny", Deny)
	rs.Classify("/a/sibling", ReadWrite)

	if got := rs.ExceptionsFor("/a/deny"); len(got) != 0 {
		t.Errorf("sibling grant should not count as an exception, got %v", got)
	}
}

func TestRules(t *testing.T) {
	rs := NewRuleSet(nil)
	rs.Classify("/rw", ReadWrite)
	rs.Classify("/ro", ReadOnly)
	rs.Classify("/deny", Deny)

	rules := rs.Rules()
	if len(rules) != 3 {
		t.Fatalf("Rules() returned %d entries, want 3", len(rules))
	}
}

func TestPathListCopies(t *testing.T) {
	rs := NewRuleSet(nil)
	rs.Classify("/p", ReadWrite)

	got := rs.ReadWritePaths()
	got[0] = "/mutated"

	if again := rs.ReadWritePaths(); again[0] != "/p" {
		t.Error("ReadWritePaths should return a copy, not the internal slice")
	}
}
