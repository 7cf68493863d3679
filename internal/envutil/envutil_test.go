package envutil

import (
	"testing"
)

func TestSetEnv(t *testing.T) {
	env := []string{"A=1", "B=2"}

	env = SetEnv(env, "A", "updated")
	if v, ok := GetEnv(env, "A"); !ok || v != "updated" {
		t.Errorf("GetEnv(A) = %q, %v; want updated, true", v, ok)
	}

	env = SetEnv(env, "C", "3")
	if v, ok := GetEnv(env, "C"); !ok || v != "3" {
		t.Errorf("GetEnv(C) = %q, %v; want 3, true", v, ok)
	}
	if len(env) != 3 {
		t.Errorf("env length = %d, want 3", len(env))
	}
}

func TestGetEnvMissing(t *testing.T) {
	if v, ok := GetEnv([]string{"A=1"}, "B"); ok || v != "" {
		t.Errorf("GetEnv(B) = %q, %v; want empty, false", v, ok)
	}
}

func TestRemoveEnvPrefix(t *testing.T) {
	env := []string{
		"PATH=/bin",
		"LD_PRELOAD=/evil.so",
		"LD_LIBRARY_PATH=/evil",
		"LDFLAGS=-g", // prefix of the key, but not LD_
		"HOME=/home/u",
	}

	got := RemoveEnvPrefix(env, "LD_")
	want := []string{"PATH=/bin", "LDFLAGS=-g", "HOME=/home/u"}
	if len(got) != len(want) {
		t.Fatalf("RemoveEnvPrefix() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSanitize(t *testing.T) {
	env := []string{
		"DYLD_INSERT_LIBRARIES=/evil.dylib",
		"LD_PRELOAD=/evil.so",
		"TERM=xterm",
	}

	got := Sanitize(env)
	if len(got) != 1 || got[0] != "TERM=xterm" {
		t.Errorf("Sanitize() = %v, want [TERM=xterm]", got)
	}
}
