package seatbelt

import (
	"strings"
	"testing"

	"github.com/fencerun/fencerun/backend"
)

func buildProfile(t *testing.T, pol *backend.Policy) string {
	t.Helper()
	profile, err := newProfileBuilder().Build(pol)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	return profile
}

// mustIndex fails the test when needle is absent and returns its offset
// otherwise, so callers can assert relative statement order.
func mustIndex(t *testing.T, profile, needle string) int {
	t.Helper()
	i := strings.Index(profile, needle)
	if i < 0 {
		t.Fatalf("profile missing statement %q\n%s", needle, profile)
	}
	return i
}

func TestProfileHeader(t *testing.T) {
	profile := buildProfile(t, &backend.Policy{})

	if !strings.HasPrefix(profile, "(version 1)\n(allow default)\n") {
		t.Errorf("profile should start with version and baseline allow:\n%s", profile)
	}
}

func TestProfileWriteContainment(t *testing.T) {
	pol := &backend.Policy{
		ReadWrite: []string{"/data/out"},
		Project:   "/work/proj",
	}
	profile := buildProfile(t, pol)

	denyAll := mustIndex(t, profile, "(deny file-write*)\n")
	allowOut := mustIndex(t, profile, `(allow file-write* (subpath "/data/out"))`)
	allowProj := mustIndex(t, profile, `(allow file-write* (subpath "/work/proj"))`)

	if denyAll > allowOut || denyAll > allowProj {
		t.Error("global write deny must precede the write allows")
	}
}

func TestProfileDenyBeforeException(t *testing.T) {
	pol := &backend.Policy{
		ReadOnly: []string{"/home/u/.ssh/known_hosts"},
		Deny:     []string{"/home/u/.ssh"},
	}
	profile := buildProfile(t, pol)

	deny := mustIndex(t, profile, `(deny file-read* (subpath "/home/u/.ssh"))`)
	exc := mustIndex(t, profile, `(allow file-read* (subpath "/home/u/.ssh/known_hosts"))`)

	// Last-match-wins: the exception allow must come after the deny or the
	// exception is dead.
	if deny > exc {
		t.Errorf("deny at %d should precede exception allow at %d\n%s", deny, exc, profile)
	}
}

func TestProfileSiblingNotException(t *testing.T) {
	pol := &backend.Policy{
		ReadOnly: []string{"/home/u/other"},
		Deny:     []string{"/home/u/.ssh"},
	}
	profile := buildProfile(t, pol)

	deny := mustIndex(t, profile, `(deny file-read* (subpath "/home/u/.ssh"))`)
	// The sibling grant must not be re-emitted after the deny as if it were an
	// exception. Nothing after the deny block mentions it.
	tail := profile[deny:]
	if strings.Contains(tail, `(allow file-read* (subpath "/home/u/other"))`) {
		t.Errorf("sibling grant emitted as exception:\n%s", profile)
	}
}

func TestProfileReadOnlyAfterWriteAllows(t *testing.T) {
	pol := &backend.Policy{
		ReadWrite: []string{"/data"},
		ReadOnly:  []string{"/data/frozen"},
	}
	profile := buildProfile(t, pol)

	allow := mustIndex(t, profile, `(allow file-write* (subpath "/data"))`)
	redeny := mustIndex(t, profile, `(deny file-write* (subpath "/data/frozen"))`)

	if allow > redeny {
		t.Error("read-only re-deny must come after the broader write allow")
	}
}

func TestProfileWriteExceptionUnderDeny(t *testing.T) {
	pol := &backend.Policy{
		ReadWrite: []string{"/secrets/scratch"},
		Deny:      []string{"/secrets"},
	}
	profile := buildProfile(t, pol)

	denyRead := mustIndex(t, profile, `(deny file-read* (subpath "/secrets"))`)
	excRead := mustIndex(t, profile, `(allow file-read* (subpath "/secrets/scratch"))`)
	excWrite := strings.LastIndex(profile, `(allow file-write* (subpath "/secrets/scratch"))`)

	if excWrite < 0 {
		t.Fatalf("write exception missing:\n%s", profile)
	}
	if denyRead > excRead || denyRead > excWrite {
		t.Error("exception allows must follow the deny statements")
	}
}

func TestProfileSafeMode(t *testing.T) {
	pol := &backend.Policy{
		ReadWrite: []string{"/home/u/notes"},
		SafeMode:  true,
		Home:      "/home/u",
		Project:   "/home/u/proj",
	}
	profile := buildProfile(t, pol)

	denyHome := mustIndex(t, profile, `(deny file-read* (subpath "/home/u"))`)
	allowProj := mustIndex(t, profile, `(allow file-read* (subpath "/home/u/proj"))`)
	allowGrant := mustIndex(t, profile, `(allow file-read* (subpath "/home/u/notes"))`)

	if denyHome > allowProj || denyHome > allowGrant {
		t.Error("home deny must precede the project and grant re-allows")
	}
}

func TestProfileSafeModeKeepsReadOnlyUnderProjectUnwritable(t *testing.T) {
	pol := &backend.Policy{
		ReadOnly: []string{"/home/u/proj/vendor"},
		SafeMode: true,
		Home:     "/home/u",
		Project:  "/home/u/proj",
	}
	profile := buildProfile(t, pol)

	// The safe-mode block re-allows writes on the whole project; the
	// read-only re-deny must land after it or last-match-wins makes the
	// vendor subtree writable.
	allowProj := strings.LastIndex(profile, `(allow file-write* (subpath "/home/u/proj"))`)
	redeny := mustIndex(t, profile, `(deny file-write* (subpath "/home/u/proj/vendor"))`)

	if allowProj < 0 {
		t.Fatalf("project write allow missing:\n%s", profile)
	}
	if allowProj > redeny {
		t.Errorf("read-only re-deny at %d must follow the safe-mode project allow at %d\n%s",
			redeny, allowProj, profile)
	}
}

func TestProfileSafeModeKeepsReadOnlyUnderHomeGrantUnwritable(t *testing.T) {
	pol := &backend.Policy{
		ReadWrite: []string{"/home/u/data"},
		ReadOnly:  []string{"/home/u/data/frozen"},
		SafeMode:  true,
		Home:      "/home/u",
		Project:   "/home/u/proj",
	}
	profile := buildProfile(t, pol)

	allowGrant := strings.LastIndex(profile, `(allow file-write* (subpath "/home/u/data"))`)
	redeny := mustIndex(t, profile, `(deny file-write* (subpath "/home/u/data/frozen"))`)

	if allowGrant < 0 {
		t.Fatalf("grant write allow missing:\n%s", profile)
	}
	if allowGrant > redeny {
		t.Errorf("read-only re-deny at %d must follow the safe-mode grant allow at %d\n%s",
			redeny, allowGrant, profile)
	}
}

func TestProfileSafeModeOffOmitsHomeDeny(t *testing.T) {
	pol := &backend.Policy{Home: "/home/u"}
	profile := buildProfile(t, pol)

	if strings.Contains(profile, `(deny file-read* (subpath "/home/u"))`) {
		t.Error("home deny emitted without safe mode")
	}
}

func TestProfileDenyOrderedAfterSafeMode(t *testing.T) {
	// A denied path inside home must stay denied: its deny statements must be
	// emitted after the safe-mode re-allows.
	pol := &backend.Policy{
		SafeMode: true,
		Home:     "/home/u",
		Project:  "/home/u/proj",
		Deny:     []string{"/home/u/proj/.env"},
	}
	profile := buildProfile(t, pol)

	allowProj := mustIndex(t, profile, `(allow file-read* (subpath "/home/u/proj"))`)
	denyEnv := mustIndex(t, profile, `(deny file-read* (subpath "/home/u/proj/.env"))`)

	if allowProj > denyEnv {
		t.Error("deny inside home must follow the safe-mode allows to stay effective")
	}
}

func TestProfileMoveBlocking(t *testing.T) {
	pol := &backend.Policy{Deny: []string{"/home/u/.aws"}}
	profile := buildProfile(t, pol)

	mustIndex(t, profile, `(deny file-write-unlink (subpath "/home/u/.aws"))`)
	mustIndex(t, profile, `(deny file-write-unlink (literal "/home/u"))`)
	mustIndex(t, profile, `(deny file-write-unlink (literal "/home"))`)
}

func TestProfileInputOrderIndependent(t *testing.T) {
	a := buildProfile(t, &backend.Policy{
		ReadOnly: []string{"/d/b", "/d/a"},
		Deny:     []string{"/d"},
	})
	b := buildProfile(t, &backend.Policy{
		ReadOnly: []string{"/d/a", "/d/b"},
		Deny:     []string{"/d"},
	})

	if a != b {
		t.Errorf("profiles differ by rule input order:\n%s\n---\n%s", a, b)
	}
}

func TestProfilePathsWithSpaces(t *testing.T) {
	pol := &backend.Policy{Deny: []string{"/home/u/My Documents"}}
	profile := buildProfile(t, pol)

	mustIndex(t, profile, `(deny file-read* (subpath "/home/u/My Documents"))`)
}

func TestEscapeForSBPL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "/a/b", "/a/b"},
		{"spaces untouched", "/a/dir with spaces", "/a/dir with spaces"},
		{"quote", `/a/"b`, `/a/\"b`},
		{"backslash", `/a/\b`, `/a/\\b`},
		{"newline", "/a/b\nc", `/a/b\nc`},
		{"null stripped", "/a/b\x00c", "/a/bc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeForSBPL(tt.in); got != tt.want {
				t.Errorf("escapeForSBPL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompileInvocation(t *testing.T) {
	pol := &backend.Policy{Project: "/work/proj"}
	inv, err := New().Compile(pol)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}

	if inv.Backend != "seatbelt" {
		t.Errorf("Backend = %q, want seatbelt", inv.Backend)
	}
	if len(inv.Args) != 4 || inv.Args[0] != "sandbox-exec" || inv.Args[1] != "-p" || inv.Args[3] != "--" {
		t.Errorf("Args = %v, want [sandbox-exec -p <profile> --]", inv.Args)
	}
	if !strings.HasPrefix(inv.Args[2], "(version 1)") {
		t.Error("Args[2] should be the inline SBPL profile")
	}
	if inv.WorkDir != "/work/proj" {
		t.Errorf("WorkDir = %q, want /work/proj", inv.WorkDir)
	}
	if !inv.IsPolicyRejectExit(64) || !inv.IsPolicyRejectExit(65) {
		t.Error("sandbox-exec reserves exits 64 and 65 for its own failures")
	}
}

func TestAvailable(t *testing.T) {
	orig := SandboxExecPath
	defer func() { SandboxExecPath = orig }()

	SandboxExecPath = "/nonexistent/sandbox-exec"
	if New().Available() {
		t.Error("Available() should be false when sandbox-exec is missing")
	}
	check := New().CheckDependencies()
	if check.OK() {
		t.Error("CheckDependencies should report the missing binary")
	}
}
