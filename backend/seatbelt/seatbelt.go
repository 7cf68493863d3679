// Package seatbelt compiles policies for the macOS Seatbelt sandbox
// (sandbox-exec). Seatbelt evaluates an ordered list of allow/deny statements
// with last-matching-statement-wins semantics, so emission order is the whole
// security argument: a deny must precede the allows that carve exceptions out
// of it, or the exceptions are silently re-denied.
package seatbelt

import (
	"fmt"
	"os"

	"github.com/fencerun/fencerun/backend"
)

// SandboxExecPath is the path to the sandbox-exec binary. It is a var (not
// const) so tests can point it at a fixture to simulate presence or absence.
var SandboxExecPath = "/usr/bin/sandbox-exec"

// Backend implements backend.Backend using sandbox-exec and a generated SBPL
// profile.
type Backend struct{}

// New returns a new seatbelt Backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return "seatbelt"
}

// Available reports whether sandbox-exec is present on this system.
func (b *Backend) Available() bool {
	_, err := os.Stat(SandboxExecPath)
	return err == nil
}

// CheckDependencies inspects the system for sandbox-exec.
func (b *Backend) CheckDependencies() *backend.DependencyCheck {
	check := &backend.DependencyCheck{}
	if _, err := os.Stat(SandboxExecPath); err != nil {
		check.Errors = append(check.Errors,
			fmt.Sprintf("sandbox-exec not found at %s: %v", SandboxExecPath, err))
	}
	return check
}

// Compile generates the SBPL profile for pol and wraps it in a sandbox-exec
// invocation. The confined command is appended after the "--" separator by
// the launcher.
//
// sandbox-exec reserves the sysexits codes 64 (usage) and 65 (bad profile
// data) for its own failures; the launcher maps those to a policy-rejection
// error instead of attributing them to the confined command.
func (b *Backend) Compile(pol *backend.Policy) (*backend.Invocation, error) {
	profile, err := newProfileBuilder().Build(pol)
	if err != nil {
		return nil, fmt.Errorf("seatbelt: build profile: %w", err)
	}

	return &backend.Invocation{
		Backend:           b.Name(),
		Path:              SandboxExecPath,
		Args:              []string{"sandbox-exec", "-p", profile, "--"},
		WorkDir:           pol.Project,
		PolicyRejectExits: []int{64, 65},
	}, nil
}
