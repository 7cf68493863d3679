// Package backend defines the capability interface shared by the three
// confinement backends and the compiled policy they consume. The compiler
// core is backend-agnostic; all order-sensitive emission logic lives in the
// per-backend sub-packages.
package backend

import (
	"errors"
	"os"
	"sort"

	"github.com/fencerun/fencerun/internal/pathutil"
)

// Policy is the backend-agnostic description of what the confined process
// may touch. It is built once per invocation from a validated RuleSet and is
// immutable once handed to a backend.
//
// All paths are absolute and canonical (symlinks resolved at rule intake).
// Path strings are atomic: they may contain spaces and are never joined into
// delimited strings that would later be re-split.
type Policy struct {
	// ReadWrite lists subtrees the process may read and write.
	ReadWrite []string

	// ReadOnly lists subtrees the process may read but not write.
	ReadOnly []string

	// Deny lists subtrees that must be unreachable, except for any ReadWrite
	// or ReadOnly entry nested inside them (an exception).
	Deny []string

	// SafeMode hides the user's home directory except for the project
	// directory and explicit exceptions. Backend-dependent: the container
	// backend has no safe-mode concept because nothing outside explicit
	// mounts is ever visible.
	SafeMode bool

	// Home is the canonical home directory, used by SafeMode.
	Home string

	// Project is the canonical project directory the agent works in. It is
	// always reachable read-write and becomes the working directory of the
	// confined process.
	Project string

	// Image is the container image used by the container backend.
	Image string

	// TTY reports whether the caller's stdin is a terminal. The container
	// backend allocates a pseudo-terminal when set.
	TTY bool
}

// Grant is a single allow-mode path with its write permission, produced when
// enumerating exceptions nested under a deny.
type Grant struct {
	Path  string
	Write bool
}

// ExceptionsUnder returns the allow-mode paths nested at-or-under deny,
// ordered shallowest first and lexicographically within a depth. The fixed
// ordering makes emission deterministic regardless of rule input order.
func ExceptionsUnder(pol *Policy, deny string) []Grant {
	var out []Grant
	for _, p := range pol.ReadOnly {
		if pathutil.IsSubpath(deny, p) {
			out = append(out, Grant{Path: p})
		}
	}
	for _, p := range pol.ReadWrite {
		if pathutil.IsSubpath(deny, p) {
			out = append(out, Grant{Path: p, Write: true})
		}
	}
	sortGrants(out)
	return out
}

// GrantsUnder returns every allow-mode path nested at-or-under parent, in
// the same deterministic order as ExceptionsUnder.
func GrantsUnder(pol *Policy, parent string) []Grant {
	return ExceptionsUnder(pol, parent)
}

func sortGrants(grants []Grant) {
	sort.Slice(grants, func(i, j int) bool {
		di, dj := pathutil.Depth(grants[i].Path), pathutil.Depth(grants[j].Path)
		if di != dj {
			return di < dj
		}
		return grants[i].Path < grants[j].Path
	})
}

// SortByDepth orders paths shallowest first, lexicographic within a depth.
// Backends whose targets use later-overrides-earlier semantics rely on this
// so that a narrower path always lands after the broader path containing it.
func SortByDepth(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Slice(out, func(i, j int) bool {
		di, dj := pathutil.Depth(out[i]), pathutil.Depth(out[j])
		if di != dj {
			return di < dj
		}
		return out[i] < out[j]
	})
	return out
}

// Backend is one confinement mechanism the compiler targets. Implementations
// are stateless; Compile is a pure transformation apart from writing
// ephemeral artifacts recorded in the Invocation's cleanup list.
type Backend interface {
	// Name returns the backend identifier ("seatbelt", "bwrap", "docker").
	Name() string

	// Available reports whether the backend's underlying tool is usable on
	// this system.
	Available() bool

	// CheckDependencies inspects the system for the backend's required and
	// optional dependencies.
	CheckDependencies() *DependencyCheck

	// Compile lowers the policy into a backend-native invocation.
	Compile(pol *Policy) (*Invocation, error)
}

// DependencyCheck holds the result of a backend dependency check.
type DependencyCheck struct {
	// Errors lists critical missing dependencies that prevent confinement.
	Errors []string

	// Warnings lists non-critical issues that may degrade functionality.
	Warnings []string
}

// OK returns true if no critical dependency errors were found.
func (d *DependencyCheck) OK() bool {
	return len(d.Errors) == 0
}

// Invocation is a compiled, ready-to-launch backend command. The launcher
// appends the confined command verbatim to Args, one argument per element.
type Invocation struct {
	// Backend is the name of the backend that produced this invocation.
	Backend string

	// Path is the backend tool binary.
	Path string

	// Args is the full argument vector prefix, including Args[0]. The
	// confined command is appended as-is; paths with spaces or other
	// shell-meaningful characters stay single atomic elements throughout.
	Args []string

	// Env lists extra environment entries for the backend process.
	Env []string

	// ExtraFiles are inherited file descriptors, numbered from 3 in the
	// child (the namespace backend reads its syscall filter from fd 3).
	ExtraFiles []*os.File

	// WorkDir is the working directory for the backend process.
	WorkDir string

	// PolicyRejectExits lists exit codes the backend tool reserves for
	// configuration failure, as opposed to the confined command's own exit.
	PolicyRejectExits []int

	cleanups []func() error
}

// AddCleanup registers a cleanup function for an ephemeral compiled artifact
// (e.g. a runtime-synthesized filter file). Cleanups run in reverse order.
func (inv *Invocation) AddCleanup(fn func() error) {
	inv.cleanups = append(inv.cleanups, fn)
}

// Cleanup releases every ephemeral artifact owned by the invocation. It is
// safe to call more than once; cleanups run at most once.
func (inv *Invocation) Cleanup() error {
	var errs []error
	for i := len(inv.cleanups) - 1; i >= 0; i-- {
		if err := inv.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	inv.cleanups = nil
	return errors.Join(errs...)
}

// IsPolicyRejectExit reports whether code is one of the backend tool's
// reserved configuration-failure exit codes.
func (inv *Invocation) IsPolicyRejectExit(code int) bool {
	for _, c := range inv.PolicyRejectExits {
		if c == code {
			return true
		}
	}
	return false
}
