package fencerun

import (
	"log/slog"

	"github.com/fencerun/fencerun/internal/pathutil"
)

// AccessMode is the access category of a path rule.
type AccessMode int

const (
	// ReadWrite grants full access to a path subtree.
	ReadWrite AccessMode = iota

	// ReadOnly grants read access to a path subtree.
	ReadOnly

	// Deny hides a path subtree entirely.
	Deny
)

// String returns the string representation of an AccessMode.
func (m AccessMode) String() string {
	switch m {
	case ReadWrite:
		return "read-write"
	case ReadOnly:
		return "read-only"
	case Deny:
		return "deny"
	default:
		return "unknown"
	}
}

// PathRule is one user-requested access grant or restriction. Path is the
// absolute, canonicalized filesystem path; whitespace inside the string is
// preserved verbatim and never used as a field separator.
type PathRule struct {
	Path string
	Mode AccessMode
}

// RuleSet is the validated, deduplicated collection of path rules. It holds
// one insertion-ordered list per access category. A given canonical path
// appears in at most one category at any time: classifying a path into a new
// category removes it (and only it, by exact path equality) from the others.
//
// A RuleSet is built once per invocation and must not be modified after being
// handed to Compile. It is not safe for concurrent mutation.
type RuleSet struct {
	readWrite []string
	readOnly  []string
	deny      []string
	logger    *slog.Logger
}

// NewRuleSet returns an empty RuleSet. A nil logger defaults to slog.Default.
func NewRuleSet(logger *slog.Logger) *RuleSet {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleSet{logger: logger}
}

// Add resolves a raw path string and classifies it into the given category.
// ReadWrite paths that do not exist are created on demand (the agent is
// expected to populate them); ReadOnly and Deny paths must already exist,
// because silently skipping a path the user asked to restrict would be a
// security-relevant omission.
func (rs *RuleSet) Add(raw string, mode AccessMode) error {
	var (
		canonical string
		err       error
	)
	if mode == ReadWrite {
		canonical, err = pathutil.ResolveOrCreate(raw)
	} else {
		canonical, err = pathutil.Resolve(raw)
	}
	if err != nil {
		return &PathResolutionError{Path: raw, Err: err}
	}
	rs.Classify(canonical, mode)
	return nil
}

// Classify inserts an already-canonical path into the target category and
// removes any existing entry for the exact same path from the other two.
// Reclassification is "last action wins": it is logged, not an error.
// No-op if the path is already correctly classified.
func (rs *RuleSet) Classify(canonical string, mode AccessMode) {
	if prev, ok := rs.modeOf(canonical); ok {
		if prev == mode {
			return
		}
		rs.remove(canonical)
		rs.logger.Warn("path reclassified",
			"path", canonical,
			"from", prev.String(),
			"to", mode.String(),
		)
	}

	switch mode {
	case ReadWrite:
		rs.readWrite = append(rs.readWrite, canonical)
	case ReadOnly:
		rs.readOnly = append(rs.readOnly, canonical)
	case Deny:
		rs.deny = append(rs.deny, canonical)
	}
}

// modeOf returns the current category of a canonical path, if any.
func (rs *RuleSet) modeOf(canonical string) (AccessMode, bool) {
	if contains(rs.readWrite, canonical) {
		return ReadWrite, true
	}
	if contains(rs.readOnly, canonical) {
		return ReadOnly, true
	}
	if contains(rs.deny, canonical) {
		return Deny, true
	}
	return 0, false
}

// remove deletes canonical from every category by exact string equality.
// Unrelated paths sharing a prefix are untouched.
func (rs *RuleSet) remove(canonical string) {
	rs.readWrite = removeExact(rs.readWrite, canonical)
	rs.readOnly = removeExact(rs.readOnly, canonical)
	rs.deny = removeExact(rs.deny, canonical)
}

// ReadWritePaths returns the read-write category in insertion order.
func (rs *RuleSet) ReadWritePaths() []string {
	return append([]string(nil), rs.readWrite...)
}

// ReadOnlyPaths returns the read-only category in insertion order.
func (rs *RuleSet) ReadOnlyPaths() []string {
	return append([]string(nil), rs.readOnly...)
}

// DenyPaths returns the deny category in insertion order.
func (rs *RuleSet) DenyPaths() []string {
	return append([]string(nil), rs.deny...)
}

// Rules returns every rule across all categories.
func (rs *RuleSet) Rules() []PathRule {
	out := make([]PathRule, 0, len(rs.readWrite)+len(rs.readOnly)+len(rs.deny))
	for _, p := range rs.readWrite {
		out = append(out, PathRule{Path: p, Mode: ReadWrite})
	}
	for _, p := range rs.readOnly {
		out = append(out, PathRule{Path: p, Mode: ReadOnly})
	}
	for _, p := range rs.deny {
		out = append(out, PathRule{Path: p, Mode: Deny})
	}
	return out
}

// ExceptionsFor returns every allow-mode rule whose canonical path is a
// strict or equal subpath of denyPath. The compiler uses these to emit
// precedence-correct carve-outs inside a denied subtree.
func (rs *RuleSet) ExceptionsFor(denyPath string) []PathRule {
	var out []PathRule
	for _, p := range rs.readOnly {
		if pathutil.IsSubpath(denyPath, p) {
			out = append(out, PathRule{Path: p, Mode: ReadOnly})
		}
	}
	for _, p := range rs.readWrite {
		if pathutil.IsSubpath(denyPath, p) {
			out = append(out, PathRule{Path: p, Mode: ReadWrite})
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeExact(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
