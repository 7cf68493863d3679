// Package bwrap compiles policies for the Linux namespace sandbox
// (bubblewrap). bwrap consumes an ordered sequence of bind-mount operations
// where later bindings override earlier ones at the same or nested path, so
// denies are realized as tmpfs overlays followed by real bind-mounts for the
// exceptions nested inside them.
//
// The synthesized seccomp filter is attached unconditionally on this backend,
// independent of user-specified paths: without it, TIOCSTI/TIOCLINUX let the
// confined process type into the controlling terminal.
package bwrap

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/fencerun/fencerun/backend"
	"github.com/fencerun/fencerun/internal/pathutil"
	"github.com/fencerun/fencerun/seccomp"
)

// lookPath locates the bwrap binary. It is a var so tests can override it.
var lookPath = exec.LookPath

// synthesizeFilter produces the seccomp program attached to every
// invocation. It is a var so tests can observe failures without depending on
// the host architecture.
var synthesizeFilter = func() (*seccomp.Program, error) {
	return seccomp.Precompiled(seccomp.DetectArch())
}

// seccompChildFD is the descriptor number the filter is passed on. The first
// entry of ExtraFiles becomes fd 3 in the child.
const seccompChildFD = 3

// Backend implements backend.Backend using bubblewrap.
type Backend struct{}

// New returns a new bwrap Backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return "bwrap"
}

// Available reports whether the bwrap binary is on PATH.
func (b *Backend) Available() bool {
	_, err := lookPath("bwrap")
	return err == nil
}

// CheckDependencies inspects the system for bwrap and user-namespace
// support.
func (b *Backend) CheckDependencies() *backend.DependencyCheck {
	check := &backend.DependencyCheck{}
	if _, err := lookPath("bwrap"); err != nil {
		check.Errors = append(check.Errors, fmt.Sprintf("bwrap not found on PATH: %v", err))
	}
	if data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone"); err == nil {
		if strings.TrimSpace(string(data)) == "0" {
			check.Warnings = append(check.Warnings,
				"unprivileged user namespaces disabled: bwrap may require setuid")
		}
	}
	if _, err := synthesizeFilter(); err != nil {
		check.Errors = append(check.Errors, fmt.Sprintf("seccomp filter synthesis: %v", err))
	}
	return check
}

// mountKind is the low-level bwrap operation for one mount entry.
type mountKind int

const (
	mountRoBind mountKind = iota
	mountBind
	mountTmpfs
)

// mountEntry is a single mount operation plus the depth used to order it.
type mountEntry struct {
	kind  mountKind
	path  string
	depth int
}

// Compile lowers pol into a bwrap invocation. Mounts are emitted shallowest
// destination first so that parent mounts are applied before children; a
// narrower binding emitted later re-exposes or re-hides paths inside any
// broader binding that precedes it.
func (b *Backend) Compile(pol *backend.Policy) (*backend.Invocation, error) {
	bwrapPath, err := lookPath("bwrap")
	if err != nil {
		return nil, fmt.Errorf("bwrap: %w", err)
	}

	filter, err := synthesizeFilter()
	if err != nil {
		return nil, fmt.Errorf("bwrap: %w", err)
	}

	args := []string{
		"bwrap",
		"--die-with-parent",
		"--unshare-pid",
		"--unshare-ipc",
		"--unshare-uts",
		// Baseline: the whole host read-only, then fresh dev/proc/tmp.
		"--ro-bind", "/", "/",
		"--dev", "/dev",
		"--proc", "/proc",
		"--tmpfs", "/tmp",
	}

	for _, m := range buildMounts(pol) {
		switch m.kind {
		case mountRoBind:
			args = append(args, "--ro-bind", m.path, m.path)
		case mountBind:
			args = append(args, "--bind", m.path, m.path)
		case mountTmpfs:
			args = append(args, "--tmpfs", m.path)
		}
	}

	inv := &backend.Invocation{
		Backend: b.Name(),
		Path:    bwrapPath,
		WorkDir: pol.Project,
	}

	filterFile, err := writeFilterArtifact(filter)
	if err != nil {
		return nil, fmt.Errorf("bwrap: %w", err)
	}
	inv.ExtraFiles = []*os.File{filterFile}
	name := filterFile.Name()
	inv.AddCleanup(func() error {
		cerr := filterFile.Close()
		if rerr := os.Remove(name); rerr != nil && !os.IsNotExist(rerr) {
			return rerr
		}
		return cerr
	})

	args = append(args, "--seccomp", strconv.Itoa(seccompChildFD))
	if pol.Project != "" {
		args = append(args, "--chdir", pol.Project)
	}
	args = append(args, "--")
	inv.Args = args

	return inv, nil
}

// buildMounts produces the deterministic, depth-ordered mount list for pol.
// Safe mode is an empty tmpfs over the home directory; because it is shallower
// than the project and grant bindings, those still take precedence as later
// bindings.
func buildMounts(pol *backend.Policy) []mountEntry {
	byPath := make(map[string]mountKind)

	if pol.SafeMode && pol.Home != "" {
		byPath[filepath.Clean(pol.Home)] = mountTmpfs
	}
	for _, p := range pol.ReadWrite {
		byPath[filepath.Clean(p)] = mountBind
	}
	if pol.Project != "" {
		byPath[filepath.Clean(pol.Project)] = mountBind
	}
	for _, p := range pol.ReadOnly {
		byPath[filepath.Clean(p)] = mountRoBind
	}
	for _, p := range pol.Deny {
		byPath[filepath.Clean(p)] = mountTmpfs
	}

	mounts := make([]mountEntry, 0, len(byPath))
	for p, kind := range byPath {
		mounts = append(mounts, mountEntry{kind: kind, path: p, depth: pathutil.Depth(p)})
	}
	sort.Slice(mounts, func(i, j int) bool {
		if mounts[i].depth != mounts[j].depth {
			return mounts[i].depth < mounts[j].depth
		}
		return mounts[i].path < mounts[j].path
	})
	return mounts
}

// writeFilterArtifact persists the synthesized filter to a per-invocation
// temporary file with an unpredictable name and reopens it read-only for
// inheritance. Concurrent sessions never collide on the artifact path.
func writeFilterArtifact(prog *seccomp.Program) (*os.File, error) {
	path := filepath.Join(os.TempDir(), "fencerun-seccomp-"+uuid.NewString()+".bpf")
	if err := prog.WriteFile(path); err != nil {
		return nil, fmt.Errorf("write filter artifact: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("open filter artifact: %w", err)
	}
	return f, nil
}
