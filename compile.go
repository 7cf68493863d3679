package fencerun

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/fencerun/fencerun/backend"
	"github.com/fencerun/fencerun/backend/bwrap"
	"github.com/fencerun/fencerun/backend/docker"
	"github.com/fencerun/fencerun/backend/seatbelt"
	"github.com/fencerun/fencerun/internal/pathutil"
)

// BackendKind selects a confinement backend, or auto-detection.
type BackendKind string

const (
	// BackendAuto probes backends in a fixed preference order: the native
	// OS sandbox first, then the namespace sandbox, then the container
	// runtime as the fallback.
	BackendAuto BackendKind = "auto"

	// BackendSeatbelt selects the macOS sandbox-exec backend.
	BackendSeatbelt BackendKind = "seatbelt"

	// BackendBwrap selects the Linux namespace (bubblewrap) backend.
	BackendBwrap BackendKind = "bwrap"

	// BackendDocker selects the container runtime backend.
	BackendDocker BackendKind = "docker"
)

// probeOrder constructs the backend candidates in preference order. It is a
// var so tests can substitute fake backends.
var probeOrder = func() []backend.Backend {
	return []backend.Backend{seatbelt.New(), bwrap.New(), docker.New()}
}

// CompileOption configures a single Compile call.
type CompileOption func(*compileOptions)

// compileOptions holds per-call configuration applied via CompileOption.
type compileOptions struct {
	safeMode bool
	kind     BackendKind
	project  string
	image    string
	logger   *slog.Logger
}

// WithSafeMode hides the user's home directory from the confined process
// except for the project directory and explicit grants.
func WithSafeMode(on bool) CompileOption {
	return func(o *compileOptions) {
		o.safeMode = on
	}
}

// WithBackend selects a backend explicitly instead of auto-detecting.
func WithBackend(kind BackendKind) CompileOption {
	return func(o *compileOptions) {
		o.kind = kind
	}
}

// WithProject sets the project directory. Defaults to the current working
// directory. The project is always reachable read-write and becomes the
// working directory of the confined process.
func WithProject(dir string) CompileOption {
	return func(o *compileOptions) {
		o.project = dir
	}
}

// WithImage sets the container image for the container runtime backend.
func WithImage(image string) CompileOption {
	return func(o *compileOptions) {
		o.image = image
	}
}

// WithLogger sets the logger used during compilation.
func WithLogger(logger *slog.Logger) CompileOption {
	return func(o *compileOptions) {
		o.logger = logger
	}
}

// Compile turns a validated RuleSet into a ready-to-launch backend
// invocation. It is pure apart from path resolution and the namespace
// backend's ephemeral filter artifact, which is owned by the returned
// invocation and released by its Cleanup.
func Compile(rs *RuleSet, opts ...CompileOption) (*backend.Invocation, error) {
	co := &compileOptions{kind: BackendAuto}
	for _, opt := range opts {
		opt(co)
	}
	if co.logger == nil {
		co.logger = slog.Default()
	}

	pol, err := buildPolicy(rs, co)
	if err != nil {
		return nil, err
	}

	be, err := selectBackend(co.kind)
	if err != nil {
		return nil, err
	}
	co.logger.Debug("backend selected", "backend", be.Name())

	inv, err := be.Compile(pol)
	if err != nil {
		return nil, fmt.Errorf("compile policy for %s: %w", be.Name(), err)
	}
	return inv, nil
}

// buildPolicy assembles the backend-agnostic policy from the rule set and
// per-call options.
func buildPolicy(rs *RuleSet, co *compileOptions) (*backend.Policy, error) {
	project := co.project
	if project == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("fencerun: cannot determine working directory: %w", err)
		}
		project = wd
	}
	project, err := pathutil.Resolve(project)
	if err != nil {
		return nil, &PathResolutionError{Path: co.project, Err: err}
	}

	pol := &backend.Policy{
		ReadWrite: rs.ReadWritePaths(),
		ReadOnly:  rs.ReadOnlyPaths(),
		Deny:      rs.DenyPaths(),
		SafeMode:  co.safeMode,
		Project:   project,
		Image:     co.image,
		TTY:       term.IsTerminal(int(os.Stdin.Fd())),
	}

	if co.safeMode {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("fencerun: safe mode requires a home directory: %w", err)
		}
		resolved, err := pathutil.Resolve(home)
		if err != nil {
			return nil, &PathResolutionError{Path: home, Err: err}
		}
		pol.Home = resolved
	}

	return pol, nil
}

// selectBackend returns the requested backend, or probes the preference
// order when kind is BackendAuto. Probing is a selection strategy, not error
// recovery: an explicitly requested backend that is unavailable fails
// outright rather than falling through to the next candidate.
func selectBackend(kind BackendKind) (backend.Backend, error) {
	candidates := probeOrder()

	if kind == BackendAuto || kind == "" {
		for _, be := range candidates {
			if be.Available() {
				return be, nil
			}
		}
		return nil, ErrNoBackend
	}

	for _, be := range candidates {
		if BackendKind(be.Name()) != kind {
			continue
		}
		if !be.Available() {
			return nil, &BackendError{
				Backend:  be.Name(),
				Sentinel: ErrBackendUnavailable,
				Detail:   "requested backend tool is not installed or not usable",
			}
		}
		return be, nil
	}
	return nil, fmt.Errorf("fencerun: unknown backend %q", kind)
}
