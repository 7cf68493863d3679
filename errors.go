package fencerun

import (
	"errors"
	"fmt"

	"github.com/fencerun/fencerun/seccomp"
)

// Sentinel errors returned by the fencerun package.
var (
	// ErrPathResolution indicates a requested path could not be canonicalized.
	// A path the user asked to deny or allow that silently disappears is a
	// security-relevant omission, so resolution failures are always fatal.
	ErrPathResolution = errors.New("fencerun: path resolution failed")

	// ErrUnsupportedArch indicates the syscall filter cannot be synthesized
	// for the running CPU architecture. Launching the namespace backend
	// without the filter would reopen the terminal-injection vector it
	// exists to close, so this is fatal rather than a silent no-op. It is
	// the seccomp package's sentinel re-exported for callers matching on
	// the engine's error taxonomy.
	ErrUnsupportedArch = seccomp.ErrUnsupportedArch

	// ErrBackendUnavailable indicates the selected backend's underlying tool
	// is not installed or not usable on this system.
	ErrBackendUnavailable = errors.New("fencerun: backend unavailable")

	// ErrPolicyRejected indicates the backend tool rejected the compiled
	// configuration at launch time. The compiler should never emit syntax
	// the backend cannot parse, so this is treated as an engine bug.
	ErrPolicyRejected = errors.New("fencerun: backend rejected compiled policy")

	// ErrNoBackend indicates auto-detection found no usable backend.
	ErrNoBackend = errors.New("fencerun: no usable sandbox backend found")

	// ErrNilCommand indicates an empty command was passed to Launch.
	ErrNilCommand = errors.New("fencerun: command must not be empty")
)

// PathResolutionError is returned when a user-supplied path cannot be
// canonicalized. It wraps ErrPathResolution so that
// errors.Is(err, ErrPathResolution) still works.
type PathResolutionError struct {
	// Path is the raw path string as supplied by the caller.
	Path string
	// Err is the underlying resolution failure.
	Err error
}

func (e *PathResolutionError) Error() string {
	return fmt.Sprintf("%s: %q: %v", ErrPathResolution.Error(), e.Path, e.Err)
}

func (e *PathResolutionError) Unwrap() error {
	return ErrPathResolution
}

// BackendError is returned when a backend tool is missing or rejects the
// compiled policy. It wraps either ErrBackendUnavailable or ErrPolicyRejected
// so errors.Is works against the sentinels.
type BackendError struct {
	// Backend is the backend name (e.g. "seatbelt", "bwrap", "docker").
	Backend string
	// Sentinel is ErrBackendUnavailable or ErrPolicyRejected.
	Sentinel error
	// Detail is a human-readable description of the failure.
	Detail string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Sentinel.Error(), e.Backend, e.Detail)
}

func (e *BackendError) Unwrap() error {
	return e.Sentinel
}
