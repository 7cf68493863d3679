package fencerun

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/fencerun/fencerun/backend"
	"github.com/fencerun/fencerun/internal/envutil"
)

// Stdio wiring for launched processes. Vars so tests can capture output
// without touching the test runner's own descriptors.
var (
	launchStdin  io.Reader = os.Stdin
	launchStdout io.Writer = os.Stdout
	launchStderr io.Writer = os.Stderr
)

// Launch runs command inside the compiled invocation's sandbox and blocks
// until it exits. The returned exit code is the confined command's own exit
// status, propagated unchanged; err is non-nil only for launch-infrastructure
// failures (missing backend tool, policy rejection, signal death).
//
// Ephemeral compiled artifacts are released before Launch returns, on every
// exit path.
func Launch(ctx context.Context, inv *backend.Invocation, command []string) (int, error) {
	if len(command) == 0 {
		return -1, ErrNilCommand
	}
	defer inv.Cleanup()

	args := append(append([]string(nil), inv.Args[1:]...), command...)
	cmd := exec.CommandContext(ctx, inv.Path, args...)
	cmd.Stdin = launchStdin
	cmd.Stdout = launchStdout
	cmd.Stderr = launchStderr
	cmd.Env = childEnv(inv.Env)
	cmd.ExtraFiles = inv.ExtraFiles
	if inv.WorkDir != "" {
		cmd.Dir = inv.WorkDir
	}
	setProcAttributes(cmd)

	if err := cmd.Start(); err != nil {
		return -1, &BackendError{
			Backend:  inv.Backend,
			Sentinel: ErrBackendUnavailable,
			Detail:   "failed to start backend tool: " + err.Error(),
		}
	}

	stopForwarding := forwardSignals(cmd)
	err := cmd.Wait()
	stopForwarding()

	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, err
	}
	code := exitErr.ExitCode()
	if code < 0 {
		// Killed by a signal. Return the conventional 128+signal shape so the
		// caller still gets a meaningful shell-style code.
		return signalExitCode(exitErr), err
	}
	if inv.IsPolicyRejectExit(code) {
		slog.Debug("backend rejected compiled policy",
			"backend", inv.Backend,
			"exit_code", code,
		)
		return code, &BackendError{
			Backend:  inv.Backend,
			Sentinel: ErrPolicyRejected,
			Detail:   "backend tool exited with a reserved configuration-failure code",
		}
	}
	return code, nil
}

// childEnv builds the backend process environment: the caller's environment
// with loader-injection variables stripped, then the invocation's own entries
// applied on top, replacing any inherited value for the same key.
func childEnv(extra []string) []string {
	env := envutil.Sanitize(os.Environ())
	for _, kv := range extra {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env = envutil.SetEnv(env, k, v)
		}
	}
	return env
}
