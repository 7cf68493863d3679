//go:build unix

package fencerun

import (
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcAttributes places the backend tool in its own process group so
// terminal signals can be forwarded to the whole sandboxed tree at once.
func setProcAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// forwardSignals relays SIGINT and SIGTERM to the backend tool's process
// group until the returned stop function is called. Without this, Ctrl-C at
// the controlling terminal would reach the launcher but not a sandbox child
// detached into its own group.
func forwardSignals(cmd *exec.Cmd) (stop func()) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, unix.SIGINT, unix.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-sigs:
				if cmd.Process != nil {
					_ = unix.Kill(-cmd.Process.Pid, sig.(unix.Signal))
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// signalExitCode maps a signal-terminated wait status to the shell
// convention of 128 plus the signal number.
func signalExitCode(exitErr *exec.ExitError) int {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return -1
}
