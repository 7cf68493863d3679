//go:build !unix

package fencerun

import "os/exec"

func setProcAttributes(cmd *exec.Cmd) {}

func forwardSignals(cmd *exec.Cmd) (stop func()) {
	return func() {}
}

func signalExitCode(exitErr *exec.ExitError) int {
	return -1
}
