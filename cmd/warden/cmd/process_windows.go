//go:build windows

package cmd

import (
	"os"

	"golang.org/x/sys/windows"
)

// windowsStillActive is the exit code GetExitCodeProcess reports for a
// process that has not exited.
const windowsStillActive = 259

// gracefulSignals lists the signals that trigger a clean daemon shutdown.
// Windows reliably delivers only os.Interrupt (CTRL_C_EVENT); SIGTERM has
// no equivalent there.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

// processIsAlive probes liveness by opening a limited-information handle
// and reading the exit code.
func processIsAlive(proc *os.Process) bool {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(proc.Pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(handle)

	var exitCode uint32
	if err := windows.GetExitCodeProcess(handle, &exitCode); err != nil {
		return false
	}
	return exitCode == windowsStillActive
}

// sendGracefulStop stops the daemon. Kill maps to TerminateProcess; Windows
// has no graceful signal to send, so stop is immediate.
func sendGracefulStop(proc *os.Process) error {
	return proc.Kill()
}
