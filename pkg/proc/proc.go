// Package proc answers process liveness questions for the session layer.
//
// A dead server process must be distinguished from a reachable-but-erroring
// one before any network call is made: on some platforms a crashed process
// briefly leaves its port half-open, so liveness gates network access rather
// than the reverse.
package proc

import (
	"os"
	"syscall"
)

// Alive reports whether the process with the given pid is currently running.
// Signal 0 performs the kernel-side existence and permission check without
// delivering anything.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
