// Package lock guards the server's data directory against double starts.
//
// The engine promises strict FIFO execution with a single worker. Two
// servers sharing one database would silently break that promise, so the
// serve command claims the directory with a PID file before opening it.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFileName is the claim file written into the data directory.
const PIDFileName = "duckling.pid"

// Guard claims a data directory for a single server process.
type Guard struct {
	dir string
}

// New creates a guard for the given data directory.
func New(dir string) *Guard {
	return &Guard{dir: dir}
}

func (g *Guard) path() string {
	return filepath.Join(g.dir, PIDFileName)
}

// Acquire claims the directory for the current process. A live holder is
// reported as *AlreadyRunningError. Stale and malformed PID files are
// cleaned up and the claim proceeds.
func (g *Guard) Acquire() error {
	data, err := os.ReadFile(g.path())
	switch {
	case err == nil:
		pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if convErr == nil && processAlive(pid) {
			return &AlreadyRunningError{PID: pid}
		}
		// Leftover from a dead or garbled holder.
		os.Remove(g.path())
	case !os.IsNotExist(err):
		return fmt.Errorf("read pid file: %w", err)
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(g.path(), []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release drops the claim. Safe to call when no claim exists.
func (g *Guard) Release() {
	os.Remove(g.path())
}

// AlreadyRunningError reports the PID of the server holding the directory.
type AlreadyRunningError struct {
	PID int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("duckling server already running (pid %d)", e.PID)
}

// processAlive reports whether a process with the given PID exists. On
// Unix os.FindProcess always succeeds, so signal 0 does the real probe.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
