// Package proc runs child processes with timeouts and captured output.
// It is the single seam between duckling and the outside world's binaries
// (git, coding assistants, pre-commit commands), so tests can swap in a
// fake Runner and never spawn anything.
package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Cmd describes one child process invocation.
type Cmd struct {
	Name string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Env entries are appended to the parent environment.
	Env []string
	// Stdin is written to the process before waiting, when non-empty.
	Stdin string
	// Timeout bounds the run. Zero means no timeout beyond ctx.
	Timeout time.Duration
}

// Result holds the captured outcome of a finished process.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the process exited zero.
func (r Result) Success() bool { return r.ExitCode == 0 }

// CombinedOutput returns stderr when present, otherwise stdout. Failing
// tools split diagnostics between the two inconsistently.
func (r Result) CombinedOutput() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Runner executes child processes.
//
// A non-zero exit code is NOT an error: it comes back in Result.ExitCode
// so callers like the pre-commit runner can inspect it. The error return
// is reserved for failures to run at all (missing binary, timeout,
// context cancellation).
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
}

// Error carries the context of a process that could not run.
type Error struct {
	Command string
	Args    []string
	Dir     string
	Output  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Command, strings.Join(e.Args, " "))
	if e.Output != "" {
		return fmt.Sprintf("%s: %s", msg, e.Output)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg + ": failed"
}

func (e *Error) Unwrap() error { return e.Err }

// ExecRunner is the default Runner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner that spawns real processes.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run executes cmd and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, cmd Cmd) (Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	// Timeout or spawn failure. Prefer the deadline error so callers can
	// tell a slow process from a missing binary.
	cause := err
	if ctx.Err() != nil {
		cause = ctx.Err()
	}
	return res, &Error{
		Command: cmd.Name,
		Args:    cmd.Args,
		Dir:     cmd.Dir,
		Output:  res.CombinedOutput(),
		Err:     cause,
	}
}
