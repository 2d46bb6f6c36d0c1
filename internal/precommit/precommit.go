// Package precommit runs a repository's configured check commands against
// the working tree before each commit. Checks run in order and every check
// runs even when earlier ones fail, so a fix round sees the full picture.
package precommit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/randalmurphal/duckling/internal/proc"
	"github.com/randalmurphal/duckling/internal/task"
)

// DefaultCheckTimeout caps a single check command.
const DefaultCheckTimeout = 5 * time.Minute

// Failure describes one check that did not pass.
type Failure struct {
	Name    string
	Command string
	Output  string
	Err     error
}

// String renders the failure as "<name>: <first line of detail>".
func (f Failure) String() string {
	detail := firstLine(f.Output)
	if detail == "" && f.Err != nil {
		detail = firstLine(f.Err.Error())
	}
	if detail == "" {
		detail = "check failed"
	}
	return f.Name + ": " + detail
}

// Format joins failures one per line for logs and fix prompts.
func Format(failures []Failure) string {
	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		lines = append(lines, f.String())
	}
	return strings.Join(lines, "\n")
}

// Runner executes pre-commit checks through a proc.Runner.
type Runner struct {
	runner  proc.Runner
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a check runner. A zero timeout uses DefaultCheckTimeout.
func New(runner proc.Runner, timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{runner: runner, timeout: timeout, logger: logger}
}

// Run executes checks in order inside dir via `sh -c`. changed lists the
// files touched in the working tree; checks with a Paths glob are skipped
// when no changed file matches. Returns one Failure per check that exited
// non-zero or could not run; nil when everything passed.
func (r *Runner) Run(ctx context.Context, checks []task.PrecommitCheck, dir string, changed []string) []Failure {
	var failures []Failure

	for _, check := range checks {
		if ctx.Err() != nil {
			break
		}

		if skip, reason := r.shouldSkip(check, changed); skip {
			r.logger.Debug("skipping check", "check", check.Name, "reason", reason)
			continue
		}

		r.logger.Debug("running check", "check", check.Name, "command", check.Command)

		res, err := r.runner.Run(ctx, proc.Cmd{
			Name:    "sh",
			Args:    []string{"-c", check.Command},
			Dir:     dir,
			Timeout: r.timeout,
		})
		if err != nil {
			failures = append(failures, Failure{Name: check.Name, Command: check.Command, Err: err})
			continue
		}
		if !res.Success() {
			failures = append(failures, Failure{
				Name:    check.Name,
				Command: check.Command,
				Output:  res.CombinedOutput(),
			})
		}
	}

	return failures
}

// shouldSkip applies the Paths glob filter. Invalid globs run the check
// rather than silently skipping it.
func (r *Runner) shouldSkip(check task.PrecommitCheck, changed []string) (bool, string) {
	if check.Paths == "" {
		return false, ""
	}
	if !doublestar.ValidatePattern(check.Paths) {
		r.logger.Warn("invalid paths glob, running check anyway", "check", check.Name, "paths", check.Paths)
		return false, ""
	}

	for _, f := range changed {
		if ok, _ := doublestar.Match(check.Paths, f); ok {
			return false, ""
		}
	}
	return true, "no changed file matches " + check.Paths
}

// firstLine returns the first non-empty line of s.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
