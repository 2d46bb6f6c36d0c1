// Package gitx drives a local git repository through the git binary.
// Every duckling task works inside a registered clone, so the operations
// here are the small set the pipeline needs: sync to base, branch, stage,
// commit, push, and inspect history.
package gitx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/duckling/internal/proc"
)

// ErrNothingToCommit is returned by Commit when the index is empty.
var ErrNothingToCommit = errors.New("nothing to commit")

// CommandError represents a git invocation that exited non-zero.
type CommandError struct {
	Command  string
	Args     []string
	Dir      string
	Output   string
	ExitCode int
}

func (e *CommandError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	return fmt.Sprintf("git %s: exit status %d", strings.Join(e.Args, " "), e.ExitCode)
}

// Repo is a handle on one local clone.
type Repo struct {
	dir    string
	runner proc.Runner
	logger *slog.Logger
}

// New returns a Repo rooted at dir. Nil runner or logger get defaults.
func New(dir string, runner proc.Runner, logger *slog.Logger) *Repo {
	if runner == nil {
		runner = proc.NewExecRunner()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repo{dir: dir, runner: runner, logger: logger}
}

// Dir returns the repository root this handle operates on.
func (r *Repo) Dir() string { return r.dir }

// git runs one git command in the repo directory and returns trimmed stdout.
func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	res, err := r.runner.Run(ctx, proc.Cmd{Name: "git", Args: args, Dir: r.dir})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", &CommandError{
			Command:  "git",
			Args:     args,
			Dir:      r.dir,
			Output:   res.CombinedOutput(),
			ExitCode: res.ExitCode,
		}
	}
	return strings.TrimSpace(res.Stdout), nil
}

// IsRepo reports whether dir is inside a git working tree.
func (r *Repo) IsRepo(ctx context.Context) bool {
	out, err := r.git(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// Fetch updates remote tracking refs. Branch may be empty to fetch all.
func (r *Repo) Fetch(ctx context.Context, remote, branch string) error {
	args := []string{"fetch", remote}
	if branch != "" {
		args = append(args, branch)
	}
	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("fetch %s: %w", remote, err)
	}
	return nil
}

// Checkout switches the working tree to branch.
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	if _, err := r.git(ctx, "checkout", branch); err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}
	return nil
}

// Pull merges the remote branch into the current one. Branch may be empty
// to pull the tracked upstream.
func (r *Repo) Pull(ctx context.Context, remote, branch string) error {
	args := []string{"pull", remote}
	if branch != "" {
		args = append(args, branch)
	}
	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("pull %s: %w", remote, err)
	}
	return nil
}

// HardReset discards all tracked modifications.
func (r *Repo) HardReset(ctx context.Context) error {
	if _, err := r.git(ctx, "reset", "--hard", "HEAD"); err != nil {
		return fmt.Errorf("reset --hard: %w", err)
	}
	return nil
}

// CleanFD removes untracked files and directories.
func (r *Repo) CleanFD(ctx context.Context) error {
	if _, err := r.git(ctx, "clean", "-fd"); err != nil {
		return fmt.Errorf("clean -fd: %w", err)
	}
	return nil
}

// CreateBranch creates branch at HEAD and switches to it.
func (r *Repo) CreateBranch(ctx context.Context, name string) error {
	if _, err := r.git(ctx, "checkout", "-b", name); err != nil {
		return fmt.Errorf("create branch %s: %w", name, err)
	}
	return nil
}

// LocalBranches lists local branch names.
func (r *Repo) LocalBranches(ctx context.Context) ([]string, error) {
	out, err := r.git(ctx, "branch", "--list", "--format=%(refname:short)")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	if out == "" {
		return nil, nil
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		if b := strings.TrimSpace(line); b != "" {
			branches = append(branches, b)
		}
	}
	return branches, nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("current branch: %w", err)
	}
	return out, nil
}

// Status summarizes the working tree relative to HEAD.
type Status struct {
	Files    []string
	Modified []string
	Created  []string
	Deleted  []string
	Renamed  []string
	Current  string
}

// HasChanges reports whether any tracked or untracked change exists.
func (s *Status) HasChanges() bool { return len(s.Files) > 0 }

// Status parses `git status --porcelain` into per-kind file lists.
func (r *Repo) Status(ctx context.Context) (*Status, error) {
	out, err := r.git(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	st := &Status{}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 3 {
			continue
		}
		code := line[:2]
		file := strings.TrimSpace(line[3:])
		// Renames come through as "old -> new"; keep the new path.
		if i := strings.Index(file, " -> "); i != -1 {
			file = file[i+4:]
		}
		st.Files = append(st.Files, file)

		switch {
		case code == "??" || strings.ContainsRune(code, 'A'):
			st.Created = append(st.Created, file)
		case strings.ContainsRune(code, 'R'):
			st.Renamed = append(st.Renamed, file)
		case strings.ContainsRune(code, 'D'):
			st.Deleted = append(st.Deleted, file)
		case strings.ContainsRune(code, 'M'):
			st.Modified = append(st.Modified, file)
		}
	}

	current, err := r.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}
	st.Current = current
	return st, nil
}

// Add stages path. Use "." to stage everything.
func (r *Repo) Add(ctx context.Context, path string) error {
	if _, err := r.git(ctx, "add", path); err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}
	return nil
}

// HasStagedChanges reports whether the index differs from HEAD.
func (r *Repo) HasStagedChanges(ctx context.Context) (bool, error) {
	out, err := r.git(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return false, fmt.Errorf("staged changes: %w", err)
	}
	return out != "", nil
}

// Commit records the staged changes. Returns ErrNothingToCommit when the
// index has nothing staged.
func (r *Repo) Commit(ctx context.Context, message string) error {
	_, err := r.git(ctx, "commit", "-m", message)
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && strings.Contains(cmdErr.Output, "nothing to commit") {
			return ErrNothingToCommit
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Push uploads branch to remote, setting the upstream on first push.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	if _, err := r.git(ctx, "push", "-u", remote, branch); err != nil {
		return fmt.Errorf("push %s %s: %w", remote, branch, err)
	}
	return nil
}

// LastCommitTimestamp returns the committer timestamp of HEAD.
func (r *Repo) LastCommitTimestamp(ctx context.Context) (time.Time, error) {
	out, err := r.git(ctx, "log", "-1", "--format=%cI")
	if err != nil {
		return time.Time{}, fmt.Errorf("last commit timestamp: %w", err)
	}
	ts, err := time.Parse(time.RFC3339, out)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse commit timestamp %q: %w", out, err)
	}
	return ts, nil
}

// Diff returns the diff for the given revision arguments, or the working
// tree diff when none are given.
func (r *Repo) Diff(ctx context.Context, revs ...string) (string, error) {
	args := append([]string{"diff"}, revs...)
	out, err := r.git(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("diff: %w", err)
	}
	return out, nil
}

// RemoteURL returns the push URL of remote.
func (r *Repo) RemoteURL(ctx context.Context, remote string) (string, error) {
	out, err := r.git(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", fmt.Errorf("remote url %s: %w", remote, err)
	}
	return out, nil
}
