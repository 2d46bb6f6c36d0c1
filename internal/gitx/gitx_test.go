package gitx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/duckling/internal/proc"
)

// fakeRunner returns canned results keyed by the joined git arguments and
// records every invocation.
type fakeRunner struct {
	results map[string]proc.Result
	errs    map[string]error
	calls   []proc.Cmd
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		results: make(map[string]proc.Result),
		errs:    make(map[string]error),
	}
}

func (f *fakeRunner) Run(_ context.Context, cmd proc.Cmd) (proc.Result, error) {
	f.calls = append(f.calls, cmd)
	key := strings.Join(cmd.Args, " ")
	if err, ok := f.errs[key]; ok {
		return proc.Result{}, err
	}
	if res, ok := f.results[key]; ok {
		return res, nil
	}
	return proc.Result{}, nil
}

func (f *fakeRunner) stub(args string, stdout string) {
	f.results[args] = proc.Result{Stdout: stdout}
}

func (f *fakeRunner) stubExit(args string, code int, stderr string) {
	f.results[args] = proc.Result{ExitCode: code, Stderr: stderr}
}

func (f *fakeRunner) argLines() []string {
	var lines []string
	for _, c := range f.calls {
		lines = append(lines, strings.Join(c.Args, " "))
	}
	return lines
}

func TestRepoRunsCommandsInDir(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	repo := New("/work/repo", runner, nil)

	require.NoError(t, repo.Fetch(context.Background(), "origin", "main"))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "git", runner.calls[0].Name)
	assert.Equal(t, "/work/repo", runner.calls[0].Dir)
	assert.Equal(t, []string{"fetch", "origin", "main"}, runner.calls[0].Args)
}

func TestRepoCommandError(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	runner.stubExit("checkout missing", 1, "error: pathspec 'missing' did not match")
	repo := New("/work/repo", runner, nil)

	err := repo.Checkout(context.Background(), "missing")
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Output, "pathspec")
}

func TestLocalBranches(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	runner.stub("branch --list --format=%(refname:short)", "main\nduckling-fix\nduckling-fix-1\n")
	repo := New("/work/repo", runner, nil)

	branches, err := repo.LocalBranches(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "duckling-fix", "duckling-fix-1"}, branches)
}

func TestLocalBranchesEmpty(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	repo := New("/work/repo", runner, nil)

	branches, err := repo.LocalBranches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, branches)
}

func TestStatusParsesPorcelain(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	runner.stub("status --porcelain", strings.Join([]string{
		" M internal/a.go",
		"A  internal/b.go",
		"?? docs/new.md",
		" D old.go",
		"R  from.go -> to.go",
	}, "\n"))
	runner.stub("rev-parse --abbrev-ref HEAD", "duckling-fix")
	repo := New("/work/repo", runner, nil)

	st, err := repo.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "duckling-fix", st.Current)
	assert.Equal(t, []string{"internal/a.go", "internal/b.go", "docs/new.md", "old.go", "to.go"}, st.Files)
	assert.Equal(t, []string{"internal/a.go"}, st.Modified)
	assert.Equal(t, []string{"internal/b.go", "docs/new.md"}, st.Created)
	assert.Equal(t, []string{"old.go"}, st.Deleted)
	assert.Equal(t, []string{"to.go"}, st.Renamed)
	assert.True(t, st.HasChanges())
}

func TestStatusCleanTree(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	runner.stub("rev-parse --abbrev-ref HEAD", "main")
	repo := New("/work/repo", runner, nil)

	st, err := repo.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.HasChanges())
	assert.Equal(t, "main", st.Current)
}

func TestCommitNothingToCommit(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	runner.stubExit("commit -m msg", 1, "nothing to commit, working tree clean")
	repo := New("/work/repo", runner, nil)

	err := repo.Commit(context.Background(), "msg")
	require.ErrorIs(t, err, ErrNothingToCommit)
}

func TestHasStagedChanges(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	runner.stub("diff --cached --name-only", "a.go\nb.go")
	repo := New("/work/repo", runner, nil)

	staged, err := repo.HasStagedChanges(context.Background())
	require.NoError(t, err)
	assert.True(t, staged)
}

func TestHasStagedChangesEmpty(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	repo := New("/work/repo", runner, nil)

	staged, err := repo.HasStagedChanges(context.Background())
	require.NoError(t, err)
	assert.False(t, staged)
}

func TestLastCommitTimestamp(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	runner.stub("log -1 --format=%cI", "2024-01-02T15:04:05+01:00")
	repo := New("/work/repo", runner, nil)

	ts, err := repo.LastCommitTimestamp(context.Background())
	require.NoError(t, err)
	want, _ := time.Parse(time.RFC3339, "2024-01-02T15:04:05+01:00")
	assert.True(t, ts.Equal(want))
}

func TestLastCommitTimestampMalformed(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	runner.stub("log -1 --format=%cI", "not-a-timestamp")
	repo := New("/work/repo", runner, nil)

	_, err := repo.LastCommitTimestamp(context.Background())
	require.Error(t, err)
}

func TestSyncSequence(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	repo := New("/work/repo", runner, nil)
	ctx := context.Background()

	require.NoError(t, repo.HardReset(ctx))
	require.NoError(t, repo.CleanFD(ctx))
	require.NoError(t, repo.Fetch(ctx, "origin", ""))
	require.NoError(t, repo.Checkout(ctx, "main"))
	require.NoError(t, repo.Pull(ctx, "origin", "main"))

	assert.Equal(t, []string{
		"reset --hard HEAD",
		"clean -fd",
		"fetch origin",
		"checkout main",
		"pull origin main",
	}, runner.argLines())
}

func TestPushSetsUpstream(t *testing.T) {
	t.Parallel()
	runner := newFakeRunner()
	repo := New("/work/repo", runner, nil)

	require.NoError(t, repo.Push(context.Background(), "origin", "duckling-fix"))
	assert.Equal(t, []string{"push -u origin duckling-fix"}, runner.argLines())
}
