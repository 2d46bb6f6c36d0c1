package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/duckling/internal/hosting"
	"github.com/randalmurphal/duckling/internal/retry"
	"github.com/randalmurphal/duckling/internal/task"
)

// feedbackCommitMessage is the fixed subject for review-driven commits.
const feedbackCommitMessage = "Address PR review feedback"

// ingestReviews handles one awaiting-review task for a tick: sync the
// branch, collect qualifying reviews, resolve the PR state, and apply any
// feedback. Failures leave the task in awaiting-review; the next tick
// retries.
func (e *Engine) ingestReviews(ctx context.Context, taskID int64) error {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != task.StatusAwaitingReview {
		e.logger.Debug("review skipped, task no longer awaiting review",
			"task_id", taskID, "status", t.Status)
		return nil
	}
	if !t.HasPR() || t.BranchName == "" {
		e.logger.Debug("review skipped, task has no pr or branch", "task_id", taskID)
		return nil
	}

	repo, err := e.store.GetRepository(ctx, t.RepositoryPath)
	if err != nil {
		return e.reviewError(ctx, t, err)
	}
	provider, err := e.provider(ctx, repo)
	if err != nil {
		return e.reviewError(ctx, t, err)
	}
	git := e.openRepo(t.RepositoryPath)

	if err := e.switchToBranch(ctx, git, t.BranchName); err != nil {
		return e.reviewError(ctx, t, err)
	}

	// The last-commit timestamp is the freshness bound: only reviews
	// submitted after it are picked up. Unknown means no lower bound.
	var lastCommit time.Time
	if ts, err := git.LastCommitTimestamp(ctx); err != nil {
		e.logger.Warn("last commit timestamp unavailable, treating every review as new",
			"task_id", t.ID, "error", err)
	} else {
		lastCommit = ts
	}

	feedback, newestID, err := e.collectFeedback(ctx, provider, repo, t, lastCommit)
	if err != nil {
		return e.reviewError(ctx, t, err)
	}

	pr, err := retry.Do(ctx, e.retryConfig(ctx), func(ctx context.Context) (*hosting.PR, error) {
		return provider.GetPR(ctx, repo.Owner, repo.Name, t.PRNumber)
	})
	if err != nil {
		return e.reviewError(ctx, t, err)
	}
	if pr.Merged {
		return e.transitionFresh(ctx, t, task.StatusCompleted, task.StageCompleted,
			task.LogInfo, "Pull request merged")
	}
	if pr.State == "closed" {
		return e.transitionFresh(ctx, t, task.StatusCancelled, task.StageCancelled,
			task.LogInfo, "Pull request closed without merging")
	}

	if feedback == "" {
		return nil
	}
	if err := e.applyReviewFeedback(ctx, t, git, feedback, newestID); err != nil {
		return e.reviewError(ctx, t, err)
	}
	return nil
}

// reviewError records a review-ingestion failure against the task. The
// task stays awaiting-review.
func (e *Engine) reviewError(ctx context.Context, t *task.Task, err error) error {
	e.logTask(ctx, t.ID, task.LogError, "Review processing failed: "+err.Error())
	return fmt.Errorf("review task %d: %w", t.ID, err)
}

// switchToBranch force-syncs the working tree onto the task branch. Pull
// failure is tolerated; the local branch may simply be ahead.
func (e *Engine) switchToBranch(ctx context.Context, git GitRepo, branch string) error {
	if err := git.HardReset(ctx); err != nil {
		return err
	}
	if err := git.CleanFD(ctx); err != nil {
		return err
	}
	if err := e.retryOp(ctx, func(ctx context.Context) error {
		return git.Fetch(ctx, "origin", branch)
	}); err != nil {
		return err
	}
	if err := git.Checkout(ctx, branch); err != nil {
		return err
	}
	if err := e.retryOp(ctx, func(ctx context.Context) error {
		return git.Pull(ctx, "origin", branch)
	}); err != nil {
		e.logger.Warn("pull failed on review branch, continuing with local state",
			"branch", branch, "error", err)
	}
	return nil
}

// reviewBundle pairs a qualifying review with its line comments.
type reviewBundle struct {
	review   hosting.Review
	comments []hosting.ReviewComment
}

// collectFeedback gathers qualifying reviews with their line comments and
// renders them into one combined feedback blob. It returns the blob and
// the newest qualifying review id; an empty blob means nothing qualified.
func (e *Engine) collectFeedback(ctx context.Context, provider hosting.Provider, repo *task.Repository, t *task.Task, lastCommit time.Time) (string, int64, error) {
	rcfg := e.retryConfig(ctx)
	reviews, err := retry.Do(ctx, rcfg, func(ctx context.Context) ([]hosting.Review, error) {
		return provider.ListReviews(ctx, repo.Owner, repo.Name, t.PRNumber)
	})
	if err != nil {
		return "", 0, err
	}

	username := e.settings.GitHubUsername(ctx)
	var bundles []reviewBundle
	known := make(map[int64]struct{})
	var newest int64

	for _, r := range reviews {
		if !reviewQualifies(r, username, lastCommit) {
			continue
		}
		comments, err := retry.Do(ctx, rcfg, func(ctx context.Context) ([]hosting.ReviewComment, error) {
			return provider.ListReviewComments(ctx, repo.Owner, repo.Name, t.PRNumber, r.ID)
		})
		if err != nil {
			return "", 0, err
		}
		for _, c := range comments {
			known[c.ID] = struct{}{}
		}
		bundles = append(bundles, reviewBundle{review: r, comments: comments})
		if r.ID > newest {
			newest = r.ID
		}
	}
	if len(bundles) == 0 {
		return "", 0, nil
	}

	rendered := make([]string, 0, len(bundles))
	for _, b := range bundles {
		kept := b.comments[:0]
		for _, c := range b.comments {
			// Replies whose parent is outside the qualifying set were
			// already handled in an earlier pass.
			if c.InReplyTo != 0 {
				if _, ok := known[c.InReplyTo]; !ok {
					continue
				}
			}
			kept = append(kept, c)
		}
		rendered = append(rendered, renderReview(b.review, kept))
	}
	return strings.Join(rendered, "\n---\n"), newest, nil
}

// reviewQualifies applies the review filter: authored by the configured
// user, submitted after the branch's last commit, and not pending.
func reviewQualifies(r hosting.Review, username string, lastCommit time.Time) bool {
	if username == "" || !strings.EqualFold(r.Author, username) {
		return false
	}
	if r.State == "PENDING" {
		return false
	}
	if !lastCommit.IsZero() && !r.SubmittedAt.After(lastCommit) {
		return false
	}
	return true
}

// renderReview flattens a review and its remaining line comments into one
// feedback block: the review body first, then each comment with its file,
// line, diff hunk, and text.
func renderReview(r hosting.Review, comments []hosting.ReviewComment) string {
	var b strings.Builder
	if body := strings.TrimSpace(r.Body); body != "" {
		b.WriteString(body)
	}
	for _, c := range comments {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s:%d", c.Path, c.Line)
		if c.DiffHunk != "" {
			b.WriteString("\n```\n")
			b.WriteString(c.DiffHunk)
			b.WriteString("\n```")
		}
		if c.Body != "" {
			b.WriteString("\n")
			b.WriteString(c.Body)
		}
	}
	return b.String()
}

// applyReviewFeedback hands the combined feedback to the assistant, runs
// the pre-commit rounds, then commits and pushes the result.
func (e *Engine) applyReviewFeedback(ctx context.Context, t *task.Task, git GitRepo, feedback string, newestID int64) error {
	e.logTask(ctx, t.ID, task.LogInfo, "Applying review feedback")

	if err := e.invokeAssistant(ctx, t, feedbackPrompt(t.Description, feedback)); err != nil {
		return err
	}
	if err := e.runPrecommitChecks(ctx, t, git); err != nil {
		return err
	}

	if err := git.Add(ctx, "."); err != nil {
		return err
	}
	staged, err := git.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if staged {
		message := applyCommitSuffix(feedbackCommitMessage, e.settings.CommitSuffix(ctx))
		if err := git.Commit(ctx, message); err != nil {
			return err
		}
		if err := e.retryOp(ctx, func(ctx context.Context) error {
			return git.Push(ctx, "origin", t.BranchName)
		}); err != nil {
			return err
		}
		e.logTask(ctx, t.ID, task.LogInfo, "Review feedback committed and pushed")
	} else {
		e.logTask(ctx, t.ID, task.LogInfo, "Review feedback produced no changes")
	}

	// Bookkeeping only; freshness always derives from the last-commit
	// timestamp.
	if err := e.settings.LastReviewBookkeeping(ctx, t.ID, newestID); err != nil {
		e.logger.Warn("record last review id", "task_id", t.ID, "error", err)
	}
	return nil
}

// feedbackPrompt composes the assistant prompt for a review round.
func feedbackPrompt(description, feedback string) string {
	return description + "\n\nAddress the following review feedback:\n\n" + feedback
}
