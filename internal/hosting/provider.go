// Package hosting provides a unified interface for git hosting providers
// (GitHub, GitLab) covering the pull request surface the engine needs:
// opening PRs, resolving default branches, and reading reviews.
package hosting

import (
	"context"
	"time"
)

// ProviderType identifies which hosting provider backs a repository.
type ProviderType string

const (
	ProviderGitHub  ProviderType = "github"
	ProviderGitLab  ProviderType = "gitlab"
	ProviderUnknown ProviderType = "unknown"
)

// Provider is the interface for git hosting providers. Every method takes
// the repository owner and name explicitly so a single provider instance
// can serve any number of registered repositories.
type Provider interface {
	// DefaultBranch returns the repository's default branch name.
	DefaultBranch(ctx context.Context, owner, name string) (string, error)

	// CreatePR opens a pull request / merge request.
	CreatePR(ctx context.Context, owner, name string, opts PRCreateOptions) (*PR, error)

	// FindPRByBranch finds the open PR whose head is the given branch.
	// Returns ErrNoPRFound when no such PR exists.
	FindPRByBranch(ctx context.Context, owner, name, branch string) (*PR, error)

	// GetPR fetches a single PR by number.
	GetPR(ctx context.Context, owner, name string, number int) (*PR, error)

	// ListReviews lists the reviews submitted on a PR.
	ListReviews(ctx context.Context, owner, name string, number int) ([]Review, error)

	// ListReviewComments lists the line comments attached to one review.
	ListReviewComments(ctx context.Context, owner, name string, number int, reviewID int64) ([]ReviewComment, error)

	// Name returns the provider type.
	Name() ProviderType
}

// PR represents a pull request / merge request.
type PR struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	State      string `json:"state"` // open, closed, merged
	Merged     bool   `json:"merged"`
	Mergeable  bool   `json:"mergeable"`
	HeadBranch string `json:"head_branch"`
	BaseBranch string `json:"base_branch"`
	URL        string `json:"url"`
}

// PRCreateOptions for creating a PR / merge request.
type PRCreateOptions struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  string `json:"head"` // Source branch
	Base  string `json:"base"` // Target branch
}

// Review represents a pull request review / merge request discussion.
type Review struct {
	ID          int64     `json:"id"`
	Author      string    `json:"author"`
	State       string    `json:"state"` // APPROVED, CHANGES_REQUESTED, COMMENTED, DISMISSED, PENDING
	Body        string    `json:"body,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ReviewComment is a line comment attached to a review. InReplyTo is the
// parent comment ID for threaded replies, zero for top-level comments.
type ReviewComment struct {
	ID        int64  `json:"id"`
	InReplyTo int64  `json:"in_reply_to,omitempty"`
	Path      string `json:"path,omitempty"`
	Line      int    `json:"line,omitempty"`
	DiffHunk  string `json:"diff_hunk,omitempty"`
	Body      string `json:"body"`
}
