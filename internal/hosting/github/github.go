// Package github implements hosting.Provider using the GitHub REST API.
package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v82/github"

	"github.com/randalmurphal/duckling/internal/hosting"
)

// Compile-time interface check.
var _ hosting.Provider = (*GitHubProvider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitHub, newProvider)
}

// GitHubProvider implements hosting.Provider using the go-github library.
// It holds no repository state: owner and name arrive with each call.
type GitHubProvider struct {
	client *gogithub.Client
}

// newProvider creates a GitHubProvider from the given config.
func newProvider(cfg hosting.Config) (hosting.Provider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("github: %w", hosting.ErrNoToken)
	}

	httpClient := &http.Client{
		Transport: &tokenTransport{token: cfg.Token},
	}
	client := gogithub.NewClient(httpClient)

	// GitHub Enterprise: override base URL.
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		var parseErr error
		client.BaseURL, parseErr = client.BaseURL.Parse(baseURL + "/api/v3/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse base URL %q: %w", cfg.BaseURL, parseErr)
		}
		client.UploadURL, parseErr = client.UploadURL.Parse(baseURL + "/api/uploads/")
		if parseErr != nil {
			return nil, fmt.Errorf("parse upload URL %q: %w", cfg.BaseURL, parseErr)
		}
	}

	return &GitHubProvider{client: client}, nil
}

// tokenTransport adds an Authorization header to every request.
type tokenTransport struct {
	token string
	base  http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// Name returns the provider type.
func (g *GitHubProvider) Name() hosting.ProviderType {
	return hosting.ProviderGitHub
}

// DefaultBranch returns the repository's default branch.
func (g *GitHubProvider) DefaultBranch(ctx context.Context, owner, name string) (string, error) {
	repo, _, err := g.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", fmt.Errorf("get repository %s/%s: %w", owner, name, err)
	}
	return repo.GetDefaultBranch(), nil
}

// CreatePR creates a pull request.
func (g *GitHubProvider) CreatePR(ctx context.Context, owner, name string, opts hosting.PRCreateOptions) (*hosting.PR, error) {
	newPR := &gogithub.NewPullRequest{
		Title: gogithub.Ptr(opts.Title),
		Body:  gogithub.Ptr(opts.Body),
		Head:  gogithub.Ptr(opts.Head),
		Base:  gogithub.Ptr(opts.Base),
	}

	pr, _, err := g.client.PullRequests.Create(ctx, owner, name, newPR)
	if err != nil {
		return nil, fmt.Errorf("create PR for branch %q: %w", opts.Head, err)
	}
	return mapPR(pr), nil
}

// FindPRByBranch finds an open PR for a given head branch.
func (g *GitHubProvider) FindPRByBranch(ctx context.Context, owner, name, branch string) (*hosting.PR, error) {
	prs, _, err := g.client.PullRequests.List(ctx, owner, name, &gogithub.PullRequestListOptions{
		Head:        owner + ":" + branch,
		State:       "open",
		ListOptions: gogithub.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("find PR by branch %q: %w", branch, err)
	}

	if len(prs) == 0 {
		return nil, hosting.ErrNoPRFound
	}

	return mapPR(prs[0]), nil
}

// GetPR fetches a pull request by number.
func (g *GitHubProvider) GetPR(ctx context.Context, owner, name string, number int) (*hosting.PR, error) {
	pr, _, err := g.client.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return nil, fmt.Errorf("get PR %d: %w", number, err)
	}
	return mapPR(pr), nil
}

// ListReviews lists reviews on a pull request.
func (g *GitHubProvider) ListReviews(ctx context.Context, owner, name string, number int) ([]hosting.Review, error) {
	var allReviews []*gogithub.PullRequestReview
	opts := &gogithub.ListOptions{PerPage: 100}

	for {
		reviews, resp, err := g.client.PullRequests.ListReviews(ctx, owner, name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list reviews for PR %d: %w", number, err)
		}
		allReviews = append(allReviews, reviews...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	result := make([]hosting.Review, 0, len(allReviews))
	for _, r := range allReviews {
		result = append(result, hosting.Review{
			ID:          r.GetID(),
			Author:      r.GetUser().GetLogin(),
			State:       r.GetState(),
			Body:        r.GetBody(),
			SubmittedAt: r.GetSubmittedAt().Time,
		})
	}
	return result, nil
}

// ListReviewComments lists the line comments attached to a single review.
func (g *GitHubProvider) ListReviewComments(ctx context.Context, owner, name string, number int, reviewID int64) ([]hosting.ReviewComment, error) {
	var allComments []*gogithub.PullRequestComment
	opts := &gogithub.ListOptions{PerPage: 100}

	for {
		comments, resp, err := g.client.PullRequests.ListReviewComments(ctx, owner, name, number, reviewID, opts)
		if err != nil {
			return nil, fmt.Errorf("list comments for review %d on PR %d: %w", reviewID, number, err)
		}
		allComments = append(allComments, comments...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	result := make([]hosting.ReviewComment, 0, len(allComments))
	for _, c := range allComments {
		result = append(result, mapReviewComment(c))
	}
	return result, nil
}

// mapPR converts a go-github PR to a hosting.PR. Merged PRs report state
// "merged" rather than GitHub's raw "closed".
func mapPR(pr *gogithub.PullRequest) *hosting.PR {
	state := pr.GetState()
	if pr.GetMerged() {
		state = "merged"
	}

	return &hosting.PR{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		State:      state,
		Merged:     pr.GetMerged(),
		Mergeable:  pr.GetMergeable(),
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
		URL:        pr.GetHTMLURL(),
	}
}

// mapReviewComment converts a go-github review comment. Line falls back to
// the original line for comments on outdated diffs.
func mapReviewComment(c *gogithub.PullRequestComment) hosting.ReviewComment {
	line := c.GetLine()
	if line == 0 {
		line = c.GetOriginalLine()
	}

	return hosting.ReviewComment{
		ID:        c.GetID(),
		InReplyTo: c.GetInReplyTo(),
		Path:      c.GetPath(),
		Line:      line,
		DiffHunk:  c.GetDiffHunk(),
		Body:      c.GetBody(),
	}
}
