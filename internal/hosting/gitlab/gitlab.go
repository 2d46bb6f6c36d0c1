// Package gitlab implements hosting.Provider using the GitLab REST API.
//
// GitLab has no first-class review object, so each merge request discussion
// thread is surfaced as one review: the thread's first note carries the
// review body and later notes become its comments. Inline threads surface
// the first note as a positioned comment instead.
package gitlab

import (
	"context"
	"fmt"
	"strings"

	gogitlab "gitlab.com/gitlab-org/api/client-go"

	"github.com/randalmurphal/duckling/internal/hosting"
)

// Compile-time interface check.
var _ hosting.Provider = (*GitLabProvider)(nil)

func init() {
	hosting.RegisterProvider(hosting.ProviderGitLab, newProvider)
}

// GitLabProvider implements hosting.Provider using the go-gitlab library.
// It holds no repository state: owner and name arrive with each call.
type GitLabProvider struct {
	client *gogitlab.Client
}

// newProvider creates a GitLabProvider from the given config.
func newProvider(cfg hosting.Config) (hosting.Provider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("gitlab: %w", hosting.ErrNoToken)
	}

	var (
		client *gogitlab.Client
		err    error
	)
	if cfg.BaseURL != "" {
		baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
		client, err = gogitlab.NewClient(cfg.Token, gogitlab.WithBaseURL(baseURL+"/api/v4"))
	} else {
		client, err = gogitlab.NewClient(cfg.Token)
	}
	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}

	return &GitLabProvider{client: client}, nil
}

// projectID builds the path-style project identifier GitLab accepts in
// place of a numeric ID. Owner may be a nested "group/subgroup" path.
func projectID(owner, name string) string {
	return owner + "/" + name
}

// Name returns the provider type.
func (g *GitLabProvider) Name() hosting.ProviderType {
	return hosting.ProviderGitLab
}

// DefaultBranch returns the project's default branch.
func (g *GitLabProvider) DefaultBranch(ctx context.Context, owner, name string) (string, error) {
	project, _, err := g.client.Projects.GetProject(projectID(owner, name), nil, gogitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("get project %s/%s: %w", owner, name, err)
	}
	return project.DefaultBranch, nil
}

// CreatePR creates a merge request.
func (g *GitLabProvider) CreatePR(ctx context.Context, owner, name string, opts hosting.PRCreateOptions) (*hosting.PR, error) {
	mr, _, err := g.client.MergeRequests.CreateMergeRequest(projectID(owner, name), &gogitlab.CreateMergeRequestOptions{
		Title:              gogitlab.Ptr(opts.Title),
		Description:        gogitlab.Ptr(opts.Body),
		SourceBranch:       gogitlab.Ptr(opts.Head),
		TargetBranch:       gogitlab.Ptr(opts.Base),
		RemoveSourceBranch: gogitlab.Ptr(true),
	}, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create MR for branch %q: %w", opts.Head, err)
	}
	return mapMR(mr), nil
}

// FindPRByBranch finds an open merge request for a given source branch.
func (g *GitLabProvider) FindPRByBranch(ctx context.Context, owner, name, branch string) (*hosting.PR, error) {
	mrs, _, err := g.client.MergeRequests.ListProjectMergeRequests(projectID(owner, name), &gogitlab.ListProjectMergeRequestsOptions{
		SourceBranch: gogitlab.Ptr(branch),
		State:        gogitlab.Ptr("opened"),
		ListOptions:  gogitlab.ListOptions{PerPage: 1},
	}, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("find MR by branch %q: %w", branch, err)
	}

	if len(mrs) == 0 {
		return nil, hosting.ErrNoPRFound
	}

	return mapBasicMR(mrs[0]), nil
}

// GetPR fetches a merge request by IID.
func (g *GitLabProvider) GetPR(ctx context.Context, owner, name string, number int) (*hosting.PR, error) {
	mr, _, err := g.client.MergeRequests.GetMergeRequest(projectID(owner, name), int64(number), nil, gogitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get MR %d: %w", number, err)
	}
	return mapMR(mr), nil
}

// ListReviews maps merge request discussion threads to reviews. The review
// ID is the thread's first non-system note.
func (g *GitLabProvider) ListReviews(ctx context.Context, owner, name string, number int) ([]hosting.Review, error) {
	discussions, err := g.listDiscussions(ctx, owner, name, number)
	if err != nil {
		return nil, err
	}

	var reviews []hosting.Review
	for _, d := range discussions {
		head := firstUserNote(d)
		if head == nil {
			continue
		}

		review := hosting.Review{
			ID:     head.ID,
			Author: head.Author.Username,
			State:  "COMMENTED",
		}
		if head.CreatedAt != nil {
			review.SubmittedAt = *head.CreatedAt
		}
		// Inline threads surface the head note as a positioned comment,
		// so the review body stays empty to avoid duplicating the text.
		if head.Position == nil {
			review.Body = head.Body
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

// ListReviewComments returns the notes of the discussion thread whose first
// non-system note matches reviewID.
func (g *GitLabProvider) ListReviewComments(ctx context.Context, owner, name string, number int, reviewID int64) ([]hosting.ReviewComment, error) {
	discussions, err := g.listDiscussions(ctx, owner, name, number)
	if err != nil {
		return nil, err
	}

	for _, d := range discussions {
		head := firstUserNote(d)
		if head == nil || head.ID != reviewID {
			continue
		}

		var comments []hosting.ReviewComment
		for _, note := range d.Notes {
			if note.System {
				continue
			}
			// The head note is the review body itself unless it sits on
			// the diff.
			if note.ID == head.ID && head.Position == nil {
				continue
			}
			comments = append(comments, mapNoteComment(note))
		}
		return comments, nil
	}

	return nil, nil
}

// listDiscussions fetches all discussion pages for a merge request.
func (g *GitLabProvider) listDiscussions(ctx context.Context, owner, name string, number int) ([]*gogitlab.Discussion, error) {
	var all []*gogitlab.Discussion
	opts := &gogitlab.ListMergeRequestDiscussionsOptions{
		ListOptions: gogitlab.ListOptions{PerPage: 100},
	}

	for {
		discussions, resp, err := g.client.Discussions.ListMergeRequestDiscussions(projectID(owner, name), int64(number), opts, gogitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list MR %d discussions: %w", number, err)
		}
		all = append(all, discussions...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return all, nil
}

// firstUserNote returns the first non-system note of a discussion thread.
func firstUserNote(d *gogitlab.Discussion) *gogitlab.Note {
	for _, note := range d.Notes {
		if !note.System {
			return note
		}
	}
	return nil
}

// mapNoteComment converts a discussion note to a review comment.
func mapNoteComment(note *gogitlab.Note) hosting.ReviewComment {
	comment := hosting.ReviewComment{
		ID:   note.ID,
		Body: note.Body,
	}
	if note.Position != nil {
		comment.Path = note.Position.NewPath
		comment.Line = int(note.Position.NewLine)
	}
	return comment
}

// mapMR converts a go-gitlab MergeRequest to a hosting.PR.
func mapMR(mr *gogitlab.MergeRequest) *hosting.PR {
	state := mr.State
	if state == "opened" {
		state = "open"
	}

	return &hosting.PR{
		Number:     int(mr.IID),
		Title:      mr.Title,
		State:      state,
		Merged:     mr.State == "merged",
		Mergeable:  mr.DetailedMergeStatus == "mergeable",
		HeadBranch: mr.SourceBranch,
		BaseBranch: mr.TargetBranch,
		URL:        mr.WebURL,
	}
}

// mapBasicMR converts a go-gitlab BasicMergeRequest to a hosting.PR.
func mapBasicMR(mr *gogitlab.BasicMergeRequest) *hosting.PR {
	state := mr.State
	if state == "opened" {
		state = "open"
	}

	return &hosting.PR{
		Number:     int(mr.IID),
		Title:      mr.Title,
		State:      state,
		Merged:     mr.State == "merged",
		Mergeable:  mr.DetailedMergeStatus == "mergeable",
		HeadBranch: mr.SourceBranch,
		BaseBranch: mr.TargetBranch,
		URL:        mr.WebURL,
	}
}
