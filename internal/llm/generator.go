package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/randalmurphal/duckling/internal/retry"
)

// Generator produces pipeline texts, preferring the model and dropping to
// the deterministic fallbacks when no key is configured or calls keep
// failing. Methods never return errors; the pipeline must not block on
// cosmetic text.
type Generator struct {
	client *Client
	logger *slog.Logger
	retry  retry.Config
}

// NewGenerator creates a Generator backed by client. A nil or unconfigured
// client means every call takes the fallback path.
func NewGenerator(client *Client, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client: client,
		logger: logger,
		retry: retry.Config{
			MaxAttempts:  2,
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
			Jitter:       0.1,
		},
	}
}

// BranchSlug generates a short kebab-case slug for a branch name.
func (g *Generator) BranchSlug(ctx context.Context, description string) string {
	return g.generate(ctx, "branch slug",
		"You name git branches. Reply with a short kebab-case slug (at most four words, lowercase letters, digits and dashes only). No explanation.",
		description,
		func() string { return FallbackSlug(description) })
}

// PRTitle generates a pull request title.
func (g *Generator) PRTitle(ctx context.Context, description string) string {
	return g.generate(ctx, "PR title",
		"You write pull request titles. Reply with one concise title under 72 characters. No quotes, no explanation.",
		description,
		func() string { return FallbackTitle(description) })
}

// PRBody generates a pull request body.
func (g *Generator) PRBody(ctx context.Context, description, branch string) string {
	return g.generate(ctx, "PR body",
		"You write pull request descriptions. Reply with a short markdown body summarizing the change. No preamble.",
		fmt.Sprintf("Task description:\n%s\n\nBranch: %s", description, branch),
		func() string { return FallbackBody(description, branch) })
}

// TaskSummary generates a one-line summary of a task description.
func (g *Generator) TaskSummary(ctx context.Context, description string) string {
	return g.generate(ctx, "task summary",
		"You summarize coding tasks. Reply with one plain sentence under 100 characters. No explanation.",
		description,
		func() string { return FallbackSummary(description) })
}

// CommitMessage generates a commit subject line. files lists the changed
// paths for context and may be empty.
func (g *Generator) CommitMessage(ctx context.Context, description string, files []string) string {
	user := description
	if len(files) > 0 {
		user = fmt.Sprintf("%s\n\nChanged files:\n%s", description, strings.Join(files, "\n"))
	}
	return g.generate(ctx, "commit message",
		"You write git commit subject lines. Reply with one imperative line under 50 characters. No quotes, no explanation.",
		user,
		func() string { return FallbackCommit(description) })
}

// generate runs one capability: model with bounded retry, else fallback.
func (g *Generator) generate(ctx context.Context, kind, system, user string, fallback func() string) string {
	if !g.client.Configured() {
		g.logger.Debug("llm not configured, using fallback", "kind", kind)
		return fallback()
	}

	result, err := retry.Do(ctx, g.retry, func(ctx context.Context) (string, error) {
		return g.client.Complete(ctx, system, user)
	})
	if err != nil {
		g.logger.Warn("llm generation failed, using fallback", "kind", kind, "error", err)
		return fallback()
	}
	return result
}

// FallbackSlug joins the first four lowercased words of the description
// with dashes, keeping only letters and digits inside each word.
func FallbackSlug(description string) string {
	words := strings.Fields(strings.ToLower(description))
	if len(words) > 4 {
		words = words[:4]
	}

	kept := make([]string, 0, len(words))
	for _, w := range words {
		var b strings.Builder
		for _, r := range w {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
		if b.Len() > 0 {
			kept = append(kept, b.String())
		}
	}
	return strings.Join(kept, "-")
}

// FallbackTitle truncates the description to 72 characters.
func FallbackTitle(description string) string {
	return truncateWords(description, 72)
}

// FallbackBody is the description followed by the branch name.
func FallbackBody(description, branch string) string {
	return description + "\n\nBranch: " + branch
}

// FallbackSummary truncates the description to 100 characters.
func FallbackSummary(description string) string {
	return truncateWords(description, 100)
}

// FallbackCommit truncates the description to 50 characters.
func FallbackCommit(description string) string {
	return truncateWords(description, 50)
}

// truncateWords caps s at n characters, cutting at the last word boundary
// that fits and appending "..." when anything was dropped.
func truncateWords(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}

	cut := s[:n-3]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}
