package hosting

import (
	"regexp"
	"strings"
)

// Remote URL patterns per provider. Self-hosted instances are assumed to
// follow the github.company.com / gitlab.company.com naming convention.
var (
	githubPatterns = []*regexp.Regexp{
		regexp.MustCompile(`github\.com[:/]`),
		regexp.MustCompile(`github\.[a-z0-9-]+\.[a-z]+[:/]`),
	}
	gitlabPatterns = []*regexp.Regexp{
		regexp.MustCompile(`gitlab\.com[:/]`),
		regexp.MustCompile(`gitlab\.[a-z0-9-]+\.[a-z]+[:/]`),
	}
)

// DetectProvider determines the hosting provider from a git remote URL.
//
// Supported URL formats:
//   - git@github.com:owner/repo.git
//   - https://github.com/owner/repo.git
//   - git@gitlab.company.com:org/repo.git (self-hosted GitLab)
//   - https://github.company.com/org/repo.git (GitHub Enterprise)
func DetectProvider(remoteURL string) ProviderType {
	url := strings.ToLower(strings.TrimSpace(remoteURL))

	switch {
	case matchAny(url, githubPatterns):
		return ProviderGitHub
	case matchAny(url, gitlabPatterns):
		return ProviderGitLab
	default:
		return ProviderUnknown
	}
}

func matchAny(url string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// ParseOwnerRepo extracts owner and repo from a git remote URL.
//
// Handles:
//   - git@github.com:owner/repo.git → (owner, repo)
//   - https://github.com/owner/repo.git → (owner, repo)
//   - ssh://git@github.com:22/owner/repo.git → (owner, repo)
//   - git@gitlab.com:group/subgroup/repo.git → (group/subgroup, repo)
func ParseOwnerRepo(remoteURL string) (owner, repo string) {
	raw := strings.TrimSuffix(strings.TrimSpace(remoteURL), ".git")

	switch {
	case strings.HasPrefix(raw, "ssh://"):
		// ssh://git@host:port/owner/repo
		raw = strings.TrimPrefix(raw, "ssh://")
		if idx := strings.Index(raw, "/"); idx != -1 {
			raw = strings.TrimLeft(raw[idx+1:], "/")
		}
	case strings.HasPrefix(raw, "https://"), strings.HasPrefix(raw, "http://"):
		// https://host/owner/repo
		raw = strings.TrimPrefix(raw, "https://")
		raw = strings.TrimPrefix(raw, "http://")
		if idx := strings.Index(raw, "/"); idx != -1 {
			raw = raw[idx+1:]
		}
	default:
		// SCP-style SSH: git@host:owner/repo
		if idx := strings.Index(raw, ":"); idx != -1 {
			raw = raw[idx+1:]
		}
	}

	// GitLab owners can be nested groups, so the repo is the last path
	// segment and everything before it is the owner.
	parts := strings.Split(raw, "/")
	if len(parts) < 2 {
		return raw, ""
	}
	return strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1]
}
