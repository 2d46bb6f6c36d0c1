// Package settings provides a typed view over the persisted key/value
// settings table. Every getter falls back to a built-in default when the
// key is absent, so callers never branch on missing configuration.
package settings

import (
	"context"
	"fmt"
	"strconv"
)

// Store is the slice of the task store the settings view needs.
type Store interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)
}

// Known setting keys.
const (
	KeyBranchPrefix      = "branchPrefix"
	KeyPRTitlePrefix     = "prTitlePrefix"
	KeyCommitSuffix      = "commitSuffix"
	KeyMaxRetries        = "maxRetries"
	KeyBaseBranch        = "baseBranch"
	KeyDefaultCodingTool = "defaultCodingTool"
	KeyGitHubToken       = "githubToken"
	KeyGitHubUsername    = "githubUsername"
	KeyGitLabToken       = "gitlabToken"
	KeyAmpAPIKey         = "ampApiKey"
	KeyOpenAIAPIKey      = "openaiApiKey"
	KeyLLMBaseURL        = "llmBaseUrl"
	KeyLLMModel          = "llmModel"
)

// Defaults applied when a key has no stored value.
const (
	DefaultBranchPrefix      = "duckling-"
	DefaultPRTitlePrefix     = "[DUCKLING]"
	DefaultCommitSuffix      = " [quack]"
	DefaultMaxRetries        = 3
	DefaultBaseBranch        = "main"
	DefaultDefaultCodingTool = "amp"
	DefaultLLMBaseURL        = "https://api.openai.com/v1"
	DefaultLLMModel          = "gpt-4o-mini"
)

// Defaults returns the built-in value for every known key. Keys without a
// meaningful default (tokens, usernames) map to the empty string.
func Defaults() map[string]string {
	return map[string]string{
		KeyBranchPrefix:      DefaultBranchPrefix,
		KeyPRTitlePrefix:     DefaultPRTitlePrefix,
		KeyCommitSuffix:      DefaultCommitSuffix,
		KeyMaxRetries:        strconv.Itoa(DefaultMaxRetries),
		KeyBaseBranch:        DefaultBaseBranch,
		KeyDefaultCodingTool: DefaultDefaultCodingTool,
		KeyGitHubToken:       "",
		KeyGitHubUsername:    "",
		KeyGitLabToken:       "",
		KeyAmpAPIKey:         "",
		KeyOpenAIAPIKey:      "",
		KeyLLMBaseURL:        DefaultLLMBaseURL,
		KeyLLMModel:          DefaultLLMModel,
	}
}

// Known reports whether key is one of the recognized setting keys.
// Per-task bookkeeping keys (last_comment_*) are not writable by callers
// and are not considered known.
func Known(key string) bool {
	_, ok := Defaults()[key]
	return ok
}

// Settings reads and writes configuration stored in the database.
type Settings struct {
	store Store
}

// New returns a settings view backed by store.
func New(store Store) *Settings {
	return &Settings{store: store}
}

func (s *Settings) get(ctx context.Context, key, fallback string) string {
	val, err := s.store.GetSetting(ctx, key)
	if err != nil || val == "" {
		return fallback
	}
	return val
}

// BranchPrefix is prepended to every generated branch name.
func (s *Settings) BranchPrefix(ctx context.Context) string {
	return s.get(ctx, KeyBranchPrefix, DefaultBranchPrefix)
}

// PRTitlePrefix is prepended to every generated pull request title.
func (s *Settings) PRTitlePrefix(ctx context.Context) string {
	return s.get(ctx, KeyPRTitlePrefix, DefaultPRTitlePrefix)
}

// CommitSuffix is appended to every commit message, once.
func (s *Settings) CommitSuffix(ctx context.Context) string {
	return s.get(ctx, KeyCommitSuffix, DefaultCommitSuffix)
}

// MaxRetries bounds retry loops for transient external failures.
// Non-numeric or non-positive stored values fall back to the default.
func (s *Settings) MaxRetries(ctx context.Context) int {
	raw := s.get(ctx, KeyMaxRetries, "")
	if raw == "" {
		return DefaultMaxRetries
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return DefaultMaxRetries
	}
	return n
}

// BaseBranch is the fallback base branch when the remote default branch
// cannot be resolved.
func (s *Settings) BaseBranch(ctx context.Context) string {
	return s.get(ctx, KeyBaseBranch, DefaultBaseBranch)
}

// DefaultCodingTool is used when a task is created without one.
func (s *Settings) DefaultCodingTool(ctx context.Context) string {
	return s.get(ctx, KeyDefaultCodingTool, DefaultDefaultCodingTool)
}

// GitHubToken authenticates hosted-VCS API calls against GitHub.
func (s *Settings) GitHubToken(ctx context.Context) string {
	return s.get(ctx, KeyGitHubToken, "")
}

// GitHubUsername identifies which PR reviews belong to the repo owner.
func (s *Settings) GitHubUsername(ctx context.Context) string {
	return s.get(ctx, KeyGitHubUsername, "")
}

// GitLabToken authenticates hosted-VCS API calls against GitLab.
func (s *Settings) GitLabToken(ctx context.Context) string {
	return s.get(ctx, KeyGitLabToken, "")
}

// AmpAPIKey is passed to the amp coding assistant.
func (s *Settings) AmpAPIKey(ctx context.Context) string {
	return s.get(ctx, KeyAmpAPIKey, "")
}

// OpenAIAPIKey is passed to the openai coding assistant and the text
// generation client.
func (s *Settings) OpenAIAPIKey(ctx context.Context) string {
	return s.get(ctx, KeyOpenAIAPIKey, "")
}

// LLMBaseURL is the OpenAI-compatible endpoint for text generation.
func (s *Settings) LLMBaseURL(ctx context.Context) string {
	return s.get(ctx, KeyLLMBaseURL, DefaultLLMBaseURL)
}

// LLMModel is the model name sent with text generation requests.
func (s *Settings) LLMModel(ctx context.Context) string {
	return s.get(ctx, KeyLLMModel, DefaultLLMModel)
}

// Set writes a raw setting value.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	return s.store.SetSetting(ctx, key, value)
}

// All returns every stored key/value pair.
func (s *Settings) All(ctx context.Context) (map[string]string, error) {
	return s.store.AllSettings(ctx)
}

// LastReviewBookkeeping records the newest ingested review id for a task.
// The value is informational; freshness decisions use commit timestamps.
func (s *Settings) LastReviewBookkeeping(ctx context.Context, taskID int64, reviewID int64) error {
	key := fmt.Sprintf("last_comment_%d", taskID)
	return s.store.SetSetting(ctx, key, strconv.FormatInt(reviewID, 10))
}

// Seed writes the default value for every known key that has no stored
// value yet, so listings show the full configuration surface. Existing
// values are never overwritten.
func (s *Settings) Seed(ctx context.Context) error {
	stored, err := s.store.AllSettings(ctx)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	for key, value := range Defaults() {
		if _, ok := stored[key]; ok {
			continue
		}
		if err := s.store.SetSetting(ctx, key, value); err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}
	return nil
}
