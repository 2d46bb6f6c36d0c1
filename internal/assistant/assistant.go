// Package assistant invokes coding assistant CLIs (amp, codex) to produce
// code changes inside a repository working tree. The assistant writes files
// itself; callers only get its final message back.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/duckling/internal/proc"
	"github.com/randalmurphal/duckling/internal/task"
)

// DefaultTimeout bounds one assistant invocation. Code generation on a
// large prompt can legitimately run for many minutes.
const DefaultTimeout = 30 * time.Minute

// Invocation carries the per-task context of one assistant run.
type Invocation struct {
	TaskID  int64
	RepoDir string
}

// Bridge generates code changes in a working tree using the coding tool a
// task was created with.
type Bridge interface {
	Generate(ctx context.Context, tool task.CodingTool, prompt string, inv Invocation) (string, error)
}

// Keys supplies assistant API keys. Implemented by the settings view.
type Keys interface {
	AmpAPIKey(ctx context.Context) string
	OpenAIAPIKey(ctx context.Context) string
}

// CLIBridge runs assistants as child processes through a proc.Runner so
// tests never spawn real tools.
type CLIBridge struct {
	runner  proc.Runner
	keys    Keys
	timeout time.Duration
	logger  *slog.Logger
}

// Compile-time interface check.
var _ Bridge = (*CLIBridge)(nil)

// Option configures a CLIBridge.
type Option func(*CLIBridge)

// WithTimeout overrides the default invocation timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *CLIBridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// NewCLIBridge creates a bridge that spawns assistant CLIs via runner.
func NewCLIBridge(runner proc.Runner, keys Keys, logger *slog.Logger, opts ...Option) *CLIBridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &CLIBridge{
		runner:  runner,
		keys:    keys,
		timeout: DefaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Generate dispatches to the tool-specific runner.
func (b *CLIBridge) Generate(ctx context.Context, tool task.CodingTool, prompt string, inv Invocation) (string, error) {
	switch tool {
	case task.ToolAmp:
		return b.runAmp(ctx, prompt, inv)
	case task.ToolOpenAI:
		return b.runCodex(ctx, prompt, inv)
	default:
		return "", fmt.Errorf("%w: %q", task.ErrUnknownTool, tool)
	}
}

// runAmp invokes `amp --execute` with the prompt on stdin.
func (b *CLIBridge) runAmp(ctx context.Context, prompt string, inv Invocation) (string, error) {
	key := b.keys.AmpAPIKey(ctx)
	if key == "" {
		return "", fmt.Errorf("amp: ampApiKey setting is not set")
	}

	b.logger.Debug("invoking amp", "task_id", inv.TaskID, "dir", inv.RepoDir)

	res, err := b.runner.Run(ctx, proc.Cmd{
		Name:    "amp",
		Args:    []string{"--execute"},
		Dir:     inv.RepoDir,
		Env:     []string{"AMP_API_KEY=" + key},
		Stdin:   prompt,
		Timeout: b.timeout,
	})
	if err != nil {
		return "", fmt.Errorf("run amp: %w", err)
	}
	if !res.Success() {
		return "", fmt.Errorf("amp exited with code %d: %s", res.ExitCode, res.CombinedOutput())
	}

	return strings.TrimSpace(res.Stdout), nil
}

// runCodex invokes `codex exec --json` with the prompt on stdin.
func (b *CLIBridge) runCodex(ctx context.Context, prompt string, inv Invocation) (string, error) {
	key := b.keys.OpenAIAPIKey(ctx)
	if key == "" {
		return "", fmt.Errorf("openai: openaiApiKey setting is not set")
	}

	b.logger.Debug("invoking codex", "task_id", inv.TaskID, "dir", inv.RepoDir)

	res, err := b.runner.Run(ctx, proc.Cmd{
		Name:    "codex",
		Args:    []string{"exec", "--json"},
		Dir:     inv.RepoDir,
		Env:     []string{"OPENAI_API_KEY=" + key},
		Stdin:   prompt,
		Timeout: b.timeout,
	})
	if err != nil {
		return "", fmt.Errorf("run codex: %w", err)
	}
	if !res.Success() {
		return "", fmt.Errorf("codex exited with code %d: %s", res.ExitCode, res.CombinedOutput())
	}

	return parseCodexOutput(res.Stdout), nil
}

// Message fields probed on the last JSON line of codex output, in order.
var codexMessagePaths = []string{"msg.message", "content", "result", "text"}

// parseCodexOutput extracts the assistant's final message from `--json`
// output. Codex emits one JSON event per line; the closing event carries
// the agent message. Anything unparseable falls back to the raw output.
func parseCodexOutput(stdout string) string {
	trimmed := strings.TrimSpace(stdout)
	lines := strings.Split(trimmed, "\n")

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || !gjson.Valid(line) {
			continue
		}
		for _, path := range codexMessagePaths {
			if v := gjson.Get(line, path); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
		break
	}

	return trimmed
}
