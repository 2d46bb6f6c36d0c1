// Package task defines the duckling domain model: tasks, their status and
// stage enums, task logs, registered repositories, and pre-commit checks.
package task

import (
	"errors"
	"time"
)

// Validation errors surfaced at the engine boundary.
var (
	ErrEmptyDescription = errors.New("task description is empty")
	ErrUnknownTool      = errors.New("unknown coding tool")
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in-progress"
	StatusAwaitingReview Status = "awaiting-review"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{
		StatusPending, StatusInProgress, StatusAwaitingReview,
		StatusCompleted, StatusFailed, StatusCancelled,
	}
}

// IsValidStatus returns true if the status is a valid status value.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusAwaitingReview,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses a task never leaves on its own.
// The single exception is failed, which a user retry moves back to pending.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Stage labels the pipeline step a task is currently in. Stages are
// informational; status carries the lifecycle semantics.
type Stage string

const (
	StageCreatingBranch   Stage = "creating_branch"
	StageGeneratingCode   Stage = "generating_code"
	StageRunningPrecommit Stage = "running_precommit_checks"
	StageCommitting       Stage = "committing_changes"
	StageCreatingPR       Stage = "creating_pr"
	StageAwaitingReview   Stage = "awaiting_review"
	StageCompleted        Stage = "completed"
	StageCancelled        Stage = "cancelled"
	StageFailed           Stage = "failed"
)

// CodingTool identifies the external assistant that generates code changes.
type CodingTool string

const (
	ToolAmp    CodingTool = "amp"
	ToolOpenAI CodingTool = "openai"
)

// ValidTools returns all supported coding tools.
func ValidTools() []CodingTool {
	return []CodingTool{ToolAmp, ToolOpenAI}
}

// IsValidTool returns true if the tool is a supported coding tool.
func IsValidTool(t CodingTool) bool {
	switch t {
	case ToolAmp, ToolOpenAI:
		return true
	default:
		return false
	}
}

// Task is one user-submitted instruction to modify a repository, carried
// from submission to PR close. The store assigns the id; the engine owns
// every other mutation.
type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Summary        string     `json:"summary,omitempty"`
	Status         Status     `json:"status"`
	CodingTool     CodingTool `json:"coding_tool"`
	RepositoryPath string     `json:"repository_path"`
	CurrentStage   Stage      `json:"current_stage,omitempty"`
	BranchName     string     `json:"branch_name,omitempty"`

	// PRNumber and PRURL are set together exactly once, when the PR is
	// created, and never unset. Zero/empty means no PR yet.
	PRNumber int    `json:"pr_number,omitempty"`
	PRURL    string `json:"pr_url,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task. Event subscribers receive clones so
// later store writes never race a snapshot a consumer is still reading.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.CompletedAt != nil {
		ca := *t.CompletedAt
		c.CompletedAt = &ca
	}
	return &c
}

// HasPR reports whether the PR fields have been persisted.
func (t *Task) HasPR() bool {
	return t.PRNumber > 0
}
