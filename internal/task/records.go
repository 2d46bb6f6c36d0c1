package task

import "time"

// LogLevel is the severity of a task log entry.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValidLogLevel returns true if the level is a valid log level.
func IsValidLogLevel(l LogLevel) bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}

// Log is one append-only task log entry. Entries are never mutated and ids
// are strictly increasing per task.
type Log struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository is a registry row mapping a local working copy to its hosted
// counterpart. The absolute path is the identity; a row must exist before a
// task referencing the path is accepted.
type Repository struct {
	Path      string    `json:"path"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Provider  string    `json:"provider"` // "github" or "gitlab"
	CreatedAt time.Time `json:"created_at"`
}

// PrecommitCheck is one shell command run against the working tree before a
// commit. Checks execute in ascending (OrderIndex, ID) order.
type PrecommitCheck struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Command string `json:"command"`

	// Paths optionally restricts the check to runs where at least one
	// changed file matches this doublestar glob.
	Paths string `json:"paths,omitempty"`

	OrderIndex int `json:"order_index"`
}
