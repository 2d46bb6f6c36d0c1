package engine

import (
	"context"

	"github.com/randalmurphal/duckling/internal/task"
)

// stepLog names the log entries bounding one pipeline step.
type stepLog struct {
	TaskID   int64
	Start    string
	Complete string
	Failure  string
}

// runStep brackets fn with task log entries: one info entry before, one
// info entry on success, one error entry on failure. The error is returned
// unchanged so the caller decides what the failure means.
func (e *Engine) runStep(ctx context.Context, s stepLog, fn func(ctx context.Context) error) error {
	e.logTask(ctx, s.TaskID, task.LogInfo, s.Start)
	if err := fn(ctx); err != nil {
		e.logTask(ctx, s.TaskID, task.LogError, s.Failure+": "+err.Error())
		return err
	}
	e.logTask(ctx, s.TaskID, task.LogInfo, s.Complete)
	return nil
}
