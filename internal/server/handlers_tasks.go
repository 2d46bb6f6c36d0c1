package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/randalmurphal/duckling/internal/db"
	"github.com/randalmurphal/duckling/internal/engine"
	"github.com/randalmurphal/duckling/internal/task"
)

// TaskCreateRequest is the POST /api/tasks body. CodingTool may be empty,
// in which case the configured default applies.
type TaskCreateRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	CodingTool     string `json:"coding_tool,omitempty"`
	RepositoryPath string `json:"repository_path"`
}

// handleCreateTask creates a new task and returns the pending row.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	t, err := s.engine.CreateTask(r.Context(), engine.CreateTaskRequest{
		Title:          req.Title,
		Description:    req.Description,
		CodingTool:     req.CodingTool,
		RepositoryPath: req.RepositoryPath,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.dashboard.Invalidate()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(t)
}

// handleListTasks returns all tasks, newest first.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.ListTasks(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	s.jsonResponse(w, tasks)
}

// handleGetTask returns a specific task.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	t, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, t)
}

// handleCancelTask cancels a task and returns the updated row.
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.engine.CancelTask)
}

// handleRetryTask re-queues a failed task and returns the updated row.
func (s *Server) handleRetryTask(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.engine.RetryTask)
}

// handleCompleteTask marks a task completed and returns the updated row.
func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, s.engine.MarkComplete)
}

// lifecycle runs one engine lifecycle verb and responds with the task row
// as it stands afterwards.
func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) error) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), id); err != nil {
		s.serviceError(w, err)
		return
	}
	s.dashboard.Invalidate()
	t, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, t)
}

// handleTaskLogs returns a task's log entries in insertion order. Supported
// query parameters: level, after_id, limit, offset.
func (s *Server) handleTaskLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := s.taskID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		s.serviceError(w, err)
		return
	}

	opts := db.TaskLogOpts{}
	q := r.URL.Query()
	if level := q.Get("level"); level != "" {
		if !task.IsValidLogLevel(task.LogLevel(level)) {
			s.jsonError(w, fmt.Sprintf("invalid level: %s (valid: debug, info, warn, error)", level), http.StatusBadRequest)
			return
		}
		opts.Level = task.LogLevel(level)
	}
	opts.AfterID = queryInt64(q.Get("after_id"))
	opts.Limit = int(queryInt64(q.Get("limit")))
	opts.Offset = int(queryInt64(q.Get("offset")))

	logs, err := s.store.ListTaskLogs(r.Context(), id, opts)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if logs == nil {
		logs = []task.Log{}
	}
	s.jsonResponse(w, logs)
}

// taskID parses the {id} path segment and reports a 400 on garbage.
func (s *Server) taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		s.jsonError(w, "invalid task id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional numeric query parameter; anything not a
// positive integer maps to zero, which the store treats as unset.
func queryInt64(raw string) int64 {
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
