package cli

// NOTE: These tests mutate package-level state (apiAddr, os.Stdout capture)
// and MUST NOT use t.Parallel().

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/duckling/internal/server"
	"github.com/randalmurphal/duckling/internal/task"
)

func TestTaskCreateCommand(t *testing.T) {
	var got server.TaskCreateRequest

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(task.Task{
			ID:             7,
			Title:          got.Title,
			Description:    got.Description,
			Status:         task.StatusPending,
			CodingTool:     task.ToolAmp,
			RepositoryPath: got.RepositoryPath,
		})
	})
	newTestAPI(t, mux)

	repoDir := t.TempDir()
	cmd := newTaskCreateCmd()
	cmd.SetArgs([]string{"Fix login bug", "--repo", repoDir})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	if got.Title != "Fix login bug" {
		t.Errorf("request title = %q", got.Title)
	}
	if got.Description != "Fix login bug" {
		t.Errorf("description should default to the title, got %q", got.Description)
	}
	if !filepath.IsAbs(got.RepositoryPath) {
		t.Errorf("repository path should be absolute, got %q", got.RepositoryPath)
	}
	if !strings.Contains(out, "Created task 7") {
		t.Errorf("output should confirm creation, got:\n%s", out)
	}
}

func TestTaskCreateCommandWithDescription(t *testing.T) {
	var got server.TaskCreateRequest

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(task.Task{ID: 8, Title: got.Title, Status: task.StatusPending})
	})
	newTestAPI(t, mux)

	cmd := newTaskCreateCmd()
	cmd.SetArgs([]string{"Add dark mode", "-d", "Add a dark theme toggle", "--repo", t.TempDir(), "--tool", "openai"})

	_ = captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	if got.Description != "Add a dark theme toggle" {
		t.Errorf("description = %q", got.Description)
	}
	if got.CodingTool != "openai" {
		t.Errorf("coding tool = %q", got.CodingTool)
	}
}

func TestTaskCreateCommandServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "repository not registered"})
	})
	newTestAPI(t, mux)

	cmd := newTaskCreateCmd()
	cmd.SetArgs([]string{"Fix bug", "--repo", t.TempDir()})
	cmd.SilenceErrors = true

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error from server")
	}
	if !strings.Contains(err.Error(), "repository not registered") {
		t.Errorf("error should carry the server message, got: %v", err)
	}
}

func TestTaskListCommand(t *testing.T) {
	now := time.Now().UTC()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]task.Task{
			{ID: 2, Title: "Newer task", Status: task.StatusInProgress, CurrentStage: task.StageGeneratingCode, CreatedAt: now, UpdatedAt: now},
			{ID: 1, Title: "Older task", Status: task.StatusAwaitingReview, PRNumber: 3, PRURL: "https://github.com/o/r/pull/3", CreatedAt: now, UpdatedAt: now},
		})
	})
	newTestAPI(t, mux)

	cmd := newTaskListCmd()
	cmd.SetArgs([]string{})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	for _, want := range []string{"Newer task", "Older task", "generating_code", "#3", "in-progress"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got:\n%s", want, out)
		}
	}
}

func TestTaskListCommandStatusFilter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]task.Task{
			{ID: 2, Title: "Running one", Status: task.StatusInProgress},
			{ID: 1, Title: "Done one", Status: task.StatusCompleted},
		})
	})
	newTestAPI(t, mux)

	cmd := newTaskListCmd()
	cmd.SetArgs([]string{"--status", "completed"})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	if !strings.Contains(out, "Done one") {
		t.Errorf("output should contain the completed task, got:\n%s", out)
	}
	if strings.Contains(out, "Running one") {
		t.Errorf("output should NOT contain the in-progress task, got:\n%s", out)
	}
}

func TestTaskListCommandEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]task.Task{})
	})
	newTestAPI(t, mux)

	cmd := newTaskListCmd()
	cmd.SetArgs([]string{})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	if !strings.Contains(out, "No tasks found") {
		t.Errorf("output should mention no tasks, got:\n%s", out)
	}
}

func TestTaskShowCommand(t *testing.T) {
	now := time.Now().UTC()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks/5", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(task.Task{
			ID:             5,
			Title:          "Fix login bug",
			Description:    "The login flow breaks on retry",
			Summary:        "Fixes retry handling in login",
			Status:         task.StatusAwaitingReview,
			CurrentStage:   task.StageAwaitingReview,
			CodingTool:     task.ToolAmp,
			RepositoryPath: "/home/dev/src/app",
			BranchName:     "duckling-fix-login-bug",
			PRNumber:       12,
			PRURL:          "https://github.com/acme/app/pull/12",
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	})
	newTestAPI(t, mux)

	cmd := newTaskShowCmd()
	cmd.SetArgs([]string{"5"})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	for _, want := range []string{
		"Task 5 - Fix login bug",
		"awaiting-review",
		"duckling-fix-login-bug",
		"#12 https://github.com/acme/app/pull/12",
		"The login flow breaks on retry",
		"Fixes retry handling in login",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got:\n%s", want, out)
		}
	}
}

func TestTaskShowCommandRejectsBadID(t *testing.T) {
	cmd := newTaskShowCmd()
	cmd.SetArgs([]string{"abc"})
	cmd.SilenceErrors = true

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid task id") {
		t.Errorf("expected invalid task id error, got: %v", err)
	}
}

func TestTaskLifecycleCommands(t *testing.T) {
	tests := []struct {
		name       string
		newCmd     func() *cobra.Command
		verb       string
		wantStatus task.Status
	}{
		{"cancel", newTaskCancelCmd, "cancel", task.StatusCancelled},
		{"retry", newTaskRetryCmd, "retry", task.StatusPending},
		{"complete", newTaskCompleteCmd, "complete", task.StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hit bool
			mux := http.NewServeMux()
			mux.HandleFunc(fmt.Sprintf("POST /api/tasks/5/%s", tt.verb), func(w http.ResponseWriter, r *http.Request) {
				hit = true
				_ = json.NewEncoder(w).Encode(task.Task{ID: 5, Status: tt.wantStatus})
			})
			newTestAPI(t, mux)

			cmd := tt.newCmd()
			cmd.SetArgs([]string{"5"})

			out := captureOutput(t, func() {
				if err := cmd.Execute(); err != nil {
					t.Errorf("execute command: %v", err)
				}
			})

			if !hit {
				t.Errorf("%s endpoint was not called", tt.verb)
			}
			want := fmt.Sprintf("Task 5 is now %s", tt.wantStatus)
			if !strings.Contains(out, want) {
				t.Errorf("output should contain %q, got:\n%s", want, out)
			}
		})
	}
}
