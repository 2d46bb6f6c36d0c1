package cli

// NOTE: These tests mutate package-level state (apiAddr, os.Stdout capture)
// and MUST NOT use t.Parallel().

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/randalmurphal/duckling/internal/task"
)

func TestCheckAddCommand(t *testing.T) {
	var got task.PrecommitCheck
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/checks", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		got.ID = 3
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(got)
	})
	newTestAPI(t, mux)

	cmd := newCheckAddCmd()
	cmd.SetArgs([]string{"gotest", "--command", "go test ./...", "--paths", "**/*.go", "--order", "5"})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	if got.Name != "gotest" {
		t.Errorf("name = %q, want gotest", got.Name)
	}
	if got.Command != "go test ./..." {
		t.Errorf("command = %q, want go test ./...", got.Command)
	}
	if got.Paths != "**/*.go" {
		t.Errorf("paths = %q, want **/*.go", got.Paths)
	}
	if got.OrderIndex != 5 {
		t.Errorf("order = %d, want 5", got.OrderIndex)
	}
	if !strings.Contains(out, "Added check 3: gotest") {
		t.Errorf("output should confirm the add, got:\n%s", out)
	}
}

func TestCheckAddCommandRequiresCommand(t *testing.T) {
	cmd := newCheckAddCmd()
	cmd.SetArgs([]string{"lint"})
	cmd.SilenceErrors = true

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--command is required") {
		t.Errorf("expected missing-command error, got: %v", err)
	}
}

func TestCheckListCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/checks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]task.PrecommitCheck{
			{ID: 1, Name: "lint", Command: "make lint", OrderIndex: 0},
			{ID: 2, Name: "gotest", Command: "go test ./...", Paths: "**/*.go", OrderIndex: 5},
		})
	})
	newTestAPI(t, mux)

	cmd := newCheckListCmd()
	cmd.SetArgs([]string{})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	for _, want := range []string{"lint", "make lint", "gotest", "**/*.go"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got:\n%s", want, out)
		}
	}
}

func TestCheckListCommandEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/checks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]task.PrecommitCheck{})
	})
	newTestAPI(t, mux)

	cmd := newCheckListCmd()
	cmd.SetArgs([]string{})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	if !strings.Contains(out, "No checks configured") {
		t.Errorf("output should mention empty check list, got:\n%s", out)
	}
}

func TestCheckRemoveCommand(t *testing.T) {
	hit := false
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/checks/3", func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusNoContent)
	})
	newTestAPI(t, mux)

	cmd := newCheckRemoveCmd()
	cmd.SetArgs([]string{"3"})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	if !hit {
		t.Error("DELETE /api/checks/3 was never called")
	}
	if !strings.Contains(out, "Removed check 3") {
		t.Errorf("output should confirm removal, got:\n%s", out)
	}
}

func TestCheckRemoveCommandRejectsBadID(t *testing.T) {
	cmd := newCheckRemoveCmd()
	cmd.SetArgs([]string{"banana"})
	cmd.SilenceErrors = true

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid check id") {
		t.Errorf("expected invalid id error, got: %v", err)
	}
}
