package cli

// NOTE: These tests mutate package-level state (apiAddr, os.Stdout capture)
// and MUST NOT use t.Parallel().

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/randalmurphal/duckling/internal/task"
)

func logFixture(id int64, level task.LogLevel, msg string) task.Log {
	return task.Log{
		ID:        id,
		TaskID:    9,
		Level:     level,
		Message:   msg,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, int(id), 0, time.UTC),
	}
}

func TestLogsCommand(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks/9/logs", func(w http.ResponseWriter, r *http.Request) {
		if lvl := r.URL.Query().Get("level"); lvl != "" {
			t.Errorf("unexpected level filter %q", lvl)
		}
		_ = json.NewEncoder(w).Encode([]task.Log{
			logFixture(1, task.LogInfo, "Task created"),
			logFixture(2, task.LogError, "pre-commit check lint failed"),
		})
	})
	newTestAPI(t, mux)

	cmd := newLogsCmd()
	cmd.SetArgs([]string{"9"})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	for _, want := range []string{"Task created", "pre-commit check lint failed", "INFO", "ERROR"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got:\n%s", want, out)
		}
	}
	// Output is piped, so no ANSI escapes should appear.
	if strings.Contains(out, "\033[") {
		t.Errorf("piped output should not contain ANSI escapes, got:\n%s", out)
	}
}

func TestLogsCommandLevelFilter(t *testing.T) {
	var gotLevel string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks/9/logs", func(w http.ResponseWriter, r *http.Request) {
		gotLevel = r.URL.Query().Get("level")
		_ = json.NewEncoder(w).Encode([]task.Log{logFixture(3, task.LogError, "boom")})
	})
	newTestAPI(t, mux)

	cmd := newLogsCmd()
	cmd.SetArgs([]string{"9", "--level", "error"})

	_ = captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	if gotLevel != "error" {
		t.Errorf("server saw level=%q, want error", gotLevel)
	}
}

func TestLogsCommandRejectsBadLevel(t *testing.T) {
	var hit bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { hit = true })
	newTestAPI(t, mux)

	cmd := newLogsCmd()
	cmd.SetArgs([]string{"9", "--level", "loud"})
	cmd.SilenceErrors = true

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "invalid log level") {
		t.Errorf("expected invalid log level error, got: %v", err)
	}
	if hit {
		t.Error("server should not be contacted for an invalid level")
	}
}

func TestLogsCommandTailLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks/9/logs", func(w http.ResponseWriter, r *http.Request) {
		logs := make([]task.Log, 0, 5)
		for i := int64(1); i <= 5; i++ {
			logs = append(logs, logFixture(i, task.LogInfo, "entry "+string(rune('0'+i))))
		}
		_ = json.NewEncoder(w).Encode(logs)
	})
	newTestAPI(t, mux)

	cmd := newLogsCmd()
	cmd.SetArgs([]string{"9", "-n", "2"})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	if strings.Contains(out, "entry 1") || strings.Contains(out, "entry 3") {
		t.Errorf("only the last two entries should print, got:\n%s", out)
	}
	for _, want := range []string{"entry 4", "entry 5"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q, got:\n%s", want, out)
		}
	}
}

func TestLogsCommandEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tasks/9/logs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]task.Log{})
	})
	newTestAPI(t, mux)

	cmd := newLogsCmd()
	cmd.SetArgs([]string{"9"})

	out := captureOutput(t, func() {
		if err := cmd.Execute(); err != nil {
			t.Errorf("execute command: %v", err)
		}
	})

	if !strings.Contains(out, "No log entries for task 9") {
		t.Errorf("output should mention the empty log, got:\n%s", out)
	}
}
