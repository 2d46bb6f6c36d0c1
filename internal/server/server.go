// Package server exposes the engine and the registry over HTTP plus a
// WebSocket feed of task updates. The engine owns all task mutation; the
// handlers here translate requests into engine calls and store reads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/randalmurphal/duckling/internal/db"
	"github.com/randalmurphal/duckling/internal/engine"
	"github.com/randalmurphal/duckling/internal/events"
	"github.com/randalmurphal/duckling/internal/task"
)

// TaskService is the slice of the engine the HTTP layer drives.
type TaskService interface {
	CreateTask(ctx context.Context, req engine.CreateTaskRequest) (*task.Task, error)
	CancelTask(ctx context.Context, id int64) error
	RetryTask(ctx context.Context, id int64) error
	MarkComplete(ctx context.Context, id int64) error
	Subscribe(buffer int) (string, <-chan events.TaskUpdate)
	Unsubscribe(id string)
}

// Store is the read and registry surface the handlers use directly. Task
// rows are only ever read here; writes go through TaskService.
type Store interface {
	GetTask(ctx context.Context, id int64) (*task.Task, error)
	ListTasks(ctx context.Context) ([]task.Task, error)
	CountTasksByStatus(ctx context.Context) (map[task.Status]int, error)
	ListTaskLogs(ctx context.Context, taskID int64, opts db.TaskLogOpts) ([]task.Log, error)
	ListRepositories(ctx context.Context) ([]task.Repository, error)
	SaveRepository(ctx context.Context, r *task.Repository) error
	DeleteRepository(ctx context.Context, path string) error
	ListPrecommitChecks(ctx context.Context) ([]task.PrecommitCheck, error)
	SavePrecommitCheck(ctx context.Context, c *task.PrecommitCheck) error
	DeletePrecommitCheck(ctx context.Context, id int64) error
	AllSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Config holds server configuration.
type Config struct {
	Addr   string
	Engine TaskService
	Store  Store
	Logger *slog.Logger
}

// DefaultAddr is used when Config.Addr is empty.
const DefaultAddr = ":8080"

// Server is the duckling API server.
type Server struct {
	addr      string
	engine    TaskService
	store     Store
	mux       *http.ServeMux
	logger    *slog.Logger
	ws        *wsHandler
	dashboard *dashboardCache
}

// New creates an API server. Config.Engine and Config.Store are required.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:      addr,
		engine:    cfg.Engine,
		store:     cfg.Store,
		mux:       http.NewServeMux(),
		logger:    logger,
		dashboard: newDashboardCache(cfg.Store, dashboardTTL),
	}
	s.ws = newWSHandler(cfg.Engine, logger)

	s.registerRoutes()
	return s
}

// registerRoutes sets up all API routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Tasks
	s.mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	s.mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/cancel", s.handleCancelTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/retry", s.handleRetryTask)
	s.mux.HandleFunc("POST /api/tasks/{id}/complete", s.handleCompleteTask)
	s.mux.HandleFunc("GET /api/tasks/{id}/logs", s.handleTaskLogs)

	// Repository registry
	s.mux.HandleFunc("GET /api/repositories", s.handleListRepositories)
	s.mux.HandleFunc("POST /api/repositories", s.handleAddRepository)
	s.mux.HandleFunc("DELETE /api/repositories", s.handleRemoveRepository)

	// Pre-commit checks
	s.mux.HandleFunc("GET /api/checks", s.handleListChecks)
	s.mux.HandleFunc("POST /api/checks", s.handleAddCheck)
	s.mux.HandleFunc("DELETE /api/checks/{id}", s.handleRemoveCheck)

	// Settings
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings/{key}", s.handleUpdateSetting)

	// Dashboard
	s.mux.HandleFunc("GET /api/dashboard", s.handleDashboard)

	// WebSocket task updates
	s.mux.Handle("GET /ws", s.ws)
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start runs the server until the listener fails.
func (s *Server) Start() error {
	return s.StartContext(context.Background())
}

// StartContext runs the server until ctx is cancelled, then shuts down
// gracefully. WebSocket connections are closed as part of shutdown.
func (s *Server) StartContext(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	go func() {
		<-ctx.Done()
		s.ws.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", s.addr)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) && ctx.Err() != nil {
		return nil
	}
	return err
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// jsonError writes a JSON error response.
func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// serviceError maps engine and store errors onto HTTP statuses: validation
// problems map to 400, unknown ids and unregistered repositories to 404,
// rejected lifecycle transitions to 409, everything else to 500.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, task.ErrEmptyDescription), errors.Is(err, task.ErrUnknownTool):
		s.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, db.ErrNotFound), errors.Is(err, engine.ErrNotRegistered):
		s.jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, engine.ErrInvalidTransition):
		s.jsonError(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("request failed", "error", err)
		s.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}
