package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/randalmurphal/duckling/internal/hosting"
	"github.com/randalmurphal/duckling/internal/settings"
	"github.com/randalmurphal/duckling/internal/task"
)

// handleListRepositories returns all registered repositories.
func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := s.store.ListRepositories(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if repos == nil {
		repos = []task.Repository{}
	}
	s.jsonResponse(w, repos)
}

// handleAddRepository registers a working copy. The caller supplies the
// detected owner, name and provider; registration is an upsert keyed on
// the absolute path.
func (s *Server) handleAddRepository(w http.ResponseWriter, r *http.Request) {
	var repo task.Repository
	if err := json.NewDecoder(r.Body).Decode(&repo); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if repo.Path == "" || !filepath.IsAbs(repo.Path) {
		s.jsonError(w, "path must be absolute", http.StatusBadRequest)
		return
	}
	if repo.Name == "" || repo.Owner == "" {
		s.jsonError(w, "name and owner are required", http.StatusBadRequest)
		return
	}
	switch hosting.ProviderType(repo.Provider) {
	case hosting.ProviderGitHub, hosting.ProviderGitLab:
	default:
		s.jsonError(w, fmt.Sprintf("unsupported provider: %s (valid: github, gitlab)", repo.Provider), http.StatusBadRequest)
		return
	}

	if err := s.store.SaveRepository(r.Context(), &repo); err != nil {
		s.serviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(repo)
}

// handleRemoveRepository removes a registry row by its ?path= parameter.
// Tasks referencing the path keep their history; only new task creation
// against the path stops working.
func (s *Server) handleRemoveRepository(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.jsonError(w, "path query parameter is required", http.StatusBadRequest)
		return
	}
	if err := s.store.DeleteRepository(r.Context(), path); err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, map[string]string{"status": "removed"})
}

// handleListChecks returns all pre-commit checks in execution order.
func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := s.store.ListPrecommitChecks(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if checks == nil {
		checks = []task.PrecommitCheck{}
	}
	s.jsonResponse(w, checks)
}

// handleAddCheck registers a pre-commit check and returns it with the
// assigned id.
func (s *Server) handleAddCheck(w http.ResponseWriter, r *http.Request) {
	var check task.PrecommitCheck
	if err := json.NewDecoder(r.Body).Decode(&check); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if check.Name == "" || check.Command == "" {
		s.jsonError(w, "name and command are required", http.StatusBadRequest)
		return
	}
	check.ID = 0

	if err := s.store.SavePrecommitCheck(r.Context(), &check); err != nil {
		s.serviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(check)
}

// handleRemoveCheck deletes a pre-commit check by id.
func (s *Server) handleRemoveCheck(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		s.jsonError(w, "invalid check id", http.StatusBadRequest)
		return
	}
	if err := s.store.DeletePrecommitCheck(r.Context(), id); err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, map[string]string{"status": "removed"})
}

// handleGetSettings returns every stored setting.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	all, err := s.store.AllSettings(r.Context())
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if all == nil {
		all = map[string]string{}
	}
	s.jsonResponse(w, all)
}

// handleUpdateSetting writes one setting value. Only known keys are
// writable; bookkeeping keys are engine-owned.
func (s *Server) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !settings.Known(key) {
		s.jsonError(w, fmt.Sprintf("unknown setting: %s", key), http.StatusBadRequest)
		return
	}

	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.store.SetSetting(r.Context(), key, req.Value); err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, map[string]string{key: req.Value})
}
