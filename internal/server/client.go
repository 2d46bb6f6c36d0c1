package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/duckling/internal/task"
)

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client is a typed HTTP client for the duckling API. The zero value is
// not usable; construct with NewClient.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// NewClient returns a client for the server at baseURL, for example
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

// BaseURL returns the configured server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WebSocketURL returns the ws:// address of the task-update feed.
func (c *Client) WebSocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// CreateTask creates a new task and returns the pending row.
func (c *Client) CreateTask(ctx context.Context, req TaskCreateRequest) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Tasks returns all tasks, newest first.
func (c *Client) Tasks(ctx context.Context) ([]task.Task, error) {
	var tasks []task.Task
	if err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Task returns a single task by id.
func (c *Client) Task(ctx context.Context, id int64) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id, ""), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CancelTask cancels a task and returns the updated row.
func (c *Client) CancelTask(ctx context.Context, id int64) (*task.Task, error) {
	return c.lifecycle(ctx, id, "cancel")
}

// RetryTask re-queues a failed task and returns the updated row.
func (c *Client) RetryTask(ctx context.Context, id int64) (*task.Task, error) {
	return c.lifecycle(ctx, id, "retry")
}

// CompleteTask marks a task completed and returns the updated row.
func (c *Client) CompleteTask(ctx context.Context, id int64) (*task.Task, error) {
	return c.lifecycle(ctx, id, "complete")
}

func (c *Client) lifecycle(ctx context.Context, id int64, verb string) (*task.Task, error) {
	var t task.Task
	if err := c.do(ctx, http.MethodPost, taskPath(id, verb), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// LogQuery filters TaskLogs. Zero values mean unfiltered.
type LogQuery struct {
	Level   string
	AfterID int64
	Limit   int
	Offset  int
}

func (q LogQuery) values() url.Values {
	v := url.Values{}
	if q.Level != "" {
		v.Set("level", q.Level)
	}
	if q.AfterID > 0 {
		v.Set("after_id", strconv.FormatInt(q.AfterID, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	return v
}

// TaskLogs returns a task's log entries in insertion order.
func (c *Client) TaskLogs(ctx context.Context, id int64, q LogQuery) ([]task.Log, error) {
	path := taskPath(id, "logs")
	if params := q.values().Encode(); params != "" {
		path += "?" + params
	}
	var logs []task.Log
	if err := c.do(ctx, http.MethodGet, path, nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// Repositories returns all registered repositories.
func (c *Client) Repositories(ctx context.Context) ([]task.Repository, error) {
	var repos []task.Repository
	if err := c.do(ctx, http.MethodGet, "/api/repositories", nil, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// AddRepository registers a working copy and returns the stored row.
func (c *Client) AddRepository(ctx context.Context, repo task.Repository) (*task.Repository, error) {
	var saved task.Repository
	if err := c.do(ctx, http.MethodPost, "/api/repositories", repo, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// RemoveRepository removes a registry row by path.
func (c *Client) RemoveRepository(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/api/repositories?path="+url.QueryEscape(path), nil, nil)
}

// Checks returns all pre-commit checks in execution order.
func (c *Client) Checks(ctx context.Context) ([]task.PrecommitCheck, error) {
	var checks []task.PrecommitCheck
	if err := c.do(ctx, http.MethodGet, "/api/checks", nil, &checks); err != nil {
		return nil, err
	}
	return checks, nil
}

// AddCheck registers a pre-commit check and returns it with its id.
func (c *Client) AddCheck(ctx context.Context, check task.PrecommitCheck) (*task.PrecommitCheck, error) {
	var saved task.PrecommitCheck
	if err := c.do(ctx, http.MethodPost, "/api/checks", check, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// RemoveCheck deletes a pre-commit check by id.
func (c *Client) RemoveCheck(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/checks/"+strconv.FormatInt(id, 10), nil, nil)
}

// Settings returns every stored setting.
func (c *Client) Settings(ctx context.Context) (map[string]string, error) {
	var all map[string]string
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &all); err != nil {
		return nil, err
	}
	return all, nil
}

// SetSetting writes one setting value.
func (c *Client) SetSetting(ctx context.Context, key, value string) error {
	body := map[string]string{"value": value}
	return c.do(ctx, http.MethodPut, "/api/settings/"+url.PathEscape(key), body, nil)
}

// Dashboard returns status counts and recent tasks.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	if err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func taskPath(id int64, suffix string) string {
	p := "/api/tasks/" + strconv.FormatInt(id, 10)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// do sends one request and decodes the response into out when non-nil.
// Non-2xx responses come back as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error string `json:"error"`
		}
		message := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != "" {
			message = envelope.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
