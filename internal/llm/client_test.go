package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientComplete(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotReq chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "  fix-login-timeout  "}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"})

	got, err := c.Complete(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "fix-login-timeout" {
		t.Errorf("Complete() = %q, want trimmed content", got)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Errorf("Messages = %+v", gotReq.Messages)
	}
}

func TestClientCompleteErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"http error status", http.StatusTooManyRequests, `{"error":{"message":"rate limited"}}`, "status 429"},
		{"api error payload", http.StatusOK, `{"error":{"message":"bad model"}}`, "bad model"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"  "}}]}`, "empty content"},
		{"malformed json", http.StatusOK, `{not json`, "parse response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
			_, err := c.Complete(context.Background(), "s", "u")
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestClientConfigured(t *testing.T) {
	t.Parallel()

	var nilClient *Client
	if nilClient.Configured() {
		t.Error("nil client should not be configured")
	}
	if NewClient(Config{}).Configured() {
		t.Error("client without key should not be configured")
	}
	if !NewClient(Config{APIKey: "sk"}).Configured() {
		t.Error("client with key should be configured")
	}
}

func TestClientDefaults(t *testing.T) {
	t.Parallel()

	c := NewClient(Config{APIKey: "sk"})
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q", c.baseURL)
	}
	if c.model != DefaultModel {
		t.Errorf("model = %q", c.model)
	}

	c = NewClient(Config{APIKey: "sk", BaseURL: "https://proxy.local/v1/"})
	if c.baseURL != "https://proxy.local/v1" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("0123456789abc", 10); got != "0123456789..." {
		t.Errorf("truncate() = %q", got)
	}
}
