package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing model", cfg: Config{Provider: "openai", APIKey: "k"}},
		{name: "missing key", cfg: Config{Provider: "openai", Model: "gpt-4o-mini"}},
		{name: "unknown provider", cfg: Config{Provider: "mystery", Model: "m", APIKey: "k"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, nil); err == nil {
				t.Error("expected config error")
			}
		})
	}
}

func TestOpenAIComplete(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"choices": [{"message": {"content": "{\"score\": 0.4}"}}]}`)
	}))
	defer ts.Close()

	client, err := New(Config{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		APIKey:   "sk-test",
		BaseURL:  ts.URL,
	}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	content, err := client.Complete(context.Background(), "assess injuries", "respond with JSON")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if content != `{"score": 0.4}` {
		t.Errorf("content = %q", content)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", gotBody["model"])
	}

	messages, ok := gotBody["messages"].([]any)
	if !ok || len(messages) != 2 {
		t.Fatalf("messages = %v", gotBody["messages"])
	}
	first := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "respond with JSON" {
		t.Errorf("system message = %v", first)
	}
}

func TestOpenAICompleteErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer ts.Close()

		client, _ := New(Config{Provider: "openai", Model: "m", APIKey: "k", BaseURL: ts.URL}, nil)
		if _, err := client.Complete(context.Background(), "p", ""); err == nil {
			t.Error("expected error for 429")
		}
	})

	t.Run("empty choices", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"choices": []}`)
		}))
		defer ts.Close()

		client, _ := New(Config{Provider: "openai", Model: "m", APIKey: "k", BaseURL: ts.URL}, nil)
		_, err := client.Complete(context.Background(), "p", "")
		if err == nil || !strings.Contains(err.Error(), "no choices") {
			t.Errorf("err = %v, want no choices", err)
		}
	})
}

func TestAnthropicComplete(t *testing.T) {
	var gotVersion, gotKey string
	var gotBody map[string]any

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"content": [{"type": "text", "text": "{\"score\": "}, {"type": "text", "text": "-0.2}"}]}`)
	}))
	defer ts.Close()

	client, err := New(Config{
		Provider: "anthropic",
		Model:    "claude-sonnet-4-20250514",
		APIKey:   "ak-test",
		BaseURL:  ts.URL,
	}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	content, err := client.Complete(context.Background(), "assess injuries", "respond with JSON")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if content != `{"score": -0.2}` {
		t.Errorf("content = %q", content)
	}

	if gotVersion != "2023-06-01" {
		t.Errorf("version header = %q", gotVersion)
	}
	if gotKey != "ak-test" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotBody["system"] != "respond with JSON" {
		t.Errorf("system = %v", gotBody["system"])
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "json fence", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "bare fence", in: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "no fence", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "whitespace", in: "  {\"a\": 1}  ", want: `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFences(tt.in); got != tt.want {
				t.Errorf("StripCodeFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare object", in: `{"a": 1}`, want: `{"a": 1}`},
		{name: "prose around", in: `Here you go: {"a": 1}. Enjoy!`, want: `{"a": 1}`},
		{name: "nested", in: `{"a": {"b": 2}} trailing`, want: `{"a": {"b": 2}}`},
		{name: "no object", in: "nothing here", want: ""},
		{name: "unbalanced", in: `{"a": 1`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
