package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClientGenerate(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"1","object":"chat.completion","created":1,"model":"gpt-4o-mini",`+
			`"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	c := NewOpenAIClient(Options{Model: "gpt-4o-mini", OpenAIAPIKey: "test", OpenAIBaseURL: server.URL})

	reply, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "hello" {
		t.Fatalf("expected reply %q, got %q", "hello", reply)
	}
	if gotModel != "gpt-4o-mini" {
		t.Fatalf("expected configured model in request, got %q", gotModel)
	}
}

func TestOpenAIClientRejectsEmptyMessages(t *testing.T) {
	c := NewOpenAIClient(Options{Model: "m", OpenAIAPIKey: "test"})

	if _, err := c.Generate(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty message list")
	}
}

func TestOllamaClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/chat") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `{"message":{"role":"assistant","content":"pong"},"done":true}`)
	}))
	defer server.Close()

	c := NewOllamaClient(Options{Model: "llama3", OllamaHost: server.URL})

	reply, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "ping"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if reply != "pong" {
		t.Fatalf("expected reply %q, got %q", "pong", reply)
	}
}

func TestOllamaClientSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model 'missing' not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	c := NewOllamaClient(Options{Model: "missing", OllamaHost: server.URL})

	_, err := c.Generate(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected model-not-found error, got %v", err)
	}
}
