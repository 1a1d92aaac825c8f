package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaEmbedderBatchesOverSingleCalls(t *testing.T) {
	var prompts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompts = append(prompts, req.Prompt)
		fmt.Fprintf(w, `{"embedding":[%d,1]}`, len(req.Prompt))
	}))
	defer server.Close()

	e := NewOllamaEmbedder(Options{Model: "nomic-embed-text", Dimension: 2, OllamaHost: server.URL})

	vectors, err := e.Embed(context.Background(), []string{"aa", "bbbb"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if vectors[0][0] != 2 || vectors[1][0] != 4 {
		t.Fatalf("vectors out of input order: %v", vectors)
	}
	if len(prompts) != 2 || prompts[0] != "aa" || prompts[1] != "bbbb" {
		t.Fatalf("unexpected prompts sent: %v", prompts)
	}
}

func TestOllamaEmbedderDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"embedding":[1,2,3]}`)
	}))
	defer server.Close()

	e := NewOllamaEmbedder(Options{Model: "m", Dimension: 2, OllamaHost: server.URL})

	if _, err := e.Embed(context.Background(), []string{"text"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	} else if !strings.Contains(err.Error(), "dimensions") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOllamaEmbedderSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model 'missing' not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	e := NewOllamaEmbedder(Options{Model: "missing", OllamaHost: server.URL})

	_, err := e.Embed(context.Background(), []string{"text"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected model-not-found error, got %v", err)
	}
}

func TestOpenAIEmbedderMapsVectorsByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","model":"m","data":[`+
			`{"object":"embedding","index":1,"embedding":[4,4]},`+
			`{"object":"embedding","index":0,"embedding":[3,3]}]}`)
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(Options{Model: "m", Dimension: 2, OpenAIAPIKey: "test", OpenAIBaseURL: server.URL})

	vectors, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vectors[0][0] != 3 || vectors[1][0] != 4 {
		t.Fatalf("vectors not remapped to input order: %v", vectors)
	}
}

func TestOpenAIEmbedderRejectsShortResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","model":"m","data":[`+
			`{"object":"embedding","index":0,"embedding":[1,1]}]}`)
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(Options{Model: "m", OpenAIAPIKey: "test", OpenAIBaseURL: server.URL})

	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for missing vectors")
	}
}

func TestOpenAIEmbedderEmptyInput(t *testing.T) {
	e := NewOpenAIEmbedder(Options{Model: "m", OpenAIAPIKey: "test"})

	vectors, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vectors != nil {
		t.Fatalf("expected no vectors, got %v", vectors)
	}
}
