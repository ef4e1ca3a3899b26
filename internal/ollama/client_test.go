package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"jobMatch/internal/config"
)

func TestGenerate_SendsNonStreamingRequest(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "85", "done": true})
	}))
	defer srv.Close()

	client := NewClient(config.OllamaConfig{URL: srv.URL, Model: "llama3"})
	out, err := client.Generate(context.Background(), "score this")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if out != "85" {
		t.Fatalf("expected 85 got %q", out)
	}
	if got.Model != "llama3" || got.Prompt != "score this" || got.Stream {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestGenerate_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(config.OllamaConfig{URL: srv.URL, Model: "llama3"})
	_, err := client.Generate(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error for 503")
	}
	if !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected status in error got %v", err)
	}
}

func TestGenerate_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"   "}`))
	}))
	defer srv.Close()

	client := NewClient(config.OllamaConfig{URL: srv.URL, Model: "llama3"})
	_, err := client.Generate(context.Background(), "x")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse got %v", err)
	}
}

func TestGenerate_RespectsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(config.OllamaConfig{URL: srv.URL, Model: "llama3"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.Generate(ctx, "x"); err == nil {
		t.Fatal("expected deadline error")
	}
}
