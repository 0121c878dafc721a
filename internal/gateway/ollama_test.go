package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aegis/pkg/errors"
)

func TestOllamaBackend_Generate(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]string{"role": "assistant", "content": "safe"},
		})
	}))
	defer server.Close()

	backend := NewOllamaBackend(server.URL)
	resp, err := backend.Generate(context.Background(), GenerateRequest{
		Model:       "llama-guard3:8b",
		Prompt:      "Check this request",
		System:      "You are a guard.",
		Temperature: 0.1,
		MaxTokens:   128,
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Text != "safe" {
		t.Errorf("Expected text 'safe', got %q", resp.Text)
	}

	if got.Model != "llama-guard3:8b" {
		t.Errorf("Unexpected model %q", got.Model)
	}
	if got.Stream {
		t.Error("Streaming must be disabled")
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Errorf("Unexpected message layout: %+v", got.Messages)
	}
	if got.Options.Temperature != 0.1 || got.Options.NumPredict != 128 {
		t.Errorf("Options not forwarded: %+v", got.Options)
	}
}

func TestOllamaBackend_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	backend := NewOllamaBackend(server.URL)
	_, err := backend.Generate(context.Background(), GenerateRequest{Model: "missing", Prompt: "hi"})
	if !errors.Is(err, errors.ErrBackendUnavailable) {
		t.Fatalf("Expected ErrBackendUnavailable, got %v", err)
	}
}

func TestOllamaBackend_ConnectionRefused(t *testing.T) {
	// Grab a port nobody listens on
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	backend := NewOllamaBackend(url)
	_, err := backend.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"})
	if !errors.Is(err, errors.ErrBackendUnavailable) {
		t.Fatalf("Expected ErrBackendUnavailable, got %v", err)
	}
}

func TestOllamaBackend_DeadlineExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	backend := NewOllamaBackend(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := backend.Generate(ctx, GenerateRequest{Model: "m", Prompt: "hi"})
	if !errors.Is(err, errors.ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
}

func TestOllamaBackend_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	backend := NewOllamaBackend(server.URL)
	_, err := backend.Generate(context.Background(), GenerateRequest{Model: "m", Prompt: "hi"})
	if !errors.Is(err, errors.ErrInvalidResponse) {
		t.Fatalf("Expected ErrInvalidResponse, got %v", err)
	}
}

func TestOllamaBackend_DefaultBaseURL(t *testing.T) {
	backend := NewOllamaBackend("")
	if backend.baseURL != "http://localhost:11434" {
		t.Errorf("Unexpected default base URL %q", backend.baseURL)
	}
}
