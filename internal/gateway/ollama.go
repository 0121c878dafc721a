package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"aegis/pkg/errors"
)

// OllamaBackend serves the fast and guard roles from a local Ollama server.
type OllamaBackend struct {
	baseURL    string
	httpClient *http.Client
}

// Ensure OllamaBackend implements Backend
var _ Backend = (*OllamaBackend)(nil)

// NewOllamaBackend creates an Ollama backend pointing at the given base URL.
// If baseURL is empty, defaults to http://localhost:11434.
func NewOllamaBackend(baseURL string) *OllamaBackend {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaBackend{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Name returns the backend identifier.
func (b *OllamaBackend) Name() string { return "ollama" }

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Generate sends a chat request to the local Ollama instance.
func (b *OllamaBackend) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	var messages []ollamaMessage
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.Prompt})

	apiReq := ollamaRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, errors.Wrap(err, "marshal ollama request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create ollama request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(errors.ErrTimeout, "ollama api call")
		}
		return nil, errors.Wrapf(errors.ErrBackendUnavailable, "ollama api call: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrBackendUnavailable, "read ollama response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrBackendUnavailable, "ollama API error (%d): %s",
			resp.StatusCode, truncate(string(respBody), 200))
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidResponse, "decode ollama response: %v", err)
	}

	return &GenerateResponse{Text: apiResp.Message.Content}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
