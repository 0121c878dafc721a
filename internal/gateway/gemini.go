package gateway

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"aegis/pkg/errors"
)

// GeminiBackend serves the powerful role via the Gemini API. It is the only
// backend that supports planning with function calling.
type GeminiBackend struct {
	client *genai.Client
}

var (
	_ Backend = (*GeminiBackend)(nil)
	_ Planner = (*GeminiBackend)(nil)
)

// NewGeminiBackend creates a Gemini backend with the given API key.
func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "gemini API key not configured")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, errors.Wrap(err, "create gemini client")
	}

	return &GeminiBackend{client: client}, nil
}

// Name returns the backend identifier.
func (b *GeminiBackend) Name() string { return "gemini" }

// Generate produces a plain text completion.
func (b *GeminiBackend) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)}},
	}

	resp, err := b.client.Models.GenerateContent(ctx, req.Model, contents, toGenerateConfig(req, nil))
	if err != nil {
		return nil, mapGeminiError(ctx, err)
	}

	text, err := textFromResponse(resp)
	if err != nil {
		return nil, err
	}
	return &GenerateResponse{Text: text}, nil
}

// Plan runs a planning call with the tool schemas attached and returns a
// typed final-answer or tool-call result.
func (b *GeminiBackend) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	contents := toGeminiContents(req.History)

	cfg := toGenerateConfig(GenerateRequest{
		System:      req.System,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, toGeminiTools(req.Tools))

	resp, err := b.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, mapGeminiError(ctx, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.Wrap(errors.ErrInvalidResponse, "no candidates in planning response")
	}
	candidate := resp.Candidates[0]

	// A function-call part anywhere in the candidate means the model chose
	// a tool over a final answer
	for _, part := range candidate.Content.Parts {
		if part.FunctionCall != nil {
			return &PlanResult{
				Kind: KindToolCall,
				Call: &ToolCall{
					ID:        uuid.NewString(),
					Name:      part.FunctionCall.Name,
					Arguments: part.FunctionCall.Args,
				},
			}, nil
		}
	}

	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}
	if text == "" {
		return nil, errors.Wrap(errors.ErrInvalidResponse, "planning response had neither text nor tool call")
	}

	return &PlanResult{Kind: KindFinalAnswer, Text: text}, nil
}

func mapGeminiError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(errors.ErrTimeout, "gemini api call")
	}
	return errors.Wrapf(errors.ErrBackendUnavailable, "gemini api call: %v", err)
}

func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.Wrap(errors.ErrInvalidResponse, "no candidates in response")
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text, nil
}
