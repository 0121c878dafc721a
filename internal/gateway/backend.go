package gateway

import "context"

// Backend is a single model vendor endpoint.
type Backend interface {
	// Name returns the backend identifier for logging and metrics.
	Name() string

	// Generate produces a text completion.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Planner is implemented by backends that support function calling. The
// planning call returns a typed final-answer or tool-call result.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (*PlanResult, error)
}
