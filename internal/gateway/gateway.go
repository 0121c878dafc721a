package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"aegis/internal/metrics"
	"aegis/pkg/errors"
	"aegis/pkg/logger"
)

// binding ties a logical role to a backend and a concrete model name.
type binding struct {
	backend Backend
	model   string
	limiter *rate.Limiter
}

// Gateway routes model invocations by logical role and enforces the global
// timeout and retry budget.
type Gateway struct {
	bindings   map[Role]binding
	timeout    time.Duration
	maxRetries int
	log        *logger.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout sets the per-logical-call deadline budget.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithMaxRetries sets the retry budget per logical call.
func WithMaxRetries(n int) Option {
	return func(g *Gateway) { g.maxRetries = n }
}

// New creates an empty gateway; roles are bound with RegisterRole.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		bindings:   make(map[Role]binding),
		timeout:    30 * time.Second,
		maxRetries: 3,
		log:        logger.Get().With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RegisterRole binds a role to a backend and model. reqPerMinute <= 0
// disables rate limiting for the role.
func (g *Gateway) RegisterRole(role Role, backend Backend, model string, reqPerMinute int) {
	var limiter *rate.Limiter
	if reqPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(reqPerMinute)/60.0), burstFor(reqPerMinute))
	}
	g.bindings[role] = binding{backend: backend, model: model, limiter: limiter}
}

func burstFor(reqPerMinute int) int {
	burst := reqPerMinute / 10
	if burst < 1 {
		burst = 1
	}
	return burst
}

func (g *Gateway) roleBinding(role Role) (binding, error) {
	b, ok := g.bindings[role]
	if !ok {
		return binding{}, errors.Wrapf(errors.ErrRoleNotConfigured, "role %q", role)
	}
	return b, nil
}

// Invoke sends a completion request to the backend bound to role. The retry
// budget applies within a single deadline; retries do not reset the clock.
func (g *Gateway) Invoke(ctx context.Context, role Role, req GenerateRequest) (*GenerateResponse, error) {
	b, err := g.roleBinding(role)
	if err != nil {
		return nil, err
	}
	req.Model = b.model

	// One deadline budget for the whole logical call, retries included
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				metrics.ModelCalls.WithLabelValues(string(role), "timeout").Inc()
				return nil, errors.Wrap(errors.ErrTimeout, "rate limiter wait")
			}
		}

		resp, err := b.backend.Generate(ctx, req)
		if err == nil {
			resp.Backend = b.backend.Name()
			resp.Duration = time.Since(start)
			metrics.ModelCalls.WithLabelValues(string(role), "success").Inc()
			metrics.ModelLatency.WithLabelValues(string(role)).Observe(resp.Duration.Seconds())
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			break
		}
		g.log.Warnf("Backend %s attempt %d/%d failed: %v", b.backend.Name(), attempt, g.maxRetries, err)
	}

	status := "error"
	if errors.Is(lastErr, errors.ErrTimeout) || ctx.Err() == context.DeadlineExceeded {
		status = "timeout"
	}
	metrics.ModelCalls.WithLabelValues(string(role), status).Inc()

	if ctx.Err() == context.DeadlineExceeded && !errors.Is(lastErr, errors.ErrTimeout) {
		return nil, errors.Wrapf(errors.ErrTimeout, "role %q: %v", role, lastErr)
	}
	return nil, errors.Wrapf(lastErr, "role %q after %d attempts", role, g.maxRetries)
}

// retryable reports whether a failure may succeed on another attempt.
// Malformed output and caller cancellation are not retried here.
func retryable(err error) bool {
	return errors.Is(err, errors.ErrBackendUnavailable) || errors.Is(err, errors.ErrTimeout)
}

// InvokeStructured invokes a role and decodes the response as JSON into out.
// Responses wrapped in markdown code fences are unwrapped first. On a parse
// failure one re-prompt with a stricter instruction is attempted; a second
// failure is surfaced as ErrInvalidResponse.
func (g *Gateway) InvokeStructured(ctx context.Context, role Role, req GenerateRequest, out interface{}) error {
	basePrompt := req.Prompt
	req.Prompt = basePrompt + "\n\nRespond ONLY with valid JSON and no other text."
	if req.Temperature == 0 {
		req.Temperature = 0.1
	}

	resp, err := g.Invoke(ctx, role, req)
	if err != nil {
		return err
	}

	parseErr := decodeJSON(resp.Text, out)
	if parseErr == nil {
		return nil
	}
	g.log.Warnf("Structured output parse failed, re-prompting: %v", parseErr)

	req.Prompt = basePrompt + "\n\nYour previous response was not valid JSON. " +
		"Respond with a single valid JSON object only. No prose, no code fences."
	resp, err = g.Invoke(ctx, role, req)
	if err != nil {
		return err
	}
	if err := decodeJSON(resp.Text, out); err != nil {
		return err
	}
	return nil
}

// Plan runs a planning call against the powerful role. The backend must
// support function calling.
func (g *Gateway) Plan(ctx context.Context, req PlanRequest) (*PlanResult, error) {
	b, err := g.roleBinding(RolePowerful)
	if err != nil {
		return nil, err
	}
	planner, ok := b.backend.(Planner)
	if !ok {
		return nil, errors.Wrapf(errors.ErrRoleNotConfigured, "backend %s does not support planning", b.backend.Name())
	}
	req.Model = b.model

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= g.maxRetries; attempt++ {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				metrics.ModelCalls.WithLabelValues(string(RolePowerful), "timeout").Inc()
				return nil, errors.Wrap(errors.ErrTimeout, "rate limiter wait")
			}
		}

		result, err := planner.Plan(ctx, req)
		if err == nil {
			metrics.ModelCalls.WithLabelValues(string(RolePowerful), "success").Inc()
			return result, nil
		}
		lastErr = err

		if !retryable(err) || ctx.Err() != nil {
			break
		}
		g.log.Warnf("Planning attempt %d/%d failed: %v", attempt, g.maxRetries, err)
	}

	metrics.ModelCalls.WithLabelValues(string(RolePowerful), "error").Inc()
	return nil, errors.Wrap(lastErr, "planning call")
}

// decodeJSON parses raw model output, tolerating markdown fence wrapping.
func decodeJSON(text string, out interface{}) error {
	cleaned := stripFences(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return errors.Wrapf(errors.ErrInvalidResponse, "parse JSON output: %v", err)
	}
	return nil
}

// stripFences removes a leading/trailing markdown code fence, including an
// optional language tag on the opening fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
