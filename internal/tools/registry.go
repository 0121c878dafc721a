package tools

import (
	"context"
	"sync"

	"aegis/internal/gateway"
	"aegis/internal/metrics"
	"aegis/pkg/errors"
)

// Registry stores tool descriptors and handlers by name. It is populated at
// startup and read-only afterwards, so it is safely shared across
// conversations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registration
}

type registration struct {
	desc    Descriptor
	handler Handler
}

// NewRegistry constructs an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]registration),
	}
}

// Register adds or replaces a tool under its descriptor name.
func (r *Registry) Register(desc Descriptor, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[desc.Name] = registration{desc: desc, handler: h}
}

// Resolve retrieves a tool descriptor by name.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return Descriptor{}, errors.Wrapf(errors.ErrUnknownTool, "%q", name)
	}
	return reg.desc, nil
}

// Definitions returns the tool set translated for planning calls.
func (r *Registry) Definitions() []gateway.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]gateway.ToolDefinition, 0, len(r.tools))
	for _, reg := range r.tools {
		defs = append(defs, reg.desc.Definition())
	}
	return defs
}

// Execute validates raw arguments against the tool's schema and runs the
// handler. Handler and validation failures come back as ErrToolExecution;
// they never crash the conversation.
func (r *Registry) Execute(ctx context.Context, name string, raw map[string]interface{}) (string, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", errors.Wrapf(errors.ErrUnknownTool, "%q", name)
	}

	args, err := DecodeArgs(reg.desc, raw)
	if err != nil {
		metrics.ToolExecutions.WithLabelValues(name, "error").Inc()
		return "", errors.Wrapf(errors.ErrToolExecution, "%s: %v", name, err)
	}

	result, err := reg.handler(ctx, args)
	if err != nil {
		metrics.ToolExecutions.WithLabelValues(name, "error").Inc()
		return "", errors.Wrapf(errors.ErrToolExecution, "%s: %v", name, err)
	}

	metrics.ToolExecutions.WithLabelValues(name, "success").Inc()
	return result, nil
}
