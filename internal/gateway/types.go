package gateway

import "time"

// Role identifies a logical model role. Callers select backends by role,
// never by vendor identity.
type Role string

const (
	// RoleFast is a lightweight local model for cheap classification
	RoleFast Role = "fast"

	// RoleGuard is a specialized local safety/compliance classifier
	RoleGuard Role = "guard"

	// RolePowerful is a remote model for planning and complex reasoning
	RolePowerful Role = "powerful"
)

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message represents a single message passed to a backend.
type Message struct {
	Role      MessageRole
	Content   string
	ToolCalls []ToolCall
	ToolName  string // set on tool-result messages
}

// ToolCall represents a tool invocation request proposed by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// ToolDefinition describes a tool in backend-neutral form; backends translate
// it into their own function-calling schema.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *ParameterSchema
}

// ParameterSchema is a JSON-schema-like parameter spec.
type ParameterSchema struct {
	Properties map[string]Property
	Required   []string
}

// Property describes a single tool parameter.
type Property struct {
	Type        string // "string", "integer", "number", "boolean"
	Description string
	Enum        []string
}

// GenerateRequest is a plain text completion request.
type GenerateRequest struct {
	Model       string
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
}

// GenerateResponse is the result of a completion.
type GenerateResponse struct {
	Text     string
	Backend  string
	Duration time.Duration
}

// PlanRequest asks the model to decide the agent's next action given the
// conversation history and the available tools.
type PlanRequest struct {
	Model       string
	System      string
	History     []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// PlanKind tags the two valid outcomes of a planning call.
type PlanKind string

const (
	KindFinalAnswer PlanKind = "final_answer"
	KindToolCall    PlanKind = "tool_call"
)

// PlanResult is the typed outcome of a planning call. Exactly one of Text or
// Call is meaningful, selected by Kind; callers never string-sniff content.
type PlanResult struct {
	Kind PlanKind
	Text string
	Call *ToolCall
}
